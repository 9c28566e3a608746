// Package steamcmd 封装外部 steamcmd 的定位、调用与输出判定。
//
// 约束：
// - 本工具不负责安装 steamcmd（找不到就明确报错）
// - steamcmd 的退出码不可靠：下载成败只看合并输出里的成功标记
package steamcmd

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"

	"github.com/THARINDU-DHANANJAYA-Coding-Slave/SWMD/internal/domain"
)

// EnvDir 是 steamcmd 安装目录的环境变量覆盖。
const EnvDir = "STEAMCMD_DIR"

// NotFoundError 表示所有候选位置都没有找到 steamcmd 可执行文件。
type NotFoundError struct {
	// Tried 记录实际检查过的位置（诊断用，不进错误消息）。
	Tried []string
}

func (e *NotFoundError) Error() string {
	return "未找到 steamcmd：请用 --steamcmd 指定路径，或设置 STEAMCMD_DIR"
}

func exeNames() []string {
	if runtime.GOOS == "windows" {
		return []string{"steamcmd.exe"}
	}
	// 包管理器安装为 steamcmd；官方 tarball 解包后是 steamcmd.sh。
	return []string{"steamcmd", "steamcmd.sh"}
}

func isFile(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && fi.Mode().IsRegular()
}

// Find 按固定顺序定位 steamcmd 可执行文件：
// 1) 显式路径（文件本身，或包含可执行文件的目录）
// 2) STEAMCMD_DIR 环境变量（目录）
// 3) ./steamcmd/ 与 ./steam cmd/（历史安装习惯，含带空格的目录名）
// 4) PATH
// 5) Windows 常见安装位置
func Find(explicit string) (string, error) {
	names := exeNames()
	var tried []string

	if explicit != "" {
		if isFile(explicit) {
			return explicit, nil
		}
		tried = append(tried, explicit)
		for _, n := range names {
			p := filepath.Join(explicit, n)
			if isFile(p) {
				return p, nil
			}
			tried = append(tried, p)
		}
	}

	if dir := os.Getenv(EnvDir); dir != "" {
		for _, n := range names {
			p := filepath.Join(dir, n)
			if isFile(p) {
				return p, nil
			}
			tried = append(tried, p)
		}
	}

	if cwd, err := os.Getwd(); err == nil {
		for _, local := range []string{"steamcmd", "steam cmd"} {
			for _, n := range names {
				p := filepath.Join(cwd, local, n)
				if isFile(p) {
					return p, nil
				}
				tried = append(tried, p)
			}
		}
	}

	for _, n := range names {
		if p, err := exec.LookPath(n); err == nil {
			return p, nil
		}
		tried = append(tried, "PATH:"+n)
	}

	if runtime.GOOS == "windows" {
		cands := []string{
			`C:\Program Files (x86)\Steam\steamcmd\steamcmd.exe`,
			`C:\Program Files\Steam\steamcmd\steamcmd.exe`,
		}
		if home, err := os.UserHomeDir(); err == nil {
			cands = append(cands, filepath.Join(home, "AppData", "Local", "SteamCMD", "steamcmd.exe"))
		}
		for _, p := range cands {
			if isFile(p) {
				return p, nil
			}
			tried = append(tried, p)
		}
	}

	return "", &NotFoundError{Tried: tried}
}

// BuildArgs 组装一次单物品下载的参数序列。
// 注意 "validate" 是 workshop_download_item 的子参数，不带 '+' 前缀。
func BuildArgs(appID string, itemID domain.ItemID, validate bool) []string {
	args := []string{"+login", "anonymous", "+workshop_download_item", appID, string(itemID)}
	if validate {
		args = append(args, "validate")
	}
	return append(args, "+quit")
}

// SuccessMarker 构造判定某物品下载成功的正则（大小写不敏感）。
func SuccessMarker(itemID domain.ItemID) *regexp.Regexp {
	return regexp.MustCompile(`(?i)Success\.\s+Downloaded item\s+` + regexp.QuoteMeta(string(itemID)) + `\b`)
}

// ContentDir 返回某 app 的 workshop 内容树根（相对 steamcmd 所在目录）。
func ContentDir(steamDir, appID string) string {
	return filepath.Join(steamDir, "steamapps", "workshop", "content", appID)
}

// Runner 执行一次 steamcmd 进程并返回合并输出。
// 接口存在的唯一目的：让下载编排能在测试里替换为假进程。
type Runner interface {
	// Dir 返回 steamcmd 所在目录（steamapps 内容树挂在它下面）。
	Dir() string
	// Run 以 args 运行 steamcmd，返回 stdout+stderr 合并输出。
	// 进程非零退出不视为错误：成败由输出里的成功标记判定。
	Run(ctx context.Context, args []string) (string, error)
}

// CmdRunner 是真实进程实现。
type CmdRunner struct {
	Exe string
}

func (r CmdRunner) Dir() string { return filepath.Dir(r.Exe) }

func (r CmdRunner) Run(ctx context.Context, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, r.Exe, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			// steamcmd 常以非零码退出但内容已下载完成；交给成功标记判定。
			return string(out), nil
		}
		return string(out), err
	}
	return string(out), nil
}
