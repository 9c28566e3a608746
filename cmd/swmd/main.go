package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/THARINDU-DHANANJAYA-Coding-Slave/SWMD/internal/app/run"
	"github.com/THARINDU-DHANANJAYA-Coding-Slave/SWMD/internal/config"
	"github.com/THARINDU-DHANANJAYA-Coding-Slave/SWMD/internal/domain"
	"github.com/THARINDU-DHANANJAYA-Coding-Slave/SWMD/internal/steamcmd"
)

func main() {
	args := os.Args[1:]
	if len(args) == 0 || isHelp(args[0]) {
		printUsage()
		return
	}

	switch args[0] {
	case "run":
		if code := runCmd(args[1:]); code != 0 {
			os.Exit(code)
		}
	default:
		fmt.Fprintf(os.Stderr, "未知命令：%q\n\n", args[0])
		printUsage()
		os.Exit(2)
	}
}

func runCmd(args []string) int {
	for _, a := range args {
		if isHelp(a) {
			printRunUsage()
			return 0
		}
	}

	ra, err := parseRunArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "参数错误：%v\n\n", err)
		printRunUsage()
		return 2
	}
	if strings.TrimSpace(ra.URL) == "" {
		fmt.Fprintln(os.Stderr, "缺少 Workshop 链接（位置参数或 --url）")
		fmt.Fprintln(os.Stderr)
		printRunUsage()
		return 2
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取当前目录失败：%v\n", err)
		return 1
	}

	eff, err := config.LoadEffective(cwd, config.CLIArgs{
		URL:         ra.URL,
		AppID:       ra.AppID,
		SteamCMD:    ra.SteamCMD,
		Output:      ra.Output,
		LogFile:     ra.LogFile,
		Workers:     ra.Workers,
		WorkersSet:  ra.WorkersSet,
		Validate:    ra.Validate,
		ValidateSet: ra.ValidateSet,
	})
	if err != nil {
		emitReport(reportForConfigError(ra, err))
		return 1
	}

	// 安装 steamcmd 不是本工具的职责：找不到就快速失败。
	exe, err := steamcmd.Find(eff.SteamCMD)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	progressW, closeLog, perr := buildProgressWriter(eff.LogFile)
	if perr != nil {
		fmt.Fprintf(os.Stderr, "打开日志文件失败：%v\n", perr)
		return 1
	}
	defer closeLog()

	var obs run.Observer
	if progressW != nil {
		obs = newProgressUI(progressW)
	}

	rr := run.ExecuteWithObserver(context.Background(), eff, steamcmd.CmdRunner{Exe: exe}, obs)

	emitReport(rr)
	return exitCodeFor(rr.Outcome)
}

type runArgs struct {
	URL      string
	AppID    string
	SteamCMD string
	Output   string
	LogFile  string

	Workers    int
	WorkersSet bool

	Validate    bool
	ValidateSet bool
}

func parseRunArgs(args []string) (runArgs, error) {
	ra := runArgs{}

	stringFlags := map[string]*string{
		"--url":      &ra.URL,
		"--appid":    &ra.AppID,
		"--steamcmd": &ra.SteamCMD,
		"--output":   &ra.Output,
		"--logfile":  &ra.LogFile,
	}

	for i := 0; i < len(args); i++ {
		a := args[i]

		// 只有 --flag 形式才可能带内联值；位置参数（URL）里本来就有 '='。
		name, inline, hasInline := a, "", false
		if strings.HasPrefix(a, "--") {
			if j := strings.Index(a, "="); j >= 0 {
				name, inline, hasInline = a[:j], a[j+1:], true
			}
		}

		if dst, ok := stringFlags[name]; ok {
			v := inline
			if !hasInline {
				if i+1 >= len(args) {
					return runArgs{}, fmt.Errorf("%s 需要一个值", name)
				}
				i++
				v = args[i]
			}
			*dst = v
			continue
		}

		switch name {
		case "--workers":
			v := inline
			if !hasInline {
				if i+1 >= len(args) {
					return runArgs{}, fmt.Errorf("--workers 需要一个值")
				}
				i++
				v = args[i]
			}
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return runArgs{}, fmt.Errorf("--workers 需要整数，实际是 %q", v)
			}
			ra.Workers = n
			ra.WorkersSet = true
		case "--validate":
			if hasInline {
				switch inline {
				case "true":
					ra.Validate = true
				case "false":
					ra.Validate = false
				default:
					return runArgs{}, fmt.Errorf("--validate 只能是 true 或 false，实际是 %q", inline)
				}
			} else {
				ra.Validate = true
			}
			ra.ValidateSet = true
		default:
			if strings.HasPrefix(a, "-") {
				return runArgs{}, fmt.Errorf("未知参数 %q", a)
			}
			if ra.URL != "" {
				return runArgs{}, fmt.Errorf("重复的 URL：%q 与 %q", ra.URL, a)
			}
			ra.URL = a
		}
	}

	return ra, nil
}

func isHelp(s string) bool {
	return s == "-h" || s == "--help" || s == "help"
}

func printUsage() {
	fmt.Fprint(os.Stdout, `用法：
  swmd run <url> [--appid N] [--steamcmd PATH] [--workers N] [--validate] [--output FILE] [--logfile FILE]

命令：
  run    解析 Workshop 链接，下载其中的 mod 并归并到 mods/

使用 "swmd run --help" 查看详细说明。
`)
}

func printRunUsage() {
	fmt.Fprint(os.Stdout, `用法：
  swmd run <url> [--appid N] [--steamcmd PATH] [--workers N] [--validate] [--output FILE] [--logfile FILE]

参数：
  <url>        Workshop 物品或合集链接（也可用 --url 传入）
  --appid      覆盖页面解析出的 AppID（页面无法识别游戏时必填）
  --steamcmd   steamcmd 可执行文件或其所在目录（默认走发现顺序，含 STEAMCMD_DIR）
  --workers    并发下载数（默认按 CPU/内存推导；建议范围 [1, 32]）
  --validate   让 steamcmd 校验已下载文件的完整性
  --output     把解析出的页面信息写成 JSON 文件（调试用）
  --logfile    追加一份进度日志到文件
  -h, --help   显示帮助

可选配置文件 swmd.json（cwd 下）：steamcmd、workers、validate、mods_root、exclude_items。
退出码：0 成功；1 配置/steamcmd/抓取错误；2 缺少 URL 或 AppID；3 没有物品；4 下载失败。
`)
}

// 退出码契约：0 成功；1 配置/steamcmd/抓取错误；2 缺少 URL 或 AppID；
// 3 没有物品；4 批量重试后仍有下载失败。
func exitCodeFor(outcome string) int {
	switch outcome {
	case domain.OutcomeOK:
		return 0
	case domain.OutcomeAppIDMissing:
		return 2
	case domain.OutcomeNoItems:
		return 3
	case domain.OutcomeDownloadFailed:
		return 4
	default:
		return 1
	}
}

func emitReport(rr domain.RunReport) {
	if isTTY(os.Stdout) {
		fmt.Fprintf(os.Stdout, "完成：outcome=%s downloaded=%d failed=%d excluded_failed=%d moved=%d skipped=%d\n",
			rr.Outcome, rr.Summary.Downloaded, rr.Summary.Failed, rr.Summary.ExcludedFailed,
			rr.Moved.Moved, rr.Moved.Skipped,
		)
		for _, it := range rr.Items {
			if it.Status != domain.StatusFailed {
				continue
			}
			key := it.ItemID
			if key == "" {
				// 流程级合成条目没有物品 ID。
				key = "<run>"
			}
			fmt.Fprintf(os.Stderr, "%s %s: %s\n", key, it.ErrorCode, it.ErrorMsg)
		}
		for _, w := range rr.Moved.Warnings {
			fmt.Fprintf(os.Stderr, "警告：%s\n", w)
		}
		return
	}

	// stdout 非 TTY：stdout 必须且仅输出一个 RunReport JSON（日志/摘要走 stderr）。
	enc := json.NewEncoder(os.Stdout)
	_ = enc.Encode(rr)
	fmt.Fprintf(os.Stderr, "完成：outcome=%s downloaded=%d failed=%d excluded_failed=%d\n",
		rr.Outcome, rr.Summary.Downloaded, rr.Summary.Failed, rr.Summary.ExcludedFailed,
	)
}

func reportForConfigError(ra runArgs, err error) domain.RunReport {
	now := time.Now().UTC()
	rr := domain.RunReport{
		URL:        strings.TrimSpace(ra.URL),
		Outcome:    domain.OutcomeConfigInvalid,
		StartedAt:  now,
		FinishedAt: now,
		Items: []domain.ItemResult{{
			Status:    domain.StatusFailed,
			ErrorCode: config.Code(err),
			ErrorMsg:  err.Error(),
		}},
	}
	rr.Finalize()
	return rr
}

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// buildProgressWriter 决定进度流的去向：交互终端走 stderr（stderr 被重定向而
// stdout 仍是 TTY 时退化到 stdout）；--logfile 以追加方式再 tee 一份到文件。
// 返回 nil writer 表示完全不需要进度输出。
func buildProgressWriter(logFile string) (io.Writer, func(), error) {
	noop := func() {}

	var w io.Writer
	if isTTY(os.Stderr) {
		w = os.Stderr
	} else if isTTY(os.Stdout) {
		w = os.Stdout
	}

	if logFile == "" {
		return w, noop, nil
	}

	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, noop, err
	}
	closeFn := func() { _ = f.Close() }
	if w == nil {
		return f, closeFn, nil
	}
	return io.MultiWriter(w, f), closeFn, nil
}
