//go:build unix

package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/THARINDU-DHANANJAYA-Coding-Slave/SWMD/internal/domain"
)

const integrationPage = `<!doctype html>
<html>
<head><meta property="og:title" content="Zomboid Essentials"/></head>
<body data-appid="108600">
  <h1 class="collectionTitle">Zomboid Essentials</h1>
  <a href="https://steamcommunity.com/sharedfiles/filedetails/?id=111">Mod A</a>
  <a href="https://steamcommunity.com/sharedfiles/filedetails/?id=222">Mod B</a>
</body>
</html>`

// fakeSteamCMD 写一个模拟 steamcmd 的脚本：按真实落盘格式造出 mods/ 负载，
// 并在输出里打印成功标记。
func fakeSteamCMD(t *testing.T, dir string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	exe := filepath.Join(dir, "steamcmd.sh")
	script := `#!/bin/sh
# 参数形如：+login anonymous +workshop_download_item <app> <item> [validate] +quit
app="$4"
item="$5"
root="$(cd "$(dirname "$0")" && pwd)"
payload="$root/steamapps/workshop/content/$app/$item/mods/Mod$item"
mkdir -p "$payload"
printf 'name=Mod%s\n' "$item" > "$payload/mod.info"
printf 'Success. Downloaded item %s to "%s" (123 bytes)\n' "$item" "$root"
`
	if err := os.WriteFile(exe, []byte(script), 0o755); err != nil {
		t.Fatalf("写入脚本失败：%v", err)
	}
	return exe
}

func repoRootDir(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("读取 cwd 失败：%v", err)
	}
	return filepath.Clean(filepath.Join(wd, "..", ".."))
}

// buildCLI 先在仓库根目录把 swmd 编译成二进制再返回路径：测试要求子进程的
// cwd 在模块外的临时目录里（mods/ 落在那里），而 `go run` 需要 cwd 能找到
// go.mod，两者冲突，所以只能先构建后执行。
func buildCLI(t *testing.T) string {
	t.Helper()
	bin := filepath.Join(t.TempDir(), "swmd")
	cmd := exec.Command("go", "build", "-o", bin, "./cmd/swmd")
	cmd.Dir = repoRootDir(t)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("构建 CLI 失败：%v\n%s", err, out)
	}
	return bin
}

func TestCLI_NoTTY_StdoutOnlyRunReportJSON(t *testing.T) {
	// 这个测试锁定对外契约：stdout 非 TTY 时只能输出一个 RunReport JSON（进度/配置必须走 stderr 或直接禁用）。
	root := t.TempDir()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, integrationPage)
	}))
	t.Cleanup(ts.Close)

	exe := fakeSteamCMD(t, filepath.Join(root, "steam"))

	// cwd 放进临时目录：mods/ 会落在这里，不污染仓库。
	workDir := filepath.Join(root, "work")
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		t.Fatalf("创建工作目录失败：%v", err)
	}

	cmd := exec.Command(buildCLI(t),
		"run", ts.URL+"/sharedfiles/filedetails/?id=999",
		"--steamcmd", exe,
		"--workers", "1",
	)
	cmd.Dir = workDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		t.Fatalf("命令执行失败：%v\nstderr=%s\nstdout=%s", err, stderr.String(), stdout.String())
	}

	// stdout 必须是单个 JSON。
	var rr domain.RunReport
	if err := json.Unmarshal(stdout.Bytes(), &rr); err != nil {
		t.Fatalf("stdout 不是合法的 RunReport JSON：%v\nstdout=%q", err, stdout.String())
	}
	if rr.Outcome != domain.OutcomeOK {
		t.Fatalf("期望 outcome=ok，实际=%q items=%+v", rr.Outcome, rr.Items)
	}
	if rr.Summary.Downloaded != 2 || rr.Summary.Failed != 0 {
		t.Fatalf("summary 不对：%+v", rr.Summary)
	}
	// 进度/配置不应出现在 stdout。
	if strings.Contains(stdout.String(), "配置（生效）") || strings.Contains(stdout.String(), "进度:") {
		t.Fatalf("stdout 不应包含进度/配置输出：%q", stdout.String())
	}

	// stderr 至少应包含最终摘要行。
	if !strings.Contains(stderr.String(), "完成：outcome=ok") {
		t.Fatalf("stderr 缺少完成摘要：%q", stderr.String())
	}

	// mods 树落在 cwd 下：mods/<游戏名>/<合集名>/<mod>。
	dest := filepath.Join(workDir, "mods", "Project Zomboid", "Zomboid Essentials")
	for _, mod := range []string{"Mod111", "Mod222"} {
		if _, err := os.Stat(filepath.Join(dest, mod, "mod.info")); err != nil {
			t.Fatalf("期望 %s 已归并到 %s：%v", mod, dest, err)
		}
	}
}

func TestCLI_MissingURL(t *testing.T) {
	workDir := t.TempDir()

	cmd := exec.Command(buildCLI(t), "run")
	cmd.Dir = workDir

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err == nil {
		t.Fatalf("缺少 URL 应以非零码退出")
	}
	if !strings.Contains(stderr.String(), "缺少 Workshop 链接") {
		t.Fatalf("stderr 缺少提示：%q", stderr.String())
	}
}
