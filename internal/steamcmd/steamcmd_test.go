package steamcmd

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestBuildArgs(t *testing.T) {
	got := BuildArgs("108600", "2872282653", false)
	want := "+login anonymous +workshop_download_item 108600 2872282653 +quit"
	if strings.Join(got, " ") != want {
		t.Fatalf("参数序列不对：%q", strings.Join(got, " "))
	}

	got = BuildArgs("108600", "2872282653", true)
	want = "+login anonymous +workshop_download_item 108600 2872282653 validate +quit"
	if strings.Join(got, " ") != want {
		t.Fatalf("validate 参数序列不对：%q", strings.Join(got, " "))
	}
}

func TestSuccessMarker(t *testing.T) {
	re := SuccessMarker("12345")
	out := "Loading Steam API...OK\n success. downloaded item 12345 to \"/x\" (123 bytes)\n"
	if !re.MatchString(out) {
		t.Fatalf("应命中成功标记（大小写不敏感）")
	}
	if re.MatchString("Success. Downloaded item 123456 ...") {
		t.Fatalf("不应命中其它物品的成功行")
	}
	if re.MatchString("ERROR! Download item 12345 failed (Failure).") {
		t.Fatalf("失败输出不应命中")
	}
}

func TestFind_ExplicitFileAndDir(t *testing.T) {
	dir := t.TempDir()
	exe := filepath.Join(dir, exeNames()[0])
	if err := os.WriteFile(exe, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("准备可执行文件失败：%v", err)
	}

	// 显式给文件：原样返回。
	if got, err := Find(exe); err != nil || got != exe {
		t.Fatalf("显式文件定位失败：%q %v", got, err)
	}
	// 显式给目录：在目录下找可执行文件名。
	if got, err := Find(dir); err != nil || got != exe {
		t.Fatalf("显式目录定位失败：%q %v", got, err)
	}
}

func TestFind_EnvDirOverride(t *testing.T) {
	dir := t.TempDir()
	exe := filepath.Join(dir, exeNames()[0])
	if err := os.WriteFile(exe, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("准备可执行文件失败：%v", err)
	}
	t.Setenv(EnvDir, dir)

	got, err := Find("")
	if err != nil || got != exe {
		t.Fatalf("环境变量定位失败：%q %v", got, err)
	}
}

func TestFind_NotFound(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("Windows 的常见安装路径依赖本机状态")
	}
	t.Setenv(EnvDir, "")
	t.Setenv("PATH", "")

	_, err := Find(filepath.Join(t.TempDir(), "nope"))
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("期望 *NotFoundError，实际：%T %v", err, err)
	}
	if len(nf.Tried) == 0 {
		t.Fatalf("Tried 不应为空")
	}
}
