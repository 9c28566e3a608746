package consolidate

import (
	"os"
	"path/filepath"
	"testing"
)

// touch 建立 dir 并在其中写一个占位文件（模拟一个 mod 目录）。
func touch(t *testing.T, dir, file string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll 失败：%v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, file), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile 失败：%v", err)
	}
}

func TestSanitizeName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`My Pack: "Best" <Mods>?`, "My Pack_ _Best_ _Mods__"},
		{`a/b\c|d`, "a_b_c_d"},
		{"   ", "collection"},
		{"", "collection"},
		{"普通名字", "普通名字"},
	}
	for _, c := range cases {
		if got := SanitizeName(c.in); got != c.want {
			t.Fatalf("SanitizeName(%q) 期望 %q，实际=%q", c.in, c.want, got)
		}
	}
}

func TestDestDir(t *testing.T) {
	got := DestDir("/work/mods", "Project Zomboid", "My: Pack")
	want := filepath.Join("/work/mods", "Project Zomboid", "My_ Pack")
	if got != want {
		t.Fatalf("期望 %q，实际=%q", want, got)
	}
	got = DestDir("/work/mods", "108600", "")
	if got != filepath.Join("/work/mods", "108600") {
		t.Fatalf("无合集名时不应追加子目录：%q", got)
	}
}

func TestRun_MergeSkipPrune(t *testing.T) {
	root := t.TempDir()
	content := filepath.Join(root, "content", "108600")
	dest := filepath.Join(root, "mods", "Project Zomboid", "Pack")

	// 111 带 ModA；222 带 ModB 和一个重名 ModA（后者应被跳过）。
	touch(t, filepath.Join(content, "111", "mods", "ModA"), "mod.info")
	touch(t, filepath.Join(content, "222", "mods", "ModB"), "mod.info")
	touch(t, filepath.Join(content, "222", "mods", "ModA"), "other.info")

	res, err := Run(content, dest)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if res.Moved != 2 || res.Skipped != 1 {
		t.Fatalf("moved/skipped 期望 2/1，实际=%d/%d", res.Moved, res.Skipped)
	}
	if len(res.Warnings) != 0 {
		t.Fatalf("不期望 warning：%v", res.Warnings)
	}

	// 目标树：先到先得。
	if _, err := os.Stat(filepath.Join(dest, "ModA", "mod.info")); err != nil {
		t.Fatalf("ModA 未归并：%v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "ModB", "mod.info")); err != nil {
		t.Fatalf("ModB 未归并：%v", err)
	}

	// 111 整条链路已清空；222 还留着被跳过的 ModA。
	if _, err := os.Stat(filepath.Join(content, "111")); !os.IsNotExist(err) {
		t.Fatalf("111 应被清理，stat 结果：%v", err)
	}
	if _, err := os.Stat(filepath.Join(content, "222", "mods", "ModA", "other.info")); err != nil {
		t.Fatalf("被跳过的 ModA 应留在源树：%v", err)
	}
}

func TestRun_SecondRunIsNoop(t *testing.T) {
	root := t.TempDir()
	content := filepath.Join(root, "content", "108600")
	dest := filepath.Join(root, "mods", "PZ")

	touch(t, filepath.Join(content, "111", "mods", "ModA"), "mod.info")

	if _, err := Run(content, dest); err != nil {
		t.Fatalf("首次归并失败：%v", err)
	}
	res, err := Run(content, dest)
	if err != nil {
		t.Fatalf("重复归并不应报错：%v", err)
	}
	if !res.SourceMissing {
		t.Fatalf("源树已清空，应报告 SourceMissing：%+v", res)
	}
	if res.Moved != 0 || res.Skipped != 0 || len(res.Warnings) != 0 {
		t.Fatalf("重复归并应无事发生：%+v", res)
	}
}

func TestRun_MissingSourceIsNoop(t *testing.T) {
	root := t.TempDir()
	dest := filepath.Join(root, "mods", "PZ")

	res, err := Run(filepath.Join(root, "absent"), dest)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if !res.SourceMissing {
		t.Fatalf("应报告 SourceMissing")
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Fatalf("无源时不应创建目标目录")
	}
}

func TestRun_ItemWithoutPayloadLeftAlone(t *testing.T) {
	root := t.TempDir()
	content := filepath.Join(root, "content", "108600")
	dest := filepath.Join(root, "mods", "PZ")

	// 物品目录里没有 mods/ 负载：不动它。
	touch(t, filepath.Join(content, "333", "maps"), "map.bin")

	res, err := Run(content, dest)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if res.Moved != 0 {
		t.Fatalf("不应移动任何内容：%+v", res)
	}
	if _, err := os.Stat(filepath.Join(content, "333", "maps", "map.bin")); err != nil {
		t.Fatalf("无负载物品应原样保留：%v", err)
	}
}
