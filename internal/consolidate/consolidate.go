// Package consolidate 把 steamcmd 的 workshop 内容树归并进 mods/ 目录。
//
// 约束：
// - 已存在的同名条目跳过（先到先得，绝不覆盖用户现有 mod）
// - 移动/清理失败降级为 warning：损失的是整洁，不是正确性
// - 源树不存在 => 无事发生（可以在没有新下载时安全重复执行）
package consolidate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/THARINDU-DHANANJAYA-Coding-Slave/SWMD/internal/infra/fsx"
)

// Result 汇总一次归并的结果。
type Result struct {
	DestDir string

	Moved   int
	Skipped int

	Warnings []string

	// SourceMissing 表示内容树不存在（什么都没发生）。
	SourceMissing bool
}

var unsafeNameRE = regexp.MustCompile(`[\\/:*?"<>|]`)

// SanitizeName 把合集名清洗为跨平台安全的目录名。
// 全部字符都不安全时退化为 "collection"。
func SanitizeName(name string) string {
	safe := strings.TrimSpace(unsafeNameRE.ReplaceAllString(name, "_"))
	if safe == "" {
		return "collection"
	}
	return safe
}

// DestDir 计算归并目标目录：<modsRoot>/<游戏名>[/<清洗后的合集名>]。
func DestDir(modsRoot, gameName, collectionName string) string {
	dir := filepath.Join(modsRoot, gameName)
	if strings.TrimSpace(collectionName) != "" {
		dir = filepath.Join(dir, SanitizeName(collectionName))
	}
	return dir
}

// Run 把 contentDir 下每个物品目录的 mods/ 负载合并进 destDir。
//
// 物品目录布局（steamcmd 落盘格式）：
//
//	<contentDir>/<item_id>/mods/<mod 目录或文件>
//
// 没有 mods/ 负载的物品目录原样保留（内容格式未知，不猜）。
func Run(contentDir, destDir string) (Result, error) {
	res := Result{DestDir: destDir}

	fi, err := os.Stat(contentDir)
	if err != nil {
		if os.IsNotExist(err) {
			res.SourceMissing = true
			return res, nil
		}
		return res, err
	}
	if !fi.IsDir() {
		res.SourceMissing = true
		return res, nil
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return res, err
	}

	// 目标目录现有条目一次读入，用于 O(1) 冲突判定。
	existing, err := readNames(destDir)
	if err != nil {
		return res, err
	}

	// os.ReadDir 按文件名排序；输出与磁盘枚举顺序无关。
	items, err := os.ReadDir(contentDir)
	if err != nil {
		return res, err
	}

	for _, it := range items {
		if !it.IsDir() {
			continue
		}
		itemDir := filepath.Join(contentDir, it.Name())
		payload := filepath.Join(itemDir, "mods")
		pfi, perr := os.Stat(payload)
		if perr != nil || !pfi.IsDir() {
			continue
		}

		children, cerr := os.ReadDir(payload)
		if cerr != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("读取 %s 失败：%v", payload, cerr))
			continue
		}
		for _, ch := range children {
			name := ch.Name()
			if _, ok := existing[name]; ok {
				res.Skipped++
				continue
			}
			src := filepath.Join(payload, name)
			if merr := fsx.Move(src, filepath.Join(destDir, name)); merr != nil {
				res.Warnings = append(res.Warnings, fmt.Sprintf("移动 %s 失败：%v", src, merr))
				continue
			}
			existing[name] = struct{}{}
			res.Moved++
		}

		pruneEmpty(payload)
		pruneEmpty(itemDir)
	}

	pruneEmpty(contentDir)
	return res, nil
}

func readNames(dir string) (map[string]struct{}, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	m := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		m[e.Name()] = struct{}{}
	}
	return m, nil
}

// pruneEmpty 删除空目录；非空或失败时安静放过。
func pruneEmpty(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) > 0 {
		return
	}
	_ = os.Remove(dir)
}
