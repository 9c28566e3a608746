package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/THARINDU-DHANANJAYA-Coding-Slave/SWMD/internal/sysres"
)

const (
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
)

const (
	// FileName 是可选配置文件名，固定在 cwd 下发现；不存在不算错误。
	FileName = "swmd.json"
	// DefaultModsRoot 是整合目标根目录的默认值（相对 cwd）。
	DefaultModsRoot = "mods"
	// MaxWorkers 是并发下载数的硬上限；超出截断。
	MaxWorkers = 32
)

// DefaultExcludedItems 是“失败不致命”的默认物品清单：这些物品在 Workshop 上
// 长期半损坏，下载常失败但不影响其余整合结果。swmd.json 的 exclude_items
// 可整体覆盖（显式空数组 = 清空清单）。
var DefaultExcludedItems = []string{"2872282653", "3455086119"}

// CLIArgs 只包含 CLI 暴露的入口，并保留“是否显式指定”的信息。
// 这能保证覆盖优先级可实现：例如 --validate=false 必须能覆盖 config.validate=true。
type CLIArgs struct {
	URL   string
	AppID string

	SteamCMD string
	Output   string
	LogFile  string

	Workers    int
	WorkersSet bool

	Validate    bool
	ValidateSet bool
}

// FileConfig 对应 swmd.json 的解析结构。
// ExcludeItems 用指针区分“字段缺失”（沿用默认清单）与“显式空数组”（清空清单）。
type FileConfig struct {
	SteamCMD     string    `json:"steamcmd"`
	ModsRoot     string    `json:"mods_root"`
	Workers      int       `json:"workers"`
	Validate     *bool     `json:"validate"`
	ExcludeItems *[]string `json:"exclude_items"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，
// 不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	URL   string
	AppID string

	SteamCMD string
	ModsRoot string

	Workers  int
	Validate bool

	Output  string
	LogFile string

	// ExcludedItems 已去重排序；下载层据此判断“失败是否致命”。
	ExcludedItems []string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s：配置 %q 无效：%v", e.Code, e.Path, e.Err)
	}
	return fmt.Sprintf("%s：配置 %q 无效", e.Code, e.Path)
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 读取可选的 <cwd>/swmd.json，然后与 CLI 参数合并为最终配置。
//
// 覆盖优先级（固定）：
// - steamcmd / workers / validate：CLI > config > 默认
// - mods_root / exclude_items：仅由 config 控制（CLI 不暴露）
// - url / appid / output / logfile：仅由 CLI 控制（逐次运行的输入）
// workers 的最终默认值由机器资源推导（steamcmd 实例开销大，不适合固定常数）。
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	cfgPath := filepath.Join(cwdAbs, FileName)
	fc, _, err := readFileConfig(cfgPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	return merge(cwdAbs, cli, fc, cfgPath)
}

func merge(cwdAbs string, cli CLIArgs, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	appID := strings.TrimSpace(cli.AppID)
	if appID != "" && !allDigits(appID) {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("appid 必须是纯数字，实际是 %q", cli.AppID)}
	}

	// steamcmd：CLI > config > 空串（空串交给发现阶梯处理）。
	steamCMD := strings.TrimSpace(cli.SteamCMD)
	if steamCMD == "" {
		steamCMD = strings.TrimSpace(fc.SteamCMD)
	}

	// workers：CLI > config > 按 CPU/内存自动推导。
	var workers int
	switch {
	case cli.WorkersSet:
		workers = cli.Workers
	case fc.Workers != 0:
		workers = fc.Workers
	default:
		workers = sysres.AutoWorkers()
	}
	// 文档约定：范围建议 [1, 32]；超出截断。
	if workers < 1 {
		workers = 1
	}
	if workers > MaxWorkers {
		workers = MaxWorkers
	}

	// validate：CLI > config > 默认 false。
	validate := false
	if cli.ValidateSet {
		validate = cli.Validate
	} else if fc.Validate != nil {
		validate = *fc.Validate
	}

	modsRoot := strings.TrimSpace(fc.ModsRoot)
	if modsRoot == "" {
		modsRoot = DefaultModsRoot
	}
	modsRoot = absCleanFrom(cwdAbs, modsRoot)

	excluded := DefaultExcludedItems
	if fc.ExcludeItems != nil {
		excluded = *fc.ExcludeItems
	}

	return EffectiveConfig{
		URL:           strings.TrimSpace(cli.URL),
		AppID:         appID,
		SteamCMD:      steamCMD,
		ModsRoot:      modsRoot,
		Workers:       workers,
		Validate:      validate,
		Output:        strings.TrimSpace(cli.Output),
		LogFile:       strings.TrimSpace(cli.LogFile),
		ExcludedItems: normalizeItems(excluded),
	}, nil
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// normalizeItems 去空白、去空串、去重并排序；总是返回新切片（不改入参）。
func normalizeItems(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
// - p 若已是绝对路径：直接 Clean
// - p 若是相对路径：Join(base, p) 后 Clean
func absCleanFrom(base, p string) string {
	p = filepath.Clean(strings.TrimSpace(p))
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 JSON 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	if err := json.Unmarshal(b, &fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
