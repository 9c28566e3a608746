package domain

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	StatusDownloaded = "downloaded"
	StatusFailed     = "failed"
)

// Outcome 是整次运行的终局（决定退出码）。
const (
	OutcomeOK             = "ok"
	OutcomeConfigInvalid  = "config_invalid"
	OutcomeFetchFailed    = "fetch_failed"
	OutcomeAppIDMissing   = "app_id_missing"
	OutcomeNoItems        = "no_items"
	OutcomeDownloadFailed = "download_failed"
)

// 下载流程内会出现在 items[] 里的 error_code。
// 配置错误的 code 由 config 包定义（CLI 合成条目时注入）；
// steamcmd 发现失败发生在流程开始前，只走 stderr，不进报告。
const (
	ErrCodeFetchFailed    = "fetch_failed"
	ErrCodeParseFailed    = "parse_failed"
	ErrCodeAppIDMissing   = "app_id_missing"
	ErrCodeNoItems        = "no_items"
	ErrCodeDownloadFailed = "download_failed"
)

// RunReport 是对外稳定输出（--output 之外的 stdout JSON）的结构。
type RunReport struct {
	RunID string `json:"run_id"`
	URL   string `json:"url"`

	AppID          string `json:"app_id"`
	GameName       string `json:"game_name"`
	CollectionName string `json:"collection_name"`
	IsCollection   bool   `json:"is_collection"`

	Outcome string `json:"outcome"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary ReportSummary `json:"summary"`
	Items   []ItemResult  `json:"items"`
	Moved   MoveSummary   `json:"moved"`
}

type ReportSummary struct {
	Downloaded     int `json:"downloaded"`
	Failed         int `json:"failed"`
	ExcludedFailed int `json:"excluded_failed"`
}

type ItemResult struct {
	ItemID   string `json:"item_id"`
	Status   string `json:"status"`
	Attempts int    `json:"attempts"`
	Excluded bool   `json:"excluded"`

	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
}

// MoveSummary 汇总归并阶段的结果。Warnings 永远不会让整次运行失败。
type MoveSummary struct {
	Moved    int      `json:"moved"`
	Skipped  int      `json:"skipped"`
	Warnings []string `json:"warnings"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) items 稳定排序：按 item_id 字典序；item_id=="" 的条目排在最后
// 3) summary 由 items 计算得出（excluded 的失败单独计数，不算致命）
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	sort.SliceStable(r.Items, func(i, j int) bool {
		a := r.Items[i].ItemID
		b := r.Items[j].ItemID
		if a == "" && b == "" {
			return false
		}
		if a == "" {
			return false
		}
		if b == "" {
			return true
		}
		return a < b
	})

	var s ReportSummary
	for _, it := range r.Items {
		switch {
		case it.Status == StatusDownloaded:
			s.Downloaded++
		case it.Status == StatusFailed && it.Excluded:
			s.ExcludedFailed++
		case it.Status == StatusFailed:
			s.Failed++
		}
	}
	r.Summary = s
}

// MarshalJSON 仅用于集中约束输出的稳定性（避免未来不小心引入非确定字段）。
// 当前只是透传 encoding/json 的默认行为。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	return json.Marshal(Alias(r))
}
