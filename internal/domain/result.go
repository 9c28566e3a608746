package domain

// DownloadResult 描述单个物品的下载结局（含该物品的全部重试）。
// RawOutput 保留 steamcmd 的合并输出，仅用于失败诊断；不进入 report JSON。
type DownloadResult struct {
	ItemID    ItemID
	Succeeded bool
	Attempts  int
	RawOutput string
}
