// Package run 串联一次完整的下载流程：解析页面、并发下载、归并、批量重试。
//
// 规则：
// - 单个物品失败不影响其他物品；致命与否由 Outcome 表达
// - 流程级失败降级为合成条目（item_id 为空），报告总能完整输出
// - 归并永远执行（部分失败也要把已到手的 mod 收进 mods/）
package run

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/THARINDU-DHANANJAYA-Coding-Slave/SWMD/internal/config"
	"github.com/THARINDU-DHANANJAYA-Coding-Slave/SWMD/internal/consolidate"
	"github.com/THARINDU-DHANANJAYA-Coding-Slave/SWMD/internal/domain"
	"github.com/THARINDU-DHANANJAYA-Coding-Slave/SWMD/internal/download"
	"github.com/THARINDU-DHANANJAYA-Coding-Slave/SWMD/internal/infra/fsx"
	"github.com/THARINDU-DHANANJAYA-Coding-Slave/SWMD/internal/infra/httpx"
	"github.com/THARINDU-DHANANJAYA-Coding-Slave/SWMD/internal/retry"
	"github.com/THARINDU-DHANANJAYA-Coding-Slave/SWMD/internal/steamcmd"
	"github.com/THARINDU-DHANANJAYA-Coding-Slave/SWMD/internal/workshop"
)

// retryWorkers 是批量重试轮的并发上限（降压：失败往往意味着对端不稳定）。
const retryWorkers = 2

// Execute 执行一次完整流程，并返回对外稳定的 RunReport。
func Execute(ctx context.Context, eff config.EffectiveConfig, r steamcmd.Runner) domain.RunReport {
	return ExecuteWithObserver(ctx, eff, r, nil)
}

// ExecuteWithObserver 与 Execute 相同，但允许传入 Observer 以输出进度/阶段信息（由上层决定是否启用）。
func ExecuteWithObserver(ctx context.Context, eff config.EffectiveConfig, r steamcmd.Runner, obs Observer) domain.RunReport {
	started := time.Now().UTC()

	if obs != nil {
		obs.OnStart(eff)
	}

	rr := domain.RunReport{
		RunID:     uuid.NewString(),
		URL:       eff.URL,
		Outcome:   domain.OutcomeOK,
		StartedAt: started,
		Items:     make([]domain.ItemResult, 0, 16),
	}

	resolveStarted := time.Now()
	info, err := workshop.Resolve(ctx, httpx.NewPageClient(), eff.URL)
	if err != nil {
		fillResolveFailure(&rr, err)
		return finish(&rr)
	}
	resolveDur := time.Since(resolveStarted)

	// app id：CLI 覆盖 > 页面解析；游戏名缺失时查已知表（查不到就用 app id 本身）。
	appID := eff.AppID
	if appID == "" {
		appID = info.AppID
	}
	gameName := info.GameName
	if gameName == "" {
		gameName = domain.GameNameForApp(appID)
	}

	rr.AppID = appID
	rr.GameName = gameName
	rr.CollectionName = info.CollectionName
	rr.IsCollection = info.IsCollection

	if obs != nil {
		obs.OnPhaseDone("resolve", map[string]any{
			"items":      len(info.ItemIDs),
			"collection": boolToInt(info.IsCollection),
			"app_id":     appID,
			"game":       gameName,
		}, resolveDur)
	}

	if appID == "" {
		rr.Outcome = domain.OutcomeAppIDMissing
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeAppIDMissing,
			"无法确定 AppID：页面没有暴露游戏信息，请用 --appid 指定"))
		return finish(&rr)
	}

	if len(info.ItemIDs) == 0 {
		rr.Outcome = domain.OutcomeNoItems
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeNoItems,
			"页面没有解析出任何物品 ID（链接是否指向 Workshop 物品或合集？）"))
		return finish(&rr)
	}

	// 调试输出：--output 落一份解析结果；写失败只告警，不影响下载。
	if eff.Output != "" {
		writeStarted := time.Now()
		werr := writePageInfo(eff.Output, info)
		if obs != nil {
			fields := map[string]any{"path": eff.Output}
			if werr != nil {
				fields["error"] = werr.Error()
			}
			obs.OnPhaseDone("output", fields, time.Since(writeStarted))
		}
	}

	excluded := make(map[domain.ItemID]struct{}, len(eff.ExcludedItems))
	for _, s := range eff.ExcludedItems {
		excluded[domain.ItemID(s)] = struct{}{}
	}

	var onItem func(done, total int, res domain.DownloadResult, dur time.Duration)
	if obs != nil {
		onItem = obs.OnItemDone
	}

	if obs != nil {
		obs.OnPhaseDone("download", map[string]any{
			"workers": eff.Workers,
			"total":   len(info.ItemIDs),
		}, 0)
	}

	results, derr := download.Items(ctx, r, info.ItemIDs, download.Options{
		AppID:    appID,
		Validate: eff.Validate,
		Workers:  eff.Workers,
		Policy:   retry.ItemDownload,
		Excluded: excluded,
		OnItem:   onItem,
	})

	byID := make(map[domain.ItemID]domain.DownloadResult, len(results))
	for _, res := range results {
		byID[res.ItemID] = res
	}

	// 归并永远执行：部分失败时已下载的 mod 也必须收进 mods/。
	collection := ""
	if info.IsCollection {
		collection = info.CollectionName
	}
	contentDir := steamcmd.ContentDir(r.Dir(), appID)
	destDir := consolidate.DestDir(eff.ModsRoot, gameName, collection)

	moved := consolidateOnce(contentDir, destDir, obs)

	// 批量重试：只对非排除的失败物品整体再走一轮（排除名单里的失败本来就
	// 不致命，不值得再压一轮）。并发压到 retryWorkers；有找回就再归并一次
	// （归并幂等，可安全重复）。
	var fe *download.FailedError
	if errors.As(derr, &fe) {
		workers := eff.Workers
		if workers > retryWorkers {
			workers = retryWorkers
		}
		if obs != nil {
			obs.OnPhaseDone("bulk_retry", map[string]any{
				"items":   len(fe.ItemIDs),
				"workers": workers,
			}, 0)
		}

		retryResults, _ := download.Items(ctx, r, fe.ItemIDs, download.Options{
			AppID:    appID,
			Validate: eff.Validate,
			Workers:  workers,
			Policy:   retry.ItemDownload,
			Excluded: excluded,
			OnItem:   onItem,
		})

		recovered := 0
		for _, res := range retryResults {
			prev := byID[res.ItemID]
			res.Attempts += prev.Attempts // 报告里体现两轮的总尝试数
			byID[res.ItemID] = res
			if res.Succeeded {
				recovered++
			}
		}
		if recovered > 0 {
			more := consolidateOnce(contentDir, destDir, obs)
			moved.Moved += more.Moved
			moved.Skipped += more.Skipped
			moved.Warnings = append(moved.Warnings, more.Warnings...)
		}
	}

	finalFailed := 0
	for id, res := range byID {
		it := domain.ItemResult{
			ItemID:   string(id),
			Attempts: res.Attempts,
		}
		if _, ok := excluded[id]; ok {
			it.Excluded = true
		}
		if res.Succeeded {
			it.Status = domain.StatusDownloaded
		} else {
			it.Status = domain.StatusFailed
			it.ErrorCode = domain.ErrCodeDownloadFailed
			it.ErrorMsg = downloadFailureMsg(res)
			if !it.Excluded {
				finalFailed++
			}
		}
		rr.Items = append(rr.Items, it)
	}
	if finalFailed > 0 {
		rr.Outcome = domain.OutcomeDownloadFailed
	}

	rr.Moved = moved
	return finish(&rr)
}

func finish(rr *domain.RunReport) domain.RunReport {
	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()
	return *rr
}

// consolidateOnce 执行一次归并并发出阶段事件；硬错误（如目标目录建不出来）
// 也降级为 warning——丢的是整洁，不是已下载的内容。
func consolidateOnce(contentDir, destDir string, obs Observer) domain.MoveSummary {
	conStarted := time.Now()
	cres, cerr := consolidate.Run(contentDir, destDir)
	if cerr != nil {
		cres.Warnings = append(cres.Warnings, cerr.Error())
	}
	if obs != nil {
		obs.OnPhaseDone("consolidate", map[string]any{
			"moved":          cres.Moved,
			"skipped":        cres.Skipped,
			"warnings":       len(cres.Warnings),
			"source_missing": boolToInt(cres.SourceMissing),
			"dest":           destDir,
		}, time.Since(conStarted))
	}
	return domain.MoveSummary{
		Moved:    cres.Moved,
		Skipped:  cres.Skipped,
		Warnings: cres.Warnings,
	}
}

func syntheticFailed(code, msg string) domain.ItemResult {
	return domain.ItemResult{
		ItemID:    "",
		Status:    domain.StatusFailed,
		ErrorCode: code,
		ErrorMsg:  msg,
	}
}

func fillResolveFailure(rr *domain.RunReport, err error) {
	rr.Outcome = domain.OutcomeFetchFailed

	var we *workshop.Error
	if errors.As(err, &we) {
		switch we.Stage {
		case workshop.StageParse:
			rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeParseFailed, humanizeParseError(we)))
		default:
			rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeFetchFailed, humanizeFetchError(we)))
		}
		return
	}
	rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeFetchFailed, err.Error()))
}

func humanizeFetchError(we *workshop.Error) string {
	if we.Err == nil {
		return "抓取 Workshop 页面失败"
	}

	// HTTP 非 2xx：尽量给出可操作提示（限流/失效链接是最常见问题）。
	var hs *httpx.StatusError
	if errors.As(we.Err, &hs) {
		switch hs.StatusCode {
		case 403, 429:
			return fmt.Sprintf("Workshop 返回 HTTP %d（可能触发限流）。建议稍后重试。", hs.StatusCode)
		case 404:
			return fmt.Sprintf("Workshop 返回 HTTP 404（链接可能失效或物品已下架）：%s", we.URL)
		default:
			return fmt.Sprintf("Workshop 返回 HTTP %d：%s", hs.StatusCode, we.URL)
		}
	}

	low := strings.ToLower(we.Err.Error())
	if errors.Is(we.Err, context.DeadlineExceeded) || strings.Contains(low, "timeout") {
		return "抓取 Workshop 页面超时。建议检查网络后重试。"
	}
	return fmt.Sprintf("抓取 Workshop 页面失败：%v", we.Err)
}

func humanizeParseError(we *workshop.Error) string {
	if we.Err == nil {
		return "解析 Workshop 页面失败"
	}
	// 解析失败通常意味着页面结构漂移或拿到了非预期内容（例如错误页）。
	return fmt.Sprintf("解析 Workshop 页面失败（页面结构可能变化）：%v", we.Err)
}

// downloadFailureMsg 把 steamcmd 的合并输出压成一行可读的失败原因。
func downloadFailureMsg(res domain.DownloadResult) string {
	line := lastNonEmptyLine(res.RawOutput)
	if line == "" {
		return fmt.Sprintf("steamcmd 在 %d 次尝试内未报告成功", res.Attempts)
	}
	if len(line) > 200 {
		line = line[:197] + "..."
	}
	return fmt.Sprintf("steamcmd 在 %d 次尝试内未报告成功（最后输出：%s）", res.Attempts, line)
}

func lastNonEmptyLine(s string) string {
	lines := strings.Split(s, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if t := strings.TrimSpace(lines[i]); t != "" {
			return t
		}
	}
	return ""
}

func writePageInfo(path string, info domain.PageInfo) error {
	b, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return fsx.WriteFileAtomicReplace(filepath.Dir(path), filepath.Base(path), b)
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
