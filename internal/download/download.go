// Package download 负责下载阶段的并发编排：物品之间并发，单物品内重试串行。
//
// 约束：
// - 物品之间不共享任何可变状态（每个物品只由一个 worker 处理）
// - 排除名单里的物品照常尝试，但失败不致命
package download

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/THARINDU-DHANANJAYA-Coding-Slave/SWMD/internal/domain"
	"github.com/THARINDU-DHANANJAYA-Coding-Slave/SWMD/internal/retry"
	"github.com/THARINDU-DHANANJAYA-Coding-Slave/SWMD/internal/steamcmd"
)

// Options 描述一次下载阶段的参数。
type Options struct {
	AppID    string
	Validate bool
	Workers  int
	Policy   retry.Policy

	// Excluded 里的物品仍会被尝试，但失败不计入致命失败。
	Excluded map[domain.ItemID]struct{}

	// OnItem 在每个物品结束时回调（进度展示用；可为 nil）。
	OnItem func(done, total int, res domain.DownloadResult, dur time.Duration)
}

// FailedError 表示有非排除物品在重试预算内未能下载成功。
type FailedError struct {
	ItemIDs []domain.ItemID
}

func (e *FailedError) Error() string {
	ss := make([]string, 0, len(e.ItemIDs))
	for _, id := range e.ItemIDs {
		ss = append(ss, string(id))
	}
	return "下载失败的物品：" + strings.Join(ss, ", ")
}

// Items 用 worker pool 并发下载全部物品。
// 返回每个物品的结局（按 item_id 排序，含失败者）；存在非排除失败时
// 额外返回 *FailedError，但结果切片仍然完整（部分成功必须保留）。
func Items(ctx context.Context, r steamcmd.Runner, ids []domain.ItemID, opts Options) ([]domain.DownloadResult, error) {
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	type itemDone struct {
		res domain.DownloadResult
		dur time.Duration
	}

	jobs := make(chan domain.ItemID)
	results := make(chan itemDone, len(ids))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				oneStarted := time.Now()
				res := downloadOne(ctx, r, id, opts)
				results <- itemDone{res: res, dur: time.Since(oneStarted)}
			}
		}()
	}

	go func() {
		for _, id := range ids {
			jobs <- id
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	out := make([]domain.DownloadResult, 0, len(ids))
	done := 0
	for it := range results {
		done++
		out = append(out, it.res)
		if opts.OnItem != nil {
			opts.OnItem(done, len(ids), it.res, it.dur)
		}
	}

	// 完成顺序取决于调度；对外输出必须确定。
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })

	failed := make([]domain.ItemID, 0)
	for _, res := range out {
		if res.Succeeded {
			continue
		}
		if _, ok := opts.Excluded[res.ItemID]; ok {
			continue
		}
		failed = append(failed, res.ItemID)
	}
	if len(failed) > 0 {
		return out, &FailedError{ItemIDs: failed}
	}
	return out, nil
}

// downloadOne 对单个物品执行“调用 steamcmd + 校验成功标记 + 有界重试”。
// steamcmd 的退出码不可靠，成败只看输出里的成功标记。
func downloadOne(ctx context.Context, r steamcmd.Runner, id domain.ItemID, opts Options) domain.DownloadResult {
	args := steamcmd.BuildArgs(opts.AppID, id, opts.Validate)
	marker := steamcmd.SuccessMarker(id)

	max := opts.Policy.MaxAttempts
	if max < 1 {
		max = 1
	}

	var lastOut string
	attempts := 0
	for attempt := 1; attempt <= max; attempt++ {
		attempts = attempt
		out, err := r.Run(ctx, args)
		lastOut = out
		if err != nil {
			// 进程没能跑起来（路径失效、权限等）：把原因并入输出供诊断。
			lastOut = out + "\n" + err.Error()
		} else if marker.MatchString(out) {
			return domain.DownloadResult{ItemID: id, Succeeded: true, Attempts: attempt, RawOutput: out}
		}
		if attempt < max {
			if werr := opts.Policy.Wait(ctx, attempt); werr != nil {
				break
			}
		}
	}
	return domain.DownloadResult{ItemID: id, Succeeded: false, Attempts: attempts, RawOutput: lastOut}
}
