package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/THARINDU-DHANANJAYA-Coding-Slave/SWMD/internal/app/run"
	"github.com/THARINDU-DHANANJAYA-Coding-Slave/SWMD/internal/config"
	"github.com/THARINDU-DHANANJAYA-Coding-Slave/SWMD/internal/domain"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是一个“简洁版”的交互终端进度输出。
//
// 设计目标：
// - 所有过程信息写到 stderr（或 fallback 到 stdout/日志文件），不污染 stdout 的 JSON 输出契约
// - 事件驱动：run 层只发事件，CLI 决定如何展示
// - keepalive：steamcmd 单次调用动辄几十秒，长时间无条目完成时也定期输出一行
type progressUI struct {
	w io.Writer

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	workers int
	total   int
	done    int
	ok      int
	fail    int

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:                  w,
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnStart(eff config.EffectiveConfig) {
	now := time.Now()

	p.mu.Lock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	fmt.Fprintf(p.w, "[%s] SWMD run\n", now.Format("15:04:05"))
	fmt.Fprintln(p.w, "配置（生效）:")
	fmt.Fprintf(p.w, "  url: %s\n", truncate(eff.URL, 120))
	fmt.Fprintf(p.w, "  appid: %s\n", orHint(eff.AppID, "自动（从页面解析）"))
	fmt.Fprintf(p.w, "  steamcmd: %s\n", orHint(eff.SteamCMD, "自动发现"))
	fmt.Fprintf(p.w, "  workers: %d\n", eff.Workers)
	fmt.Fprintf(p.w, "  validate: %s\n", onOff(eff.Validate))
	fmt.Fprintf(p.w, "  exclude_items: %s\n", formatStringListJSON(eff.ExcludedItems))

	fmt.Fprintln(p.w, "输出:")
	fmt.Fprintf(p.w, "  mods: %s\n", eff.ModsRoot)
	if strings.TrimSpace(eff.Output) != "" {
		fmt.Fprintf(p.w, "  debug: %s\n", eff.Output)
	}
	if strings.TrimSpace(eff.LogFile) != "" {
		fmt.Fprintf(p.w, "  logfile: %s\n", eff.LogFile)
	}
	fmt.Fprintln(p.w)

	p.lastPrinted = time.Now()
	p.mu.Unlock()
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case "resolve":
		kind := "物品页"
		if intField(fields, "collection") == 1 {
			kind = "合集"
		}
		fmt.Fprintf(p.w, "解析: %s items=%d app=%s game=%s (%s)\n",
			kind,
			intField(fields, "items"),
			orHint(stringField(fields, "app_id"), "?"),
			orHint(stringField(fields, "game"), "?"),
			formatShortDuration(dur),
		)
	case "output":
		if e := stringField(fields, "error"); e != "" {
			fmt.Fprintf(p.w, "调试输出: 写入失败（不影响下载）: %s\n", truncate(e, 160))
		} else {
			fmt.Fprintf(p.w, "调试输出: %s\n", stringField(fields, "path"))
		}
	case "download":
		// 下载阶段开始：重置轮内计数并启动 keepalive。
		p.workers = intField(fields, "workers")
		p.total = intField(fields, "total")
		p.done, p.ok, p.fail = 0, 0, 0
		fmt.Fprintf(p.w, "下载: workers=%d total=%d\n\n", p.workers, p.total)
		if p.total > 0 && !p.tickerStarted {
			p.startTickerLocked()
		}
	case "bulk_retry":
		// 批量重试是独立的一轮：done/total 重新计数。
		p.workers = intField(fields, "workers")
		p.total = intField(fields, "items")
		p.done, p.ok, p.fail = 0, 0, 0
		fmt.Fprintf(p.w, "批量重试: items=%d workers=%d\n", p.total, p.workers)
		if p.total > 0 && !p.tickerStarted {
			p.startTickerLocked()
		}
	case "consolidate":
		if intField(fields, "source_missing") == 1 {
			fmt.Fprintf(p.w, "归并: 没有新下载的内容 (%s)\n", formatShortDuration(dur))
			break
		}
		fmt.Fprintf(p.w, "归并: moved=%d skipped=%d warnings=%d dest=%s (%s)\n",
			intField(fields, "moved"),
			intField(fields, "skipped"),
			intField(fields, "warnings"),
			stringField(fields, "dest"),
			formatShortDuration(dur),
		)
	default:
		// 兜底：未知阶段也不要静默（便于调试/演进）。
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnItemDone(done, total int, res domain.DownloadResult, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// done/total 由 run 层给出；这里同时维护自己的计数，供 keepalive 使用。
	p.done = done
	p.total = total

	if res.Succeeded {
		p.ok++
		fmt.Fprintf(p.w, "[%d/%d] %s OK attempts=%d (%s)\n",
			done, total, res.ItemID, res.Attempts, formatShortDuration(dur),
		)
	} else {
		p.fail++
		note := lastOutputLine(res.RawOutput)
		if note != "" {
			note = ": " + truncate(note, 120)
		}
		fmt.Fprintf(p.w, "[%d/%d] %s FAIL attempts=%d%s (%s)\n",
			done, total, res.ItemID, res.Attempts, note, formatShortDuration(dur),
		)
	}

	p.lastPrinted = time.Now()

	// 当前轮最后一条完成：停止 ticker，避免在阶段结束后又冒出 keepalive。
	if p.tickerStarted && p.done >= p.total {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}

	// 批量重试会重启 ticker 并替换 stopCh；goroutine 只认自己这一轮的。
	stop := p.stopCh
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				// 本轮已完成：安全退出（OnItemDone 会 close stopCh，但这里也做兜底）。
				if p.total > 0 && p.done >= p.total {
					p.mu.Unlock()
					return
				}

				if p.total > 0 && time.Since(p.lastPrinted) > threshold {
					active := p.workers
					remain := p.total - p.done
					if remain < active {
						active = remain
					}
					elapsed := time.Since(p.startedAt)
					fmt.Fprintf(p.w, "进度: done=%d/%d ok=%d fail=%d active=%d elapsed=%s\n",
						p.done, p.total, p.ok, p.fail, active, formatElapsed(elapsed),
					)
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

// orHint 在值为空时返回提示文案（仅用于进度展示）。
func orHint(s, hint string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return hint
	}
	return s
}

func formatStringListJSON(xs []string) string {
	// json.Marshal(nil slice) => "null"；对用户更友好的是 "[]"
	if xs == nil {
		xs = []string{}
	}
	b, err := json.Marshal(xs)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

// lastOutputLine 取 steamcmd 合并输出的最后一个非空行（失败行一般在末尾）。
func lastOutputLine(s string) string {
	lines := strings.Split(s, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if t := strings.TrimSpace(lines[i]); t != "" {
			return t
		}
	}
	return ""
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func intField(fields map[string]any, key string) int {
	if fields == nil {
		return 0
	}
	v, ok := fields[key]
	if !ok {
		return 0
	}
	switch x := v.(type) {
	case int:
		return x
	case int32:
		return int(x)
	case int64:
		return int(x)
	case uint:
		return int(x)
	case uint32:
		return int(x)
	case uint64:
		return int(x)
	default:
		return 0
	}
}

func stringField(fields map[string]any, key string) string {
	if fields == nil {
		return ""
	}
	if s, ok := fields[key].(string); ok {
		return s
	}
	return ""
}
