// Package retry 把“重试预算”固化为显式传递的值。
//
// 设计目标：抓取与下载共用同一套退避规则，但各自携带自己的预算；
// 不做包级可变状态，调用方拿到什么预算就执行什么预算。
package retry

import (
	"context"
	"time"
)

// Policy 描述一类操作的重试预算。
//
// 规则：
// - MaxAttempts 含首次尝试；<=1 表示不重试
// - 第 n 次失败后的等待为 BaseDelay * 2^(n-1)（n 从 1 开始）
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// PageFetch 是页面抓取的默认预算：5 次尝试，0.5s 起步指数退避。
var PageFetch = Policy{MaxAttempts: 5, BaseDelay: 500 * time.Millisecond}

// ItemDownload 是单物品下载的默认预算：3 次尝试，2s 起步指数退避
// （失败后依次等待 2s、4s）。
var ItemDownload = Policy{MaxAttempts: 3, BaseDelay: 2 * time.Second}

// Delay 返回第 attempt 次失败后的等待时长（attempt 从 1 开始计）。
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 || p.BaseDelay <= 0 {
		return 0
	}
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

// Wait 按 Delay 阻塞等待；ctx 取消时立刻返回 ctx.Err()。
func (p Policy) Wait(ctx context.Context, attempt int) error {
	d := p.Delay(attempt)
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RetryableStatus 判定 HTTP 状态码是否值得重试。
// 集合沿用常见的临时性失败：限流与上游故障。
func RetryableStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	}
	return false
}
