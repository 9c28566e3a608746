package run

import (
	"time"

	"github.com/THARINDU-DHANANJAYA-Coding-Slave/SWMD/internal/config"
	"github.com/THARINDU-DHANANJAYA-Coding-Slave/SWMD/internal/domain"
)

// Observer 用于把“运行进度/阶段/条目结果”从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// - Observer 的实现必须并发安全：OnItemDone 来自下载 worker 的汇聚循环，
//   但 keepalive 一类的定时输出由实现方自己驱动。
type Observer interface {
	// OnStart 在 ExecuteWithObserver 开始时调用（应尽量早，保证用户 1 秒内看到输出）。
	OnStart(eff config.EffectiveConfig)
	// OnPhaseDone 在阶段结束/就绪时调用（用于打印阶段统计与耗时）。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnItemDone 在某个物品的下载结束时调用（用于每条结果的一行输出）。
	// 批量重试轮会以自己的 done/total 再次回调。
	OnItemDone(done, total int, res domain.DownloadResult, dur time.Duration)
}
