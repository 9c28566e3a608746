// Package sysres 根据机器资源推导默认下载并发数。
//
// steamcmd 每个实例都是完整的重型进程（自带更新器与网络栈），
// 默认并发必须保守：核数与可用内存共同限制，探测失败退回固定值。
package sysres

import (
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

const (
	// DefaultWorkers 是探测失败时的保守默认值。
	DefaultWorkers = 2
	// MaxWorkers 是自动推导的上限；steamcmd 并发再高只会触发限流。
	MaxWorkers = 8

	// bytesPerWorker 是每个并发实例预留的可用内存。
	bytesPerWorker = 1 << 30
)

// 探测函数可替换，测试用。
var (
	cpuCountsFunc  = cpu.Counts
	virtualMemFunc = mem.VirtualMemory
)

// AutoWorkers 推导默认并发数：min(逻辑核数, 可用内存/单实例预算)，
// 夹在 [1, MaxWorkers]；内存探测失败退回 DefaultWorkers。
func AutoWorkers() int {
	cpus, err := cpuCountsFunc(true)
	if err != nil || cpus < 1 {
		cpus = runtime.NumCPU()
	}

	vm, err := virtualMemFunc()
	if err != nil || vm == nil {
		return DefaultWorkers
	}

	n := cpus
	if byMem := int(vm.Available / uint64(bytesPerWorker)); byMem < n {
		n = byMem
	}
	if n < 1 {
		n = 1
	}
	if n > MaxWorkers {
		n = MaxWorkers
	}
	return n
}
