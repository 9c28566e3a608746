package sysres

import (
	"errors"
	"testing"

	"github.com/shirou/gopsutil/v3/mem"
)

func withProbes(t *testing.T, cpus int, cpuErr error, vm *mem.VirtualMemoryStat, vmErr error) {
	t.Helper()
	oldCPU, oldMem := cpuCountsFunc, virtualMemFunc
	cpuCountsFunc = func(bool) (int, error) { return cpus, cpuErr }
	virtualMemFunc = func() (*mem.VirtualMemoryStat, error) { return vm, vmErr }
	t.Cleanup(func() {
		cpuCountsFunc = oldCPU
		virtualMemFunc = oldMem
	})
}

func TestAutoWorkers_MemoryBound(t *testing.T) {
	withProbes(t, 16, nil, &mem.VirtualMemoryStat{Available: 3 << 30}, nil)
	if got := AutoWorkers(); got != 3 {
		t.Fatalf("期望 3（内存限制），实际=%d", got)
	}
}

func TestAutoWorkers_CPUBound(t *testing.T) {
	withProbes(t, 2, nil, &mem.VirtualMemoryStat{Available: 64 << 30}, nil)
	if got := AutoWorkers(); got != 2 {
		t.Fatalf("期望 2（核数限制），实际=%d", got)
	}
}

func TestAutoWorkers_Cap(t *testing.T) {
	withProbes(t, 64, nil, &mem.VirtualMemoryStat{Available: 256 << 30}, nil)
	if got := AutoWorkers(); got != MaxWorkers {
		t.Fatalf("期望上限 %d，实际=%d", MaxWorkers, got)
	}
}

func TestAutoWorkers_Floor(t *testing.T) {
	withProbes(t, 8, nil, &mem.VirtualMemoryStat{Available: 1 << 20}, nil)
	if got := AutoWorkers(); got != 1 {
		t.Fatalf("内存极少时应保留 1，实际=%d", got)
	}
}

func TestAutoWorkers_ProbeFailure(t *testing.T) {
	withProbes(t, 8, nil, nil, errors.New("no mem info"))
	if got := AutoWorkers(); got != DefaultWorkers {
		t.Fatalf("探测失败应退回 %d，实际=%d", DefaultWorkers, got)
	}
}
