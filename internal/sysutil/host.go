package sysutil

import (
	"context"
	"math"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostStats is a snapshot of the machine the hub runs on, reported by
// /health. Any reading that fails leaves its fields at zero.
type HostStats struct {
	CPUPercent  float64 `json:"cpu_percent"`
	RAMUsedGB   float64 `json:"ram_used_gb"`
	RAMTotalGB  float64 `json:"ram_total_gb"`
	RAMPercent  float64 `json:"ram_percent"`
	DiskUsedGB  float64 `json:"disk_used_gb"`
	DiskTotalGB float64 `json:"disk_total_gb"`
	DiskPercent float64 `json:"disk_percent"`
	Goroutines  int     `json:"goroutines"`
}

const gib = 1 << 30

// CollectHostStats samples CPU, memory and the disk holding path ("." when
// empty). CPU usage is measured since the previous call, so the first call
// after start reports the average since boot.
func CollectHostStats(ctx context.Context, path string) HostStats {
	if path == "" {
		path = "."
	}
	st := HostStats{Goroutines: runtime.NumGoroutine()}

	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		st.CPUPercent = round2(pct[0])
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		st.RAMUsedGB = round2(float64(vm.Used) / gib)
		st.RAMTotalGB = round2(float64(vm.Total) / gib)
		st.RAMPercent = round2(vm.UsedPercent)
	}
	if du, err := disk.UsageWithContext(ctx, path); err == nil {
		st.DiskUsedGB = round2(float64(du.Used) / gib)
		st.DiskTotalGB = round2(float64(du.Total) / gib)
		st.DiskPercent = round2(du.UsedPercent)
	}
	return st
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
