// Package system reads host resource usage for the status endpoint.
package system

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// Usage is a point-in-time view of the host.
type Usage struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	MemoryUsedMB  float64 `json:"memory_used_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	Load1         float64 `json:"load_1,omitempty"`
}

// Read collects CPU, memory and load. CPU is measured since the previous
// call, so the first reading after start may be 0. Load is left at 0 on
// platforms without it.
func Read(ctx context.Context) (*Usage, error) {
	percentages, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return nil, fmt.Errorf("could not read cpu usage: %w", err)
	}
	if len(percentages) == 0 {
		return nil, fmt.Errorf("could not read cpu usage: no samples")
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not read memory usage: %w", err)
	}

	u := &Usage{
		CPUPercent:    percentages[0],
		MemoryPercent: vm.UsedPercent,
		MemoryUsedMB:  float64(vm.Used) / 1024 / 1024,
		MemoryTotalMB: float64(vm.Total) / 1024 / 1024,
	}
	if avg, err := load.AvgWithContext(ctx); err == nil {
		u.Load1 = avg.Load1
	}
	return u, nil
}
