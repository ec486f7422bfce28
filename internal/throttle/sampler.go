package throttle

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// Sample is one observation of system load.
type Sample struct {
	// MemoryPercent is host memory in use.
	MemoryPercent float64
	// HeapPercent is the Go heap relative to GOMEMLIMIT, or 0 without a limit.
	HeapPercent float64
	CPUPercent  float64
}

// Memory returns the more pressing of the host and heap memory signals.
func (s Sample) Memory() float64 {
	return math.Max(s.MemoryPercent, s.HeapPercent)
}

// Sampler observes system load.
type Sampler interface {
	Sample(ctx context.Context) (Sample, error)
}

// SystemSampler reads host memory and CPU through gopsutil and the Go heap
// through the runtime.
type SystemSampler struct {
	// CPUWindow is how long each CPU measurement observes the host.
	CPUWindow time.Duration
}

// NewSystemSampler returns a sampler with a short CPU window.
func NewSystemSampler() *SystemSampler {
	return &SystemSampler{CPUWindow: 250 * time.Millisecond}
}

func (s *SystemSampler) Sample(ctx context.Context) (Sample, error) {
	var out Sample

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return out, fmt.Errorf("read virtual memory: %w", err)
	}
	out.MemoryPercent = vm.UsedPercent

	percents, err := cpu.PercentWithContext(ctx, s.CPUWindow, false)
	if err != nil {
		return out, fmt.Errorf("read cpu percent: %w", err)
	}
	if len(percents) > 0 {
		out.CPUPercent = percents[0]
	}

	out.HeapPercent = heapPercent()
	return out, nil
}

// heapPercent reports heap allocation against GOMEMLIMIT.
func heapPercent() float64 {
	limit := debug.SetMemoryLimit(-1)
	if limit <= 0 || limit == math.MaxInt64 {
		return 0
	}

	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return float64(stats.HeapAlloc) / float64(limit) * 100
}
