package throttle

import (
	"time"

	"media-registry/internal/workers"
)

// Config bounds the controller and sets the thresholds it reacts to.
// Percentages are 0-100.
type Config struct {
	MinPermits     int
	MaxPermits     int
	InitialPermits int

	// Interval is how often capacity is re-evaluated after Start.
	Interval time.Duration

	MemoryCriticalPercent float64
	MemoryHighPercent     float64
	MemoryTargetPercent   float64
	CPUHighPercent        float64
	CPUTargetPercent      float64
}

// DefaultConfig starts at the mixed-workload worker count and lets the
// controller grow to the I/O-bound count.
func DefaultConfig() Config {
	initial := workers.ForMixed(0)
	maximum := workers.ForIO(0)
	if maximum < initial {
		maximum = initial
	}

	return Config{
		MinPermits:            1,
		MaxPermits:            maximum,
		InitialPermits:        initial,
		Interval:              5 * time.Second,
		MemoryCriticalPercent: 92,
		MemoryHighPercent:     80,
		MemoryTargetPercent:   65,
		CPUHighPercent:        90,
		CPUTargetPercent:      70,
	}
}

// normalize fills zero fields from DefaultConfig and clamps the permit
// bounds so that 1 <= Min <= Initial <= Max.
func (c Config) normalize() Config {
	d := DefaultConfig()

	if c.MinPermits < 1 {
		c.MinPermits = d.MinPermits
	}
	if c.MaxPermits < 1 {
		c.MaxPermits = d.MaxPermits
	}
	if c.MaxPermits < c.MinPermits {
		c.MaxPermits = c.MinPermits
	}
	if c.InitialPermits < 1 {
		c.InitialPermits = d.InitialPermits
	}
	if c.InitialPermits < c.MinPermits {
		c.InitialPermits = c.MinPermits
	}
	if c.InitialPermits > c.MaxPermits {
		c.InitialPermits = c.MaxPermits
	}
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.MemoryCriticalPercent <= 0 {
		c.MemoryCriticalPercent = d.MemoryCriticalPercent
	}
	if c.MemoryHighPercent <= 0 {
		c.MemoryHighPercent = d.MemoryHighPercent
	}
	if c.MemoryTargetPercent <= 0 {
		c.MemoryTargetPercent = d.MemoryTargetPercent
	}
	if c.CPUHighPercent <= 0 {
		c.CPUHighPercent = d.CPUHighPercent
	}
	if c.CPUTargetPercent <= 0 {
		c.CPUTargetPercent = d.CPUTargetPercent
	}
	return c
}
