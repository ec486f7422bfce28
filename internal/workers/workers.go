package workers

import (
	"os"
	"runtime"
	"strconv"
)

// EnvOverride names the environment variable that pins the worker count.
const EnvOverride = "GENERATION_WORKERS"

// Class is the number of workers a kind of task runs per available CPU.
type Class float64

const (
	CPU   Class = 1.0
	Mixed Class = 1.5
	IO    Class = 2.0
)

// Count scales c by GOMAXPROCS, which follows container CPU limits where
// runtime.NumCPU does not. The result is at least 1 and at most limit when
// limit is positive. A positive GENERATION_WORKERS replaces the computed
// value but is still capped by limit.
func (c Class) Count(limit int) int {
	n := pinned()
	if n == 0 {
		n = max(int(float64(runtime.GOMAXPROCS(0))*float64(c)), 1)
	}
	if limit > 0 {
		n = min(n, limit)
	}
	return n
}

// pinned returns the GENERATION_WORKERS value, or 0 when unset or invalid.
func pinned() int {
	n, err := strconv.Atoi(os.Getenv(EnvOverride))
	if err != nil || n < 1 {
		return 0
	}
	return n
}

// Count returns the worker count for an arbitrary multiplier.
func Count(multiplier float64, limit int) int {
	return Class(multiplier).Count(limit)
}

// ForCPU returns worker count for CPU-bound tasks (1 per CPU).
func ForCPU(limit int) int { return CPU.Count(limit) }

// ForIO returns worker count for I/O-bound tasks (2 per CPU).
func ForIO(limit int) int { return IO.Count(limit) }

// ForMixed returns the count for probing, hashing and ffmpeg rendering.
func ForMixed(limit int) int { return Mixed.Count(limit) }
