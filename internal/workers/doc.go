// Package workers sizes the concurrency of the scanner and the asset
// pipeline from GOMAXPROCS, which honours cgroup CPU limits.
//
//	workers.CPU.Count(8)    // 1 per CPU, at most 8
//	workers.IO.Count(16)    // 2 per CPU, at most 16
//	workers.ForMixed(12)    // 1.5 per CPU, at most 12
//
// The throttle controller starts at the Mixed count and may grow up to the
// IO count; these are the baseline it adjusts from.
//
// GENERATION_WORKERS pins the count for every class. Values that are not
// positive integers are ignored, and the per-call limit still applies.
package workers
