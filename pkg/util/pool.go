package util

import "runtime"

// GetOptimalPoolSize returns the default concurrency for parser pools and
// batch extraction workers.
//
// Formula: min(max(runtime.NumCPU() * 2, 4), 32)
//
// Tree-sitter parsing runs in CGO and esbuild transforms spend time in their
// own goroutines, so twice the core count keeps the CPUs busy while one
// extraction waits on the other. Each worker also owns a goja runtime for the
// duration of an evaluation, which is what the upper bound limits.
func GetOptimalPoolSize() int {
	size := runtime.NumCPU() * 2
	if size < 4 {
		size = 4
	}
	if size > 32 {
		size = 32
	}
	return size
}

// GetOptimalPoolSizeWithOverride returns override when positive, otherwise
// GetOptimalPoolSize().
func GetOptimalPoolSizeWithOverride(override int) int {
	if override > 0 {
		return override
	}
	return GetOptimalPoolSize()
}
