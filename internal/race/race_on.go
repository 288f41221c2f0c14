//go:build race

// Package race reports synchronization that happens outside the Go runtime
// to the race detector.
package race

import (
	"runtime"
	"unsafe"
)

const Enabled = true

// ReleaseMerge records a release on addr, merged with earlier releases.
func ReleaseMerge(addr unsafe.Pointer) {
	runtime.RaceReleaseMerge(addr)
}

// Acquire records an acquire on addr.
func Acquire(addr unsafe.Pointer) {
	runtime.RaceAcquire(addr)
}
