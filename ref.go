//go:build unix

package semguard

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/richinsley/semguard/internal/race"
)

// Ref is the capability to operate on an initialized semaphore.
//
// A Ref is only handed out by a Semaphore that finished initializing or by an
// open Named semaphore. It is a small value: copy it freely and share it
// between goroutines. A Ref keeps the semaphore it came from reachable, so a
// Semaphore is never torn down while one of its Refs is still in use.
//
// Signal, TryWait and Value never block, allocate, or take a lock.
//
// A successful Signal and the successful Wait or TryWait that consumes it
// form a release/acquire pair: memory written before Signal is visible after
// the Wait returns, also across processes sharing the semaphore.
//
// The zero Ref is not ready; all of its operations return ErrNotReady.
type Ref struct {
	sem unsafe.Pointer
	// owner is the Go value holding sem. It keeps that value reachable and
	// is the address reported to the race detector, which ignores C memory.
	owner unsafe.Pointer
}

// Signal increments the count (sem_post), waking one waiter if any.
// It fails with ClassOverflow if the maximum count would be exceeded.
func (r Ref) Signal() error {
	if r.sem == nil {
		return ErrNotReady
	}
	race.ReleaseMerge(r.owner)
	err := sysPost(r.sem)
	runtime.KeepAlive(r.owner)
	if err != nil {
		mustValid("sem_post", err)
		return &OpError{Op: "sem_post", Err: err}
	}
	return nil
}

// Wait decrements the count (sem_wait), blocking the calling goroutine's
// thread while the count is zero. It only fails when interrupted by a signal
// (ClassInterrupted); the caller may retry.
func (r Ref) Wait() error {
	if r.sem == nil {
		return ErrNotReady
	}
	err := sysWait(r.sem)
	runtime.KeepAlive(r.owner)
	if err != nil {
		mustValid("sem_wait", err)
		return &OpError{Op: "sem_wait", Err: err}
	}
	race.Acquire(r.owner)
	return nil
}

// TryWait decrements the count if it is positive (sem_trywait). It never
// blocks; a zero count is reported as ClassWouldBlock.
func (r Ref) TryWait() error {
	if r.sem == nil {
		return ErrNotReady
	}
	err := sysTryWait(r.sem)
	runtime.KeepAlive(r.owner)
	if err != nil {
		mustValid("sem_trywait", err)
		return &OpError{Op: "sem_trywait", Err: err}
	}
	race.Acquire(r.owner)
	return nil
}

// Value returns the current count (sem_getvalue). The result is advisory
// when other threads or processes operate on the semaphore concurrently.
//
// Some platforms (macOS) cannot report the count; there the error matches
// errors.ErrUnsupported and callers should treat it as a missing capability.
func (r Ref) Value() (int, error) {
	if r.sem == nil {
		return 0, ErrNotReady
	}
	v, err := sysGetValue(r.sem)
	runtime.KeepAlive(r.owner)
	if err != nil {
		mustValid("sem_getvalue", err)
		return 0, &OpError{Op: "sem_getvalue", Err: err}
	}
	return v, nil
}

// Ready reports whether r refers to an initialized semaphore.
func (r Ref) Ready() bool {
	return r.sem != nil
}

// Same reports whether r and other refer to the same sem_t.
//
// Two Named handles opened separately for the same name may refer to the same
// OS semaphore through different pointers, so Same only proves identity, it
// cannot disprove it for named semaphores.
func (r Ref) Same(other Ref) bool {
	return r.sem == other.sem
}

// String shows the current count, or only that the semaphore is initialized
// where the count cannot be read.
func (r Ref) String() string {
	if r.sem == nil {
		return "<Semaphore>"
	}
	v, err := r.Value()
	if err != nil {
		return "<Semaphore ready>"
	}
	return fmt.Sprintf("<Semaphore value:%d>", v)
}

// GoString shows the sem_t address.
func (r Ref) GoString() string {
	return fmt.Sprintf("semguard.Ref(%p)", r.sem)
}
