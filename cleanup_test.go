//go:build unix && cgo

package semguard

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unsafe"
)

// These tests count teardown calls, so they live in the file that sorts
// first and run before other tests leave collectable semaphores behind.

type teardownRecorder struct {
	mu   sync.Mutex
	seen []unsafe.Pointer
}

func (r *teardownRecorder) record(sem unsafe.Pointer) {
	r.mu.Lock()
	r.seen = append(r.seen, sem)
	r.mu.Unlock()
}

func (r *teardownRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

func (r *teardownRecorder) saw(sem unsafe.Pointer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.seen {
		if p == sem {
			return true
		}
	}
	return false
}

// recordTeardown routes both teardown actions through a recorder for the
// duration of the test. The real teardown still runs.
func recordTeardown(t *testing.T) *teardownRecorder {
	t.Helper()
	rec := &teardownRecorder{}
	origDestroy, origClose := destroyUnnamed, closeAnonymous
	destroyUnnamed = func(sem unsafe.Pointer) {
		rec.record(sem)
		origDestroy(sem)
	}
	closeAnonymous = func(sem unsafe.Pointer) {
		rec.record(sem)
		origClose(sem)
	}
	t.Cleanup(func() {
		destroyUnnamed, closeAnonymous = origDestroy, origClose
	})
	return rec
}

// eventually runs the garbage collector until cond holds.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	for i := 0; i < 200; i++ {
		runtime.GC()
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

//go:noinline
func dropUninitialized(collected *atomic.Int32) {
	for i := 0; i < 16; i++ {
		s := New(KindDefault)
		if _, ok := s.Ready(); ok {
			panic("new semaphore is ready")
		}
		runtime.AddCleanup(s, func(c *atomic.Int32) { c.Add(1) }, collected)
	}
}

func TestTeardownNeverInitialized(t *testing.T) {
	rec := recordTeardown(t)

	var collected atomic.Int32
	dropUninitialized(&collected)
	eventually(t, "uninitialized semaphores to be collected", func() bool {
		return collected.Load() == 16
	})
	// Give any wrongly registered teardown a chance to run too.
	for i := 0; i < 3; i++ {
		runtime.GC()
		time.Sleep(5 * time.Millisecond)
	}

	if n := rec.count(); n != 0 {
		t.Fatalf("never-initialized semaphores caused %d teardown calls, want 0", n)
	}
}

//go:noinline
func dropInitialized(t *testing.T) unsafe.Pointer {
	s := New(KindDefault)
	r, err := s.Init(false, 1)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := r.TryWait(); err != nil {
		t.Fatalf("TryWait: %v", err)
	}
	return s.sem
}

func TestTeardownInitialized(t *testing.T) {
	rec := recordTeardown(t)

	sem := dropInitialized(t)
	eventually(t, "teardown of the initialized semaphore", func() bool {
		return rec.saw(sem)
	})

	rec.mu.Lock()
	defer rec.mu.Unlock()
	calls := 0
	for _, p := range rec.seen {
		if p == sem {
			calls++
		}
	}
	if calls != 1 {
		t.Fatalf("semaphore torn down %d times, want 1", calls)
	}
}

//go:noinline
func refOnly(t *testing.T) (Ref, unsafe.Pointer) {
	s := New(KindDefault)
	r, err := s.Init(false, 0)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	return r, s.sem
}

func TestRefKeepsSemaphoreAlive(t *testing.T) {
	rec := recordTeardown(t)

	r, sem := refOnly(t)
	for i := 0; i < 5; i++ {
		runtime.GC()
		time.Sleep(5 * time.Millisecond)
	}
	if rec.saw(sem) {
		t.Fatal("semaphore torn down while a Ref to it was still in use")
	}
	if err := r.Signal(); err != nil {
		t.Fatalf("Signal: %v", err)
	}
	if err := r.TryWait(); err != nil {
		t.Fatalf("TryWait: %v", err)
	}
	runtime.KeepAlive(r)
}
