//go:build unix

package semguard

import (
	"errors"
	"fmt"
	"log"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/richinsley/semguard/internal/once"
)

// Kind selects how a Semaphore obtains its OS semaphore. The set is closed.
type Kind uint8

const (
	// KindDefault resolves to the best process-private kind for the
	// platform: KindAnonymous on macOS, which lacks unnamed semaphores, and
	// KindUnnamed everywhere else.
	KindDefault Kind = iota

	// KindUnnamed embeds a sem_t initialized with sem_init.
	KindUnnamed

	// KindAnonymous uses a named semaphore created under a random name that
	// is unlinked immediately (see Anonymous).
	KindAnonymous
)

const unnamedSupported = runtime.GOOS != "darwin" && runtime.GOOS != "ios"

func (k Kind) String() string {
	switch k {
	case KindDefault:
		return "default"
	case KindUnnamed:
		return "unnamed"
	case KindAnonymous:
		return "anonymous"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

func (k Kind) resolve() Kind {
	if k != KindDefault {
		return k
	}
	if unnamedSupported {
		return KindUnnamed
	}
	return KindAnonymous
}

// Teardown actions, run by the runtime once a ready Semaphore is
// unreachable. Variables so tests can observe them.
var (
	destroyUnnamed = func(sem unsafe.Pointer) {
		if err := sysDestroy(sem); err != nil {
			log.Printf("semguard: sem_destroy during teardown: %v", err)
		}
		sysFree(sem)
	}

	closeAnonymous = func(sem unsafe.Pointer) {
		if err := sysClose(sem); err != nil {
			log.Printf("semguard: sem_close during teardown: %v", err)
		}
	}
)

// Semaphore is a non-named semaphore that is initialized lazily and at most
// once.
//
// A Semaphore starts uninitialized and can only be initialized (Init, TryInit)
// or checked for readiness (Ready, TryReady). Operations go through the Ref
// that readiness yields. The zero value is an uninitialized semaphore of
// KindDefault, so a package-level var works:
//
//	var done semguard.Semaphore
//
//	func setup() error {
//		_, err := done.Init(false, 0)
//		return err
//	}
//
//	func notify() {
//		if sem, ok := done.Ready(); ok {
//			sem.Signal()
//		}
//	}
//
// The underlying sem_t never lives inside the Semaphore value itself; it is
// allocated outside the Go heap (or inside a SharedMemory slot), so its address
// never changes after initialization. A Semaphore must not be copied.
//
// Once a ready Semaphore and every Ref obtained from it are unreachable, the
// runtime destroys the OS semaphore. A Semaphore that never became ready makes
// no OS call when it is collected.
type Semaphore struct {
	_    noCopy
	kind Kind
	gate once.Gate

	// shared-memory placement; see NewSharedSemaphore.
	slot *once.Gate
	shm  *SharedMemory

	// sem is written once, before the gate becomes ready, and only read
	// after the gate is observed ready. Shared-memory placements set it at
	// construction.
	sem unsafe.Pointer
}

// New returns an uninitialized Semaphore of the given kind.
func New(kind Kind) *Semaphore {
	return &Semaphore{kind: kind}
}

// Kind returns the resolved kind of s; never KindDefault.
func (s *Semaphore) Kind() Kind {
	return s.kind.resolve()
}

func (s *Semaphore) gateOf() *once.Gate {
	if s.slot != nil {
		return s.slot
	}
	return &s.gate
}

func (s *Semaphore) ref() Ref {
	return Ref{sem: s.sem, owner: unsafe.Pointer(s)}
}

// Init initializes the OS semaphore with the given starting count and returns
// a Ref to it. shared selects a semaphore usable by several processes (it
// must then live in memory those processes share, see NewSharedSemaphore).
//
// Only the first call on s does anything. Every later or concurrent call
// returns ErrInitRace, even when the first call failed. When this call did
// attempt the initialization and the OS rejected it, the error is an
// *InitError carrying the errno.
//
// Init panics if shared is true for a KindAnonymous semaphore: it has no name
// other processes could open it by.
func (s *Semaphore) Init(shared bool, count uint32) (Ref, error) {
	kind := s.Kind()
	if shared && kind == KindAnonymous {
		panic("semguard: an anonymous semaphore cannot be shared between processes")
	}

	ran, err := s.gateOf().Do(func() error {
		return s.initialize(kind, shared, count)
	})
	if !ran {
		return Ref{}, ErrInitRace
	}
	if err != nil {
		return Ref{}, &InitError{Kind: kind, Err: err}
	}
	return s.ref(), nil
}

// initialize runs inside the gate, so at most once per Semaphore.
func (s *Semaphore) initialize(kind Kind, shared bool, count uint32) error {
	switch kind {
	case KindUnnamed:
		if s.shm != nil {
			return sysInit(s.sem, shared, count)
		}
		if !cgoEnabled {
			return ErrUnsupported
		}
		sem := sysAlloc()
		if sem == nil {
			return unix.ENOMEM
		}
		if err := sysInit(sem, shared, count); err != nil {
			sysFree(sem)
			return err
		}
		s.sem = sem
		runtime.AddCleanup(s, destroyUnnamed, sem)
		return nil

	case KindAnonymous:
		n, err := Anonymous(count)
		if err != nil {
			return err
		}
		s.sem = n.sem
		runtime.AddCleanup(s, closeAnonymous, s.sem)
		return nil
	}
	panic("semguard: unknown semaphore kind " + kind.String())
}

// Ready returns a Ref if s has been initialized. It never blocks.
func (s *Semaphore) Ready() (Ref, bool) {
	if s.gateOf().Ready() {
		return s.ref(), true
	}
	return Ref{}, false
}

// yield runs between readiness checks in TryReady.
var yield = runtime.Gosched

// TryReady waits for someone else's initialization of s. It checks readiness
// up to budget times, and at least once, yielding the processor between
// checks. It never initializes s itself.
func (s *Semaphore) TryReady(budget uint64) (Ref, bool) {
	for {
		if r, ok := s.Ready(); ok {
			return r, true
		}
		if budget <= 1 {
			return Ref{}, false
		}
		budget--
		yield()
	}
}

// TryInit initializes s like Init. If another call got there first it waits
// for that call like TryReady. It reports false if the initialization failed,
// here or elsewhere, or did not finish within budget polls.
func (s *Semaphore) TryInit(budget uint64, shared bool, count uint32) (Ref, bool) {
	r, err := s.Init(shared, count)
	if err == nil {
		return r, true
	}
	if errors.Is(err, ErrInitRace) {
		return s.TryReady(budget)
	}
	return Ref{}, false
}

// String shows the current count if s is ready.
func (s *Semaphore) String() string {
	if r, ok := s.Ready(); ok {
		return r.String()
	}
	return "<Semaphore>"
}

// noCopy may be embedded into structs which must not be copied after first
// use; see https://golang.org/issues/8005#issuecomment-190753527.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
