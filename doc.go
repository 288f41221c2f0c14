// Package semguard provides POSIX semaphores whose initialization and
// teardown are safe by construction.
//
// A raw sem_t must be initialized exactly once, must not move while in use
// and must be destroyed exactly once when nobody uses it any more. semguard
// enforces all three: the OS object lives outside the Go heap, a lock-free
// gate lets exactly one caller initialize it, and every operation goes
// through a Ref that only an initialized semaphore hands out.
//
// # Semaphore kinds
//
// A Semaphore is process-private unless placed in shared memory. Its Kind
// decides which OS primitive backs it:
//
//	KindUnnamed    sem_init/sem_destroy on a sem_t (Linux, BSD, ...)
//	KindAnonymous  sem_open under a random name that is unlinked at once
//	               (macOS, which has no working sem_init)
//	KindDefault    the best of the two for the platform
//
// The zero Semaphore is of KindDefault and uninitialized:
//
//	var sem semguard.Semaphore
//	ref, err := sem.Init(false, 0)
//	if err != nil {
//		return err
//	}
//	go func() {
//		// ... produce something ...
//		ref.Signal()
//	}()
//	ref.Wait()
//
// Init succeeds for one caller only. Everyone else gets ErrInitRace and can
// wait for the winner with TryReady, or use TryInit to do both at once.
//
// # Named semaphores
//
// Open opens or creates a semaphore by name; the open call is the
// initialization. Unlink removes a name. Because closing a handle that was
// opened more than once behaves differently across platforms, Named handles
// are never closed implicitly; a Registry shares one handle per name inside a
// process and closes it on the last release:
//
//	var reg semguard.Registry
//	h, err := reg.Open("/jobs", semguard.Create(false, 0o600, 0))
//	if err != nil {
//		return err
//	}
//	defer h.Close()
//	h.Ref().Signal()
//
// # Shared memory
//
// CreateSharedMemory and OpenSharedMemory map a named region into several
// processes. NewSharedSemaphore places a semaphore and its initialization gate
// in a slot of the region, so one process initializes it with Init(true, n)
// and the others attach with TryReady. See cmd/semdemo for a complete
// multi-process program.
//
// # Errors
//
// OS failures are *InitError or *OpError values wrapping the errno. Classify
// maps them to a Class such as ClassWouldBlock or ClassNotFound, and
// errors.Is works with the errno itself or with fs.ErrNotExist and friends.
//
// # Platform Notes
//
// All OS calls go through cgo. Built with CGO_ENABLED=0 every operation
// fails with ErrUnsupported. On macOS Value is unsupported and reports an
// error matching errors.ErrUnsupported.
package semguard
