//go:build unix

package semguard

import (
	"io/fs"
	"sync/atomic"

	"github.com/llxisdsh/pb"
	"golang.org/x/sys/unix"
)

// Registry shares one OS handle per semaphore name within a process.
//
// Every Open through a Registry for a name it already holds returns a Handle
// backed by the same sem_open handle, and the OS handle is closed only when
// the last Handle for it is closed. That gives one close per open on every
// platform, which (*Named).Close alone cannot promise.
//
// The zero value is ready to use. A Registry must not be copied.
type Registry struct {
	m pb.MapOf[string, *sharedHandle]
}

// sharedHandle is one OS handle and the number of open Handles using it.
// refs is only changed while the registry entry for the name is locked.
type sharedHandle struct {
	named *Named
	refs  int
}

type registryEntry = pb.EntryOf[string, *sharedHandle]

// Handle is a reference-counted use of a named semaphore held by a Registry.
type Handle struct {
	reg    *Registry
	name   string
	shared *sharedHandle
	closed atomic.Bool
}

// Open returns a Handle for name. If the registry already holds name, the
// existing OS handle is reused and flags only matter for exclusive creation,
// which fails with ClassExists without calling the OS. Otherwise the
// semaphore is opened with Open.
func (r *Registry) Open(name string, flags OpenFlags) (*Handle, error) {
	var err error
	s, _ := r.m.ProcessEntry(
		name,
		func(l *registryEntry) (*registryEntry, *sharedHandle, bool) {
			if l != nil {
				if flags.create && flags.exclusive {
					err = &OpError{Op: "sem_open", Name: name, Err: unix.EEXIST}
					return l, nil, true
				}
				l.Value.refs++
				return l, l.Value, true
			}
			n, openErr := Open(name, flags)
			if openErr != nil {
				err = openErr
				return nil, nil, false
			}
			s := &sharedHandle{named: n, refs: 1}
			return &registryEntry{Value: s}, s, false
		},
	)
	if err != nil {
		return nil, err
	}
	return &Handle{reg: r, name: name, shared: s}, nil
}

// Unlink removes name from the namespace like Unlink and makes the registry
// forget it, so the next Open creates or opens a new semaphore. Handles that
// are already open keep working.
func (r *Registry) Unlink(name string) error {
	var err error
	r.m.ProcessEntry(
		name,
		func(l *registryEntry) (*registryEntry, *sharedHandle, bool) {
			err = Unlink(name)
			return nil, nil, l != nil
		},
	)
	return err
}

// Name returns the name h was opened with.
func (h *Handle) Name() string {
	return h.name
}

// Ref returns the capability to operate on the semaphore. It panics if h was
// closed.
func (h *Handle) Ref() Ref {
	if h.closed.Load() {
		panic("semguard: Ref of closed handle " + h.name)
	}
	return h.shared.named.Ref()
}

// Close releases h. The OS handle is closed when no other Handle from the
// registry uses it; at that point nothing may be blocked on the semaphore.
func (h *Handle) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return &OpError{Op: "sem_close", Name: h.name, Err: fs.ErrClosed}
	}
	s := h.shared
	var last bool
	var err error
	h.reg.m.ProcessEntry(
		h.name,
		func(l *registryEntry) (*registryEntry, *sharedHandle, bool) {
			s.refs--
			if s.refs > 0 {
				return l, nil, l != nil
			}
			last = true
			if l != nil && l.Value == s {
				// Close while the name is locked so a concurrent Open
				// cannot obtain a second handle to the same object first.
				err = s.named.Close()
				return nil, nil, true
			}
			return l, nil, l != nil
		},
	)
	if last && err == nil && s.named.sem != nil {
		// The registry had already forgotten the name (Unlink).
		err = s.named.Close()
	}
	return err
}
