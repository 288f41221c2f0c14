//go:build unix

package semguard

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"
)

// PortableNameMax is the longest semaphore name, including the leading '/',
// that every supported platform accepts (macOS limits names to 31 bytes).
const PortableNameMax = 31

// ValidName reports whether name is a portable semaphore name: a leading '/',
// no other '/', no NUL byte, and at most PortableNameMax bytes.
func ValidName(name string) error {
	switch {
	case len(name) < 2 || name[0] != '/':
		return fmt.Errorf("semguard: semaphore name %q must start with '/' followed by at least one character", name)
	case strings.IndexByte(name[1:], '/') >= 0:
		return fmt.Errorf("semguard: semaphore name %q contains '/' after the first character", name)
	case strings.IndexByte(name, 0) >= 0:
		return fmt.Errorf("semguard: semaphore name %q contains a NUL byte", name)
	case len(name) > PortableNameMax:
		return fmt.Errorf("semguard: semaphore name %q is longer than %d bytes", name, PortableNameMax)
	}
	return nil
}

// OpenFlags selects how Open treats a missing or existing name. Build one with
// AccessOnly or Create; no other combination exists.
type OpenFlags struct {
	create    bool
	exclusive bool
	mode      uint32
	value     uint32
}

// AccessOnly opens an existing semaphore and fails with ClassNotFound if the
// name does not exist.
var AccessOnly = OpenFlags{}

// Create opens the semaphore, creating it with the permission bits of mode
// (minus the umask) and the initial count value if the name does not exist.
// With exclusive set, an existing name fails with ClassExists. When the name
// already exists and exclusive is false, mode and value are ignored.
func Create(exclusive bool, mode os.FileMode, value uint32) OpenFlags {
	return OpenFlags{
		create:    true,
		exclusive: exclusive,
		mode:      uint32(mode.Perm()),
		value:     value,
	}
}

func (f OpenFlags) oflag() int {
	if !f.create {
		return 0
	}
	if f.exclusive {
		return unix.O_CREAT | unix.O_EXCL
	}
	return unix.O_CREAT
}

func (f OpenFlags) String() string {
	if !f.create {
		return "AccessOnly"
	}
	return fmt.Sprintf("Create{exclusive:%t mode:%#o value:%d}", f.exclusive, f.mode, f.value)
}

// Named is an open handle to a named semaphore (sem_open).
//
// The open call is the initialization, so a Named is always ready. Several
// Named values, in this process or others, may refer to the same OS semaphore;
// there is no way to tell from the handles, so Named has no equality.
//
// A Named is not closed when it becomes unreachable, because closing cannot be
// done safely in general; see Close.
type Named struct {
	_    noCopy
	sem  unsafe.Pointer
	name string
}

// Open opens or creates the named semaphore (sem_open). It retries when
// interrupted by a signal.
func Open(name string, flags OpenFlags) (*Named, error) {
	if strings.IndexByte(name, 0) >= 0 {
		return nil, &OpError{Op: "sem_open", Name: name, Err: unix.EINVAL}
	}
	for {
		sem, err := sysOpen(name, flags.oflag(), flags.mode, flags.value)
		if err == nil {
			return &Named{sem: sem, name: name}, nil
		}
		if errors.Is(err, unix.EINTR) {
			continue
		}
		return nil, &OpError{Op: "sem_open", Name: name, Err: err}
	}
}

// Unlink removes name from the namespace (sem_unlink). Handles that are
// already open keep working; opening the same name again afterwards yields a
// different semaphore.
func Unlink(name string) error {
	if strings.IndexByte(name, 0) >= 0 {
		return &OpError{Op: "sem_unlink", Name: name, Err: unix.EINVAL}
	}
	if err := sysUnlink(name); err != nil {
		return &OpError{Op: "sem_unlink", Name: name, Err: err}
	}
	return nil
}

// Name returns the name n was opened with. For semaphores from Anonymous the
// name has already been unlinked.
func (n *Named) Name() string {
	return n.name
}

// Ref returns the capability to operate on n. It panics if n was closed.
func (n *Named) Ref() Ref {
	if n.sem == nil {
		panic("semguard: Ref of closed named semaphore " + n.name)
	}
	return Ref{sem: n.sem, owner: unsafe.Pointer(n)}
}

// Close closes the handle (sem_close).
//
// POSIX leaves the use of a semaphore after close undefined, and platforms
// disagree about handles that were opened several times: most need one close
// per open, but some (illumos/Solaris) invalidate every handle to the
// semaphore on the first close. The caller must therefore ensure that
//
//   - no other Named for the same semaphore is open in this process, or the
//     program only runs on platforms that need one close per open, and
//   - no goroutine is blocked in Wait on the semaphore, and no Ref from n is
//     used afterwards.
//
// Semaphores opened through a Registry share one handle per name and avoid
// the first condition. Semaphores from Anonymous always satisfy it.
func (n *Named) Close() error {
	if n.sem == nil {
		return &OpError{Op: "sem_close", Name: n.name, Err: fs.ErrClosed}
	}
	sem := n.sem
	n.sem = nil
	if err := sysClose(sem); err != nil {
		return &OpError{Op: "sem_close", Name: n.name, Err: err}
	}
	return nil
}

func (n *Named) String() string {
	if n.sem == nil {
		return "<Semaphore closed>"
	}
	return n.Ref().String()
}
