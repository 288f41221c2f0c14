//go:build unix

package semguard

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

var (
	// ErrInitRace is returned by Init when another call already started
	// initializing the same Semaphore, whether or not it has finished. It is a
	// coordination signal, not a failure: use Ready or TryReady to wait for
	// the winner.
	ErrInitRace = errors.New("semguard: initialization already started by another call")

	// ErrNotReady is returned by operations on a Ref that was not obtained
	// from an initialized semaphore (the zero Ref).
	ErrNotReady = errors.New("semguard: semaphore is not initialized")

	// ErrExhausted is returned by Anonymous when every generated name failed.
	ErrExhausted = errors.New("semguard: anonymous semaphore name attempts exhausted")

	// ErrUnsupported is returned by every OS operation when the package was
	// built without cgo.
	ErrUnsupported = fmt.Errorf("semguard: semaphores require cgo on this platform; rebuild with CGO_ENABLED=1: %w", errors.ErrUnsupported)

	// ErrBusy is returned when closing a SharedMemory that still has
	// semaphores attached to it.
	ErrBusy = errors.New("semguard: shared memory still has attached semaphores")
)

// InitError reports that the OS rejected the initialization of a Semaphore.
// The Semaphore stays uninitializable afterwards.
type InitError struct {
	Kind Kind
	Err  error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("semguard: %s semaphore init: %v", e.Kind, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// Class returns the classification of the underlying OS error.
func (e *InitError) Class() Class { return Classify(e.Err) }

// OpError reports a failed semaphore operation. Name is set for the
// name-based operations (open, unlink) and empty otherwise.
type OpError struct {
	Op   string
	Name string
	Err  error
}

func (e *OpError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("semguard: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("semguard: %s %s: %v", e.Op, e.Name, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// Class returns the classification of the underlying OS error.
func (e *OpError) Class() Class { return Classify(e.Err) }

// Class is a platform-independent classification of an OS error code.
type Class uint8

const (
	ClassNone Class = iota
	ClassWouldBlock
	ClassInterrupted
	ClassExists
	ClassNotFound
	ClassInvalid
	ClassLimit
	ClassOverflow
	ClassUnsupported
	ClassPermission
	ClassOther
)

var classNames = [...]string{
	ClassNone:        "none",
	ClassWouldBlock:  "would block",
	ClassInterrupted: "interrupted",
	ClassExists:      "already exists",
	ClassNotFound:    "not found",
	ClassInvalid:     "invalid argument",
	ClassLimit:       "resource limit",
	ClassOverflow:    "overflow",
	ClassUnsupported: "unsupported",
	ClassPermission:  "permission denied",
	ClassOther:       "other",
}

func (c Class) String() string {
	if int(c) < len(classNames) {
		return classNames[c]
	}
	return fmt.Sprintf("Class(%d)", uint8(c))
}

// Classify maps err to a Class by looking for an errno in its chain.
func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}
	var errno unix.Errno
	if !errors.As(err, &errno) {
		if errors.Is(err, errors.ErrUnsupported) {
			return ClassUnsupported
		}
		return ClassOther
	}
	switch errno {
	case unix.EAGAIN:
		return ClassWouldBlock
	case unix.EINTR:
		return ClassInterrupted
	case unix.EEXIST:
		return ClassExists
	case unix.ENOENT:
		return ClassNotFound
	case unix.EINVAL, unix.ENAMETOOLONG:
		return ClassInvalid
	case unix.EMFILE, unix.ENFILE, unix.ENOMEM, unix.ENOSPC:
		return ClassLimit
	case unix.EOVERFLOW:
		return ClassOverflow
	case unix.ENOSYS, unix.ENOTSUP:
		return ClassUnsupported
	case unix.EACCES, unix.EPERM:
		return ClassPermission
	}
	return ClassOther
}

// mustValid panics when the OS rejects, as invalid, a semaphore this package
// itself initialized. That can only be a defect in this package.
func mustValid(op string, err error) {
	if errors.Is(err, unix.EINVAL) {
		panic("semguard: " + op + " rejected an initialized semaphore")
	}
}
