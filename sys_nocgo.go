//go:build unix && !cgo

package semguard

import "unsafe"

// semSize is only used for slot layout when cgo is disabled; no semaphore is
// ever placed in a slot in that configuration.
const semSize = 32

const cgoEnabled = false

func sysAlloc() unsafe.Pointer { return nil }

func sysFree(sem unsafe.Pointer) {}

func sysInit(sem unsafe.Pointer, shared bool, count uint32) error { return ErrUnsupported }

func sysDestroy(sem unsafe.Pointer) error { return ErrUnsupported }

func sysOpen(name string, oflag int, mode uint32, value uint32) (unsafe.Pointer, error) {
	return nil, ErrUnsupported
}

func sysClose(sem unsafe.Pointer) error { return ErrUnsupported }

func sysUnlink(name string) error { return ErrUnsupported }

func sysPost(sem unsafe.Pointer) error { return ErrUnsupported }

func sysWait(sem unsafe.Pointer) error { return ErrUnsupported }

func sysTryWait(sem unsafe.Pointer) error { return ErrUnsupported }

func sysGetValue(sem unsafe.Pointer) (int, error) { return 0, ErrUnsupported }

func sysShmOpen(name string, oflag int, mode uint32) (int, error) { return -1, ErrUnsupported }

func sysShmUnlink(name string) error { return ErrUnsupported }
