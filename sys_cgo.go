//go:build unix && cgo

package semguard

/*
#cgo linux LDFLAGS: -pthread -lrt
#include <errno.h>
#include <fcntl.h>
#include <stdlib.h>
#include <semaphore.h>
#include <sys/mman.h>
#include <sys/stat.h>

// sem_open is variadic, which cgo cannot call directly.
static sem_t *semguard_sem_open(const char *name, int oflag, unsigned int mode, unsigned int value) {
	sem_t *sem;
	if (oflag & O_CREAT) {
		sem = sem_open(name, oflag, (mode_t)mode, value);
	} else {
		sem = sem_open(name, oflag);
	}
	if (sem == SEM_FAILED) {
		return NULL;
	}
	return sem;
}

static int semguard_shm_open(const char *name, int oflag, unsigned int mode) {
	return shm_open(name, oflag, (mode_t)mode);
}
*/
import "C"

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// semSize is the size of a sem_t on this platform.
const semSize = int(C.sizeof_sem_t)

const cgoEnabled = true

// errnoOr returns the errno cgo captured for a failed call. A failing call
// that left errno at zero is reported as EIO rather than as success.
func errnoOr(err error) error {
	if err == nil {
		return unix.EIO
	}
	return err
}

func sysAlloc() unsafe.Pointer {
	return C.calloc(1, C.size_t(semSize))
}

func sysFree(sem unsafe.Pointer) {
	C.free(sem)
}

func sysInit(sem unsafe.Pointer, shared bool, count uint32) error {
	var pshared C.int
	if shared {
		pshared = 1
	}
	if r, err := C.sem_init((*C.sem_t)(sem), pshared, C.uint(count)); r != 0 {
		return errnoOr(err)
	}
	return nil
}

func sysDestroy(sem unsafe.Pointer) error {
	if r, err := C.sem_destroy((*C.sem_t)(sem)); r != 0 {
		return errnoOr(err)
	}
	return nil
}

func sysOpen(name string, oflag int, mode uint32, value uint32) (unsafe.Pointer, error) {
	cName := C.CString(name)
	defer C.free(unsafe.Pointer(cName))

	sem, err := C.semguard_sem_open(cName, C.int(oflag), C.uint(mode), C.uint(value))
	if sem == nil {
		return nil, errnoOr(err)
	}
	return unsafe.Pointer(sem), nil
}

func sysClose(sem unsafe.Pointer) error {
	if r, err := C.sem_close((*C.sem_t)(sem)); r != 0 {
		return errnoOr(err)
	}
	return nil
}

func sysUnlink(name string) error {
	cName := C.CString(name)
	defer C.free(unsafe.Pointer(cName))

	if r, err := C.sem_unlink(cName); r != 0 {
		return errnoOr(err)
	}
	return nil
}

func sysPost(sem unsafe.Pointer) error {
	if r, err := C.sem_post((*C.sem_t)(sem)); r != 0 {
		return errnoOr(err)
	}
	return nil
}

func sysWait(sem unsafe.Pointer) error {
	if r, err := C.sem_wait((*C.sem_t)(sem)); r != 0 {
		return errnoOr(err)
	}
	return nil
}

func sysTryWait(sem unsafe.Pointer) error {
	if r, err := C.sem_trywait((*C.sem_t)(sem)); r != 0 {
		return errnoOr(err)
	}
	return nil
}

func sysGetValue(sem unsafe.Pointer) (int, error) {
	var v C.int
	if r, err := C.sem_getvalue((*C.sem_t)(sem), &v); r != 0 {
		return 0, errnoOr(err)
	}
	return int(v), nil
}

func sysShmOpen(name string, oflag int, mode uint32) (int, error) {
	cName := C.CString(name)
	defer C.free(unsafe.Pointer(cName))

	fd, err := C.semguard_shm_open(cName, C.int(oflag), C.uint(mode))
	if fd < 0 {
		return -1, errnoOr(err)
	}
	return int(fd), nil
}

func sysShmUnlink(name string) error {
	cName := C.CString(name)
	defer C.free(unsafe.Pointer(cName))

	if r, err := C.shm_unlink(cName); r != 0 {
		return errnoOr(err)
	}
	return nil
}
