//go:build unix

package semguard

import (
	"fmt"
	"io"
	"runtime"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/cpu"
	"golang.org/x/sys/unix"

	"github.com/richinsley/semguard/internal/once"
)

// SharedMemory is a named POSIX shared memory region (shm_open + mmap) that
// several processes can map at once. It is where process-shared semaphores
// live: see NewSharedSemaphore.
//
// Create the region with CreateSharedMemory in one process and map it with
// OpenSharedMemory in the others, using the same name and size. New regions
// are zero-filled, which is the uninitialized state for every slot.
//
// Example:
//
//	// In the creating process
//	shm, _ := semguard.CreateSharedMemory("/my_shm", 4096)
//	sem, _ := semguard.NewSharedSemaphore(shm, 0)
//	ref, _ := sem.Init(true, 0)
//
//	// In another process
//	shm, _ := semguard.OpenSharedMemory("/my_shm", 4096)
//	sem, _ := semguard.NewSharedSemaphore(shm, 0)
//	ref, ok := sem.TryReady(1 << 20)
type SharedMemory struct {
	// mem is the mapping; nil after Close.
	mem []byte

	// attached counts the Semaphores placed in the region that are still
	// reachable.
	attached atomic.Int32

	// Name is the identifier used to open/create this shared memory.
	Name string
}

// CreateSharedMemory creates a new named region of size bytes. The name
// should start with "/"; it must not exist yet.
func CreateSharedMemory(name string, size int) (*SharedMemory, error) {
	return mapShared(name, size, unix.O_RDWR|unix.O_CREAT|unix.O_EXCL)
}

// OpenSharedMemory maps an existing named region. size must not exceed the
// size it was created with.
func OpenSharedMemory(name string, size int) (*SharedMemory, error) {
	return mapShared(name, size, unix.O_RDWR)
}

func mapShared(name string, size int, oflag int) (*SharedMemory, error) {
	if size <= 0 {
		return nil, fmt.Errorf("semguard: invalid shared memory size %d", size)
	}
	fd, err := sysShmOpen(name, oflag, 0o600)
	if err != nil {
		return nil, &OpError{Op: "shm_open", Name: name, Err: err}
	}
	defer unix.Close(fd)

	if oflag&unix.O_CREAT != 0 {
		if err := unix.Ftruncate(fd, int64(size)); err != nil {
			sysShmUnlink(name)
			return nil, &OpError{Op: "ftruncate", Name: name, Err: err}
		}
	} else {
		var st unix.Stat_t
		if err := unix.Fstat(fd, &st); err != nil {
			return nil, &OpError{Op: "fstat", Name: name, Err: err}
		}
		if st.Size < int64(size) {
			return nil, fmt.Errorf("semguard: shared memory %s has %d bytes, want %d", name, st.Size, size)
		}
	}

	mem, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, &OpError{Op: "mmap", Name: name, Err: err}
	}
	return &SharedMemory{mem: mem, Name: name}, nil
}

// RemoveSharedMemory removes the name of a region (shm_unlink). Existing
// mappings stay valid.
func RemoveSharedMemory(name string) error {
	if err := sysShmUnlink(name); err != nil {
		return &OpError{Op: "shm_unlink", Name: name, Err: err}
	}
	return nil
}

// Size returns the size of the mapping in bytes.
func (o *SharedMemory) Size() int {
	return len(o.mem)
}

// Close unmaps the region. It fails with ErrBusy while semaphores placed in
// the region are still reachable, since unmapping would pull the memory out
// from under their operations.
func (o *SharedMemory) Close() error {
	if o.attached.Load() > 0 {
		return ErrBusy
	}
	if o.mem == nil {
		return nil
	}
	if err := unix.Munmap(o.mem); err != nil {
		return &OpError{Op: "munmap", Name: o.Name, Err: err}
	}
	o.mem = nil
	return nil
}

// ReadAt reads len(p) bytes starting at offset off.
// Implements io.ReaderAt.
func (o *SharedMemory) ReadAt(p []byte, off int64) (n int, err error) {
	if off < 0 || off > int64(len(o.mem)) {
		return 0, fmt.Errorf("semguard: invalid offset %d", off)
	}
	n = copy(p, o.mem[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt writes len(p) bytes starting at offset off.
// Implements io.WriterAt.
func (o *SharedMemory) WriteAt(p []byte, off int64) (n int, err error) {
	if off < 0 || off > int64(len(o.mem)) {
		return 0, fmt.Errorf("semguard: invalid offset %d", off)
	}
	n = copy(o.mem[off:], p)
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

// GetTypedSlice returns a typed view of shared memory starting at offset.
// Changes to the slice are immediately visible in shared memory.
//
// It returns nil when offset lies outside the region or no whole element fits.
//
// Warning: the slice is only valid while the SharedMemory is open.
func GetTypedSlice[T any](shm *SharedMemory, offset int) []T {
	if offset < 0 || offset >= len(shm.mem) {
		return nil
	}
	elementSize := int(unsafe.Sizeof(*new(T)))
	numElements := (len(shm.mem) - offset) / elementSize
	if numElements <= 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&shm.mem[offset])), numElements)
}

const (
	// slotHeader holds the slot's initialization gate, padded so the sem_t
	// after it is aligned.
	slotHeader = 16
	cacheLine  = int(unsafe.Sizeof(cpu.CacheLinePad{}))
)

// SlotSize is the number of bytes one shared semaphore occupies. Slots are
// cache-line multiples so neighbouring semaphores do not share a line.
const SlotSize = (slotHeader + semSize + cacheLine - 1) / cacheLine * cacheLine

// NewSharedSemaphore returns the Semaphore stored in the given slot of shm,
// at offset slot*SlotSize. Every process that maps the region reaches the
// same semaphore through the same slot.
//
// The initialization gate lives in the slot too, so exactly one process can
// Init the semaphore (normally with shared set); the others use TryReady to
// wait for it. The result is always KindUnnamed, and platforms without unnamed
// semaphores fail at Init.
//
// A shared semaphore is never destroyed by this package, because other
// processes may still be using it; it ends with the region. shm cannot be
// closed while the returned Semaphore is reachable.
func NewSharedSemaphore(shm *SharedMemory, slot int) (*Semaphore, error) {
	if shm.mem == nil {
		return nil, fmt.Errorf("semguard: shared memory %s is closed", shm.Name)
	}
	off := slot * SlotSize
	if slot < 0 || off+SlotSize > len(shm.mem) {
		return nil, fmt.Errorf("semguard: slot %d does not fit in %d bytes of shared memory", slot, len(shm.mem))
	}
	base := unsafe.Pointer(&shm.mem[off])
	s := &Semaphore{
		kind: KindUnnamed,
		slot: (*once.Gate)(base),
		shm:  shm,
		sem:  unsafe.Add(base, slotHeader),
	}
	shm.attached.Add(1)
	runtime.AddCleanup(s, (*SharedMemory).detach, shm)
	return s, nil
}

func (o *SharedMemory) detach() {
	o.attached.Add(-1)
}
