package shmem

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"spawnkit/internal/errs"
)

// Buffer is a memory-mapped region backed by a file on disk, shared
// across process boundaries via MAP_SHARED. It is the Go realization
// of spec.md §3's "shared buffer" — strictly stronger than the
// JS SharedArrayBuffer it models, since spawnkit's isolates are real
// OS processes rather than threads within one process.
type Buffer struct {
	path string
	size int
	data []byte
	file *os.File
}

// create makes (or truncates) the backing file to size and maps it.
func create(path string, size int) (*Buffer, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, errs.Wrap(errs.CodeSharedMemory, "shmem", "create", err)
	}
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		return nil, errs.Wrap(errs.CodeSharedMemory, "shmem", "create", err)
	}
	return mapFile(f, size)
}

// open maps an already-existing backing file, used on the worker side
// where the registry snapshot names a path created by the main
// process.
func open(path string) (*Buffer, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o600)
	if err != nil {
		return nil, errs.Wrap(errs.CodeSharedMemory, "shmem", "open", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errs.Wrap(errs.CodeSharedMemory, "shmem", "open", err)
	}
	return mapFile(f, int(info.Size()))
}

func mapFile(f *os.File, size int) (*Buffer, error) {
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, errs.Wrap(errs.CodeSharedMemory, "shmem", "mmap", err)
	}
	return &Buffer{path: f.Name(), size: size, data: data, file: f}, nil
}

// Bytes exposes the raw mapped region. Callers outside pkg/gmutex and
// pkg/gsem should treat it as read-only; the primitives mutate it only
// through sync/atomic.
func (b *Buffer) Bytes() []byte { return b.data }

// Path is the backing file's location, shipped in the shared-memory
// registry snapshot so a worker can open the same file.
func (b *Buffer) Path() string { return b.path }

// Size is the mapped region length in bytes.
func (b *Buffer) Size() int { return b.size }

// Word32 returns a pointer to the 32-bit word at offset, suitable for
// sync/atomic operations. offset+4 must not exceed Size. There is no
// third-party alternative to unsafe.Pointer for viewing a mmap'd
// []byte as an atomically-addressable word; this is the one place in
// spawnkit where unsafe is required, not a convenience.
func (b *Buffer) Word32(offset int) *int32 {
	return (*int32)(unsafe.Pointer(&b.data[offset]))
}

// Close unmaps and closes the backing file. Safe to call once; it is
// not reference-counted, so callers sharing a Buffer across goroutines
// must coordinate shutdown externally (the registry owns this).
func (b *Buffer) Close() error {
	if err := unix.Munmap(b.data); err != nil {
		return errs.Wrap(errs.CodeSharedMemory, "shmem", "Close", err)
	}
	return b.file.Close()
}
