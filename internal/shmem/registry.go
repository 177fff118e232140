// Package shmem implements spec.md §4.I's shared-memory registry:
// a process-wide, location-keyed map from a construction site to a
// backing shared buffer, plus the hydration protocol that lets a
// worker process's independently-constructed Global/Mutex/Semaphore
// shells resolve to the same memory the main process created.
package shmem

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cespare/xxhash/v2"

	"spawnkit/internal/errs"
)

// Sub distinguishes the two buffers a single registered primitive may
// own, per spec.md §3: the synchronization word(s) vs. any user
// payload it protects.
type Sub string

const (
	SubState Sub = "state"
	SubData  Sub = "data"
)

// LocationKey builds spec.md's `<file>:<line>:<col>[::state|::data]`
// key form.
func LocationKey(file string, line, col int, sub Sub) string {
	return fmt.Sprintf("%s:%d:%d::%s", file, line, col, sub)
}

// Descriptor is the gob-coded, cross-process-safe view of one
// registered buffer: just enough to let a worker open and map the
// same backing file.
type Descriptor struct {
	Path string
	Size int
}

// Registry is spec.md §3's "mapping locationKey -> sharedBuffer".
// Once a key is bound its value never changes for the process
// lifetime (spec.md's registry invariant).
type Registry struct {
	dir string

	mu      sync.RWMutex
	buffers map[string]*Buffer
	pending map[string][]func()
}

// NewRegistry creates a registry rooted at dir, creating the directory
// if needed.
func NewRegistry(dir string) *Registry {
	_ = os.MkdirAll(dir, 0o700)
	return &Registry{
		dir:     dir,
		buffers: make(map[string]*Buffer),
		pending: make(map[string][]func()),
	}
}

// GetOrCreate is the main-process path (spec.md §4.I: "a Global
// construction records its location key and registers its buffers if
// not already registered"). Idempotent: a second call with the same
// key returns the first buffer regardless of the size argument.
func (r *Registry) GetOrCreate(key string, size int) (*Buffer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.buffers[key]; ok {
		return b, nil
	}
	path := filepath.Join(r.dir, hashKey(key)+".shm")
	b, err := create(path, size)
	if err != nil {
		return nil, errs.Wrap(errs.CodeSharedMemory, "shmem", "GetOrCreate", err)
	}
	r.buffers[key] = b
	return b, nil
}

// Get returns the buffer bound to key, if any, without creating one.
func (r *Registry) Get(key string) (*Buffer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.buffers[key]
	return b, ok
}

// Snapshot captures every bound key for the dispatch envelope
// (spec.md §4.F step 7).
func (r *Registry) Snapshot() map[string]Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Descriptor, len(r.buffers))
	for k, b := range r.buffers {
		out[k] = Descriptor{Path: b.Path(), Size: b.Size()}
	}
	return out
}

// Hydrate is the worker-side bootstrap (spec.md §4.I, §4.H): bind
// every key named in snapshot to its backing file — unless already
// bound, which keeps Hydrate idempotent across recursive spawns — then
// run every callback parked in the pending set. Per the Design Notes
// resolution in SPEC_FULL.md, a worker always calls Hydrate with its
// one and only envelope before any user code runs, so in practice the
// pending set stays empty; it exists for defensiveness and for tests
// that exercise out-of-order construction directly.
func (r *Registry) Hydrate(snapshot map[string]Descriptor) error {
	r.mu.Lock()
	for key, d := range snapshot {
		if _, ok := r.buffers[key]; ok {
			continue
		}
		b, err := open(d.Path)
		if err != nil {
			r.mu.Unlock()
			return errs.Wrap(errs.CodeSharedMemory, "shmem", "Hydrate", err)
		}
		r.buffers[key] = b
	}
	callbacks := r.pending
	r.pending = make(map[string][]func())
	r.mu.Unlock()

	for key, cbs := range callbacks {
		if _, ok := r.Get(key); ok {
			for _, cb := range cbs {
				cb()
			}
			continue
		}
		r.mu.Lock()
		r.pending[key] = append(r.pending[key], cbs...)
		r.mu.Unlock()
	}
	return nil
}

// Await runs cb immediately if key is already bound, or parks it in
// the pending-hydration set (spec.md §3) to run the moment Hydrate
// binds that key.
func (r *Registry) Await(key string, cb func()) {
	r.mu.Lock()
	if _, ok := r.buffers[key]; ok {
		r.mu.Unlock()
		cb()
		return
	}
	r.pending[key] = append(r.pending[key], cb)
	r.mu.Unlock()
}

// Close unmaps and closes every buffer. Used on process shutdown.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for _, b := range r.buffers {
		if err := b.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.buffers = make(map[string]*Buffer)
	return firstErr
}

func hashKey(key string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(key))
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
	defaultDir  = os.TempDir() + "/spawnkit-shm"
)

// SetDefaultDir overrides the directory the process-wide default
// registry will be rooted at. Must be called before the first call to
// Default(); later calls are no-ops once the singleton exists.
func SetDefaultDir(dir string) {
	defaultOnce.Do(func() {
		defaultDir = dir
		defaultReg = NewRegistry(dir)
	})
}

// Default returns the process-wide registry shared by pkg/global,
// pkg/gmutex and pkg/gsem.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultReg = NewRegistry(defaultDir)
	})
	return defaultReg
}
