// Package registry is the process-wide symbol table that stands in
// for spec.md §4.H's worker entry template. Instead of a fresh,
// per-signature generated binary, spawnkit re-executes its own
// process as a worker; every generated entry function registers
// itself here via an init() emitted by cmd/spawnkit-gen, so the same
// table is populated identically in the dispatching process and in
// every worker it forks.
package registry

import (
	"fmt"
	"sync"
)

// Entry is a generated closure's standalone body: it accepts the
// gob-decoded capture value and returns the user function's result or
// error, exactly spec.md §4.H's "invoke the user function... return
// result or error".
type Entry func(capture any) (any, error)

var (
	mu      sync.RWMutex
	entries = make(map[string]Entry)
)

// Register binds signature to fn. Called from generated code's
// init(); panics on a duplicate signature, which can only happen if
// spawnkit-gen is run twice without cleaning its previous output.
func Register(signature string, fn Entry) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := entries[signature]; exists {
		panic(fmt.Sprintf("spawnkit: duplicate registration for signature %q", signature))
	}
	entries[signature] = fn
}

// Lookup returns the entry registered for signature, if any.
func Lookup(signature string) (Entry, bool) {
	mu.RLock()
	defer mu.RUnlock()
	fn, ok := entries[signature]
	return fn, ok
}

// reset clears the registry; used only by tests.
func reset() {
	mu.Lock()
	defer mu.Unlock()
	entries = make(map[string]Entry)
}
