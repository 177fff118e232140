// Package spawnkit runs a closure's body on a separate OS process
// instead of a goroutine: spawnkit.Spawn(func() (any, error) { ... })
// marks a function literal for cmd/spawnkit-gen, which rewrites the
// call site at go:generate time into a spawnkit.Dispatch call carrying
// a generated struct of everything the literal closed over. The
// dispatched worker is the same binary, re-executed with
// -spawnkit-worker=<signature>, talking back over a length-prefixed
// gob protocol (internal/workerproc).
//
// Cross-worker shared state goes through pkg/global, pkg/gmutex and
// pkg/gsem, all backed by real memory-mapped shared memory
// (internal/shmem) rather than anything gob-serialized, so a Global's
// identity survives the process boundary the way spec.md's
// SharedArrayBuffer model requires.
package spawnkit
