package spawnkit

import (
	"context"

	"spawnkit/internal/config"
	"spawnkit/internal/registry"
	"spawnkit/internal/workerproc"
)

// Spawn marks fn to run on a worker subprocess instead of inline.
// Calling it directly is only meaningful before cmd/spawnkit-gen has
// processed the package: go:generate rewrites every Spawn call site
// into a Dispatch call against a generated capture struct, so this
// body never actually runs in a generated build. It exists so
// un-generated source still type-checks and so cmd/spawnkit-gen has a
// stable, greppable call to locate.
func Spawn(fn func() (any, error)) (any, error) {
	return fn()
}

// Dispatch ships a generated capture struct to a worker subprocess for
// signature sig and blocks for its result. Only cmd/spawnkit-gen's
// rewritten call sites are expected to call this directly.
func Dispatch(sig string, capture any) (any, error) {
	return workerproc.Dispatch(context.Background(), sig, capture)
}

// Register exposes internal/registry.Register to generated code's
// init() functions without those files needing to import an internal
// package name that changes if spawnkit's internal layout ever moves.
func Register(signature string, fn registry.Entry) {
	registry.Register(signature, fn)
}

// RegisterResultType must be called once for every named type that
// crosses the dispatch boundary as an interface value — a Spawn
// body's return type, or (from generated code's init()) its own
// capture struct — satisfying encoding/gob's requirement that
// concrete types reachable through an interface be registered before
// they're decoded.
func RegisterResultType(zero any) {
	workerproc.RegisterResultType(zero)
}

// Init applies cfg to spawnkit's process-wide pool and shared-memory
// singletons. Call it once, before the first Spawn/Dispatch, if
// config.Default() isn't the desired configuration; a process that
// never calls Init gets the defaults.
func Init(cfg *config.Config) {
	workerproc.Configure(cfg)
}

// Shutdown terminates every pooled worker subprocess and releases
// shared-memory resources — spec.md §6's shutdown().
func Shutdown(ctx context.Context) error {
	return workerproc.DefaultShutdown(ctx)
}

// IsWorker reports whether the current process was re-executed as a
// spawnkit worker (the -spawnkit-worker=<sig> re-exec), for the rare
// caller that needs to branch on it (e.g. main() deciding whether to
// run RunWorker() instead of its normal startup path).
func IsWorker() (signature string, ok bool) {
	return workerSignatureFromArgs()
}
