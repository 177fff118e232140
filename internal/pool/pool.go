// Package pool implements spec.md §4.G's worker pool: a process-wide,
// signature-keyed set of worker subprocesses with first-idle-wins
// selection and per-entry idle eviction.
package pool

import (
	"context"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/sys/unix"

	"spawnkit/internal/errs"
)

// DefaultIdleTimeout matches spec.md §3's "30 s by default".
const DefaultIdleTimeout = 30 * time.Second

// Entry is spec.md §3's pool entry: a worker handle, a busy flag, and
// an optional idle-eviction timer token, owned exclusively by one
// signature's pool slot.
type Entry struct {
	Signature string

	cmd *exec.Cmd

	Stdin  *os.File
	Stdout *os.File

	// Control is the parent's end of a unix domain socketpair whose
	// other end is inherited by the worker as fd 3; internal/workerproc
	// uses it to pass transferable *os.File/net.Conn values alongside
	// a job's gob-framed envelope via SCM_RIGHTS, since stdin/stdout
	// carry only the envelope/response byte stream.
	Control *os.File

	busy      int32
	idleTimer *time.Timer
}

func (e *Entry) tryClaim() bool {
	return atomic.CompareAndSwapInt32(&e.busy, 0, 1)
}

func (e *Entry) markIdle() {
	atomic.StoreInt32(&e.busy, 0)
}

// controlSocketPair opens a unix domain socketpair for SCM_RIGHTS
// transferable passing, returning the parent's and child's ends as
// plain *os.File so the child end slots into exec.Cmd.ExtraFiles.
func controlSocketPair() (parent, child *os.File, err error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, nil, err
	}
	return os.NewFile(uintptr(fds[0]), "spawnkit-ctl-parent"), os.NewFile(uintptr(fds[1]), "spawnkit-ctl-child"), nil
}

func (e *Entry) terminate() {
	if e.idleTimer != nil {
		e.idleTimer.Stop()
	}
	if e.Control != nil {
		_ = e.Control.Close()
	}
	_ = e.cmd.Process.Signal(os.Interrupt)
	done := make(chan struct{})
	go func() { _ = e.cmd.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		_ = e.cmd.Process.Kill()
		<-done
	}
}

// Pool is spec.md §3's process-wide map from signature to pool
// entries, plus the active-count warning threshold from §4.F step 4.
type Pool struct {
	mu      sync.Mutex
	entries map[string][]*Entry
	active  int32
	closed  bool
	sf      singleflight.Group

	idleTimeout    time.Duration
	warnMultiplier int
	logger         *logrus.Logger
	workerArg      func(signature string) []string
}

// Option configures a Pool.
type Option func(*Pool)

// WithIdleTimeout overrides DefaultIdleTimeout.
func WithIdleTimeout(d time.Duration) Option {
	return func(p *Pool) { p.idleTimeout = d }
}

// WithWarnMultiplier overrides the 4x hardware-concurrency warning
// threshold of spec.md §4.F step 4.
func WithWarnMultiplier(n int) Option {
	return func(p *Pool) { p.warnMultiplier = n }
}

// WithWorkerArgs overrides how a signature is turned into the
// re-exec'd binary's argv, for tests that don't want to fork the test
// binary itself as a worker.
func WithWorkerArgs(fn func(signature string) []string) Option {
	return func(p *Pool) { p.workerArg = fn }
}

// New constructs an empty Pool.
func New(logger *logrus.Logger, opts ...Option) *Pool {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	p := &Pool{
		entries:        make(map[string][]*Entry),
		idleTimeout:    DefaultIdleTimeout,
		warnMultiplier: 4,
		logger:         logger,
		workerArg:      func(sig string) []string { return []string{"-spawnkit-worker=" + sig} },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Get returns an idle entry for signature, spawning a new worker
// subprocess if none is available (spec.md §4.F steps 3-4). Concurrent
// misses for the same signature are collapsed by singleflight so at
// most one spawn happens per round of contention.
func (p *Pool) Get(ctx context.Context, signature string) (*Entry, error) {
	for {
		if e := p.claimIdle(signature); e != nil {
			return e, nil
		}

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, errs.New(errs.CodeShutdown, "pool", "Get", "pool is shut down")
		}
		p.mu.Unlock()

		_, err, _ := p.sf.Do(signature, func() (any, error) {
			return p.spawn(signature)
		})
		if err != nil {
			return nil, err
		}
		// The spawned entry joins the pool idle (busy=0); this caller and
		// any joined callers all loop back to claimIdle to claim it or
		// another idle entry; the next round's singleflight key is fresh
		// once this Do returns.

		select {
		case <-ctx.Done():
			return nil, errs.Wrap(errs.CodeShutdown, "pool", "Get", ctx.Err())
		default:
		}
	}
}

func (p *Pool) claimIdle(signature string) *Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.entries[signature] {
		if e.tryClaim() {
			if e.idleTimer != nil {
				e.idleTimer.Stop()
			}
			idleWorkers.Dec()
			return e
		}
	}
	return nil
}

func (p *Pool) spawn(signature string) (*Entry, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, errs.New(errs.CodeShutdown, "pool", "spawn", "pool is shut down")
	}
	p.mu.Unlock()

	cmd := exec.Command(os.Args[0], p.workerArg(signature)...)
	cmd.Stderr = os.Stderr
	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		return nil, errs.Wrap(errs.CodeWorkerHost, "pool", "spawn", err)
	}
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, errs.Wrap(errs.CodeWorkerHost, "pool", "spawn", err)
	}
	parentCtl, childCtl, err := controlSocketPair()
	if err != nil {
		return nil, errs.Wrap(errs.CodeWorkerHost, "pool", "spawn", err)
	}
	cmd.Stdin = stdinR
	cmd.Stdout = stdoutW
	cmd.ExtraFiles = []*os.File{childCtl} // inherited as fd 3 in the worker
	if err := cmd.Start(); err != nil {
		return nil, errs.Wrap(errs.CodeWorkerHost, "pool", "spawn", err)
	}
	_ = stdinR.Close()
	_ = stdoutW.Close()
	_ = childCtl.Close()

	e := &Entry{Signature: signature, cmd: cmd, Stdin: stdinW, Stdout: stdoutR, Control: parentCtl}

	p.mu.Lock()
	p.entries[signature] = append(p.entries[signature], e)
	p.active++
	active := p.active
	p.mu.Unlock()

	activeWorkers.Inc()
	idleWorkers.Inc() // a fresh entry starts idle; claimIdle decrements it
	workersSpawnedTotal.WithLabelValues(signature).Inc()
	p.warnIfOverThreshold(active)

	p.logger.WithFields(logrus.Fields{"signature": signature, "active": active}).Info("spawnkit: worker subprocess started")
	return e, nil
}

func (p *Pool) warnIfOverThreshold(active int32) {
	hc, err := cpu.Counts(true)
	if err != nil || hc <= 0 {
		hc = 1
	}
	if int(active) > p.warnMultiplier*hc {
		p.logger.WithFields(logrus.Fields{
			"active":              active,
			"hardware_concurrency": hc,
			"threshold":           p.warnMultiplier * hc,
		}).Warn("spawnkit: active worker count exceeds warning threshold")
	}
}

// Release returns an entry to the idle pool and arms its eviction
// timer (spec.md §4.F step 10).
func (p *Pool) Release(e *Entry) {
	e.markIdle()
	idleWorkers.Inc()
	timer := time.AfterFunc(p.idleTimeout, func() { p.evict(e) })

	p.mu.Lock()
	e.idleTimer = timer
	p.mu.Unlock()
}

func (p *Pool) evict(e *Entry) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	list := p.entries[e.Signature]
	for i, cand := range list {
		if cand == e {
			p.entries[e.Signature] = append(list[:i], list[i+1:]...)
			break
		}
	}
	p.active--
	p.mu.Unlock()

	e.terminate()
	activeWorkers.Dec()
	idleWorkers.Dec()
	workersEvictedTotal.WithLabelValues(e.Signature).Inc()
	p.logger.WithFields(logrus.Fields{"signature": e.Signature}).Info("spawnkit: worker subprocess evicted after idle timeout")
}

// Shutdown terminates every worker subprocess, clears all eviction
// timers and resets the pool's counts — spec.md §6's `shutdown()`.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	all := make([]*Entry, 0)
	for _, list := range p.entries {
		all = append(all, list...)
	}
	p.entries = make(map[string][]*Entry)
	p.active = 0
	p.mu.Unlock()

	g, _ := errgroup.WithContext(ctx)
	for _, e := range all {
		e := e
		g.Go(func() error {
			e.terminate()
			return nil
		})
	}
	err := g.Wait()

	activeWorkers.Set(0)
	idleWorkers.Set(0)
	return err
}

// ActiveCount reports the current number of live worker subprocesses.
func (p *Pool) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return int(p.active)
}
