package workerproc

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"reflect"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"spawnkit/internal/config"
	"spawnkit/internal/errs"
	"spawnkit/internal/pool"
	"spawnkit/internal/shmem"
	"spawnkit/internal/tracing"
	"spawnkit/internal/transfer"
)

var (
	defaultOnce   sync.Once
	defaultPool   *pool.Pool
	defaultTracer *tracing.Manager
	logger        = logrus.StandardLogger()
)

// defaultPoolInstance returns the process-wide worker pool every
// Dispatch call draws from.
func defaultPoolInstance() *pool.Pool {
	defaultOnce.Do(initDefaults)
	return defaultPool
}

// defaultTracerInstance returns the process-wide tracing Manager every
// Dispatch call opens its job span on.
func defaultTracerInstance() *tracing.Manager {
	defaultOnce.Do(initDefaults)
	return defaultTracer
}

// initDefaults sets up the pool and tracer Configure never ran for —
// a caller that never calls spawnkit.Init still gets a working,
// disabled-tracing pool rather than a nil Manager.
func initDefaults() {
	defaultPool = pool.New(logger)
	m, err := tracing.New(config.TracingConfig{Enabled: false}, logger)
	if err != nil {
		logger.WithError(err).Error("spawnkit: failed to initialize no-op tracer")
	}
	defaultTracer = m
}

// resultEnvelope is the gob shape a worker's Response.ResultGob
// carries: wrapping the boxed `any` result lets a zero result (nil)
// round-trip without gob rejecting a top-level nil interface.
type resultEnvelope struct {
	V any
}

// RegisterResultType must be called, once, for every concrete type a
// spawnkit.Spawn body can return — the same requirement encoding/gob
// places on any interface-typed value. Primitive kinds (numbers,
// strings, bool and aggregates of them) never need it; only
// user-defined named types do.
func RegisterResultType(zero any) {
	gob.Register(zero)
}

// Dispatch realizes spec.md §4.F for Go: it ships capture to an idle
// worker subprocess for signature sig and blocks for that job's
// result. Generated call sites are the only intended caller; capture
// is always a `spawnkit_Capture_<sig>` struct value built by
// cmd/spawnkit-gen's call-site rewrite.
func Dispatch(ctx context.Context, sig string, capture any) (any, error) {
	ctx, span := defaultTracerInstance().Tracer().Start(ctx, "spawnkit.dispatch",
		oteltrace.WithAttributes(attribute.String("spawnkit.signature", sig)))
	defer span.End()

	sanitized, files, err := filterCapture(capture)
	if err != nil {
		return nil, fail(span, err)
	}

	entry, err := defaultPoolInstance().Get(ctx, sig)
	if err != nil {
		return nil, fail(span, err)
	}

	// Encoded as an interface value so the worker's decodeCapture can
	// decode it into an `any` through the type the generated init()
	// registered.
	var captureBuf bytes.Buffer
	if err := gob.NewEncoder(&captureBuf).Encode(&sanitized); err != nil {
		defaultPoolInstance().Release(entry)
		return nil, fail(span, errs.Wrap(errs.CodePayloadNonClonable, "workerproc", "Dispatch", err))
	}

	jobID := uuid.NewString()
	span.SetAttributes(attribute.String("spawnkit.job_id", jobID))
	env := Envelope{
		JobID:        jobID,
		Signature:    sig,
		CaptureGob:   captureBuf.Bytes(),
		GlobalMemory: shmem.Default().Snapshot(),
	}

	resp, err := roundTrip(entry, env, files)
	defaultPoolInstance().Release(entry)
	if err != nil {
		return nil, fail(span, err)
	}
	if !resp.IsSuccess() {
		return nil, fail(span, resp.Err())
	}
	if len(resp.ResultGob) == 0 {
		return nil, nil
	}
	var out resultEnvelope
	if err := gob.NewDecoder(bytes.NewReader(resp.ResultGob)).Decode(&out); err != nil {
		return nil, fail(span, errs.Wrap(errs.CodeWorkerHost, "workerproc", "Dispatch", err))
	}
	return out.V, nil
}

// fail records err on span and returns it unchanged, so every Dispatch
// error path reports through the job span without repeating the
// RecordError/SetStatus pair at each return site.
func fail(span oteltrace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func roundTrip(entry *pool.Entry, env Envelope, files []*os.File) (Response, error) {
	if err := WriteEnvelope(entry.Stdin, env); err != nil {
		return Response{}, err
	}
	if err := sendFiles(entry.Control, files); err != nil {
		return Response{}, err
	}
	resp, err := ReadResponse(entry.Stdout)
	if err != nil {
		return Response{}, errs.Wrap(errs.CodeWorkerHost, "workerproc", "Dispatch", err)
	}
	return resp, nil
}

// filterCapture implements spec.md §4.F step 1's payload filter: it
// returns a copy of capture with every top-level *os.File/net.Conn
// field (collected separately as transferables, a net.Conn through its
// File method) zeroed out before gob encoding, and errors with
// CodePayloadNonClonable if any surviving field fails
// transfer.Clonable. Transferables nested below a top-level field are
// not collected and stay in place.
func filterCapture(capture any) (any, []*os.File, error) {
	transferables := transfer.Walk(capture)
	if len(transferables) == 0 {
		if !transfer.Clonable(capture) {
			return nil, nil, errs.New(errs.CodePayloadNonClonable, "workerproc", "filterCapture",
				fmt.Sprintf("capture of type %T is not clonable", capture))
		}
		return capture, nil, nil
	}

	rv := reflect.ValueOf(capture)
	if rv.Kind() != reflect.Struct {
		return nil, nil, errs.New(errs.CodePayloadNonClonable, "workerproc", "filterCapture",
			"capture payload with transferables must be a struct")
	}
	sanitized := reflect.New(rv.Type()).Elem()
	sanitized.Set(rv)

	var files []*os.File
	for _, t := range transferables {
		if len(t.Path) != 1 {
			continue // nested transferables aren't addressable on the top-level struct; left in place
		}
		field := sanitized.FieldByName(t.Path[0])
		if !field.IsValid() || !field.CanSet() {
			continue
		}
		switch v := t.Value.(type) {
		case *os.File:
			files = append(files, v)
		case interface{ File() (*os.File, error) }:
			f, err := v.File()
			if err != nil {
				return nil, nil, errs.Wrap(errs.CodePayloadNonClonable, "workerproc", "filterCapture", err)
			}
			files = append(files, f)
		default:
			return nil, nil, errs.New(errs.CodePayloadNonClonable, "workerproc", "filterCapture",
				fmt.Sprintf("transferable field %s has no file descriptor to pass", t.Path[0]))
		}
		field.Set(reflect.Zero(field.Type()))
	}

	if !transfer.Clonable(sanitized.Interface()) {
		return nil, nil, errs.New(errs.CodePayloadNonClonable, "workerproc", "filterCapture",
			fmt.Sprintf("capture of type %T is not clonable after removing transferables", capture))
	}
	return sanitized.Interface(), files, nil
}

// DefaultShutdown is spec.md §6's shutdown() exposed for the root
// package: it drains the worker pool and closes the shared-memory
// registry, matching the config-driven idle timeout and shm directory
// spawnkit.Init applied.
func DefaultShutdown(ctx context.Context) error {
	if err := defaultTracerInstance().Shutdown(ctx); err != nil {
		logger.WithError(err).Error("spawnkit: failed to shut down tracer")
	}
	if err := defaultPoolInstance().Shutdown(ctx); err != nil {
		return err
	}
	return shmem.Default().Close()
}

// Configure applies cfg to the process-wide pool, tracer, and
// shared-memory singletons; must be called before the first
// Dispatch/spawnkit.Spawn if the defaults (config.Default()) aren't
// desired.
func Configure(cfg *config.Config) {
	shmem.SetDefaultDir(cfg.SharedMem.Directory)
	defaultOnce.Do(func() {
		defaultPool = pool.New(logger,
			pool.WithIdleTimeout(cfg.Pool.IdleTimeout),
			pool.WithWarnMultiplier(cfg.Pool.HardwareConcurrencyX),
		)
		m, err := tracing.New(cfg.Tracing, logger)
		if err != nil {
			logger.WithError(err).Error("spawnkit: failed to initialize tracing, falling back to no-op")
			m, _ = tracing.New(config.TracingConfig{Enabled: false}, logger)
		}
		defaultTracer = m
	})
}
