package workerproc

import (
	"bytes"
	"encoding/gob"
	"errors"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"spawnkit/internal/errs"
	"spawnkit/internal/registry"
	"spawnkit/internal/shmem"
	"spawnkit/internal/transfer"
)

// controlFD is the file descriptor exec.Cmd.ExtraFiles guarantees a
// worker's inherited control socket lands on — fd 3, immediately
// after stdin/stdout/stderr.
const controlFD = 3

// RunWorker is the `-spawnkit-worker=<sig>` entry point: it loops
// reading one Envelope at a time from stdin, dispatches each to the
// registered entry function for its signature, and writes one
// Response to stdout, until stdin closes (the parent pool evicted or
// terminated this subprocess). io.EOF at a frame boundary is the
// expected termination signal: RunWorker then returns nil, which the
// caller (cmd's worker-mode branch) treats as success.
func RunWorker() error {
	control := os.NewFile(controlFD, "spawnkit-ctl-worker")
	reg := shmem.Default()

	for {
		env, err := ReadEnvelope(os.Stdin)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		resp := handleEnvelope(reg, control, env)
		if err := WriteResponse(os.Stdout, resp); err != nil {
			return err
		}
	}
}

func handleEnvelope(reg *shmem.Registry, control *os.File, env Envelope) Response {
	if err := reg.Hydrate(env.GlobalMemory); err != nil {
		return Failure(env.JobID, err)
	}

	entry, ok := registry.Lookup(env.Signature)
	if !ok {
		return Failure(env.JobID, errs.New(errs.CodeWorkerJobFailure, "workerproc", "handleEnvelope",
			"no registered entry for signature "+env.Signature))
	}

	capture, err := decodeCapture(env.Signature, env.CaptureGob)
	if err != nil {
		return Failure(env.JobID, err)
	}

	result, err := entry(capture)
	if err != nil {
		return Failure(env.JobID, err)
	}

	files := collectResultFiles(result)
	if err := sendFiles(control, files); err != nil {
		logrus.WithError(err).Warn("spawnkit: worker failed to forward result transferables")
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(resultEnvelope{V: result}); err != nil {
		return Failure(env.JobID, errs.Wrap(errs.CodeWorkerJobFailure, "workerproc", "handleEnvelope", err))
	}
	return Success(env.JobID, buf.Bytes())
}

// decodeCapture gob-decodes env's capture bytes into an `any`; since
// gob can't decode into an interface without a registered concrete
// type, the generated entry's init() registers its own capture struct
// the moment the package loads, well before any envelope arrives.
func decodeCapture(signature string, captureGob []byte) (any, error) {
	var capture any
	if err := gob.NewDecoder(bytes.NewReader(captureGob)).Decode(&capture); err != nil {
		return nil, errs.Wrap(errs.CodeWorkerJobFailure, "workerproc", "decodeCapture", err)
	}
	return capture, nil
}

func collectResultFiles(result any) []*os.File {
	var files []*os.File
	for _, t := range transfer.Walk(result) {
		if f, ok := t.Value.(*os.File); ok {
			files = append(files, f)
		}
	}
	return files
}
