// Package workerproc implements spec.md §4.F/§4.H's dispatch entry and
// worker entry: the request/response protocol carried over a worker
// subprocess's stdin/stdout pipes, and the Dispatch/workermain halves
// that drive it.
package workerproc

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"io"

	"github.com/golang/snappy"

	"spawnkit/internal/errs"
	"spawnkit/internal/shmem"
)

// defaultCompressionThreshold: gob payloads at or above this size are
// snappy-compressed before being framed onto the pipe, per the
// DOMAIN STACK's wiring of golang/snappy to this component.
const defaultCompressionThreshold = 8 * 1024

// Envelope is spec.md §6's caller→worker message: `{props,
// globalMemory}` plus a job id for log/trace correlation.
type Envelope struct {
	JobID        string
	Signature    string
	CaptureGob   []byte
	GlobalMemory map[string]shmem.Descriptor
}

// Outcome tags a Response as a REDESIGN-FLAGS sealed variant (SPEC_FULL
// "Sum types over tagged payloads") rather than a stringly "type"
// field: construction only happens through Success/Failure below.
type Outcome int

const (
	outcomeSuccess Outcome = iota
	outcomeFailure
)

// Response is spec.md §6's worker→caller message: `{type:"success",
// result}` or `{type:"error", error}`. Outcome must be exported for
// gob to carry it across the pipe; Success/Failure are nonetheless the
// only sanctioned constructors, keeping the two shapes exhaustive by
// convention the way a sealed variant would be enforced by the type
// system in a language that has one.
type Response struct {
	JobID     string
	Outcome   Outcome
	ResultGob []byte
	ErrMsg    string
}

// Success builds a successful Response carrying the gob-encoded result.
func Success(jobID string, resultGob []byte) Response {
	return Response{JobID: jobID, Outcome: outcomeSuccess, ResultGob: resultGob}
}

// Failure builds a failed Response carrying the cause's message —
// spec.md error kind 3 (worker job failure) or 4 (worker host error).
func Failure(jobID string, cause error) Response {
	return Response{JobID: jobID, Outcome: outcomeFailure, ErrMsg: cause.Error()}
}

// IsSuccess reports whether the response carries a result rather than
// an error.
func (r Response) IsSuccess() bool { return r.Outcome == outcomeSuccess }

// Err reconstructs an error from a failed Response, or nil for a
// successful one.
func (r Response) Err() error {
	if r.Outcome == outcomeSuccess {
		return nil
	}
	return errs.New(errs.CodeWorkerJobFailure, "workerproc", "Response", r.ErrMsg)
}

// frame writes v gob-encoded, snappy-compressing when the encoded form
// is at least threshold bytes, as a 4-byte big-endian length prefix
// (top bit set signals snappy) followed by the payload.
func frame(w io.Writer, v any, threshold int) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return errs.Wrap(errs.CodeWorkerHost, "workerproc", "frame", err)
	}
	payload := buf.Bytes()
	var flag uint32
	if len(payload) >= threshold {
		payload = snappy.Encode(nil, payload)
		flag = 1 << 31
	}
	if len(payload) > 0x7fffffff {
		return errs.New(errs.CodeWorkerHost, "workerproc", "frame", "payload too large to frame")
	}
	header := flag | uint32(len(payload))
	if err := binary.Write(w, binary.BigEndian, header); err != nil {
		return errs.Wrap(errs.CodeWorkerHost, "workerproc", "frame", err)
	}
	_, err := w.Write(payload)
	if err != nil {
		return errs.Wrap(errs.CodeWorkerHost, "workerproc", "frame", err)
	}
	return nil
}

// unframe reads one frame written by frame into v.
func unframe(r io.Reader, v any) error {
	var header uint32
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return errs.Wrap(errs.CodeWorkerHost, "workerproc", "unframe", err)
	}
	compressed := header&(1<<31) != 0
	size := header &^ (1 << 31)
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return errs.Wrap(errs.CodeWorkerHost, "workerproc", "unframe", err)
	}
	if compressed {
		decoded, err := snappy.Decode(nil, payload)
		if err != nil {
			return errs.Wrap(errs.CodeWorkerHost, "workerproc", "unframe", err)
		}
		payload = decoded
	}
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(v); err != nil {
		return errs.Wrap(errs.CodeWorkerHost, "workerproc", "unframe", err)
	}
	return nil
}

// WriteEnvelope frames env onto w.
func WriteEnvelope(w io.Writer, env Envelope) error {
	return frame(w, env, defaultCompressionThreshold)
}

// ReadEnvelope reads one framed Envelope from r.
func ReadEnvelope(r io.Reader) (Envelope, error) {
	var env Envelope
	err := unframe(r, &env)
	return env, err
}

// WriteResponse frames resp onto w.
func WriteResponse(w io.Writer, resp Response) error {
	return frame(w, resp, defaultCompressionThreshold)
}

// ReadResponse reads one framed Response from r.
func ReadResponse(r io.Reader) (Response, error) {
	var resp Response
	err := unframe(r, &resp)
	return resp, err
}
