package workerproc

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spawnkit/internal/shmem"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	env := Envelope{
		JobID:      "job-1",
		Signature:  "sig-1",
		CaptureGob: []byte{1, 2, 3},
		GlobalMemory: map[string]shmem.Descriptor{
			"x.go:1:1::state": {Path: "/tmp/a.shm", Size: 4},
		},
	}
	require.NoError(t, WriteEnvelope(&buf, env))

	got, err := ReadEnvelope(&buf)
	require.NoError(t, err)
	assert.Equal(t, env, got)
}

func TestResponseRoundTripSuccess(t *testing.T) {
	var buf bytes.Buffer
	resp := Success("job-1", []byte{9, 9})
	require.NoError(t, WriteResponse(&buf, resp))

	got, err := ReadResponse(&buf)
	require.NoError(t, err)
	assert.True(t, got.IsSuccess())
	assert.Equal(t, resp.ResultGob, got.ResultGob)
	assert.NoError(t, got.Err())
}

func TestResponseRoundTripFailure(t *testing.T) {
	var buf bytes.Buffer
	cause := assertError{"boom"}
	resp := Failure("job-1", cause)
	require.NoError(t, WriteResponse(&buf, resp))

	got, err := ReadResponse(&buf)
	require.NoError(t, err)
	assert.False(t, got.IsSuccess())
	require.Error(t, got.Err())
	assert.Contains(t, got.Err().Error(), "boom")
}

func TestFrameCompressesLargePayloads(t *testing.T) {
	var buf bytes.Buffer
	env := Envelope{JobID: "job-1", CaptureGob: bytes.Repeat([]byte{7}, 16*1024)}
	require.NoError(t, WriteEnvelope(&buf, env))
	assert.NotZero(t, buf.Bytes()[0]&0x80, "a 16 KiB payload must carry the snappy flag bit in its length header")

	got, err := ReadEnvelope(&buf)
	require.NoError(t, err)
	assert.Equal(t, env.CaptureGob, got.CaptureGob)
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }
