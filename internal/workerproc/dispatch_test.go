package workerproc

import (
	"bytes"
	"encoding/gob"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type plainCapture struct {
	N int
	S string
}

type fileCapture struct {
	N    int
	File *os.File
}

type namedResult struct {
	Total int
}

func TestFilterCapturePassesThroughPlainValues(t *testing.T) {
	sanitized, files, err := filterCapture(plainCapture{N: 1, S: "x"})
	require.NoError(t, err)
	assert.Nil(t, files)
	assert.Equal(t, plainCapture{N: 1, S: "x"}, sanitized)
}

func TestFilterCaptureZeroesTopLevelFileField(t *testing.T) {
	tmp, err := os.CreateTemp(t.TempDir(), "cap")
	require.NoError(t, err)
	defer tmp.Close()

	sanitized, files, err := filterCapture(fileCapture{N: 7, File: tmp})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Same(t, tmp, files[0])

	got, ok := sanitized.(fileCapture)
	require.True(t, ok)
	assert.Equal(t, 7, got.N)
	assert.Nil(t, got.File, "transferable field must be zeroed before gob encoding")
}

func TestFilterCaptureRejectsNonStructWithTransferables(t *testing.T) {
	tmp, err := os.CreateTemp(t.TempDir(), "cap")
	require.NoError(t, err)
	defer tmp.Close()

	_, _, err = filterCapture(tmp)
	assert.Error(t, err)
}

func TestFilterCaptureSanitizedValueGobEncodes(t *testing.T) {
	tmp, err := os.CreateTemp(t.TempDir(), "cap")
	require.NoError(t, err)
	defer tmp.Close()

	sanitized, _, err := filterCapture(fileCapture{N: 1, File: tmp})
	require.NoError(t, err)

	var buf bytes.Buffer
	assert.NoError(t, gob.NewEncoder(&buf).Encode(sanitized))
}

func TestRegisterResultTypeAllowsInterfaceRoundTrip(t *testing.T) {
	RegisterResultType(namedResult{})

	var buf bytes.Buffer
	require.NoError(t, gob.NewEncoder(&buf).Encode(resultEnvelope{V: namedResult{Total: 42}}))

	var out resultEnvelope
	require.NoError(t, gob.NewDecoder(&buf).Decode(&out))
	assert.Equal(t, namedResult{Total: 42}, out.V)
}

func TestResultEnvelopeRoundTripsNil(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, gob.NewEncoder(&buf).Encode(resultEnvelope{V: nil}))

	var out resultEnvelope
	require.NoError(t, gob.NewDecoder(&buf).Decode(&out))
	assert.Nil(t, out.V)
}
