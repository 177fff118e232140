package transfer

import (
	"net"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spawnkit/internal/shmem"
)

func TestWalkCollectsFilesAndConns(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "transfer")
	require.NoError(t, err)
	defer f.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	payload := struct {
		File *os.File
		Conn net.Conn
		N    int
	}{File: f, Conn: conn, N: 7}

	found := Walk(payload)
	require.Len(t, found, 2)
}

func TestWalkExcludesSharedBuffers(t *testing.T) {
	reg := shmem.NewRegistry(t.TempDir())
	defer reg.Close()
	buf, err := reg.GetOrCreate("k", 4)
	require.NoError(t, err)

	payload := struct {
		Shared *shmem.Buffer
		N      int
	}{Shared: buf, N: 1}

	assert.Empty(t, Walk(payload))
}

func TestWalkIsCycleSafe(t *testing.T) {
	type node struct {
		Next *node
		N    int
	}
	a := &node{N: 1}
	b := &node{N: 2, Next: a}
	a.Next = b

	assert.NotPanics(t, func() { Walk(a) })
}

func TestWalkIdempotentOverItsOwnOutput(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "transfer")
	require.NoError(t, err)
	defer f.Close()

	first := Walk(f)
	require.Len(t, first, 1)

	values := make([]any, len(first))
	for i, tr := range first {
		values[i] = tr.Value
	}
	second := Walk(values)
	assert.Equal(t, len(first), len(second))
}

func TestClonablePrimitivesAndAggregates(t *testing.T) {
	assert.True(t, Clonable(nil))
	assert.True(t, Clonable(42))
	assert.True(t, Clonable("hi"))
	assert.True(t, Clonable([]int{1, 2, 3}))
	assert.True(t, Clonable(map[string]int{"a": 1}))
}

func TestClonableRejectsFunctionsAndChannels(t *testing.T) {
	assert.False(t, Clonable(func() {}))
	assert.False(t, Clonable(make(chan int)))
}

func TestClonableAcceptsSharedBufferAndTransferables(t *testing.T) {
	reg := shmem.NewRegistry(t.TempDir())
	defer reg.Close()
	buf, err := reg.GetOrCreate("k", 4)
	require.NoError(t, err)
	assert.True(t, Clonable(buf))

	f, err := os.CreateTemp(t.TempDir(), "transfer")
	require.NoError(t, err)
	defer f.Close()
	assert.True(t, Clonable(f))
}
