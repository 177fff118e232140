package workerproc

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func socketPair(t *testing.T) (a, b *os.File) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	a = os.NewFile(uintptr(fds[0]), "a")
	b = os.NewFile(uintptr(fds[1]), "b")
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a, b
}

func TestSendFilesNoopOnEmpty(t *testing.T) {
	a, _ := socketPair(t)
	assert.NoError(t, sendFiles(a, nil))
}

func TestRecvFilesNoopOnZero(t *testing.T) {
	a, _ := socketPair(t)
	files, err := recvFiles(a, 0)
	require.NoError(t, err)
	assert.Nil(t, files)
}

func TestSendFilesRoundTripsOneFD(t *testing.T) {
	parent, child := socketPair(t)

	tmp, err := os.CreateTemp(t.TempDir(), "transferable")
	require.NoError(t, err)
	defer tmp.Close()
	_, err = tmp.WriteString("payload")
	require.NoError(t, err)

	done := make(chan error, 1)
	var received []*os.File
	go func() {
		var recvErr error
		received, recvErr = recvFiles(child, 1)
		done <- recvErr
	}()

	require.NoError(t, sendFiles(parent, []*os.File{tmp}))
	require.NoError(t, <-done)

	require.Len(t, received, 1)
	defer received[0].Close()

	buf := make([]byte, len("payload"))
	_, err = received[0].ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(buf))
}

func TestSendFilesRoundTripsMultipleFDs(t *testing.T) {
	parent, child := socketPair(t)

	var tmps []*os.File
	for i := 0; i < 3; i++ {
		f, err := os.CreateTemp(t.TempDir(), "transferable")
		require.NoError(t, err)
		defer f.Close()
		tmps = append(tmps, f)
	}

	done := make(chan error, 1)
	var received []*os.File
	go func() {
		var recvErr error
		received, recvErr = recvFiles(child, len(tmps))
		done <- recvErr
	}()

	require.NoError(t, sendFiles(parent, tmps))
	require.NoError(t, <-done)
	assert.Len(t, received, len(tmps))
	for _, f := range received {
		f.Close()
	}
}
