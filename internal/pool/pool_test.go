package pool

import (
	"context"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMain doubles as the fake worker subprocess: when the test binary
// is re-exec'd with a "-spawnkit-worker=" argument (exactly how
// Pool.spawn launches a real worker), it drains stdin until the parent
// closes the pipe and exits cleanly, instead of running the test suite
// again. This is the standard os/exec self-re-exec test technique.
func TestMain(m *testing.M) {
	for _, arg := range os.Args[1:] {
		if strings.HasPrefix(arg, "-spawnkit-worker=") {
			_, _ = io.Copy(io.Discard, os.Stdin)
			os.Exit(0)
		}
	}
	os.Exit(m.Run())
}

func testPool(t *testing.T, opts ...Option) *Pool {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return New(logger, opts...)
}

func TestGetSpawnsThenReusesIdleEntry(t *testing.T) {
	p := testPool(t)
	defer func() { require.NoError(t, p.Shutdown(context.Background())) }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	e1, err := p.Get(ctx, "sig-a")
	require.NoError(t, err)
	assert.Equal(t, 1, p.ActiveCount())

	p.Release(e1)
	e2, err := p.Get(ctx, "sig-a")
	require.NoError(t, err)
	assert.Same(t, e1, e2, "a released entry must be reused instead of spawning another")
	assert.Equal(t, 1, p.ActiveCount())

	p.Release(e2)
}

func TestGetSpawnsSeparateEntriesForDistinctSignatures(t *testing.T) {
	p := testPool(t)
	defer func() { require.NoError(t, p.Shutdown(context.Background())) }()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	e1, err := p.Get(ctx, "sig-a")
	require.NoError(t, err)
	e2, err := p.Get(ctx, "sig-b")
	require.NoError(t, err)
	assert.NotSame(t, e1, e2)
	assert.Equal(t, 2, p.ActiveCount())

	p.Release(e1)
	p.Release(e2)
}

func TestIdleEvictionRemovesEntryAfterTimeout(t *testing.T) {
	p := testPool(t, WithIdleTimeout(20*time.Millisecond))
	defer func() { require.NoError(t, p.Shutdown(context.Background())) }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	e1, err := p.Get(ctx, "sig-a")
	require.NoError(t, err)
	p.Release(e1)

	require.Eventually(t, func() bool {
		return p.ActiveCount() == 0
	}, time.Second, 5*time.Millisecond)

	e2, err := p.Get(ctx, "sig-a")
	require.NoError(t, err)
	assert.NotSame(t, e1, e2, "eviction must force a fresh worker for the next job")
	p.Release(e2)
}

func TestShutdownTerminatesEveryWorkerAndZeroesCounts(t *testing.T) {
	p := testPool(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	e1, err := p.Get(ctx, "sig-a")
	require.NoError(t, err)
	e2, err := p.Get(ctx, "sig-b")
	require.NoError(t, err)
	p.Release(e1)
	p.Release(e2)

	require.NoError(t, p.Shutdown(ctx))
	assert.Equal(t, 0, p.ActiveCount())

	_, err = p.Get(ctx, "sig-a")
	assert.Error(t, err, "a shut-down pool must refuse new work")
}
