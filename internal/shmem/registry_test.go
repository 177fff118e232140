package shmem

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreateIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	r := NewRegistry(dir)
	defer r.Close()

	key := LocationKey("x.go", 10, 5, SubState)
	b1, err := r.GetOrCreate(key, 4)
	require.NoError(t, err)
	b2, err := r.GetOrCreate(key, 999) // size ignored on rebind
	require.NoError(t, err)
	assert.Same(t, b1, b2)
}

func TestHydrateSharesBackingMemoryAcrossRegistries(t *testing.T) {
	dir := t.TempDir()
	main := NewRegistry(dir)
	defer main.Close()

	key := LocationKey("x.go", 10, 5, SubState)
	b, err := main.GetOrCreate(key, 4)
	require.NoError(t, err)

	worker := NewRegistry(t.TempDir())
	defer worker.Close()
	require.NoError(t, worker.Hydrate(main.Snapshot()))

	wb, ok := worker.Get(key)
	require.True(t, ok)

	atomic.StoreInt32(b.Word32(0), 42)
	assert.Equal(t, int32(42), atomic.LoadInt32(wb.Word32(0)), "main and worker must observe the same backing memory")

	atomic.StoreInt32(wb.Word32(0), 7)
	assert.Equal(t, int32(7), atomic.LoadInt32(b.Word32(0)))
}

func TestAwaitRunsImmediatelyWhenAlreadyBound(t *testing.T) {
	dir := t.TempDir()
	r := NewRegistry(dir)
	defer r.Close()

	key := LocationKey("x.go", 1, 1, SubState)
	_, err := r.GetOrCreate(key, 4)
	require.NoError(t, err)

	called := false
	r.Await(key, func() { called = true })
	assert.True(t, called)
}

func TestAwaitParksUntilHydrate(t *testing.T) {
	dir := t.TempDir()
	main := NewRegistry(dir)
	defer main.Close()
	key := LocationKey("x.go", 1, 1, SubState)
	_, err := main.GetOrCreate(key, 4)
	require.NoError(t, err)

	worker := NewRegistry(t.TempDir())
	defer worker.Close()

	called := false
	worker.Await(key, func() { called = true })
	assert.False(t, called, "must park until hydration")

	require.NoError(t, worker.Hydrate(main.Snapshot()))
	assert.True(t, called)
}
