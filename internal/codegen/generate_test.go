package codegen

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSource = `package sample

import "spawnkit"

var shared = 0

func runIt(n int) {
	local := n * 2
	spawnkit.Spawn(func() (any, error) {
		return local + shared, nil
	})
}
`

func writeSample(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sample.go"), []byte(sampleSource), 0o644))
	return dir
}

func TestGenerateWritesRewrittenFileAndCompanion(t *testing.T) {
	dir := writeSample(t)

	written, err := Generate(dir)
	require.NoError(t, err)
	require.Len(t, written, 2)

	rewritten, err := os.ReadFile(filepath.Join(dir, "sample.go"))
	require.NoError(t, err)
	assert.Contains(t, string(rewritten), "spawnkit.Dispatch(")
	assert.NotContains(t, string(rewritten), "spawnkit.Spawn(")

	companionPath := filepath.Join(dir, "zz_spawnkit_sample.go")
	companion, err := os.ReadFile(companionPath)
	require.NoError(t, err)
	content := string(companion)
	assert.Contains(t, content, "spawnkit_Capture_")
	assert.Contains(t, content, "spawnkit_Entry_")
	assert.Contains(t, content, "spawnkit.Register(")
	assert.Contains(t, content, "spawnkit.RegisterResultType(")
	assert.Contains(t, content, "\"spawnkit\"")
	assert.NotContains(t, content, "spawnkit/internal", "generated code lives outside this module and must never import an internal package")
	assert.NotContains(t, content, "encoding/gob")
	assert.Contains(t, content, "c.Local + c.Shared")
	assert.Contains(t, string(rewritten), "Local: local")
	assert.Contains(t, string(rewritten), "Shared: shared")
}

func TestGenerateSkipsFilesWithNoSpawnCalls(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plain.go"), []byte("package sample\n\nfunc noop() {}\n"), 0o644))

	written, err := Generate(dir)
	require.NoError(t, err)
	assert.Empty(t, written)
}

func TestGenerateIsIdempotentOnRerun(t *testing.T) {
	dir := writeSample(t)

	_, err := Generate(dir)
	require.NoError(t, err)

	// A second run over the already-rewritten file finds no remaining
	// spawnkit.Spawn call sites and must not fold the companion file's
	// own output back into itself.
	written, err := Generate(dir)
	require.NoError(t, err)
	assert.Empty(t, written)
}
