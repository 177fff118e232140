package source

import (
	"go/token"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCachesByPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.go")
	require.NoError(t, os.WriteFile(path, []byte("package x\n\nvar N = 1\n"), 0o644))

	c := NewCache()
	u1, err := c.Parse(path)
	require.NoError(t, err)
	u2, err := c.Parse(path)
	require.NoError(t, err)
	assert.Same(t, u1, u2, "second Parse of the same path must return the cached unit")
}

func TestParseDoesNotSeeEditsWithoutInvalidate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.go")
	require.NoError(t, os.WriteFile(path, []byte("package x\n\nvar N = 1\n"), 0o644))

	c := NewCache()
	_, err := c.Parse(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("package x\n\nvar N = 2\nvar M = 3\n"), 0o644))

	u2, err := c.Parse(path)
	require.NoError(t, err)
	assert.Len(t, u2.File.Decls, 1, "cache must not reflect the on-disk edit until Invalidate is called")

	c.Invalidate(path)
	u3, err := c.Parse(path)
	require.NoError(t, err)
	assert.Len(t, u3.File.Decls, 2)
}

func TestNewCacheWithFileSetSharesPositionsAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.go")
	pathB := filepath.Join(dir, "b.go")
	require.NoError(t, os.WriteFile(pathA, []byte("package x\n\nvar A = 1\n"), 0o644))
	require.NoError(t, os.WriteFile(pathB, []byte("package x\n\nvar B = 2\n"), 0o644))

	fset := token.NewFileSet()
	c := NewCacheWithFileSet(fset)

	uA, err := c.Parse(pathA)
	require.NoError(t, err)
	uB, err := c.Parse(pathB)
	require.NoError(t, err)

	assert.Same(t, fset, uA.FSet)
	assert.Same(t, fset, uB.FSet)
	assert.Equal(t, "a.go", filepath.Base(fset.Position(uA.File.Package).Filename))
	assert.Equal(t, "b.go", filepath.Base(fset.Position(uB.File.Package).Filename))
}
