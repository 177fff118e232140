package bundler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBundleMergesSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte(`package p

import "fmt"

var Shared = fmt.Sprintf("x")
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.go"), []byte(`package p

func Helper() int { return 1 }
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "zz_spawnkit_a.go"), []byte(`package p

var GeneratedShouldBeSkipped = 1
`), 0o644))

	u, err := Bundle(dir)
	require.NoError(t, err)

	assert.True(t, u.Resolvable("Shared"))
	assert.True(t, u.Resolvable("Helper"))
	assert.False(t, u.Resolvable("GeneratedShouldBeSkipped"), "generated files must be excluded from bundling")
	require.Len(t, u.Imports, 1)
	assert.Equal(t, `"fmt"`, u.Imports[0].Path)
}
