package scope

import (
	"go/parser"
	"go/token"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spawnkit/internal/callsite"
)

const sample = `package sample

import "fmt"

var Shared = 10

func Outer(param int) {
	local := param + 1
	spawnkit.Spawn(func() {
		x := local + Shared
		fmt.Println(x, param)
	})
}
`

func TestAnalyzePartitionsLocalsAndTopLevels(t *testing.T) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "sample.go", sample, 0)
	require.NoError(t, err)

	calls, sites, err := callsite.Locate(fset, file, "spawnkit", "Spawn")
	require.NoError(t, err)
	require.Len(t, calls, 1)

	a := NewAnalyzer()
	d, err := a.Analyze(fset, file, sites[0], calls[0])
	require.NoError(t, err)

	names := func(cs []Capture) []string {
		out := make([]string, len(cs))
		for i, c := range cs {
			out[i] = c.Name
		}
		return out
	}

	assert.ElementsMatch(t, []string{"local", "param"}, names(d.Locals))
	assert.ElementsMatch(t, []string{"Shared", "fmt"}, names(d.TopLevels))
}

func TestAnalyzeIsCachedByCallSite(t *testing.T) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "sample.go", sample, 0)
	require.NoError(t, err)

	calls, sites, err := callsite.Locate(fset, file, "spawnkit", "Spawn")
	require.NoError(t, err)

	a := NewAnalyzer()
	d1, err := a.Analyze(fset, file, sites[0], calls[0])
	require.NoError(t, err)
	d2, err := a.Analyze(fset, file, sites[0], calls[0])
	require.NoError(t, err)
	assert.Same(t, d1, d2)
}

func TestAnalyzeIgnoresBindingsInsideTheClosure(t *testing.T) {
	src := `package sample

func Outer() {
	spawnkit.Spawn(func() {
		y := 1
		_ = y
	})
}
`
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "sample.go", src, 0)
	require.NoError(t, err)

	calls, sites, err := callsite.Locate(fset, file, "spawnkit", "Spawn")
	require.NoError(t, err)

	a := NewAnalyzer()
	d, err := a.Analyze(fset, file, sites[0], calls[0])
	require.NoError(t, err)
	assert.Empty(t, d.Locals)
	assert.Empty(t, d.TopLevels)
}
