// Package source parses caller Go files with go/parser and memoizes
// the result by absolute path, per spec.md §4.B. go/parser, go/ast and
// go/token are the Go-native realization of spec.md §1's explicitly
// out-of-scope "source-language compiler API" — this is the one
// package in spawnkit that is deliberately standard-library-only.
package source

import (
	"go/ast"
	"go/parser"
	"go/token"
	"sync"

	"spawnkit/internal/errs"
)

// Unit is one parsed file plus the FileSet needed to translate its
// node positions back into line/column pairs.
type Unit struct {
	FSet *token.FileSet
	File *ast.File
	Path string
}

// Cache never invalidates entries: spawnkit targets a generate-then-
// build workflow, not a live-reloading server, so source mutation
// between generate runs is an explicit non-goal (spec.md §4.B).
type Cache struct {
	mu      sync.Mutex
	fset    *token.FileSet
	entries map[string]*Unit
}

// NewCache returns an empty, ready-to-use Cache with its own
// FileSet — the right choice when the caller only ever needs one file
// at a time resolved back to line/column pairs independently.
func NewCache() *Cache {
	return &Cache{fset: token.NewFileSet(), entries: make(map[string]*Unit)}
}

// NewCacheWithFileSet returns a Cache that parses every file into the
// given, shared FileSet, for callers (cmd/spawnkit-gen, by way of
// internal/bundler) that need every parsed file's positions
// comparable against one another.
func NewCacheWithFileSet(fset *token.FileSet) *Cache {
	return &Cache{fset: fset, entries: make(map[string]*Unit)}
}

// Parse returns the cached Unit for path, parsing it on first use; a
// later Parse of the same path on the same Cache returns that Unit
// without parsing again. internal/bundler creates a fresh Cache per
// Bundle call, so parses are not shared between Bundle calls.
func (c *Cache) Parse(path string) (*Unit, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if u, ok := c.entries[path]; ok {
		return u, nil
	}

	f, err := parser.ParseFile(c.fset, path, nil, parser.ParseComments|parser.AllErrors)
	if err != nil {
		return nil, errs.Wrap(errs.CodeCaptureResolution, "source", "Parse", err)
	}

	u := &Unit{FSet: c.fset, File: f, Path: path}
	c.entries[path] = u
	return u, nil
}

// Invalidate drops a cached entry, used only by tests that need to
// re-parse a file after rewriting it on disk.
func (c *Cache) Invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, path)
}
