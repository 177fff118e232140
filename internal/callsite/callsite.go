// Package callsite identifies the textual position of a spawnkit.Spawn
// (or global.New) invocation, the Go analogue of spec.md §4.A's
// synthetic-stack-trace locator. Because spawnkit resolves call sites
// at go:generate time rather than at run time, locating one is a pure
// AST query over an already-parsed file rather than a raised panic.
package callsite

import (
	"fmt"
	"go/ast"
	"go/token"

	"spawnkit/internal/errs"
)

// Site is the immutable (file, line, column) triple spec.md §3 names
// "call site".
type Site struct {
	File   string
	Line   int
	Column int
}

// Key returns the stable string used to index scope descriptors and
// worker signatures: "<file>:<line>:<col>".
func (s Site) Key() string {
	return fmt.Sprintf("%s:%d:%d", s.File, s.Line, s.Column)
}

func (s Site) String() string { return s.Key() }

// Locate finds every call in file whose callee selector matches
// calleePkg.calleeName (e.g. "spawnkit", "Spawn") and returns, for
// each, the call expression and its Site. Multiple call sites are
// expected per file; spawnkit-gen processes all of them.
func Locate(fset *token.FileSet, file *ast.File, calleePkg, calleeName string) ([]*ast.CallExpr, []Site, error) {
	var calls []*ast.CallExpr
	var sites []Site

	ast.Inspect(file, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		sel, ok := call.Fun.(*ast.SelectorExpr)
		if !ok {
			return true
		}
		pkgIdent, ok := sel.X.(*ast.Ident)
		if !ok || pkgIdent.Name != calleePkg || sel.Sel.Name != calleeName {
			return true
		}
		pos := fset.Position(call.Lparen)
		calls = append(calls, call)
		sites = append(sites, Site{File: pos.Filename, Line: pos.Line, Column: pos.Column})
		return true
	})

	if len(calls) == 0 {
		return nil, nil, errs.New(errs.CodeCaptureResolution, "callsite", "Locate",
			fmt.Sprintf("no %s.%s call sites found", calleePkg, calleeName))
	}
	return calls, sites, nil
}

// FuncLitArg extracts the sole function-literal argument of a call,
// per spec.md §4.C's requirement that the first argument to spawn be a
// function-like node.
func FuncLitArg(call *ast.CallExpr) (*ast.FuncLit, error) {
	if len(call.Args) == 0 {
		return nil, errs.New(errs.CodeCaptureResolution, "callsite", "FuncLitArg", "spawn call has no arguments")
	}
	lit, ok := call.Args[0].(*ast.FuncLit)
	if !ok {
		return nil, errs.New(errs.CodeCaptureResolution, "callsite", "FuncLitArg",
			"spawn's first argument is not a function literal locatable in source")
	}
	return lit, nil
}
