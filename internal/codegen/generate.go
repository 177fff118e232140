// Package codegen implements spec.md §4.E's bridge emitter: the
// go:generate-time pass that gives Go a stand-in for the original
// design's runtime closure capture. It locates every spawnkit.Spawn
// call site in a package, uses internal/scope to work out which
// identifiers the function literal closes over, and emits a plain Go
// function plus a capture struct that carries those values across the
// process boundary — then rewrites the call site to build that struct
// and hand it to spawnkit.Dispatch instead.
package codegen

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/format"
	"go/token"
	"os"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"

	"spawnkit/internal/bundler"
	"spawnkit/internal/callsite"
	"spawnkit/internal/errs"
	"spawnkit/internal/scope"
)

const generatedPrefix = "zz_spawnkit_"

// Generate processes every non-generated .go file in pkgDir: it
// rewrites each spawnkit.Spawn call site found and writes one
// companion zz_spawnkit_<file>.go per source file that had at least
// one call site. It returns the paths written (both the rewritten
// originals and the new companions).
func Generate(pkgDir string) ([]string, error) {
	unit, err := bundler.Bundle(pkgDir)
	if err != nil {
		return nil, err
	}

	analyzer := scope.NewAnalyzer()
	var written []string

	for _, file := range unit.Files {
		calls, sites, err := callsite.Locate(unit.FSet, file, "spawnkit", "Spawn")
		if err != nil {
			continue // no call sites in this file, nothing to generate
		}

		filename := unit.FSet.Position(file.Pos()).Filename
		pkgName := file.Name.Name

		var generated []genUnit
		for i, call := range calls {
			site := sites[i]
			descriptor, err := analyzer.Analyze(unit.FSet, file, site, call)
			if err != nil {
				return nil, err
			}
			lit, err := callsite.FuncLitArg(call)
			if err != nil {
				return nil, err
			}

			sig := signature(site)
			gu, err := buildGenUnit(sig, descriptor, lit)
			if err != nil {
				return nil, err
			}
			generated = append(generated, gu)

			rewriteCallSite(call, sig, gu.structName, descriptor)
		}

		if len(generated) == 0 {
			continue
		}

		out, err := formatFile(unit.FSet, file)
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(filename, out, 0o644); err != nil {
			return nil, errs.Wrap(errs.CodeGeneration, "codegen", "Generate", err)
		}
		written = append(written, filename)

		companionPath := filepath.Join(pkgDir, generatedPrefix+filepath.Base(filename))
		companion := renderCompanion(pkgName, unit, generated)
		if err := os.WriteFile(companionPath, companion, 0o644); err != nil {
			return nil, errs.Wrap(errs.CodeGeneration, "codegen", "Generate", err)
		}
		written = append(written, companionPath)
	}

	return written, nil
}

// signature derives the deterministic per-call-site worker signature
// spec.md §4.E names: a fixed-width hash of the call site's location
// key, the Go analogue of hashing the call site into a ".workers/<hash>"
// path.
func signature(site callsite.Site) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(site.Key()))
}

// genUnit holds the rendered pieces of one generated entry: the
// capture struct, the entry function, and its init() registration.
type genUnit struct {
	structName string
	source     string
}

func buildGenUnit(sig string, d *scope.Descriptor, lit *ast.FuncLit) (genUnit, error) {
	structName := "spawnkit_Capture_" + sig
	entryName := "spawnkit_Entry_" + sig
	receiver := "c"

	fieldNames := make(map[string]string) // original identifier -> exported field name
	var fields []scope.Capture
	for _, c := range append(append([]scope.Capture{}, d.Locals...), d.TopLevels...) {
		fieldNames[c.Name] = exportName(c.Name)
		fields = append(fields, c)
	}

	body := lit.Body
	rewriteCaptures(body, fieldNames, receiver)

	var buf bytes.Buffer
	buf.WriteString("type " + structName + " struct {\n")
	for _, f := range fields {
		typ := f.TypeText
		if typ == "" {
			typ = "any"
		}
		buf.WriteString("\t" + fieldNames[f.Name] + " " + typ + "\n")
	}
	buf.WriteString("}\n\n")

	buf.WriteString("func " + entryName + "(" + receiver + " " + structName + ") (any, error) {\n")
	if err := writeStmts(&buf, body); err != nil {
		return genUnit{}, err
	}
	buf.WriteString("\n}\n\n")

	buf.WriteString("func init() {\n")
	buf.WriteString("\tspawnkit.RegisterResultType(" + structName + "{})\n")
	buf.WriteString("\tspawnkit.Register(\"" + sig + "\", func(capture any) (any, error) {\n")
	buf.WriteString("\t\treturn " + entryName + "(capture.(" + structName + "))\n")
	buf.WriteString("\t})\n")
	buf.WriteString("}\n")

	return genUnit{structName: structName, source: buf.String()}, nil
}

// writeStmts renders body's statements (without the enclosing braces)
// using go/format so the emitted entry function reads like
// hand-written source rather than a single-line dump.
func writeStmts(buf *bytes.Buffer, body *ast.BlockStmt) error {
	fset := token.NewFileSet()
	for _, stmt := range body.List {
		var sb bytes.Buffer
		if err := format.Node(&sb, fset, stmt); err != nil {
			return errs.Wrap(errs.CodeGeneration, "codegen", "writeStmts", err)
		}
		buf.WriteString(sb.String())
		buf.WriteString("\n")
	}
	return nil
}

// rewriteCallSite mutates call in place, turning
// spawnkit.Spawn(func(...){...}) into
// spawnkit.Dispatch("<sig>", structName{Field: field, ...}).
// Each key is the capture's exported field name and each value is the
// original identifier, still spelled as the outer scope declares it.
func rewriteCallSite(call *ast.CallExpr, sig, structName string, d *scope.Descriptor) {
	call.Fun = &ast.SelectorExpr{X: ast.NewIdent("spawnkit"), Sel: ast.NewIdent("Dispatch")}

	var elts []ast.Expr
	for _, c := range append(append([]scope.Capture{}, d.Locals...), d.TopLevels...) {
		elts = append(elts, &ast.KeyValueExpr{
			Key:   ast.NewIdent(exportName(c.Name)),
			Value: ast.NewIdent(c.Name), // outer scope still spells it lowercase
		})
	}

	call.Args = []ast.Expr{
		&ast.BasicLit{Kind: token.STRING, Value: `"` + sig + `"`},
		&ast.CompositeLit{Type: ast.NewIdent(structName), Elts: elts},
	}
}

// exportName promotes a captured identifier's spelling to an exported
// struct field name: gob (and every reflection-based encoder spawnkit
// relies on) only ever sees exported fields, but most local variable
// names in idiomatic Go start lowercase.
func exportName(name string) string {
	r := []rune(name)
	if len(r) == 0 {
		return name
	}
	r[0] = []rune(strings.ToUpper(string(r[0])))[0]
	return string(r)
}

func formatFile(fset *token.FileSet, file *ast.File) ([]byte, error) {
	var buf bytes.Buffer
	if err := format.Node(&buf, fset, file); err != nil {
		return nil, errs.Wrap(errs.CodeGeneration, "codegen", "formatFile", err)
	}
	return buf.Bytes(), nil
}

// renderCompanion assembles the zz_spawnkit_<file>.go source: package
// clause, the public spawnkit import generated init()s register
// through (Register/RegisterResultType — spawnkit's own internal
// packages aren't importable from another module), the source
// package's own import block, and every generated unit in call-site
// order.
func renderCompanion(pkgName string, unit *bundler.Unit, units []genUnit) []byte {
	var buf bytes.Buffer
	buf.WriteString("// Code generated by cmd/spawnkit-gen. DO NOT EDIT.\n\n")
	buf.WriteString("package " + pkgName + "\n\n")

	buf.WriteString("import (\n")
	buf.WriteString("\t\"spawnkit\"\n")
	for _, imp := range unit.Imports {
		path := strings.Trim(imp.Path, `"`)
		if path == "spawnkit" {
			continue
		}
		if imp.Alias != "" {
			buf.WriteString("\t" + imp.Alias + " \"" + path + "\"\n")
		} else {
			buf.WriteString("\t\"" + path + "\"\n")
		}
	}
	buf.WriteString(")\n\n")

	for _, u := range units {
		buf.WriteString(u.source)
		buf.WriteString("\n")
	}

	return buf.Bytes()
}
