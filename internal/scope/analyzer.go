// Package scope implements spec.md §4.C's scope analyzer against Go's
// AST: given the function literal passed to spawnkit.Spawn (or
// global.New), it partitions every identifier the literal references
// as a value into locals (bound by an enclosing function/block between
// the literal and the file) and topLevels (bound at package scope),
// exactly mirroring the JS-oriented algorithm in spec.md but walking
// go/ast nodes instead of a JS parser's tree.
package scope

import (
	"go/ast"
	"go/format"
	"go/token"
	"sync"

	"spawnkit/internal/callsite"
	"spawnkit/internal/errs"
)

// Capture is one free identifier, with its statically inferred type
// text when the analyzer could determine one from its declaration
// site, falling back to "" (codegen then emits `interface{}`).
type Capture struct {
	Name     string
	TypeText string
}

// Descriptor is spec.md §3's "scope descriptor": two disjoint,
// order-preserving sets of capture names for one call site.
type Descriptor struct {
	Locals    []Capture
	TopLevels []Capture
}

// frame is one lexical scope's bindings, name -> declared type (nil if
// unknown/unannotated).
type frame map[string]ast.Expr

// Analyzer caches descriptors by call-site key, per spec.md §4.C.
type Analyzer struct {
	mu    sync.Mutex
	cache map[string]*Descriptor
}

// NewAnalyzer returns an empty Analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{cache: make(map[string]*Descriptor)}
}

// Analyze returns the scope descriptor for the function literal
// targeted by call, which must live in file. Results are cached under
// site.Key().
func (a *Analyzer) Analyze(fset *token.FileSet, file *ast.File, site callsite.Site, call *ast.CallExpr) (*Descriptor, error) {
	key := site.Key()

	a.mu.Lock()
	if d, ok := a.cache[key]; ok {
		a.mu.Unlock()
		return d, nil
	}
	a.mu.Unlock()

	lit, err := callsite.FuncLitArg(call)
	if err != nil {
		return nil, err
	}

	d, err := analyze(fset, file, lit)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.cache[key] = d
	a.mu.Unlock()
	return d, nil
}

func analyze(fset *token.FileSet, file *ast.File, target *ast.FuncLit) (*Descriptor, error) {
	w := &walker{
		fset:        fset,
		target:      target,
		frames:      []frame{fileFrame(file)},
		seenLocal:   make(map[string]bool),
		seenTop:     make(map[string]bool),
		descriptor:  &Descriptor{},
	}
	ast.Walk(w, file)

	if !w.foundTarget {
		return nil, errs.New(errs.CodeCaptureResolution, "scope", "Analyze",
			"function literal not locatable in source for the recorded call site")
	}
	return w.descriptor, nil
}

// fileFrame seeds the file-scope frame with every package-level
// binding: imports, var/const names, func names, type names.
func fileFrame(file *ast.File) frame {
	f := make(frame)
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			if d.Recv == nil { // plain function, not a method
				f[d.Name.Name] = d.Type
			}
		case *ast.GenDecl:
			for _, spec := range d.Specs {
				switch s := spec.(type) {
				case *ast.ImportSpec:
					f[importLocalName(s)] = nil
				case *ast.ValueSpec:
					for _, n := range s.Names {
						if n.Name != "_" {
							f[n.Name] = s.Type
						}
					}
				case *ast.TypeSpec:
					f[s.Name.Name] = nil
				}
			}
		}
	}
	return f
}

func importLocalName(s *ast.ImportSpec) string {
	if s.Name != nil {
		return s.Name.Name
	}
	path := s.Path.Value
	// strip quotes and take the last path segment.
	path = path[1 : len(path)-1]
	last := path
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			last = path[i+1:]
			break
		}
	}
	return last
}

type walker struct {
	fset        *token.FileSet
	target      *ast.FuncLit
	frames      []frame
	insideTarget bool
	foundTarget  bool
	targetDepth  int // index of the target literal's parameter frame
	seenLocal   map[string]bool
	seenTop     map[string]bool
	descriptor  *Descriptor
}

func (w *walker) push(f frame) { w.frames = append(w.frames, f) }
func (w *walker) pop()         { w.frames = w.frames[:len(w.frames)-1] }

func (w *walker) resolve(name string) (depth int, ok bool) {
	for i := len(w.frames) - 1; i >= 0; i-- {
		if _, found := w.frames[i][name]; found {
			return i, true
		}
	}
	return 0, false
}

func (w *walker) recordUse(id *ast.Ident) {
	if !w.insideTarget || id.Name == "_" {
		return
	}
	depth, ok := w.resolve(id.Name)
	if !ok {
		return // unresolved: a true global/builtin, ignored per spec.md §4.C
	}
	if depth >= w.targetDepth {
		return // bound inside the target literal itself: not a free variable
	}
	typeExpr := w.frames[depth][id.Name]
	if depth == 0 {
		if !w.seenTop[id.Name] {
			w.seenTop[id.Name] = true
			w.descriptor.TopLevels = append(w.descriptor.TopLevels, Capture{Name: id.Name, TypeText: printType(typeExpr)})
		}
		return
	}
	if !w.seenLocal[id.Name] {
		w.seenLocal[id.Name] = true
		w.descriptor.Locals = append(w.descriptor.Locals, Capture{Name: id.Name, TypeText: printType(typeExpr)})
	}
}

func printType(e ast.Expr) string {
	if e == nil {
		return ""
	}
	var sb sbuf
	if err := format.Node(&sb, token.NewFileSet(), e); err != nil {
		return ""
	}
	return sb.String()
}

// sbuf is a tiny strings.Builder stand-in so we avoid importing
// strings just for this one call site.
type sbuf struct{ data []byte }

func (b *sbuf) Write(p []byte) (int, error) { b.data = append(b.data, p...); return len(p), nil }
func (b *sbuf) String() string               { return string(b.data) }

// Visit implements ast.Visitor. Nodes that introduce a new lexical
// scope or that need special treatment of their identifier children
// (declaration sites, selector field names, composite-literal keys,
// import names) manually walk their own relevant children and return
// nil to suppress ast.Walk's default recursion; everything else
// returns w so ast.Walk continues normally, which is exactly how
// ordinary value-position identifiers get visited and classified.
func (w *walker) Visit(n ast.Node) ast.Visitor {
	switch node := n.(type) {
	case nil:
		return nil

	case *ast.FuncLit:
		wasInside := w.insideTarget
		isTarget := node == w.target
		if isTarget {
			w.insideTarget = true
			w.foundTarget = true
			w.targetDepth = len(w.frames)
		}
		w.push(paramFrame(node.Type))
		ast.Walk(w, node.Body)
		w.pop()
		if isTarget {
			w.insideTarget = wasInside
		}
		return nil

	case *ast.FuncDecl:
		w.push(funcDeclFrame(node))
		if node.Body != nil {
			ast.Walk(w, node.Body)
		}
		w.pop()
		return nil

	case *ast.BlockStmt:
		w.push(frame{})
		for _, stmt := range node.List {
			ast.Walk(w, stmt)
		}
		w.pop()
		return nil

	case *ast.AssignStmt:
		for _, rhs := range node.Rhs {
			ast.Walk(w, rhs)
		}
		if node.Tok == token.DEFINE {
			for _, lhs := range node.Lhs {
				if id, ok := lhs.(*ast.Ident); ok {
					if id.Name != "_" {
						w.frames[len(w.frames)-1][id.Name] = nil
					}
					continue
				}
				ast.Walk(w, lhs)
			}
		} else {
			for _, lhs := range node.Lhs {
				ast.Walk(w, lhs)
			}
		}
		return nil

	case *ast.GenDecl:
		for _, spec := range node.Specs {
			switch s := spec.(type) {
			case *ast.ValueSpec:
				for _, v := range s.Values {
					ast.Walk(w, v)
				}
				for _, n := range s.Names {
					if n.Name != "_" {
						w.frames[len(w.frames)-1][n.Name] = s.Type
					}
				}
			case *ast.TypeSpec:
				w.frames[len(w.frames)-1][s.Name.Name] = nil
			case *ast.ImportSpec:
				w.frames[len(w.frames)-1][importLocalName(s)] = nil
			}
		}
		return nil

	case *ast.ForStmt:
		w.push(frame{})
		if node.Init != nil {
			ast.Walk(w, node.Init)
		}
		if node.Cond != nil {
			ast.Walk(w, node.Cond)
		}
		if node.Post != nil {
			ast.Walk(w, node.Post)
		}
		ast.Walk(w, node.Body)
		w.pop()
		return nil

	case *ast.RangeStmt:
		w.push(frame{})
		ast.Walk(w, node.X)
		if node.Tok == token.DEFINE {
			if id, ok := node.Key.(*ast.Ident); ok && id.Name != "_" {
				w.frames[len(w.frames)-1][id.Name] = nil
			}
			if id, ok := node.Value.(*ast.Ident); ok && id.Name != "_" {
				w.frames[len(w.frames)-1][id.Name] = nil
			}
		} else {
			if node.Key != nil {
				ast.Walk(w, node.Key)
			}
			if node.Value != nil {
				ast.Walk(w, node.Value)
			}
		}
		ast.Walk(w, node.Body)
		w.pop()
		return nil

	case *ast.IfStmt:
		w.push(frame{})
		if node.Init != nil {
			ast.Walk(w, node.Init)
		}
		ast.Walk(w, node.Cond)
		ast.Walk(w, node.Body)
		if node.Else != nil {
			ast.Walk(w, node.Else)
		}
		w.pop()
		return nil

	case *ast.SwitchStmt:
		w.push(frame{})
		if node.Init != nil {
			ast.Walk(w, node.Init)
		}
		if node.Tag != nil {
			ast.Walk(w, node.Tag)
		}
		ast.Walk(w, node.Body)
		w.pop()
		return nil

	case *ast.TypeSwitchStmt:
		w.push(frame{})
		if node.Init != nil {
			ast.Walk(w, node.Init)
		}
		ast.Walk(w, node.Assign)
		ast.Walk(w, node.Body)
		w.pop()
		return nil

	case *ast.CaseClause:
		w.push(frame{})
		for _, e := range node.List {
			ast.Walk(w, e)
		}
		for _, stmt := range node.Body {
			ast.Walk(w, stmt)
		}
		w.pop()
		return nil

	case *ast.SelectorExpr:
		ast.Walk(w, node.X)
		return nil // Sel is a field/method name, never a free-variable use

	case *ast.CompositeLit:
		// node.Type names a type, not a value; its identifier (if any)
		// is never a free-variable use. A bare Ident key is a struct
		// field name in a struct literal, but a genuine value use as a
		// map key or array/slice index in a map/array literal — check
		// node.Type before deciding whether to skip it. An elided
		// element type (node.Type == nil, e.g. the inner literals of
		// []Foo{{A: x}}) is assumed struct-shaped, matching the common
		// case; an elided map literal nested the same way is a known
		// gap.
		_, isMapOrArray := node.Type.(*ast.MapType)
		if _, isArray := node.Type.(*ast.ArrayType); isArray {
			isMapOrArray = true
		}
		for _, elt := range node.Elts {
			if kv, ok := elt.(*ast.KeyValueExpr); ok {
				if _, keyIsIdent := kv.Key.(*ast.Ident); !keyIsIdent || isMapOrArray {
					ast.Walk(w, kv.Key)
				}
				ast.Walk(w, kv.Value)
				continue
			}
			ast.Walk(w, elt)
		}
		return nil

	case *ast.Ident:
		w.recordUse(node)
		return nil
	}

	return w
}

func paramFrame(ft *ast.FuncType) frame {
	f := frame{}
	addFields := func(fl *ast.FieldList) {
		if fl == nil {
			return
		}
		for _, field := range fl.List {
			for _, n := range field.Names {
				if n.Name != "_" {
					f[n.Name] = field.Type
				}
			}
		}
	}
	addFields(ft.Params)
	addFields(ft.Results)
	return f
}

func funcDeclFrame(d *ast.FuncDecl) frame {
	f := paramFrame(d.Type)
	if d.Recv != nil {
		for _, field := range d.Recv.List {
			for _, n := range field.Names {
				if n.Name != "_" {
					f[n.Name] = field.Type
				}
			}
		}
	}
	return f
}
