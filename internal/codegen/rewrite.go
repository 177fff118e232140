package codegen

import (
	"go/ast"
	"go/token"
)

// frame is one lexical scope's set of names bound inside the copied
// function body itself (parameters, := targets, var/const/type decls,
// range vars) — anything bound here shadows a captured name of the
// same spelling and must be left untouched.
type frame map[string]bool

// captureRewriter walks a copied *ast.FuncLit body exactly the way
// internal/scope's walker classifies free identifiers, except instead
// of recording a Capture it replaces each unshadowed, captured
// *ast.Ident with a `c.<name>` selector. It owns the body outright
// (lifted out of the original call site once that call is rewritten
// to Dispatch), so every mutation below happens in place.
type captureRewriter struct {
	// fields maps a captured identifier's original spelling to the
	// exported struct field name it was promoted to (gob, like the
	// rest of Go's reflection-based encoders, only ever sees exported
	// fields), e.g. "local" -> "Local".
	fields   map[string]string
	receiver string
	frames   []frame
}

func rewriteCaptures(body *ast.BlockStmt, fields map[string]string, receiver string) {
	r := &captureRewriter{fields: fields, receiver: receiver, frames: []frame{{}}}
	r.block(body)
}

func (r *captureRewriter) push(f frame) { r.frames = append(r.frames, f) }
func (r *captureRewriter) pop()         { r.frames = r.frames[:len(r.frames)-1] }

func (r *captureRewriter) bind(name string) {
	if name != "_" {
		r.frames[len(r.frames)-1][name] = true
	}
}

func (r *captureRewriter) shadowed(name string) bool {
	for _, f := range r.frames {
		if f[name] {
			return true
		}
	}
	return false
}

// expr rewrites e and returns its replacement; most expression kinds
// are mutated in place and returned unchanged, but a bare captured
// identifier must be replaced wholesale since an Ident can't turn
// itself into a SelectorExpr.
func (r *captureRewriter) expr(e ast.Expr) ast.Expr {
	if e == nil {
		return nil
	}
	switch node := e.(type) {
	case *ast.Ident:
		field, ok := r.fields[node.Name]
		if r.shadowed(node.Name) || !ok {
			return node
		}
		return &ast.SelectorExpr{X: ast.NewIdent(r.receiver), Sel: ast.NewIdent(field)}

	case *ast.SelectorExpr:
		node.X = r.expr(node.X) // Sel names a field/method, never a free-variable use
		return node

	case *ast.CompositeLit:
		// node.Type names a type, never a free-variable use. A bare
		// Ident key is a struct field name in a struct literal but a
		// genuine captured-identifier use as a map key or array/slice
		// index in a map/array literal — mirrors internal/scope's
		// analyzer so a capture it records here always has a
		// corresponding rewrite.
		_, isMapOrArray := node.Type.(*ast.MapType)
		if _, isArray := node.Type.(*ast.ArrayType); isArray {
			isMapOrArray = true
		}
		for i, elt := range node.Elts {
			if kv, ok := elt.(*ast.KeyValueExpr); ok {
				if _, keyIsIdent := kv.Key.(*ast.Ident); !keyIsIdent || isMapOrArray {
					kv.Key = r.expr(kv.Key)
				}
				kv.Value = r.expr(kv.Value)
				continue
			}
			node.Elts[i] = r.expr(elt)
		}
		return node

	case *ast.CallExpr:
		node.Fun = r.expr(node.Fun)
		for i, a := range node.Args {
			node.Args[i] = r.expr(a)
		}
		return node

	case *ast.BinaryExpr:
		node.X = r.expr(node.X)
		node.Y = r.expr(node.Y)
		return node

	case *ast.UnaryExpr:
		node.X = r.expr(node.X)
		return node

	case *ast.StarExpr:
		node.X = r.expr(node.X)
		return node

	case *ast.ParenExpr:
		node.X = r.expr(node.X)
		return node

	case *ast.IndexExpr:
		node.X = r.expr(node.X)
		node.Index = r.expr(node.Index)
		return node

	case *ast.SliceExpr:
		node.X = r.expr(node.X)
		node.Low = r.expr(node.Low)
		node.High = r.expr(node.High)
		node.Max = r.expr(node.Max)
		return node

	case *ast.TypeAssertExpr:
		node.X = r.expr(node.X)
		return node

	case *ast.FuncLit:
		r.push(paramFrame(node.Type))
		r.block(node.Body)
		r.pop()
		return node

	default:
		// literals, types, and anything else with no nested value-position
		// identifiers to rewrite.
		return node
	}
}

func (r *captureRewriter) block(b *ast.BlockStmt) {
	if b == nil {
		return
	}
	r.push(frame{})
	for _, s := range b.List {
		r.stmt(s)
	}
	r.pop()
}

func (r *captureRewriter) stmt(s ast.Stmt) {
	switch node := s.(type) {
	case *ast.ExprStmt:
		node.X = r.expr(node.X)

	case *ast.AssignStmt:
		for i, rhs := range node.Rhs {
			node.Rhs[i] = r.expr(rhs)
		}
		if node.Tok == token.DEFINE {
			for _, lhs := range node.Lhs {
				if id, ok := lhs.(*ast.Ident); ok {
					r.bind(id.Name)
				}
			}
		} else {
			for i, lhs := range node.Lhs {
				node.Lhs[i] = r.expr(lhs)
			}
		}

	case *ast.DeclStmt:
		r.genDecl(node.Decl.(*ast.GenDecl))

	case *ast.ReturnStmt:
		for i, res := range node.Results {
			node.Results[i] = r.expr(res)
		}

	case *ast.IfStmt:
		r.push(frame{})
		if node.Init != nil {
			r.stmt(node.Init)
		}
		node.Cond = r.expr(node.Cond)
		r.block(node.Body)
		if node.Else != nil {
			r.stmt(node.Else)
		}
		r.pop()

	case *ast.ForStmt:
		r.push(frame{})
		if node.Init != nil {
			r.stmt(node.Init)
		}
		if node.Cond != nil {
			node.Cond = r.expr(node.Cond)
		}
		if node.Post != nil {
			r.stmt(node.Post)
		}
		r.block(node.Body)
		r.pop()

	case *ast.RangeStmt:
		r.push(frame{})
		node.X = r.expr(node.X)
		if node.Tok == token.DEFINE {
			if id, ok := node.Key.(*ast.Ident); ok {
				r.bind(id.Name)
			}
			if id, ok := node.Value.(*ast.Ident); ok {
				r.bind(id.Name)
			}
		} else {
			if node.Key != nil {
				node.Key = r.expr(node.Key)
			}
			if node.Value != nil {
				node.Value = r.expr(node.Value)
			}
		}
		r.block(node.Body)
		r.pop()

	case *ast.SwitchStmt:
		r.push(frame{})
		if node.Init != nil {
			r.stmt(node.Init)
		}
		if node.Tag != nil {
			node.Tag = r.expr(node.Tag)
		}
		r.caseClauses(node.Body)
		r.pop()

	case *ast.TypeSwitchStmt:
		r.push(frame{})
		if node.Init != nil {
			r.stmt(node.Init)
		}
		r.stmt(node.Assign)
		r.caseClauses(node.Body)
		r.pop()

	case *ast.BlockStmt:
		r.block(node)

	case *ast.GoStmt:
		node.Call = r.expr(node.Call).(*ast.CallExpr)

	case *ast.DeferStmt:
		node.Call = r.expr(node.Call).(*ast.CallExpr)

	case *ast.SendStmt:
		node.Chan = r.expr(node.Chan)
		node.Value = r.expr(node.Value)

	case *ast.IncDecStmt:
		node.X = r.expr(node.X)

	case *ast.LabeledStmt:
		r.stmt(node.Stmt)
	}
}

func (r *captureRewriter) caseClauses(body *ast.BlockStmt) {
	r.push(frame{})
	for _, s := range body.List {
		cc := s.(*ast.CaseClause)
		for i, e := range cc.List {
			cc.List[i] = r.expr(e)
		}
		for _, stmt := range cc.Body {
			r.stmt(stmt)
		}
	}
	r.pop()
}

func (r *captureRewriter) genDecl(d *ast.GenDecl) {
	for _, spec := range d.Specs {
		vs, ok := spec.(*ast.ValueSpec)
		if !ok {
			continue
		}
		for i, v := range vs.Values {
			vs.Values[i] = r.expr(v)
		}
		for _, n := range vs.Names {
			r.bind(n.Name)
		}
	}
}

func paramFrame(ft *ast.FuncType) frame {
	f := frame{}
	add := func(fl *ast.FieldList) {
		if fl == nil {
			return
		}
		for _, field := range fl.List {
			for _, n := range field.Names {
				if n.Name != "_" {
					f[n.Name] = true
				}
			}
		}
	}
	add(ft.Params)
	add(ft.Results)
	return f
}
