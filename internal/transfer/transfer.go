// Package transfer implements spec.md §4.K: detection of the subset of
// a capture payload whose ownership should move rather than be
// deep-copied, and a clonability predicate used by the dispatch entry
// to filter top-level candidates (§4.F step 1).
package transfer

import (
	"bytes"
	"encoding/gob"
	"net"
	"os"
	"reflect"
	"strconv"

	"spawnkit/internal/shmem"
)

// Transferable is one value in a payload graph whose ownership moves
// to the worker instead of being copied — Go's analogue of spec.md's
// byte buffers, ports and stream endpoints.
type Transferable struct {
	Path  []string // field/index path from the payload root, for diagnostics
	Value any
}

// Walk does a cycle-safe, recursive depth-first walk over v (results
// come back in depth-first order, not breadth-first), collecting every
// *os.File and net.Conn reachable from it, while explicitly excluding anything
// backed by a shmem.Buffer — shared resources have cross-isolate
// identity by construction and are never transferable (spec.md §3).
func Walk(v any) []Transferable {
	w := &walker{seen: make(map[uintptr]bool)}
	w.walk(reflect.ValueOf(v), nil)
	return w.found
}

type walker struct {
	seen  map[uintptr]bool
	found []Transferable
}

func (w *walker) walk(v reflect.Value, path []string) {
	if !v.IsValid() {
		return
	}
	if v.CanInterface() {
		if f, ok := v.Interface().(*os.File); ok {
			if f != nil {
				w.record(f, path)
			}
			return
		}
		if conn, ok := v.Interface().(net.Conn); ok {
			if conn != nil {
				w.record(conn, path)
			}
			return
		}
	}
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface:
		if v.IsNil() {
			return
		}
		if isShared(v) {
			return
		}
		if v.Kind() == reflect.Ptr {
			ptr := v.Pointer()
			if w.seen[ptr] {
				return
			}
			w.seen[ptr] = true
		}
		w.walk(v.Elem(), path)

	case reflect.Struct:
		t := v.Type()
		for i := 0; i < v.NumField(); i++ {
			if !v.Field(i).CanInterface() {
				continue
			}
			w.walk(v.Field(i), append(path, t.Field(i).Name))
		}

	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.IsNil() {
			return
		}
		if v.Kind() == reflect.Slice {
			ptr := v.Pointer()
			if ptr != 0 {
				if w.seen[ptr] {
					return
				}
				w.seen[ptr] = true
			}
		}
		for i := 0; i < v.Len(); i++ {
			w.walk(v.Index(i), append(path, indexName(i)))
		}

	case reflect.Map:
		if v.IsNil() {
			return
		}
		ptr := v.Pointer()
		if w.seen[ptr] {
			return
		}
		w.seen[ptr] = true
		for _, k := range v.MapKeys() {
			w.walk(v.MapIndex(k), append(path, indexName(k.Interface())))
		}
	}
}

func (w *walker) record(value any, path []string) {
	cp := make([]string, len(path))
	copy(cp, path)
	w.found = append(w.found, Transferable{Path: cp, Value: value})
}

func isShared(v reflect.Value) bool {
	if v.Kind() != reflect.Ptr {
		return false
	}
	_, ok := v.Interface().(*shmem.Buffer)
	return ok
}

func indexName(i any) string {
	switch t := i.(type) {
	case int:
		return "[" + strconv.Itoa(t) + "]"
	case string:
		return "[" + t + "]"
	default:
		return "[?]"
	}
}

// Clonable reports whether v can survive the structural-clone filter
// spec.md §4.F step 1 applies to capture candidates: primitives and
// aggregates thereof, anything backed by a shmem.Buffer (rematerialized
// via the registry, never copied), *os.File and net.Conn (moved as
// transferables, not copied), and — for everything else — anything a
// trial gob encode accepts. Functions, channels of any element type,
// and unsafe.Pointer are rejected outright.
func Clonable(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Func, reflect.UnsafePointer:
		return false
	case reflect.Chan:
		return false
	}
	if rv.Kind() == reflect.Ptr {
		if _, ok := v.(*shmem.Buffer); ok {
			return true
		}
	}
	if _, ok := v.(*os.File); ok {
		return true
	}
	if _, ok := v.(net.Conn); ok {
		return true
	}
	var buf bytes.Buffer
	return gob.NewEncoder(&buf).Encode(v) == nil
}
