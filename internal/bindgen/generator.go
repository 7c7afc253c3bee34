// Package bindgen generates cgo bindings from C headers.
//
// A Generator scans a HeaderSet for function prototypes, struct and union
// definitions, enum constants, integer macros and scalar typedefs, keeps
// the declarations whose names pass an AllowList, and writes one Go file
// that includes the headers in its cgo preamble and wraps each
// declaration in Go.
package bindgen

import (
	"fmt"
	"go/format"
	"os"
	"path/filepath"
	"regexp"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Generator turns a HeaderSet into Go source.
type Generator struct {
	Package      string    // Go package name, "isal" if empty
	AllowList    AllowList // DefaultAllowList if nil
	IncludePaths []string  // searched for #include <...> and the header list

	cache *lru.Cache[string, *lexed]
}

func (g *Generator) pkg() string {
	if g.Package != "" {
		return g.Package
	}
	return "isal"
}

func (g *Generator) allow() AllowList {
	if g.AllowList != nil {
		return g.AllowList
	}
	return DefaultAllowList
}

// Generate parses every header of set and returns the formatted binding
// source. The same set and allow-list always produce the same bytes.
func (g *Generator) Generate(set *HeaderSet) ([]byte, error) {
	if set == nil || len(set.Files) == 0 {
		return nil, parseError("", 0, "empty header set")
	}
	u := newUnit()
	seen := make(map[string]bool)
	for _, h := range set.Files {
		lx, err := g.lexFile(h.Path)
		if err != nil {
			return nil, err
		}
		p := &parser{path: h.Path, name: h.Name, toks: lx.toks, u: u}
		if err := p.parseFile(); err != nil {
			return nil, err
		}
		for _, d := range lx.dirs {
			if d.define == "" || seen[d.define] {
				continue
			}
			if v, ok := intLiteral(d.value); ok {
				seen[d.define] = true
				u.macros = append(u.macros, &macro{
					name:     d.define,
					value:    v,
					position: position{file: h.Name, line: d.line, doc: d.doc},
				})
			}
		}
	}

	src := newEmitter(g.pkg(), g.allow(), u).emit(set.Includes)
	out, err := format.Source(src)
	if err != nil {
		return nil, &Error{Kind: ErrParseFailed, Path: set.Files[0].Path, Err: fmt.Errorf("generated source does not format: %w", err)}
	}
	return out, nil
}

// WriteFile generates bindings for set and writes them to path.
func (g *Generator) WriteFile(path string, set *HeaderSet) error {
	src, err := g.Generate(set)
	if err != nil {
		return err
	}
	return WriteSource(path, src)
}

// WriteSource replaces path with src. The directory is created if needed
// and the file is renamed into place so readers never see a partial file.
func WriteSource(path string, src []byte) error {
	fail := func(err error) error {
		return &Error{Kind: ErrWriteFailed, Path: path, Err: err}
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fail(err)
	}
	f, err := os.CreateTemp(dir, ".isalgen-*")
	if err != nil {
		return fail(err)
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if _, err := f.Write(src); err != nil {
		f.Close()
		return fail(err)
	}
	if err := f.Close(); err != nil {
		return fail(err)
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		return fail(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fail(err)
	}
	return nil
}

var intMacro = regexp.MustCompile(`^\(?\s*(-?)\s*(0[xX][0-9a-fA-F]+|[0-9]+)[uUlL]*\s*\)?$`)

// intLiteral returns the Go spelling of a C integer macro value.
func intLiteral(value string) (string, bool) {
	m := intMacro.FindStringSubmatch(value)
	if m == nil {
		return "", false
	}
	return m[1] + m[2], true
}
