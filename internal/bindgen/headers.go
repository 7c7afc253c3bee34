package bindgen

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Header is one file of a HeaderSet.
type Header struct {
	Path string // absolute path
	Name string // path relative to the include directory it was found in
}

// HeaderSet is the ordered set of headers bindings are generated from.
// Files are in depth-first order of first inclusion.
type HeaderSet struct {
	Files []Header
	// Includes are the #include operands placed in the cgo preamble,
	// such as <isa-l.h> or "/abs/path/wrapper.h".
	Includes []string
}

// Paths returns the absolute paths of all files in the set.
func (s *HeaderSet) Paths() []string {
	out := make([]string, len(s.Files))
	for i, f := range s.Files {
		out[i] = f.Path
	}
	return out
}

// Headers builds the HeaderSet rooted at a wrapper header. The wrapper's
// direct includes become the preamble unless the wrapper declares things
// itself, in which case the wrapper is included directly.
func (g *Generator) Headers(wrapper string) (*HeaderSet, error) {
	abs, err := filepath.Abs(wrapper)
	if err != nil {
		return nil, &Error{Kind: ErrParseFailed, Path: wrapper, Err: err}
	}
	w := &walker{g: g, seen: make(map[string]bool)}
	lx, err := g.lexFile(abs)
	if err != nil {
		return nil, err
	}
	w.seen[abs] = true
	w.set.Files = append(w.set.Files, Header{Path: abs, Name: g.relName(abs)})

	resolved := 0
	var includes []string
	for _, d := range lx.dirs {
		if d.include == "" {
			continue
		}
		path, name, ok := g.resolve(abs, d)
		if !ok {
			includes = append(includes, spell(d))
			continue
		}
		resolved++
		includes = append(includes, g.preamble(path, name))
		if err := w.visit(path, name); err != nil {
			return nil, err
		}
	}

	declares := len(lx.toks) > 1
	switch {
	case declares:
		w.set.Includes = []string{strconv.Quote(abs)}
	case resolved == 0:
		return nil, parseError(abs, 0, "wrapper includes no header found in %v", g.IncludePaths)
	default:
		w.set.Includes = includes
	}
	return &w.set, nil
}

// HeaderList builds the HeaderSet from an explicit list of header names,
// each looked up in the include paths.
func (g *Generator) HeaderList(names []string) (*HeaderSet, error) {
	w := &walker{g: g, seen: make(map[string]bool)}
	for _, name := range names {
		path, rel, ok := g.resolve("", directive{include: name, angled: true})
		if !ok && filepath.IsAbs(name) && isFile(name) {
			path, rel, ok = name, g.relName(name), true
		}
		if !ok {
			return nil, parseError(name, 0, "header not found in %v", g.IncludePaths)
		}
		w.set.Includes = append(w.set.Includes, g.preamble(path, rel))
		if err := w.visit(path, rel); err != nil {
			return nil, err
		}
	}
	if len(w.set.Files) == 0 {
		return nil, parseError("", 0, "no headers given")
	}
	return &w.set, nil
}

type walker struct {
	g    *Generator
	seen map[string]bool
	set  HeaderSet
}

// visit adds path and, depth first, every header it includes that can be
// found. Unresolved nested includes are system headers and are skipped.
func (w *walker) visit(path, name string) error {
	if w.seen[path] {
		return nil
	}
	w.seen[path] = true
	w.set.Files = append(w.set.Files, Header{Path: path, Name: name})
	lx, err := w.g.lexFile(path)
	if err != nil {
		return err
	}
	for _, d := range lx.dirs {
		if d.include == "" {
			continue
		}
		if p, n, ok := w.g.resolve(path, d); ok {
			if err := w.visit(p, n); err != nil {
				return err
			}
		}
	}
	return nil
}

// resolve finds the file named by an #include in from. Quoted includes are
// looked up next to from first.
func (g *Generator) resolve(from string, d directive) (path, name string, ok bool) {
	if !d.angled && from != "" {
		p := filepath.Join(filepath.Dir(from), d.include)
		if isFile(p) {
			return p, g.relName(p), true
		}
	}
	for _, dir := range g.IncludePaths {
		p := filepath.Join(dir, d.include)
		if !isFile(p) {
			continue
		}
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		return p, filepath.ToSlash(filepath.Clean(d.include)), true
	}
	return "", "", false
}

// relName names path relative to the first include directory containing
// it, or by its base name when none does.
func (g *Generator) relName(path string) string {
	for _, dir := range g.IncludePaths {
		abs, err := filepath.Abs(dir)
		if err != nil {
			continue
		}
		if rel, err := filepath.Rel(abs, path); err == nil && rel != "." && !strings.HasPrefix(rel, "..") {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.Base(path)
}

// preamble spells the include for a resolved header: angle brackets when
// an include path reaches it by name, otherwise its quoted absolute path.
func (g *Generator) preamble(path, name string) string {
	for _, dir := range g.IncludePaths {
		if p, err := filepath.Abs(filepath.Join(dir, filepath.FromSlash(name))); err == nil && p == path {
			return "<" + name + ">"
		}
	}
	return strconv.Quote(path)
}

func spell(d directive) string {
	if d.angled {
		return "<" + d.include + ">"
	}
	return strconv.Quote(d.include)
}

func isFile(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}
