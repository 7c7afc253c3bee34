// Package link turns resolved library paths into build directives and the
// cgo link file of the binding package.
package link

import (
	"bytes"
	"fmt"
	"go/format"
	"io"
	"path/filepath"
	"strings"

	"github.com/goplus/isal/internal/bindgen"
	"github.com/goplus/isal/internal/probe"
)

// Kind names a directive.
type Kind string

const (
	RerunIfChanged Kind = "rerun-if-changed"
	LinkSearch     Kind = "link-search"
	LinkLib        Kind = "link-lib"
	Warning        Kind = "warning"
)

// Prefix starts every directive line.
const Prefix = "isal:"

// Directive is one instruction for the enclosing build.
type Directive struct {
	Kind  Kind
	Value string
}

func (d Directive) String() string {
	return Prefix + string(d.Kind) + "=" + d.Value
}

// Print writes one directive per line.
func Print(w io.Writer, ds []Directive) error {
	for _, d := range ds {
		if _, err := fmt.Fprintln(w, d); err != nil {
			return err
		}
	}
	return nil
}

// Target is the library resolved by one of the provisioning branches.
type Target struct {
	FromSource   bool // built from the vendored tree
	IncludePaths []string
	LinkPaths    []string
}

// Emitter applies the link policy.
type Emitter struct {
	LibName string // link name, "isal" if empty
	Static  bool
	Bundle  bool // building from source is allowed
}

func (e *Emitter) lib() string {
	if e.LibName != "" {
		return e.LibName
	}
	return "isal"
}

// Emit returns a search-path directive per link path, advisory warnings,
// and exactly one library directive.
func (e *Emitter) Emit(t Target) []Directive {
	var ds []Directive
	for _, dir := range t.LinkPaths {
		ds = append(ds, Directive{LinkSearch, "native=" + dir})
	}
	for _, w := range e.Warnings(t) {
		ds = append(ds, Directive{Warning, w})
	}
	if e.Static {
		ds = append(ds, Directive{LinkLib, "static=" + e.lib()})
	} else {
		ds = append(ds, Directive{LinkLib, e.lib()})
	}
	return ds
}

// Warnings reports inadvisable link configurations. None of them stop the
// build.
func (e *Emitter) Warnings(t Target) []string {
	var ws []string
	if (t.FromSource || e.Bundle) && !e.Static {
		ws = append(ws, fmt.Sprintf("linking the shared lib%s while bundling from source is discouraged: "+
			"the runtime search path points into the build output directory", e.lib()))
	}
	if !t.FromSource && e.Static && !probe.HasStaticArchive(t.LinkPaths, e.lib()) {
		ws = append(ws, fmt.Sprintf("static linking requested but lib%s.a is not in %s",
			e.lib(), strings.Join(t.LinkPaths, ", ")))
	}
	return ws
}

// LDFlags returns the linker flags for t. Static linking names the archive
// by path so that the shared library next to it is never picked.
func (e *Emitter) LDFlags(t Target) []string {
	var flags []string
	for _, dir := range t.LinkPaths {
		flags = append(flags, "-L"+dir)
	}
	if e.Static {
		for _, dir := range t.LinkPaths {
			if probe.HasStaticArchive([]string{dir}, e.lib()) {
				return append(flags, filepath.Join(dir, "lib"+e.lib()+".a"))
			}
		}
		// no archive to name; Warnings already reports this
		return append(flags, "-l"+e.lib())
	}
	flags = append(flags, "-l"+e.lib())
	for _, dir := range t.LinkPaths {
		flags = append(flags, "-Wl,-rpath,"+dir)
	}
	return flags
}

// CFlags returns the compiler flags for t.
func (e *Emitter) CFlags(t Target) []string {
	flags := make([]string, 0, len(t.IncludePaths))
	for _, dir := range t.IncludePaths {
		flags = append(flags, "-I"+dir)
	}
	return flags
}

// LinkFile returns the Go source carrying the cgo flags for t.
func (e *Emitter) LinkFile(pkg string, t Target) ([]byte, error) {
	var b bytes.Buffer
	fmt.Fprintf(&b, "%s\n\npackage %s\n\n", bindgen.GeneratedHeader, pkg)
	if cflags := e.CFlags(t); len(cflags) > 0 {
		fmt.Fprintf(&b, "// #cgo CFLAGS: %s\n", quoteFlags(cflags))
	}
	fmt.Fprintf(&b, "// #cgo LDFLAGS: %s\n", quoteFlags(e.LDFlags(t)))
	b.WriteString("import \"C\"\n")
	return format.Source(b.Bytes())
}

// WriteLinkFile writes LinkFile(pkg, t) to path.
func (e *Emitter) WriteLinkFile(path, pkg string, t Target) error {
	src, err := e.LinkFile(pkg, t)
	if err != nil {
		return &bindgen.Error{Kind: bindgen.ErrWriteFailed, Path: path, Err: err}
	}
	return bindgen.WriteSource(path, src)
}

// quoteFlags joins flags for a #cgo line, single-quoting those with spaces.
func quoteFlags(flags []string) string {
	out := make([]string, len(flags))
	for i, f := range flags {
		if strings.ContainsAny(f, " \t") {
			f = "'" + f + "'"
		}
		out[i] = f
	}
	return strings.Join(out, " ")
}
