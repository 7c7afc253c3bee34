package bindgen

import (
	"bytes"
	"fmt"
	"strings"
)

// GeneratedHeader is the first line of every generated file.
const GeneratedHeader = "// Code generated by isalgen. DO NOT EDIT."

type emitter struct {
	pkg   string
	allow AllowList
	u     *unit
	r     *resolver

	used       map[string]bool   // Go names taken
	constNames map[string]string // C constant -> Go name
	needFmt    bool
	needUnsafe bool
	skipped    []string // notes for declarations without a wrapper
	typedefs   []*typedef
	aggs       []*aggregate
	funcs      []*function
}

func newEmitter(pkg string, allow AllowList, u *unit) *emitter {
	e := &emitter{
		pkg:        pkg,
		allow:      allow,
		u:          u,
		r:          &resolver{u: u, names: make(map[*aggregate]string)},
		used:       make(map[string]bool),
		constNames: make(map[string]string),
	}
	e.selectTypes()
	return e
}

// name reserves a unique Go name for C identifier c.
func (e *emitter) name(c string) string {
	n := goName(c)
	for e.used[n] {
		n += "_"
	}
	e.used[n] = true
	return n
}

// selectTypes picks the aggregates and typedefs to emit and names them,
// so that function signatures can refer to them.
func (e *emitter) selectTypes() {
	for _, a := range e.u.aggs {
		if !a.defined || a.name() == "" {
			continue
		}
		if !e.allow.Allows(a.tag) && !e.allow.Allows(a.typedef) {
			continue
		}
		e.aggs = append(e.aggs, a)
		e.r.names[a] = e.name(a.name())
	}
	for _, name := range e.u.order {
		td := e.u.typedefs[name]
		if td.agg != nil || !e.allow.Allows(name) {
			continue
		}
		e.typedefs = append(e.typedefs, td)
	}
	seen := make(map[string]bool)
	for _, fn := range e.u.funcs {
		if seen[fn.name] || !e.allow.Allows(fn.name) {
			continue
		}
		seen[fn.name] = true
		e.funcs = append(e.funcs, fn)
	}
}

func (e *emitter) emit(includes []string) []byte {
	var body bytes.Buffer
	e.consts(&body)
	e.types(&body)
	e.wrappers(&body)
	for _, note := range e.skipped {
		body.WriteString(note)
	}

	var b bytes.Buffer
	b.WriteString(GeneratedHeader + "\n\n")
	fmt.Fprintf(&b, "package %s\n\n", e.pkg)
	b.WriteString("/*\n")
	for _, inc := range includes {
		fmt.Fprintf(&b, "#include %s\n", inc)
	}
	b.WriteString("*/\nimport \"C\"\n\n")
	if e.needFmt || e.needUnsafe {
		b.WriteString("import (\n")
		if e.needFmt {
			b.WriteString("\t\"fmt\"\n")
		}
		if e.needUnsafe {
			b.WriteString("\t\"unsafe\"\n")
		}
		b.WriteString(")\n\n")
	}
	b.Write(body.Bytes())
	return b.Bytes()
}

func (e *emitter) consts(b *bytes.Buffer) {
	var macros []*macro
	for _, m := range e.u.macros {
		if e.allow.Allows(m.name) {
			macros = append(macros, m)
		}
	}
	var enums []*enumConst
	seen := make(map[string]bool)
	for _, c := range e.u.consts {
		if !seen[c.name] && e.allow.Allows(c.name) {
			seen[c.name] = true
			enums = append(enums, c)
		}
	}
	if len(macros)+len(enums) == 0 {
		return
	}

	b.WriteString("const (\n")
	for _, m := range macros {
		writeDoc(b, fmt.Sprintf("%s is macro %s from %s.", e.nameFor(m.name), m.name, m.file), m.doc)
		fmt.Fprintf(b, "%s = %s\n\n", e.nameFor(m.name), m.value)
	}
	for _, c := range enums {
		writeDoc(b, fmt.Sprintf("%s is enum constant %s from %s.", e.nameFor(c.name), c.name, c.file), c.doc)
		fmt.Fprintf(b, "%s = C.%s\n\n", e.nameFor(c.name), c.name)
	}
	b.WriteString(")\n\n")
}

// nameFor names constants lazily; the first call for c reserves the name.
func (e *emitter) nameFor(c string) string {
	if n, ok := e.constNames[c]; ok {
		return n
	}
	n := e.name(c)
	e.constNames[c] = n
	return n
}

func (e *emitter) types(b *bytes.Buffer) {
	for _, a := range e.aggs {
		name := e.r.names[a]
		what := a.kind + " " + a.tag
		if a.tag == "" {
			what = a.typedef
		}
		writeDoc(b, fmt.Sprintf("%s mirrors %s from %s.", name, what, a.file), a.doc)
		fmt.Fprintf(b, "type %s %s\n\n", name, a.cgo())
		e.debug(b, name, a)
	}
	for _, td := range e.typedefs {
		res := e.r.resolve(td.name)
		if res.kind != kScalar {
			e.skip(td.name, td.position, "typedef of "+td.typ.String())
			continue
		}
		name := e.name(td.name)
		writeDoc(b, fmt.Sprintf("%s mirrors typedef %s from %s.", name, td.name, td.file), td.doc)
		fmt.Fprintf(b, "type %s = %s\n\n", name, res.goType)
	}
}

// debug writes String and GoString methods that print the fields of an
// aggregate. Unions print their raw bytes.
func (e *emitter) debug(b *bytes.Buffer, name string, a *aggregate) {
	for _, f := range a.fields {
		if n := cgoField(f.name); n == "String" || n == "GoString" {
			return
		}
	}
	fmt.Fprintf(b, "// String formats the fields of v for debugging.\n")
	fmt.Fprintf(b, "func (v %s) String() string {\n", name)
	if a.kind == "union" {
		e.needFmt = true
		fmt.Fprintf(b, "return fmt.Sprintf(\"%s{%% x}\", v[:])\n}\n\n", name)
	} else {
		var labels, args []string
		for _, f := range a.fields {
			if f.bits || f.nested || f.name == "" {
				continue
			}
			labels = append(labels, f.name+": %v")
			args = append(args, "v."+cgoField(f.name))
		}
		if len(args) == 0 {
			fmt.Fprintf(b, "return %q\n}\n\n", name+"{}")
		} else {
			e.needFmt = true
			fmt.Fprintf(b, "return fmt.Sprintf(%q, %s)\n}\n\n",
				name+"{"+strings.Join(labels, ", ")+"}", strings.Join(args, ", "))
		}
	}
	fmt.Fprintf(b, "// GoString implements fmt.GoStringer.\n")
	fmt.Fprintf(b, "func (v %s) GoString() string { return \"%s.\" + v.String() }\n\n", name, e.pkg)
}

func (e *emitter) wrappers(b *bytes.Buffer) {
	for _, fn := range e.funcs {
		if fn.variadic {
			e.skip(fn.name, fn.position, "variadic parameters")
			continue
		}
		ret, ok := e.r.mapType(fn.ret)
		if !ok {
			e.skip(fn.name, fn.position, "result type "+fn.ret.String())
			continue
		}
		names := paramNames(fn.params)
		params := make([]string, len(fn.params))
		args := make([]string, len(fn.params))
		unsupported := ""
		for i, p := range fn.params {
			m, ok := e.r.mapType(p.typ)
			if !ok || m.how == convNone {
				unsupported = "parameter type " + p.typ.String()
				break
			}
			params[i] = names[i] + " " + m.goType
			args[i] = m.arg(names[i])
			if m.usesUnsafe() {
				e.needUnsafe = true
			}
		}
		if unsupported != "" {
			e.skip(fn.name, fn.position, unsupported)
			continue
		}
		if ret.usesUnsafe() {
			e.needUnsafe = true
		}

		name := e.name(fn.name)
		writeDoc(b, fmt.Sprintf("%s wraps %s from %s.", name, fn.name, fn.file), fn.doc)
		call := fmt.Sprintf("C.%s(%s)", fn.name, strings.Join(args, ", "))
		if ret.how == convNone {
			fmt.Fprintf(b, "func %s(%s) {\n%s\n}\n\n", name, strings.Join(params, ", "), call)
		} else {
			fmt.Fprintf(b, "func %s(%s) %s {\nreturn %s\n}\n\n", name, strings.Join(params, ", "), ret.goType, ret.ret(call))
		}
	}
}

func (e *emitter) skip(c string, pos position, reason string) {
	e.skipped = append(e.skipped, fmt.Sprintf("// %s from %s has no Go wrapper: unsupported %s.\n\n", c, pos.file, reason))
}

func writeDoc(b *bytes.Buffer, first string, doc []string) {
	b.WriteString("// " + first + "\n")
	if len(doc) == 0 {
		return
	}
	b.WriteString("//\n")
	for _, line := range doc {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			b.WriteString("//\n")
			continue
		}
		b.WriteString("// " + line + "\n")
	}
}
