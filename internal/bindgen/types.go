package bindgen

import (
	"strconv"
	"strings"
)

type scalar struct {
	c      string // cgo name without the "C." prefix
	goType string
}

// scalars maps normalised C arithmetic types to their cgo and Go spellings.
var scalars = map[string]scalar{
	"char":               {"char", "byte"},
	"signed char":        {"schar", "int8"},
	"unsigned char":      {"uchar", "byte"},
	"short":              {"short", "int16"},
	"unsigned short":     {"ushort", "uint16"},
	"int":                {"int", "int32"},
	"unsigned int":       {"uint", "uint32"},
	"long":               {"long", "int64"},
	"unsigned long":      {"ulong", "uint64"},
	"long long":          {"longlong", "int64"},
	"unsigned long long": {"ulonglong", "uint64"},
	"float":              {"float", "float32"},
	"double":             {"double", "float64"},
	"_Bool":              {"_Bool", "bool"},
	"size_t":             {"size_t", "uint"},
	"ssize_t":            {"ssize_t", "int"},
	"uintptr_t":          {"uintptr_t", "uintptr"},
	"intptr_t":           {"intptr_t", "int"},
	"int8_t":             {"int8_t", "int8"},
	"int16_t":            {"int16_t", "int16"},
	"int32_t":            {"int32_t", "int32"},
	"int64_t":            {"int64_t", "int64"},
	"uint8_t":            {"uint8_t", "uint8"},
	"uint16_t":           {"uint16_t", "uint16"},
	"uint32_t":           {"uint32_t", "uint32"},
	"uint64_t":           {"uint64_t", "uint64"},
}

type kind int

const (
	kUnknown kind = iota // a name the headers never define
	kVoid
	kScalar
	kAggregate // struct or union emitted as a Go type
	kOpaque    // struct or union without a Go type
	kHandle    // typedef of a pointer
	kFunc      // function or function pointer
)

// resolved is a base type after following typedefs.
type resolved struct {
	kind   kind
	goType string
	cgo    string
}

type conv int

const (
	convNone    conv = iota // void
	convValue               // T(x) in both directions
	convPointer             // through unsafe.Pointer in both directions
	convUnsafe              // unsafe.Pointer on the Go side, typed pointer on the C side
	convDirect              // identical types on both sides
)

// mapped is how a C type crosses the cgo boundary in a wrapper.
type mapped struct {
	goType string
	cType  string
	how    conv
}

// arg converts Go expression x to its C type.
func (m mapped) arg(x string) string {
	switch m.how {
	case convValue:
		return m.cType + "(" + x + ")"
	case convPointer:
		return "(" + m.cType + ")(unsafe.Pointer(" + x + "))"
	case convUnsafe:
		return paren(m.cType) + "(" + x + ")"
	}
	return x
}

// ret converts C expression e to the Go result type.
func (m mapped) ret(e string) string {
	switch m.how {
	case convValue:
		return m.goType + "(" + e + ")"
	case convPointer:
		return "(" + m.goType + ")(unsafe.Pointer(" + e + "))"
	case convUnsafe:
		return "unsafe.Pointer(" + e + ")"
	}
	return e
}

func (m mapped) usesUnsafe() bool {
	return m.how == convPointer || strings.Contains(m.goType, "unsafe.")
}

func paren(t string) string {
	if strings.HasPrefix(t, "*") {
		return "(" + t + ")"
	}
	return t
}

// resolver maps parsed C types to Go types for one unit.
type resolver struct {
	u     *unit
	names map[*aggregate]string // Go names of emitted aggregates
}

func (r *resolver) resolve(base string) resolved {
	return r.resolveDepth(base, 0)
}

func (r *resolver) resolveDepth(base string, depth int) resolved {
	if depth > 16 {
		return resolved{kind: kUnknown}
	}
	if base == "void" {
		return resolved{kind: kVoid}
	}
	if s, ok := scalars[base]; ok {
		return resolved{kind: kScalar, goType: s.goType, cgo: "C." + s.c}
	}
	if kw, tag, ok := strings.Cut(base, " "); ok && (kw == "struct" || kw == "union") {
		cgo := "C." + kw + "_" + tag
		if agg := r.u.tags[base]; agg != nil {
			if name, ok := r.names[agg]; ok {
				return resolved{kind: kAggregate, goType: name, cgo: cgo}
			}
		}
		return resolved{kind: kOpaque, cgo: cgo}
	}
	if base == "enum" {
		return resolved{kind: kScalar, goType: "int32"}
	}
	if tag, ok := strings.CutPrefix(base, "enum "); ok {
		return resolved{kind: kScalar, goType: "int32", cgo: "C.enum_" + tag}
	}
	td, ok := r.u.typedefs[base]
	if !ok {
		return resolved{kind: kUnknown, cgo: "C." + base}
	}
	cgo := "C." + base
	switch {
	case td.agg != nil:
		if name, ok := r.names[td.agg]; ok {
			return resolved{kind: kAggregate, goType: name, cgo: cgo}
		}
		return resolved{kind: kOpaque, cgo: cgo}
	case td.typ.fn:
		return resolved{kind: kFunc, cgo: cgo}
	case len(td.typ.dims) > 0:
		return resolved{kind: kUnknown, cgo: cgo}
	case td.typ.ptr > 0:
		return resolved{kind: kHandle, cgo: cgo}
	}
	inner := r.resolveDepth(td.typ.base, depth+1)
	if inner.kind != kVoid {
		inner.cgo = cgo
	}
	return inner
}

// mapType reports how t is passed to or returned from C. ok is false for
// types a wrapper cannot express.
func (r *resolver) mapType(t cType) (m mapped, ok bool) {
	if len(t.dims) > 0 {
		return m, false
	}
	if t.fn {
		return mapped{goType: "unsafe.Pointer", cType: "*[0]byte", how: convUnsafe}, true
	}
	res := r.resolve(t.base)
	if t.ptr == 0 {
		switch res.kind {
		case kVoid:
			return mapped{how: convNone}, true
		case kScalar, kAggregate:
			if res.cgo == "" {
				return m, false
			}
			return mapped{goType: res.goType, cType: res.cgo, how: convValue}, true
		case kHandle, kFunc:
			return mapped{goType: "unsafe.Pointer", cType: res.cgo, how: convUnsafe}, true
		}
		return m, false
	}
	stars := strings.Repeat("*", t.ptr)
	switch res.kind {
	case kVoid:
		switch t.ptr {
		case 1:
			return mapped{goType: "unsafe.Pointer", how: convDirect}, true
		case 2:
			return mapped{goType: "*unsafe.Pointer", how: convDirect}, true
		}
	case kScalar, kAggregate:
		if res.cgo == "" {
			return m, false
		}
		return mapped{goType: stars + res.goType, cType: stars + res.cgo, how: convPointer}, true
	case kOpaque, kUnknown, kHandle, kFunc:
		if t.ptr == 1 {
			return mapped{goType: "unsafe.Pointer", cType: "*" + res.cgo, how: convUnsafe}, true
		}
	}
	return m, false
}

// goKeywords are renamed when used as parameter or field names.
var goKeywords = map[string]bool{
	"break": true, "case": true, "chan": true, "const": true, "continue": true,
	"default": true, "defer": true, "else": true, "fallthrough": true, "for": true,
	"func": true, "go": true, "goto": true, "if": true, "import": true,
	"interface": true, "map": true, "package": true, "range": true, "return": true,
	"select": true, "struct": true, "switch": true, "type": true, "var": true,
}

// reservedParams shadow identifiers the generated wrappers refer to.
var reservedParams = map[string]bool{
	"C": true, "unsafe": true, "fmt": true,
	"bool": true, "byte": true, "int": true, "int8": true, "int16": true,
	"int32": true, "int64": true, "uint": true, "uint8": true, "uint16": true,
	"uint32": true, "uint64": true, "uintptr": true, "float32": true, "float64": true,
}

// paramNames returns Go-safe, unique names for ps.
func paramNames(ps []param) []string {
	out := make([]string, len(ps))
	used := make(map[string]bool, len(ps))
	for i, p := range ps {
		name := p.name
		switch {
		case name == "" || name == "_":
			name = "p" + strconv.Itoa(i)
		case goKeywords[name] || reservedParams[name]:
			name += "_"
		}
		for used[name] {
			name += "_"
		}
		used[name] = true
		out[i] = name
	}
	return out
}

// cgoField is the name cgo gives a C struct member.
func cgoField(name string) string {
	if goKeywords[name] {
		return "_" + name
	}
	return name
}

// goName turns a C identifier into an exported Go name:
// gf_vect_mul_init becomes GfVectMulInit.
func goName(c string) string {
	var b strings.Builder
	for _, part := range strings.Split(c, "_") {
		if part == "" {
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(part[1:])
	}
	s := b.String()
	if s == "" || !isIdentStart(s[0]) {
		s = "X" + s
	}
	return s
}
