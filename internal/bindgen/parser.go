package bindgen

import (
	"strings"
)

// position locates a declaration and carries its doc comment.
type position struct {
	file string // header name as reported in generated comments
	line int
	doc  []string
}

// cType is a parsed C type: a normalised base spelling plus indirection.
type cType struct {
	base string   // "int", "unsigned char", "struct gf_foo", "size_t", ...
	ptr  int      // levels of pointer indirection
	dims []string // array dimensions, outermost first
	fn   bool     // function or pointer to function
}

func (t cType) String() string {
	s := t.base
	if t.fn {
		s += " (*)()"
	}
	if t.ptr > 0 {
		s += " " + strings.Repeat("*", t.ptr)
	}
	for _, d := range t.dims {
		s += "[" + d + "]"
	}
	return s
}

type param struct {
	name string
	typ  cType
}

type function struct {
	name     string
	ret      cType
	params   []param
	variadic bool
	position
}

type field struct {
	name   string
	typ    cType
	bits   bool // bitfield, not addressable from Go
	nested bool // inline aggregate member
}

type aggregate struct {
	kind    string // "struct" or "union"
	tag     string
	typedef string
	fields  []field
	defined bool
	position
}

// cgo returns the cgo spelling of the aggregate type.
func (a *aggregate) cgo() string {
	if a.tag != "" {
		return "C." + a.kind + "_" + a.tag
	}
	return "C." + a.typedef
}

// name is the C name the allow-list is checked against.
func (a *aggregate) name() string {
	if a.typedef != "" {
		return a.typedef
	}
	return a.tag
}

type enumConst struct {
	name string
	position
}

type typedef struct {
	name string
	typ  cType
	agg  *aggregate // set when the typedef names a struct or union
	position
}

type macro struct {
	name  string
	value string // Go integer literal
	position
}

// unit accumulates the declarations of a header set in source order.
type unit struct {
	funcs    []*function
	aggs     []*aggregate
	consts   []*enumConst
	macros   []*macro
	typedefs map[string]*typedef
	tags     map[string]*aggregate // "struct tag" -> aggregate
	order    []string              // typedef names in source order
}

func newUnit() *unit {
	return &unit{typedefs: make(map[string]*typedef), tags: make(map[string]*aggregate)}
}

func (u *unit) aggregate(kind, tag string) *aggregate {
	if tag == "" {
		a := &aggregate{kind: kind}
		u.aggs = append(u.aggs, a)
		return a
	}
	key := kind + " " + tag
	if a, ok := u.tags[key]; ok {
		return a
	}
	a := &aggregate{kind: kind, tag: tag}
	u.tags[key] = a
	u.aggs = append(u.aggs, a)
	return a
}

func (u *unit) addTypedef(td *typedef) {
	if _, ok := u.typedefs[td.name]; ok {
		return
	}
	u.typedefs[td.name] = td
	u.order = append(u.order, td.name)
}

var qualifiers = map[string]bool{
	"const": true, "volatile": true, "restrict": true,
	"__restrict": true, "__restrict__": true, "__const": true,
	"_Atomic": true, "_Nonnull": true, "_Nullable": true,
}

var typeWords = map[string]bool{
	"void": true, "char": true, "short": true, "int": true, "long": true,
	"float": true, "double": true, "signed": true, "unsigned": true,
	"_Bool": true, "bool": true, "__signed__": true,
}

// noise is dropped from declarations before they are interpreted.
var noise = map[string]bool{
	"extern": true, "inline": true, "__inline": true, "__inline__": true,
	"__extension__": true, "register": true, "_Noreturn": true,
	"__cdecl": true, "__stdcall": true, "__fastcall": true,
}

// noiseCall is dropped together with its parenthesised argument.
var noiseCall = map[string]bool{
	"__attribute__": true, "__attribute": true, "__declspec": true,
	"asm": true, "__asm": true, "__asm__": true, "_Alignas": true,
}

var cKeywords = map[string]bool{
	"auto": true, "break": true, "case": true, "continue": true, "default": true,
	"do": true, "else": true, "enum": true, "for": true, "goto": true, "if": true,
	"return": true, "sizeof": true, "static": true, "struct": true, "switch": true,
	"typedef": true, "union": true, "while": true,
}

type parser struct {
	path string // file path for errors
	name string // header name for generated comments
	toks []token
	pos  int
	u    *unit
}

func (p *parser) peek(n int) token {
	if i := p.pos + n; i < len(p.toks) {
		return p.toks[i]
	}
	return p.toks[len(p.toks)-1]
}

func (t token) is(s string) bool {
	return (t.kind == tokPunct || t.kind == tokIdent) && t.text == s
}

// parseFile scans the token stream for top-level declarations.
func (p *parser) parseFile() error {
	extern := 0
	for {
		t := p.peek(0)
		switch {
		case t.kind == tokEOF:
			if extern > 0 {
				return parseError(p.path, t.line, "unterminated extern block")
			}
			return nil
		case t.is("extern") && p.peek(1).kind == tokString:
			if p.peek(2).is("{") {
				p.pos += 3
				extern++
				continue
			}
			// extern "C" on a single declaration
			p.pos += 2
			if p.pos < len(p.toks) && p.toks[p.pos].doc == nil {
				p.toks[p.pos].doc = t.doc
			}
		case t.is("}"):
			if extern == 0 {
				return parseError(p.path, t.line, "unbalanced '}'")
			}
			extern--
			p.pos++
		case t.is(";"):
			p.pos++
		default:
			toks, err := p.collect()
			if err != nil {
				return err
			}
			p.decl(toks)
		}
	}
}

// collect returns the tokens of the next declaration without its trailing
// ';'. Function definitions are consumed and yield nil.
func (p *parser) collect() ([]token, error) {
	start := p.peek(0)
	var out []token
	depth := 0
	for {
		t := p.peek(0)
		if t.kind == tokEOF {
			return nil, parseError(p.path, start.line, "unexpected end of file in declaration")
		}
		if t.kind == tokPunct {
			switch t.text {
			case "{":
				if depth == 0 && len(out) > 0 && out[len(out)-1].is(")") {
					return nil, p.skipBody()
				}
				depth++
			case "(", "[":
				depth++
			case ")", "]", "}":
				if depth == 0 {
					return nil, parseError(p.path, t.line, "unbalanced %q", t.text)
				}
				depth--
			case ";":
				if depth == 0 {
					p.pos++
					return out, nil
				}
			}
		}
		out = append(out, t)
		p.pos++
	}
}

func (p *parser) skipBody() error {
	start := p.peek(0)
	depth := 0
	for {
		t := p.peek(0)
		if t.kind == tokEOF {
			return parseError(p.path, start.line, "unterminated function body")
		}
		p.pos++
		if t.is("{") {
			depth++
		} else if t.is("}") {
			depth--
			if depth == 0 {
				return nil
			}
		}
	}
}

// decl interprets one declaration. Declarations outside the supported
// subset of C are ignored.
func (p *parser) decl(toks []token) {
	if len(toks) == 0 {
		return
	}
	pos := position{file: p.name, line: toks[0].line, doc: toks[0].doc}
	toks = stripNoise(toks)
	if len(toks) == 0 || topLevel(toks, "static") {
		return
	}
	isTypedef := toks[0].is("typedef")
	if isTypedef {
		toks = toks[1:]
	}
	base, agg, rest, ok := p.specifier(toks, pos)
	if !ok {
		return
	}

	for _, group := range splitTop(rest, ",") {
		d, ok := parseDeclarator(group)
		if !ok || d.name == "" {
			continue
		}
		typ := cType{base: base, ptr: d.ptr, dims: d.dims, fn: d.fn || d.fnptr}
		switch {
		case isTypedef:
			td := &typedef{name: d.name, typ: typ, position: pos}
			if agg != nil && typ.ptr == 0 && !typ.fn && len(typ.dims) == 0 {
				td.agg = agg
				if agg.typedef == "" {
					agg.typedef = d.name
				}
				if agg.tag == "" {
					base = d.name
				}
			}
			p.u.addTypedef(td)
		case d.fn && !d.fnptr:
			fn := &function{name: d.name, ret: cType{base: base, ptr: d.ptr}, position: pos}
			params, variadic, ok := p.params(d.params)
			if !ok {
				continue
			}
			fn.params, fn.variadic = params, variadic
			p.u.funcs = append(p.u.funcs, fn)
		}
	}
}

// specifier consumes the type specifier at the start of toks and returns
// the normalised base type and the declarator tokens that follow. Inline
// struct, union and enum bodies are recorded as a side effect.
func (p *parser) specifier(toks []token, pos position) (base string, agg *aggregate, rest []token, ok bool) {
	if len(toks) == 0 {
		return "", nil, nil, false
	}
	i := 0
	for i < len(toks) && qualifiers[toks[i].text] {
		i++
	}
	if i < len(toks) && isTag(toks[i]) {
		return p.tagged(toks[i:], pos)
	}
	spec, rest := splitSpecifier(toks)
	if len(spec) == 0 {
		return "", nil, nil, false
	}
	base = normalize(words(spec))
	if base == "" {
		return "", nil, nil, false
	}
	return base, nil, rest, true
}

func isTag(t token) bool {
	return t.is("struct") || t.is("union") || t.is("enum")
}

// tagged parses "struct|union|enum [tag] [{ body }]".
func (p *parser) tagged(toks []token, pos position) (string, *aggregate, []token, bool) {
	kind := toks[0].text
	i := 1
	tag := ""
	if i < len(toks) && toks[i].kind == tokIdent {
		tag = toks[i].text
		i++
	}
	base := strings.TrimSpace(kind + " " + tag)
	if i < len(toks) && toks[i].is("{") {
		end := matching(toks, i)
		if end < 0 {
			return "", nil, nil, false
		}
		body := toks[i+1 : end]
		rest := toks[end+1:]
		if kind == "enum" {
			p.enum(body, pos)
			return base, nil, rest, true
		}
		agg := p.u.aggregate(kind, tag)
		agg.fields = p.fields(body)
		agg.defined = true
		agg.position = pos
		if tag == "" {
			base = ""
		}
		return base, agg, rest, true
	}
	if tag == "" {
		return "", nil, nil, false
	}
	if kind == "enum" {
		return base, nil, toks[i:], true
	}
	agg := p.u.aggregate(kind, tag)
	if agg.position.file == "" {
		agg.position = pos
	}
	return base, agg, toks[i:], true
}

func (p *parser) enum(body []token, pos position) {
	for i, g := range splitTop(body, ",") {
		if g[0].kind != tokIdent {
			continue
		}
		doc := g[0].doc
		if doc == nil && i == 0 {
			doc = pos.doc
		}
		p.u.consts = append(p.u.consts, &enumConst{
			name:     g[0].text,
			position: position{file: p.name, line: g[0].line, doc: doc},
		})
	}
}

func (p *parser) fields(body []token) []field {
	var out []field
	for _, g := range splitTop(body, ";") {
		g = stripNoise(g)
		if len(g) == 0 {
			continue
		}
		pos := position{file: p.name, line: g[0].line, doc: g[0].doc}
		nested := false
		for _, t := range g {
			if t.is("{") {
				nested = true
				break
			}
		}
		base, _, rest, ok := p.specifier(g, pos)
		if !ok {
			continue
		}
		for _, d := range splitTop(rest, ",") {
			dc, ok := parseDeclarator(d)
			if !ok || dc.name == "" {
				continue
			}
			out = append(out, field{
				name:   dc.name,
				typ:    cType{base: base, ptr: dc.ptr, dims: dc.dims, fn: dc.fn || dc.fnptr},
				bits:   dc.bits,
				nested: nested || base == "",
			})
		}
	}
	return out
}

func (p *parser) params(toks []token) ([]param, bool, bool) {
	groups := splitTop(toks, ",")
	if len(groups) == 1 && len(groups[0]) == 1 && groups[0][0].is("void") {
		return nil, false, true
	}
	var out []param
	variadic := false
	for _, g := range groups {
		if len(g) == 1 && g[0].is("...") {
			variadic = true
			continue
		}
		g = stripNoise(g)
		base, _, rest, ok := p.specifier(g, position{})
		if !ok || base == "" {
			return nil, false, false
		}
		d, ok := parseDeclarator(rest)
		if !ok {
			return nil, false, false
		}
		typ := cType{base: base, ptr: d.ptr, fn: d.fn || d.fnptr}
		if len(d.dims) > 0 {
			// arrays decay to pointers
			typ.ptr++
			typ.dims = d.dims[1:]
		}
		out = append(out, param{name: d.name, typ: typ})
	}
	return out, variadic, true
}

type declarator struct {
	name   string
	ptr    int
	dims   []string
	fn     bool // followed by a parameter list
	fnptr  bool // (*name)(...)
	params []token
	bits   bool
}

// parseDeclarator handles the declarator forms found in library headers:
// pointers, arrays, function parameter lists, function pointers and
// bitfield widths. ok is false for anything else.
func parseDeclarator(toks []token) (d declarator, ok bool) {
	i := 0
	for i < len(toks) && (toks[i].is("*") || qualifiers[toks[i].text]) {
		if toks[i].is("*") {
			d.ptr++
		}
		i++
	}
	switch {
	case i < len(toks) && toks[i].is("(") && i+1 < len(toks) && toks[i+1].is("*"):
		end := matching(toks, i)
		if end < 0 {
			return d, false
		}
		inner, ok := parseDeclarator(toks[i+1 : end])
		if !ok {
			return d, false
		}
		d.name = inner.name
		d.fnptr = true
		i = end + 1
	case i < len(toks) && toks[i].kind == tokIdent:
		if typeWords[toks[i].text] || cKeywords[toks[i].text] {
			return d, false
		}
		d.name = toks[i].text
		i++
	}
	for i < len(toks) {
		t := toks[i]
		switch {
		case t.is("["):
			end := matching(toks, i)
			if end < 0 {
				return d, false
			}
			d.dims = append(d.dims, joinTokens(toks[i+1:end]))
			i = end + 1
		case t.is("("):
			end := matching(toks, i)
			if end < 0 || d.fn {
				return d, false
			}
			d.fn = true
			d.params = toks[i+1 : end]
			i = end + 1
		case t.is(":"):
			d.bits = true
			i = len(toks)
		case t.is("="):
			i = len(toks)
		default:
			return d, false
		}
	}
	return d, true
}

// splitSpecifier splits a builtin or typedef-name type specifier from the
// declarators that follow it.
func splitSpecifier(toks []token) (spec, rest []token) {
	named := false
	i := 0
loop:
	for ; i < len(toks); i++ {
		t := toks[i]
		if t.kind != tokIdent {
			break
		}
		switch {
		case qualifiers[t.text]:
		case typeWords[t.text]:
			named = true
		case !named && !cKeywords[t.text]:
			named = true
		default:
			break loop
		}
	}
	return toks[:i], toks[i:]
}

func words(toks []token) []string {
	var out []string
	for _, t := range toks {
		if !qualifiers[t.text] {
			out = append(out, t.text)
		}
	}
	return out
}

// normalize maps a list of builtin type words, or a single typedef name, to
// a canonical spelling.
func normalize(ws []string) string {
	var unsigned, signed, short, char, boolean, float, double, void bool
	long := 0
	named := ""
	for _, w := range ws {
		if typeWords[w] && named != "" {
			return ""
		}
		switch w {
		case "unsigned":
			unsigned = true
		case "signed", "__signed__":
			signed = true
		case "short":
			short = true
		case "long":
			long++
		case "char":
			char = true
		case "int":
		case "_Bool", "bool":
			boolean = true
		case "float":
			float = true
		case "double":
			double = true
		case "void":
			void = true
		default:
			if named != "" || len(ws) > 1 {
				return ""
			}
			named = w
		}
	}
	switch {
	case named != "":
		return named
	case void:
		return "void"
	case boolean:
		return "_Bool"
	case float:
		return "float"
	case double:
		if long > 0 {
			return "long double"
		}
		return "double"
	case char:
		if unsigned {
			return "unsigned char"
		}
		if signed {
			return "signed char"
		}
		return "char"
	}
	s := "int"
	switch {
	case short:
		s = "short"
	case long == 1:
		s = "long"
	case long >= 2:
		s = "long long"
	}
	if unsigned {
		s = "unsigned " + s
	}
	return s
}

// stripNoise drops storage classes, attributes and calling conventions.
func stripNoise(toks []token) []token {
	out := make([]token, 0, len(toks))
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if t.kind == tokIdent && noiseCall[t.text] {
			if i+1 < len(toks) && toks[i+1].is("(") {
				if end := matching(toks, i+1); end > 0 {
					i = end
				}
			}
			continue
		}
		if t.kind == tokIdent && noise[t.text] {
			continue
		}
		out = append(out, t)
	}
	if len(out) > 0 && len(toks) > 0 && out[0].doc == nil {
		out[0].doc = toks[0].doc
	}
	return out
}

// splitTop splits toks on sep at bracket depth zero. Empty groups are kept
// out of the result.
func splitTop(toks []token, sep string) [][]token {
	var out [][]token
	depth, start := 0, 0
	for i, t := range toks {
		if t.kind != tokPunct {
			continue
		}
		switch t.text {
		case "(", "[", "{":
			depth++
		case ")", "]", "}":
			depth--
		case sep:
			if depth == 0 {
				if i > start {
					out = append(out, toks[start:i])
				}
				start = i + 1
			}
		}
	}
	if start < len(toks) {
		out = append(out, toks[start:])
	}
	return out
}

func topLevel(toks []token, word string) bool {
	depth := 0
	for _, t := range toks {
		switch {
		case t.is("(") || t.is("[") || t.is("{"):
			depth++
		case t.is(")") || t.is("]") || t.is("}"):
			depth--
		case depth == 0 && t.is(word):
			return true
		}
	}
	return false
}

// matching returns the index of the bracket closing toks[open], or -1.
func matching(toks []token, open int) int {
	depth := 0
	for i := open; i < len(toks); i++ {
		if toks[i].kind != tokPunct {
			continue
		}
		switch toks[i].text {
		case "(", "[", "{":
			depth++
		case ")", "]", "}":
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func joinTokens(toks []token) string {
	parts := make([]string, len(toks))
	for i, t := range toks {
		parts[i] = t.text
	}
	return strings.Join(parts, " ")
}
