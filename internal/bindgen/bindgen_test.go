package bindgen

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

// generate writes a single header and returns the bindings generated from it.
func generate(t *testing.T, header string) string {
	t.Helper()
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"gf.h": header})
	g := &Generator{IncludePaths: []string{dir}}
	set, err := g.HeaderList([]string{"gf.h"})
	if err != nil {
		t.Fatal(err)
	}
	out, err := g.Generate(set)
	if err != nil {
		t.Fatal(err)
	}
	return string(out)
}

func parseSource(t *testing.T, src string) *unit {
	t.Helper()
	lx, err := lex("x.h", src)
	if err != nil {
		t.Fatal(err)
	}
	u := newUnit()
	p := &parser{path: "x.h", name: "x.h", toks: lx.toks, u: u}
	if err := p.parseFile(); err != nil {
		t.Fatal(err)
	}
	return u
}

func mustContain(t *testing.T, out string, want ...string) {
	t.Helper()
	for _, w := range want {
		if !strings.Contains(out, w) {
			t.Errorf("output missing %q\n%s", w, out)
		}
	}
}

func mustNotContain(t *testing.T, out string, bad ...string) {
	t.Helper()
	for _, b := range bad {
		if strings.Contains(out, b) {
			t.Errorf("output contains %q\n%s", b, out)
		}
	}
}

func TestAllowList(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"gf_inv", true},
		{"ec_encode_data", true},
		{"crc32_fn", false},
		{"gf_", false},
		{"GF_MAX", false},
		{"xgf_inv", false},
	}
	for _, tt := range tests {
		if got := DefaultAllowList.Allows(tt.name); got != tt.want {
			t.Errorf("Allows(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
	if !(AllowList{"gf_inv"}).Allows("gf_inv") || (AllowList{"gf_inv"}).Allows("gf_inv2") {
		t.Error("exact pattern matched wrongly")
	}
}

func TestGenerateFiltersSymbols(t *testing.T) {
	out := generate(t, `
int crc32_fn(void);
int gf_inv(int x);
`)
	mustContain(t, out,
		GeneratedHeader,
		"package isal",
		"#include <gf.h>",
		`import "C"`,
		"func GfInv(x int32) int32 {",
		"return int32(C.gf_inv(C.int(x)))",
	)
	mustNotContain(t, out, "crc32_fn", "Crc32Fn", `"unsafe"`, `"fmt"`)
}

func TestGenerateDeterministic(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"gf.h": "struct gf_s { int a; };\nint gf_inv(int);\nint ec_x(unsigned char *p);\n#define gf_n 4\n",
	})
	g := &Generator{IncludePaths: []string{dir}}
	set, err := g.HeaderList([]string{"gf.h"})
	if err != nil {
		t.Fatal(err)
	}
	a, err := g.Generate(set)
	if err != nil {
		t.Fatal(err)
	}
	b, err := g.Generate(set)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("two runs differ:\n%s", cmp.Diff(string(a), string(b)))
	}
}

func TestGeneratePreservesDocs(t *testing.T) {
	out := generate(t, `/* Copyright notice. */

/**
 * @brief Invert a field element.
 *
 * @returns the inverse
 */
int gf_inv(int x);

// Multiply two elements.
// Both must be non-zero.
unsigned char gf_mul(unsigned char a, unsigned char b);
`)
	mustContain(t, out,
		"// GfInv wraps gf_inv from gf.h.\n//\n// @brief Invert a field element.\n//\n// @returns the inverse\nfunc GfInv(",
		"// GfMul wraps gf_mul from gf.h.\n//\n// Multiply two elements.\n// Both must be non-zero.\nfunc GfMul(a byte, b byte) byte {",
	)
	mustNotContain(t, out, "Copyright")
}

func TestGeneratePointers(t *testing.T) {
	out := generate(t, `
int gf_vect_mul_init(unsigned char c, unsigned char* gftbl);
void gf_gen_rs_matrix(unsigned char *a, int m, int k);
void *gf_alloc(size_t n);
void ec_encode_data(int len, int k, int rows, unsigned char *gftbls,
		    unsigned char **data, unsigned char **coding);
`)
	mustContain(t, out,
		`"unsafe"`,
		"func GfVectMulInit(c byte, gftbl *byte) int32 {",
		"return int32(C.gf_vect_mul_init(C.uchar(c), (*C.uchar)(unsafe.Pointer(gftbl))))",
		"func GfGenRsMatrix(a *byte, m int32, k int32) {",
		"\tC.gf_gen_rs_matrix((*C.uchar)(unsafe.Pointer(a)), C.int(m), C.int(k))\n",
		"func GfAlloc(n uint) unsafe.Pointer {",
		"return C.gf_alloc(C.size_t(n))",
		"data **byte",
		"(**C.uchar)(unsafe.Pointer(data))",
	)
}

func TestGenerateAggregates(t *testing.T) {
	out := generate(t, `
struct gf_pair {
	int a;
	unsigned char *tbl;
	unsigned flag:1;
};

typedef struct {
	int type;
	struct gf_pair pairs[2];
} ec_ctx;

union gf_u { int i; float f; };

struct other { int z; };

int ec_ctx_init(ec_ctx *ctx, struct other *o, struct gf_pair p);
`)
	mustContain(t, out,
		`"fmt"`,
		"type GfPair C.struct_gf_pair",
		`return fmt.Sprintf("GfPair{a: %v, tbl: %v}", v.a, v.tbl)`,
		`func (v GfPair) GoString() string { return "isal." + v.String() }`,
		"type EcCtx C.ec_ctx",
		`return fmt.Sprintf("EcCtx{type: %v, pairs: %v}", v._type, v.pairs)`,
		"type GfU C.union_gf_u",
		`return fmt.Sprintf("GfU{% x}", v[:])`,
		"func EcCtxInit(ctx *EcCtx, o unsafe.Pointer, p GfPair) int32 {",
		"C.ec_ctx_init((*C.ec_ctx)(unsafe.Pointer(ctx)), (*C.struct_other)(o), C.struct_gf_pair(p))",
	)
	mustNotContain(t, out, "flag", "Other")
}

func TestGenerateConstants(t *testing.T) {
	out := generate(t, `
/* Largest supported source count. */
#define gf_max_src 0x10U
#define GF_HIDDEN 3
#define gf_not_int "str"
#define gf_fn(x) ((x)+1)

enum ec_mode { ec_mode_a = 1, ec_mode_b, crc_mode };
typedef unsigned char gf_elem;
typedef enum { ec_fast, ec_slow } ec_speed;
`)
	mustContain(t, out,
		"// GfMaxSrc is macro gf_max_src from gf.h.\n\t//\n\t// Largest supported source count.\n\tGfMaxSrc = 0x10\n",
		"EcModeA = C.ec_mode_a",
		"EcModeB = C.ec_mode_b",
		"EcFast = C.ec_fast",
		"type GfElem = byte",
		"type EcSpeed = int32",
	)
	mustNotContain(t, out, "GF_HIDDEN", "GfNotInt", "GfFn", "crc_mode")
}

func TestGenerateUnsupported(t *testing.T) {
	out := generate(t, `
int gf_printf(const char *fmt, ...);
int gf_cube(int m[2][3]);
static inline int gf_fast(int a) { return a; }
#ifdef __cplusplus
extern "C" {
#endif
int gf_inside(int a);
#ifdef __cplusplus
}
#endif
`)
	mustContain(t, out,
		"// gf_printf from gf.h has no Go wrapper: unsupported variadic parameters.",
		"// gf_cube from gf.h has no Go wrapper: unsupported parameter type int *[3].",
		"func GfInside(a int32) int32 {",
	)
	mustNotContain(t, out, "GfFast", "func GfPrintf")
}

func TestParamNames(t *testing.T) {
	got := paramNames([]param{{name: "type"}, {name: ""}, {name: "C"}, {name: "byte"}, {name: "x"}, {name: "x"}})
	want := []string{"type_", "p1", "C_", "byte_", "x", "x_"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("paramNames mismatch (-want +got):\n%s", diff)
	}
}

func TestGoName(t *testing.T) {
	tests := map[string]string{
		"gf_vect_mul_init": "GfVectMulInit",
		"ec_encode_data":   "EcEncodeData",
		"gf_2vect_dot":     "Gf2vectDot",
		"_gf_x_":           "GfX",
	}
	for c, want := range tests {
		if got := goName(c); got != want {
			t.Errorf("goName(%q) = %q, want %q", c, got, want)
		}
	}
}

func TestDocAttachment(t *testing.T) {
	u := parseSource(t, `/* license */

/** doc for a */
int gf_a(void);
int gf_b(void); // trailing
int gf_c(void);
/* detached */

int gf_d(void);
`)
	got := make(map[string][]string)
	for _, fn := range u.funcs {
		got[fn.name] = fn.doc
	}
	want := map[string][]string{
		"gf_a": {"doc for a"},
		"gf_b": nil,
		"gf_c": nil,
		"gf_d": nil,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("docs mismatch (-want +got):\n%s", diff)
	}
}

func TestParseDeclarations(t *testing.T) {
	u := parseSource(t, `
typedef int (*gf_cb)(int);
typedef struct gf_s gf_t;
struct gf_s { int a, *b, c[4]; };
extern int gf_var;
const unsigned char *gf_table(void) __attribute__((pure));
unsigned long long gf_wide(long long a, unsigned b);
`)
	if td := u.typedefs["gf_cb"]; td == nil || !td.typ.fn {
		t.Errorf("gf_cb = %+v, want function pointer typedef", td)
	}
	agg := u.tags["struct gf_s"]
	if agg == nil || !agg.defined || agg.typedef != "gf_t" {
		t.Fatalf("struct gf_s = %+v", agg)
	}
	var names []string
	for _, f := range agg.fields {
		names = append(names, f.typ.base+" "+f.name)
	}
	if diff := cmp.Diff([]string{"int a", "int b", "int c"}, names); diff != "" {
		t.Errorf("fields (-want +got):\n%s", diff)
	}
	if agg.fields[1].typ.ptr != 1 || len(agg.fields[2].typ.dims) != 1 {
		t.Errorf("declarators not applied: %+v", agg.fields)
	}

	var funcs []string
	for _, fn := range u.funcs {
		funcs = append(funcs, fn.name)
	}
	if diff := cmp.Diff([]string{"gf_table", "gf_wide"}, funcs); diff != "" {
		t.Errorf("funcs (-want +got):\n%s", diff)
	}
	wide := u.funcs[1]
	if wide.ret.base != "unsigned long long" || wide.params[0].typ.base != "long long" || wide.params[1].typ.base != "unsigned int" {
		t.Errorf("gf_wide types = %+v", wide)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name, src, want string
	}{
		{"comment", "int gf_a(void);\n/* never closed\n", "x.h:2: unterminated comment"},
		{"eof", "int gf_a(void);\nstruct gf_s { int a;\n", "x.h:2: unexpected end of file"},
		{"brace", "int gf_a(void);\n}\n", "x.h:2: unbalanced '}'"},
		{"string", "int gf_a(void);\nchar *s = \"abc\n;", "x.h:2: unterminated literal"},
		{"extern", "extern \"C\" {\nint gf_a(void);\n", "unterminated extern block"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lx, err := lex("x.h", tt.src)
			if err == nil {
				p := &parser{path: "x.h", name: "x.h", toks: lx.toks, u: newUnit()}
				err = p.parseFile()
			}
			if !errors.Is(err, ErrParseFailed) {
				t.Fatalf("err = %v, want ErrParseFailed", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %q, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestHeadersFromWrapper(t *testing.T) {
	dir := t.TempDir()
	inc := filepath.Join(dir, "include")
	writeFiles(t, dir, map[string]string{
		"wrapper.h":              "#include <isa-l.h>\n",
		"include/isa-l.h":        "#include \"gf_vect_mul.h\"\n#include \"erasure_code.h\"\n",
		"include/gf_vect_mul.h":  "int gf_vect_mul_init(unsigned char c, unsigned char *tbl);\n",
		"include/erasure_code.h": "#include <stdint.h>\n#include \"gf_vect_mul.h\"\nint ec_init_tables(int k, int rows, unsigned char *a, unsigned char *g);\n",
	})

	g := &Generator{IncludePaths: []string{inc}}
	set, err := g.Headers(filepath.Join(dir, "wrapper.h"))
	if err != nil {
		t.Fatal(err)
	}
	want := []Header{
		{Path: filepath.Join(dir, "wrapper.h"), Name: "wrapper.h"},
		{Path: filepath.Join(inc, "isa-l.h"), Name: "isa-l.h"},
		{Path: filepath.Join(inc, "gf_vect_mul.h"), Name: "gf_vect_mul.h"},
		{Path: filepath.Join(inc, "erasure_code.h"), Name: "erasure_code.h"},
	}
	if diff := cmp.Diff(want, set.Files); diff != "" {
		t.Errorf("files (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"<isa-l.h>"}, set.Includes); diff != "" {
		t.Errorf("includes (-want +got):\n%s", diff)
	}

	out, err := g.Generate(set)
	if err != nil {
		t.Fatal(err)
	}
	mustContain(t, string(out),
		"#include <isa-l.h>",
		"// GfVectMulInit wraps gf_vect_mul_init from gf_vect_mul.h.",
		"// EcInitTables wraps ec_init_tables from erasure_code.h.",
	)
	if n := strings.Count(string(out), "func GfVectMulInit("); n != 1 {
		t.Errorf("GfVectMulInit emitted %d times", n)
	}
}

func TestHeadersWrapperDeclares(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"wrapper.h":     "#include \"gf.h\"\nint gf_local(void);\n",
		"include/gf.h":  "int gf_inv(int);\n",
		"include/gf2.h": "int gf_unused(int);\n",
	})
	g := &Generator{IncludePaths: []string{filepath.Join(dir, "include")}}
	set, err := g.Headers(filepath.Join(dir, "wrapper.h"))
	if err != nil {
		t.Fatal(err)
	}
	wantInc := `"` + filepath.Join(dir, "wrapper.h") + `"`
	if diff := cmp.Diff([]string{wantInc}, set.Includes); diff != "" {
		t.Errorf("includes (-want +got):\n%s", diff)
	}
	if len(set.Files) != 2 {
		t.Errorf("files = %+v, want wrapper and gf.h", set.Files)
	}
}

func TestHeadersUnresolved(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"wrapper.h": "#include <isa-l.h>\n"})
	g := &Generator{IncludePaths: []string{filepath.Join(dir, "include")}}

	if _, err := g.Headers(filepath.Join(dir, "wrapper.h")); !errors.Is(err, ErrParseFailed) {
		t.Errorf("Headers err = %v, want ErrParseFailed", err)
	}
	if _, err := g.Headers(filepath.Join(dir, "missing.h")); !errors.Is(err, ErrParseFailed) {
		t.Errorf("Headers(missing) err = %v, want ErrParseFailed", err)
	}
	if _, err := g.HeaderList([]string{"isa-l.h"}); !errors.Is(err, ErrParseFailed) {
		t.Errorf("HeaderList err = %v, want ErrParseFailed", err)
	}
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"include/gf.h": "int gf_inv(int x);\n"})
	g := &Generator{Package: "bindings", IncludePaths: []string{filepath.Join(dir, "include")}}
	set, err := g.HeaderList([]string{"gf.h"})
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(dir, "out", "bindings", "zisal.go")
	if err := g.WriteFile(path, set); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, []byte(GeneratedHeader+"\n\npackage bindings\n")) {
		t.Errorf("unexpected file start:\n%s", data)
	}
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("leftover temporary files: %v", entries)
	}
}

func TestWriteFileFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	err := WriteSource(filepath.Join(blocker, "zisal.go"), []byte("package isal\n"))
	if !errors.Is(err, ErrWriteFailed) {
		t.Fatalf("err = %v, want ErrWriteFailed", err)
	}
	var be *Error
	if !errors.As(err, &be) || be.Path != filepath.Join(blocker, "zisal.go") {
		t.Errorf("err = %#v, want *Error for the output path", err)
	}
}

func TestGenerateSeesHeaderChanges(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"gf.h": "int gf_one(void);\n"})
	g := &Generator{IncludePaths: []string{dir}}

	set, err := g.HeaderList([]string{"gf.h"})
	if err != nil {
		t.Fatal(err)
	}
	first, err := g.Generate(set)
	if err != nil {
		t.Fatal(err)
	}
	mustContain(t, string(first), "func GfOne(")

	writeFiles(t, dir, map[string]string{"gf.h": "int gf_one(void);\nint gf_two(void);\n"})
	second, err := g.Generate(set)
	if err != nil {
		t.Fatal(err)
	}
	mustContain(t, string(second), "func GfOne(", "func GfTwo(")
}
