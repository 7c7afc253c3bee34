// Package probe looks up an installed copy of a native library through the
// platform's pkg-config registry.
package probe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-shellwords"
	"golang.org/x/mod/semver"

	"github.com/goplus/isal/pkgs/buildsys"
)

// Probe failure kinds, matched with errors.Is.
var (
	ErrNotFound          = errors.New("library not found")
	ErrVersionTooLow     = errors.New("library version below minimum")
	ErrBadVersion        = errors.New("unparseable library version")
	ErrStaticUnavailable = errors.New("static library not installed")
)

// Error is a recoverable probe failure.
type Error struct {
	Kind    error // one of the Err* kinds above
	Library string
	Version string // reported version, if any
	Min     string
	Err     error // underlying cause, may be nil
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "probe %s: %v", e.Library, e.Kind)
	if e.Version != "" {
		fmt.Fprintf(&b, " (found %s, need >= %s)", e.Version, e.Min)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Result describes an installed library that satisfies the version floor.
type Result struct {
	Library      string
	Version      string
	IncludePaths []string
	LinkPaths    []string
}

// Prober queries pkg-config through a buildsys.Runner.
type Prober struct {
	Runner    buildsys.Runner
	PkgConfig string // pkg-config binary, "$PKG_CONFIG" or "pkg-config" if empty
	Static    bool   // require lib<LibName>.a in a link path
	LibName   string // link name used for the static check, e.g. "isal"
}

// Probe looks up library (a pkg-config module name) and checks that its
// version is at least min. It does not touch the filesystem beyond the
// static-archive check.
func (p *Prober) Probe(ctx context.Context, library, min string) (*Result, error) {
	fail := func(kind error, version string, cause error) (*Result, error) {
		return nil, &Error{Kind: kind, Library: library, Version: version, Min: min, Err: cause}
	}

	if _, err := p.query(ctx, "--exists", library); err != nil {
		return fail(ErrNotFound, "", err)
	}
	out, err := p.query(ctx, "--modversion", library)
	if err != nil {
		return fail(ErrNotFound, "", err)
	}
	version := strings.TrimSpace(out)
	cmp, err := CompareVersions(version, min)
	if err != nil {
		return fail(ErrBadVersion, version, err)
	}
	if cmp < 0 {
		return fail(ErrVersionTooLow, version, nil)
	}

	includes, err := p.paths(ctx, library, "includedir", "--cflags-only-I", "-I")
	if err != nil {
		return fail(ErrNotFound, version, err)
	}
	if len(includes) == 0 {
		return fail(ErrNotFound, version, fmt.Errorf("no include path reported"))
	}
	links, err := p.paths(ctx, library, "libdir", "--libs-only-L", "-L")
	if err != nil {
		return fail(ErrNotFound, version, err)
	}
	if p.Static && !HasStaticArchive(links, p.libName(library)) {
		return fail(ErrStaticUnavailable, "", fmt.Errorf("lib%s.a not in %v", p.libName(library), links))
	}

	return &Result{
		Library:      library,
		Version:      version,
		IncludePaths: includes,
		LinkPaths:    links,
	}, nil
}

// paths merges the directory held by a pkg-config variable with the
// directories listed by a flag query. pkg-config strips system directories
// from the flag output, so the variable comes first.
func (p *Prober) paths(ctx context.Context, library, variable, flag, prefix string) ([]string, error) {
	var dirs []string
	out, err := p.query(ctx, "--variable="+variable, library)
	if err != nil {
		return nil, err
	}
	if dir := strings.TrimSpace(out); dir != "" {
		dirs = append(dirs, dir)
	}

	args := []string{flag}
	if p.Static && flag == "--libs-only-L" {
		args = append(args, "--static")
	}
	out, err = p.query(ctx, append(args, library)...)
	if err != nil {
		return nil, err
	}
	// pkg-config escapes spaces in paths with a backslash
	fields, err := shellwords.Parse(strings.TrimSpace(out))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s output: %w", flag, err)
	}
	for _, f := range fields {
		if dir, ok := strings.CutPrefix(f, prefix); ok && dir != "" {
			dirs = append(dirs, dir)
		}
	}
	return dedupe(dirs), nil
}

func (p *Prober) query(ctx context.Context, args ...string) (string, error) {
	cmd := buildsys.Command{Name: p.binary(), Args: args}
	res, err := p.Runner.Run(ctx, cmd)
	if err != nil {
		return "", err
	}
	if !res.Success() {
		msg := strings.TrimSpace(string(res.Stderr))
		if msg == "" {
			return "", fmt.Errorf("%s: exit status %d", cmd, res.ExitCode)
		}
		return "", fmt.Errorf("%s: exit status %d: %s", cmd, res.ExitCode, msg)
	}
	return string(res.Stdout), nil
}

func (p *Prober) binary() string {
	if p.PkgConfig != "" {
		return p.PkgConfig
	}
	if env := os.Getenv("PKG_CONFIG"); env != "" {
		return env
	}
	return "pkg-config"
}

func (p *Prober) libName(library string) string {
	if p.LibName != "" {
		return p.LibName
	}
	return strings.TrimPrefix(library, "lib")
}

// CompareVersions compares two dotted numeric versions such as "2.31" and
// "2.30.0". A leading "v" is optional.
func CompareVersions(a, b string) (int, error) {
	va, err := canonical(a)
	if err != nil {
		return 0, err
	}
	vb, err := canonical(b)
	if err != nil {
		return 0, err
	}
	return semver.Compare(va, vb), nil
}

func canonical(v string) (string, error) {
	s := strings.TrimSpace(v)
	if !strings.HasPrefix(s, "v") {
		s = "v" + s
	}
	if !semver.IsValid(s) {
		return "", fmt.Errorf("invalid version %q", v)
	}
	return semver.Canonical(s), nil
}

// HasStaticArchive reports whether lib<name>.a exists in one of dirs.
func HasStaticArchive(dirs []string, name string) bool {
	for _, dir := range dirs {
		if fi, err := os.Stat(filepath.Join(dir, "lib"+name+".a")); err == nil && fi.Mode().IsRegular() {
			return true
		}
	}
	return false
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = filepath.Clean(s)
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
