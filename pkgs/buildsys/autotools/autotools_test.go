package autotools

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/goplus/isal/pkgs/buildsys"
)

// fakeRunner records commands and answers with canned results.
type fakeRunner struct {
	cmds    []buildsys.Command
	results map[string]*buildsys.Result // keyed by Command.String()
	onRun   func(cmd buildsys.Command)
}

func (f *fakeRunner) Run(ctx context.Context, cmd buildsys.Command) (*buildsys.Result, error) {
	f.cmds = append(f.cmds, cmd)
	if f.onRun != nil {
		f.onRun(cmd)
	}
	if res, ok := f.results[cmd.String()]; ok {
		return res, nil
	}
	return &buildsys.Result{}, nil
}

func (f *fakeRunner) lines() []string {
	var out []string
	for _, c := range f.cmds {
		out = append(out, c.String())
	}
	return out
}

func TestBuildAndInstallCommandSequence(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "src")
	build := filepath.Join(tmp, "build")
	if err := os.MkdirAll(src, 0o755); err != nil {
		t.Fatal(err)
	}

	fr := &fakeRunner{}
	a := New(src, build, tmp, WithRunner(fr), WithJobs(4))
	a.Env("CFLAGS", CFlags())

	art, err := BuildAndInstall(context.Background(), a, "--disable-debug")
	if err != nil {
		t.Fatalf("BuildAndInstall: %v", err)
	}

	want := []string{
		"sh -c ./autogen.sh",
		filepath.Join(src, "configure") + " --prefix=" + tmp + " --enable-shared --enable-static --disable-debug",
		"make -j4",
		"make install",
	}
	got := fr.lines()
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Fatalf("commands:\n%s\nwant:\n%s", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}
	if fr.cmds[0].Dir != src {
		t.Errorf("bootstrap dir = %q, want %q", fr.cmds[0].Dir, src)
	}
	for _, c := range fr.cmds[1:] {
		if c.Dir != build {
			t.Errorf("%s ran in %q, want %q", c, c.Dir, build)
		}
		if c.Env["CFLAGS"] != CFlags() {
			t.Errorf("%s CFLAGS = %q", c, c.Env["CFLAGS"])
		}
	}
	if _, err := os.Stat(build); !os.IsNotExist(err) {
		t.Errorf("build dir still present: %v", err)
	}
	if art.LibDir != filepath.Join(tmp, "lib") || art.IncludeDir != filepath.Join(tmp, "include") {
		t.Errorf("unexpected artifact %+v", art)
	}
}

func TestBootstrapFailureIsConfigureError(t *testing.T) {
	tmp := t.TempDir()
	fr := &fakeRunner{results: map[string]*buildsys.Result{
		"sh -c ./autogen.sh": {ExitCode: 1, Stdout: []byte("running autoreconf"), Stderr: []byte("autoreconf: not found")},
	}}
	a := New(tmp, filepath.Join(tmp, "build"), tmp, WithRunner(fr))

	_, err := BuildAndInstall(context.Background(), a)
	var ce *ConfigureError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want *ConfigureError", err)
	}
	if ce.Phase != "bootstrap" {
		t.Errorf("Phase = %q", ce.Phase)
	}
	msg := err.Error()
	for _, s := range []string{"exit status 1", "running autoreconf", "autoreconf: not found"} {
		if !strings.Contains(msg, s) {
			t.Errorf("error message missing %q:\n%s", s, msg)
		}
	}
	if len(fr.cmds) != 1 {
		t.Errorf("ran %d commands after bootstrap failure", len(fr.cmds))
	}
}

func TestMakeFailureIsBuildErrorAndKeepsBuildDir(t *testing.T) {
	tmp := t.TempDir()
	build := filepath.Join(tmp, "build")
	fr := &fakeRunner{results: map[string]*buildsys.Result{
		"make": {ExitCode: 2, Stderr: []byte("gf.c:1: error")},
	}}
	a := New(tmp, build, tmp, WithRunner(fr))

	_, err := BuildAndInstall(context.Background(), a)
	var be *BuildError
	if !errors.As(err, &be) {
		t.Fatalf("err = %v, want *BuildError", err)
	}
	if be.Phase != "build" || be.Result.ExitCode != 2 {
		t.Errorf("unexpected BuildError %+v", be)
	}
	if _, err := os.Stat(build); err != nil {
		t.Errorf("build dir should survive a failed build: %v", err)
	}
}

func TestObserverSeesEveryCommand(t *testing.T) {
	tmp := t.TempDir()
	var seen []string
	a := New(tmp, filepath.Join(tmp, "build"), tmp,
		WithRunner(&fakeRunner{}),
		WithObserver(func(cmd buildsys.Command, res *buildsys.Result) {
			seen = append(seen, cmd.Name)
		}))
	if _, err := BuildAndInstall(context.Background(), a); err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(seen, ","); got != "sh,"+filepath.Join(tmp, "configure")+",make,make" {
		t.Fatalf("observed %q", got)
	}
}

func TestOutputDirPrefersInstall(t *testing.T) {
	a := New("src", "build", "")
	if got := a.OutputDir(); got != "build" {
		t.Fatalf("default OutputDir = %q, want %q", got, "build")
	}
	a.InstallDir("custom-install")
	if got := a.OutputDir(); got != "custom-install" {
		t.Fatalf("OutputDir after InstallDir = %q, want %q", got, "custom-install")
	}
}

func TestCheckTools(t *testing.T) {
	look := func(name string) (string, error) {
		if name == "make" {
			return "/usr/bin/make", nil
		}
		return "", exec.ErrNotFound
	}
	if err := CheckTools(look, "make"); err != nil {
		t.Fatalf("CheckTools(make) = %v", err)
	}
	err := CheckTools(look, "sh", "make", "autoreconf")
	if err == nil {
		t.Fatal("expected error")
	}
	for _, s := range []string{`"sh"`, `"autoreconf"`} {
		if !strings.Contains(err.Error(), s) {
			t.Errorf("error %q does not mention %s", err, s)
		}
	}
	if !errors.Is(err, exec.ErrNotFound) {
		t.Errorf("errors.Is(err, exec.ErrNotFound) = false")
	}
}

func TestVerifyArtifact(t *testing.T) {
	tmp := t.TempDir()
	art := buildsys.NewArtifact(tmp)
	if err := VerifyArtifact(art, "isal"); err == nil {
		t.Fatal("expected error for empty prefix")
	}
	for _, dir := range []string{art.LibDir, art.IncludeDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := VerifyArtifact(art, "isal"); err == nil {
		t.Fatal("expected error without library")
	}
	if err := os.WriteFile(filepath.Join(art.LibDir, "libisal.a"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := VerifyArtifact(art, "isal"); err != nil {
		t.Fatalf("VerifyArtifact: %v", err)
	}
}

const fakeConfigure = `#!/bin/sh
prefix=/usr/local
for arg in "$@"; do
  case "$arg" in
    --prefix=*) prefix="${arg#--prefix=}" ;;
  esac
done
srcdir=$(cd "$(dirname "$0")" && pwd)
echo "ARGS=$*" > config.log
echo "CFLAGS=$CFLAGS" >> config.log
{
  echo "prefix = $prefix"
  echo "srcdir = $srcdir"
  echo "CFLAGS = $CFLAGS"
  printf 'all: libdummy.a\n\n'
  printf 'libdummy.a: $(srcdir)/dummy.c\n\t$(CC) $(CFLAGS) -c $(srcdir)/dummy.c -o dummy.o\n\tar rcs libdummy.a dummy.o\n\n'
  printf 'install: libdummy.a\n\tmkdir -p $(prefix)/lib $(prefix)/include\n\tcp libdummy.a $(prefix)/lib/\n\tcp $(srcdir)/dummy.h $(prefix)/include/\n'
} > Makefile
`

const fakeAutogen = `#!/bin/sh
cp configure.in configure
chmod +x configure
`

func TestBuildAndInstallE2E(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("autotools e2e needs a POSIX shell")
	}
	for _, bin := range []string{"sh", "make", "cc", "ar"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not found in PATH", bin)
		}
	}

	tmp := t.TempDir()
	src := filepath.Join(tmp, "src")
	if err := os.MkdirAll(src, 0o755); err != nil {
		t.Fatal(err)
	}
	files := map[string]struct {
		body string
		mode os.FileMode
	}{
		"autogen.sh":   {fakeAutogen, 0o755},
		"configure.in": {fakeConfigure, 0o644},
		"dummy.c":      {"int dummy(void) { return 42; }\n", 0o644},
		"dummy.h":      {"int dummy(void);\n", 0o644},
	}
	for name, f := range files {
		if err := os.WriteFile(filepath.Join(src, name), []byte(f.body), f.mode); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	prefix := filepath.Join(tmp, "out")
	build := filepath.Join(prefix, "build")
	a := New(src, build, prefix)
	a.Env("CFLAGS", CFlags())

	art, err := BuildAndInstall(context.Background(), a)
	if err != nil {
		t.Fatalf("BuildAndInstall: %v", err)
	}
	if err := VerifyArtifact(art, "dummy"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(art.IncludeDir, "dummy.h")); err != nil {
		t.Fatalf("installed header missing: %v", err)
	}
	if _, err := os.Stat(build); !os.IsNotExist(err) {
		t.Fatalf("build dir not removed: %v", err)
	}
}
