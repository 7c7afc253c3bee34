// Package autotools wraps the autogen/configure/make/make-install workflow.
package autotools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/goplus/isal/pkgs/buildsys"
)

// OptFlags is the fixed optimization level passed to the compiler.
const OptFlags = "-O2"

// AutoTools drives autotools-style builds through a buildsys.Runner.
type AutoTools struct {
	runner     buildsys.Runner
	observe    func(cmd buildsys.Command, res *buildsys.Result)
	sourceDir  string
	buildDir   string
	installDir string
	jobs       int
	env        map[string]string
}

var _ buildsys.BuildSystem = (*AutoTools)(nil)

// Option configures an AutoTools.
type Option func(*AutoTools)

// WithRunner replaces the default os/exec runner.
func WithRunner(r buildsys.Runner) Option {
	return func(a *AutoTools) { a.runner = r }
}

// WithJobs sets the make parallelism. Values below 1 mean a serial build.
func WithJobs(n int) Option {
	return func(a *AutoTools) { a.jobs = n }
}

// WithObserver registers fn to receive every command together with its
// captured output, successful or not.
func WithObserver(fn func(cmd buildsys.Command, res *buildsys.Result)) Option {
	return func(a *AutoTools) { a.observe = fn }
}

// New returns an AutoTools that configures sourceDir out of tree in
// buildDir and installs into installDir.
func New(sourceDir, buildDir, installDir string, opts ...Option) *AutoTools {
	a := &AutoTools{
		runner:     buildsys.ExecRunner{},
		sourceDir:  sourceDir,
		buildDir:   buildDir,
		installDir: installDir,
		env:        make(map[string]string),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Source overrides the source directory.
func (a *AutoTools) Source(dir string) { a.sourceDir = dir }

// InstallDir overrides the install prefix.
func (a *AutoTools) InstallDir(dir string) { a.installDir = dir }

// Env sets key=value for every command spawned later.
// The current process environment is left untouched.
func (a *AutoTools) Env(key, value string) {
	a.env[key] = value
}

// Bootstrap runs ./autogen.sh in the source directory to produce configure.
func (a *AutoTools) Bootstrap(ctx context.Context) error {
	cmd := buildsys.Command{
		Name: "sh",
		Args: []string{"-c", "./autogen.sh"},
		Dir:  a.sourceDir,
	}
	res, err := a.run(ctx, cmd)
	if err != nil || !res.Success() {
		return &ConfigureError{Phase: "bootstrap", Cmd: cmd, Result: res, Err: err}
	}
	return nil
}

// Configure runs <sourceDir>/configure inside buildDir.
// --prefix is prepended automatically when installDir is set.
// Extra flags are appended after --prefix.
func (a *AutoTools) Configure(ctx context.Context, args ...string) error {
	dir := a.workDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &ConfigureError{Phase: "configure", Cmd: buildsys.Command{Name: "mkdir", Args: []string{dir}}, Err: err}
	}
	exe := filepath.Join(a.sourceDir, "configure")
	if dir == "." {
		exe = "./configure"
	}
	flags := make([]string, 0, 1+len(args))
	if a.installDir != "" {
		flags = append(flags, "--prefix="+a.installDir)
	}
	cmd := a.command(exe, append(flags, args...))
	res, err := a.run(ctx, cmd)
	if err != nil || !res.Success() {
		return &ConfigureError{Phase: "configure", Cmd: cmd, Result: res, Err: err}
	}
	return nil
}

// Build runs "make" with the configured parallelism and optional extra arguments.
func (a *AutoTools) Build(ctx context.Context, args ...string) error {
	flags := make([]string, 0, 1+len(args))
	if a.jobs > 1 {
		flags = append(flags, "-j"+strconv.Itoa(a.jobs))
	}
	return a.make(ctx, "build", append(flags, args...))
}

// Install runs "make install" with optional extra arguments appended.
func (a *AutoTools) Install(ctx context.Context, args ...string) error {
	return a.make(ctx, "install", append([]string{"install"}, args...))
}

// Clean removes the build directory. Installed files are kept.
func (a *AutoTools) Clean() error {
	if a.buildDir == "" || a.buildDir == "." {
		return nil
	}
	return os.RemoveAll(a.buildDir)
}

// OutputDir returns installDir if set, otherwise buildDir.
func (a *AutoTools) OutputDir() string {
	if a.installDir != "" {
		return a.installDir
	}
	return a.buildDir
}

func (a *AutoTools) make(ctx context.Context, phase string, args []string) error {
	cmd := a.command("make", args)
	res, err := a.run(ctx, cmd)
	if err != nil || !res.Success() {
		return &BuildError{Phase: phase, Cmd: cmd, Result: res, Err: err}
	}
	return nil
}

func (a *AutoTools) command(name string, args []string) buildsys.Command {
	return buildsys.Command{Name: name, Args: args, Dir: a.workDir(), Env: a.env}
}

func (a *AutoTools) workDir() string {
	if a.buildDir == "" {
		return "."
	}
	return a.buildDir
}

func (a *AutoTools) run(ctx context.Context, cmd buildsys.Command) (*buildsys.Result, error) {
	res, err := a.runner.Run(ctx, cmd)
	if a.observe != nil && res != nil {
		a.observe(cmd, res)
	}
	return res, err
}

// BuildAndInstall runs the full bootstrap, configure, build, install and
// clean sequence, requesting both shared and static libraries.
func BuildAndInstall(ctx context.Context, bs buildsys.BuildSystem, configureArgs ...string) (buildsys.Artifact, error) {
	if err := bs.Bootstrap(ctx); err != nil {
		return buildsys.Artifact{}, err
	}
	args := append([]string{"--enable-shared", "--enable-static"}, configureArgs...)
	if err := bs.Configure(ctx, args...); err != nil {
		return buildsys.Artifact{}, err
	}
	if err := bs.Build(ctx); err != nil {
		return buildsys.Artifact{}, err
	}
	if err := bs.Install(ctx); err != nil {
		return buildsys.Artifact{}, err
	}
	if err := bs.Clean(); err != nil {
		return buildsys.Artifact{}, fmt.Errorf("autotools: remove build dir: %w", err)
	}
	return buildsys.NewArtifact(bs.OutputDir()), nil
}

// CFlags returns the compiler flags used for every source build.
func CFlags() string {
	if runtime.GOOS == "windows" {
		return OptFlags
	}
	// static archives end up inside cgo binaries, which may be PIE
	return OptFlags + " -fPIC"
}

// CheckTools reports every tool in names that lookPath cannot find.
// A nil lookPath means exec.LookPath.
func CheckTools(lookPath func(string) (string, error), names ...string) error {
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	var err error
	for _, name := range names {
		if _, e := lookPath(name); e != nil {
			err = errors.Join(err, fmt.Errorf("required tool %q not found: %w", name, e))
		}
	}
	return err
}

// VerifyArtifact checks that the install prefix holds headers and a library
// named lib<name> in any of its usual forms.
func VerifyArtifact(a buildsys.Artifact, name string) error {
	if fi, err := os.Stat(a.IncludeDir); err != nil || !fi.IsDir() {
		return fmt.Errorf("autotools: include dir missing after install: %s", a.IncludeDir)
	}
	for _, ext := range []string{".a", ".so", ".dylib", ".dll.a", ".lib"} {
		if _, err := os.Stat(filepath.Join(a.LibDir, "lib"+name+ext)); err == nil {
			return nil
		}
	}
	return fmt.Errorf("autotools: lib%s not found in %s", name, a.LibDir)
}
