// Package provision decides where the native library comes from and runs
// the matching branch: an installed copy found through pkg-config, or a
// build of the vendored source tree. Both branches end with binding
// generation and link directives.
package provision

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/goplus/isal/internal/bindgen"
	"github.com/goplus/isal/internal/config"
	"github.com/goplus/isal/internal/link"
	"github.com/goplus/isal/internal/lockedfile"
	"github.com/goplus/isal/internal/probe"
	"github.com/goplus/isal/internal/report"
	"github.com/goplus/isal/internal/stage"
	"github.com/goplus/isal/pkgs/buildsys"
	"github.com/goplus/isal/pkgs/buildsys/autotools"
)

// Branch names a provisioning branch.
type Branch string

const (
	System Branch = "system"
	Source Branch = "source"
)

// Outcome describes a successful run.
type Outcome struct {
	Branch      Branch
	Probe       *probe.Result      // set on the system branch
	Artifact    *buildsys.Artifact // set on the source branch
	Headers     []string           // headers the bindings were generated from
	BindingFile string
	LinkFile    string
	Directives  []link.Directive // every directive printed, in order
}

// Pipeline runs one provisioning pass. It is not safe for concurrent use.
// Run holds a lock file in the output directory, so a second run on the
// same directory fails instead of racing the first.
type Pipeline struct {
	cfg      config.Config
	runner   buildsys.Runner
	rep      report.Reporter
	stdout   io.Writer
	lookPath func(string) (string, error)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRunner replaces the os/exec runner used for pkg-config and the build.
func WithRunner(r buildsys.Runner) Option {
	return func(p *Pipeline) { p.runner = r }
}

// WithReporter sets where progress messages go.
func WithReporter(r report.Reporter) Option {
	return func(p *Pipeline) { p.rep = r }
}

// WithStdout sets where directives are printed.
func WithStdout(w io.Writer) Option {
	return func(p *Pipeline) { p.stdout = w }
}

// WithLookPath replaces exec.LookPath for the build tool check.
func WithLookPath(fn func(string) (string, error)) Option {
	return func(p *Pipeline) { p.lookPath = fn }
}

// New validates cfg and returns a Pipeline for it. cfg must be resolved.
func New(cfg config.Config, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Pipeline{
		cfg:    cfg,
		runner: buildsys.ExecRunner{},
		rep:    report.Discard,
		stdout: os.Stdout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Run selects a branch, provisions the library and writes the binding and
// link files. A failed probe falls back to the source branch when building
// from source is allowed; every other failure ends the run.
func (p *Pipeline) Run(ctx context.Context) (*Outcome, error) {
	unlock, err := lockedfile.MutexAt(filepath.Join(p.cfg.OutputDir, ".lock")).TryLock()
	if err != nil {
		return nil, fmt.Errorf("output directory %s is in use: %w", p.cfg.OutputDir, err)
	}
	defer unlock()

	out := &Outcome{}
	if err := p.emit(out, p.rerun()); err != nil {
		return nil, err
	}

	var target link.Target
	if p.cfg.UseSystem {
		res, err := p.Probe(ctx)
		switch {
		case err == nil:
			out.Branch = System
			out.Probe = res
			target = link.Target{IncludePaths: res.IncludePaths, LinkPaths: res.LinkPaths}
			p.rep.Branch(string(System), fmt.Sprintf("found %s %s", res.Library, res.Version))
		case !p.cfg.BundleFromSource:
			return nil, fmt.Errorf("failed to find %s and building from source is disabled: %w", p.cfg.PkgConfigName, err)
		default:
			var pe *probe.Error
			if !errors.As(err, &pe) {
				return nil, fmt.Errorf("failed to probe %s: %w", p.cfg.PkgConfigName, err)
			}
			msg := pe.Error() + "; building from source"
			if err := p.emit(out, []link.Directive{{Kind: link.Warning, Value: msg}}); err != nil {
				return nil, err
			}
			p.rep.Branch(string(Source), pe.Error())
		}
	} else {
		p.rep.Branch(string(Source), "system library disabled")
	}

	if out.Branch == "" {
		art, err := p.BuildSource(ctx)
		if err != nil {
			return nil, err
		}
		out.Branch = Source
		out.Artifact = &art
		target = link.Target{FromSource: true, IncludePaths: []string{art.IncludeDir}, LinkPaths: []string{art.LibDir}}
	}

	headers, err := p.Bind(target)
	if err != nil {
		return nil, err
	}
	out.Headers = headers
	out.BindingFile = p.cfg.BindingFile()

	e := &link.Emitter{LibName: p.cfg.LibName, Static: p.cfg.LinkStatic, Bundle: p.cfg.BundleFromSource}
	if err := e.WriteLinkFile(p.cfg.LinkFile(), p.cfg.Package, target); err != nil {
		return nil, err
	}
	out.LinkFile = p.cfg.LinkFile()
	ds := e.Emit(target)
	for _, d := range ds {
		if d.Kind == link.Warning {
			p.rep.Warnf("%s", d.Value)
		}
	}
	if err := p.emit(out, ds); err != nil {
		return nil, err
	}
	p.rep.Infof("wrote %s and %s", out.BindingFile, out.LinkFile)
	return out, nil
}

// Probe looks for an installed library. When building from source is
// allowed, a missing static archive counts as a failed probe so that the
// source branch can supply one.
func (p *Pipeline) Probe(ctx context.Context) (*probe.Result, error) {
	pr := &probe.Prober{
		Runner:  p.runner,
		Static:  p.cfg.LinkStatic && p.cfg.BundleFromSource,
		LibName: p.cfg.LibName,
	}
	p.rep.Debugf("probing %s >= %s", p.cfg.PkgConfigName, p.cfg.MinVersion)
	return pr.Probe(ctx, p.cfg.PkgConfigName, p.cfg.MinVersion)
}

// BuildSource stages the vendored tree and builds it with autotools,
// installing into the output directory.
func (p *Pipeline) BuildSource(ctx context.Context) (buildsys.Artifact, error) {
	if err := autotools.CheckTools(p.lookPath, "sh", "make"); err != nil {
		return buildsys.Artifact{}, fmt.Errorf("failed to build from source: %w", err)
	}

	src := p.cfg.SourceDir()
	p.rep.Infof("staging %s into %s", p.cfg.VendorDir, src)
	n := 0
	err := stage.Copy(p.cfg.VendorDir, src, func(rel string) {
		n++
		p.rep.Debugf("staged %s", rel)
	})
	if err != nil {
		return buildsys.Artifact{}, err
	}
	p.rep.Debugf("staged %d files", n)

	at := autotools.New(src, p.cfg.BuildDir(), p.cfg.OutputDir,
		autotools.WithRunner(p.runner),
		autotools.WithJobs(p.cfg.Jobs),
		autotools.WithObserver(p.rep.Command),
	)
	at.Env("CFLAGS", autotools.CFlags())

	p.rep.Infof("building %s from source", p.cfg.LibName)
	art, err := autotools.BuildAndInstall(ctx, at, p.cfg.ConfigureArgs...)
	if err != nil {
		return buildsys.Artifact{}, err
	}
	if err := autotools.VerifyArtifact(art, p.cfg.LibName); err != nil {
		return buildsys.Artifact{}, err
	}
	return art, nil
}

// Bind generates the binding file from the headers found in the include
// paths of target and returns the headers used.
func (p *Pipeline) Bind(target link.Target) ([]string, error) {
	g := &bindgen.Generator{Package: p.cfg.Package, IncludePaths: target.IncludePaths}
	var set *bindgen.HeaderSet
	var err error
	if len(p.cfg.Headers) > 0 {
		set, err = g.HeaderList(p.cfg.Headers)
	} else {
		set, err = g.Headers(p.cfg.Wrapper)
	}
	if err != nil {
		return nil, err
	}
	p.rep.Debugf("generating bindings from %d headers", len(set.Files))
	if err := g.WriteFile(p.cfg.BindingFile(), set); err != nil {
		return nil, err
	}
	return set.Paths(), nil
}

func (p *Pipeline) rerun() []link.Directive {
	var paths []string
	if p.cfg.ConfigFile != "" {
		paths = append(paths, p.cfg.ConfigFile)
	}
	if len(p.cfg.Headers) == 0 {
		paths = append(paths, p.cfg.Wrapper)
	}
	if p.cfg.BundleFromSource {
		paths = append(paths, p.cfg.VendorDir)
	}
	ds := make([]link.Directive, len(paths))
	for i, path := range paths {
		ds[i] = link.Directive{Kind: link.RerunIfChanged, Value: path}
	}
	return ds
}

func (p *Pipeline) emit(out *Outcome, ds []link.Directive) error {
	out.Directives = append(out.Directives, ds...)
	if err := link.Print(p.stdout, ds); err != nil {
		return fmt.Errorf("failed to print directives: %w", err)
	}
	return nil
}
