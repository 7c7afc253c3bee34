package autotools

import (
	"fmt"
	"strings"

	"github.com/goplus/isal/pkgs/buildsys"
)

// ConfigureError reports a failed bootstrap or configure step.
type ConfigureError struct {
	Phase  string // "bootstrap" or "configure"
	Cmd    buildsys.Command
	Result *buildsys.Result // nil if the command never started
	Err    error
}

func (e *ConfigureError) Error() string {
	return failure(e.Phase, e.Cmd, e.Result, e.Err)
}

func (e *ConfigureError) Unwrap() error { return e.Err }

// BuildError reports a failed make or make install step.
type BuildError struct {
	Phase  string // "build" or "install"
	Cmd    buildsys.Command
	Result *buildsys.Result
	Err    error
}

func (e *BuildError) Error() string {
	return failure(e.Phase, e.Cmd, e.Result, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

func failure(phase string, cmd buildsys.Command, res *buildsys.Result, err error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "autotools %s failed: %s", phase, cmd)
	if err != nil {
		fmt.Fprintf(&b, ": %v", err)
	}
	if res == nil {
		return b.String()
	}
	if err == nil {
		fmt.Fprintf(&b, ": exit status %d", res.ExitCode)
	}
	if out := strings.TrimSpace(string(res.Stdout)); out != "" {
		fmt.Fprintf(&b, "\n--- stdout ---\n%s", out)
	}
	if out := strings.TrimSpace(string(res.Stderr)); out != "" {
		fmt.Fprintf(&b, "\n--- stderr ---\n%s", out)
	}
	return b.String()
}
