// Package report carries the human-readable messages of a run. Build
// directives are written separately and never pass through a Reporter.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/qiniu/x/log"
	"github.com/rs/zerolog"

	"github.com/goplus/isal/pkgs/buildsys"
)

// Reporter receives progress messages.
type Reporter interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Debugf(format string, args ...any)

	// Branch records which provisioning branch was taken and why.
	Branch(name, reason string)

	// Command records a finished subprocess with its captured output.
	Command(cmd buildsys.Command, res *buildsys.Result)
}

// New returns a Reporter writing to w in the given format, "console" or
// "json". Debug messages are dropped unless verbose is set.
func New(w io.Writer, format string, verbose bool) (Reporter, error) {
	switch format {
	case "", "console":
		return NewConsole(w, verbose), nil
	case "json":
		return NewJSON(w, verbose), nil
	}
	return nil, fmt.Errorf("unknown log format %q", format)
}

// Console writes leveled plain-text lines.
type Console struct {
	l *log.Logger
}

// NewConsole returns a console Reporter.
func NewConsole(w io.Writer, verbose bool) *Console {
	l := log.New(w, "", log.Llevel)
	if verbose {
		l.SetOutputLevel(log.Ldebug)
	} else {
		l.SetOutputLevel(log.Linfo)
	}
	return &Console{l: l}
}

func (c *Console) Infof(format string, args ...any) { c.l.Infof(format, args...) }
func (c *Console) Warnf(format string, args ...any) { c.l.Warnf(format, args...) }
func (c *Console) Debugf(format string, args ...any) { c.l.Debugf(format, args...) }

func (c *Console) Branch(name, reason string) {
	c.l.Infof("using the %s branch: %s", name, reason)
}

// Command prints the command line with a line count at info level. Stderr
// is printed at info level too; stdout only when verbose.
func (c *Console) Command(cmd buildsys.Command, res *buildsys.Result) {
	stdout := strings.TrimRight(string(res.Stdout), "\n")
	stderr := strings.TrimRight(string(res.Stderr), "\n")
	c.l.Infof("$ %s (exit %d, %d lines of output)", cmd, res.ExitCode, lines(stdout)+lines(stderr))
	if stdout != "" {
		c.l.Debug(stdout)
	}
	if stderr != "" {
		c.l.Info(stderr)
	}
}

func lines(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(s, "\n") + 1
}

// JSON writes one JSON object per message.
type JSON struct {
	l zerolog.Logger
}

// NewJSON returns a JSON Reporter.
func NewJSON(w io.Writer, verbose bool) *JSON {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return &JSON{l: zerolog.New(w).Level(level).With().Timestamp().Logger()}
}

func (j *JSON) Infof(format string, args ...any) { j.l.Info().Msgf(format, args...) }
func (j *JSON) Warnf(format string, args ...any) { j.l.Warn().Msgf(format, args...) }
func (j *JSON) Debugf(format string, args ...any) { j.l.Debug().Msgf(format, args...) }

func (j *JSON) Branch(name, reason string) {
	j.l.Info().Str("branch", name).Str("reason", reason).Msg("branch selected")
}

func (j *JSON) Command(cmd buildsys.Command, res *buildsys.Result) {
	j.l.Info().
		Str("cmd", cmd.String()).
		Str("dir", cmd.Dir).
		Int("exit", res.ExitCode).
		Bytes("stdout", res.Stdout).
		Bytes("stderr", res.Stderr).
		Msg("command finished")
}

// Discard drops every message.
var Discard Reporter = discard{}

type discard struct{}

func (discard) Infof(string, ...any) {}
func (discard) Warnf(string, ...any) {}
func (discard) Debugf(string, ...any) {}
func (discard) Branch(string, string) {}
func (discard) Command(buildsys.Command, *buildsys.Result) {}
