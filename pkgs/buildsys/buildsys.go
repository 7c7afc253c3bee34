package buildsys

import (
	"context"
	"path/filepath"
)

// BuildSystem captures the lifecycle of a native build helper.
// Every step blocks until the underlying tool exits.
type BuildSystem interface {
	// Basic paths.
	Source(dir string)
	InstallDir(dir string)

	// Environment helper.
	Env(key, val string)

	// Lifecycle.
	Bootstrap(ctx context.Context) error
	Configure(ctx context.Context, args ...string) error
	Build(ctx context.Context, args ...string) error
	Install(ctx context.Context, args ...string) error

	// Clean removes the intermediate build directory, keeping installed files.
	Clean() error

	// Where artifacts land.
	OutputDir() string
}

// Artifact is the installed output of a source build.
type Artifact struct {
	Prefix     string // install prefix
	LibDir     string // Prefix/lib
	IncludeDir string // Prefix/include
}

// NewArtifact returns the conventional lib/include layout under prefix.
func NewArtifact(prefix string) Artifact {
	return Artifact{
		Prefix:     prefix,
		LibDir:     filepath.Join(prefix, "lib"),
		IncludeDir: filepath.Join(prefix, "include"),
	}
}
