// Package config assembles the build configuration of an isalgen run from
// defaults, an optional config file, the environment and command-line flags,
// in increasing order of precedence.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/goplus/isal/internal/env"
)

// Log formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Config is the configuration of one run. It is built once and not
// modified afterwards.
type Config struct {
	UseSystem        bool // probe for an installed library first
	LinkStatic       bool
	BundleFromSource bool // building the vendored tree is allowed

	VendorDir  string   // vendored source snapshot, never modified
	Wrapper    string   // wrapper header, used when Headers is empty
	Headers    []string // header names looked up in the include paths
	OutputDir  string
	BindingDir string // receives the generated Go files

	Package       string
	PkgConfigName string
	LibName       string
	MinVersion    string
	Jobs          int
	ConfigureArgs []string

	Verbose   bool
	LogFormat string

	ConfigFile string // file the configuration was read from, if any
}

// Default returns the built-in configuration. OutputDir and BindingDir are
// left empty and filled in by Resolve.
func Default() Config {
	return Config{
		UseSystem:        true,
		LinkStatic:       true,
		BundleFromSource: true,
		VendorDir:        filepath.Join("third_party", "isa-l"),
		Wrapper:          filepath.Join("third_party", "wrapper.h"),
		Package:          "isal",
		PkgConfigName:    "libisal",
		LibName:          "isal",
		MinVersion:       "2.30.0",
		Jobs:             runtime.NumCPU(),
		LogFormat:        FormatConsole,
	}
}

// Overrides holds optional settings. A nil field leaves the setting alone.
// It is the shape of the config file and of the flags a user changed.
type Overrides struct {
	UseSystem        *bool    `json:"use_system" yaml:"use_system" toml:"use_system"`
	LinkStatic       *bool    `json:"link_static" yaml:"link_static" toml:"link_static"`
	BundleFromSource *bool    `json:"bundle_from_source" yaml:"bundle_from_source" toml:"bundle_from_source"`
	VendorDir        *string  `json:"vendor_dir" yaml:"vendor_dir" toml:"vendor_dir"`
	Wrapper          *string  `json:"wrapper" yaml:"wrapper" toml:"wrapper"`
	Headers          []string `json:"headers" yaml:"headers" toml:"headers"`
	OutputDir        *string  `json:"output_dir" yaml:"output_dir" toml:"output_dir"`
	BindingDir       *string  `json:"binding_dir" yaml:"binding_dir" toml:"binding_dir"`
	Package          *string  `json:"package" yaml:"package" toml:"package"`
	PkgConfigName    *string  `json:"pkg_config_name" yaml:"pkg_config_name" toml:"pkg_config_name"`
	LibName          *string  `json:"lib_name" yaml:"lib_name" toml:"lib_name"`
	MinVersion       *string  `json:"min_version" yaml:"min_version" toml:"min_version"`
	Jobs             *int     `json:"jobs" yaml:"jobs" toml:"jobs"`
	ConfigureArgs    []string `json:"configure_args" yaml:"configure_args" toml:"configure_args"`
	Verbose          *bool    `json:"verbose" yaml:"verbose" toml:"verbose"`
	LogFormat        *string  `json:"log_format" yaml:"log_format" toml:"log_format"`
}

// Apply copies every set field of o into c.
func (c *Config) Apply(o Overrides) {
	setBool(&c.UseSystem, o.UseSystem)
	setBool(&c.LinkStatic, o.LinkStatic)
	setBool(&c.BundleFromSource, o.BundleFromSource)
	setString(&c.VendorDir, o.VendorDir)
	setString(&c.Wrapper, o.Wrapper)
	if o.Headers != nil {
		c.Headers = o.Headers
	}
	setString(&c.OutputDir, o.OutputDir)
	setString(&c.BindingDir, o.BindingDir)
	setString(&c.Package, o.Package)
	setString(&c.PkgConfigName, o.PkgConfigName)
	setString(&c.LibName, o.LibName)
	setString(&c.MinVersion, o.MinVersion)
	if o.Jobs != nil {
		c.Jobs = *o.Jobs
	}
	if o.ConfigureArgs != nil {
		c.ConfigureArgs = o.ConfigureArgs
	}
	setBool(&c.Verbose, o.Verbose)
	setString(&c.LogFormat, o.LogFormat)
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// ReadFile parses a config file. The format follows the extension:
// .toml, .yaml, .yml or .json.
func ReadFile(path string) (Overrides, error) {
	var o Overrides
	b, err := os.ReadFile(path)
	if err != nil {
		return o, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		err = toml.Unmarshal(b, &o)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &o)
	case ".json":
		err = json.Unmarshal(b, &o)
	default:
		return o, fmt.Errorf("unsupported config extension: %s", ext)
	}
	if err != nil {
		return o, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return o, nil
}

// Environment variables read by FromEnv.
const (
	EnvUseSystem  = "ISAL_USE_SYSTEM"
	EnvLinkStatic = "ISAL_LINK_STATIC"
	EnvBundle     = "ISAL_BUNDLE"
	EnvOutDir     = "ISAL_OUT_DIR"
	EnvVendorDir  = "ISAL_VENDOR_DIR"
	EnvWrapper    = "ISAL_WRAPPER"
	EnvJobs       = "ISAL_JOBS"
)

// FromEnv reads the ISAL_* variables through lookup.
func FromEnv(lookup func(string) (string, bool)) (Overrides, error) {
	var o Overrides
	var errs []error
	boolVar := func(key string) *bool {
		s, ok := lookup(key)
		if !ok || strings.TrimSpace(s) == "" {
			return nil
		}
		v, err := strconv.ParseBool(strings.TrimSpace(s))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return nil
		}
		return &v
	}
	stringVar := func(key string) *string {
		s, ok := lookup(key)
		if !ok || strings.TrimSpace(s) == "" {
			return nil
		}
		s = strings.TrimSpace(s)
		return &s
	}

	o.UseSystem = boolVar(EnvUseSystem)
	o.LinkStatic = boolVar(EnvLinkStatic)
	o.BundleFromSource = boolVar(EnvBundle)
	o.OutputDir = stringVar(EnvOutDir)
	o.VendorDir = stringVar(EnvVendorDir)
	o.Wrapper = stringVar(EnvWrapper)
	if s := stringVar(EnvJobs); s != nil {
		n, err := strconv.Atoi(*s)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvJobs, err))
		} else {
			o.Jobs = &n
		}
	}
	return o, errors.Join(errs...)
}

// LoadDotEnv loads path into the process environment. Variables that are
// already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return fmt.Errorf("failed to check %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("could not load %s: %w", path, err)
	}
	return nil
}

// Load returns the defaults overlaid with the config file (if file is not
// empty) and the environment. Flags are applied by the caller, followed by
// Resolve and Validate.
func Load(file string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if file != "" {
		o, err := ReadFile(file)
		if err != nil {
			return cfg, err
		}
		cfg.Apply(o)
		cfg.ConfigFile = file
	}
	o, err := FromEnv(lookup)
	if err != nil {
		return cfg, fmt.Errorf("invalid environment: %w", err)
	}
	cfg.Apply(o)
	return cfg, nil
}

// Resolve fills in the default output directories and makes every path
// absolute.
func (c *Config) Resolve() error {
	if c.OutputDir == "" {
		dir, err := env.OutputDir()
		if err != nil {
			return fmt.Errorf("failed to get output dir: %w", err)
		}
		c.OutputDir = dir
	}
	if c.BindingDir == "" {
		c.BindingDir = filepath.Join(c.OutputDir, "bindings")
	}
	for _, p := range []*string{&c.VendorDir, &c.Wrapper, &c.OutputDir, &c.BindingDir, &c.ConfigFile} {
		if *p == "" {
			continue
		}
		abs, err := filepath.Abs(*p)
		if err != nil {
			return err
		}
		*p = abs
	}
	return nil
}

// Validate rejects configurations that cannot produce a library.
func (c *Config) Validate() error {
	var errs []error
	if !c.UseSystem && !c.BundleFromSource {
		errs = append(errs, errors.New("neither the system library nor a source build is allowed"))
	}
	if c.BundleFromSource && c.VendorDir == "" {
		errs = append(errs, errors.New("vendor dir is required to build from source"))
	}
	if c.Wrapper == "" && len(c.Headers) == 0 {
		errs = append(errs, errors.New("either a wrapper header or a header list is required"))
	}
	if c.OutputDir == "" {
		errs = append(errs, errors.New("output dir is required"))
	}
	if c.BundleFromSource && c.OutputDir != "" && c.VendorDir != "" && within(c.OutputDir, c.VendorDir) {
		errs = append(errs, fmt.Errorf("output dir %s is inside the vendored tree", c.OutputDir))
	}
	if !isIdent(c.Package) {
		errs = append(errs, fmt.Errorf("invalid package name %q", c.Package))
	}
	if c.PkgConfigName == "" || c.LibName == "" {
		errs = append(errs, errors.New("pkg-config name and library name are required"))
	}
	if c.Jobs < 1 {
		errs = append(errs, fmt.Errorf("jobs must be at least 1, got %d", c.Jobs))
	}
	if c.LogFormat != FormatConsole && c.LogFormat != FormatJSON {
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// SourceDir is where the vendored tree is staged.
func (c *Config) SourceDir() string { return filepath.Join(c.OutputDir, "src", "isal") }

// BuildDir holds the intermediate build tree, removed after install.
func (c *Config) BuildDir() string { return filepath.Join(c.OutputDir, "build") }

// BindingFile is the generated binding file.
func (c *Config) BindingFile() string { return filepath.Join(c.BindingDir, "zisal.go") }

// LinkFile is the generated file carrying the cgo link flags.
func (c *Config) LinkFile() string { return filepath.Join(c.BindingDir, "zisal_link.go") }

func within(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
