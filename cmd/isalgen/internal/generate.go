package internal

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/goplus/isal/internal/config"
	"github.com/goplus/isal/internal/provision"
	"github.com/goplus/isal/internal/report"
)

var (
	genConfig     string
	genUseSystem  bool
	genLinkStatic bool
	genBundle     bool
	genVendor     string
	genWrapper    string
	genHeaders    []string
	genOut        string
	genBindings   string
	genPackage    string
	genJobs       int
	genVerbose    bool
	genLogFormat  string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Provision ISA-L and generate its bindings",
	Long: `Generate resolves ISA-L from the system or builds the vendored source,
writes the binding and link files, and prints build directives to stdout.`,
	Args: cobra.NoArgs,
	RunE: runGenerate,
}

func init() {
	flags := generateCmd.Flags()
	flags.StringVar(&genConfig, "config", "", "Config file (.toml, .yaml, .yml or .json)")
	flags.BoolVar(&genUseSystem, "use-system", true, "Probe for an installed library first")
	flags.BoolVar(&genLinkStatic, "link-static", true, "Link the static library")
	flags.BoolVar(&genBundle, "bundle", true, "Allow building the vendored source")
	flags.StringVar(&genVendor, "vendor", "", "Vendored source tree")
	flags.StringVar(&genWrapper, "wrapper", "", "Wrapper header including the public headers")
	flags.StringArrayVar(&genHeaders, "header", nil, "Header to bind, looked up in the include paths (repeatable)")
	flags.StringVar(&genOut, "out", "", "Output directory for the source build")
	flags.StringVar(&genBindings, "bindings", "", "Directory receiving the generated Go files")
	flags.StringVar(&genPackage, "package", "", "Package name of the generated files")
	flags.IntVar(&genJobs, "jobs", 0, "Parallel make jobs")
	flags.BoolVarP(&genVerbose, "verbose", "v", false, "Enable verbose build output")
	flags.StringVar(&genLogFormat, "log-format", "", "Log format: console or json")
	rootCmd.AddCommand(generateCmd)
}

func generateOverrides(cmd *cobra.Command) config.Overrides {
	o := config.Overrides{
		UseSystem:        changedBool(cmd, "use-system", genUseSystem),
		LinkStatic:       changedBool(cmd, "link-static", genLinkStatic),
		BundleFromSource: changedBool(cmd, "bundle", genBundle),
		VendorDir:        changedString(cmd, "vendor", genVendor),
		Wrapper:          changedString(cmd, "wrapper", genWrapper),
		OutputDir:        changedString(cmd, "out", genOut),
		BindingDir:       changedString(cmd, "bindings", genBindings),
		Package:          changedString(cmd, "package", genPackage),
		Jobs:             changedInt(cmd, "jobs", genJobs),
		Verbose:          changedBool(cmd, "verbose", genVerbose),
		LogFormat:        changedString(cmd, "log-format", genLogFormat),
	}
	if cmd.Flags().Changed("header") {
		o.Headers = genHeaders
	}
	return o
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(genConfig, generateOverrides(cmd))
	if err != nil {
		return err
	}
	rep, err := report.New(cmd.ErrOrStderr(), cfg.LogFormat, cfg.Verbose)
	if err != nil {
		return err
	}
	p, err := provision.New(cfg,
		provision.WithReporter(rep),
		provision.WithStdout(cmd.OutOrStdout()),
	)
	if err != nil {
		return err
	}
	if _, err := p.Run(cmd.Context()); err != nil {
		return fmt.Errorf("failed to generate bindings: %w", err)
	}
	return nil
}
