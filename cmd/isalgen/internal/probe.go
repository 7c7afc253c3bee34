package internal

import (
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/goplus/isal/internal/config"
	"github.com/goplus/isal/internal/provision"
	"github.com/goplus/isal/internal/report"
)

var probeConfig string
var probeStatic bool
var probeVerbose bool

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Look for an installed ISA-L",
	Long:  `Probe queries pkg-config for an installed ISA-L satisfying the minimum version and prints where it lives.`,
	Args:  cobra.NoArgs,
	RunE:  runProbe,
}

func init() {
	probeCmd.Flags().StringVar(&probeConfig, "config", "", "Config file (.toml, .yaml, .yml or .json)")
	probeCmd.Flags().BoolVar(&probeStatic, "static", true, "Require the static library")
	probeCmd.Flags().BoolVarP(&probeVerbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) error {
	// with bundling on, a missing static archive fails the probe
	on := true
	cfg, err := loadConfig(probeConfig, config.Overrides{
		UseSystem:        &on,
		BundleFromSource: &on,
		LinkStatic:       changedBool(cmd, "static", probeStatic),
		Verbose:          changedBool(cmd, "verbose", probeVerbose),
	})
	if err != nil {
		return err
	}
	p, err := provision.New(cfg, provision.WithReporter(report.NewConsole(cmd.ErrOrStderr(), cfg.Verbose)))
	if err != nil {
		return err
	}
	res, err := p.Probe(cmd.Context())
	if err != nil {
		return err
	}
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"LIBRARY", "VERSION", "INCLUDE", "LIB"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.Append([]string{res.Library, res.Version, strings.Join(res.IncludePaths, " "), strings.Join(res.LinkPaths, " ")})
	table.Render()
	return nil
}
