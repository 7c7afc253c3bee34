package internal

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/goplus/isal/internal/config"
)

var cleanConfig string
var cleanOut string

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove the output directory",
	Long:  `Clean removes the output directory with the staged source, the build tree and the installed library. Generated Go files are kept.`,
	Args:  cobra.NoArgs,
	RunE:  runClean,
}

func init() {
	cleanCmd.Flags().StringVar(&cleanConfig, "config", "", "Config file (.toml, .yaml, .yml or .json)")
	cleanCmd.Flags().StringVar(&cleanOut, "out", "", "Output directory")
	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cleanConfig, config.Overrides{
		OutputDir: changedString(cmd, "out", cleanOut),
	})
	if err != nil {
		return err
	}
	if filepath.Dir(cfg.OutputDir) == cfg.OutputDir {
		return fmt.Errorf("refusing to remove %s", cfg.OutputDir)
	}
	if err := os.RemoveAll(cfg.OutputDir); err != nil {
		return fmt.Errorf("failed to remove %s: %w", cfg.OutputDir, err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "removed %s\n", cfg.OutputDir)
	return nil
}
