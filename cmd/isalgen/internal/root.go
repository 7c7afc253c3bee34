package internal

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/goplus/isal/internal/config"
)

var rootCmd = &cobra.Command{
	Use:           "isalgen",
	Short:         "isalgen provisions ISA-L and generates its Go bindings",
	Long:          `isalgen finds an installed ISA-L through pkg-config or builds the vendored source, then generates cgo bindings and link flags for it.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		stop()
		log.Fatal(err)
	}
}

// loadConfig builds the configuration of a run: defaults, then the config
// file, then the environment (after .env), then the changed flags.
func loadConfig(file string, flags config.Overrides) (config.Config, error) {
	if err := config.LoadDotEnv(".env"); err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load(file, os.LookupEnv)
	if err != nil {
		return cfg, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.Apply(flags)
	if err := cfg.Resolve(); err != nil {
		return cfg, fmt.Errorf("failed to resolve paths: %w", err)
	}
	return cfg, nil
}

func changedBool(cmd *cobra.Command, name string, v bool) *bool {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &v
}

func changedString(cmd *cobra.Command, name string, v string) *string {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &v
}

func changedInt(cmd *cobra.Command, name string, v int) *int {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &v
}
