package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/plugforge/pipwright/internal/config"
	"github.com/plugforge/pipwright/internal/core"
	"github.com/plugforge/pipwright/internal/report"
)

var (
	version = "dev"
	// build time date
	buildDate = "unknown"
)

// cfg is loaded once in the root PersistentPreRunE and shared by all
// subcommands.
var cfg *config.Config

// exitError carries a specific process exit code out of a subcommand.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("exit code %d", e.code)
}

func (e *exitError) Unwrap() error {
	return e.err
}

func main() {
	var (
		configPath string
		prettyLog  bool
		verbose    bool
	)

	rootCmd := &cobra.Command{
		Use:   "pipwright",
		Short: "Python dependency reconciliation for plugin environments",
		Long: `Pipwright installs and reconciles Python module dependencies for plugins,
managing per-plugin virtual environments and deciding per module whether to
install, upgrade, downgrade or skip.`,
		Version:       fmt.Sprintf("%s (built: %s)", version, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, errLoad := config.LoadConfig(configPath)
			if errLoad != nil {
				return fmt.Errorf("failed to load config: %w", errLoad)
			}
			cfg = loaded

			pretty := cfg.Pretty()
			if cmd.Flags().Changed("pretty") {
				pretty = prettyLog
			}
			if errInit := core.Init(core.LogOptions{Pretty: pretty, Verbose: verbose || cfg.Verbose}); errInit != nil {
				return fmt.Errorf("failed to initialize logger: %w", errInit)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: ~/.pipwright/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&prettyLog, "pretty", false, "Use pretty-printed logs instead of JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(newInstallCmd())
	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newEnvCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps a command error to the process exit code. Subcommands
// signal specific codes with exitError; everything else goes through the
// pre-flight mapping.
func exitCodeFor(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return report.PreflightExitCode(err)
}
