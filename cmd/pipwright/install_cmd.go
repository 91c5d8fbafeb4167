package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/plugforge/pipwright/internal/core"
	"github.com/plugforge/pipwright/internal/engine"
	"github.com/plugforge/pipwright/internal/inventory"
	"github.com/plugforge/pipwright/internal/manifest"
	"github.com/plugforge/pipwright/internal/pyenv"
	"github.com/plugforge/pipwright/internal/report"
)

// newInstallCmd creates the install command
func newInstallCmd() *cobra.Command {
	var pluginName string

	cmd := &cobra.Command{
		Use:   "install MODULE[OP VERSION]",
		Short: "Install a single Python module",
		Long: `Install a single Python module, optionally version-constrained.

Without --plugin the module is installed into the shared base interpreter's
environment with a conservative policy: existing installations are kept and
never downgraded. With --plugin the module is installed into the plugin's own
virtual environment (created if missing), which may be upgraded or downgraded
freely.

Examples:
  pipwright install requests
  pipwright install "requests>=2.31.0"
  pipwright install "pillow==10.2.0" --plugin DuetMonitor`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("module name is required: %w", manifest.ErrMissingModule)
			}
			if len(args) > 1 {
				return fmt.Errorf("expected a single MODULE argument, got %d: %w", len(args), report.ErrTooManyModules)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			request, errParse := manifest.ParseRequest(args[0])
			if errParse != nil {
				return errParse
			}

			ctx := cmd.Context()
			runner := core.NewExecRunner()

			var env pyenv.Environment
			if pluginName == "" {
				env = pyenv.System(cfg.PythonBin)
				managed, errManaged := pyenv.IsExternallyManaged(ctx, runner, cfg.PythonBin)
				if errManaged != nil {
					return fmt.Errorf("failed to inspect base interpreter: %w", errManaged)
				}
				if managed {
					return &exitError{
						code: report.ExitInstallFailed,
						err:  fmt.Errorf("base interpreter %s is externally managed; use --plugin to install into a virtual environment", cfg.PythonBin),
					}
				}
			} else {
				prov := pyenv.NewProvisioner(runner, cfg.PythonBin)
				ensured, errEnsure := prov.Ensure(ctx, cfg.VenvPath(pluginName))
				if errEnsure != nil {
					return fmt.Errorf("failed to ensure plugin environment: %w", errEnsure)
				}
				env = ensured
			}

			zap.L().Info("Installing module",
				zap.String("spec", request.Spec()),
				zap.String("python", env.Python()),
				zap.Bool("exclusive", env.Exclusive()))

			eng := engine.New(
				inventory.New(env, runner),
				pyenv.NewInstaller(env, runner),
				engine.Policy{
					Exclusive: env.Exclusive(),
					// Unpinned upgrades follow the same ownership rule as
					// downgrades: only in an environment we own outright.
					UpgradeUnpinned: cfg.UpgradeUnpinned && env.Exclusive(),
				},
			)

			outcomes, errReconcile := eng.Reconcile(ctx, manifest.Manifest{request})
			if errReconcile != nil {
				return fmt.Errorf("failed to reconcile: %w", errReconcile)
			}

			if code := report.Summarize(outcomes); code != report.ExitOK {
				return &exitError{code: code, err: fmt.Errorf("install of %s failed", request.Name)}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&pluginName, "plugin", "", "Install into this plugin's virtual environment instead of the base interpreter")

	return cmd
}
