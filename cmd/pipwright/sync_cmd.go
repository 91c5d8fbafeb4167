package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/plugforge/pipwright/internal/core"
	"github.com/plugforge/pipwright/internal/engine"
	"github.com/plugforge/pipwright/internal/inventory"
	"github.com/plugforge/pipwright/internal/manifest"
	"github.com/plugforge/pipwright/internal/plugins"
	"github.com/plugforge/pipwright/internal/pyenv"
	"github.com/plugforge/pipwright/internal/report"
)

// LogFileName is the per-plugin log file written next to the venv during sync.
const LogFileName = "pipwright.log"

// newSyncCmd creates the sync command
func newSyncCmd() *cobra.Command {
	var (
		manifestPath string
		pluginDir    string
		syncAll      bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile dependencies from plugin manifests",
		Long: `Reconcile every Python dependency declared in a plugin manifest against the
plugin's virtual environment. The environment is created if missing, each
dependency is installed, upgraded or skipped as needed, and a run summary is
written next to the environment.

The manifest is a JSON file carrying the dependency list under the
"` + manifest.DependenciesKey + `" key. With --all, every plugin directory under
the configured plugins directory that carries a ` + plugins.ManifestFileName + `
manifest is reconciled in turn.

Examples:
  pipwright sync --manifest /opt/dsf/plugins/DuetMonitor/plugin.json --plugin-dir /opt/dsf/plugins/DuetMonitor
  pipwright sync --all`,
		Args: func(cmd *cobra.Command, args []string) error {
			if syncAll {
				if manifestPath != "" || pluginDir != "" {
					return fmt.Errorf("--all cannot be combined with --manifest or --plugin-dir")
				}
				return nil
			}
			if manifestPath == "" || pluginDir == "" {
				return fmt.Errorf("either --all or both --manifest and --plugin-dir are required")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			runner := core.NewExecRunner()

			if !syncAll {
				code, err := syncPlugin(ctx, runner, manifestPath, pluginDir)
				if err != nil {
					return err
				}
				if code != report.ExitOK {
					return &exitError{code: code, err: fmt.Errorf("one or more module installs failed")}
				}
				return nil
			}

			found, errDiscover := plugins.Discover(cfg.PluginsDir)
			if errDiscover != nil {
				return fmt.Errorf("failed to discover plugins: %w", errDiscover)
			}

			failed := 0
			for _, plugin := range found {
				code, errSync := syncPlugin(ctx, runner, plugin.ManifestPath, plugin.Dir)
				if errSync != nil {
					zap.L().Error("Failed to sync plugin", zap.String("plugin", plugin.Name), zap.Error(errSync))
					failed++
					continue
				}
				if code != report.ExitOK {
					failed++
				}
			}

			zap.L().Info("Synced plugins", zap.Int("total", len(found)), zap.Int("failed", failed))
			if failed > 0 {
				return &exitError{code: report.ExitInstallFailed, err: fmt.Errorf("%d of %d plugins failed to sync", failed, len(found))}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&manifestPath, "manifest", "", "Path to the plugin manifest JSON file")
	cmd.Flags().StringVar(&pluginDir, "plugin-dir", "", "Plugin directory holding the virtual environment")
	cmd.Flags().BoolVar(&syncAll, "all", false, "Reconcile every plugin found under the plugins directory")

	return cmd
}

// syncPlugin reconciles one plugin manifest against its venv and returns the
// run's exit code. The returned error covers pre-flight and environment
// failures; individual install failures are reflected in the exit code.
func syncPlugin(ctx context.Context, runner core.Runner, manifestPath, pluginDir string) (int, error) {
	entries, errLoad := manifest.LoadFile(manifestPath)
	if errLoad != nil {
		return report.ExitInternalError, fmt.Errorf("failed to load manifest: %w", errLoad)
	}

	requests, runOpts, errParse := manifest.ParseManifest(entries)
	if errParse != nil {
		return report.PreflightExitCode(errParse), errParse
	}

	// Re-initialize logging with the per-plugin log file, honoring a verbose
	// sentinel in the manifest itself.
	logOpts := core.LogOptions{
		Pretty:  cfg.Pretty(),
		Verbose: runOpts.Verbose || cfg.Verbose,
		LogFile: filepath.Join(pluginDir, LogFileName),
	}
	if errInit := core.Init(logOpts); errInit != nil {
		return report.ExitInternalError, fmt.Errorf("failed to initialize logger: %w", errInit)
	}

	prov := pyenv.NewProvisioner(runner, cfg.PythonBin)
	env, errEnsure := prov.Ensure(ctx, filepath.Join(pluginDir, cfg.VenvDirName))
	if errEnsure != nil {
		return report.ExitInternalError, fmt.Errorf("failed to ensure plugin environment: %w", errEnsure)
	}

	zap.L().Info("Reconciling manifest",
		zap.String("manifest", manifestPath),
		zap.String("env", env.Root),
		zap.Int("modules", len(requests)))

	eng := engine.New(
		inventory.New(env, runner),
		pyenv.NewInstaller(env, runner),
		engine.Policy{Exclusive: true, UpgradeUnpinned: cfg.UpgradeUnpinned},
	)

	outcomes, errReconcile := eng.Reconcile(ctx, requests)
	if errReconcile != nil {
		return report.ExitInternalError, fmt.Errorf("failed to reconcile: %w", errReconcile)
	}

	code := report.Summarize(outcomes)
	if errWrite := report.WriteSummary(pluginDir, env.Root, outcomes, code); errWrite != nil {
		zap.L().Warn("Failed to write run summary", zap.Error(errWrite))
	}
	return code, nil
}
