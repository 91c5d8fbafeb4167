package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/plugforge/pipwright/internal/core"
	"github.com/plugforge/pipwright/internal/inventory"
	"github.com/plugforge/pipwright/internal/pyenv"
)

// newEnvCmd creates the env command and its subcommands
func newEnvCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "env",
		Short: "Manage plugin virtual environments",
	}

	cmd.AddCommand(newEnvEnsureCmd())
	cmd.AddCommand(newEnvInspectCmd())

	return cmd
}

func newEnvEnsureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ensure DIR",
		Short: "Create a virtual environment at DIR if it does not exist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runner := core.NewExecRunner()
			prov := pyenv.NewProvisioner(runner, cfg.PythonBin)

			env, err := prov.Ensure(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to ensure environment: %w", err)
			}

			core.MustFprintf(os.Stdout, "Environment ready: %s\n", env.Python())
			return nil
		},
	}
}

func newEnvInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [DIR]",
		Short: "Show an environment's interpreter and installed packages",
		Long: `Show the interpreter an environment uses and the packages installed in it.
Without DIR the shared base interpreter's environment is inspected.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			runner := core.NewExecRunner()

			env := pyenv.System(cfg.PythonBin)
			if len(args) == 1 {
				env = pyenv.At(args[0], cfg.PythonBin)
			}

			core.MustFprintf(os.Stdout, "Interpreter: %s\n", env.Python())
			core.MustFprintf(os.Stdout, "Exclusive:   %t\n", env.Exclusive())

			if !env.Exclusive() {
				managed, errManaged := pyenv.IsExternallyManaged(ctx, runner, cfg.PythonBin)
				if errManaged != nil {
					return fmt.Errorf("failed to inspect base interpreter: %w", errManaged)
				}
				core.MustFprintf(os.Stdout, "Managed:     %t\n", managed)
			}

			names := inventory.New(env, runner).KnownNames(ctx)
			sort.Strings(names)
			core.MustFprintf(os.Stdout, "Packages:    %d\n", len(names))
			for _, name := range names {
				core.MustFprintf(os.Stdout, "  %s\n", name)
			}
			return nil
		},
	}
}
