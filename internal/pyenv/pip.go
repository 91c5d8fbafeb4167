package pyenv

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/plugforge/pipwright/internal/core"
)

// InstallOptions are the pip flags the decision engine can toggle per action.
type InstallOptions struct {
	Upgrade        bool
	ForceReinstall bool
}

// PipInstaller runs pip installs bound to one environment's interpreter.
// The subprocess exit code is the sole success signal.
type PipInstaller struct {
	env    Environment
	runner core.Runner
}

// NewInstaller returns an installer bound to the given environment.
func NewInstaller(env Environment, runner core.Runner) *PipInstaller {
	return &PipInstaller{env: env, runner: runner}
}

// Environment returns the environment this installer targets.
func (i *PipInstaller) Environment() Environment {
	return i.env
}

// Install runs "pip install" for the given requirement specifier and returns
// the run result. The call blocks until pip exits; pip's own network timeout
// behavior applies, none is enforced here.
func (i *PipInstaller) Install(ctx context.Context, spec string, opts InstallOptions) (*core.RunResult, error) {
	args := []string{"-m", "pip", "install", "--no-cache-dir"}
	if opts.Upgrade {
		args = append(args, "--upgrade")
	}
	if opts.ForceReinstall {
		args = append(args, "--force-reinstall")
	}
	args = append(args, spec)

	zap.L().Debug("Invoking pip",
		zap.String("python", i.env.Python()),
		zap.String("spec", spec),
		zap.Bool("upgrade", opts.Upgrade),
		zap.Bool("force_reinstall", opts.ForceReinstall))

	result, err := i.runner.Run(ctx, i.env.Python(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run pip install for %q: %w", spec, err)
	}

	return result, nil
}
