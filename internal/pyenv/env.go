// Package pyenv provisions isolated per-plugin Python environments and binds
// pip invocations to them.
package pyenv

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/mod/semver"

	"github.com/plugforge/pipwright/internal/core"
)

// DefaultPythonBin is the base interpreter used when none is configured.
const DefaultPythonBin = "python3"

// minPipVersion is the oldest pip release known to handle the requirement
// specifiers pipwright emits. Older pips trigger a warning, not a failure.
const minPipVersion = "21.0"

// Environment identifies one Python environment: either an isolated venv
// rooted at a directory, or the base interpreter's own environment.
// It is passed explicitly to every inventory and installer call; there is no
// ambient "current environment" state.
type Environment struct {
	// Root is the venv directory, or empty for the base environment.
	Root string

	basePython string
}

// System returns the base interpreter's environment.
func System(pythonBin string) Environment {
	if pythonBin == "" {
		pythonBin = DefaultPythonBin
	}
	return Environment{basePython: pythonBin}
}

// At returns the environment rooted at the given venv directory.
func At(root, pythonBin string) Environment {
	if pythonBin == "" {
		pythonBin = DefaultPythonBin
	}
	return Environment{Root: root, basePython: pythonBin}
}

// Exclusive reports whether this is an isolated per-plugin environment.
// Shared environments never get downgrades; exclusive ones may.
func (e Environment) Exclusive() bool {
	return e.Root != ""
}

// Python returns the interpreter executable for this environment. For a venv
// this is the venv's own interpreter, never the invoking process's: every
// builtin/installed-version query must run against it.
func (e Environment) Python() string {
	if e.Root == "" {
		return e.basePython
	}
	return filepath.Join(e.Root, binDirName(), pythonFileName())
}

// Key returns a stable identifier for caching per-environment state.
func (e Environment) Key() string {
	if e.Root == "" {
		return "system:" + e.basePython
	}
	return e.Root
}

func binDirName() string {
	if runtime.GOOS == core.GOOSWindows {
		return "Scripts"
	}
	return "bin"
}

func pythonFileName() string {
	if runtime.GOOS == core.GOOSWindows {
		return "python.exe"
	}
	return "python"
}

// Provisioner creates venvs from the base interpreter.
type Provisioner struct {
	runner    core.Runner
	pythonBin string
}

// NewProvisioner creates a provisioner using the given base interpreter.
func NewProvisioner(runner core.Runner, pythonBin string) *Provisioner {
	if pythonBin == "" {
		pythonBin = DefaultPythonBin
	}
	return &Provisioner{runner: runner, pythonBin: pythonBin}
}

// Ensure makes sure a venv exists at root and returns its handle. Idempotent:
// an existing interpreter at the target path is reused as-is. A fresh venv is
// created with --system-site-packages so the base interpreter's standard
// library stays visible while the venv's own site-packages directory is
// searched first on name collisions; pip is then upgraded to the latest
// release as part of creation.
func (p *Provisioner) Ensure(ctx context.Context, root string) (Environment, error) {
	env := At(root, p.pythonBin)

	if _, errStat := os.Stat(env.Python()); errStat == nil {
		zap.L().Debug("Reusing existing virtual environment", zap.String("path", root))
		return env, nil
	}

	zap.L().Info("Creating Python virtual environment", zap.String("path", root))
	result, errCreate := p.runner.Run(ctx, p.pythonBin, "-m", "venv", "--system-site-packages", root)
	if errCreate != nil {
		return Environment{}, fmt.Errorf("failed to create virtual environment: %w", errCreate)
	}
	if result.ExitCode != 0 {
		return Environment{}, fmt.Errorf("failed to create virtual environment at %s: %s", root, result.Combined())
	}

	if errPip := p.upgradePip(ctx, env); errPip != nil {
		return Environment{}, errPip
	}

	return env, nil
}

func (p *Provisioner) upgradePip(ctx context.Context, env Environment) error {
	result, errUpgrade := p.runner.Run(ctx, env.Python(), "-m", "pip", "install", "--no-cache-dir", "--upgrade", "pip")
	if errUpgrade != nil {
		return fmt.Errorf("failed to upgrade pip: %w", errUpgrade)
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("failed to upgrade pip in %s: %s", env.Root, result.Combined())
	}

	installed, errVersion := p.pipVersion(ctx, env)
	if errVersion != nil {
		zap.L().Warn("Could not determine pip version", zap.Error(errVersion))
		return nil
	}

	if semver.Compare("v"+installed, "v"+minPipVersion) < 0 {
		zap.L().Warn("pip is older than the minimum supported release",
			zap.String("installed", installed),
			zap.String("minimum", minPipVersion))
	}

	return nil
}

var pipVersionPattern = regexp.MustCompile(`^pip\s+(\S+)`)

// pipVersion parses "pip X.Y.Z from ..." out of pip --version.
func (p *Provisioner) pipVersion(ctx context.Context, env Environment) (string, error) {
	result, err := p.runner.Run(ctx, env.Python(), "-m", "pip", "--version")
	if err != nil {
		return "", fmt.Errorf("failed to run pip --version: %w", err)
	}
	if result.ExitCode != 0 {
		return "", fmt.Errorf("pip --version exited %d: %s", result.ExitCode, result.Combined())
	}

	match := pipVersionPattern.FindStringSubmatch(strings.TrimSpace(result.Stdout))
	if match == nil {
		return "", fmt.Errorf("unrecognized pip --version output: %q", result.Stdout)
	}
	return match[1], nil
}

// IsExternallyManaged reports whether the base interpreter refuses direct
// installs (PEP 668 EXTERNALLY-MANAGED marker in its stdlib directory).
// Installing into such an interpreter must be rejected up front.
func IsExternallyManaged(ctx context.Context, runner core.Runner, pythonBin string) (bool, error) {
	if pythonBin == "" {
		pythonBin = DefaultPythonBin
	}

	result, err := runner.Run(ctx, pythonBin, "-c", "import sysconfig; print(sysconfig.get_path('stdlib'))")
	if err != nil {
		return false, fmt.Errorf("failed to locate stdlib directory: %w", err)
	}
	if result.ExitCode != 0 {
		return false, fmt.Errorf("failed to locate stdlib directory: %s", result.Combined())
	}

	marker := filepath.Join(strings.TrimSpace(result.Stdout), "EXTERNALLY-MANAGED")
	if _, errStat := os.Stat(marker); errStat == nil {
		return true, nil
	}
	return false, nil
}
