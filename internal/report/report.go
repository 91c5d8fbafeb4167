// Package report turns decision-engine outcomes into process exit status,
// log lines, and a run summary file.
package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/plugforge/pipwright/internal/engine"
	"github.com/plugforge/pipwright/internal/manifest"
	"github.com/plugforge/pipwright/internal/version"
)

// SummaryFileName is the run summary written beside the target environment.
const SummaryFileName = "pipwright-report.yaml"

// Process exit codes. Pre-flight failures get distinct codes; install
// failures share one generic code because the per-module detail lives in
// the logs, not the exit status.
const (
	ExitOK                    = 0
	ExitInstallFailed         = 1
	ExitMissingModule         = 2
	ExitTooManyModules        = 3
	ExitUnsupportedConstraint = 4
	ExitInternalError         = 5
)

// ErrTooManyModules is returned when several modules are given where exactly
// one is expected.
var ErrTooManyModules = errors.New("multiple modules are not supported here")

// PreflightExitCode maps a pre-flight error to its exit code. Pre-flight
// errors abort the whole run before anything has been mutated.
func PreflightExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, manifest.ErrMissingModule):
		return ExitMissingModule
	case errors.Is(err, ErrTooManyModules):
		return ExitTooManyModules
	case errors.Is(err, version.ErrUnsupportedConstraint):
		return ExitUnsupportedConstraint
	default:
		return ExitInternalError
	}
}

// Summarize logs every outcome and returns the aggregate exit code: zero only
// when every module resolved successfully.
func Summarize(outcomes []engine.Outcome) int {
	failed := 0
	for _, outcome := range outcomes {
		logOutcome(outcome)
		if !outcome.Success {
			failed++
		}
	}

	if failed > 0 {
		zap.L().Error("One or more modules could not be installed",
			zap.Int("failed", failed),
			zap.Int("total", len(outcomes)))
		return ExitInstallFailed
	}

	zap.L().Info("All modules resolved", zap.Int("total", len(outcomes)))
	return ExitOK
}

func logOutcome(outcome engine.Outcome) {
	fields := []zap.Field{
		zap.String("module", outcome.Request.Name),
		zap.String("spec", outcome.Request.Spec()),
		zap.String("action", string(outcome.Decision.Action)),
		zap.String("detail", outcome.Detail),
	}

	if outcome.Success {
		zap.L().Info("Module resolved", fields...)
		return
	}
	zap.L().Error("Module failed", fields...)
}

// moduleSummary is one row of the on-disk run summary.
type moduleSummary struct {
	Module  string `yaml:"module"`
	Spec    string `yaml:"spec"`
	Action  string `yaml:"action"`
	Success bool   `yaml:"success"`
	Detail  string `yaml:"detail,omitempty"`
}

// runSummary is the document written to SummaryFileName.
type runSummary struct {
	Environment string          `yaml:"environment"`
	ExitCode    int             `yaml:"exit_code"`
	Modules     []moduleSummary `yaml:"modules"`
}

// WriteSummary writes the run summary next to the environment it describes.
func WriteSummary(dir string, envRoot string, outcomes []engine.Outcome, exitCode int) error {
	summary := runSummary{
		Environment: envRoot,
		ExitCode:    exitCode,
		Modules:     make([]moduleSummary, 0, len(outcomes)),
	}

	for _, outcome := range outcomes {
		summary.Modules = append(summary.Modules, moduleSummary{
			Module:  outcome.Request.Name,
			Spec:    outcome.Request.Spec(),
			Action:  string(outcome.Decision.Action),
			Success: outcome.Success,
			Detail:  outcome.Detail,
		})
	}

	data, errMarshal := yaml.Marshal(&summary)
	if errMarshal != nil {
		return fmt.Errorf("failed to marshal run summary: %w", errMarshal)
	}

	path := filepath.Join(dir, SummaryFileName)
	// #nosec G306 -- the summary is operator-facing report output
	if errWrite := os.WriteFile(path, data, 0644); errWrite != nil {
		return fmt.Errorf("failed to write run summary: %w", errWrite)
	}

	zap.L().Debug("Wrote run summary", zap.String("path", path))
	return nil
}
