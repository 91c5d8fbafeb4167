package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/plugforge/pipwright/internal/inventory"
	"github.com/plugforge/pipwright/internal/pyenv"
)

// execute carries out a decision and produces the request's Outcome.
func (e *Engine) execute(ctx context.Context, decision Decision) Outcome {
	switch decision.Action {
	case ActionSkipBuiltin, ActionSkipSatisfied:
		return Outcome{
			Request:  decision.Request,
			Decision: decision,
			Success:  true,
			Detail:   decision.Reason,
		}
	default:
		return e.install(ctx, decision)
	}
}

func (e *Engine) install(ctx context.Context, decision Decision) Outcome {
	request := decision.Request
	spec, opts := installArguments(decision)

	// Whether an installation already exists decides how a persistent
	// failure is reported: a failed refresh of an installed module is not
	// allowed to brick a plugin that already has its dependency.
	wasInstalled := decision.Action == ActionUpgrade || decision.Action == ActionDowngrade

	result, errInstall := e.installer.Install(ctx, spec, opts)
	if errInstall == nil && result.ExitCode == 0 {
		return e.confirmInstalled(ctx, decision, "")
	}

	// One fallback retry, only for the no-matching-version class of failure:
	// drop the version pin and take the latest release.
	if errInstall == nil && classifyInstallFailure(result.Combined()) == failureVersionNotFound && spec != request.Name {
		zap.L().Info("No matching version found, retrying without version pin",
			zap.String("module", request.Name),
			zap.String("spec", spec))

		retryResult, errRetry := e.installer.Install(ctx, request.Name, pyenv.InstallOptions{Upgrade: true})
		if errRetry == nil && retryResult.ExitCode == 0 {
			return e.confirmInstalled(ctx, decision, "requested version unavailable, installed latest instead")
		}
	}

	detail := fmt.Sprintf("%s: %v", ErrInstallFailed, request.Spec())
	if errInstall != nil {
		detail = fmt.Sprintf("%s: %v", ErrInstallFailed, errInstall)
	}

	if wasInstalled {
		// Original installation is intact; the refresh failing is logged
		// but the request still counts as resolved.
		zap.L().Warn("Module could not be updated, keeping existing installation",
			zap.String("module", request.Name),
			zap.String("spec", request.Spec()))
		return Outcome{
			Request:  request,
			Decision: decision,
			Success:  true,
			Detail:   "update failed, existing installation retained",
		}
	}

	if suggestion := suggestSimilar(e.inv.KnownNames(ctx), request.Name); suggestion != "" {
		detail = fmt.Sprintf("%s (did you mean %q?)", detail, suggestion)
	}

	zap.L().Error("Module could not be installed",
		zap.String("module", request.Name),
		zap.String("spec", request.Spec()),
		zap.String("detail", detail))

	return Outcome{
		Request:  request,
		Decision: decision,
		Success:  false,
		Detail:   detail,
	}
}

// confirmInstalled invalidates the cached package list and re-reads the
// resulting installed version so the log records what the environment
// actually ended up with.
func (e *Engine) confirmInstalled(ctx context.Context, decision Decision, note string) Outcome {
	e.inv.Invalidate()

	detail := note
	if installed, ok, err := e.inv.InstalledVersion(ctx, decision.Request.Name); err == nil && ok {
		if detail != "" {
			detail += ", "
		}
		detail += fmt.Sprintf("now at version %s", installed)
	}

	zap.L().Info("Module installed",
		zap.String("module", decision.Request.Name),
		zap.String("action", string(decision.Action)),
		zap.String("detail", detail))

	return Outcome{
		Request:  decision.Request,
		Decision: decision,
		Success:  true,
		Detail:   detail,
	}
}

// installArguments maps an install action to the pip specifier and flags.
func installArguments(decision Decision) (string, pyenv.InstallOptions) {
	switch decision.Action {
	case ActionInstallLatest:
		return decision.Request.Name, pyenv.InstallOptions{Upgrade: true}
	case ActionUpgrade:
		if decision.Request.Constraint == nil {
			return decision.Request.Name, pyenv.InstallOptions{Upgrade: true}
		}
		return decision.Request.Spec(), pyenv.InstallOptions{Upgrade: true}
	case ActionDowngrade:
		return decision.Request.Spec(), pyenv.InstallOptions{ForceReinstall: true}
	default: // ActionInstallExact
		return decision.Request.Spec(), pyenv.InstallOptions{}
	}
}

// Interface guards for the production implementations.
var (
	_ Installer = (*pyenv.PipInstaller)(nil)
	_ Inventory = (*inventory.Inventory)(nil)
)
