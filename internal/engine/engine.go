// Package engine decides, per manifest entry, whether a module must be
// skipped, installed, upgraded or downgraded, and drives pip to make it so.
package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/plugforge/pipwright/internal/core"
	"github.com/plugforge/pipwright/internal/manifest"
	"github.com/plugforge/pipwright/internal/pyenv"
	"github.com/plugforge/pipwright/internal/version"
)

// ErrInstallFailed marks a module that could not be installed after the
// fallback retry. It is recorded per module and never aborts the rest of
// the manifest.
var ErrInstallFailed = errors.New("module could not be installed")

// Action is what the engine decided to do about one module request.
type Action string

// Actions, in rough order of preference.
const (
	ActionSkipBuiltin   Action = "skip-builtin"
	ActionSkipSatisfied Action = "skip-already-satisfied"
	ActionInstallLatest Action = "install-latest"
	ActionInstallExact  Action = "install-exact"
	ActionUpgrade       Action = "upgrade"
	ActionDowngrade     Action = "downgrade"
)

// Decision pairs a request with the chosen action and its justification.
type Decision struct {
	Request manifest.ModuleRequest
	Action  Action
	Reason  string
}

// Outcome is the terminal result for one request. Every request yields
// exactly one Decision and one Outcome.
type Outcome struct {
	Request  manifest.ModuleRequest
	Decision Decision
	Success  bool
	Detail   string
}

// Policy configures the behaviors that differ between a shared environment
// and an exclusive per-plugin venv.
type Policy struct {
	// Exclusive permits downgrades: nothing else depends on the newer
	// version. Shared environments never downgrade.
	Exclusive bool
	// UpgradeUnpinned upgrades already-installed modules that carry no
	// constraint instead of leaving them alone.
	UpgradeUnpinned bool
}

// Inventory is the module state the engine consults. Implemented by
// inventory.Inventory; faked in tests.
type Inventory interface {
	IsBuiltin(ctx context.Context, name string) (bool, error)
	InstalledVersion(ctx context.Context, name string) (string, bool, error)
	Invalidate()
	KnownNames(ctx context.Context) []string
}

// Installer executes install actions. Implemented by pyenv.PipInstaller.
type Installer interface {
	Install(ctx context.Context, spec string, opts pyenv.InstallOptions) (*core.RunResult, error)
}

// Engine reconciles a manifest against one environment.
type Engine struct {
	inv       Inventory
	installer Installer
	policy    Policy
}

// New creates an engine for one environment's inventory and installer.
func New(inv Inventory, installer Installer, policy Policy) *Engine {
	return &Engine{inv: inv, installer: installer, policy: policy}
}

// Reconcile processes the manifest in order, one entry completing (including
// any pip subprocess) before the next begins. A later duplicate entry sees
// the installed-version state its predecessor left behind. Per-module
// failures are isolated in their Outcome; the returned error is reserved for
// inventory probes failing outright.
func (e *Engine) Reconcile(ctx context.Context, requests manifest.Manifest) ([]Outcome, error) {
	outcomes := make([]Outcome, 0, len(requests))

	for _, request := range requests {
		decision, errDecide := e.decide(ctx, request)
		if errDecide != nil {
			return outcomes, fmt.Errorf("failed to evaluate module %q: %w", request.Name, errDecide)
		}

		zap.L().Info("Decision",
			zap.String("module", request.Name),
			zap.String("spec", request.Spec()),
			zap.String("action", string(decision.Action)),
			zap.String("reason", decision.Reason))

		outcomes = append(outcomes, e.execute(ctx, decision))
	}

	return outcomes, nil
}

// decide maps one request and the current inventory state to an action.
// Rules are evaluated in fixed order; builtin modules short-circuit before
// any installed-version query.
func (e *Engine) decide(ctx context.Context, request manifest.ModuleRequest) (Decision, error) {
	builtin, errBuiltin := e.inv.IsBuiltin(ctx, request.Name)
	if errBuiltin != nil {
		return Decision{}, errBuiltin
	}
	if builtin {
		return Decision{
			Request: request,
			Action:  ActionSkipBuiltin,
			Reason:  "module is part of the interpreter's standard distribution",
		}, nil
	}

	installed, isInstalled, errInstalled := e.inv.InstalledVersion(ctx, request.Name)
	if errInstalled != nil {
		return Decision{}, errInstalled
	}

	if !isInstalled {
		if request.Constraint == nil {
			return Decision{
				Request: request,
				Action:  ActionInstallLatest,
				Reason:  "not installed, no version requested",
			}, nil
		}
		return Decision{
			Request: request,
			Action:  ActionInstallExact,
			Reason:  fmt.Sprintf("not installed, constraint %s requested", request.Spec()),
		}, nil
	}

	if request.Constraint == nil {
		if e.policy.UpgradeUnpinned {
			return Decision{
				Request: request,
				Action:  ActionUpgrade,
				Reason:  fmt.Sprintf("installed at %s, upgrading unpinned module to latest", installed),
			}, nil
		}
		return Decision{
			Request: request,
			Action:  ActionSkipSatisfied,
			Reason:  fmt.Sprintf("already installed at %s, no version requested", installed),
		}, nil
	}

	return e.decideConstrained(request, installed), nil
}

// decideConstrained handles the installed-with-constraint cases.
func (e *Engine) decideConstrained(request manifest.ModuleRequest, installed string) Decision {
	constraint := request.Constraint

	satisfied, errSatisfies := version.Satisfies(installed, constraint.Op, constraint.Version)
	if errSatisfies != nil {
		// Unorderable versions fail closed: never assume satisfied. In an
		// exclusive venv pip can sort it out; a shared environment is left
		// untouched because the replacement's direction is unknowable.
		if e.policy.Exclusive {
			return Decision{
				Request: request,
				Action:  ActionInstallExact,
				Reason:  fmt.Sprintf("installed version %q is unorderable, reinstalling to satisfy %s", installed, request.Spec()),
			}
		}
		zap.L().Warn("Installed version is unorderable, leaving shared environment untouched",
			zap.String("module", request.Name),
			zap.String("installed", installed),
			zap.String("constraint", request.Spec()))
		return Decision{
			Request: request,
			Action:  ActionSkipSatisfied,
			Reason:  fmt.Sprintf("installed version %q is unorderable, not modifying shared environment", installed),
		}
	}

	if satisfied {
		return Decision{
			Request: request,
			Action:  ActionSkipSatisfied,
			Reason:  fmt.Sprintf("installed version %s satisfies %s", installed, request.Spec()),
		}
	}

	if e.requiresNewer(constraint, installed) {
		return Decision{
			Request: request,
			Action:  ActionUpgrade,
			Reason:  fmt.Sprintf("installed version %s is below constraint %s", installed, request.Spec()),
		}
	}

	if e.policy.Exclusive {
		return Decision{
			Request: request,
			Action:  ActionDowngrade,
			Reason:  fmt.Sprintf("installed version %s is above constraint %s", installed, request.Spec()),
		}
	}

	zap.L().Warn("Downgrade blocked in shared environment",
		zap.String("module", request.Name),
		zap.String("installed", installed),
		zap.String("constraint", request.Spec()))
	return Decision{
		Request: request,
		Action:  ActionSkipSatisfied,
		Reason:  fmt.Sprintf("downgrade to %s blocked, other plugins may depend on %s", request.Spec(), installed),
	}
}

// requiresNewer reports whether an unsatisfied constraint asks for a version
// above the installed one.
func (e *Engine) requiresNewer(constraint *manifest.Constraint, installed string) bool {
	ordering, err := version.CompareLiterals(installed, constraint.Version)
	if err != nil {
		// Unreachable after a successful Satisfies call on the same inputs.
		return false
	}

	switch ordering {
	case version.Less:
		return true
	case version.Greater:
		return false
	default:
		// Equal but unsatisfied: only strict operators land here.
		return constraint.Op == version.OpGreater
	}
}
