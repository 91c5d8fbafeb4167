// Package inventory answers which modules are built into an environment's
// interpreter and which third-party modules are installed there, with their
// versions. Every query runs against the target environment's own
// interpreter, never the invoking process's.
package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/jonboulle/clockwork"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/plugforge/pipwright/internal/core"
	"github.com/plugforge/pipwright/internal/manifest"
	"github.com/plugforge/pipwright/internal/pyenv"
)

// cacheTTL bounds how long builtin and pip-list probes are reused before the
// environment is asked again.
const cacheTTL = 30 * time.Second

// builtinsProbe asks the environment's interpreter for its standard and
// compiled-in module namespace. Evaluated in the target interpreter because
// venvs can differ in standard-library surface across Python versions.
const builtinsProbe = "import sys; print('\\n'.join(sorted(set(sys.stdlib_module_names) | set(sys.builtin_module_names))))"

type envCache struct {
	builtins   mapset.Set[string]
	builtinsAt time.Time

	packages map[string]string
	listedAt time.Time
}

// caches holds per-environment probe results, keyed by environment identity.
var caches = xsync.NewMapOf[string, *envCache]()

// Inventory queries module state for one environment.
type Inventory struct {
	env    pyenv.Environment
	runner core.Runner
	clock  clockwork.Clock
}

// New creates an inventory bound to the given environment.
func New(env pyenv.Environment, runner core.Runner) *Inventory {
	return NewWithClock(env, runner, clockwork.NewRealClock())
}

// NewWithClock creates an inventory with a custom clock.
// This is useful for testing cache expiry with a fake clock.
func NewWithClock(env pyenv.Environment, runner core.Runner, clock clockwork.Clock) *Inventory {
	return &Inventory{env: env, runner: runner, clock: clock}
}

// IsBuiltin reports whether the named module is part of the environment
// interpreter's standard distribution.
func (inv *Inventory) IsBuiltin(ctx context.Context, name string) (bool, error) {
	cache := inv.cache()
	if cache.builtins == nil || inv.clock.Since(cache.builtinsAt) > cacheTTL {
		builtins, errProbe := inv.probeBuiltins(ctx)
		if errProbe != nil {
			return false, errProbe
		}
		cache.builtins = builtins
		cache.builtinsAt = inv.clock.Now()
	}

	return cache.builtins.Contains(name), nil
}

// InstalledVersion returns the installed version of the named module in this
// environment, or ok=false if it is not installed.
func (inv *Inventory) InstalledVersion(ctx context.Context, name string) (string, bool, error) {
	cache := inv.cache()
	if cache.packages == nil || inv.clock.Since(cache.listedAt) > cacheTTL {
		packages, errList := inv.listPackages(ctx)
		if errList != nil {
			return "", false, errList
		}
		cache.packages = packages
		cache.listedAt = inv.clock.Now()
	}

	installed, ok := cache.packages[manifest.CanonicalName(name)]
	return installed, ok, nil
}

// Invalidate drops the cached package list for this environment so the next
// query re-reads the package database. Called after every install action:
// a later manifest entry must see the state the earlier entry left behind.
func (inv *Inventory) Invalidate() {
	if cache, ok := caches.Load(inv.env.Key()); ok {
		cache.packages = nil
	}
}

// KnownNames returns the names of all installed and builtin modules, for
// near-miss suggestions. Best effort: probe failures yield what is cached.
func (inv *Inventory) KnownNames(ctx context.Context) []string {
	var names []string

	if _, err := inv.IsBuiltin(ctx, ""); err == nil {
		names = append(names, inv.cache().builtins.ToSlice()...)
	}
	if _, _, err := inv.InstalledVersion(ctx, ""); err == nil {
		for name := range inv.cache().packages {
			names = append(names, name)
		}
	}

	return names
}

func (inv *Inventory) cache() *envCache {
	cache, _ := caches.LoadOrStore(inv.env.Key(), &envCache{})
	return cache
}

func (inv *Inventory) probeBuiltins(ctx context.Context) (mapset.Set[string], error) {
	result, err := inv.runner.Run(ctx, inv.env.Python(), "-c", builtinsProbe)
	if err != nil {
		return nil, fmt.Errorf("failed to probe builtin modules: %w", err)
	}
	if result.ExitCode != 0 {
		return nil, fmt.Errorf("builtin module probe exited %d: %s", result.ExitCode, result.Combined())
	}

	builtins := mapset.NewSet[string]()
	for _, line := range strings.Split(result.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			builtins.Add(line)
		}
	}

	zap.L().Debug("Probed builtin modules",
		zap.String("python", inv.env.Python()),
		zap.Int("count", builtins.Cardinality()))

	return builtins, nil
}

func (inv *Inventory) listPackages(ctx context.Context) (map[string]string, error) {
	result, err := inv.runner.Run(ctx, inv.env.Python(),
		"-m", "pip", "list", "--format=json", "--disable-pip-version-check")
	if err != nil {
		return nil, fmt.Errorf("failed to get pip list: %w", err)
	}
	if result.ExitCode != 0 {
		return nil, fmt.Errorf("pip list exited %d: %s", result.ExitCode, result.Combined())
	}

	parsed := gjson.Parse(result.Stdout)
	if !parsed.IsArray() {
		return nil, fmt.Errorf("unexpected pip list output: %q", result.Stdout)
	}

	packages := make(map[string]string)
	for _, entry := range parsed.Array() {
		name := manifest.CanonicalName(entry.Get("name").String())
		if name == "" {
			continue
		}
		packages[name] = entry.Get("version").String()
	}

	zap.L().Debug("Listed installed packages",
		zap.String("python", inv.env.Python()),
		zap.Int("count", len(packages)))

	return packages, nil
}
