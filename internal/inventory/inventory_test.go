package inventory

import (
	"context"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plugforge/pipwright/internal/core"
	"github.com/plugforge/pipwright/internal/pyenv"
)

const pipListOutput = `[{"name": "requests", "version": "2.31.0"}, {"name": "ruamel.yaml", "version": "0.18.5"}]`

func probeRunner() *core.MockRunner {
	return &core.MockRunner{
		RunFunc: func(name string, arg ...string) (*core.RunResult, error) {
			if len(arg) > 0 && arg[0] == "-c" {
				return &core.RunResult{Stdout: "shlex\nsys\nos\n", ExitCode: 0}, nil
			}
			return &core.RunResult{Stdout: pipListOutput, ExitCode: 0}, nil
		},
	}
}

func newTestInventory(t *testing.T, runner core.Runner) *Inventory {
	t.Helper()
	caches.Clear()
	env := pyenv.At(t.TempDir(), "python3")
	return NewWithClock(env, runner, clockwork.NewFakeClock())
}

// TestQueriesTargetInterpreter is the load-bearing correctness test: every
// probe must run the target environment's interpreter, not the invoking
// process's. A probe through the wrong interpreter produces false
// positives/negatives about what is installed.
func TestQueriesTargetInterpreter(t *testing.T) {
	caches.Clear()
	mock := probeRunner()
	env := pyenv.At(t.TempDir(), "python3")
	inv := NewWithClock(env, mock, clockwork.NewFakeClock())

	_, err := inv.IsBuiltin(context.Background(), "shlex")
	require.NoError(t, err)

	_, _, err = inv.InstalledVersion(context.Background(), "requests")
	require.NoError(t, err)

	require.Len(t, mock.Calls, 2)
	for _, call := range mock.Calls {
		assert.Equal(t, env.Python(), call[0], "probe must use the venv's interpreter")
		assert.NotEqual(t, "python3", call[0])
	}
}

func TestIsBuiltin(t *testing.T) {
	inv := newTestInventory(t, probeRunner())

	builtin, err := inv.IsBuiltin(context.Background(), "shlex")
	require.NoError(t, err)
	assert.True(t, builtin)

	builtin, err = inv.IsBuiltin(context.Background(), "requests")
	require.NoError(t, err)
	assert.False(t, builtin)
}

func TestInstalledVersion(t *testing.T) {
	inv := newTestInventory(t, probeRunner())

	installed, ok, err := inv.InstalledVersion(context.Background(), "requests")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2.31.0", installed)

	// pip list names are canonicalized, so dotted names still match
	installed, ok, err = inv.InstalledVersion(context.Background(), "ruamel_yaml")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "0.18.5", installed)

	_, ok, err = inv.InstalledVersion(context.Background(), "numpy")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInstalledVersion_CachedUntilInvalidated(t *testing.T) {
	mock := probeRunner()
	inv := newTestInventory(t, mock)

	_, _, err := inv.InstalledVersion(context.Background(), "requests")
	require.NoError(t, err)
	_, _, err = inv.InstalledVersion(context.Background(), "numpy")
	require.NoError(t, err)
	assert.Len(t, mock.Calls, 1, "second query should hit the cache")

	// After an install the package database changed underneath us
	inv.Invalidate()
	_, _, err = inv.InstalledVersion(context.Background(), "requests")
	require.NoError(t, err)
	assert.Len(t, mock.Calls, 2)
}

func TestInstalledVersion_CacheExpires(t *testing.T) {
	caches.Clear()
	mock := probeRunner()
	clock := clockwork.NewFakeClock()
	inv := NewWithClock(pyenv.At(t.TempDir(), "python3"), mock, clock)

	_, _, err := inv.InstalledVersion(context.Background(), "requests")
	require.NoError(t, err)
	assert.Len(t, mock.Calls, 1)

	clock.Advance(cacheTTL + 1)
	_, _, err = inv.InstalledVersion(context.Background(), "requests")
	require.NoError(t, err)
	assert.Len(t, mock.Calls, 2)
}

func TestProbeFailures(t *testing.T) {
	inv := newTestInventory(t, &core.MockRunner{Result: &core.RunResult{ExitCode: 1, Stderr: "boom"}})

	_, err := inv.IsBuiltin(context.Background(), "shlex")
	assert.Error(t, err)

	_, _, err = inv.InstalledVersion(context.Background(), "requests")
	assert.Error(t, err)
}

func TestKnownNames(t *testing.T) {
	inv := newTestInventory(t, probeRunner())

	names := inv.KnownNames(context.Background())
	assert.Contains(t, names, "shlex")
	assert.Contains(t, names, "requests")
}
