package pyenv

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plugforge/pipwright/internal/core"
)

func fakeVenv(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	binDir := filepath.Join(root, binDirName())
	require.NoError(t, os.MkdirAll(binDir, 0700))
	// #nosec G306 -- test file permissions are acceptable for temporary test files
	require.NoError(t, os.WriteFile(filepath.Join(binDir, pythonFileName()), []byte("#!/bin/sh\n"), 0755))
	return root
}

func TestEnvironment_Python(t *testing.T) {
	system := System("python3")
	assert.Equal(t, "python3", system.Python())
	assert.False(t, system.Exclusive())

	venv := At("/opt/dsf/plugins/Backup/venv", "python3")
	assert.True(t, venv.Exclusive())
	if runtime.GOOS == core.GOOSWindows {
		assert.Equal(t, filepath.Join("/opt/dsf/plugins/Backup/venv", "Scripts", "python.exe"), venv.Python())
	} else {
		assert.Equal(t, "/opt/dsf/plugins/Backup/venv/bin/python", venv.Python())
	}
}

func TestEnvironment_Key(t *testing.T) {
	assert.NotEqual(t, System("python3").Key(), At("/tmp/venv", "python3").Key())
	assert.Equal(t, At("/tmp/venv", "python3").Key(), At("/tmp/venv", "python3").Key())
}

// TestEnsure_ReusesExistingEnvironment tests that Ensure never recreates a
// venv whose interpreter already exists
func TestEnsure_ReusesExistingEnvironment(t *testing.T) {
	root := fakeVenv(t)
	mock := &core.MockRunner{}
	provisioner := NewProvisioner(mock, "python3")

	env, err := provisioner.Ensure(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, root, env.Root)
	assert.Empty(t, mock.Calls, "no subprocess should run when the venv already exists")
}

// TestEnsure_CreatesEnvironment tests venv creation and the pip upgrade that
// follows it
func TestEnsure_CreatesEnvironment(t *testing.T) {
	root := filepath.Join(t.TempDir(), "venv")
	mock := &core.MockRunner{
		RunFunc: func(name string, arg ...string) (*core.RunResult, error) {
			if len(arg) >= 3 && arg[0] == "-m" && arg[1] == "pip" && arg[2] == "--version" {
				return &core.RunResult{Stdout: "pip 24.0 from /x (python 3.11)", ExitCode: 0}, nil
			}
			return &core.RunResult{ExitCode: 0}, nil
		},
	}
	provisioner := NewProvisioner(mock, "python3")

	env, err := provisioner.Ensure(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, root, env.Root)

	require.Len(t, mock.Calls, 3)
	assert.Equal(t, []string{"python3", "-m", "venv", "--system-site-packages", root}, mock.Calls[0])
	assert.Equal(t, []string{env.Python(), "-m", "pip", "install", "--no-cache-dir", "--upgrade", "pip"}, mock.Calls[1])
	assert.Equal(t, []string{env.Python(), "-m", "pip", "--version"}, mock.Calls[2])
}

func TestEnsure_CreateFails(t *testing.T) {
	root := filepath.Join(t.TempDir(), "venv")
	mock := &core.MockRunner{Result: &core.RunResult{ExitCode: 1, Stderr: "No module named venv"}}
	provisioner := NewProvisioner(mock, "python3")

	_, err := provisioner.Ensure(context.Background(), root)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "virtual environment")
}

func TestPipVersionPattern(t *testing.T) {
	match := pipVersionPattern.FindStringSubmatch("pip 23.3.1 from /usr/lib/python3/dist-packages/pip (python 3.11)")
	require.NotNil(t, match)
	assert.Equal(t, "23.3.1", match[1])

	assert.Nil(t, pipVersionPattern.FindStringSubmatch("not pip output"))
}

// TestInstall_CommandShape tests that installs run through the environment's
// own interpreter with the expected pip flags
func TestInstall_CommandShape(t *testing.T) {
	env := At("/plugins/Backup/venv", "python3")
	mock := &core.MockRunner{Result: &core.RunResult{ExitCode: 0}}
	installer := NewInstaller(env, mock)

	result, err := installer.Install(context.Background(), "requests>=2.0", InstallOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)

	require.Len(t, mock.Calls, 1)
	assert.Equal(t, []string{env.Python(), "-m", "pip", "install", "--no-cache-dir", "requests>=2.0"}, mock.Calls[0])

	_, err = installer.Install(context.Background(), "requests", InstallOptions{Upgrade: true, ForceReinstall: true})
	require.NoError(t, err)
	assert.Equal(t, []string{env.Python(), "-m", "pip", "install", "--no-cache-dir", "--upgrade", "--force-reinstall", "requests"}, mock.Calls[1])
}

func TestIsExternallyManaged(t *testing.T) {
	stdlib := t.TempDir()
	mock := &core.MockRunner{Result: &core.RunResult{Stdout: stdlib + "\n", ExitCode: 0}}

	managed, err := IsExternallyManaged(context.Background(), mock, "python3")
	require.NoError(t, err)
	assert.False(t, managed)

	require.NoError(t, os.WriteFile(filepath.Join(stdlib, "EXTERNALLY-MANAGED"), []byte(""), 0600))
	managed, err = IsExternallyManaged(context.Background(), mock, "python3")
	require.NoError(t, err)
	assert.True(t, managed)
}
