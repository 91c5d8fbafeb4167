package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, DefaultPluginsDir, cfg.PluginsDir)
	assert.Equal(t, "python3", cfg.PythonBin)
	assert.Equal(t, DefaultVenvDirName, cfg.VenvDirName)
	assert.False(t, cfg.UpgradeUnpinned)
	assert.Equal(t, LogFormatAuto, cfg.LogFormat)
	assert.False(t, cfg.Verbose)
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `plugins_dir: /srv/plugins
python_bin: python3.11
upgrade_unpinned: true
log_format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/plugins", cfg.PluginsDir)
	assert.Equal(t, "python3.11", cfg.PythonBin)
	assert.True(t, cfg.UpgradeUnpinned)
	assert.Equal(t, LogFormatJSON, cfg.LogFormat)
	assert.Equal(t, DefaultVenvDirName, cfg.VenvDirName)
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("python_bin: python3.11\n"), 0644))

	t.Setenv("PIPWRIGHT_PYTHON_BIN", "python3.13")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "python3.13", cfg.PythonBin)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(cfg *Config) {},
		},
		{
			name:    "empty plugins dir",
			mutate:  func(cfg *Config) { cfg.PluginsDir = "" },
			wantErr: "plugins_dir",
		},
		{
			name:    "empty python bin",
			mutate:  func(cfg *Config) { cfg.PythonBin = "" },
			wantErr: "python_bin",
		},
		{
			name:    "venv dir with separator",
			mutate:  func(cfg *Config) { cfg.VenvDirName = "a/b" },
			wantErr: "venv_dir_name",
		},
		{
			name:    "bad log format",
			mutate:  func(cfg *Config) { cfg.LogFormat = "xml" },
			wantErr: "log_format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				PluginsDir:  DefaultPluginsDir,
				PythonBin:   "python3",
				VenvDirName: DefaultVenvDirName,
				LogFormat:   LogFormatAuto,
			}
			tt.mutate(cfg)
			err := validateConfig(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	cfg := &Config{
		PluginsDir:      "/srv/plugins",
		PythonBin:       "python3.12",
		VenvDirName:     "env",
		UpgradeUnpinned: true,
		LogFormat:       LogFormatPretty,
	}
	require.NoError(t, Save(cfg, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.PluginsDir, loaded.PluginsDir)
	assert.Equal(t, cfg.PythonBin, loaded.PythonBin)
	assert.Equal(t, cfg.VenvDirName, loaded.VenvDirName)
	assert.True(t, loaded.UpgradeUnpinned)
	assert.Equal(t, LogFormatPretty, loaded.LogFormat)
}

func TestVenvPath(t *testing.T) {
	cfg := &Config{PluginsDir: "/opt/dsf/plugins", VenvDirName: "venv"}
	assert.Equal(t, filepath.Join("/opt/dsf/plugins", "DuetMonitor", "venv"), cfg.VenvPath("DuetMonitor"))
}

func TestPretty(t *testing.T) {
	assert.True(t, (&Config{LogFormat: LogFormatPretty}).Pretty())
	assert.False(t, (&Config{LogFormat: LogFormatJSON}).Pretty())
}
