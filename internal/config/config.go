// Package config provides configuration management for pipwright: defaults,
// an optional user config file, and PIPWRIGHT_-prefixed environment variable
// overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/plugforge/pipwright/internal/core"
)

const (
	// DefaultPluginsDir is where plugin directories (and their venvs) live.
	DefaultPluginsDir = "/opt/dsf/plugins"
	// DefaultVenvDirName is the venv directory inside a plugin directory.
	DefaultVenvDirName = "venv"
)

// LogFormat selects how log lines are rendered.
type LogFormat string

const (
	LogFormatAuto   LogFormat = "auto"
	LogFormatPretty LogFormat = "pretty"
	LogFormatJSON   LogFormat = "json"
)

func ValidLogFormats() map[LogFormat]struct{} {
	return map[LogFormat]struct{}{
		LogFormatAuto:   {},
		LogFormatPretty: {},
		LogFormatJSON:   {},
	}
}

func IsValidLogFormat(format LogFormat) bool {
	_, ok := ValidLogFormats()[format]
	return ok
}

// Config represents the pipwright configuration.
type Config struct {
	PluginsDir      string    `yaml:"plugins_dir,omitempty" mapstructure:"plugins_dir"`           // base directory for plugin venvs
	PythonBin       string    `yaml:"python_bin,omitempty" mapstructure:"python_bin"`             // base interpreter executable
	VenvDirName     string    `yaml:"venv_dir_name,omitempty" mapstructure:"venv_dir_name"`       // venv directory name inside a plugin dir
	UpgradeUnpinned bool      `yaml:"upgrade_unpinned,omitempty" mapstructure:"upgrade_unpinned"` // upgrade installed unconstrained modules in exclusive venvs
	LogFormat       LogFormat `yaml:"log_format,omitempty" mapstructure:"log_format"`             // "auto", "pretty" or "json"
	Verbose         bool      `yaml:"verbose,omitempty" mapstructure:"verbose"`                   // debug-level logging
}

// Pretty resolves the log format to a concrete choice, using terminal
// detection for "auto".
func (cfg *Config) Pretty() bool {
	switch cfg.LogFormat {
	case LogFormatPretty:
		return true
	case LogFormatJSON:
		return false
	default:
		return core.StderrIsTerminal()
	}
}

// GetUserConfigPath returns the path to the user config file (~/.pipwright/config.yaml).
func GetUserConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".pipwright", "config.yaml"), nil
}

// setupViper configures Viper with defaults, config file location, and
// environment variables. If configPath is non-empty, that file is loaded
// instead of the user config.
func setupViper(configPath string) error {
	viper.Reset()
	setViperDefaults()
	viper.SetEnvPrefix("PIPWRIGHT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if configPath != "" {
		viper.SetConfigFile(configPath)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
		return nil
	}

	userPath, errUserPath := GetUserConfigPath()
	if errUserPath == nil {
		if _, errStat := os.Stat(userPath); errStat == nil {
			viper.SetConfigFile(userPath)
			if errRead := viper.ReadInConfig(); errRead != nil {
				zap.L().Debug("Failed to read user config file", zap.String("path", userPath), zap.Error(errRead))
			}
		}
	}

	return nil
}

func setViperDefaults() {
	viper.SetDefault("plugins_dir", DefaultPluginsDir)
	viper.SetDefault("python_bin", "python3")
	viper.SetDefault("venv_dir_name", DefaultVenvDirName)
	viper.SetDefault("upgrade_unpinned", false)
	viper.SetDefault("log_format", "auto")
	viper.SetDefault("verbose", false)
}

// LoadConfig loads configuration with precedence: environment variables over
// config file over defaults.
func LoadConfig(configPath string) (*Config, error) {
	if err := setupViper(configPath); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func validateConfig(cfg *Config) error {
	if cfg.PluginsDir == "" {
		return fmt.Errorf("plugins_dir cannot be empty")
	}
	if cfg.PythonBin == "" {
		return fmt.Errorf("python_bin cannot be empty")
	}
	if cfg.VenvDirName == "" || strings.ContainsRune(cfg.VenvDirName, filepath.Separator) {
		return fmt.Errorf("venv_dir_name must be a bare directory name, got %q", cfg.VenvDirName)
	}
	if cfg.LogFormat != "" && !IsValidLogFormat(cfg.LogFormat) {
		return fmt.Errorf("log_format must be one of: %s, got '%s'", core.JoinMapKeys(ValidLogFormats()), cfg.LogFormat)
	}
	return nil
}

// Save writes the configuration to the given path, creating the directory
// if needed.
func Save(cfg *Config, path string) error {
	// #nosec G301 -- config directory permissions 0755 are acceptable for user config
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, errMarshal := yaml.Marshal(cfg)
	if errMarshal != nil {
		return fmt.Errorf("failed to marshal config: %w", errMarshal)
	}

	// #nosec G306 -- config file permissions 0644 are acceptable for user config files
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// VenvPath returns the venv directory for a plugin installed under the
// configured plugins directory.
func (cfg *Config) VenvPath(pluginName string) string {
	return filepath.Join(cfg.PluginsDir, pluginName, cfg.VenvDirName)
}
