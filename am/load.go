package am

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"github.com/teranos/tagstore/errors"
)

var (
	mu            sync.Mutex
	globalConfig  *Config
	viperInstance *viper.Viper

	// ConfigSources records which file set each key during the last load
	ConfigSources = map[string]SourceInfo{}
)

// Load reads the tagstore configuration using Viper
func Load() (*Config, error) {
	mu.Lock()
	defer mu.Unlock()
	if globalConfig != nil {
		return globalConfig, nil
	}

	v := initViper()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	globalConfig = &config
	return globalConfig, nil
}

// GetViper returns the Viper instance for advanced configuration access
func GetViper() *viper.Viper {
	mu.Lock()
	defer mu.Unlock()
	return initViper()
}

// LoadWithViper loads configuration using a provided Viper instance
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	return &config, nil
}

// LoadFromFile loads configuration from a specific file path on top of the
// defaults. Environment variables are not consulted.
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal config from %s", configPath)
	}

	return &config, nil
}

// Reset clears the cached configuration (useful for testing)
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	globalConfig = nil
	viperInstance = nil
	ConfigSources = map[string]SourceInfo{}
}

// initViper initializes Viper with configuration sources and defaults.
// Callers hold mu.
func initViper() *viper.Viper {
	if viperInstance != nil {
		return viperInstance
	}

	v := viper.New()

	// Set up environment variable binding
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	BindEnvVars(v)

	SetDefaults(v)

	// Manually merge configs in precedence order: system -> user -> project -> env vars
	mergeConfigFiles(v)

	viperInstance = v
	return v
}

// findProjectConfig walks up from the working directory looking for tagstore.toml
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		path := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(path); err == nil {
			return path
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// ProjectConfigPath is the nearest tagstore.toml at or above the working
// directory, or tagstore.toml in the working directory when none exists
func ProjectConfigPath() (string, error) {
	if path := findProjectConfig(); path != "" {
		return path, nil
	}
	dir, err := os.Getwd()
	if err != nil {
		return "", errors.Wrap(err, "failed to resolve working directory")
	}
	return filepath.Join(dir, ConfigFileName), nil
}

// UserConfigPath is ~/.tagstore/tagstore.toml, or "" without a home directory
func UserConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".tagstore", ConfigFileName)
}

// mergeConfigFiles merges SearchPaths in precedence order and records the
// file each key came from. Env vars stay on top because AutomaticEnv outranks
// the config layer.
func mergeConfigFiles(v *viper.Viper) {
	for _, c := range SearchPaths() {
		if _, err := os.Stat(c.Path); err != nil {
			continue
		}
		fileViper := viper.New()
		fileViper.SetConfigFile(c.Path)
		fileViper.SetConfigType("toml")
		if err := fileViper.ReadInConfig(); err != nil {
			continue
		}
		if err := v.MergeConfigMap(fileViper.AllSettings()); err != nil {
			continue
		}
		for _, key := range fileViper.AllKeys() {
			ConfigSources[key] = c
		}
	}
}

// Get returns a configuration value using dot notation
func Get(key string) interface{} {
	return GetViper().Get(key)
}

// GetString returns a configuration value as string using dot notation
func GetString(key string) string {
	return GetViper().GetString(key)
}

// GetBool returns a configuration value as bool using dot notation
func GetBool(key string) bool {
	return GetViper().GetBool(key)
}
