package am

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/teranos/tagstore/errors"
	"github.com/teranos/tagstore/logger"
)

// createBackup creates rotating backups (.back1, .back2, .back3) before modifying config
func createBackup(configPath string) error {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil // No file to backup
	}

	// Rotate backups: .back3 -> delete, .back2 -> .back3, .back1 -> .back2, current -> .back1
	back3 := configPath + ".back3"
	back2 := configPath + ".back2"
	back1 := configPath + ".back1"

	if err := os.Remove(back3); err != nil && !os.IsNotExist(err) {
		// Don't fail the save over a stale backup
		logger.Warnw("Failed to delete old config backup", logger.FieldPath, back3, logger.FieldError, err)
	}

	if _, err := os.Stat(back2); err == nil {
		if err := os.Rename(back2, back3); err != nil {
			return errors.Wrap(err, "failed to rotate .back2 to .back3")
		}
	}

	if _, err := os.Stat(back1); err == nil {
		if err := os.Rename(back1, back2); err != nil {
			return errors.Wrap(err, "failed to rotate .back1 to .back2")
		}
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return errors.Wrap(err, "failed to read config for backup")
	}

	if err := os.WriteFile(back1, content, DefaultFilePermissions); err != nil {
		return errors.Wrap(err, "failed to create .back1")
	}

	return nil
}

// Save writes cfg as TOML to configPath, rotating up to three backups of
// the previous file
func Save(cfg *Config, configPath string) error {
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "refusing to save invalid config")
	}
	if err := os.MkdirAll(filepath.Dir(configPath), DefaultDirPermissions); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}
	if err := createBackup(configPath); err != nil {
		return errors.Wrap(err, "failed to create backup")
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}
	if err := os.WriteFile(configPath, data, DefaultFilePermissions); err != nil {
		return errors.Wrapf(err, "failed to write config %s", configPath)
	}

	logger.Debugw("Config saved", logger.FieldPath, configPath)
	return nil
}

// SetValue sets one dotted key in the config file at configPath and saves
// it. Settings already in the file are kept; keys the file lacked are
// written with their defaults. The cached configuration is dropped.
func SetValue(configPath, key, value string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")
	SetDefaults(v)
	if !v.IsSet(key) {
		return nil, errors.WithHint(
			errors.NewInvalidRequestError("unknown configuration key %q", key),
			"run 'tagstore am show' to list the keys")
	}

	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
		}
	}
	v.Set(key, value)

	cfg, err := LoadWithViper(v)
	if err != nil {
		return nil, err
	}
	if err := Save(cfg, configPath); err != nil {
		return nil, err
	}
	Reset()
	return cfg, nil
}
