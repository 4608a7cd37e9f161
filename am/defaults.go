package am

import (
	"github.com/spf13/viper"
)

// DefaultDatabasePath is used when database.path is unset
const DefaultDatabasePath = "tagstore.db"

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", DefaultDatabasePath)
	v.SetDefault("database.reset_on_open", false)
	v.SetDefault("database.remove_on_destroy", true)

	// Store defaults
	v.SetDefault("store.source", "")
	v.SetDefault("store.cascade_remove", false)
	v.SetDefault("store.fill_defaults", true)

	// Log defaults
	v.SetDefault("log.json", false)
	v.SetDefault("log.level", "warn")
}

// BindEnvVars binds short environment aliases on top of the TAGSTORE_* automatic mapping
func BindEnvVars(v *viper.Viper) {
	v.BindEnv("database.path", EnvPrefix+"_DATABASE_PATH", EnvPrefix+"_DB")
	v.BindEnv("log.level", EnvPrefix+"_LOG_LEVEL")
}

// GetDatabasePath returns the configured database path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return DefaultDatabasePath
	}
	return c.Database.Path
}
