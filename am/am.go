// Package am loads tagstore configuration.
//
// Values are merged from built-in defaults, /etc/tagstore/tagstore.toml,
// ~/.tagstore/tagstore.toml, the nearest tagstore.toml above the working
// directory, and TAGSTORE_* environment variables, in increasing precedence.
package am

import "fmt"

// ConfigFileName is the file looked up in each config location
const ConfigFileName = "tagstore.toml"

// EnvPrefix prefixes environment overrides: TAGSTORE_DATABASE_PATH
const EnvPrefix = "TAGSTORE"

// Config represents the tagstore configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database" toml:"database" yaml:"database"`
	Store    StoreConfig    `mapstructure:"store" toml:"store" yaml:"store"`
	Log      LogConfig      `mapstructure:"log" toml:"log" yaml:"log"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path            string `mapstructure:"path" toml:"path" yaml:"path"`                                        // ":memory:" for a throwaway session
	ResetOnOpen     bool   `mapstructure:"reset_on_open" toml:"reset_on_open" yaml:"reset_on_open"`             // drop existing tables when opening
	RemoveOnDestroy bool   `mapstructure:"remove_on_destroy" toml:"remove_on_destroy" yaml:"remove_on_destroy"` // delete the file on "db destroy"
}

// StoreConfig configures annotation behavior
type StoreConfig struct {
	Source        string `mapstructure:"source" toml:"source" yaml:"source"`                         // source reference for new tags (empty = working file)
	CascadeRemove bool   `mapstructure:"cascade_remove" toml:"cascade_remove" yaml:"cascade_remove"` // default for "tag rm --cascade"
	FillDefaults  bool   `mapstructure:"fill_defaults" toml:"fill_defaults" yaml:"fill_defaults"`    // apply attribute defaults to new tags
}

// LogConfig configures logging
type LogConfig struct {
	JSON  bool   `mapstructure:"json" toml:"json" yaml:"json"`
	Level string `mapstructure:"level" toml:"level" yaml:"level"` // debug, info, warn, error
}

// File system constants
const (
	DefaultDirPermissions  = 0755 // Standard directory permissions (rwxr-xr-x)
	DefaultFilePermissions = 0644 // Standard file permissions (rw-r--r--)
)

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Database: %s, Store: {FillDefaults: %t, CascadeRemove: %t}, Log: {Level: %s}}",
		c.Database.Path, c.Store.FillDefaults, c.Store.CascadeRemove, c.Log.Level)
}
