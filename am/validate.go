package am

import (
	"github.com/teranos/tagstore/db"
	"github.com/teranos/tagstore/errors"
	"github.com/teranos/tagstore/logger"
)

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database.path cannot be empty")
	}
	if c.Database.ResetOnOpen && c.Database.Path == db.MemoryPath {
		return errors.WithHint(
			errors.New("database.reset_on_open has no effect on an in-memory database"),
			"unset reset_on_open or point database.path at a file")
	}

	if c.Log.Level != "" {
		if _, ok := logger.ParseLevel(c.Log.Level); !ok {
			return errors.Newf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level)
		}
	}

	return nil
}
