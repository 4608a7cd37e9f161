package db

import (
	"strings"

	"github.com/teranos/tagstore/errors"
)

// ErrDatabaseClosed is returned when operations are attempted on a closed database.
var ErrDatabaseClosed = errors.New("database is closed")

// IsDatabaseClosed checks if an error indicates the database connection is closed.
// This handles both:
// - Wrapped ErrDatabaseClosed errors from this package
// - Raw sql driver errors that contain "database is closed" in their message
func IsDatabaseClosed(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrDatabaseClosed) {
		return true
	}

	// The sql package returns its own unexported error for closed handles
	return strings.Contains(err.Error(), "database is closed")
}
