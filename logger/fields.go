package logger

import (
	"go.uber.org/zap"
)

// Standard field names for consistent structured logging across tagstore.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Identity and context
	FieldSession   = "session"
	FieldComponent = "component"
	FieldOperation = "operation"

	// Annotation entities
	FieldTagID        = "tag_id"
	FieldTagType      = "tag_type"
	FieldTagKind      = "tag_kind"
	FieldPrefix       = "prefix"
	FieldIsLink       = "is_link"
	FieldAttribute    = "attribute"
	FieldArgument     = "argument"
	FieldTarget       = "target"
	FieldPosition     = "position"
	FieldSpans        = "spans"
	FieldCascade      = "cascade"
	FieldWorkingFile  = "working_file"
	FieldSchemaSource = "schema_source"

	// Storage
	FieldPath        = "path"
	FieldMigration   = "migration"
	FieldVersion     = "version"
	FieldRemoved     = "removed"
	FieldWALMode     = "wal_mode"
	FieldForeignKeys = "foreign_keys"

	// Errors
	FieldError = "error"

	// Counts and sizes
	FieldCount      = "count"
	FieldTotalCount = "total_count"
)

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
//
// Example:
//
//	type Store struct {
//	    logger *zap.SugaredLogger
//	}
//
//	func New() *Store {
//	    return &Store{logger: logger.ComponentLogger("store")}
//	}
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}

// ChildLogger creates a child logger with additional context.
//
// Example:
//
//	sessionLogger := logger.ChildLogger(base, logger.FieldSession, st.SessionID())
func ChildLogger(parent *zap.SugaredLogger, keysAndValues ...interface{}) *zap.SugaredLogger {
	return parent.With(keysAndValues...)
}
