// Package errors provides error handling for tagstore.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - User-facing hints and details
//
// Every failure the annotation store reports is one of the sentinel errors
// below, wrapped with context. Callers branch with errors.Is:
//
//	tag, err := st.CreateExtentTag(ctx, "", event, "ran", spans)
//	if errors.Is(err, errors.ErrInvalidSpan) {
//	    // reject the selection
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint           = crdb.WithHint
	WithHintf          = crdb.WithHintf
	WithDetail         = crdb.WithDetail
	WithDetailf        = crdb.WithDetailf
	WithSecondaryError = crdb.WithSecondaryError
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// GetReportableStackTrace extracts the stack trace attached by New/Wrap.
var GetReportableStackTrace = crdb.GetReportableStackTrace

// GetStack is an alias for GetReportableStackTrace for convenience.
var GetStack = crdb.GetReportableStackTrace

// AssertionFailedf reports a broken internal invariant.
var AssertionFailedf = crdb.AssertionFailedf

// Generic sentinels shared with the storage layer.
var (
	// ErrNotFound indicates the requested tag or schema record does not exist
	ErrNotFound = New("not found")

	// ErrInvalidRequest indicates the request was malformed or invalid
	ErrInvalidRequest = New("invalid request")
)

// Annotation store error kinds. Every validation failure wraps exactly one of these.
var (
	// ErrDuplicateName: a tag, attribute or argument type name is already defined in its scope
	ErrDuplicateName = New("duplicate name")

	// ErrDuplicateID: a tag identifier is already registered (extent and link ids share one namespace)
	ErrDuplicateID = New("duplicate id")

	// ErrUnknownType: reference to an undefined tag or attribute type
	ErrUnknownType = New("unknown type")

	// ErrUnknownArgumentType: reference to an argument type not defined on the link type
	ErrUnknownArgumentType = New("unknown argument type")

	// ErrTagKindMismatch: an extent operation on a link type, or vice versa
	ErrTagKindMismatch = New("tag kind mismatch")

	// ErrInvalidSpan: malformed or self-overlapping span
	ErrInvalidSpan = New("invalid span")

	// ErrInvalidAttributeValue: value outside the attribute type's value-set
	ErrInvalidAttributeValue = New("invalid attribute value")

	// ErrDanglingReference: argument points at a missing or non-extent tag
	ErrDanglingReference = New("dangling reference")

	// ErrTagInUse: non-cascading removal of an extent tag that a link argues
	ErrTagInUse = New("tag in use")

	// ErrStoreClosed: operation attempted after Close or Destroy
	ErrStoreClosed = New("store is closed")
)

// IsNotFoundError checks if an error is or wraps ErrNotFound
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsInvalidRequestError checks if an error is or wraps ErrInvalidRequest
func IsInvalidRequestError(err error) bool {
	return err != nil && Is(err, ErrInvalidRequest)
}

// IsValidationError reports whether err is one of the store's rejected-input kinds.
// ErrStoreClosed and driver failures are not validation errors.
func IsValidationError(err error) bool {
	if err == nil {
		return false
	}
	return IsAny(err,
		ErrDuplicateName,
		ErrDuplicateID,
		ErrUnknownType,
		ErrUnknownArgumentType,
		ErrTagKindMismatch,
		ErrInvalidSpan,
		ErrInvalidAttributeValue,
		ErrDanglingReference,
		ErrTagInUse,
	)
}

// Mark wraps sentinel with a formatted message so errors.Is(result, sentinel) holds.
func Mark(sentinel error, format string, args ...interface{}) error {
	return Wrap(sentinel, Newf(format, args...).Error())
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Mark(ErrNotFound, format, args...)
}

// NewInvalidRequestError creates an invalid-request error with a formatted message
func NewInvalidRequestError(format string, args ...interface{}) error {
	return Mark(ErrInvalidRequest, format, args...)
}
