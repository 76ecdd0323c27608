// Package errors provides standardized error types and helpers for the docdiff codebase.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases
var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput indicates invalid input or validation failure
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnsupported indicates an unsupported operation or format
	ErrUnsupported = errors.New("unsupported")

	// ErrArchiveFormat indicates the input could not be opened as a package
	ErrArchiveFormat = errors.New("invalid package")
	// ErrMissingMember indicates a required package member is absent
	ErrMissingMember = errors.New("missing package member")
	// ErrMarkupParse indicates a required member is not well-formed XML
	ErrMarkupParse = errors.New("malformed markup")
)

// ArchiveFormatError reports a buffer that is not a readable package,
// including truncated and corrupted archives.
type ArchiveFormatError struct {
	File string // Display name of the uploaded file
	Err  error  // Underlying error, if any
}

func (e *ArchiveFormatError) Error() string {
	return fmt.Sprintf("failed to parse %q: the file is not a valid DOCX document or is corrupted", e.File)
}

func (e *ArchiveFormatError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrArchiveFormat, e.Err}
	}
	return []error{ErrArchiveFormat}
}

// MissingMemberError reports a valid package that lacks a required member.
type MissingMemberError struct {
	File   string // Display name of the uploaded file
	Member string // Archive member that was expected
}

func (e *MissingMemberError) Error() string {
	return fmt.Sprintf("invalid DOCX: %q is missing '%s'", e.File, e.Member)
}

func (e *MissingMemberError) Unwrap() error {
	return ErrMissingMember
}

// MarkupParseError reports a required member whose content is not well-formed XML.
type MarkupParseError struct {
	File   string // Display name of the uploaded file
	Member string // Archive member that failed to parse
	Err    error  // Underlying parser error
}

func (e *MarkupParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid DOCX: %q has malformed markup in '%s': %v", e.File, e.Member, e.Err)
	}
	return fmt.Sprintf("invalid DOCX: %q has malformed markup in '%s'", e.File, e.Member)
}

func (e *MarkupParseError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrMarkupParse, e.Err}
	}
	return []error{ErrMarkupParse}
}

// NotFoundError represents a resource not found error with context
type NotFoundError struct {
	Resource string // Type of resource (e.g., "session", "item")
	ID       string // Identifier of the resource
	Err      error  // Underlying error, if any
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e *NotFoundError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrNotFound
}

// ValidationError represents an input validation error with context
type ValidationError struct {
	Field   string // Field name that failed validation
	Value   string // Value that failed validation (may be redacted)
	Message string // Human-readable error message
	Err     error  // Underlying error, if any
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

// IOError represents an I/O operation error with context
type IOError struct {
	Operation string // Operation being performed (e.g., "read", "write", "open")
	Path      string // File/resource path involved
	Err       error  // Underlying error
}

func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("failed to %s %s: %v", e.Operation, e.Path, e.Err)
	}
	return fmt.Sprintf("failed to %s: %v", e.Operation, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// ParseError represents a parsing or deserialization error
type ParseError struct {
	Format  string // Format being parsed (e.g., "JSON", "session")
	Path    string // File path, if applicable
	Message string // Error details
	Err     error  // Underlying error, if any
}

func (e *ParseError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("failed to parse %s at %s: %s", e.Format, e.Path, e.Message)
	}
	return fmt.Sprintf("failed to parse %s: %s", e.Format, e.Message)
}

func (e *ParseError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

// UnsupportedError represents an unsupported feature or format
type UnsupportedError struct {
	Feature string // Feature or format that is unsupported
	Reason  string // Why it's not supported
	Err     error  // Underlying error, if any
}

func (e *UnsupportedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("unsupported %s: %s", e.Feature, e.Reason)
	}
	return fmt.Sprintf("unsupported %s", e.Feature)
}

func (e *UnsupportedError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrUnsupported
}

// Helper functions for creating common errors

// NewArchiveFormat creates an ArchiveFormatError
func NewArchiveFormat(file string, err error) *ArchiveFormatError {
	return &ArchiveFormatError{File: file, Err: err}
}

// NewMissingMember creates a MissingMemberError
func NewMissingMember(file, member string) *MissingMemberError {
	return &MissingMemberError{File: file, Member: member}
}

// NewMarkupParse creates a MarkupParseError
func NewMarkupParse(file, member string, err error) *MarkupParseError {
	return &MarkupParseError{File: file, Member: member, Err: err}
}

// NewNotFound creates a NotFoundError
func NewNotFound(resource, id string) *NotFoundError {
	return &NotFoundError{
		Resource: resource,
		ID:       id,
	}
}

// NewValidation creates a ValidationError
func NewValidation(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// NewIO creates an IOError
func NewIO(operation, path string, err error) *IOError {
	return &IOError{
		Operation: operation,
		Path:      path,
		Err:       err,
	}
}

// NewParse creates a ParseError
func NewParse(format, path, message string) *ParseError {
	return &ParseError{
		Format:  format,
		Path:    path,
		Message: message,
	}
}

// NewUnsupported creates an UnsupportedError
func NewUnsupported(feature, reason string) *UnsupportedError {
	return &UnsupportedError{
		Feature: feature,
		Reason:  reason,
	}
}

// Wrap adds context to an error. If err is nil, returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf adds formatted context to an error. If err is nil, returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// Is wraps errors.Is for convenience
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
