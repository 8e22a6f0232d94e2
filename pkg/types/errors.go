package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrNotFound is returned when a requested resource is not found.
	ErrNotFound = errors.New("not found")

	// ErrUnsupportedLanguage is returned when no registered language claims
	// a file's extension.
	ErrUnsupportedLanguage = errors.New("unsupported language")

	// ErrIndexNotBuilt is returned when a read view is requested before the
	// index has been built.
	ErrIndexNotBuilt = errors.New("index not built")
)

// ValidationError reports malformed input to a registry mutation. It is
// fatal to that call only.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Msg
}

// NotFoundError reports an unknown language or a missing query document.
type NotFoundError struct {
	Kind string // "language" or "query source"
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// QueryError reports a compile-time problem in one query document. It is
// isolated to the offending source: sibling sources still compile and run.
// Line and Col are 0-indexed positions within the document at Origin.
type QueryError struct {
	Origin string
	Line   int
	Col    int
	Msg    string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.Origin, e.Line, e.Col, e.Msg)
}

// GrammarUnavailableError reports that no parser exists for a language.
// Files in that language are skipped; a repository scan continues.
type GrammarUnavailableError struct {
	Language string
}

func (e *GrammarUnavailableError) Error() string {
	return fmt.Sprintf("no grammar available for language %q", e.Language)
}

// ParseError reports that a grammar rejected malformed source. The file is
// skipped and recorded; a repository scan continues.
type ParseError struct {
	Path   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %s", e.Path, e.Reason)
}
