package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound  = errors.New("document not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrTemporary         = errors.New("temporary failure")
	ErrMissingFile       = errors.New("no file uploaded")
	ErrUnsupportedType   = errors.New("unsupported file type")
	ErrFileTooLarge      = errors.New("file too large")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrExtractionTimeout = errors.New("extraction timed out")
	ErrExtractionFailure = errors.New("extraction failed")
	ErrStoreUnavailable  = errors.New("document store unavailable")
)

var (
	errEmptyTerminalText       = errors.New("terminal status requires extracted text")
	errDetailsOnlyOnCompletion = errors.New("property details are only set on completion")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

type transitionError struct {
	id      string
	current DocumentStatus
	from    DocumentStatus
	to      DocumentStatus
}

func (e transitionError) Error() string {
	if e.id == "" {
		return fmt.Sprintf("%s -> %s", e.from, e.to)
	}
	return fmt.Sprintf("id=%s current=%s patch=%s->%s", e.id, e.current, e.from, e.to)
}
