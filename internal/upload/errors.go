package upload

import (
	"errors"
	"fmt"
)

// ValidationError reports a request that is missing something required.
// It is raised before anything is written to storage.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

// ParseError wraps a malformed multipart body.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return "bad multipart body: " + e.Err.Error()
}

func (e *ParseError) Unwrap() error { return e.Err }

// StorageError wraps a failed backend write.
type StorageError struct {
	Name string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Name, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// MissingFile returns the error used when the form field is absent.
func MissingFile(field string) error {
	return &ValidationError{Field: field, Message: "multipart field is required"}
}

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
