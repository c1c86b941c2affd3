// Package storage holds the backends uploaded files are written to.
//
// A Backend stores flat keys (single path components). Collision handling
// lives in Saver so every backend gets the same policy.
package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
)

var (
	// ErrExists is returned by exclusive puts when the key is taken. It is
	// returned before any byte of the reader is consumed.
	ErrExists = errors.New("storage: object already exists")
	// ErrNotFound is returned when a key does not exist.
	ErrNotFound = errors.New("storage: object not found")
	// ErrInvalidName is returned for keys that are not a single path component.
	ErrInvalidName = errors.New("storage: invalid object name")
)

// Info describes a stored object.
type Info struct {
	Name        string
	Location    string // disk path or bucket/key
	Size        int64
	ContentType string
	ModTime     time.Time
}

// PutOptions control a single write.
type PutOptions struct {
	// Exclusive rejects the write with ErrExists if the key is present.
	Exclusive   bool
	ContentType string
}

// Reader is an opened object. Callers must Close it.
type Reader struct {
	io.ReadSeekCloser
	Info Info
}

// Backend stores and retrieves uploaded bytes. Implementations must be safe
// for concurrent use.
type Backend interface {
	// Put streams r into name.
	Put(ctx context.Context, name string, r io.Reader, opts PutOptions) (Info, error)
	// Open returns the object stored under name.
	Open(ctx context.Context, name string) (*Reader, error)
	// Stat returns metadata for name.
	Stat(ctx context.Context, name string) (Info, error)
	// Delete removes name. A missing object is not an error.
	Delete(ctx context.Context, name string) error
	// Ping reports whether the backend is reachable and writable.
	Ping(ctx context.Context) error
	// Kind names the backend for logs and health output.
	Kind() string
}

// ValidName reports whether name is usable as a flat object key.
func ValidName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, "/\\\x00") {
		return false
	}
	return true
}
