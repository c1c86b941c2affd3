// Package upload parses multipart upload requests and stores the file part
// before the route handler runs.
//
// The Parser middleware finds the configured form field, sanitizes the
// client's filename, streams the bytes to storage and attaches a Form
// describing the result to the request context.
package upload

import (
	"context"
	"time"
)

// DefaultField is the multipart field name the file is read from.
const DefaultField = "file"

// StoredUpload describes one file persisted by a request.
type StoredUpload struct {
	Field         string
	OriginalName  string // as declared by the client, untrusted
	SanitizedName string // SanitizeFilename(OriginalName)
	SavedAs       string // key actually written; differs from SanitizedName after a collision
	StoragePath   string // backend location
	Extension     string // text after the last dot of OriginalName
	ContentType   string
	Size          int64
	Blake3        string // hex digest of the stored bytes
	StoredAt      time.Time
	Duration      time.Duration
}

// Form is what the parser attaches to the request.
type Form struct {
	// Params holds the non-file form values, in order of appearance.
	Params map[string][]string
	// File is nil when the request had no usable file part.
	File *StoredUpload
}

type ctxKey struct{}

// WithForm attaches f to ctx.
func WithForm(ctx context.Context, f *Form) context.Context {
	return context.WithValue(ctx, ctxKey{}, f)
}

// FormFromContext returns the parsed form, if the parser ran.
func FormFromContext(ctx context.Context) (*Form, bool) {
	f, ok := ctx.Value(ctxKey{}).(*Form)
	return f, ok && f != nil
}

// Ack is the JSON acknowledgment returned for an upload.
type Ack struct {
	Image   bool   `json:"image"`
	File    string `json:"file"`
	SavedAs string `json:"savedAs"`
	Thumb   string `json:"thumb,omitempty"`
}

// ErrorBody is the JSON body of a failed upload.
type ErrorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}
