// Package catalog keeps a Postgres ledger of stored uploads.
//
// The catalog is optional: the server runs without it and only exposes the
// /uploads listing when a database is configured.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultLimit and MaxLimit bound listing queries.
const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Entry is one recorded upload.
type Entry struct {
	ID           string    `json:"id"`
	OriginalName string    `json:"file"`
	SavedAs      string    `json:"savedAs"`
	StoragePath  string    `json:"storagePath"`
	Extension    string    `json:"extension"`
	ContentType  string    `json:"contentType"`
	SizeBytes    int64     `json:"size"`
	Blake3       string    `json:"blake3"`
	Image        bool      `json:"image"`
	Thumb        string    `json:"thumb,omitempty"`
	RequestID    string    `json:"requestId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Catalog records and lists uploads.
type Catalog interface {
	Record(ctx context.Context, e Entry) (Entry, error)
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Ping(ctx context.Context) error
}

// Postgres is a Catalog backed by the uploads table.
type Postgres struct {
	db *sql.DB
}

// NewPostgres wraps an open pool. Migrations must have been applied.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// ClampLimit normalises a requested page size.
func ClampLimit(n int) int {
	if n <= 0 {
		return DefaultLimit
	}
	if n > MaxLimit {
		return MaxLimit
	}
	return n
}

// Record inserts e, assigning an id and timestamp when they are empty.
func (p *Postgres) Record(ctx context.Context, e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err := p.db.ExecContext(ctx, `
		INSERT INTO uploads (id, original_name, saved_as, storage_path, extension, content_type,
		                     size_bytes, blake3_hex, image, thumb, request_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, e.ID, e.OriginalName, e.SavedAs, e.StoragePath, e.Extension, e.ContentType,
		e.SizeBytes, e.Blake3, e.Image, e.Thumb, e.RequestID, e.CreatedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("insert upload: %w", err)
	}
	return e, nil
}

// Recent returns the newest entries first.
func (p *Postgres) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, original_name, saved_as, storage_path, extension, content_type,
		       size_bytes, blake3_hex, image, thumb, request_id, created_at
		FROM uploads
		ORDER BY created_at DESC
		LIMIT $1
	`, ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query uploads: %w", err)
	}
	defer rows.Close()

	out := make([]Entry, 0)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.OriginalName, &e.SavedAs, &e.StoragePath, &e.Extension,
			&e.ContentType, &e.SizeBytes, &e.Blake3, &e.Image, &e.Thumb, &e.RequestID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan upload: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate uploads: %w", err)
	}
	return out, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	var one int
	if err := p.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("database unavailable: %w", err)
	}
	return nil
}
