package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	"file-transfer-testserver/internal/catalog"
	"file-transfer-testserver/internal/logging"
	"file-transfer-testserver/internal/storage"
	"file-transfer-testserver/internal/upload"
)

// limitBody caps request bodies at cfg.MaxUploadBytes when it is set.
func (s *Server) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.MaxUploadBytes > 0 && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// handleUpload acknowledges a file the parser already stored. It logs the
// form params, rejects requests without the file field, optionally builds a
// thumbnail and records the upload in the catalog.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	log := s.logger.WithContext(r.Context())

	form, ok := upload.FormFromContext(r.Context())
	params := map[string][]string{}
	if ok {
		params = form.Params
	}
	log.Info("upload_received", logging.Fields{"params": params})

	if !ok || form.File == nil {
		err := upload.MissingFile(s.cfg.Field)
		log.Warn("upload_rejected", logging.Fields{"field": s.cfg.Field, "error": err.Error()})
		s.metrics.RecordUploadError()
		s.writeUploadError(w, r, err)
		return
	}

	f := form.File
	log.Info("upload_stored", logging.Fields{
		"file":     f.OriginalName,
		"saved_as": f.SavedAs,
		"location": f.StoragePath,
		"size":     f.Size,
		"blake3":   f.Blake3,
		"ms":       f.Duration.Milliseconds(),
	})
	if f.SavedAs != f.SanitizedName {
		s.metrics.RecordCollision()
	}

	ack := upload.Ack{File: f.OriginalName, SavedAs: f.SavedAs}

	if s.thumbs != nil && upload.IsImage(f.OriginalName) {
		thumb, err := s.makeThumbnail(r.Context(), f)
		s.metrics.RecordThumbnail(err == nil)
		if err != nil {
			log.Warn("thumbnail_failed", logging.Fields{"saved_as": f.SavedAs, "error": err.Error()})
		} else {
			ack.Image = true
			ack.Thumb = thumb
		}
	}

	s.recordUpload(r.Context(), log, f, ack)
	writeJSON(w, http.StatusOK, ack)
}

// makeThumbnail reads the stored image back and writes "<stem>.thumb.<ext>"
// next to it, replacing any previous thumbnail of the same name.
func (s *Server) makeThumbnail(ctx context.Context, f *upload.StoredUpload) (string, error) {
	src, err := s.saver.Backend.Open(ctx, f.SavedAs)
	if err != nil {
		return "", fmt.Errorf("open stored image: %w", err)
	}
	defer src.Close()

	data, err := s.thumbs.Thumbnail(ctx, src, upload.Extension(f.SavedAs))
	if err != nil {
		return "", err
	}

	name := storage.InsertBeforeExt(f.SavedAs, "thumb")
	if _, err := s.saver.Backend.Put(ctx, name, bytes.NewReader(data), storage.PutOptions{ContentType: f.ContentType}); err != nil {
		return "", fmt.Errorf("store thumbnail: %w", err)
	}
	return name, nil
}

// recordUpload writes the catalog row. Failures are logged, never returned.
func (s *Server) recordUpload(ctx context.Context, log *logging.Logger, f *upload.StoredUpload, ack upload.Ack) {
	if s.catalog == nil {
		return
	}
	_, err := s.catalog.Record(ctx, catalog.Entry{
		OriginalName: f.OriginalName,
		SavedAs:      f.SavedAs,
		StoragePath:  f.StoragePath,
		Extension:    f.Extension,
		ContentType:  f.ContentType,
		SizeBytes:    f.Size,
		Blake3:       f.Blake3,
		Image:        ack.Image,
		Thumb:        ack.Thumb,
		RequestID:    logging.RequestIDFromContext(ctx),
		CreatedAt:    f.StoredAt,
	})
	if err != nil {
		s.metrics.RecordCatalogError()
		log.Error("catalog_record_failed", logging.Fields{"saved_as": f.SavedAs}, err)
	}
}

// writeUploadError renders parser and validation failures as JSON.
func (s *Server) writeUploadError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve  *upload.ValidationError
		mbe *http.MaxBytesError
	)
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, upload.ErrorBody{Error: ve.Message, Field: ve.Field})
	case errors.As(err, &mbe):
		writeJSON(w, http.StatusRequestEntityTooLarge, upload.ErrorBody{
			Error: fmt.Sprintf("upload exceeds %d bytes", mbe.Limit),
		})
	case upload.StatusFor(err) == http.StatusBadRequest:
		writeJSON(w, http.StatusBadRequest, upload.ErrorBody{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, upload.ErrorBody{Error: "storage failed"})
	}
}
