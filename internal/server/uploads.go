package server

import (
	"net/http"
	"strconv"

	"file-transfer-testserver/internal/catalog"
	"file-transfer-testserver/internal/logging"
	"file-transfer-testserver/internal/upload"
)

type uploadsResp struct {
	Uploads []catalog.Entry `json:"uploads"`
	Count   int             `json:"count"`
}

// handleListUploads serves GET /uploads?limit=N, newest first.
func (s *Server) handleListUploads(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, upload.ErrorBody{Error: "limit must be a positive integer", Field: "limit"})
			return
		}
		limit = n
	}

	entries, err := s.catalog.Recent(r.Context(), limit)
	if err != nil {
		s.logger.WithContext(r.Context()).Error("catalog_list_failed", logging.Fields{"limit": limit}, err)
		writeJSON(w, http.StatusInternalServerError, upload.ErrorBody{Error: "failed to list uploads"})
		return
	}

	writeJSON(w, http.StatusOK, uploadsResp{Uploads: entries, Count: len(entries)})
}
