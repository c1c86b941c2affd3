package server

import (
	"errors"
	"net/http"
	"os"
	"path"

	"github.com/gorilla/mux"

	"file-transfer-testserver/internal/logging"
	"file-transfer-testserver/internal/storage"
)

// handleStoredFile serves GET /files/{name} from the storage backend so S3
// uploads are reachable at the same paths as disk ones.
func (s *Server) handleStoredFile(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	obj, err := s.saver.Backend.Open(r.Context(), name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidName) {
			http.NotFound(w, r)
			return
		}
		s.logger.WithContext(r.Context()).Error("stored_file_open_failed", logging.Fields{"name": name}, err)
		http.Error(w, "failed to read file", http.StatusInternalServerError)
		return
	}
	defer obj.Close()

	if obj.Info.ContentType != "" {
		w.Header().Set("Content-Type", obj.Info.ContentType)
	}
	s.metrics.RecordFileServed(obj.Info.Size)
	http.ServeContent(w, r, name, obj.Info.ModTime, obj)
}

// staticHandler serves dir without directory listings.
func staticHandler(dir string, m *Metrics) http.Handler {
	fs := http.FileServer(noListingFS{http.Dir(dir)})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.RecordStaticRequest()
		fs.ServeHTTP(w, r)
	})
}

// noListingFS hides directories that have no index.html.
type noListingFS struct {
	fs http.FileSystem
}

func (n noListingFS) Open(name string) (http.File, error) {
	f, err := n.fs.Open(name)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if st.IsDir() {
		index, err := n.fs.Open(path.Join(name, "index.html"))
		if err != nil {
			_ = f.Close()
			return nil, os.ErrNotExist
		}
		_ = index.Close()
	}
	return f, nil
}
