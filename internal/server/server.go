package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"file-transfer-testserver/internal/catalog"
	"file-transfer-testserver/internal/logging"
	"file-transfer-testserver/internal/storage"
	"file-transfer-testserver/internal/thumbnail"
	"file-transfer-testserver/internal/upload"
)

type Config struct {
	Addr      string // e.g. ":3000"
	StaticDir string // served at /
	Field     string // multipart field holding the file
	Version   string

	// MaxUploadBytes caps request bodies; 0 means no limit.
	MaxUploadBytes int64

	// Compression gzips JSON and static responses for clients that accept it.
	Compression bool
}

// Deps are the collaborators the handlers use. Saver is required.
type Deps struct {
	Saver      *storage.Saver
	Thumbnails thumbnail.Processor // nil disables thumbnails
	Catalog    catalog.Catalog     // nil disables the /uploads listing
	Logger     *logging.Logger
	Metrics    *Metrics
}

type Server struct {
	cfg        Config
	saver      *storage.Saver
	thumbs     thumbnail.Processor
	catalog    catalog.Catalog
	logger     *logging.Logger
	metrics    *Metrics
	started    time.Time
	handler    http.Handler
	httpServer *http.Server

	mu       sync.Mutex
	listener net.Listener
}

func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Saver == nil || deps.Saver.Backend == nil {
		return nil, errors.New("server: storage is required")
	}
	if cfg.Field == "" {
		cfg.Field = upload.DefaultField
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics()
	}

	s := &Server{
		cfg:     cfg,
		saver:   deps.Saver,
		thumbs:  deps.Thumbnails,
		catalog: deps.Catalog,
		logger:  deps.Logger,
		metrics: deps.Metrics,
		started: time.Now(),
	}

	parser := &upload.Parser{
		Saver:   s.saver,
		Field:   cfg.Field,
		Metrics: s.metrics,
		Logger:  s.logger,
		OnError: s.writeUploadError,
	}

	r := mux.NewRouter()
	r.Use(s.limitBody, parser.Middleware)

	r.HandleFunc("/upload", s.handleUpload).Methods(http.MethodPost)
	if s.catalog != nil {
		r.HandleFunc("/uploads", s.handleListUploads).Methods(http.MethodGet)
	}
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	}).Methods(http.MethodGet)
	r.HandleFunc("/live", s.HandleLive).Methods(http.MethodGet)
	r.HandleFunc("/ready", s.HandleReady).Methods(http.MethodGet)
	r.Handle("/metrics", s.PrometheusHandler()).Methods(http.MethodGet)
	r.HandleFunc("/files/{name}", s.handleStoredFile).Methods(http.MethodGet, http.MethodHead)
	if cfg.StaticDir != "" {
		r.PathPrefix("/").Handler(staticHandler(cfg.StaticDir, s.metrics)).Methods(http.MethodGet, http.MethodHead)
	}

	// Wrap middleware: requestID -> logging -> recover -> security -> compression -> router
	var handler http.Handler = r
	if cfg.Compression {
		handler = CompressionMiddleware(handler)
	}
	handler = securityHeadersMiddleware(handler)
	handler = s.recoverMiddleware(handler)
	handler = s.loggingMiddleware(handler)
	handler = requestIDMiddleware(handler)
	s.handler = handler

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

// Handler exposes the full middleware chain, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) Metrics() *Metrics {
	return s.metrics
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("server_listening", logging.Fields{
		"addr":    ln.Addr().String(),
		"storage": s.saver.Backend.Kind(),
		"policy":  string(s.saver.Policy),
		"thumbs":  s.thumbs != nil,
		"catalog": s.catalog != nil,
	})
	return s.httpServer.Serve(ln)
}

// Addr is the bound address once serving, else the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
