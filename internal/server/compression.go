// compression.go - gzip compression for JSON, HTML and other text responses.
package server

import (
	"net/http"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// compressionResponseWriter gzips the body once the status is known. Bodyless
// responses and handlers that set their own Content-Encoding pass through.
type compressionResponseWriter struct {
	http.ResponseWriter
	gz          *gzip.Writer
	wroteHeader bool
	compress    bool
}

func (crw *compressionResponseWriter) WriteHeader(code int) {
	if crw.wroteHeader {
		return
	}
	crw.wroteHeader = true

	h := crw.Header()
	h.Add("Vary", "Accept-Encoding")
	if bodyAllowed(code) && code != http.StatusPartialContent && h.Get("Content-Encoding") == "" {
		crw.compress = true
		h.Set("Content-Encoding", "gzip")
		h.Del("Content-Length") // Length will change with compression
	}
	crw.ResponseWriter.WriteHeader(code)
}

// Write compresses data before writing to the underlying writer.
func (crw *compressionResponseWriter) Write(b []byte) (int, error) {
	if !crw.wroteHeader {
		if crw.Header().Get("Content-Type") == "" {
			crw.Header().Set("Content-Type", http.DetectContentType(b))
		}
		crw.WriteHeader(http.StatusOK)
	}
	if !crw.compress {
		return crw.ResponseWriter.Write(b)
	}
	if crw.gz == nil {
		crw.gz = gzip.NewWriter(crw.ResponseWriter)
	}
	return crw.gz.Write(b)
}

// Close finishes the gzip stream. A compressed response with no body still
// gets an empty gzip member so the advertised encoding stays decodable.
func (crw *compressionResponseWriter) Close() error {
	if !crw.compress {
		return nil
	}
	if crw.gz == nil {
		crw.gz = gzip.NewWriter(crw.ResponseWriter)
	}
	return crw.gz.Close()
}

func (crw *compressionResponseWriter) Unwrap() http.ResponseWriter {
	return crw.ResponseWriter
}

func bodyAllowed(code int) bool {
	return code >= 200 && code != http.StatusNoContent && code != http.StatusNotModified
}

// CompressionMiddleware returns middleware that compresses HTTP responses.
func CompressionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !acceptsCompression(r) || shouldSkipCompression(r) {
			next.ServeHTTP(w, r)
			return
		}

		crw := &compressionResponseWriter{ResponseWriter: w}
		defer crw.Close()

		next.ServeHTTP(crw, r)
	})
}

// acceptsCompression checks if the client accepts gzip encoding.
func acceptsCompression(r *http.Request) bool {
	for _, enc := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		name, params, _ := strings.Cut(strings.TrimSpace(enc), ";")
		if strings.EqualFold(strings.TrimSpace(name), "gzip") && strings.TrimSpace(params) != "q=0" {
			return true
		}
	}
	return false
}

// shouldSkipCompression determines if compression should be skipped for this request.
func shouldSkipCompression(r *http.Request) bool {
	// Byte-exact downloads and range requests stay uncompressed.
	if strings.HasPrefix(r.URL.Path, "/files/") || r.Header.Get("Range") != "" {
		return true
	}

	if r.Method == http.MethodHead {
		return true
	}

	// The upload body is handled by the parser; the reply is a tiny ack.
	if r.URL.Path == "/upload" && r.Method == http.MethodPost {
		return true
	}

	return false
}
