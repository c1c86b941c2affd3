package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
)

func TestCompression(t *testing.T) {
	env := newTestEnv(t, withConfig(func(c *Config) { c.Compression = true }))
	page := strings.Repeat("<p>hello</p>\n", 200)
	if err := os.WriteFile(filepath.Join(env.staticDir, "page.html"), []byte(page), 0o644); err != nil {
		t.Fatal(err)
	}
	postAck(t, env, "data.txt", []byte(page))

	tests := []struct {
		name       string
		path       string
		header     map[string]string
		wantGzip   bool
		wantPrefix string
	}{
		{"json", "/health", map[string]string{"Accept-Encoding": "gzip"}, true, "{"},
		{"static", "/page.html", map[string]string{"Accept-Encoding": "gzip, deflate"}, true, "<p>"},
		{"no accept", "/health", nil, false, "{"},
		{"refused", "/health", map[string]string{"Accept-Encoding": "gzip;q=0"}, false, "{"},
		{"stored file", "/files/data.txt", map[string]string{"Accept-Encoding": "gzip"}, false, "<p>"},
		{"range", "/page.html", map[string]string{"Accept-Encoding": "gzip", "Range": "bytes=0-2"}, false, "<p>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			rr := env.do(req)

			gotGzip := rr.Header().Get("Content-Encoding") == "gzip"
			if gotGzip != tt.wantGzip {
				t.Fatalf("Content-Encoding = %q, want gzip=%v", rr.Header().Get("Content-Encoding"), tt.wantGzip)
			}

			var body io.Reader = rr.Body
			if gotGzip {
				if rr.Header().Get("Content-Length") != "" {
					t.Errorf("Content-Length kept on gzip response: %s", rr.Header().Get("Content-Length"))
				}
				zr, err := gzip.NewReader(rr.Body)
				if err != nil {
					t.Fatalf("gzip reader: %v", err)
				}
				body = zr
			}
			b, err := io.ReadAll(body)
			if err != nil {
				t.Fatalf("read body: %v", err)
			}
			if !strings.HasPrefix(string(b), tt.wantPrefix) {
				t.Errorf("body prefix = %q, want %q", string(b[:min(len(b), 10)]), tt.wantPrefix)
			}
		})
	}
}

func TestAcceptsCompression(t *testing.T) {
	tests := map[string]bool{
		"":                 false,
		"gzip":             true,
		"br, GZIP":         true,
		"deflate":          false,
		"gzip;q=0":         false,
		"gzip;q=0.5, br":   true,
		"identity, x-gzip": false,
	}
	for header, want := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Accept-Encoding", header)
		if got := acceptsCompression(req); got != want {
			t.Errorf("acceptsCompression(%q) = %v, want %v", header, got, want)
		}
	}
}

func TestCompression_EmptyBodyIsValidGzip(t *testing.T) {
	env := newTestEnv(t, withConfig(func(c *Config) { c.Compression = true }))
	if err := os.WriteFile(filepath.Join(env.staticDir, "empty.txt"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/empty.txt", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rr := env.do(req)
	if rr.Code != http.StatusOK {
		t.Fatalf("code = %d", rr.Code)
	}
	if ce := rr.Header().Get("Content-Encoding"); ce != "gzip" {
		t.Fatalf("Content-Encoding = %q", ce)
	}

	zr, err := gzip.NewReader(rr.Body)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	data, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("read gzip: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("body = %q, want empty", data)
	}
}
