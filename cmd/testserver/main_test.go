package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"file-transfer-testserver/internal/client"
	"file-transfer-testserver/internal/config"
	"file-transfer-testserver/internal/logging"
	"file-transfer-testserver/internal/upload"
)

func TestParseParams(t *testing.T) {
	tests := []struct {
		name    string
		in      []string
		want    map[string]string
		wantErr bool
	}{
		{name: "empty", in: nil, want: map[string]string{}},
		{name: "pairs", in: []string{"a=1", "b=x=y"}, want: map[string]string{"a": "1", "b": "x=y"}},
		{name: "empty value", in: []string{"a="}, want: map[string]string{"a": ""}},
		{name: "no equals", in: []string{"a"}, wantErr: true},
		{name: "no key", in: []string{"=1"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseParams(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("%s = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestVersionCmd(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != version {
		t.Errorf("version output = %q, want %q", got, version)
	}
}

func TestRootCmd_RejectsInvalidConfig(t *testing.T) {
	root := newRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"--collision", "rename", "--storage", "ftp"})

	err := root.Execute()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"storage.collision", "storage.backend"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestRun_ServesUploadsAndShutsDown(t *testing.T) {
	staticDir := t.TempDir()
	v := config.New()
	v.Set("static_dir", staticDir)
	cfg, err := config.Load(v, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	base := "http://" + ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg, logging.NewNop(), ln) }()

	ack, err := client.Upload(ctx, client.Options{Server: base, Name: "Photo.JPG"}, strings.NewReader("jpeg bytes"), nil)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if ack.File != "Photo.JPG" || ack.SavedAs != "photo.jpg" || ack.Image {
		t.Fatalf("ack = %+v", ack)
	}

	// Disk uploads land under <static_dir>/files.
	onDisk, err := os.ReadFile(filepath.Join(staticDir, "files", "photo.jpg"))
	if err != nil || string(onDisk) != "jpeg bytes" {
		t.Fatalf("on disk: %q, %v", onDisk, err)
	}

	resp, err := http.Get(base + "/files/photo.jpg")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "jpeg bytes" {
		t.Fatalf("GET /files/photo.jpg: %d %q", resp.StatusCode, body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(shutdownTimeout + time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestUploadCmd(t *testing.T) {
	var gotParam, gotName string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, fh, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = io.Copy(io.Discard, f)
		f.Close()
		gotName = fh.Filename
		gotParam = r.FormValue("note")
		_ = json.NewEncoder(w).Encode(upload.Ack{File: fh.Filename, SavedAs: "renamed.txt"})
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "local.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"upload", path, "--server", srv.URL, "--name", "Renamed.TXT", "--param", "note=hi", "--no-progress"})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if gotName != "Renamed.TXT" || gotParam != "hi" {
		t.Errorf("server saw name=%q note=%q", gotName, gotParam)
	}
	var ack upload.Ack
	if err := json.Unmarshal(out.Bytes(), &ack); err != nil {
		t.Fatalf("decode output %q: %v", out.String(), err)
	}
	if ack.SavedAs != "renamed.txt" {
		t.Errorf("ack = %+v", ack)
	}
}

func TestUploadCmd_MissingFile(t *testing.T) {
	root := newRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"upload", filepath.Join(t.TempDir(), "nope.bin"), "--no-progress"})
	if err := root.Execute(); err == nil {
		t.Fatal("expected error for missing file")
	}
}
