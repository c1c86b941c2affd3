package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func backends(t *testing.T) map[string]Backend {
	t.Helper()
	disk, err := NewDiskBackend(filepath.Join(t.TempDir(), "files"))
	if err != nil {
		t.Fatalf("NewDiskBackend: %v", err)
	}
	return map[string]Backend{
		"disk":   disk,
		"memory": NewMemoryBackend(),
	}
}

func readAll(t *testing.T, b Backend, name string) []byte {
	t.Helper()
	r, err := b.Open(context.Background(), name)
	if err != nil {
		t.Fatalf("Open(%q): %v", name, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read %q: %v", name, err)
	}
	return data
}

func TestBackend_PutOpenRoundTrip(t *testing.T) {
	for kind, b := range backends(t) {
		t.Run(kind, func(t *testing.T) {
			ctx := context.Background()
			info, err := b.Put(ctx, "photo.jpg", strings.NewReader("jpeg bytes"), PutOptions{})
			if err != nil {
				t.Fatalf("Put: %v", err)
			}
			if info.Name != "photo.jpg" || info.Size != int64(len("jpeg bytes")) {
				t.Fatalf("unexpected info %+v", info)
			}
			if info.ContentType != "image/jpeg" {
				t.Errorf("content type = %q, want image/jpeg", info.ContentType)
			}

			if got := readAll(t, b, "photo.jpg"); string(got) != "jpeg bytes" {
				t.Fatalf("got %q", got)
			}

			st, err := b.Stat(ctx, "photo.jpg")
			if err != nil {
				t.Fatalf("Stat: %v", err)
			}
			if st.Size != info.Size {
				t.Errorf("stat size %d, want %d", st.Size, info.Size)
			}
		})
	}
}

func TestBackend_NotFoundAndInvalidName(t *testing.T) {
	for kind, b := range backends(t) {
		t.Run(kind, func(t *testing.T) {
			ctx := context.Background()
			if _, err := b.Open(ctx, "missing.txt"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Open missing: got %v, want ErrNotFound", err)
			}
			if _, err := b.Stat(ctx, "missing.txt"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Stat missing: got %v, want ErrNotFound", err)
			}
			for _, name := range []string{"", ".", "..", "../etc/passwd", "a/b", `a\b`} {
				if _, err := b.Put(ctx, name, strings.NewReader("x"), PutOptions{}); !errors.Is(err, ErrInvalidName) {
					t.Errorf("Put(%q): got %v, want ErrInvalidName", name, err)
				}
			}
		})
	}
}

func TestBackend_ExclusiveRejectsWithoutConsuming(t *testing.T) {
	for kind, b := range backends(t) {
		t.Run(kind, func(t *testing.T) {
			ctx := context.Background()
			if _, err := b.Put(ctx, "a.txt", strings.NewReader("first"), PutOptions{Exclusive: true}); err != nil {
				t.Fatalf("first Put: %v", err)
			}

			r := strings.NewReader("second")
			if _, err := b.Put(ctx, "a.txt", r, PutOptions{Exclusive: true}); !errors.Is(err, ErrExists) {
				t.Fatalf("second Put: got %v, want ErrExists", err)
			}
			if r.Len() != len("second") {
				t.Fatalf("reader consumed on rejected put: %d bytes left", r.Len())
			}
			if got := readAll(t, b, "a.txt"); string(got) != "first" {
				t.Fatalf("existing object changed: %q", got)
			}
		})
	}
}

func TestBackend_ExclusivePutHiddenUntilCommitted(t *testing.T) {
	for kind, b := range backends(t) {
		t.Run(kind, func(t *testing.T) {
			ctx := context.Background()
			pr, pw := io.Pipe()
			done := make(chan error, 1)
			go func() {
				_, err := b.Put(ctx, "slow.txt", pr, PutOptions{Exclusive: true})
				done <- err
			}()

			// Write blocks until Put has read the bytes, so Put is mid-copy here.
			if _, err := pw.Write([]byte("partial")); err != nil {
				t.Fatalf("write: %v", err)
			}
			if _, err := b.Open(ctx, "slow.txt"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Open during write: got %v, want ErrNotFound", err)
			}
			if _, err := b.Stat(ctx, "slow.txt"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Stat during write: got %v, want ErrNotFound", err)
			}
			if _, err := b.Put(ctx, "slow.txt", strings.NewReader("other"), PutOptions{Exclusive: true}); !errors.Is(err, ErrExists) {
				t.Errorf("competing exclusive Put: got %v, want ErrExists", err)
			}

			_ = pw.Close()
			if err := <-done; err != nil {
				t.Fatalf("Put: %v", err)
			}
			if got := readAll(t, b, "slow.txt"); string(got) != "partial" {
				t.Fatalf("got %q", got)
			}
		})
	}
}

func TestBackend_Delete(t *testing.T) {
	for kind, b := range backends(t) {
		t.Run(kind, func(t *testing.T) {
			ctx := context.Background()
			if _, err := b.Put(ctx, "gone.txt", strings.NewReader("x"), PutOptions{}); err != nil {
				t.Fatalf("Put: %v", err)
			}
			if err := b.Delete(ctx, "gone.txt"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, err := b.Open(ctx, "gone.txt"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Open after Delete: got %v, want ErrNotFound", err)
			}
			if err := b.Delete(ctx, "gone.txt"); err != nil {
				t.Errorf("second Delete: %v", err)
			}
			if err := b.Delete(ctx, "../x"); !errors.Is(err, ErrInvalidName) {
				t.Errorf("Delete invalid name: got %v, want ErrInvalidName", err)
			}
			if _, err := b.Put(ctx, "gone.txt", strings.NewReader("y"), PutOptions{Exclusive: true}); err != nil {
				t.Errorf("name not reusable after Delete: %v", err)
			}
		})
	}
}

func TestBackend_OverwriteLastWriteWins(t *testing.T) {
	for kind, b := range backends(t) {
		t.Run(kind, func(t *testing.T) {
			ctx := context.Background()
			for _, body := range []string{"one", "two"} {
				if _, err := b.Put(ctx, "same.txt", strings.NewReader(body), PutOptions{}); err != nil {
					t.Fatalf("Put %q: %v", body, err)
				}
			}
			if got := readAll(t, b, "same.txt"); string(got) != "two" {
				t.Fatalf("got %q, want two", got)
			}
		})
	}
}

func TestDiskBackend_NoTempFilesLeft(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "files")
	b, err := NewDiskBackend(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Put(context.Background(), "a.bin", bytes.NewReader(make([]byte, 4096)), PutOptions{}); err != nil {
		t.Fatal(err)
	}
	if err := b.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "a.bin" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("unexpected directory contents %v", names)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("client went away") }

func TestDiskBackend_FailedExclusivePutReleasesName(t *testing.T) {
	b, err := NewDiskBackend(filepath.Join(t.TempDir(), "files"))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if _, err := b.Put(ctx, "a.txt", failingReader{}, PutOptions{Exclusive: true}); err == nil {
		t.Fatal("expected error from failing reader")
	}
	if _, err := b.Stat(ctx, "a.txt"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("failed put left an object behind: %v", err)
	}
	if _, err := b.Put(ctx, "a.txt", strings.NewReader("ok"), PutOptions{Exclusive: true}); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
}

func TestMemoryBackend_PingErr(t *testing.T) {
	m := NewMemoryBackend()
	if err := m.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected ping error: %v", err)
	}
	m.PingErr = errors.New("down")
	if err := m.Ping(context.Background()); err == nil {
		t.Fatal("expected ping error")
	}
}

func TestSaver_SuffixKeepsBoth(t *testing.T) {
	for kind, b := range backends(t) {
		t.Run(kind, func(t *testing.T) {
			s := &Saver{
				Backend: b,
				Policy:  CollisionSuffix,
				Now:     func() time.Time { return time.UnixMilli(1700000000000) },
			}
			ctx := context.Background()

			first, err := s.Save(ctx, "photo.jpg", strings.NewReader("first"), "")
			if err != nil {
				t.Fatal(err)
			}
			second, err := s.Save(ctx, "photo.jpg", strings.NewReader("second"), "")
			if err != nil {
				t.Fatal(err)
			}
			third, err := s.Save(ctx, "photo.jpg", strings.NewReader("third"), "")
			if err != nil {
				t.Fatal(err)
			}

			if first.Name != "photo.jpg" {
				t.Errorf("first saved as %q", first.Name)
			}
			if second.Name != "photo.1700000000000.jpg" {
				t.Errorf("second saved as %q", second.Name)
			}
			if third.Name != "photo.1700000000000-1.jpg" {
				t.Errorf("third saved as %q", third.Name)
			}
			if got := readAll(t, b, first.Name); string(got) != "first" {
				t.Errorf("first content %q", got)
			}
			if got := readAll(t, b, second.Name); string(got) != "second" {
				t.Errorf("second content %q", got)
			}
		})
	}
}

func TestSaver_Overwrite(t *testing.T) {
	b := NewMemoryBackend()
	s := &Saver{Backend: b, Policy: CollisionOverwrite}
	ctx := context.Background()
	for _, body := range []string{"one", "two"} {
		info, err := s.Save(ctx, "x.txt", strings.NewReader(body), "text/plain")
		if err != nil {
			t.Fatal(err)
		}
		if info.Name != "x.txt" {
			t.Fatalf("saved as %q", info.Name)
		}
	}
	if got := readAll(t, b, "x.txt"); string(got) != "two" {
		t.Fatalf("got %q", got)
	}
}

func TestSaver_ConcurrentSuffixDistinctKeys(t *testing.T) {
	b, err := NewDiskBackend(filepath.Join(t.TempDir(), "files"))
	if err != nil {
		t.Fatal(err)
	}
	s := &Saver{Backend: b, Policy: CollisionSuffix}

	const n = 8
	var wg sync.WaitGroup
	names := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			info, err := s.Save(context.Background(), "race.txt", strings.NewReader("payload"), "")
			names[i], errs[i] = info.Name, err
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("save %d: %v", i, errs[i])
		}
		if seen[names[i]] {
			t.Fatalf("duplicate key %q", names[i])
		}
		seen[names[i]] = true
	}
}

func TestParseCollisionPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    CollisionPolicy
		wantErr bool
	}{
		{"", CollisionSuffix, false},
		{"suffix", CollisionSuffix, false},
		{"Overwrite", CollisionOverwrite, false},
		{"rename", "", true},
	}
	for _, tt := range tests {
		got, err := ParseCollisionPolicy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseCollisionPolicy(%q) err = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseCollisionPolicy(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestInsertBeforeExt(t *testing.T) {
	tests := []struct{ name, insert, want string }{
		{"photo.jpg", "thumb", "photo.thumb.jpg"},
		{"a-b.tar", "1", "a-b.1.tar"},
		{"notes", "1", "notes.1"},
		{".bashrc", "1", ".bashrc.1"},
	}
	for _, tt := range tests {
		if got := InsertBeforeExt(tt.name, tt.insert); got != tt.want {
			t.Errorf("InsertBeforeExt(%q, %q) = %q, want %q", tt.name, tt.insert, got, tt.want)
		}
	}
}
