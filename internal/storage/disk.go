package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"sync"
)

// DiskBackend writes objects as files in a single directory.
type DiskBackend struct {
	dir string

	mu      sync.Mutex
	pending map[string]bool // names held by in-flight exclusive puts
}

// NewDiskBackend creates dir if needed and returns a backend rooted there.
func NewDiskBackend(dir string) (*DiskBackend, error) {
	if dir == "" {
		return nil, errors.New("storage: empty upload directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &DiskBackend{dir: dir, pending: make(map[string]bool)}, nil
}

// Dir returns the directory files are written to.
func (d *DiskBackend) Dir() string { return d.dir }

func (d *DiskBackend) Kind() string { return "disk" }

func (d *DiskBackend) path(name string) (string, error) {
	if !ValidName(name) {
		return "", ErrInvalidName
	}
	return filepath.Join(d.dir, name), nil
}

// Put writes to a temp file in the same directory and commits it in one
// step, so readers never see a partial object. Plain puts rename over the
// target. Exclusive puts hard-link the temp file into place, which fails if
// the name appeared meanwhile.
func (d *DiskBackend) Put(ctx context.Context, name string, r io.Reader, opts PutOptions) (Info, error) {
	dst, err := d.path(name)
	if err != nil {
		return Info{}, err
	}

	if opts.Exclusive {
		if err := d.reserve(name, dst); err != nil {
			return Info{}, err
		}
		defer d.unreserve(name)
	}

	tmp, err := os.CreateTemp(d.dir, ".upload-*")
	if err != nil {
		return Info{}, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	n, err := io.Copy(tmp, contextReader{ctx: ctx, r: r})
	if err != nil {
		return Info{}, fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		return Info{}, fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return Info{}, fmt.Errorf("close temp: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return Info{}, fmt.Errorf("chmod temp: %w", err)
	}

	if opts.Exclusive {
		// Only another process can win this race; the reader is spent, so
		// this is not reported as ErrExists.
		if err := os.Link(tmpPath, dst); err != nil {
			return Info{}, fmt.Errorf("commit %s: %w", name, err)
		}
	} else if err := os.Rename(tmpPath, dst); err != nil {
		return Info{}, fmt.Errorf("rename into place: %w", err)
	}

	ct := opts.ContentType
	if ct == "" {
		ct = mime.TypeByExtension(filepath.Ext(name))
	}
	st, err := os.Stat(dst)
	if err != nil {
		return Info{}, fmt.Errorf("stat %s: %w", name, err)
	}
	return Info{
		Name:        name,
		Location:    dst,
		Size:        n,
		ContentType: ct,
		ModTime:     st.ModTime(),
	}, nil
}

// reserve claims name for an exclusive put before any byte is read, so a
// taken name is rejected with the reader untouched.
func (d *DiskBackend) reserve(name, dst string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending[name] {
		return ErrExists
	}
	if _, err := os.Lstat(dst); err == nil {
		return ErrExists
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", name, err)
	}
	d.pending[name] = true
	return nil
}

func (d *DiskBackend) unreserve(name string) {
	d.mu.Lock()
	delete(d.pending, name)
	d.mu.Unlock()
}

// Delete removes name. Deleting a missing object is not an error.
func (d *DiskBackend) Delete(ctx context.Context, name string) error {
	p, err := d.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}

func (d *DiskBackend) Open(ctx context.Context, name string) (*Reader, error) {
	p, err := d.path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat %s: %w", name, err)
	}
	if st.IsDir() {
		_ = f.Close()
		return nil, ErrNotFound
	}
	return &Reader{
		ReadSeekCloser: f,
		Info: Info{
			Name:        name,
			Location:    p,
			Size:        st.Size(),
			ContentType: mime.TypeByExtension(filepath.Ext(name)),
			ModTime:     st.ModTime(),
		},
	}, nil
}

func (d *DiskBackend) Stat(ctx context.Context, name string) (Info, error) {
	p, err := d.path(name)
	if err != nil {
		return Info{}, err
	}
	st, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Info{}, ErrNotFound
		}
		return Info{}, fmt.Errorf("stat %s: %w", name, err)
	}
	if st.IsDir() {
		return Info{}, ErrNotFound
	}
	return Info{
		Name:        name,
		Location:    p,
		Size:        st.Size(),
		ContentType: mime.TypeByExtension(filepath.Ext(name)),
		ModTime:     st.ModTime(),
	}, nil
}

// Ping checks the directory is still there and writable.
func (d *DiskBackend) Ping(ctx context.Context) error {
	f, err := os.CreateTemp(d.dir, ".ping-*")
	if err != nil {
		return fmt.Errorf("upload dir not writable: %w", err)
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
