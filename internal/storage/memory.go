package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"sync"
	"time"
)

type memObject struct {
	data        []byte
	contentType string
	modTime     time.Time
}

// MemoryBackend keeps objects in memory. Used by tests and dry runs.
type MemoryBackend struct {
	mu       sync.RWMutex
	objects  map[string]memObject
	reserved map[string]bool
	// PingErr, when set, is returned by Ping.
	PingErr error
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		objects:  make(map[string]memObject),
		reserved: make(map[string]bool),
	}
}

func (m *MemoryBackend) Kind() string { return "memory" }

func (m *MemoryBackend) Put(ctx context.Context, name string, r io.Reader, opts PutOptions) (Info, error) {
	if !ValidName(name) {
		return Info{}, ErrInvalidName
	}
	if opts.Exclusive {
		m.mu.Lock()
		_, taken := m.objects[name]
		if taken || m.reserved[name] {
			m.mu.Unlock()
			return Info{}, ErrExists
		}
		m.reserved[name] = true
		m.mu.Unlock()
	}

	data, err := io.ReadAll(contextReader{ctx: ctx, r: r})

	m.mu.Lock()
	defer m.mu.Unlock()
	if opts.Exclusive {
		delete(m.reserved, name)
	}
	if err != nil {
		return Info{}, fmt.Errorf("write %s: %w", name, err)
	}

	ct := opts.ContentType
	if ct == "" {
		ct = mime.TypeByExtension(filepath.Ext(name))
	}
	obj := memObject{data: data, contentType: ct, modTime: time.Now().UTC()}
	m.objects[name] = obj
	return m.info(name, obj), nil
}

func (m *MemoryBackend) info(name string, obj memObject) Info {
	return Info{
		Name:        name,
		Location:    "memory://" + name,
		Size:        int64(len(obj.data)),
		ContentType: obj.contentType,
		ModTime:     obj.modTime,
	}
}

func (m *MemoryBackend) Open(ctx context.Context, name string) (*Reader, error) {
	if !ValidName(name) {
		return nil, ErrInvalidName
	}
	m.mu.RLock()
	obj, ok := m.objects[name]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return &Reader{
		ReadSeekCloser: nopSeekCloser{bytes.NewReader(obj.data)},
		Info:           m.info(name, obj),
	}, nil
}

func (m *MemoryBackend) Stat(ctx context.Context, name string) (Info, error) {
	if !ValidName(name) {
		return Info{}, ErrInvalidName
	}
	m.mu.RLock()
	obj, ok := m.objects[name]
	m.mu.RUnlock()
	if !ok {
		return Info{}, ErrNotFound
	}
	return m.info(name, obj), nil
}

func (m *MemoryBackend) Delete(ctx context.Context, name string) error {
	if !ValidName(name) {
		return ErrInvalidName
	}
	m.mu.Lock()
	delete(m.objects, name)
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) Ping(ctx context.Context) error {
	return m.PingErr
}

// Names returns the stored keys, unordered.
func (m *MemoryBackend) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.objects))
	for k := range m.objects {
		out = append(out, k)
	}
	return out
}

type nopSeekCloser struct {
	*bytes.Reader
}

func (nopSeekCloser) Close() error { return nil }
