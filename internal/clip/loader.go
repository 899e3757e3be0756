package clip

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"sync"
	"sync/atomic"
)

var (
	// ErrNotFound is returned when a reference does not resolve to a resource.
	ErrNotFound = errors.New("clip not found")

	// ErrInvalidRef is returned for references that cannot address a resource.
	ErrInvalidRef = errors.New("invalid clip reference")
)

// maxClipSize bounds a single fetched resource.
const maxClipSize = 8 << 20

// Loader fetches the raw bytes of a clip resource.
type Loader interface {
	Load(ctx context.Context, ref string) ([]byte, error)
}

// DirLoader reads clips from a file system rooted at the asset directory.
type DirLoader struct {
	fsys fs.FS
}

// NewDirLoader creates a loader over a local asset directory.
func NewDirLoader(dir string) *DirLoader {
	return &DirLoader{fsys: os.DirFS(dir)}
}

// NewFSLoader creates a loader over any file system.
func NewFSLoader(fsys fs.FS) *DirLoader {
	return &DirLoader{fsys: fsys}
}

// Load reads ref from the file system. The reference is used literally.
func (l *DirLoader) Load(ctx context.Context, ref string) ([]byte, error) {
	if !fs.ValidPath(ref) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type result struct {
		data []byte
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		data, err := fs.ReadFile(l.fsys, ref)
		ch <- result{data, err}
	}()

	select {
	case r := <-ch:
		if errors.Is(r.err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return r.data, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// HTTPLoader fetches clips relative to a base URL.
type HTTPLoader struct {
	base   string
	client *http.Client
}

// NewHTTPLoader creates a loader for the given base URL. A nil client uses
// http.DefaultClient.
func NewHTTPLoader(base string, client *http.Client) (*HTTPLoader, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base url %q: scheme must be http or https", base)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPLoader{base: base, client: client}, nil
}

// Load issues a GET for ref under the base URL. The reference is a literal
// path and is escaped on the wire.
func (l *HTTPLoader) Load(ctx context.Context, ref string) ([]byte, error) {
	target, err := url.JoinPath(l.base, ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRef, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("fetch %s: unexpected status %s", ref, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxClipSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxClipSize {
		return nil, fmt.Errorf("fetch %s: resource exceeds %d bytes", ref, maxClipSize)
	}
	return data, nil
}

// MapLoader serves clips from memory. It is safe for concurrent use and
// counts every Load call per reference.
type MapLoader struct {
	// Delay, when set, is waited before each load returns.
	Delay func(ref string) <-chan struct{}

	mu    sync.Mutex
	clips map[string][]byte
	calls map[string]int
	total atomic.Int64
}

// NewMapLoader creates a MapLoader with the given contents.
func NewMapLoader(clips map[string][]byte) *MapLoader {
	m := &MapLoader{clips: make(map[string][]byte), calls: make(map[string]int)}
	for k, v := range clips {
		m.clips[k] = v
	}
	return m
}

// Set adds or replaces a clip.
func (m *MapLoader) Set(ref string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clips[ref] = data
}

// Load returns the clip stored for ref.
func (m *MapLoader) Load(ctx context.Context, ref string) ([]byte, error) {
	m.mu.Lock()
	m.calls[ref]++
	data, ok := m.clips[ref]
	delay := m.Delay
	m.mu.Unlock()
	m.total.Add(1)

	if delay != nil {
		if ch := delay(ref); ch != nil {
			select {
			case <-ch:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return data, nil
}

// Calls returns how many times ref was loaded.
func (m *MapLoader) Calls(ref string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[ref]
}

// Total returns the number of Load calls across all references.
func (m *MapLoader) Total() int {
	return int(m.total.Load())
}
