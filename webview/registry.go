package webview

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrRegistryClosed is returned by Create after Close.
var ErrRegistryClosed = errors.New("webview: registry closed")

// Registry owns every live surface, keyed by identifier.
type Registry struct {
	opts Options

	mu       sync.Mutex
	surfaces map[string]*Surface
	closed   bool

	drain sync.WaitGroup
}

// NewRegistry creates an empty registry. Engine, Loop and Router are required.
func NewRegistry(opts Options) *Registry {
	opts.defaults()
	r := &Registry{
		opts:     opts,
		surfaces: make(map[string]*Surface),
	}
	r.opts.drain = &r.drain
	return r
}

// Options returns the effective options, defaults applied.
func (r *Registry) Options() Options { return r.opts }

// Create builds the surface for id and returns its texture handle. An
// existing surface under id is disposed first, so the new one can take over
// its channel name.
func (r *Registry) Create(ctx context.Context, id string) (int64, error) {
	s, err := r.create(ctx, id)
	if err != nil {
		return 0, err
	}
	return s.TextureID(), nil
}

// CreateHeadless builds the surface for id. The caller gets no texture
// handle; the surface is still reachable through its channel.
func (r *Registry) CreateHeadless(ctx context.Context, id string) (bool, error) {
	if _, err := r.create(ctx, id); err != nil {
		return false, err
	}
	return true, nil
}

func (r *Registry) create(ctx context.Context, id string) (*Surface, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRegistryClosed
	}
	old, replaced := r.surfaces[id]
	delete(r.surfaces, id)
	r.mu.Unlock()

	if replaced {
		r.opts.Logger.Info("webview: replacing surface", "surface", id)
		old.Dispose()
	}

	// Widget creation can take a browser round trip; the lock is not held.
	s, err := newSurface(ctx, &r.opts, id)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		s.Dispose()
		return nil, ErrRegistryClosed
	}
	prev, raced := r.surfaces[id]
	r.surfaces[id] = s
	r.mu.Unlock()
	if raced {
		// prev owned the same channel name; take it back after disposal.
		prev.Dispose()
		r.opts.Router.Register(s.channel, s.methods())
	}
	return s, nil
}

// Destroy disposes and forgets the surface for id.
func (r *Registry) Destroy(id string) bool {
	r.mu.Lock()
	s, ok := r.surfaces[id]
	delete(r.surfaces, id)
	r.mu.Unlock()
	if ok {
		s.Dispose()
	}
	return ok
}

// Get returns the live surface for id.
func (r *Registry) Get(id string) (*Surface, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.surfaces[id]
	return s, ok
}

// IDs returns the live identifiers, sorted.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.surfaces))
	for id := range r.surfaces {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// Len returns the number of live surfaces.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.surfaces)
}

// Close disposes every surface. Snapshots still in flight complete against
// disposed surfaces and are discarded. Safe to call more than once.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	all := r.surfaces
	r.surfaces = make(map[string]*Surface)
	r.mu.Unlock()

	for _, s := range all {
		s.Dispose()
	}
	r.opts.Logger.Info("webview: registry closed", "surfaces", len(all))
	return nil
}

// Wait blocks until every snapshot requested by a surface of this registry
// has completed, including surfaces already disposed by Destroy, replacement
// or Close. The loop must keep running until Wait returns. ctx bounds the
// wait.
func (r *Registry) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.drain.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
