// Package registry implements the schema resolver (C4): a process-wide,
// lock-protected mapping from canonical URL to converted Schema, plus a
// type-name index, with an optional bounded LRU front for a slow backing
// store.
package registry

import (
	"sync"

	"github.com/gofhir/fschema/cache"
	"github.com/gofhir/fschema/pkg/logger"
	"github.com/gofhir/fschema/schema"
)

// Backend resolves a schema URL against an out-of-process store (disk,
// network, package repository). It is the "resolver integration contract"
// of §6: the core never talks to it directly except through Registry.
type Backend interface {
	Resolve(url string) (*schema.Schema, bool)
}

// Registry is the shared, immutable-after-insert schema store described in
// §4.4 and §5. Construct it with New; the zero value has nil maps and is not
// usable.
type Registry struct {
	mu      sync.RWMutex
	byURL   map[string]*schema.Schema
	byType  map[string]*schema.Schema
	backend Backend
	front   *cache.Cache[string, *schema.Schema]
	log     *logger.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithBackend sets a fallback resolver consulted (and cached) on local miss.
func WithBackend(b Backend) Option {
	return func(r *Registry) { r.backend = b }
}

// WithFrontCacheSize bounds the LRU front placed in front of Backend lookups.
// Has no effect without WithBackend.
func WithFrontCacheSize(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.front = cache.New[string, *schema.Schema](n)
		}
	}
}

// WithLogger sets the logger used for cache/backend diagnostics.
func WithLogger(l *logger.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// New creates an empty Registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		byURL:  make(map[string]*schema.Schema),
		byType: make(map[string]*schema.Schema),
		log:    logger.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve looks up a schema by its canonical URL (§4.4).
func (r *Registry) Resolve(url string) (*schema.Schema, bool) {
	r.mu.RLock()
	s, ok := r.byURL[url]
	r.mu.RUnlock()
	if ok {
		return s, true
	}
	if r.front != nil {
		if s, ok := r.front.Get(url); ok {
			return s, true
		}
	}
	if r.backend == nil {
		return nil, false
	}
	s, ok = r.backend.Resolve(url)
	if !ok {
		return nil, false
	}
	if r.front != nil {
		r.front.Set(url, s)
	} else {
		r.log.Debug("resolved %s via backend without a front cache configured", url)
	}
	return s, true
}

// ResolveType looks up the schema whose declared type equals name and whose
// class is resource or type (§4.4).
func (r *Registry) ResolveType(name string) (*schema.Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byType[name]
	return s, ok
}

// Put inserts a schema under its canonical URL and type index. Put is
// idempotent for identical documents (re-inserting the same URL simply
// replaces the immutable value, per §5's "the resolver owns cache entries"
// rule — callers never hold a copy across a Put).
func (r *Registry) Put(s *schema.Schema) {
	if s == nil || s.URL == "" {
		return
	}
	r.mu.Lock()
	r.byURL[s.URL] = s
	if s.Type != "" && (s.Class == schema.ClassResource || s.Class == schema.ClassType) {
		if _, exists := r.byType[s.Type]; !exists {
			r.byType[s.Type] = s
		}
	}
	r.mu.Unlock()
	r.log.Debug("registered schema %s (type=%s class=%s)", s.URL, s.Type, s.Class)
}

// Len returns the number of distinct URLs registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byURL)
}
