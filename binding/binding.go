// Package binding exposes typed handles over cache keys: a Fetcher is
// the analog of a fetch-on-demand view binding, a Poster of an
// imperative post trigger. Both are pure pass-throughs to the cache and
// hold no state beyond their key.
package binding

import (
	"context"
	"net/url"
	"time"

	"github.com/edutrack-uz/portal-client/cache"
	"github.com/edutrack-uz/portal-client/transport"
)

// State is the typed view of a cache entry.
type State[T any] struct {
	Data        *T
	Loading     bool
	Err         *transport.Error
	LastUpdated time.Time
}

func toState[T any](e cache.Entry) State[T] {
	s := State[T]{Loading: e.Loading, Err: e.Err, LastUpdated: e.LastUpdated}
	if data, ok := e.Data.(*T); ok {
		s.Data = data
	}
	return s
}

// Fetcher binds a cache key to a GET endpoint. Fetch doubles as the
// refetch: every call independently runs the full fetch-and-store
// cycle, and the cache's per-key sequencing discards superseded
// responses.
type Fetcher[T any] struct {
	store    *cache.Store
	key      string
	endpoint string
	params   url.Values
}

// NewFetcher creates a fetch binding.
func NewFetcher[T any](store *cache.Store, key, endpoint string, params url.Values) *Fetcher[T] {
	return &Fetcher[T]{store: store, key: key, endpoint: endpoint, params: params}
}

// Fetch runs the fetch and returns the decoded value.
func (f *Fetcher[T]) Fetch(ctx context.Context) (*T, error) {
	v, err := f.store.FetchAndStore(ctx, f.key, f.endpoint, f.params, func() any { return new(T) })
	if err != nil {
		return nil, err
	}
	return v.(*T), nil
}

// State reads the current typed entry.
func (f *Fetcher[T]) State() State[T] {
	return toState[T](f.store.Read(f.key))
}

// Subscribe observes writes to the bound key.
func (f *Fetcher[T]) Subscribe(fn func(State[T])) func() {
	return f.store.Subscribe(f.key, func(e cache.Entry) { fn(toState[T](e)) })
}

// Poster binds a cache key to a POST endpoint. Nothing happens until
// Post is called.
type Poster[T any] struct {
	store    *cache.Store
	key      string
	endpoint string
}

// NewPoster creates a post binding.
func NewPoster[T any](store *cache.Store, key, endpoint string) *Poster[T] {
	return &Poster[T]{store: store, key: key, endpoint: endpoint}
}

// Post issues the request and returns the decoded value.
func (p *Poster[T]) Post(ctx context.Context, body any, files ...transport.File) (*T, error) {
	v, err := p.store.PostAndStore(ctx, p.key, p.endpoint, body, files, "files", func() any { return new(T) })
	if err != nil {
		return nil, err
	}
	return v.(*T), nil
}

// State reads the current typed entry.
func (p *Poster[T]) State() State[T] {
	return toState[T](p.store.Read(p.key))
}

// Subscribe observes writes to the bound key.
func (p *Poster[T]) Subscribe(fn func(State[T])) func() {
	return p.store.Subscribe(p.key, func(e cache.Entry) { fn(toState[T](e)) })
}
