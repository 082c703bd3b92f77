// Package cache maps logical resource keys ("dashboard-data",
// "lessons-data", ...) to their last-known server snapshot and fans
// writes out to subscribers synchronously.
package cache

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/edutrack-uz/portal-client/transport"
)

// Entry is the cached state for one key. Data keeps the last
// successfully fetched value even while an error is stored, so
// consumers can show stale data with an error banner instead of
// blanking.
type Entry struct {
	Data        any
	Loading     bool
	Err         *transport.Error
	LastUpdated time.Time
}

// Listener observes entry writes for one key.
type Listener func(Entry)

// Store is the keyed cache. All writes notify subscribers before the
// writing call returns.
type Store struct {
	mu sync.Mutex

	doer    transport.Doer
	logger  zerolog.Logger
	nowTime func() time.Time

	entries   map[string]Entry
	listeners map[string]map[int]Listener
	nextID    int

	// seq carries a monotonic request counter per key: a response is
	// applied only if it belongs to the latest request issued for that
	// key, so a slow fetch can never overwrite fresher data.
	seq map[string]uint64
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the cache logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(nowFunc func() time.Time) Option {
	return func(s *Store) { s.nowTime = nowFunc }
}

// New creates a cache over the given transport (normally the session
// manager, so every fetch gets bearer injection and 401 recovery).
func New(doer transport.Doer, options ...Option) (*Store, error) {
	if doer == nil {
		return nil, errors.New("[cache.New] transport is required")
	}
	s := &Store{
		doer:      doer,
		logger:    zerolog.Nop(),
		nowTime:   time.Now,
		entries:   map[string]Entry{},
		listeners: map[string]map[int]Listener{},
		seq:       map[string]uint64{},
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Read returns the current entry for key. Absent keys read as a zero
// entry; Read never fails.
func (s *Store) Read(key string) Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[key]
}

// Subscribe registers a listener invoked synchronously on every write
// to key. The returned function unsubscribes and is idempotent.
func (s *Store) Subscribe(key string, fn Listener) func() {
	s.mu.Lock()
	if s.listeners[key] == nil {
		s.listeners[key] = map[int]Listener{}
	}
	id := s.nextID
	s.nextID++
	s.listeners[key][id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners[key], id)
			s.mu.Unlock()
		})
	}
}

// FetchAndStore issues a GET for key and stores the result. On success
// the decoded value (produced by newValue) becomes the entry data; on
// failure the error is stored and prior data is left untouched. Either
// way the outcome is returned to the caller.
func (s *Store) FetchAndStore(ctx context.Context, key, endpoint string, params url.Values, newValue func() any) (any, error) {
	return s.run(ctx, key, transport.Request{
		Endpoint: endpoint,
		Method:   http.MethodGet,
		Params:   params,
	}, newValue)
}

// PostAndStore is FetchAndStore for POST and multipart requests. It
// serves both genuine mutations and POST-as-query endpoints that want
// the student identifier in the body.
func (s *Store) PostAndStore(ctx context.Context, key, endpoint string, body any, files []transport.File, fileField string, newValue func() any) (any, error) {
	return s.run(ctx, key, transport.Request{
		Endpoint:  endpoint,
		Method:    http.MethodPost,
		Body:      body,
		Files:     files,
		FileField: fileField,
	}, newValue)
}

func (s *Store) run(ctx context.Context, key string, req transport.Request, newValue func() any) (any, error) {
	mySeq := s.begin(key)

	value, err := s.execute(ctx, req, newValue)

	s.mu.Lock()
	latest := s.seq[key] == mySeq
	if !latest {
		s.mu.Unlock()
		// Superseded by a newer request for the same key: hand the
		// result to the caller but do not store or notify.
		s.logger.Debug().Str("key", key).Msg("discarding superseded response")
		return value, err
	}

	entry := s.entries[key]
	entry.Loading = false
	if err != nil {
		entry.Err = transport.AsError(err)
	} else {
		entry.Data = value
		entry.Err = nil
		entry.LastUpdated = s.nowTime()
	}
	s.writeLocked(key, entry)
	return value, err
}

func (s *Store) execute(ctx context.Context, req transport.Request, newValue func() any) (any, error) {
	resp, err := s.doer.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	value := newValue()
	if err := resp.Decode(value); err != nil {
		return nil, transport.NewValidationError("decode %s response: %v", req.Endpoint, err)
	}
	if appErr := transport.CheckEnvelope(value); appErr != nil {
		return nil, appErr
	}
	return value, nil
}

// begin bumps the key's sequence and publishes the loading entry.
func (s *Store) begin(key string) uint64 {
	s.mu.Lock()
	s.seq[key]++
	mySeq := s.seq[key]
	entry := s.entries[key]
	entry.Loading = true
	entry.Err = nil
	s.writeLocked(key, entry)
	return mySeq
}

// writeLocked stores the entry and notifies subscribers. The mutex must
// be held on entry; it is released before listeners run and the write
// call returns only after every listener has observed the new entry.
func (s *Store) writeLocked(key string, entry Entry) {
	s.entries[key] = entry
	fns := make([]Listener, 0, len(s.listeners[key]))
	for _, fn := range s.listeners[key] {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(entry)
	}
}

// Clear drops the entry for key.
func (s *Store) Clear(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// ClearAll drops every entry, e.g. on logout.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = map[string]Entry{}
}
