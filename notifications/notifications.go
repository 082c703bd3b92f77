// Package notifications polls the notification list and keeps a local
// read-state ahead of server confirmation. The list lives outside the
// keyed cache because its read flags are mutated optimistically in
// place, which the cache's fetch-only write path does not allow.
package notifications

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/edutrack-uz/portal-client/transport"
)

const (
	listEndpoint     = "/api/notifications/"
	markReadEndpoint = "/api/notifications/mark-read/"

	defaultPollInterval = time.Minute
)

// Notification is one portal notification with a bilingual message.
type Notification struct {
	ID                int64     `json:"id"`
	Type              string    `json:"type"`
	MessageUz         string    `json:"message_uz"`
	MessageEn         string    `json:"message_en"`
	ScheduledDatetime time.Time `json:"scheduled_datetime"`
	Read              bool      `json:"read"`
}

// Snapshot is the observable state of the notification list.
type Snapshot struct {
	Notifications []Notification
	Loading       bool
	Err           *transport.Error
}

// Listener observes snapshot changes.
type Listener func(Snapshot)

// Service fetches, polls and mutates notifications.
type Service struct {
	mu sync.Mutex

	doer     transport.Doer
	logger   zerolog.Logger
	interval time.Duration

	list      []Notification
	loading   bool
	err       *transport.Error
	listeners map[int]Listener
	nextID    int
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithPollInterval overrides the one minute default poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(s *Service) { s.interval = d }
}

// NewService creates the notification service.
func NewService(doer transport.Doer, options ...Option) (*Service, error) {
	if doer == nil {
		return nil, errors.New("[notifications.NewService] transport is required")
	}
	s := &Service{
		doer:      doer,
		logger:    zerolog.Nop(),
		interval:  defaultPollInterval,
		listeners: map[int]Listener{},
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Subscribe registers a listener for snapshot changes. The returned
// function unsubscribes and is idempotent.
func (s *Service) Subscribe(fn Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// State returns the current snapshot.
func (s *Service) State() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// UnreadCount returns the number of unread notifications.
func (s *Service) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, item := range s.list {
		if !item.Read {
			n++
		}
	}
	return n
}

// Fetch replaces the local list with the server's, newest first.
// Poll failures keep the stale list visible and store the error.
func (s *Service) Fetch(ctx context.Context) ([]Notification, error) {
	s.mu.Lock()
	// A background refresh over an existing list does not flip loading,
	// so consumers keep rendering the stale data without a spinner.
	s.loading = len(s.list) == 0
	s.err = nil
	s.mu.Unlock()
	s.notify()

	resp, err := s.doer.Do(ctx, transport.Request{Endpoint: listEndpoint, Method: http.MethodPost})
	if err != nil {
		s.mu.Lock()
		s.loading = false
		s.err = transport.AsError(err)
		s.mu.Unlock()
		s.notify()
		return nil, err
	}

	var list []Notification
	if err := resp.Decode(&list); err != nil {
		decodeErr := transport.NewValidationError("decode notifications: %v", err)
		s.mu.Lock()
		s.loading = false
		s.err = decodeErr
		s.mu.Unlock()
		s.notify()
		return nil, decodeErr
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].ScheduledDatetime.After(list[j].ScheduledDatetime)
	})

	s.mu.Lock()
	s.list = list
	s.loading = false
	s.err = nil
	out := s.snapshotLocked().Notifications
	s.mu.Unlock()
	s.notify()
	return out, nil
}

// Run fetches once and then re-polls on the configured interval until
// the context is cancelled.
func (s *Service) Run(ctx context.Context) {
	if _, err := s.Fetch(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("initial notification fetch failed")
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Fetch(ctx); err != nil {
				s.logger.Warn().Err(err).Msg("notification poll failed")
			}
		}
	}
}

// MarkAsRead flips one notification optimistically, then confirms with
// the server. A failed confirmation is logged and left alone: the next
// poll restores ground truth.
func (s *Service) MarkAsRead(ctx context.Context, id int64) error {
	s.mu.Lock()
	for i := range s.list {
		if s.list[i].ID == id {
			s.list[i].Read = true
		}
	}
	s.mu.Unlock()
	s.notify()

	if err := s.markRead(ctx, id); err != nil {
		s.logger.Warn().Int64("notification_id", id).Err(err).Msg("mark-read failed")
		return err
	}
	return nil
}

// MarkAllAsRead flips every unread notification optimistically and
// confirms each in parallel. If any confirmation fails the optimistic
// state is discarded wholesale and a fresh fetch resynchronizes with
// the server; there is no per-item rollback.
func (s *Service) MarkAllAsRead(ctx context.Context) error {
	s.mu.Lock()
	var unread []int64
	for i := range s.list {
		if !s.list[i].Read {
			unread = append(unread, s.list[i].ID)
			s.list[i].Read = true
		}
	}
	s.mu.Unlock()
	s.notify()

	if len(unread) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	errs := make([]error, len(unread))
	for i, id := range unread {
		wg.Add(1)
		go func(i int, id int64) {
			defer wg.Done()
			errs[i] = s.markRead(ctx, id)
		}(i, id)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			s.logger.Warn().Err(err).Msg("mark-all-read failed, resyncing")
			if _, ferr := s.Fetch(ctx); ferr != nil {
				return errors.Wrap(ferr, "[Service.MarkAllAsRead] resync fetch")
			}
			return err
		}
	}
	return nil
}

func (s *Service) markRead(ctx context.Context, id int64) error {
	_, err := s.doer.Do(ctx, transport.Request{
		Endpoint: markReadEndpoint,
		Method:   http.MethodPost,
		Body:     map[string]int64{"notification_id": id},
	})
	return err
}

// snapshotLocked copies the observable state. The mutex must be held.
func (s *Service) snapshotLocked() Snapshot {
	list := make([]Notification, len(s.list))
	copy(list, s.list)
	return Snapshot{Notifications: list, Loading: s.loading, Err: s.err}
}

// notify fans the current snapshot out to listeners synchronously,
// outside the lock so listeners may read back into the service.
func (s *Service) notify() {
	s.mu.Lock()
	snap := s.snapshotLocked()
	fns := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}
