// Package dashboard fetches the enrollment/course snapshot and the
// leaderboard. Both endpoints are POST-as-query: they want the student
// code in the body even though auth travels in the bearer header.
package dashboard

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/edutrack-uz/portal-client/binding"
	"github.com/edutrack-uz/portal-client/cache"
	"github.com/edutrack-uz/portal-client/session"
	"github.com/edutrack-uz/portal-client/transport"
)

// Cache keys owned by this package.
const (
	KeyDashboard   = "dashboard-data"
	KeyLeaderboard = "leaderboard-data"
)

// DashboardResponse is the /api/dashboard/ shape.
type DashboardResponse struct {
	transport.Envelope
	Data struct {
		Enrollment Enrollment `json:"enrollment"`
	} `json:"data"`
}

// LeaderboardResponse is the /api/leaderboard/ shape.
type LeaderboardResponse struct {
	transport.Envelope
	Data struct {
		Enrollment Enrollment `json:"enrollment"`
		Group      []Ranking  `json:"group"`
		Course     []Ranking  `json:"course"`
	} `json:"data"`
}

// Service owns the dashboard and leaderboard cache keys.
type Service struct {
	session     *session.Manager
	dashboard   *binding.Poster[DashboardResponse]
	leaderboard *binding.Poster[LeaderboardResponse]
	logger      zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates the dashboard service over the shared cache.
func NewService(store *cache.Store, sess *session.Manager, options ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("[dashboard.NewService] cache is required")
	}
	if sess == nil {
		return nil, errors.New("[dashboard.NewService] session manager is required")
	}
	s := &Service{
		session:     sess,
		dashboard:   binding.NewPoster[DashboardResponse](store, KeyDashboard, "/api/dashboard/"),
		leaderboard: binding.NewPoster[LeaderboardResponse](store, KeyLeaderboard, "/api/leaderboard/"),
		logger:      zerolog.Nop(),
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Fetch loads the dashboard snapshot. Calling it again is the refetch.
func (s *Service) Fetch(ctx context.Context) (*DashboardResponse, error) {
	return s.dashboard.Post(ctx, map[string]string{"student_code": s.session.AccessCode()})
}

// FetchLeaderboard loads the group/course rankings.
func (s *Service) FetchLeaderboard(ctx context.Context) (*LeaderboardResponse, error) {
	return s.leaderboard.Post(ctx, map[string]string{"student_code": s.session.AccessCode()})
}

// State returns the current dashboard entry.
func (s *Service) State() binding.State[DashboardResponse] {
	return s.dashboard.State()
}

// LeaderboardState returns the current leaderboard entry.
func (s *Service) LeaderboardState() binding.State[LeaderboardResponse] {
	return s.leaderboard.State()
}

// Subscribe observes dashboard writes.
func (s *Service) Subscribe(fn func(binding.State[DashboardResponse])) func() {
	return s.dashboard.Subscribe(fn)
}

// SubscribeLeaderboard observes leaderboard writes.
func (s *Service) SubscribeLeaderboard(fn func(binding.State[LeaderboardResponse])) func() {
	return s.leaderboard.Subscribe(fn)
}

// Balance returns the last-known coin balance. ok is false before the
// first successful dashboard fetch.
func (s *Service) Balance() (int, bool) {
	st := s.dashboard.State()
	if st.Data == nil {
		return 0, false
	}
	return st.Data.Data.Enrollment.Balance, true
}
