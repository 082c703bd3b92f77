// Package lessons drives the two user-facing mutation flows of the
// portal: marking attendance inside a time window and submitting
// homework, plus the lessons snapshot both operate on.
package lessons

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/edutrack-uz/portal-client/binding"
	"github.com/edutrack-uz/portal-client/cache"
	"github.com/edutrack-uz/portal-client/dashboard"
	"github.com/edutrack-uz/portal-client/transport"
)

// Cache keys owned by this package.
const (
	KeyLessons    = "lessons-data"
	KeySubmission = "homework-submission"
)

const (
	lessonsEndpoint    = "/api/lessons/"
	markEndpoint       = "/api/attendance/mark/"
	submissionEndpoint = "/api/bot/submit-assignment/"
)

// Service owns the lessons cache key and the attendance/homework flows.
type Service struct {
	mu sync.Mutex

	doer       transport.Doer
	lessons    *binding.Poster[LessonsResponse]
	submission *binding.Poster[SubmissionResponse]
	dashboard  *dashboard.Service
	logger     zerolog.Logger
	nowTime    func() time.Time

	submitting bool
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(nowFunc func() time.Time) Option {
	return func(s *Service) { s.nowTime = nowFunc }
}

// NewService creates the lessons service. The dashboard service is a
// hard dependency because attendance rewards change the coin/XP
// balances it owns.
func NewService(store *cache.Store, doer transport.Doer, dash *dashboard.Service, options ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("[lessons.NewService] cache is required")
	}
	if doer == nil {
		return nil, errors.New("[lessons.NewService] transport is required")
	}
	if dash == nil {
		return nil, errors.New("[lessons.NewService] dashboard service is required")
	}
	s := &Service{
		doer:       doer,
		lessons:    binding.NewPoster[LessonsResponse](store, KeyLessons, lessonsEndpoint),
		submission: binding.NewPoster[SubmissionResponse](store, KeySubmission, submissionEndpoint),
		dashboard:  dash,
		logger:     zerolog.Nop(),
		nowTime:    time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Fetch loads the lessons snapshot. Calling it again is the refetch.
func (s *Service) Fetch(ctx context.Context) (*LessonsResponse, error) {
	return s.lessons.Post(ctx, nil)
}

// State returns the current lessons entry.
func (s *Service) State() binding.State[LessonsResponse] {
	return s.lessons.State()
}

// Subscribe observes lessons writes.
func (s *Service) Subscribe(fn func(binding.State[LessonsResponse])) func() {
	return s.lessons.Subscribe(fn)
}

// AttendanceState derives the window state from the cached snapshot,
// folding in an in-flight mark call as Submitting.
func (s *Service) AttendanceState() (AttendanceState, bool) {
	st := s.lessons.State()
	if st.Data == nil {
		return "", false
	}
	s.mu.Lock()
	submitting := s.submitting
	s.mu.Unlock()
	if submitting {
		return StateSubmitting, true
	}
	return DeriveAttendanceState(st.Data.Data.Attendance, s.nowTime()), true
}

// MarkAttendance submits the keyword for the current window. On
// server-confirmed attendance it refetches the lessons snapshot and the
// dashboard, since coins and XP changed. On failure the window stays
// open and the server's message is surfaced verbatim; the client never
// guesses whether the window expired server-side.
func (s *Service) MarkAttendance(ctx context.Context, keyword string) (*MarkAttendanceResponse, error) {
	if keyword == "" {
		return nil, transport.NewValidationError("attendance keyword is required")
	}

	st := s.lessons.State()
	if st.Data == nil {
		return nil, transport.NewValidationError("no lessons data loaded")
	}
	window := st.Data.Data.Attendance
	if window.Status != nil {
		return nil, transport.NewValidationError("attendance already marked %s", *window.Status)
	}

	s.mu.Lock()
	if s.submitting {
		s.mu.Unlock()
		return nil, transport.NewValidationError("attendance submission already in flight")
	}
	s.submitting = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.submitting = false
		s.mu.Unlock()
	}()

	resp, err := s.doer.Do(ctx, transport.Request{
		Endpoint: markEndpoint,
		Method:   http.MethodPost,
		Body:     map[string]any{"track_id": window.TrackID, "keyword": keyword},
	})
	if err != nil {
		return nil, err
	}
	var out MarkAttendanceResponse
	if err := resp.Decode(&out); err != nil {
		return nil, transport.NewValidationError("decode attendance response: %v", err)
	}
	if appErr := transport.CheckEnvelope(out.Envelope); appErr != nil {
		return nil, appErr
	}

	s.logger.Info().Int("xp", out.Data.XP).Int("coins", out.Data.Coins).Msg("attendance marked")
	s.refreshAfterMutation(ctx)
	return &out, nil
}

// SubmitHomework sends the draft against the current assignment. The
// descriptor/file consistency guard runs before any network call. On
// success the draft is cleared and the lessons snapshot refetched; on
// failure the draft is left intact for a retry.
func (s *Service) SubmitHomework(ctx context.Context, draft *Draft) (*SubmissionResponse, error) {
	if draft == nil {
		return nil, transport.NewValidationError("draft is required")
	}

	st := s.lessons.State()
	if st.Data == nil || st.Data.Data.Assignments.Current == nil {
		return nil, transport.NewValidationError("no open assignment to submit against")
	}
	assignment := st.Data.Data.Assignments.Current

	comment, attachments, files, err := draft.payload()
	if err != nil {
		return nil, err
	}

	body := map[string]any{"assignment_id": assignment.ID}
	if comment != "" {
		body["comment"] = comment
	}
	if len(attachments) > 0 {
		body["attachments"] = attachments
	}

	out, err := s.submission.Post(ctx, body, files...)
	if err != nil {
		return nil, err
	}

	draft.Clear()
	s.logger.Info().Int64("submission_id", out.SubmissionID).Msg("homework submitted")
	if _, err := s.Fetch(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("lessons refetch after submission failed")
	}
	return out, nil
}

// refreshAfterMutation refetches the lessons snapshot and the
// dashboard. Failures are logged, not surfaced: the mutation itself
// already succeeded.
func (s *Service) refreshAfterMutation(ctx context.Context) {
	if _, err := s.Fetch(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("lessons refetch after mutation failed")
	}
	if _, err := s.dashboard.Fetch(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("dashboard refetch after mutation failed")
	}
}
