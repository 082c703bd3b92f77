// Package authflow implements the two ways a student obtains a
// session: direct access-code login and the bot deep-link handshake.
package authflow

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/edutrack-uz/portal-client/session"
	"github.com/edutrack-uz/portal-client/transport"
)

const (
	loginEndpoint  = "/api/login/"
	initEndpoint   = "/api/auth/init/"
	verifyEndpoint = "/api/auth/verify/"

	defaultPollInterval = 2 * time.Second
)

// Access codes look like "YT-E000123": a prefix, a dash, a letter and a
// six digit number.
var accessCodePattern = regexp.MustCompile(`^[A-Z]{1,4}-[A-Z]\d{6}$`)

// LoginResponse is the /api/login/ success shape.
type LoginResponse struct {
	Token string          `json:"token"`
	User  json.RawMessage `json:"user"`
}

// Service performs authentication against the backend. All its calls
// go through the raw transport (NoAuth) so a half-dead session can
// never recurse into the 401 recovery path.
type Service struct {
	doer         transport.Doer
	session      *session.Manager
	logger       zerolog.Logger
	pollInterval time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the auth logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithPollInterval sets the deep-link verify poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(s *Service) { s.pollInterval = d }
}

// NewService creates the auth service.
func NewService(doer transport.Doer, sess *session.Manager, options ...Option) (*Service, error) {
	if doer == nil {
		return nil, errors.New("[authflow.NewService] transport is required")
	}
	if sess == nil {
		return nil, errors.New("[authflow.NewService] session manager is required")
	}
	s := &Service{
		doer:         doer,
		session:      sess,
		logger:       zerolog.Nop(),
		pollInterval: defaultPollInterval,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// ValidateAccessCode rejects malformed codes before any network call.
func ValidateAccessCode(code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return transport.NewValidationError("access code is required")
	}
	if !accessCodePattern.MatchString(code) {
		return transport.NewValidationError("access code %q is not in the expected format", code)
	}
	return nil
}

// Login exchanges the access code for a session and installs it.
func (s *Service) Login(ctx context.Context, accessCode string) (*LoginResponse, error) {
	accessCode = strings.TrimSpace(accessCode)
	if err := ValidateAccessCode(accessCode); err != nil {
		return nil, err
	}

	resp, err := s.doer.Do(ctx, transport.Request{
		Endpoint: loginEndpoint,
		Method:   http.MethodPost,
		Body:     map[string]string{"student_code": accessCode},
		NoAuth:   true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Login] login request")
	}

	var out LoginResponse
	if err := resp.Decode(&out); err != nil {
		return nil, transport.NewValidationError("decode login response: %v", err)
	}
	if out.Token == "" {
		// Failed logins come back as 200 with {success:false, message}.
		var env transport.Envelope
		_ = resp.Decode(&env)
		if appErr := transport.CheckEnvelope(env); appErr != nil {
			return nil, appErr
		}
		return nil, &transport.Error{Kind: transport.KindApp, Message: "login response missing token"}
	}

	if err := s.session.Install(out.Token, "", accessCode); err != nil {
		return nil, errors.Wrap(err, "[Service.Login] install session")
	}
	s.logger.Info().Msg("logged in")
	return &out, nil
}

// Logout tears the session down locally.
func (s *Service) Logout() {
	s.session.Reset()
	s.logger.Info().Msg("logged out")
}
