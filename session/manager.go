// Package session owns the token pair for the logged-in student and
// wraps the transport with bearer injection and one-shot 401 recovery.
package session

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/edutrack-uz/portal-client/storage"
	"github.com/edutrack-uz/portal-client/transport"
)

const refreshEndpoint = "/api/auth/token/refresh/"

// ErrSessionExpired is returned when a request could not be recovered:
// no refresh token, failed refresh, or a second 401 after a successful
// refresh-and-retry. The manager has already torn the session down by
// the time callers see it.
var ErrSessionExpired = errors.New("session expired")

// Manager holds the current session and implements transport.Doer.
// It is the single writer of the token pair; every outgoing request
// reads the latest tokens at send time.
type Manager struct {
	mu sync.Mutex

	transport transport.Doer
	store     storage.Store
	logger    zerolog.Logger
	nowTime   func() time.Time

	accessToken  string
	refreshToken string
	accessCode   string

	// refreshGen increments on every successful refresh or reset so
	// concurrent 401s coalesce: a request that observed generation N
	// only performs a refresh if the generation is still N when it
	// acquires the lock; otherwise it reuses the fresher token.
	refreshGen uint64
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the session logger.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(nowFunc func() time.Time) Option {
	return func(m *Manager) { m.nowTime = nowFunc }
}

// NewManager creates a session manager over the base transport and
// restores any persisted session from the store.
func NewManager(t transport.Doer, store storage.Store, options ...Option) (*Manager, error) {
	if t == nil {
		return nil, errors.New("[NewManager] transport is required")
	}
	if store == nil {
		return nil, errors.New("[NewManager] store is required")
	}

	m := &Manager{
		transport: t,
		store:     store,
		logger:    zerolog.Nop(),
		nowTime:   time.Now,
	}
	for _, opt := range options {
		opt(m)
	}

	m.accessToken, _ = store.Get(storage.KeyAuthToken)
	m.refreshToken, _ = store.Get(storage.KeyRefreshToken)
	m.accessCode, _ = store.Get(storage.KeyStudentCode)
	return m, nil
}

// Install replaces the session after a successful login or deep-link
// verification and persists it.
func (m *Manager) Install(accessToken, refreshToken, accessCode string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.accessToken = accessToken
	m.refreshToken = refreshToken
	m.accessCode = accessCode
	m.refreshGen++

	if err := m.store.Set(storage.KeyAuthToken, accessToken); err != nil {
		return errors.Wrap(err, "[Manager.Install] persist access token")
	}
	if refreshToken != "" {
		if err := m.store.Set(storage.KeyRefreshToken, refreshToken); err != nil {
			return errors.Wrap(err, "[Manager.Install] persist refresh token")
		}
	} else if err := m.store.Delete(storage.KeyRefreshToken); err != nil {
		return errors.Wrap(err, "[Manager.Install] clear refresh token")
	}
	if err := m.store.Set(storage.KeyStudentCode, accessCode); err != nil {
		return errors.Wrap(err, "[Manager.Install] persist access code")
	}
	if err := m.store.Set(storage.KeyIsLogged, "true"); err != nil {
		return errors.Wrap(err, "[Manager.Install] persist logged-in flag")
	}
	return nil
}

// Reset tears the session down: tokens cleared, logged-in flag cleared.
// The access code is kept so the login form can be prefilled.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
}

// reset must be called with the mutex held.
func (m *Manager) reset() {
	m.accessToken = ""
	m.refreshToken = ""
	m.refreshGen++

	_ = m.store.Delete(storage.KeyAuthToken)
	_ = m.store.Delete(storage.KeyRefreshToken)
	_ = m.store.Set(storage.KeyIsLogged, "false")
	m.logger.Info().Msg("session reset")
}

// LoggedIn reports whether a session is currently installed.
func (m *Manager) LoggedIn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accessToken != ""
}

// AccessCode returns the student's access code, the identifier several
// POST-as-query endpoints require in the request body.
func (m *Manager) AccessCode() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accessCode
}

// ExpiresAt returns the access token's expiry claim, when present. The
// token is parsed without signature verification; the client has no key
// material and only uses the claim to refresh proactively.
func (m *Manager) ExpiresAt() (time.Time, bool) {
	m.mu.Lock()
	token := m.accessToken
	m.mu.Unlock()
	if token == "" {
		return time.Time{}, false
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// ExpiresWithin reports whether the access token expires inside d.
// Tokens without an expiry claim never report true.
func (m *Manager) ExpiresWithin(d time.Duration) bool {
	exp, ok := m.ExpiresAt()
	if !ok {
		return false
	}
	return exp.Before(m.nowTime().Add(d))
}

// Do implements transport.Doer. Requests flagged NoAuth pass straight
// through; everything else gets the current bearer token and, on a 401,
// exactly one refresh-and-retry. The recovery path is indivisible per
// request: a second 401 after the retry terminates the session instead
// of queueing another refresh.
func (m *Manager) Do(ctx context.Context, req transport.Request) (*transport.Response, error) {
	if req.NoAuth {
		return m.transport.Do(ctx, req)
	}

	token, gen := m.snapshot()
	resp, err := m.doWithToken(ctx, req, token)
	if !transport.IsStatus(err, http.StatusUnauthorized) {
		return resp, err
	}

	newToken, refreshErr := m.refreshAccess(ctx, gen)
	if refreshErr != nil {
		m.logger.Warn().Err(refreshErr).Msg("token refresh failed, tearing session down")
		return nil, errors.Wrap(ErrSessionExpired, refreshErr.Error())
	}

	resp, err = m.doWithToken(ctx, req, newToken)
	if transport.IsStatus(err, http.StatusUnauthorized) {
		m.Reset()
		return nil, errors.Wrap(ErrSessionExpired, "request unauthorized after token refresh")
	}
	return resp, err
}

func (m *Manager) snapshot() (string, uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accessToken, m.refreshGen
}

func (m *Manager) doWithToken(ctx context.Context, req transport.Request, token string) (*transport.Response, error) {
	headers := make(map[string]string, len(req.Headers)+1)
	for k, v := range req.Headers {
		headers[k] = v
	}
	if token != "" {
		headers["Authorization"] = "Bearer " + token
	}
	req.Headers = headers
	return m.transport.Do(ctx, req)
}

// refreshAccess performs the silent refresh. The mutex is held for the
// duration of the refresh call so concurrent 401s coalesce into one
// in-flight refresh; latecomers observe the bumped generation and reuse
// the new token. Any failure tears the session down before returning.
func (m *Manager) refreshAccess(ctx context.Context, seenGen uint64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.refreshGen != seenGen {
		if m.accessToken == "" {
			return "", errors.New("session already torn down")
		}
		return m.accessToken, nil
	}

	if m.refreshToken == "" {
		m.reset()
		return "", errors.New("no refresh token")
	}

	resp, err := m.transport.Do(ctx, transport.Request{
		Endpoint: refreshEndpoint,
		Method:   http.MethodPost,
		Body:     map[string]string{"refresh": m.refreshToken},
		NoAuth:   true,
	})
	if err != nil {
		m.reset()
		return "", errors.Wrap(err, "refresh request")
	}

	var out struct {
		Access string `json:"access"`
	}
	if err := resp.Decode(&out); err != nil || out.Access == "" {
		m.reset()
		return "", errors.New("refresh response missing access token")
	}

	m.accessToken = out.Access
	m.refreshGen++
	if err := m.store.Set(storage.KeyAuthToken, out.Access); err != nil {
		return "", errors.Wrap(err, "persist refreshed access token")
	}
	m.logger.Debug().Msg("access token refreshed")
	return out.Access, nil
}
