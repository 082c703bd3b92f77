package authflow

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/edutrack-uz/portal-client/transport"
)

// VerifyState is the deep-link handshake state.
type VerifyState string

const (
	StateAwaitingInit VerifyState = "awaiting_init"
	StatePolling      VerifyState = "polling"
	StateVerified     VerifyState = "verified"
	StateFailed       VerifyState = "failed"
)

type initResponse struct {
	transport.Envelope
	StartParam string `json:"start_param"`
	DeepLink   string `json:"deep_link"`
}

type verifyResponse struct {
	transport.Envelope
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// DeepLinkAuth drives the bot handshake as an explicit state machine:
// AwaitingInit -> Polling -> Verified | Failed. Cancelling the poll
// context stops the loop deterministically without changing state, so
// a torn-down view leaves no poller behind.
type DeepLinkAuth struct {
	mu sync.Mutex

	svc        *Service
	accessCode string
	state      VerifyState
	startParam string
	deepLink   string
}

// NewDeepLink starts a handshake for the given access code.
func (s *Service) NewDeepLink(accessCode string) (*DeepLinkAuth, error) {
	accessCode = strings.TrimSpace(accessCode)
	if err := ValidateAccessCode(accessCode); err != nil {
		return nil, err
	}
	return &DeepLinkAuth{svc: s, accessCode: accessCode, state: StateAwaitingInit}, nil
}

// State returns the current handshake state.
func (d *DeepLinkAuth) State() VerifyState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// DeepLink returns the bot link to present to the student, available
// after Init succeeds.
func (d *DeepLinkAuth) DeepLink() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.deepLink
}

// Init begins the handshake and moves the machine to Polling.
func (d *DeepLinkAuth) Init(ctx context.Context) (string, error) {
	d.mu.Lock()
	if d.state != StateAwaitingInit {
		state := d.state
		d.mu.Unlock()
		return "", transport.NewValidationError("handshake already %s", state)
	}
	d.mu.Unlock()

	resp, err := d.svc.doer.Do(ctx, transport.Request{
		Endpoint: initEndpoint,
		Method:   http.MethodPost,
		Body:     map[string]string{"access_code": d.accessCode},
		NoAuth:   true,
	})
	if err != nil {
		d.fail()
		return "", errors.Wrap(err, "[DeepLinkAuth.Init] init request")
	}

	var out initResponse
	if err := resp.Decode(&out); err != nil {
		d.fail()
		return "", transport.NewValidationError("decode init response: %v", err)
	}
	if appErr := transport.CheckEnvelope(out.Envelope); appErr != nil {
		d.fail()
		return "", appErr
	}

	d.mu.Lock()
	d.startParam = out.StartParam
	d.deepLink = out.DeepLink
	d.state = StatePolling
	d.mu.Unlock()
	return out.DeepLink, nil
}

// Poll loops the verify endpoint until the handshake completes. An
// HTTP 408 means "not confirmed yet, keep polling". On success the
// session is installed and the machine moves to Verified. Context
// cancellation returns ctx.Err() and leaves the machine in Polling.
func (d *DeepLinkAuth) Poll(ctx context.Context) error {
	if d.State() != StatePolling {
		return transport.NewValidationError("handshake is %s, not polling", d.State())
	}

	ticker := time.NewTicker(d.svc.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			done, err := d.verifyOnce(ctx)
			if err != nil {
				d.fail()
				return err
			}
			if done {
				return nil
			}
		}
	}
}

// verifyOnce returns (true, nil) when the handshake completed,
// (false, nil) when the server asked to keep polling.
func (d *DeepLinkAuth) verifyOnce(ctx context.Context) (bool, error) {
	d.mu.Lock()
	body := map[string]string{"start_param": d.startParam, "access_code": d.accessCode}
	d.mu.Unlock()

	resp, err := d.svc.doer.Do(ctx, transport.Request{
		Endpoint: verifyEndpoint,
		Method:   http.MethodPost,
		Body:     body,
		NoAuth:   true,
	})
	if transport.IsStatus(err, http.StatusRequestTimeout) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "[DeepLinkAuth.verifyOnce] verify request")
	}

	var out verifyResponse
	if err := resp.Decode(&out); err != nil {
		return false, transport.NewValidationError("decode verify response: %v", err)
	}
	if appErr := transport.CheckEnvelope(out.Envelope); appErr != nil {
		return false, appErr
	}
	if out.Access == "" {
		return false, &transport.Error{Kind: transport.KindApp, Message: "verify response missing tokens"}
	}

	if err := d.svc.session.Install(out.Access, out.Refresh, d.accessCode); err != nil {
		return false, errors.Wrap(err, "[DeepLinkAuth.verifyOnce] install session")
	}

	d.mu.Lock()
	d.state = StateVerified
	d.mu.Unlock()
	d.svc.logger.Info().Msg("deep-link handshake verified")
	return true, nil
}

func (d *DeepLinkAuth) fail() {
	d.mu.Lock()
	d.state = StateFailed
	d.mu.Unlock()
}
