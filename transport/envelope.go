package transport

// Envelope is the common `{success, message}` wrapper most portal
// endpoints use. Domain response types embed it so the cache layer can
// detect application-level failures in otherwise successful responses.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (e Envelope) Succeeded() bool        { return e.Success }
func (e Envelope) FailureMessage() string { return e.Message }

// Enveloped is implemented by response types that carry a success flag.
type Enveloped interface {
	Succeeded() bool
	FailureMessage() string
}

// CheckEnvelope converts a `success:false` payload into an app error.
// Values that do not carry an envelope pass through untouched.
func CheckEnvelope(v any) *Error {
	env, ok := v.(Enveloped)
	if !ok {
		return nil
	}
	if env.Succeeded() {
		return nil
	}
	msg := env.FailureMessage()
	if msg == "" {
		msg = "request rejected by server"
	}
	return &Error{Kind: KindApp, Message: msg}
}
