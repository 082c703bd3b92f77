package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const defaultTimeout = 15 * time.Second

// File is an in-memory upload part. Content is held as bytes rather
// than a reader so the same request can be rebuilt for a retry.
type File struct {
	Name    string
	Content []byte
}

// Request describes one call against the portal backend.
type Request struct {
	Endpoint  string
	Method    string
	Body      any
	Params    url.Values
	Files     []File
	FileField string // multipart field name for Files, defaults to "files"
	Headers   map[string]string
	NoAuth    bool // bypass bearer injection and 401 recovery
}

// Response is a completed call. Body is kept raw so callers decide how
// to decode it.
type Response struct {
	Status     int
	StatusText string
	Header     http.Header
	Body       json.RawMessage
}

// Decode unmarshals the response body into out.
func (r *Response) Decode(out any) error {
	if out == nil {
		return nil
	}
	return json.Unmarshal(r.Body, out)
}

// Doer issues requests. The session manager wraps the base client with
// the same interface so callers never know which one they hold.
type Doer interface {
	Do(ctx context.Context, req Request) (*Response, error)
}

// Client is the base HTTP transport. It serializes bodies, attaches
// headers and maps failures onto the Error taxonomy. It never retries.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithLogger sets the transport logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a transport against the given base URL.
func NewClient(baseURL string, options ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		logger:     zerolog.Nop(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Do issues the request and returns the response or a *Error.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	body, contentType, err := c.encodeBody(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.buildURL(req.Endpoint, req.Params), body)
	if err != nil {
		return nil, newNetworkError(err)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("X-Request-ID", uuid.New().String())
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Debug().Str("method", method).Str("endpoint", req.Endpoint).Err(err).Msg("request failed")
		return nil, newNetworkError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newNetworkError(err)
	}
	c.logger.Debug().
		Str("method", method).
		Str("endpoint", req.Endpoint).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("request completed")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newHTTPError(resp.StatusCode, raw)
	}
	return &Response{
		Status:     resp.StatusCode,
		StatusText: http.StatusText(resp.StatusCode),
		Header:     resp.Header,
		Body:       json.RawMessage(raw),
	}, nil
}

func (c *Client) buildURL(endpoint string, params url.Values) string {
	u := c.baseURL + "/" + strings.TrimLeft(endpoint, "/")
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

// encodeBody serializes the request body. JSON unless files are
// attached, in which case a multipart form is built with each file
// under FileField and every body field stringified individually
// (objects and arrays as a single JSON-encoded field value).
func (c *Client) encodeBody(req Request) (io.Reader, string, error) {
	if len(req.Files) == 0 {
		if req.Body == nil {
			return nil, "", nil
		}
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, "", NewValidationError("encode request body: %v", err)
		}
		return bytes.NewReader(b), "application/json", nil
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields, err := bodyFields(req.Body)
	if err != nil {
		return nil, "", err
	}
	for _, f := range fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, "", NewValidationError("encode form field %q: %v", f.name, err)
		}
	}

	fileField := req.FileField
	if fileField == "" {
		fileField = "files"
	}
	for _, file := range req.Files {
		part, err := w.CreateFormFile(fileField, file.Name)
		if err != nil {
			return nil, "", NewValidationError("encode file %q: %v", file.Name, err)
		}
		if _, err := part.Write(file.Content); err != nil {
			return nil, "", NewValidationError("encode file %q: %v", file.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", NewValidationError("finalize multipart body: %v", err)
	}
	return &buf, w.FormDataContentType(), nil
}

type formField struct {
	name  string
	value string
}

// bodyFields flattens an arbitrary body into multipart form fields.
// Scalars become their string form, nested objects and arrays become a
// single JSON-encoded value, nils are skipped.
func bodyFields(body any) ([]formField, error) {
	if body == nil {
		return nil, nil
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, NewValidationError("encode request body: %v", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, NewValidationError("multipart body must be an object: %v", err)
	}

	fields := make([]formField, 0, len(m))
	for name, v := range m {
		if v == nil {
			continue
		}
		switch tv := v.(type) {
		case string:
			fields = append(fields, formField{name, tv})
		case json.Number:
			fields = append(fields, formField{name, tv.String()})
		case bool:
			fields = append(fields, formField{name, fmt.Sprintf("%t", tv)})
		default:
			enc, err := json.Marshal(tv)
			if err != nil {
				return nil, NewValidationError("encode form field %q: %v", name, err)
			}
			fields = append(fields, formField{name, string(enc)})
		}
	}
	return fields, nil
}
