package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BenjaminSRussell/scrapedeck/internal/types"
)

// DefaultTimeout applies to every request that does not set its own
const DefaultTimeout = 30 * time.Second

// Session carries the credentials attached to backend requests.
// It is created at login and passed explicitly; an empty token
// sends no Authorization header.
type Session struct {
	Token  string
	Scheme string
}

// Authorization returns the header value, or "" when there is no token
func (s Session) Authorization() string {
	if s.Token == "" {
		return ""
	}
	scheme := s.Scheme
	if scheme == "" {
		scheme = "Token"
	}
	return scheme + " " + s.Token
}

// Options configures a Client
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	Session    Session
	UserAgent  string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client talks to the scraping backend's REST API
type Client struct {
	baseURL   string
	timeout   time.Duration
	session   Session
	userAgent string
	hc        *http.Client
	logger    *zap.Logger
}

// NewClient creates a new API client
func NewClient(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	u, err := url.Parse(base)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, types.NewValidationError("base_url", "must be an absolute http(s) URL, got %q", opts.BaseURL)
	}

	c := &Client{
		baseURL:   base,
		timeout:   opts.Timeout,
		session:   opts.Session,
		userAgent: opts.UserAgent,
		hc:        opts.HTTPClient,
		logger:    opts.Logger,
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.hc == nil {
		c.hc = &http.Client{}
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c, nil
}

// BaseURL returns the API root without a trailing slash
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Session returns the credentials in use
func (c *Client) Session() Session {
	return c.session
}

// WithSession returns a copy of the client using s
func (c *Client) WithSession(s Session) *Client {
	cp := *c
	cp.session = s
	return &cp
}

// Response is a fully read backend response
type Response struct {
	StatusCode  int
	ContentType string
	Header      http.Header
	Body        []byte
}

// IsJSON reports whether the body is declared as JSON
func (r *Response) IsJSON() bool {
	mt, _, err := mime.ParseMediaType(r.ContentType)
	if err != nil {
		return strings.Contains(r.ContentType, "json")
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

// Value decodes the body: nil for empty responses, a JSON value for
// JSON content, otherwise the text
func (r *Response) Value() (any, error) {
	if r.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(r.Body)) == 0 {
		return nil, nil
	}
	if !r.IsJSON() {
		return string(r.Body), nil
	}
	dec := json.NewDecoder(bytes.NewReader(r.Body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return v, nil
}

// Blob is a raw download
type Blob struct {
	Data        []byte
	ContentType string
	Filename    string
}

type requestConfig struct {
	timeout time.Duration
	query   url.Values
	header  http.Header
}

// RequestOption adjusts a single request
type RequestOption func(*requestConfig)

// WithTimeout overrides the client timeout for one request
func WithTimeout(d time.Duration) RequestOption {
	return func(rc *requestConfig) {
		if d > 0 {
			rc.timeout = d
		}
	}
}

// WithQuery adds query parameters. Repeated values are sent as
// repeated keys, e.g. ids=1&ids=2.
func WithQuery(q url.Values) RequestOption {
	return func(rc *requestConfig) {
		if rc.query == nil {
			rc.query = url.Values{}
		}
		for k, vs := range q {
			for _, v := range vs {
				rc.query.Add(k, v)
			}
		}
	}
}

// WithHeader sets an extra request header
func WithHeader(key, value string) RequestOption {
	return func(rc *requestConfig) {
		if rc.header == nil {
			rc.header = http.Header{}
		}
		rc.header.Set(key, value)
	}
}

// Do performs a request and returns the fully read response.
// Non-2xx statuses come back as *types.APIError, transport failures
// and timeouts as *types.NetworkError.
func (c *Client) Do(ctx context.Context, method, path string, body any, opts ...RequestOption) (*Response, error) {
	rc := requestConfig{timeout: c.timeout}
	for _, opt := range opts {
		opt(&rc)
	}

	target, err := c.resolve(path, rc.query)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	reqCtx, cancel := context.WithTimeout(ctx, rc.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth := c.session.Authorization(); auth != "" {
		req.Header.Set("Authorization", auth)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	for k, vs := range rc.header {
		req.Header[k] = vs
	}

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, c.networkError(method, target, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.networkError(method, target, err)
	}

	c.logger.Debug("api request",
		zap.String("method", method),
		zap.String("url", target),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	out := &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Header:      resp.Header,
		Body:        data,
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return out, &types.APIError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(data),
			Body:       data,
		}
	}
	return out, nil
}

// GetJSON fetches path and decodes the JSON body into out
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	resp, err := c.Do(ctx, http.MethodGet, path, nil, WithQuery(query))
	if err != nil {
		return err
	}
	return decodeInto(resp, out)
}

// PostJSON sends body as JSON and decodes the response into out when non-nil
func (c *Client) PostJSON(ctx context.Context, path string, body, out any) error {
	resp, err := c.Do(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	return decodeInto(resp, out)
}

// PutJSON replaces a resource
func (c *Client) PutJSON(ctx context.Context, path string, body, out any) error {
	resp, err := c.Do(ctx, http.MethodPut, path, body)
	if err != nil {
		return err
	}
	return decodeInto(resp, out)
}

// PatchJSON partially updates a resource
func (c *Client) PatchJSON(ctx context.Context, path string, body, out any) error {
	resp, err := c.Do(ctx, http.MethodPatch, path, body)
	if err != nil {
		return err
	}
	return decodeInto(resp, out)
}

// Delete removes a resource
func (c *Client) Delete(ctx context.Context, path string) error {
	_, err := c.Do(ctx, http.MethodDelete, path, nil)
	return err
}

// GetText fetches path and returns the body as text without decoding
func (c *Client) GetText(ctx context.Context, path string, query url.Values) (string, error) {
	resp, err := c.Do(ctx, http.MethodGet, path, nil, WithQuery(query), WithHeader("Accept", "text/html, text/plain, */*"))
	if err != nil {
		return "", err
	}
	return string(resp.Body), nil
}

// GetBlob fetches path and returns the raw payload
func (c *Client) GetBlob(ctx context.Context, path string, query url.Values) (*Blob, error) {
	resp, err := c.Do(ctx, http.MethodGet, path, nil, WithQuery(query), WithHeader("Accept", "*/*"))
	if err != nil {
		return nil, err
	}
	blob := &Blob{Data: resp.Body, ContentType: resp.ContentType}
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			blob.Filename = params["filename"]
		}
	}
	return blob, nil
}

func (c *Client) resolve(path string, query url.Values) (string, error) {
	var target string
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		target = path
	} else {
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		target = c.baseURL + path
	}

	if len(query) == 0 {
		return target, nil
	}
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("failed to parse request URL: %w", err)
	}
	q := u.Query()
	for k, vs := range query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) networkError(method, target string, err error) error {
	timeout := errors.Is(err, context.DeadlineExceeded)
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		timeout = true
	}
	if timeout {
		c.logger.Warn("api request timed out", zap.String("method", method), zap.String("url", target))
	}
	return &types.NetworkError{Op: method, URL: target, Timeout: timeout, Err: err}
}

func decodeInto(resp *Response, out any) error {
	if out == nil || resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(resp.Body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// errorMessage pulls a human readable message out of an error body.
// It understands {"message"|"error"|"detail": "..."}, field error maps
// and bare string lists; anything else yields "".
func errorMessage(body []byte) string {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return ""
	}

	switch val := v.(type) {
	case map[string]any:
		for _, key := range []string{"message", "error", "detail"} {
			if s, ok := val[key].(string); ok && s != "" {
				return s
			}
		}
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var parts []string
		for _, k := range keys {
			if msg := flatten(val[k]); msg != "" {
				parts = append(parts, k+": "+msg)
			}
		}
		return strings.Join(parts, "; ")
	case []any:
		return flatten(val)
	case string:
		return val
	}
	return ""
}

func flatten(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []any:
		var parts []string
		for _, item := range val {
			if s := flatten(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " ")
	}
	return ""
}
