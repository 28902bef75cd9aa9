// Package upstream holds the HTTP plumbing shared by the collaborator clients.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/haloydev/deploybot/internal/constants"
)

// Error is a failure talking to a collaborator: a transport error, an
// unexpected status or a body that could not be decoded.
type Error struct {
	Service    string
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s failed", e.Service, e.Op)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " with status %d", e.StatusCode)
	}
	if e.Body != "" {
		fmt.Fprintf(&b, ": %s", e.Body)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var upErr *Error
	if errors.As(err, &upErr) {
		return upErr.StatusCode
	}
	return 0
}

// Authorizer sets credentials on an outgoing request.
type Authorizer func(req *http.Request)

func BearerAuth(token string) Authorizer {
	return func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func TokenAuth(token string) Authorizer {
	return func(req *http.Request) {
		req.Header.Set("Authorization", "token "+token)
	}
}

func BasicAuth(user, password string) Authorizer {
	return func(req *http.Request) {
		req.SetBasicAuth(user, password)
	}
}

// NewHTTPClient returns a client with a request timeout. Redirects are
// followed with the Authorization header of the original request copied over,
// since some registries answer API calls with a redirect to another host.
func NewHTTPClient(timeout time.Duration, transport http.RoundTripper) *http.Client {
	if timeout <= 0 {
		timeout = constants.DefaultHTTPTimeout
	}
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return errors.New("stopped after 10 redirects")
			}
			if auth := via[0].Header.Get("Authorization"); auth != "" {
				req.Header.Set("Authorization", auth)
			}
			return nil
		},
	}
}

// Client is a JSON API client rooted at a base URL.
type Client struct {
	Service string
	BaseURL string
	HTTP    *http.Client
	Auth    Authorizer
	Header  http.Header
}

// Response is a completed call. Body is already read and closed.
type Response struct {
	StatusCode int
	Body       []byte
}

func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Decode unmarshals a JSON body into v. Decode failures are *Error.
func (r *Response) Decode(service, op string, v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return &Error{Service: service, Op: op, StatusCode: r.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}

// Err builds an *Error from a non-success response.
func (r *Response) Err(service, op string) error {
	return &Error{Service: service, Op: op, StatusCode: r.StatusCode, Body: strings.TrimSpace(string(r.Body))}
}

// Do sends a request to path (relative to BaseURL) with an optional JSON body.
// Only transport failures are returned as errors; callers decide what a
// status code means.
func (c *Client) Do(ctx context.Context, op, method, path string, query url.Values, body any) (*Response, error) {
	endpoint, err := c.url(path, query)
	if err != nil {
		return nil, &Error{Service: c.Service, Op: op, Err: err}
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, &Error{Service: c.Service, Op: op, Err: fmt.Errorf("failed to encode request: %w", err)}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, &Error{Service: c.Service, Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vals := range c.Header {
		req.Header.Del(k)
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	if c.Auth != nil {
		c.Auth(req)
	}

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = NewHTTPClient(0, nil)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, &Error{Service: c.Service, Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, constants.MaxUpstreamBodyBytes))
	if err != nil {
		return nil, &Error{Service: c.Service, Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	return &Response{StatusCode: resp.StatusCode, Body: data}, nil
}

// Get fetches path and decodes a 2xx body into v. It reports false without
// an error when the collaborator answers with any other status.
func (c *Client) Get(ctx context.Context, op, path string, query url.Values, v any) (bool, error) {
	resp, err := c.Do(ctx, op, http.MethodGet, path, query, nil)
	if err != nil {
		return false, err
	}
	if !resp.OK() {
		return false, nil
	}
	if err := resp.Decode(c.Service, op, v); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) url(path string, query url.Values) (string, error) {
	raw := c.BaseURL
	if path != "" {
		raw = strings.TrimSuffix(c.BaseURL, "/") + "/" + strings.TrimPrefix(path, "/")
	}
	base, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	if len(query) > 0 {
		q := base.Query()
		for k, vals := range query {
			for _, v := range vals {
				q.Add(k, v)
			}
		}
		base.RawQuery = q.Encode()
	}
	return base.String(), nil
}
