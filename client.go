// Package messenger is a Go client for the secure-messenger chat server:
// REST endpoints, the realtime wire protocol, and its websocket transport.
package messenger

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
)

const (
	// DefaultTimeout is the default HTTP timeout used by the client.
	DefaultTimeout = 10 * time.Second

	// SessionHeader carries the session token on REST requests.
	SessionHeader = "X-Session-Token"

	maxResponseSize = 10 * 1024 * 1024
)

// ErrSessionExpired matches API errors caused by a missing, invalid, or
// expired session token.
var ErrSessionExpired = errors.New("messenger: session expired")

// Client is a secure-messenger HTTP client.
//
// It covers the REST surface (login, registration, session validation,
// user directory, history). The realtime channel is opened separately
// through a WebSocketDialer.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	sessionToken string
}

// New creates a new client for the server origin baseURL.
func New(baseURL string) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("messenger: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("messenger: missing host in %q", baseURL)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}, nil
}

// NewWithSession creates a new client authenticated with a session token.
func NewWithSession(baseURL, sessionToken string) (*Client, error) {
	c, err := New(baseURL)
	if err != nil {
		return nil, err
	}
	c.sessionToken = sessionToken
	return c, nil
}

// BaseURL returns the server origin the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SessionToken returns the token sent with requests, if any.
func (c *Client) SessionToken() string {
	return c.sessionToken
}

type apiError struct {
	StatusCode int
	Body       string
}

func (e *apiError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("messenger: http %d", e.StatusCode)
	}
	return fmt.Sprintf("messenger: http %d: %s", e.StatusCode, e.Body)
}

func (e *apiError) Is(target error) bool {
	return target == ErrSessionExpired && e.StatusCode == http.StatusUnauthorized
}

// HTTPStatus returns the status code of an API error returned by Client.
func HTTPStatus(err error) (int, bool) {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode, true
	}
	return 0, false
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, path string, in any, out any) error {
	return c.do(ctx, http.MethodPost, path, in, out)
}

func (c *Client) do(ctx context.Context, method, path string, in any, out any) error {
	resp, err := c.doRaw(ctx, method, path, "application/json", in)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, maxResponseSize)
	data, err := io.ReadAll(limited)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &apiError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("messenger: decoding %s response: %w", path, err)
	}
	return nil
}

func (c *Client) doRaw(ctx context.Context, method, path, accept string, in any) (*http.Response, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", accept)
	if c.sessionToken != "" {
		req.Header.Set(SessionHeader, c.sessionToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	return resp, nil
}
