package remote

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

	"github.com/matheus3301/momento/internal/logging"
	"go.uber.org/zap"
)

const defaultTimeout = 30 * time.Second

// Authenticator yields the Authorization header value. refresh asks for a
// new token after the server rejected the current one.
type Authenticator interface {
	AuthHeader(ctx context.Context, refresh bool) (string, error)
}

// Client talks to the backend REST API.
type Client struct {
	base   *url.URL
	http   *http.Client
	auth   Authenticator
	logger *zap.Logger

	// OnAuthFailure is called when a request is still unauthorized after a
	// token refresh. The daemon signs the session out from here.
	OnAuthFailure func()
}

// NewClient creates a client for the API rooted at baseURL.
func NewClient(baseURL string, auth Authenticator, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server url %q: scheme must be http or https", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	logger = logging.OrNop(logger)
	return &Client{base: u, http: httpClient, auth: auth, logger: logger}, nil
}

// WebSocketURL returns the ws:// or wss:// URL for path on the same server.
func (c *Client) WebSocketURL(path string) string {
	u := c.base.ResolveReference(&url.URL{Path: strings.TrimPrefix(path, "/")})
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	return u.String()
}

// AuthHeader exposes the authenticator to other transports sharing the session.
func (c *Client) AuthHeader(ctx context.Context) (string, error) {
	if c.auth == nil {
		return "", nil
	}
	return c.auth.AuthHeader(ctx, false)
}

// Do performs one API call. body, if non-nil, is sent as JSON; the response
// is decoded into out if non-nil. A 401 triggers one token refresh and retry.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return &Error{Kind: KindValidation, Method: method, Path: path, Err: err}
		}
		payload = b
	}

	resp, err := c.send(ctx, method, path, query, payload, false)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		_ = resp.Body.Close()
		c.logger.Debug("unauthorized, refreshing token", zap.String("path", path))
		resp, err = c.send(ctx, method, path, query, payload, true)
		if err != nil {
			if IsAuth(err) && c.OnAuthFailure != nil {
				c.OnAuthFailure()
			}
			return err
		}
		if resp.StatusCode == http.StatusUnauthorized {
			_ = resp.Body.Close()
			if c.OnAuthFailure != nil {
				c.OnAuthFailure()
			}
			return &Error{Kind: KindAuth, Status: resp.StatusCode, Method: method, Path: path, Err: errors.New("unauthorized after token refresh")}
		}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &Error{
			Kind:   kindOf(resp.StatusCode),
			Status: resp.StatusCode,
			Method: method,
			Path:   path,
			Err:    errors.New(strings.TrimSpace(string(msg))),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return &Error{Kind: KindServer, Status: resp.StatusCode, Method: method, Path: path, Err: fmt.Errorf("decode: %w", err)}
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, payload []byte, refresh bool) (*http.Response, error) {
	u := c.base.ResolveReference(&url.URL{Path: strings.TrimPrefix(path, "/")})
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, &Error{Kind: KindValidation, Method: method, Path: path, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.auth != nil {
		h, err := c.auth.AuthHeader(ctx, refresh)
		if err != nil {
			return nil, &Error{Kind: KindAuth, Method: method, Path: path, Err: err}
		}
		if h != "" {
			req.Header.Set("Authorization", h)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Method: method, Path: path, Err: err}
	}
	return resp, nil
}
