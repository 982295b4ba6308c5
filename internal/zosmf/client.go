package zosmf

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"pkt.systems/pslog"
)

// CSRFHeader must accompany every z/OSMF REST request.
const CSRFHeader = "X-CSRF-ZOSMF-HEADER"

const maxErrorBody = 4096

// Error is returned when z/OSMF answers with an unexpected HTTP status.
type Error struct {
	StatusCode int
	Method     string
	Resource   string
	Body       string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("zosmf %s %s returned %d", e.Method, e.Resource, e.StatusCode)
	if body := strings.TrimSpace(e.Body); body != "" {
		msg += ": " + body
	}
	return msg
}

// Client issues REST requests against one z/OSMF session.
type Client struct {
	session Session
	http    *http.Client
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// NewClient validates the session and builds a client for it.
func NewClient(session Session, opts ...ClientOption) (*Client, error) {
	if err := session.Validate(); err != nil {
		return nil, err
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !session.RejectUnauthorized {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // profile opted out of verification
	}
	c := &Client{
		session: session,
		http:    &http.Client{Timeout: session.timeout(), Transport: transport},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Session returns the session the client was built for.
func (c *Client) Session() Session {
	return c.session
}

// GetJSON issues a GET and decodes the JSON response into out.
func (c *Client) GetJSON(ctx context.Context, resource string, out any) error {
	return c.do(ctx, http.MethodGet, resource, nil, nil, http.StatusOK, out)
}

// PutText issues a PUT with a plain text body and decodes the JSON response into out.
func (c *Client) PutText(ctx context.Context, resource string, headers map[string]string, body []byte, expect int, out any) error {
	h := map[string]string{"Content-Type": "text/plain"}
	for k, v := range headers {
		h[k] = v
	}
	return c.do(ctx, http.MethodPut, resource, h, body, expect, out)
}

func (c *Client) do(ctx context.Context, method, resource string, headers map[string]string, body []byte, expect int, out any) error {
	if ctx == nil {
		return errors.New("missing context")
	}
	target := c.resolve(resource)
	log := pslog.Ctx(ctx).With("method", method, "resource", resource)

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("build zosmf request: %w", err)
	}
	req.SetBasicAuth(c.session.User, c.session.Password)
	req.Header.Set(CSRFHeader, "true")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	log.Debug("zosmf request", "body_len", len(body))
	resp, err := c.http.Do(req)
	if err != nil {
		log.Warn("zosmf request failed", "err", err)
		return fmt.Errorf("zosmf %s %s: %w", method, resource, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != expect {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		log.Warn("zosmf request rejected", "status", resp.StatusCode)
		return &Error{StatusCode: resp.StatusCode, Method: method, Resource: resource, Body: string(data)}
	}
	log.Trace("zosmf response", "status", resp.StatusCode)
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode zosmf response for %s: %w", resource, err)
	}
	return nil
}

func (c *Client) resolve(resource string) string {
	base := c.session.BaseURL()
	rel, query, _ := strings.Cut(resource, "?")
	base.Path = path.Join(base.Path, rel)
	base.RawQuery = query
	return base.String()
}
