// Package api is the REST client for the conversation service.
//
// Every request is bearer-authorized through an oauth2.TokenSource, normally
// one obtained from auth.Manager.TokenSource, so an expired access token is
// refreshed before the request goes out.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"

	pkgerrors "github.com/AltairaLabs/convostream/pkg/errors"
	"github.com/AltairaLabs/convostream/pkg/httputil"
	"github.com/AltairaLabs/convostream/runtime/logger"
)

const component = "api"

// conversationsPath is the collection path. The trailing slash is significant.
const conversationsPath = "/conversations/"

// maxResponseBody caps how much of a success response is decoded.
const maxResponseBody = 8 * 1024 * 1024

// FetchError is a non-2xx answer from the conversation service.
type FetchError struct {
	Status int
	Detail string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Status, e.Detail)
}

// Client calls the conversation service.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	timeout time.Duration
	base    http.RoundTripper
}

// WithTimeout bounds each request. The default is httputil.DefaultAPITimeout.
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) { o.timeout = d }
}

// WithBaseTransport sets the transport beneath the bearer and tracing layers.
// A nil transport means http.DefaultTransport.
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(o *clientOptions) { o.base = rt }
}

// New creates a client for the service at baseURL authorized by ts.
func New(baseURL string, ts oauth2.TokenSource, opts ...Option) *Client {
	o := clientOptions{timeout: httputil.DefaultAPITimeout}
	for _, opt := range opts {
		opt(&o)
	}

	hc := httputil.NewHTTPClient(o.timeout)
	hc.Transport = &oauth2.Transport{
		Source: ts,
		Base:   otelhttp.NewTransport(o.base),
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    hc,
	}
}

// Create starts a new, empty conversation.
func (c *Client) Create(ctx context.Context) (Conversation, error) {
	var conv Conversation
	err := c.do(ctx, "Create", http.MethodPost, conversationsPath, http.StatusCreated, &conv)
	return conv, err
}

// List returns the caller's conversations.
func (c *Client) List(ctx context.Context) ([]Conversation, error) {
	var convs []Conversation
	if err := c.do(ctx, "List", http.MethodGet, conversationsPath, http.StatusOK, &convs); err != nil {
		return nil, err
	}
	return convs, nil
}

// Get returns a conversation with its stored messages.
func (c *Client) Get(ctx context.Context, id string) (ConversationWithMessages, error) {
	var conv ConversationWithMessages
	err := c.do(ctx, "Get", http.MethodGet, conversationsPath+url.PathEscape(id), http.StatusOK, &conv)
	return conv, err
}

// Delete removes a conversation.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, "Delete", http.MethodDelete, conversationsPath+url.PathEscape(id), http.StatusNoContent, nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, want int, out any) error {
	endpoint := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, http.NoBody)
	if err != nil {
		return pkgerrors.New(component, op, err)
	}
	req.Header.Set("Accept", "application/json")
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		logger.WarnContext(ctx, "api request failed", "op", op, "error", logger.RedactSensitiveData(err.Error()))
		return pkgerrors.New(component, op, err)
	}
	defer resp.Body.Close()

	logger.DebugContext(ctx, "api request",
		"op", op,
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode != want {
		if httputil.IsSuccess(resp.StatusCode) {
			// Drain so the connection can be reused.
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))
			return pkgerrors.New(component, op, fmt.Errorf("unexpected status %d, want %d", resp.StatusCode, want)).
				WithStatusCode(resp.StatusCode)
		}
		fe := &FetchError{Status: resp.StatusCode, Detail: httputil.ErrorDetail(resp)}
		ce := pkgerrors.New(component, op, fe).WithStatusCode(resp.StatusCode)
		if resp.StatusCode == http.StatusUnauthorized {
			ce = ce.WithKind(pkgerrors.KindUnauthorized)
		}
		return ce
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(out); err != nil {
		return pkgerrors.New(component, op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}
