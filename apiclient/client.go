// Package apiclient wraps an HTTP transport with bearer-token injection, single-flight token
// refresh on 401, one transparent replay, and uniform error normalization.
package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/go-authgate/session-cli/tokenstore"
)

const (
	defaultRefreshTimeout = 10 * time.Second
	requestIDHeader       = "X-Request-ID"
)

// Transport performs the network call. A non-nil error means no response was received;
// any HTTP status, including 4xx and 5xx, is returned as a Response.
type Transport interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, req *Request) (*Response, error)

func (f TransportFunc) Send(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Endpoints are the API paths the client treats specially.
type Endpoints struct {
	Login    string
	Register string
	Refresh  string
	Logout   string
}

// DefaultEndpoints are the auth routes of the API.
var DefaultEndpoints = Endpoints{
	Login:    "/auth/login",
	Register: "/auth/register",
	Refresh:  "/auth/refresh",
	Logout:   "/auth/logout",
}

// RotationPolicy decides what happens when a refresh response carries no new refresh token.
type RotationPolicy int

const (
	// RotationReuse keeps the previous refresh token (server issues reusable refresh tokens).
	RotationReuse RotationPolicy = iota
	// RotationSingleUse drops it: the spent token is never sent again, and the next
	// expiry requires a new login.
	RotationSingleUse
)

// Hooks observe the refresh lifecycle. All fields are optional.
type Hooks struct {
	OnRefreshStart func()
	OnRefreshDone  func(err error)
	// OnSessionExpired runs after an unrecoverable refresh failure, once the store is cleared.
	// Interactive front ends use it to send the user back to login.
	OnSessionExpired func()
}

// Stats is a snapshot of client counters.
type Stats struct {
	Requests        int64
	Refreshes       int64
	RefreshFailures int64
	Queued          int64
	Replays         int64
}

type counters struct {
	requests        atomic.Int64
	refreshes       atomic.Int64
	refreshFailures atomic.Int64
	replays         atomic.Int64
}

// Client is the authenticated request pipeline. It is safe for concurrent use; each Client
// owns its own Coordinator, so independent clients never share refresh state.
type Client struct {
	transport      Transport
	store          tokenstore.Store
	coord          *Coordinator
	norm           normalizer
	log            zerolog.Logger
	endpoints      Endpoints
	rotation       RotationPolicy
	refreshTimeout time.Duration
	hooks          Hooks
	stats          counters
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger; the default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithMessages replaces the default (English) message table.
func WithMessages(msgs Messages) Option {
	return func(c *Client) { c.norm.msgs = msgs }
}

// WithEndpoints overrides the auth routes exempt from refresh.
func WithEndpoints(e Endpoints) Option {
	return func(c *Client) { c.endpoints = e }
}

// WithRotationPolicy sets what happens when a refresh returns no new refresh token.
func WithRotationPolicy(p RotationPolicy) Option {
	return func(c *Client) { c.rotation = p }
}

// WithRefreshTimeout bounds the refresh call independently of the caller's context.
func WithRefreshTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.refreshTimeout = d
		}
	}
}

// WithHooks registers refresh lifecycle callbacks.
func WithHooks(h Hooks) Option {
	return func(c *Client) { c.hooks = h }
}

// New returns a Client sending through transport and reading tokens from store.
func New(transport Transport, store tokenstore.Store, opts ...Option) *Client {
	c := &Client{
		transport:      transport,
		store:          store,
		coord:          NewCoordinator(),
		norm:           normalizer{msgs: DefaultMessages},
		log:            zerolog.Nop(),
		endpoints:      DefaultEndpoints,
		refreshTimeout: defaultRefreshTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Stats returns the current counters.
func (c *Client) Stats() Stats {
	return Stats{
		Requests:        c.stats.requests.Load(),
		Refreshes:       c.stats.refreshes.Load(),
		RefreshFailures: c.stats.refreshFailures.Load(),
		Queued:          c.coord.Joined(),
		Replays:         c.stats.replays.Load(),
	}
}

// Do sends req with the stored access token. It returns the unwrapped success result or
// an *Error; a 401 caused by an expired access token is recovered transparently.
func (c *Client) Do(ctx context.Context, req *Request) (*Result, error) {
	c.stats.requests.Add(1)

	req = req.clone()
	if req.Header.Get(requestIDHeader) == "" {
		req.Header.Set(requestIDHeader, uuid.NewString())
	}
	if token := c.accessToken(ctx); token != "" {
		req.setBearer(token)
	}
	return c.exchange(ctx, req)
}

// Get is Do for a bodiless GET.
func (c *Client) Get(ctx context.Context, path string) (*Result, error) {
	req, _ := NewRequest(http.MethodGet, path, nil)
	return c.Do(ctx, req)
}

// Post is Do for a JSON POST.
func (c *Client) Post(ctx context.Context, path string, body any) (*Result, error) {
	req, err := NewRequest(http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, req)
}

func (c *Client) exchange(ctx context.Context, req *Request) (*Result, error) {
	resp, err := c.transport.Send(ctx, req)
	if err != nil {
		c.log.Debug().Err(err).
			Str("method", req.Method).
			Str("path", req.Path).
			Msg("request failed without response")
		return nil, c.norm.fromTransport(err)
	}

	if resp.StatusCode < http.StatusBadRequest {
		return Unwrap(&Result{Response: resp}), nil
	}

	if resp.StatusCode == http.StatusUnauthorized && c.refreshable(req) {
		return c.recoverSession(ctx, req)
	}

	c.log.Debug().
		Str("method", req.Method).
		Str("path", req.Path).
		Int("status", resp.StatusCode).
		Str("request_id", req.Header.Get(requestIDHeader)).
		Msg("request rejected")
	return nil, c.norm.fromResponse(resp, c.isCredentialPath(req.Path), nil)
}

// refreshable is the eligibility gate: first attempt only, and never for auth endpoints.
func (c *Client) refreshable(req *Request) bool {
	if req.retried {
		return false
	}
	return !c.isCredentialPath(req.Path) && !matchPath(req.Path, c.endpoints.Refresh)
}

func (c *Client) isCredentialPath(path string) bool {
	return matchPath(path, c.endpoints.Login) || matchPath(path, c.endpoints.Register)
}

func matchPath(path, endpoint string) bool {
	if endpoint == "" {
		return false
	}
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return strings.TrimSuffix(path, "/") == strings.TrimSuffix(endpoint, "/")
}

func (c *Client) recoverSession(ctx context.Context, req *Request) (*Result, error) {
	req.retried = true

	// Another goroutine may already have rotated the token since this request was sent.
	if current := c.accessToken(ctx); current != "" && current != req.bearer() {
		c.log.Debug().Str("path", req.Path).Msg("access token already rotated, replaying")
		return c.replay(ctx, req, current)
	}

	// The coordinator also covers a rotation that completes between the check above and here.
	token, err := c.coord.Do(ctx, req.bearer(), c.refreshOnce)
	if err != nil {
		return nil, c.refreshError(err)
	}
	return c.replay(ctx, req, token)
}

func (c *Client) replay(ctx context.Context, req *Request, token string) (*Result, error) {
	c.stats.replays.Add(1)
	req.setBearer(token)
	return c.exchange(ctx, req)
}

// refreshOnce is the leader's RefreshFunc. It always returns an *Error on failure, after the
// store has been cleared and the session-expired hook has run.
func (c *Client) refreshOnce(ctx context.Context) (token string, err error) {
	c.stats.refreshes.Add(1)
	if c.hooks.OnRefreshStart != nil {
		c.hooks.OnRefreshStart()
	}

	// One caller cancelling must not fail every request queued behind it.
	detached := context.WithoutCancel(ctx)

	defer func() {
		if r := recover(); r != nil {
			token, err = "", fmt.Errorf("%w: %v", ErrRefreshPanicked, r)
		}
		if err != nil {
			err = c.endSession(detached, err)
		}
		if c.hooks.OnRefreshDone != nil {
			c.hooks.OnRefreshDone(err)
		}
	}()

	rctx, cancel := context.WithTimeout(detached, c.refreshTimeout)
	defer cancel()

	creds, err := c.store.Load(rctx)
	if err != nil {
		return "", fmt.Errorf("load refresh token: %w", err)
	}
	if creds.RefreshToken == "" {
		return "", ErrNoRefreshToken
	}

	req, err := NewRequest(http.MethodPost, c.endpoints.Refresh, map[string]string{
		"refreshToken": creds.RefreshToken,
	})
	if err != nil {
		return "", err
	}
	req.Header.Set(requestIDHeader, uuid.NewString())

	c.log.Info().Msg("access token rejected, refreshing")

	resp, err := c.transport.Send(rctx, req)
	if err != nil {
		return "", c.norm.fromTransport(err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return "", c.norm.fromResponse(resp, false, nil)
	}

	next, err := parseTokens(resp.Body)
	if err != nil {
		return "", err
	}
	if next.RefreshToken == "" && c.rotation == RotationReuse {
		next.RefreshToken = creds.RefreshToken
	}

	if err := c.store.Save(rctx, next); err != nil {
		// The new access token is still valid for the requests waiting on it.
		c.log.Warn().Err(err).Msg("failed to persist refreshed tokens")
	}

	c.log.Info().Msg("access token refreshed")
	return next.AccessToken, nil
}

// endSession clears the store, signals the front end and builds the error every waiter sees.
func (c *Client) endSession(ctx context.Context, cause error) *Error {
	c.stats.refreshFailures.Add(1)
	c.log.Warn().Err(cause).Msg("token refresh failed, clearing session")

	if err := c.store.Clear(ctx); err != nil {
		c.log.Error().Err(err).Msg("failed to clear tokens")
	}
	if c.hooks.OnSessionExpired != nil {
		c.hooks.OnSessionExpired()
	}
	return c.refreshFailure(cause)
}

func (c *Client) refreshFailure(cause error) *Error {
	e := &Error{
		Message: c.norm.msgs.SessionExpired,
		Status:  http.StatusUnauthorized,
		Cause:   cause,
		kinds:   []error{ErrRefreshFailed, ErrSessionExpired},
	}

	var apiErr *Error
	if errors.As(cause, &apiErr) {
		e.Status = apiErr.Status
		e.Data = apiErr.Data
		if apiErr.Status == 0 {
			// No response: the transport's own message is the most useful one.
			e.Message = apiErr.Message
			e.kinds = append(e.kinds, ErrNetwork)
		}
	}
	return e
}

// refreshError maps whatever the coordinator returned to an *Error.
func (c *Client) refreshError(err error) error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return c.norm.fromTransport(err)
	}
	return c.refreshFailure(err)
}

func (c *Client) accessToken(ctx context.Context) string {
	creds, err := c.store.Load(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("failed to load tokens")
		return ""
	}
	return creds.AccessToken
}
