package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/go-authgate/session-cli/tokenstore"
)

type tokenFields struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// tokenPayload accepts the two shapes the API uses: tokens at the top level, or nested
// under "data" next to the user record.
type tokenPayload struct {
	tokenFields
	Data *tokenFields `json:"data"`
}

// parseTokens turns either shape into canonical Credentials.
func parseTokens(body []byte) (tokenstore.Credentials, error) {
	var p tokenPayload
	if err := json.Unmarshal(bytes.TrimSpace(body), &p); err != nil {
		return tokenstore.Credentials{}, fmt.Errorf("%w: %v", ErrInvalidRefreshResponse, err)
	}

	fields := p.tokenFields
	if fields.AccessToken == "" && p.Data != nil {
		fields = *p.Data
	}
	if fields.AccessToken == "" {
		return tokenstore.Credentials{}, ErrInvalidRefreshResponse
	}
	return tokenstore.Credentials{
		AccessToken:  fields.AccessToken,
		RefreshToken: fields.RefreshToken,
	}, nil
}

func resultBody(res *Result) ([]byte, error) {
	if res.Envelope != nil {
		return json.Marshal(res.Envelope)
	}
	if res.Response != nil {
		return res.Response.Body, nil
	}
	return nil, fmt.Errorf("empty result")
}

// Login authenticates with email and password and stores the issued tokens. A 401 here is
// reported as ErrInvalidCredentials and never triggers a refresh.
func (c *Client) Login(ctx context.Context, email, password string) (*Result, error) {
	return c.authenticate(ctx, c.endpoints.Login, map[string]string{
		"email":    email,
		"password": password,
	})
}

// Register creates an account (school, trainer, ...) from payload and stores the issued tokens.
func (c *Client) Register(ctx context.Context, payload any) (*Result, error) {
	return c.authenticate(ctx, c.endpoints.Register, payload)
}

func (c *Client) authenticate(ctx context.Context, path string, payload any) (*Result, error) {
	res, err := c.Post(ctx, path, payload)
	if err != nil {
		return nil, err
	}

	body, err := resultBody(res)
	if err != nil {
		return nil, err
	}
	creds, err := parseTokens(body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := c.store.Save(ctx, creds); err != nil {
		return nil, fmt.Errorf("failed to save tokens: %w", err)
	}

	c.log.Info().Str("endpoint", path).Msg("session started")
	return res, nil
}

// Logout notifies the server and clears the store. A failed server call is logged only:
// the local session ends either way.
func (c *Client) Logout(ctx context.Context) error {
	creds, err := c.store.Load(ctx)
	if err == nil && creds.AccessToken != "" && c.endpoints.Logout != "" {
		req, _ := NewRequest(http.MethodPost, c.endpoints.Logout, map[string]string{
			"refreshToken": creds.RefreshToken,
		})
		req.retried = true // a stale session is about to be discarded anyway
		if _, err := c.Do(ctx, req); err != nil {
			c.log.Warn().Err(err).Msg("server logout failed")
		}
	}

	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear tokens: %w", err)
	}
	c.log.Info().Msg("session ended")
	return nil
}

// Token implements oauth2.TokenSource over the store, so oauth2-aware code can share the
// client's session. It never refreshes; refresh happens on 401 inside Do.
func (c *Client) Token() (*oauth2.Token, error) {
	creds, err := c.store.Load(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to load tokens: %w", err)
	}
	if creds.AccessToken == "" {
		return nil, fmt.Errorf("%w: no access token stored", ErrSessionExpired)
	}
	return creds.OAuth2Token(), nil
}

var _ oauth2.TokenSource = (*Client)(nil)
