// Package identity implements the Globus-Auth-shaped OAuth2 client used to
// introspect tokens, exchange for dependent tokens, and refresh tokens on
// behalf of a trigger owner.
package identity

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/c360studio/triggers/internal/errs"
	"github.com/c360studio/triggers/internal/trigger"
)

const maxResponseSize = 1 << 20 // 1MB

// Client calls the Globus Auth token-introspection, dependent-token-exchange,
// and refresh endpoints using HTTP Basic auth with a registered client
// id/secret, in the pattern of the Python original's AuthInfo helper.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	logger       *slog.Logger

	scopes *scopeCache
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client (used in tests).
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(cl *Client) { cl.logger = logger }
}

// WithBaseURL overrides the Globus Auth base URL (used in tests).
func WithBaseURL(u string) Option {
	return func(cl *Client) { cl.baseURL = strings.TrimSuffix(u, "/") }
}

// NewClient creates an identity client for the given registered client
// credentials.
func NewClient(clientID, clientSecret string, opts ...Option) *Client {
	c := &Client{
		baseURL:      "https://auth.globus.org",
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		logger:       slog.Default(),
		scopes:       newScopeCache(12 * time.Hour),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IntrospectResult is the subset of a Globus Auth introspection response
// this service needs.
type IntrospectResult struct {
	Active            bool     `json:"active"`
	Sub               string   `json:"sub"`
	IdentitySet       []string `json:"identity_set"`
	Scope             string   `json:"scope"`
}

// Introspect validates token against Globus Auth. It is retried once with
// no client id (the alternate credential the Python original tries) if the
// first attempt fails or reports the token inactive, since some tokens are scoped to
// a different registered client than the one configured here.
func (c *Client) Introspect(ctx context.Context, token string) (*IntrospectResult, error) {
	var lastErr error
	for _, useClientAuth := range []bool{true, false} {
		result, err := c.introspectOnce(ctx, token, useClientAuth)
		if err != nil {
			lastErr = err
			continue
		}
		if result.Active {
			return result, nil
		}
		lastErr = &errs.AuthError{Msg: "token introspection reports inactive"}
	}
	return nil, lastErr
}

func (c *Client) introspectOnce(ctx context.Context, token string, useClientAuth bool) (*IntrospectResult, error) {
	form := url.Values{"token": {token}, "include": {"identity_set"}}
	var result IntrospectResult
	if err := c.post(ctx, "/v2/oauth2/token/introspect", form, useClientAuth, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DependentTokenExchange exchanges a user token for the dependent tokens
// registered against the scopes it carries, keyed by resource server.
func (c *Client) DependentTokenExchange(ctx context.Context, userToken string) (map[string]trigger.Token, error) {
	form := url.Values{
		"grant_type": {"urn:globus:auth:grant_type:dependent_token"},
		"token":      {userToken},
	}
	var raw []dependentTokenResponse
	if err := c.post(ctx, "/v2/oauth2/token", form, true, &raw); err != nil {
		return nil, err
	}

	out := make(map[string]trigger.Token, len(raw))
	for _, r := range raw {
		out[r.ResourceServer] = r.toToken()
	}
	return out, nil
}

// Refresh exchanges a refresh token for a new access token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (trigger.Token, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}
	var raw dependentTokenResponse
	if err := c.post(ctx, "/v2/oauth2/token", form, true, &raw); err != nil {
		return trigger.Token{}, err
	}
	return raw.toToken(), nil
}

// RefreshIfRequired refreshes t in place if it is within its expiry skew.
func (c *Client) RefreshIfRequired(ctx context.Context, t trigger.Token) (trigger.Token, error) {
	if !t.RequiresRefresh() || t.RefreshToken == "" {
		return t, nil
	}
	return c.Refresh(ctx, t.RefreshToken)
}

type dependentTokenResponse struct {
	AccessToken    string `json:"access_token"`
	Scope          string `json:"scope"`
	RefreshToken   string `json:"refresh_token"`
	ExpiresIn      int64  `json:"expires_in"`
	ResourceServer string `json:"resource_server"`
	TokenType      string `json:"token_type"`
}

func (r dependentTokenResponse) toToken() trigger.Token {
	return trigger.Token{
		AccessToken:    r.AccessToken,
		Scope:          r.Scope,
		RefreshToken:   r.RefreshToken,
		ExpirationTime: time.Now().Add(time.Duration(r.ExpiresIn) * time.Second),
		ResourceServer: r.ResourceServer,
		TokenType:      r.TokenType,
	}
}

// post performs a form-encoded POST with retry/backoff on transient
// failures, in the classification style of llm.Client: 5xx, 429 and network
// errors are retried, any other 4xx is fatal.
func (c *Client) post(ctx context.Context, path string, form url.Values, useClientAuth bool, out any) error {
	endpoint := c.baseURL + path

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if useClientAuth {
			req.Header.Set("Authorization", "Basic "+basicAuth(c.clientID, c.clientSecret))
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("identity request failed: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		if err != nil {
			return fmt.Errorf("read identity response: %w", err)
		}

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("identity service returned %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(&errs.AuthError{Msg: fmt.Sprintf("identity service returned %d: %s", resp.StatusCode, truncate(body, 200))})
		}

		if out != nil {
			if err := json.Unmarshal(body, out); err != nil {
				return backoff.Permanent(&errs.UpstreamError{Msg: fmt.Sprintf("decode identity response: %v", err)})
			}
		}
		return nil
	}

	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
	return backoff.Retry(operation, backoff.WithContext(b, ctx))
}

func basicAuth(id, secret string) string {
	return base64.StdEncoding.EncodeToString([]byte(id + ":" + secret))
}

func truncate(b []byte, n int) string {
	s := string(b)
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
