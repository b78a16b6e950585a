package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"studyvault/internal/config"
	"studyvault/internal/domain"
)

const identityTimeout = 15 * time.Second

type Account struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	ConfirmedAt *time.Time `json:"email_confirmed_at,omitempty"`
}

type Session struct {
	AccessToken  string  `json:"access_token"`
	RefreshToken string  `json:"refresh_token"`
	TokenType    string  `json:"token_type"`
	ExpiresIn    int     `json:"expires_in"`
	Account      Account `json:"user"`
}

// IdentityProvider owns accounts and sessions. The portal never stores
// passwords itself.
type IdentityProvider interface {
	CreateAccount(ctx context.Context, email, password string) (Account, error)
	ExchangeCredentials(ctx context.Context, email, password string) (Session, error)
	RefreshSession(ctx context.Context, refreshToken string) (Session, error)
	FindUserByEmail(ctx context.Context, email string) (Account, bool, error)
	SetConfirmed(ctx context.Context, id string, at time.Time) error
	SetPassword(ctx context.Context, id, password string) error
	Authenticate(ctx context.Context, accessToken string) (Account, error)
}

// IdentityClient talks to a GoTrue compatible auth server. Public endpoints
// use the anon API key, admin endpoints the service key.
type IdentityClient struct {
	baseURL    string
	apiKey     string
	serviceKey string
	httpClient *http.Client
}

func NewIdentityClient(cfg config.Config) *IdentityClient {
	return &IdentityClient{
		baseURL:    strings.TrimRight(cfg.IdentityURL, "/"),
		apiKey:     cfg.IdentityAPIKey,
		serviceKey: cfg.IdentityServiceKey,
		httpClient: &http.Client{Timeout: identityTimeout},
	}
}

func (c *IdentityClient) CreateAccount(ctx context.Context, email, password string) (Account, error) {
	var acct Account
	err := c.call(ctx, http.MethodPost, "/signup", "", map[string]string{
		"email":    email,
		"password": password,
	}, &acct, domain.ErrValidation)
	return acct, err
}

func (c *IdentityClient) ExchangeCredentials(ctx context.Context, email, password string) (Session, error) {
	var sess Session
	err := c.call(ctx, http.MethodPost, "/token?grant_type=password", "", map[string]string{
		"email":    email,
		"password": password,
	}, &sess, domain.ErrUnauthorized)
	return sess, err
}

func (c *IdentityClient) RefreshSession(ctx context.Context, refreshToken string) (Session, error) {
	var sess Session
	err := c.call(ctx, http.MethodPost, "/token?grant_type=refresh_token", "", map[string]string{
		"refresh_token": refreshToken,
	}, &sess, domain.ErrUnauthorized)
	return sess, err
}

func (c *IdentityClient) FindUserByEmail(ctx context.Context, email string) (Account, bool, error) {
	var page struct {
		Users []Account `json:"users"`
	}
	path := "/admin/users?filter=" + url.QueryEscape(email)
	if err := c.call(ctx, http.MethodGet, path, c.serviceKey, nil, &page, domain.ErrUnauthorized); err != nil {
		return Account{}, false, err
	}
	for _, u := range page.Users {
		if strings.EqualFold(u.Email, email) {
			return u, true, nil
		}
	}
	return Account{}, false, nil
}

func (c *IdentityClient) SetConfirmed(ctx context.Context, id string, at time.Time) error {
	return c.call(ctx, http.MethodPut, "/admin/users/"+url.PathEscape(id), c.serviceKey, map[string]any{
		"email_confirm": true,
		"app_metadata":  map[string]string{"email_verified_at": at.UTC().Format(time.RFC3339)},
	}, nil, domain.ErrNotFound)
}

func (c *IdentityClient) SetPassword(ctx context.Context, id, password string) error {
	return c.call(ctx, http.MethodPut, "/admin/users/"+url.PathEscape(id), c.serviceKey, map[string]string{
		"password": password,
	}, nil, domain.ErrValidation)
}

func (c *IdentityClient) Authenticate(ctx context.Context, accessToken string) (Account, error) {
	var acct Account
	err := c.call(ctx, http.MethodGet, "/user", accessToken, nil, &acct, domain.ErrUnauthorized)
	return acct, err
}

// call sends one JSON request. bearer defaults to the API key. Every failure
// wraps ErrUpstream; a 4xx reply also wraps clientErr.
func (c *IdentityClient) call(ctx context.Context, method, path, bearer string, body, out any, clientErr error) error {
	var reader io.Reader
	if body != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return fmt.Errorf("encode identity payload: %w", err)
		}
		reader = buf
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%w: create identity request: %w", domain.ErrUpstream, err)
	}
	if bearer == "" {
		bearer = c.apiKey
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: identity request failed: %w", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return c.decodeAPIError(resp, clientErr)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode identity response: %w", domain.ErrUpstream, err)
	}
	return nil
}

func (c *IdentityClient) decodeAPIError(resp *http.Response, clientErr error) error {
	var apiErr struct {
		Error       string `json:"error"`
		Description string `json:"error_description"`
		Msg         string `json:"msg"`
		Message     string `json:"message"`
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	msg := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &apiErr); err == nil {
		for _, m := range []string{apiErr.Description, apiErr.Msg, apiErr.Message, apiErr.Error} {
			if m != "" {
				msg = m
				break
			}
		}
	}

	if resp.StatusCode < http.StatusInternalServerError && resp.StatusCode != http.StatusTooManyRequests {
		return fmt.Errorf("%w: %w: identity api status %d: %s", domain.ErrUpstream, clientErr, resp.StatusCode, msg)
	}
	return fmt.Errorf("%w: identity api status %d: %s", domain.ErrUpstream, resp.StatusCode, msg)
}
