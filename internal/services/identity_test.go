package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyvault/internal/config"
	"studyvault/internal/domain"
)

func newIdentityServer(t *testing.T, handler http.HandlerFunc) *IdentityClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewIdentityClient(config.Config{
		IdentityURL:        srv.URL + "/",
		IdentityAPIKey:     "anon",
		IdentityServiceKey: "service",
	})
}

func TestIdentityExchangeCredentials(t *testing.T) {
	client := newIdentityServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/token", r.URL.Path)
		assert.Equal(t, "password", r.URL.Query().Get("grant_type"))
		assert.Equal(t, "anon", r.Header.Get("apikey"))

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["password"] != "correct-horse" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid login credentials"}`))
			return
		}
		w.Write([]byte(`{"access_token":"at","refresh_token":"rt","token_type":"bearer","expires_in":3600,"user":{"id":"u1","email":"a@example.com"}}`))
	})

	sess, err := client.ExchangeCredentials(context.Background(), "a@example.com", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, "at", sess.AccessToken)
	assert.Equal(t, "u1", sess.Account.ID)

	_, err = client.ExchangeCredentials(context.Background(), "a@example.com", "wrong")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.ErrorIs(t, err, domain.ErrUpstream)
	assert.Contains(t, err.Error(), "Invalid login credentials")
}

func TestIdentityAdminCallsUseServiceKey(t *testing.T) {
	var confirmed map[string]any
	client := newIdentityServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer service", r.Header.Get("Authorization"))
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/admin/users":
			w.Write([]byte(`{"users":[{"id":"u0","email":"other@example.com"},{"id":"u1","email":"A@example.com"}]}`))
		case r.Method == http.MethodPut && r.URL.Path == "/admin/users/u1":
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&confirmed))
			w.Write([]byte(`{}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()

	acct, found, err := client.FindUserByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "u1", acct.ID)

	_, found, err = client.FindUserByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, client.SetConfirmed(ctx, "u1", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)))
	assert.Equal(t, true, confirmed["email_confirm"])

	err = client.SetConfirmed(ctx, "missing", time.Now())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIdentityServerErrorIsUpstream(t *testing.T) {
	client := newIdentityServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.Authenticate(context.Background(), "at")
	assert.ErrorIs(t, err, domain.ErrUpstream)
	assert.NotErrorIs(t, err, domain.ErrUnauthorized)
}
