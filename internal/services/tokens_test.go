package services

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyvault/internal/domain"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := OpenLedger(filepath.Join(t.TempDir(), "tokens.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestIssueAndVerify(t *testing.T) {
	ti := NewTokenIssuer("secret", nil)

	tok, err := ti.Issue("acct-1", PurposeVerify, time.Hour)
	require.NoError(t, err)

	id, err := ti.Verify(tok, PurposeVerify)
	require.NoError(t, err)
	assert.Equal(t, "acct-1", id)
}

func TestVerifyRejects(t *testing.T) {
	ti := NewTokenIssuer("secret", nil)
	tok, err := ti.Issue("acct-1", PurposeVerify, time.Hour)
	require.NoError(t, err)

	_, err = ti.Verify(tok, PurposeReset)
	assert.ErrorIs(t, err, ErrTokenPurpose)

	_, err = NewTokenIssuer("other", nil).Verify(tok, PurposeVerify)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ti.Verify("not-a-token", PurposeVerify)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	expired, err := ti.Issue("acct-1", PurposeVerify, time.Hour)
	require.NoError(t, err)
	ti.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = ti.Verify(expired, PurposeVerify)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestRedeemIsSingleUse(t *testing.T) {
	ti := NewTokenIssuer("secret", openTestLedger(t))
	tok, err := ti.IssueFor(Account{ID: "acct-1", Email: "a@example.com"}, PurposeReset, time.Hour)
	require.NoError(t, err)

	claims, err := ti.Inspect(tok, PurposeReset)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", claims.Email)

	id, err := ti.Redeem(tok, PurposeReset)
	require.NoError(t, err)
	assert.Equal(t, "acct-1", id)

	_, err = ti.Redeem(tok, PurposeReset)
	assert.ErrorIs(t, err, ErrTokenUsed)
	_, err = ti.Verify(tok, PurposeReset)
	assert.ErrorIs(t, err, ErrTokenUsed)
}

func TestLedgerPrunesExpired(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.db")
	l, err := OpenLedger(path)
	require.NoError(t, err)

	require.NoError(t, l.Consume("old", time.Now().Add(-time.Minute)))
	require.NoError(t, l.Consume("live", time.Now().Add(time.Hour)))
	require.NoError(t, l.Close())

	l, err = OpenLedger(path)
	require.NoError(t, err)
	defer l.Close()

	used, err := l.Used("old")
	require.NoError(t, err)
	assert.False(t, used)
	used, err = l.Used("live")
	require.NoError(t, err)
	assert.True(t, used)
}
