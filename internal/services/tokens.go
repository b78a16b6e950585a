package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"studyvault/internal/domain"
)

const (
	PurposeVerify = "verify"
	PurposeReset  = "reset"
)

var (
	ErrInvalidToken = fmt.Errorf("%w: invalid token", domain.ErrUnauthorized)
	ErrTokenExpired = fmt.Errorf("%w: token expired", domain.ErrUnauthorized)
	ErrTokenPurpose = fmt.Errorf("%w: token issued for another purpose", domain.ErrUnauthorized)
	ErrTokenUsed    = fmt.Errorf("%w: token already used", domain.ErrUnauthorized)
)

// Claims carry the account a single-use token was issued for.
type Claims struct {
	jwt.RegisteredClaims
	Purpose string `json:"purpose"`
	Email   string `json:"email,omitempty"`
}

// TokenIssuer signs and checks the verify and reset tokens mailed to users.
// When a ledger is attached every token can be redeemed once.
type TokenIssuer struct {
	secret []byte
	ledger *Ledger
	now    func() time.Time
}

func NewTokenIssuer(secret string, ledger *Ledger) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ledger: ledger, now: time.Now}
}

func (ti *TokenIssuer) Issue(subjectID, purpose string, ttl time.Duration) (string, error) {
	return ti.issue(subjectID, "", purpose, ttl)
}

// IssueFor also embeds the account email so the redeeming side can mail
// the owner without another lookup.
func (ti *TokenIssuer) IssueFor(acct Account, purpose string, ttl time.Duration) (string, error) {
	return ti.issue(acct.ID, acct.Email, purpose, ttl)
}

func (ti *TokenIssuer) issue(subjectID, email, purpose string, ttl time.Duration) (string, error) {
	now := ti.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Purpose: purpose,
		Email:   email,
	})

	signed, err := token.SignedString(ti.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, expiry and purpose and returns the subject id
// without consuming the token.
func (ti *TokenIssuer) Verify(tokenString, purpose string) (string, error) {
	claims, err := ti.Inspect(tokenString, purpose)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// Inspect is Verify returning the full claims.
func (ti *TokenIssuer) Inspect(tokenString, purpose string) (*Claims, error) {
	claims, err := ti.parse(tokenString, purpose)
	if err != nil {
		return nil, err
	}
	if ti.ledger != nil {
		used, err := ti.ledger.Used(claims.ID)
		if err != nil {
			return nil, err
		}
		if used {
			return nil, ErrTokenUsed
		}
	}
	return claims, nil
}

// Redeem marks the token as used. A second redemption fails with
// ErrTokenUsed.
func (ti *TokenIssuer) Redeem(tokenString, purpose string) (string, error) {
	claims, err := ti.parse(tokenString, purpose)
	if err != nil {
		return "", err
	}
	if ti.ledger != nil {
		if err := ti.ledger.Consume(claims.ID, claims.ExpiresAt.Time); err != nil {
			return "", err
		}
	}
	return claims.Subject, nil
}

func (ti *TokenIssuer) parse(tokenString, purpose string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return ti.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(ti.now),
		jwt.WithExpirationRequired(),
	)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, ErrTokenExpired
	}
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	if claims.Purpose != purpose {
		return nil, ErrTokenPurpose
	}
	return claims, nil
}
