package services

import (
	"context"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"studyvault/internal/config"
	"studyvault/internal/domain"
	"studyvault/internal/logger"
)

const minPasswordLength = 8

// AuthService runs the account flows on top of the identity provider. It
// never keeps credentials; it only signs the one-shot links it mails out.
type AuthService struct {
	log       *logger.Logger
	idp       IdentityProvider
	mailer    Mailer
	tokens    *TokenIssuer
	baseURL   string
	verifyTTL time.Duration
	resetTTL  time.Duration
	now       func() time.Time
}

func NewAuthService(cfg config.Config, idp IdentityProvider, mailer Mailer, tokens *TokenIssuer, log *logger.Logger) *AuthService {
	return &AuthService{
		log:       log.With("service", "AuthService"),
		idp:       idp,
		mailer:    mailer,
		tokens:    tokens,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		verifyTTL: cfg.VerifyTTL,
		resetTTL:  cfg.ResetTTL,
		now:       time.Now,
	}
}

func (s *AuthService) SignUp(ctx context.Context, email, password string) (Account, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return Account{}, err
	}
	if err := checkPassword(password); err != nil {
		return Account{}, err
	}

	acct, err := s.idp.CreateAccount(ctx, email, password)
	if err != nil {
		return Account{}, err
	}
	if acct.Email == "" {
		acct.Email = email
	}

	token, err := s.tokens.IssueFor(acct, PurposeVerify, s.verifyTTL)
	if err != nil {
		s.log.Error("issue verify token failed", "account", acct.ID, "error", err)
		return acct, nil
	}
	err = s.mailer.Send(ctx, Message{
		To:       acct.Email,
		Template: TemplateWelcome,
		Data: map[string]any{
			"Link":      s.link("/api/auth/verify", token),
			"ExpiresIn": s.verifyTTL.String(),
		},
	})
	if err != nil {
		s.log.Warn("welcome mail failed", "account", acct.ID, "error", err)
	}

	s.log.Info("account created", "account", acct.ID)
	return acct, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return Session{}, err
	}
	if password == "" {
		return Session{}, fmt.Errorf("%w: password is required", domain.ErrValidation)
	}
	return s.idp.ExchangeCredentials(ctx, email, password)
}

func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return Session{}, fmt.Errorf("%w: refresh token is required", domain.ErrValidation)
	}
	return s.idp.RefreshSession(ctx, refreshToken)
}

// VerifyEmail confirms the account a verify link was issued for. The link
// is consumed only once the provider accepted the confirmation.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) error {
	id, err := s.tokens.Verify(token, PurposeVerify)
	if err != nil {
		return err
	}
	if err := s.idp.SetConfirmed(ctx, id, s.now()); err != nil {
		return err
	}
	if _, err := s.tokens.Redeem(token, PurposeVerify); err != nil {
		return err
	}
	s.log.Info("email verified", "account", id)
	return nil
}

// RequestPasswordReset mails a reset link. An unknown address succeeds
// silently so the endpoint cannot be used to probe for accounts.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	acct, found, err := s.idp.FindUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !found {
		s.log.Info("password reset for unknown email ignored")
		return nil
	}
	if acct.Email == "" {
		acct.Email = email
	}

	token, err := s.tokens.IssueFor(acct, PurposeReset, s.resetTTL)
	if err != nil {
		return err
	}
	return s.mailer.Send(ctx, Message{
		To:       acct.Email,
		Template: TemplateReset,
		Data: map[string]any{
			"Link":      s.link("/reset-password", token),
			"ExpiresIn": s.resetTTL.String(),
		},
	})
}

func (s *AuthService) ResetPassword(ctx context.Context, token, password string) error {
	if err := checkPassword(password); err != nil {
		return err
	}
	claims, err := s.tokens.Inspect(token, PurposeReset)
	if err != nil {
		return err
	}
	if err := s.idp.SetPassword(ctx, claims.Subject, password); err != nil {
		return err
	}
	if _, err := s.tokens.Redeem(token, PurposeReset); err != nil {
		return err
	}
	s.log.Info("password reset", "account", claims.Subject)

	if claims.Email == "" {
		return nil
	}
	err = s.mailer.Send(ctx, Message{
		To:       claims.Email,
		Template: TemplateProfileChanged,
		Data:     map[string]any{"ChangedAt": s.now().UTC().Format(time.RFC1123)},
	})
	if err != nil {
		s.log.Warn("profile-changed mail failed", "account", claims.Subject, "error", err)
	}
	return nil
}

func (s *AuthService) link(path, token string) string {
	return s.baseURL + path + "?token=" + url.QueryEscape(token)
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: invalid email", domain.ErrValidation)
	}
	return email, nil
}

func checkPassword(password string) error {
	if len(password) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", domain.ErrValidation, minPasswordLength)
	}
	return nil
}
