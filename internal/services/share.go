package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"studyvault/internal/config"
	"studyvault/internal/domain"
)

const sharePrefix = "/shared/"

func SignURL(path string, expiresAt int64, secret string) string {
	signature := computeSignature(path, expiresAt, secret)
	return fmt.Sprintf("%s?exp=%d&sig=%s", path, expiresAt, signature)
}

func ValidateSignature(path string, expiresAt int64, signature, secret string) bool {
	expected := computeSignature(path, expiresAt, secret)
	return hmac.Equal([]byte(signature), []byte(expected))
}

// ShareService hands out expiring download links for stored files. The link
// key encodes the file reference, so nothing is stored per link.
type ShareService struct {
	secret  string
	baseURL string
	ttl     time.Duration
	now     func() time.Time
}

func NewShareService(cfg config.Config) *ShareService {
	return &ShareService{
		secret:  cfg.ShareSecret,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		ttl:     cfg.ShareTTL,
		now:     time.Now,
	}
}

func (s *ShareService) Generate(ref domain.FileRef) (string, time.Time, error) {
	if ref.StoredFileName == "" || ref.Subject == "" {
		return "", time.Time{}, fmt.Errorf("%w: file reference incomplete", domain.ErrValidation)
	}
	expiresAt := s.now().Add(s.ttl)
	signedPath := SignURL(sharePrefix+EncodeShareKey(ref), expiresAt.Unix(), s.secret)

	return s.baseURL + signedPath, expiresAt, nil
}

// Validate checks a share link and returns the file it points at.
func (s *ShareService) Validate(key string, expires int64, signature string) (domain.FileRef, error) {
	if expires < s.now().Unix() {
		return domain.FileRef{}, fmt.Errorf("%w: link expired", domain.ErrUnauthorized)
	}
	if !ValidateSignature(sharePrefix+key, expires, signature, s.secret) {
		return domain.FileRef{}, fmt.Errorf("%w: invalid signature", domain.ErrUnauthorized)
	}
	return DecodeShareKey(key)
}

func EncodeShareKey(ref domain.FileRef) string {
	raw := strings.Join([]string{ref.Subject, string(ref.Category), ref.Unit, ref.StoredFileName}, "\x00")
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func DecodeShareKey(key string) (domain.FileRef, error) {
	raw, err := base64.RawURLEncoding.DecodeString(key)
	if err != nil {
		return domain.FileRef{}, fmt.Errorf("%w: malformed share key", domain.ErrValidation)
	}
	parts := strings.Split(string(raw), "\x00")
	if len(parts) != 4 {
		return domain.FileRef{}, fmt.Errorf("%w: malformed share key", domain.ErrValidation)
	}
	return domain.FileRef{
		Subject:        parts[0],
		Category:       domain.Category(parts[1]),
		Unit:           parts[2],
		StoredFileName: parts[3],
	}, nil
}

func computeSignature(path string, expiresAt int64, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(fmt.Sprintf("%s:%d", path, expiresAt)))
	sig := h.Sum(nil)
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(sig)
}
