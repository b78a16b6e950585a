package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port    string
	BaseURL string
	LogMode string

	DataDir        string
	StorageDir     string
	MetadataFile   string
	BackupFile     string
	MaxUploadBytes int64

	// Accept unknown categories as a plain subdirectory when a unit is given.
	LegacyCategoryPassthrough bool
	RequireAuth               bool

	ShareSecret string
	ShareTTL    time.Duration

	TokenSecret     string
	VerifyTTL       time.Duration
	ResetTTL        time.Duration
	TokenLedgerFile string

	IdentityURL        string
	IdentityAPIKey     string
	IdentityServiceKey string

	MailAPIKey  string
	MailBaseURL string
	MailFrom    string
}

// fileConfig mirrors the keys accepted in the optional CONFIG_FILE overlay.
// Environment variables still win over anything set here.
type fileConfig map[string]string

func LoadConfig() (Config, error) {
	overlay, err := loadOverlay(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return Config{}, err
	}
	get := func(key, fallback string) string {
		if v, ok := overlay[key]; ok && v != "" {
			fallback = v
		}
		return envOrDefault(key, fallback)
	}

	cfg := Config{}

	cfg.Port = get("PORT", "8080")
	cfg.BaseURL = get("BASE_URL", fmt.Sprintf("http://localhost:%s", cfg.Port))
	cfg.LogMode = get("LOG_MODE", "dev")

	cfg.DataDir = get("DATA_DIR", "data")
	cfg.StorageDir = get("STORAGE_DIR", "")
	cfg.MetadataFile = get("METADATA_FILE", "file-metadata.json")
	cfg.BackupFile = get("BACKUP_FILE", "portal-backup.json")

	cfg.ShareSecret = get("SHARE_SECRET", "change-me")
	cfg.TokenSecret = get("TOKEN_SECRET", "change-me-too")
	cfg.TokenLedgerFile = get("TOKEN_LEDGER_FILE", "tokens.db")

	cfg.IdentityURL = get("IDP_URL", "http://localhost:9999")
	cfg.IdentityAPIKey = get("IDP_API_KEY", "")
	cfg.IdentityServiceKey = get("IDP_SERVICE_KEY", "")

	cfg.MailAPIKey = get("MAIL_API_KEY", "")
	cfg.MailBaseURL = get("MAIL_BASE_URL", "https://api.sendgrid.com")
	cfg.MailFrom = get("MAIL_FROM", "no-reply@localhost")

	if cfg.LegacyCategoryPassthrough, err = strconv.ParseBool(get("LEGACY_CATEGORY_PASSTHROUGH", "false")); err != nil {
		return Config{}, fmt.Errorf("parse LEGACY_CATEGORY_PASSTHROUGH: %w", err)
	}
	if cfg.RequireAuth, err = strconv.ParseBool(get("REQUIRE_AUTH", "true")); err != nil {
		return Config{}, fmt.Errorf("parse REQUIRE_AUTH: %w", err)
	}

	shareTTLSeconds, err := parseInt(get("SHARE_TTL_SECONDS", ""), 86400)
	if err != nil {
		return Config{}, fmt.Errorf("parse SHARE_TTL_SECONDS: %w", err)
	}
	cfg.ShareTTL = time.Duration(shareTTLSeconds) * time.Second

	verifyMinutes, err := parseInt(get("VERIFY_TTL_MINUTES", ""), 24*60)
	if err != nil {
		return Config{}, fmt.Errorf("parse VERIFY_TTL_MINUTES: %w", err)
	}
	cfg.VerifyTTL = time.Duration(verifyMinutes) * time.Minute

	resetMinutes, err := parseInt(get("RESET_TTL_MINUTES", ""), 30)
	if err != nil {
		return Config{}, fmt.Errorf("parse RESET_TTL_MINUTES: %w", err)
	}
	cfg.ResetTTL = time.Duration(resetMinutes) * time.Minute

	maxUploadMB, err := parseInt(get("MAX_UPLOAD_MB", ""), 50)
	if err != nil {
		return Config{}, fmt.Errorf("parse MAX_UPLOAD_MB: %w", err)
	}
	cfg.MaxUploadBytes = maxUploadMB * 1024 * 1024

	if err := cfg.resolvePaths(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// resolvePaths makes every on-disk location absolute. Relative metadata and
// ledger files live under DataDir; the backup document lives inside the
// storage directory.
func (c *Config) resolvePaths() error {
	absDataDir, err := filepath.Abs(c.DataDir)
	if err != nil {
		return fmt.Errorf("resolve data dir: %w", err)
	}
	c.DataDir = absDataDir

	if c.StorageDir == "" {
		c.StorageDir = filepath.Join(c.DataDir, "storage")
	}
	if c.StorageDir, err = filepath.Abs(c.StorageDir); err != nil {
		return fmt.Errorf("resolve storage dir: %w", err)
	}

	if !filepath.IsAbs(c.MetadataFile) {
		c.MetadataFile = filepath.Join(c.DataDir, c.MetadataFile)
	}
	if !filepath.IsAbs(c.BackupFile) {
		c.BackupFile = filepath.Join(c.StorageDir, c.BackupFile)
	}
	if !filepath.IsAbs(c.TokenLedgerFile) {
		c.TokenLedgerFile = filepath.Join(c.DataDir, c.TokenLedgerFile)
	}
	return nil
}

func loadOverlay(path string) (fileConfig, error) {
	if path == "" {
		return fileConfig{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	overlay := fileConfig{}
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return nil, fmt.Errorf("decode config file: %w", err)
	}
	return overlay, nil
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func parseInt(value string, fallback int64) (int64, error) {
	if value == "" {
		return fallback, nil
	}

	num, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, err
	}
	return num, nil
}
