package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("DATA_DIR", dir)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, filepath.Join(dir, "storage"), cfg.StorageDir)
	assert.Equal(t, filepath.Join(dir, "file-metadata.json"), cfg.MetadataFile)
	assert.Equal(t, filepath.Join(dir, "storage", "portal-backup.json"), cfg.BackupFile)
	assert.Equal(t, int64(50*1024*1024), cfg.MaxUploadBytes)
	assert.Equal(t, 24*time.Hour, cfg.ShareTTL)
	assert.False(t, cfg.LegacyCategoryPassthrough)
	assert.True(t, cfg.RequireAuth)
}

func TestLoadConfigOverlayAndEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	overlay := filepath.Join(dir, "vault.yaml")
	require.NoError(t, os.WriteFile(overlay, []byte(
		"PORT: \"9000\"\nMAX_UPLOAD_MB: \"5\"\nLEGACY_CATEGORY_PASSTHROUGH: \"true\"\n"), 0o600))

	t.Setenv("CONFIG_FILE", overlay)
	t.Setenv("DATA_DIR", dir)
	t.Setenv("PORT", "7000")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "7000", cfg.Port, "env must win over the overlay")
	assert.Equal(t, int64(5*1024*1024), cfg.MaxUploadBytes)
	assert.True(t, cfg.LegacyCategoryPassthrough)
}

func TestLoadConfigRejectsBadNumbers(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("MAX_UPLOAD_MB", "lots")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAX_UPLOAD_MB")
}
