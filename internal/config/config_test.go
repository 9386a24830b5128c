package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `{
		"token": "123:abc",
		"admins": [1, 2],
		"doctors": [3],
		"storage": {"driver": "mongo", "dsn": "mongodb://localhost:27017"}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "123:abc", cfg.Token)
	assert.Equal(t, []int64{1, 2}, cfg.Admins)
	assert.Equal(t, []int64{3}, cfg.Doctors)
	assert.Equal(t, "mongo", cfg.Storage.Driver)
	assert.Equal(t, "mongodb://localhost:27017", cfg.Storage.DSN)
	// untouched keys keep their defaults
	assert.Equal(t, "mirotok", cfg.Storage.Database)
	assert.Equal(t, ":8000", cfg.API.Addr)
	assert.True(t, cfg.IsAdmin(2))
	assert.False(t, cfg.IsAdmin(3))
}

func TestLoadBrokenFile(t *testing.T) {
	_, err := Load(writeConfig(t, `{"token": `))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MIROTOK_BOT_TOKEN", "env-token")
	t.Setenv("MIROTOK_BACKEND_URL", "http://api:8000")
	t.Setenv("MIROTOK_ADMINS", "10, 20,")
	t.Setenv("MIROTOK_STORAGE_DSN", ":memory:")
	t.Setenv("MIROTOK_LIST_LIMIT", "8")

	cfg, err := Load(writeConfig(t, `{"token": "file-token", "admins": [1]}`))
	require.NoError(t, err)
	assert.Equal(t, "env-token", cfg.Token)
	assert.Equal(t, "http://api:8000", cfg.BackendURL)
	assert.Equal(t, []int64{10, 20}, cfg.Admins)
	assert.Equal(t, ":memory:", cfg.Storage.DSN)
	assert.Equal(t, 8, cfg.ListLimit)
}

func TestEnvOverrideBadIDs(t *testing.T) {
	t.Setenv("MIROTOK_DOCTORS", "1,two")
	_, err := Load("")
	assert.ErrorContains(t, err, "MIROTOK_DOCTORS")
}

func TestEnvOverrideBadListLimit(t *testing.T) {
	t.Setenv("MIROTOK_LIST_LIMIT", "0")
	_, err := Load("")
	assert.ErrorContains(t, err, "MIROTOK_LIST_LIMIT")
}
