package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithEnvToken(t *testing.T) {
	t.Setenv("CINELOG_TMDB_TOKEN", "env-token")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7788", cfg.ListenAddr)
	assert.Equal(t, BackendLocal, cfg.Backend.Mode)
	assert.Equal(t, "env-token", cfg.TMDB.Token)
	assert.Equal(t, 5*time.Minute, cfg.Cache.SearchTTL)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen_addr: ":9000"
tmdb:
  token: file-token
  language: de
backend:
  mode: remote
  url: https://backend.example
cache:
  search_ttl: 1m
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, "file-token", cfg.TMDB.Token)
	assert.Equal(t, "de", cfg.TMDB.Language)
	assert.Equal(t, BackendRemote, cfg.Backend.Mode)
	assert.Equal(t, time.Minute, cfg.Cache.SearchTTL)
	assert.Equal(t, 30*time.Minute, cfg.Cache.ListTTL, "unset fields keep defaults")
}

func TestValidateRejectsBadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	require.NoError(t, os.WriteFile(path, []byte(`
tmdb:
  token: t
backend:
  mode: remote
`), 0o644))
	_, err := Load(path)
	assert.ErrorContains(t, err, "backend.url")

	require.NoError(t, os.WriteFile(path, []byte(`
backend:
  mode: local
`), 0o644))
	_, err = Load(path)
	assert.ErrorContains(t, err, "tmdb.token")

	require.NoError(t, os.WriteFile(path, []byte(`
tmdb:
  token: t
backend:
  mode: carrier-pigeon
`), 0o644))
	_, err = Load(path)
	assert.ErrorContains(t, err, "unknown backend mode")
}
