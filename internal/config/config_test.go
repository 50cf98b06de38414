package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, "caseflow.yml"), []byte(content), 0o600)
	require.NoError(t, err)
	return dir
}

func TestLoadFrom(t *testing.T) {
	dir := writeConfig(t, `
server:
  addr: ":9090"
  base_url: "https://caseflow.example.com"

database:
  driver: sqlite3
  dsn: "file:caseflow.db"

redis:
  addr: "redis.internal:6379"
  cache_ttl: 5m

auth:
  secret: "s3cret"
  token_ttl: 1h

workers:
  count: 8
  queue: trackers
`)

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "https://caseflow.example.com", cfg.Server.BaseURL)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "file:caseflow.db", cfg.Database.DSN)
	assert.Equal(t, 5*time.Minute, cfg.Redis.CacheTTL)
	assert.Equal(t, "s3cret", cfg.Auth.Secret)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 8, cfg.Workers.Count)
}

func TestLoadFrom_Defaults(t *testing.T) {
	dir := writeConfig(t, `
database:
  dsn: "postgres://localhost/caseflow"
auth:
  secret: "s3cret"
`)

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 2*time.Minute, cfg.Redis.CacheTTL)
	assert.Equal(t, "trackers", cfg.Workers.Queue)
	assert.Equal(t, 4, cfg.Workers.Count)
}

func TestLoadFrom_RejectsUnknownDriver(t *testing.T) {
	dir := writeConfig(t, `
database:
  driver: oracle
  dsn: "x"
auth:
  secret: "s3cret"
`)

	_, err := LoadFrom(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "driver")
}

func TestLoadFrom_RejectsTrailingSlashBaseURL(t *testing.T) {
	dir := writeConfig(t, `
server:
  base_url: "https://caseflow.example.com/"
database:
  dsn: "x"
auth:
  secret: "s3cret"
`)

	_, err := LoadFrom(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base_url")
}

func TestLoadFrom_RequiresTLSPair(t *testing.T) {
	dir := writeConfig(t, `
server:
  tls_cert_file: "/etc/ssl/cert.pem"
database:
  dsn: "x"
auth:
  secret: "s3cret"
`)

	_, err := LoadFrom(dir)
	require.Error(t, err)
}

func TestLoadFrom_EnvOverride(t *testing.T) {
	dir := writeConfig(t, `
database:
  dsn: "postgres://localhost/caseflow"
auth:
  secret: "s3cret"
`)

	t.Setenv("CASEFLOW_SERVER_ADDR", ":7070")

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Addr)
}
