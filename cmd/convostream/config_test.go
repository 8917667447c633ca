package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltairaLabs/convostream/pkg/config"
	"github.com/AltairaLabs/convostream/runtime/auth"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, config.Default().APIURL, cfg.APIURL)
	assert.Equal(t, config.TokenPlacementQuery, cfg.TokenPlacement)
	assert.Equal(t, 30*time.Second, cfg.HeartbeatInterval)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("CONVOSTREAM_API_URL", "https://api.example.com")
	t.Setenv("CONVOSTREAM_TOKEN_PLACEMENT", "header")
	t.Setenv("CONVOSTREAM_CREDENTIAL_STORE_BACKEND", "memory")
	t.Setenv("CONVOSTREAM_HEARTBEAT_INTERVAL", "0")

	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com", cfg.APIURL)
	assert.Equal(t, config.TokenPlacementHeader, cfg.TokenPlacement)
	assert.Equal(t, config.BackendMemory, cfg.CredentialStore.Backend)
	assert.Zero(t, cfg.HeartbeatInterval)
}

func TestLoadConfig_File(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
stream_url: wss://stream.example.com/ws
dial_timeout: 3s
credential_store:
  backend: redis
  redis_addr: localhost:6379
  profile: work
`), 0o600))

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "wss://stream.example.com/ws", cfg.StreamURL)
	assert.Equal(t, 3*time.Second, cfg.DialTimeout)
	assert.Equal(t, config.BackendRedis, cfg.CredentialStore.Backend)
	assert.Equal(t, "convostream", cfg.CredentialStore.RedisPrefix)
	assert.Equal(t, "work", cfg.CredentialStore.Profile)
}

func TestLoadConfig_EnvBeatsFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api_url: http://file.example.com\n"), 0o600))
	t.Setenv("CONVOSTREAM_API_URL", "http://env.example.com")

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "http://env.example.com", cfg.APIURL)
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	t.Setenv("CONVOSTREAM_STREAM_URL", "http://not-a-websocket")
	_, err = loadConfig("")
	require.Error(t, err)
}

func TestLoadEnvFile(t *testing.T) {
	require.NoError(t, loadEnvFile(""))
	require.NoError(t, loadEnvFile(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("CONVOSTREAM_TEST_ENV_FILE=loaded\n"), 0o600))
	t.Setenv("CONVOSTREAM_TEST_ENV_FILE", "")
	require.NoError(t, os.Unsetenv("CONVOSTREAM_TEST_ENV_FILE"))

	require.NoError(t, loadEnvFile(path))
	assert.Equal(t, "loaded", os.Getenv("CONVOSTREAM_TEST_ENV_FILE"))
}

func TestNewStore_RedisProfile(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Default()
	cfg.CredentialStore.Backend = config.BackendRedis
	cfg.CredentialStore.RedisAddr = mr.Addr()
	cfg.CredentialStore.Profile = "work"

	a := &app{cfg: cfg}
	store, err := a.newStore()
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.redis.Close() })

	cred := auth.Credential{AccessToken: "a", RefreshToken: "r", AccessTokenExpiresAtMillis: 1, Subject: "alice"}
	require.NoError(t, store.Save(context.Background(), cred))
	assert.True(t, mr.Exists("convostream:credential:work"))
}
