package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunilpie-kumar/kustom-backend/internal/hooks"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, 5000, cfg.Gateway.Port)
	assert.Equal(t, "loopback", cfg.Gateway.Bind)
	assert.Equal(t, 100, cfg.Gateway.RateLimit.Requests)
	assert.Equal(t, 900, cfg.Gateway.RateLimit.WindowSeconds)
	assert.Equal(t, 5000, cfg.Chat.MaxContentRunes)
	assert.Equal(t, 10, cfg.Chat.MaxAttachments)
	assert.Equal(t, int64(2<<20), cfg.Attachments.MaxBytes)
	assert.Equal(t, []string{"image/jpeg", "image/png", "application/pdf"}, cfg.Attachments.AllowedTypes)
	assert.Equal(t, 64, cfg.Realtime.SendBuffer)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "pretty", cfg.Logging.ConsoleStyle)
	assert.Empty(t, cfg.Auth.JWTSecret)
	assert.False(t, cfg.Dev.AutoRestart)
}

func TestDefaults_AllowedTypesNotShared(t *testing.T) {
	cfg := Defaults()
	cfg.Attachments.AllowedTypes[0] = "text/plain"
	assert.Equal(t, "image/jpeg", Defaults().Attachments.AllowedTypes[0])
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	// Should return defaults
	assert.Equal(t, 5000, cfg.Gateway.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadValidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yaml := `
gateway:
  port: 9999
  bind: lan
  allowedOrigins:
    - https://app.kustom.example
  rateLimit:
    requests: 20
    windowSeconds: 60
auth:
  jwtSecret: a-very-long-test-secret
  issuer: kustom
store:
  path: /var/lib/kustom/chat.db
chat:
  maxContentRunes: 2000
attachments:
  maxBytes: 1048576
  allowedTypes: [image/png]
logging:
  level: debug
  consoleStyle: json
hooks:
  messageSent:
    - command: "cat >> /tmp/messages.log"
      timeout: 500
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Gateway.Port)
	assert.Equal(t, "lan", cfg.Gateway.Bind)
	assert.Equal(t, []string{"https://app.kustom.example"}, cfg.Gateway.AllowedOrigins)
	assert.Equal(t, 20, cfg.Gateway.RateLimit.Requests)
	assert.Equal(t, 60, cfg.Gateway.RateLimit.WindowSeconds)
	assert.Equal(t, "a-very-long-test-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, "kustom", cfg.Auth.Issuer)
	assert.Equal(t, "/var/lib/kustom/chat.db", cfg.Store.Path)
	assert.Equal(t, 2000, cfg.Chat.MaxContentRunes)
	assert.Equal(t, 10, cfg.Chat.MaxAttachments, "unset fields keep defaults")
	assert.Equal(t, int64(1<<20), cfg.Attachments.MaxBytes)
	assert.Equal(t, []string{"image/png"}, cfg.Attachments.AllowedTypes)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.ConsoleStyle)

	require.Len(t, cfg.Hooks.MessageSent, 1)
	assert.Equal(t, 500, cfg.Hooks.MessageSent[0].Timeout)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{{invalid yaml"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("KUSTOM_GATEWAY_PORT", "12345")
	t.Setenv("KUSTOM_LOG_LEVEL", "TRACE")
	t.Setenv("KUSTOM_STORE_PATH", "/tmp/k.db")
	t.Setenv("KUSTOM_DEV_AUTORESTART", "1")

	cfg, err := Load("/nonexistent/config.yaml")
	require.NoError(t, err)

	assert.Equal(t, 12345, cfg.Gateway.Port)
	assert.Equal(t, "trace", cfg.Logging.Level)
	assert.Equal(t, "/tmp/k.db", cfg.Store.Path)
	assert.True(t, cfg.Dev.AutoRestart)
}

func TestLoadJWTSecretFromEnv(t *testing.T) {
	t.Setenv("KUSTOM_JWT_SECRET", "")
	t.Setenv("JWT_SECRET", "fallback-secret-value")

	cfg, err := Load("/nonexistent/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "fallback-secret-value", cfg.Auth.JWTSecret)

	t.Setenv("KUSTOM_JWT_SECRET", "preferred-secret-value")
	cfg, err = Load("/nonexistent/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "preferred-secret-value", cfg.Auth.JWTSecret)
}

func TestLoadExpandsSecretReferences(t *testing.T) {
	t.Setenv("KUSTOM_TEST_SIGNING_KEY", "expanded-signing-key")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("auth:\n  jwtSecret: ${KUSTOM_TEST_SIGNING_KEY}\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "expanded-signing-key", cfg.Auth.JWTSecret)
}

func TestLoadDotEnvBesideConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("KUSTOM_DOTENV_CHECK=from-dotenv\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("KUSTOM_DOTENV_CHECK") })

	_, err := Load(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", os.Getenv("KUSTOM_DOTENV_CHECK"))
}

func TestLoadDotEnv_DoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	env := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(env, []byte("KUSTOM_DOTENV_KEEP=file\n"), 0o600))
	t.Setenv("KUSTOM_DOTENV_KEEP", "process")

	require.NoError(t, LoadDotEnv(env, filepath.Join(dir, "missing.env"), ""))
	assert.Equal(t, "process", os.Getenv("KUSTOM_DOTENV_KEEP"))
}

func TestHooksByEvent(t *testing.T) {
	h := HooksConfig{
		MessageSent:  []HookEntry{{Command: "true"}},
		GatewayStart: []HookEntry{{Command: "echo up"}, {Command: "echo again"}},
	}
	got := h.ByEvent()
	assert.Len(t, got, 2)
	assert.Len(t, got[hooks.EventMessageSent], 1)
	assert.Len(t, got[hooks.EventGatewayStart], 2)
	assert.NotContains(t, got, hooks.EventMessagesRead)
}

func TestLoadRawAndSaveRaw(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	raw := map[string]any{
		"gateway": map[string]any{
			"port": 9999,
		},
	}

	require.NoError(t, SaveRaw(path, raw))

	loaded, err := LoadRaw(path)
	require.NoError(t, err)

	val, ok := KeyPath{"gateway", "port"}.Lookup(loaded)
	assert.True(t, ok)
	assert.Equal(t, 9999, val)
}

func TestLoadRaw_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	raw, err := LoadRaw(path)
	require.NoError(t, err)
	assert.NotNil(t, raw)
}
