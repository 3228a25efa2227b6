package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func issuePaths(issues []ValidationIssue) []string {
	var out []string
	for _, i := range issues {
		out = append(out, i.Path)
	}
	return out
}

func TestValidate_ValidDefaults(t *testing.T) {
	cfg := Defaults()
	issues := Validate(&cfg)
	assert.Empty(t, issues)
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := Defaults()

	cfg.Gateway.Port = -1
	issues := Validate(&cfg)
	require.Len(t, issues, 1)
	assert.Equal(t, "gateway.port", issues[0].Path)

	cfg.Gateway.Port = 70000
	issues = Validate(&cfg)
	assert.NotEmpty(t, issues)
}

func TestValidate_ValidPort(t *testing.T) {
	cfg := Defaults()
	for _, port := range []int{0, 8080, 65535} {
		cfg.Gateway.Port = port
		assert.Empty(t, Validate(&cfg))
	}
}

func TestValidate_Bind(t *testing.T) {
	for _, bind := range []string{"auto", "lan", "loopback", ""} {
		cfg := Defaults()
		cfg.Gateway.Bind = bind
		assert.Empty(t, Validate(&cfg), "bind %q", bind)
	}

	cfg := Defaults()
	cfg.Gateway.Bind = "tailnet"
	assert.Equal(t, []string{"gateway.bind"}, issuePaths(Validate(&cfg)))

	cfg.Gateway.Bind = "custom"
	assert.Equal(t, []string{"gateway.customBindHost"}, issuePaths(Validate(&cfg)))

	cfg.Gateway.CustomBindHost = "10.0.0.5"
	assert.Empty(t, Validate(&cfg))
}

func TestValidate_TLSRequiresFiles(t *testing.T) {
	cfg := Defaults()
	cfg.Gateway.TLS.Enabled = true
	paths := issuePaths(Validate(&cfg))
	assert.Contains(t, paths, "gateway.tls.certPath")
	assert.Contains(t, paths, "gateway.tls.keyPath")
}

func TestValidate_RateLimitWindow(t *testing.T) {
	cfg := Defaults()
	cfg.Gateway.RateLimit.WindowSeconds = -5
	assert.Equal(t, []string{"gateway.rateLimit.windowSeconds"}, issuePaths(Validate(&cfg)))

	cfg.Gateway.RateLimit.Requests = -1
	assert.Empty(t, Validate(&cfg), "disabled limiter ignores the window")
}

func TestValidate_ShortJWTSecret(t *testing.T) {
	cfg := Defaults()
	cfg.Auth.JWTSecret = "short"
	assert.Equal(t, []string{"auth.jwtSecret"}, issuePaths(Validate(&cfg)))

	cfg.Auth.JWTSecret = "sixteen-bytes-ok"
	assert.Empty(t, Validate(&cfg))
}

func TestValidate_NegativeLimits(t *testing.T) {
	cfg := Defaults()
	cfg.Chat.MaxContentRunes = -1
	cfg.Chat.MaxAttachments = -1
	cfg.Attachments.MaxBytes = -1
	cfg.Realtime.SendBuffer = -1

	paths := issuePaths(Validate(&cfg))
	assert.ElementsMatch(t, []string{
		"chat.maxContentRunes",
		"chat.maxAttachments",
		"attachments.maxBytes",
		"realtime.sendBuffer",
	}, paths)
}

func TestValidate_AllowedTypes(t *testing.T) {
	cfg := Defaults()
	cfg.Attachments.AllowedTypes = []string{"image/png", "pdf"}
	assert.Equal(t, []string{"attachments.allowedTypes.1"}, issuePaths(Validate(&cfg)))
}

func TestValidate_LogLevels(t *testing.T) {
	for _, level := range []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"} {
		cfg := Defaults()
		cfg.Logging.Level = level
		assert.Empty(t, Validate(&cfg), "level %q", level)
	}

	cfg := Defaults()
	cfg.Logging.Level = "verbose"
	assert.Equal(t, []string{"logging.level"}, issuePaths(Validate(&cfg)))
}

func TestValidate_ConsoleStyle(t *testing.T) {
	cfg := Defaults()
	cfg.Logging.ConsoleStyle = "compact"
	assert.Equal(t, []string{"logging.consoleStyle"}, issuePaths(Validate(&cfg)))
}

func TestValidate_Hooks(t *testing.T) {
	cfg := Defaults()
	cfg.Hooks.MessageSent = []HookEntry{{Command: "  "}, {Command: "true", Timeout: -1}}

	paths := issuePaths(Validate(&cfg))
	assert.ElementsMatch(t, []string{
		"hooks.message_sent.0.command",
		"hooks.message_sent.1.timeout",
	}, paths)
}

func TestValidationIssue_String(t *testing.T) {
	v := ValidationIssue{Path: "gateway.port", Message: "bad"}
	assert.Equal(t, "gateway.port: bad", v.String())
}
