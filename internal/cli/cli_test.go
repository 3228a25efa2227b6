package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunilpie-kumar/kustom-backend/internal/config"
	"github.com/sunilpie-kumar/kustom-backend/internal/domain"
	"github.com/sunilpie-kumar/kustom-backend/internal/gateway"
	"github.com/sunilpie-kumar/kustom-backend/internal/hooks"
	"github.com/sunilpie-kumar/kustom-backend/internal/logging"
)

// run executes the root command with a private home directory.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--log-level", "silent"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func testHome(t *testing.T) {
	t.Helper()
	t.Setenv("KUSTOM_HOME", t.TempDir())
	t.Setenv("JWT_SECRET", "cli-test-secret-0123456789")
	t.Setenv("KUSTOM_JWT_SECRET", "")
}

func TestParseValue(t *testing.T) {
	assert.Equal(t, true, parseValue("true"))
	assert.Equal(t, false, parseValue("FALSE"))
	assert.Equal(t, 5000, parseValue("5000"))
	assert.Equal(t, 1.5, parseValue("1.5"))
	assert.Equal(t, "loopback", parseValue("loopback"))
}

func TestParseValue_Strings(t *testing.T) {
	assert.Equal(t, "1.2.3", parseValue("1.2.3"))
	assert.Equal(t, "", parseValue(""))
	assert.Equal(t, -3, parseValue("-3"))
}

func TestRegisterCommandHooks(t *testing.T) {
	m := hooks.NewManager(logging.New(nil, "silent"))
	registerCommandHooks(m, config.HooksConfig{
		MessageSent: []config.HookEntry{{Command: "true"}, {Command: "cat >/dev/null", Timeout: 500}},
		GatewayStop: []config.HookEntry{{Command: "true"}},
	})

	assert.Equal(t, 2, m.Count(hooks.EventMessageSent))
	assert.Equal(t, 1, m.Count(hooks.EventGatewayStop))
	assert.Equal(t, 0, m.Count(hooks.EventMessagesRead))
}

func TestVersionCmd(t *testing.T) {
	testHome(t)
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "kustom "))
}

func TestTokenCmd(t *testing.T) {
	testHome(t)
	out, err := run(t, "token", "provider", "p1", "--ttl", "1h")
	require.NoError(t, err)

	auth, err := gateway.NewAuthenticator(config.AuthConfig{JWTSecret: "cli-test-secret-0123456789"})
	require.NoError(t, err)
	p, err := auth.Verify(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.True(t, p.Equal(domain.Provider("p1")))
}

func TestTokenCmd_InvalidParticipant(t *testing.T) {
	testHome(t)
	_, err := run(t, "token", "admin", "x")
	assert.Error(t, err)
}

func TestConfigSetGetUnset(t *testing.T) {
	testHome(t)

	_, err := run(t, "config", "set", "gateway.port", "7000")
	require.NoError(t, err)

	cfg, err := config.Load(paths.Config)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Gateway.Port)

	out, err := run(t, "config", "get", "gateway.port")
	require.NoError(t, err)
	assert.Equal(t, "7000\n", out)

	out, err = run(t, "config", "set", "auth.jwtSecret", "do-not-print-me-please")
	require.NoError(t, err)
	assert.NotContains(t, out, "do-not-print-me-please")

	out, err = run(t, "config", "get", "auth.jwtSecret")
	require.NoError(t, err)
	assert.Contains(t, out, "(redacted)")

	out, err = run(t, "config", "get", "gateway")
	require.NoError(t, err)
	assert.Contains(t, out, "port: 7000")

	_, err = run(t, "config", "get", "gateway.__proto__")
	assert.Error(t, err)

	_, err = run(t, "config", "unset", "gateway.port")
	require.NoError(t, err)
	_, err = run(t, "config", "unset", "gateway.port")
	assert.Error(t, err)
}

func TestConfigValidateCmd(t *testing.T) {
	testHome(t)

	out, err := run(t, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "config ok")

	_, err = run(t, "config", "set", "gateway.bind", "tailnet")
	require.NoError(t, err)
	out, err = run(t, "config", "validate")
	assert.Error(t, err)
	assert.Contains(t, out, "gateway.bind")
}

func TestProfileSetAndGet(t *testing.T) {
	testHome(t)

	out, err := run(t, "profile", "set", "provider", "p1", "--company", "Acme Tailors")
	require.NoError(t, err)
	assert.Contains(t, out, "Acme Tailors")

	out, err = run(t, "profile", "get", "provider", "p1")
	require.NoError(t, err)
	assert.Contains(t, out, `"companyName": "Acme Tailors"`)
}

func TestStatusCmd(t *testing.T) {
	testHome(t)
	_, err := run(t, "profile", "set", "user", "u1", "--name", "Asha")
	require.NoError(t, err)

	out, err := run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Gateway: port=5000 bind=loopback")
	assert.Contains(t, out, "jwt secret set")
	assert.Contains(t, out, "conversations=0 messages=0")
}

func TestTokenTTLFlagDefault(t *testing.T) {
	cmd := newTokenCmd()
	ttl, err := cmd.Flags().GetDuration("ttl")
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, ttl)
}

func TestRootRejectsUnknownLogLevel(t *testing.T) {
	testHome(t)
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--log-level", "loud", "status"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--log-level")
	logLevel = ""
}

func TestRootVersionFlag(t *testing.T) {
	out, err := run(t, "--version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "kustom "))
}
