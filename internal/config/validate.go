package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/sunilpie-kumar/kustom-backend/internal/logging"
)

// MinJWTSecretLen is the shortest accepted signing secret.
const MinJWTSecretLen = 16

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid. A missing JWT
// secret is not an issue here; the server refuses to start without one.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue
	add := func(path, format string, args ...any) {
		issues = append(issues, ValidationIssue{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	// Gateway validation
	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		add("gateway.port", "port must be 0-65535, got %d", cfg.Gateway.Port)
	}

	validBinds := []string{"auto", "lan", "loopback", "custom"}
	if cfg.Gateway.Bind != "" && !slices.Contains(validBinds, cfg.Gateway.Bind) {
		add("gateway.bind", "must be one of %v, got %q", validBinds, cfg.Gateway.Bind)
	}
	if cfg.Gateway.Bind == "custom" && cfg.Gateway.CustomBindHost == "" {
		add("gateway.customBindHost", "required when bind is custom")
	}

	if cfg.Gateway.TLS.Enabled {
		if cfg.Gateway.TLS.CertPath == "" {
			add("gateway.tls.certPath", "required when TLS is enabled")
		}
		if cfg.Gateway.TLS.KeyPath == "" {
			add("gateway.tls.keyPath", "required when TLS is enabled")
		}
	}

	if cfg.Gateway.RateLimit.Requests > 0 && cfg.Gateway.RateLimit.WindowSeconds <= 0 {
		add("gateway.rateLimit.windowSeconds", "must be positive, got %d", cfg.Gateway.RateLimit.WindowSeconds)
	}

	// Auth validation
	if s := cfg.Auth.JWTSecret; s != "" && len(s) < MinJWTSecretLen {
		add("auth.jwtSecret", "must be at least %d bytes", MinJWTSecretLen)
	}

	// Chat validation
	if cfg.Chat.MaxContentRunes < 0 {
		add("chat.maxContentRunes", "must not be negative, got %d", cfg.Chat.MaxContentRunes)
	}
	if cfg.Chat.MaxAttachments < 0 {
		add("chat.maxAttachments", "must not be negative, got %d", cfg.Chat.MaxAttachments)
	}
	if cfg.Chat.ListConcurrency < 0 {
		add("chat.listConcurrency", "must not be negative, got %d", cfg.Chat.ListConcurrency)
	}

	// Attachment validation
	if cfg.Attachments.MaxBytes < 0 {
		add("attachments.maxBytes", "must not be negative, got %d", cfg.Attachments.MaxBytes)
	}
	for i, t := range cfg.Attachments.AllowedTypes {
		if !strings.Contains(t, "/") {
			add(fmt.Sprintf("attachments.allowedTypes.%d", i), "not a media type: %q", t)
		}
	}

	// Realtime validation
	if cfg.Realtime.SendBuffer < 0 {
		add("realtime.sendBuffer", "must not be negative, got %d", cfg.Realtime.SendBuffer)
	}
	if cfg.Realtime.PingIntervalSeconds < 0 {
		add("realtime.pingIntervalSeconds", "must not be negative, got %d", cfg.Realtime.PingIntervalSeconds)
	}

	// Logging validation
	if cfg.Logging.Level != "" && !logging.ValidLevel(cfg.Logging.Level) {
		add("logging.level", "must be one of %v, got %q", logging.Levels(), cfg.Logging.Level)
	}

	validConsoleStyles := []string{logging.FormatPretty, logging.FormatJSON}
	if cfg.Logging.ConsoleStyle != "" && !slices.Contains(validConsoleStyles, cfg.Logging.ConsoleStyle) {
		add("logging.consoleStyle", "must be one of %v, got %q", validConsoleStyles, cfg.Logging.ConsoleStyle)
	}

	// Hook validation
	for event, entries := range cfg.Hooks.ByEvent() {
		for i, e := range entries {
			if strings.TrimSpace(e.Command) == "" {
				add(fmt.Sprintf("hooks.%s.%d.command", event, i), "command is required")
			}
			if e.Timeout < 0 {
				add(fmt.Sprintf("hooks.%s.%d.timeout", event, i), "must not be negative, got %d", e.Timeout)
			}
		}
	}

	return issues
}
