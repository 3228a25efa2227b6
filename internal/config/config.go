package config

import (
	"fmt"

	"github.com/sunilpie-kumar/kustom-backend/internal/attachment"
	"github.com/sunilpie-kumar/kustom-backend/internal/chat"
)

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// Default values shared by Defaults and applyDefaults.
const (
	DefaultPort                = 5000
	DefaultRateLimitRequests   = 100
	DefaultRateLimitWindowSecs = 15 * 60
	DefaultSendBuffer          = 64
	DefaultPingIntervalSecs    = 30
)

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	cfg := Config{}
	applyDefaults(&cfg)
	return cfg
}

// applyDefaults fills zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = DefaultPort
	}
	if cfg.Gateway.Bind == "" {
		cfg.Gateway.Bind = "loopback"
	}
	if cfg.Gateway.RateLimit.Requests == 0 {
		cfg.Gateway.RateLimit.Requests = DefaultRateLimitRequests
	}
	if cfg.Gateway.RateLimit.WindowSeconds == 0 {
		cfg.Gateway.RateLimit.WindowSeconds = DefaultRateLimitWindowSecs
	}
	if cfg.Chat.MaxContentRunes == 0 {
		cfg.Chat.MaxContentRunes = chat.DefaultMaxContentRunes
	}
	if cfg.Chat.MaxAttachments == 0 {
		cfg.Chat.MaxAttachments = chat.DefaultMaxAttachments
	}
	if cfg.Chat.ListConcurrency == 0 {
		cfg.Chat.ListConcurrency = chat.DefaultListConcurrency
	}
	if cfg.Attachments.MaxBytes == 0 {
		cfg.Attachments.MaxBytes = attachment.DefaultMaxBytes
	}
	if len(cfg.Attachments.AllowedTypes) == 0 {
		cfg.Attachments.AllowedTypes = append([]string(nil), attachment.DefaultAllowedTypes...)
	}
	if cfg.Realtime.SendBuffer == 0 {
		cfg.Realtime.SendBuffer = DefaultSendBuffer
	}
	if cfg.Realtime.PingIntervalSeconds == 0 {
		cfg.Realtime.PingIntervalSeconds = DefaultPingIntervalSecs
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.ConsoleStyle == "" {
		cfg.Logging.ConsoleStyle = "pretty"
	}
}
