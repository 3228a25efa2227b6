package config

import "github.com/sunilpie-kumar/kustom-backend/internal/hooks"

// Config is the root configuration for the kustom chat backend.
type Config struct {
	Gateway     GatewayConfig     `yaml:"gateway,omitempty"`
	Auth        AuthConfig        `yaml:"auth,omitempty"`
	Store       StoreConfig       `yaml:"store,omitempty"`
	Chat        ChatConfig        `yaml:"chat,omitempty"`
	Attachments AttachmentsConfig `yaml:"attachments,omitempty"`
	Realtime    RealtimeConfig    `yaml:"realtime,omitempty"`
	Logging     LoggingConfig     `yaml:"logging,omitempty"`
	Hooks       HooksConfig       `yaml:"hooks,omitempty"`
	Dev         DevConfig         `yaml:"dev,omitempty"`
}

// GatewayConfig controls the HTTP/WebSocket server.
type GatewayConfig struct {
	Port           int             `yaml:"port,omitempty"`
	Bind           string          `yaml:"bind,omitempty"` // "auto" | "lan" | "loopback" | "custom"
	CustomBindHost string          `yaml:"customBindHost,omitempty"`
	TLS            GatewayTLS      `yaml:"tls,omitempty"`
	AllowedOrigins []string        `yaml:"allowedOrigins,omitempty"`
	RateLimit      RateLimitConfig `yaml:"rateLimit,omitempty"`
}

// GatewayTLS configures TLS for the gateway.
type GatewayTLS struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	CertPath string `yaml:"certPath,omitempty"`
	KeyPath  string `yaml:"keyPath,omitempty"`
}

// RateLimitConfig bounds REST requests per client IP. Requests <= 0
// disables limiting.
type RateLimitConfig struct {
	Requests      int `yaml:"requests,omitempty"`
	WindowSeconds int `yaml:"windowSeconds,omitempty"`
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	JWTSecret string `yaml:"jwtSecret,omitempty"`
	Issuer    string `yaml:"issuer,omitempty"` // optional; checked when set
}

// StoreConfig locates the SQLite database. An empty path resolves to
// <home>/data/kustom.db.
type StoreConfig struct {
	Path string `yaml:"path,omitempty"`
}

// ChatConfig bounds chat operations.
type ChatConfig struct {
	MaxContentRunes int `yaml:"maxContentRunes,omitempty"`
	MaxAttachments  int `yaml:"maxAttachments,omitempty"`
	ListConcurrency int `yaml:"listConcurrency,omitempty"`
}

// AttachmentsConfig controls uploaded file validation.
type AttachmentsConfig struct {
	MaxBytes     int64    `yaml:"maxBytes,omitempty"`
	AllowedTypes []string `yaml:"allowedTypes,omitempty"`
}

// RealtimeConfig tunes websocket delivery.
type RealtimeConfig struct {
	SendBuffer          int `yaml:"sendBuffer,omitempty"`
	PingIntervalSeconds int `yaml:"pingIntervalSeconds,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	File         string `yaml:"file,omitempty"`
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "json"
}

// HooksConfig defines shell command hooks per lifecycle event.
type HooksConfig struct {
	ConversationCreated []HookEntry `yaml:"conversationCreated,omitempty"`
	MessageSent         []HookEntry `yaml:"messageSent,omitempty"`
	MessagesRead        []HookEntry `yaml:"messagesRead,omitempty"`
	ClientConnected     []HookEntry `yaml:"clientConnected,omitempty"`
	ClientDisconnected  []HookEntry `yaml:"clientDisconnected,omitempty"`
	GatewayStart        []HookEntry `yaml:"gatewayStart,omitempty"`
	GatewayStop         []HookEntry `yaml:"gatewayStop,omitempty"`
}

// HookEntry defines a single hook action.
type HookEntry struct {
	Command string `yaml:"command"`
	Timeout int    `yaml:"timeout,omitempty"` // milliseconds
}

// ByEvent returns the configured entries keyed by hook event name.
func (h HooksConfig) ByEvent() map[string][]HookEntry {
	out := make(map[string][]HookEntry)
	add := func(event string, entries []HookEntry) {
		if len(entries) > 0 {
			out[event] = entries
		}
	}
	add(hooks.EventConversationCreated, h.ConversationCreated)
	add(hooks.EventMessageSent, h.MessageSent)
	add(hooks.EventMessagesRead, h.MessagesRead)
	add(hooks.EventClientConnected, h.ClientConnected)
	add(hooks.EventClientDisconnected, h.ClientDisconnected)
	add(hooks.EventGatewayStart, h.GatewayStart)
	add(hooks.EventGatewayStop, h.GatewayStop)
	return out
}

// DevConfig holds development conveniences.
type DevConfig struct {
	AutoRestart bool `yaml:"autoRestart,omitempty"`
}
