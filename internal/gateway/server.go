package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sunilpie-kumar/kustom-backend/internal/attachment"
	"github.com/sunilpie-kumar/kustom-backend/internal/chat"
	"github.com/sunilpie-kumar/kustom-backend/internal/config"
	"github.com/sunilpie-kumar/kustom-backend/internal/hooks"
	"github.com/sunilpie-kumar/kustom-backend/internal/logging"
	"github.com/sunilpie-kumar/kustom-backend/internal/metrics"
	"github.com/sunilpie-kumar/kustom-backend/internal/realtime"
	"github.com/sunilpie-kumar/kustom-backend/internal/version"
)

const shutdownGrace = 10 * time.Second

// Server serves the chat REST API, the socket endpoint and the RPC methods
// reachable over it.
type Server struct {
	cfg       config.Config
	log       *logging.Logger
	auth      *Authenticator
	version   string
	chat      *chat.Service
	hub       *realtime.Hub
	fanout    *realtime.Fanout
	validator *attachment.Validator
	limiter   *rateLimiter
	clients   *ClientRegistry
	upgrader  websocket.Upgrader
	rpc       map[string]RequestHandler

	hooks       *hooks.Manager
	metrics     *metrics.Metrics
	healthCheck func(context.Context) error

	startedAt  time.Time
	httpServer *http.Server
}

// ServerOption customizes a Server built by New.
type ServerOption func(*Server)

// WithHooks emits gateway and client lifecycle events to hm.
func WithHooks(hm *hooks.Manager) ServerOption {
	return func(s *Server) { s.hooks = hm }
}

// WithMetrics records HTTP and connection metrics and serves /metrics.
func WithMetrics(m *metrics.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// WithHealthCheck makes /health report unavailable when check fails.
func WithHealthCheck(check func(context.Context) error) ServerOption {
	return func(s *Server) { s.healthCheck = check }
}

// New wires a gateway over the chat service and realtime hub. It fails
// when no JWT secret is configured.
func New(cfg config.Config, svc *chat.Service, hub *realtime.Hub, log *logging.Logger, opts ...ServerOption) (*Server, error) {
	auth, err := NewAuthenticator(cfg.Auth)
	if err != nil {
		return nil, err
	}

	window := time.Duration(cfg.Gateway.RateLimit.WindowSeconds) * time.Second
	s := &Server{
		cfg:       cfg,
		log:       log.Sub("gateway"),
		auth:      auth,
		version:   version.Version,
		chat:      svc,
		hub:       hub,
		fanout:    realtime.NewFanout(hub),
		validator: attachment.NewValidator(cfg.Attachments.MaxBytes, cfg.Attachments.AllowedTypes),
		limiter:   newRateLimiter(cfg.Gateway.RateLimit.Requests, window),
		clients:   NewClientRegistry(log.Sub("clients")),
		rpc:       make(map[string]RequestHandler),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     socketOriginCheck(cfg.Gateway.AllowedOrigins),
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.registerRPCHandlers()
	return s, nil
}

// Handle registers an RPC method. Registering a method twice replaces it.
func (s *Server) Handle(method string, handler RequestHandler) {
	s.rpc[method] = handler
}

// Methods lists the registered RPC methods in sorted order.
func (s *Server) Methods() []string {
	names := make([]string, 0, len(s.rpc))
	for name := range s.rpc {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Authenticator exposes token verification and signing.
func (s *Server) Authenticator() *Authenticator { return s.auth }

// Handler returns the routed HTTP handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerHTTPRoutes(mux)
	return withMiddleware(mux, s.log, s.metrics, s.cfg.Gateway.AllowedOrigins)
}

// resolveBindAddr maps the bind mode onto a host:port. Unknown modes fall
// back to loopback.
func resolveBindAddr(cfg config.GatewayConfig) string {
	host := "127.0.0.1"
	switch cfg.Bind {
	case "lan", "auto":
		host = "0.0.0.0"
	case "custom":
		host = cfg.CustomBindHost
		if host == "" {
			host = "0.0.0.0"
		}
	}
	return net.JoinHostPort(host, strconv.Itoa(cfg.Port))
}

// listen opens the TCP listener and layers TLS on it when configured.
func (s *Server) listen(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	tc := s.cfg.Gateway.TLS
	if !tc.Enabled {
		if s.cfg.Gateway.Bind != "loopback" {
			s.log.Warn().Msg("TLS is not enabled; bearer tokens travel in cleartext")
		}
		return ln, nil
	}

	cert, err := tls.LoadX509KeyPair(tc.CertPath, tc.KeyPath)
	if err != nil {
		ln.Close()
		return nil, fmt.Errorf("load TLS key pair: %w", err)
	}
	s.log.Info().Str("cert", tc.CertPath).Msg("serving over TLS")
	return tls.NewListener(ln, &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}), nil
}

// Start serves until ctx is cancelled, then drains in-flight requests and
// disconnects every socket.
func (s *Server) Start(ctx context.Context) error {
	addr := resolveBindAddr(s.cfg.Gateway)
	ln, err := s.listen(addr)
	if err != nil {
		return err
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
		// In-flight requests outlive ctx so Shutdown can drain them.
		BaseContext: func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	s.startedAt = time.Now()

	s.log.Info().
		Str("addr", ln.Addr().String()).
		Str("bind", s.cfg.Gateway.Bind).
		Strs("methods", s.Methods()).
		Msg("gateway listening")
	s.hooks.Emit(ctx, hooks.EventGatewayStart, map[string]any{"addr": ln.Addr().String()})

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		s.log.Info().Msg("gateway stopping")
		s.hooks.Emit(context.Background(), hooks.EventGatewayStop, nil)

		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		s.Close()
		if err := s.httpServer.Shutdown(drainCtx); err != nil {
			s.log.Warn().Err(err).Msg("gateway shutdown incomplete")
		}
	}()

	err = s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		// Serve returns as soon as Shutdown begins; wait for the drain.
		<-stopped
		return nil
	}
	return err
}

// Addr is the configured listen address, empty before Start.
func (s *Server) Addr() string {
	if s.httpServer == nil {
		return ""
	}
	return s.httpServer.Addr
}

// Close disconnects all clients and stops background work. Start calls it
// on shutdown; servers used only through Handler must call it themselves.
func (s *Server) Close() {
	s.limiter.stop()
	s.clients.CloseAll()
}
