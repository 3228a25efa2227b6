package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tillberg/autorestart"

	"github.com/sunilpie-kumar/kustom-backend/internal/chat"
	"github.com/sunilpie-kumar/kustom-backend/internal/config"
	"github.com/sunilpie-kumar/kustom-backend/internal/gateway"
	"github.com/sunilpie-kumar/kustom-backend/internal/hooks"
	"github.com/sunilpie-kumar/kustom-backend/internal/logging"
	"github.com/sunilpie-kumar/kustom-backend/internal/metrics"
	"github.com/sunilpie-kumar/kustom-backend/internal/realtime"
	"github.com/sunilpie-kumar/kustom-backend/internal/store"
)

func newServeCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"gateway"},
		Short:   "Start the chat HTTP and WebSocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			if port != 0 {
				cfg.Gateway.Port = port
			}
			if bind != "" {
				cfg.Gateway.Bind = bind
			}
			if logLevel != "" {
				cfg.Logging.Level = logLevel
			}

			rootLog, closer, err := logging.Configure(logging.Options{
				Level:  cfg.Logging.Level,
				Format: cfg.Logging.ConsoleStyle,
				File:   cfg.Logging.File,
			})
			if err != nil {
				return err
			}
			defer closer.Close()
			log = rootLog

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("auth.jwtSecret is not set (set JWT_SECRET or KUSTOM_JWT_SECRET)")
			}

			if cfg.Dev.AutoRestart {
				log.Warn().Msg("dev.autoRestart enabled: restarting when the binary changes")
				go autorestart.RestartOnChange()
			}

			if err := paths.EnsureDirs(); err != nil {
				return fmt.Errorf("creating data directories: %w", err)
			}

			dbPath := paths.DatabasePath(cfg.Store)
			db, err := store.Open(dbPath, log)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer db.Close()
			log.Info().Str("path", dbPath).Msg("using SQLite store")

			m := metrics.New()

			hookMgr := hooks.NewManager(log)
			registerCommandHooks(hookMgr, cfg.Hooks)
			defer hookMgr.Wait()

			hub := realtime.NewHub(log, m)
			defer hub.Close()

			svc := chat.NewFromDB(db, chat.Config{
				Notifier:        realtime.NewFanout(hub),
				Hooks:           hookMgr,
				Metrics:         m,
				Log:             log,
				MaxContentRunes: cfg.Chat.MaxContentRunes,
				MaxAttachments:  cfg.Chat.MaxAttachments,
				ListConcurrency: cfg.Chat.ListConcurrency,
			})

			srv, err := gateway.New(cfg, svc, hub, log,
				gateway.WithHooks(hookMgr),
				gateway.WithMetrics(m),
				gateway.WithHealthCheck(db.Ping),
			)
			if err != nil {
				return err
			}

			// Block until SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override gateway port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (auto, lan, loopback, custom)")

	return cmd
}

// registerCommandHooks registers the shell hooks configured per event.
func registerCommandHooks(m *hooks.Manager, cfg config.HooksConfig) {
	for event, entries := range cfg.ByEvent() {
		for i, e := range entries {
			name := fmt.Sprintf("config:%s:%d", event, i)
			m.On(event, name, hooks.CommandHandler(e.Command, time.Duration(e.Timeout)*time.Millisecond))
		}
	}
}
