package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sunilpie-kumar/kustom-backend/internal/config"
	"github.com/sunilpie-kumar/kustom-backend/internal/store"
	"github.com/sunilpie-kumar/kustom-backend/internal/version"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show kustom status and configuration summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			b := version.Get()
			fmt.Fprintf(out, "kustom %s (commit %s)\n\n", b.Version, b.Commit)

			fmt.Fprintf(out, "Config:  %s\n", paths.Config)
			fmt.Fprintf(out, "Data:    %s\n", paths.Data)
			fmt.Fprintf(out, "Logs:    %s\n", paths.Logs)
			fmt.Fprintln(out)

			cfg, err := loadConfig()
			if err != nil {
				fmt.Fprintf(out, "Config:  error loading: %v\n", err)
				return nil
			}

			fmt.Fprintf(out, "Gateway: port=%d bind=%s tls=%v\n",
				cfg.Gateway.Port, cfg.Gateway.Bind, cfg.Gateway.TLS.Enabled)
			if cfg.Gateway.RateLimit.Requests > 0 {
				fmt.Fprintf(out, "Limit:   %d requests / %ds per IP\n",
					cfg.Gateway.RateLimit.Requests, cfg.Gateway.RateLimit.WindowSeconds)
			} else {
				fmt.Fprintln(out, "Limit:   (disabled)")
			}
			if cfg.Auth.JWTSecret == "" {
				fmt.Fprintln(out, "Auth:    jwt secret NOT set")
			} else {
				fmt.Fprintln(out, "Auth:    jwt secret set")
			}
			fmt.Fprintf(out, "Uploads: max=%d bytes types=%s\n",
				cfg.Attachments.MaxBytes, strings.Join(cfg.Attachments.AllowedTypes, ","))

			if events := cfg.Hooks.ByEvent(); len(events) > 0 {
				for event, entries := range events {
					fmt.Fprintf(out, "Hooks:   %s (%d)\n", event, len(entries))
				}
			}

			dbPath := paths.DatabasePath(cfg.Store)
			if _, err := os.Stat(dbPath); err != nil {
				fmt.Fprintf(out, "Store:   %s (not created yet)\n", dbPath)
			} else if err := printStoreStatus(cmd.Context(), out, dbPath); err != nil {
				fmt.Fprintf(out, "Store:   %s (error: %v)\n", dbPath, err)
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				fmt.Fprintf(out, "\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Fprintf(out, "  - %s\n", issue)
				}
			}

			return nil
		},
	}

	return cmd
}

func printStoreStatus(ctx context.Context, out io.Writer, path string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	db, err := store.Open(path, log)
	if err != nil {
		return err
	}
	defer db.Close()

	schema, err := db.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	convs, err := store.NewConversationStore(db).Count(ctx)
	if err != nil {
		return err
	}
	msgs, err := store.NewMessageStore(db).Count(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Store:   %s schema=v%d conversations=%d messages=%d\n", path, schema, convs, msgs)
	return nil
}
