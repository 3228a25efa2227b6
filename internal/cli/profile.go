package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sunilpie-kumar/kustom-backend/internal/domain"
	"github.com/sunilpie-kumar/kustom-backend/internal/store"
)

func newProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage the display profiles used to title conversations",
	}

	cmd.AddCommand(newProfileSetCmd())
	cmd.AddCommand(newProfileGetCmd())
	return cmd
}

// openStore opens the configured database.
func openStore() (*store.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := paths.EnsureDirs(); err != nil {
		return nil, err
	}
	return store.Open(paths.DatabasePath(cfg.Store), log)
}

func newProfileSetCmd() *cobra.Command {
	var name, email, company string

	cmd := &cobra.Command{
		Use:   "set <user|provider> <id>",
		Short: "Create or update a profile",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := domain.NewParticipant(args[0], args[1])
			if err != nil {
				return err
			}

			db, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			prof := &domain.Profile{
				Participant: p,
				FullName:    name,
				Email:       email,
				CompanyName: company,
			}
			if err := store.NewProfileStore(db).Put(context.Background(), prof); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%s)\n", p, prof.Title())
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "full name")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&company, "company", "", "company name (providers)")
	return cmd
}

func newProfileGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <user|provider> <id>",
		Short: "Print a profile as JSON",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := domain.NewParticipant(args[0], args[1])
			if err != nil {
				return err
			}

			db, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			prof, err := store.NewProfileStore(db).Get(context.Background(), p)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(prof)
		},
	}
}
