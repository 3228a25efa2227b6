package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sunilpie-kumar/kustom-backend/internal/config"
	"github.com/sunilpie-kumar/kustom-backend/internal/logging"
	"github.com/sunilpie-kumar/kustom-backend/internal/version"
)

// Flags and the state every subcommand shares. PersistentPreRunE fills
// paths and log before any RunE executes.
var (
	cfgFile  string
	logLevel string

	paths config.Paths
	log   *logging.Logger
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "kustom",
		Short:   "Kustom marketplace chat backend",
		Long:    "Kustom serves conversations, messages and realtime chat between users and service providers.",
		Version: version.Info(),

		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if logLevel != "" && !logging.ValidLevel(logLevel) {
				return fmt.Errorf("--log-level must be one of %v", logging.Levels())
			}

			resolved, err := config.ResolvePaths()
			if err != nil {
				return err
			}
			if cfgFile != "" {
				resolved.Config = cfgFile
			}
			paths = resolved
			log = logging.New(nil, logLevel)
			return nil
		},
	}
	cmd.SetVersionTemplate("{{.Version}}\n")

	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default $KUSTOM_HOME/config.yaml)")
	flags.StringVar(&logLevel, "log-level", "", fmt.Sprintf("log level %v (default info)", logging.Levels()))

	cmd.AddCommand(
		newServeCmd(),
		newStatusCmd(),
		newConfigCmd(),
		newProfileCmd(),
		newTokenCmd(),
		newVersionCmd(),
	)
	return cmd
}

// Execute runs the kustom command tree against os.Args.
func Execute() error {
	return newRootCmd().Execute()
}

// loadConfig reads the config file after the home .env, so secrets kept
// there are visible to ${VAR} expansion.
func loadConfig() (config.Config, error) {
	if err := config.LoadDotEnv(paths.Env); err != nil {
		return config.Config{}, err
	}
	return config.Load(paths.Config)
}
