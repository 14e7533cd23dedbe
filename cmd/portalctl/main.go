// Command portalctl is the operator CLI for the portal: it signs in to the
// external API, inspects and reorders questionnaire questions, and migrates
// the local database.
package main

import (
	"log/slog"
	"os"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"

	"portal/internal/adapters/logging"
	"portal/internal/config"
)

const credentialsFile = ".portalctl.json"

// globals holds the persistent flags shared by every command.
type globals struct {
	apiURL      string
	credentials string
	verbose     bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	cfg, cfgErr := config.Load(os.Getenv("PORTAL_DOTENV"))

	root := &cobra.Command{
		Use:           "portalctl",
		Short:         "Operate the tele-therapy portal from the command line",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cfgErr != nil {
				return cfgErr
			}
			level := "warn"
			if g.verbose {
				level = "debug"
			}
			slog.SetDefault(logging.New(cmd.ErrOrStderr(), logging.Options{Level: level}))
			return nil
		},
	}

	defaultCreds := credentialsFile
	if home, err := homedir.Dir(); err == nil {
		defaultCreds = filepath.Join(home, credentialsFile)
	}
	root.PersistentFlags().StringVar(&g.apiURL, "api", cfg.APIBaseURL, "external API base URL")
	root.PersistentFlags().StringVar(&g.credentials, "credentials", defaultCreds, "where login stores tokens")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "log API calls")

	root.AddCommand(
		newLoginCmd(g),
		newQuestionsCmd(g),
		newMigrateCmd(cfg),
	)
	return root
}
