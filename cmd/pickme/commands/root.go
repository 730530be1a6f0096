// Package commands defines all Cobra CLI commands for the pickme binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/fahammohmd/pickme-go/internal/audit"
	"github.com/fahammohmd/pickme-go/internal/config"
	"github.com/fahammohmd/pickme-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pickme",
		Short: "PickMe investor assistant — grounded Q&A over company documents",
		Long: `pickme answers investor questions grounded on the company's private
document corpus (pitch decks, financials, investor updates).

On startup it scans the documents directory, fingerprints the corpus, and
either reuses the persisted vector index or rebuilds it when documents or
build parameters changed. Answers always cite the documents they came from.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.pickme/config.yaml).
See 'pickme --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.pickme/config.yaml)")

	root.AddCommand(
		NewAskCmd(),
		NewChatCmd(),
		NewIndexCmd(),
		NewServeCmd(),
		NewVersionCmd(),
	)

	return root
}
