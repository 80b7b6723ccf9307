// Package cli provides the command-line interface for graphscribe.
package cli

import (
	"github.com/raphaelgruber/graphscribe/internal/client"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose   bool
	serverURL string

	// API client, created before every command runs
	apiClient *client.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "graphscribe",
	Short: "Knowledge graph ingestion service",
	Long: `Graphscribe turns unstructured text and live activity streams into
knowledge graphs stored in SurrealDB.

Submit documents for asynchronous batch ingestion, feed simulation
activity streams, and inspect or export the resulting graphs.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}
		apiClient = client.New(serverURL)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server URL (default $GRAPHSCRIBE_SERVER_URL or http://localhost:8090)")

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(tasksCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(streamCmd)
	rootCmd.AddCommand(statsCmd)
}
