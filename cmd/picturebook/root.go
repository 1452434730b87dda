package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/picturebook/internal/api"
	"github.com/jackzampolin/picturebook/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
	serverURL    string
	ownerID      string
)

var rootCmd = &cobra.Command{
	Use:   "picturebook",
	Short: "Turn photos into illustrated children's stories",
	Long: `Picturebook turns a handful of photos into an illustrated children's
picture book.

A text model writes a short story from the photos, split into pages.
Each page is then illustrated in the background by an image provider.
When a provider is unavailable, the story falls back to a built-in template
and pages fall back to a placeholder image, so a request always yields a book.

Run "picturebook serve" to start the server. The other commands call a
running server over HTTP.`,
	Version:       version.GitRelease,
	SilenceUsage: true,
}

// getServerURL returns the server URL at runtime (after flag parsing).
func getServerURL() string {
	return serverURL
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.picturebook/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "picturebook home directory (default: ~/.picturebook)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)
	rootCmd.PersistentFlags().StringVar(
		&serverURL, "server", "http://localhost:8080", "server URL for API commands",
	)
	rootCmd.PersistentFlags().StringVar(
		&ownerID, "owner", "", "owner identity sent as "+api.OwnerHeader+" (env: PICTUREBOOK_OWNER)",
	)

	// Set output format and owner before any command runs
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := api.SetOutputFormat(outputFormat); err != nil {
			return err
		}
		api.SetOwner(resolveOwner())
		return nil
	}

	rootCmd.AddCommand(versionCmd)
}
