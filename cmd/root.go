package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the skedge application
var rootCmd = &cobra.Command{
	Use:   "skedge",
	Short: "Finds shared free time across connected calendars",
	Long: `skedge connects user calendars through the Cronofy API and computes
the periods a group of participants is simultaneously free within
business hours.

Run "skedge serve" to start the HTTP API.`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "skedge version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())
}
