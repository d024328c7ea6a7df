// Package commands implements the dataclientd CLI.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	configDir string
	envPrefix string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "dataclientd",
	Short: "dataclientd - database client component host",
	Long: `dataclientd hosts the dataclient component: it binds a gorm client, one
locked accessor per model and the configured query middlewares into a
dependency injection container, and serves health, model and metrics
endpoints over HTTP.

Configuration is read from <config>/config.yaml, config.local.yaml,
config.<mode>.yaml and config.<mode>.local.yaml (GO_ENV_MODE selects the
mode). Every key can be overridden from the environment, for example
DATACLIENT_DATASOURCE_DRIVER=postgres.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "", "configuration directory (default: $CONFIG_PATH or ./config)")
	rootCmd.PersistentFlags().StringVar(&envPrefix, "env-prefix", "DATACLIENT", "prefix of environment overrides")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(versionCmd)
}
