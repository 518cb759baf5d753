package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marcus-qen/monfront/internal/frontend/config"
	"github.com/marcus-qen/monfront/internal/frontend/server"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "monfront",
	Short: "Monitoring front end",
	Long: `monfront serves the monitoring web front end.

Configuration is read from --config (YAML or JSON) and overridden by
MONFRONT_* environment variables.`,
	SilenceUsage: true,
	RunE:         runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "monfront %s (commit: %s, built: %s)\n", version, commit, date)
	},
}

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate the configuration and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "configuration ok (database %s, api %s)\n", cfg.Database.Driver, cfg.API.URL)
		return nil
	},
}

func init() {
	server.Version, server.Commit, server.Date = version, commit, date

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML or JSON)")
	rootCmd.AddCommand(serveCmd, versionCmd, checkConfigCmd, userCmd)
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
