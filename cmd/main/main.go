package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// -----------------------------------------------------------------------------

var configPath string

var rootCmd = &cobra.Command{
	Use:   "exchange",
	Short: "Simulated stock exchange: live quote feed and order ledger",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP/WebSocket API, broadcast loop and gRPC health server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context(), configPath)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the ledger schema and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return migrate(cmd.Context(), configPath)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Write the effective configuration (defaults and environment applied)",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := cmd.Flags().GetString("out")
		if err != nil {
			return err
		}
		conf, _, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		return conf.Save(out)
	},
}

// -----------------------------------------------------------------------------

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/default.yaml", "path to config file")
	configCmd.Flags().String("out", "effective.yaml", "where to write the effective config")
	rootCmd.AddCommand(serveCmd, migrateCmd, configCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
