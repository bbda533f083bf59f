package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"taskboard/internal/config"
	"taskboard/internal/logging"
)

var (
	// Global flags
	configPath string
	verbose    bool
	serverURL  string
	token      string

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "taskboard",
	Short: "Kanban boards with live snapshots and drag-and-drop moves",
	Long: `taskboard serves boards of ordered lists of tasks over a JSON API.

Clients receive a full board snapshot on connect and after every change,
and moves are shown optimistically before the server confirms them.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}
		if serverURL != "" {
			cfg.Client.BaseURL = serverURL
		}
		if token != "" {
			cfg.Client.Token = token
		}

		logger, err = logging.New(cfg.Logging)
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "taskboard.yaml", "path to the config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")
	rootCmd.PersistentFlags().StringVar(&serverURL, "url", "", "server URL for client commands (overrides client.base_url)")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "bearer token for client commands (overrides client.token)")

	rootCmd.AddCommand(serveCmd, migrateCmd, tokenCmd, boardCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
