package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"media-registry/internal/logging"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	var databaseFlag string
	var logLevelFlag string

	ctx := newCommandContext(&configFlag, &databaseFlag)

	rootCmd := &cobra.Command{
		Use:           "mediactl",
		Short:         "Manage a media registry without the server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, ok := logging.ParseLevel(logLevelFlag)
			if !ok {
				return fmt.Errorf("invalid log level %q", logLevelFlag)
			}
			logging.SetLevel(level)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (default $CONFIG_FILE)")
	rootCmd.PersistentFlags().StringVar(&databaseFlag, "database", "", "Registry database file, overrides the configuration")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "warn", "Log level: debug, info, warn or error")

	rootCmd.AddCommand(newScanCommand(ctx))
	rootCmd.AddCommand(newGenerateCommand(ctx))
	rootCmd.AddCommand(newMigrateCommand(ctx))
	rootCmd.AddCommand(newMoviesCommand(ctx))
	rootCmd.AddCommand(newBatchesCommand(ctx))
	rootCmd.AddCommand(newPlaylistCommand(ctx))
	rootCmd.AddCommand(newStatsCommand(ctx))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}
