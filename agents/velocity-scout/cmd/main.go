package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"velocity-scout/shared/config"
	"velocity-scout/shared/logging"
)

type rootOptions struct {
	configFile string
	logLevel   string
	authFlow   string
}

func main() {
	// Create context that responds to signals
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("velocity-scout failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	var a *app

	root := &cobra.Command{
		Use:           "velocity-scout",
		Short:         "Find fast-rising YouTube videos by keyword and sync the results to Google Drive",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.configFile != "" {
				os.Setenv("CONFIG_FILE", opts.configFile)
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if opts.logLevel != "" {
				cfg.LogLevel = opts.logLevel
			}
			logging.Setup(cfg.LogLevel, os.Stderr)

			a, err = newApp(cfg, cmd.OutOrStdout(), opts.authFlow)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a != nil {
				a.close()
			}
		},
	}

	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default config.yaml or $CONFIG_FILE)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&opts.authFlow, "auth-flow", "device", "Google authorization flow: device or browser")

	current := func() *app { return a }
	root.AddCommand(
		newSearchCmd(current),
		newExcludeCmd(current),
		newResultsCmd(current),
		newKeysCmd(current),
		newSyncCmd(current),
		newAuthCmd(current),
		newServeCmd(current),
	)

	return root
}
