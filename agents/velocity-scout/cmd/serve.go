package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	velocityscout "velocity-scout/agents/velocity-scout"
	"velocity-scout/internal/models"
	"velocity-scout/shared/scheduler"
)

func newServeCmd(current func() *app) *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Search the configured keywords on a schedule",
		Long: "Search the configured keywords on a schedule, serving /health, /status and /metrics.\n\n" +
			"With sync enabled the cloud copy is downloaded first and the database is uploaded after every run.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := current()
			ctx := cmd.Context()

			if a.syncEnabled() {
				startupDownload(ctx, a)
			}

			agent := velocityscout.NewScoutAgent(a.cfg, a.tasks, a.apiKey(""), a.syncEnabled)
			s := scheduler.New(a.cfg, agent, a.registry)

			if once {
				fmt.Fprintln(cmd.OutOrStdout(), "Running once...")
				if err := agent.Initialize(); err != nil {
					return fmt.Errorf("failed to initialize agent: %w", err)
				}
				return s.RunOnce(ctx)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Starting scheduler...")
			err := s.Start(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "run the keyword searches once and exit")
	return cmd
}

// startupDownload refreshes the local database from the cloud copy. A failed
// download turns sync off so later runs do not overwrite the cloud copy.
func startupDownload(ctx context.Context, a *app) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	outcome, err := velocityscout.RunSync(ctx, a.tasks, models.DirectionDownload)
	if err == nil && outcome.Status != models.SyncError {
		return
	}

	if err == nil {
		err = errors.New(outcome.Message)
	}
	log.Warn().Err(err).Msg("Startup download failed, disabling cloud sync")
	disableSync(a)
}
