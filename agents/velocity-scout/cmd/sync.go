package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	velocityscout "velocity-scout/agents/velocity-scout"
	"velocity-scout/agents/velocity-scout/cloud"
	"velocity-scout/internal/models"
	"velocity-scout/shared/storage"
)

func newSyncCmd(current func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize the database file with Google Drive",
	}

	for _, direction := range []models.Direction{models.DirectionDownload, models.DirectionUpload} {
		cmd.AddCommand(&cobra.Command{
			Use:   string(direction),
			Short: fmt.Sprintf("Run one %s of the database file", direction),
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				outcome, err := runSync(cmd.Context(), current(), direction, cmd.OutOrStdout())
				if err != nil {
					return err
				}
				if outcome.Status == models.SyncError {
					return errors.New(outcome.Message)
				}
				return nil
			},
		})
	}

	enable := &cobra.Command{
		Use:   "enable <credentials.json>",
		Short: "Enable cloud sync with an OAuth client secret file and download the cloud copy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := current()
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			if !storage.FileExists(path) {
				return fmt.Errorf("%w: %q", cloud.ErrMissingClientSecret, path)
			}

			if err := a.store().SetSetting(storage.SettingCredentialsPath, path); err != nil {
				return err
			}
			a.engine.SetSecretPath(path)
			if err := velocityscout.SetSyncEnabled(a.store(), true); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Cloud sync enabled.")

			outcome, err := runSync(cmd.Context(), a, models.DirectionDownload, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if outcome.Status == models.SyncError {
				disableSync(a)
				return errors.New(outcome.Message)
			}
			return nil
		},
	}

	disable := &cobra.Command{
		Use:   "disable",
		Short: "Disable cloud sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := velocityscout.SetSyncEnabled(current().store(), false); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Cloud sync disabled.")
			return nil
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the sync settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := current()
			store := a.store()
			path, err := clientSecretPath(a.cfg, store)
			if err != nil {
				return err
			}
			token, _, err := store.GetSetting(storage.SettingAuthToken)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Sync enabled:       %t\n", a.syncEnabled())
			fmt.Fprintf(out, "Database file:      %s\n", store.Path())
			fmt.Fprintf(out, "Client secret file: %s\n", path)
			fmt.Fprintf(out, "Authorized:         %t\n", token != "")
			return nil
		},
	}

	cmd.AddCommand(enable, disable, status)
	return cmd
}

func newAuthCmd(current func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the Google Drive authorization",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "login",
		Short: "Authorize Google Drive access now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := current()
			path, err := clientSecretPath(a.cfg, a.store())
			if err != nil {
				return err
			}
			authorizer, err := newAuthorizer(cmd.Flag("auth-flow").Value.String(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if _, err := cloud.NewCredentialStore(a.store(), path, authorizer).Acquire(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Google Drive access is authorized.")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Forget the stored authorization and client secret file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := current()
			if err := cloud.ResetCredentials(a.store()); err != nil {
				return err
			}
			disableSync(a)
			a.engine.SetSecretPath(a.cfg.Sync.CredentialsFile)
			fmt.Fprintln(cmd.OutOrStdout(), "Authentication info has been reset. Enable sync again to reconnect.")
			return nil
		},
	})

	return cmd
}

// runSync runs one sync through the orchestrator and prints its outcome.
func runSync(ctx context.Context, a *app, direction models.Direction, out io.Writer) (models.SyncOutcome, error) {
	fmt.Fprintf(out, "Running %s...\n", direction)
	outcome, err := velocityscout.RunSync(ctx, a.tasks, direction)
	if err != nil {
		return outcome, err
	}
	fmt.Fprintln(out, outcome.Message)
	if outcome.Downloaded {
		log.Info().Str("database", a.store().Path()).Msg("Reloaded database from cloud copy")
	}
	return outcome, nil
}

func disableSync(a *app) {
	if err := velocityscout.SetSyncEnabled(a.store(), false); err != nil {
		log.Warn().Err(err).Msg("Failed to disable sync")
	}
}
