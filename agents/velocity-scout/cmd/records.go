package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	velocityscout "velocity-scout/agents/velocity-scout"
	"velocity-scout/shared/storage"
)

func newExcludeCmd(current func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exclude",
		Short: "Manage videos excluded from future searches",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <video-id>...",
		Short: "Exclude videos from future searches",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := current().store()
			for _, id := range args {
				if err := store.AddExcludedID(id); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Excluded %d videos.\n", len(args))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <video-id>...",
		Short: "Allow excluded videos to be found again",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := current().store().DeleteByID(storage.TableExcluded, args)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d excluded videos.\n", n)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List excluded video ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := current().store().ListExcludedIDs()
			if err != nil {
				return err
			}
			for id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	})

	return cmd
}

func newResultsCmd(current func() *app) *cobra.Command {
	var keyword, output string

	cmd := &cobra.Command{
		Use:   "results",
		Short: "Show, export or delete stored search results",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored results ranked by view velocity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := current().store().ListDiscoveredItems(keyword)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No stored results.")
				return nil
			}
			return velocityscout.WriteReport(cmd.OutOrStdout(), keyword, items, time.Now())
		},
	}
	list.Flags().StringVar(&keyword, "keyword", "", "only results of this search keyword")

	export := &cobra.Command{
		Use:   "export",
		Short: "Save stored results as a text report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := current().store().ListDiscoveredItems(keyword)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				return errors.New("no data to save, please analyze data first")
			}
			now := time.Now()
			path := output
			if path == "" {
				path = velocityscout.ReportFileName(keyword, now)
			}
			if err := velocityscout.SaveReport(path, keyword, items, now); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Results have been successfully saved.\nPath: %s\n", path)
			return nil
		},
	}
	export.Flags().StringVar(&keyword, "keyword", "", "only results of this search keyword")
	export.Flags().StringVarP(&output, "output", "o", "", "report file (default AnalysisResult_<keyword>_<time>.txt)")

	remove := &cobra.Command{
		Use:   "delete <video-id>...",
		Short: "Delete stored results",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := current().store().DeleteByID(storage.TableDiscovered, args)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d results.\n", n)
			return nil
		},
	}

	cmd.AddCommand(list, export, remove)
	return cmd
}

func newKeysCmd(current func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage named YouTube API keys",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <alias> <key>",
		Short: "Store an API key under an alias",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			alias, key := strings.TrimSpace(args[0]), strings.TrimSpace(args[1])
			if alias == "" || key == "" {
				return errors.New("please enter both an alias and an API key")
			}
			if err := current().store().AddAPIKey(alias, key); err != nil {
				if errors.Is(err, storage.ErrDuplicateAPIKey) {
					return fmt.Errorf("the alias or API key is already registered")
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added API key %q.\n", alias)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored API keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := current().store().ListAPIKeys()
			if err != nil {
				return err
			}
			for _, k := range keys {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", k.Alias, maskKey(k.Key))
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <alias>",
		Short: "Delete a stored API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := current().store().DeleteAPIKey(args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no API key stored under alias %q", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted API key %q.\n", args[0])
			return nil
		},
	})

	return cmd
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}
