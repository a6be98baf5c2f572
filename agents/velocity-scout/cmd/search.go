package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	velocityscout "velocity-scout/agents/velocity-scout"
	"velocity-scout/agents/velocity-scout/tasks"
	"velocity-scout/internal/models"
	"velocity-scout/shared/config"
)

// shortsMaxDuration is the longest a Short can run, in seconds.
const shortsMaxDuration = 60

type searchOptions struct {
	order       string
	minViews    int64
	maxSubs     int64
	minDuration int
	maxDuration int
	target      int
	shorts      bool
	alias       string
	output      string
}

func newSearchCmd(current func() *app) *cobra.Command {
	opts := &searchOptions{}

	cmd := &cobra.Command{
		Use:   "search <keyword>",
		Short: "Search a keyword and rank matching videos by view velocity",
		Long: "Search a keyword and rank matching videos by view velocity.\n\n" +
			"Filters left unset reuse the values from the previous search.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := current()
			keyword := strings.TrimSpace(strings.Join(args, " "))
			if keyword == "" {
				return errors.New("please enter a search keyword")
			}

			params, err := opts.prepare(cmd, a.store(), a.cfg, keyword)
			if err != nil {
				return err
			}

			events, err := a.tasks.StartDiscovery(cmd.Context(), params)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			terminal, ok := tasks.Await(events, func(ev models.Event) {
				fmt.Fprintln(out, ev.Message)
			})
			if !ok {
				return errors.New("search ended without a result")
			}
			if terminal.Kind == models.EventError {
				return errors.New(terminal.Message)
			}

			now := time.Now()
			fmt.Fprintf(out, "\nAnalysis complete: %d videos found.\n\n", len(terminal.Items))
			if len(terminal.Items) == 0 {
				fmt.Fprintln(out, "No videos matched the filters.")
				return nil
			}
			if err := velocityscout.WriteReport(out, keyword, terminal.Items, now); err != nil {
				return err
			}

			if opts.output != "" {
				if err := velocityscout.SaveReport(opts.output, keyword, terminal.Items, now); err != nil {
					return err
				}
				fmt.Fprintf(out, "Results have been successfully saved.\nPath: %s\n", opts.output)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.order, "order", "", "result order: relevance, date or viewCount")
	f.Int64Var(&opts.minViews, "min-views", 0, "minimum view count")
	f.Int64Var(&opts.maxSubs, "max-subs", 0, "maximum channel subscribers (-1 for no limit)")
	f.IntVar(&opts.minDuration, "min-duration", 0, "minimum duration in seconds")
	f.IntVar(&opts.maxDuration, "max-duration", 0, "maximum duration in seconds (0 for no limit)")
	f.IntVar(&opts.target, "target", 0, "number of videos to collect")
	f.BoolVar(&opts.shorts, "shorts", false, "only Shorts (at most 60 seconds)")
	f.StringVar(&opts.alias, "alias", "", "use the stored API key with this alias")
	f.StringVarP(&opts.output, "output", "o", "", "also save the results as a text report to this file")

	return cmd
}

// prepare builds the search from the remembered settings and the flags given
// on the command line, then remembers it. --shorts narrows only this search.
func (o *searchOptions) prepare(cmd *cobra.Command, store velocityscout.KeyStore, cfg *config.Config, keyword string) (models.SearchParams, error) {
	params, alias, err := velocityscout.LastSearch(store, cfg.SearchDefaults(keyword))
	if err != nil {
		return params, err
	}
	o.apply(cmd, &params, &alias)
	if !models.ValidOrder(params.Order) {
		return params, fmt.Errorf("order %q is not one of relevance, date, viewCount", params.Order)
	}

	params.APIKey, err = velocityscout.ResolveAPIKey(store, cfg, alias)
	if err != nil {
		return params, err
	}
	if err := velocityscout.SaveLastSearch(store, params, alias); err != nil {
		return params, err
	}

	if o.shorts {
		params.MaxDurationSeconds = shortsMaxDuration
		if params.MinDurationSeconds > shortsMaxDuration {
			params.MinDurationSeconds = 0
		}
	}
	return params, nil
}

// apply overrides params with the flags given on the command line.
func (o *searchOptions) apply(cmd *cobra.Command, params *models.SearchParams, alias *string) {
	f := cmd.Flags()
	if f.Changed("order") {
		params.Order = o.order
	}
	if f.Changed("min-views") {
		params.MinViews = o.minViews
	}
	if f.Changed("max-subs") {
		params.MaxSubscribers = o.maxSubs
	}
	if f.Changed("min-duration") {
		params.MinDurationSeconds = o.minDuration
	}
	if f.Changed("max-duration") {
		params.MaxDurationSeconds = o.maxDuration
	}
	if f.Changed("target") && o.target > 0 {
		params.TargetCount = o.target
	}
	if f.Changed("alias") {
		*alias = o.alias
	}
}
