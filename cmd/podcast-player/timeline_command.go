package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"podcast-player/internal/episodes"
	"podcast-player/internal/models"
	"podcast-player/internal/timeline"
)

type timelineOutput struct {
	Episode  models.Episode    `json:"episode"`
	Timeline timeline.Timeline `json:"timeline"`
	Total    float64           `json:"total"`
	Active   *int              `json:"active_index,omitempty"`
}

func newTimelineCommand(ctx *commandContext) *cobra.Command {
	var at float64

	cmd := &cobra.Command{
		Use:   "timeline <episode-id>",
		Short: "Show an episode's intro, clips and transitions with start and end times",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := ctx.logger(cmd)
			backend, _, err := ctx.openBackend(cmd.Context(), logger)
			if err != nil {
				return err
			}
			defer backend.Close()

			details, err := episodes.NewFetcher(backend.Source, logger).Details(cmd.Context(), models.ID(args[0]))
			if err != nil {
				return err
			}
			tl, err := timeline.Build(details)
			if err != nil {
				return err
			}
			if tl.Unpaired > 0 {
				logger.Printf("episode %s: %d clips/transitions without a positional partner", details.Episode.ID, tl.Unpaired)
			}

			out := timelineOutput{Episode: details.Episode, Timeline: tl, Total: tl.Total()}
			if cmd.Flags().Changed("at") {
				if i, ok := tl.Resolve(at); ok {
					out.Active = &i
				}
			}

			if ctx.wantJSON(cmd) {
				return writeJSON(cmd, out)
			}
			return printTimeline(cmd, out)
		},
	}
	cmd.Flags().Float64Var(&at, "at", 0, "Mark the entry playing at this position (seconds)")
	return cmd
}

func printTimeline(cmd *cobra.Command, out timelineOutput) error {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s (%s)\n", out.Episode.Title, out.Episode.ID)
	if out.Episode.Description != "" {
		fmt.Fprintln(w, out.Episode.Description)
	}

	rows := make([][]string, 0, out.Timeline.Len())
	for i, entry := range out.Timeline.Entries {
		marker := ""
		if out.Active != nil && *out.Active == i {
			marker = ">"
		}
		title := entry.Title
		if title == "" {
			title = string(entry.Kind)
		}
		rows = append(rows, []string{
			marker,
			strconv.Itoa(i),
			string(entry.Kind),
			title,
			timeline.FormatClock(entry.StartTime),
			timeline.FormatClock(entry.EndTime),
			timeline.FormatClock(entry.Duration),
		})
	}
	fmt.Fprintln(w, renderTable(
		[]string{"", "#", "Type", "Title", "Start", "End", "Length"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft, alignRight, alignRight, alignRight},
	))
	fmt.Fprintf(w, "Total %s\n", timeline.FormatClock(out.Total))
	return nil
}
