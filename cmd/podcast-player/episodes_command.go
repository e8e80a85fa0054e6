package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"podcast-player/internal/episodes"
)

func newEpisodesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "episodes",
		Short: "List episodes in the configured store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := ctx.logger(cmd)
			backend, _, err := ctx.openBackend(cmd.Context(), logger)
			if err != nil {
				return err
			}
			defer backend.Close()

			eps, err := episodes.NewFetcher(backend.Source, logger).ListEpisodes(cmd.Context())
			if err != nil {
				return err
			}

			if ctx.wantJSON(cmd) {
				return writeJSON(cmd, eps)
			}
			if len(eps) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No episodes")
				return nil
			}

			rows := make([][]string, 0, len(eps))
			for _, ep := range eps {
				created := ""
				if ep.CreatedAt != nil {
					created = ep.CreatedAt.Local().Format(time.DateTime)
				}
				rows = append(rows, []string{ep.ID.String(), ep.Title, created, ep.AudioURL})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Title", "Created", "Audio"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}
}
