package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"podcast-player/internal/config"
	"podcast-player/internal/generator"
)

const defaultEpisodeMinutes = 30

func newCreateCommand(ctx *commandContext) *cobra.Command {
	var (
		query   string
		minutes float64
		baseURL string
	)

	cmd := &cobra.Command{
		Use:   "create [topic...]",
		Short: "Ask the generation service for a new episode",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(query) == "" {
				query = strings.Join(args, " ")
			}
			if strings.TrimSpace(baseURL) == "" {
				baseURL = config.GeneratorURL()
			}

			client := generator.New(baseURL, config.GeneratorTimeout(), ctx.logger(cmd))
			res, err := client.CreateEpisode(cmd.Context(), generator.Request{
				Query:         query,
				LengthSeconds: int(minutes * 60),
			})
			if err != nil {
				return err
			}

			if ctx.wantJSON(cmd) {
				return writeJSON(cmd, res)
			}
			w := cmd.OutOrStdout()
			if res.Message != "" {
				fmt.Fprintln(w, res.Message)
			}
			fmt.Fprintf(w, "Episode %s: %s\n", res.Episode.ID, res.Episode.Title)
			return nil
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "Topic of the episode (defaults to the arguments)")
	cmd.Flags().Float64VarP(&minutes, "minutes", "m", defaultEpisodeMinutes, "Desired episode length in minutes")
	cmd.Flags().StringVar(&baseURL, "generator", "", "Generation service URL (defaults to $PODPLAYER_GENERATOR_URL)")
	return cmd
}
