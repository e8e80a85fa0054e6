package main

import (
	"context"
	"io"
	"log"
	"strings"

	"github.com/spf13/cobra"

	"podcast-player/internal/config"
	"podcast-player/internal/store"
)

const logPrefix = "podcast-player "

type commandContext struct {
	configFlag string
	jsonFlag   bool
	verbose    bool
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "podcast-player",
		Short:         "Generate podcast episodes and play them as one continuous timeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&ctx.configFlag, "config", "c", "", "Configuration file path (defaults to $PODPLAYER_CONFIG)")
	rootCmd.PersistentFlags().BoolVar(&ctx.jsonFlag, "json", false, "Emit JSON instead of tables")
	rootCmd.PersistentFlags().BoolVarP(&ctx.verbose, "verbose", "v", false, "Log store and service activity to stderr")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newEpisodesCommand(ctx))
	rootCmd.AddCommand(newTimelineCommand(ctx))
	rootCmd.AddCommand(newCreateCommand(ctx))

	return rootCmd
}

// logger returns the logger for one-shot commands: stderr when verbose,
// discarded otherwise.
func (c *commandContext) logger(cmd *cobra.Command) *log.Logger {
	if !c.verbose {
		return log.New(io.Discard, "", 0)
	}
	return log.New(cmd.ErrOrStderr(), logPrefix, log.LstdFlags|log.Lmsgprefix)
}

func (c *commandContext) configFile() (config.File, error) {
	if path := strings.TrimSpace(c.configFlag); path != "" {
		return config.ReadFile(path)
	}
	return config.LoadFile()
}

// openBackend opens the configured episode store.
func (c *commandContext) openBackend(ctx context.Context, logger *log.Logger) (*store.Backend, config.File, error) {
	file, err := c.configFile()
	if err != nil {
		return nil, config.File{}, err
	}
	storeCfg, err := config.ResolveStore(file)
	if err != nil {
		return nil, config.File{}, err
	}

	opts := store.Options{Debounce: config.RefreshDebounce(), Logger: logger}
	if storeCfg.Backend == config.BackendFS {
		opts.LibraryRoot, err = config.ResolveLibraryRoot()
		if err != nil {
			return nil, config.File{}, err
		}
	}

	backend, err := store.Open(ctx, storeCfg, opts)
	if err != nil {
		return nil, config.File{}, err
	}
	return backend, file, nil
}
