package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"podcast-player/internal/auth"
	"podcast-player/internal/config"
	"podcast-player/internal/episodes"
	"podcast-player/internal/generator"
	"podcast-player/internal/player"
	"podcast-player/internal/server"
)

const sessionSweepInterval = time.Minute

func newServeCommand(ctx *commandContext) *cobra.Command {
	var listenFlag string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, player sessions and RSS feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := log.New(cmd.OutOrStdout(), logPrefix, log.LstdFlags|log.Lmsgprefix)
			return runServe(cmd.Context(), ctx, listenFlag, logger)
		},
	}
	cmd.Flags().StringVar(&listenFlag, "listen", "", "Listen address (defaults to $PODPLAYER_LISTEN_ADDR or 127.0.0.1:8080)")
	return cmd
}

func runServe(parent context.Context, ctx *commandContext, listenAddr string, logger *log.Logger) error {
	if parent == nil {
		parent = context.Background()
	}

	if strings.TrimSpace(listenAddr) == "" {
		listenAddr = config.ListenAddr()
	}
	if err := config.ValidateListenAddr(listenAddr); err != nil {
		return err
	}

	backend, file, err := ctx.openBackend(parent, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Printf("error closing store: %v", err)
		}
	}()

	tokenFile, tokensEnabled, err := config.ResolveTokenFile()
	if err != nil {
		return err
	}

	opts := server.Options{
		AudioRoot: backend.AudioRoot,
		Logger:    logger,
	}

	if tokensEnabled {
		tokenStore, err := auth.NewTokenStore(tokenFile, config.RefreshDebounce(), logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := tokenStore.Close(); err != nil {
				logger.Printf("error closing token store: %v", err)
			}
		}()
		opts.Validator = tokenStore
	}

	feedConfig := config.ResolveFeedMetadata(file)
	opts.Feed = server.FeedMetadata{
		Title:       feedConfig.Title,
		Description: feedConfig.Description,
		Language:    feedConfig.Language,
		Author:      feedConfig.Author,
	}

	generatorTimeout := config.GeneratorTimeout()
	fetcher := episodes.NewFetcher(backend.Source, logger)
	gen := generator.New(config.GeneratorURL(), generatorTimeout, logger)
	sessions := player.NewSessions(func() *player.Controller {
		return player.NewController(fetcher, gen, nil, logger)
	}, config.SessionIdle(), logger)

	opts.Episodes = fetcher
	opts.Creator = gen
	opts.Sessions = sessions

	httpServer := &http.Server{
		Addr:              listenAddr,
		Handler:           server.New(opts),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      generatorTimeout + 30*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go sessions.Run(sigCtx, sessionSweepInterval)

	go func() {
		<-sigCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("graceful shutdown error: %v", err)
		}
	}()

	where := backend.AudioRoot
	if where == "" {
		where = "remote store"
	}
	logger.Printf("listening on %s (episodes: %s, generator: %s)", listenAddr, where, config.GeneratorURL())
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Println("shutdown complete")
	return nil
}
