package episodes

import (
	"context"
	"errors"
	"fmt"
	"log"

	"podcast-player/internal/models"
)

// ErrNotFound is returned by a Source when the requested episode does not exist.
var ErrNotFound = errors.New("episode not found")

// Source is the read-only query surface of an episode data store.
//
// Clips and transitions are returned ordered by index ascending. Intro returns
// (nil, nil) when the episode has none.
type Source interface {
	ListEpisodes(ctx context.Context) ([]models.Episode, error)
	Episode(ctx context.Context, id models.ID) (models.Episode, error)
	Clips(ctx context.Context, episodeID models.ID) ([]models.Clip, error)
	Transitions(ctx context.Context, episodeID models.ID) ([]models.Transition, error)
	Intro(ctx context.Context, episodeID models.ID) (*models.Intro, error)
}

// Fetcher reads episodes and their child records from a Source and returns
// them unmodified. Query failures are logged and returned to the caller.
type Fetcher struct {
	src    Source
	logger *log.Logger
}

// NewFetcher wraps src.
func NewFetcher(src Source, logger *log.Logger) *Fetcher {
	if logger == nil {
		logger = log.Default()
	}
	return &Fetcher{src: src, logger: logger}
}

// ListEpisodes returns every episode in the store.
func (f *Fetcher) ListEpisodes(ctx context.Context) ([]models.Episode, error) {
	eps, err := f.src.ListEpisodes(ctx)
	if err != nil {
		return nil, f.fail("list episodes", err)
	}
	if eps == nil {
		eps = []models.Episode{}
	}
	return eps, nil
}

// Episode returns a single episode.
func (f *Fetcher) Episode(ctx context.Context, id models.ID) (models.Episode, error) {
	ep, err := f.src.Episode(ctx, id)
	if err != nil {
		return models.Episode{}, f.fail(fmt.Sprintf("episode %s", id), err)
	}
	return ep, nil
}

// Details returns an episode with its clips, transitions and optional intro.
// The first failing query aborts the fetch.
func (f *Fetcher) Details(ctx context.Context, id models.ID) (models.Details, error) {
	ep, err := f.src.Episode(ctx, id)
	if err != nil {
		return models.Details{}, f.fail(fmt.Sprintf("episode %s", id), err)
	}

	clips, err := f.src.Clips(ctx, id)
	if err != nil {
		return models.Details{}, f.fail(fmt.Sprintf("clips for episode %s", id), err)
	}

	transitions, err := f.src.Transitions(ctx, id)
	if err != nil {
		return models.Details{}, f.fail(fmt.Sprintf("transitions for episode %s", id), err)
	}

	intro, err := f.src.Intro(ctx, id)
	if err != nil {
		return models.Details{}, f.fail(fmt.Sprintf("intro for episode %s", id), err)
	}

	if clips == nil {
		clips = []models.Clip{}
	}
	if transitions == nil {
		transitions = []models.Transition{}
	}

	return models.Details{
		Episode:     ep,
		Clips:       clips,
		Transitions: transitions,
		Intro:       intro,
	}, nil
}

func (f *Fetcher) fail(what string, err error) error {
	wrapped := fmt.Errorf("fetch %s: %w", what, err)
	f.logger.Printf("%v", wrapped)
	return wrapped
}
