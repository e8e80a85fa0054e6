package supabase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/supabase-community/postgrest-go"
	supabase "github.com/supabase-community/supabase-go"

	"podcast-player/internal/episodes"
	"podcast-player/internal/models"
)

// Config identifies a Supabase project.
type Config struct {
	// URL is the project URL, e.g. https://<project-ref>.supabase.co.
	URL string
	// Key is the anon or service_role API key.
	Key string
}

// Store reads episode tables through Supabase's REST interface.
type Store struct {
	client *supabase.Client
	logger *log.Logger
}

var _ episodes.Source = (*Store)(nil)

var ascending = &postgrest.OrderOpts{Ascending: true}

// New creates a REST-mode store. No request is made until the first query.
// The REST client has no context support, so cancellation is only checked
// before each query.
func New(cfg Config, logger *log.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.URL) == "" || strings.TrimSpace(cfg.Key) == "" {
		return nil, errors.New("supabase URL and key are required")
	}
	if logger == nil {
		logger = log.Default()
	}

	client, err := supabase.NewClient(strings.TrimRight(cfg.URL, "/"), cfg.Key, nil)
	if err != nil {
		return nil, fmt.Errorf("initialize supabase client: %w", err)
	}
	return &Store{client: client, logger: logger}, nil
}

// ListEpisodes returns every row of the episodes table.
func (s *Store) ListEpisodes(ctx context.Context) ([]models.Episode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []models.Episode
	if _, err := s.client.From("episodes").Select("*", "", false).ExecuteTo(&out); err != nil {
		return nil, fmt.Errorf("select episodes: %w", err)
	}
	return out, nil
}

// Episode returns the episode with id, or episodes.ErrNotFound.
func (s *Store) Episode(ctx context.Context, id models.ID) (models.Episode, error) {
	if err := ctx.Err(); err != nil {
		return models.Episode{}, err
	}
	var out []models.Episode
	_, err := s.client.From("episodes").
		Select("*", "", false).
		Eq("id", string(id)).
		Limit(1, "").
		ExecuteTo(&out)
	if err != nil {
		return models.Episode{}, fmt.Errorf("select episode %s: %w", id, err)
	}
	if len(out) == 0 {
		return models.Episode{}, episodes.ErrNotFound
	}
	return out[0], nil
}

// Clips returns the clips of an episode ordered by index.
func (s *Store) Clips(ctx context.Context, episodeID models.ID) ([]models.Clip, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []models.Clip
	_, err := s.client.From("clips").
		Select("*", "", false).
		Eq("episode", string(episodeID)).
		Order("index", ascending).
		ExecuteTo(&out)
	if err != nil {
		return nil, fmt.Errorf("select clips: %w", err)
	}
	return out, nil
}

// Transitions returns the transitions of an episode ordered by index.
func (s *Store) Transitions(ctx context.Context, episodeID models.ID) ([]models.Transition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []models.Transition
	_, err := s.client.From("transitions").
		Select("*", "", false).
		Eq("episode", string(episodeID)).
		Order("index", ascending).
		ExecuteTo(&out)
	if err != nil {
		return nil, fmt.Errorf("select transitions: %w", err)
	}
	return out, nil
}

// Intro returns the intro of an episode, or nil when it has none. A list
// query is used so that absence is an empty result rather than an error.
func (s *Store) Intro(ctx context.Context, episodeID models.ID) (*models.Intro, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []models.Intro
	_, err := s.client.From("intros").
		Select("*", "", false).
		Eq("episode", string(episodeID)).
		Limit(1, "").
		ExecuteTo(&out)
	if err != nil {
		return nil, fmt.Errorf("select intro: %w", err)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return &out[0], nil
}
