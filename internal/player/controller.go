package player

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"podcast-player/internal/generator"
	"podcast-player/internal/models"
	"podcast-player/internal/timeline"
)

// ErrNoEntry is returned when seeking to an index outside the timeline.
var ErrNoEntry = errors.New("no timeline entry at index")

// Fetcher loads episodes for a player.
type Fetcher interface {
	ListEpisodes(ctx context.Context) ([]models.Episode, error)
	Details(ctx context.Context, id models.ID) (models.Details, error)
}

// Creator requests new episodes from the generation service.
type Creator interface {
	CreateEpisode(ctx context.Context, req generator.Request) (generator.Result, error)
}

// Audio is the playback primitive a player drives on seek.
type Audio interface {
	Seek(seconds float64)
	Play()
}

// Controller runs the fetch-then-build pipeline for one player and feeds the
// results, position updates and seeks through its Store.
type Controller struct {
	store   *Store
	fetcher Fetcher
	creator Creator
	audio   Audio
	logger  *log.Logger

	mu       sync.Mutex
	requests uint64
	inflight context.CancelFunc
}

// NewController wires a controller. creator and audio may be nil.
func NewController(fetcher Fetcher, creator Creator, audio Audio, logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.Default()
	}
	return &Controller{
		store:   NewStore(),
		fetcher: fetcher,
		creator: creator,
		audio:   audio,
		logger:  logger,
	}
}

// State returns the current snapshot.
func (c *Controller) State() State {
	return c.store.State()
}

// Refresh reloads the episode list. On failure the list is left unchanged.
func (c *Controller) Refresh(ctx context.Context) (State, error) {
	eps, err := c.fetcher.ListEpisodes(ctx)
	if err != nil {
		c.logger.Printf("refresh episodes: %v", err)
		return c.store.State(), err
	}
	return c.store.Dispatch(EpisodesLoaded{Episodes: eps}), nil
}

// Select loads an episode and rebuilds the timeline from scratch. A later
// Select supersedes an earlier one: the earlier fetch is cancelled and its
// result, should it still arrive, is discarded. A superseded Select returns
// the current state and no error.
func (c *Controller) Select(ctx context.Context, id models.ID) (State, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	c.requests++
	reqID := c.requests
	if c.inflight != nil {
		c.inflight()
	}
	c.inflight = cancel
	c.store.Dispatch(SelectRequested{RequestID: reqID, EpisodeID: id})
	c.mu.Unlock()

	details, err := c.fetcher.Details(ctx, id)
	if err != nil {
		if c.superseded(reqID) {
			return c.store.State(), nil
		}
		return c.store.Dispatch(DetailsFailed{RequestID: reqID, Err: err}), err
	}

	tl, err := timeline.Build(details)
	if err != nil {
		err = fmt.Errorf("build timeline for episode %s: %w", id, err)
		c.logger.Printf("%v", err)
		return c.store.Dispatch(DetailsFailed{RequestID: reqID, Err: err}), err
	}
	if tl.Unpaired > 0 {
		c.logger.Printf("episode %s: %d clips/transitions without a positional partner", id, tl.Unpaired)
	}

	return c.store.Dispatch(DetailsLoaded{RequestID: reqID, Details: details, Timeline: tl}), nil
}

func (c *Controller) superseded(reqID uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return reqID != c.requests
}

// UpdatePosition records the playback position and re-resolves the active
// entry. Positions past the end keep the last active entry.
func (c *Controller) UpdatePosition(seconds float64) State {
	return c.store.Dispatch(PositionUpdated{Seconds: seconds})
}

// SetPlaying records play/pause state reported by the audio primitive.
func (c *Controller) SetPlaying(playing bool) State {
	return c.store.Dispatch(PlaybackChanged{Playing: playing})
}

// Seek moves playback to the start of the entry at index and resumes playing.
func (c *Controller) Seek(index int) (State, error) {
	entry, ok := c.store.State().Timeline.Entry(index)
	if !ok {
		return c.store.State(), fmt.Errorf("%w %d", ErrNoEntry, index)
	}
	s := c.store.Dispatch(Seeked{Index: index})
	if c.audio != nil {
		c.audio.Seek(entry.StartTime)
		c.audio.Play()
	}
	return s, nil
}

// Create asks the generation service for a new episode, refreshes the list
// and selects the new episode.
func (c *Controller) Create(ctx context.Context, req generator.Request) (State, error) {
	if c.creator == nil {
		return c.store.State(), errors.New("episode generation is not configured")
	}
	res, err := c.creator.CreateEpisode(ctx, req)
	if err != nil {
		c.logger.Printf("create episode: %v", err)
		return c.store.State(), err
	}
	c.store.Dispatch(Generated{Message: res.Message})

	if _, err := c.Refresh(ctx); err != nil {
		c.logger.Printf("refresh after create: %v", err)
	}
	return c.Select(ctx, res.Episode.ID)
}

// Close cancels any in-flight fetch.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight != nil {
		c.inflight()
		c.inflight = nil
	}
}
