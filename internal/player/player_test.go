package player

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"podcast-player/internal/generator"
	"podcast-player/internal/models"
	"podcast-player/internal/timeline"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func sampleDetails(id models.ID) models.Details {
	return models.Details{
		Episode: models.Episode{ID: id, Title: "Episode " + string(id)},
		Clips: []models.Clip{
			{ID: "c0", Index: 0, Duration: models.Seconds(5)},
			{ID: "c1", Index: 1, Duration: models.Seconds(3)},
		},
		Transitions: []models.Transition{{ID: "t0", Index: 0, Duration: models.Seconds(1)}},
	}
}

type fakeFetcher struct {
	mu       sync.Mutex
	details  map[models.ID]models.Details
	episodes []models.Episode
	gates    map[models.ID]chan struct{}
	listErr  error
}

func (f *fakeFetcher) ListEpisodes(ctx context.Context) ([]models.Episode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.episodes, f.listErr
}

func (f *fakeFetcher) Details(ctx context.Context, id models.ID) (models.Details, error) {
	f.mu.Lock()
	gate := f.gates[id]
	d, ok := f.details[id]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return models.Details{}, ctx.Err()
		}
	}
	if !ok {
		return models.Details{}, errors.New("not found")
	}
	return d, nil
}

type fakeAudio struct {
	seeks []float64
	plays int
}

func (a *fakeAudio) Seek(seconds float64) { a.seeks = append(a.seeks, seconds) }
func (a *fakeAudio) Play()                { a.plays++ }

func TestSelectBuildsTimeline(t *testing.T) {
	f := &fakeFetcher{details: map[models.ID]models.Details{"1": sampleDetails("1")}}
	c := NewController(f, nil, nil, quietLogger())

	s, err := c.Select(context.Background(), "1")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if s.Loading || s.Selected == nil || s.Selected.ID != "1" {
		t.Fatalf("unexpected state %+v", s)
	}
	if s.Timeline.Len() != 3 || s.Timeline.Total() != 9 {
		t.Fatalf("unexpected timeline %+v", s.Timeline)
	}
}

func TestPositionUpdatesResolveActiveEntry(t *testing.T) {
	f := &fakeFetcher{details: map[models.ID]models.Details{"1": sampleDetails("1")}}
	c := NewController(f, nil, nil, quietLogger())
	if _, err := c.Select(context.Background(), "1"); err != nil {
		t.Fatalf("Select: %v", err)
	}

	if s := c.UpdatePosition(5.5); s.ActiveIndex != 1 {
		t.Fatalf("expected transition active at 5.5, got %d", s.ActiveIndex)
	}
	if s := c.UpdatePosition(7); s.ActiveIndex != 2 {
		t.Fatalf("expected clip1 active at 7, got %d", s.ActiveIndex)
	}
	s := c.UpdatePosition(9)
	if s.ActiveIndex != 2 {
		t.Fatalf("expected last index retained at end, got %d", s.ActiveIndex)
	}
	if s.Position != 9 {
		t.Fatalf("expected position recorded, got %v", s.Position)
	}
	if s := c.UpdatePosition(1000); s.ActiveIndex != 2 {
		t.Fatalf("expected last index retained past end, got %d", s.ActiveIndex)
	}
}

func TestSeekMovesToEntryStartAndPlays(t *testing.T) {
	f := &fakeFetcher{details: map[models.ID]models.Details{"1": sampleDetails("1")}}
	audio := &fakeAudio{}
	c := NewController(f, nil, audio, quietLogger())
	before, err := c.Select(context.Background(), "1")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}

	s, err := c.Seek(2)
	if err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if s.Position != 6 || !s.Playing || s.ActiveIndex != 2 {
		t.Fatalf("unexpected state after seek %+v", s)
	}
	if len(audio.seeks) != 1 || audio.seeks[0] != 6 || audio.plays != 1 {
		t.Fatalf("expected audio seek to 6 and play, got %+v", audio)
	}
	for i := range before.Timeline.Entries {
		if before.Timeline.Entries[i] != s.Timeline.Entries[i] {
			t.Fatalf("seek altered entry %d: %+v -> %+v", i, before.Timeline.Entries[i], s.Timeline.Entries[i])
		}
	}

	if _, err := c.Seek(3); !errors.Is(err, ErrNoEntry) {
		t.Fatalf("expected ErrNoEntry, got %v", err)
	}
	if len(audio.seeks) != 1 {
		t.Fatalf("expected no audio call for invalid seek")
	}
}

func TestLatestSelectionWins(t *testing.T) {
	slow := make(chan struct{})
	f := &fakeFetcher{
		details: map[models.ID]models.Details{"slow": sampleDetails("slow"), "fast": sampleDetails("fast")},
		gates:   map[models.ID]chan struct{}{"slow": slow},
	}
	c := NewController(f, nil, nil, quietLogger())

	done := make(chan error, 1)
	go func() {
		_, err := c.Select(context.Background(), "slow")
		done <- err
	}()

	waitFor(t, func() bool { return c.State().Loading }, "slow request started")

	if _, err := c.Select(context.Background(), "fast"); err != nil {
		t.Fatalf("Select fast: %v", err)
	}
	close(slow)
	if err := <-done; err != nil {
		t.Fatalf("expected superseded select to return no error, got %v", err)
	}

	s := c.State()
	if s.Selected == nil || s.Selected.ID != "fast" || s.Loading {
		t.Fatalf("expected later request to win, got %+v", s)
	}
}

func TestSupersededSelectFailureIsSilent(t *testing.T) {
	f := &fakeFetcher{
		details: map[models.ID]models.Details{"fast": sampleDetails("fast")},
		gates:   map[models.ID]chan struct{}{"slow": make(chan struct{})},
	}
	c := NewController(f, nil, nil, quietLogger())

	done := make(chan error, 1)
	go func() {
		_, err := c.Select(context.Background(), "slow")
		done <- err
	}()
	waitFor(t, func() bool { return c.State().Loading }, "slow request started")

	if _, err := c.Select(context.Background(), "fast"); err != nil {
		t.Fatalf("Select fast: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected no error from cancelled select, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("superseded select was not cancelled")
	}
	if s := c.State(); s.Selected == nil || s.Selected.ID != "fast" || s.Err != "" {
		t.Fatalf("expected fast episode without error, got %+v", s)
	}
}

func TestSelectFailureKeepsNothingLoading(t *testing.T) {
	f := &fakeFetcher{details: map[models.ID]models.Details{}}
	c := NewController(f, nil, nil, quietLogger())
	s, err := c.Select(context.Background(), "missing")
	if err == nil {
		t.Fatalf("expected error")
	}
	if s.Loading || s.Err == "" {
		t.Fatalf("expected error recorded and loading cleared, got %+v", s)
	}
}

func TestSelectRejectsInvalidDurations(t *testing.T) {
	d := sampleDetails("1")
	d.Clips[1].Duration = nil
	f := &fakeFetcher{details: map[models.ID]models.Details{"1": d}}
	c := NewController(f, nil, nil, quietLogger())
	if _, err := c.Select(context.Background(), "1"); !errors.Is(err, timeline.ErrInvalidDuration) {
		t.Fatalf("expected ErrInvalidDuration, got %v", err)
	}
}

func TestRefreshFailureLeavesListUnchanged(t *testing.T) {
	f := &fakeFetcher{episodes: []models.Episode{{ID: "1"}}}
	c := NewController(f, nil, nil, quietLogger())
	if _, err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	f.listErr = errors.New("db down")
	s, err := c.Refresh(context.Background())
	if err == nil {
		t.Fatalf("expected refresh error")
	}
	if len(s.Episodes) != 1 {
		t.Fatalf("expected previous list retained, got %+v", s.Episodes)
	}
}

type fakeCreator struct {
	req generator.Request
	res generator.Result
	err error
}

func (f *fakeCreator) CreateEpisode(ctx context.Context, req generator.Request) (generator.Result, error) {
	f.req = req
	return f.res, f.err
}

func TestCreateSelectsNewEpisode(t *testing.T) {
	f := &fakeFetcher{
		details:  map[models.ID]models.Details{"9": sampleDetails("9")},
		episodes: []models.Episode{{ID: "9", Title: "New"}},
	}
	cr := &fakeCreator{res: generator.Result{Message: "Episode created", Episode: models.Episode{ID: "9"}}}
	c := NewController(f, cr, nil, quietLogger())

	s, err := c.Create(context.Background(), generator.Request{Query: "go", LengthSeconds: 1800})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if cr.req.LengthSeconds != 1800 {
		t.Fatalf("unexpected request %+v", cr.req)
	}
	if s.Message != "Episode created" || s.Selected == nil || s.Selected.ID != "9" || len(s.Episodes) != 1 {
		t.Fatalf("unexpected state %+v", s)
	}
}

func TestCreateFailureChangesNothing(t *testing.T) {
	c := NewController(&fakeFetcher{}, &fakeCreator{err: errors.New("nope")}, nil, quietLogger())
	s, err := c.Create(context.Background(), generator.Request{Query: "go", LengthSeconds: 60})
	if err == nil {
		t.Fatalf("expected error")
	}
	if s.Message != "" || s.Selected != nil {
		t.Fatalf("expected unchanged state, got %+v", s)
	}

	if _, err := NewController(&fakeFetcher{}, nil, nil, quietLogger()).Create(context.Background(), generator.Request{}); err == nil {
		t.Fatalf("expected error without a creator")
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}
