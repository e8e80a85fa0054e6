package supabase

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"podcast-player/internal/episodes"
)

type restStub struct {
	mu     sync.Mutex
	tables map[string]string
	seen   []string
}

func (r *restStub) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	table := strings.TrimPrefix(req.URL.Path, "/rest/v1/")
	r.mu.Lock()
	r.seen = append(r.seen, table+"?"+req.URL.RawQuery)
	body, ok := r.tables[table]
	r.mu.Unlock()

	if req.Header.Get("apikey") != "anon-key" {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"no api key"}`))
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"relation does not exist"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}

func (r *restStub) queries() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.seen...)
}

func newTestStore(t *testing.T, tables map[string]string) (*Store, *restStub) {
	t.Helper()
	stub := &restStub{tables: tables}
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	store, err := New(Config{URL: srv.URL, Key: "anon-key"}, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store, stub
}

func TestDetailsThroughREST(t *testing.T) {
	store, stub := newTestStore(t, map[string]string{
		"episodes":    `[{"id": 7, "title": "Go", "description": "d", "audio_url": "https://cdn/7.mp3", "created_at": "2024-05-01T10:00:00.123456+00:00"}]`,
		"clips":       `[{"id": 1, "episode": 7, "index": 0, "title": "a", "description": "", "length": 5}, {"id": 2, "episode": 7, "index": 1, "title": "b", "description": "", "length": 3}]`,
		"transitions": `[{"id": 3, "episode": 7, "index": 0, "length": 1}]`,
		"intros":      `[]`,
	})

	d, err := episodes.NewFetcher(store, log.New(io.Discard, "", 0)).Details(context.Background(), "7")
	if err != nil {
		t.Fatalf("Details: %v", err)
	}
	if d.Episode.ID != "7" || d.Episode.CreatedAt == nil {
		t.Fatalf("unexpected episode %+v", d.Episode)
	}
	if len(d.Clips) != 2 || d.Clips[1].ID != "2" || *d.Clips[1].Duration != 3 {
		t.Fatalf("unexpected clips %+v", d.Clips)
	}
	if len(d.Transitions) != 1 {
		t.Fatalf("unexpected transitions %+v", d.Transitions)
	}
	if d.Intro != nil {
		t.Fatalf("expected empty intros table to mean no intro")
	}

	var clipsQuery string
	for _, q := range stub.queries() {
		if strings.HasPrefix(q, "clips?") {
			clipsQuery = q
		}
	}
	if !strings.Contains(clipsQuery, "episode=eq.7") || !strings.Contains(clipsQuery, "order=index.asc") {
		t.Fatalf("expected clips filtered by episode and ordered by index, got %q", clipsQuery)
	}
}

func TestEpisodeNotFound(t *testing.T) {
	store, _ := newTestStore(t, map[string]string{"episodes": `[]`})
	if _, err := store.Episode(context.Background(), "1"); !errors.Is(err, episodes.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestIntroPresent(t *testing.T) {
	store, _ := newTestStore(t, map[string]string{"intros": `[{"id": "i", "episode": 7, "length": 12}]`})
	intro, err := store.Intro(context.Background(), "7")
	if err != nil {
		t.Fatalf("Intro: %v", err)
	}
	if intro == nil || intro.ID != "i" || *intro.Duration != 12 {
		t.Fatalf("unexpected intro %+v", intro)
	}
}

func TestQueryErrorsSurface(t *testing.T) {
	store, _ := newTestStore(t, map[string]string{})
	if _, err := store.ListEpisodes(context.Background()); err == nil {
		t.Fatalf("expected error for missing table")
	}
}

func TestCancelledContextSkipsQuery(t *testing.T) {
	store, stub := newTestStore(t, map[string]string{"episodes": `[]`})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.ListEpisodes(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(stub.queries()) != 0 {
		t.Fatalf("expected no request after cancellation")
	}
}

func TestNewRequiresCredentials(t *testing.T) {
	if _, err := New(Config{URL: "https://x.supabase.co"}, nil); err == nil {
		t.Fatalf("expected error without key")
	}
}
