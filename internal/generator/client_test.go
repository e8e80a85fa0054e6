package generator

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestCreateEpisodeSendsWrappedRequest(t *testing.T) {
	var received map[string]map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/create_episode" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message":"Episode created","episode":{"id":12,"title":"Rust","audio_url":"https://cdn/12.mp3"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/", time.Second, quietLogger())
	res, err := c.CreateEpisode(context.Background(), Request{Query: "  rust  ", LengthSeconds: 1800})
	if err != nil {
		t.Fatalf("CreateEpisode: %v", err)
	}

	if received["req"]["query"] != "rust" {
		t.Fatalf("expected trimmed query in req envelope, got %v", received)
	}
	if received["req"]["episodeLength"] != float64(1800) {
		t.Fatalf("expected episodeLength 1800, got %v", received["req"]["episodeLength"])
	}
	if res.Message != "Episode created" || res.Episode.ID != "12" || res.Episode.AudioURL != "https://cdn/12.mp3" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestCreateEpisodeValidatesRequest(t *testing.T) {
	c := New("http://127.0.0.1:1", time.Second, quietLogger())
	if _, err := c.CreateEpisode(context.Background(), Request{Query: " ", LengthSeconds: 60}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for empty query, got %v", err)
	}
	if _, err := c.CreateEpisode(context.Background(), Request{Query: "go", LengthSeconds: 0}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for zero length, got %v", err)
	}
}

func TestCreateEpisodeStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"message":"upstream exploded"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second, quietLogger()).CreateEpisode(context.Background(), Request{Query: "go", LengthSeconds: 60})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusBadGateway || statusErr.Body != `{"message":"upstream exploded"}` {
		t.Fatalf("unexpected status error %+v", statusErr)
	}
}

func TestCreateEpisodeStatusErrorKeepsRunesWhole(t *testing.T) {
	body := strings.Repeat("a", maxErrorBody-1) + "été"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second, quietLogger()).CreateEpisode(context.Background(), Request{Query: "go", LengthSeconds: 60})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.Body != strings.Repeat("a", maxErrorBody-1) || !utf8.ValidString(statusErr.Body) {
		t.Fatalf("expected excerpt cut before the split rune, got %d bytes", len(statusErr.Body))
	}
}

func TestCreateEpisodeRejectsOversizedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":"` + strings.Repeat("x", maxResponseBody) + `","episode":{"id":"1"}}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second, quietLogger()).CreateEpisode(context.Background(), Request{Query: "go", LengthSeconds: 60})
	if !errors.Is(err, ErrInvalidResponse) {
		t.Fatalf("expected ErrInvalidResponse, got %v", err)
	}
}

func TestCreateEpisodeRejectsUnexpectedShape(t *testing.T) {
	bodies := []string{
		`not json`,
		`{"message":"queued"}`,
		`{"message":"ok","episode":{"title":"no id"}}`,
	}
	for _, body := range bodies {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		}))
		_, err := New(srv.URL, time.Second, quietLogger()).CreateEpisode(context.Background(), Request{Query: "go", LengthSeconds: 60})
		srv.Close()
		if !errors.Is(err, ErrInvalidResponse) {
			t.Fatalf("body %q: expected ErrInvalidResponse, got %v", body, err)
		}
	}
}

func TestCreateEpisodeHonoursContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := New(srv.URL, 0, quietLogger()).CreateEpisode(ctx, Request{Query: "go", LengthSeconds: 60})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestNewDefaultsBaseURL(t *testing.T) {
	c := New("  ", 0, nil)
	if c.baseURL != DefaultBaseURL {
		t.Fatalf("expected default base URL, got %q", c.baseURL)
	}
}
