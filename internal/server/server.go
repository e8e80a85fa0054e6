package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	pathpkg "path"
	"path/filepath"
	"strings"
	"time"

	"podcast-player/internal/episodes"
	"podcast-player/internal/generator"
	"podcast-player/internal/models"
	"podcast-player/internal/player"
	"podcast-player/internal/timeline"
)

// EpisodeService is the read side the handlers need.
type EpisodeService interface {
	ListEpisodes(ctx context.Context) ([]models.Episode, error)
	Details(ctx context.Context, id models.ID) (models.Details, error)
}

// TokenValidator determines whether a supplied token is authorized.
type TokenValidator interface {
	IsValidToken(token string) bool
}

// FeedMetadata describes the static information necessary to render the RSS feed.
type FeedMetadata struct {
	Title       string
	Description string
	Language    string
	Author      string
}

// Options wires the handler. Creator, Validator and AudioRoot are optional:
// without a Creator episode creation answers 503, without a Validator every
// request is allowed, and without an AudioRoot /audio/ answers 404.
type Options struct {
	Episodes  EpisodeService
	Creator   player.Creator
	Sessions  *player.Sessions
	Validator TokenValidator
	AudioRoot string
	Feed      FeedMetadata
	Logger    *log.Logger
}

type serverHandler struct {
	episodes  EpisodeService
	creator   player.Creator
	sessions  *player.Sessions
	validator TokenValidator
	audioRoot string
	feed      FeedMetadata
	logger    *log.Logger
}

const maxBodyBytes = 1 << 20

// New creates the HTTP handler that exposes the episode, player session and
// feed APIs.
func New(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	var absRoot string
	if opts.AudioRoot != "" {
		cleanRoot := filepath.Clean(opts.AudioRoot)
		var err error
		absRoot, err = filepath.Abs(cleanRoot)
		if err != nil {
			logger.Printf("warning: unable to resolve absolute audio root %q: %v", opts.AudioRoot, err)
			absRoot = cleanRoot
		}
	}

	feed := opts.Feed
	if feed.Title == "" {
		feed.Title = "Podcast Player"
	}
	if feed.Description == "" {
		feed.Description = feed.Title
	}

	h := &serverHandler{
		episodes:  opts.Episodes,
		creator:   opts.Creator,
		sessions:  opts.Sessions,
		validator: opts.Validator,
		audioRoot: absRoot,
		feed:      feed,
		logger:    logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/episodes", h.handleEpisodes)
	mux.HandleFunc("/episodes/{id}", h.handleEpisode)
	mux.HandleFunc("/sessions", h.handleSessions)
	mux.HandleFunc("/sessions/{id}", h.handleSession)
	mux.HandleFunc("/sessions/{id}/{action}", h.handleSessionAction)
	mux.HandleFunc("/feed", h.handleFeed)
	mux.HandleFunc("/feed.xml", h.handleFeed)
	mux.HandleFunc("/rss", h.handleFeed)
	mux.HandleFunc("/audio/", h.handleAudio)

	return logRequests(mux, logger)
}

func (h *serverHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *serverHandler) handleAudio(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if _, ok := h.requireToken(w, r); !ok {
		return
	}

	resolved, ok := h.audioPath(strings.TrimPrefix(r.URL.Path, "/audio/"))
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	info, err := os.Stat(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.logger.Printf("failed to stat audio file %s: %v", resolved, err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	if info.IsDir() {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	http.ServeFile(w, r, resolved)
}

// audioPath maps a path below /audio/ onto the audio root. It reports false
// when no root is configured or the path escapes it.
func (h *serverHandler) audioPath(rel string) (string, bool) {
	if h.audioRoot == "" {
		return "", false
	}
	rel = pathpkg.Clean(rel)
	rel = strings.TrimPrefix(rel, "/")
	if rel == "" || rel == "." {
		return "", false
	}

	resolved, err := filepath.Abs(filepath.Join(h.audioRoot, filepath.FromSlash(rel)))
	if err != nil {
		h.logger.Printf("failed to resolve audio path %s: %v", rel, err)
		return "", false
	}
	if !pathWithinRoot(h.audioRoot, resolved) {
		return "", false
	}
	return resolved, true
}

func (h *serverHandler) requireToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.validator == nil {
		return "", true
	}

	token := extractToken(r)
	if token == "" || !h.validator.IsValidToken(token) {
		w.WriteHeader(http.StatusUnauthorized)
		return "", false
	}
	return token, true
}

func (h *serverHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Printf("failed to encode response: %v", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps domain errors onto HTTP statuses.
func (h *serverHandler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var statusErr *generator.StatusError
	switch {
	case errors.Is(err, episodes.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, generator.ErrInvalidRequest), errors.Is(err, player.ErrNoEntry):
		status = http.StatusBadRequest
	case errors.Is(err, timeline.ErrInvalidDuration):
		status = http.StatusUnprocessableEntity
	case errors.As(err, &statusErr), errors.Is(err, generator.ErrInvalidResponse):
		status = http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	if status == http.StatusInternalServerError {
		h.logger.Printf("request failed: %v", err)
	}
	h.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (h *serverHandler) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body: " + err.Error()})
		return false
	}
	return true
}

type statusWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.size += n
	return n, err
}

func logRequests(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r)
		duration := time.Since(start)
		logger.Printf("%s %s -> %d (%dB) in %s", r.Method, r.URL.Path, sw.status, sw.size, duration)
	})
}

func extractToken(r *http.Request) string {
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token
	}

	if header := strings.TrimSpace(r.Header.Get("X-Podcast-Token")); header != "" {
		return header
	}

	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if authz == "" {
		return ""
	}

	if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return strings.TrimSpace(authz[7:])
	}

	return ""
}

func pathWithinRoot(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	return rel != ".." && !strings.HasPrefix(rel, "../")
}
