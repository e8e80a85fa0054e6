package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"podcast-player/internal/models"
)

// DefaultBaseURL is where the generation service listens unless configured.
const DefaultBaseURL = "http://localhost:5000"

const (
	maxErrorBody    = 512
	maxResponseBody = 1 << 20
)

var (
	// ErrInvalidRequest is returned before any network call for an unusable request.
	ErrInvalidRequest = errors.New("invalid episode request")
	// ErrInvalidResponse is returned when a 2xx response does not carry a created episode.
	ErrInvalidResponse = errors.New("invalid generation response")
)

// StatusError is returned when the generation service answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("generation service returned %d", e.StatusCode)
	}
	return fmt.Sprintf("generation service returned %d: %s", e.StatusCode, e.Body)
}

// Request describes the episode to generate.
type Request struct {
	Query         string
	LengthSeconds int
}

// Result is a successful generation.
type Result struct {
	Message string         `json:"message"`
	Episode models.Episode `json:"episode"`
}

// Client calls the remote episode generation service.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *log.Logger
}

// New creates a client for baseURL. A zero timeout leaves requests bounded
// only by the caller's context.
func New(baseURL string, timeout time.Duration, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default()
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type createBody struct {
	Req createReq `json:"req"`
}

type createReq struct {
	Query         string `json:"query"`
	EpisodeLength int    `json:"episodeLength"`
}

type createResponse struct {
	Message string          `json:"message"`
	Episode *models.Episode `json:"episode"`
}

// CreateEpisode asks the service to generate an episode. The call is not retried.
func (c *Client) CreateEpisode(ctx context.Context, req Request) (Result, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return Result{}, fmt.Errorf("%w: query is empty", ErrInvalidRequest)
	}
	if req.LengthSeconds <= 0 {
		return Result{}, fmt.Errorf("%w: length must be positive, got %d", ErrInvalidRequest, req.LengthSeconds)
	}

	payload, err := json.Marshal(createBody{Req: createReq{Query: query, EpisodeLength: req.LengthSeconds}})
	if err != nil {
		return Result{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/create_episode", bytes.NewReader(payload))
	if err != nil {
		return Result{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("create episode: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody+1))
	if err != nil {
		return Result{}, fmt.Errorf("read generation response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, &StatusError{StatusCode: resp.StatusCode, Body: excerpt(body)}
	}
	if len(body) > maxResponseBody {
		return Result{}, fmt.Errorf("%w: response exceeds %d bytes", ErrInvalidResponse, maxResponseBody)
	}

	var decoded createResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if decoded.Episode == nil || decoded.Episode.ID == "" {
		return Result{}, fmt.Errorf("%w: response has no episode id", ErrInvalidResponse)
	}

	c.logger.Printf("generated episode %s (%q) in %s", decoded.Episode.ID, decoded.Episode.Title, time.Since(start).Round(time.Millisecond))
	return Result{Message: decoded.Message, Episode: *decoded.Episode}, nil
}

// excerpt trims body to at most maxErrorBody bytes without splitting a rune.
func excerpt(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) <= maxErrorBody {
		return s
	}
	n := maxErrorBody
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
