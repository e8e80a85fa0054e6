package auth

import (
	"bufio"
	"bytes"
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"podcast-player/internal/watch"
)

// TokenStore holds the API tokens allowed to use the player service. The
// backing file lists one token per line; blank lines and lines starting with
// '#' are ignored. Edits to the file are picked up without a restart.
type TokenStore struct {
	file    string
	logger  *log.Logger
	watcher *watch.Watcher

	mu     sync.RWMutex
	tokens map[string]struct{}
}

// NewTokenStore loads filePath and watches it for changes.
func NewTokenStore(filePath string, debounce time.Duration, logger *log.Logger) (*TokenStore, error) {
	if logger == nil {
		logger = log.Default()
	}

	s := &TokenStore{
		file:   filepath.Clean(filePath),
		logger: logger,
		tokens: make(map[string]struct{}),
	}

	if err := s.Reload(); err != nil {
		return nil, err
	}

	// Editors replace files by rename, so the directory is watched rather
	// than the file itself.
	w, err := watch.New(watch.Options{
		Paths:    []string{filepath.Dir(s.file)},
		Debounce: debounce,
		Relevant: func(e fsnotify.Event) bool { return filepath.Clean(e.Name) == s.file },
		OnChange: func() {
			if err := s.Reload(); err != nil {
				s.logger.Printf("token reload error: %v", err)
			}
		},
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}
	s.watcher = w

	return s, nil
}

// Close stops watching the token file.
func (s *TokenStore) Close() error {
	if s.watcher == nil {
		return nil
	}
	return s.watcher.Close()
}

// IsValidToken reports whether the provided token is authorized.
func (s *TokenStore) IsValidToken(token string) bool {
	token = strings.TrimSpace(token)
	if token == "" {
		return false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tokens[token]
	return ok
}

// Len returns the number of loaded tokens.
func (s *TokenStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens)
}

// Reload re-reads the token file. A missing file clears all tokens.
func (s *TokenStore) Reload() error {
	data, err := os.ReadFile(s.file)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.swap(map[string]struct{}{})
			s.logger.Printf("token file %s missing; no tokens loaded", s.file)
			return nil
		}
		return err
	}

	tokens := parseTokens(data)
	s.swap(tokens)
	s.logger.Printf("loaded %d api tokens", len(tokens))
	return nil
}

func (s *TokenStore) swap(tokens map[string]struct{}) {
	s.mu.Lock()
	s.tokens = tokens
	s.mu.Unlock()
}

func parseTokens(data []byte) map[string]struct{} {
	tokens := make(map[string]struct{})
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		tokens[line] = struct{}{}
	}
	return tokens
}
