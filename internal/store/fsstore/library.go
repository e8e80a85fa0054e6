package fsstore

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"podcast-player/internal/episodes"
	"podcast-player/internal/models"
	"podcast-player/internal/watch"
)

// Library serves episodes described by manifest files under a root
// directory and keeps them current as files change.
type Library struct {
	root    string
	logger  *log.Logger
	watcher *watch.Watcher

	mu      sync.RWMutex
	order   []models.ID
	records map[models.ID]record
}

var _ episodes.Source = (*Library)(nil)

// NewLibrary scans root and starts watching it. Any directory containing an
// episode.yaml is an episode.
func NewLibrary(root string, debounce time.Duration, logger *log.Logger) (*Library, error) {
	if logger == nil {
		logger = log.Default()
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create library root: %w", err)
	}

	lib := &Library{
		root:    root,
		logger:  logger,
		records: make(map[models.ID]record),
	}

	if err := lib.Refresh(); err != nil {
		return nil, err
	}

	w, err := watch.New(watch.Options{
		Paths:     []string{root},
		Recursive: true,
		Debounce:  debounce,
		Relevant:  lib.relevant,
		OnChange: func() {
			if err := lib.Refresh(); err != nil {
				lib.logger.Printf("refresh error: %v", err)
			}
		},
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}
	lib.watcher = w

	return lib, nil
}

// Root returns the library directory.
func (l *Library) Root() string {
	return l.root
}

// Close stops watching.
func (l *Library) Close() error {
	if l.watcher == nil {
		return nil
	}
	return l.watcher.Close()
}

// Refresh rescans the library. Broken manifests are logged and skipped.
func (l *Library) Refresh() error {
	records := make(map[models.ID]record)
	var order []models.ID

	err := filepath.WalkDir(l.root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			l.logger.Printf("walk error for %s: %v", p, err)
			return nil
		}
		if d.IsDir() || d.Name() != ManifestName {
			return nil
		}

		dir := filepath.Dir(p)
		rel, err := filepath.Rel(l.root, dir)
		if err != nil {
			l.logger.Printf("manifest error for %s: %v", p, err)
			return nil
		}
		rec, err := loadEpisode(dir, filepath.ToSlash(rel))
		if err != nil {
			l.logger.Printf("manifest error for %s: %v", p, err)
			return nil
		}
		if _, dup := records[rec.episode.ID]; dup {
			l.logger.Printf("duplicate episode id %s in %s; skipped", rec.episode.ID, p)
			return nil
		}
		records[rec.episode.ID] = rec
		order = append(order, rec.episode.ID)
		return nil
	})
	if err != nil {
		return err
	}

	sort.SliceStable(order, func(i, j int) bool {
		a, b := records[order[i]].episode, records[order[j]].episode
		if a.CreatedAt != nil && b.CreatedAt != nil && !a.CreatedAt.Equal(*b.CreatedAt) {
			return a.CreatedAt.Before(*b.CreatedAt)
		}
		return a.ID < b.ID
	})

	l.mu.Lock()
	l.records = records
	l.order = order
	l.mu.Unlock()

	l.logger.Printf("library refreshed with %d episodes", len(order))
	return nil
}

// ListEpisodes returns a snapshot of every episode, oldest first.
func (l *Library) ListEpisodes(ctx context.Context) ([]models.Episode, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.Episode, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.records[id].episode)
	}
	return out, nil
}

// Episode returns one episode or episodes.ErrNotFound.
func (l *Library) Episode(ctx context.Context, id models.ID) (models.Episode, error) {
	rec, err := l.lookup(id)
	if err != nil {
		return models.Episode{}, err
	}
	return rec.episode, nil
}

// Clips returns the episode's clips ordered by index.
func (l *Library) Clips(ctx context.Context, id models.ID) ([]models.Clip, error) {
	rec, err := l.lookup(id)
	if err != nil {
		return nil, err
	}
	out := make([]models.Clip, len(rec.clips))
	copy(out, rec.clips)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

// Transitions returns the episode's transitions ordered by index.
func (l *Library) Transitions(ctx context.Context, id models.ID) ([]models.Transition, error) {
	rec, err := l.lookup(id)
	if err != nil {
		return nil, err
	}
	out := make([]models.Transition, len(rec.transitions))
	copy(out, rec.transitions)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

// Intro returns the episode's intro, or nil.
func (l *Library) Intro(ctx context.Context, id models.ID) (*models.Intro, error) {
	rec, err := l.lookup(id)
	if err != nil {
		return nil, err
	}
	if rec.intro == nil {
		return nil, nil
	}
	intro := *rec.intro
	return &intro, nil
}

func (l *Library) lookup(id models.ID) (record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.records[id]
	if !ok {
		return record{}, episodes.ErrNotFound
	}
	return rec, nil
}

// relevant accepts manifest and audio edits, new directories, and anything
// removed or renamed, since a removed directory reports only its own path.
func (l *Library) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		return true
	}
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			return true
		}
	}
	name := filepath.Base(event.Name)
	if name == ManifestName {
		return true
	}
	return isAudio(name)
}

var audioExtensions = map[string]struct{}{
	".mp3":  {},
	".m4a":  {},
	".aac":  {},
	".wav":  {},
	".flac": {},
	".ogg":  {},
}

func isAudio(name string) bool {
	_, ok := audioExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}
