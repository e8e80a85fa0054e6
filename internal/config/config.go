package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	BackendFS       = "fs"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendSupabase = "supabase"
)

const (
	defaultListenAddr        = "127.0.0.1:8080"
	defaultLibraryDir        = "library"
	defaultRefreshDebounceMS = 500
	defaultGeneratorURL      = "http://localhost:5000"
	defaultGeneratorTimeout  = 10 * time.Minute
	defaultSessionIdle       = 30 * time.Minute
	defaultSQLitePath        = "podcast-player.db"
	defaultFeedTitle         = "Podcast Player"
	defaultFeedDescription   = "Generated podcast episodes."
	defaultFeedLanguage      = "en"
)

// File is the optional YAML configuration named by PODPLAYER_CONFIG.
// Environment variables take precedence over every field.
type File struct {
	Store StoreFile `yaml:"store"`
	Feed  FeedFile  `yaml:"feed"`
}

// StoreFile is the store section of the configuration file.
type StoreFile struct {
	Backend     string `yaml:"backend"`
	DSN         string `yaml:"dsn"`
	SupabaseURL string `yaml:"supabase_url"`
	SupabaseKey string `yaml:"supabase_key"`
	DBPassword  string `yaml:"db_password"`
}

// FeedFile is the feed section of the configuration file.
type FeedFile struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Language    string `yaml:"language"`
	Author      string `yaml:"author"`
}

// LoadFile reads the file named by PODPLAYER_CONFIG. An unset variable yields
// an empty File.
func LoadFile() (File, error) {
	path := strings.TrimSpace(os.Getenv("PODPLAYER_CONFIG"))
	if path == "" {
		return File{}, nil
	}
	return ReadFile(path)
}

// ReadFile parses the YAML configuration at path.
func ReadFile(path string) (File, error) {
	resolved, err := expandPath(path)
	if err != nil {
		return File{}, err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return File{}, err
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return File{}, fmt.Errorf("parse %s: %w", resolved, err)
	}
	return file, nil
}

// ListenAddr returns the TCP address the HTTP server should bind to.
func ListenAddr() string {
	return envOr("PODPLAYER_LISTEN_ADDR", defaultListenAddr)
}

// ValidateListenAddr ensures the configured listen address is restricted to localhost.
func ValidateListenAddr(addr string) error {
	addr = strings.TrimSpace(strings.ToLower(addr))
	if strings.HasPrefix(addr, "127.0.0.1:") || strings.HasPrefix(addr, "localhost:") || strings.HasPrefix(addr, "[::1]:") {
		return nil
	}
	return errors.New("listen address must bind to localhost for security")
}

// ResolveLibraryRoot returns the absolute episode library directory, creating
// it when missing.
func ResolveLibraryRoot() (string, error) {
	dir := strings.TrimSpace(os.Getenv("PODPLAYER_LIBRARY_DIR"))
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(cwd, defaultLibraryDir)
	}

	abs, err := expandPath(dir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", err
	}
	return abs, nil
}

// RefreshDebounce returns the quiet period between file-system events and a
// library or token refresh.
func RefreshDebounce() time.Duration {
	value := strings.TrimSpace(os.Getenv("PODPLAYER_REFRESH_DEBOUNCE_MS"))
	if value == "" {
		return time.Duration(defaultRefreshDebounceMS) * time.Millisecond
	}

	ms, err := strconv.Atoi(value)
	if err != nil || ms < 0 {
		return time.Duration(defaultRefreshDebounceMS) * time.Millisecond
	}
	return time.Duration(ms) * time.Millisecond
}

// GeneratorURL returns the base URL of the episode generation service.
func GeneratorURL() string {
	return strings.TrimRight(envOr("PODPLAYER_GENERATOR_URL", defaultGeneratorURL), "/")
}

// GeneratorTimeout bounds a single generation request. Generation is slow, so
// the default is generous.
func GeneratorTimeout() time.Duration {
	return envDuration("PODPLAYER_GENERATOR_TIMEOUT", defaultGeneratorTimeout)
}

// SessionIdle returns how long an untouched player session survives.
func SessionIdle() time.Duration {
	return envDuration("PODPLAYER_SESSION_IDLE", defaultSessionIdle)
}

// ResolveTokenFile returns the absolute path to the API token file when configured.
// The file is created if it does not already exist. When no file is configured the
// second return value will be false.
func ResolveTokenFile() (string, bool, error) {
	path := strings.TrimSpace(os.Getenv("PODPLAYER_TOKEN_FILE"))
	if path == "" {
		return "", false, nil
	}

	abs, err := expandPath(path)
	if err != nil {
		return "", false, err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", false, err
	}

	if _, err := os.Stat(abs); err != nil {
		if !os.IsNotExist(err) {
			return "", false, err
		}
		file, err := os.OpenFile(abs, os.O_CREATE|os.O_RDWR, 0o600)
		if err != nil {
			return "", false, err
		}
		if err := file.Close(); err != nil {
			return "", false, err
		}
	}

	return abs, true, nil
}

// Store selects and parameterises the episode data store.
type Store struct {
	Backend string
	// DSN is the database/sql data source for sqlite and postgres.
	DSN         string
	SupabaseURL string
	SupabaseKey string
	// DBPassword lets the postgres backend derive a DSN from SupabaseURL.
	DBPassword string
}

// ResolveStore merges the file's store section with PODPLAYER_STORE,
// PODPLAYER_DATABASE_URL, PODPLAYER_SUPABASE_URL, PODPLAYER_SUPABASE_KEY and
// PODPLAYER_DB_PASSWORD, then validates the result.
func ResolveStore(file File) (Store, error) {
	store := Store{
		Backend:     strings.ToLower(strings.TrimSpace(file.Store.Backend)),
		DSN:         strings.TrimSpace(file.Store.DSN),
		SupabaseURL: strings.TrimSpace(file.Store.SupabaseURL),
		SupabaseKey: strings.TrimSpace(file.Store.SupabaseKey),
		DBPassword:  file.Store.DBPassword,
	}

	if value := strings.TrimSpace(os.Getenv("PODPLAYER_STORE")); value != "" {
		store.Backend = strings.ToLower(value)
	}
	if value := strings.TrimSpace(os.Getenv("PODPLAYER_DATABASE_URL")); value != "" {
		store.DSN = value
	}
	if value := strings.TrimSpace(os.Getenv("PODPLAYER_SUPABASE_URL")); value != "" {
		store.SupabaseURL = value
	}
	if value := strings.TrimSpace(os.Getenv("PODPLAYER_SUPABASE_KEY")); value != "" {
		store.SupabaseKey = value
	}
	if value := os.Getenv("PODPLAYER_DB_PASSWORD"); value != "" {
		store.DBPassword = value
	}

	if store.Backend == "" {
		store.Backend = BackendFS
	}

	switch store.Backend {
	case BackendFS:
	case BackendSQLite:
		if store.DSN == "" {
			store.DSN = defaultSQLitePath
		}
	case BackendPostgres:
		if store.DSN == "" && (store.SupabaseURL == "" || store.DBPassword == "") {
			return Store{}, errors.New("postgres store requires PODPLAYER_DATABASE_URL or a supabase URL and database password")
		}
	case BackendSupabase:
		if store.SupabaseURL == "" || store.SupabaseKey == "" {
			return Store{}, errors.New("supabase store requires PODPLAYER_SUPABASE_URL and PODPLAYER_SUPABASE_KEY")
		}
	default:
		return Store{}, fmt.Errorf("unknown store backend %q", store.Backend)
	}

	return store, nil
}

// FeedMetadata represents the static metadata used to render the podcast RSS feed.
type FeedMetadata struct {
	Title       string
	Description string
	Language    string
	Author      string
}

// ResolveFeedMetadata returns the podcast feed metadata after applying defaults,
// the file's feed section, and environment variable overrides.
func ResolveFeedMetadata(file File) FeedMetadata {
	meta := FeedMetadata{
		Title:       defaultFeedTitle,
		Description: defaultFeedDescription,
		Language:    defaultFeedLanguage,
	}

	overlay := func(dst *string, values ...string) {
		for _, value := range values {
			if value = strings.TrimSpace(value); value != "" {
				*dst = value
			}
		}
	}
	overlay(&meta.Title, file.Feed.Title, os.Getenv("PODPLAYER_FEED_TITLE"))
	overlay(&meta.Description, file.Feed.Description, os.Getenv("PODPLAYER_FEED_DESCRIPTION"))
	overlay(&meta.Language, file.Feed.Language, os.Getenv("PODPLAYER_FEED_LANGUAGE"))
	overlay(&meta.Author, file.Feed.Author, os.Getenv("PODPLAYER_FEED_AUTHOR"))

	return meta
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

// envDuration accepts Go durations ("90s") or bare seconds ("90"). Invalid or
// non-positive values fall back.
func envDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs <= 0 {
			return fallback
		}
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[1:])
		}
	}
	return filepath.Abs(path)
}
