package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"podcast-player/internal/episodes"
	"podcast-player/internal/models"
)

// Driver names registered with database/sql.
const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

// Config holds what is needed to open a SQL episode store.
type Config struct {
	// Driver is DriverPostgres or DriverSQLite.
	Driver string
	// DSN is a Postgres connection string or a SQLite file path.
	DSN string

	MaxOpenConns int
	MaxIdleConns int
	ConnMaxIdle  time.Duration
	ConnMaxLife  time.Duration
}

// Store reads episodes, clips, transitions and intros from SQL tables.
type Store struct {
	db     *sql.DB
	driver string
	logger *log.Logger
}

var _ episodes.Source = (*Store)(nil)

// Open connects, applies pool settings and verifies connectivity.
func Open(ctx context.Context, cfg Config, logger *log.Logger) (*Store, error) {
	driver := strings.TrimSpace(cfg.Driver)
	switch driver {
	case DriverPostgres, DriverSQLite:
	case "postgres", "postgresql":
		driver = DriverPostgres
	default:
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", cfg.Driver)
	}
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("sqlstore: DSN is required")
	}

	dsn := cfg.DSN
	if driver == DriverPostgres && isURLDSN(dsn) {
		// Supabase's pooler rejects named prepared statements.
		dsn = addConnectionParam(dsn, "default_query_exec_mode", "simple_protocol")
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdle > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdle)
	}
	if cfg.ConnMaxLife > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLife)
	}

	if driver == DriverSQLite {
		pragmas := []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA busy_timeout = 5000",
		}
		for _, pragma := range pragmas {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
			}
		}
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	return New(db, driver, logger), nil
}

// New wraps an already opened handle.
func New(db *sql.DB, driver string, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.Default()
	}
	return &Store{db: db, driver: driver, logger: logger}
}

// Close closes the underlying handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the handle for seeding and maintenance.
func (s *Store) DB() *sql.DB {
	return s.db
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS episodes (
		id TEXT PRIMARY KEY,
		title TEXT,
		description TEXT,
		audio_url TEXT,
		created_at TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS clips (
		id TEXT PRIMARY KEY,
		episode TEXT NOT NULL REFERENCES episodes(id),
		"index" INTEGER NOT NULL,
		title TEXT,
		description TEXT,
		length DOUBLE PRECISION
	)`,
	`CREATE TABLE IF NOT EXISTS transitions (
		id TEXT PRIMARY KEY,
		episode TEXT NOT NULL REFERENCES episodes(id),
		"index" INTEGER NOT NULL,
		title TEXT,
		length DOUBLE PRECISION
	)`,
	`CREATE TABLE IF NOT EXISTS intros (
		id TEXT PRIMARY KEY,
		episode TEXT NOT NULL REFERENCES episodes(id),
		title TEXT,
		length DOUBLE PRECISION
	)`,
	`CREATE INDEX IF NOT EXISTS clips_episode_idx ON clips (episode, "index")`,
	`CREATE INDEX IF NOT EXISTS transitions_episode_idx ON transitions (episode, "index")`,
}

// EnsureSchema creates the tables when they do not exist. Stores managed
// elsewhere (Supabase) already have them and need not call this.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// ListEpisodes returns every episode, oldest first.
func (s *Store) ListEpisodes(ctx context.Context) ([]models.Episode, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT id, title, description, audio_url, created_at FROM episodes ORDER BY created_at, id`))
	if err != nil {
		return nil, fmt.Errorf("query episodes: %w", err)
	}
	defer rows.Close()

	var out []models.Episode
	for rows.Next() {
		ep, err := scanEpisode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ep)
	}
	return out, rows.Err()
}

// Episode returns the episode with id, or episodes.ErrNotFound.
func (s *Store) Episode(ctx context.Context, id models.ID) (models.Episode, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT id, title, description, audio_url, created_at FROM episodes WHERE id = ?`), string(id))
	ep, err := scanEpisode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Episode{}, episodes.ErrNotFound
	}
	return ep, err
}

// Clips returns the clips of an episode ordered by index.
func (s *Store) Clips(ctx context.Context, episodeID models.ID) ([]models.Clip, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT id, episode, "index", title, description, length FROM clips WHERE episode = ? ORDER BY "index" ASC`), string(episodeID))
	if err != nil {
		return nil, fmt.Errorf("query clips: %w", err)
	}
	defer rows.Close()

	var out []models.Clip
	for rows.Next() {
		var (
			id, episode        string
			index              int
			title, description sql.NullString
			length             sql.NullFloat64
		)
		if err := rows.Scan(&id, &episode, &index, &title, &description, &length); err != nil {
			return nil, fmt.Errorf("scan clip: %w", err)
		}
		out = append(out, models.Clip{
			ID:          models.ID(id),
			Episode:     models.ID(episode),
			Index:       index,
			Title:       title.String,
			Description: description.String,
			Duration:    nullableSeconds(length),
		})
	}
	return out, rows.Err()
}

// Transitions returns the transitions of an episode ordered by index.
func (s *Store) Transitions(ctx context.Context, episodeID models.ID) ([]models.Transition, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT id, episode, "index", title, length FROM transitions WHERE episode = ? ORDER BY "index" ASC`), string(episodeID))
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	var out []models.Transition
	for rows.Next() {
		var (
			id, episode string
			index       int
			title       sql.NullString
			length      sql.NullFloat64
		)
		if err := rows.Scan(&id, &episode, &index, &title, &length); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		out = append(out, models.Transition{
			ID:       models.ID(id),
			Episode:  models.ID(episode),
			Index:    index,
			Title:    title.String,
			Duration: nullableSeconds(length),
		})
	}
	return out, rows.Err()
}

// Intro returns the intro of an episode, or nil when it has none.
func (s *Store) Intro(ctx context.Context, episodeID models.ID) (*models.Intro, error) {
	var (
		id, episode string
		title       sql.NullString
		length      sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT id, episode, title, length FROM intros WHERE episode = ? ORDER BY id LIMIT 1`), string(episodeID)).
		Scan(&id, &episode, &title, &length)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query intro: %w", err)
	}
	return &models.Intro{
		ID:       models.ID(id),
		Episode:  models.ID(episode),
		Title:    title.String,
		Duration: nullableSeconds(length),
	}, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEpisode(row scanner) (models.Episode, error) {
	var (
		id                           string
		title, description, audioURL sql.NullString
		createdAt                    any
	)
	if err := row.Scan(&id, &title, &description, &audioURL, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Episode{}, err
		}
		return models.Episode{}, fmt.Errorf("scan episode: %w", err)
	}
	return models.Episode{
		ID:          models.ID(id),
		Title:       title.String,
		Description: description.String,
		AudioURL:    audioURL.String,
		CreatedAt:   parseTimestamp(createdAt),
	}, nil
}

func nullableSeconds(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func parseTimestamp(v any) *time.Time {
	var s string
	switch t := v.(type) {
	case nil:
		return nil
	case time.Time:
		u := t.UTC()
		return &u
	case string:
		s = t
	case []byte:
		s = string(t)
	default:
		return nil
	}
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			u := parsed.UTC()
			return &u
		}
	}
	return nil
}

// rebind rewrites '?' placeholders to $n for Postgres.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SupabaseDSN builds the direct Postgres connection string of a Supabase
// project from its URL (https://<ref>.supabase.co) and database password.
func SupabaseDSN(projectURL, password string) (string, error) {
	if strings.TrimSpace(projectURL) == "" {
		return "", errors.New("supabase URL is required")
	}
	if password == "" {
		return "", errors.New("supabase database password is required")
	}

	parsed, err := url.Parse(projectURL)
	if err != nil {
		return "", fmt.Errorf("parse supabase URL: %w", err)
	}
	parts := strings.Split(parsed.Host, ".")
	if len(parts) < 2 || parts[0] == "" {
		return "", fmt.Errorf("invalid supabase URL %q: expected <project-ref>.supabase.co", projectURL)
	}

	return fmt.Sprintf("postgresql://postgres:%s@db.%s.supabase.co:5432/postgres?sslmode=require",
		url.QueryEscape(password), parts[0]), nil
}

func isURLDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

func addConnectionParam(dsn, key, value string) string {
	if strings.Contains(dsn, key+"=") {
		return dsn
	}
	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}
	return dsn + separator + key + "=" + value
}
