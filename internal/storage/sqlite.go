package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/BenjaminSRussell/scrapedeck/internal/types"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a named record does not exist
var ErrNotFound = errors.New("not found")

// SavedConfig is a named job configuration kept on this machine
type SavedConfig struct {
	Name      string
	Config    types.ScrapeJobConfig
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ConfigSummary is one entry of the saved configuration list
type ConfigSummary struct {
	Name      string    `db:"name"`
	URL       string    `db:"url"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Session is the persisted login
type Session struct {
	Token     string    `db:"token"`
	Scheme    string    `db:"scheme"`
	Username  string    `db:"username"`
	CreatedAt time.Time `db:"created_at"`
}

type configRow struct {
	Name      string    `db:"name"`
	URL       string    `db:"url"`
	Config    string    `db:"config"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Store keeps saved configurations and the session in SQLite
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// Open opens or creates the database at dbPath and applies pending
// migrations
func Open(dbPath string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	driver, err := sqlite3.WithInstance(s.db.DB, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	// m.Close would also close the shared *sql.DB.

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		s.logger.Warn("could not read migration version", zap.Error(err))
	} else {
		s.logger.Debug("store migrated", zap.Uint("version", version), zap.Bool("dirty", dirty))
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveConfig stores cfg under name, replacing any configuration of the
// same name
func (s *Store) SaveConfig(ctx context.Context, name string, cfg types.ScrapeJobConfig) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return types.NewValidationError("name", "configuration name is required")
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO saved_configs (name, url, config, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			url = excluded.url,
			config = excluded.config,
			updated_at = excluded.updated_at`,
		name, cfg.URL, string(data), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save configuration %q: %w", name, err)
	}
	return nil
}

// ListConfigs returns every saved configuration ordered by name
func (s *Store) ListConfigs(ctx context.Context) ([]ConfigSummary, error) {
	var out []ConfigSummary
	if err := s.db.SelectContext(ctx, &out, `SELECT name, url, updated_at FROM saved_configs ORDER BY name`); err != nil {
		return nil, fmt.Errorf("failed to list configurations: %w", err)
	}
	return out, nil
}

// LoadConfig returns the configuration saved under name
func (s *Store) LoadConfig(ctx context.Context, name string) (*SavedConfig, error) {
	var row configRow
	err := s.db.GetContext(ctx, &row, `SELECT name, url, config, created_at, updated_at FROM saved_configs WHERE name = ?`, strings.TrimSpace(name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("configuration %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration %q: %w", name, err)
	}

	saved := &SavedConfig{Name: row.Name, CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt}
	if err := json.Unmarshal([]byte(row.Config), &saved.Config); err != nil {
		return nil, fmt.Errorf("failed to decode configuration %q: %w", name, err)
	}
	return saved, nil
}

// DeleteConfig removes the configuration saved under name
func (s *Store) DeleteConfig(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM saved_configs WHERE name = ?`, strings.TrimSpace(name))
	if err != nil {
		return fmt.Errorf("failed to delete configuration %q: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("configuration %q: %w", name, ErrNotFound)
	}
	return nil
}

// SaveSession replaces the stored login
func (s *Store) SaveSession(ctx context.Context, sess Session) error {
	if sess.Token == "" {
		return types.NewValidationError("token", "token is required")
	}
	if sess.Scheme == "" {
		sess.Scheme = "Token"
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO session (id, token, scheme, username, created_at)
		VALUES (1, :token, :scheme, :username, :created_at)
		ON CONFLICT(id) DO UPDATE SET
			token = excluded.token,
			scheme = excluded.scheme,
			username = excluded.username,
			created_at = excluded.created_at`, sess)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// LoadSession returns the stored login, or ErrNotFound when logged out
func (s *Store) LoadSession(ctx context.Context) (*Session, error) {
	var sess Session
	err := s.db.GetContext(ctx, &sess, `SELECT token, scheme, username, created_at FROM session WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return &sess, nil
}

// ClearSession removes the stored login
func (s *Store) ClearSession(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session`); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}
