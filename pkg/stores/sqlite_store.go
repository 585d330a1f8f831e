package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrBuildNotFound is returned by GetBuild for an unknown ID.
var ErrBuildNotFound = errors.New("build not found")

// SQLiteStore implements HistoryStore using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger zerolog.Logger
}

// Config holds SQLite store configuration.
type Config struct {
	// Path is the database file, or ":memory:".
	Path string

	Logger zerolog.Logger
}

// NewSQLiteStore creates a new SQLite store instance. Call Init and Migrate before use.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	return &SQLiteStore{
		path:   cfg.Path,
		logger: cfg.Logger.With().Str("component", "history-store").Logger(),
	}, nil
}

// OpenSQLiteStore creates, initializes and migrates a store in one call.
func OpenSQLiteStore(ctx context.Context, cfg Config) (*SQLiteStore, error) {
	s, err := NewSQLiteStore(cfg)
	if err != nil {
		return nil, err
	}
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Init opens the database. File databases get WAL mode and a busy timeout and
// their parent directory is created.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := s.path
	if s.path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = "file:" + s.path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection serialises writers and keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteStore) migrator() (*migrate.Migrate, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration instance: %w", err)
	}
	return m, nil
}

// Migrate applies all pending migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	m, err := s.migrator()
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// SchemaVersion returns the applied migration version.
func (s *SQLiteStore) SchemaVersion() (uint, bool, error) {
	m, err := s.migrator()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// RecordBuild inserts a build with its dependencies and messages in one transaction.
func (s *SQLiteStore) RecordBuild(ctx context.Context, b *Build) error {
	if b.ID == "" {
		return fmt.Errorf("build id is required")
	}
	if b.Trigger == "" {
		b.Trigger = "cli"
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO builds (id, entry, format, macro, status, stage, error_kind, error, digest,
			output_bytes, triggered_by, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		b.ID, b.Entry, b.Format, b.Macro, string(b.Status), b.Stage, b.ErrorKind, b.Error, b.Digest,
		b.OutputBytes, b.Trigger, b.StartedAt.UnixNano(), b.FinishedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record build: %w", err)
	}

	for i, dep := range b.Dependencies {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO build_dependencies (build_id, position, path) VALUES (?, ?, ?)`,
			b.ID, i, dep,
		); err != nil {
			return fmt.Errorf("failed to record dependency: %w", err)
		}
	}
	for i, msg := range b.Messages {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO build_messages (build_id, position, level, policy, message) VALUES (?, ?, ?, ?, ?)`,
			b.ID, i, string(msg.Level), msg.Policy, msg.Message,
		); err != nil {
			return fmt.Errorf("failed to record message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit build: %w", err)
	}

	s.logger.Debug().Str("build_id", b.ID).Str("status", string(b.Status)).Msg("Build recorded")
	return nil
}

const buildColumns = `id, entry, format, macro, status, stage, error_kind, error, digest,
	output_bytes, triggered_by, started_at, finished_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanBuild(row scanner) (*Build, error) {
	b := &Build{}
	var status string
	var started, finished int64
	err := row.Scan(&b.ID, &b.Entry, &b.Format, &b.Macro, &status, &b.Stage, &b.ErrorKind, &b.Error,
		&b.Digest, &b.OutputBytes, &b.Trigger, &started, &finished)
	if err != nil {
		return nil, err
	}
	b.Status = BuildStatus(status)
	b.StartedAt = time.Unix(0, started)
	b.FinishedAt = time.Unix(0, finished)
	return b, nil
}

// GetBuild retrieves a build with its dependencies and messages.
func (s *SQLiteStore) GetBuild(ctx context.Context, id string) (*Build, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+buildColumns+` FROM builds WHERE id = ?`, id)
	b, err := scanBuild(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrBuildNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get build: %w", err)
	}
	if err := s.loadDetails(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// ListBuilds returns builds newest first.
func (s *SQLiteStore) ListBuilds(ctx context.Context, opts ListOptions) ([]*Build, error) {
	var where []string
	var args []interface{}
	if opts.Entry != "" {
		where = append(where, "entry = ?")
		args = append(args, opts.Entry)
	}
	if opts.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(opts.Status))
	}

	query := `SELECT ` + buildColumns + ` FROM builds`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC, rowid DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = -1
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list builds: %w", err)
	}

	builds := []*Build{}
	for rows.Next() {
		b, err := scanBuild(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan build: %w", err)
		}
		builds = append(builds, b)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to list builds: %w", err)
	}
	rows.Close()

	// Details are read after the cursor is closed; the store has one connection.
	for _, b := range builds {
		if err := s.loadDetails(ctx, b); err != nil {
			return nil, err
		}
	}
	return builds, nil
}

func (s *SQLiteStore) loadDetails(ctx context.Context, b *Build) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path FROM build_dependencies WHERE build_id = ? ORDER BY position`, b.ID)
	if err != nil {
		return fmt.Errorf("failed to load dependencies: %w", err)
	}
	b.Dependencies = []string{}
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan dependency: %w", err)
		}
		b.Dependencies = append(b.Dependencies, path)
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx,
		`SELECT level, policy, message FROM build_messages WHERE build_id = ? ORDER BY position`, b.ID)
	if err != nil {
		return fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var m Message
		var level string
		if err := rows.Scan(&level, &m.Policy, &m.Message); err != nil {
			return fmt.Errorf("failed to scan message: %w", err)
		}
		m.Level = MessageLevel(level)
		b.Messages = append(b.Messages, m)
	}
	return rows.Err()
}

// PruneBuilds keeps the newest keep builds and deletes the rest.
func (s *SQLiteStore) PruneBuilds(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		return 0, fmt.Errorf("keep must not be negative")
	}
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM builds WHERE id NOT IN (
			SELECT id FROM builds ORDER BY started_at DESC, rowid DESC LIMIT ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune builds: %w", err)
	}
	return result.RowsAffected()
}

// HealthCheck verifies the database connection is alive.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.PingContext(ctx)
}
