// Package sqlstore implements the session store and the message
// deduplicator on SQLite or PostgreSQL.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "embed"

	"github.com/jammysunshine/astro-whatsapp-bot/internal/logging"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/domain"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/ports"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Connection pool settings for PostgreSQL.
const (
	DefaultMaxOpenConns    = 25
	DefaultMaxIdleConns    = 25
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

//go:embed migrations_postgres.sql
var postgresMigrations string

// Store implements ports.SessionStore and ports.Deduplicator on a SQL database.
type Store struct {
	db     *sql.DB
	driver string
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithTTL expires sessions idle for longer than ttl. Zero disables expiry.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// Open connects to the database and applies the schema migrations.
// For SQLite, dsn is a file path whose directory is created if missing.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("database DSN not set")
	}

	var migrations string
	switch driver {
	case DriverSQLite:
		migrations = sqliteMigrations
		if !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	case DriverPostgres:
		migrations = postgresMigrations
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	if driver == DriverSQLite {
		// SQLite allows a single writer.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(DefaultMaxOpenConns)
		db.SetMaxIdleConns(DefaultMaxIdleConns)
		db.SetConnMaxLifetime(DefaultConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s ping failed: %w", driver, err)
	}
	if _, err := db.ExecContext(ctx, migrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	s := &Store{
		db:     db,
		driver: driver,
		now:    time.Now,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger.Debug("SQL store ready", "driver", driver)
	return s, nil
}

// rebind rewrites ? placeholders as $n for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteString("$" + strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// cutoff is the oldest live last_activity_at. Without a TTL nothing expires.
func (s *Store) cutoff() int64 {
	if s.ttl <= 0 {
		return math.MinInt64
	}
	return s.now().Add(-s.ttl).UnixNano()
}

// Get retrieves a live session.
func (s *Store) Get(ctx context.Context, userID string) (*domain.Session, error) {
	var (
		data    []byte
		version int64
	)
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT data, version FROM sessions WHERE user_id = ? AND last_activity_at >= ?`),
		userID, s.cutoff(),
	).Scan(&data, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session %s: %w", userID, err)
	}

	var sess domain.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session %s: %w", userID, err)
	}
	sess.Version = version
	return &sess, nil
}

// CompareAndSet stores next if the live version equals expected.
func (s *Store) CompareAndSet(ctx context.Context, userID string, expected int64, next *domain.Session) (bool, error) {
	record := *next
	record.Version = expected + 1
	data, err := json.Marshal(&record)
	if err != nil {
		return false, fmt.Errorf("failed to marshal session: %w", err)
	}
	activity := next.LastActivityAt.UnixNano()

	var res sql.Result
	if expected == 0 {
		// An expired row counts as absent.
		if _, err := s.db.ExecContext(ctx,
			s.rebind(`DELETE FROM sessions WHERE user_id = ? AND last_activity_at < ?`),
			userID, s.cutoff(),
		); err != nil {
			return false, fmt.Errorf("failed to clear expired session %s: %w", userID, err)
		}
		res, err = s.db.ExecContext(ctx,
			s.rebind(`INSERT INTO sessions (user_id, data, version, last_activity_at) VALUES (?, ?, ?, ?) ON CONFLICT (user_id) DO NOTHING`),
			userID, string(data), record.Version, activity,
		)
	} else {
		res, err = s.db.ExecContext(ctx,
			s.rebind(`UPDATE sessions SET data = ?, version = ?, last_activity_at = ? WHERE user_id = ? AND version = ? AND last_activity_at >= ?`),
			string(data), record.Version, activity, userID, expected, s.cutoff(),
		)
	}
	if err != nil {
		return false, fmt.Errorf("failed to save session %s: %w", userID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check saved rows: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	next.Version = record.Version
	return true, nil
}

// Delete removes the session.
func (s *Store) Delete(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM sessions WHERE user_id = ?`), userID); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", userID, err)
	}
	return nil
}

// List returns live sessions ordered by user id.
func (s *Store) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT user_id FROM sessions WHERE last_activity_at >= ? ORDER BY user_id`),
		s.cutoff(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session rows: %w", err)
	}
	return ids, nil
}

// Prune deletes expired sessions and dedup records. It returns the number of
// sessions removed.
func (s *Store) Prune(ctx context.Context) (int64, error) {
	if _, err := s.db.ExecContext(ctx,
		s.rebind(`DELETE FROM inbound_dedup WHERE expires_at < ?`), s.now().UnixNano(),
	); err != nil {
		return 0, fmt.Errorf("failed to prune dedup records: %w", err)
	}
	if s.ttl <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx,
		s.rebind(`DELETE FROM sessions WHERE last_activity_at < ?`), s.cutoff(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Debug("Pruned expired sessions", "count", n)
	}
	return n, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

var _ ports.SessionStore = (*Store)(nil)
