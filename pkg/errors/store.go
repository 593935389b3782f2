package errors

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Origin describes where a supervised failure was raised
type Origin struct {
	UserID    string `json:"user_id,omitempty"`
	UserName  string `json:"user_name,omitempty"`
	GuildID   string `json:"guild_id,omitempty"`
	GuildName string `json:"guild_name,omitempty"`
	ChannelID string `json:"channel_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

// Store persists unhandled failures to SQLite
type Store struct {
	db            *sql.DB
	path          string
	mu            sync.RWMutex
	retentionDays int
}

// StoreConfig configures the failure store
type StoreConfig struct {
	Path          string // SQLite database file
	RetentionDays int    // days to keep resolved failures (0 = default 30)
}

// DefaultStoreConfig returns default configuration
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Path:          "data/failures.db",
		RetentionDays: 30,
	}
}

// ErrFailureNotFound is returned when a trace id is unknown
var ErrFailureNotFound = stderrors.New("failure not found")

// NewStore opens (creating if needed) the failure store
func NewStore(cfg StoreConfig) (*Store, error) {
	def := DefaultStoreConfig()
	if cfg.Path == "" {
		cfg.Path = def.Path
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = def.RetentionDays
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.Path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{
		db:            db,
		path:          cfg.Path,
		retentionDays: cfg.RetentionDays,
	}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS failures (
			trace_id     TEXT PRIMARY KEY,
			signature    TEXT NOT NULL,
			kind         TEXT NOT NULL,
			category     TEXT NOT NULL,
			severity     TEXT NOT NULL,
			message      TEXT NOT NULL,
			command      TEXT,
			extension    TEXT,
			user_id      TEXT,
			guild_id     TEXT,
			channel_id   TEXT,
			content      TEXT,
			failure_json TEXT NOT NULL,
			first_seen   TIMESTAMP NOT NULL,
			last_seen    TIMESTAMP NOT NULL,
			occurrences  INTEGER DEFAULT 1,
			resolved     BOOLEAN DEFAULT FALSE,
			resolved_by  TEXT,
			resolved_at  TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_failures_signature ON failures(signature);
		CREATE INDEX IF NOT EXISTS idx_failures_kind ON failures(kind);
		CREATE INDEX IF NOT EXISTS idx_failures_resolved ON failures(resolved);
		CREATE INDEX IF NOT EXISTS idx_failures_last_seen ON failures(last_seen);
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// StoredFailure is a failure read back from the store
type StoredFailure struct {
	TraceID     string     `json:"trace_id"`
	Kind        Kind       `json:"kind"`
	Category    Category   `json:"category"`
	Severity    Severity   `json:"severity"`
	Message     string     `json:"message"`
	Command     string     `json:"command,omitempty"`
	Extension   string     `json:"extension,omitempty"`
	Origin      Origin     `json:"origin"`
	Failure     *Failure   `json:"failure,omitempty"`
	FirstSeen   time.Time  `json:"first_seen"`
	LastSeen    time.Time  `json:"last_seen"`
	Occurrences int        `json:"occurrences"`
	Resolved    bool       `json:"resolved"`
	ResolvedBy  string     `json:"resolved_by,omitempty"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}

// Record persists f. A repeat of an unresolved signature bumps its
// occurrence count instead of adding a row; the returned trace id is the
// row that was written.
func (s *Store) Record(ctx context.Context, f *Failure, origin Origin) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(f)
	if err != nil {
		return "", fmt.Errorf("failed to serialize failure: %w", err)
	}
	sig := Signature(f)
	ts := f.Timestamp.UTC()

	var existing string
	err = s.db.QueryRowContext(ctx,
		"SELECT trace_id FROM failures WHERE signature = ? AND resolved = FALSE ORDER BY last_seen DESC LIMIT 1",
		sig,
	).Scan(&existing)

	switch {
	case err == nil:
		_, err = s.db.ExecContext(ctx, `
			UPDATE failures SET
				failure_json = ?,
				message = ?,
				last_seen = ?,
				occurrences = occurrences + 1
			WHERE trace_id = ?
		`, string(data), f.Message, ts, existing)
		if err != nil {
			return "", fmt.Errorf("update failed: %w", err)
		}
		return existing, nil
	case !stderrors.Is(err, sql.ErrNoRows):
		return "", fmt.Errorf("lookup failed: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO failures (trace_id, signature, kind, category, severity, message, command, extension,
			user_id, guild_id, channel_id, content, failure_json, first_seen, last_seen, occurrences)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
	`,
		f.TraceID, sig, string(f.Kind), string(f.Category), string(f.Severity), f.Message,
		f.Context.Command.String(), f.Context.Extension,
		origin.UserID, origin.GuildID, origin.ChannelID, origin.Content,
		string(data), ts, ts,
	)
	if err != nil {
		return "", fmt.Errorf("insert failed: %w", err)
	}
	return f.TraceID, nil
}

// Query defines parameters for listing failures
type Query struct {
	TraceID   string
	Kind      Kind
	Category  Category
	Severity  Severity
	Resolved  *bool     // nil = all
	Since     time.Time // last_seen lower bound
	Limit     int       // default 20, max 1000
	Offset    int
	OrderBy   string // "first_seen", "last_seen", "occurrences" (default "last_seen")
	Ascending bool
}

// Query lists failures matching q
func (s *Store) Query(ctx context.Context, q Query) ([]StoredFailure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if q.Limit <= 0 {
		q.Limit = 20
	}
	if q.Limit > 1000 {
		q.Limit = 1000
	}

	query := `SELECT trace_id, kind, category, severity, message, command, extension, user_id, guild_id,
		channel_id, content, failure_json, first_seen, last_seen, occurrences, resolved, resolved_by, resolved_at
		FROM failures WHERE 1=1`
	var args []any

	if q.TraceID != "" {
		query += " AND trace_id = ?"
		args = append(args, q.TraceID)
	}
	if q.Kind != "" {
		query += " AND kind = ?"
		args = append(args, string(q.Kind))
	}
	if q.Category != "" {
		query += " AND category = ?"
		args = append(args, string(q.Category))
	}
	if q.Severity != "" {
		query += " AND severity = ?"
		args = append(args, string(q.Severity))
	}
	if q.Resolved != nil {
		query += " AND resolved = ?"
		args = append(args, *q.Resolved)
	}
	if !q.Since.IsZero() {
		query += " AND last_seen >= ?"
		args = append(args, q.Since.UTC())
	}

	orderCol := "last_seen"
	switch q.OrderBy {
	case "first_seen", "occurrences":
		orderCol = q.OrderBy
	}
	orderDir := "DESC"
	if q.Ascending {
		orderDir = "ASC"
	}
	query += fmt.Sprintf(" ORDER BY %s %s LIMIT ? OFFSET ?", orderCol, orderDir)
	args = append(args, q.Limit, q.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var results []StoredFailure
	for rows.Next() {
		var (
			sf         StoredFailure
			command    sql.NullString
			extension  sql.NullString
			userID     sql.NullString
			guildID    sql.NullString
			channelID  sql.NullString
			content    sql.NullString
			data       string
			resolvedBy sql.NullString
			resolvedAt sql.NullTime
		)

		err := rows.Scan(
			&sf.TraceID, &sf.Kind, &sf.Category, &sf.Severity, &sf.Message,
			&command, &extension, &userID, &guildID, &channelID, &content,
			&data, &sf.FirstSeen, &sf.LastSeen, &sf.Occurrences, &sf.Resolved,
			&resolvedBy, &resolvedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}

		sf.Command = command.String
		sf.Extension = extension.String
		sf.Origin = Origin{
			UserID:    userID.String,
			GuildID:   guildID.String,
			ChannelID: channelID.String,
			Content:   content.String,
		}

		var f Failure
		if json.Unmarshal([]byte(data), &f) == nil {
			sf.Failure = &f
		}
		if resolvedBy.Valid {
			sf.ResolvedBy = resolvedBy.String
		}
		if resolvedAt.Valid {
			at := resolvedAt.Time
			sf.ResolvedAt = &at
		}

		results = append(results, sf)
	}

	return results, rows.Err()
}

// Get retrieves a single failure by trace id
func (s *Store) Get(ctx context.Context, traceID string) (*StoredFailure, error) {
	results, err := s.Query(ctx, Query{TraceID: traceID, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrFailureNotFound, traceID)
	}
	return &results[0], nil
}

// Resolve marks a failure as resolved
func (s *Store) Resolve(ctx context.Context, traceID, resolvedBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `
		UPDATE failures SET
			resolved = TRUE,
			resolved_by = ?,
			resolved_at = ?
		WHERE trace_id = ?
	`, resolvedBy, time.Now().UTC(), traceID)
	if err != nil {
		return fmt.Errorf("resolve failed: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrFailureNotFound, traceID)
	}
	return nil
}

// Cleanup removes resolved failures older than the retention period
func (s *Store) Cleanup(ctx context.Context) (int64, error) {
	return s.cleanupBefore(ctx, time.Now().AddDate(0, 0, -s.retentionDays))
}

func (s *Store) cleanupBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx,
		"DELETE FROM failures WHERE resolved = TRUE AND resolved_at < ?",
		cutoff.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("cleanup failed: %w", err)
	}
	return result.RowsAffected()
}

// StoreStats holds statistics about the failure store
type StoreStats struct {
	Total      int              `json:"total"`
	Unresolved int              `json:"unresolved"`
	ByKind     map[Kind]int     `json:"by_kind"`
	BySeverity map[Severity]int `json:"by_severity"`
}

// Stats returns statistics about stored failures
func (s *Store) Stats(ctx context.Context) (StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := StoreStats{
		ByKind:     make(map[Kind]int),
		BySeverity: make(map[Severity]int),
	}

	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(CASE WHEN resolved = FALSE THEN 1 ELSE 0 END), 0) FROM failures",
	).Scan(&stats.Total, &stats.Unresolved)
	if err != nil {
		return stats, err
	}

	if err := s.groupCount(ctx, "kind", func(key string, n int) { stats.ByKind[Kind(key)] = n }); err != nil {
		return stats, err
	}
	if err := s.groupCount(ctx, "severity", func(key string, n int) { stats.BySeverity[Severity(key)] = n }); err != nil {
		return stats, err
	}
	return stats, nil
}

func (s *Store) groupCount(ctx context.Context, column string, fn func(string, int)) error {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT %s, COUNT(*) FROM failures GROUP BY %s", column, column))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		fn(key, n)
	}
	return rows.Err()
}

// Close closes the database connection
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Path returns the database file path
func (s *Store) Path() string {
	return s.path
}
