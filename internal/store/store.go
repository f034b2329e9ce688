// Package store implements echoward's durable storage on SQLite.
//
// One database holds everything the monitor reads and writes: content
// samples, the current reflection edge set, intervention directives,
// cooloff flags, and the rolling audit log. Upstream producers write
// samples and edges (via the ingestion tools); the monitor only writes
// derived records — directives, flags and audit entries.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aviarylabs/echoward/internal/echo"
	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// timeLayout is a fixed-width UTC format so stored timestamps compare
// lexicographically in SQL.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Config holds store configuration.
type Config struct {
	// DataDir is where echoward.db lives.
	DataDir string
	// MaxAuditEntries caps the rolling audit log.
	MaxAuditEntries int
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		DataDir:         filepath.Join(home, ".echoward"),
		MaxAuditEntries: 1000,
	}
}

// Store is the SQLite-backed durable store.
type Store struct {
	db  *sql.DB
	cfg Config
}

// New creates a Store with the given configuration. It creates the data
// directory if needed, opens SQLite with WAL mode, and runs migrations.
func New(cfg Config) (*Store, error) {
	if cfg.MaxAuditEntries < 1 {
		cfg.MaxAuditEntries = 1000
	}
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}

	dbPath := filepath.Join(cfg.DataDir, "echoward.db")
	db, err := openDB("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	// SQLite performance pragmas
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("store: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, cfg: cfg}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("store: migration: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS samples (
			id          TEXT PRIMARY KEY,
			producer_id TEXT NOT NULL,
			kind        TEXT NOT NULL,
			text        TEXT NOT NULL,
			observed_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_samples_kind_observed ON samples(kind, observed_at DESC);
		CREATE INDEX IF NOT EXISTS idx_samples_producer      ON samples(producer_id);

		CREATE TABLE IF NOT EXISTS reflection_edges (
			from_producer TEXT PRIMARY KEY,
			to_producer   TEXT NOT NULL,
			observed_at   TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS directives (
			target_id  TEXT NOT NULL,
			strategy   TEXT NOT NULL,
			parameters TEXT,
			issued_at  TEXT NOT NULL,
			expires_at TEXT,
			PRIMARY KEY (target_id, strategy)
		);

		CREATE TABLE IF NOT EXISTS cooloff_flags (
			producer_id TEXT PRIMARY KEY,
			reason      TEXT NOT NULL,
			flagged_at  TEXT NOT NULL,
			until       TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS audit_log (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at TEXT NOT NULL,
			report     TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_log(created_at DESC);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// ─── Samples ─────────────────────────────────────────────────────────────────

// PutSample records one content sample. The caller supplies the id
// (ingestion assigns UUIDs for callers that don't).
func (s *Store) PutSample(ctx context.Context, sample echo.ContentSample) error {
	if sample.ID == "" {
		return fmt.Errorf("store: sample id is required")
	}
	if !sample.Kind.IsValid() {
		return fmt.Errorf("store: unknown producer kind %q", sample.Kind)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO samples (id, producer_id, kind, text, observed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		sample.ID, sample.ProducerID, string(sample.Kind), sample.Text, formatTime(sample.ObservedAt),
	)
	if err != nil {
		return fmt.Errorf("store: put sample: %w", err)
	}
	return nil
}

// RecentSamples returns samples of one kind observed at or after since,
// oldest first.
func (s *Store) RecentSamples(ctx context.Context, kind echo.ProducerKind, since time.Time) ([]echo.ContentSample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, producer_id, kind, text, observed_at
		FROM samples
		WHERE kind = ? AND observed_at >= ?
		ORDER BY observed_at ASC, id ASC`,
		string(kind), formatTime(since),
	)
	if err != nil {
		return nil, fmt.Errorf("store: recent samples: %w", err)
	}
	defer rows.Close()

	var out []echo.ContentSample
	for rows.Next() {
		var (
			sample   echo.ContentSample
			kindStr  string
			observed string
		)
		if err := rows.Scan(&sample.ID, &sample.ProducerID, &kindStr, &sample.Text, &observed); err != nil {
			return nil, fmt.Errorf("store: scan sample: %w", err)
		}
		sample.Kind = echo.ProducerKind(kindStr)
		sample.ObservedAt = parseTime(observed)
		out = append(out, sample)
	}
	return out, rows.Err()
}

// PruneSamples deletes samples observed before the cutoff and returns
// how many were removed. Retention hygiene — the monitor itself never
// calls this.
func (s *Store) PruneSamples(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM samples WHERE observed_at < ?`, formatTime(before))
	if err != nil {
		return 0, fmt.Errorf("store: prune samples: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ─── Reflection edges ────────────────────────────────────────────────────────

// PutEdge upserts a producer's current outgoing reflection edge. Each
// producer has at most one; the last writer wins.
func (s *Store) PutEdge(ctx context.Context, e echo.ReflectionEdge) error {
	if e.From == "" || e.To == "" {
		return fmt.Errorf("store: reflection edge requires both endpoints")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reflection_edges (from_producer, to_producer, observed_at)
		VALUES (?, ?, ?)
		ON CONFLICT(from_producer) DO UPDATE SET
			to_producer = excluded.to_producer,
			observed_at = excluded.observed_at`,
		e.From, e.To, formatTime(e.ObservedAt),
	)
	if err != nil {
		return fmt.Errorf("store: put edge: %w", err)
	}
	return nil
}

// DeleteEdge removes a producer's outgoing edge, if any.
func (s *Store) DeleteEdge(ctx context.Context, from string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM reflection_edges WHERE from_producer = ?`, from)
	if err != nil {
		return fmt.Errorf("store: delete edge: %w", err)
	}
	return nil
}

// CurrentEdges returns the full edge set — one edge per producer.
func (s *Store) CurrentEdges(ctx context.Context) ([]echo.ReflectionEdge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT from_producer, to_producer, observed_at
		FROM reflection_edges
		ORDER BY from_producer ASC`)
	if err != nil {
		return nil, fmt.Errorf("store: current edges: %w", err)
	}
	defer rows.Close()

	var out []echo.ReflectionEdge
	for rows.Next() {
		var (
			e        echo.ReflectionEdge
			observed string
		)
		if err := rows.Scan(&e.From, &e.To, &observed); err != nil {
			return nil, fmt.Errorf("store: scan edge: %w", err)
		}
		e.ObservedAt = parseTime(observed)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ─── Directives ──────────────────────────────────────────────────────────────

// PutDirective upserts a directive keyed by (target, strategy). The
// latest directive of a given type for a target always wins.
func (s *Store) PutDirective(ctx context.Context, d echo.Directive) error {
	params, err := json.Marshal(d.Parameters)
	if err != nil {
		return fmt.Errorf("store: marshal directive parameters: %w", err)
	}
	var expires any
	if d.ExpiresAt != nil {
		expires = formatTime(*d.ExpiresAt)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO directives (target_id, strategy, parameters, issued_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(target_id, strategy) DO UPDATE SET
			parameters = excluded.parameters,
			issued_at  = excluded.issued_at,
			expires_at = excluded.expires_at`,
		d.TargetID, string(d.Strategy), string(params), formatTime(d.IssuedAt), expires,
	)
	if err != nil {
		return fmt.Errorf("store: put directive: %w", err)
	}
	return nil
}

// Directives returns the directives for one target, or for all targets
// when targetID is empty. Expired directives are excluded.
func (s *Store) Directives(ctx context.Context, targetID string, now time.Time) ([]echo.Directive, error) {
	query := `
		SELECT target_id, strategy, parameters, issued_at, expires_at
		FROM directives
		WHERE (expires_at IS NULL OR expires_at > ?)`
	args := []any{formatTime(now)}
	if targetID != "" {
		query += ` AND target_id = ?`
		args = append(args, targetID)
	}
	query += ` ORDER BY target_id ASC, strategy ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: directives: %w", err)
	}
	defer rows.Close()

	var out []echo.Directive
	for rows.Next() {
		var (
			d        echo.Directive
			strategy string
			params   sql.NullString
			issued   string
			expires  sql.NullString
		)
		if err := rows.Scan(&d.TargetID, &strategy, &params, &issued, &expires); err != nil {
			return nil, fmt.Errorf("store: scan directive: %w", err)
		}
		d.Strategy = echo.Strategy(strategy)
		d.IssuedAt = parseTime(issued)
		if params.Valid && params.String != "" && params.String != "null" {
			if err := json.Unmarshal([]byte(params.String), &d.Parameters); err != nil {
				return nil, fmt.Errorf("store: unmarshal directive parameters: %w", err)
			}
		}
		if expires.Valid {
			t := parseTime(expires.String)
			d.ExpiresAt = &t
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ─── Cooloff flags ───────────────────────────────────────────────────────────

// PutCooloff upserts a producer's cooloff flag, refreshing the window.
func (s *Store) PutCooloff(ctx context.Context, f echo.CooloffFlag) error {
	if f.ProducerID == "" {
		return fmt.Errorf("store: cooloff requires a producer id")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cooloff_flags (producer_id, reason, flagged_at, until)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(producer_id) DO UPDATE SET
			reason     = excluded.reason,
			flagged_at = excluded.flagged_at,
			until      = excluded.until`,
		f.ProducerID, f.Reason, formatTime(f.FlaggedAt), formatTime(f.Until),
	)
	if err != nil {
		return fmt.Errorf("store: put cooloff: %w", err)
	}
	return nil
}

// ActiveCooloffs returns flags whose window has not yet passed.
func (s *Store) ActiveCooloffs(ctx context.Context, now time.Time) ([]echo.CooloffFlag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT producer_id, reason, flagged_at, until
		FROM cooloff_flags
		WHERE until > ?
		ORDER BY producer_id ASC`,
		formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("store: active cooloffs: %w", err)
	}
	defer rows.Close()

	var out []echo.CooloffFlag
	for rows.Next() {
		var (
			f       echo.CooloffFlag
			flagged string
			until   string
		)
		if err := rows.Scan(&f.ProducerID, &f.Reason, &flagged, &until); err != nil {
			return nil, fmt.Errorf("store: scan cooloff: %w", err)
		}
		f.FlaggedAt = parseTime(flagged)
		f.Until = parseTime(until)
		out = append(out, f)
	}
	return out, rows.Err()
}

// ─── Audit log ───────────────────────────────────────────────────────────────

// AppendAudit persists one tick report and prunes the log down to the
// configured cap, oldest entries first.
func (s *Store) AppendAudit(ctx context.Context, r echo.Report) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("store: marshal report: %w", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin audit tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO audit_log (created_at, report) VALUES (?, ?)`,
		formatTime(r.Timestamp), string(data)); err != nil {
		return fmt.Errorf("store: append audit: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM audit_log WHERE id NOT IN (
			SELECT id FROM audit_log ORDER BY id DESC LIMIT ?
		)`, s.cfg.MaxAuditEntries); err != nil {
		return fmt.Errorf("store: prune audit: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit audit: %w", err)
	}
	return nil
}

// RecentAudit returns the newest audit entries, newest first, up to
// limit (or the full log when limit <= 0).
func (s *Store) RecentAudit(ctx context.Context, limit int) ([]echo.AuditEntry, error) {
	if limit <= 0 || limit > s.cfg.MaxAuditEntries {
		limit = s.cfg.MaxAuditEntries
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, report
		FROM audit_log
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent audit: %w", err)
	}
	defer rows.Close()

	var out []echo.AuditEntry
	for rows.Next() {
		var (
			entry   echo.AuditEntry
			created string
			report  string
		)
		if err := rows.Scan(&entry.ID, &created, &report); err != nil {
			return nil, fmt.Errorf("store: scan audit entry: %w", err)
		}
		entry.CreatedAt = parseTime(created)
		if err := json.Unmarshal([]byte(report), &entry.Report); err != nil {
			return nil, fmt.Errorf("store: unmarshal audit report: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}
