package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/loomkit/loom/pkg/core"
	"github.com/loomkit/loom/pkg/errors"
	"github.com/loomkit/loom/pkg/logging"
)

// SQLite implements every store interface on a single SQLite file.
// Rows hold JSON documents keyed by fingerprint plus the columns the
// queries filter and order on.
type SQLite struct {
	db     *sql.DB
	logger *logging.Logger
}

// SQLiteConfig configures the SQLite store.
type SQLiteConfig struct {
	Path           string
	MaxConnections int
	EnableWAL      bool
}

// NewSQLite opens (and if necessary creates) the store at cfg.Path.
func NewSQLite(cfg SQLiteConfig) (*SQLite, error) {
	if cfg.Path == "" {
		cfg.Path = "loom.db"
	}

	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, errors.Wrap(err, errors.StorageFailure, "failed to open sqlite database")
	}

	if cfg.MaxConnections > 0 {
		db.SetMaxOpenConns(cfg.MaxConnections)
	} else {
		db.SetMaxOpenConns(10)
	}
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	s := &SQLite{db: db, logger: logging.GetLogger()}

	if err := s.initDB(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.StorageFailure, "failed to initialize schema")
	}

	if cfg.EnableWAL {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, errors.Wrap(err, errors.StorageFailure, "failed to enable WAL mode")
		}
	}

	pragmas := []string{
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=10000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			s.logger.Warn(context.Background(), "failed to set pragma %s: %v", pragma, err)
		}
	}

	return s, nil
}

func (s *SQLite) initDB() error {
	query := `
	CREATE TABLE IF NOT EXISTS traces (
		id TEXT PRIMARY KEY,
		fingerprint TEXT NOT NULL,
		success INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		doc BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_traces_fp_time ON traces(fingerprint, created_at DESC);

	CREATE TABLE IF NOT EXISTS patterns (
		id TEXT PRIMARY KEY,
		fingerprint TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		doc BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_patterns_fp_time ON patterns(fingerprint, created_at DESC);

	CREATE TABLE IF NOT EXISTS workflows (
		id TEXT PRIMARY KEY,
		fingerprint TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		doc BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_workflows_fp_time ON workflows(fingerprint, created_at DESC);

	CREATE TABLE IF NOT EXISTS arm_stats (
		pattern TEXT PRIMARY KEY,
		version INTEGER NOT NULL,
		doc BLOB NOT NULL
	);
	`

	_, err := s.db.Exec(query)
	return err
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) PutTrace(ctx context.Context, trace *core.ExecutionTrace) error {
	doc, err := json.Marshal(trace)
	if err != nil {
		return errors.Wrap(err, errors.StorageFailure, "failed to encode trace")
	}

	success := 0
	if trace.Success {
		success = 1
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO traces (id, fingerprint, success, created_at, doc) VALUES (?, ?, ?, ?, ?)`,
		trace.ID, trace.Fingerprint, success, trace.Timestamp.UnixNano(), doc)
	if err != nil {
		return errors.Wrap(err, errors.StorageFailure, "failed to store trace")
	}
	return nil
}

func (s *SQLite) ListSuccessful(ctx context.Context, fingerprint string, limit int) ([]*core.ExecutionTrace, error) {
	query := `SELECT doc FROM traces WHERE fingerprint = ? AND success = 1 ORDER BY created_at DESC`
	args := []interface{}{fingerprint}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.StorageFailure, "failed to query traces")
	}
	defer rows.Close()

	var traces []*core.ExecutionTrace
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, errors.Wrap(err, errors.StorageFailure, "failed to scan trace row")
		}
		var trace core.ExecutionTrace
		if err := json.Unmarshal(doc, &trace); err != nil {
			return nil, errors.Wrap(err, errors.StorageFailure, "failed to decode trace")
		}
		traces = append(traces, &trace)
	}
	return traces, rows.Err()
}

func (s *SQLite) CountForFingerprint(ctx context.Context, fingerprint string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM traces WHERE fingerprint = ? AND success = 1`, fingerprint).Scan(&count)
	if err != nil {
		return 0, errors.Wrap(err, errors.StorageFailure, "failed to count traces")
	}
	return count, nil
}

func (s *SQLite) ListFingerprints(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT fingerprint FROM traces WHERE success = 1 ORDER BY fingerprint`)
	if err != nil {
		return nil, errors.Wrap(err, errors.StorageFailure, "failed to list fingerprints")
	}
	defer rows.Close()

	var fps []string
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, errors.Wrap(err, errors.StorageFailure, "failed to scan fingerprint")
		}
		fps = append(fps, fp)
	}
	return fps, rows.Err()
}

func (s *SQLite) PutPattern(ctx context.Context, pattern *core.ConsensusPattern) error {
	doc, err := json.Marshal(pattern)
	if err != nil {
		return errors.Wrap(err, errors.StorageFailure, "failed to encode pattern")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO patterns (id, fingerprint, created_at, doc) VALUES (?, ?, ?, ?)`,
		pattern.ID, pattern.Fingerprint, pattern.CreatedAt.UnixNano(), doc)
	if err != nil {
		return errors.Wrap(err, errors.StorageFailure, "failed to store pattern")
	}
	return nil
}

func (s *SQLite) LatestPattern(ctx context.Context, fingerprint string) (*core.ConsensusPattern, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM patterns WHERE fingerprint = ? ORDER BY created_at DESC LIMIT 1`,
		fingerprint).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.StorageFailure, "failed to query pattern")
	}

	var pattern core.ConsensusPattern
	if err := json.Unmarshal(doc, &pattern); err != nil {
		return nil, errors.Wrap(err, errors.StorageFailure, "failed to decode pattern")
	}
	return &pattern, nil
}

func (s *SQLite) PutWorkflow(ctx context.Context, workflow *core.SynthesizedWorkflow) error {
	doc, err := json.Marshal(workflow)
	if err != nil {
		return errors.Wrap(err, errors.StorageFailure, "failed to encode workflow")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO workflows (id, fingerprint, created_at, doc) VALUES (?, ?, ?, ?)`,
		workflow.ID, workflow.Fingerprint, workflow.CreatedAt.UnixNano(), doc)
	if err != nil {
		return errors.Wrap(err, errors.StorageFailure, "failed to store workflow")
	}
	return nil
}

func (s *SQLite) LatestWorkflow(ctx context.Context, fingerprint string) (*core.SynthesizedWorkflow, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM workflows WHERE fingerprint = ? ORDER BY created_at DESC LIMIT 1`,
		fingerprint).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.StorageFailure, "failed to query workflow")
	}

	var workflow core.SynthesizedWorkflow
	if err := json.Unmarshal(doc, &workflow); err != nil {
		return nil, errors.Wrap(err, errors.StorageFailure, "failed to decode workflow")
	}
	return &workflow, nil
}

func (s *SQLite) GetStats(ctx context.Context, pattern string) (*core.ArmStats, error) {
	var version int64
	var doc []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT version, doc FROM arm_stats WHERE pattern = ?`, pattern).Scan(&version, &doc)
	if err == sql.ErrNoRows {
		return &core.ArmStats{Pattern: pattern}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.StorageFailure, "failed to query arm stats")
	}

	var stats core.ArmStats
	if err := json.Unmarshal(doc, &stats); err != nil {
		return nil, errors.Wrap(err, errors.StorageFailure, "failed to decode arm stats")
	}
	stats.Pattern = pattern
	stats.Version = version
	return &stats, nil
}

// PutStats commits stats only when the stored version still matches
// stats.Version. An insert races through the primary key, an update
// through the version guard; either miss is ErrVersionConflict.
func (s *SQLite) PutStats(ctx context.Context, stats *core.ArmStats) error {
	next := stats.Clone()
	next.Version++

	doc, err := json.Marshal(next)
	if err != nil {
		return errors.Wrap(err, errors.StorageFailure, "failed to encode arm stats")
	}

	if stats.Version == 0 {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO arm_stats (pattern, version, doc) VALUES (?, ?, ?)
			 ON CONFLICT(pattern) DO NOTHING`,
			stats.Pattern, next.Version, doc)
		if err != nil {
			return errors.Wrap(err, errors.StorageFailure, "failed to insert arm stats")
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return errors.Wrap(err, errors.StorageFailure, "failed to read insert result")
		}
		if affected == 0 {
			return ErrVersionConflict
		}
		return nil
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE arm_stats SET version = ?, doc = ? WHERE pattern = ? AND version = ?`,
		next.Version, doc, stats.Pattern, stats.Version)
	if err != nil {
		return errors.Wrap(err, errors.StorageFailure, "failed to update arm stats")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, errors.StorageFailure, "failed to read update result")
	}
	if affected == 0 {
		return ErrVersionConflict
	}
	return nil
}
