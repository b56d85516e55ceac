// Package store provides the detection/flow-rate persistence sink
// (SPEC_FULL.md §6). DetectionStore models the wide-column contract the
// original system ran against Cassandra; SQLiteStore backs it with the
// teacher's WAL-mode mattn/go-sqlite3 pattern (see DESIGN.md for the
// wide-column-vs-SQLite rationale). Swapping in a genuine wide-column
// driver later only requires a new DetectionStore implementation.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/camfusion/pipeline/internal/anomaly"
	"github.com/camfusion/pipeline/internal/model"
)

// DetectionStore is the storage-egress interface of SPEC_FULL.md §6: one
// JSON-document insert for tracked detections, two scalar updates for
// flow-rate counters.
type DetectionStore interface {
	InsertObjectMarker(ctx context.Context, r model.Record) error
	WriteFlowRate(ctx context.Context, rate anomaly.FlowRate) error
	Health(ctx context.Context) error
	Close() error
}

// Config holds SQLiteStore configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultConfig returns the default store configuration.
func DefaultConfig(path string) *Config {
	return &Config{
		Path:            path,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// SQLiteStore is the concrete DetectionStore backing (§6).
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger

	insertMarker *sql.Stmt
	updateEntry  *sql.Stmt
	updateExit   *sql.Stmt
	insertFlow   *sql.Stmt
}

// Open opens a SQLiteStore, applying WAL-mode pragmas and pending
// migrations.
func Open(ctx context.Context, cfg *Config) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=ON", cfg.Path)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping store: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA cache_size = -64000",
		"PRAGMA temp_store = MEMORY",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			logger.Warn("failed to set pragma", "pragma", pragma, "error", err)
		}
	}

	s := &SQLiteStore{db: db, path: cfg.Path, logger: logger}

	if err := NewMigrator(s).Run(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := s.prepare(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	logger.Info("store opened", "path", cfg.Path)
	return s, nil
}

func (s *SQLiteStore) prepare() error {
	var err error
	if s.insertMarker, err = s.db.Prepare("INSERT INTO objectmarker (messageid, payload) VALUES (?, ?)"); err != nil {
		return err
	}
	if s.updateEntry, err = s.db.Prepare("UPDATE flowrate SET entry = ? WHERE id = ? AND timestamp = ?"); err != nil {
		return err
	}
	if s.updateExit, err = s.db.Prepare("UPDATE flowrate SET exit = ? WHERE id = ? AND timestamp = ?"); err != nil {
		return err
	}
	if s.insertFlow, err = s.db.Prepare("INSERT OR IGNORE INTO flowrate (id, timestamp, entry, exit) VALUES (?, ?, 0, 0)"); err != nil {
		return err
	}
	return nil
}

// InsertObjectMarker applies the §6 JSON transform (messageid injected,
// analyticsModule.confidence stripped) and inserts the resulting document.
func (s *SQLiteStore) InsertObjectMarker(ctx context.Context, r model.Record) error {
	doc, err := objectMarkerDocument(r)
	if err != nil {
		return fmt.Errorf("failed to build objectmarker document: %w", err)
	}

	_, err = s.insertMarker.ExecContext(ctx, r.MessageID(), doc)
	if err != nil {
		return fmt.Errorf("failed to insert objectmarker: %w", err)
	}
	return nil
}

// objectMarkerDocument builds the JSON payload per §6: field "messageid"
// set from Record.MessageID, field "analyticsModule.confidence" removed
// if present.
func objectMarkerDocument(r model.Record) (string, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return "", err
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", err
	}
	doc["messageid"] = r.MessageID()

	if am, ok := doc["analyticsModule"].(map[string]any); ok {
		delete(am, "confidence")
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// WriteFlowRate persists one Flow-Rate Accumulator flush (§4.8, §6),
// ensuring a row exists before applying the entry/exit UPDATE statements.
func (s *SQLiteStore) WriteFlowRate(ctx context.Context, rate anomaly.FlowRate) error {
	ts := rate.BatchTS.Unix()

	if _, err := s.insertFlow.ExecContext(ctx, rate.Location, ts); err != nil {
		return fmt.Errorf("failed to seed flowrate row: %w", err)
	}
	if _, err := s.updateEntry.ExecContext(ctx, rate.EntryRate, rate.Location, ts); err != nil {
		return fmt.Errorf("failed to update flowrate entry: %w", err)
	}
	if _, err := s.updateExit.ExecContext(ctx, rate.ExitRate, rate.Location, ts); err != nil {
		return fmt.Errorf("failed to update flowrate exit: %w", err)
	}
	return nil
}

// Path returns the store file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Stats returns connection pool statistics.
func (s *SQLiteStore) Stats() sql.DBStats {
	return s.db.Stats()
}

// Vacuum performs store maintenance.
func (s *SQLiteStore) Vacuum(ctx context.Context) error {
	s.logger.Info("starting store vacuum")
	start := time.Now()

	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("vacuum failed: %w", err)
	}

	s.logger.Info("store vacuum completed", "duration", time.Since(start))
	return nil
}

// Analyze updates store statistics for query optimization.
func (s *SQLiteStore) Analyze(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "ANALYZE")
	if err != nil {
		return fmt.Errorf("analyze failed: %w", err)
	}
	return nil
}

// Health checks store connectivity.
func (s *SQLiteStore) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing store")
	return s.db.Close()
}

// Transaction wraps fn in a database transaction.
func (s *SQLiteStore) Transaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}
	return nil
}

// GetSize returns the store file size in bytes.
func (s *SQLiteStore) GetSize() (int64, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Checkpoint forces a WAL checkpoint.
func (s *SQLiteStore) Checkpoint(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}
