package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/camfusion/pipeline/internal/anomaly"
	"github.com/camfusion/pipeline/internal/model"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	s, err := Open(context.Background(), &Config{Path: dbPath})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	s, err := Open(context.Background(), &Config{
		Path:            dbPath,
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer s.Close()

	if err := s.Health(context.Background()); err != nil {
		t.Errorf("health check failed: %v", err)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("/data/pipeline.db")

	if cfg.Path != "/data/pipeline.db" {
		t.Errorf("expected path /data/pipeline.db, got %s", cfg.Path)
	}
	if cfg.MaxOpenConns != 25 {
		t.Errorf("expected MaxOpenConns 25, got %d", cfg.MaxOpenConns)
	}
}

func TestInsertObjectMarker(t *testing.T) {
	s := openTestStore(t)

	r := model.Record{
		Timestamp: time.Unix(1000, 0),
		SensorID:  "cam1",
		Object:    model.Object{ID: "obj1", ClassID: "person"},
		Place:     model.Place{Name: "lobby", SubPlace: model.SubPlace{Level: "L1"}},
		AnalyticsModule: &model.AnalyticsModule{
			ID:          "mct",
			Description: "multi-camera tracker",
		},
	}

	if err := s.InsertObjectMarker(context.Background(), r); err != nil {
		t.Fatalf("InsertObjectMarker failed: %v", err)
	}

	var messageID, payload string
	err := s.db.QueryRow("SELECT messageid, payload FROM objectmarker").Scan(&messageID, &payload)
	if err != nil {
		t.Fatalf("failed to query objectmarker: %v", err)
	}
	if messageID != "lobby-L1" {
		t.Errorf("expected messageid 'lobby-L1', got '%s'", messageID)
	}
}

func TestObjectMarkerDocumentStripsConfidence(t *testing.T) {
	r := model.Record{
		AnalyticsModule: &model.AnalyticsModule{ID: "mct"},
	}
	doc, err := objectMarkerDocument(r)
	if err != nil {
		t.Fatalf("objectMarkerDocument failed: %v", err)
	}
	if strings.Contains(doc, "confidence") {
		t.Errorf("expected confidence to be stripped, got %s", doc)
	}
}

func TestWriteFlowRate(t *testing.T) {
	s := openTestStore(t)

	rate := anomaly.FlowRate{
		Location:  "lobby-L1",
		EntryRate: 12.5,
		ExitRate:  4.0,
		BatchTS:   time.Unix(2000, 0),
	}

	if err := s.WriteFlowRate(context.Background(), rate); err != nil {
		t.Fatalf("WriteFlowRate failed: %v", err)
	}

	var entry, exit float64
	err := s.db.QueryRow("SELECT entry, exit FROM flowrate WHERE id = ? AND timestamp = ?", rate.Location, rate.BatchTS.Unix()).Scan(&entry, &exit)
	if err != nil {
		t.Fatalf("failed to query flowrate: %v", err)
	}
	if entry != 12.5 || exit != 4.0 {
		t.Errorf("expected entry=12.5 exit=4.0, got entry=%v exit=%v", entry, exit)
	}
}

func TestTransaction(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.db.Exec(`CREATE TABLE test_table (id INTEGER PRIMARY KEY, value TEXT)`); err != nil {
		t.Fatalf("failed to create test table: %v", err)
	}

	err := s.Transaction(context.Background(), func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO test_table (value) VALUES (?)`, "test1")
		return err
	})
	if err != nil {
		t.Errorf("transaction failed: %v", err)
	}

	var value string
	if err := s.db.QueryRow(`SELECT value FROM test_table WHERE id = 1`).Scan(&value); err != nil {
		t.Errorf("failed to query inserted data: %v", err)
	}
	if value != "test1" {
		t.Errorf("expected value 'test1', got '%s'", value)
	}

	expectedErr := fmt.Errorf("intentional error")
	err = s.Transaction(context.Background(), func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO test_table (value) VALUES (?)`, "test2"); err != nil {
			return err
		}
		return expectedErr
	})
	if err != expectedErr {
		t.Errorf("expected error %v, got %v", expectedErr, err)
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM test_table WHERE value = 'test2'`).Scan(&count); err != nil {
		t.Errorf("failed to count: %v", err)
	}
	if count != 0 {
		t.Error("transaction should have rolled back, but data was inserted")
	}
}

func TestHealth(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	s, err := Open(context.Background(), &Config{Path: dbPath})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	if err := s.Health(context.Background()); err != nil {
		t.Errorf("health check failed on open store: %v", err)
	}

	s.Close()
	if err := s.Health(context.Background()); err == nil {
		t.Error("health check should fail on closed store")
	}
}

func TestGetSize(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.db.Exec(`INSERT INTO objectmarker (messageid, payload) VALUES (?, ?)`, "m1", "{}"); err != nil {
		t.Fatalf("failed to insert data: %v", err)
	}

	size, err := s.GetSize()
	if err != nil {
		t.Errorf("GetSize failed: %v", err)
	}
	if size <= 0 {
		t.Error("expected positive store size")
	}
}

func TestVacuum(t *testing.T) {
	s := openTestStore(t)

	if err := s.Vacuum(context.Background()); err != nil {
		t.Errorf("vacuum failed: %v", err)
	}
}

func TestAnalyze(t *testing.T) {
	s := openTestStore(t)

	if err := s.Analyze(context.Background()); err != nil {
		t.Errorf("analyze failed: %v", err)
	}
}

func TestCheckpoint(t *testing.T) {
	s := openTestStore(t)

	if err := s.Checkpoint(context.Background()); err != nil {
		t.Errorf("checkpoint failed: %v", err)
	}
}

func TestClose(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	s, err := Open(context.Background(), &Config{Path: dbPath})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Errorf("close failed: %v", err)
	}

	if err := s.Health(context.Background()); err == nil {
		t.Error("expected error after close")
	}
}

func TestOpenInvalidPath(t *testing.T) {
	cfg := &Config{Path: "/root/nonexistent/test.db"}

	_, err := Open(context.Background(), cfg)
	if err == nil {
		t.Error("expected error for invalid path")
	}
}

func TestGetSizeNonExistent(t *testing.T) {
	s := &SQLiteStore{path: "/nonexistent/path/db.db"}

	_, err := s.GetSize()
	if err == nil {
		t.Error("expected error for non-existent path")
	}
}
