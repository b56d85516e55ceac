package anomaly

import (
	"testing"
	"time"

	"github.com/camfusion/pipeline/internal/model"
)

func anomalyRec(trackerID, classID string, x, y float64, ts time.Time) model.Record {
	return model.Record{
		Timestamp: ts,
		Object: model.Object{
			TrackerID: trackerID,
			ClassID:   classID,
			Centroid:  model.Centroid{Point: model.Point{X: x, Y: y}},
		},
		Event: model.Event{Type: model.EventDetection},
	}
}

func vehicleCfg() DetectorConfig {
	return DetectorConfig{
		ClassIDs:    map[string]struct{}{"vehicle": {}},
		ThreshSec:   30,
		ThreshM:     1.0,
		DeleteSec:   120,
		EmittedType: model.EventUnexpectedStopping,
		Module:      model.AnalyticsModule{ID: "test-stalled-vehicle"},
	}
}

func TestEngineIgnoresIneligibleClass(t *testing.T) {
	e := NewEngine(vehicleCfg())
	base := time.Now()

	out := e.Process([]model.Record{anomalyRec("t1", "person", 0, 0, base)}, base)
	if len(out) != 0 {
		t.Errorf("expected no anomalies for ineligible class, got %d", len(out))
	}
}

func TestEngineIgnoresRecordsWithoutTrackerID(t *testing.T) {
	e := NewEngine(vehicleCfg())
	base := time.Now()

	out := e.Process([]model.Record{anomalyRec("", "vehicle", 0, 0, base)}, base)
	if len(out) != 0 {
		t.Errorf("expected no anomalies for untracked record, got %d", len(out))
	}
}

func TestEngineNoAnomalyBeforeThreshold(t *testing.T) {
	e := NewEngine(vehicleCfg())
	base := time.Now()

	e.Process([]model.Record{anomalyRec("t1", "vehicle", 0, 0, base)}, base)
	out := e.Process([]model.Record{anomalyRec("t1", "vehicle", 0, 0, base.Add(10*time.Second))}, base.Add(10*time.Second))
	if len(out) != 0 {
		t.Errorf("expected no anomaly before thresh_sec elapses, got %d", len(out))
	}
}

func TestEngineEmitsAnomalyWhenMotionlessPastThreshold(t *testing.T) {
	e := NewEngine(vehicleCfg())
	base := time.Now()

	e.Process([]model.Record{anomalyRec("t1", "vehicle", 0, 0, base)}, base)
	later := base.Add(60 * time.Second)
	out := e.Process([]model.Record{anomalyRec("t1", "vehicle", 0.1, 0.1, later)}, later)

	if len(out) != 1 {
		t.Fatalf("expected 1 anomaly emitted, got %d", len(out))
	}
	if out[0].Event.Type != model.EventUnexpectedStopping {
		t.Errorf("expected EventUnexpectedStopping, got %v", out[0].Event.Type)
	}
	if out[0].Event.ID == "" {
		t.Error("expected a generated event id")
	}
	if out[0].StartTimestamp == nil || !out[0].StartTimestamp.Equal(base) {
		t.Errorf("expected start_timestamp to be the first observation, got %v", out[0].StartTimestamp)
	}
	if out[0].EndTimestamp == nil || !out[0].EndTimestamp.Equal(later) {
		t.Errorf("expected end_timestamp to be the triggering observation, got %v", out[0].EndTimestamp)
	}
	if out[0].AnalyticsModule == nil || out[0].AnalyticsModule.ID != "test-stalled-vehicle" {
		t.Errorf("expected analyticsModule to be set, got %+v", out[0].AnalyticsModule)
	}
}

func TestEngineDoesNotEmitWhenMovedBeyondThreshold(t *testing.T) {
	e := NewEngine(vehicleCfg())
	base := time.Now()

	e.Process([]model.Record{anomalyRec("t1", "vehicle", 0, 0, base)}, base)
	later := base.Add(60 * time.Second)
	out := e.Process([]model.Record{anomalyRec("t1", "vehicle", 10, 10, later)}, later)

	if len(out) != 0 {
		t.Errorf("expected no anomaly when object moved beyond thresh_m, got %d", len(out))
	}
}

func TestEngineResetsEntryAfterEmittingOrMoving(t *testing.T) {
	e := NewEngine(vehicleCfg())
	base := time.Now()

	e.Process([]model.Record{anomalyRec("t1", "vehicle", 0, 0, base)}, base)
	later := base.Add(60 * time.Second)
	e.Process([]model.Record{anomalyRec("t1", "vehicle", 0, 0, later)}, later) // emits + deletes

	// A third observation right after should start a fresh window, not
	// immediately re-emit.
	thirdTS := later.Add(time.Second)
	out := e.Process([]model.Record{anomalyRec("t1", "vehicle", 0, 0, thirdTS)}, thirdTS)
	if len(out) != 0 {
		t.Errorf("expected entry to reset after emitting, got %d anomalies", len(out))
	}
}

func TestEnginePrunesStaleEntries(t *testing.T) {
	e := NewEngine(vehicleCfg())
	base := time.Now()

	e.Process([]model.Record{anomalyRec("t1", "vehicle", 0, 0, base)}, base)

	// Prune fires as a side effect of any Process call; an empty batch far
	// in the future should age out t1's entry so it never reports
	// motionless again.
	farFuture := base.Add(10 * time.Minute)
	e.Process(nil, farFuture)

	if _, ok := e.entries["t1"]; ok {
		t.Error("expected stale entry to be pruned after delete_sec elapses")
	}
}

func TestEngineChebyshevUsesPerAxisNotEuclidean(t *testing.T) {
	cfg := vehicleCfg()
	cfg.ThreshM = 2.0
	e := NewEngine(cfg)
	base := time.Now()

	e.Process([]model.Record{anomalyRec("t1", "vehicle", 0, 0, base)}, base)
	later := base.Add(60 * time.Second)
	// Displacement of (1.9, 1.9): Euclidean distance ~2.687 exceeds 2.0,
	// but each axis (1.9) is within the 2.0 Chebyshev radius.
	out := e.Process([]model.Record{anomalyRec("t1", "vehicle", 1.9, 1.9, later)}, later)
	if len(out) != 1 {
		t.Errorf("expected Chebyshev (per-axis) radius check to allow this displacement, got %d anomalies", len(out))
	}
}
