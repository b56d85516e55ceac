// Package anomaly implements the State Tracker (ST) stateful analytics of
// SPEC_FULL.md §4.7/§4.8: the Possible-Motionless Map anomaly engine and
// the Flow-Rate Accumulator.
package anomaly

import (
	"time"

	"github.com/google/uuid"

	"github.com/camfusion/pipeline/internal/model"
)

// DetectorConfig parameterizes one instance of the shared motionless-object
// algorithm (§4.7). The vehicle and person detectors run the same
// algorithm under two different DetectorConfig values.
type DetectorConfig struct {
	ClassIDs    map[string]struct{}
	ThreshSec   float64
	ThreshM     float64
	DeleteSec   float64
	EmittedType model.EventType
	Module      model.AnalyticsModule
}

// eligible reports whether classID is one of the detector's watched classes.
func (c DetectorConfig) eligible(classID string) bool {
	_, ok := c.ClassIDs[classID]
	return ok
}

type motionlessEntry struct {
	startTime   time.Time
	firstRecord model.Record
}

// Engine is one Possible-Motionless Map instance running one DetectorConfig
// (§4.7). Construct two Engines, one per DetectorConfig, to run both the
// vehicle and person detectors.
type Engine struct {
	cfg     DetectorConfig
	entries map[string]motionlessEntry
}

// NewEngine returns an Engine with an empty Possible-Motionless Map.
func NewEngine(cfg DetectorConfig) *Engine {
	return &Engine{cfg: cfg, entries: make(map[string]motionlessEntry)}
}

// Process runs the §4.7 algorithm over one batch of records (already
// timestamp-sorted; records of other classes are skipped) and returns the
// anomaly events to emit. It must be called once per batch; after the
// records are examined it prunes entries older than delete_sec relative to
// batchTS.
func (e *Engine) Process(records []model.Record, batchTS time.Time) []model.Record {
	var anomalies []model.Record

	for _, r := range records {
		if !e.cfg.eligible(r.Object.ClassID) {
			continue
		}
		key := r.Object.TrackerID
		if key == "" {
			continue
		}

		entry, ok := e.entries[key]
		if !ok {
			e.entries[key] = motionlessEntry{startTime: batchTS, firstRecord: r}
			continue
		}

		age := batchTS.Sub(entry.startTime).Seconds()
		if age < e.cfg.ThreshSec {
			continue
		}

		if chebyshevWithin(entry.firstRecord.Object.Centroid.Point, r.Object.Centroid.Point, e.cfg.ThreshM) {
			anomalies = append(anomalies, e.buildAnomaly(r, entry))
		}
		delete(e.entries, key)
	}

	e.prune(batchTS)

	return anomalies
}

func (e *Engine) buildAnomaly(r model.Record, entry motionlessEntry) model.Record {
	event := r.Clone()
	start := entry.firstRecord.Timestamp
	end := r.Timestamp
	event.StartTimestamp = &start
	event.EndTimestamp = &end
	event.Event = model.Event{ID: uuid.NewString(), Type: e.cfg.EmittedType}
	module := e.cfg.Module
	event.AnalyticsModule = &module
	return event
}

// prune removes any map entry whose age exceeds the detector's delete_sec
// threshold (§4.7 "Pruning").
func (e *Engine) prune(now time.Time) {
	for key, entry := range e.entries {
		if now.Sub(entry.startTime).Seconds() > e.cfg.DeleteSec {
			delete(e.entries, key)
		}
	}
}

// chebyshevWithin reports whether b lies within a per-axis (Chebyshev,
// not Euclidean) radius of a — the §4.7 step 5 test.
func chebyshevWithin(a, b model.Point, radius float64) bool {
	dx := a.X - b.X
	if dx < 0 {
		dx = -dx
	}
	dy := a.Y - b.Y
	if dy < 0 {
		dy = -dy
	}
	return dx < radius && dy < radius
}
