package anomaly

import (
	"testing"
	"time"

	"github.com/camfusion/pipeline/internal/model"
)

func TestFlowAccumulatorFlushBeforeWindowElapsed(t *testing.T) {
	start := time.Now()
	a := NewFlowAccumulator("loc1", 3600, start)

	a.Add([]model.Record{{Event: model.Event{Type: model.EventEntry}}})
	_, ok := a.Flush(start.Add(time.Minute), start.Add(time.Minute))
	if ok {
		t.Error("expected Flush to report false before the window elapses")
	}
}

func TestFlowAccumulatorCountsEntryAndExit(t *testing.T) {
	start := time.Now()
	a := NewFlowAccumulator("loc1", 3600, start)

	a.Add([]model.Record{
		{Event: model.Event{Type: model.EventEntry}},
		{Event: model.Event{Type: model.EventEntry}},
		{Event: model.Event{Type: model.EventExit}},
		{Event: model.Event{Type: model.EventDetection}}, // ignored
	})

	rate, ok := a.Flush(start.Add(time.Hour), start.Add(time.Hour))
	if !ok {
		t.Fatal("expected Flush to fire after a full hour window")
	}
	if rate.EntryRate != 2 {
		t.Errorf("expected entry rate 2/hr, got %v", rate.EntryRate)
	}
	if rate.ExitRate != 1 {
		t.Errorf("expected exit rate 1/hr, got %v", rate.ExitRate)
	}
	if rate.Location != "loc1" {
		t.Errorf("expected location loc1, got %q", rate.Location)
	}
}

func TestFlowAccumulatorNormalizesToElapsedHoursNotWindowSize(t *testing.T) {
	start := time.Now()
	a := NewFlowAccumulator("loc1", 1800, start) // 30-minute window

	a.Add([]model.Record{{Event: model.Event{Type: model.EventEntry}}})

	// Window check passes at 30 minutes, but wall-clock elapsed is 2
	// hours (e.g. a delayed batch): the rate should normalize against the
	// actual elapsed time, not the configured window.
	rate, ok := a.Flush(start.Add(2*time.Hour), start.Add(2*time.Hour))
	if !ok {
		t.Fatal("expected Flush to fire")
	}
	if rate.EntryRate != 0.5 {
		t.Errorf("expected entry rate normalized to elapsed hours (1 event / 2h = 0.5), got %v", rate.EntryRate)
	}
}

func TestFlowAccumulatorResetsAfterFlush(t *testing.T) {
	start := time.Now()
	a := NewFlowAccumulator("loc1", 3600, start)
	a.Add([]model.Record{{Event: model.Event{Type: model.EventEntry}}})

	firstFlush := start.Add(time.Hour)
	a.Flush(firstFlush, firstFlush)

	rate, ok := a.Flush(firstFlush.Add(time.Hour), firstFlush.Add(time.Hour))
	if !ok {
		t.Fatal("expected second flush to fire after another full window")
	}
	if rate.EntryRate != 0 {
		t.Errorf("expected counts to reset after flush, got entry rate %v", rate.EntryRate)
	}
}

func TestFlowAccumulatorCarriesBatchTimestampNotWallClock(t *testing.T) {
	start := time.Now()
	a := NewFlowAccumulator("loc1", 3600, start)

	batchTS := start.Add(45 * time.Minute) // data timestamp lags wall clock
	rate, ok := a.Flush(start.Add(time.Hour), batchTS)
	if !ok {
		t.Fatal("expected flush to fire")
	}
	if !rate.BatchTS.Equal(batchTS) {
		t.Errorf("expected rate.BatchTS to be the batch timestamp %v, got %v", batchTS, rate.BatchTS)
	}
}
