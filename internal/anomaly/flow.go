package anomaly

import (
	"time"

	"github.com/camfusion/pipeline/internal/model"
)

// FlowRate is the rate payload emitted to the flow sink by Flush (§4.8).
type FlowRate struct {
	Location    string
	EntryRate   float64
	ExitRate    float64
	BatchTS     time.Time
}

// FlowAccumulator maintains {entry_count, exit_count, window_start} and
// converts accumulated counts into an hourly rate on window elapse
// (§4.8, normalization decision in SPEC_FULL.md §9).
type FlowAccumulator struct {
	location    string
	windowSec   float64
	windowStart time.Time
	entryCount  int
	exitCount   int
}

// NewFlowAccumulator returns an accumulator for one location, with its
// window anchored at start.
func NewFlowAccumulator(location string, windowSec float64, start time.Time) *FlowAccumulator {
	return &FlowAccumulator{location: location, windowSec: windowSec, windowStart: start}
}

// Add increments the accumulator's counters by the number of entry/exit
// events in records.
func (a *FlowAccumulator) Add(records []model.Record) {
	for _, r := range records {
		switch r.Event.Type {
		case model.EventEntry:
			a.entryCount++
		case model.EventExit:
			a.exitCount++
		}
	}
}

// Flush checks whether the accumulation window has elapsed as of
// batchWallclock and, if so, returns the elapsed-hours-normalized rate and
// resets the window. ok is false if the window hasn't elapsed yet.
func (a *FlowAccumulator) Flush(batchWallclock time.Time, batchTS time.Time) (rate FlowRate, ok bool) {
	elapsed := batchWallclock.Sub(a.windowStart).Seconds()
	if elapsed < a.windowSec {
		return FlowRate{}, false
	}

	elapsedHours := elapsed / 3600.0
	rate = FlowRate{
		Location:  a.location,
		EntryRate: float64(a.entryCount) / elapsedHours,
		ExitRate:  float64(a.exitCount) / elapsedHours,
		BatchTS:   batchTS,
	}

	a.entryCount = 0
	a.exitCount = 0
	a.windowStart = batchWallclock

	return rate, true
}
