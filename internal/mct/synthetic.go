package mct

import (
	"strconv"

	"github.com/camfusion/pipeline/internal/model"
)

// SyntheticIDCounter hands out the monotonic suffix for UNK-<class>-<n>
// ids (§4.6).
type SyntheticIDCounter struct {
	next int
}

// AssignSyntheticID mints the tracker id of a record that MCT-C left
// unmatched, per §4.6: TRK-<class_id>-<tracker_id> if r already carries a
// tracker id (e.g. from an upstream sensor-level tracker), else
// UNK-<class_id>-<counter>. Only the UNK form advances the counter.
func (c *SyntheticIDCounter) AssignSyntheticID(r *model.Record) {
	if r.Object.TrackerID == "" {
		r.Object.TrackerID = "UNK-" + r.Object.ClassID + "-" + strconv.Itoa(c.next)
		c.next++
		return
	}
	r.Object.TrackerID = "TRK-" + r.Object.ClassID + "-" + r.Object.TrackerID
}
