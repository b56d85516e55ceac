package mct

import (
	"testing"

	"github.com/camfusion/pipeline/internal/model"
)

func TestAssignSyntheticIDMintsUnknownWhenNoTrackerID(t *testing.T) {
	c := &SyntheticIDCounter{}
	r := model.Record{Object: model.Object{ClassID: "person"}}

	c.AssignSyntheticID(&r)
	if r.Object.TrackerID != "UNK-person-0" {
		t.Errorf("got %q, want UNK-person-0", r.Object.TrackerID)
	}

	r2 := model.Record{Object: model.Object{ClassID: "person"}}
	c.AssignSyntheticID(&r2)
	if r2.Object.TrackerID != "UNK-person-1" {
		t.Errorf("got %q, want UNK-person-1 (monotonic counter)", r2.Object.TrackerID)
	}
}

func TestAssignSyntheticIDPrefixesExistingTrackerID(t *testing.T) {
	c := &SyntheticIDCounter{}
	r := model.Record{Object: model.Object{ClassID: "vehicle", TrackerID: "42"}}

	c.AssignSyntheticID(&r)
	if r.Object.TrackerID != "TRK-vehicle-42" {
		t.Errorf("got %q, want TRK-vehicle-42", r.Object.TrackerID)
	}
}

func TestAssignSyntheticIDDoesNotConsumeCounterForTrackedRecords(t *testing.T) {
	c := &SyntheticIDCounter{}
	r := model.Record{Object: model.Object{ClassID: "vehicle", TrackerID: "1"}}
	c.AssignSyntheticID(&r)

	r2 := model.Record{Object: model.Object{ClassID: "vehicle"}}
	c.AssignSyntheticID(&r2)
	if r2.Object.TrackerID != "UNK-vehicle-0" {
		t.Errorf("got %q, want UNK-vehicle-0 (counter untouched by tracked record)", r2.Object.TrackerID)
	}
}
