// Package model defines the detection record shape shared by every pipeline
// stage.
package model

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Point is a world-plane coordinate in meters.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance returns the Euclidean distance between two points.
func (p Point) Distance(o Point) float64 {
	dx := p.X - o.X
	dy := p.Y - o.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// BoundingBox is an axis-aligned box in the same world plane as Centroid.
type BoundingBox struct {
	TopLeftX     float64 `json:"topLeftX"`
	TopLeftY     float64 `json:"topLeftY"`
	BottomRightX float64 `json:"bottomRightX"`
	BottomRightY float64 `json:"bottomRightY"`
}

// OrigPoint is one entry in a centroid's pre-smoothing audit trail.
type OrigPoint struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Reason string  `json:"reason"`
}

// Centroid carries the current world-plane position plus the audit trail of
// positions it was smoothed from.
type Centroid struct {
	Point
	OrigPoints []OrigPoint `json:"origPoints,omitempty"`
}

// Object carries every per-object field of a Detection Record.
type Object struct {
	ID          string      `json:"id"`
	TrackerID   string      `json:"tracker_id,omitempty"`
	ClassID     string      `json:"class_id"`
	Centroid    Centroid    `json:"centroid"`
	BBox        BoundingBox `json:"bbox"`
	Direction   float64     `json:"direction"`
	Orientation float64     `json:"orientation"`
	IDList      []string    `json:"id_list,omitempty"`
}

// SubPlace is the finer-grained location a Place may carry.
type SubPlace struct {
	Level string `json:"level,omitempty"`
}

// Place is the nested location metadata carried by every record.
type Place struct {
	Name      string   `json:"name,omitempty"`
	SubPlace  SubPlace `json:"subplace,omitempty"`
	ParkingSpot string `json:"parkingSpot,omitempty"`
	Entrance  string   `json:"entrance,omitempty"`
	Exit      string   `json:"exit,omitempty"`
	Aisle     string   `json:"aisle,omitempty"`
}

// EventType enumerates the recognized event.type values.
type EventType string

const (
	EventDetection    EventType = "detection"
	EventDetectionAdj EventType = "detection_adj"
	EventParked       EventType = "parked"
	EventEmpty        EventType = "empty"
	EventMoving       EventType = "moving"
	EventStopped      EventType = "stopped"
	EventEntry        EventType = "entry"
	EventExit         EventType = "exit"

	EventUnexpectedStopping EventType = "UnexpectedStopping"
	EventMotionlessPerson   EventType = "MotionlessPerson"
)

// Event carries the event.type (and, for anomalies, the generated id).
type Event struct {
	ID   string    `json:"id,omitempty"`
	Type EventType `json:"type"`
}

// AnalyticsModule identifies the analytic that produced an anomaly record.
type AnalyticsModule struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Source      string `json:"source"`
	Version     string `json:"version"`
}

// Record is the Detection Record, the immutable message shape that flows
// through every pipeline stage. Copy (not mutate in place) whenever a stage
// needs to change a field on a record another stage still references.
type Record struct {
	Timestamp       time.Time        `json:"timestamp"`
	SensorID        string           `json:"sensor_id"`
	Object          Object           `json:"object"`
	Event           Event            `json:"event"`
	Place           Place            `json:"place,omitempty"`
	VideoPath       string           `json:"videoPath,omitempty"`
	StartTimestamp  *time.Time       `json:"startTimestamp,omitempty"`
	EndTimestamp    *time.Time       `json:"endTimestamp,omitempty"`
	AnalyticsModule *AnalyticsModule `json:"analyticsModule,omitempty"`

	// ArrivedAt records the batch timestamp at which this record arrived;
	// carry-over expiry is measured from it. It is not part of the wire
	// schema.
	ArrivedAt time.Time `json:"-"`
}

// NormalizeObjectID returns the "^S<sensor>_^O<local>" form of an object id.
func NormalizeObjectID(sensorID, localID string) string {
	return fmt.Sprintf("^S%s_^O%s", sensorID, localID)
}

// Clone returns a deep-enough copy of r: every field a downstream stage
// might mutate (centroid audit trail, id list) gets its own backing array.
func (r Record) Clone() Record {
	c := r
	if len(r.Object.Centroid.OrigPoints) > 0 {
		c.Object.Centroid.OrigPoints = append([]OrigPoint(nil), r.Object.Centroid.OrigPoints...)
	}
	if len(r.Object.IDList) > 0 {
		c.Object.IDList = append([]string(nil), r.Object.IDList...)
	}
	return c
}

// IsMovingClass reports whether the record belongs to the "moving-class"
// partition that participates in clustering and matching (§4.1).
func (r Record) IsMovingClass() bool {
	return r.Event.Type == EventDetection || r.Event.Type == EventDetectionAdj
}

// SortByTimestamp stably sorts records by ascending timestamp in place.
func SortByTimestamp(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
}

// Partition splits records into the moving-class partition and everything
// else, preserving relative order within each partition.
func Partition(records []Record) (moving, others []Record) {
	for _, r := range records {
		if r.IsMovingClass() {
			moving = append(moving, r)
		} else {
			others = append(others, r)
		}
	}
	return moving, others
}

// MessageID implements the storage-egress transform from §6: place.name
// joined with place.subplace.level, defaulting to "UNKNOWN_LEVEL".
func (r Record) MessageID() string {
	level := r.Place.SubPlace.Level
	if level == "" {
		level = "UNKNOWN_LEVEL"
	}
	return r.Place.Name + "-" + level
}

// Valid implements the Ingest & Validate stage's rejection rule (§2 step
// 1): it rejects a record whose timestamp is absent (zero) or whose
// sensor_id or object.id is empty. An unparseable timestamp already fails
// JSON decoding before Valid is reached. A missing centroid decodes as
// (0, 0) and is not detected here.
func (r Record) Valid() bool {
	if r.Timestamp.IsZero() {
		return false
	}
	if r.SensorID == "" || r.Object.ID == "" {
		return false
	}
	return true
}
