package mct

import (
	"github.com/camfusion/pipeline/internal/cluster"
	"github.com/camfusion/pipeline/internal/geo"
	"github.com/camfusion/pipeline/internal/model"
)

// ConsolidatePerCamera implements MCT-A (§4.2): collapse multiple
// detections of the same object observed by the same camera within one
// batch down to a single representative record per (sensor_id, object.id).
func ConsolidatePerCamera(records []model.Record, cfg Config) []model.Record {
	groups := groupBy(records, func(r model.Record) string { return r.SensorID })

	var unified []model.Record
	for _, sensorID := range groups.keys {
		group := groups.m[sensorID]
		unified = append(unified, consolidateSensorGroup(group, cfg)...)
	}

	return collate(unified, cfg)
}

// consolidateSensorGroup runs the distance-matrix + complete-linkage
// clustering of §4.2 steps 1-5 over one sensor's records, and rewrites
// every member's object.id to the cluster representative's.
func consolidateSensorGroup(records []model.Record, cfg Config) []model.Record {
	if len(records) < 2 {
		// Degenerate input bypasses clustering (§7).
		return records
	}

	large := cfg.IntraFrameLargeDistance()
	dm := cluster.NewDistanceMatrix(len(records), func(i, j int) float64 {
		a, b := records[i], records[j]
		switch {
		case a.Object.ID == b.Object.ID:
			return 0
		case a.Timestamp.Equal(b.Timestamp):
			return large
		case a.Object.ClassID != b.Object.ClassID:
			return large
		default:
			return a.Object.Centroid.Point.Distance(b.Object.Centroid.Point)
		}
	})

	clusters := dm.Clusters(cfg.IntraFramePeriodClustDistM)

	out := make([]model.Record, len(records))
	for _, idxs := range clusters {
		members := make([]model.Record, len(idxs))
		for k, idx := range idxs {
			members[k] = records[idx]
		}
		rep := SelectRepresentative(members)
		for k, idx := range idxs {
			r := records[idx]
			r.Object.ID = rep.Object.ID
			out[idx] = r
		}
	}
	return out
}

// collate implements the §4.2 "Collation" step: re-group by
// (sensor_id, object.id), smooth multi-member groups to their mean
// centroid, and emit one record per group.
func collate(records []model.Record, cfg Config) []model.Record {
	groups := groupBy(records, func(r model.Record) string {
		return r.SensorID + "\x00" + r.Object.ID
	})

	out := make([]model.Record, 0, len(groups.keys))
	for _, key := range groups.keys {
		group := groups.m[key]
		out = append(out, collateGroup(group, cfg))
	}
	return out
}

func collateGroup(group []model.Record, cfg Config) model.Record {
	if len(group) == 1 {
		return group[0]
	}

	sorted := append([]model.Record(nil), group...)
	model.SortByTimestamp(sorted)

	first, last := sorted[0], sorted[len(sorted)-1]
	dist := first.Object.Centroid.Point.Distance(last.Object.Centroid.Point)

	result := sorted[len(sorted)-1].Clone()
	if dist > cfg.MinThresholdDistMWithinResampleTime {
		bearing := geo.Bearing(first.Object.Centroid.Point, last.Object.Centroid.Point)
		result.Object.Direction = bearing
		result.Object.Orientation = bearing
	}

	points := make([]model.Point, len(sorted))
	for i, r := range sorted {
		points[i] = r.Object.Centroid.Point
	}
	mean := geo.Mean(points)

	for _, r := range sorted {
		result.Object.Centroid.OrigPoints = append(result.Object.Centroid.OrigPoints, model.OrigPoint{
			X:      r.Object.Centroid.X,
			Y:      r.Object.Centroid.Y,
			Reason: "mct_a_collation_smoothing",
		})
	}
	result.Object.Centroid.Point = mean

	return result
}

type groupedRecords struct {
	keys []string
	m    map[string][]model.Record
}

func groupBy(records []model.Record, keyOf func(model.Record) string) groupedRecords {
	g := groupedRecords{m: make(map[string][]model.Record)}
	for _, r := range records {
		k := keyOf(r)
		if _, ok := g.m[k]; !ok {
			g.keys = append(g.keys, k)
		}
		g.m[k] = append(g.m[k], r)
	}
	return g
}
