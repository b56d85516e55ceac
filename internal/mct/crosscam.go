package mct

import (
	"time"

	"github.com/camfusion/pipeline/internal/cluster"
	"github.com/camfusion/pipeline/internal/geo"
	"github.com/camfusion/pipeline/internal/model"
)

// ClusterCrossCamera implements MCT-B (§4.3): merge detections of the same
// physical object seen by different overlapping cameras within one batch,
// maintaining a stable cluster identity across batches via identity.
func ClusterCrossCamera(records []model.Record, cfg Config, identity *IdentityMap, batchTS time.Time) []model.Record {
	if len(records) < 2 {
		return records
	}

	mt := cfg.MatchType()
	large := cfg.CrossCameraLargeDistance()

	dm := cluster.NewDistanceMatrix(len(records), func(i, j int) float64 {
		a, b := records[i], records[j]

		if a.SensorID == b.SensorID {
			return large
		}
		if a.Object.ClassID != b.Object.ClassID {
			return large
		}
		if cfg.TrackAcrossFrames && identity.Share(a.Object.ID, b.Object.ID) {
			return 0
		}
		switch mt {
		case MatchTypeOverlap:
			if !cfg.camerasOverlap(a.SensorID, b.SensorID) {
				return large
			}
		case MatchTypeDontMatch:
			if cfg.dontMatchCameras(a.SensorID, b.SensorID) {
				return large
			}
		case MatchTypeNone:
			return large
		}
		return a.Object.Centroid.Point.Distance(b.Object.Centroid.Point)
	})

	clusters := dm.Clusters(cfg.ClusterDistThreshM)

	var out []model.Record
	for _, idxs := range clusters {
		members := make([]model.Record, len(idxs))
		for k, idx := range idxs {
			members[k] = records[idx]
		}

		if !spansMultipleCameras(members) {
			out = append(out, members...)
			continue
		}

		memberIDs := make([]string, len(members))
		for k, m := range members {
			memberIDs[k] = m.Object.ID
		}
		identity.Maintain(memberIDs, batchTS)

		points := make([]model.Point, len(members))
		for k, m := range members {
			points[k] = m.Object.Centroid.Point
		}
		mean := geo.Mean(points)

		rep := SelectRepresentative(members).Clone()
		for _, m := range members {
			rep.Object.Centroid.OrigPoints = append(rep.Object.Centroid.OrigPoints, model.OrigPoint{
				X:      m.Object.Centroid.X,
				Y:      m.Object.Centroid.Y,
				Reason: "mct_b_cross_camera_smoothing",
			})
		}
		rep.Object.Centroid.Point = mean
		rep.Object.IDList = sortedStrings(memberIDs)

		out = append(out, rep)
	}

	return out
}

func spansMultipleCameras(members []model.Record) bool {
	first := members[0].SensorID
	for _, m := range members[1:] {
		if m.SensorID != first {
			return true
		}
	}
	return false
}

func sortedStrings(xs []string) []string {
	out := append([]string(nil), xs...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}
