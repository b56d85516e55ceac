package mct

import (
	"time"

	"github.com/camfusion/pipeline/internal/assign"
	"github.com/camfusion/pipeline/internal/geo"
	"github.com/camfusion/pipeline/internal/model"
)

// CrossWindowResult is the outcome of one MCT-C pass (§4.5).
type CrossWindowResult struct {
	// Current holds every current-batch record, with tracker_id/object.id
	// propagated from matches and synthetic ids minted for the rest.
	Current []model.Record
	// NextPrevious is the "previous" set to pass into the next batch's
	// CrossWindowMatch call: current-batch records concatenated with the
	// surviving (unexpired) carry-over.
	NextPrevious []model.Record
}

// CrossWindowMatch implements MCT-C (§4.5): links prev (the previous
// batch's consolidated+carry-over records) against curr (this batch's
// post-MCT-B records) via minimum-cost assignment, propagates identity
// across matches, mints synthetic ids for the rest, and prunes expired
// carry-over.
func CrossWindowMatch(prev, curr []model.Record, cfg Config, identity *IdentityMap, counter *SyntheticIDCounter, batchTS time.Time) CrossWindowResult {
	curr = cloneAll(curr)

	matchedP := make([]bool, len(prev))
	matchedC := make([]bool, len(curr))

	if len(prev) > 0 && len(curr) > 0 {
		mt := cfg.MatchType()
		maxDist := cfg.MatchMaxDistM

		cost := make([][]float64, len(prev))
		for i := range prev {
			cost[i] = make([]float64, len(curr))
			for j := range curr {
				cost[i][j] = crossWindowCost(prev[i], curr[j], cfg, mt, identity, maxDist)
			}
		}

		squared := make([][]float64, len(cost))
		for i, row := range cost {
			squared[i] = make([]float64, len(row))
			for j, v := range row {
				squared[i][j] = v * v
			}
		}

		matches, err := assign.Solve(squared, maxDist*maxDist)
		if err == nil {
			for _, mchd := range matches {
				p, c := prev[mchd.Row], &curr[mchd.Col]
				applyMatch(p, c)
				matchedP[mchd.Row] = true
				matchedC[mchd.Col] = true
			}
		}
	}

	for i := range curr {
		if !matchedC[i] {
			counter.AssignSyntheticID(&curr[i])
		}
	}

	var carryOver []model.Record
	cutoff := time.Duration(cfg.CarryOverPruneSec * float64(time.Second))
	for i, p := range prev {
		if matchedP[i] {
			continue
		}
		if p.ArrivedAt.IsZero() {
			p.ArrivedAt = batchTS
		}
		if batchTS.Sub(p.ArrivedAt) > cutoff {
			continue
		}
		carryOver = append(carryOver, p)
	}

	next := append([]model.Record(nil), curr...)
	for i := range next {
		next[i].ArrivedAt = batchTS
	}
	next = append(next, carryOver...)

	return CrossWindowResult{Current: curr, NextPrevious: next}
}

// crossWindowCost computes the pre-square cost[i][j] of §4.5's cost
// matrix: zeroed on shared cluster identity, sentinel on incompatibility
// or when the raw distance exceeds maxDist.
func crossWindowCost(p, c model.Record, cfg Config, mt MatchType, identity *IdentityMap, maxDist float64) float64 {
	if p.Object.ClassID != c.Object.ClassID {
		return assign.Sentinel
	}
	if cameraIncompatible(p.SensorID, c.SensorID, cfg, mt) {
		return assign.Sentinel
	}
	if identity.Share(p.Object.ID, c.Object.ID) {
		return 0
	}
	d := p.Object.Centroid.Point.Distance(c.Object.Centroid.Point)
	if d > maxDist {
		return assign.Sentinel
	}
	return d
}

// cameraIncompatible reports whether a cross-window pairing between two
// cameras is disallowed by the declared camera-compatibility rule. Unlike
// MCT-B, same-camera pairs are always compatible here: MCT-C links a
// single camera's own object across time, which is not "clustering
// different cameras."
func cameraIncompatible(camA, camB string, cfg Config, mt MatchType) bool {
	if camA == camB {
		return false
	}
	switch mt {
	case MatchTypeOverlap:
		return !cfg.camerasOverlap(camA, camB)
	case MatchTypeDontMatch:
		return cfg.dontMatchCameras(camA, camB)
	case MatchTypeNone:
		return true
	}
	return false
}

func applyMatch(p model.Record, c *model.Record) {
	c.Object.TrackerID = p.Object.TrackerID
	c.Object.ID = p.Object.ID

	dist := p.Object.Centroid.Point.Distance(c.Object.Centroid.Point)
	if dist > 0 {
		bearing := geo.Bearing(p.Object.Centroid.Point, c.Object.Centroid.Point)
		c.Object.Direction = bearing
		c.Object.Orientation = bearing
	} else {
		c.Object.Direction = p.Object.Direction
	}
}

func cloneAll(records []model.Record) []model.Record {
	out := make([]model.Record, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}
