package mct

import "github.com/camfusion/pipeline/internal/model"

// SelectRepresentative implements §4.4: given a non-empty list of records,
// choose one by priority (lower is better): detection beats detection_adj;
// among equals a non-empty videoPath wins; among equals the smallest
// object.id (lexicographic) wins.
func SelectRepresentative(records []model.Record) model.Record {
	best := records[0]
	for _, r := range records[1:] {
		if representativeLess(r, best) {
			best = r
		}
	}
	return best
}

func representativeLess(a, b model.Record) bool {
	aDet := a.Event.Type == model.EventDetection
	bDet := b.Event.Type == model.EventDetection
	if aDet != bDet {
		return aDet
	}

	aVid := a.VideoPath != ""
	bVid := b.VideoPath != ""
	if aVid != bVid {
		return aVid
	}

	return a.Object.ID < b.Object.ID
}
