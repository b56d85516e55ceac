package mct

import (
	"time"

	"github.com/camfusion/pipeline/internal/model"
)

// Pipeline threads the cross-batch state (cluster identity, carry-over set,
// synthetic id counter) through successive MCT-A -> MCT-B -> MCT-C runs.
// One Pipeline serves one independent tracking domain (SPEC_FULL.md §4.1);
// a deployment that tracks several independent domains runs one Pipeline
// per domain.
type Pipeline struct {
	cfg      Config
	identity *IdentityMap
	counter  *SyntheticIDCounter
	previous []model.Record
}

// NewPipeline returns a Pipeline with empty identity/carry-over state.
func NewPipeline(cfg Config) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		identity: NewIdentityMap(),
		counter:  &SyntheticIDCounter{},
	}
}

// BatchResult is everything a caller needs out of one Process call: the
// finalized moving-class records (for storage/anomaly-detection egress)
// and the untouched non-moving-class records from the same batch.
type BatchResult struct {
	Tracked []model.Record
	Other   []model.Record
}

// Process runs one full batch through MCT-A, MCT-B and MCT-C (§4.1-§4.6)
// and advances the pipeline's cross-batch state.
func (p *Pipeline) Process(batch []model.Record, batchTS time.Time) BatchResult {
	sorted := append([]model.Record(nil), batch...)
	model.SortByTimestamp(sorted)

	moving, other := model.Partition(sorted)

	consolidated := ConsolidatePerCamera(moving, p.cfg)
	clustered := ClusterCrossCamera(consolidated, p.cfg, p.identity, batchTS)
	result := CrossWindowMatch(p.previous, clustered, p.cfg, p.identity, p.counter, batchTS)

	p.previous = result.NextPrevious
	p.identity.Prune(batchTS, p.cfg.ClusteredObjIDPruneSec)

	return BatchResult{Tracked: result.Current, Other: other}
}
