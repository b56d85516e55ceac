// Package bus carries Detection Records between the pipeline core and the
// outside world (SPEC_FULL.md §6): a NATS ingress subject feeding tracked
// batches in, a NATS egress subject carrying anomaly records out. Publisher
// and Subscriber are the two roles a concrete transport fills; Bus is the
// NATS-backed implementation of both, grounded on the teacher's
// embedded-NATS internal/core.EventBus.
package bus

import (
	"context"
	"time"

	"github.com/camfusion/pipeline/internal/model"
)

// Publisher emits one anomaly Record to the configured egress subject.
type Publisher interface {
	PublishRecord(r model.Record) error
}

// Subscriber yields the next batch of ingress Records, bounded by maxRecords
// and a wait budget. The pipeline core only ever talks to this interface, so
// it is ingress-agnostic: replay.Player satisfies it by pacing batches off
// its own cadence instead of a NATS timeout.
type Subscriber interface {
	Poll(ctx context.Context, maxRecords int, wait time.Duration) ([]model.Record, error)
}
