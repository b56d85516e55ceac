package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/camfusion/pipeline/internal/model"
)

// Bus is the NATS-backed Publisher/Subscriber pair (SPEC_FULL.md §6): a
// synchronous subscription on the ingress subject feeds Poll, and
// PublishRecord writes anomaly records to the egress subject. Grounded on the teacher's
// internal/core.EventBus, minus the embedded server and plugin-lifecycle
// subjects this pipeline has no use for.
type Bus struct {
	conn           *nats.Conn
	ingress        *nats.Subscription
	anomalySubject string
	logger         *slog.Logger
}

// Connect dials a NATS server and opens a synchronous subscription on
// ingressSubject. The connection reconnects indefinitely on transport
// hiccups, matching the teacher's long-lived plugin connections.
func Connect(url, ingressSubject, anomalySubject string) (*Bus, error) {
	conn, err := nats.Connect(url,
		nats.Name("camfusion-pipeline"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats at %s: %w", url, err)
	}

	sub, err := conn.SubscribeSync(ingressSubject)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", ingressSubject, err)
	}

	return &Bus{
		conn:           conn,
		ingress:        sub,
		anomalySubject: anomalySubject,
		logger:         slog.Default().With("component", "bus"),
	}, nil
}

// Poll drains up to maxRecords messages from the ingress subscription.
// `wait` is a single deadline for the whole call: Poll keeps receiving until
// maxRecords valid records are collected or the deadline passes, whichever
// comes first (§5 suspension point 1).
// Malformed payloads are logged and skipped rather than failing the batch.
func (b *Bus) Poll(ctx context.Context, maxRecords int, wait time.Duration) ([]model.Record, error) {
	deadline := time.Now().Add(wait)
	var records []model.Record

	for len(records) < maxRecords {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}

		pollCtx, cancel := context.WithTimeout(ctx, remaining)
		msg, err := b.ingress.NextMsgWithContext(pollCtx)
		cancel()
		if err != nil {
			if err == context.DeadlineExceeded || err == nats.ErrTimeout {
				break
			}
			if ctx.Err() != nil {
				return records, ctx.Err()
			}
			return records, fmt.Errorf("nats receive failed: %w", err)
		}

		var r model.Record
		if err := json.Unmarshal(msg.Data, &r); err != nil {
			b.logger.Warn("dropping malformed detection record", "error", err)
			continue
		}
		if !r.Valid() {
			b.logger.Warn("dropping invalid detection record", "sensor_id", r.SensorID)
			continue
		}
		records = append(records, r)
	}

	return records, nil
}

// PublishRecord serializes r and publishes it to the anomaly subject (§6
// egress).
func (b *Bus) PublishRecord(r model.Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal anomaly record: %w", err)
	}
	if err := b.conn.Publish(b.anomalySubject, data); err != nil {
		return fmt.Errorf("failed to publish anomaly record: %w", err)
	}
	return nil
}

// Health reports whether the NATS connection is currently usable, for the
// operational /healthz surface (§6).
func (b *Bus) Health() error {
	if b.conn == nil || !b.conn.IsConnected() {
		return fmt.Errorf("nats connection not established")
	}
	return nil
}

// Close unsubscribes and closes the underlying connection.
func (b *Bus) Close() error {
	if b.ingress != nil {
		_ = b.ingress.Unsubscribe()
	}
	if b.conn != nil {
		b.conn.Close()
	}
	return nil
}
