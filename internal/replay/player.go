// Package replay provides the alternate file ingress of SPEC_FULL.md §6: a
// newline-delimited JSON file played back into the same batch shape the
// NATS subscriber would produce, so the pipeline core never knows which
// ingress fed it. Grounded on the teacher's line-oriented stdout scanning
// in internal/core.ExternalPlugin.readResponses.
package replay

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/camfusion/pipeline/internal/model"
)

// Config controls playback pacing.
type Config struct {
	Path string

	// Live shifts every record's timestamp forward by now-minus-first so
	// the replay appears to happen in real time.
	Live bool

	// BatchSize caps records per batch; zero means no count-based cap.
	BatchSize int

	// BatchWindow groups records into a batch by timestamp span rather than
	// count when non-zero; BatchSize still applies as an upper bound.
	BatchWindow time.Duration
}

// Player reads a replay file and yields batches, implementing
// bus.Subscriber so it can stand in for a NATS ingress.
type Player struct {
	cfg     Config
	logger  *slog.Logger
	file    *os.File
	scanner *bufio.Scanner

	shift     time.Duration
	shiftSet  bool
	exhausted bool
	pending   *model.Record
}

// Open opens the replay file for sequential reads.
func Open(cfg Config) (*Player, error) {
	f, err := os.Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open replay file %s: %w", cfg.Path, err)
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1024*1024), 16*1024*1024)

	return &Player{
		cfg:     cfg,
		logger:  slog.Default().With("component", "replay"),
		file:    f,
		scanner: scanner,
	}, nil
}

// Close closes the underlying file.
func (p *Player) Close() error {
	return p.file.Close()
}

// Poll satisfies bus.Subscriber. It does not consult ctx (replay is local
// and fast). A batch holds at most maxRecords (and BatchSize, when set)
// records and, when BatchWindow is set, ends before the first record that
// falls outside the window. Poll returns as soon as the batch is complete
// without waiting; it sleeps for wait only when the file is exhausted and
// the batch is empty. The configured live-timestamp shift is applied.
func (p *Player) Poll(_ context.Context, maxRecords int, wait time.Duration) ([]model.Record, error) {
	if maxRecords <= 0 {
		maxRecords = 5000
	}
	if p.cfg.BatchSize > 0 && p.cfg.BatchSize < maxRecords {
		maxRecords = p.cfg.BatchSize
	}

	var batch []model.Record
	var windowStart time.Time

	for len(batch) < maxRecords {
		r, ok, err := p.next()
		if err != nil {
			return batch, err
		}
		if !ok {
			break
		}

		if p.cfg.BatchWindow > 0 {
			if len(batch) == 0 {
				windowStart = r.Timestamp
			} else if r.Timestamp.Sub(windowStart) > p.cfg.BatchWindow {
				p.pending = &r
				break
			}
		}
		batch = append(batch, r)
	}

	if len(batch) == 0 && p.exhausted {
		time.Sleep(wait)
	}
	return batch, nil
}

// next returns the next record from the file (or a previously buffered
// lookahead record), applying the live-timestamp shift on first read.
func (p *Player) next() (model.Record, bool, error) {
	if p.pending != nil {
		r := *p.pending
		p.pending = nil
		return r, true, nil
	}

	if p.exhausted {
		return model.Record{}, false, nil
	}

	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil && err != io.EOF {
			return model.Record{}, false, fmt.Errorf("replay read failed: %w", err)
		}
		p.exhausted = true
		return model.Record{}, false, nil
	}

	line := p.scanner.Bytes()
	if len(line) == 0 {
		return p.next()
	}

	var r model.Record
	if err := json.Unmarshal(line, &r); err != nil {
		p.logger.Warn("dropping malformed replay line", "error", err)
		return p.next()
	}
	if !r.Valid() {
		p.logger.Warn("dropping invalid replay record", "sensor_id", r.SensorID)
		return p.next()
	}

	if p.cfg.Live {
		if !p.shiftSet {
			p.shift = time.Since(r.Timestamp)
			p.shiftSet = true
		}
		r.Timestamp = r.Timestamp.Add(p.shift)
	}

	return r, true, nil
}
