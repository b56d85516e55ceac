// Command pipeline runs the multi-camera detection-fusion pipeline:
// ingest, MCT-A/B/C tracking, anomaly detection, flow-rate accounting, and
// the storage/anomaly egress of SPEC_FULL.md.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camfusion/pipeline/internal/anomaly"
	"github.com/camfusion/pipeline/internal/bus"
	"github.com/camfusion/pipeline/internal/config"
	"github.com/camfusion/pipeline/internal/httpapi"
	"github.com/camfusion/pipeline/internal/mct"
	"github.com/camfusion/pipeline/internal/model"
	"github.com/camfusion/pipeline/internal/replay"
	"github.com/camfusion/pipeline/internal/store"
	"github.com/camfusion/pipeline/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "pipeline.yaml", "path to pipeline configuration")
	replayPath := flag.String("replay", "", "replay a newline-delimited JSON file instead of reading from NATS")
	replayLive := flag.Bool("replay-live", false, "shift replayed timestamps forward to appear live")
	flag.Parse()

	logRing := telemetry.NewLogRing(500)
	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(telemetry.NewLogHandler(logRing, os.Stdout, logLevel))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Watch(); err != nil {
		slog.Warn("configuration hot-reload disabled", "error", err)
	}

	snap := cfg.Snapshot()

	if snap.VerboseLog && logLevel > slog.LevelDebug {
		logLevel = slog.LevelDebug
		logger = slog.New(telemetry.NewLogHandler(logRing, os.Stdout, logLevel))
		slog.SetDefault(logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	detectionStore, err := store.Open(ctx, store.DefaultConfig(snap.Store.Path))
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer detectionStore.Close()

	var subscriber bus.Subscriber
	var publisher bus.Publisher
	var healthBus interface{ Health() error }

	if *replayPath != "" {
		player, err := replay.Open(replay.Config{Path: *replayPath, Live: *replayLive})
		if err != nil {
			slog.Error("failed to open replay file", "error", err)
			os.Exit(1)
		}
		defer player.Close()
		subscriber = player
		publisher = noopPublisher{}
		healthBus = noopHealth{}
		slog.Info("running in replay mode", "path", *replayPath, "live", *replayLive)
	} else {
		b, err := bus.Connect(snap.NATS.URL, snap.NATS.IngressSubject, snap.NATS.AnomalySubject)
		if err != nil {
			slog.Error("failed to connect to nats", "error", err)
			os.Exit(1)
		}
		defer b.Close()
		subscriber = b
		publisher = b
		healthBus = b
	}

	recorder := telemetry.NewRecorder(200)

	httpServer := &http.Server{
		Addr:    snap.HTTP.Addr,
		Handler: httpapi.NewServer(healthBus, detectionStore, recorder, logRing),
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("operational http server error", "error", err)
		}
	}()

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "pipeline"
	}

	pipeline := mct.NewPipeline(toMCTConfig(snap.Clustering))
	vehicleEngine := anomaly.NewEngine(toDetectorConfig(snap.Anomaly.StalledVehicle, model.EventUnexpectedStopping, "mct-stalled-vehicle"))
	personEngine := anomaly.NewEngine(toDetectorConfig(snap.Anomaly.MotionlessPerson, model.EventMotionlessPerson, "mct-motionless-person"))
	flowAccumulator := anomaly.NewFlowAccumulator(hostname, snap.EntryExitUpdateSec, time.Now())

	slog.Info("pipeline started",
		"resample_time_sec", snap.ResampleTimeSec,
		"store_path", snap.Store.Path,
		"http_addr", snap.HTTP.Addr,
	)

	runLoop(ctx, loopDeps{
		cfg:             cfg,
		subscriber:      subscriber,
		publisher:       publisher,
		store:           detectionStore,
		pipeline:        pipeline,
		vehicleEngine:   vehicleEngine,
		personEngine:    personEngine,
		flowAccumulator: flowAccumulator,
		recorder:        recorder,
	})

	slog.Info("pipeline shutting down")
	if latest, ok := recorder.Latest(); ok {
		slog.Info("final batch stats",
			"record_count", latest.RecordCount,
			"tracked_count", latest.TrackedCount,
			"anomaly_count", latest.AnomalyCount,
			"carry_over_count", latest.CarryOverCount,
			"total_duration_us", latest.TotalDurationUs,
		)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("operational http server shutdown error", "error", err)
	}
}

type loopDeps struct {
	cfg             *config.Config
	subscriber      bus.Subscriber
	publisher       bus.Publisher
	store           store.DetectionStore
	pipeline        *mct.Pipeline
	vehicleEngine   *anomaly.Engine
	personEngine    *anomaly.Engine
	flowAccumulator *anomaly.FlowAccumulator
	recorder        *telemetry.Recorder
}

// runLoop is the pipeline's main loop: the three suspension points of
// SPEC_FULL.md §5 (broker poll, async storage dispatch, resample sleep) run
// once per iteration until ctx is cancelled.
func runLoop(ctx context.Context, d loopDeps) {
	for {
		if ctx.Err() != nil {
			return
		}

		iterationStart := time.Now()
		snap := d.cfg.Snapshot()
		timer := telemetry.NewStageTimer()

		waitSec := time.Duration(snap.InputQueueWaitSec * float64(time.Second))
		records, err := d.subscriber.Poll(ctx, 5000, waitSec)
		timer.Mark("poll")
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("broker poll failed", "error", err)
			continue
		}

		batchTS := time.Now()
		if len(records) > 0 {
			batchTS = records[len(records)-1].Timestamp
		}

		result := d.pipeline.Process(records, batchTS)
		timer.Mark("mct")

		anomalies := d.vehicleEngine.Process(result.Tracked, batchTS)
		anomalies = append(anomalies, d.personEngine.Process(result.Tracked, batchTS)...)
		timer.Mark("anomaly")

		d.flowAccumulator.Add(append(append([]model.Record(nil), result.Tracked...), result.Other...))
		if rate, ok := d.flowAccumulator.Flush(time.Now(), batchTS); ok {
			dispatchStoreWrite(d.store, rate)
		}

		dispatchRecords(d.store, result.Tracked)
		dispatchRecords(d.store, result.Other)
		for _, a := range anomalies {
			dispatchRecords(d.store, []model.Record{a})
			if err := d.publisher.PublishRecord(a); err != nil {
				slog.Error("failed to publish anomaly", "error", err)
			}
		}
		timer.Mark("dispatch")

		durations, total := timer.Finish()
		d.recorder.Add(telemetry.BatchStats{
			BatchTS:         batchTS,
			RecordCount:     len(records),
			TrackedCount:    len(result.Tracked),
			AnomalyCount:    len(anomalies),
			CarryOverCount:  len(result.Other),
			StageDurations:  durations,
			TotalDurationUs: total,
		})

		if snap.ProfileTime {
			slog.Info("batch processed",
				"records", len(records),
				"tracked", len(result.Tracked),
				"anomalies", len(anomalies),
				"duration_us", total,
			)
		}

		elapsed := time.Since(iterationStart)
		resample := time.Duration(snap.ResampleTimeSec * float64(time.Second))
		if remaining := resample - elapsed; remaining > 0 {
			select {
			case <-time.After(remaining):
			case <-ctx.Done():
				return
			}
		}
	}
}

// dispatchRecords fires-and-forgets the storage write for each record,
// logging failures without retrying (§5 suspension point 2, §7).
func dispatchRecords(s store.DetectionStore, records []model.Record) {
	for _, r := range records {
		go func(r model.Record) {
			writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.InsertObjectMarker(writeCtx, r); err != nil {
				slog.Error("failed to write object marker", "error", err, "sensor_id", r.SensorID)
			}
		}(r)
	}
}

func dispatchStoreWrite(s store.DetectionStore, rate anomaly.FlowRate) {
	go func() {
		writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.WriteFlowRate(writeCtx, rate); err != nil {
			slog.Error("failed to write flow rate", "error", err, "location", rate.Location)
		}
	}()
}

func toMCTConfig(c config.ClusteringConfig) mct.Config {
	return mct.Config{
		IntraFramePeriodClustDistM:          c.IntraFramePeriodClustDistM,
		IntraFrameClusterLargeScaleFactor:   c.IntraFrameClusterLargeScaleFactor,
		MinThresholdDistMWithinResampleTime: c.MinThresholdDistMWithinResampleTime,
		ClusterDistThreshM:                  c.ClusterDistThreshM,
		ClusterDifftCamerasLargeScaleFactor: c.ClusterDifftCamerasLargeScaleFactor,
		MatchMaxDistM:                       c.MatchMaxDistM,
		CarryOverPruneSec:                   c.CarryOverPruneSec,
		ClusteredObjIDPruneSec:              c.ClusteredObjIDPruneSec,
		OverlappingCameraIDs:                c.OverlappingCameraIDs,
		DontMatchCamerasAdjList:             c.DontMatchCamerasAdjList,
		TrackAcrossFrames:                   c.ObjectIDsTrackAcrossFrames,
	}
}

func toDetectorConfig(p config.DetectorParams, emitted model.EventType, moduleID string) anomaly.DetectorConfig {
	classIDs := make(map[string]struct{}, len(p.ClassIDs))
	for _, c := range p.ClassIDs {
		classIDs[c] = struct{}{}
	}
	return anomaly.DetectorConfig{
		ClassIDs:    classIDs,
		ThreshSec:   p.ThreshSec,
		ThreshM:     p.ThreshM,
		DeleteSec:   p.DeleteSec,
		EmittedType: emitted,
		Module: model.AnalyticsModule{
			ID:          moduleID,
			Description: "state tracker anomaly detector",
			Source:      "camfusion-pipeline",
		},
	}
}

type noopPublisher struct{}

func (noopPublisher) PublishRecord(model.Record) error { return nil }

type noopHealth struct{}

func (noopHealth) Health() error { return nil }
