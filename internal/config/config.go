// Package config provides configuration management for the detection-fusion
// pipeline.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Config is the pipeline's top-level configuration.
type Config struct {
	ResampleTimeSec     float64          `yaml:"resample_time_sec"`
	InputQueueWaitSec   float64          `yaml:"input_queue_wait_sec"`
	VerboseLog          bool             `yaml:"verboseLog"`
	ProfileTime         bool             `yaml:"profileTime"`
	Clustering          ClusteringConfig `yaml:"clustering"`
	Anomaly             AnomalyConfig    `yaml:"anomaly"`
	EntryExitUpdateSec  float64          `yaml:"entry_exit_update_sec"`
	NATS                NATSConfig       `yaml:"nats"`
	Store               StoreConfig      `yaml:"store"`
	HTTP                HTTPConfig       `yaml:"http"`

	mu       sync.RWMutex    `yaml:"-"`
	path     string          `yaml:"-"`
	watchers []func(*Config) `yaml:"-"`
}

// ClusteringConfig carries the MCT threshold/adjacency parameters of
// SPEC_FULL.md §6.
type ClusteringConfig struct {
	IntraFramePeriodClustDistM          float64             `yaml:"intra_frame_period_clust_dist_m"`
	IntraFrameClusterLargeScaleFactor   float64             `yaml:"intra_frame_cluster_large_scale_factor"`
	MinThresholdDistMWithinResampleTime float64             `yaml:"min_threshold_dist_m_within_resample_time"`
	ClusterDistThreshM                  float64             `yaml:"cluster_dist_thresh_in_m"`
	ClusterDifftCamerasLargeScaleFactor float64             `yaml:"cluster_difft_cameras_large_scale_factor"`
	MatchMaxDistM                       float64             `yaml:"match_max_dist_in_m"`
	CarryOverPruneSec                   float64             `yaml:"carry_over_list_prune_time_in_sec"`
	ClusteredObjIDPruneSec              float64             `yaml:"clustered_obj_id_prune_sec"`
	OverlappingCameraIDs                map[string][]string `yaml:"overlapping_camera_ids,omitempty"`
	DontMatchCamerasAdjList             map[string][]string `yaml:"dont_match_cameras_adj_list,omitempty"`
	ObjectIDsTrackAcrossFrames          bool                `yaml:"object_ids_track_across_frames"`
}

// DetectorParams carries the per-detector thresholds shared by the
// vehicle/person anomaly detectors.
type DetectorParams struct {
	ClassIDs  []string `yaml:"classids"`
	ThreshSec float64  `yaml:"thresh_sec"`
	ThreshM   float64  `yaml:"thresh_mtr"`
	DeleteSec float64  `yaml:"delete_sec"`
}

// AnomalyConfig carries the two State Tracker detectors' parameters.
type AnomalyConfig struct {
	StalledVehicle  DetectorParams `yaml:"stalled_veh"`
	MotionlessPerson DetectorParams `yaml:"motionless"`
}

// NATSConfig carries the bus wiring of SPEC_FULL.md §6.
type NATSConfig struct {
	URL             string `yaml:"url"`
	IngressSubject  string `yaml:"ingress_subject"`
	AnomalySubject  string `yaml:"anomaly_subject"`
}

// StoreConfig carries the storage-sink wiring.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// HTTPConfig carries the operational HTTP surface's listen address.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.path = path
	cfg.setDefaults()

	return &cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveUnlocked()
}

func (c *Config) saveUnlocked() error {
	cfgCopy := &Config{
		ResampleTimeSec:    c.ResampleTimeSec,
		InputQueueWaitSec:  c.InputQueueWaitSec,
		VerboseLog:         c.VerboseLog,
		ProfileTime:        c.ProfileTime,
		Clustering:         c.Clustering,
		Anomaly:            c.Anomaly,
		EntryExitUpdateSec: c.EntryExitUpdateSec,
		NATS:               c.NATS,
		Store:              c.Store,
		HTTP:               c.HTTP,
		path:               c.path,
	}

	data, err := yaml.Marshal(cfgCopy)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := "# pipeline configuration\n# auto-generated - manual edits are preserved\n\n"
	data = append([]byte(header), data...)

	tmpPath := c.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return os.Rename(tmpPath, c.path)
}

// Watch starts watching for configuration file changes.
func (c *Config) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	go func() {
		defer watcher.Close()

		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&fsnotify.Write == fsnotify.Write {
					time.Sleep(100 * time.Millisecond) // Debounce
					c.reload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("config watch error", "error", err)
			}
		}
	}()

	return watcher.Add(c.path)
}

// OnChange registers a callback for config changes.
func (c *Config) OnChange(fn func(*Config)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watchers = append(c.watchers, fn)
}

func (c *Config) reload() {
	newCfg, err := Load(c.path)
	if err != nil {
		slog.Error("failed to reload config", "error", err)
		return
	}

	c.mu.Lock()
	c.ResampleTimeSec = newCfg.ResampleTimeSec
	c.InputQueueWaitSec = newCfg.InputQueueWaitSec
	c.VerboseLog = newCfg.VerboseLog
	c.ProfileTime = newCfg.ProfileTime
	c.Clustering = newCfg.Clustering
	c.Anomaly = newCfg.Anomaly
	c.EntryExitUpdateSec = newCfg.EntryExitUpdateSec
	c.NATS = newCfg.NATS
	c.Store = newCfg.Store
	c.HTTP = newCfg.HTTP
	watchers := c.watchers
	c.mu.Unlock()

	slog.Info("configuration reloaded")

	for _, fn := range watchers {
		fn(c)
	}
}

// Snapshot returns a copy of the current configuration, safe to read
// without holding c's lock.
func (c *Config) Snapshot() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Config{
		ResampleTimeSec:    c.ResampleTimeSec,
		InputQueueWaitSec:  c.InputQueueWaitSec,
		VerboseLog:         c.VerboseLog,
		ProfileTime:        c.ProfileTime,
		Clustering:         c.Clustering,
		Anomaly:            c.Anomaly,
		EntryExitUpdateSec: c.EntryExitUpdateSec,
		NATS:               c.NATS,
		Store:              c.Store,
		HTTP:               c.HTTP,
	}
}

// GetPath returns the current config file path.
func (c *Config) GetPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.path
}

// setDefaults sets default values for unset fields, mirroring the
// clustering defaults of mct.DefaultConfig.
func (c *Config) setDefaults() {
	if c.ResampleTimeSec == 0 {
		c.ResampleTimeSec = 0.5
	}
	if c.InputQueueWaitSec == 0 {
		c.InputQueueWaitSec = 0.5
	}
	if c.Clustering.IntraFramePeriodClustDistM == 0 {
		c.Clustering.IntraFramePeriodClustDistM = 1.5
	}
	if c.Clustering.IntraFrameClusterLargeScaleFactor == 0 {
		c.Clustering.IntraFrameClusterLargeScaleFactor = 1000
	}
	if c.Clustering.MinThresholdDistMWithinResampleTime == 0 {
		c.Clustering.MinThresholdDistMWithinResampleTime = 1.0
	}
	if c.Clustering.ClusterDistThreshM == 0 {
		c.Clustering.ClusterDistThreshM = 25.0
	}
	if c.Clustering.ClusterDifftCamerasLargeScaleFactor == 0 {
		c.Clustering.ClusterDifftCamerasLargeScaleFactor = 1000
	}
	if c.Clustering.MatchMaxDistM == 0 {
		c.Clustering.MatchMaxDistM = 20.0
	}
	if c.Clustering.CarryOverPruneSec == 0 {
		c.Clustering.CarryOverPruneSec = 2.5
	}
	if c.Clustering.ClusteredObjIDPruneSec == 0 {
		c.Clustering.ClusteredObjIDPruneSec = 20.0
	}
	if c.EntryExitUpdateSec == 0 {
		c.EntryExitUpdateSec = 60
	}
	if c.NATS.URL == "" {
		c.NATS.URL = "nats://127.0.0.1:4222"
	}
	if c.NATS.IngressSubject == "" {
		c.NATS.IngressSubject = "detections.raw"
	}
	if c.NATS.AnomalySubject == "" {
		c.NATS.AnomalySubject = "detections.anomalies"
	}
	if c.Store.Path == "" {
		c.Store.Path = "pipeline.db"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8090"
	}
}
