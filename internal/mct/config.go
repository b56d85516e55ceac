package mct

// MatchType classifies how camera-pair compatibility is evaluated, per
// §4.3's "at most one of overlapping_camera_ids / dont_match_cameras_adj_list"
// rule.
type MatchType int

const (
	// MatchTypeOverlap means overlapping_camera_ids was declared: only
	// listed pairs (or same camera) may merge across cameras.
	MatchTypeOverlap MatchType = 0
	// MatchTypeDontMatch means dont_match_cameras_adj_list was declared:
	// any pair may merge except listed ones.
	MatchTypeDontMatch MatchType = 1
	// MatchTypeNone means neither was declared: no cross-camera merge.
	MatchTypeNone MatchType = 2
)

// Config holds every tunable named in SPEC_FULL.md §6's configuration
// table that the MCT stages consume.
type Config struct {
	IntraFramePeriodClustDistM          float64
	IntraFrameClusterLargeScaleFactor   float64
	MinThresholdDistMWithinResampleTime float64

	ClusterDistThreshM                  float64
	ClusterDifftCamerasLargeScaleFactor float64

	MatchMaxDistM          float64
	CarryOverPruneSec      float64
	ClusteredObjIDPruneSec float64

	OverlappingCameraIDs    map[string][]string
	DontMatchCamerasAdjList map[string][]string

	// TrackAcrossFrames enables the identity-propagation shortcut: two
	// object ids already known to share a cluster id (via identity)
	// are merged on sight, skipping the distance/camera-adjacency checks.
	TrackAcrossFrames bool
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		IntraFramePeriodClustDistM:          1.5,
		IntraFrameClusterLargeScaleFactor:   1000,
		MinThresholdDistMWithinResampleTime: 1.0,
		ClusterDistThreshM:                  25.0,
		ClusterDifftCamerasLargeScaleFactor: 1000,
		MatchMaxDistM:                       20.0,
		CarryOverPruneSec:                   2.5,
		ClusteredObjIDPruneSec:              20.0,
	}
}

// MatchType derives the camera-compatibility mode from the declared
// adjacency lists.
func (c Config) MatchType() MatchType {
	if len(c.OverlappingCameraIDs) > 0 {
		return MatchTypeOverlap
	}
	if len(c.DontMatchCamerasAdjList) > 0 {
		return MatchTypeDontMatch
	}
	return MatchTypeNone
}

// camerasOverlap reports whether camA/camB appear in each other's
// overlapping_camera_ids adjacency, checked bidirectionally.
func (c Config) camerasOverlap(camA, camB string) bool {
	return adjacencyContains(c.OverlappingCameraIDs, camA, camB)
}

// dontMatchCameras reports whether camA/camB appear in each other's
// dont_match_cameras_adj_list adjacency, checked bidirectionally.
func (c Config) dontMatchCameras(camA, camB string) bool {
	return adjacencyContains(c.DontMatchCamerasAdjList, camA, camB)
}

func adjacencyContains(adj map[string][]string, a, b string) bool {
	for _, x := range adj[a] {
		if x == b {
			return true
		}
	}
	for _, x := range adj[b] {
		if x == a {
			return true
		}
	}
	return false
}

// IntraFrameLargeDistance returns the forced-non-match distance used by
// MCT-A (§4.2 step 3).
func (c Config) IntraFrameLargeDistance() float64 {
	return c.IntraFramePeriodClustDistM * c.IntraFrameClusterLargeScaleFactor
}

// CrossCameraLargeDistance returns the forced-non-match distance used by
// MCT-B (§4.3).
func (c Config) CrossCameraLargeDistance() float64 {
	return c.ClusterDistThreshM * c.ClusterDifftCamerasLargeScaleFactor
}
