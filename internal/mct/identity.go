package mct

import "time"

// ClusterEntry is the Cluster Identity Map record shared by every member of
// id_set. Represented, per the union-find scheme of SPEC_FULL.md §9, as a
// cluster id plus the identity-map bookkeeping — Go has no shared-reference
// semantics as convenient as the source implementation's object aliasing,
// so every object-id maps to a ClusterID and every ClusterID maps to one
// ClusterEntry.
type ClusterEntry struct {
	ClusterID int
	IDSet     map[string]struct{}
	UpdateTS  time.Time
}

// IdentityMap is the Cluster Identity Map of SPEC_FULL.md §3/§4.3.
type IdentityMap struct {
	byID     map[string]int
	clusters map[int]*ClusterEntry
	nextID   int
}

// NewIdentityMap returns an empty Cluster Identity Map.
func NewIdentityMap() *IdentityMap {
	return &IdentityMap{
		byID:     make(map[string]int),
		clusters: make(map[int]*ClusterEntry),
	}
}

// Lookup returns the entry that objectID belongs to, if any.
func (m *IdentityMap) Lookup(objectID string) (*ClusterEntry, bool) {
	id, ok := m.byID[objectID]
	if !ok {
		return nil, false
	}
	return m.clusters[id], true
}

// Share reports whether two object ids currently resolve to the same
// cluster entry (invariant 2 of §8).
func (m *IdentityMap) Share(a, b string) bool {
	ea, ok := m.Lookup(a)
	if !ok {
		return false
	}
	eb, ok := m.Lookup(b)
	if !ok {
		return false
	}
	return ea == eb
}

func (m *IdentityMap) newEntry(firstMember string, ts time.Time) *ClusterEntry {
	id := m.nextID
	m.nextID++
	e := &ClusterEntry{
		ClusterID: id,
		IDSet:     map[string]struct{}{firstMember: {}},
		UpdateTS:  ts,
	}
	m.clusters[id] = e
	m.byID[firstMember] = id
	return e
}

// Maintain implements the identity-maintenance protocol of §4.3 for a
// multi-camera cluster's member object ids, observed at batch timestamp ts.
// It returns the surviving entry for the cluster.
func (m *IdentityMap) Maintain(memberIDs []string, ts time.Time) *ClusterEntry {
	if len(memberIDs) == 0 {
		return nil
	}

	// Step 1: find any member already present in the map.
	var surviving *ClusterEntry
	for _, id := range memberIDs {
		if e, ok := m.Lookup(id); ok {
			surviving = e
			break
		}
	}
	if surviving == nil {
		surviving = m.newEntry(memberIDs[0], ts)
	}

	// Step 2: add new members, collecting conflicting entries to merge.
	merge := map[int]*ClusterEntry{}
	maxTS := ts
	if surviving.UpdateTS.After(maxTS) {
		maxTS = surviving.UpdateTS
	}
	for _, id := range memberIDs {
		e, ok := m.Lookup(id)
		switch {
		case !ok:
			surviving.IDSet[id] = struct{}{}
			m.byID[id] = surviving.ClusterID
		case e != surviving:
			merge[e.ClusterID] = e
		}
		if ok && e.UpdateTS.After(maxTS) {
			maxTS = e.UpdateTS
		}
	}
	surviving.UpdateTS = maxTS

	// Step 3: unify any collected conflicting entries into surviving.
	if len(merge) > 0 {
		winnerID := surviving.ClusterID
		for _, e := range merge {
			if e.ClusterID < winnerID {
				winnerID = e.ClusterID
			}
		}
		winner := surviving
		if winnerID != surviving.ClusterID {
			winner = merge[winnerID]
		}

		all := []*ClusterEntry{surviving}
		for _, e := range merge {
			all = append(all, e)
		}
		for _, e := range all {
			if e.ClusterID == winnerID {
				continue
			}
			for id := range e.IDSet {
				winner.IDSet[id] = struct{}{}
				m.byID[id] = winnerID
			}
			if e.UpdateTS.After(winner.UpdateTS) {
				winner.UpdateTS = e.UpdateTS
			}
			delete(m.clusters, e.ClusterID)
		}
		winner.ClusterID = winnerID
		m.clusters[winnerID] = winner
		surviving = winner
	}

	return surviving
}

// Prune removes every entry whose UpdateTS is older than pruneSec relative
// to now (§4.3 "Pruning").
func (m *IdentityMap) Prune(now time.Time, pruneSec float64) {
	cutoff := now.Add(-time.Duration(pruneSec * float64(time.Second)))
	for id, e := range m.clusters {
		if e.UpdateTS.Before(cutoff) {
			for memberID := range e.IDSet {
				delete(m.byID, memberID)
			}
			delete(m.clusters, id)
		}
	}
}

// IDSetSorted returns the entry's member ids in ascending lexicographic
// order.
func (e *ClusterEntry) IDSetSorted() []string {
	out := make([]string, 0, len(e.IDSet))
	for id := range e.IDSet {
		out = append(out, id)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}
