// Package cluster implements complete-linkage agglomerative clustering with
// a flat cut at a fixed distance threshold.
//
// No example in the retrieval pack carries a scipy linkage/fcluster
// equivalent (gonum has no hierarchical-clustering package), so this is a
// direct implementation over a gonum/mat distance matrix: see DESIGN.md for
// the standard-library justification.
package cluster

import (
	"gonum.org/v1/gonum/mat"
)

// DistanceMatrix is a square, symmetric matrix of pairwise distances.
type DistanceMatrix struct {
	m *mat.SymDense
	n int
}

// NewDistanceMatrix builds a DistanceMatrix of size n, populated by calling
// dist(i, j) for every i < j. The diagonal is implicitly zero and the lower
// triangle mirrors the upper one.
func NewDistanceMatrix(n int, dist func(i, j int) float64) *DistanceMatrix {
	m := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := dist(i, j)
			m.SetSym(i, j, d)
		}
	}
	return &DistanceMatrix{m: m, n: n}
}

// At returns the distance between i and j.
func (d *DistanceMatrix) At(i, j int) float64 {
	if i == j {
		return 0
	}
	return d.m.At(i, j)
}

// N returns the number of points.
func (d *DistanceMatrix) N() int { return d.n }

// Clusters groups point indices [0, n) using complete-linkage agglomerative
// clustering, merging while the maximum pairwise distance between any two
// clusters' members stays at or below cutoff. The result partitions
// [0, n) into one or more slices of member indices; order within a cluster
// is ascending index order, and cluster order is stable by each cluster's
// smallest member index.
func (d *DistanceMatrix) Clusters(cutoff float64) [][]int {
	n := d.n
	if n == 0 {
		return nil
	}
	if n == 1 {
		return [][]int{{0}}
	}

	members := make([][]int, n)
	for i := range members {
		members[i] = []int{i}
	}
	alive := make([]bool, n)
	for i := range alive {
		alive[i] = true
	}

	// completeLinkageDist is the complete-linkage distance between two
	// live clusters: the maximum pairwise distance across their members.
	completeLinkageDist := func(a, b []int) float64 {
		max := 0.0
		for _, i := range a {
			for _, j := range b {
				if v := d.At(i, j); v > max {
					max = v
				}
			}
		}
		return max
	}

	for {
		bestI, bestJ := -1, -1
		bestDist := cutoff
		first := true
		for i := 0; i < n; i++ {
			if !alive[i] {
				continue
			}
			for j := i + 1; j < n; j++ {
				if !alive[j] {
					continue
				}
				dd := completeLinkageDist(members[i], members[j])
				if first || dd < bestDist {
					bestDist = dd
					bestI, bestJ = i, j
					first = false
				}
			}
		}
		if bestI == -1 || bestDist > cutoff {
			break
		}
		members[bestI] = append(members[bestI], members[bestJ]...)
		alive[bestJ] = false
	}

	var out [][]int
	for i := 0; i < n; i++ {
		if alive[i] {
			c := append([]int(nil), members[i]...)
			out = append(out, sortedInts(c))
		}
	}
	return out
}

func sortedInts(xs []int) []int {
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && xs[j-1] > xs[j]; j-- {
			xs[j-1], xs[j] = xs[j], xs[j-1]
		}
	}
	return xs
}
