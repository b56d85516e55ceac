// Package assign solves minimum-cost bipartite assignment for MCT-C
// (§4.5), wrapping the munkres (Hungarian algorithm) implementation used
// by the retrieval pack's object-tracking examples.
package assign

import (
	munkres "github.com/charles-haynes/munkres"
)

// Sentinel is the cost used for pairs that must never be assigned.
const Sentinel = 1e9

// Match is one surviving (row, col) assignment.
type Match struct {
	Row int
	Col int
}

// Solve finds the minimum-cost assignment over a (generally rectangular)
// cost matrix. Rows and columns are padded with Sentinel-cost dummy
// entries to the square shape the underlying solver requires; any
// assignment that lands on a padded row/column, or whose original cost
// exceeds maxCost, is discarded (mirrors the "discard pairs whose
// pre-square cost exceeded MATCH_MAX_DIST_IN_M" rule of §4.5 applied
// post-squaring: callers pass the already-squared matrix and the squared
// maxCost).
func Solve(cost [][]float64, maxCost float64) ([]Match, error) {
	nRows := len(cost)
	if nRows == 0 {
		return nil, nil
	}
	nCols := len(cost[0])
	n := nRows
	if nCols > n {
		n = nCols
	}

	padded := make([][]float64, n)
	for i := 0; i < n; i++ {
		row := make([]float64, n)
		for j := 0; j < n; j++ {
			switch {
			case i < nRows && j < nCols:
				row[j] = cost[i][j]
			default:
				row[j] = Sentinel
			}
		}
		padded[i] = row
	}

	ha, err := munkres.NewHungarianAlgorithm(padded)
	if err != nil {
		return nil, err
	}
	assignment := ha.Execute()

	var matches []Match
	for i, j := range assignment {
		if j < 0 {
			continue
		}
		if i >= nRows || j >= nCols {
			continue
		}
		if cost[i][j] > maxCost {
			continue
		}
		matches = append(matches, Match{Row: i, Col: j})
	}
	return matches, nil
}
