// Package rank implements rankings over catalog indices and Reciprocal Rank
// Fusion (RRF) of several rankings into one.
package rank

import (
	"slices"
	"sort"

	"github.com/scottdavis/metatool/pkg/errors"
)

// DefaultK is the RRF smoothing constant applied to every input ranking
// unless overridden.
const DefaultK = 60

// Ranking assigns a 1-based rank to each catalog index: r[i] is the rank of
// index i. A valid Ranking of length N is a bijection onto 1..N.
type Ranking []int

// Validate checks that r is a bijection onto 1..len(r).
func (r Ranking) Validate() error {
	seen := make([]bool, len(r))
	for i, rk := range r {
		if rk < 1 || rk > len(r) || seen[rk-1] {
			return errors.WithFields(
				errors.New(errors.InvalidInput, "ranking is not a bijection"),
				errors.Fields{"index": i, "rank": rk, "size": len(r)},
			)
		}
		seen[rk-1] = true
	}
	return nil
}

// Order returns catalog indices sorted by ascending rank.
func (r Ranking) Order() []int {
	order := make([]int, len(r))
	for i, rk := range r {
		order[rk-1] = i
	}
	return order
}

// Top returns at most n indices in rank order.
func (r Ranking) Top(n int) []int {
	order := r.Order()
	if n < len(order) {
		order = order[:n]
	}
	return order
}

// FromScores ranks indices by descending score. Equal scores keep index
// order, so the lower index ranks first.
func FromScores(scores []float64) Ranking {
	indices := make([]int, len(scores))
	for i := range indices {
		indices[i] = i
	}
	sort.SliceStable(indices, func(a, b int) bool {
		return scores[indices[a]] > scores[indices[b]]
	})

	ranking := make(Ranking, len(scores))
	for pos, idx := range indices {
		ranking[idx] = pos + 1
	}
	return ranking
}

// Fuse combines rankings with RRF using DefaultK for every input.
func Fuse(rankings ...Ranking) (Ranking, error) {
	return FuseWithK(rankings, nil)
}

// FuseWithK combines rankings with RRF. ks holds one constant per ranking;
// nil means DefaultK for all.
//
// Each index scores Σ 1/(rank+k). The terms of an index are summed in
// ascending order, so the result does not depend on the order of rankings.
func FuseWithK(rankings []Ranking, ks []int) (Ranking, error) {
	if len(rankings) == 0 {
		return nil, errors.New(errors.InvalidInput, "no rankings to fuse")
	}
	if ks != nil && len(ks) != len(rankings) {
		return nil, errors.WithFields(
			errors.New(errors.InvalidInput, "one k per ranking is required"),
			errors.Fields{"rankings": len(rankings), "ks": len(ks)},
		)
	}

	n := len(rankings[0])
	if n == 0 {
		return nil, errors.New(errors.InvalidInput, "cannot fuse rankings over an empty catalog")
	}
	for i, r := range rankings {
		if len(r) != n {
			return nil, errors.WithFields(
				errors.New(errors.InvalidInput, "rankings differ in size"),
				errors.Fields{"ranking": i, "size": len(r), "expected": n},
			)
		}
		if err := r.Validate(); err != nil {
			return nil, errors.WithFields(err, errors.Fields{"ranking": i})
		}
	}

	scores := make([]float64, n)
	terms := make([]float64, len(rankings))
	for idx := range n {
		for j, r := range rankings {
			k := DefaultK
			if ks != nil {
				k = ks[j]
			}
			terms[j] = 1.0 / float64(r[idx]+k)
		}
		slices.Sort(terms)
		var score float64
		for _, term := range terms {
			score += term
		}
		scores[idx] = score
	}

	return FromScores(scores), nil
}
