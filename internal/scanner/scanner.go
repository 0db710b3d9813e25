// Package scanner searches a rate graph for the most profitable simple
// conversion cycle.
package scanner

import (
	"fmt"
	"strings"

	"arbscan/internal/rategraph"
)

// Graph is the read side of a rate snapshot.
type Graph interface {
	Assets() []rategraph.Asset
	Rate(from, to rategraph.Asset) (float64, error)
}

// AllAssets as MaxCycleLength allows cycles through every asset.
const AllAssets = -1

const minCycleLength = 3

type Options struct {
	MinCycleLength int
	MaxCycleLength int
	// MinProfitBps additionally requires (factor-1)*10000 >= MinProfitBps.
	MinProfitBps float64
}

// DefaultOptions searches 3-cycles only.
func DefaultOptions() Options {
	return Options{MinCycleLength: minCycleLength, MaxCycleLength: minCycleLength}
}

func (o Options) bounds(n int) (lo, hi int) {
	lo, hi = o.MinCycleLength, o.MaxCycleLength
	if lo < minCycleLength {
		lo = minCycleLength
	}
	switch {
	case hi == AllAssets || hi > n:
		hi = n
	case hi == 0:
		hi = minCycleLength
	}
	return lo, hi
}

// Cycle is a closed path; the conversion from the last asset back to the
// first is implied.
type Cycle []rategraph.Asset

func (c Cycle) String() string {
	if len(c) == 0 {
		return ""
	}
	parts := make([]string, 0, len(c)+1)
	for _, a := range c {
		parts = append(parts, string(a))
	}
	parts = append(parts, string(c[0]))
	return strings.Join(parts, " -> ")
}

// Key is a compact label, e.g. "A|B|C".
func (c Cycle) Key() string {
	parts := make([]string, len(c))
	for i, a := range c {
		parts[i] = string(a)
	}
	return strings.Join(parts, "|")
}

// Result is either no opportunity (Found false) or the best cycle with its
// compounded factor.
type Result struct {
	Found  bool
	Cycle  Cycle
	Factor float64
	// Evaluated counts the cycles whose factor was computed.
	Evaluated int
}

// ProfitBps is the gross round-trip profit in basis points.
func (r Result) ProfitBps() float64 {
	if !r.Found {
		return 0
	}
	return (r.Factor - 1) * 10000.0
}

// EstimatedProfit is what converting investment units of the first asset
// around the cycle would gain.
func (r Result) EstimatedProfit(investment float64) float64 {
	if !r.Found {
		return 0
	}
	return investment*r.Factor - investment
}

// FindOpportunity enumerates every simple cycle with length within opts and
// returns the one with the largest factor above 1.0. Ties go to the
// lexicographically smallest index sequence. Graphs with fewer than three
// assets never have an opportunity.
func FindOpportunity(g Graph, opts Options) (Result, error) {
	assets := g.Assets()
	n := len(assets)
	lo, hi := opts.bounds(n)
	if n < minCycleLength || hi < lo {
		return Result{}, nil
	}
	m, err := matrix(g, assets)
	if err != nil {
		return Result{}, err
	}

	var (
		res      Result
		best     []int
		bestF    float64
		minGross = 1.0 + opts.MinProfitBps/10000.0
	)
	path := make([]int, 0, hi)
	prods := make([]float64, 0, hi)
	cursor := make([]int, 0, hi)
	used := make([]bool, n)

	// Cycles are rooted at their smallest index and extended in ascending
	// order, so they are visited in lexicographic order and a strict > keeps
	// the smallest sequence among equal factors.
	for start := 0; start <= n-lo; start++ {
		path = append(path[:0], start)
		prods = append(prods[:0], 1.0)
		cursor = append(cursor[:0], start+1)
		used[start] = true

		for len(path) > 0 {
			d := len(path) - 1
			next := -1
			if len(path) < hi {
				for c := cursor[d]; c < n; c++ {
					if !used[c] {
						next = c
						break
					}
				}
			}
			if next < 0 {
				used[path[d]] = false
				path, prods, cursor = path[:d], prods[:d], cursor[:d]
				continue
			}
			cursor[d] = next + 1

			p := prods[d] * m[path[d]*n+next]
			path = append(path, next)
			prods = append(prods, p)
			cursor = append(cursor, start+1)
			used[next] = true

			if len(path) >= lo {
				f := p * m[next*n+start]
				res.Evaluated++
				if f > 1.0 && f >= minGross && (best == nil || f > bestF) {
					best = append(best[:0], path...)
					bestF = f
				}
			}
		}
	}

	if best == nil {
		return res, nil
	}
	res.Found = true
	res.Factor = bestF
	res.Cycle = make(Cycle, len(best))
	for i, idx := range best {
		res.Cycle[i] = assets[idx]
	}
	return res, nil
}

func matrix(g Graph, assets []rategraph.Asset) ([]float64, error) {
	n := len(assets)
	m := make([]float64, n*n)
	for i, from := range assets {
		for j, to := range assets {
			r, err := g.Rate(from, to)
			if err != nil {
				return nil, fmt.Errorf("scanner: rate %s->%s: %w", from, to, err)
			}
			m[i*n+j] = r
		}
	}
	return m, nil
}
