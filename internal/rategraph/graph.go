// Package rategraph holds validated snapshots of pairwise conversion rates.
//
// A Graph is built once per scan tick and never mutated afterwards. Rate(i, j)
// is the number of units of j obtained for one unit of i.
package rategraph

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrInvalidRate    = errors.New("invalid conversion rate")
	ErrDuplicateAsset = errors.New("duplicate asset")
	ErrUnknownAsset   = errors.New("unknown asset")
)

// Asset is a tradable unit identified by its symbol.
type Asset string

// Pair is an ordered conversion from one asset to another.
type Pair struct{ From, To Asset }

func (p Pair) String() string { return string(p.From) + "->" + string(p.To) }

type Graph struct {
	assets []Asset
	index  map[Asset]int
	// rates is row-major: rates[i*n+j] = rate(assets[i], assets[j])
	rates []float64
}

type options struct {
	diagonalEpsilon float64
}

type Option func(*options)

// WithDiagonalEpsilon accepts diagonal rates within eps of 1.0. The default is
// an exact match.
func WithDiagonalEpsilon(eps float64) Option {
	return func(o *options) {
		if eps > 0 {
			o.diagonalEpsilon = eps
		}
	}
}

// New validates rates for every ordered pair of assets and returns the
// snapshot. Entries of rates naming assets outside the set are ignored.
func New(assets []Asset, rates map[Pair]float64, opts ...Option) (*Graph, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	n := len(assets)
	g := &Graph{
		assets: make([]Asset, n),
		index:  make(map[Asset]int, n),
		rates:  make([]float64, n*n),
	}
	for i, a := range assets {
		if _, dup := g.index[a]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateAsset, a)
		}
		g.index[a] = i
		g.assets[i] = a
	}
	for i, from := range assets {
		for j, to := range assets {
			p := Pair{From: from, To: to}
			r, ok := rates[p]
			if !ok {
				return nil, fmt.Errorf("%w: missing rate for %s", ErrInvalidRate, p)
			}
			if i == j {
				if math.IsNaN(r) || math.Abs(r-1.0) > o.diagonalEpsilon {
					return nil, fmt.Errorf("%w: %v at %s, want 1.0", ErrInvalidRate, r, p)
				}
			} else if math.IsNaN(r) || math.IsInf(r, 0) || r <= 0 {
				return nil, fmt.Errorf("%w: %v at %s", ErrInvalidRate, r, p)
			}
			g.rates[i*n+j] = r
		}
	}
	// Accepted diagonals are stored as exactly 1.0.
	for i := 0; i < n; i++ {
		g.rates[i*n+i] = 1.0
	}
	return g, nil
}

// Rate returns units of to obtained per unit of from.
func (g *Graph) Rate(from, to Asset) (float64, error) {
	i, ok := g.index[from]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownAsset, from)
	}
	j, ok := g.index[to]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownAsset, to)
	}
	return g.rates[i*len(g.assets)+j], nil
}

// Assets returns the assets in construction order. The slice is a copy.
func (g *Graph) Assets() []Asset {
	out := make([]Asset, len(g.assets))
	copy(out, g.assets)
	return out
}

func (g *Graph) Len() int { return len(g.assets) }

// Index reports the position of a in Assets.
func (g *Graph) Index(a Asset) (int, bool) {
	i, ok := g.index[a]
	return i, ok
}
