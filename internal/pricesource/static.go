package pricesource

import (
	"context"

	"arbscan/internal/rategraph"
)

// Static serves fixed prices, and fixed pairwise rates when given.
type Static struct {
	Prices map[rategraph.Asset]float64
	Rates  map[rategraph.Pair]float64
}

func NewStatic(prices map[string]float64) *Static {
	s := &Static{Prices: make(map[rategraph.Asset]float64, len(prices))}
	for sym, p := range prices {
		s.Prices[rategraph.Asset(sym)] = p
	}
	return s
}

func (s *Static) FetchPrices(ctx context.Context, assets []rategraph.Asset) (map[rategraph.Asset]float64, error) {
	out := make(map[rategraph.Asset]float64, len(assets))
	for _, a := range assets {
		if p, ok := s.Prices[a]; ok {
			out[a] = p
		}
	}
	return out, nil
}

func (s *Static) FetchRates(ctx context.Context, assets []rategraph.Asset) (map[rategraph.Pair]float64, error) {
	if s.Rates == nil {
		return rategraph.Rates(assets, s.Prices), nil
	}
	out := make(map[rategraph.Pair]float64, len(s.Rates))
	for p, r := range s.Rates {
		out[p] = r
	}
	return out, nil
}
