package rategraph

// Rates builds the conversion matrix from prices quoted in a common reference
// unit: rate(i, j) = price[j] / price[i] off the diagonal, 1.0 on it. Assets
// without a price produce no entries, which New then reports as missing.
func Rates(assets []Asset, prices map[Asset]float64) map[Pair]float64 {
	out := make(map[Pair]float64, len(assets)*len(assets))
	for _, from := range assets {
		pi, okI := prices[from]
		for _, to := range assets {
			if from == to {
				out[Pair{From: from, To: to}] = 1.0
				continue
			}
			pj, okJ := prices[to]
			if !okI || !okJ {
				continue
			}
			out[Pair{From: from, To: to}] = pj / pi
		}
	}
	return out
}

// FromPrices builds and validates a Graph from reference-unit prices.
func FromPrices(assets []Asset, prices map[Asset]float64, opts ...Option) (*Graph, error) {
	return New(assets, Rates(assets, prices), opts...)
}

// Symbols converts plain strings to assets.
func Symbols(ss ...string) []Asset {
	out := make([]Asset, len(ss))
	for i, s := range ss {
		out[i] = Asset(s)
	}
	return out
}
