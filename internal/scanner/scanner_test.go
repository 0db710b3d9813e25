package scanner

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"arbscan/internal/rategraph"
)

func graph(t *testing.T, assets []rategraph.Asset, off float64, edges map[rategraph.Pair]float64) *rategraph.Graph {
	t.Helper()
	rates := map[rategraph.Pair]float64{}
	for _, a := range assets {
		for _, b := range assets {
			switch {
			case a == b:
				rates[rategraph.Pair{From: a, To: b}] = 1.0
			default:
				rates[rategraph.Pair{From: a, To: b}] = off
			}
		}
	}
	for p, r := range edges {
		rates[p] = r
	}
	g, err := rategraph.New(assets, rates)
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}
	return g
}

func TestTriangleOpportunity(t *testing.T) {
	g := graph(t, rategraph.Symbols("A", "B", "C"), 0.5, map[rategraph.Pair]float64{
		{From: "A", To: "B"}: 2.0,
		{From: "B", To: "C"}: 2.0,
		{From: "C", To: "A"}: 2.0,
	})
	res, err := FindOpportunity(g, DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Found {
		t.Fatalf("expected opportunity")
	}
	if res.Cycle.Key() != "A|B|C" {
		t.Fatalf("expected cycle A|B|C, got %s", res.Cycle.Key())
	}
	if res.Factor != 8.0 {
		t.Fatalf("expected factor 8.0, got %v", res.Factor)
	}
	if res.Evaluated != 2 {
		t.Fatalf("expected 2 evaluated cycles, got %d", res.Evaluated)
	}
	if res.Cycle.String() != "A -> B -> C -> A" {
		t.Fatalf("unexpected path %q", res.Cycle.String())
	}
	if res.ProfitBps() != 70000 {
		t.Fatalf("expected 70000 bps, got %v", res.ProfitBps())
	}
	if got := res.EstimatedProfit(200); got != 1400 {
		t.Fatalf("expected profit 1400 on 200, got %v", got)
	}
}

func TestFlatRatesNoOpportunity(t *testing.T) {
	g := graph(t, rategraph.Symbols("A", "B", "C"), 1.0, nil)
	res, err := FindOpportunity(g, DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Found {
		t.Fatalf("factor 1.0 is not an opportunity, got %+v", res)
	}
	if res.ProfitBps() != 0 || res.EstimatedProfit(100) != 0 {
		t.Fatalf("no-opportunity result should report zero profit")
	}
}

func TestNoPermutationAboveOne(t *testing.T) {
	// every 3-cycle product is 2*0.5*0.5 or lower
	g := graph(t, rategraph.Symbols("A", "B", "C"), 0.5, map[rategraph.Pair]float64{
		{From: "A", To: "B"}: 2.0,
	})
	res, err := FindOpportunity(g, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if res.Found {
		t.Fatalf("expected no opportunity, got %+v", res)
	}
}

func TestReciprocalRatesNoOpportunity(t *testing.T) {
	assets := rategraph.Symbols("A", "B", "C")
	g, err := rategraph.FromPrices(assets, map[rategraph.Asset]float64{"A": 1, "B": 2, "C": 4})
	if err != nil {
		t.Fatal(err)
	}
	res, err := FindOpportunity(g, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if res.Found {
		t.Fatalf("consistent prices cannot produce an opportunity, got %+v", res)
	}
}

func TestTwoAssetsNeverProfitable(t *testing.T) {
	g := graph(t, rategraph.Symbols("A", "B"), 1000.0, nil)
	for _, opts := range []Options{DefaultOptions(), {MaxCycleLength: AllAssets}, {MinCycleLength: 2, MaxCycleLength: 2}} {
		res, err := FindOpportunity(g, opts)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Found {
			t.Fatalf("two assets cannot form a cycle, got %+v", res)
		}
	}
}

func TestEmptyGraph(t *testing.T) {
	g := graph(t, nil, 1.0, nil)
	res, err := FindOpportunity(g, DefaultOptions())
	if err != nil || res.Found {
		t.Fatalf("empty graph: %+v %v", res, err)
	}
}

func TestTieBreaksLexicographically(t *testing.T) {
	// every 3-cycle through B->C has factor 2: A,B,C and B,C,D
	g := graph(t, rategraph.Symbols("A", "B", "C", "D"), 1.0, map[rategraph.Pair]float64{
		{From: "B", To: "C"}: 2.0,
	})
	res, err := FindOpportunity(g, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Found || res.Cycle.Key() != "A|B|C" || res.Factor != 2.0 {
		t.Fatalf("expected A|B|C at 2.0, got %+v", res)
	}
}

func TestPicksMaximumFactor(t *testing.T) {
	g := graph(t, rategraph.Symbols("A", "B", "C", "D"), 1.0, map[rategraph.Pair]float64{
		{From: "A", To: "B"}: 1.5,
		{From: "C", To: "D"}: 3.0,
	})
	res, err := FindOpportunity(g, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	// A,C,D (1*3*1) beats A,B,C (1.5)
	if !res.Found || res.Cycle.Key() != "A|C|D" || res.Factor != 3.0 {
		t.Fatalf("expected A|C|D at 3.0, got %+v", res)
	}
}

func TestLongerCyclesRequireOptIn(t *testing.T) {
	g := graph(t, rategraph.Symbols("A", "B", "C", "D"), 0.5, map[rategraph.Pair]float64{
		{From: "A", To: "B"}: 1.2,
		{From: "B", To: "C"}: 1.2,
		{From: "C", To: "D"}: 1.2,
		{From: "D", To: "A"}: 1.2,
	})
	res, err := FindOpportunity(g, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if res.Found {
		t.Fatalf("3-cycles are all below 1.0, got %+v", res)
	}

	res, err = FindOpportunity(g, Options{MaxCycleLength: 4})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Found || res.Cycle.Key() != "A|B|C|D" {
		t.Fatalf("expected A|B|C|D, got %+v", res)
	}
	if math.Abs(res.Factor-1.2*1.2*1.2*1.2) > 1e-12 {
		t.Fatalf("unexpected factor %v", res.Factor)
	}

	res, err = FindOpportunity(g, Options{MinCycleLength: 4, MaxCycleLength: AllAssets})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Found || len(res.Cycle) != 4 {
		t.Fatalf("expected 4-cycle, got %+v", res)
	}
	// 6 directed 4-cycles over 4 assets
	if res.Evaluated != 6 {
		t.Fatalf("expected 6 evaluated cycles, got %d", res.Evaluated)
	}
}

func TestMinGreaterThanMax(t *testing.T) {
	g := graph(t, rategraph.Symbols("A", "B", "C"), 2.0, nil)
	res, err := FindOpportunity(g, Options{MinCycleLength: 4, MaxCycleLength: 3})
	if err != nil || res.Found {
		t.Fatalf("expected no opportunity, got %+v %v", res, err)
	}
}

func TestMinProfitThreshold(t *testing.T) {
	g := graph(t, rategraph.Symbols("A", "B", "C"), 0.5, map[rategraph.Pair]float64{
		{From: "A", To: "B"}: 2.0,
		{From: "B", To: "C"}: 2.0,
		{From: "C", To: "A"}: 2.0,
	})
	opts := DefaultOptions()
	opts.MinProfitBps = 80000
	if res, _ := FindOpportunity(g, opts); res.Found {
		t.Fatalf("8x is below a 9x threshold, got %+v", res)
	}
	opts.MinProfitBps = 70000
	if res, _ := FindOpportunity(g, opts); !res.Found {
		t.Fatalf("8x meets a 70000 bps threshold")
	}
}

type brokenGraph struct{ assets []rategraph.Asset }

func (b brokenGraph) Assets() []rategraph.Asset { return b.assets }
func (b brokenGraph) Rate(from, to rategraph.Asset) (float64, error) {
	if to == "C" {
		return 0, rategraph.ErrUnknownAsset
	}
	return 1, nil
}

func TestPropagatesUnknownAsset(t *testing.T) {
	_, err := FindOpportunity(brokenGraph{assets: rategraph.Symbols("A", "B", "C")}, DefaultOptions())
	if !errors.Is(err, rategraph.ErrUnknownAsset) {
		t.Fatalf("expected ErrUnknownAsset, got %v", err)
	}
}

func randomGraph(t *testing.T, r *rand.Rand, n int) *rategraph.Graph {
	t.Helper()
	syms := make([]string, n)
	for i := range syms {
		syms[i] = string(rune('A' + i))
	}
	assets := rategraph.Symbols(syms...)
	rates := map[rategraph.Pair]float64{}
	for _, a := range assets {
		for _, b := range assets {
			if a == b {
				rates[rategraph.Pair{From: a, To: b}] = 1
			} else {
				rates[rategraph.Pair{From: a, To: b}] = 0.8 + 0.4*r.Float64()
			}
		}
	}
	g, err := rategraph.New(assets, rates)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func TestDeterministic(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for trial := 0; trial < 20; trial++ {
		g := randomGraph(t, r, 5)
		a, err := FindOpportunity(g, Options{MaxCycleLength: AllAssets})
		if err != nil {
			t.Fatal(err)
		}
		b, _ := FindOpportunity(g, Options{MaxCycleLength: AllAssets})
		if a.Found != b.Found || a.Factor != b.Factor || a.Cycle.Key() != b.Cycle.Key() {
			t.Fatalf("trial %d: results differ: %+v vs %+v", trial, a, b)
		}
	}
}

// bruteForce enumerates every rotation of every simple cycle and keeps the
// best canonical (smallest-index-first) sequence.
func bruteForce(g *rategraph.Graph, lo, hi int) (Cycle, float64) {
	assets := g.Assets()
	n := len(assets)
	var (
		best  []int
		bestF float64
	)
	less := func(a, b []int) bool {
		for i := 0; i < len(a) && i < len(b); i++ {
			if a[i] != b[i] {
				return a[i] < b[i]
			}
		}
		return len(a) < len(b)
	}
	var walk func(path []int, used []bool)
	walk = func(path []int, used []bool) {
		if len(path) >= lo {
			f := 1.0
			for i := 1; i < len(path); i++ {
				r, _ := g.Rate(assets[path[i-1]], assets[path[i]])
				f *= r
			}
			r, _ := g.Rate(assets[path[len(path)-1]], assets[path[0]])
			f *= r
			if f > 1.0 && (best == nil || f > bestF || (f == bestF && less(path, best))) {
				best = append([]int(nil), path...)
				bestF = f
			}
		}
		if len(path) == hi {
			return
		}
		for c := 0; c < n; c++ {
			if used[c] || c < path[0] {
				continue
			}
			used[c] = true
			walk(append(path, c), used)
			used[c] = false
		}
	}
	for s := 0; s < n; s++ {
		used := make([]bool, n)
		used[s] = true
		walk([]int{s}, used)
	}
	if best == nil {
		return nil, 0
	}
	out := make(Cycle, len(best))
	for i, idx := range best {
		out[i] = assets[idx]
	}
	return out, bestF
}

func TestMatchesBruteForce(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for trial := 0; trial < 50; trial++ {
		n := 3 + r.Intn(4)
		g := randomGraph(t, r, n)
		for _, hi := range []int{3, n} {
			res, err := FindOpportunity(g, Options{MaxCycleLength: hi})
			if err != nil {
				t.Fatal(err)
			}
			want, wantF := bruteForce(g, 3, hi)
			if res.Found != (want != nil) {
				t.Fatalf("trial %d n=%d hi=%d: found=%v want %v", trial, n, hi, res.Found, want)
			}
			if res.Found && (res.Cycle.Key() != want.Key() || res.Factor != wantF) {
				t.Fatalf("trial %d n=%d hi=%d: got %s %v, want %s %v", trial, n, hi, res.Cycle.Key(), res.Factor, want.Key(), wantF)
			}
		}
	}
}
