package scanloop

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"arbscan/internal/infra/health"
	"arbscan/internal/infra/metrics"
	"arbscan/internal/rategraph"
	"arbscan/internal/scanner"
)

var errNetwork = errors.New("connection refused")

type step struct {
	prices map[rategraph.Asset]float64
	err    error
}

// scriptedSource replays steps in order and repeats the last one.
type scriptedSource struct {
	mu    sync.Mutex
	steps []step
	calls int
}

func (s *scriptedSource) FetchPrices(ctx context.Context, assets []rategraph.Asset) (map[rategraph.Asset]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	s.calls++
	return s.steps[i].prices, s.steps[i].err
}

func (s *scriptedSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// pairSource quotes a 3-cycle with factor 8 directly.
type pairSource struct{ scriptedSource }

func (p *pairSource) FetchRates(ctx context.Context, assets []rategraph.Asset) (map[rategraph.Pair]float64, error) {
	rates := map[rategraph.Pair]float64{}
	for _, a := range assets {
		for _, b := range assets {
			rates[rategraph.Pair{From: a, To: b}] = 0.5
		}
		rates[rategraph.Pair{From: a, To: a}] = 1
	}
	rates[rategraph.Pair{From: "A", To: "B"}] = 2
	rates[rategraph.Pair{From: "B", To: "C"}] = 2
	rates[rategraph.Pair{From: "C", To: "A"}] = 2
	return rates, nil
}

var goodPrices = map[rategraph.Asset]float64{"A": 1, "B": 2, "C": 4}

func newLoop(t *testing.T, group string, src PriceSource, sink Sink, interval time.Duration) *Loop {
	t.Helper()
	l, err := New(Config{
		Group:    group,
		Assets:   rategraph.Symbols("A", "B", "C"),
		Interval: interval,
		Scan:     scanner.DefaultOptions(),
	}, src, sink, zerolog.Nop())
	if err != nil {
		t.Fatalf("new loop: %v", err)
	}
	return l
}

// stopAfter cancels the loop once n reports were received.
func stopAfter(n int, cancel context.CancelFunc, got *[]Report) Sink {
	var mu sync.Mutex
	return SinkFunc(func(ctx context.Context, r Report) error {
		mu.Lock()
		defer mu.Unlock()
		*got = append(*got, r)
		if len(*got) >= n {
			cancel()
		}
		return nil
	})
}

func TestFetchFailureSkipsOneTick(t *testing.T) {
	const group = "fetch-once"
	src := &scriptedSource{steps: []step{{err: errNetwork}, {prices: goodPrices}}}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var got []Report
	l := newLoop(t, group, src, stopAfter(1, cancel, &got), time.Millisecond)

	if err := l.Run(ctx); err != nil {
		t.Fatalf("run returned error: %v", err)
	}
	if src.Calls() != 2 {
		t.Fatalf("expected 2 fetches (one skipped tick, one normal), got %d", src.Calls())
	}
	if len(got) != 1 {
		t.Fatalf("expected exactly 1 report, got %d", len(got))
	}
	if got[0].Group != group || got[0].TickID == "" || got[0].At.IsZero() {
		t.Fatalf("report missing metadata: %+v", got[0])
	}
	if got[0].Result.Found {
		t.Fatalf("consistent prices should not report an opportunity: %+v", got[0].Result)
	}
	if v := testutil.ToFloat64(metrics.TicksTotal.WithLabelValues(group, metrics.OutcomeFetchFailed)); v != 1 {
		t.Fatalf("expected 1 fetch_failed tick, got %v", v)
	}
	if v := testutil.ToFloat64(metrics.TicksTotal.WithLabelValues(group, metrics.OutcomeOK)); v != 1 {
		t.Fatalf("expected 1 ok tick, got %v", v)
	}
	if _, ok := health.LastTicks()[group]; !ok {
		t.Fatalf("expected tick marked in health")
	}
}

func TestInvalidPricesSkipTick(t *testing.T) {
	const group = "invalid-once"
	bad := map[rategraph.Asset]float64{"A": 1, "B": -2, "C": 4}
	src := &scriptedSource{steps: []step{{prices: bad}, {prices: map[rategraph.Asset]float64{"A": 1}}, {prices: goodPrices}}}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var got []Report
	l := newLoop(t, group, src, stopAfter(1, cancel, &got), time.Millisecond)
	_ = l.Run(ctx)

	if src.Calls() != 3 || len(got) != 1 {
		t.Fatalf("expected 3 fetches and 1 report, got %d and %d", src.Calls(), len(got))
	}
	if v := testutil.ToFloat64(metrics.TicksTotal.WithLabelValues(group, metrics.OutcomeInvalidRates)); v != 2 {
		t.Fatalf("expected 2 invalid_rates ticks, got %v", v)
	}
}

func TestSinkFailuresDoNotStopLoop(t *testing.T) {
	const group = "sink-failures"
	src := &scriptedSource{steps: []step{{prices: goodPrices}}}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	calls := 0
	sink := SinkFunc(func(ctx context.Context, r Report) error {
		calls++
		switch calls {
		case 1:
			return errors.New("webhook down")
		case 2:
			panic("sink bug")
		default:
			cancel()
			return nil
		}
	})
	l := newLoop(t, group, src, sink, time.Millisecond)
	if err := l.Run(ctx); err != nil {
		t.Fatalf("run returned error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 sink calls, got %d", calls)
	}
	if v := testutil.ToFloat64(metrics.SinkErrorsTotal.WithLabelValues(group)); v != 2 {
		t.Fatalf("expected 2 sink errors, got %v", v)
	}
}

func TestCancelInterruptsSleep(t *testing.T) {
	src := &scriptedSource{steps: []step{{prices: goodPrices}}}
	ctx, cancel := context.WithCancel(context.Background())
	reported := make(chan struct{}, 1)
	sink := SinkFunc(func(ctx context.Context, r Report) error {
		reported <- struct{}{}
		return nil
	})
	l := newLoop(t, "cancel-sleep", src, sink, time.Hour)

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	select {
	case <-reported:
	case <-time.After(5 * time.Second):
		t.Fatalf("first tick did not report")
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("cancellation did not interrupt the sleep")
	}
	if src.Calls() != 1 {
		t.Fatalf("expected a single tick, got %d", src.Calls())
	}
}

func TestCancelledBeforeStart(t *testing.T) {
	src := &scriptedSource{steps: []step{{prices: goodPrices}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l := newLoop(t, "cancelled", src, SinkFunc(func(context.Context, Report) error { return nil }), time.Millisecond)
	if err := l.Run(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.Calls() != 0 {
		t.Fatalf("expected no fetch, got %d", src.Calls())
	}
}

func TestPrefersPairwiseRates(t *testing.T) {
	const group = "pairwise"
	src := &pairSource{scriptedSource{steps: []step{{prices: goodPrices}}}}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var got []Report
	l, err := New(Config{
		Group:       group,
		Assets:      rategraph.Symbols("A", "B", "C"),
		Interval:    time.Millisecond,
		Scan:        scanner.DefaultOptions(),
		PreferRates: true,
	}, src, stopAfter(1, cancel, &got), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	_ = l.Run(ctx)
	if len(got) != 1 || !got[0].Result.Found || got[0].Result.Factor != 8 {
		t.Fatalf("expected the pairwise factor-8 cycle, got %+v", got)
	}
	if src.Calls() != 0 {
		t.Fatalf("prices should not be fetched when pairwise rates are preferred")
	}
	if v := testutil.ToFloat64(metrics.ArbOppsFound.WithLabelValues(group)); v != 1 {
		t.Fatalf("expected 1 opportunity counted, got %v", v)
	}
}

func TestNewValidates(t *testing.T) {
	sink := SinkFunc(func(context.Context, Report) error { return nil })
	if _, err := New(Config{Group: "x"}, nil, sink, zerolog.Nop()); err == nil {
		t.Fatalf("expected error for nil source")
	}
	if _, err := New(Config{Group: "x"}, &scriptedSource{}, nil, zerolog.Nop()); err == nil {
		t.Fatalf("expected error for nil sink")
	}
	_, err := New(Config{Group: "x", Assets: rategraph.Symbols("A", "A")}, &scriptedSource{}, sink, zerolog.Nop())
	if !errors.Is(err, rategraph.ErrDuplicateAsset) {
		t.Fatalf("expected ErrDuplicateAsset, got %v", err)
	}
	l, err := New(Config{Group: "x"}, &scriptedSource{}, sink, zerolog.Nop())
	if err != nil || l.cfg.Interval != DefaultInterval {
		t.Fatalf("expected default interval, got %v %v", l, err)
	}
}
