// Package scanloop drives repeated fetch, build, scan and report ticks for
// one asset group.
package scanloop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"arbscan/internal/infra/health"
	"arbscan/internal/infra/log"
	"arbscan/internal/infra/metrics"
	"arbscan/internal/rategraph"
	"arbscan/internal/scanner"
)

const DefaultInterval = 10 * time.Second

// PriceSource returns prices denominated in a common reference unit.
type PriceSource interface {
	FetchPrices(ctx context.Context, assets []rategraph.Asset) (map[rategraph.Asset]float64, error)
}

// RateSource is an optional capability: sources that can quote every ordered
// pair directly. Used when Config.PreferRates is set.
type RateSource interface {
	FetchRates(ctx context.Context, assets []rategraph.Asset) (map[rategraph.Pair]float64, error)
}

// Sink consumes one report per successful tick.
type Sink interface {
	Report(ctx context.Context, r Report) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, r Report) error

func (f SinkFunc) Report(ctx context.Context, r Report) error { return f(ctx, r) }

type Report struct {
	Group  string
	TickID string
	At     time.Time
	Result scanner.Result
}

type Config struct {
	Group           string
	Assets          []rategraph.Asset
	Interval        time.Duration
	Scan            scanner.Options
	DiagonalEpsilon float64
	PreferRates     bool
}

type Loop struct {
	cfg    Config
	source PriceSource
	sink   Sink
	logger log.Logger
}

func New(cfg Config, source PriceSource, sink Sink, logger log.Logger) (*Loop, error) {
	if source == nil {
		return nil, errors.New("scanloop: nil price source")
	}
	if sink == nil {
		return nil, errors.New("scanloop: nil sink")
	}
	seen := make(map[rategraph.Asset]struct{}, len(cfg.Assets))
	for _, a := range cfg.Assets {
		if _, dup := seen[a]; dup {
			return nil, fmt.Errorf("scanloop: group %q: %w: %q", cfg.Group, rategraph.ErrDuplicateAsset, a)
		}
		seen[a] = struct{}{}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	cfg.Assets = append([]rategraph.Asset(nil), cfg.Assets...)
	return &Loop{
		cfg:    cfg,
		source: source,
		sink:   sink,
		logger: logger.With().Str("component", "scanloop").Str("group", cfg.Group).Logger(),
	}, nil
}

// Run ticks until ctx is cancelled, then returns nil. A failed tick is logged
// and skipped; it never stops the loop.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info().Int("assets", len(l.cfg.Assets)).Dur("interval", l.cfg.Interval).Msg("scan loop started")
	timer := time.NewTimer(l.cfg.Interval)
	defer timer.Stop()
	for {
		if ctx.Err() != nil {
			l.logger.Info().Msg("scan loop stopped")
			return nil
		}
		l.tick(ctx)

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(l.cfg.Interval)
		select {
		case <-ctx.Done():
			l.logger.Info().Msg("scan loop stopped")
			return nil
		case <-timer.C:
		}
	}
}

// tick runs one fetch, build, scan and report cycle. It reports whether a
// result was emitted.
func (l *Loop) tick(ctx context.Context) bool {
	start := time.Now()
	tickID := uuid.NewString()
	lg := l.logger.With().Str("tick", tickID).Logger()

	g, err := l.snapshot(ctx)
	if err != nil {
		outcome := metrics.OutcomeFetchFailed
		if errors.Is(err, rategraph.ErrInvalidRate) || errors.Is(err, rategraph.ErrDuplicateAsset) {
			outcome = metrics.OutcomeInvalidRates
		}
		metrics.TicksTotal.WithLabelValues(l.cfg.Group, outcome).Inc()
		lg.Warn().Err(err).Str("outcome", outcome).Msg("tick skipped")
		return false
	}

	res, err := scanner.FindOpportunity(g, l.cfg.Scan)
	if err != nil {
		metrics.TicksTotal.WithLabelValues(l.cfg.Group, metrics.OutcomeScanFailed).Inc()
		lg.Error().Err(err).Msg("scan failed")
		return false
	}

	metrics.TicksTotal.WithLabelValues(l.cfg.Group, metrics.OutcomeOK).Inc()
	metrics.CyclesEvaluatedTotal.WithLabelValues(l.cfg.Group).Add(float64(res.Evaluated))
	metrics.BestProfitBps.WithLabelValues(l.cfg.Group).Set(res.ProfitBps())
	if res.Found {
		metrics.ArbOppsFound.WithLabelValues(l.cfg.Group).Inc()
	}

	rep := Report{Group: l.cfg.Group, TickID: tickID, At: time.Now(), Result: res}
	if err := l.emit(ctx, rep); err != nil {
		metrics.SinkErrorsTotal.WithLabelValues(l.cfg.Group).Inc()
		lg.Error().Err(err).Msg("report sink failed")
	}
	health.MarkTick(l.cfg.Group, rep.At)
	metrics.ScanLatencyMs.WithLabelValues(l.cfg.Group).Observe(float64(time.Since(start).Milliseconds()))
	return true
}

func (l *Loop) snapshot(ctx context.Context) (*rategraph.Graph, error) {
	opts := []rategraph.Option{rategraph.WithDiagonalEpsilon(l.cfg.DiagonalEpsilon)}
	if rs, ok := l.source.(RateSource); ok && l.cfg.PreferRates {
		rates, err := rs.FetchRates(ctx, l.cfg.Assets)
		if err != nil {
			return nil, fmt.Errorf("fetch rates: %w", err)
		}
		return rategraph.New(l.cfg.Assets, rates, opts...)
	}
	prices, err := l.source.FetchPrices(ctx, l.cfg.Assets)
	if err != nil {
		return nil, fmt.Errorf("fetch prices: %w", err)
	}
	return rategraph.FromPrices(l.cfg.Assets, prices, opts...)
}

func (l *Loop) emit(ctx context.Context, rep Report) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panic: %v", r)
		}
	}()
	return l.sink.Report(ctx, rep)
}
