// Package report delivers scan results to operators: logs, Redis pub/sub
// and Discord webhooks.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"arbscan/internal/infra/log"
	"arbscan/internal/infra/metrics"
	"arbscan/internal/scanloop"
)

// Payload is the wire form of a report.
type Payload struct {
	Group           string    `json:"group"`
	TickID          string    `json:"tick_id"`
	At              time.Time `json:"at"`
	Found           bool      `json:"found"`
	Cycle           []string  `json:"cycle,omitempty"`
	Path            string    `json:"path,omitempty"`
	Factor          float64   `json:"factor,omitempty"`
	// Overflow marks a factor past float64 range; Factor and ProfitBps are
	// then zero and no estimate is given.
	Overflow        bool      `json:"overflow,omitempty"`
	ProfitBps       float64   `json:"profit_bps,omitempty"`
	Investment      string    `json:"investment,omitempty"`
	EstimatedProfit string    `json:"estimated_profit,omitempty"`
	Evaluated       int       `json:"evaluated"`
}

// NewPayload flattens r; the estimated profit is computed on investment
// units of the cycle's first asset.
func NewPayload(r scanloop.Report, investment float64) Payload {
	p := Payload{
		Group:     r.Group,
		TickID:    r.TickID,
		At:        r.At.UTC(),
		Found:     r.Result.Found,
		Evaluated: r.Result.Evaluated,
	}
	if !r.Result.Found {
		return p
	}
	p.Cycle = make([]string, len(r.Result.Cycle))
	for i, a := range r.Result.Cycle {
		p.Cycle[i] = string(a)
	}
	p.Path = r.Result.Cycle.String()
	if math.IsInf(r.Result.Factor, 0) || math.IsNaN(r.Result.Factor) {
		p.Overflow = true
		return p
	}
	p.Factor = r.Result.Factor
	p.ProfitBps = r.Result.ProfitBps()
	if investment > 0 {
		inv := decimal.NewFromFloat(investment)
		p.Investment = inv.String()
		p.EstimatedProfit = inv.Mul(decimal.NewFromFloat(r.Result.Factor)).Sub(inv).StringFixed(6)
	}
	return p
}

// Format renders a one-line human message.
func Format(p Payload) string {
	if !p.Found {
		return fmt.Sprintf("[%s] no arbitrage opportunity (%d cycles checked)", p.Group, p.Evaluated)
	}
	if p.Overflow {
		return fmt.Sprintf("[%s] arbitrage opportunity: %s factor=overflow", p.Group, p.Path)
	}
	msg := fmt.Sprintf("[%s] arbitrage opportunity: %s factor=%.6f (%.2f bps)", p.Group, p.Path, p.Factor, p.ProfitBps)
	if p.EstimatedProfit != "" {
		msg += fmt.Sprintf(", est. profit %s on %s", p.EstimatedProfit, p.Investment)
	}
	return msg
}

func (p Payload) JSON() ([]byte, error) { return json.Marshal(p) }

// LogSink logs opportunities at info and empty ticks at debug.
type LogSink struct {
	logger     log.Logger
	investment float64
}

func NewLogSink(logger log.Logger, investment float64) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "report").Logger(), investment: investment}
}

func (s *LogSink) Report(ctx context.Context, r scanloop.Report) error {
	p := NewPayload(r, s.investment)
	if !p.Found {
		s.logger.Debug().Str("group", p.Group).Str("tick", p.TickID).Int("evaluated", p.Evaluated).Msg("no arbitrage opportunity")
		return nil
	}
	ev := s.logger.Info().
		Str("group", p.Group).
		Str("tick", p.TickID).
		Strs("cycle", p.Cycle).
		Float64("factor", p.Factor).
		Float64("profit_bps", p.ProfitBps).
		Int("evaluated", p.Evaluated)
	if p.Overflow {
		ev = ev.Bool("overflow", true)
	}
	if p.EstimatedProfit != "" {
		ev = ev.Str("investment", p.Investment).Str("estimated_profit", p.EstimatedProfit)
	}
	ev.Msg("arbitrage opportunity detected")
	metrics.SinkDeliveredTotal.WithLabelValues("log").Inc()
	return nil
}

// Multi fans a report out to every sink. All sinks are called; failures and
// panics are joined.
type Multi []scanloop.Sink

func (m Multi) Report(ctx context.Context, r scanloop.Report) error {
	var errs []error
	for _, s := range m {
		if err := deliver(ctx, s, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func deliver(ctx context.Context, s scanloop.Sink, r scanloop.Report) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("sink %T panic: %v", s, v)
		}
	}()
	return s.Report(ctx, r)
}
