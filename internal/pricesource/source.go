// Package pricesource implements the external price collaborators of the
// scan loop: the Uniswap subgraph, the Jupiter price API, Binance book
// tickers and fixed prices.
package pricesource

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"arbscan/internal/infra/metrics"
)

// ErrPriceFetch wraps every network, status and decode failure of a source.
var ErrPriceFetch = errors.New("price fetch failed")

func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}

func fetchErr(source, endpoint string, err error) error {
	metrics.APIErrorsTotal.WithLabelValues(source, endpoint).Inc()
	return fmt.Errorf("%w: %s %s: %w", ErrPriceFetch, source, endpoint, err)
}

// doJSON paces, sends req and decodes a 2xx JSON body into out.
func doJSON(client *http.Client, limiter *rate.Limiter, source, endpoint string, req *http.Request, out any) error {
	if err := limiter.Wait(req.Context()); err != nil {
		return fetchErr(source, endpoint, err)
	}
	start := time.Now()
	resp, err := client.Do(req)
	metrics.FetchLatencyMs.WithLabelValues(source).Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		return fetchErr(source, endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fetchErr(source, endpoint, fmt.Errorf("status %d: %s", resp.StatusCode, body))
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fetchErr(source, endpoint, fmt.Errorf("decode: %w", err))
	}
	return nil
}

// parsePrice reads a decimal price from either a JSON string or number.
func parsePrice(raw json.RawMessage) (float64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return 0, fmt.Errorf("price %s: %w", raw, err)
		}
		s = n.String()
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("price %q: %w", s, err)
	}
	f, _ := d.Float64()
	return f, nil
}
