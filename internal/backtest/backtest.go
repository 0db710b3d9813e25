package backtest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"arbscan/internal/rategraph"
	"arbscan/internal/scanner"
)

// CSV replay of recorded snapshots. The first column is a timestamp label;
// the others are either asset prices in a common unit (header "ETH,UNI,...")
// or direct pairwise rates (header "ETH/UNI,UNI/ETH,..."). Empty cells are
// missing quotes.
//
// Env var: ARB_BACKTEST_CSV=/path/to/file.csv

type Options struct {
	Scan            scanner.Options
	DiagonalEpsilon float64
}

type Summary struct {
	Rows          int
	Valid         int
	Skipped       int
	Opportunities int
	// BestTs and Best describe the most profitable row.
	BestTs string
	Best   scanner.Result
}

func RunFile(path string, opts Options) (Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return Summary{}, err
	}
	defer f.Close()
	return Run(f, opts)
}

type layout struct {
	assets []rategraph.Asset
	prices []rategraph.Asset // per column, price layout
	pairs  []rategraph.Pair  // per column, pairwise layout
}

func parseHeader(header []string) (layout, error) {
	var l layout
	if len(header) < 2 {
		return l, fmt.Errorf("backtest: header needs a timestamp and at least one quote column")
	}
	cols := header[1:]
	pairwise := strings.Contains(cols[0], "/")
	seen := map[rategraph.Asset]struct{}{}
	add := func(a rategraph.Asset) {
		if _, ok := seen[a]; !ok {
			seen[a] = struct{}{}
			l.assets = append(l.assets, a)
		}
	}
	for _, c := range cols {
		c = strings.TrimSpace(c)
		if strings.Contains(c, "/") != pairwise {
			return l, fmt.Errorf("backtest: column %q mixes price and pair layouts", c)
		}
		if !pairwise {
			a := rategraph.Asset(c)
			if _, dup := seen[a]; dup {
				return l, fmt.Errorf("backtest: %w: %q", rategraph.ErrDuplicateAsset, c)
			}
			add(a)
			l.prices = append(l.prices, a)
			continue
		}
		from, to, _ := strings.Cut(c, "/")
		p := rategraph.Pair{From: rategraph.Asset(from), To: rategraph.Asset(to)}
		add(p.From)
		add(p.To)
		l.pairs = append(l.pairs, p)
	}
	return l, nil
}

func (l layout) graph(rec []string, opts Options) (*rategraph.Graph, error) {
	eps := rategraph.WithDiagonalEpsilon(opts.DiagonalEpsilon)
	if l.pairs == nil {
		prices := make(map[rategraph.Asset]float64, len(l.prices))
		for i, a := range l.prices {
			if v, ok, err := cell(rec, i+1); err != nil {
				return nil, err
			} else if ok {
				prices[a] = v
			}
		}
		return rategraph.FromPrices(l.assets, prices, eps)
	}
	rates := make(map[rategraph.Pair]float64, len(l.pairs)+len(l.assets))
	for _, a := range l.assets {
		rates[rategraph.Pair{From: a, To: a}] = 1.0
	}
	for i, p := range l.pairs {
		if v, ok, err := cell(rec, i+1); err != nil {
			return nil, err
		} else if ok {
			rates[p] = v
		}
	}
	return rategraph.New(l.assets, rates, eps)
}

func cell(rec []string, i int) (float64, bool, error) {
	if i >= len(rec) || strings.TrimSpace(rec[i]) == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
	if err != nil {
		return 0, false, fmt.Errorf("%w: column %d: %v", rategraph.ErrInvalidRate, i, err)
	}
	return v, true, nil
}

// Run replays every row through the graph builder and the scanner. Rows that
// do not form a valid graph are counted as skipped, as a live tick would be.
func Run(r io.Reader, opts Options) (Summary, error) {
	var s Summary
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err == io.EOF {
		return s, fmt.Errorf("backtest: empty input")
	}
	if err != nil {
		return s, err
	}
	l, err := parseHeader(header)
	if err != nil {
		return s, err
	}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return s, err
		}
		s.Rows++
		g, err := l.graph(rec, opts)
		if err != nil {
			if errors.Is(err, rategraph.ErrInvalidRate) {
				s.Skipped++
				continue
			}
			return s, err
		}
		res, err := scanner.FindOpportunity(g, opts.Scan)
		if err != nil {
			return s, err
		}
		s.Valid++
		if !res.Found {
			continue
		}
		s.Opportunities++
		if !s.Best.Found || res.Factor > s.Best.Factor {
			s.Best = res
			s.BestTs = rec[0]
		}
	}
	return s, nil
}

// Ratio is the share of valid rows with an opportunity.
func (s Summary) Ratio() float64 {
	if s.Valid == 0 {
		return 0
	}
	return float64(s.Opportunities) / float64(s.Valid)
}
