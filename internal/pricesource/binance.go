package pricesource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"

	"arbscan/internal/rategraph"
)

const binanceName = "binance"

// Binance quotes spot markets through the public bookTicker endpoint.
// Markets maps "BASE/QUOTE" to the exchange symbol, e.g. "ETH/BTC": "ETHBTC".
type Binance struct {
	baseURL string
	quote   rategraph.Asset
	markets map[rategraph.Pair]string
	http    *http.Client
	limiter *rate.Limiter
}

func NewBinance(baseURL, quote string, markets map[string]string, rps float64, client *http.Client) (*Binance, error) {
	m := make(map[rategraph.Pair]string, len(markets))
	for name, sym := range markets {
		base, q, ok := strings.Cut(name, "/")
		if !ok || base == "" || q == "" || base == q {
			return nil, fmt.Errorf("binance: market %q is not BASE/QUOTE", name)
		}
		m[rategraph.Pair{From: rategraph.Asset(base), To: rategraph.Asset(q)}] = sym
	}
	return &Binance{
		baseURL: strings.TrimRight(baseURL, "/"),
		quote:   rategraph.Asset(quote),
		markets: m,
		http:    client,
		limiter: newLimiter(rps),
	}, nil
}

type book struct{ bid, ask float64 }

type bookTicker struct {
	Symbol   string          `json:"symbol"`
	BidPrice json.RawMessage `json:"bidPrice"`
	AskPrice json.RawMessage `json:"askPrice"`
}

func (b *Binance) ticker(ctx context.Context, symbol string) (book, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/api/v3/ticker/bookTicker?"+q.Encode(), nil)
	if err != nil {
		return book{}, fetchErr(binanceName, "bookTicker", err)
	}
	var t bookTicker
	if err := doJSON(b.http, b.limiter, binanceName, "bookTicker", req, &t); err != nil {
		return book{}, err
	}
	bid, err := parsePrice(t.BidPrice)
	if err != nil {
		return book{}, fetchErr(binanceName, "bookTicker", err)
	}
	ask, err := parsePrice(t.AskPrice)
	if err != nil {
		return book{}, fetchErr(binanceName, "bookTicker", err)
	}
	return book{bid: bid, ask: ask}, nil
}

// FetchPrices prices each asset at the mid of its market against the quote
// asset, which is priced at 1. Assets without such a market are omitted.
func (b *Binance) FetchPrices(ctx context.Context, assets []rategraph.Asset) (map[rategraph.Asset]float64, error) {
	out := make(map[rategraph.Asset]float64, len(assets))
	for _, a := range assets {
		if a == b.quote {
			out[a] = 1
			continue
		}
		sym, ok := b.markets[rategraph.Pair{From: a, To: b.quote}]
		if !ok {
			continue
		}
		t, err := b.ticker(ctx, sym)
		if err != nil {
			return nil, err
		}
		out[a] = (t.bid + t.ask) / 2
	}
	return out, nil
}

// FetchRates quotes every ordered pair from the top of book: selling base
// for quote earns the bid, buying base with quote costs the ask. Each listed
// market is requested once per call.
func (b *Binance) FetchRates(ctx context.Context, assets []rategraph.Asset) (map[rategraph.Pair]float64, error) {
	books := map[string]book{}
	get := func(sym string) (book, error) {
		if t, ok := books[sym]; ok {
			return t, nil
		}
		t, err := b.ticker(ctx, sym)
		if err != nil {
			return book{}, err
		}
		books[sym] = t
		return t, nil
	}
	out := make(map[rategraph.Pair]float64, len(assets)*len(assets))
	for _, from := range assets {
		for _, to := range assets {
			p := rategraph.Pair{From: from, To: to}
			if from == to {
				out[p] = 1.0
				continue
			}
			if sym, ok := b.markets[p]; ok {
				t, err := get(sym)
				if err != nil {
					return nil, err
				}
				out[p] = t.bid
				continue
			}
			if sym, ok := b.markets[rategraph.Pair{From: to, To: from}]; ok {
				t, err := get(sym)
				if err != nil {
					return nil, err
				}
				if t.ask > 0 {
					out[p] = 1 / t.ask
				}
			}
		}
	}
	return out, nil
}
