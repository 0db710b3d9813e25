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

const jupiterName = "jupiter"

// Jupiter quotes Solana tokens through the Jupiter price API. Assets map to
// mint addresses; prices are denominated in the vsToken mint.
type Jupiter struct {
	baseURL string
	vsToken string
	ids     map[rategraph.Asset]string
	http    *http.Client
	limiter *rate.Limiter
}

func NewJupiter(baseURL, vsToken string, tokenIDs map[string]string, rps float64, client *http.Client) *Jupiter {
	ids := make(map[rategraph.Asset]string, len(tokenIDs))
	for sym, id := range tokenIDs {
		ids[rategraph.Asset(sym)] = id
	}
	return &Jupiter{
		baseURL: strings.TrimRight(baseURL, "/"),
		vsToken: vsToken,
		ids:     ids,
		http:    client,
		limiter: newLimiter(rps),
	}
}

type jupiterResponse struct {
	Data map[string]struct {
		ID    string          `json:"id"`
		Price json.RawMessage `json:"price"`
	} `json:"data"`
}

func (j *Jupiter) price(ctx context.Context, ids []string, vsToken string) (map[string]float64, error) {
	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	q.Set("vsToken", vsToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, j.baseURL+"/price?"+q.Encode(), nil)
	if err != nil {
		return nil, fetchErr(jupiterName, "price", err)
	}
	var out jupiterResponse
	if err := doJSON(j.http, j.limiter, jupiterName, "price", req, &out); err != nil {
		return nil, err
	}
	prices := make(map[string]float64, len(out.Data))
	for id, d := range out.Data {
		if len(d.Price) == 0 || string(d.Price) == "null" {
			continue
		}
		p, err := parsePrice(d.Price)
		if err != nil {
			return nil, fetchErr(jupiterName, "price", err)
		}
		prices[id] = p
	}
	return prices, nil
}

func (j *Jupiter) mint(a rategraph.Asset) (string, error) {
	id, ok := j.ids[a]
	if !ok {
		return "", fmt.Errorf("%w: jupiter: no token id for %s", ErrPriceFetch, a)
	}
	return id, nil
}

// FetchPrices quotes all assets against vsToken in a single request. The
// vsToken asset itself is priced at 1.
func (j *Jupiter) FetchPrices(ctx context.Context, assets []rategraph.Asset) (map[rategraph.Asset]float64, error) {
	ids := make([]string, 0, len(assets))
	for _, a := range assets {
		id, err := j.mint(a)
		if err != nil {
			return nil, err
		}
		if id != j.vsToken {
			ids = append(ids, id)
		}
	}
	byID := map[string]float64{}
	if len(ids) > 0 {
		var err error
		if byID, err = j.price(ctx, ids, j.vsToken); err != nil {
			return nil, err
		}
	}
	out := make(map[rategraph.Asset]float64, len(assets))
	for _, a := range assets {
		id := j.ids[a]
		if id == j.vsToken {
			out[a] = 1
			continue
		}
		if p, ok := byID[id]; ok {
			out[a] = p
		}
	}
	return out, nil
}

// FetchRates quotes every ordered pair directly, one request per pair:
// rate(i, j) is the price of i denominated in j.
func (j *Jupiter) FetchRates(ctx context.Context, assets []rategraph.Asset) (map[rategraph.Pair]float64, error) {
	out := make(map[rategraph.Pair]float64, len(assets)*len(assets))
	for _, from := range assets {
		fromID, err := j.mint(from)
		if err != nil {
			return nil, err
		}
		for _, to := range assets {
			if from == to {
				out[rategraph.Pair{From: from, To: to}] = 1.0
				continue
			}
			toID, err := j.mint(to)
			if err != nil {
				return nil, err
			}
			prices, err := j.price(ctx, []string{fromID}, toID)
			if err != nil {
				return nil, err
			}
			if p, ok := prices[fromID]; ok {
				out[rategraph.Pair{From: from, To: to}] = p
			}
		}
	}
	return out, nil
}
