package pricesource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"arbscan/internal/rategraph"
)

const subgraphName = "subgraph"

// Subgraph reads token prices denominated in ETH (derivedETH) from a Uniswap
// v3 subgraph GraphQL endpoint.
type Subgraph struct {
	url     string
	http    *http.Client
	limiter *rate.Limiter
}

func NewSubgraph(url string, rps float64, client *http.Client) *Subgraph {
	return &Subgraph{url: url, http: client, limiter: newLimiter(rps)}
}

type subgraphResponse struct {
	Data struct {
		Tokens []struct {
			Symbol     string          `json:"symbol"`
			DerivedETH json.RawMessage `json:"derivedETH"`
		} `json:"tokens"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func subgraphQuery(assets []rategraph.Asset) string {
	quoted := make([]string, len(assets))
	for i, a := range assets {
		b, _ := json.Marshal(string(a))
		quoted[i] = string(b)
	}
	return fmt.Sprintf(`{ tokens(where: {symbol_in: [%s]}) { symbol derivedETH } }`, strings.Join(quoted, ", "))
}

// FetchPrices returns the ETH price of every asset the subgraph knows.
// Symbols match case-insensitively; when several tokens share a symbol the
// first one returned wins. Unknown assets are left out of the result.
func (s *Subgraph) FetchPrices(ctx context.Context, assets []rategraph.Asset) (map[rategraph.Asset]float64, error) {
	body, err := json.Marshal(map[string]string{"query": subgraphQuery(assets)})
	if err != nil {
		return nil, fetchErr(subgraphName, "tokens", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, fetchErr(subgraphName, "tokens", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var out subgraphResponse
	if err := doJSON(s.http, s.limiter, subgraphName, "tokens", req, &out); err != nil {
		return nil, err
	}
	if len(out.Errors) > 0 {
		return nil, fetchErr(subgraphName, "tokens", fmt.Errorf("graphql: %s", out.Errors[0].Message))
	}

	bySymbol := make(map[string]rategraph.Asset, len(assets))
	for _, a := range assets {
		bySymbol[strings.ToUpper(string(a))] = a
	}
	prices := make(map[rategraph.Asset]float64, len(assets))
	for _, tok := range out.Data.Tokens {
		a, ok := bySymbol[strings.ToUpper(tok.Symbol)]
		if !ok {
			continue
		}
		if _, seen := prices[a]; seen {
			continue
		}
		p, err := parsePrice(tok.DerivedETH)
		if err != nil {
			return nil, fetchErr(subgraphName, "tokens", err)
		}
		prices[a] = p
	}
	return prices, nil
}
