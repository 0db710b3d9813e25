package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"

	"arbscan/internal/report"
	"arbscan/internal/scanloop"
)

// Board is a scan sink that keeps the latest report of every group and
// serves them over HTTP.
type Board struct {
	mu         sync.RWMutex
	latest     map[string]report.Payload
	investment float64
}

func NewBoard(investment float64) *Board {
	return &Board{latest: map[string]report.Payload{}, investment: investment}
}

// Report stores a flattened copy, so nothing is shared with the loop.
func (b *Board) Report(ctx context.Context, r scanloop.Report) error {
	p := report.NewPayload(r, b.investment)
	b.mu.Lock()
	b.latest[p.Group] = p
	b.mu.Unlock()
	return nil
}

// Latest returns the stored reports ordered by group name.
func (b *Board) Latest() []report.Payload {
	b.mu.RLock()
	out := make([]report.Payload, 0, len(b.latest))
	for _, p := range b.latest {
		out = append(out, p)
	}
	b.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Group < out[j].Group })
	return out
}

func (b *Board) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/opportunities", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		latest := b.Latest()
		if r.URL.Query().Get("found") == "true" {
			filtered := latest[:0]
			for _, p := range latest {
				if p.Found {
					filtered = append(filtered, p)
				}
			}
			latest = filtered
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(latest)
	})
	return mux
}
