package health

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ready atomic.Bool

	mu        sync.RWMutex
	lastTicks = map[string]time.Time{}
)

// SetReady marks readiness state
func SetReady(v bool) { ready.Store(v) }

// Ready returns current readiness
func Ready() bool { return ready.Load() }

// MarkTick records the last successful scan of a group.
func MarkTick(group string, at time.Time) {
	mu.Lock()
	lastTicks[group] = at
	mu.Unlock()
}

// LastTicks returns a copy of the last successful scan time per group.
func LastTicks() map[string]time.Time {
	mu.RLock()
	defer mu.RUnlock()
	out := make(map[string]time.Time, len(lastTicks))
	for k, v := range lastTicks {
		out[k] = v
	}
	return out
}

// Healthz is a simple liveness probe
func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Readyz reflects readiness and lists the last successful tick per group.
func Readyz(w http.ResponseWriter, r *http.Request) {
	if !Ready() {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(struct {
		Status    string               `json:"status"`
		LastTicks map[string]time.Time `json:"last_ticks"`
	}{Status: "ready", LastTicks: LastTicks()})
}
