package main

import (
	"net"
	"net/http"
	"net/http/pprof"

	"github.com/prometheus/client_golang/prometheus"

	"arbscan/internal/api/rest"
	"arbscan/internal/infra/health"
	"arbscan/internal/infra/http/middleware"
	"arbscan/internal/infra/log"
	"arbscan/internal/infra/metrics"
	"arbscan/internal/infra/version"
)

// buildMux wires admin endpoints (metrics, pprof) behind the CIDR gate and
// the public probes and result board.
func buildMux(reg *prometheus.Registry, board *rest.Board, adminCIDRs []*net.IPNet, withPprof bool, logger log.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", middleware.AdminGate(adminCIDRs, metrics.Handler(reg)))
	mux.HandleFunc("/healthz", health.Healthz)
	mux.HandleFunc("/readyz", health.Readyz)
	mux.HandleFunc("/version", version.Handler)
	boardHandler := board.Handler()
	mux.Handle("/opportunities", boardHandler)
	mux.Handle("/status", boardHandler)
	if withPprof {
		mux.Handle("/debug/pprof/", middleware.AdminGate(adminCIDRs, http.HandlerFunc(pprof.Index)))
		mux.Handle("/debug/pprof/cmdline", middleware.AdminGate(adminCIDRs, http.HandlerFunc(pprof.Cmdline)))
		mux.Handle("/debug/pprof/profile", middleware.AdminGate(adminCIDRs, http.HandlerFunc(pprof.Profile)))
		mux.Handle("/debug/pprof/symbol", middleware.AdminGate(adminCIDRs, http.HandlerFunc(pprof.Symbol)))
		mux.Handle("/debug/pprof/trace", middleware.AdminGate(adminCIDRs, http.HandlerFunc(pprof.Trace)))
	}
	return middleware.RequestID(middleware.Logger(logger)(mux))
}
