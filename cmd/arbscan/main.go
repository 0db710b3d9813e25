package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"arbscan/internal/api/rest"
	"arbscan/internal/backtest"
	"arbscan/internal/config"
	"arbscan/internal/infra/health"
	"arbscan/internal/infra/log"
	"arbscan/internal/infra/metrics"
	"arbscan/internal/infra/netutil"
	"arbscan/internal/infra/network"
	"arbscan/internal/infra/runner"
)

func main() {
	cfg, err := config.Load()
	logger := log.NewLogger(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("config load failed")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	if path := os.Getenv("ARB_BACKTEST_CSV"); path != "" {
		s, err := backtest.RunFile(path, backtest.Options{Scan: scanOptions(cfg), DiagonalEpsilon: cfg.Scan.DiagonalEpsilon})
		if err != nil {
			logger.Fatal().Err(err).Str("file", path).Msg("backtest failed")
		}
		ev := logger.Info().Str("file", path).Int("rows", s.Rows).Int("valid", s.Valid).Int("skipped", s.Skipped).
			Int("opportunities", s.Opportunities).Float64("ratio", s.Ratio())
		if s.Best.Found {
			ev = ev.Str("best_ts", s.BestTs).Str("best_cycle", s.Best.Cycle.String()).Float64("best_factor", s.Best.Factor)
		}
		ev.Msg("backtest complete")
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	registry := metrics.Init(logger)
	adminCIDRs, err := netutil.ParseCIDRs(cfg.Server.AdminAllowCIDRs)
	if err != nil {
		logger.Warn().Err(err).Msg("ignoring invalid admin cidrs")
	}
	board := rest.NewBoard(cfg.Scan.Investment)
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           buildMux(registry, board, adminCIDRs, cfg.Server.Pprof, logger),
		ReadHeaderTimeout: 2 * time.Second,
		ReadTimeout:       time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(cfg.Server.IdleTimeoutSeconds) * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	client := network.NewHTTPClient(network.DefaultTimeout)
	sink, closeSinks, err := newSinks(ctx, cfg, logger, client, board)
	if err != nil {
		logger.Fatal().Err(err).Msg("sink setup failed")
	}
	defer closeSinks()
	loops, err := newLoops(cfg, sink, logger, client)
	if err != nil {
		logger.Fatal().Err(err).Msg("scan loop setup failed")
	}

	g := runner.New(ctx)
	for _, l := range loops {
		g.Go(l.Run)
	}
	health.SetReady(true)
	logger.Info().Str("addr", cfg.Server.Addr).Int("groups", len(loops)).Msg("arbitrage scanner started")

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-g.Done():
		if err != nil {
			logger.Error().Err(err).Msg("worker error")
		}
	}

	health.SetReady(false)
	cancel()
	_ = g.Wait()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	logger.Info().Msg("shutdown complete")
}
