package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"arbscan/internal/config"
	"arbscan/internal/infra/log"
	"arbscan/internal/pricesource"
	"arbscan/internal/rategraph"
	"arbscan/internal/report"
	"arbscan/internal/scanloop"
	"arbscan/internal/scanner"
)

func scanOptions(cfg config.Config) scanner.Options {
	return scanner.Options{
		MinCycleLength: cfg.Scan.MinCycleLength,
		MaxCycleLength: cfg.Scan.MaxCycleLength,
		MinProfitBps:   cfg.Scan.MinProfitBps,
	}
}

func newSource(cfg config.Config, g config.Group, client *http.Client) (scanloop.PriceSource, error) {
	switch g.Source {
	case config.SourceSubgraph:
		return pricesource.NewSubgraph(cfg.Sources.Subgraph.URL, cfg.Sources.Subgraph.RequestsPerSecond, client), nil
	case config.SourceJupiter:
		j := cfg.Sources.Jupiter
		return pricesource.NewJupiter(j.BaseURL, j.VsToken, j.TokenIDs, j.RequestsPerSecond, client), nil
	case config.SourceBinance:
		b := cfg.Sources.Binance
		return pricesource.NewBinance(b.BaseURL, b.Quote, b.Markets, b.RequestsPerSecond, client)
	case config.SourceStatic:
		return pricesource.NewStatic(cfg.Sources.Static.Prices), nil
	}
	return nil, fmt.Errorf("group %q: unknown source %q", g.Name, g.Source)
}

// newSinks always logs; redis and discord are added when configured. The
// returned cleanup closes connections.
func newSinks(ctx context.Context, cfg config.Config, logger log.Logger, client *http.Client, extra ...scanloop.Sink) (scanloop.Sink, func(), error) {
	sinks := report.Multi{report.NewLogSink(logger, cfg.Scan.Investment)}
	cleanup := func() {}
	if cfg.Sinks.Redis.Enabled {
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		rdb, err := report.DialRedis(dialCtx, report.RedisConfig{
			Addr:       cfg.Sinks.Redis.Addr,
			Password:   cfg.Sinks.Redis.Password,
			DB:         cfg.Sinks.Redis.DB,
			TLSEnabled: cfg.Sinks.Redis.TLS,
		})
		cancel()
		if err != nil {
			return nil, cleanup, err
		}
		cleanup = func() { _ = rdb.Close() }
		sinks = append(sinks, report.NewRedisSink(rdb, cfg.Sinks.Redis.Channel, cfg.Scan.Investment))
		logger.Info().Str("addr", cfg.Sinks.Redis.Addr).Str("channel", cfg.Sinks.Redis.Channel).Msg("redis sink enabled")
	}
	if cfg.Sinks.Discord.WebhookURL != "" {
		sinks = append(sinks, report.NewDiscordSink(cfg.Sinks.Discord.WebhookURL, client, cfg.Scan.Investment))
		logger.Info().Msg("discord sink enabled")
	}
	sinks = append(sinks, extra...)
	return sinks, cleanup, nil
}

// newLoops builds one independent loop per enabled group.
func newLoops(cfg config.Config, sink scanloop.Sink, logger log.Logger, client *http.Client) ([]*scanloop.Loop, error) {
	var loops []*scanloop.Loop
	for _, g := range cfg.Groups {
		if !g.Enabled {
			continue
		}
		src, err := newSource(cfg, g, client)
		if err != nil {
			return nil, err
		}
		l, err := scanloop.New(scanloop.Config{
			Group:           g.Name,
			Assets:          rategraph.Symbols(g.Assets...),
			Interval:        time.Duration(cfg.Interval(g)) * time.Second,
			Scan:            scanOptions(cfg),
			DiagonalEpsilon: cfg.Scan.DiagonalEpsilon,
			PreferRates:     g.Pairwise,
		}, src, sink, logger)
		if err != nil {
			return nil, err
		}
		loops = append(loops, l)
	}
	return loops, nil
}
