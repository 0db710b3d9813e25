package report

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/redis/go-redis/v9"

	"arbscan/internal/infra/metrics"
	"arbscan/internal/scanloop"
)

// Publisher is the subset of *redis.Client used by RedisSink.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisSink publishes opportunities as JSON on a pub/sub channel.
type RedisSink struct {
	pub        Publisher
	channel    string
	investment float64
}

func NewRedisSink(pub Publisher, channel string, investment float64) *RedisSink {
	return &RedisSink{pub: pub, channel: channel, investment: investment}
}

type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	TLSEnabled bool
}

// DialRedis connects and pings before returning the client.
func DialRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return rdb, nil
}

func (s *RedisSink) Report(ctx context.Context, r scanloop.Report) error {
	if !r.Result.Found {
		return nil
	}
	body, err := NewPayload(r, s.investment).JSON()
	if err != nil {
		return fmt.Errorf("redis: marshal report: %w", err)
	}
	if err := s.pub.Publish(ctx, s.channel, body).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", s.channel, err)
	}
	metrics.SinkDeliveredTotal.WithLabelValues("redis").Inc()
	return nil
}
