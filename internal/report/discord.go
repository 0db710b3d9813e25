package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"arbscan/internal/infra/metrics"
	"arbscan/internal/scanloop"
)

// DiscordSink posts opportunities to a Discord webhook.
type DiscordSink struct {
	webhookURL string
	client     *http.Client
	investment float64
}

func NewDiscordSink(webhookURL string, client *http.Client, investment float64) *DiscordSink {
	return &DiscordSink{webhookURL: webhookURL, client: client, investment: investment}
}

func (d *DiscordSink) Report(ctx context.Context, r scanloop.Report) error {
	if !r.Result.Found {
		return nil
	}
	body, err := json.Marshal(map[string]string{
		"content": "**Arbitrage opportunity**\n" + Format(NewPayload(r, d.investment)),
	})
	if err != nil {
		return fmt.Errorf("discord: marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord: send request: %w", err)
	}
	defer resp.Body.Close()
	// 204 No Content on success
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("discord: unexpected status %d: %s", resp.StatusCode, respBody)
	}
	metrics.SinkDeliveredTotal.WithLabelValues("discord").Inc()
	return nil
}
