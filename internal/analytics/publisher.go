// Package analytics provides ping capture, processing and KPI calculation.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pagepulse/pagepulse/internal/metrics"
)

const (
	// StreamKey is the Redis stream for event pings.
	StreamKey = "stream:pings"

	// DeadLetterStreamKey is the Redis stream for poison messages.
	DeadLetterStreamKey = "stream:pings:dlq"

	// MaxStreamLen is the approximate max length of the stream.
	MaxStreamLen = 100000

	// PublishTimeout is the max time to wait for Redis publish.
	PublishTimeout = 100 * time.Millisecond
)

// PingPayload is the compressed ping format for the Redis stream.
// CreatedAt is the authoritative server time assigned at accept (or an
// admin-supplied backfill time); the client timestamp stays opaque.
type PingPayload struct {
	IP         string `json:"ip"`
	Type       string `json:"t"`
	Target     string `json:"tg,omitempty"`
	Page       string `json:"p"`
	StayTimeMs int64  `json:"st,omitempty"`
	ClientTS   int64  `json:"ts,omitempty"` // client-supplied, Unix millis
	CreatedAt  int64  `json:"at"`           // server-assigned, Unix millis

	// Trusted backfill profile. Set only for admin-authenticated synthetic
	// data; the worker skips the geo lookup when Country is present.
	Country string `json:"co,omitempty"`
	Region  string `json:"rg,omitempty"`
	City    string `json:"ci,omitempty"`
}

// Publisher enqueues event pings to the Redis stream.
type Publisher struct {
	redis   *redis.Client
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewPublisher creates a new ping publisher.
func NewPublisher(client *redis.Client, logger *slog.Logger, recorder metrics.Recorder) *Publisher {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Publisher{
		redis:   client,
		logger:  logger.With("component", "analytics.publisher"),
		metrics: recorder,
	}
}

// Publish adds a ping to the stream synchronously.
func (p *Publisher) Publish(ctx context.Context, ping PingPayload) (string, error) {
	data, err := json.Marshal(ping)
	if err != nil {
		return "", fmt.Errorf("marshal ping: %w", err)
	}

	result, err := p.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: MaxStreamLen,
		Approx: true, // ~MAXLEN for performance
		ID:     "*",  // Auto-generate ID
		Values: map[string]interface{}{
			"payload": string(data),
		},
	}).Result()

	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}

	return result, nil
}

// PublishAsync publishes without blocking the caller.
// Errors are logged but not returned (fire-and-forget).
func (p *Publisher) PublishAsync(ping PingPayload) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), PublishTimeout)
		defer cancel()

		streamID, err := p.Publish(ctx, ping)
		if err != nil {
			p.logger.Warn("failed to publish ping",
				"page", ping.Page,
				"error", err,
			)
			p.metrics.IncPingPublished("dropped")
			return
		}

		p.logger.Debug("ping published",
			"page", ping.Page,
			"stream_id", streamID,
		)
		p.metrics.IncPingPublished("success")
	}()
}

// NormalizeIP canonicalizes an IP string (strips port and brackets).
// Returns empty string when the value is not an IP address.
func NormalizeIP(remoteAddr string) string {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return ""
	}
	return ip.String()
}

// TruncateMeta bounds free-form ping fields to max 500 chars.
func TruncateMeta(s string) string {
	if len(s) > 500 {
		return s[:500]
	}
	return s
}
