// Package redis broadcasts run completion notifications over Redis.
//
// Each finished run is PUBLISHed as JSON to a channel and also written
// to a companion <channel>:last key with a TTL, so consumers that
// subscribe after the run can still read the most recent completion.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/imagine/adapter"
)

// DefaultChannel is the default pub/sub channel name.
const DefaultChannel = "imagine:run_completed"

// DefaultTimeout is the default per-publish timeout.
const DefaultTimeout = 5 * time.Second

// DefaultRetries is the default number of retry attempts.
const DefaultRetries = 3

// DefaultLastTTL is the default expiry on the last-completion key.
const DefaultLastTTL = 24 * time.Hour

// Config configures the Redis pub/sub adapter.
type Config struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Channel is the pub/sub channel name (default: imagine:run_completed).
	Channel string
	// Timeout is the per-publish timeout (default 5s).
	Timeout time.Duration
	// Retries is the number of retry attempts on failure (default 3).
	Retries int
	// LastTTL is the expiry on the <channel>:last key (default 24h).
	LastTTL time.Duration
}

// Adapter publishes run completion events via Redis.
type Adapter struct {
	channel string
	timeout time.Duration
	retries int
	lastTTL time.Duration
	client  *goredis.Client
}

// New creates a Redis pub/sub adapter from the given config.
// Returns an error if the URL is empty or invalid.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter requires a URL")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}

	a := &Adapter{
		channel: cfg.Channel,
		timeout: cfg.Timeout,
		retries: cfg.Retries,
		lastTTL: cfg.LastTTL,
		client:  goredis.NewClient(opts),
	}
	if a.channel == "" {
		a.channel = DefaultChannel
	}
	if a.timeout <= 0 {
		a.timeout = DefaultTimeout
	}
	if a.lastTTL <= 0 {
		a.lastTTL = DefaultLastTTL
	}
	return a, nil
}

// Channel returns the pub/sub channel the adapter publishes to.
func (a *Adapter) Channel() string { return a.channel }

// LastKey returns the key holding the most recent completion payload.
func (a *Adapter) LastKey() string { return a.channel + ":last" }

// Publish broadcasts the event and records it under LastKey. Both
// writes go through one transaction, so subscribers and late readers
// never see different completions.
func (a *Adapter) Publish(ctx context.Context, event *adapter.RunCompletedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: encode event: %w", err)
	}

	err = adapter.PublishWithRetry(ctx, a.retries, func(ctx context.Context) error {
		opCtx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()

		pipe := a.client.TxPipeline()
		pipe.Publish(opCtx, a.channel, body)
		pipe.Set(opCtx, a.LastKey(), body, a.lastTTL)
		_, err := pipe.Exec(opCtx)
		return err
	})
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}

// Close releases adapter resources.
func (a *Adapter) Close() error {
	return a.client.Close()
}

// Verify Adapter implements the adapter interface.
var _ adapter.Adapter = (*Adapter)(nil)
