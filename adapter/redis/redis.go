// Package redis delivers run completion events through Redis.
//
// Events are JSON-encoded and either PUBLISHed to a pub/sub channel or
// appended to a stream with XADD, so consumers that were offline during the
// run can still pick them up.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/msgfmt/adapter"
)

// DefaultChannel is the default pub/sub channel or stream key.
const DefaultChannel = "msgfmt:run_completed"

// DefaultTimeout is the default per-publish timeout.
const DefaultTimeout = 5 * time.Second

// DefaultRetries is the default number of retry attempts.
const DefaultRetries = 3

// Mode selects the Redis delivery primitive.
type Mode string

const (
	// ModePublish sends events with PUBLISH (fire and forget).
	ModePublish Mode = "publish"
	// ModeStream appends events to a stream with XADD.
	ModeStream Mode = "stream"
)

// Config configures the Redis adapter.
type Config struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Channel is the pub/sub channel or stream key (default: msgfmt:run_completed).
	Channel string
	// Mode is publish (default) or stream.
	Mode Mode
	// MaxLen caps the stream length (approximate trim); 0 means unbounded.
	// Only used in stream mode.
	MaxLen int64
	// Timeout is the per-publish timeout (default 5s).
	Timeout time.Duration
	// Retries is the number of retry attempts on failure.
	Retries int
}

// Adapter delivers run completion events via Redis.
type Adapter struct {
	config Config
	client *goredis.Client
}

// New creates a Redis adapter from the given config.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter requires a URL")
	}

	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}

	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	switch cfg.Mode {
	case "":
		cfg.Mode = ModePublish
	case ModePublish, ModeStream:
	default:
		return nil, fmt.Errorf("redis adapter: unknown mode %q (want publish or stream)", cfg.Mode)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}

	return &Adapter{
		config: cfg,
		client: goredis.NewClient(opts),
	}, nil
}

// Publish delivers the event to the configured channel or stream.
func (a *Adapter) Publish(ctx context.Context, event *adapter.RunCompletedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}

	return adapter.Retry(ctx, "redis", a.config.Retries, func(ctx context.Context) error {
		publishCtx, cancel := context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
		return a.send(publishCtx, event, body)
	}, isClosed)
}

func (a *Adapter) send(ctx context.Context, event *adapter.RunCompletedEvent, body []byte) error {
	if a.config.Mode == ModePublish {
		return a.client.Publish(ctx, a.config.Channel, body).Err()
	}
	args := &goredis.XAddArgs{
		Stream: a.config.Channel,
		Values: map[string]any{
			"run_id":  event.RunID,
			"outcome": event.Outcome,
			"event":   string(body),
		},
	}
	if a.config.MaxLen > 0 {
		args.MaxLen = a.config.MaxLen
		args.Approx = true
	}
	return a.client.XAdd(ctx, args).Err()
}

// isClosed reports errors that no retry can fix.
func isClosed(err error) bool {
	return errors.Is(err, goredis.ErrClosed)
}

// Close releases adapter resources.
func (a *Adapter) Close() error {
	return a.client.Close()
}

// Verify Adapter implements the adapter interface.
var _ adapter.Adapter = (*Adapter)(nil)
