package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/dropship-central/pkg/logger"
	pkgredis "github.com/angelmondragon/dropship-central/pkg/redis"
)

const (
	defaultBatchSize = 10
	defaultBlock     = 5 * time.Second
	defaultClaimIdle = 2 * time.Minute
	baseBackoff      = 500 * time.Millisecond
	maxBackoff       = 10 * time.Second
)

// Handler processes one delivered message. Returning nil or a Permanent error
// acknowledges the entry; any other error leaves it pending for redelivery.
type Handler interface {
	Handle(ctx context.Context, msg Message) error
}

// HandlerFunc adapts a function into a Handler.
type HandlerFunc func(ctx context.Context, msg Message) error

func (f HandlerFunc) Handle(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

type streamReader interface {
	EnsureGroup(ctx context.Context, stream, group string) error
	XReadGroup(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]pkgredis.StreamMessage, error)
	XAutoClaim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, count int64) ([]pkgredis.StreamMessage, error)
	XAck(ctx context.Context, stream, group string, ids ...string) error
}

type ConsumerConfig struct {
	Stream    string
	Group     string
	Consumer  string
	BatchSize int
	Block     time.Duration
	ClaimIdle time.Duration
}

// Consumer reads job messages through a Redis consumer group.
type Consumer struct {
	client streamReader
	cfg    ConsumerConfig
	logg   *logger.Logger
}

func NewConsumer(client streamReader, cfg ConsumerConfig, logg *logger.Logger) (*Consumer, error) {
	if client == nil {
		return nil, errors.New("stream client required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	if cfg.Stream == "" || cfg.Group == "" || cfg.Consumer == "" {
		return nil, errors.New("stream, group and consumer names required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Block <= 0 {
		cfg.Block = defaultBlock
	}
	if cfg.ClaimIdle <= 0 {
		cfg.ClaimIdle = defaultClaimIdle
	}
	return &Consumer{client: client, cfg: cfg, logg: logg}, nil
}

// Run polls until ctx is cancelled. Redis failures back off instead of returning.
func (c *Consumer) Run(ctx context.Context, h Handler) error {
	if h == nil {
		return errors.New("handler required")
	}
	if err := c.client.EnsureGroup(ctx, c.cfg.Stream, c.cfg.Group); err != nil {
		return fmt.Errorf("ensure consumer group: %w", err)
	}

	fields := map[string]any{
		"stream":   c.cfg.Stream,
		"group":    c.cfg.Group,
		"consumer": c.cfg.Consumer,
	}
	c.logg.Info(c.logg.WithFields(ctx, fields), "queue consumer started")

	var backoff time.Duration
	for {
		if ctx.Err() != nil {
			return nil
		}
		if _, err := c.Poll(ctx, h); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			backoff = NextBackoff(backoff, baseBackoff, maxBackoff)
			c.logg.Error(c.logg.WithField(ctx, "backoff", backoff.String()), "queue poll failed", err)
			if err := Sleep(ctx, WithJitter(backoff)); err != nil {
				return nil
			}
			continue
		}
		backoff = 0
	}
}

// Poll reclaims stale entries, then reads new ones, and handles both.
// It returns the number of entries handled.
func (c *Consumer) Poll(ctx context.Context, h Handler) (int, error) {
	count := int64(c.cfg.BatchSize)

	claimed, err := c.client.XAutoClaim(ctx, c.cfg.Stream, c.cfg.Group, c.cfg.Consumer, c.cfg.ClaimIdle, count)
	if err != nil {
		return 0, fmt.Errorf("autoclaim: %w", err)
	}
	handled, err := c.process(ctx, h, claimed)
	if err != nil {
		return handled, err
	}

	fresh, err := c.client.XReadGroup(ctx, c.cfg.Stream, c.cfg.Group, c.cfg.Consumer, count, c.cfg.Block)
	if err != nil {
		return handled, fmt.Errorf("read group: %w", err)
	}
	n, err := c.process(ctx, h, fresh)
	return handled + n, err
}

func (c *Consumer) process(ctx context.Context, h Handler, entries []pkgredis.StreamMessage) (int, error) {
	handled := 0
	for _, entry := range entries {
		entryCtx := c.logg.WithField(ctx, "entry_id", entry.ID)

		msg, err := Decode(entry.ID, entry.Values)
		if err != nil {
			c.logg.Error(entryCtx, "dropping malformed queue entry", err)
			if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, entry.ID); err != nil {
				return handled, fmt.Errorf("ack %s: %w", entry.ID, err)
			}
			continue
		}

		entryCtx = c.logg.WithJobID(entryCtx, msg.JobID.String())
		entryCtx = c.logg.WithField(entryCtx, "kind", msg.Kind.String())

		handleErr := h.Handle(entryCtx, msg)
		handled++
		switch {
		case handleErr == nil:
		case IsPermanent(handleErr):
			c.logg.Error(entryCtx, "job failed permanently", handleErr)
		default:
			c.logg.Warn(entryCtx, fmt.Sprintf("job left pending for redelivery: %v", handleErr))
			continue
		}

		if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, entry.ID); err != nil {
			return handled, fmt.Errorf("ack %s: %w", entry.ID, err)
		}
	}
	return handled, nil
}
