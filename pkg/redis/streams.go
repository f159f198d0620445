package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// StreamMessage is a single stream entry delivered to a consumer group.
type StreamMessage struct {
	ID     string
	Values map[string]string
}

// XAdd appends an entry to stream and returns the generated entry id.
func (c *Client) XAdd(ctx context.Context, stream string, values map[string]string) (string, error) {
	if c.store == nil {
		return "", errNotInitialized
	}
	fields := make(map[string]any, len(values))
	for k, v := range values {
		fields[k] = v
	}
	return c.store.XAdd(ctx, &redis.XAddArgs{Stream: stream, Values: fields}).Result()
}

// EnsureGroup creates the consumer group (and the stream) if it does not exist yet.
func (c *Client) EnsureGroup(ctx context.Context, stream, group string) error {
	if c.store == nil {
		return errNotInitialized
	}
	err := c.store.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// XReadGroup reads new entries for consumer. A block timeout with no entries returns an empty slice.
func (c *Client) XReadGroup(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]StreamMessage, error) {
	if c.store == nil {
		return nil, errNotInitialized
	}
	streams, err := c.store.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var out []StreamMessage
	for _, s := range streams {
		out = append(out, convertMessages(s.Messages)...)
	}
	return out, nil
}

// XAutoClaim transfers entries idle for at least minIdle to consumer.
func (c *Client) XAutoClaim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, count int64) ([]StreamMessage, error) {
	if c.store == nil {
		return nil, errNotInitialized
	}
	msgs, _, err := c.store.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   stream,
		Group:    group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Start:    "0-0",
		Count:    count,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	return convertMessages(msgs), nil
}

// XAck acknowledges processed entries.
func (c *Client) XAck(ctx context.Context, stream, group string, ids ...string) error {
	if c.store == nil {
		return errNotInitialized
	}
	if len(ids) == 0 {
		return nil
	}
	return c.store.XAck(ctx, stream, group, ids...).Err()
}

func convertMessages(in []redis.XMessage) []StreamMessage {
	out := make([]StreamMessage, 0, len(in))
	for _, msg := range in {
		values := make(map[string]string, len(msg.Values))
		for k, v := range msg.Values {
			if s, ok := v.(string); ok {
				values[k] = s
			}
		}
		out = append(out, StreamMessage{ID: msg.ID, Values: values})
	}
	return out
}
