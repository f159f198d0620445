package queue

import (
	"context"
	"errors"
)

// Producer appends job messages to the queue.
type Producer interface {
	Enqueue(ctx context.Context, msg Message) (string, error)
}

type streamAppender interface {
	XAdd(ctx context.Context, stream string, values map[string]string) (string, error)
}

// StreamProducer publishes to a Redis stream.
type StreamProducer struct {
	client streamAppender
	stream string
}

func NewStreamProducer(client streamAppender, stream string) (*StreamProducer, error) {
	if client == nil {
		return nil, errors.New("stream client required")
	}
	if stream == "" {
		return nil, errors.New("stream name required")
	}
	return &StreamProducer{client: client, stream: stream}, nil
}

func (p *StreamProducer) Enqueue(ctx context.Context, msg Message) (string, error) {
	return p.client.XAdd(ctx, p.stream, msg.Values())
}
