// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package fanout

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

type redisTransport struct {
	client *redis.Client
	owned  bool
}

// NewRedis creates a bus on Redis PUBLISH/SUBSCRIBE using a borrowed client.
func NewRedis(client *redis.Client, opts Options) *Notifier {
	return newNotifier("redis", &redisTransport{client: client}, 0, opts)
}

// NewRedisURL creates a bus that owns a client for url (redis://host:port/db).
func NewRedisURL(url string, opts Options) (*Notifier, error) {
	ro, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return newNotifier("redis", &redisTransport{client: redis.NewClient(ro), owned: true}, 0, opts), nil
}

func (t *redisTransport) send(ctx context.Context, ch Channel, data []byte) error {
	return t.client.Publish(ctx, topicFor(ch), data).Err()
}

func (t *redisTransport) listen(ctx context.Context, channels []Channel, ready func(), deliver func(Channel, []byte)) error {
	topics := make([]string, len(channels))
	for i, ch := range channels {
		topics[i] = topicFor(ch)
	}

	ps := t.client.Subscribe(ctx, topics...)
	defer func() { _ = ps.Close() }()

	// Wait for the subscription confirmation before reporting ready.
	if _, err := ps.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribe: %w", err)
	}
	ready()

	for {
		msg, err := ps.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("receive: %w", err)
		}
		deliver(Channel(strings.TrimPrefix(msg.Channel, topicPrefix)), []byte(msg.Payload))
	}
}

func (t *redisTransport) close() error {
	if t.owned {
		return t.client.Close()
	}
	return nil
}
