// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package fanout

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/parley/internal/logging"
)

// topicPrefix namespaces channels on shared brokers.
const topicPrefix = "parley."

func topicFor(ch Channel) string { return topicPrefix + string(ch) }

func watermillLogger() watermill.LoggerAdapter {
	return watermill.NewSlogLogger(logging.NewComponentSlogLogger("fanout"))
}

func publishWatermill(ctx context.Context, pub message.Publisher, ch Channel, data []byte) error {
	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.SetContext(ctx)
	return pub.Publish(topicFor(ch), msg)
}

// listenWatermill subscribes to every channel and pumps messages to deliver
// until ctx is done or one of the subscriptions closes.
func listenWatermill(ctx context.Context, sub message.Subscriber, channels []Channel, ready func(), deliver func(Channel, []byte)) error {
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		stopOnce sync.Once
		stopped  = make(chan struct{})
		mu       sync.Mutex // serializes deliver across channels
	)
	for _, ch := range channels {
		msgs, err := sub.Subscribe(subCtx, topicFor(ch))
		if err != nil {
			cancel()
			wg.Wait()
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("subscribe %s: %w", ch, err)
		}

		wg.Add(1)
		go func(ch Channel, msgs <-chan *message.Message) {
			defer wg.Done()
			defer stopOnce.Do(func() { close(stopped) })
			for msg := range msgs {
				mu.Lock()
				deliver(ch, msg.Payload)
				mu.Unlock()
				msg.Ack()
			}
		}(ch, msgs)
	}
	ready()

	select {
	case <-ctx.Done():
	case <-stopped:
	}
	cancel()
	wg.Wait()

	if ctx.Err() != nil {
		return nil
	}
	return errors.New("subscription closed")
}
