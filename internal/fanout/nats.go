// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package fanout

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	natsgo "github.com/nats-io/nats.go"
)

// natsTransport uses core NATS (no JetStream): every instance subscribes
// without a queue group, so each one receives every message.
type natsTransport struct {
	url    string
	logger watermill.LoggerAdapter
	pub    *wmNats.Publisher

	embedded *EmbeddedServer // owned, shut down on close
}

// NewNATS creates a bus on a NATS server. The connection is established in
// the background, so an unreachable server is not an error here.
func NewNATS(url string, opts Options) (*Notifier, error) {
	logger := watermillLogger()
	t := &natsTransport{url: url, logger: logger}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         url,
		NatsOptions: t.natsOptions("parley-fanout-pub"),
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream:   wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create nats publisher: %w", err)
	}
	t.pub = pub

	return newNotifier("nats", t, 0, opts), nil
}

func (t *natsTransport) natsOptions(name string) []natsgo.Option {
	return []natsgo.Option{
		natsgo.Name(name),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				t.logger.Error("NATS disconnected", err, watermill.LogFields{"client": name})
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			t.logger.Info("NATS reconnected", watermill.LogFields{"client": name, "url": nc.ConnectedUrl()})
		}),
	}
}

func (t *natsTransport) send(ctx context.Context, ch Channel, data []byte) error {
	return publishWatermill(ctx, t.pub, ch, data)
}

func (t *natsTransport) listen(ctx context.Context, channels []Channel, ready func(), deliver func(Channel, []byte)) error {
	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              t.url,
		QueueGroupPrefix: "",
		SubscribersCount: 1,
		AckWaitTimeout:   30 * time.Second,
		CloseTimeout:     5 * time.Second,
		NatsOptions:      t.natsOptions("parley-fanout-sub"),
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream:        wmNats.JetStreamConfig{Disabled: true},
	}, t.logger)
	if err != nil {
		return fmt.Errorf("create nats subscriber: %w", err)
	}
	defer func() { _ = sub.Close() }()

	return listenWatermill(ctx, sub, channels, ready, deliver)
}

func (t *natsTransport) close() error {
	err := t.pub.Close()
	if t.embedded != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if serr := t.embedded.Shutdown(ctx); err == nil {
			err = serr
		}
	}
	return err
}
