// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package fanout

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// NewMemoryPubSub creates an in-process broker that several memory buses can share.
func NewMemoryPubSub() *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, watermillLogger())
}

type memoryTransport struct {
	ps    *gochannel.GoChannel
	owned bool
}

// NewMemory creates a bus on an in-process broker. Passing the same broker to
// several buses simulates several instances in one process. With a nil broker
// the bus creates and owns one.
func NewMemory(ps *gochannel.GoChannel, opts Options) *Notifier {
	t := &memoryTransport{ps: ps}
	if ps == nil {
		t.ps = NewMemoryPubSub()
		t.owned = true
	}
	return newNotifier("memory", t, 0, opts)
}

func (t *memoryTransport) send(ctx context.Context, ch Channel, data []byte) error {
	return publishWatermill(ctx, t.ps, ch, data)
}

func (t *memoryTransport) listen(ctx context.Context, channels []Channel, ready func(), deliver func(Channel, []byte)) error {
	return listenWatermill(ctx, t.ps, channels, ready, deliver)
}

func (t *memoryTransport) close() error {
	if t.owned {
		return t.ps.Close()
	}
	return nil
}
