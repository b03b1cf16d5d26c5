// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package fanout

import (
	"context"
	"errors"
	"testing"
	"time"
)

const waitTimeout = 5 * time.Second

// startBus runs n until the test ends and waits for its listener.
func startBus(t *testing.T, n *Notifier) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run() error = %v", err)
			}
		case <-time.After(waitTimeout):
			t.Error("Run() did not return after cancel")
		}
		_ = n.Close()
	})

	select {
	case <-n.Ready():
	case <-time.After(waitTimeout):
		t.Fatal("listener never became ready")
	}
}

func collect(n *Notifier, ch Channel) <-chan Payload {
	out := make(chan Payload, 16)
	n.Subscribe(ch, func(_ context.Context, p Payload) error {
		out <- p
		return nil
	})
	return out
}

func receive(t *testing.T, ch <-chan Payload) Payload {
	t.Helper()
	select {
	case p := <-ch:
		return p
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for payload")
		return Payload{}
	}
}

func TestMemoryBusReachesOtherInstances(t *testing.T) {
	t.Parallel()

	ps := NewMemoryPubSub()
	t.Cleanup(func() { _ = ps.Close() })

	a := NewMemory(ps, Options{Origin: "node-a"})
	b := NewMemory(ps, Options{Origin: "node-b"})
	gotA := collect(a, ChannelUserStatus)
	gotB := collect(b, ChannelUserStatus)
	startBus(t, a)
	startBus(t, b)

	if err := a.Publish(context.Background(), ChannelUserStatus, StatusPayload("u1", true)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	for name, ch := range map[string]<-chan Payload{"a": gotA, "b": gotB} {
		p := receive(t, ch)
		if p.Type != EventStatusChange || p.UserID != "u1" || !p.IsOnline || p.Origin != "node-a" {
			t.Errorf("bus %s received %+v", name, p)
		}
	}
}

func TestMemoryBusIsolatesHandlerFailures(t *testing.T) {
	t.Parallel()

	n := NewMemory(nil, Options{})
	n.Subscribe(ChannelTyping, func(context.Context, Payload) error { panic("boom") })
	n.Subscribe(ChannelTyping, func(context.Context, Payload) error { return errors.New("nope") })
	got := collect(n, ChannelTyping)
	startBus(t, n)

	for i := 0; i < 2; i++ {
		if err := n.Publish(context.Background(), ChannelTyping, TypingPayload("a1", "b2", true)); err != nil {
			t.Fatal(err)
		}
		if p := receive(t, got); p.PeerID != "b2" {
			t.Errorf("payload = %+v", p)
		}
	}
}

func TestMemoryBusUnsubscribe(t *testing.T) {
	t.Parallel()

	n := NewMemory(nil, Options{})
	removed := make(chan Payload, 4)
	unsub := n.Subscribe(ChannelDelivery, func(_ context.Context, p Payload) error {
		removed <- p
		return nil
	})
	kept := collect(n, ChannelDelivery)
	startBus(t, n)

	unsub()
	unsub()

	if err := n.Publish(context.Background(), ChannelDelivery, ReceiptPayload(EventDelivered, "m1", "a1", time.Now())); err != nil {
		t.Fatal(err)
	}
	receive(t, kept)

	select {
	case p := <-removed:
		t.Errorf("unsubscribed handler received %+v", p)
	default:
	}
}

func TestMemoryBusDropsMalformedPayload(t *testing.T) {
	t.Parallel()

	ps := NewMemoryPubSub()
	t.Cleanup(func() { _ = ps.Close() })

	n := NewMemory(ps, Options{})
	got := collect(n, ChannelReactions)
	startBus(t, n)

	if err := publishWatermill(context.Background(), ps, ChannelReactions, []byte("not json")); err != nil {
		t.Fatal(err)
	}
	if err := n.Publish(context.Background(), ChannelReactions, ReactionPayload("m1", "a1", "👍", "add", []string{"a1", "b2"})); err != nil {
		t.Fatal(err)
	}

	if p := receive(t, got); p.Type != EventReaction || p.Emoji != "👍" {
		t.Errorf("payload = %+v", p)
	}
}

func TestRunTwiceFails(t *testing.T) {
	t.Parallel()

	n := NewMemory(nil, Options{})
	startBus(t, n)

	if err := n.Run(context.Background()); err == nil {
		t.Error("second concurrent Run() succeeded")
	}
}
