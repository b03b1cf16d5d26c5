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
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/parley/internal/breaker"
	"github.com/tomtom215/parley/internal/logging"
	"github.com/tomtom215/parley/internal/metrics"
)

// DefaultReconnectDelay is the fixed wait between listener reconnect attempts.
const DefaultReconnectDelay = 5 * time.Second

// transport is the driver-specific half of a Notifier.
type transport interface {
	send(ctx context.Context, ch Channel, data []byte) error

	// listen subscribes to channels and calls deliver for every notification
	// until ctx is done (returns nil) or the connection fails (returns the error).
	// ready is called once the subscriptions are live.
	listen(ctx context.Context, channels []Channel, ready func(), deliver func(Channel, []byte)) error

	close() error
}

// Options tunes a Notifier.
type Options struct {
	// ReconnectDelay is the wait after a listener failure. There is no backoff
	// and no attempt limit.
	ReconnectDelay time.Duration

	// Origin identifies this process in published payloads. A random id is used when empty.
	Origin string
}

type subscription struct {
	id uint64
	h  Handler
}

// Notifier implements Bus on top of one driver.
type Notifier struct {
	driver         string
	t              transport
	origin         string
	reconnectDelay time.Duration
	maxPayload     int
	cb             *gobreaker.CircuitBreaker[struct{}]

	mu       sync.RWMutex
	handlers map[Channel][]subscription
	nextID   uint64
	cancel   context.CancelFunc

	running   atomic.Bool
	closed    atomic.Bool
	readyOnce sync.Once
	ready     chan struct{}
}

var _ Bus = (*Notifier)(nil)

func newNotifier(driver string, t transport, maxPayload int, opts Options) *Notifier {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.Origin == "" {
		opts.Origin = uuid.NewString()
	}
	metrics.SetListenerConnected(driver, false)
	return &Notifier{
		driver:         driver,
		t:              t,
		origin:         opts.Origin,
		reconnectDelay: opts.ReconnectDelay,
		maxPayload:     maxPayload,
		cb:             breaker.New[struct{}](breaker.Settings{Name: "fanout-" + driver, MaxRequests: 3, Interval: time.Minute, MinRequests: 10}),
		handlers:       make(map[Channel][]subscription),
		ready:          make(chan struct{}),
	}
}

// Driver returns the driver name.
func (n *Notifier) Driver() string { return n.driver }

// Origin returns the id stamped on payloads published by this process.
func (n *Notifier) Origin() string { return n.origin }

// Ready is closed the first time the listener is subscribed.
func (n *Notifier) Ready() <-chan struct{} { return n.ready }

// Publish sends p to every instance, stamping it with this process's origin.
// The caller decides whether a failure matters; nothing is retried.
func (n *Notifier) Publish(ctx context.Context, ch Channel, p Payload) error {
	if n.closed.Load() {
		return ErrClosed
	}
	if !ch.Valid() {
		return fmt.Errorf("publish: unknown channel %q", ch)
	}
	if p.Origin == "" {
		p.Origin = n.origin
	}

	data, err := encode(p)
	if err != nil {
		metrics.RecordPublish(n.driver, string(ch), err)
		return err
	}
	if n.maxPayload > 0 && len(data) > n.maxPayload {
		err = fmt.Errorf("publish %s: %d bytes over limit of %d: %w", ch, len(data), n.maxPayload, ErrPayloadTooLarge)
		metrics.RecordPublish(n.driver, string(ch), err)
		return err
	}

	_, err = n.cb.Execute(func() (struct{}, error) {
		return struct{}{}, n.t.send(ctx, ch, data)
	})
	metrics.RecordPublish(n.driver, string(ch), err)
	if err != nil {
		return fmt.Errorf("publish %s: %w", ch, err)
	}
	return nil
}

// Subscribe registers h for ch. Handlers run on the listener goroutine in
// registration order.
func (n *Notifier) Subscribe(ch Channel, h Handler) func() {
	n.mu.Lock()
	n.nextID++
	id := n.nextID
	n.handlers[ch] = append(n.handlers[ch], subscription{id: id, h: h})
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			subs := n.handlers[ch]
			for i, s := range subs {
				if s.id == id {
					n.handlers[ch] = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}
		})
	}
}

// Run listens on every channel until ctx is cancelled or Close is called.
// A failed listener is retried after the fixed reconnect delay, forever.
func (n *Notifier) Run(ctx context.Context) error {
	if n.closed.Load() {
		return ErrClosed
	}
	if !n.running.CompareAndSwap(false, true) {
		return errors.New("fanout: already running")
	}
	defer n.running.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	n.mu.Lock()
	n.cancel = cancel
	n.mu.Unlock()

	logger := logging.WithComponent("fanout")
	for {
		err := n.t.listen(ctx, Channels, n.markReady, func(ch Channel, data []byte) {
			n.receive(ctx, ch, data)
		})
		metrics.SetListenerConnected(n.driver, false)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			err = errors.New("listener stopped")
		}

		metrics.FanoutErrors.WithLabelValues(n.driver, "listen").Inc()
		logger.Warn().Err(err).Str("driver", n.driver).Dur("retry_in", n.reconnectDelay).Msg("Fan-out listener disconnected")

		timer := time.NewTimer(n.reconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		metrics.FanoutReconnects.WithLabelValues(n.driver).Inc()
	}
}

// Close stops the listener and releases the driver. It is safe to call more than once.
func (n *Notifier) Close() error {
	if !n.closed.CompareAndSwap(false, true) {
		return nil
	}
	n.mu.Lock()
	if n.cancel != nil {
		n.cancel()
	}
	n.mu.Unlock()
	return n.t.close()
}

func (n *Notifier) markReady() {
	metrics.SetListenerConnected(n.driver, true)
	logging.Info().Str("driver", n.driver).Int("channels", len(Channels)).Msg("Fan-out listener subscribed")
	n.readyOnce.Do(func() { close(n.ready) })
}

func (n *Notifier) receive(ctx context.Context, ch Channel, data []byte) {
	p, err := decode(data)
	if err != nil {
		metrics.FanoutErrors.WithLabelValues(n.driver, "decode").Inc()
		logging.Warn().Err(err).Str("channel", string(ch)).Msg("Dropping malformed fan-out payload")
		return
	}
	metrics.FanoutReceived.WithLabelValues(n.driver, string(ch)).Inc()

	n.mu.RLock()
	subs := append([]subscription(nil), n.handlers[ch]...)
	n.mu.RUnlock()

	for _, s := range subs {
		n.invoke(ctx, ch, s.h, p)
	}
}

// invoke runs one handler, isolating its panics and errors from its siblings.
func (n *Notifier) invoke(ctx context.Context, ch Channel, h Handler, p Payload) {
	defer func() {
		if r := recover(); r != nil {
			metrics.FanoutErrors.WithLabelValues(n.driver, "handler").Inc()
			logging.Error().Interface("panic", r).Str("channel", string(ch)).Str("type", string(p.Type)).Msg("Fan-out handler panicked")
		}
	}()
	if err := h(ctx, p); err != nil {
		metrics.FanoutErrors.WithLabelValues(n.driver, "handler").Inc()
		logging.Warn().Err(err).Str("channel", string(ch)).Str("type", string(p.Type)).Msg("Fan-out handler failed")
	}
}
