// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/parley/internal/fanout"
)

// ErrListenerStopped is returned when the listener exits before its context ends.
var ErrListenerStopped = errors.New("fan-out listener stopped unexpectedly")

// Listener matches *fanout.Notifier's Run method.
type Listener interface {
	Run(ctx context.Context) error
	Driver() string
}

// FanoutService wraps the cross-instance listener as a supervised service.
//
// The listener already retries its own connection on a fixed delay. Suture
// only sees a failure when Run returns while ctx is still live.
type FanoutService struct {
	listener Listener
	name     string
}

// NewFanoutService creates a new fan-out service wrapper.
func NewFanoutService(listener Listener) *FanoutService {
	return &FanoutService{
		listener: listener,
		name:     "fanout-" + listener.Driver(),
	}
}

// Serve implements suture.Service. A closed bus is never restarted.
func (f *FanoutService) Serve(ctx context.Context) error {
	err := f.listener.Run(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, fanout.ErrClosed) {
		return suture.ErrDoNotRestart
	}
	if err != nil {
		return fmt.Errorf("fan-out listener failed: %w", err)
	}
	return ErrListenerStopped
}

// String implements fmt.Stringer for suture's log messages.
func (f *FanoutService) String() string {
	return f.name
}
