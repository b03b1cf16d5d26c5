// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package fanout

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tomtom215/parley/internal/config"
)

// Open builds the bus selected by cfg.Driver. pool is only used by the
// postgres driver.
func Open(cfg config.FanoutConfig, pool *pgxpool.Pool) (*Notifier, error) {
	opts := Options{ReconnectDelay: cfg.ReconnectDelay}

	switch cfg.Driver {
	case "", "postgres":
		if pool == nil {
			return nil, errors.New("fanout: postgres driver needs a database pool")
		}
		return NewPostgres(pool, opts), nil
	case "memory":
		return NewMemory(nil, opts), nil
	case "nats":
		if !cfg.NATSEmbedded {
			return NewNATS(cfg.NATSURL, opts)
		}
		ns, err := NewEmbeddedServer(cfg.NATSHost, cfg.NATSPort)
		if err != nil {
			return nil, err
		}
		n, err := NewNATS(ns.ClientURL(), opts)
		if err != nil {
			_ = ns.Shutdown(context.Background())
			return nil, err
		}
		n.t.(*natsTransport).embedded = ns
		return n, nil
	case "redis":
		return NewRedisURL(cfg.RedisURL, opts)
	default:
		return nil, fmt.Errorf("fanout: unknown driver %q", cfg.Driver)
	}
}
