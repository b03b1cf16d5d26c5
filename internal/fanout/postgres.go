// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package fanout

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresMaxPayload is the largest NOTIFY payload Postgres accepts (8000 bytes in a default build).
const PostgresMaxPayload = 8000

// postgresTransport publishes with pg_notify through the shared pool and
// listens on a dedicated connection outside it.
type postgresTransport struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a LISTEN/NOTIFY bus on the application database.
// The pool is borrowed; closing the bus does not close it.
func NewPostgres(pool *pgxpool.Pool, opts Options) *Notifier {
	return newNotifier("postgres", &postgresTransport{pool: pool}, PostgresMaxPayload, opts)
}

func (t *postgresTransport) send(ctx context.Context, ch Channel, data []byte) error {
	if _, err := t.pool.Exec(ctx, "SELECT pg_notify($1, $2)", string(ch), string(data)); err != nil {
		return fmt.Errorf("pg_notify: %w", err)
	}
	return nil
}

func (t *postgresTransport) listen(ctx context.Context, channels []Channel, ready func(), deliver func(Channel, []byte)) error {
	conn, err := pgx.ConnectConfig(ctx, t.pool.Config().ConnConfig.Copy())
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("connect listener: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = conn.Close(closeCtx)
	}()

	for _, ch := range channels {
		if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{string(ch)}.Sanitize()); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("listen %s: %w", ch, err)
		}
	}
	ready()

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("wait for notification: %w", err)
		}
		deliver(Channel(n.Channel), []byte(n.Payload))
	}
}

func (t *postgresTransport) close() error { return nil }
