// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

//go:build integration

package fanout

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tomtom215/parley/internal/testinfra"
)

func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	testinfra.SkipIfNoDocker(t)

	ctx := context.Background()
	pg, err := testinfra.NewPostgresContainer(ctx)
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	t.Cleanup(func() { testinfra.CleanupContainer(t, ctx, pg) })

	pool, err := pgxpool.New(ctx, pg.URL)
	if err != nil {
		t.Fatalf("pgxpool.New() error = %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func TestPostgresBusReachesOtherInstances(t *testing.T) {
	pool := newTestPool(t)

	a := NewPostgres(pool, Options{Origin: "node-a"})
	b := NewPostgres(pool, Options{Origin: "node-b"})
	got := collect(b, ChannelUserStatus)
	startBus(t, a)
	startBus(t, b)

	if err := a.Publish(context.Background(), ChannelUserStatus, StatusPayload("a1", true)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if p := receive(t, got); p.UserID != "a1" || !p.IsOnline || p.Origin != "node-a" {
		t.Errorf("payload = %+v", p)
	}
}

func TestPostgresListenerReconnects(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()

	n := NewPostgres(pool, Options{ReconnectDelay: 200 * time.Millisecond})
	got := collect(n, ChannelTyping)
	startBus(t, n)

	// Kill every other backend, which includes the dedicated listener connection.
	if _, err := pool.Exec(ctx, `SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE pid <> pg_backend_pid() AND datname = current_database()`); err != nil {
		t.Fatalf("terminate listener: %v", err)
	}

	deadline := time.After(15 * time.Second)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		// The pool may hand out a connection that was just terminated; retry on error.
		_ = n.Publish(ctx, ChannelTyping, TypingPayload("a1", "b2", true))
		select {
		case p := <-got:
			if p.UserID != "a1" {
				t.Errorf("payload = %+v", p)
			}
			return
		case <-tick.C:
		case <-deadline:
			t.Fatal("listener did not recover")
		}
	}
}

func TestRedisBusReachesOtherInstances(t *testing.T) {
	testinfra.SkipIfNoDocker(t)
	ctx := context.Background()

	rc, err := testinfra.NewRedisContainer(ctx)
	if err != nil {
		t.Fatalf("start redis: %v", err)
	}
	t.Cleanup(func() { testinfra.CleanupContainer(t, ctx, rc) })

	a, err := NewRedisURL(rc.URL, Options{Origin: "node-a"})
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewRedisURL(rc.URL, Options{Origin: "node-b"})
	if err != nil {
		t.Fatal(err)
	}
	got := collect(b, ChannelReactions)
	startBus(t, a)
	startBus(t, b)

	if err := a.Publish(ctx, ChannelReactions, ReactionPayload("m1", "a1", "❤️", "add", []string{"a1", "b2"})); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if p := receive(t, got); p.Emoji != "❤️" || len(p.Participants) != 2 {
		t.Errorf("payload = %+v", p)
	}
}
