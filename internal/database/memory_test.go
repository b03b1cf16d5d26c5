// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package database

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreContract(t *testing.T) {
	t.Parallel()

	runStoreContract(t, func(*testing.T) Store { return NewMemory() })
}

func TestMemorySessionUser(t *testing.T) {
	t.Parallel()

	s := NewMemory()
	now := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	s.AddSession("live", "a1", now.Add(time.Hour))
	s.AddSession("stale", "b2", now.Add(-time.Second))

	uid, err := s.SessionUser(context.Background(), "live", now)
	if err != nil || uid != "a1" {
		t.Errorf("SessionUser(live) = %q, %v", uid, err)
	}
	if _, err := s.SessionUser(context.Background(), "stale", now); err == nil {
		t.Error("expected expired session to be rejected")
	}
}

func TestMemorySetUserOnline(t *testing.T) {
	t.Parallel()

	s := NewMemory()
	at := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	if err := s.SetUserOnline(context.Background(), "a1", true, at); err != nil {
		t.Fatal(err)
	}
	u, ok := s.User("a1")
	if !ok || !u.IsOnline || u.LastSeen == nil || !u.LastSeen.Equal(at) {
		t.Errorf("User(a1) = %+v, %v", u, ok)
	}
}

func TestMemoryReturnsCopies(t *testing.T) {
	t.Parallel()

	s := NewMemory()
	ctx := context.Background()
	conv, _ := s.GetOrCreateConversation(ctx, "a1", "b2")
	msg, err := s.CreateMessage(ctx, NewMessage{ConversationID: conv.ID, SenderID: "a1", Content: "hi", At: time.Now()})
	if err != nil {
		t.Fatal(err)
	}

	msg.Reactions["👍"] = []string{"x"}
	got, _ := s.GetMessage(ctx, msg.ID)
	if len(got.Reactions) != 0 {
		t.Errorf("store shared reaction map with caller: %v", got.Reactions)
	}
}

func TestClampLimit(t *testing.T) {
	t.Parallel()

	for in, want := range map[int]int{0: MaxPageSize, -1: MaxPageSize, 10: 10, 51: MaxPageSize} {
		if got := clampLimit(in); got != want {
			t.Errorf("clampLimit(%d) = %d, want %d", in, got, want)
		}
	}
}
