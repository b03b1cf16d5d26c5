// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package database

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/parley/internal/models"
)

// storeFactory returns a fresh, empty store for one subtest.
type storeFactory func(t *testing.T) Store

// runStoreContract exercises the behaviour every Store implementation must share.
func runStoreContract(t *testing.T, newStore storeFactory) {
	t.Run("canonical conversation", func(t *testing.T) {
		testCanonicalConversation(t, newStore(t))
	})
	t.Run("concurrent first calls create one row", func(t *testing.T) {
		testConcurrentGetOrCreate(t, newStore(t))
	})
	t.Run("idempotent delivery marking", func(t *testing.T) {
		testIdempotentDelivery(t, newStore(t))
	})
	t.Run("monotonic status", func(t *testing.T) {
		testMonotonicStatus(t, newStore(t))
	})
	t.Run("reactions round trip", func(t *testing.T) {
		testReactionsRoundTrip(t, newStore(t))
	})
	t.Run("history paging", func(t *testing.T) {
		testHistoryPaging(t, newStore(t))
	})
	t.Run("settings", func(t *testing.T) {
		testSettings(t, newStore(t))
	})
	t.Run("not found", func(t *testing.T) {
		testNotFound(t, newStore(t))
	})
}

func testCanonicalConversation(t *testing.T, s Store) {
	ctx := context.Background()

	ab, err := s.GetOrCreateConversation(ctx, "a1", "b2")
	if err != nil {
		t.Fatalf("GetOrCreateConversation(a1, b2) error = %v", err)
	}
	ba, err := s.GetOrCreateConversation(ctx, "b2", "a1")
	if err != nil {
		t.Fatalf("GetOrCreateConversation(b2, a1) error = %v", err)
	}

	if ab.ID != ba.ID {
		t.Errorf("conversation IDs differ: %s vs %s", ab.ID, ba.ID)
	}
	if ab.User1ID != "a1" || ab.User2ID != "b2" {
		t.Errorf("conversation not canonical: %s/%s", ab.User1ID, ab.User2ID)
	}

	found, err := s.FindConversation(ctx, "b2", "a1")
	if err != nil || found.ID != ab.ID {
		t.Errorf("FindConversation() = %v, %v; want %s", found, err, ab.ID)
	}
}

func testConcurrentGetOrCreate(t *testing.T, s Store) {
	ctx := context.Background()
	const workers = 16

	ids := make([]string, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := "x9", "y8"
			if i%2 == 1 {
				a, b = b, a
			}
			c, err := s.GetOrCreateConversation(ctx, a, b)
			errs[i] = err
			if c != nil {
				ids[i] = c.ID
			}
		}(i)
	}
	wg.Wait()

	for i := range ids {
		if errs[i] != nil {
			t.Fatalf("worker %d error = %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Errorf("worker %d got conversation %s, want %s", i, ids[i], ids[0])
		}
	}
}

func testIdempotentDelivery(t *testing.T, s Store) {
	ctx := context.Background()
	conv, err := s.GetOrCreateConversation(ctx, "a1", "b2")
	if err != nil {
		t.Fatal(err)
	}
	sent := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	msg, err := s.CreateMessage(ctx, NewMessage{ConversationID: conv.ID, SenderID: "a1", Content: "hi", At: sent})
	if err != nil {
		t.Fatal(err)
	}
	if msg.Delivered || msg.DeliveredAt != nil {
		t.Fatalf("new message for offline receiver should be undelivered: %+v", msg)
	}

	first := sent.Add(time.Minute)
	updates, err := s.MarkDelivered(ctx, "b2", first)
	if err != nil {
		t.Fatal(err)
	}
	if len(updates) != 1 || updates[0].MessageID != msg.ID || updates[0].SenderID != "a1" {
		t.Fatalf("MarkDelivered() = %+v, want one update for %s", updates, msg.ID)
	}

	again, err := s.MarkDelivered(ctx, "b2", first.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(again) != 0 {
		t.Errorf("second MarkDelivered() changed %d rows, want 0", len(again))
	}

	got, err := s.GetMessage(ctx, msg.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Delivered || got.DeliveredAt == nil || !got.DeliveredAt.Equal(first) {
		t.Errorf("deliveredAt = %v, want %v", got.DeliveredAt, first)
	}

	// The sender's own messages are never marked delivered on the sender's behalf.
	own, err := s.MarkDelivered(ctx, "a1", first)
	if err != nil {
		t.Fatal(err)
	}
	if len(own) != 0 {
		t.Errorf("MarkDelivered(sender) changed %d rows, want 0", len(own))
	}
}

func testMonotonicStatus(t *testing.T, s Store) {
	ctx := context.Background()
	conv, err := s.GetOrCreateConversation(ctx, "a1", "b2")
	if err != nil {
		t.Fatal(err)
	}
	at := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	msg, err := s.CreateMessage(ctx, NewMessage{ConversationID: conv.ID, SenderID: "a1", Content: "hi", At: at})
	if err != nil {
		t.Fatal(err)
	}

	read, err := s.MarkRead(ctx, conv.ID, "a1", at.Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(read) != 1 {
		t.Fatalf("MarkRead() = %d updates, want 1", len(read))
	}

	for i := 0; i < 3; i++ {
		if _, err := s.MarkDelivered(ctx, "b2", at.Add(time.Hour)); err != nil {
			t.Fatal(err)
		}
		if _, err := s.MarkRead(ctx, conv.ID, "a1", at.Add(time.Hour)); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.GetMessage(ctx, msg.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Delivered || !got.Read {
		t.Errorf("status regressed: delivered=%v read=%v", got.Delivered, got.Read)
	}
	if got.ReadAt == nil || !got.ReadAt.Equal(at.Add(time.Minute)) {
		t.Errorf("readAt = %v, want first read time", got.ReadAt)
	}
	if got.DeliveredAt == nil {
		t.Error("read message must carry a deliveredAt")
	}
}

func testReactionsRoundTrip(t *testing.T, s Store) {
	ctx := context.Background()
	conv, err := s.GetOrCreateConversation(ctx, "a1", "b2")
	if err != nil {
		t.Fatal(err)
	}
	msg, err := s.CreateMessage(ctx, NewMessage{ConversationID: conv.ID, SenderID: "a1", Content: "hi", At: time.Now().UTC()})
	if err != nil {
		t.Fatal(err)
	}

	r, _ := msg.Reactions.Apply(models.ReactionAdd, "👍", "b2")
	if err := s.UpdateReactions(ctx, msg.ID, r); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetMessage(ctx, msg.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Reactions.Has("👍", "b2") {
		t.Errorf("reactions = %v, want b2 on 👍", got.Reactions)
	}

	r, _ = got.Reactions.Apply(models.ReactionRemove, "👍", "b2")
	if err := s.UpdateReactions(ctx, msg.ID, r); err != nil {
		t.Fatal(err)
	}
	got, err = s.GetMessage(ctx, msg.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Reactions) != 0 {
		t.Errorf("reactions = %v, want empty", got.Reactions)
	}
}

func testHistoryPaging(t *testing.T, s Store) {
	ctx := context.Background()
	conv, err := s.GetOrCreateConversation(ctx, "a1", "b2")
	if err != nil {
		t.Fatal(err)
	}
	base := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 5; i++ {
		m, err := s.CreateMessage(ctx, NewMessage{ConversationID: conv.ID, SenderID: "a1", Content: "m", At: base.Add(time.Duration(i) * time.Second)})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, m.ID)
	}

	page, err := s.ListMessages(ctx, conv.ID, 2, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Messages) != 2 || page.Messages[0].ID != ids[3] || page.Messages[1].ID != ids[4] {
		t.Fatalf("first page = %v, want [%s %s]", messageIDs(page.Messages), ids[3], ids[4])
	}
	if page.NextCursor != ids[2] {
		t.Fatalf("NextCursor = %s, want %s", page.NextCursor, ids[2])
	}

	page, err = s.ListMessages(ctx, conv.ID, 2, page.NextCursor)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Messages) != 2 || page.Messages[0].ID != ids[1] || page.Messages[1].ID != ids[2] {
		t.Fatalf("second page = %v, want [%s %s]", messageIDs(page.Messages), ids[1], ids[2])
	}

	page, err = s.ListMessages(ctx, conv.ID, 2, page.NextCursor)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Messages) != 1 || page.NextCursor != "" {
		t.Fatalf("last page = %v cursor %q, want one message and no cursor", messageIDs(page.Messages), page.NextCursor)
	}
}

func testSettings(t *testing.T, s Store) {
	ctx := context.Background()
	conv, err := s.GetOrCreateConversation(ctx, "a1", "b2")
	if err != nil {
		t.Fatal(err)
	}

	if err := s.UpdateSettings(ctx, conv.ID, conv.Settings.With("a1", models.FlagPinned, true)); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Settings.Get("a1", models.FlagPinned) || got.Settings.Get("b2", models.FlagPinned) {
		t.Errorf("settings = %+v", got.Settings)
	}
}

func testNotFound(t *testing.T, s Store) {
	ctx := context.Background()

	if _, err := s.GetMessage(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetMessage(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := s.FindConversation(ctx, "q1", "q2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindConversation(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := s.SessionUser(ctx, "nope", time.Now()); !errors.Is(err, ErrNotFound) {
		t.Errorf("SessionUser(missing) error = %v, want ErrNotFound", err)
	}
}

func messageIDs(ms []models.Message) []string {
	ids := make([]string, len(ms))
	for i, m := range ms {
		ids[i] = m.ID
	}
	return ids
}
