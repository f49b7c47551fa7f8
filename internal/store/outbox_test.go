package store

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestOutbox_EnqueueDedupe(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		id1, err := s.EnqueueOutboxMessage(ctx, "+1555", "digest", "hello", "digest:2026-03-02:+1555")
		if err != nil {
			t.Fatalf("EnqueueOutboxMessage: %v", err)
		}
		id2, err := s.EnqueueOutboxMessage(ctx, "+1555", "digest", "hello again", "digest:2026-03-02:+1555")
		if err != nil {
			t.Fatalf("EnqueueOutboxMessage repeat: %v", err)
		}
		if id1 != id2 {
			t.Errorf("dedupe key should return existing id: %q vs %q", id1, id2)
		}
		id3, err := s.EnqueueOutboxMessage(ctx, "+1666", "digest", "hello", "")
		if err != nil || id3 == id1 {
			t.Errorf("message without dedupe key should be new: %q (%v)", id3, err)
		}
	})
}

func TestOutbox_ClaimSendAndFail(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		id, _ := s.EnqueueOutboxMessage(ctx, "+1555", "digest", "body", "k1")

		now := time.Now().UTC()
		msgs, err := s.ClaimDueOutboxMessages(ctx, now, 10)
		if err != nil {
			t.Fatalf("ClaimDueOutboxMessages: %v", err)
		}
		if len(msgs) != 1 || msgs[0].ID != id || msgs[0].Body != "body" || msgs[0].Recipient != "+1555" {
			t.Fatalf("unexpected claim %+v", msgs)
		}

		// Claimed messages are not handed out twice.
		again, _ := s.ClaimDueOutboxMessages(ctx, now, 10)
		if len(again) != 0 {
			t.Fatalf("message claimed twice: %+v", again)
		}

		retryAt := now.Add(time.Minute)
		if err := s.FailOutboxMessage(ctx, id, "twilio 500", retryAt, 3); err != nil {
			t.Fatalf("FailOutboxMessage: %v", err)
		}
		early, _ := s.ClaimDueOutboxMessages(ctx, now, 10)
		if len(early) != 0 {
			t.Fatalf("message retried before next attempt: %+v", early)
		}
		due, _ := s.ClaimDueOutboxMessages(ctx, retryAt.Add(time.Second), 10)
		if len(due) != 1 || due[0].Attempts != 1 || due[0].LastError != "twilio 500" {
			t.Fatalf("unexpected retry claim %+v", due)
		}

		if err := s.MarkOutboxMessageSent(ctx, id); err != nil {
			t.Fatalf("MarkOutboxMessageSent: %v", err)
		}
		later, _ := s.ClaimDueOutboxMessages(ctx, retryAt.Add(time.Hour), 10)
		if len(later) != 0 {
			t.Fatalf("sent message claimed again: %+v", later)
		}
		// A sent message still blocks re-enqueue under the same key.
		dup, _ := s.EnqueueOutboxMessage(ctx, "+1555", "digest", "body", "k1")
		if dup != id {
			t.Errorf("sent message should keep its dedupe key, got new id %q", dup)
		}
	})
}

func TestOutbox_FailsPermanentlyAfterMaxAttempts(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		id, _ := s.EnqueueOutboxMessage(ctx, "+1555", "digest", "body", "k-max")
		now := time.Now().UTC()
		for i := 0; i < 2; i++ {
			msgs, _ := s.ClaimDueOutboxMessages(ctx, now, 10)
			if len(msgs) != 1 {
				t.Fatalf("attempt %d: expected one claim, got %d", i, len(msgs))
			}
			if err := s.FailOutboxMessage(ctx, id, "boom", now, 2); err != nil {
				t.Fatalf("FailOutboxMessage: %v", err)
			}
		}
		msgs, _ := s.ClaimDueOutboxMessages(ctx, now.Add(time.Hour), 10)
		if len(msgs) != 0 {
			t.Fatalf("failed message should not be retried: %+v", msgs)
		}
		// Failed messages free their dedupe key.
		fresh, _ := s.EnqueueOutboxMessage(ctx, "+1555", "digest", "body", "k-max")
		if fresh == id {
			t.Error("expected new message after permanent failure")
		}
	})
}

func TestOutbox_RequeueStale(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		s.EnqueueOutboxMessage(ctx, "+1555", "digest", "body", "")
		claimedAt := time.Now().UTC().Add(-time.Hour)
		if msgs, _ := s.ClaimDueOutboxMessages(ctx, claimedAt, 10); len(msgs) != 1 {
			t.Fatalf("expected one claim, got %d", len(msgs))
		}
		n, err := s.RequeueStaleSendingMessages(ctx, time.Now().UTC().Add(-time.Minute))
		if err != nil {
			t.Fatalf("RequeueStaleSendingMessages: %v", err)
		}
		if n != 1 {
			t.Errorf("requeued %d, want 1", n)
		}
	})
}

func TestOutboxSender_Poll(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	s.EnqueueOutboxMessage(ctx, "+1555", "digest", "ok", "")
	s.EnqueueOutboxMessage(ctx, "+1666", "digest", "fail", "")

	var sent int32
	sender := NewOutboxSender(s, func(ctx context.Context, msg OutboxMessage) error {
		if msg.Body == "fail" {
			return errors.New("carrier rejected")
		}
		atomic.AddInt32(&sent, 1)
		return nil
	}, time.Millisecond)
	sender.Poll(ctx)

	if atomic.LoadInt32(&sent) != 1 {
		t.Errorf("sent = %d, want 1", sent)
	}
	for _, m := range s.Outbox() {
		switch m.Body {
		case "ok":
			if m.Status != OutboxStatusSent {
				t.Errorf("ok message status = %q", m.Status)
			}
		case "fail":
			if m.Status != OutboxStatusQueued || m.Attempts != 1 || m.NextAttemptAt == nil {
				t.Errorf("failed message not rescheduled: %+v", m)
			}
		}
	}
}

func TestOutboxSender_RunStopsOnCancel(t *testing.T) {
	s := NewInMemoryStore()
	sender := NewOutboxSender(s, func(ctx context.Context, msg OutboxMessage) error { return nil }, 5*time.Millisecond)
	if err := sender.RecoverStaleMessages(context.Background()); err != nil {
		t.Fatalf("RecoverStaleMessages: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() {
		sender.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
