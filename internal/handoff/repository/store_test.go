package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"handoff_backend/internal/handoff/domain"
	"handoff_backend/platform/apperr"
)

// runStoreContract exercises the Store behavior every backend must
// share. Backend test files feed it their own constructor.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Helper()
	ctx := context.Background()

	record := func(id string, createdAt time.Time) domain.CallHandoffRecord {
		return domain.CallHandoffRecord{
			ID:            id,
			SessionRef:    "room-" + id,
			CustomerPhone: "+380671234567",
			CustomerName:  "Oksana",
			ProductName:   "Laptop",
			Status:        domain.StatusRequested,
			Reason:        "Pricing dispute",
			CreatedAt:     createdAt,
			Transcript: []domain.TranscriptEntry{
				{Speaker: domain.SpeakerCustomer, Text: "I want a manager", Timestamp: "2026-08-30T10:00:00"},
				{Speaker: domain.SpeakerAgent, Text: "Connecting you now", Timestamp: "2026-08-30T10:00:05"},
			},
		}
	}

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		store := newStore(t)
		want := record("h-1", time.Now().UTC().Truncate(time.Millisecond))

		if err := store.Put(ctx, want); err != nil {
			t.Fatalf("put failed: %v", err)
		}

		got, err := store.Get(ctx, "h-1")
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if got.ID != want.ID || got.SessionRef != want.SessionRef || got.Status != want.Status {
			t.Fatalf("record changed in storage: got %+v want %+v", got, want)
		}
		if len(got.Transcript) != len(want.Transcript) {
			t.Fatalf("expected %d transcript entries, got %d", len(want.Transcript), len(got.Transcript))
		}
		for i := range want.Transcript {
			if got.Transcript[i] != want.Transcript[i] {
				t.Fatalf("transcript entry %d changed: got %+v want %+v", i, got.Transcript[i], want.Transcript[i])
			}
		}
	})

	t.Run("GetUnknownIsNotFound", func(t *testing.T) {
		store := newStore(t)
		if _, err := store.Get(ctx, "missing"); !apperr.Is(err, apperr.KindNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})

	t.Run("ListFiltersAndOrders", func(t *testing.T) {
		store := newStore(t)
		base := time.Now().UTC().Truncate(time.Millisecond)

		older := record("h-old", base.Add(-2*time.Minute))
		newer := record("h-new", base)
		claimed := record("h-claimed", base.Add(-time.Minute))

		for _, rec := range []domain.CallHandoffRecord{newer, older, claimed} {
			if err := store.Put(ctx, rec); err != nil {
				t.Fatalf("put %s failed: %v", rec.ID, err)
			}
		}
		if _, err := store.Claim(ctx, "h-claimed", "human_operator_x", base); err != nil {
			t.Fatalf("claim failed: %v", err)
		}

		pending, err := store.List(ctx, domain.StatusRequested)
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if len(pending) != 2 {
			t.Fatalf("expected 2 pending records, got %d", len(pending))
		}
		if pending[0].ID != "h-old" || pending[1].ID != "h-new" {
			t.Fatalf("expected oldest-first ordering, got %s then %s", pending[0].ID, pending[1].ID)
		}

		all, err := store.List(ctx, "")
		if err != nil {
			t.Fatalf("list all failed: %v", err)
		}
		if len(all) != 3 {
			t.Fatalf("expected 3 records in unfiltered list, got %d", len(all))
		}
	})

	t.Run("DeleteIsIdempotent", func(t *testing.T) {
		store := newStore(t)
		rec := record("h-1", time.Now().UTC())

		if err := store.Put(ctx, rec); err != nil {
			t.Fatalf("put failed: %v", err)
		}
		if err := store.Delete(ctx, "h-1"); err != nil {
			t.Fatalf("delete failed: %v", err)
		}
		if _, err := store.Get(ctx, "h-1"); !apperr.Is(err, apperr.KindNotFound) {
			t.Fatalf("expected not found after delete, got %v", err)
		}
		if err := store.Delete(ctx, "h-1"); err != nil {
			t.Fatalf("second delete should be a no-op, got %v", err)
		}
	})

	t.Run("ClaimTransitions", func(t *testing.T) {
		store := newStore(t)
		at := time.Now().UTC().Truncate(time.Millisecond)

		if err := store.Put(ctx, record("h-1", at)); err != nil {
			t.Fatalf("put failed: %v", err)
		}

		claimed, err := store.Claim(ctx, "h-1", "human_operator_a", at)
		if err != nil {
			t.Fatalf("claim failed: %v", err)
		}
		if claimed.Status != domain.StatusActive {
			t.Fatalf("expected active after claim, got %q", claimed.Status)
		}
		if claimed.ClaimedBy != "human_operator_a" {
			t.Fatalf("expected claimedBy recorded, got %q", claimed.ClaimedBy)
		}
		if claimed.ClaimedAt == nil || !claimed.ClaimedAt.Equal(at) {
			t.Fatalf("expected claimedAt %v, got %v", at, claimed.ClaimedAt)
		}

		if _, err := store.Claim(ctx, "h-1", "human_operator_b", at); !apperr.Is(err, apperr.KindConflict) {
			t.Fatalf("second claim should conflict, got %v", err)
		}
		if _, err := store.Claim(ctx, "missing", "human_operator_c", at); !apperr.Is(err, apperr.KindNotFound) {
			t.Fatalf("claim of unknown ID should be not found, got %v", err)
		}

		got, err := store.Get(ctx, "h-1")
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if got.ClaimedBy != "human_operator_a" {
			t.Fatalf("losing claim must not overwrite the winner, got %q", got.ClaimedBy)
		}
	})

	t.Run("ClaimIsAtomicUnderContention", func(t *testing.T) {
		store := newStore(t)
		at := time.Now().UTC()

		if err := store.Put(ctx, record("h-1", at)); err != nil {
			t.Fatalf("put failed: %v", err)
		}

		const claimers = 16
		var wg sync.WaitGroup
		errs := make([]error, claimers)

		start := make(chan struct{})
		for i := 0; i < claimers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				_, errs[i] = store.Claim(ctx, "h-1", "human_operator_"+string(rune('a'+i)), at)
			}(i)
		}
		close(start)
		wg.Wait()

		winners := 0
		for i, err := range errs {
			switch {
			case err == nil:
				winners++
			case apperr.Is(err, apperr.KindConflict):
			default:
				t.Fatalf("claimer %d got unexpected error: %v", i, err)
			}
		}
		if winners != 1 {
			t.Fatalf("expected exactly one winner, got %d", winners)
		}
	})

	t.Run("SetStatusStampsCompletion", func(t *testing.T) {
		store := newStore(t)
		at := time.Now().UTC().Truncate(time.Millisecond)

		if err := store.Put(ctx, record("h-1", at)); err != nil {
			t.Fatalf("put failed: %v", err)
		}

		done, err := store.SetStatus(ctx, "h-1", domain.StatusCompleted, at)
		if err != nil {
			t.Fatalf("set status failed: %v", err)
		}
		if done.Status != domain.StatusCompleted {
			t.Fatalf("expected completed, got %q", done.Status)
		}
		if done.CompletedAt == nil || !done.CompletedAt.Equal(at) {
			t.Fatalf("expected completedAt %v, got %v", at, done.CompletedAt)
		}

		if _, err := store.SetStatus(ctx, "missing", domain.StatusCompleted, at); !apperr.Is(err, apperr.KindNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})

	t.Run("SetStatusIfGuardsCurrentStatus", func(t *testing.T) {
		store := newStore(t)
		at := time.Now().UTC()

		if err := store.Put(ctx, record("h-1", at)); err != nil {
			t.Fatalf("put failed: %v", err)
		}
		if _, err := store.Claim(ctx, "h-1", "human_operator_a", at); err != nil {
			t.Fatalf("claim failed: %v", err)
		}

		// A claimed call must survive the stale sweep's conditional move.
		if _, err := store.SetStatusIf(ctx, "h-1", domain.StatusRequested, domain.StatusCompleted, at); !apperr.Is(err, apperr.KindConflict) {
			t.Fatalf("expected conflict, got %v", err)
		}

		got, err := store.Get(ctx, "h-1")
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if got.Status != domain.StatusActive {
			t.Fatalf("guarded move must not apply, status is %q", got.Status)
		}

		if _, err := store.SetStatusIf(ctx, "h-1", domain.StatusActive, domain.StatusCompleted, at); err != nil {
			t.Fatalf("guarded move from the actual status failed: %v", err)
		}
	})
}

func TestMemoryStore_Contract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		return NewMemoryStore()
	})
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	rec := domain.CallHandoffRecord{
		ID:         "h-1",
		SessionRef: "room-1",
		Status:     domain.StatusRequested,
		CreatedAt:  time.Now(),
		Transcript: []domain.TranscriptEntry{
			{Speaker: domain.SpeakerCustomer, Text: "original", Timestamp: "2026-08-30T10:00:00"},
		},
	}
	if err := store.Put(ctx, rec); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	got, err := store.Get(ctx, "h-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	got.Transcript[0].Text = "mutated"

	again, err := store.Get(ctx, "h-1")
	if err != nil {
		t.Fatalf("second get failed: %v", err)
	}
	if again.Transcript[0].Text != "original" {
		t.Fatal("caller mutation leaked into stored state")
	}
}
