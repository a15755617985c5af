package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"handoff_backend/internal/events"
	"handoff_backend/internal/handoff/domain"
	"handoff_backend/internal/handoff/repository"
	"handoff_backend/internal/session"
	"handoff_backend/platform/apperr"
	"handoff_backend/platform/logger"
)

type issuerConfig struct {
	serverURL string
	apiKey    string
	apiSecret string
	ttl       time.Duration
}

func (c issuerConfig) GetSessionServerURL() string     { return c.serverURL }
func (c issuerConfig) GetSessionAPIKey() string        { return c.apiKey }
func (c issuerConfig) GetSessionAPISecret() string     { return c.apiSecret }
func (c issuerConfig) GetCredentialTTL() time.Duration { return c.ttl }

func testIssuer() *session.Issuer {
	return session.New(issuerConfig{
		serverURL: "wss://session.example.com",
		apiKey:    "api-key",
		apiSecret: "api-secret",
		ttl:       30 * time.Minute,
	})
}

func newTestService(issuer *session.Issuer, bus events.Bus) *Service {
	return New(repository.NewMemoryStore(), issuer, bus, logger.New("test"))
}

func TestRegister_SubstitutesDefaults(t *testing.T) {
	svc := newTestService(testIssuer(), nil)

	rec, err := svc.Register(context.Background(), RegisterInput{SessionRef: "room-1"})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if rec.ID == "" {
		t.Fatal("expected generated ID")
	}
	if rec.CustomerPhone != DefaultPhone {
		t.Fatalf("expected phone %q, got %q", DefaultPhone, rec.CustomerPhone)
	}
	if rec.CustomerName != DefaultCustomer {
		t.Fatalf("expected customer %q, got %q", DefaultCustomer, rec.CustomerName)
	}
	if rec.ProductName != DefaultProduct {
		t.Fatalf("expected product %q, got %q", DefaultProduct, rec.ProductName)
	}
	if rec.Reason != DefaultReason {
		t.Fatalf("expected reason %q, got %q", DefaultReason, rec.Reason)
	}
	if rec.Status != domain.StatusRequested {
		t.Fatalf("expected status requested, got %q", rec.Status)
	}
}

func TestRegister_KeepsSuppliedFields(t *testing.T) {
	svc := newTestService(testIssuer(), nil)

	transcript := []domain.TranscriptEntry{
		{Speaker: domain.SpeakerCustomer, Text: "I want a manager", Timestamp: "2026-08-30T10:00:00"},
		{Speaker: domain.SpeakerAgent, Text: "Connecting you now", Timestamp: "2026-08-30T10:00:05"},
	}

	rec, err := svc.Register(context.Background(), RegisterInput{
		ID:           "h-1",
		SessionRef:   "room-1",
		Phone:        "+380671234567",
		CustomerName: "Oksana",
		ProductName:  "Laptop",
		Reason:       "Pricing dispute",
		Transcript:   transcript,
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if rec.ID != "h-1" || rec.CustomerName != "Oksana" || rec.ProductName != "Laptop" || rec.Reason != "Pricing dispute" {
		t.Fatalf("supplied fields not preserved: %+v", rec)
	}
	if rec.CustomerPhone != "+380671234567" {
		t.Fatalf("expected normalized phone preserved, got %q", rec.CustomerPhone)
	}

	got, err := svc.Get(context.Background(), "h-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(got.Transcript) != 2 {
		t.Fatalf("expected 2 transcript entries, got %d", len(got.Transcript))
	}
	for i := range transcript {
		if got.Transcript[i] != transcript[i] {
			t.Fatalf("transcript entry %d changed: got %+v want %+v", i, got.Transcript[i], transcript[i])
		}
	}
}

func TestRegister_OverwritesPendingRecord(t *testing.T) {
	svc := newTestService(testIssuer(), nil)
	ctx := context.Background()

	first, err := svc.Register(ctx, RegisterInput{ID: "h-1", SessionRef: "room-1", CustomerName: "First"})
	if err != nil {
		t.Fatalf("first register failed: %v", err)
	}

	second, err := svc.Register(ctx, RegisterInput{ID: "h-1", SessionRef: "room-1", CustomerName: "Second"})
	if err != nil {
		t.Fatalf("second register failed: %v", err)
	}

	if second.CustomerName != "Second" {
		t.Fatalf("expected overwritten name, got %q", second.CustomerName)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Fatal("expected re-registration to keep original createdAt")
	}

	pending, err := svc.ListPending(ctx)
	if err != nil {
		t.Fatalf("list pending failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending record, got %d", len(pending))
	}
}

func TestRegister_RejectsProgressedRecord(t *testing.T) {
	svc := newTestService(testIssuer(), nil)
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterInput{ID: "h-1", SessionRef: "room-1"}); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if _, err := svc.Claim(ctx, "h-1"); err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	_, err := svc.Register(ctx, RegisterInput{ID: "h-1", SessionRef: "room-1"})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestLifecycle_RequestedClaimedCompleted(t *testing.T) {
	svc := newTestService(testIssuer(), nil)
	ctx := context.Background()

	rec, err := svc.Register(ctx, RegisterInput{SessionRef: "room-7", CustomerName: "Ivan"})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	pending, err := svc.ListPending(ctx)
	if err != nil {
		t.Fatalf("list pending failed: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != rec.ID {
		t.Fatalf("expected pending view to contain the new record, got %+v", pending)
	}

	result, err := svc.Claim(ctx, rec.ID)
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if result.Record.Status != domain.StatusActive {
		t.Fatalf("expected status active after claim, got %q", result.Record.Status)
	}
	if result.Record.ClaimedBy == "" || result.Record.ClaimedBy != result.Credential.Identity {
		t.Fatalf("expected record claimed by the credential identity, got %q vs %q",
			result.Record.ClaimedBy, result.Credential.Identity)
	}
	if result.Record.ClaimedAt == nil {
		t.Fatal("expected claimedAt to be set")
	}
	if result.Credential.Token == "" {
		t.Fatal("expected a minted credential token")
	}

	pending, err = svc.ListPending(ctx)
	if err != nil {
		t.Fatalf("list pending failed: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected empty pending view after claim, got %d records", len(pending))
	}

	completed, err := svc.Complete(ctx, rec.ID)
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if completed.Status != domain.StatusCompleted {
		t.Fatalf("expected status completed, got %q", completed.Status)
	}
	if completed.CompletedAt == nil {
		t.Fatal("expected completedAt to be set")
	}
}

func TestClaim_ExactlyOneWinnerUnderContention(t *testing.T) {
	svc := newTestService(testIssuer(), nil)
	ctx := context.Background()

	rec, err := svc.Register(ctx, RegisterInput{SessionRef: "room-9"})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	const claimers = 16

	var wg sync.WaitGroup
	results := make([]error, claimers)
	identities := make([]string, claimers)

	start := make(chan struct{})
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			res, err := svc.Claim(ctx, rec.ID)
			results[i] = err
			if err == nil {
				identities[i] = res.Record.ClaimedBy
			}
		}(i)
	}
	close(start)
	wg.Wait()

	winners := 0
	winnerIdentity := ""
	for i, err := range results {
		if err == nil {
			winners++
			winnerIdentity = identities[i]
			continue
		}
		if !apperr.Is(err, apperr.KindConflict) {
			t.Fatalf("loser %d got unexpected error: %v", i, err)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one successful claim, got %d", winners)
	}

	got, err := svc.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != domain.StatusActive || got.ClaimedBy != winnerIdentity {
		t.Fatalf("record does not reflect the single winner: %+v", got)
	}
}

func TestUnknownID_ReturnsNotFound(t *testing.T) {
	svc := newTestService(testIssuer(), nil)
	ctx := context.Background()

	if _, err := svc.Get(ctx, "missing"); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("get: expected not found, got %v", err)
	}
	if _, err := svc.Claim(ctx, "missing"); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("claim: expected not found, got %v", err)
	}
	if _, err := svc.Complete(ctx, "missing"); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("complete: expected not found, got %v", err)
	}
	if err := svc.Remove(ctx, "missing"); err != nil {
		t.Fatalf("remove of unknown ID should be a no-op, got %v", err)
	}
}

func TestClaim_IssuerUnavailableLeavesRecordPending(t *testing.T) {
	unconfigured := session.New(issuerConfig{ttl: 30 * time.Minute})
	svc := newTestService(unconfigured, nil)
	ctx := context.Background()

	rec, err := svc.Register(ctx, RegisterInput{SessionRef: "room-3"})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	_, err = svc.Claim(ctx, rec.ID)
	if !apperr.Is(err, apperr.KindUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}

	got, err := svc.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != domain.StatusRequested {
		t.Fatalf("failed issuance must not consume the claim, status is %q", got.Status)
	}
}

func TestForceStatus(t *testing.T) {
	svc := newTestService(testIssuer(), nil)
	ctx := context.Background()

	rec, err := svc.Register(ctx, RegisterInput{SessionRef: "room-5"})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	forced, err := svc.ForceStatus(ctx, rec.ID, domain.StatusActive)
	if err != nil {
		t.Fatalf("force status failed: %v", err)
	}
	if forced.Status != domain.StatusActive {
		t.Fatalf("expected active, got %q", forced.Status)
	}

	if _, err := svc.ForceStatus(ctx, rec.ID, domain.Status("bogus")); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for unknown status, got %v", err)
	}
}

func TestExpireStale_SweepsOnlyOldRequests(t *testing.T) {
	svc := newTestService(testIssuer(), nil)
	ctx := context.Background()

	base := time.Now()
	svc.now = func() time.Time { return base.Add(-20 * time.Minute) }
	stale, err := svc.Register(ctx, RegisterInput{SessionRef: "room-old"})
	if err != nil {
		t.Fatalf("register stale failed: %v", err)
	}

	svc.now = func() time.Time { return base }
	fresh, err := svc.Register(ctx, RegisterInput{SessionRef: "room-new"})
	if err != nil {
		t.Fatalf("register fresh failed: %v", err)
	}

	swept, err := svc.ExpireStale(ctx, 15*time.Minute)
	if err != nil {
		t.Fatalf("expire stale failed: %v", err)
	}
	if swept != 1 {
		t.Fatalf("expected 1 swept record, got %d", swept)
	}

	gotStale, err := svc.Get(ctx, stale.ID)
	if err != nil {
		t.Fatalf("get stale failed: %v", err)
	}
	if gotStale.Status != domain.StatusCompleted {
		t.Fatalf("expected stale record completed, got %q", gotStale.Status)
	}

	gotFresh, err := svc.Get(ctx, fresh.ID)
	if err != nil {
		t.Fatalf("get fresh failed: %v", err)
	}
	if gotFresh.Status != domain.StatusRequested {
		t.Fatalf("expected fresh record untouched, got %q", gotFresh.Status)
	}
}

func TestLifecycleEvents_ReachSubscribers(t *testing.T) {
	log := logger.New("test")
	bus := events.NewInMemoryBus(log)

	var mu sync.Mutex
	seen := make(map[string]int)
	handler := events.HandlerFunc(func(_ context.Context, event events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		seen[event.EventName()]++
		return nil
	})
	bus.Subscribe(events.HandoffRequestedName, handler)
	bus.Subscribe(events.HandoffClaimedName, handler)
	bus.Subscribe(events.HandoffCompletedName, handler)

	svc := New(repository.NewMemoryStore(), testIssuer(), bus, log)
	ctx := context.Background()

	rec, err := svc.Register(ctx, RegisterInput{SessionRef: "room-1"})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if _, err := svc.Claim(ctx, rec.ID); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if _, err := svc.Complete(ctx, rec.ID); err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	bus.Wait()

	mu.Lock()
	defer mu.Unlock()
	for _, name := range []string{events.HandoffRequestedName, events.HandoffClaimedName, events.HandoffCompletedName} {
		if seen[name] != 1 {
			t.Fatalf("expected exactly one %s event, got %d", name, seen[name])
		}
	}
}
