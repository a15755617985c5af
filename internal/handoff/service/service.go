// Package service implements the handoff registry: the process-wide
// lifecycle manager for call handoff records. All record mutation goes
// through this service; the pending view is always computed live from
// the store so it can never diverge from a record's true status.
package service

import (
	"context"
	"time"

	"handoff_backend/internal/events"
	"handoff_backend/internal/handoff/domain"
	"handoff_backend/internal/handoff/repository"
	"handoff_backend/internal/session"
	"handoff_backend/platform/apperr"
	"handoff_backend/platform/logger"
	"handoff_backend/platform/phone"

	"github.com/google/uuid"
)

// Documented defaults substituted for omitted registration fields.
const (
	DefaultPhone    = "Unknown"
	DefaultCustomer = "Customer"
	DefaultProduct  = "Unknown product"
	DefaultReason   = "Customer requested human agent"
)

// RegisterInput carries the descriptive fields the voice agent supplies
// when it decides a human is needed.
type RegisterInput struct {
	ID           string
	SessionRef   string
	Phone        string
	CustomerName string
	ProductName  string
	Reason       string
	Transcript   []domain.TranscriptEntry
}

// ClaimResult pairs the transitioned record with the minted credential.
type ClaimResult struct {
	Record     domain.CallHandoffRecord
	Credential session.Credential
}

// Service is the handoff registry.
type Service struct {
	store  repository.Store
	issuer *session.Issuer
	bus    events.Bus
	log    *logger.Logger
	now    func() time.Time
}

// New creates the registry service.
func New(store repository.Store, issuer *session.Issuer, bus events.Bus, log *logger.Logger) *Service {
	return &Service{
		store:  store,
		issuer: issuer,
		bus:    bus,
		log:    log,
		now:    time.Now,
	}
}

// Register creates (or refreshes) a handoff record in the requested
// state. It is idempotent on a caller-supplied ID: descriptive fields
// are overwritten, but a record that already progressed past requested
// is never regressed, so a late or duplicate registration cannot undo a
// claim. Re-registration of an active or completed ID is rejected.
func (s *Service) Register(ctx context.Context, in RegisterInput) (domain.CallHandoffRecord, error) {
	id := in.ID
	if id == "" {
		id = uuid.NewString()
	}

	createdAt := s.now()
	if existing, err := s.store.Get(ctx, id); err == nil {
		if existing.Status != domain.StatusRequested {
			return domain.CallHandoffRecord{}, apperr.Conflict("handoff already claimed or completed")
		}
		// Overwrite fields, keep the original position in the pending
		// ordering.
		createdAt = existing.CreatedAt
	} else if !apperr.Is(err, apperr.KindNotFound) {
		return domain.CallHandoffRecord{}, err
	}

	rec := domain.CallHandoffRecord{
		ID:            id,
		SessionRef:    in.SessionRef,
		CustomerPhone: withDefault(phone.NormalizeE164(in.Phone), DefaultPhone),
		CustomerName:  withDefault(in.CustomerName, DefaultCustomer),
		ProductName:   withDefault(in.ProductName, DefaultProduct),
		Reason:        withDefault(in.Reason, DefaultReason),
		Status:        domain.StatusRequested,
		CreatedAt:     createdAt,
		Transcript:    in.Transcript,
	}

	if err := s.store.Put(ctx, rec); err != nil {
		return domain.CallHandoffRecord{}, err
	}

	s.log.HandoffEvent("requested", rec.ID, rec.SessionRef)
	s.publish(ctx, events.HandoffRequested{
		BaseEvent:    events.NewBaseEvent(),
		HandoffID:    rec.ID,
		SessionRef:   rec.SessionRef,
		CustomerName: rec.CustomerName,
		Reason:       rec.Reason,
	})

	return rec, nil
}

// ListPending returns the live pending view: every record whose status
// is exactly requested, oldest first.
func (s *Service) ListPending(ctx context.Context) ([]domain.CallHandoffRecord, error) {
	return s.store.List(ctx, domain.StatusRequested)
}

// Get returns a single record by ID.
func (s *Service) Get(ctx context.Context, id string) (domain.CallHandoffRecord, error) {
	return s.store.Get(ctx, id)
}

// Claim takes exclusive ownership of a requested record for a freshly
// synthesized operator identity and mints the session credential.
// Minting happens before the store transition: if signing is
// unavailable the record stays requested, and if the transition loses a
// concurrent race the minted token is discarded. Either way a failed
// claim is never consumed.
func (s *Service) Claim(ctx context.Context, id string) (ClaimResult, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return ClaimResult{}, err
	}
	if !rec.Claimable() {
		s.log.ClaimRejected(id, "not pending")
		return ClaimResult{}, apperr.Conflict("handoff already claimed or not pending")
	}

	identity := session.NewOperatorIdentity()
	cred, err := s.issuer.Mint(identity, rec.SessionRef)
	if err != nil {
		return ClaimResult{}, err
	}

	claimed, err := s.store.Claim(ctx, id, identity, s.now())
	if err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			s.log.ClaimRejected(id, "lost claim race")
		}
		return ClaimResult{}, err
	}

	s.log.HandoffEvent("claimed", claimed.ID, claimed.SessionRef)
	s.publish(ctx, events.HandoffClaimed{
		BaseEvent:  events.NewBaseEvent(),
		HandoffID:  claimed.ID,
		SessionRef: claimed.SessionRef,
		Operator:   identity,
	})

	return ClaimResult{Record: claimed, Credential: cred}, nil
}

// Complete marks the record's lifecycle as finished. Completing an
// already-completed record is a harmless repeat of the same transition.
func (s *Service) Complete(ctx context.Context, id string) (domain.CallHandoffRecord, error) {
	rec, err := s.store.SetStatus(ctx, id, domain.StatusCompleted, s.now())
	if err != nil {
		return domain.CallHandoffRecord{}, err
	}

	s.log.HandoffEvent("completed", rec.ID, rec.SessionRef)
	s.publish(ctx, events.HandoffCompleted{
		BaseEvent: events.NewBaseEvent(),
		HandoffID: rec.ID,
	})
	return rec, nil
}

// Remove deletes the record from the store. Removing an unknown ID is a
// no-op.
func (s *Service) Remove(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

// ForceStatus is the administrative override: it moves an existing
// record to any valid status without transition guards.
func (s *Service) ForceStatus(ctx context.Context, id string, to domain.Status) (domain.CallHandoffRecord, error) {
	if !to.Valid() {
		return domain.CallHandoffRecord{}, apperr.Validation("unknown handoff status")
	}
	return s.store.SetStatus(ctx, id, to, s.now())
}

// ExpireStale completes every record that has sat in requested longer
// than olderThan. The conditional transition means a record claimed
// between the listing and the sweep is left alone. Returns the number
// of records swept.
func (s *Service) ExpireStale(ctx context.Context, olderThan time.Duration) (int, error) {
	pending, err := s.store.List(ctx, domain.StatusRequested)
	if err != nil {
		return 0, err
	}

	cutoff := s.now().Add(-olderThan)
	swept := 0
	for _, rec := range pending {
		if !rec.CreatedAt.Before(cutoff) {
			continue
		}

		if _, err := s.store.SetStatusIf(ctx, rec.ID, domain.StatusRequested, domain.StatusCompleted, s.now()); err != nil {
			if apperr.Is(err, apperr.KindConflict) || apperr.Is(err, apperr.KindNotFound) {
				continue
			}
			return swept, err
		}

		swept++
		s.log.HandoffEvent("swept", rec.ID, rec.SessionRef)
		s.publish(ctx, events.HandoffCompleted{
			BaseEvent: events.NewBaseEvent(),
			HandoffID: rec.ID,
			Swept:     true,
		})
	}
	return swept, nil
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(ctx, event)
}

func withDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
