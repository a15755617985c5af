package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"handoff_backend/internal/handoff/domain"
	"handoff_backend/platform/apperr"
)

// MemoryStore is the process-lifetime reference backend. One mutex
// domain guards the whole map, which is acceptable for the small
// pending sets this system sees; every mutation is serialized, so the
// claim check and its effect are a single critical section.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]domain.CallHandoffRecord
}

// NewMemoryStore creates an empty in-memory record store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]domain.CallHandoffRecord),
	}
}

// Compile-time check that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

// Put inserts or overwrites the record keyed by its ID.
func (s *MemoryStore) Put(_ context.Context, rec domain.CallHandoffRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = cloneRecord(rec)
	return nil
}

// Get returns the record or apperr.NotFound.
func (s *MemoryStore) Get(_ context.Context, id string) (domain.CallHandoffRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return domain.CallHandoffRecord{}, apperr.NotFound(msgNotFound)
	}
	return cloneRecord(rec), nil
}

// List returns records matching status ordered by creation time.
func (s *MemoryStore) List(_ context.Context, status domain.Status) ([]domain.CallHandoffRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]domain.CallHandoffRecord, 0, len(s.records))
	for _, rec := range s.records {
		if status != "" && rec.Status != status {
			continue
		}
		results = append(results, cloneRecord(rec))
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].CreatedAt.Equal(results[j].CreatedAt) {
			return results[i].ID < results[j].ID
		}
		return results[i].CreatedAt.Before(results[j].CreatedAt)
	})
	return results, nil
}

// Delete removes the record. Absent IDs are a no-op.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

// Claim performs the check-and-flip under the write lock so concurrent
// claims on the same ID serialize; exactly one sees requested.
func (s *MemoryStore) Claim(_ context.Context, id, operator string, at time.Time) (domain.CallHandoffRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return domain.CallHandoffRecord{}, apperr.NotFound(msgNotFound)
	}
	if rec.Status != domain.StatusRequested {
		return domain.CallHandoffRecord{}, apperr.Conflict(msgNotClaimable)
	}

	rec.Status = domain.StatusActive
	rec.ClaimedBy = operator
	claimedAt := at
	rec.ClaimedAt = &claimedAt
	s.records[id] = rec

	return cloneRecord(rec), nil
}

// SetStatus unconditionally moves the record to the given status.
func (s *MemoryStore) SetStatus(_ context.Context, id string, to domain.Status, at time.Time) (domain.CallHandoffRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return domain.CallHandoffRecord{}, apperr.NotFound(msgNotFound)
	}

	applyStatus(&rec, to, at)
	s.records[id] = rec
	return cloneRecord(rec), nil
}

// SetStatusIf moves the record to the given status only from the
// expected current status.
func (s *MemoryStore) SetStatusIf(_ context.Context, id string, from, to domain.Status, at time.Time) (domain.CallHandoffRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return domain.CallHandoffRecord{}, apperr.NotFound(msgNotFound)
	}
	if rec.Status != from {
		return domain.CallHandoffRecord{}, apperr.Conflict(msgNotClaimable)
	}

	applyStatus(&rec, to, at)
	s.records[id] = rec
	return cloneRecord(rec), nil
}

func applyStatus(rec *domain.CallHandoffRecord, to domain.Status, at time.Time) {
	rec.Status = to
	if to == domain.StatusCompleted {
		completedAt := at
		rec.CompletedAt = &completedAt
	}
}

// cloneRecord copies the record including its transcript slice so
// callers can never mutate stored state through a returned value.
func cloneRecord(rec domain.CallHandoffRecord) domain.CallHandoffRecord {
	out := rec
	if rec.Transcript != nil {
		out.Transcript = make([]domain.TranscriptEntry, len(rec.Transcript))
		copy(out.Transcript, rec.Transcript)
	}
	if rec.ClaimedAt != nil {
		claimedAt := *rec.ClaimedAt
		out.ClaimedAt = &claimedAt
	}
	if rec.CompletedAt != nil {
		completedAt := *rec.CompletedAt
		out.CompletedAt = &completedAt
	}
	return out
}
