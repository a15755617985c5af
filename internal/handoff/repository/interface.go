// Package repository provides keyed storage of call handoff records.
// Three interchangeable backends exist: an in-process map (default), a
// Redis hash layout, and a PostgreSQL table. All three satisfy the same
// contract; in particular Claim is atomic with respect to concurrent
// claims on the same record in every backend.
package repository

import (
	"context"
	"time"

	"handoff_backend/internal/handoff/domain"
)

// Messages shared by all backends so callers see uniform errors.
const (
	msgNotFound     = "handoff not found"
	msgNotClaimable = "handoff already claimed or not pending"
)

// Store is the record store contract consumed by the registry service.
type Store interface {
	// Put inserts or overwrites the record keyed by its ID.
	Put(ctx context.Context, rec domain.CallHandoffRecord) error

	// Get returns the record or apperr.NotFound. It never returns a
	// zero-value record for a missing ID.
	Get(ctx context.Context, id string) (domain.CallHandoffRecord, error)

	// List returns records matching status, ordered by CreatedAt
	// ascending. A zero-value status matches all records. The pending
	// view is always List(StatusRequested) over this single store.
	List(ctx context.Context, status domain.Status) ([]domain.CallHandoffRecord, error)

	// Delete removes the record. Deleting an absent ID is a no-op.
	Delete(ctx context.Context, id string) error

	// Claim atomically transitions the record from requested to active,
	// recording the operator identity and claim time in the same
	// indivisible step. Returns apperr.NotFound for an unknown ID and
	// apperr.Conflict when the record is not exactly requested.
	// Concurrent claims on one ID yield exactly one success.
	Claim(ctx context.Context, id, operator string, at time.Time) (domain.CallHandoffRecord, error)

	// SetStatus unconditionally moves the record to the given status
	// (administrative override and completion). Returns apperr.NotFound
	// for an unknown ID.
	SetStatus(ctx context.Context, id string, to domain.Status, at time.Time) (domain.CallHandoffRecord, error)

	// SetStatusIf moves the record to the given status only when it is
	// currently in from. Returns apperr.Conflict otherwise. Used by the
	// stale-request sweep so it never completes a claimed call.
	SetStatusIf(ctx context.Context, id string, from, to domain.Status, at time.Time) (domain.CallHandoffRecord, error)
}
