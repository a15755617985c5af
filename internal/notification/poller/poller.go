// Package poller implements the pull side of the notification channel:
// a recurring "is anything pending?" read with de-duplicated alerting.
// The pending view is authoritative; the poller only decides which
// records are worth alerting on. Each poller tracks the record IDs it
// has already alerted on, so repeated polls never re-trigger an alert
// for the same unclaimed record, while a record reappearing under a new
// ID is always treated as new.
package poller

import (
	"context"
	"time"

	"handoff_backend/internal/handoff/domain"
)

// DefaultInterval is the reference poll interval; it is also the
// accepted staleness bound for surfacing new requests.
const DefaultInterval = 3 * time.Second

// PendingLister is the source of the pending view. The in-process
// registry service satisfies it, as does the HTTP Client in this
// package for remote operator tooling.
type PendingLister interface {
	ListPending(ctx context.Context) ([]domain.CallHandoffRecord, error)
}

// AlertFunc is invoked once per newly observed pending record.
type AlertFunc func(rec domain.CallHandoffRecord)

// Poller periodically reads the pending view and alerts on new records.
// It is owned by a single goroutine; no internal locking.
type Poller struct {
	lister   PendingLister
	interval time.Duration
	onAlert  AlertFunc
	seen     map[string]struct{}
}

// New creates a poller. A non-positive interval falls back to
// DefaultInterval.
func New(lister PendingLister, interval time.Duration, onAlert AlertFunc) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		lister:   lister,
		interval: interval,
		onAlert:  onAlert,
		seen:     make(map[string]struct{}),
	}
}

// Poll performs one read of the pending view and returns the records
// alerted on this round. Duplicate reads of an already-seen record are
// silent; a missed poll is harmless because the next read returns the
// full pending set again.
func (p *Poller) Poll(ctx context.Context) ([]domain.CallHandoffRecord, error) {
	pending, err := p.lister.ListPending(ctx)
	if err != nil {
		return nil, err
	}

	var fresh []domain.CallHandoffRecord
	for _, rec := range pending {
		if _, ok := p.seen[rec.ID]; ok {
			continue
		}
		p.seen[rec.ID] = struct{}{}
		fresh = append(fresh, rec)
		if p.onAlert != nil {
			p.onAlert(rec)
		}
	}
	return fresh, nil
}

// Run polls on the fixed interval until the context is cancelled.
// Errors from individual polls are swallowed; the next tick retries.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = p.Poll(ctx)
		}
	}
}
