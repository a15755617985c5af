// Package domain holds the call handoff record model and its status
// state machine. It has no dependencies on storage or transport.
package domain

import "time"

// Status is the handoff lifecycle state of a call record.
type Status string

const (
	// StatusActive means the call is live with no handoff pending. A
	// record reaches active only through a successful operator claim.
	StatusActive Status = "active"
	// StatusRequested means the agent flagged the call for human
	// takeover and no operator has claimed it yet.
	StatusRequested Status = "requested"
	// StatusCompleted is terminal. The record may be deleted or kept
	// for audit depending on the store backend's retention policy.
	StatusCompleted Status = "completed"
)

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusRequested, StatusCompleted:
		return true
	}
	return false
}

// Speaker identifies who produced a transcript line.
const (
	SpeakerAgent    = "agent"
	SpeakerCustomer = "customer"
)

// TranscriptEntry is a single line of conversation captured before the
// handoff was requested. Entries are immutable once attached to a record
// and their order must be preserved verbatim.
type TranscriptEntry struct {
	Speaker   string `json:"speaker"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// CallHandoffRecord tracks one call's handoff lifecycle from
// registration until completion or removal.
type CallHandoffRecord struct {
	ID            string            `json:"id"`
	SessionRef    string            `json:"sessionRef"`
	CustomerPhone string            `json:"customerPhone"`
	CustomerName  string            `json:"customerName"`
	ProductName   string            `json:"productName"`
	Status        Status            `json:"status"`
	Reason        string            `json:"reason"`
	ClaimedBy     string            `json:"claimedBy,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	ClaimedAt     *time.Time        `json:"claimedAt,omitempty"`
	CompletedAt   *time.Time        `json:"completedAt,omitempty"`
	Transcript    []TranscriptEntry `json:"transcript"`
}

// Claimable reports whether the record is in the one state a claim may
// consume. The check itself is advisory; the store's claim operation
// re-evaluates it atomically.
func (r CallHandoffRecord) Claimable() bool {
	return r.Status == StatusRequested
}
