// Package transport defines the request/response contracts of the
// handoff HTTP surface.
package transport

import (
	"time"

	"handoff_backend/internal/handoff/domain"
)

// TranscriptEntryDTO mirrors domain.TranscriptEntry on the wire.
type TranscriptEntryDTO struct {
	Speaker   string `json:"speaker" validate:"omitempty,oneof=agent customer"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// RegisterHandoffRequest is posted by the voice-agent process when it
// decides a human is needed. Every descriptive field is optional;
// omitted values are replaced by documented defaults.
type RegisterHandoffRequest struct {
	ID           string               `json:"id" validate:"omitempty,max=128"`
	SessionRef   string               `json:"sessionRef" validate:"required,max=256"`
	Phone        string               `json:"phone" validate:"omitempty,max=32"`
	CustomerName string               `json:"customerName" validate:"omitempty,max=256"`
	ProductName  string               `json:"productName" validate:"omitempty,max=256"`
	Reason       string               `json:"reason" validate:"omitempty,max=1024"`
	Transcript   []TranscriptEntryDTO `json:"transcript" validate:"omitempty,dive"`
}

// RegisterHandoffResponse acknowledges a registration.
type RegisterHandoffResponse struct {
	Success   bool   `json:"success"`
	HandoffID string `json:"handoffId"`
}

// ForceStatusRequest is the administrative status override body.
type ForceStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active requested completed"`
}

// HandoffResponse is the record representation returned to operators.
type HandoffResponse struct {
	ID            string               `json:"id"`
	SessionRef    string               `json:"sessionRef"`
	CustomerPhone string               `json:"customerPhone"`
	CustomerName  string               `json:"customerName"`
	ProductName   string               `json:"productName"`
	Status        string               `json:"status"`
	Reason        string               `json:"reason"`
	ClaimedBy     string               `json:"claimedBy,omitempty"`
	CreatedAt     string               `json:"createdAt"`
	Transcript    []TranscriptEntryDTO `json:"transcript"`
}

// PendingHandoffsResponse wraps the live pending view.
type PendingHandoffsResponse struct {
	Handoffs []HandoffResponse `json:"handoffs"`
}

// CallDetails is the context snapshot handed to the claiming operator.
type CallDetails struct {
	CustomerName string               `json:"customerName"`
	Phone        string               `json:"phone"`
	ProductName  string               `json:"productName"`
	Reason       string               `json:"reason"`
	Transcript   []TranscriptEntryDTO `json:"transcript"`
}

// ClaimHandoffResponse carries everything the operator client needs to
// join the live session.
type ClaimHandoffResponse struct {
	ServerURL        string      `json:"serverUrl"`
	SessionRef       string      `json:"sessionRef"`
	Credential       string      `json:"credential"`
	OperatorIdentity string      `json:"operatorIdentity"`
	ExpiresAt        string      `json:"expiresAt"`
	CallDetails      CallDetails `json:"callDetails"`
}

// CompleteHandoffResponse acknowledges completion.
type CompleteHandoffResponse struct {
	Success bool `json:"success"`
}

// FromRecord converts a domain record to its wire representation.
func FromRecord(rec domain.CallHandoffRecord) HandoffResponse {
	return HandoffResponse{
		ID:            rec.ID,
		SessionRef:    rec.SessionRef,
		CustomerPhone: rec.CustomerPhone,
		CustomerName:  rec.CustomerName,
		ProductName:   rec.ProductName,
		Status:        string(rec.Status),
		Reason:        rec.Reason,
		ClaimedBy:     rec.ClaimedBy,
		CreatedAt:     rec.CreatedAt.Format(time.RFC3339),
		Transcript:    TranscriptToDTO(rec.Transcript),
	}
}

// FromRecords converts a record slice, preserving order.
func FromRecords(recs []domain.CallHandoffRecord) []HandoffResponse {
	out := make([]HandoffResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, FromRecord(rec))
	}
	return out
}

// TranscriptToDTO converts transcript entries verbatim, preserving
// insertion order.
func TranscriptToDTO(entries []domain.TranscriptEntry) []TranscriptEntryDTO {
	out := make([]TranscriptEntryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, TranscriptEntryDTO{
			Speaker:   e.Speaker,
			Text:      e.Text,
			Timestamp: e.Timestamp,
		})
	}
	return out
}

// TranscriptFromDTO converts wire transcript entries to domain entries.
func TranscriptFromDTO(entries []TranscriptEntryDTO) []domain.TranscriptEntry {
	if entries == nil {
		return nil
	}
	out := make([]domain.TranscriptEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, domain.TranscriptEntry{
			Speaker:   e.Speaker,
			Text:      e.Text,
			Timestamp: e.Timestamp,
		})
	}
	return out
}
