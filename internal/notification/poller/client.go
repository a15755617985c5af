package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"handoff_backend/internal/handoff/domain"
)

// Client is an HTTP PendingLister for operator tooling running outside
// the API process. It reads the same /handoffs/pending contract the
// dashboard uses.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a pending-view client for the given API base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Compile-time check that Client implements PendingLister.
var _ PendingLister = (*Client)(nil)

type pendingPayload struct {
	Handoffs []struct {
		ID            string `json:"id"`
		SessionRef    string `json:"sessionRef"`
		CustomerPhone string `json:"customerPhone"`
		CustomerName  string `json:"customerName"`
		ProductName   string `json:"productName"`
		Status        string `json:"status"`
		Reason        string `json:"reason"`
		CreatedAt     string `json:"createdAt"`
		Transcript    []struct {
			Speaker   string `json:"speaker"`
			Text      string `json:"text"`
			Timestamp string `json:"timestamp"`
		} `json:"transcript"`
	} `json:"handoffs"`
}

// ListPending fetches the live pending view.
func (c *Client) ListPending(ctx context.Context) ([]domain.CallHandoffRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/handoffs/pending", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pending view request failed with status %d", resp.StatusCode)
	}

	var payload pendingPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode pending view: %w", err)
	}

	records := make([]domain.CallHandoffRecord, 0, len(payload.Handoffs))
	for _, h := range payload.Handoffs {
		createdAt, err := time.Parse(time.RFC3339, h.CreatedAt)
		if err != nil {
			createdAt = time.Time{}
		}

		rec := domain.CallHandoffRecord{
			ID:            h.ID,
			SessionRef:    h.SessionRef,
			CustomerPhone: h.CustomerPhone,
			CustomerName:  h.CustomerName,
			ProductName:   h.ProductName,
			Status:        domain.Status(h.Status),
			Reason:        h.Reason,
			CreatedAt:     createdAt,
		}
		for _, entry := range h.Transcript {
			rec.Transcript = append(rec.Transcript, domain.TranscriptEntry{
				Speaker:   entry.Speaker,
				Text:      entry.Text,
				Timestamp: entry.Timestamp,
			})
		}
		records = append(records, rec)
	}
	return records, nil
}
