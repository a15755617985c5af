// Package handler exposes the handoff registry over HTTP. Handlers are
// thin translations over the service; they hold no state of their own.
package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"handoff_backend/internal/handoff/domain"
	"handoff_backend/internal/handoff/service"
	"handoff_backend/internal/handoff/transport"
	"handoff_backend/platform/apperr"
	"handoff_backend/platform/httpkit"
	"handoff_backend/platform/validator"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgMissingID        = "handoff ID is required"
)

// Handler handles HTTP requests for call handoffs.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new handoff handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// Register accepts a handoff request from the voice-agent process.
// POST /api/v1/handoffs/register
func (h *Handler) Register(c *gin.Context) {
	var req transport.RegisterHandoffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	rec, err := h.svc.Register(c.Request.Context(), service.RegisterInput{
		ID:           req.ID,
		SessionRef:   req.SessionRef,
		Phone:        req.Phone,
		CustomerName: req.CustomerName,
		ProductName:  req.ProductName,
		Reason:       req.Reason,
		Transcript:   transport.TranscriptFromDTO(req.Transcript),
	})
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.RegisterHandoffResponse{Success: true, HandoffID: rec.ID})
}

// Pending returns the live pending view for operator dashboards.
// GET /api/v1/handoffs/pending
func (h *Handler) Pending(c *gin.Context) {
	recs, err := h.svc.ListPending(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.PendingHandoffsResponse{Handoffs: transport.FromRecords(recs)})
}

// GetByID returns one record for the operator detail view.
// GET /api/v1/handoffs/:id
func (h *Handler) GetByID(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		httpkit.Error(c, http.StatusBadRequest, msgMissingID, nil)
		return
	}

	rec, err := h.svc.Get(c.Request.Context(), id)
	if httpkit.HandleError(c, withID(err, id)) {
		return
	}
	httpkit.OK(c, transport.FromRecord(rec))
}

// Claim lets an operator take exclusive ownership of a pending handoff
// and returns the session credential on success.
// POST /api/v1/handoffs/:id/claim
func (h *Handler) Claim(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		httpkit.Error(c, http.StatusBadRequest, msgMissingID, nil)
		return
	}

	result, err := h.svc.Claim(c.Request.Context(), id)
	if httpkit.HandleError(c, withID(err, id)) {
		return
	}

	rec := result.Record
	httpkit.OK(c, transport.ClaimHandoffResponse{
		ServerURL:        result.Credential.ServerURL,
		SessionRef:       rec.SessionRef,
		Credential:       result.Credential.Token,
		OperatorIdentity: result.Credential.Identity,
		ExpiresAt:        result.Credential.ExpiresAt.UTC().Format(time.RFC3339),
		CallDetails: transport.CallDetails{
			CustomerName: rec.CustomerName,
			Phone:        rec.CustomerPhone,
			ProductName:  rec.ProductName,
			Reason:       rec.Reason,
			Transcript:   transport.TranscriptToDTO(rec.Transcript),
		},
	})
}

// Complete marks a handoff as finished.
// POST /api/v1/handoffs/:id/complete
func (h *Handler) Complete(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		httpkit.Error(c, http.StatusBadRequest, msgMissingID, nil)
		return
	}

	if _, err := h.svc.Complete(c.Request.Context(), id); httpkit.HandleError(c, withID(err, id)) {
		return
	}
	httpkit.OK(c, transport.CompleteHandoffResponse{Success: true})
}

// Remove deletes a record outright.
// DELETE /api/v1/handoffs/:id
func (h *Handler) Remove(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		httpkit.Error(c, http.StatusBadRequest, msgMissingID, nil)
		return
	}

	if err := h.svc.Remove(c.Request.Context(), id); httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"success": true})
}

// ForceStatus applies the administrative status override.
// PATCH /api/v1/handoffs/:id/status
func (h *Handler) ForceStatus(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		httpkit.Error(c, http.StatusBadRequest, msgMissingID, nil)
		return
	}

	var req transport.ForceStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	rec, err := h.svc.ForceStatus(c.Request.Context(), id, domain.Status(req.Status))
	if httpkit.HandleError(c, withID(err, id)) {
		return
	}
	httpkit.OK(c, transport.FromRecord(rec))
}

// withID annotates typed errors with the record ID so failure payloads
// identify which handoff they concern.
func withID(err error, id string) error {
	if err == nil {
		return nil
	}
	if domainErr, ok := err.(*apperr.Error); ok {
		return domainErr.WithDetails(gin.H{"id": id})
	}
	return err
}
