// Package handoff provides the call handoff bounded context module:
// the record store, the registry state machine, and the operator-facing
// HTTP surface.
package handoff

import (
	"handoff_backend/internal/events"
	"handoff_backend/internal/handoff/handler"
	"handoff_backend/internal/handoff/repository"
	"handoff_backend/internal/handoff/service"
	apphttp "handoff_backend/internal/http"
	"handoff_backend/internal/session"
	"handoff_backend/platform/logger"
	"handoff_backend/platform/validator"
)

// Module is the handoff bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
	store   repository.Store
}

// NewModule creates and initializes the handoff module with all its
// dependencies. The store backend is chosen by the composition root.
func NewModule(store repository.Store, issuer *session.Issuer, bus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	svc := service.New(store, issuer, bus, log)
	h := handler.New(svc, val)

	return &Module{
		handler: h,
		service: svc,
		store:   store,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "handoff"
}

// Service returns the registry service for external use (sweeper,
// notification pollers in-process).
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts handoff routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.V1.Group("/handoffs")

	// The voice agent registers at a low rate; throttle tighter there.
	group.POST("/register", ctx.RegisterRateLimiter.RateLimit(), m.handler.Register)

	group.GET("/pending", m.handler.Pending)
	group.GET("/:id", m.handler.GetByID)
	group.POST("/:id/claim", m.handler.Claim)
	group.POST("/:id/complete", m.handler.Complete)
	group.DELETE("/:id", m.handler.Remove)
	group.PATCH("/:id/status", m.handler.ForceStatus)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
