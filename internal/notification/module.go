// Package notification bridges handoff lifecycle events to operator
// clients. It subscribes to the domain event bus and fans events out
// over the SSE stream; polling clients use the pending view directly.
package notification

import (
	"context"

	"handoff_backend/internal/events"
	apphttp "handoff_backend/internal/http"
	"handoff_backend/internal/notification/sse"
	"handoff_backend/platform/logger"
)

// Module is the notification module implementing http.Module.
type Module struct {
	sse *sse.Service
	log *logger.Logger
}

// New creates the notification module.
func New(log *logger.Logger) *Module {
	return &Module{
		sse: sse.New(log),
		log: log,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "notification"
}

// SSE returns the underlying stream service for shutdown handling.
func (m *Module) SSE() *sse.Service {
	return m.sse
}

// Close disconnects all SSE clients.
func (m *Module) Close() {
	m.sse.Close()
}

// RegisterRoutes mounts the operator event stream.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.V1.GET("/handoffs/events", m.sse.Handler())
}

// RegisterHandlers subscribes to handoff lifecycle events.
func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.HandoffRequestedName, m)
	bus.Subscribe(events.HandoffClaimedName, m)
	bus.Subscribe(events.HandoffCompletedName, m)
}

// Handle routes events to the SSE broadcast.
func (m *Module) Handle(_ context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.HandoffRequested:
		m.sse.Broadcast(sse.Event{
			Type:         sse.EventHandoffRequested,
			HandoffID:    e.HandoffID,
			SessionRef:   e.SessionRef,
			CustomerName: e.CustomerName,
			Reason:       e.Reason,
		})
	case events.HandoffClaimed:
		m.sse.Broadcast(sse.Event{
			Type:       sse.EventHandoffClaimed,
			HandoffID:  e.HandoffID,
			SessionRef: e.SessionRef,
			Operator:   e.Operator,
		})
	case events.HandoffCompleted:
		m.sse.Broadcast(sse.Event{
			Type:      sse.EventHandoffCompleted,
			HandoffID: e.HandoffID,
		})
	}
	return nil
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
