package events

// Event names for the handoff lifecycle.
const (
	HandoffRequestedName = "handoff.requested"
	HandoffClaimedName   = "handoff.claimed"
	HandoffCompletedName = "handoff.completed"
)

// HandoffRequested is published when the voice agent registers a new
// handoff request. Notification channels surface it to operators.
type HandoffRequested struct {
	BaseEvent
	HandoffID    string
	SessionRef   string
	CustomerName string
	Reason       string
}

// EventName returns the unique identifier for this event type.
func (HandoffRequested) EventName() string { return HandoffRequestedName }

// HandoffClaimed is published after an operator's claim won and a
// credential was issued.
type HandoffClaimed struct {
	BaseEvent
	HandoffID  string
	SessionRef string
	Operator   string
}

// EventName returns the unique identifier for this event type.
func (HandoffClaimed) EventName() string { return HandoffClaimedName }

// HandoffCompleted is published when a record reaches the terminal state,
// whether by operator action or the stale-request sweep.
type HandoffCompleted struct {
	BaseEvent
	HandoffID string
	Swept     bool
}

// EventName returns the unique identifier for this event type.
func (HandoffCompleted) EventName() string { return HandoffCompletedName }
