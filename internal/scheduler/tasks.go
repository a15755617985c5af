package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskHandoffSweep = "handoffs.sweep"

// HandoffSweepPayload carries the staleness threshold for one sweep run.
type HandoffSweepPayload struct {
	OlderThanMinutes int `json:"olderThanMinutes"`
}

func NewHandoffSweepTask(payload HandoffSweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskHandoffSweep, data), nil
}

func ParseHandoffSweepPayload(task *asynq.Task) (HandoffSweepPayload, error) {
	var payload HandoffSweepPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return HandoffSweepPayload{}, err
	}
	return payload, nil
}
