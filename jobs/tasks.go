package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPlanningSweep is the task type for the full-catalog planning sweep.
	TaskPlanningSweep = "planning:sweep"
)

// SweepPayload carries the provenance of a sweep request.
type SweepPayload struct {
	Trigger string `json:"trigger"`
}

// NewSweepTask constructs an Asynq task for a planning sweep.
func NewSweepTask(payload SweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPlanningSweep, data), nil
}
