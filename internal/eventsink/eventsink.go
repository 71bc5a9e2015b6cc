// Package eventsink publishes one TaskStateChange per accepted transition,
// dispatched strictly post-commit through a single entrypoint.
package eventsink

import "github.com/nextlevelbuilder/clusterd/internal/model"

// TaskStateChange is the tagged event published for every accepted
// transition.
type TaskStateChange struct {
	TaskID    string
	OldStatus model.ScheduleStatus
	NewStatus model.ScheduleStatus
	Message   string
}

// EventSink receives published TaskStateChange events.
type EventSink interface {
	Publish(change TaskStateChange)
}
