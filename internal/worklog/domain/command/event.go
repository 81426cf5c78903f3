package command

import (
	"time"

	"github.com/openclock/worklog/internal/worklog/domain/event"
)

// NewEvent builds an event.Event by copying the shared envelope fields from a
// command. Callers supply the event-specific type, payload, and timestamp.
// This keeps per-decider boilerplate down and ensures new envelope fields are
// forwarded automatically.
func NewEvent(cmd Command, eventType event.Type, payloadJSON []byte, now time.Time) event.Event {
	return event.Event{
		AggregateID:   AggregateID(cmd.MemberID, cmd.Month),
		AggregateType: event.AggregateTypeTimesheet,
		Type:          eventType,
		Timestamp:     now,
		ActorType:     cmd.ActorType,
		ActorID:       cmd.ActorID,
		PayloadJSON:   payloadJSON,
	}
}

// AggregateID derives the timesheet aggregate identifier for a member-month.
func AggregateID(memberID, month string) string {
	return "timesheet/" + memberID + "/" + month
}
