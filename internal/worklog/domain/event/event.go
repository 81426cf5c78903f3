// Package event defines the immutable facts recorded in the work-log journal.
package event

import (
	"strings"
	"time"
)

// Type identifies the type of a work-log event.
type Type string

// Entry events.
const (
	// TypeEntryLogged records a work entry being created or replaced.
	TypeEntryLogged Type = "entry.logged"
	// TypeEntryDeleted records a work entry being removed.
	TypeEntryDeleted Type = "entry.deleted"
)

// Absence events.
const (
	// TypeAbsenceLogged records an absence being created or replaced.
	TypeAbsenceLogged Type = "absence.logged"
	// TypeAbsenceDeleted records an absence being removed.
	TypeAbsenceDeleted Type = "absence.deleted"
)

// Day-level workflow events.
const (
	// TypeDaySubmitted records one day's draft records moving to submitted.
	TypeDaySubmitted Type = "day.submitted"
	// TypeDayRejected records a reviewer rejecting one day's submitted records.
	TypeDayRejected Type = "day.rejected"
	// TypeDayRecalled records the member withdrawing one day's submission.
	TypeDayRecalled Type = "day.recalled"
)

// Month-level workflow events.
const (
	// TypeMonthSubmitted records the month being submitted for review.
	TypeMonthSubmitted Type = "month.submitted"
	// TypeMonthApproved records the reviewer approving the month.
	TypeMonthApproved Type = "month.approved"
	// TypeMonthRejected records the reviewer rejecting the month.
	TypeMonthRejected Type = "month.rejected"
	// TypeMonthRecalled records the member withdrawing the month submission.
	TypeMonthRecalled Type = "month.recalled"
)

// Types returns every event type the timesheet aggregate can record.
// The aggregate fold and the projection applier are checked against this
// list so a new type cannot be added without wiring both.
func Types() []Type {
	return []Type{
		TypeEntryLogged,
		TypeEntryDeleted,
		TypeAbsenceLogged,
		TypeAbsenceDeleted,
		TypeDaySubmitted,
		TypeDayRejected,
		TypeDayRecalled,
		TypeMonthSubmitted,
		TypeMonthApproved,
		TypeMonthRejected,
		TypeMonthRecalled,
	}
}

// ActorType identifies who or what triggered an event.
type ActorType string

const (
	// ActorTypeSystem indicates the event was triggered by the system.
	ActorTypeSystem ActorType = "system"
	// ActorTypeMember indicates the event was triggered by the owning member.
	ActorTypeMember ActorType = "member"
	// ActorTypeReviewer indicates the event was triggered by the member's
	// reviewer, either reviewing or acting by proxy.
	ActorTypeReviewer ActorType = "reviewer"
)

// AggregateTypeTimesheet tags events belonging to a member-month timesheet.
const AggregateTypeTimesheet = "timesheet"

// Event represents an immutable event in the work-log journal.
type Event struct {
	// AggregateID is the aggregate this event belongs to.
	AggregateID string
	// AggregateType tags the kind of aggregate (currently always timesheet).
	AggregateType string
	// Seq is the event sequence number within the aggregate (starts at 1).
	// Assigned by storage on append.
	Seq uint64
	// Timestamp is when the event occurred.
	Timestamp time.Time
	// Type identifies the kind of event.
	Type Type
	// ActorType identifies who triggered the event.
	ActorType ActorType
	// ActorID is the member or reviewer id behind the action.
	ActorID string
	// PayloadJSON holds event-specific data as JSON.
	PayloadJSON []byte
}

// IsValid reports whether the event type is usable.
func (t Type) IsValid() bool {
	return strings.TrimSpace(string(t)) != ""
}

// Domain returns the domain prefix of the event type (e.g., "entry", "month").
func (t Type) Domain() string {
	for i, c := range t {
		if c == '.' {
			return string(t[:i])
		}
	}
	return string(t)
}
