// Package command defines the commands accepted by the timesheet aggregate
// and the decision type produced when handling them.
package command

import "github.com/openclock/worklog/internal/worklog/domain/event"

// Type identifies the kind of command.
type Type string

const (
	// TypeLogEntry creates or replaces a draft work entry.
	TypeLogEntry Type = "timesheet.log_entry"
	// TypeDeleteEntry removes a draft work entry.
	TypeDeleteEntry Type = "timesheet.delete_entry"
	// TypeLogAbsence creates or replaces a draft absence.
	TypeLogAbsence Type = "timesheet.log_absence"
	// TypeDeleteAbsence removes a draft absence.
	TypeDeleteAbsence Type = "timesheet.delete_absence"
	// TypeSubmitDay submits one day's draft records for review.
	TypeSubmitDay Type = "timesheet.submit_day"
	// TypeSubmitMonth submits the whole month for review.
	TypeSubmitMonth Type = "timesheet.submit_month"
	// TypeApproveMonth approves a submitted month.
	TypeApproveMonth Type = "timesheet.approve_month"
	// TypeRejectMonth rejects a submitted month.
	TypeRejectMonth Type = "timesheet.reject_month"
	// TypeRejectDay rejects one day's submitted records.
	TypeRejectDay Type = "timesheet.reject_day"
	// TypeRecallDay withdraws one day's submission before review.
	TypeRecallDay Type = "timesheet.recall_day"
	// TypeRecallMonth withdraws the month submission before review.
	TypeRecallMonth Type = "timesheet.recall_month"
)

// Command carries a request against one member-month timesheet.
//
// ActorID and ActorType come from the identity collaborator and are trusted.
// ReviewerID is resolved from the reviewer directory by the engine before the
// command reaches a decider, so deciders stay pure.
type Command struct {
	// Type identifies the command.
	Type Type
	// MemberID is the member whose timesheet is addressed.
	MemberID string
	// Month is the fiscal month in YYYY-MM form.
	Month string
	// ActorID is the authenticated actor issuing the command.
	ActorID string
	// ActorType classifies the actor relative to the timesheet.
	ActorType event.ActorType
	// ReviewerID is the member's reviewer per the directory, empty if none.
	ReviewerID string

	// Entry mutation fields.
	EntryID      string
	ProjectID    string
	AbsenceID    string
	AbsenceKind  string
	Date         string
	QuarterHours int
	Note         string

	// Reason carries the rejection reason for reject commands.
	Reason string
}
