// Package decider implements the approval/rejection state machine for
// member-month timesheets as a pure command decider.
package decider

import (
	"encoding/json"
	"sort"
	"time"

	platformerrors "github.com/openclock/worklog/internal/platform/errors"
	"github.com/openclock/worklog/internal/worklog/domain/aggregate"
	"github.com/openclock/worklog/internal/worklog/domain/command"
	"github.com/openclock/worklog/internal/worklog/domain/event"
	"github.com/openclock/worklog/internal/worklog/domain/timesheet"
)

// Decider turns commands into decisions against reconstructed state.
//
// Decide is pure: it never performs I/O and never mutates its inputs, so the
// engine can safely re-run it after reloading state on a version conflict.
type Decider struct{}

// Decide validates a command against current state and returns either the
// events to append or the rejections explaining why nothing happened.
func (Decider) Decide(state aggregate.State, cmd command.Command, now func() time.Time) command.Decision {
	if now == nil {
		now = time.Now
	}
	if rejection, ok := validateEnvelope(cmd); !ok {
		return command.Reject(rejection)
	}

	switch cmd.Type {
	case command.TypeLogEntry:
		return decideLogEntry(state, cmd, now())
	case command.TypeDeleteEntry:
		return decideDeleteEntry(state, cmd, now())
	case command.TypeLogAbsence:
		return decideLogAbsence(state, cmd, now())
	case command.TypeDeleteAbsence:
		return decideDeleteAbsence(state, cmd, now())
	case command.TypeSubmitDay:
		return decideSubmitDay(state, cmd, now())
	case command.TypeSubmitMonth:
		return decideSubmitMonth(state, cmd, now())
	case command.TypeApproveMonth:
		return decideApproveMonth(state, cmd, now())
	case command.TypeRejectMonth:
		return decideRejectMonth(state, cmd, now())
	case command.TypeRejectDay:
		return decideRejectDay(state, cmd, now())
	case command.TypeRecallDay:
		return decideRecallDay(state, cmd, now())
	case command.TypeRecallMonth:
		return decideRecallMonth(state, cmd, now())
	default:
		return command.Reject(rejection(platformerrors.CodeUnknown, "unknown command type "+string(cmd.Type)))
	}
}

func rejection(code platformerrors.Code, message string) command.Rejection {
	return command.Rejection{Code: string(code), Message: message}
}

func validateEnvelope(cmd command.Command) (command.Rejection, bool) {
	if cmd.MemberID == "" {
		return rejection(platformerrors.CodeMemberIDMissing, "member id is required"), false
	}
	if _, err := timesheet.ParseMonth(cmd.Month); err != nil {
		return rejection(platformerrors.CodeMonthInvalid, "month must be YYYY-MM"), false
	}
	return command.Rejection{}, true
}

// actorIsMember allows only the owning member.
func actorIsMember(cmd command.Command) bool {
	return cmd.ActorID == cmd.MemberID
}

// actorIsMemberOrProxy allows the owning member, or the member's reviewer
// acting by proxy.
func actorIsMemberOrProxy(cmd command.Command) bool {
	return actorIsMember(cmd) || (cmd.ReviewerID != "" && cmd.ActorID == cmd.ReviewerID)
}

func isProxy(cmd command.Command) bool {
	return !actorIsMember(cmd)
}

// marshalPayload encodes a payload struct. The payload types contain only
// marshal-safe fields, so encoding cannot fail at runtime.
func marshalPayload(payload any) []byte {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return raw
}

func validateDate(cmd command.Command) (command.Rejection, bool) {
	if _, err := timesheet.ParseDate(cmd.Date); err != nil {
		return rejection(platformerrors.CodeEntryDateInvalid, "date must be YYYY-MM-DD"), false
	}
	if !timesheet.DateInMonth(cmd.Date, cmd.Month) {
		return rejection(platformerrors.CodeEntryDateInvalid, "date "+cmd.Date+" is outside month "+cmd.Month), false
	}
	return command.Rejection{}, true
}

func decideLogEntry(state aggregate.State, cmd command.Command, now time.Time) command.Decision {
	if !actorIsMember(cmd) {
		return command.Reject(rejection(platformerrors.CodeActorNotMember, "only the member may edit entries"))
	}
	if !state.Approval.Status.Editable() {
		return command.Reject(rejection(platformerrors.CodeMonthLocked, "month is "+string(state.Approval.Status)+" and cannot be edited"))
	}
	if reason, ok := validateDate(cmd); !ok {
		return command.Reject(reason)
	}
	if cmd.ProjectID == "" {
		return command.Reject(rejection(platformerrors.CodeEntryProjectMissing, "project id is required"))
	}
	if cmd.QuarterHours <= 0 || cmd.QuarterHours > timesheet.QuarterHoursPerDay {
		return command.Reject(rejection(platformerrors.CodeEntryHoursInvalid, "quarter hours must be between 1 and 96"))
	}
	if existing, ok := state.Entries[cmd.EntryID]; ok && existing.Status != timesheet.StatusDraft {
		return command.Reject(rejection(platformerrors.CodeEntryNotEditable, "entry "+cmd.EntryID+" is "+string(existing.Status)))
	}

	// The daily cap counts the replacement hours, not the old ones.
	dayTotal := state.DayQuarterHours(cmd.Date) + cmd.QuarterHours
	if existing, ok := state.Entries[cmd.EntryID]; ok && existing.Date == cmd.Date {
		dayTotal -= existing.QuarterHours
	}
	if dayTotal > timesheet.QuarterHoursPerDay {
		return command.Reject(rejection(platformerrors.CodeDailyHourCapExceeded, "total hours for "+cmd.Date+" would exceed 24h"))
	}

	payload := marshalPayload(event.EntryLoggedPayload{
		EntryID:      cmd.EntryID,
		ProjectID:    cmd.ProjectID,
		Date:         cmd.Date,
		QuarterHours: cmd.QuarterHours,
		Note:         cmd.Note,
	})
	return command.Accept(command.NewEvent(cmd, event.TypeEntryLogged, payload, now))
}

func decideDeleteEntry(state aggregate.State, cmd command.Command, now time.Time) command.Decision {
	if !actorIsMember(cmd) {
		return command.Reject(rejection(platformerrors.CodeActorNotMember, "only the member may edit entries"))
	}
	if !state.Approval.Status.Editable() {
		return command.Reject(rejection(platformerrors.CodeMonthLocked, "month is "+string(state.Approval.Status)+" and cannot be edited"))
	}
	existing, ok := state.Entries[cmd.EntryID]
	if !ok {
		return command.Reject(rejection(platformerrors.CodeNotFound, "entry "+cmd.EntryID+" not found"))
	}
	if existing.Status != timesheet.StatusDraft {
		return command.Reject(rejection(platformerrors.CodeEntryNotEditable, "entry "+cmd.EntryID+" is "+string(existing.Status)))
	}
	payload := marshalPayload(event.EntryDeletedPayload{EntryID: cmd.EntryID})
	return command.Accept(command.NewEvent(cmd, event.TypeEntryDeleted, payload, now))
}

func decideLogAbsence(state aggregate.State, cmd command.Command, now time.Time) command.Decision {
	if !actorIsMember(cmd) {
		return command.Reject(rejection(platformerrors.CodeActorNotMember, "only the member may edit absences"))
	}
	if !state.Approval.Status.Editable() {
		return command.Reject(rejection(platformerrors.CodeMonthLocked, "month is "+string(state.Approval.Status)+" and cannot be edited"))
	}
	if reason, ok := validateDate(cmd); !ok {
		return command.Reject(reason)
	}
	if cmd.AbsenceKind == "" {
		return command.Reject(rejection(platformerrors.CodeAbsenceKindInvalid, "absence kind is required"))
	}
	if cmd.QuarterHours <= 0 || cmd.QuarterHours > timesheet.QuarterHoursPerDay {
		return command.Reject(rejection(platformerrors.CodeEntryHoursInvalid, "quarter hours must be between 1 and 96"))
	}
	if existing, ok := state.Absences[cmd.AbsenceID]; ok && existing.Status != timesheet.StatusDraft {
		return command.Reject(rejection(platformerrors.CodeEntryNotEditable, "absence "+cmd.AbsenceID+" is "+string(existing.Status)))
	}

	dayTotal := state.DayQuarterHours(cmd.Date) + cmd.QuarterHours
	if existing, ok := state.Absences[cmd.AbsenceID]; ok && existing.Date == cmd.Date {
		dayTotal -= existing.QuarterHours
	}
	if dayTotal > timesheet.QuarterHoursPerDay {
		return command.Reject(rejection(platformerrors.CodeDailyHourCapExceeded, "total hours for "+cmd.Date+" would exceed 24h"))
	}

	payload := marshalPayload(event.AbsenceLoggedPayload{
		AbsenceID:    cmd.AbsenceID,
		Kind:         cmd.AbsenceKind,
		Date:         cmd.Date,
		QuarterHours: cmd.QuarterHours,
		Note:         cmd.Note,
	})
	return command.Accept(command.NewEvent(cmd, event.TypeAbsenceLogged, payload, now))
}

func decideDeleteAbsence(state aggregate.State, cmd command.Command, now time.Time) command.Decision {
	if !actorIsMember(cmd) {
		return command.Reject(rejection(platformerrors.CodeActorNotMember, "only the member may edit absences"))
	}
	if !state.Approval.Status.Editable() {
		return command.Reject(rejection(platformerrors.CodeMonthLocked, "month is "+string(state.Approval.Status)+" and cannot be edited"))
	}
	existing, ok := state.Absences[cmd.AbsenceID]
	if !ok {
		return command.Reject(rejection(platformerrors.CodeNotFound, "absence "+cmd.AbsenceID+" not found"))
	}
	if existing.Status != timesheet.StatusDraft {
		return command.Reject(rejection(platformerrors.CodeEntryNotEditable, "absence "+cmd.AbsenceID+" is "+string(existing.Status)))
	}
	payload := marshalPayload(event.AbsenceDeletedPayload{AbsenceID: cmd.AbsenceID})
	return command.Accept(command.NewEvent(cmd, event.TypeAbsenceDeleted, payload, now))
}

func decideSubmitDay(state aggregate.State, cmd command.Command, now time.Time) command.Decision {
	if !actorIsMemberOrProxy(cmd) {
		return command.Reject(rejection(platformerrors.CodeProxyNotAllowed, "only the member or their reviewer may submit"))
	}
	if state.Approval.Status != timesheet.MonthPending {
		return command.Reject(rejection(platformerrors.CodeMonthNotPending, "day submission requires a pending month"))
	}
	if reason, ok := validateDate(cmd); !ok {
		return command.Reject(reason)
	}
	entryIDs, absenceIDs := state.DayRecords(cmd.Date, timesheet.StatusDraft)
	if len(entryIDs) == 0 && len(absenceIDs) == 0 {
		return command.Reject(rejection(platformerrors.CodeNothingToSubmit, "no draft records on "+cmd.Date))
	}
	sort.Strings(entryIDs)
	sort.Strings(absenceIDs)
	payload := marshalPayload(event.DaySubmittedPayload{
		Date:       cmd.Date,
		EntryIDs:   entryIDs,
		AbsenceIDs: absenceIDs,
		Proxy:      isProxy(cmd),
	})
	return command.Accept(command.NewEvent(cmd, event.TypeDaySubmitted, payload, now))
}

func decideSubmitMonth(state aggregate.State, cmd command.Command, now time.Time) command.Decision {
	if !actorIsMemberOrProxy(cmd) {
		return command.Reject(rejection(platformerrors.CodeProxyNotAllowed, "only the member or their reviewer may submit"))
	}
	if cmd.ReviewerID == "" {
		return command.Reject(rejection(platformerrors.CodeReviewerMissing, "member has no reviewer to submit to"))
	}
	switch state.Approval.Status {
	case timesheet.MonthPending, timesheet.MonthRejected, "":
	default:
		return command.Reject(rejection(platformerrors.CodeMonthLocked, "month is already "+string(state.Approval.Status)))
	}

	var entryIDs, absenceIDs []string
	for entryID, entry := range state.Entries {
		if entry.Status == timesheet.StatusDraft || entry.Status == timesheet.StatusSubmitted {
			entryIDs = append(entryIDs, entryID)
		}
	}
	for absenceID, absence := range state.Absences {
		if absence.Status == timesheet.StatusDraft || absence.Status == timesheet.StatusSubmitted {
			absenceIDs = append(absenceIDs, absenceID)
		}
	}
	if len(entryIDs) == 0 && len(absenceIDs) == 0 {
		return command.Reject(rejection(platformerrors.CodeNothingToSubmit, "no records to submit for "+cmd.Month))
	}
	sort.Strings(entryIDs)
	sort.Strings(absenceIDs)

	payload := marshalPayload(event.MonthSubmittedPayload{
		ReviewerID: cmd.ReviewerID,
		EntryIDs:   entryIDs,
		AbsenceIDs: absenceIDs,
		Proxy:      isProxy(cmd),
	})
	return command.Accept(command.NewEvent(cmd, event.TypeMonthSubmitted, payload, now))
}

func decideApproveMonth(state aggregate.State, cmd command.Command, now time.Time) command.Decision {
	if state.Approval.Status != timesheet.MonthSubmitted {
		return command.Reject(rejection(platformerrors.CodeMonthNotSubmitted, "month is "+string(state.Approval.Status)+", not submitted"))
	}
	if cmd.ActorID != state.Approval.ReviewerID {
		return command.Reject(rejection(platformerrors.CodeActorNotReviewer, "only the member's reviewer may approve"))
	}
	payload := marshalPayload(event.MonthApprovedPayload{ReviewerID: cmd.ActorID})
	return command.Accept(command.NewEvent(cmd, event.TypeMonthApproved, payload, now))
}

func decideRejectMonth(state aggregate.State, cmd command.Command, now time.Time) command.Decision {
	if state.Approval.Status != timesheet.MonthSubmitted {
		return command.Reject(rejection(platformerrors.CodeMonthNotSubmitted, "month is "+string(state.Approval.Status)+", not submitted"))
	}
	if cmd.ActorID != state.Approval.ReviewerID {
		return command.Reject(rejection(platformerrors.CodeActorNotReviewer, "only the member's reviewer may reject"))
	}
	if cmd.Reason == "" {
		return command.Reject(rejection(platformerrors.CodeRejectionReasonEmpty, "a rejection reason is required"))
	}
	payload := marshalPayload(event.MonthRejectedPayload{ReviewerID: cmd.ActorID, Reason: cmd.Reason})
	return command.Accept(command.NewEvent(cmd, event.TypeMonthRejected, payload, now))
}

func decideRejectDay(state aggregate.State, cmd command.Command, now time.Time) command.Decision {
	if cmd.ReviewerID == "" || cmd.ActorID != cmd.ReviewerID {
		return command.Reject(rejection(platformerrors.CodeActorNotReviewer, "only the member's reviewer may reject a day"))
	}
	// Daily rejection must not race with month-level review: once the month
	// has been submitted or decided, only monthly operations may touch it.
	if state.Approval.Status != timesheet.MonthPending {
		return command.Reject(rejection(platformerrors.CodeMonthNotPending, "month is "+string(state.Approval.Status)+"; reject the month instead"))
	}
	if reason, ok := validateDate(cmd); !ok {
		return command.Reject(reason)
	}
	if cmd.Reason == "" {
		return command.Reject(rejection(platformerrors.CodeRejectionReasonEmpty, "a rejection reason is required"))
	}
	entryIDs, absenceIDs := state.DayRecords(cmd.Date, timesheet.StatusSubmitted)
	if len(entryIDs) == 0 && len(absenceIDs) == 0 {
		return command.Reject(rejection(platformerrors.CodeNothingToReject, "no submitted records on "+cmd.Date))
	}
	sort.Strings(entryIDs)
	sort.Strings(absenceIDs)
	payload := marshalPayload(event.DayRejectedPayload{
		Date:       cmd.Date,
		Reason:     cmd.Reason,
		EntryIDs:   entryIDs,
		AbsenceIDs: absenceIDs,
	})
	return command.Accept(command.NewEvent(cmd, event.TypeDayRejected, payload, now))
}

func decideRecallDay(state aggregate.State, cmd command.Command, now time.Time) command.Decision {
	if !actorIsMemberOrProxy(cmd) {
		return command.Reject(rejection(platformerrors.CodeProxyNotAllowed, "only the member or their reviewer may recall"))
	}
	if state.Approval.Status != timesheet.MonthPending {
		return command.Reject(rejection(platformerrors.CodeMonthNotPending, "day recall requires a pending month"))
	}
	if reason, ok := validateDate(cmd); !ok {
		return command.Reject(reason)
	}
	entryIDs, absenceIDs := state.DayRecords(cmd.Date, timesheet.StatusSubmitted)
	if len(entryIDs) == 0 && len(absenceIDs) == 0 {
		return command.Reject(rejection(platformerrors.CodeNothingToRecall, "no submitted records on "+cmd.Date))
	}
	sort.Strings(entryIDs)
	sort.Strings(absenceIDs)
	payload := marshalPayload(event.DayRecalledPayload{
		Date:       cmd.Date,
		EntryIDs:   entryIDs,
		AbsenceIDs: absenceIDs,
		Proxy:      isProxy(cmd),
	})
	return command.Accept(command.NewEvent(cmd, event.TypeDayRecalled, payload, now))
}

func decideRecallMonth(state aggregate.State, cmd command.Command, now time.Time) command.Decision {
	if !actorIsMemberOrProxy(cmd) {
		return command.Reject(rejection(platformerrors.CodeProxyNotAllowed, "only the member or their reviewer may recall"))
	}
	// A submitted month is by definition unreviewed; approval or rejection
	// moves it out of submitted, which also closes the recall window.
	if state.Approval.Status != timesheet.MonthSubmitted {
		return command.Reject(rejection(platformerrors.CodeMonthNotSubmitted, "month is "+string(state.Approval.Status)+", not submitted"))
	}
	payload := marshalPayload(event.MonthRecalledPayload{Proxy: isProxy(cmd)})
	return command.Accept(command.NewEvent(cmd, event.TypeMonthRecalled, payload, now))
}
