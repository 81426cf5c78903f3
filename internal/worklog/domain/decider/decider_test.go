package decider

import (
	"testing"
	"time"

	platformerrors "github.com/openclock/worklog/internal/platform/errors"
	"github.com/openclock/worklog/internal/worklog/domain/aggregate"
	"github.com/openclock/worklog/internal/worklog/domain/command"
	"github.com/openclock/worklog/internal/worklog/domain/event"
	"github.com/openclock/worklog/internal/worklog/domain/timesheet"
)

var testNow = func() time.Time { return time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC) }

func baseCommand(typ command.Type) command.Command {
	return command.Command{
		Type:       typ,
		MemberID:   "member-1",
		Month:      "2026-02",
		ActorID:    "member-1",
		ActorType:  event.ActorTypeMember,
		ReviewerID: "boss-1",
	}
}

func draftState(t *testing.T) aggregate.State {
	t.Helper()
	state := aggregate.NewState("member-1", "2026-02")
	state.Entries["e-1"] = timesheet.Entry{
		ID: "e-1", ProjectID: "p-1", Date: "2026-02-05", QuarterHours: 32, Status: timesheet.StatusDraft,
	}
	return state
}

func wantRejected(t *testing.T, decision command.Decision, code platformerrors.Code) {
	t.Helper()
	if len(decision.Events) != 0 {
		t.Fatalf("expected no events, got %d", len(decision.Events))
	}
	if len(decision.Rejections) != 1 {
		t.Fatalf("expected one rejection, got %d", len(decision.Rejections))
	}
	if decision.Rejections[0].Code != string(code) {
		t.Fatalf("rejection code = %s, want %s", decision.Rejections[0].Code, code)
	}
}

func wantAccepted(t *testing.T, decision command.Decision, typ event.Type) event.Event {
	t.Helper()
	if len(decision.Rejections) != 0 {
		t.Fatalf("expected no rejections, got %+v", decision.Rejections)
	}
	if len(decision.Events) != 1 {
		t.Fatalf("expected one event, got %d", len(decision.Events))
	}
	if decision.Events[0].Type != typ {
		t.Fatalf("event type = %s, want %s", decision.Events[0].Type, typ)
	}
	return decision.Events[0]
}

func TestLogEntryAccepted(t *testing.T) {
	cmd := baseCommand(command.TypeLogEntry)
	cmd.EntryID = "e-2"
	cmd.ProjectID = "p-1"
	cmd.Date = "2026-02-06"
	cmd.QuarterHours = 32

	evt := wantAccepted(t, Decider{}.Decide(draftState(t), cmd, testNow), event.TypeEntryLogged)
	if evt.AggregateID != "timesheet/member-1/2026-02" {
		t.Fatalf("aggregate id = %s", evt.AggregateID)
	}
}

func TestLogEntryRejectsHourCapAcrossEntriesAndAbsences(t *testing.T) {
	state := draftState(t)
	state.Absences["a-1"] = timesheet.Absence{
		ID: "a-1", Kind: "sick", Date: "2026-02-05", QuarterHours: 48, Status: timesheet.StatusDraft,
	}

	// 32 + 48 existing; 20 more would total 100 quarter-hours (25h).
	cmd := baseCommand(command.TypeLogEntry)
	cmd.EntryID = "e-2"
	cmd.ProjectID = "p-1"
	cmd.Date = "2026-02-05"
	cmd.QuarterHours = 20

	wantRejected(t, Decider{}.Decide(state, cmd, testNow), platformerrors.CodeDailyHourCapExceeded)

	// 16 more totals exactly 96 quarter-hours (24h) and is allowed.
	cmd.QuarterHours = 16
	wantAccepted(t, Decider{}.Decide(state, cmd, testNow), event.TypeEntryLogged)
}

func TestLogEntryReplacementDoesNotDoubleCount(t *testing.T) {
	state := draftState(t)

	// Replacing e-1 (32) with 96 keeps the day at exactly the cap.
	cmd := baseCommand(command.TypeLogEntry)
	cmd.EntryID = "e-1"
	cmd.ProjectID = "p-1"
	cmd.Date = "2026-02-05"
	cmd.QuarterHours = 96

	wantAccepted(t, Decider{}.Decide(state, cmd, testNow), event.TypeEntryLogged)
}

func TestLogEntryRejectsNonMemberActor(t *testing.T) {
	cmd := baseCommand(command.TypeLogEntry)
	cmd.ActorID = "boss-1"
	cmd.ActorType = event.ActorTypeReviewer
	cmd.EntryID = "e-2"
	cmd.ProjectID = "p-1"
	cmd.Date = "2026-02-06"
	cmd.QuarterHours = 8

	wantRejected(t, Decider{}.Decide(draftState(t), cmd, testNow), platformerrors.CodeActorNotMember)
}

func TestLogEntryRejectsLockedMonth(t *testing.T) {
	state := draftState(t)
	state.Approval.Status = timesheet.MonthSubmitted

	cmd := baseCommand(command.TypeLogEntry)
	cmd.EntryID = "e-2"
	cmd.ProjectID = "p-1"
	cmd.Date = "2026-02-06"
	cmd.QuarterHours = 8

	wantRejected(t, Decider{}.Decide(state, cmd, testNow), platformerrors.CodeMonthLocked)
}

func TestLogEntryRejectsSubmittedEntry(t *testing.T) {
	state := draftState(t)
	entry := state.Entries["e-1"]
	entry.Status = timesheet.StatusSubmitted
	state.Entries["e-1"] = entry

	cmd := baseCommand(command.TypeLogEntry)
	cmd.EntryID = "e-1"
	cmd.ProjectID = "p-1"
	cmd.Date = "2026-02-05"
	cmd.QuarterHours = 8

	wantRejected(t, Decider{}.Decide(state, cmd, testNow), platformerrors.CodeEntryNotEditable)
}

func TestLogEntryRejectsDateOutsideMonth(t *testing.T) {
	cmd := baseCommand(command.TypeLogEntry)
	cmd.EntryID = "e-2"
	cmd.ProjectID = "p-1"
	cmd.Date = "2026-03-01"
	cmd.QuarterHours = 8

	wantRejected(t, Decider{}.Decide(draftState(t), cmd, testNow), platformerrors.CodeEntryDateInvalid)
}

func TestDeleteEntryRequiresDraft(t *testing.T) {
	state := draftState(t)
	entry := state.Entries["e-1"]
	entry.Status = timesheet.StatusApproved
	state.Entries["e-1"] = entry

	cmd := baseCommand(command.TypeDeleteEntry)
	cmd.EntryID = "e-1"
	wantRejected(t, Decider{}.Decide(state, cmd, testNow), platformerrors.CodeEntryNotEditable)

	cmd.EntryID = "missing"
	wantRejected(t, Decider{}.Decide(state, cmd, testNow), platformerrors.CodeNotFound)
}

func TestSubmitMonthBySelf(t *testing.T) {
	cmd := baseCommand(command.TypeSubmitMonth)
	evt := wantAccepted(t, Decider{}.Decide(draftState(t), cmd, testNow), event.TypeMonthSubmitted)
	if evt.ActorID != "member-1" {
		t.Fatalf("actor = %s, want member-1", evt.ActorID)
	}
}

func TestSubmitMonthByProxyReviewer(t *testing.T) {
	cmd := baseCommand(command.TypeSubmitMonth)
	cmd.ActorID = "boss-1"
	cmd.ActorType = event.ActorTypeReviewer
	wantAccepted(t, Decider{}.Decide(draftState(t), cmd, testNow), event.TypeMonthSubmitted)
}

func TestSubmitMonthRejectsUnrelatedActor(t *testing.T) {
	cmd := baseCommand(command.TypeSubmitMonth)
	cmd.ActorID = "stranger-1"
	wantRejected(t, Decider{}.Decide(draftState(t), cmd, testNow), platformerrors.CodeProxyNotAllowed)
}

func TestSubmitMonthRequiresReviewer(t *testing.T) {
	cmd := baseCommand(command.TypeSubmitMonth)
	cmd.ReviewerID = ""
	wantRejected(t, Decider{}.Decide(draftState(t), cmd, testNow), platformerrors.CodeReviewerMissing)
}

func TestSubmitMonthRejectsEmptySheet(t *testing.T) {
	cmd := baseCommand(command.TypeSubmitMonth)
	wantRejected(t, Decider{}.Decide(aggregate.NewState("member-1", "2026-02"), cmd, testNow), platformerrors.CodeNothingToSubmit)
}

func TestSubmitMonthAllowedAfterRejection(t *testing.T) {
	state := draftState(t)
	state.Approval.Status = timesheet.MonthRejected
	cmd := baseCommand(command.TypeSubmitMonth)
	wantAccepted(t, Decider{}.Decide(state, cmd, testNow), event.TypeMonthSubmitted)
}

func TestSubmitMonthRejectsAlreadySubmitted(t *testing.T) {
	state := draftState(t)
	state.Approval.Status = timesheet.MonthSubmitted
	cmd := baseCommand(command.TypeSubmitMonth)
	wantRejected(t, Decider{}.Decide(state, cmd, testNow), platformerrors.CodeMonthLocked)
}

func submittedState(t *testing.T) aggregate.State {
	t.Helper()
	state := draftState(t)
	entry := state.Entries["e-1"]
	entry.Status = timesheet.StatusSubmitted
	state.Entries["e-1"] = entry
	state.Approval = timesheet.Approval{
		Status:      timesheet.MonthSubmitted,
		ReviewerID:  "boss-1",
		SubmittedBy: "member-1",
		EntryIDs:    []string{"e-1"},
	}
	return state
}

func TestApproveMonthByReviewer(t *testing.T) {
	cmd := baseCommand(command.TypeApproveMonth)
	cmd.ActorID = "boss-1"
	cmd.ActorType = event.ActorTypeReviewer
	wantAccepted(t, Decider{}.Decide(submittedState(t), cmd, testNow), event.TypeMonthApproved)
}

func TestApproveMonthRejectsNonReviewer(t *testing.T) {
	cmd := baseCommand(command.TypeApproveMonth)
	wantRejected(t, Decider{}.Decide(submittedState(t), cmd, testNow), platformerrors.CodeActorNotReviewer)
}

func TestApproveMonthRejectsPendingMonth(t *testing.T) {
	cmd := baseCommand(command.TypeApproveMonth)
	cmd.ActorID = "boss-1"
	wantRejected(t, Decider{}.Decide(draftState(t), cmd, testNow), platformerrors.CodeMonthNotSubmitted)
}

func TestRejectMonthRequiresReason(t *testing.T) {
	cmd := baseCommand(command.TypeRejectMonth)
	cmd.ActorID = "boss-1"
	wantRejected(t, Decider{}.Decide(submittedState(t), cmd, testNow), platformerrors.CodeRejectionReasonEmpty)

	cmd.Reason = "missing Friday hours"
	wantAccepted(t, Decider{}.Decide(submittedState(t), cmd, testNow), event.TypeMonthRejected)
}

func TestRejectDayRequiresPendingMonth(t *testing.T) {
	state := submittedState(t)
	cmd := baseCommand(command.TypeRejectDay)
	cmd.ActorID = "boss-1"
	cmd.Date = "2026-02-05"
	cmd.Reason = "wrong project"

	wantRejected(t, Decider{}.Decide(state, cmd, testNow), platformerrors.CodeMonthNotPending)
}

func TestRejectDayOnPendingMonth(t *testing.T) {
	state := draftState(t)
	entry := state.Entries["e-1"]
	entry.Status = timesheet.StatusSubmitted
	state.Entries["e-1"] = entry

	cmd := baseCommand(command.TypeRejectDay)
	cmd.ActorID = "boss-1"
	cmd.Date = "2026-02-05"
	cmd.Reason = "wrong project"

	wantAccepted(t, Decider{}.Decide(state, cmd, testNow), event.TypeDayRejected)
}

func TestRejectDayRejectsNonReviewer(t *testing.T) {
	cmd := baseCommand(command.TypeRejectDay)
	cmd.Date = "2026-02-05"
	cmd.Reason = "wrong project"
	wantRejected(t, Decider{}.Decide(draftState(t), cmd, testNow), platformerrors.CodeActorNotReviewer)
}

func TestRejectDayWithNoSubmittedRecords(t *testing.T) {
	cmd := baseCommand(command.TypeRejectDay)
	cmd.ActorID = "boss-1"
	cmd.Date = "2026-02-05"
	cmd.Reason = "wrong project"
	wantRejected(t, Decider{}.Decide(draftState(t), cmd, testNow), platformerrors.CodeNothingToReject)
}

func TestSubmitDayCollectsDraftRecords(t *testing.T) {
	state := draftState(t)
	state.Absences["a-1"] = timesheet.Absence{
		ID: "a-1", Kind: "sick", Date: "2026-02-05", QuarterHours: 16, Status: timesheet.StatusDraft,
	}
	cmd := baseCommand(command.TypeSubmitDay)
	cmd.Date = "2026-02-05"

	evt := wantAccepted(t, Decider{}.Decide(state, cmd, testNow), event.TypeDaySubmitted)
	if evt.ActorType != event.ActorTypeMember {
		t.Fatalf("actor type = %s", evt.ActorType)
	}
}

func TestSubmitDayRequiresPendingMonth(t *testing.T) {
	state := submittedState(t)
	cmd := baseCommand(command.TypeSubmitDay)
	cmd.Date = "2026-02-05"
	wantRejected(t, Decider{}.Decide(state, cmd, testNow), platformerrors.CodeMonthNotPending)
}

func TestRecallMonthWhileSubmitted(t *testing.T) {
	cmd := baseCommand(command.TypeRecallMonth)
	wantAccepted(t, Decider{}.Decide(submittedState(t), cmd, testNow), event.TypeMonthRecalled)
}

func TestRecallMonthRejectsDecidedMonth(t *testing.T) {
	state := submittedState(t)
	state.Approval.Status = timesheet.MonthApproved
	cmd := baseCommand(command.TypeRecallMonth)
	wantRejected(t, Decider{}.Decide(state, cmd, testNow), platformerrors.CodeMonthNotSubmitted)
}

func TestRecallDayWhileSubmitted(t *testing.T) {
	state := draftState(t)
	entry := state.Entries["e-1"]
	entry.Status = timesheet.StatusSubmitted
	state.Entries["e-1"] = entry

	cmd := baseCommand(command.TypeRecallDay)
	cmd.Date = "2026-02-05"
	wantAccepted(t, Decider{}.Decide(state, cmd, testNow), event.TypeDayRecalled)
}

func TestDecideRejectsInvalidEnvelope(t *testing.T) {
	cmd := baseCommand(command.TypeLogEntry)
	cmd.MemberID = ""
	wantRejected(t, Decider{}.Decide(aggregate.NewState("", "2026-02"), cmd, testNow), platformerrors.CodeMemberIDMissing)

	cmd = baseCommand(command.TypeLogEntry)
	cmd.Month = "February"
	wantRejected(t, Decider{}.Decide(aggregate.NewState("member-1", ""), cmd, testNow), platformerrors.CodeMonthInvalid)
}
