// Package projection applies journal events to denormalized read models.
package projection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/openclock/worklog/internal/worklog/domain/aggregate"
	"github.com/openclock/worklog/internal/worklog/domain/event"
	"github.com/openclock/worklog/internal/worklog/domain/replay"
	"github.com/openclock/worklog/internal/worklog/domain/timesheet"
	"github.com/openclock/worklog/internal/worklog/storage"
)

// EventSource reads journal events for projection application.
type EventSource interface {
	ListEvents(ctx context.Context, aggregateID string, afterSeq uint64, limit int) ([]event.Event, error)
	ListAggregateIDs(ctx context.Context) ([]string, error)
}

// Applier applies event journal entries to the projection store.
//
// Each event is applied at most once: a per-aggregate watermark records the
// last applied sequence, the read-model writes and the watermark advance
// share one transaction, and replays of already-applied sequences are
// no-ops. Events must arrive in journal order per aggregate; an out-of-order
// event is an error so the outbox can retry it after its predecessors land.
type Applier struct {
	Events      EventSource
	Projections storage.ProjectionStore

	folder aggregate.Folder
}

// Apply projects a single journal event into the read models.
func (a *Applier) Apply(ctx context.Context, evt event.Event) error {
	if a == nil || a.Events == nil {
		return fmt.Errorf("event source is not configured")
	}
	if a.Projections == nil {
		return fmt.Errorf("projection store is not configured")
	}
	if strings.TrimSpace(evt.AggregateID) == "" {
		return fmt.Errorf("aggregate id is required")
	}
	if evt.Seq == 0 {
		return fmt.Errorf("event sequence must be greater than zero")
	}

	applied, err := a.appliedSeq(ctx, evt.AggregateID)
	if err != nil {
		return err
	}
	if evt.Seq <= applied {
		return nil
	}
	if evt.Seq != applied+1 {
		return fmt.Errorf("projection apply out of order for %s: watermark %d, event %d", evt.AggregateID, applied, evt.Seq)
	}

	prev, next, err := a.reconstruct(ctx, evt)
	if err != nil {
		return err
	}

	return a.Projections.InTx(ctx, func(tx storage.ProjectionStore) error {
		if err := a.applyEvent(ctx, tx, evt, prev, next); err != nil {
			return err
		}
		return tx.SaveProjectionWatermark(ctx, storage.ProjectionWatermark{
			AggregateID: evt.AggregateID,
			AppliedSeq:  evt.Seq,
		})
	})
}

func (a *Applier) appliedSeq(ctx context.Context, aggregateID string) (uint64, error) {
	watermark, err := a.Projections.GetProjectionWatermark(ctx, aggregateID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return watermark.AppliedSeq, nil
}

// reconstruct returns the aggregate state immediately before and after the
// event. The pre state supplies details the event payload omits, such as the
// date of a deleted record or the reviewer of a recalled month.
func (a *Applier) reconstruct(ctx context.Context, evt event.Event) (prev, next aggregate.State, err error) {
	memberID, month, err := aggregate.ParseID(evt.AggregateID)
	if err != nil {
		return aggregate.State{}, aggregate.State{}, err
	}

	// The first event of an aggregate folds onto the empty state; UntilSeq
	// zero would mean "no limit" to Replay.
	prev = aggregate.NewState(memberID, month)
	if evt.Seq > 1 {
		result, err := replay.Replay(ctx, a.Events, &a.folder, evt.AggregateID, prev, replay.Options{
			UntilSeq: evt.Seq - 1,
		})
		if err != nil {
			return aggregate.State{}, aggregate.State{}, fmt.Errorf("replay before %s/%d: %w", evt.AggregateID, evt.Seq, err)
		}
		if result.LastSeq != evt.Seq-1 {
			return aggregate.State{}, aggregate.State{}, fmt.Errorf("replay before %s/%d stopped at %d", evt.AggregateID, evt.Seq, result.LastSeq)
		}
		prev = result.State
	}
	next, err = a.folder.Fold(prev, evt)
	if err != nil {
		return aggregate.State{}, aggregate.State{}, err
	}
	return prev, next, nil
}

func (a *Applier) applyEvent(ctx context.Context, tx storage.ProjectionStore, evt event.Event, prev, next aggregate.State) error {
	switch evt.Type {
	case event.TypeEntryLogged:
		var payload event.EntryLoggedPayload
		if err := decodePayload(evt, &payload); err != nil {
			return err
		}
		// Re-logging may move an existing entry to another date.
		dates := []string{payload.Date}
		if entry, ok := prev.Entries[payload.EntryID]; ok && entry.Date != payload.Date {
			dates = append(dates, entry.Date)
		}
		for _, date := range dates {
			if err := a.projectDay(ctx, tx, next, date, clearRejection); err != nil {
				return err
			}
		}
		return a.projectMonth(ctx, tx, next)

	case event.TypeEntryDeleted:
		var payload event.EntryDeletedPayload
		if err := decodePayload(evt, &payload); err != nil {
			return err
		}
		entry, ok := prev.Entries[payload.EntryID]
		if !ok {
			return nil
		}
		if err := a.projectDay(ctx, tx, next, entry.Date, keepRejection); err != nil {
			return err
		}
		return a.projectMonth(ctx, tx, next)

	case event.TypeAbsenceLogged:
		var payload event.AbsenceLoggedPayload
		if err := decodePayload(evt, &payload); err != nil {
			return err
		}
		dates := []string{payload.Date}
		if absence, ok := prev.Absences[payload.AbsenceID]; ok && absence.Date != payload.Date {
			dates = append(dates, absence.Date)
		}
		for _, date := range dates {
			if err := a.projectDay(ctx, tx, next, date, clearRejection); err != nil {
				return err
			}
		}
		return a.projectMonth(ctx, tx, next)

	case event.TypeAbsenceDeleted:
		var payload event.AbsenceDeletedPayload
		if err := decodePayload(evt, &payload); err != nil {
			return err
		}
		absence, ok := prev.Absences[payload.AbsenceID]
		if !ok {
			return nil
		}
		if err := a.projectDay(ctx, tx, next, absence.Date, keepRejection); err != nil {
			return err
		}
		return a.projectMonth(ctx, tx, next)

	case event.TypeDaySubmitted:
		var payload event.DaySubmittedPayload
		if err := decodePayload(evt, &payload); err != nil {
			return err
		}
		// A fresh submission supersedes any earlier rejection of the day.
		return a.projectDay(ctx, tx, next, payload.Date, clearRejection)

	case event.TypeDayRejected:
		var payload event.DayRejectedPayload
		if err := decodePayload(evt, &payload); err != nil {
			return err
		}
		rejection := rejectionMark{source: "daily", reason: payload.Reason}
		if err := a.projectDayRejected(ctx, tx, next, payload.Date, rejection); err != nil {
			return err
		}
		return tx.InsertDailyRejection(ctx, storage.DailyRejection{
			AggregateID: evt.AggregateID,
			Seq:         evt.Seq,
			MemberID:    next.MemberID,
			Date:        payload.Date,
			Reason:      payload.Reason,
			ActorID:     evt.ActorID,
			RejectedAt:  ensureTimestamp(evt.Timestamp),
		})

	case event.TypeDayRecalled:
		var payload event.DayRecalledPayload
		if err := decodePayload(evt, &payload); err != nil {
			return err
		}
		return a.projectDay(ctx, tx, next, payload.Date, keepRejection)

	case event.TypeMonthSubmitted:
		var payload event.MonthSubmittedPayload
		if err := decodePayload(evt, &payload); err != nil {
			return err
		}
		for _, date := range recordDates(next) {
			if err := a.projectDay(ctx, tx, next, date, clearRejection); err != nil {
				return err
			}
		}
		if err := a.projectMonth(ctx, tx, next); err != nil {
			return err
		}
		return tx.UpsertApprovalQueueItem(ctx, storage.ApprovalQueueItem{
			ReviewerID:  payload.ReviewerID,
			MemberID:    next.MemberID,
			Month:       next.Month,
			SubmittedBy: evt.ActorID,
			Proxy:       payload.Proxy,
			RecordCount: len(payload.EntryIDs) + len(payload.AbsenceIDs),
			SubmittedAt: ensureTimestamp(evt.Timestamp),
		})

	case event.TypeMonthApproved:
		for _, date := range recordDates(next) {
			if err := a.projectDay(ctx, tx, next, date, keepRejection); err != nil {
				return err
			}
		}
		if err := a.projectMonth(ctx, tx, next); err != nil {
			return err
		}
		return a.removeQueueItem(ctx, tx, prev, next)

	case event.TypeMonthRejected:
		var payload event.MonthRejectedPayload
		if err := decodePayload(evt, &payload); err != nil {
			return err
		}
		// The monthly rejection reason supersedes earlier daily rejections
		// on every day covered by the submission.
		rejected := submissionDates(prev)
		rejection := rejectionMark{source: "monthly", reason: payload.Reason}
		for _, date := range recordDates(next) {
			if rejected[date] {
				if err := a.projectDayRejected(ctx, tx, next, date, rejection); err != nil {
					return err
				}
				continue
			}
			if err := a.projectDay(ctx, tx, next, date, keepRejection); err != nil {
				return err
			}
		}
		if err := a.projectMonth(ctx, tx, next); err != nil {
			return err
		}
		return a.removeQueueItem(ctx, tx, prev, next)

	case event.TypeMonthRecalled:
		for _, date := range recordDates(next) {
			if err := a.projectDay(ctx, tx, next, date, keepRejection); err != nil {
				return err
			}
		}
		if err := a.projectMonth(ctx, tx, next); err != nil {
			return err
		}
		return a.removeQueueItem(ctx, tx, prev, next)

	default:
		return fmt.Errorf("unhandled projection event type: %s", evt.Type)
	}
}

// removeQueueItem drops the reviewer queue row for a concluded or withdrawn
// month submission. The reviewer comes from the pre-event approval because a
// recall clears it from the folded state.
func (a *Applier) removeQueueItem(ctx context.Context, tx storage.ProjectionStore, prev, next aggregate.State) error {
	reviewerID := prev.Approval.ReviewerID
	if reviewerID == "" {
		return nil
	}
	return tx.DeleteApprovalQueueItem(ctx, reviewerID, next.MemberID, next.Month)
}

type rejectionPolicy int

const (
	keepRejection rejectionPolicy = iota
	clearRejection
)

type rejectionMark struct {
	source string
	reason string
}

// projectDay recomputes one calendar day from aggregate state. Rejection
// annotations are projection-only state, so they are carried over from the
// existing row unless the event clears or replaces them.
func (a *Applier) projectDay(ctx context.Context, tx storage.ProjectionStore, st aggregate.State, date string, policy rejectionPolicy) error {
	day := a.buildDay(st, date)
	if policy == keepRejection {
		existing, err := tx.GetCalendarDay(ctx, st.MemberID, date)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		day.RejectionSource = existing.RejectionSource
		day.RejectionReason = existing.RejectionReason
	}
	return tx.UpsertCalendarDay(ctx, day)
}

func (a *Applier) projectDayRejected(ctx context.Context, tx storage.ProjectionStore, st aggregate.State, date string, rejection rejectionMark) error {
	day := a.buildDay(st, date)
	day.RejectionSource = rejection.source
	day.RejectionReason = rejection.reason
	return tx.UpsertCalendarDay(ctx, day)
}

func (a *Applier) buildDay(st aggregate.State, date string) storage.CalendarDay {
	day := storage.CalendarDay{
		MemberID: st.MemberID,
		Date:     date,
	}

	var statuses []timesheet.RecordStatus
	for _, entry := range st.Entries {
		if entry.Date != date {
			continue
		}
		day.WorkQuarterHours += entry.QuarterHours
		statuses = append(statuses, entry.Status)
	}
	for _, absence := range st.Absences {
		if absence.Date != date {
			continue
		}
		day.AbsenceQuarterHours += absence.QuarterHours
		statuses = append(statuses, absence.Status)
	}
	day.Status = string(dayStatus(statuses))
	return day
}

// dayStatus reduces record statuses to a single day status. A day with any
// draft record still needs member action, so draft wins over submitted,
// which wins over approved.
func dayStatus(statuses []timesheet.RecordStatus) timesheet.RecordStatus {
	if len(statuses) == 0 {
		return ""
	}
	result := timesheet.StatusApproved
	for _, status := range statuses {
		switch status {
		case timesheet.StatusDraft:
			return timesheet.StatusDraft
		case timesheet.StatusSubmitted:
			result = timesheet.StatusSubmitted
		}
	}
	return result
}

func (a *Applier) projectMonth(ctx context.Context, tx storage.ProjectionStore, st aggregate.State) error {
	summary := storage.MonthlySummary{
		MemberID: st.MemberID,
		Month:    st.Month,
		Status:   string(st.Approval.Status),
	}
	if summary.Status == "" {
		summary.Status = string(timesheet.MonthPending)
	}

	byProject := map[string]int{}
	for _, entry := range st.Entries {
		summary.WorkQuarterHours += entry.QuarterHours
		byProject[entry.ProjectID] += entry.QuarterHours
	}
	byAbsenceKind := map[string]int{}
	for _, absence := range st.Absences {
		summary.AbsenceQuarterHours += absence.QuarterHours
		byAbsenceKind[absence.Kind] += absence.QuarterHours
	}

	expected, err := timesheet.ExpectedQuarterHours(st.Month)
	if err != nil {
		return err
	}
	summary.ExpectedQuarterHours = expected
	if expected > 0 {
		logged := summary.WorkQuarterHours + summary.AbsenceQuarterHours
		summary.CompletionPercent = 100 * float64(logged) / float64(expected)
	}

	if len(byProject) > 0 {
		data, err := json.Marshal(byProject)
		if err != nil {
			return fmt.Errorf("marshal project totals: %w", err)
		}
		summary.ByProjectJSON = data
	}
	if len(byAbsenceKind) > 0 {
		data, err := json.Marshal(byAbsenceKind)
		if err != nil {
			return fmt.Errorf("marshal absence totals: %w", err)
		}
		summary.ByAbsenceKindJSON = data
	}

	return tx.UpsertMonthlySummary(ctx, summary)
}

// recordDates returns the sorted distinct dates carrying records in state.
func recordDates(st aggregate.State) []string {
	seen := map[string]bool{}
	for _, entry := range st.Entries {
		seen[entry.Date] = true
	}
	for _, absence := range st.Absences {
		seen[absence.Date] = true
	}
	dates := make([]string, 0, len(seen))
	for date := range seen {
		dates = append(dates, date)
	}
	sort.Strings(dates)
	return dates
}

// submissionDates returns the dates of records covered by the pre-event
// month submission.
func submissionDates(prev aggregate.State) map[string]bool {
	dates := map[string]bool{}
	for _, entryID := range prev.Approval.EntryIDs {
		if entry, ok := prev.Entries[entryID]; ok {
			dates[entry.Date] = true
		}
	}
	for _, absenceID := range prev.Approval.AbsenceIDs {
		if absence, ok := prev.Absences[absenceID]; ok {
			dates[absence.Date] = true
		}
	}
	return dates
}

func decodePayload(evt event.Event, target any) error {
	if err := json.Unmarshal(evt.PayloadJSON, target); err != nil {
		return fmt.Errorf("decode %s payload: %w", evt.Type, err)
	}
	return nil
}

// ensureTimestamp normalizes timestamps so projections always persist UTC.
func ensureTimestamp(ts time.Time) time.Time {
	if ts.IsZero() {
		return time.Now().UTC()
	}
	return ts.UTC()
}
