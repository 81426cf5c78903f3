package aggregate

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/openclock/worklog/internal/worklog/domain/event"
	"github.com/openclock/worklog/internal/worklog/domain/timesheet"
)

// Folder folds events into aggregate state.
//
// The folder is where the domain boundary stays deterministic: each event
// type updates state identically whether during request execution or
// historical reconstruction. Folds never perform I/O.
//
// Dispatch is declarative: foldEntries() maps event types to fold functions,
// and the registry parity test asserts the mapping covers event.Types()
// exactly, so adding an event type without a fold is a test failure.
type Folder struct {
	foldOnce  sync.Once
	foldIndex map[event.Type]func(*State, event.Event) error
}

type foldEntry struct {
	types []event.Type
	fold  func(*State, event.Event) error
}

func foldEntries() []foldEntry {
	return []foldEntry{
		{types: []event.Type{event.TypeEntryLogged}, fold: foldEntryLogged},
		{types: []event.Type{event.TypeEntryDeleted}, fold: foldEntryDeleted},
		{types: []event.Type{event.TypeAbsenceLogged}, fold: foldAbsenceLogged},
		{types: []event.Type{event.TypeAbsenceDeleted}, fold: foldAbsenceDeleted},
		{types: []event.Type{event.TypeDaySubmitted}, fold: foldDaySubmitted},
		{types: []event.Type{event.TypeDayRejected, event.TypeDayRecalled}, fold: foldDayReleased},
		{types: []event.Type{event.TypeMonthSubmitted}, fold: foldMonthSubmitted},
		{types: []event.Type{event.TypeMonthApproved}, fold: foldMonthApproved},
		{types: []event.Type{event.TypeMonthRejected}, fold: foldMonthRejected},
		{types: []event.Type{event.TypeMonthRecalled}, fold: foldMonthRecalled},
	}
}

func (f *Folder) initFoldIndex() {
	f.foldOnce.Do(func() {
		f.foldIndex = make(map[event.Type]func(*State, event.Event) error)
		for _, entry := range foldEntries() {
			fn := entry.fold
			for _, t := range entry.types {
				f.foldIndex[t] = fn
			}
		}
	})
}

// FoldDispatchedTypes returns the union of all event types wired into the
// fold dispatch index. The parity test verifies this equals event.Types().
func (f *Folder) FoldDispatchedTypes() []event.Type {
	f.initFoldIndex()
	types := make([]event.Type, 0, len(f.foldIndex))
	for t := range f.foldIndex {
		types = append(types, t)
	}
	return types
}

// Fold applies a single event to aggregate state and returns the new state.
// The input state is not mutated.
func (f *Folder) Fold(state State, evt event.Event) (State, error) {
	f.initFoldIndex()

	fn, ok := f.foldIndex[evt.Type]
	if !ok {
		return state, fmt.Errorf("no fold for event type %q", evt.Type)
	}

	next := cloneState(state)
	if err := fn(&next, evt); err != nil {
		return state, err
	}
	return next, nil
}

func cloneState(state State) State {
	cloned := state
	cloned.Entries = make(map[string]timesheet.Entry, len(state.Entries))
	for entryID, entry := range state.Entries {
		cloned.Entries[entryID] = entry
	}
	cloned.Absences = make(map[string]timesheet.Absence, len(state.Absences))
	for absenceID, absence := range state.Absences {
		cloned.Absences[absenceID] = absence
	}
	cloned.Approval.EntryIDs = append([]string(nil), state.Approval.EntryIDs...)
	cloned.Approval.AbsenceIDs = append([]string(nil), state.Approval.AbsenceIDs...)
	return cloned
}

func decodePayload(evt event.Event, target any) error {
	if err := json.Unmarshal(evt.PayloadJSON, target); err != nil {
		return fmt.Errorf("decode %s payload: %w", evt.Type, err)
	}
	return nil
}

func foldEntryLogged(state *State, evt event.Event) error {
	var payload event.EntryLoggedPayload
	if err := decodePayload(evt, &payload); err != nil {
		return err
	}
	state.Entries[payload.EntryID] = timesheet.Entry{
		ID:           payload.EntryID,
		ProjectID:    payload.ProjectID,
		Date:         payload.Date,
		QuarterHours: payload.QuarterHours,
		Note:         payload.Note,
		Status:       timesheet.StatusDraft,
	}
	return nil
}

func foldEntryDeleted(state *State, evt event.Event) error {
	var payload event.EntryDeletedPayload
	if err := decodePayload(evt, &payload); err != nil {
		return err
	}
	delete(state.Entries, payload.EntryID)
	return nil
}

func foldAbsenceLogged(state *State, evt event.Event) error {
	var payload event.AbsenceLoggedPayload
	if err := decodePayload(evt, &payload); err != nil {
		return err
	}
	state.Absences[payload.AbsenceID] = timesheet.Absence{
		ID:           payload.AbsenceID,
		Kind:         payload.Kind,
		Date:         payload.Date,
		QuarterHours: payload.QuarterHours,
		Note:         payload.Note,
		Status:       timesheet.StatusDraft,
	}
	return nil
}

func foldAbsenceDeleted(state *State, evt event.Event) error {
	var payload event.AbsenceDeletedPayload
	if err := decodePayload(evt, &payload); err != nil {
		return err
	}
	delete(state.Absences, payload.AbsenceID)
	return nil
}

func foldDaySubmitted(state *State, evt event.Event) error {
	var payload event.DaySubmittedPayload
	if err := decodePayload(evt, &payload); err != nil {
		return err
	}
	setRecordStatus(state, payload.EntryIDs, payload.AbsenceIDs, timesheet.StatusSubmitted)
	return nil
}

// foldDayReleased handles day.rejected and day.recalled: both return the
// listed records to draft.
func foldDayReleased(state *State, evt event.Event) error {
	var payload struct {
		EntryIDs   []string `json:"entry_ids"`
		AbsenceIDs []string `json:"absence_ids"`
	}
	if err := decodePayload(evt, &payload); err != nil {
		return err
	}
	setRecordStatus(state, payload.EntryIDs, payload.AbsenceIDs, timesheet.StatusDraft)
	return nil
}

func foldMonthSubmitted(state *State, evt event.Event) error {
	var payload event.MonthSubmittedPayload
	if err := decodePayload(evt, &payload); err != nil {
		return err
	}
	setRecordStatus(state, payload.EntryIDs, payload.AbsenceIDs, timesheet.StatusSubmitted)
	state.Approval = timesheet.Approval{
		Status:      timesheet.MonthSubmitted,
		ReviewerID:  payload.ReviewerID,
		SubmittedBy: evt.ActorID,
		Proxy:       payload.Proxy,
		EntryIDs:    append([]string(nil), payload.EntryIDs...),
		AbsenceIDs:  append([]string(nil), payload.AbsenceIDs...),
	}
	return nil
}

func foldMonthApproved(state *State, evt event.Event) error {
	setRecordStatus(state, state.Approval.EntryIDs, state.Approval.AbsenceIDs, timesheet.StatusApproved)
	state.Approval.Status = timesheet.MonthApproved
	return nil
}

func foldMonthRejected(state *State, evt event.Event) error {
	var payload event.MonthRejectedPayload
	if err := decodePayload(evt, &payload); err != nil {
		return err
	}
	setRecordStatus(state, state.Approval.EntryIDs, state.Approval.AbsenceIDs, timesheet.StatusDraft)
	state.Approval.Status = timesheet.MonthRejected
	state.Approval.Reason = payload.Reason
	return nil
}

func foldMonthRecalled(state *State, evt event.Event) error {
	setRecordStatus(state, state.Approval.EntryIDs, state.Approval.AbsenceIDs, timesheet.StatusDraft)
	state.Approval = timesheet.Approval{Status: timesheet.MonthPending}
	return nil
}

func setRecordStatus(state *State, entryIDs, absenceIDs []string, status timesheet.RecordStatus) {
	for _, entryID := range entryIDs {
		if entry, ok := state.Entries[entryID]; ok {
			entry.Status = status
			state.Entries[entryID] = entry
		}
	}
	for _, absenceID := range absenceIDs {
		if absence, ok := state.Absences[absenceID]; ok {
			absence.Status = status
			state.Absences[absenceID] = absence
		}
	}
}
