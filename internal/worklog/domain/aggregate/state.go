// Package aggregate reconstructs timesheet state by folding journal events.
package aggregate

import (
	"fmt"
	"strings"

	"github.com/openclock/worklog/internal/worklog/domain/timesheet"
)

// State captures the full domain state of one member-month timesheet.
//
// State is derived exclusively from the event journal; snapshots serialize
// this struct and must round-trip through JSON without loss.
type State struct {
	MemberID string                        `json:"member_id"`
	Month    string                        `json:"month"`
	Entries  map[string]timesheet.Entry    `json:"entries,omitempty"`
	Absences map[string]timesheet.Absence  `json:"absences,omitempty"`
	Approval timesheet.Approval            `json:"approval"`
}

// NewState returns the empty initial state for a member-month at version 0.
func NewState(memberID, month string) State {
	return State{
		MemberID: memberID,
		Month:    month,
		Entries:  map[string]timesheet.Entry{},
		Absences: map[string]timesheet.Absence{},
		Approval: timesheet.Approval{Status: timesheet.MonthPending},
	}
}

// ParseID splits a timesheet aggregate id into member and month.
func ParseID(aggregateID string) (memberID, month string, err error) {
	parts := strings.Split(aggregateID, "/")
	if len(parts) != 3 || parts[0] != "timesheet" || parts[1] == "" || parts[2] == "" {
		return "", "", fmt.Errorf("malformed timesheet aggregate id %q", aggregateID)
	}
	return parts[1], parts[2], nil
}

// DayQuarterHours sums worked and absent time for one date.
func (s State) DayQuarterHours(date string) int {
	total := 0
	for _, entry := range s.Entries {
		if entry.Date == date {
			total += entry.QuarterHours
		}
	}
	for _, absence := range s.Absences {
		if absence.Date == date {
			total += absence.QuarterHours
		}
	}
	return total
}

// DayRecords returns the ids of entries and absences on a date with the
// given status, in no particular order.
func (s State) DayRecords(date string, status timesheet.RecordStatus) (entryIDs, absenceIDs []string) {
	for entryID, entry := range s.Entries {
		if entry.Date == date && entry.Status == status {
			entryIDs = append(entryIDs, entryID)
		}
	}
	for absenceID, absence := range s.Absences {
		if absence.Date == date && absence.Status == status {
			absenceIDs = append(absenceIDs, absenceID)
		}
	}
	return entryIDs, absenceIDs
}
