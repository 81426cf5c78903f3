package aggregate

import (
	"encoding/json"
	"sort"
	"testing"

	"github.com/openclock/worklog/internal/worklog/domain/event"
	"github.com/openclock/worklog/internal/worklog/domain/timesheet"
)

func mustPayload(t *testing.T, payload any) []byte {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return raw
}

func foldAll(t *testing.T, state State, events ...event.Event) State {
	t.Helper()
	folder := &Folder{}
	for _, evt := range events {
		next, err := folder.Fold(state, evt)
		if err != nil {
			t.Fatalf("fold %s: %v", evt.Type, err)
		}
		state = next
	}
	return state
}

func TestFoldDispatchCoversAllEventTypes(t *testing.T) {
	folder := &Folder{}
	dispatched := folder.FoldDispatchedTypes()

	want := make([]string, 0, len(event.Types()))
	for _, typ := range event.Types() {
		want = append(want, string(typ))
	}
	got := make([]string, 0, len(dispatched))
	for _, typ := range dispatched {
		got = append(got, string(typ))
	}
	sort.Strings(want)
	sort.Strings(got)

	if len(got) != len(want) {
		t.Fatalf("dispatched %d types, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("dispatched[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestFoldUnknownTypeFails(t *testing.T) {
	folder := &Folder{}
	if _, err := folder.Fold(NewState("m", "2026-02"), event.Event{Type: event.Type("bogus.type")}); err == nil {
		t.Fatal("expected error for unknown event type")
	}
}

func TestFoldEntryLifecycle(t *testing.T) {
	state := NewState("member-1", "2026-02")

	state = foldAll(t, state, event.Event{
		Type: event.TypeEntryLogged,
		PayloadJSON: mustPayload(t, event.EntryLoggedPayload{
			EntryID: "e-1", ProjectID: "p-1", Date: "2026-02-05", QuarterHours: 32,
		}),
	})
	entry, ok := state.Entries["e-1"]
	if !ok {
		t.Fatal("expected entry e-1")
	}
	if entry.Status != timesheet.StatusDraft {
		t.Fatalf("status = %s, want draft", entry.Status)
	}
	if state.DayQuarterHours("2026-02-05") != 32 {
		t.Fatalf("day hours = %d, want 32", state.DayQuarterHours("2026-02-05"))
	}

	// Re-logging replaces hours in place.
	state = foldAll(t, state, event.Event{
		Type: event.TypeEntryLogged,
		PayloadJSON: mustPayload(t, event.EntryLoggedPayload{
			EntryID: "e-1", ProjectID: "p-1", Date: "2026-02-05", QuarterHours: 16,
		}),
	})
	if state.DayQuarterHours("2026-02-05") != 16 {
		t.Fatalf("day hours = %d, want 16", state.DayQuarterHours("2026-02-05"))
	}

	state = foldAll(t, state, event.Event{
		Type:        event.TypeEntryDeleted,
		PayloadJSON: mustPayload(t, event.EntryDeletedPayload{EntryID: "e-1"}),
	})
	if _, ok := state.Entries["e-1"]; ok {
		t.Fatal("expected entry e-1 removed")
	}
}

func TestFoldMonthSubmitApprove(t *testing.T) {
	state := NewState("member-1", "2026-02")
	state = foldAll(t, state,
		event.Event{
			Type: event.TypeEntryLogged,
			PayloadJSON: mustPayload(t, event.EntryLoggedPayload{
				EntryID: "e-1", ProjectID: "p-1", Date: "2026-02-02", QuarterHours: 32,
			}),
		},
		event.Event{
			Type:    event.TypeMonthSubmitted,
			ActorID: "member-1",
			PayloadJSON: mustPayload(t, event.MonthSubmittedPayload{
				ReviewerID: "boss-1", EntryIDs: []string{"e-1"},
			}),
		},
	)
	if state.Approval.Status != timesheet.MonthSubmitted {
		t.Fatalf("month status = %s, want submitted", state.Approval.Status)
	}
	if state.Entries["e-1"].Status != timesheet.StatusSubmitted {
		t.Fatalf("entry status = %s, want submitted", state.Entries["e-1"].Status)
	}

	state = foldAll(t, state, event.Event{
		Type:        event.TypeMonthApproved,
		ActorID:     "boss-1",
		PayloadJSON: mustPayload(t, event.MonthApprovedPayload{ReviewerID: "boss-1"}),
	})
	if state.Approval.Status != timesheet.MonthApproved {
		t.Fatalf("month status = %s, want approved", state.Approval.Status)
	}
	if state.Entries["e-1"].Status != timesheet.StatusApproved {
		t.Fatalf("entry status = %s, want approved", state.Entries["e-1"].Status)
	}
}

func TestFoldMonthRejectedReopensEntries(t *testing.T) {
	state := NewState("member-1", "2026-02")
	state = foldAll(t, state,
		event.Event{
			Type: event.TypeEntryLogged,
			PayloadJSON: mustPayload(t, event.EntryLoggedPayload{
				EntryID: "e-1", ProjectID: "p-1", Date: "2026-02-02", QuarterHours: 32,
			}),
		},
		event.Event{
			Type: event.TypeMonthSubmitted,
			PayloadJSON: mustPayload(t, event.MonthSubmittedPayload{
				ReviewerID: "boss-1", EntryIDs: []string{"e-1"},
			}),
		},
		event.Event{
			Type: event.TypeMonthRejected,
			PayloadJSON: mustPayload(t, event.MonthRejectedPayload{
				ReviewerID: "boss-1", Reason: "missing Friday hours",
			}),
		},
	)
	if state.Approval.Status != timesheet.MonthRejected {
		t.Fatalf("month status = %s, want rejected", state.Approval.Status)
	}
	if state.Approval.Reason != "missing Friday hours" {
		t.Fatalf("reason = %q", state.Approval.Reason)
	}
	if state.Entries["e-1"].Status != timesheet.StatusDraft {
		t.Fatalf("entry status = %s, want draft", state.Entries["e-1"].Status)
	}
}

func TestFoldDayRejectedOnlyTouchesListedRecords(t *testing.T) {
	state := NewState("member-1", "2026-02")
	state = foldAll(t, state,
		event.Event{
			Type: event.TypeEntryLogged,
			PayloadJSON: mustPayload(t, event.EntryLoggedPayload{
				EntryID: "e-1", ProjectID: "p-1", Date: "2026-02-05", QuarterHours: 32,
			}),
		},
		event.Event{
			Type: event.TypeEntryLogged,
			PayloadJSON: mustPayload(t, event.EntryLoggedPayload{
				EntryID: "e-2", ProjectID: "p-1", Date: "2026-02-06", QuarterHours: 32,
			}),
		},
		event.Event{
			Type: event.TypeDaySubmitted,
			PayloadJSON: mustPayload(t, event.DaySubmittedPayload{
				Date: "2026-02-05", EntryIDs: []string{"e-1"},
			}),
		},
		event.Event{
			Type: event.TypeDaySubmitted,
			PayloadJSON: mustPayload(t, event.DaySubmittedPayload{
				Date: "2026-02-06", EntryIDs: []string{"e-2"},
			}),
		},
		event.Event{
			Type: event.TypeDayRejected,
			PayloadJSON: mustPayload(t, event.DayRejectedPayload{
				Date: "2026-02-05", Reason: "wrong project", EntryIDs: []string{"e-1"},
			}),
		},
	)
	if state.Entries["e-1"].Status != timesheet.StatusDraft {
		t.Fatalf("e-1 status = %s, want draft", state.Entries["e-1"].Status)
	}
	if state.Entries["e-2"].Status != timesheet.StatusSubmitted {
		t.Fatalf("e-2 status = %s, want submitted", state.Entries["e-2"].Status)
	}
}

func TestFoldMonthRecalledResetsApproval(t *testing.T) {
	state := NewState("member-1", "2026-02")
	state = foldAll(t, state,
		event.Event{
			Type: event.TypeEntryLogged,
			PayloadJSON: mustPayload(t, event.EntryLoggedPayload{
				EntryID: "e-1", ProjectID: "p-1", Date: "2026-02-02", QuarterHours: 32,
			}),
		},
		event.Event{
			Type: event.TypeMonthSubmitted,
			PayloadJSON: mustPayload(t, event.MonthSubmittedPayload{
				ReviewerID: "boss-1", EntryIDs: []string{"e-1"},
			}),
		},
		event.Event{
			Type:        event.TypeMonthRecalled,
			PayloadJSON: mustPayload(t, event.MonthRecalledPayload{}),
		},
	)
	if state.Approval.Status != timesheet.MonthPending {
		t.Fatalf("month status = %s, want pending", state.Approval.Status)
	}
	if state.Entries["e-1"].Status != timesheet.StatusDraft {
		t.Fatalf("entry status = %s, want draft", state.Entries["e-1"].Status)
	}
}

func TestFoldDoesNotMutateInput(t *testing.T) {
	folder := &Folder{}
	original := NewState("member-1", "2026-02")
	original.Entries["e-1"] = timesheet.Entry{ID: "e-1", Date: "2026-02-05", QuarterHours: 8, Status: timesheet.StatusDraft}

	_, err := folder.Fold(original, event.Event{
		Type:        event.TypeEntryDeleted,
		PayloadJSON: []byte(`{"entry_id":"e-1"}`),
	})
	if err != nil {
		t.Fatalf("fold: %v", err)
	}
	if _, ok := original.Entries["e-1"]; !ok {
		t.Fatal("fold mutated its input state")
	}
}

func TestParseID(t *testing.T) {
	memberID, month, err := ParseID("timesheet/member-1/2026-02")
	if err != nil {
		t.Fatalf("parse id: %v", err)
	}
	if memberID != "member-1" || month != "2026-02" {
		t.Fatalf("parsed = %s/%s", memberID, month)
	}
	if _, _, err := ParseID("campaign/x"); err == nil {
		t.Fatal("expected error for malformed id")
	}
}
