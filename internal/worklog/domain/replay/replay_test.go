package replay

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/openclock/worklog/internal/worklog/domain/aggregate"
	"github.com/openclock/worklog/internal/worklog/domain/event"
	"github.com/openclock/worklog/internal/worklog/domain/timesheet"
)

type memoryEventStore struct {
	events []event.Event
}

func (m *memoryEventStore) ListEvents(_ context.Context, _ string, afterSeq uint64, limit int) ([]event.Event, error) {
	var out []event.Event
	for _, evt := range m.events {
		if evt.Seq > afterSeq {
			out = append(out, evt)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func entryLogged(t *testing.T, seq uint64, entryID string, quarterHours int) event.Event {
	t.Helper()
	raw, err := json.Marshal(event.EntryLoggedPayload{
		EntryID: entryID, ProjectID: "p-1", Date: "2026-02-05", QuarterHours: quarterHours,
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return event.Event{
		AggregateID: "timesheet/member-1/2026-02",
		Seq:         seq,
		Type:        event.TypeEntryLogged,
		PayloadJSON: raw,
	}
}

func TestReplayFoldsInOrder(t *testing.T) {
	store := &memoryEventStore{events: []event.Event{
		entryLogged(t, 1, "e-1", 8),
		entryLogged(t, 2, "e-2", 16),
		entryLogged(t, 3, "e-1", 4),
	}}

	result, err := Replay(context.Background(), store, &aggregate.Folder{}, "timesheet/member-1/2026-02",
		aggregate.NewState("member-1", "2026-02"), Options{PageSize: 2})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if result.LastSeq != 3 {
		t.Fatalf("last seq = %d, want 3", result.LastSeq)
	}
	if result.Applied != 3 {
		t.Fatalf("applied = %d, want 3", result.Applied)
	}
	if result.State.Entries["e-1"].QuarterHours != 4 {
		t.Fatalf("e-1 hours = %d, want 4", result.State.Entries["e-1"].QuarterHours)
	}
	if result.State.Entries["e-2"].QuarterHours != 16 {
		t.Fatalf("e-2 hours = %d, want 16", result.State.Entries["e-2"].QuarterHours)
	}
}

func TestReplayAfterSeqSkipsFoldedEvents(t *testing.T) {
	store := &memoryEventStore{events: []event.Event{
		entryLogged(t, 1, "e-1", 8),
		entryLogged(t, 2, "e-2", 16),
	}}

	seeded := aggregate.NewState("member-1", "2026-02")
	seeded.Entries["e-1"] = timesheet.Entry{ID: "e-1", ProjectID: "p-1", Date: "2026-02-05", QuarterHours: 8, Status: timesheet.StatusDraft}

	result, err := Replay(context.Background(), store, &aggregate.Folder{}, "timesheet/member-1/2026-02", seeded, Options{AfterSeq: 1})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if result.Applied != 1 {
		t.Fatalf("applied = %d, want 1", result.Applied)
	}
	if len(result.State.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(result.State.Entries))
	}
}

func TestReplayDetectsSequenceGap(t *testing.T) {
	store := &memoryEventStore{events: []event.Event{
		entryLogged(t, 1, "e-1", 8),
		entryLogged(t, 3, "e-2", 16),
	}}

	_, err := Replay(context.Background(), store, &aggregate.Folder{}, "timesheet/member-1/2026-02",
		aggregate.NewState("member-1", "2026-02"), Options{})
	if err == nil {
		t.Fatal("expected sequence gap error")
	}
}

func TestReplayUntilSeqStopsEarly(t *testing.T) {
	store := &memoryEventStore{events: []event.Event{
		entryLogged(t, 1, "e-1", 8),
		entryLogged(t, 2, "e-2", 16),
		entryLogged(t, 3, "e-3", 4),
	}}

	result, err := Replay(context.Background(), store, &aggregate.Folder{}, "timesheet/member-1/2026-02",
		aggregate.NewState("member-1", "2026-02"), Options{UntilSeq: 2})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if result.LastSeq != 2 {
		t.Fatalf("last seq = %d, want 2", result.LastSeq)
	}
	if _, ok := result.State.Entries["e-3"]; ok {
		t.Fatal("expected e-3 to be excluded")
	}
}

func TestReplayValidatesInputs(t *testing.T) {
	if _, err := Replay(context.Background(), nil, &aggregate.Folder{}, "a", aggregate.State{}, Options{}); err != ErrEventStoreRequired {
		t.Fatalf("err = %v, want ErrEventStoreRequired", err)
	}
	if _, err := Replay(context.Background(), &memoryEventStore{}, nil, "a", aggregate.State{}, Options{}); err != ErrFolderRequired {
		t.Fatalf("err = %v, want ErrFolderRequired", err)
	}
	if _, err := Replay(context.Background(), &memoryEventStore{}, &aggregate.Folder{}, "  ", aggregate.State{}, Options{}); err != ErrAggregateIDRequired {
		t.Fatalf("err = %v, want ErrAggregateIDRequired", err)
	}
}
