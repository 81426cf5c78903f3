package sqlite

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/openclock/worklog/internal/worklog/domain/event"
)

func openTestEventsStore(t *testing.T) *Store {
	t.Helper()
	return openTestEventsStoreWithOutbox(t, false)
}

func openTestEventsStoreWithOutbox(t *testing.T, outboxEnabled bool) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.sqlite")
	store, err := OpenEvents(path, WithOutboxEnabled(outboxEnabled))
	if err != nil {
		t.Fatalf("open events store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close events store: %v", err)
		}
	})
	return store
}

func openTestProjectionsStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "projections.sqlite")
	store, err := OpenProjections(path)
	if err != nil {
		t.Fatalf("open projections store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close projections store: %v", err)
		}
	})
	return store
}

func testEvent(t *testing.T, eventType event.Type, payload any) event.Event {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return event.Event{
		Type:        eventType,
		ActorType:   event.ActorTypeMember,
		ActorID:     "member-1",
		Timestamp:   time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		PayloadJSON: data,
	}
}
