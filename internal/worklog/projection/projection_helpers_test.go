package projection

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/openclock/worklog/internal/worklog/domain/event"
	"github.com/openclock/worklog/internal/worklog/storage"
)

const testAggregateID = "timesheet/member-1/2026-03"

type memoryEventStore struct {
	events map[string][]event.Event
}

func newMemoryEventStore() *memoryEventStore {
	return &memoryEventStore{events: map[string][]event.Event{}}
}

func (s *memoryEventStore) append(t *testing.T, aggregateID string, eventType event.Type, actorID string, payload any) event.Event {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	evt := event.Event{
		AggregateID:   aggregateID,
		AggregateType: event.AggregateTypeTimesheet,
		Seq:           uint64(len(s.events[aggregateID]) + 1),
		Timestamp:     time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		Type:          eventType,
		ActorType:     event.ActorTypeMember,
		ActorID:       actorID,
		PayloadJSON:   data,
	}
	s.events[aggregateID] = append(s.events[aggregateID], evt)
	return evt
}

func (s *memoryEventStore) ListEvents(_ context.Context, aggregateID string, afterSeq uint64, limit int) ([]event.Event, error) {
	var out []event.Event
	for _, evt := range s.events[aggregateID] {
		if evt.Seq <= afterSeq {
			continue
		}
		out = append(out, evt)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *memoryEventStore) ListAggregateIDs(context.Context) ([]string, error) {
	ids := make([]string, 0, len(s.events))
	for id := range s.events {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

type memoryProjectionStore struct {
	watermarks map[string]storage.ProjectionWatermark
	days       map[string]storage.CalendarDay
	summaries  map[string]storage.MonthlySummary
	queue      map[string]storage.ApprovalQueueItem
	rejections map[string]storage.DailyRejection
}

func newMemoryProjectionStore() *memoryProjectionStore {
	return &memoryProjectionStore{
		watermarks: map[string]storage.ProjectionWatermark{},
		days:       map[string]storage.CalendarDay{},
		summaries:  map[string]storage.MonthlySummary{},
		queue:      map[string]storage.ApprovalQueueItem{},
		rejections: map[string]storage.DailyRejection{},
	}
}

func (s *memoryProjectionStore) InTx(_ context.Context, fn func(storage.ProjectionStore) error) error {
	return fn(s)
}

func (s *memoryProjectionStore) GetProjectionWatermark(_ context.Context, aggregateID string) (storage.ProjectionWatermark, error) {
	wm, ok := s.watermarks[aggregateID]
	if !ok {
		return storage.ProjectionWatermark{}, storage.ErrNotFound
	}
	return wm, nil
}

func (s *memoryProjectionStore) SaveProjectionWatermark(_ context.Context, wm storage.ProjectionWatermark) error {
	s.watermarks[wm.AggregateID] = wm
	return nil
}

func (s *memoryProjectionStore) UpsertCalendarDay(_ context.Context, day storage.CalendarDay) error {
	s.days[day.MemberID+"|"+day.Date] = day
	return nil
}

func (s *memoryProjectionStore) GetCalendarDay(_ context.Context, memberID, date string) (storage.CalendarDay, error) {
	day, ok := s.days[memberID+"|"+date]
	if !ok {
		return storage.CalendarDay{}, storage.ErrNotFound
	}
	return day, nil
}

func (s *memoryProjectionStore) ListCalendarDays(_ context.Context, memberID, fromDate, toDate string) ([]storage.CalendarDay, error) {
	var out []storage.CalendarDay
	for _, day := range s.days {
		if day.MemberID == memberID && day.Date >= fromDate && day.Date <= toDate {
			out = append(out, day)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (s *memoryProjectionStore) UpsertMonthlySummary(_ context.Context, summary storage.MonthlySummary) error {
	s.summaries[summary.MemberID+"|"+summary.Month] = summary
	return nil
}

func (s *memoryProjectionStore) GetMonthlySummary(_ context.Context, memberID, month string) (storage.MonthlySummary, error) {
	summary, ok := s.summaries[memberID+"|"+month]
	if !ok {
		return storage.MonthlySummary{}, storage.ErrNotFound
	}
	return summary, nil
}

func (s *memoryProjectionStore) UpsertApprovalQueueItem(_ context.Context, item storage.ApprovalQueueItem) error {
	s.queue[item.ReviewerID+"|"+item.MemberID+"|"+item.Month] = item
	return nil
}

func (s *memoryProjectionStore) DeleteApprovalQueueItem(_ context.Context, reviewerID, memberID, month string) error {
	delete(s.queue, reviewerID+"|"+memberID+"|"+month)
	return nil
}

func (s *memoryProjectionStore) ListApprovalQueue(_ context.Context, reviewerID string) ([]storage.ApprovalQueueItem, error) {
	var out []storage.ApprovalQueueItem
	for _, item := range s.queue {
		if item.ReviewerID == reviewerID {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MemberID < out[j].MemberID })
	return out, nil
}

func (s *memoryProjectionStore) InsertDailyRejection(_ context.Context, rejection storage.DailyRejection) error {
	key := fmt.Sprintf("%s|%d", rejection.AggregateID, rejection.Seq)
	if _, ok := s.rejections[key]; ok {
		return nil
	}
	s.rejections[key] = rejection
	return nil
}

func (s *memoryProjectionStore) ListDailyRejections(_ context.Context, memberID, fromDate, toDate string) ([]storage.DailyRejection, error) {
	var out []storage.DailyRejection
	for _, rejection := range s.rejections {
		if rejection.MemberID == memberID && rejection.Date >= fromDate && rejection.Date <= toDate {
			out = append(out, rejection)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq > out[j].Seq })
	return out, nil
}

func (s *memoryProjectionStore) ResetProjections(context.Context) error {
	s.watermarks = map[string]storage.ProjectionWatermark{}
	s.days = map[string]storage.CalendarDay{}
	s.summaries = map[string]storage.MonthlySummary{}
	s.queue = map[string]storage.ApprovalQueueItem{}
	s.rejections = map[string]storage.DailyRejection{}
	return nil
}

func newTestApplier(events *memoryEventStore, projections storage.ProjectionStore) *Applier {
	return &Applier{Events: events, Projections: projections}
}

// applyAll feeds every stored event through the applier in journal order.
func applyAll(t *testing.T, applier *Applier, events *memoryEventStore, aggregateID string) {
	t.Helper()
	for _, evt := range events.events[aggregateID] {
		if err := applier.Apply(context.Background(), evt); err != nil {
			t.Fatalf("apply %s/%d (%s): %v", evt.AggregateID, evt.Seq, evt.Type, err)
		}
	}
}
