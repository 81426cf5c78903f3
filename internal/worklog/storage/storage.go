// Package storage defines the persistence interfaces for the work-log core.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/openclock/worklog/internal/worklog/domain/event"
)

// ErrNotFound indicates the requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrVersionConflict indicates an append raced with another writer: the
// aggregate's current version no longer matches the caller's expected
// version. Callers recover by reloading and retrying.
var ErrVersionConflict = errors.New("aggregate version conflict")

// EventStore is the append-only journal. Events are never updated or deleted.
type EventStore interface {
	// AppendEvents appends a batch atomically. It fails with
	// ErrVersionConflict when the aggregate's current version differs from
	// expectedVersion, and returns the new version (expectedVersion + batch
	// size) on success.
	AppendEvents(ctx context.Context, aggregateID, aggregateType string, events []event.Event, expectedVersion uint64) (uint64, error)
	// ListEvents returns events ordered by sequence ascending, starting
	// after afterSeq.
	ListEvents(ctx context.Context, aggregateID string, afterSeq uint64, limit int) ([]event.Event, error)
	// GetVersion returns the aggregate's current version (0 for unknown
	// aggregates).
	GetVersion(ctx context.Context, aggregateID string) (uint64, error)
}

// Snapshot is a serialized aggregate state at a specific version.
type Snapshot struct {
	AggregateID string
	Version     uint64
	StateJSON   []byte
	CreatedAt   time.Time
}

// SnapshotStore caches aggregate state to bound replay cost. Snapshots are
// derived data: deleting them must never change observable behavior.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snapshot Snapshot) error
	// GetLatestSnapshot returns the newest snapshot for the aggregate, or
	// ErrNotFound when none exists.
	GetLatestSnapshot(ctx context.Context, aggregateID string) (Snapshot, error)
	// PruneSnapshots deletes all but the newest keep snapshots.
	PruneSnapshots(ctx context.Context, aggregateID string, keep int) error
}

// OutboxEntry describes one pending projection-apply row.
type OutboxEntry struct {
	AggregateID   string
	Seq           uint64
	EventType     event.Type
	Status        string
	AttemptCount  int
	NextAttemptAt time.Time
	LastError     string
	UpdatedAt     time.Time
}

// OutboxStore manages the transactional projection-apply queue that lives
// next to the journal.
type OutboxStore interface {
	// LeasePendingOutbox claims up to limit due rows for processing.
	LeasePendingOutbox(ctx context.Context, limit int) ([]OutboxEntry, error)
	// MarkOutboxApplied removes a successfully applied row.
	MarkOutboxApplied(ctx context.Context, aggregateID string, seq uint64) error
	// MarkOutboxFailed records a failure and schedules a retry, dead-lettering
	// the row once the attempt threshold is exceeded.
	MarkOutboxFailed(ctx context.Context, aggregateID string, seq uint64, cause string) error
	// RequeueDeadOutbox moves dead-lettered rows back to pending.
	RequeueDeadOutbox(ctx context.Context) (int, error)
}

// CalendarDay is one member-day in the calendar projection.
type CalendarDay struct {
	MemberID            string
	Date                string
	WorkQuarterHours    int
	AbsenceQuarterHours int
	Status              string
	RejectionSource     string
	RejectionReason     string
	UpdatedAt           time.Time
}

// MonthlySummary is one member-month in the summary projection.
type MonthlySummary struct {
	MemberID             string
	Month                string
	WorkQuarterHours     int
	AbsenceQuarterHours  int
	ExpectedQuarterHours int
	CompletionPercent    float64
	Status               string
	ByProjectJSON        []byte
	ByAbsenceKindJSON    []byte
	UpdatedAt            time.Time
}

// ApprovalQueueItem is one submitted month awaiting reviewer action.
type ApprovalQueueItem struct {
	ReviewerID  string
	MemberID    string
	Month       string
	SubmittedBy string
	Proxy       bool
	RecordCount int
	SubmittedAt time.Time
}

// DailyRejection is one row of the append-only daily rejection log.
type DailyRejection struct {
	AggregateID string
	Seq         uint64
	MemberID    string
	Date        string
	Reason      string
	ActorID     string
	RejectedAt  time.Time
}

// ProjectionWatermark records the last journal sequence applied to the
// projections for one aggregate.
type ProjectionWatermark struct {
	AggregateID string
	AppliedSeq  uint64
	UpdatedAt   time.Time
}

// ProjectionStore reads and writes the denormalized read models.
//
// InTx runs fn against a store view bound to one transaction so a single
// event's projection writes land atomically with the watermark advance.
type ProjectionStore interface {
	InTx(ctx context.Context, fn func(ProjectionStore) error) error

	GetProjectionWatermark(ctx context.Context, aggregateID string) (ProjectionWatermark, error)
	SaveProjectionWatermark(ctx context.Context, watermark ProjectionWatermark) error

	UpsertCalendarDay(ctx context.Context, day CalendarDay) error
	GetCalendarDay(ctx context.Context, memberID, date string) (CalendarDay, error)
	ListCalendarDays(ctx context.Context, memberID, fromDate, toDate string) ([]CalendarDay, error)

	UpsertMonthlySummary(ctx context.Context, summary MonthlySummary) error
	GetMonthlySummary(ctx context.Context, memberID, month string) (MonthlySummary, error)

	UpsertApprovalQueueItem(ctx context.Context, item ApprovalQueueItem) error
	DeleteApprovalQueueItem(ctx context.Context, reviewerID, memberID, month string) error
	ListApprovalQueue(ctx context.Context, reviewerID string) ([]ApprovalQueueItem, error)

	InsertDailyRejection(ctx context.Context, rejection DailyRejection) error
	ListDailyRejections(ctx context.Context, memberID, fromDate, toDate string) ([]DailyRejection, error)

	// ResetProjections clears every projection table and watermark ahead of
	// a full rebuild.
	ResetProjections(ctx context.Context) error
}

// ReviewerDirectory resolves reviewer-of relationships. The data originates
// in the external tenant directory; the core only reads it.
type ReviewerDirectory interface {
	// ReviewerOf returns the reviewer for a member, or ErrNotFound.
	ReviewerOf(ctx context.Context, memberID string) (string, error)
}
