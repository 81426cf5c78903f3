package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openclock/worklog/internal/worklog/storage"
)

// ProjectionStore methods (read models)

// GetProjectionWatermark returns the last applied journal sequence for an
// aggregate, or storage.ErrNotFound when the aggregate has never been applied.
func (s *Store) GetProjectionWatermark(ctx context.Context, aggregateID string) (storage.ProjectionWatermark, error) {
	if err := ctx.Err(); err != nil {
		return storage.ProjectionWatermark{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ProjectionWatermark{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(aggregateID) == "" {
		return storage.ProjectionWatermark{}, fmt.Errorf("aggregate id is required")
	}

	var (
		watermark  storage.ProjectionWatermark
		appliedSeq int64
		updatedAt  int64
	)
	err := s.q().QueryRowContext(
		ctx,
		`SELECT aggregate_id, applied_seq, updated_at
		 FROM projection_watermarks
		 WHERE aggregate_id = ?`,
		aggregateID,
	).Scan(&watermark.AggregateID, &appliedSeq, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ProjectionWatermark{}, storage.ErrNotFound
		}
		return storage.ProjectionWatermark{}, fmt.Errorf("get projection watermark: %w", err)
	}
	watermark.AppliedSeq = uint64(appliedSeq)
	watermark.UpdatedAt = fromMillis(updatedAt)
	return watermark, nil
}

// SaveProjectionWatermark upserts the applied sequence for an aggregate.
func (s *Store) SaveProjectionWatermark(ctx context.Context, watermark storage.ProjectionWatermark) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(watermark.AggregateID) == "" {
		return fmt.Errorf("aggregate id is required")
	}
	updatedAt := watermark.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	if _, err := s.q().ExecContext(
		ctx,
		`INSERT INTO projection_watermarks (aggregate_id, applied_seq, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(aggregate_id) DO UPDATE SET
		     applied_seq = excluded.applied_seq,
		     updated_at = excluded.updated_at`,
		watermark.AggregateID,
		int64(watermark.AppliedSeq),
		toMillis(updatedAt),
	); err != nil {
		return fmt.Errorf("save projection watermark: %w", err)
	}
	return nil
}

// UpsertCalendarDay writes one member-day of the calendar projection.
func (s *Store) UpsertCalendarDay(ctx context.Context, day storage.CalendarDay) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(day.MemberID) == "" {
		return fmt.Errorf("member id is required")
	}
	if strings.TrimSpace(day.Date) == "" {
		return fmt.Errorf("date is required")
	}
	updatedAt := day.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	if _, err := s.q().ExecContext(
		ctx,
		`INSERT INTO calendar_days (
		    member_id, date, work_quarter_hours, absence_quarter_hours, status,
		    rejection_source, rejection_reason, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(member_id, date) DO UPDATE SET
		    work_quarter_hours = excluded.work_quarter_hours,
		    absence_quarter_hours = excluded.absence_quarter_hours,
		    status = excluded.status,
		    rejection_source = excluded.rejection_source,
		    rejection_reason = excluded.rejection_reason,
		    updated_at = excluded.updated_at`,
		day.MemberID,
		day.Date,
		day.WorkQuarterHours,
		day.AbsenceQuarterHours,
		day.Status,
		day.RejectionSource,
		day.RejectionReason,
		toMillis(updatedAt),
	); err != nil {
		return fmt.Errorf("upsert calendar day: %w", err)
	}
	return nil
}

// GetCalendarDay retrieves one member-day of the calendar projection.
func (s *Store) GetCalendarDay(ctx context.Context, memberID, date string) (storage.CalendarDay, error) {
	if err := ctx.Err(); err != nil {
		return storage.CalendarDay{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.CalendarDay{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(memberID) == "" {
		return storage.CalendarDay{}, fmt.Errorf("member id is required")
	}
	if strings.TrimSpace(date) == "" {
		return storage.CalendarDay{}, fmt.Errorf("date is required")
	}

	row := s.q().QueryRowContext(
		ctx,
		`SELECT member_id, date, work_quarter_hours, absence_quarter_hours, status,
		        rejection_source, rejection_reason, updated_at
		 FROM calendar_days
		 WHERE member_id = ? AND date = ?`,
		memberID,
		date,
	)
	day, err := scanCalendarDay(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.CalendarDay{}, storage.ErrNotFound
		}
		return storage.CalendarDay{}, err
	}
	return day, nil
}

// ListCalendarDays returns calendar days for a member within an inclusive
// date range, ordered by date ascending.
func (s *Store) ListCalendarDays(ctx context.Context, memberID, fromDate, toDate string) ([]storage.CalendarDay, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(memberID) == "" {
		return nil, fmt.Errorf("member id is required")
	}
	if strings.TrimSpace(fromDate) == "" || strings.TrimSpace(toDate) == "" {
		return nil, fmt.Errorf("date range is required")
	}

	rows, err := s.q().QueryContext(
		ctx,
		`SELECT member_id, date, work_quarter_hours, absence_quarter_hours, status,
		        rejection_source, rejection_reason, updated_at
		 FROM calendar_days
		 WHERE member_id = ? AND date >= ? AND date <= ?
		 ORDER BY date ASC`,
		memberID,
		fromDate,
		toDate,
	)
	if err != nil {
		return nil, fmt.Errorf("list calendar days: %w", err)
	}
	defer rows.Close()

	var days []storage.CalendarDay
	for rows.Next() {
		day, err := scanCalendarDay(rows)
		if err != nil {
			return nil, err
		}
		days = append(days, day)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate calendar days: %w", err)
	}
	return days, nil
}

func scanCalendarDay(row rowScanner) (storage.CalendarDay, error) {
	var (
		day       storage.CalendarDay
		updatedAt int64
	)
	if err := row.Scan(
		&day.MemberID,
		&day.Date,
		&day.WorkQuarterHours,
		&day.AbsenceQuarterHours,
		&day.Status,
		&day.RejectionSource,
		&day.RejectionReason,
		&updatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.CalendarDay{}, err
		}
		return storage.CalendarDay{}, fmt.Errorf("scan calendar day: %w", err)
	}
	day.UpdatedAt = fromMillis(updatedAt)
	return day, nil
}

// UpsertMonthlySummary writes one member-month of the summary projection.
func (s *Store) UpsertMonthlySummary(ctx context.Context, summary storage.MonthlySummary) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(summary.MemberID) == "" {
		return fmt.Errorf("member id is required")
	}
	if strings.TrimSpace(summary.Month) == "" {
		return fmt.Errorf("month is required")
	}
	updatedAt := summary.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	if _, err := s.q().ExecContext(
		ctx,
		`INSERT INTO monthly_summaries (
		    member_id, month, work_quarter_hours, absence_quarter_hours,
		    expected_quarter_hours, completion_percent, status,
		    by_project_json, by_absence_kind_json, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(member_id, month) DO UPDATE SET
		    work_quarter_hours = excluded.work_quarter_hours,
		    absence_quarter_hours = excluded.absence_quarter_hours,
		    expected_quarter_hours = excluded.expected_quarter_hours,
		    completion_percent = excluded.completion_percent,
		    status = excluded.status,
		    by_project_json = excluded.by_project_json,
		    by_absence_kind_json = excluded.by_absence_kind_json,
		    updated_at = excluded.updated_at`,
		summary.MemberID,
		summary.Month,
		summary.WorkQuarterHours,
		summary.AbsenceQuarterHours,
		summary.ExpectedQuarterHours,
		summary.CompletionPercent,
		summary.Status,
		string(summary.ByProjectJSON),
		string(summary.ByAbsenceKindJSON),
		toMillis(updatedAt),
	); err != nil {
		return fmt.Errorf("upsert monthly summary: %w", err)
	}
	return nil
}

// GetMonthlySummary retrieves one member-month of the summary projection.
func (s *Store) GetMonthlySummary(ctx context.Context, memberID, month string) (storage.MonthlySummary, error) {
	if err := ctx.Err(); err != nil {
		return storage.MonthlySummary{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.MonthlySummary{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(memberID) == "" {
		return storage.MonthlySummary{}, fmt.Errorf("member id is required")
	}
	if strings.TrimSpace(month) == "" {
		return storage.MonthlySummary{}, fmt.Errorf("month is required")
	}

	var (
		summary       storage.MonthlySummary
		byProject     string
		byAbsenceKind string
		updatedAt     int64
	)
	err := s.q().QueryRowContext(
		ctx,
		`SELECT member_id, month, work_quarter_hours, absence_quarter_hours,
		        expected_quarter_hours, completion_percent, status,
		        by_project_json, by_absence_kind_json, updated_at
		 FROM monthly_summaries
		 WHERE member_id = ? AND month = ?`,
		memberID,
		month,
	).Scan(
		&summary.MemberID,
		&summary.Month,
		&summary.WorkQuarterHours,
		&summary.AbsenceQuarterHours,
		&summary.ExpectedQuarterHours,
		&summary.CompletionPercent,
		&summary.Status,
		&byProject,
		&byAbsenceKind,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.MonthlySummary{}, storage.ErrNotFound
		}
		return storage.MonthlySummary{}, fmt.Errorf("get monthly summary: %w", err)
	}

	if byProject != "" {
		summary.ByProjectJSON = []byte(byProject)
	}
	if byAbsenceKind != "" {
		summary.ByAbsenceKindJSON = []byte(byAbsenceKind)
	}
	summary.UpdatedAt = fromMillis(updatedAt)
	return summary, nil
}

// UpsertApprovalQueueItem writes one submitted month into a reviewer's queue.
func (s *Store) UpsertApprovalQueueItem(ctx context.Context, item storage.ApprovalQueueItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(item.ReviewerID) == "" {
		return fmt.Errorf("reviewer id is required")
	}
	if strings.TrimSpace(item.MemberID) == "" {
		return fmt.Errorf("member id is required")
	}
	if strings.TrimSpace(item.Month) == "" {
		return fmt.Errorf("month is required")
	}
	submittedAt := item.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = time.Now().UTC()
	}

	proxy := 0
	if item.Proxy {
		proxy = 1
	}

	if _, err := s.q().ExecContext(
		ctx,
		`INSERT INTO approval_queue (
		    reviewer_id, member_id, month, submitted_by, proxy, record_count, submitted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(reviewer_id, member_id, month) DO UPDATE SET
		    submitted_by = excluded.submitted_by,
		    proxy = excluded.proxy,
		    record_count = excluded.record_count,
		    submitted_at = excluded.submitted_at`,
		item.ReviewerID,
		item.MemberID,
		item.Month,
		item.SubmittedBy,
		proxy,
		item.RecordCount,
		toMillis(submittedAt),
	); err != nil {
		return fmt.Errorf("upsert approval queue item: %w", err)
	}
	return nil
}

// DeleteApprovalQueueItem removes a month from a reviewer's queue after the
// review concluded or the member recalled the submission.
func (s *Store) DeleteApprovalQueueItem(ctx context.Context, reviewerID, memberID, month string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(reviewerID) == "" {
		return fmt.Errorf("reviewer id is required")
	}
	if strings.TrimSpace(memberID) == "" {
		return fmt.Errorf("member id is required")
	}
	if strings.TrimSpace(month) == "" {
		return fmt.Errorf("month is required")
	}

	if _, err := s.q().ExecContext(
		ctx,
		`DELETE FROM approval_queue WHERE reviewer_id = ? AND member_id = ? AND month = ?`,
		reviewerID,
		memberID,
		month,
	); err != nil {
		return fmt.Errorf("delete approval queue item: %w", err)
	}
	return nil
}

// ListApprovalQueue returns a reviewer's queue ordered oldest submission
// first.
func (s *Store) ListApprovalQueue(ctx context.Context, reviewerID string) ([]storage.ApprovalQueueItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(reviewerID) == "" {
		return nil, fmt.Errorf("reviewer id is required")
	}

	rows, err := s.q().QueryContext(
		ctx,
		`SELECT reviewer_id, member_id, month, submitted_by, proxy, record_count, submitted_at
		 FROM approval_queue
		 WHERE reviewer_id = ?
		 ORDER BY submitted_at ASC, member_id ASC, month ASC`,
		reviewerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list approval queue: %w", err)
	}
	defer rows.Close()

	var items []storage.ApprovalQueueItem
	for rows.Next() {
		var (
			item        storage.ApprovalQueueItem
			proxy       int
			submittedAt int64
		)
		if err := rows.Scan(
			&item.ReviewerID,
			&item.MemberID,
			&item.Month,
			&item.SubmittedBy,
			&proxy,
			&item.RecordCount,
			&submittedAt,
		); err != nil {
			return nil, fmt.Errorf("scan approval queue item: %w", err)
		}
		item.Proxy = proxy != 0
		item.SubmittedAt = fromMillis(submittedAt)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate approval queue: %w", err)
	}
	return items, nil
}

// InsertDailyRejection appends one row to the daily rejection log. The
// journal coordinates (aggregate, seq) make replays idempotent.
func (s *Store) InsertDailyRejection(ctx context.Context, rejection storage.DailyRejection) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(rejection.AggregateID) == "" {
		return fmt.Errorf("aggregate id is required")
	}
	if rejection.Seq == 0 {
		return fmt.Errorf("event sequence must be greater than zero")
	}
	if strings.TrimSpace(rejection.MemberID) == "" {
		return fmt.Errorf("member id is required")
	}
	if strings.TrimSpace(rejection.Date) == "" {
		return fmt.Errorf("date is required")
	}
	rejectedAt := rejection.RejectedAt
	if rejectedAt.IsZero() {
		rejectedAt = time.Now().UTC()
	}

	if _, err := s.q().ExecContext(
		ctx,
		`INSERT INTO daily_rejections (
		    aggregate_id, seq, member_id, date, reason, actor_id, rejected_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(aggregate_id, seq) DO NOTHING`,
		rejection.AggregateID,
		int64(rejection.Seq),
		rejection.MemberID,
		rejection.Date,
		rejection.Reason,
		rejection.ActorID,
		toMillis(rejectedAt),
	); err != nil {
		return fmt.Errorf("insert daily rejection: %w", err)
	}
	return nil
}

// ListDailyRejections returns daily rejections for a member within an
// inclusive date range, newest first.
func (s *Store) ListDailyRejections(ctx context.Context, memberID, fromDate, toDate string) ([]storage.DailyRejection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(memberID) == "" {
		return nil, fmt.Errorf("member id is required")
	}
	if strings.TrimSpace(fromDate) == "" || strings.TrimSpace(toDate) == "" {
		return nil, fmt.Errorf("date range is required")
	}

	rows, err := s.q().QueryContext(
		ctx,
		`SELECT aggregate_id, seq, member_id, date, reason, actor_id, rejected_at
		 FROM daily_rejections
		 WHERE member_id = ? AND date >= ? AND date <= ?
		 ORDER BY rejected_at DESC, seq DESC`,
		memberID,
		fromDate,
		toDate,
	)
	if err != nil {
		return nil, fmt.Errorf("list daily rejections: %w", err)
	}
	defer rows.Close()

	var rejections []storage.DailyRejection
	for rows.Next() {
		var (
			rejection  storage.DailyRejection
			seq        int64
			rejectedAt int64
		)
		if err := rows.Scan(
			&rejection.AggregateID,
			&seq,
			&rejection.MemberID,
			&rejection.Date,
			&rejection.Reason,
			&rejection.ActorID,
			&rejectedAt,
		); err != nil {
			return nil, fmt.Errorf("scan daily rejection: %w", err)
		}
		rejection.Seq = uint64(seq)
		rejection.RejectedAt = fromMillis(rejectedAt)
		rejections = append(rejections, rejection)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily rejections: %w", err)
	}
	return rejections, nil
}

// ResetProjections clears every projection table and watermark ahead of a
// full rebuild. The journal is untouched.
func (s *Store) ResetProjections(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	tables := []string{
		"calendar_days",
		"monthly_summaries",
		"approval_queue",
		"daily_rejections",
		"projection_watermarks",
	}
	for _, table := range tables {
		if _, err := s.q().ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("reset projection table %s: %w", table, err)
		}
	}
	return nil
}
