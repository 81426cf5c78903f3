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

// ReviewerDirectory methods
//
// The reviewer-of relationship is owned by the tenant directory upstream.
// This table is a local replica kept current through the admin surface.

// ReviewerOf returns the reviewer assigned to a member, or
// storage.ErrNotFound when the member has no reviewer on record.
func (s *Store) ReviewerOf(ctx context.Context, memberID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s == nil || s.sqlDB == nil {
		return "", fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(memberID) == "" {
		return "", fmt.Errorf("member id is required")
	}

	var reviewerID string
	err := s.q().QueryRowContext(
		ctx,
		`SELECT reviewer_id FROM reviewers WHERE member_id = ?`,
		memberID,
	).Scan(&reviewerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", storage.ErrNotFound
		}
		return "", fmt.Errorf("get reviewer: %w", err)
	}
	return reviewerID, nil
}

// UpsertReviewer records or replaces a member's reviewer assignment.
func (s *Store) UpsertReviewer(ctx context.Context, memberID, reviewerID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(memberID) == "" {
		return fmt.Errorf("member id is required")
	}
	if strings.TrimSpace(reviewerID) == "" {
		return fmt.Errorf("reviewer id is required")
	}

	if _, err := s.q().ExecContext(
		ctx,
		`INSERT INTO reviewers (member_id, reviewer_id, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(member_id) DO UPDATE SET
		     reviewer_id = excluded.reviewer_id,
		     updated_at = excluded.updated_at`,
		memberID,
		reviewerID,
		toMillis(time.Now().UTC()),
	); err != nil {
		return fmt.Errorf("upsert reviewer: %w", err)
	}
	return nil
}

// DeleteReviewer removes a member's reviewer assignment.
func (s *Store) DeleteReviewer(ctx context.Context, memberID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(memberID) == "" {
		return fmt.Errorf("member id is required")
	}

	if _, err := s.q().ExecContext(
		ctx,
		`DELETE FROM reviewers WHERE member_id = ?`,
		memberID,
	); err != nil {
		return fmt.Errorf("delete reviewer: %w", err)
	}
	return nil
}
