package httpapi

import (
	"encoding/json"
	"time"

	"github.com/openclock/worklog/internal/worklog/storage"
)

// Response shapes for projection reads. Raw aggregate JSON columns are
// decoded here so clients never see double-encoded payloads.

type calendarDayView struct {
	Date                string    `json:"date"`
	WorkQuarterHours    int       `json:"work_quarter_hours"`
	AbsenceQuarterHours int       `json:"absence_quarter_hours"`
	Status              string    `json:"status,omitempty"`
	RejectionSource     string    `json:"rejection_source,omitempty"`
	RejectionReason     string    `json:"rejection_reason,omitempty"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func calendarDaysJSON(days []storage.CalendarDay) []calendarDayView {
	views := make([]calendarDayView, 0, len(days))
	for _, day := range days {
		views = append(views, calendarDayView{
			Date:                day.Date,
			WorkQuarterHours:    day.WorkQuarterHours,
			AbsenceQuarterHours: day.AbsenceQuarterHours,
			Status:              day.Status,
			RejectionSource:     day.RejectionSource,
			RejectionReason:     day.RejectionReason,
			UpdatedAt:           day.UpdatedAt,
		})
	}
	return views
}

type monthlySummaryView struct {
	MemberID             string         `json:"member_id"`
	Month                string         `json:"month"`
	WorkQuarterHours     int            `json:"work_quarter_hours"`
	AbsenceQuarterHours  int            `json:"absence_quarter_hours"`
	ExpectedQuarterHours int            `json:"expected_quarter_hours"`
	CompletionPercent    float64        `json:"completion_percent"`
	Status               string         `json:"status"`
	ByProject            map[string]int `json:"by_project,omitempty"`
	ByAbsenceKind        map[string]int `json:"by_absence_kind,omitempty"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

func monthlySummaryJSON(summary storage.MonthlySummary) monthlySummaryView {
	return monthlySummaryView{
		MemberID:             summary.MemberID,
		Month:                summary.Month,
		WorkQuarterHours:     summary.WorkQuarterHours,
		AbsenceQuarterHours:  summary.AbsenceQuarterHours,
		ExpectedQuarterHours: summary.ExpectedQuarterHours,
		CompletionPercent:    summary.CompletionPercent,
		Status:               summary.Status,
		ByProject:            decodeBreakdown(summary.ByProjectJSON),
		ByAbsenceKind:        decodeBreakdown(summary.ByAbsenceKindJSON),
		UpdatedAt:            summary.UpdatedAt,
	}
}

func decodeBreakdown(raw []byte) map[string]int {
	if len(raw) == 0 {
		return nil
	}
	var breakdown map[string]int
	if err := json.Unmarshal(raw, &breakdown); err != nil {
		return nil
	}
	return breakdown
}

type approvalQueueView struct {
	ReviewerID  string    `json:"reviewer_id"`
	MemberID    string    `json:"member_id"`
	Month       string    `json:"month"`
	SubmittedBy string    `json:"submitted_by"`
	Proxy       bool      `json:"proxy,omitempty"`
	RecordCount int       `json:"record_count"`
	SubmittedAt time.Time `json:"submitted_at"`
}

func approvalQueueJSON(items []storage.ApprovalQueueItem) []approvalQueueView {
	views := make([]approvalQueueView, 0, len(items))
	for _, item := range items {
		views = append(views, approvalQueueView{
			ReviewerID:  item.ReviewerID,
			MemberID:    item.MemberID,
			Month:       item.Month,
			SubmittedBy: item.SubmittedBy,
			Proxy:       item.Proxy,
			RecordCount: item.RecordCount,
			SubmittedAt: item.SubmittedAt,
		})
	}
	return views
}

type dailyRejectionView struct {
	Date       string    `json:"date"`
	Reason     string    `json:"reason"`
	ActorID    string    `json:"actor_id"`
	RejectedAt time.Time `json:"rejected_at"`
}

func dailyRejectionsJSON(rejections []storage.DailyRejection) []dailyRejectionView {
	views := make([]dailyRejectionView, 0, len(rejections))
	for _, rejection := range rejections {
		views = append(views, dailyRejectionView{
			Date:       rejection.Date,
			Reason:     rejection.Reason,
			ActorID:    rejection.ActorID,
			RejectedAt: rejection.RejectedAt,
		})
	}
	return views
}
