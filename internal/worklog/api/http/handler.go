// Package httpapi exposes the timesheet command and read surfaces over HTTP.
//
// Authentication and session handling live upstream; this layer trusts the
// actor identity headers set by the gateway.
package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/openclock/worklog/internal/platform/id"
	"github.com/openclock/worklog/internal/worklog/domain/aggregate"
	"github.com/openclock/worklog/internal/worklog/domain/command"
	"github.com/openclock/worklog/internal/worklog/engine"
	"github.com/openclock/worklog/internal/worklog/storage"
)

// CommandRunner executes timesheet commands and reconstructs aggregate state.
type CommandRunner interface {
	Execute(ctx context.Context, cmd command.Command) (engine.Result, error)
	Reconstruct(ctx context.Context, memberID, month string) (aggregate.State, uint64, error)
}

// ReviewerAdmin maintains the local replica of reviewer assignments.
type ReviewerAdmin interface {
	UpsertReviewer(ctx context.Context, memberID, reviewerID string) error
	DeleteReviewer(ctx context.Context, memberID string) error
}

// ProjectionRebuilder replays the full journal into fresh read models.
type ProjectionRebuilder interface {
	Rebuild(ctx context.Context) (int, error)
}

// OutboxRequeuer moves dead-lettered projection apply rows back to pending.
type OutboxRequeuer interface {
	RequeueDeadOutbox(ctx context.Context) (int, error)
}

// SnapshotCompactor prunes old snapshots across all aggregates.
type SnapshotCompactor interface {
	CompactSnapshots(ctx context.Context, keep int) (int, error)
}

// Handler serves the worklog HTTP API.
type Handler struct {
	Commands  CommandRunner
	Reads     storage.ProjectionStore
	Admin     ReviewerAdmin
	Rebuilder ProjectionRebuilder
	Requeuer  OutboxRequeuer
	Compactor SnapshotCompactor
	Logger    zerolog.Logger
}

// Register mounts all routes on the echo instance.
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/health", h.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api", h.requireActor)

	timesheets := api.Group("/timesheets/:member/:month")
	timesheets.GET("", h.GetTimesheet)
	timesheets.POST("/entries", h.LogEntry)
	timesheets.DELETE("/entries/:id", h.DeleteEntry)
	timesheets.POST("/absences", h.LogAbsence)
	timesheets.DELETE("/absences/:id", h.DeleteAbsence)
	timesheets.POST("/days/:date/submit", h.SubmitDay)
	timesheets.POST("/days/:date/reject", h.RejectDay)
	timesheets.POST("/days/:date/recall", h.RecallDay)
	timesheets.POST("/submit", h.SubmitMonth)
	timesheets.POST("/approve", h.ApproveMonth)
	timesheets.POST("/reject", h.RejectMonth)
	timesheets.POST("/recall", h.RecallMonth)

	members := api.Group("/members/:member")
	members.GET("/calendar", h.GetCalendar)
	members.GET("/summary/:month", h.GetMonthlySummary)
	members.GET("/rejections", h.GetDailyRejections)

	api.GET("/reviewers/:reviewer/queue", h.GetApprovalQueue)

	admin := api.Group("/admin")
	admin.PUT("/reviewers/:member", h.PutReviewer)
	admin.DELETE("/reviewers/:member", h.DeleteReviewer)
	admin.POST("/projections/rebuild", h.RebuildProjections)
	admin.POST("/outbox/requeue", h.RequeueOutbox)
	admin.POST("/snapshots/compact", h.CompactSnapshots)
}

// Health reports service liveness.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type logEntryRequest struct {
	EntryID      string `json:"entry_id"`
	ProjectID    string `json:"project_id"`
	Date         string `json:"date"`
	QuarterHours int    `json:"quarter_hours"`
	Note         string `json:"note"`
}

type logAbsenceRequest struct {
	AbsenceID    string `json:"absence_id"`
	Kind         string `json:"kind"`
	Date         string `json:"date"`
	QuarterHours int    `json:"quarter_hours"`
	Note         string `json:"note"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type commandResponse struct {
	Version uint64          `json:"version"`
	State   aggregate.State `json:"state"`
}

func (h *Handler) LogEntry(c echo.Context) error {
	var req logEntryRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.EntryID == "" {
		entryID, err := id.NewID()
		if err != nil {
			return h.writeError(c, err)
		}
		req.EntryID = entryID
	}
	cmd := h.baseCommand(c, command.TypeLogEntry)
	cmd.EntryID = req.EntryID
	cmd.ProjectID = req.ProjectID
	cmd.Date = req.Date
	cmd.QuarterHours = req.QuarterHours
	cmd.Note = req.Note
	return h.execute(c, cmd)
}

func (h *Handler) DeleteEntry(c echo.Context) error {
	cmd := h.baseCommand(c, command.TypeDeleteEntry)
	cmd.EntryID = c.Param("id")
	return h.execute(c, cmd)
}

func (h *Handler) LogAbsence(c echo.Context) error {
	var req logAbsenceRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.AbsenceID == "" {
		absenceID, err := id.NewID()
		if err != nil {
			return h.writeError(c, err)
		}
		req.AbsenceID = absenceID
	}
	cmd := h.baseCommand(c, command.TypeLogAbsence)
	cmd.AbsenceID = req.AbsenceID
	cmd.AbsenceKind = req.Kind
	cmd.Date = req.Date
	cmd.QuarterHours = req.QuarterHours
	cmd.Note = req.Note
	return h.execute(c, cmd)
}

func (h *Handler) DeleteAbsence(c echo.Context) error {
	cmd := h.baseCommand(c, command.TypeDeleteAbsence)
	cmd.AbsenceID = c.Param("id")
	return h.execute(c, cmd)
}

func (h *Handler) SubmitDay(c echo.Context) error {
	cmd := h.baseCommand(c, command.TypeSubmitDay)
	cmd.Date = c.Param("date")
	return h.execute(c, cmd)
}

func (h *Handler) RejectDay(c echo.Context) error {
	var req reasonRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	cmd := h.baseCommand(c, command.TypeRejectDay)
	cmd.Date = c.Param("date")
	cmd.Reason = req.Reason
	return h.execute(c, cmd)
}

func (h *Handler) RecallDay(c echo.Context) error {
	cmd := h.baseCommand(c, command.TypeRecallDay)
	cmd.Date = c.Param("date")
	return h.execute(c, cmd)
}

func (h *Handler) SubmitMonth(c echo.Context) error {
	return h.execute(c, h.baseCommand(c, command.TypeSubmitMonth))
}

func (h *Handler) ApproveMonth(c echo.Context) error {
	return h.execute(c, h.baseCommand(c, command.TypeApproveMonth))
}

func (h *Handler) RejectMonth(c echo.Context) error {
	var req reasonRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	cmd := h.baseCommand(c, command.TypeRejectMonth)
	cmd.Reason = req.Reason
	return h.execute(c, cmd)
}

func (h *Handler) RecallMonth(c echo.Context) error {
	return h.execute(c, h.baseCommand(c, command.TypeRecallMonth))
}

// baseCommand fills the fields shared by every command from the route and the
// actor identity.
func (h *Handler) baseCommand(c echo.Context, commandType command.Type) command.Command {
	actor := actorFrom(c)
	return command.Command{
		Type:      commandType,
		MemberID:  c.Param("member"),
		Month:     c.Param("month"),
		ActorID:   actor.ID,
		ActorType: actor.Type,
	}
}

func (h *Handler) execute(c echo.Context, cmd command.Command) error {
	result, err := h.Commands.Execute(c.Request().Context(), cmd)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, commandResponse{
		Version: result.Version,
		State:   result.State,
	})
}

func (h *Handler) GetTimesheet(c echo.Context) error {
	state, version, err := h.Commands.Reconstruct(c.Request().Context(), c.Param("member"), c.Param("month"))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, commandResponse{Version: version, State: state})
}

func (h *Handler) GetCalendar(c echo.Context) error {
	from := c.QueryParam("from")
	to := c.QueryParam("to")
	if from == "" || to == "" {
		return badRequest(c, "from and to query parameters are required")
	}
	days, err := h.Reads.ListCalendarDays(c.Request().Context(), c.Param("member"), from, to)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"days": calendarDaysJSON(days)})
}

func (h *Handler) GetMonthlySummary(c echo.Context) error {
	summary, err := h.Reads.GetMonthlySummary(c.Request().Context(), c.Param("member"), c.Param("month"))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, monthlySummaryJSON(summary))
}

func (h *Handler) GetApprovalQueue(c echo.Context) error {
	items, err := h.Reads.ListApprovalQueue(c.Request().Context(), c.Param("reviewer"))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": approvalQueueJSON(items)})
}

func (h *Handler) GetDailyRejections(c echo.Context) error {
	from := c.QueryParam("from")
	to := c.QueryParam("to")
	if from == "" || to == "" {
		return badRequest(c, "from and to query parameters are required")
	}
	rejections, err := h.Reads.ListDailyRejections(c.Request().Context(), c.Param("member"), from, to)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"rejections": dailyRejectionsJSON(rejections)})
}

type putReviewerRequest struct {
	ReviewerID string `json:"reviewer_id"`
}

func (h *Handler) PutReviewer(c echo.Context) error {
	var req putReviewerRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.ReviewerID == "" {
		return badRequest(c, "reviewer_id is required")
	}
	if err := h.Admin.UpsertReviewer(c.Request().Context(), c.Param("member"), req.ReviewerID); err != nil {
		return h.writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) DeleteReviewer(c echo.Context) error {
	if err := h.Admin.DeleteReviewer(c.Request().Context(), c.Param("member")); err != nil {
		return h.writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) RebuildProjections(c echo.Context) error {
	applied, err := h.Rebuilder.Rebuild(c.Request().Context())
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int{"events_applied": applied})
}

func (h *Handler) RequeueOutbox(c echo.Context) error {
	requeued, err := h.Requeuer.RequeueDeadOutbox(c.Request().Context())
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int{"requeued": requeued})
}

func (h *Handler) CompactSnapshots(c echo.Context) error {
	keep := 3
	if raw := c.QueryParam("keep"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return badRequest(c, "keep must be a positive integer")
		}
		keep = parsed
	}
	visited, err := h.Compactor.CompactSnapshots(c.Request().Context(), keep)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int{"aggregates": visited})
}
