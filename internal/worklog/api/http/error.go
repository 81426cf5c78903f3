package httpapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	platformerrors "github.com/openclock/worklog/internal/platform/errors"
	"github.com/openclock/worklog/internal/worklog/storage"
)

type errorResponse struct {
	Error    string            `json:"error"`
	Message  string            `json:"message,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// writeError maps domain errors to HTTP responses. Unclassified errors are
// logged and surfaced as opaque 500s.
func (h *Handler) writeError(c echo.Context, err error) error {
	var domainErr *platformerrors.Error
	if errors.As(err, &domainErr) {
		status := domainErr.Code.HTTPStatus()
		if status >= http.StatusInternalServerError {
			h.Logger.Error().Err(err).Str("code", string(domainErr.Code)).Msg("request failed")
		}
		return c.JSON(status, errorResponse{
			Error:    string(domainErr.Code),
			Message:  domainErr.Message,
			Metadata: domainErr.Metadata,
		})
	}
	if errors.Is(err, storage.ErrNotFound) {
		return c.JSON(http.StatusNotFound, errorResponse{
			Error: string(platformerrors.CodeNotFound),
		})
	}
	if errors.Is(err, storage.ErrVersionConflict) {
		return c.JSON(http.StatusConflict, errorResponse{
			Error: string(platformerrors.CodeVersionConflict),
		})
	}
	h.Logger.Error().Err(err).Msg("request failed")
	return c.JSON(http.StatusInternalServerError, errorResponse{
		Error: string(platformerrors.CodeInternal),
	})
}

func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, errorResponse{
		Error:   "BAD_REQUEST",
		Message: message,
	})
}
