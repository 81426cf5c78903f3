package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/openclock/worklog/internal/worklog/domain/event"
)

// Actor identity reaches this service through trusted gateway headers.
const (
	headerActorID   = "X-Actor-Id"
	headerActorType = "X-Actor-Type"

	actorContextKey = "worklog.actor"
)

type actorIdentity struct {
	ID   string
	Type event.ActorType
}

// requireActor rejects requests that lack a usable actor identity and stores
// the parsed identity on the request context for handlers.
func (h *Handler) requireActor(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		actorID := c.Request().Header.Get(headerActorID)
		if actorID == "" {
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"error": "actor identity is required",
			})
		}
		actorType := event.ActorType(c.Request().Header.Get(headerActorType))
		switch actorType {
		case event.ActorTypeMember, event.ActorTypeReviewer, event.ActorTypeSystem:
		case "":
			actorType = event.ActorTypeMember
		default:
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"error": "unknown actor type",
			})
		}
		c.Set(actorContextKey, actorIdentity{ID: actorID, Type: actorType})
		return next(c)
	}
}

func actorFrom(c echo.Context) actorIdentity {
	actor, _ := c.Get(actorContextKey).(actorIdentity)
	return actor
}
