package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/anonto42/collab-sync/backend/internal/middleware"
	"github.com/anonto42/collab-sync/backend/internal/realtime"
	"github.com/anonto42/collab-sync/backend/internal/services"
	"github.com/labstack/echo/v4"
)

// getUserIDFromContext returns the authenticated user id, or 0
func getUserIDFromContext(c echo.Context) uint {
	id, _ := c.Get(middleware.ContextUserID).(uint)
	return id
}

func parseIDParam(c echo.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "Invalid "+name)
	}
	return uint(id), nil
}

// serviceError maps service sentinels to HTTP errors
func serviceError(err error) error {
	switch {
	case errors.Is(err, services.ErrInvalidParticipant),
		errors.Is(err, services.ErrInvalidGroup),
		errors.Is(err, services.ErrEmptyContent),
		errors.Is(err, services.ErrInvalidPayload),
		errors.Is(err, realtime.ErrInvalidScope):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrNotAMember),
		errors.Is(err, services.ErrForbiddenScope):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, services.ErrConversationNotFound),
		errors.Is(err, services.ErrNotificationNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrAlreadyMember),
		errors.Is(err, services.ErrAlreadyInvited):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		slog.Error("request failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error")
	}
}

func requireUser(c echo.Context) (uint, error) {
	id := getUserIDFromContext(c)
	if id == 0 {
		return 0, echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}
	return id, nil
}
