package handlers

import (
	"net/http"

	"github.com/anonto42/collab-sync/backend/internal/models"
	"github.com/anonto42/collab-sync/backend/internal/services"
	"github.com/labstack/echo/v4"
)

// InviteHandler handles project invites and the memberships they produce
type InviteHandler struct {
	notifications *services.NotificationService
}

func NewInviteHandler(notifications *services.NotificationService) *InviteHandler {
	return &InviteHandler{notifications: notifications}
}

// RegisterInviteRoutes registers invite and membership routes
func (h *InviteHandler) RegisterInviteRoutes(g *echo.Group) {
	g.POST("/projects/:projectId/invites", h.Invite)
	g.POST("/projects/:projectId/invites/accept", h.Accept)
	g.POST("/projects/:projectId/invites/decline", h.Decline)
	g.GET("/memberships", h.ListMemberships)
}

// Invite sends a project invite from the current user
func (h *InviteHandler) Invite(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}
	projectID, err := parseIDParam(c, "projectId")
	if err != nil {
		return err
	}

	var req models.InviteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	notification, err := h.notifications.InviteToProject(c.Request().Context(), userID, req.RecipientID, projectID, req.Message)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"success": true, "data": notification})
}

// Accept accepts the current user's pending invite. Repeating it is not an error.
func (h *InviteHandler) Accept(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}
	projectID, err := parseIDParam(c, "projectId")
	if err != nil {
		return err
	}

	err = h.notifications.Accept(c.Request().Context(), userID, projectID)
	return h.resolution(c, err, models.MembershipActive)
}

// Decline declines the current user's pending invite. Repeating it is not an error.
func (h *InviteHandler) Decline(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}
	projectID, err := parseIDParam(c, "projectId")
	if err != nil {
		return err
	}

	err = h.notifications.Decline(c.Request().Context(), userID, projectID)
	return h.resolution(c, err, "declined")
}

func (h *InviteHandler) resolution(c echo.Context, err error, status string) error {
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"status": status}})
	case services.IsAlreadyHandled(err):
		return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"status": "already_handled"}})
	default:
		return serviceError(err)
	}
}

// ListMemberships returns the current user's project memberships
func (h *InviteHandler) ListMemberships(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}

	memberships, err := h.notifications.ListProjectMemberships(c.Request().Context(), userID)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"memberships": memberships}})
}
