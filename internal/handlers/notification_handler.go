package handlers

import (
	"context"
	"math"
	"net/http"
	"strconv"

	"github.com/anonto42/collab-sync/backend/internal/models"
	"github.com/anonto42/collab-sync/backend/internal/repositories"
	"github.com/anonto42/collab-sync/backend/internal/services"
	"github.com/labstack/echo/v4"
)

// NotificationHandler handles notification-related HTTP requests
type NotificationHandler struct {
	notifications  *services.NotificationService
	userRepository repositories.UserRepository
}

// NewNotificationHandler creates a new NotificationHandler
func NewNotificationHandler(notifications *services.NotificationService, userRepo repositories.UserRepository) *NotificationHandler {
	return &NotificationHandler{
		notifications:  notifications,
		userRepository: userRepo,
	}
}

// RegisterNotificationRoutes registers notification routes
func (h *NotificationHandler) RegisterNotificationRoutes(g *echo.Group) {
	g.GET("/notifications", h.GetNotifications)
	g.POST("/notifications", h.CreateNotification)
	g.GET("/notifications/unread-count", h.GetUnreadCount)
	g.PUT("/notifications/:id/read", h.MarkAsRead)
	g.PUT("/notifications/read-all", h.MarkAllAsRead)
}

// EnrichedNotification includes sender info
type EnrichedNotification struct {
	models.Notification
	Sender models.UserCompact `json:"sender"`
}

func (h *NotificationHandler) enrichNotifications(ctx context.Context, notifications []models.Notification) []EnrichedNotification {
	enriched := make([]EnrichedNotification, len(notifications))
	userCache := make(map[uint]models.UserCompact)

	for i, n := range notifications {
		enriched[i] = EnrichedNotification{Notification: n}
		if n.SenderID == 0 {
			continue
		}
		if sender, ok := userCache[n.SenderID]; ok {
			enriched[i].Sender = sender
		} else {
			user, err := h.userRepository.GetUserByID(ctx, n.SenderID)
			if err == nil {
				compact := user.ToCompact()
				userCache[n.SenderID] = compact
				enriched[i].Sender = compact
			}
		}
	}
	return enriched
}

// GetNotifications returns paginated notifications
func (h *NotificationHandler) GetNotifications(c echo.Context) error {
	currentUserID, err := requireUser(c)
	if err != nil {
		return err
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > services.MaxPageSize {
		limit = services.DefaultPageSize
	}

	ctx := c.Request().Context()
	notifications, total, err := h.notifications.List(ctx, currentUserID, page, limit)
	if err != nil {
		return serviceError(err)
	}

	totalPages := int(math.Ceil(float64(total) / float64(limit)))

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data": echo.Map{
			"notifications": h.enrichNotifications(ctx, notifications),
		},
		"meta": echo.Map{
			"currentPage":     page,
			"totalPages":      totalPages,
			"totalItems":      total,
			"itemsPerPage":    limit,
			"hasNextPage":     page < totalPages,
			"hasPreviousPage": page > 1,
		},
	})
}

// CreateNotification sends a notification from the current user
func (h *NotificationHandler) CreateNotification(c echo.Context) error {
	currentUserID, err := requireUser(c)
	if err != nil {
		return err
	}

	var req models.CreateNotificationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	notification, err := h.notifications.Create(c.Request().Context(), req.RecipientID, req.Type, req.Message, currentUserID, req.Payload)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"success": true, "data": notification})
}

// GetUnreadCount returns the unread notification count
func (h *NotificationHandler) GetUnreadCount(c echo.Context) error {
	currentUserID, err := requireUser(c)
	if err != nil {
		return err
	}

	count, err := h.notifications.UnreadCount(c.Request().Context(), currentUserID)
	if err != nil {
		return serviceError(err)
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"count": count}})
}

// MarkAsRead marks a notification as read
func (h *NotificationHandler) MarkAsRead(c echo.Context) error {
	currentUserID, err := requireUser(c)
	if err != nil {
		return err
	}

	notifID, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}

	if err := h.notifications.MarkRead(c.Request().Context(), currentUserID, notifID); err != nil {
		return serviceError(err)
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"success": true}})
}

// MarkAllAsRead marks all notifications as read
func (h *NotificationHandler) MarkAllAsRead(c echo.Context) error {
	currentUserID, err := requireUser(c)
	if err != nil {
		return err
	}

	if err := h.notifications.MarkAllRead(c.Request().Context(), currentUserID); err != nil {
		return serviceError(err)
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"success": true}})
}
