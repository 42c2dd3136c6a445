package handlers

import (
	"net/http"

	"github.com/anonto42/collab-sync/backend/internal/models"
	"github.com/anonto42/collab-sync/backend/internal/services"
	"github.com/labstack/echo/v4"
)

// ConversationHandler handles conversation and message HTTP requests
type ConversationHandler struct {
	conversations *services.ConversationService
	messages      *services.MessageService
}

// NewConversationHandler creates a new ConversationHandler
func NewConversationHandler(conversations *services.ConversationService, messages *services.MessageService) *ConversationHandler {
	return &ConversationHandler{conversations: conversations, messages: messages}
}

// RegisterConversationRoutes registers conversation and message routes
func (h *ConversationHandler) RegisterConversationRoutes(g *echo.Group) {
	g.POST("/projects/:projectId/conversations/direct", h.OpenDirect)
	g.POST("/projects/:projectId/conversations/group", h.CreateGroup)
	g.GET("/projects/:projectId/conversations", h.ListConversations)
	g.GET("/conversations/:id", h.GetConversation)
	g.GET("/conversations/:id/messages", h.ListMessages)
	g.POST("/conversations/:id/messages", h.SendMessage)
}

// OpenDirect returns the direct conversation with the recipient, creating it on first use
func (h *ConversationHandler) OpenDirect(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}
	projectID, err := parseIDParam(c, "projectId")
	if err != nil {
		return err
	}

	var req models.CreateDirectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	id, err := h.conversations.FindOrCreateDirect(c.Request().Context(), userID, req.RecipientID, projectID)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"conversation_id": id}})
}

// CreateGroup creates a group conversation
func (h *ConversationHandler) CreateGroup(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}
	projectID, err := parseIDParam(c, "projectId")
	if err != nil {
		return err
	}

	var req models.CreateGroupRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	id, err := h.conversations.CreateGroup(c.Request().Context(), req.Name, req.MemberIDs, userID, projectID)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"success": true, "data": echo.Map{"conversation_id": id}})
}

func (h *ConversationHandler) ListConversations(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}
	projectID, err := parseIDParam(c, "projectId")
	if err != nil {
		return err
	}

	summaries, err := h.conversations.ListForUser(c.Request().Context(), userID, projectID)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"conversations": summaries}})
}

func (h *ConversationHandler) GetConversation(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}
	conversationID, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}

	summary, err := h.conversations.Get(c.Request().Context(), userID, conversationID)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": summary})
}

// ListMessages returns the full log of a conversation, oldest first
func (h *ConversationHandler) ListMessages(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}
	conversationID, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}

	messages, err := h.messages.ListForMember(c.Request().Context(), userID, conversationID)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"messages": messages}})
}

func (h *ConversationHandler) SendMessage(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}
	conversationID, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}

	var req models.SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	message, err := h.messages.Append(c.Request().Context(), conversationID, userID, req.Content)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"success": true, "data": message})
}
