// Package handler provides the REST fallback surface. Every endpoint
// mirrors a real-time event and calls the same service methods, so
// polling clients observe the same state as connected ones.
package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vendaro/vendaro/pkg/auth"
	"github.com/vendaro/vendaro/pkg/models"
	"github.com/vendaro/vendaro/pkg/service"
)

// SupportHandler provides HTTP handlers for support conversations.
type SupportHandler struct {
	Svc    *service.SupportService
	Logger *slog.Logger
}

func NewSupportHandler(svc *service.SupportService, logger *slog.Logger) *SupportHandler {
	return &SupportHandler{Svc: svc, Logger: logger}
}

// ListConversations returns the unified ticket/session list.
func (h *SupportHandler) ListConversations(c *gin.Context) {
	conversations, err := h.Svc.ListConversations(c.Query("status"), c.Query("search"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.ConversationListResponse{
		Conversations: conversations,
		Total:         len(conversations),
	})
}

// GetConversation returns one conversation of either kind with its
// full message list.
func (h *SupportHandler) GetConversation(c *gin.Context) {
	detail, err := h.Svc.GetConversation(c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// CreateTicket creates a ticket conversation for the caller.
func (h *SupportHandler) CreateTicket(c *gin.Context) {
	identity, ok := auth.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing credential"})
		return
	}
	var req models.CreateTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	ticket, err := h.Svc.CreateTicket(identity, &req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ticket)
}

// PostMessage appends a message to the conversation in the path. The
// same handler backs the ticket and session message routes; the relay
// resolves the conversation kind itself.
func (h *SupportHandler) PostMessage(c *gin.Context) {
	identity, ok := auth.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing credential"})
		return
	}
	var req models.PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	view, _, err := h.Svc.PostMessage(identity, c.Param("id"), req.Message)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

// UpdateTicketStatus applies a status transition on behalf of the
// caller; the service enforces the role policy.
func (h *SupportHandler) UpdateTicketStatus(c *gin.Context) {
	identity, ok := auth.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing credential"})
		return
	}
	var req models.UpdateTicketStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	ticket, err := h.Svc.UpdateTicketStatus(identity, c.Param("id"), req.Status)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ticket)
}

// AssignTicket assigns a ticket to a staff account (staff only,
// enforced at the route level).
func (h *SupportHandler) AssignTicket(c *gin.Context) {
	var req models.AssignTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	ticket, err := h.Svc.AssignTicket(c.Param("id"), req.AdminID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ticket)
}

// StartSession returns the caller's chat session, creating it on first
// contact.
func (h *SupportHandler) StartSession(c *gin.Context) {
	identity, ok := auth.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing credential"})
		return
	}
	session, err := h.Svc.StartSession(identity)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// MarkRead flips the conversation's unread state (staff only, enforced
// at the route level).
func (h *SupportHandler) MarkRead(c *gin.Context) {
	if err := h.Svc.MarkConversationRead(c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "conversation marked as read"})
}

// SetSessionStatus sets a chat session's status flag (staff only,
// enforced at the route level).
func (h *SupportHandler) SetSessionStatus(c *gin.Context) {
	var req models.UpdateSessionStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	session, err := h.Svc.SetSessionStatus(c.Param("id"), req.Status)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// writeError maps service errors onto HTTP statuses.
func (h *SupportHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrEmptyMessage),
		errors.Is(err, service.ErrEmptySubject),
		errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, service.ErrInvalidPriority),
		errors.Is(err, service.ErrAssigneeNotStaff),
		errors.Is(err, service.ErrNotParticipant):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrTicketNotFound),
		errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, service.ErrConversationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrForbiddenTransition):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNumberingExhausted):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.Logger.Error("support request failed", "error", err, "path", c.FullPath())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
