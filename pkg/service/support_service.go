// Support messaging service - tickets, chat sessions and their messages
package service

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vendaro/vendaro/pkg/auth"
	"github.com/vendaro/vendaro/pkg/db"
	"github.com/vendaro/vendaro/pkg/models"
	"github.com/vendaro/vendaro/pkg/utils"
)

var (
	ErrTicketNotFound       = errors.New("ticket not found")
	ErrSessionNotFound      = errors.New("chat session not found")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrEmptyMessage         = errors.New("message body is empty")
	ErrEmptySubject         = errors.New("ticket subject is required")
	ErrInvalidStatus        = errors.New("invalid status")
	ErrInvalidPriority      = errors.New("invalid priority")
	ErrForbiddenTransition  = errors.New("status transition not permitted for this role")
	ErrNotParticipant       = errors.New("chat sessions belong to customer or vendor accounts")
	ErrAssigneeNotStaff     = errors.New("assignee is not an active staff account")
	ErrNumberingExhausted   = errors.New("ticket numbering retries exhausted")
)

const (
	// maxTicketListSize caps the unified listing's ticket half; chat
	// sessions are intentionally unbounded.
	maxTicketListSize = 100

	// maxNumberAttempts bounds the collision probe of the counting
	// numbering scheme. Real uniqueness comes from the unique index on
	// tickets.number.
	maxNumberAttempts = 5
)

// Room keys. A connection joins one room per conversation plus a private
// self room for direct pushes.

func TicketRoom(ticketID string) string { return "ticket:" + ticketID }

func SessionRoom(sessionID string) string { return "session:" + sessionID }

func SelfRoom(accountID string) string { return "self:" + accountID }

// Broadcaster fans an event out to every connection currently in a room.
// Implemented by the ws hub; injected with a setter to avoid an import
// cycle. Broadcasts are fire-and-forget and never part of a write's
// success contract.
type Broadcaster interface {
	Broadcast(room, event string, data map[string]any)
}

// SupportService owns the ticket/session/message state machines. All
// durable state goes through the database; conflicting writes are
// serialized with atomic column updates rather than read-modify-write.
type SupportService struct {
	db     *gorm.DB
	dir    auth.Directory
	caster Broadcaster
	logger *slog.Logger
}

// NewSupportService creates a support service.
func NewSupportService(gdb *gorm.DB, dir auth.Directory) *SupportService {
	return &SupportService{
		db:     gdb,
		dir:    dir,
		logger: utils.GetLogger(),
	}
}

// SetBroadcaster sets the room broadcaster (to avoid import cycle).
func (s *SupportService) SetBroadcaster(b Broadcaster) {
	s.caster = b
}

// AutoMigrate creates database tables.
func (s *SupportService) AutoMigrate() error {
	return s.db.AutoMigrate(
		&db.Account{},
		&db.Ticket{},
		&db.ChatSession{},
		&db.SupportMessage{},
	)
}

// ========== Ticket creation and numbering ==========

// CreateTicket creates a ticket conversation with a freshly issued
// sequential number. The staff entry point surfaces numbering failures;
// the non-staff entry point falls back to a timestamp-derived number, so
// callers must treat the number as an opaque display string.
func (s *SupportService) CreateTicket(identity models.Identity, req *models.CreateTicketRequest) (*db.Ticket, error) {
	subject := strings.TrimSpace(req.Subject)
	if subject == "" {
		return nil, ErrEmptySubject
	}

	priority := req.Priority
	if priority == "" {
		priority = db.TicketPriorityMedium
	}
	switch priority {
	case db.TicketPriorityLow, db.TicketPriorityMedium, db.TicketPriorityHigh:
	default:
		return nil, ErrInvalidPriority
	}

	number, err := s.nextTicketNumber()
	if err != nil {
		if identity.IsStaff() {
			return nil, err
		}
		// Secondary creation path: keep the conversation alive even when
		// the counting scheme fails.
		s.logger.Warn("ticket numbering fell back to timestamp", "error", err)
		number = fmt.Sprintf("TKT-%d", time.Now().UnixNano())
	}

	now := time.Now()
	ticket := &db.Ticket{
		ID:             uuid.New().String(),
		Number:         number,
		Type:           strings.TrimSpace(req.Type),
		Subject:        subject,
		Description:    strings.TrimSpace(req.Description),
		Priority:       priority,
		Status:         db.TicketStatusOpen,
		CreatorRole:    identity.Role,
		CreatorID:      identity.AccountID,
		LastActivityAt: now,
	}
	if err := s.db.Create(ticket).Error; err != nil {
		return nil, fmt.Errorf("create ticket: %w", err)
	}

	if msg := strings.TrimSpace(req.Message); msg != "" {
		if _, _, err := s.PostMessage(identity, ticket.ID, msg); err != nil {
			return nil, err
		}
	}

	return s.GetTicket(ticket.ID)
}

// nextTicketNumber issues the next TKT-NNNNNN candidate. This probe only
// reduces collisions between concurrent creators; the unique index on the
// number column is the actual guarantee, so a losing writer fails at
// insert time.
func (s *SupportService) nextTicketNumber() (string, error) {
	var count int64
	if err := s.db.Model(&db.Ticket{}).Count(&count).Error; err != nil {
		return "", fmt.Errorf("count tickets: %w", err)
	}

	for attempt := int64(0); attempt < maxNumberAttempts; attempt++ {
		candidate := fmt.Sprintf("TKT-%06d", count+1+attempt)
		var taken int64
		if err := s.db.Model(&db.Ticket{}).Where("number = ?", candidate).Count(&taken).Error; err != nil {
			return "", fmt.Errorf("probe ticket number: %w", err)
		}
		if taken == 0 {
			return candidate, nil
		}
	}
	return "", ErrNumberingExhausted
}

// GetTicket retrieves a ticket by ID.
func (s *SupportService) GetTicket(id string) (*db.Ticket, error) {
	var ticket db.Ticket
	if err := s.db.First(&ticket, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTicketNotFound
		}
		return nil, err
	}
	return &ticket, nil
}

// GetSession retrieves a chat session by ID.
func (s *SupportService) GetSession(id string) (*db.ChatSession, error) {
	var session db.ChatSession
	if err := s.db.First(&session, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &session, nil
}

// StartSession returns the caller's chat session, creating it on first
// contact. Sessions are unique per (participant role, participant id).
func (s *SupportService) StartSession(identity models.Identity) (*db.ChatSession, error) {
	if identity.IsStaff() {
		return nil, ErrNotParticipant
	}

	session := db.ChatSession{}
	err := s.db.
		Where("participant_role = ? AND participant_id = ?", identity.Role, identity.AccountID).
		Attrs(db.ChatSession{
			ID:              uuid.New().String(),
			ParticipantRole: identity.Role,
			ParticipantID:   identity.AccountID,
			Status:          db.SessionStatusActive,
			LastActivityAt:  time.Now(),
		}).
		FirstOrCreate(&session).Error
	if err != nil {
		return nil, fmt.Errorf("start chat session: %w", err)
	}
	return &session, nil
}

// ========== Message relay ==========

// PostMessage appends a message to the conversation with the given id,
// trying the ticket store first and the session store second (the id
// spaces are disjoint, so at most one lookup succeeds). On success the
// created message is broadcast to the conversation's room; persistence
// failures abort before any broadcast.
func (s *SupportService) PostMessage(identity models.Identity, conversationID, body string) (*models.MessageView, string, error) {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return nil, "", ErrEmptyMessage
	}

	now := time.Now()
	msg := &db.SupportMessage{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		SenderRole:     identity.Role,
		SenderID:       identity.AccountID,
		Body:           trimmed,
		CreatedAt:      now,
	}

	var kind string
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var ticket db.Ticket
		terr := tx.First(&ticket, "id = ?", conversationID).Error
		if terr == nil {
			kind = models.ConversationKindTicket
			if err := tx.Create(msg).Error; err != nil {
				return fmt.Errorf("create message: %w", err)
			}
			return tx.Model(&db.Ticket{}).Where("id = ?", ticket.ID).Updates(map[string]interface{}{
				"last_activity_at": now,
				"updated_at":       now,
			}).Error
		}
		if !errors.Is(terr, gorm.ErrRecordNotFound) {
			return terr
		}

		var session db.ChatSession
		if err := tx.First(&session, "id = ?", conversationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrConversationNotFound
			}
			return err
		}
		kind = models.ConversationKindSession
		if err := tx.Create(msg).Error; err != nil {
			return fmt.Errorf("create message: %w", err)
		}
		updates := map[string]interface{}{
			"last_message":     trimmed,
			"last_activity_at": now,
			"updated_at":       now,
		}
		if identity.Role != db.RoleStaff {
			updates["unread_count"] = gorm.Expr("unread_count + 1")
		}
		return tx.Model(&db.ChatSession{}).Where("id = ?", session.ID).Updates(updates).Error
	})
	if err != nil {
		return nil, "", err
	}

	view := s.messageView(msg, identity.DisplayName)

	room := TicketRoom(conversationID)
	idField := "ticketId"
	if kind == models.ConversationKindSession {
		room = SessionRoom(conversationID)
		idField = "sessionId"
	}
	s.broadcast(room, "message_received", map[string]any{
		idField:   conversationID,
		"message": view,
	})

	return &view, kind, nil
}

// ========== Conversation unifier ==========

// ListConversations merges tickets and chat sessions into a single list
// sorted by last activity descending. The status filter uses the unified
// vocabulary: "resolved" maps to closed tickets, "active" to open or
// in-progress ones. Tickets are capped at the 100 most recently active;
// sessions are unbounded.
func (s *SupportService) ListConversations(status, search string) ([]models.ConversationSummary, error) {
	ticketQuery := s.db.Model(&db.Ticket{})
	sessionQuery := s.db.Model(&db.ChatSession{})

	switch status {
	case "":
	case db.SessionStatusResolved:
		ticketQuery = ticketQuery.Where("status = ?", db.TicketStatusClosed)
		sessionQuery = sessionQuery.Where("status = ?", db.SessionStatusResolved)
	case db.SessionStatusActive:
		ticketQuery = ticketQuery.Where("status IN ?", []string{db.TicketStatusOpen, db.TicketStatusInProgress})
		sessionQuery = sessionQuery.Where("status = ?", db.SessionStatusActive)
	default:
		ticketQuery = ticketQuery.Where("status = ?", status)
		sessionQuery = sessionQuery.Where("status = ?", status)
	}

	if search = strings.TrimSpace(search); search != "" {
		like := "%" + search + "%"
		ticketQuery = ticketQuery.Where("subject LIKE ? OR description LIKE ? OR number LIKE ?", like, like, like)
		sessionQuery = sessionQuery.Where("last_message LIKE ?", like)
	}

	var tickets []db.Ticket
	if err := ticketQuery.Order("last_activity_at DESC").Limit(maxTicketListSize).Find(&tickets).Error; err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	var sessions []db.ChatSession
	if err := sessionQuery.Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("list chat sessions: %w", err)
	}

	names := map[string]string{}
	summaries := make([]models.ConversationSummary, 0, len(tickets)+len(sessions))

	for _, t := range tickets {
		summaries = append(summaries, models.ConversationSummary{
			Kind:            models.ConversationKindTicket,
			ID:              t.ID,
			Number:          t.Number,
			Subject:         t.Subject,
			Priority:        t.Priority,
			Status:          t.Status,
			ParticipantName: s.displayName(names, t.CreatorRole, t.CreatorID),
			LastMessage:     s.latestMessageBody(t.ID),
			UnreadCount:     0, // unread state is not tracked for tickets
			LastActivityAt:  t.LastActivityAt,
		})
	}
	for _, sess := range sessions {
		summaries = append(summaries, models.ConversationSummary{
			Kind:            models.ConversationKindSession,
			ID:              sess.ID,
			Status:          sess.Status,
			ParticipantName: s.displayName(names, sess.ParticipantRole, sess.ParticipantID),
			LastMessage:     sess.LastMessage,
			UnreadCount:     sess.UnreadCount,
			LastActivityAt:  sess.LastActivityAt,
		})
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].LastActivityAt.After(summaries[j].LastActivityAt)
	})
	return summaries, nil
}

// GetConversation returns a conversation of either kind together with
// its ordered message list, each message annotated with a resolved
// sender display name.
func (s *SupportService) GetConversation(id string) (*models.ConversationDetail, error) {
	detail := &models.ConversationDetail{}

	ticket, err := s.GetTicket(id)
	switch {
	case err == nil:
		detail.Kind = models.ConversationKindTicket
		detail.Ticket = ticket
	case errors.Is(err, ErrTicketNotFound):
		session, serr := s.GetSession(id)
		if serr != nil {
			if errors.Is(serr, ErrSessionNotFound) {
				return nil, ErrConversationNotFound
			}
			return nil, serr
		}
		detail.Kind = models.ConversationKindSession
		detail.Session = session
	default:
		return nil, err
	}

	// rowid breaks created_at ties, keeping insertion order stable.
	var msgs []db.SupportMessage
	if err := s.db.Where("conversation_id = ?", id).Order("created_at ASC, rowid ASC").Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	names := map[string]string{}
	detail.Messages = make([]models.MessageView, 0, len(msgs))
	for i := range msgs {
		view := s.messageView(&msgs[i], s.displayName(names, msgs[i].SenderRole, msgs[i].SenderID))
		detail.Messages = append(detail.Messages, view)
	}
	return detail, nil
}

// ========== Ticket status machine and assignment ==========

// UpdateTicketStatus applies a status transition. Staff may move a
// ticket anywhere. A non-staff caller must be the creator and may only
// request a transition when the target is closed or the ticket is still
// open; anything else is forbidden.
func (s *SupportService) UpdateTicketStatus(identity models.Identity, ticketID, status string) (*db.Ticket, error) {
	switch status {
	case db.TicketStatusOpen, db.TicketStatusInProgress, db.TicketStatusResolved, db.TicketStatusClosed:
	default:
		return nil, ErrInvalidStatus
	}

	ticket, err := s.GetTicket(ticketID)
	if err != nil {
		return nil, err
	}

	caps := models.DeriveCapabilities(identity)
	if !caps.CanSetAnyStatus {
		if ticket.CreatorRole != identity.Role || ticket.CreatorID != identity.AccountID {
			return nil, ErrForbiddenTransition
		}
		if status != db.TicketStatusClosed && ticket.Status != db.TicketStatusOpen {
			return nil, ErrForbiddenTransition
		}
	}

	if err := s.db.Model(&db.Ticket{}).Where("id = ?", ticketID).Updates(map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	}).Error; err != nil {
		return nil, fmt.Errorf("update ticket status: %w", err)
	}

	ticket, err = s.GetTicket(ticketID)
	if err != nil {
		return nil, err
	}
	s.broadcast(TicketRoom(ticketID), "ticket_updated", map[string]any{
		"ticketId":   ticketID,
		"ticket":     ticket,
		"updateType": "status",
	})
	return ticket, nil
}

// AssignTicket assigns a ticket to a staff account.
func (s *SupportService) AssignTicket(ticketID, adminID string) (*db.Ticket, error) {
	if _, err := s.GetTicket(ticketID); err != nil {
		return nil, err
	}

	account, err := s.dir.Lookup(db.RoleStaff, adminID)
	if err != nil {
		if errors.Is(err, auth.ErrAccountUnavailable) {
			return nil, ErrAssigneeNotStaff
		}
		return nil, fmt.Errorf("resolve assignee: %w", err)
	}
	if !account.Active {
		return nil, ErrAssigneeNotStaff
	}

	if err := s.db.Model(&db.Ticket{}).Where("id = ?", ticketID).Updates(map[string]interface{}{
		"assignee_id": adminID,
		"updated_at":  time.Now(),
	}).Error; err != nil {
		return nil, fmt.Errorf("assign ticket: %w", err)
	}

	ticket, err := s.GetTicket(ticketID)
	if err != nil {
		return nil, err
	}
	s.broadcast(TicketRoom(ticketID), "ticket_updated", map[string]any{
		"ticketId":   ticketID,
		"ticket":     ticket,
		"updateType": "assignment",
	})
	return ticket, nil
}

// SetSessionStatus sets a chat session's two-state status flag.
func (s *SupportService) SetSessionStatus(sessionID, status string) (*db.ChatSession, error) {
	switch status {
	case db.SessionStatusActive, db.SessionStatusResolved:
	default:
		return nil, ErrInvalidStatus
	}

	if _, err := s.GetSession(sessionID); err != nil {
		return nil, err
	}
	if err := s.db.Model(&db.ChatSession{}).Where("id = ?", sessionID).Updates(map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	}).Error; err != nil {
		return nil, fmt.Errorf("update session status: %w", err)
	}
	return s.GetSession(sessionID)
}

// ========== Read-state tracker ==========

// MarkConversationRead flips every unread non-staff message in the
// conversation to read and, for chat sessions, resets the unread
// counter. Marking an already-read conversation is a no-op; an unknown
// conversation id is an error.
func (s *SupportService) MarkConversationRead(conversationID string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var tickets int64
		if err := tx.Model(&db.Ticket{}).Where("id = ?", conversationID).Count(&tickets).Error; err != nil {
			return fmt.Errorf("look up ticket: %w", err)
		}
		isSession := false
		if tickets == 0 {
			var sessions int64
			if err := tx.Model(&db.ChatSession{}).Where("id = ?", conversationID).Count(&sessions).Error; err != nil {
				return fmt.Errorf("look up chat session: %w", err)
			}
			if sessions == 0 {
				return ErrConversationNotFound
			}
			isSession = true
		}

		now := time.Now()
		res := tx.Model(&db.SupportMessage{}).
			Where("conversation_id = ? AND sender_role != ? AND read = ?", conversationID, db.RoleStaff, false).
			Updates(map[string]interface{}{
				"read":    true,
				"read_at": now,
			})
		if res.Error != nil {
			return fmt.Errorf("mark messages read: %w", res.Error)
		}
		if !isSession {
			return nil
		}
		return tx.Model(&db.ChatSession{}).Where("id = ?", conversationID).Updates(map[string]interface{}{
			"unread_count": 0,
			"updated_at":   now,
		}).Error
	})
}

// ========== Helpers ==========

func (s *SupportService) broadcast(room, event string, data map[string]any) {
	if s.caster == nil {
		return
	}
	s.caster.Broadcast(room, event, data)
}

func (s *SupportService) messageView(msg *db.SupportMessage, senderName string) models.MessageView {
	return models.MessageView{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderRole:     msg.SenderRole,
		SenderName:     senderName,
		Body:           msg.Body,
		Read:           msg.Read,
		ReadAt:         msg.ReadAt,
		CreatedAt:      msg.CreatedAt,
	}
}

// displayName resolves an account display name through the directory,
// memoizing per call in names.
func (s *SupportService) displayName(names map[string]string, role, id string) string {
	key := role + "/" + id
	if name, ok := names[key]; ok {
		return name
	}
	name := "Unknown"
	if account, err := s.dir.Lookup(role, id); err == nil {
		name = account.DisplayName
	}
	names[key] = name
	return name
}

// latestMessageBody returns the body of the most recent message in a
// conversation, for list previews.
func (s *SupportService) latestMessageBody(conversationID string) string {
	var msg db.SupportMessage
	err := s.db.Where("conversation_id = ?", conversationID).
		Order("created_at DESC, rowid DESC").
		First(&msg).Error
	if err != nil {
		return ""
	}
	return msg.Body
}
