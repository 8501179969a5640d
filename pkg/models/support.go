// API types for the support messaging service
package models

import (
	"time"

	"github.com/vendaro/vendaro/pkg/db"
)

// ========== Type aliases for database types ==========
// These allow other packages to use models.Ticket instead of db.Ticket

type Account = db.Account
type Ticket = db.Ticket
type ChatSession = db.ChatSession
type SupportMessage = db.SupportMessage

// ========== Constant aliases from db package ==========

// Identity roles
const (
	RoleCustomer = db.RoleCustomer
	RoleVendor   = db.RoleVendor
	RoleStaff    = db.RoleStaff
)

// Ticket status constants
const (
	TicketStatusOpen       = db.TicketStatusOpen
	TicketStatusInProgress = db.TicketStatusInProgress
	TicketStatusResolved   = db.TicketStatusResolved
	TicketStatusClosed     = db.TicketStatusClosed
)

// Ticket priority constants
const (
	TicketPriorityLow    = db.TicketPriorityLow
	TicketPriorityMedium = db.TicketPriorityMedium
	TicketPriorityHigh   = db.TicketPriorityHigh
)

// Session status constants
const (
	SessionStatusActive   = db.SessionStatusActive
	SessionStatusResolved = db.SessionStatusResolved
)

// Conversation kinds used in the unified listing
const (
	ConversationKindTicket  = "ticket"
	ConversationKindSession = "session"
)

// ========== Identity ==========

// Identity is the resolved caller of a connection or request. It is not
// persisted by this service; it is re-resolved from the directory on
// every authentication.
type Identity struct {
	Role        string `json:"role"`
	AccountID   string `json:"account_id"`
	DisplayName string `json:"display_name"`
}

// IsStaff reports whether the identity carries the administrative role.
func (i Identity) IsStaff() bool {
	return i.Role == RoleStaff
}

// Capabilities is the per-connection capability set derived once from the
// resolved identity. Event handlers consult it instead of re-branching on
// the raw role.
type Capabilities struct {
	CanAssign       bool
	CanSetAnyStatus bool
	SenderRole      string
}

// DeriveCapabilities maps an identity onto its capability set.
func DeriveCapabilities(id Identity) Capabilities {
	staff := id.IsStaff()
	return Capabilities{
		CanAssign:       staff,
		CanSetAnyStatus: staff,
		SenderRole:      id.Role,
	}
}

// ========== Request types ==========

// CreateTicketRequest creates a ticket conversation.
type CreateTicketRequest struct {
	Type        string `json:"type" binding:"required"`
	Subject     string `json:"subject" binding:"required"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
	Message     string `json:"message"` // optional first message
}

// PostMessageRequest posts a message to a conversation.
type PostMessageRequest struct {
	Message string `json:"message" binding:"required"`
}

// UpdateTicketStatusRequest requests a ticket status transition.
type UpdateTicketStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// AssignTicketRequest assigns a ticket to a staff account.
type AssignTicketRequest struct {
	AdminID string `json:"admin_id" binding:"required"`
}

// UpdateSessionStatusRequest sets a chat session's status flag.
type UpdateSessionStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// ========== Response types ==========

// MessageView is a message annotated with a resolved sender display name.
// The raw sender id is not exposed to room broadcasts.
type MessageView struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	SenderRole     string     `json:"sender_role"`
	SenderName     string     `json:"sender_name,omitempty"`
	Body           string     `json:"body"`
	Read           bool       `json:"read"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// ConversationSummary is one entry of the unified conversation list.
type ConversationSummary struct {
	Kind            string    `json:"kind"` // ticket, session
	ID              string    `json:"id"`
	Number          string    `json:"number,omitempty"`
	Subject         string    `json:"subject,omitempty"`
	Priority        string    `json:"priority,omitempty"`
	Status          string    `json:"status"`
	ParticipantName string    `json:"participant_name"`
	LastMessage     string    `json:"last_message,omitempty"`
	UnreadCount     int       `json:"unread_count"`
	LastActivityAt  time.Time `json:"last_activity_at"`
}

// ConversationDetail is a single conversation with its full ordered
// message list. Exactly one of Ticket/Session is set, matching Kind.
type ConversationDetail struct {
	Kind     string        `json:"kind"`
	Ticket   *Ticket       `json:"ticket,omitempty"`
	Session  *ChatSession  `json:"session,omitempty"`
	Messages []MessageView `json:"messages"`
}

// ConversationListResponse wraps the unified conversation list.
type ConversationListResponse struct {
	Conversations []ConversationSummary `json:"conversations"`
	Total         int                   `json:"total"`
}
