// Database models for support tickets
package db

import "time"

// Ticket is a formal support conversation: typed, prioritized and
// assignable to a staff member. Its Number is assigned exactly once at
// creation; the unique index is what actually guarantees uniqueness,
// the numbering service only reduces collisions (see service package).
type Ticket struct {
	ID          string `json:"id" gorm:"primaryKey;size:36"`
	Number      string `json:"number" gorm:"uniqueIndex;size:32;not null"`
	Type        string `json:"type" gorm:"size:50;not null"`
	Subject     string `json:"subject" gorm:"size:200;not null"`
	Description string `json:"description" gorm:"type:text"`
	Priority    string `json:"priority" gorm:"size:20;default:'medium'"` // low, medium, high
	Status      string `json:"status" gorm:"size:20;default:'open';index"`

	CreatorRole string  `json:"creator_role" gorm:"size:20;not null"`
	CreatorID   string  `json:"creator_id" gorm:"size:36;not null;index"`
	AssigneeID  *string `json:"assignee_id,omitempty" gorm:"size:36;index"`

	LastActivityAt time.Time `json:"last_activity_at" gorm:"index"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (Ticket) TableName() string {
	return "tickets"
}

// Ticket status
const (
	TicketStatusOpen       = "open"
	TicketStatusInProgress = "in_progress"
	TicketStatusResolved   = "resolved"
	TicketStatusClosed     = "closed"
)

// Ticket priority
const (
	TicketPriorityLow    = "low"
	TicketPriorityMedium = "medium"
	TicketPriorityHigh   = "high"
)
