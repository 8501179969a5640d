// Database models for ad-hoc chat sessions
package db

import "time"

// ChatSession is the lightweight conversation variant: one per non-staff
// participant, created lazily on first contact. LastMessage is
// denormalized for list rendering; UnreadCount tracks unread non-staff
// messages and is only ever mutated with atomic column updates.
type ChatSession struct {
	ID string `json:"id" gorm:"primaryKey;size:36"`

	ParticipantRole string `json:"participant_role" gorm:"size:20;not null;uniqueIndex:idx_sessions_participant"`
	ParticipantID   string `json:"participant_id" gorm:"size:36;not null;uniqueIndex:idx_sessions_participant"`

	LastMessage    string    `json:"last_message" gorm:"type:text"`
	UnreadCount    int       `json:"unread_count" gorm:"default:0"`
	Status         string    `json:"status" gorm:"size:20;default:'active';index"` // active, resolved
	LastActivityAt time.Time `json:"last_activity_at" gorm:"index"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (ChatSession) TableName() string {
	return "chat_sessions"
}

// Session status
const (
	SessionStatusActive   = "active"
	SessionStatusResolved = "resolved"
)
