// Database models for support messages
package db

import "time"

// SupportMessage belongs to exactly one conversation, which is either a
// Ticket or a ChatSession (ids never collide because both are drawn from
// the same uuid allocator). Messages are append-only; the read flag only
// ever transitions false -> true, as a batch over a whole conversation.
type SupportMessage struct {
	ID             string `json:"id" gorm:"primaryKey;size:36"`
	ConversationID string `json:"conversation_id" gorm:"size:36;not null;index"`

	SenderRole string `json:"sender_role" gorm:"size:20;not null"`
	SenderID   string `json:"sender_id" gorm:"size:36;not null"`
	Body       string `json:"body" gorm:"type:text;not null"`

	Read   bool       `json:"read" gorm:"default:false"`
	ReadAt *time.Time `json:"read_at,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"index"`
}

func (SupportMessage) TableName() string {
	return "support_messages"
}
