package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	MessageKindText     = "text"
	MessageKindTripCard = "tripCard"
)

// ConversationMessage is append-only. Flagged user messages are kept for audit
// and never fed back into a context window.
type ConversationMessage struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID      `gorm:"type:uuid;not null;index:idx_conversation_user_created,priority:1" json:"user_id"`
	Role      string         `gorm:"not null" json:"role"`
	Content   string         `gorm:"type:text;not null;default:''" json:"content"`
	Kind      string         `gorm:"not null;default:'text'" json:"kind"`
	Metadata  datatypes.JSON `gorm:"type:jsonb" json:"metadata,omitempty"`
	Flagged   bool           `gorm:"not null;default:false" json:"-"`
	CreatedAt time.Time      `gorm:"not null;index:idx_conversation_user_created,priority:2" json:"created_at"`
}

func (m *ConversationMessage) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.Kind == "" {
		m.Kind = MessageKindText
	}
	return nil
}

type ConversationThread struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID           uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:ux_thread_user_provider,priority:1"`
	Provider         string    `gorm:"not null;uniqueIndex:ux_thread_user_provider,priority:2"`
	ProviderThreadID string
	LastActive       time.Time `gorm:"not null;index"`
	CreatedAt        time.Time
}

func (t *ConversationThread) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
