package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UsageRecord is the append-only billing log of provider token usage.
type UsageRecord struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID           uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	Model            string    `gorm:"not null" json:"model"`
	PromptTokens     int64     `gorm:"not null;default:0" json:"prompt_tokens"`
	CompletionTokens int64     `gorm:"not null;default:0" json:"completion_tokens"`
	USDCost          float64   `gorm:"column:usd_cost;not null;default:0" json:"usd_cost"`
	CreatedAt        time.Time `json:"created_at"`
}

func (u *UsageRecord) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

type Transcription struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	Language    string    `json:"language"`
	Text        string    `gorm:"type:text" json:"text"`
	AudioObject string    `json:"audio_object,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func (t *Transcription) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// RateLimitCounter backs the shared fixed-window limiter.
type RateLimitCounter struct {
	Key         string    `gorm:"column:bucket_key;primaryKey"`
	Count       int       `gorm:"not null;default:0"`
	WindowStart time.Time `gorm:"not null"`
}
