package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DraftStatusPending   = "pending"
	DraftStatusAccepted  = "accepted"
	DraftStatusDismissed = "dismissed"

	TripRoleDriver    = "driver"
	TripRolePassenger = "passenger"
)

// TripPayload is the proposed trip carried by a draft. Optional fields stay nil
// when the source did not provide them.
type TripPayload struct {
	Role          string     `gorm:"not null" json:"role"`
	OriginText    string     `gorm:"not null" json:"origin_text"`
	DestText      string     `gorm:"not null" json:"dest_text"`
	DepartureTime *time.Time `json:"departure_time,omitempty"`
	Seats         *int       `json:"seats,omitempty"`
	VehicleType   *string    `json:"vehicle_type,omitempty"`
}

type DraftTrip struct {
	ID               uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	UserID           uuid.UUID   `gorm:"type:uuid;not null;index:idx_draft_user_status,priority:1" json:"user_id"`
	Payload          TripPayload `gorm:"embedded;embeddedPrefix:payload_" json:"payload"`
	ConfidenceScore  float64     `gorm:"not null;default:0" json:"confidence_score"`
	SuggestionReason string      `json:"suggestion_reason"`
	GeneratedFor     time.Time   `gorm:"index" json:"generated_for"`
	PatternKey       string      `gorm:"index" json:"pattern_key,omitempty"`
	Status           string      `gorm:"not null;default:'pending';index:idx_draft_user_status,priority:2" json:"status"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

func (d *DraftTrip) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.Status == "" {
		d.Status = DraftStatusPending
	}
	return nil
}
