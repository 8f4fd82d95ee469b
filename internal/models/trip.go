package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

const TripStatusOpen = "open"

type Trip struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         uuid.UUID  `gorm:"type:uuid;not null;index;uniqueIndex:ux_trip_user_idempotency,priority:1" json:"user_id"`
	Role           string     `gorm:"not null" json:"role"`
	OriginText     string     `gorm:"not null" json:"origin_text"`
	DestText       string     `gorm:"not null" json:"dest_text"`
	DepartureTime  time.Time  `gorm:"not null;index" json:"departure_time"`
	Seats          *int       `json:"seats,omitempty"`
	VehicleType    *string    `json:"vehicle_type,omitempty"`
	Status         string     `gorm:"not null;default:'open'" json:"status"`
	Currency       string     `gorm:"type:varchar(3)" json:"currency"`
	DraftID        *uuid.UUID `gorm:"type:uuid;index" json:"draft_id,omitempty"`
	IdempotencyKey *string    `gorm:"uniqueIndex:ux_trip_user_idempotency,priority:2" json:"-"`
	CreatedAt      time.Time  `json:"created_at"`
}

func (t *Trip) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Status == "" {
		t.Status = TripStatusOpen
	}
	return nil
}

// TripHistory is the log the routine miner reads from.
type TripHistory struct {
	ID             uuid.UUID        `gorm:"type:uuid;primaryKey"`
	UserID         uuid.UUID        `gorm:"type:uuid;not null;index"`
	TripID         *uuid.UUID       `gorm:"type:uuid;index"`
	Role           string           `gorm:"not null"`
	OriginText     string           `gorm:"not null"`
	DestText       string           `gorm:"not null"`
	DepartureTime  time.Time        `gorm:"not null;index"`
	RouteEmbedding *pgvector.Vector `gorm:"type:vector"`
	CreatedAt      time.Time
}

func (h *TripHistory) BeforeCreate(tx *gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return nil
}
