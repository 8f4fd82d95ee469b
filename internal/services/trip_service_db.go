package services

import (
	"context"
	"errors"
	"time"

	"tripmind_go_backend/internal/models"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PublishInput struct {
	Trip           models.Trip
	DraftID        *uuid.UUID
	IdempotencyKey string
	RouteEmbedding []float32
}

type TripServiceDB interface {
	// PublishTrip creates the trip and its history entry in one transaction.
	// When DraftID is set the draft is moved to accepted atomically. A replay
	// with the same idempotency key returns the original trip and created=false.
	PublishTrip(ctx context.Context, in PublishInput) (trip *models.Trip, created bool, err error)
	GetTripHistory(ctx context.Context, userID uuid.UUID, since time.Time) ([]models.TripHistory, error)
	ListTrips(ctx context.Context, userID uuid.UUID, limit int) ([]models.Trip, error)
	GetTrip(ctx context.Context, id, userID uuid.UUID) (*models.Trip, error)
}

type DefaultTripService struct {
	db *gorm.DB
}

func NewTripServiceDB(db *gorm.DB) TripServiceDB {
	return &DefaultTripService{db: db}
}

func (s *DefaultTripService) PublishTrip(ctx context.Context, in PublishInput) (*models.Trip, bool, error) {
	var (
		out     models.Trip
		created bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		trip := in.Trip
		if in.IdempotencyKey != "" {
			found, err := findTrip(tx.Where("user_id = ? AND idempotency_key = ?", trip.UserID, in.IdempotencyKey))
			if err != nil {
				return err
			}
			if found != nil {
				out = *found
				return nil
			}
			key := in.IdempotencyKey
			trip.IdempotencyKey = &key
		}

		if in.DraftID != nil {
			err := transitionPendingDraft(tx, *in.DraftID, trip.UserID, models.DraftStatusAccepted)
			if errors.Is(err, ErrInvalidTransition) {
				// An accepted draft that already produced a trip is a replay.
				found, ferr := findTrip(tx.Where("user_id = ? AND draft_id = ?", trip.UserID, *in.DraftID))
				if ferr != nil {
					return ferr
				}
				if found != nil {
					out = *found
					return nil
				}
			}
			if err != nil {
				return err
			}
			trip.DraftID = in.DraftID
		}

		trip.Status = models.TripStatusOpen
		if trip.IdempotencyKey != nil {
			// A concurrent retry may insert the same key after the lookup above.
			result := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "user_id"}, {Name: "idempotency_key"}},
				DoNothing: true,
			}).Create(&trip)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				found, err := findTrip(tx.Where("user_id = ? AND idempotency_key = ?", trip.UserID, *trip.IdempotencyKey))
				if err != nil {
					return err
				}
				if found == nil {
					return gorm.ErrDuplicatedKey
				}
				out = *found
				return nil
			}
		} else if err := tx.Create(&trip).Error; err != nil {
			return err
		}

		history := models.TripHistory{
			UserID:        trip.UserID,
			TripID:        &trip.ID,
			Role:          trip.Role,
			OriginText:    trip.OriginText,
			DestText:      trip.DestText,
			DepartureTime: trip.DepartureTime,
		}
		if len(in.RouteEmbedding) > 0 {
			vec := pgvector.NewVector(in.RouteEmbedding)
			history.RouteEmbedding = &vec
		}
		if err := tx.Create(&history).Error; err != nil {
			return err
		}

		out = trip
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &out, created, nil
}

func (s *DefaultTripService) GetTripHistory(ctx context.Context, userID uuid.UUID, since time.Time) ([]models.TripHistory, error) {
	var history []models.TripHistory
	result := s.db.WithContext(ctx).
		Where("user_id = ? AND departure_time >= ?", userID, since).
		Order("departure_time asc").
		Find(&history)
	if result.Error != nil {
		return nil, result.Error
	}
	return history, nil
}

func (s *DefaultTripService) ListTrips(ctx context.Context, userID uuid.UUID, limit int) ([]models.Trip, error) {
	if limit <= 0 {
		limit = 20
	}
	var trips []models.Trip
	result := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("departure_time desc").
		Limit(limit).
		Find(&trips)
	if result.Error != nil {
		return nil, result.Error
	}
	return trips, nil
}

func (s *DefaultTripService) GetTrip(ctx context.Context, id, userID uuid.UUID) (*models.Trip, error) {
	trip, err := findTrip(s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID))
	if err != nil {
		return nil, err
	}
	if trip == nil {
		return nil, ErrTripNotFound
	}
	return trip, nil
}

func findTrip(query *gorm.DB) (*models.Trip, error) {
	var trip models.Trip
	err := query.First(&trip).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &trip, nil
}
