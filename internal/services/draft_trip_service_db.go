package services

import (
	"context"
	"errors"
	"time"

	"tripmind_go_backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const DefaultDraftListLimit = 5

type DraftTripServiceDB interface {
	CreateDraft(ctx context.Context, draft *models.DraftTrip) error
	GetDraft(ctx context.Context, id uuid.UUID) (*models.DraftTrip, error)
	// ListPendingDrafts returns fresh pending drafts, highest confidence first.
	ListPendingDrafts(ctx context.Context, userID uuid.UUID, limit int, now time.Time) ([]models.DraftTrip, error)
	// TransitionDraft moves a pending draft to accepted or dismissed. Drafts
	// never leave a terminal status.
	TransitionDraft(ctx context.Context, id, userID uuid.UUID, status string) (*models.DraftTrip, error)
	// UpsertSuggestion replaces the pending draft for the same pattern key
	// instead of adding a duplicate.
	UpsertSuggestion(ctx context.Context, draft *models.DraftTrip) error
}

type DefaultDraftTripService struct {
	db  *gorm.DB
	ttl time.Duration
}

// NewDraftTripServiceDB builds the draft store. Pending drafts whose
// generated_for is older than ttl are hidden from listings; zero disables it.
func NewDraftTripServiceDB(db *gorm.DB, ttl time.Duration) DraftTripServiceDB {
	return &DefaultDraftTripService{db: db, ttl: ttl}
}

func (s *DefaultDraftTripService) CreateDraft(ctx context.Context, draft *models.DraftTrip) error {
	draft.ConfidenceScore = ClampConfidence(draft.ConfidenceScore)
	draft.Status = models.DraftStatusPending
	return s.db.WithContext(ctx).Create(draft).Error
}

func (s *DefaultDraftTripService) GetDraft(ctx context.Context, id uuid.UUID) (*models.DraftTrip, error) {
	var draft models.DraftTrip
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&draft).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDraftNotFound
		}
		return nil, err
	}
	return &draft, nil
}

func (s *DefaultDraftTripService) ListPendingDrafts(ctx context.Context, userID uuid.UUID, limit int, now time.Time) ([]models.DraftTrip, error) {
	if limit <= 0 {
		limit = DefaultDraftListLimit
	}
	query := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, models.DraftStatusPending)
	if s.ttl > 0 {
		query = query.Where("generated_for >= ?", now.Add(-s.ttl))
	}

	var drafts []models.DraftTrip
	result := query.
		Order("confidence_score desc").
		Order("created_at desc").
		Limit(limit).
		Find(&drafts)
	if result.Error != nil {
		return nil, result.Error
	}
	return drafts, nil
}

func (s *DefaultDraftTripService) TransitionDraft(ctx context.Context, id, userID uuid.UUID, status string) (*models.DraftTrip, error) {
	if status != models.DraftStatusAccepted && status != models.DraftStatusDismissed {
		return nil, ErrInvalidStatus
	}

	var draft models.DraftTrip
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := transitionPendingDraft(tx, id, userID, status); err != nil {
			return err
		}
		return tx.Where("id = ?", id).First(&draft).Error
	})
	if err != nil {
		return nil, err
	}
	return &draft, nil
}

func (s *DefaultDraftTripService) UpsertSuggestion(ctx context.Context, draft *models.DraftTrip) error {
	draft.ConfidenceScore = ClampConfidence(draft.ConfidenceScore)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.DraftTrip
		err := tx.Where("user_id = ? AND pattern_key = ? AND status = ?", draft.UserID, draft.PatternKey, models.DraftStatusPending).
			First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			draft.Status = models.DraftStatusPending
			return tx.Create(draft).Error
		}
		if err != nil {
			return err
		}

		draft.ID = existing.ID
		draft.Status = existing.Status
		draft.CreatedAt = existing.CreatedAt
		return tx.Model(&existing).Select(
			"payload_role", "payload_origin_text", "payload_dest_text", "payload_departure_time",
			"payload_seats", "payload_vehicle_type", "confidence_score", "suggestion_reason", "generated_for",
		).Updates(draft).Error
	})
}

// transitionPendingDraft is a compare-and-swap on the pending status. It
// reports ErrDraftNotFound for unknown or foreign drafts and
// ErrInvalidTransition for drafts that already left pending.
func transitionPendingDraft(tx *gorm.DB, id, userID uuid.UUID, status string) error {
	result := tx.Model(&models.DraftTrip{}).
		Where("id = ? AND user_id = ? AND status = ?", id, userID, models.DraftStatusPending).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 1 {
		return nil
	}

	var current models.DraftTrip
	if err := tx.Where("id = ? AND user_id = ?", id, userID).First(&current).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrDraftNotFound
		}
		return err
	}
	return ErrInvalidTransition
}

// ClampConfidence bounds a score to [0, 1].
func ClampConfidence(score float64) float64 {
	switch {
	case score < 0:
		return 0
	case score > 1:
		return 1
	default:
		return score
	}
}
