package services

import (
	"context"
	"errors"

	"tripmind_go_backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UserProfile struct {
	ExternalID string
	Email      string
	Name       string
	Locale     string
	Country    string
	Timezone   string
}

type UserServiceDB interface {
	CreateOrUpdateUser(ctx context.Context, profile UserProfile) (*models.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type DefaultUserService struct {
	db *gorm.DB
}

func NewUserServiceDB(db *gorm.DB) UserServiceDB {
	return &DefaultUserService{db: db}
}

// CreateOrUpdateUser upserts the profile carried by an auth token. Empty
// locale fields never overwrite stored ones.
func (s *DefaultUserService) CreateOrUpdateUser(ctx context.Context, profile UserProfile) (*models.User, error) {
	user := models.User{
		ExternalID: profile.ExternalID,
		Email:      profile.Email,
		Name:       profile.Name,
	}
	updates := models.User{
		Email:    profile.Email,
		Name:     profile.Name,
		Locale:   profile.Locale,
		Country:  profile.Country,
		Timezone: profile.Timezone,
	}
	result := s.db.WithContext(ctx).
		Where(models.User{ExternalID: profile.ExternalID}).
		Assign(updates).
		FirstOrCreate(&user)
	if result.Error != nil {
		return nil, result.Error
	}
	return &user, nil
}

func (s *DefaultUserService) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}
