package services

import (
	"context"
	"time"

	"tripmind_go_backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ConversationServiceDB persists the chat log, provider threads, usage and
// transcriptions.
type ConversationServiceDB interface {
	SaveMessage(ctx context.Context, msg *models.ConversationMessage) error
	// GetRecentMessages returns the last limit unflagged messages, oldest first.
	GetRecentMessages(ctx context.Context, userID uuid.UUID, limit int) ([]models.ConversationMessage, error)
	TouchThread(ctx context.Context, userID uuid.UUID, provider string) (*models.ConversationThread, error)
	SaveUsage(ctx context.Context, record *models.UsageRecord) error
	GetUsageTotals(ctx context.Context, userID uuid.UUID) (*UsageTotals, error)
	SaveTranscription(ctx context.Context, t *models.Transcription) error
}

type UsageTotals struct {
	Requests         int64   `json:"requests"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	USDCost          float64 `json:"usd_cost"`
}

type DefaultConversationService struct {
	db *gorm.DB
}

func NewConversationServiceDB(db *gorm.DB) ConversationServiceDB {
	return &DefaultConversationService{db: db}
}

func (s *DefaultConversationService) SaveMessage(ctx context.Context, msg *models.ConversationMessage) error {
	if msg.Kind == "" {
		msg.Kind = models.MessageKindText
	}
	return s.db.WithContext(ctx).Create(msg).Error
}

func (s *DefaultConversationService) GetRecentMessages(ctx context.Context, userID uuid.UUID, limit int) ([]models.ConversationMessage, error) {
	if limit <= 0 {
		limit = 10
	}
	var messages []models.ConversationMessage
	result := s.db.WithContext(ctx).
		Where("user_id = ? AND flagged = ?", userID, false).
		Order("created_at desc").
		Limit(limit).
		Find(&messages)
	if result.Error != nil {
		return nil, result.Error
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// TouchThread lazily creates the (user, provider) thread and bumps its
// activity time.
func (s *DefaultConversationService) TouchThread(ctx context.Context, userID uuid.UUID, provider string) (*models.ConversationThread, error) {
	thread := models.ConversationThread{}
	result := s.db.WithContext(ctx).
		Where(models.ConversationThread{UserID: userID, Provider: provider}).
		Attrs(models.ConversationThread{ProviderThreadID: provider + "-" + uuid.NewString()}).
		Assign(models.ConversationThread{LastActive: time.Now().UTC()}).
		FirstOrCreate(&thread)
	if result.Error != nil {
		return nil, result.Error
	}
	return &thread, nil
}

func (s *DefaultConversationService) SaveUsage(ctx context.Context, record *models.UsageRecord) error {
	return s.db.WithContext(ctx).Create(record).Error
}

func (s *DefaultConversationService) GetUsageTotals(ctx context.Context, userID uuid.UUID) (*UsageTotals, error) {
	var totals UsageTotals
	result := s.db.WithContext(ctx).
		Model(&models.UsageRecord{}).
		Select("COUNT(*) AS requests, COALESCE(SUM(prompt_tokens), 0) AS prompt_tokens, COALESCE(SUM(completion_tokens), 0) AS completion_tokens, COALESCE(SUM(usd_cost), 0) AS usd_cost").
		Where("user_id = ?", userID).
		Scan(&totals)
	if result.Error != nil {
		return nil, result.Error
	}
	return &totals, nil
}

func (s *DefaultConversationService) SaveTranscription(ctx context.Context, t *models.Transcription) error {
	return s.db.WithContext(ctx).Create(t).Error
}
