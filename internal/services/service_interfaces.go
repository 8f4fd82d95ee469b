package services

import (
	"context"
	"io"
	"time"

	"tripmind_go_backend/internal/models"
	"tripmind_go_backend/internal/providers"

	"github.com/google/uuid"
)

// ChatGateway runs conversational turns on the fixed chat model.
type ChatGateway interface {
	Chat(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error)
	ChatProviderName() string
}

type RouteEmbedder interface {
	Embed(ctx context.Context, origin, dest string) []float32
}

type SuggestionSource interface {
	Patterns(ctx context.Context, userID uuid.UUID, loc *time.Location, now time.Time) ([]RoutinePattern, error)
}

type UserLookup interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// EventPublisher fans out per-user events to live connections.
type EventPublisher interface {
	Publish(userID uuid.UUID, eventType string, payload interface{})
}

type CloudStorageManager interface {
	UploadFile(ctx context.Context, bucketName, objectName, contentType string, content io.Reader) error
	DownloadFile(ctx context.Context, bucketName, objectName string) ([]byte, error)
	ListFiles(ctx context.Context, bucketName, prefix string) ([]string, error)
}
