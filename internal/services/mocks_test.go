package services_test

import (
	"context"
	"sync"
	"testing"

	"tripmind_go_backend/internal/database"
	"tripmind_go_backend/internal/providers"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens a private in-memory SQLite database with the full schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.Migrate(db))
	return db
}

// MockProvider is a mock type for providers.Provider
type MockProvider struct {
	mock.Mock
	name string
}

func NewMockProvider(name string) *MockProvider {
	return &MockProvider{name: name}
}

func (m *MockProvider) Name() string { return m.name }

func (m *MockProvider) Chat(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*providers.ChatResponse)
	return resp, args.Error(1)
}

// MockChatGateway is a mock type for services.ChatGateway
type MockChatGateway struct {
	mock.Mock
}

func (m *MockChatGateway) Chat(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*providers.ChatResponse)
	return resp, args.Error(1)
}

func (m *MockChatGateway) ChatProviderName() string {
	return providers.OpenAIName
}

type MockModerator struct {
	mock.Mock
}

func (m *MockModerator) Moderate(ctx context.Context, text string) (bool, error) {
	args := m.Called(ctx, text)
	return args.Bool(0), args.Error(1)
}

type MockTranscriber struct {
	mock.Mock
}

func (m *MockTranscriber) Transcribe(ctx context.Context, audio []byte, language string) (string, error) {
	args := m.Called(ctx, audio, language)
	return args.String(0), args.Error(1)
}

type MockSynthesizer struct {
	mock.Mock
}

func (m *MockSynthesizer) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	args := m.Called(ctx, text, voice)
	out, _ := args.Get(0).([]byte)
	return out, args.Error(1)
}

type MockVisionAnalyzer struct {
	mock.Mock
}

func (m *MockVisionAnalyzer) AnalyzeImage(ctx context.Context, image []byte, prompt string) (string, error) {
	args := m.Called(ctx, image, prompt)
	return args.String(0), args.Error(1)
}

type MockEmbedder struct {
	mock.Mock
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	out, _ := args.Get(0).([]float32)
	return out, args.Error(1)
}

// recordingReporter collects captured errors.
type recordingReporter struct {
	mu     sync.Mutex
	errors []error
}

func (r *recordingReporter) Capture(ctx context.Context, err error, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, err)
}

func (r *recordingReporter) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errors)
}

type publishedEvent struct {
	userID    uuid.UUID
	eventType string
	payload   interface{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) Publish(userID uuid.UUID, eventType string, payload interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{userID: userID, eventType: eventType, payload: payload})
}

func (p *recordingPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.eventType)
	}
	return out
}
