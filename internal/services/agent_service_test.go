package services_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"tripmind_go_backend/internal/models"
	"tripmind_go_backend/internal/providers"
	"tripmind_go_backend/internal/services"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type agentFixture struct {
	db        *gorm.DB
	agent     *services.AgentService
	gateway   *MockChatGateway
	moderator *MockModerator
	embedder  *MockEmbedder
	drafts    services.DraftTripServiceDB
	trips     services.TripServiceDB
	convos    services.ConversationServiceDB
	events    *recordingPublisher
	reporter  *recordingReporter
	user      *models.User
}

func newAgentFixture(t *testing.T) *agentFixture {
	t.Helper()
	db := newTestDB(t)
	f := &agentFixture{
		db:        db,
		gateway:   new(MockChatGateway),
		moderator: new(MockModerator),
		embedder:  new(MockEmbedder),
		drafts:    services.NewDraftTripServiceDB(db, 0),
		trips:     services.NewTripServiceDB(db),
		convos:    services.NewConversationServiceDB(db),
		events:    &recordingPublisher{},
		reporter:  &recordingReporter{},
	}
	users := services.NewUserServiceDB(db)
	user, err := users.CreateOrUpdateUser(context.Background(), services.UserProfile{
		ExternalID: "auth|rider",
		Email:      "rider@example.com",
		Name:       "Rider",
		Locale:     "en-RW",
		Country:    "RW",
		Timezone:   "Africa/Kigali",
	})
	require.NoError(t, err)
	f.user = user

	f.embedder.On("Embed", mock.Anything, mock.Anything).Return([]float32{0.5, 0.5}, nil).Maybe()

	logger := zerolog.Nop()
	f.agent = services.NewAgentService(services.AgentDeps{
		Gateway:       f.gateway,
		Moderator:     f.moderator,
		Users:         users,
		Conversations: f.convos,
		Drafts:        f.drafts,
		Trips:         f.trips,
		Routines:      services.NewRoutineMiningService(f.trips, f.drafts, 0, logger),
		Embeddings:    services.NewRouteEmbeddingService(f.embedder, logger),
		Locales:       services.NewLocaleResolver(nil, services.LocaleDefaults{}, logger),
		Events:        f.events,
		Reporter:      f.reporter,
	}, 10, logger)
	return f
}

func TestHandleTurnPlainReply(t *testing.T) {
	f := newAgentFixture(t)
	ctx := context.Background()

	f.moderator.On("Moderate", mock.Anything, "hello").Return(false, nil).Once()
	f.gateway.On("Chat", mock.Anything, mock.MatchedBy(func(req providers.ChatRequest) bool {
		return len(req.Messages) == 1 && len(req.Tools) == 2 && req.System != ""
	})).Return(&providers.ChatResponse{
		Text:  "Hi! Where are you headed?",
		Model: "gpt-4o-mini",
		Usage: &providers.Usage{PromptTokens: 100, CompletionTokens: 10},
	}, nil).Once()

	result, err := f.agent.HandleTurn(ctx, services.TurnRequest{UserID: f.user.ID, Message: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "Hi! Where are you headed?", result.Content)
	assert.Nil(t, result.Metadata)

	history, err := f.convos.GetRecentMessages(ctx, f.user.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.RoleUser, history[0].Role)
	assert.Equal(t, models.RoleAssistant, history[1].Role)

	totals, err := f.convos.GetUsageTotals(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), totals.Requests)
	assert.Equal(t, int64(100), totals.PromptTokens)

	f.gateway.AssertExpectations(t)
	f.moderator.AssertExpectations(t)
}

func TestHandleTurnModeration(t *testing.T) {
	f := newAgentFixture(t)
	ctx := context.Background()

	f.moderator.On("Moderate", mock.Anything, "something hateful").Return(true, nil).Once()

	result, err := f.agent.HandleTurn(ctx, services.TurnRequest{UserID: f.user.ID, Message: "something hateful"})
	require.NoError(t, err)
	assert.True(t, result.Rejected)
	assert.Equal(t, services.ModerationRejectionMessage, result.Content)
	f.gateway.AssertNotCalled(t, "Chat", mock.Anything, mock.Anything)

	var stored []models.ConversationMessage
	require.NoError(t, f.db.Where("user_id = ?", f.user.ID).Find(&stored).Error)
	require.Len(t, stored, 1)
	assert.True(t, stored[0].Flagged)

	history, err := f.convos.GetRecentMessages(ctx, f.user.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestHandleTurnDraftTrip(t *testing.T) {
	f := newAgentFixture(t)
	ctx := context.Background()

	f.moderator.On("Moderate", mock.Anything, mock.Anything).Return(false, nil)
	f.gateway.On("Chat", mock.Anything, mock.Anything).Return(&providers.ChatResponse{
		ToolCalls: []providers.ToolCall{toolCall(t, services.FunctionDraftTrip, map[string]interface{}{
			"role":           "passenger",
			"origin_text":    "Kimironko",
			"dest_text":      "Kigali Heights",
			"departure_time": "2026-10-17T08:00",
		})},
	}, nil).Once()

	result, err := f.agent.HandleTurn(ctx, services.TurnRequest{UserID: f.user.ID, Message: "I need a ride to work tomorrow at 8"})
	require.NoError(t, err)
	assert.Contains(t, result.Content, "draft")
	assert.Nil(t, result.Metadata)

	drafts, err := f.drafts.ListPendingDrafts(ctx, f.user.ID, 5, time.Now())
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	d := drafts[0]
	assert.Equal(t, models.TripRolePassenger, d.Payload.Role)
	assert.Equal(t, "Kimironko", d.Payload.OriginText)
	assert.Equal(t, 0.85, d.ConfidenceScore)
	assert.Equal(t, "user requested via chat", d.SuggestionReason)
	require.NotNil(t, d.Payload.DepartureTime)
	assert.True(t, d.Payload.DepartureTime.Equal(time.Date(2026, 10, 17, 6, 0, 0, 0, time.UTC)))

	assert.Equal(t, []string{services.EventDraftCreated}, f.events.Types())
}

func TestHandleTurnPublishTrip(t *testing.T) {
	ctx := context.Background()
	departure := time.Date(2026, 10, 20, 5, 30, 0, 0, time.UTC)
	seats := 1
	vehicle := "sedan"

	setup := func(t *testing.T) (*agentFixture, *models.DraftTrip) {
		f := newAgentFixture(t)
		d := &models.DraftTrip{
			UserID: f.user.ID,
			Payload: models.TripPayload{
				Role:          models.TripRoleDriver,
				OriginText:    "Remera",
				DestText:      "Nyabugogo",
				DepartureTime: &departure,
				Seats:         &seats,
				VehicleType:   &vehicle,
			},
			ConfidenceScore: 0.6,
			GeneratedFor:    departure,
		}
		require.NoError(t, f.drafts.CreateDraft(ctx, d))
		f.moderator.On("Moderate", mock.Anything, mock.Anything).Return(false, nil)
		return f, d
	}

	t.Run("Publishing a draft copies its fields", func(t *testing.T) {
		f, d := setup(t)
		f.gateway.On("Chat", mock.Anything, mock.MatchedBy(func(req providers.ChatRequest) bool {
			// The pending draft is offered to the model by id.
			return strings.Contains(req.System, d.ID.String())
		})).Return(&providers.ChatResponse{
			Text:      "Done!",
			ToolCalls: []providers.ToolCall{toolCall(t, services.FunctionPublishTrip, map[string]interface{}{"draft_id": d.ID.String()})},
		}, nil).Once()

		result, err := f.agent.HandleTurn(ctx, services.TurnRequest{UserID: f.user.ID, Message: "yes publish it", IdempotencyKey: "turn-1"})
		require.NoError(t, err)
		require.NotNil(t, result.Metadata)
		assert.Equal(t, true, result.Metadata["trip_published"])
		assert.NotEmpty(t, result.Metadata["summary"])

		var trip models.Trip
		require.NoError(t, f.db.Where("user_id = ?", f.user.ID).First(&trip).Error)
		assert.Equal(t, result.Metadata["trip_id"], trip.ID.String())
		assert.Equal(t, models.TripRoleDriver, trip.Role)
		assert.Equal(t, "Remera", trip.OriginText)
		assert.Equal(t, "Nyabugogo", trip.DestText)
		assert.True(t, trip.DepartureTime.Equal(departure))
		assert.Equal(t, 1, *trip.Seats)
		assert.Equal(t, "sedan", *trip.VehicleType)
		assert.Equal(t, models.TripStatusOpen, trip.Status)
		assert.Equal(t, "RWF", trip.Currency)

		got, err := f.drafts.GetDraft(ctx, d.ID)
		require.NoError(t, err)
		assert.Equal(t, models.DraftStatusAccepted, got.Status)

		var card models.ConversationMessage
		require.NoError(t, f.db.Where("user_id = ? AND role = ?", f.user.ID, models.RoleAssistant).First(&card).Error)
		assert.Equal(t, models.MessageKindTripCard, card.Kind)
		assert.Contains(t, f.events.Types(), services.EventTripPublished)
	})

	t.Run("Explicit arguments override the draft", func(t *testing.T) {
		f, d := setup(t)
		f.gateway.On("Chat", mock.Anything, mock.Anything).Return(&providers.ChatResponse{
			ToolCalls: []providers.ToolCall{toolCall(t, services.FunctionPublishTrip, map[string]interface{}{
				"draft_id": d.ID.String(),
				"seats":    3,
			})},
		}, nil).Once()

		_, err := f.agent.HandleTurn(ctx, services.TurnRequest{UserID: f.user.ID, Message: "publish with 3 seats"})
		require.NoError(t, err)

		var trip models.Trip
		require.NoError(t, f.db.Where("user_id = ?", f.user.ID).First(&trip).Error)
		assert.Equal(t, 3, *trip.Seats)
		assert.Equal(t, "Remera", trip.OriginText)
	})

	t.Run("Only the first function call runs", func(t *testing.T) {
		f, d := setup(t)
		f.gateway.On("Chat", mock.Anything, mock.Anything).Return(&providers.ChatResponse{
			ToolCalls: []providers.ToolCall{
				toolCall(t, services.FunctionPublishTrip, map[string]interface{}{"draft_id": d.ID.String()}),
				toolCall(t, services.FunctionDraftTrip, map[string]interface{}{"role": "driver", "origin_text": "X", "dest_text": "Y"}),
			},
		}, nil).Once()

		_, err := f.agent.HandleTurn(ctx, services.TurnRequest{UserID: f.user.ID, Message: "go"})
		require.NoError(t, err)

		var draftCount int64
		require.NoError(t, f.db.Model(&models.DraftTrip{}).Where("user_id = ?", f.user.ID).Count(&draftCount).Error)
		assert.Equal(t, int64(1), draftCount)
	})

	t.Run("Dismissed draft is not published", func(t *testing.T) {
		f, d := setup(t)
		_, err := f.drafts.TransitionDraft(ctx, d.ID, f.user.ID, models.DraftStatusDismissed)
		require.NoError(t, err)
		f.gateway.On("Chat", mock.Anything, mock.Anything).Return(&providers.ChatResponse{
			ToolCalls: []providers.ToolCall{toolCall(t, services.FunctionPublishTrip, map[string]interface{}{"draft_id": d.ID.String()})},
		}, nil).Once()

		result, err := f.agent.HandleTurn(ctx, services.TurnRequest{UserID: f.user.ID, Message: "publish"})
		require.NoError(t, err)
		assert.Contains(t, result.Content, "already handled")
		assert.Nil(t, result.Metadata)

		var tripCount int64
		require.NoError(t, f.db.Model(&models.Trip{}).Count(&tripCount).Error)
		assert.Zero(t, tripCount)
	})
}

func TestHandleTurnInvalidArguments(t *testing.T) {
	f := newAgentFixture(t)
	ctx := context.Background()

	f.moderator.On("Moderate", mock.Anything, mock.Anything).Return(false, nil)
	f.gateway.On("Chat", mock.Anything, mock.Anything).Return(&providers.ChatResponse{
		ToolCalls: []providers.ToolCall{toolCall(t, services.FunctionDraftTrip, map[string]interface{}{
			"role": "driver", "origin_text": "A", "dest_text": "B", "seats": 12,
		})},
	}, nil).Once()

	result, err := f.agent.HandleTurn(ctx, services.TurnRequest{UserID: f.user.ID, Message: "I'll drive 12 people"})
	require.NoError(t, err)
	assert.Contains(t, result.Content, "seats")

	var count int64
	require.NoError(t, f.db.Model(&models.DraftTrip{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestHandleTurnProviderFailure(t *testing.T) {
	f := newAgentFixture(t)
	ctx := context.Background()

	f.moderator.On("Moderate", mock.Anything, mock.Anything).Return(false, nil)
	f.gateway.On("Chat", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("%w: %w", services.ErrProvider, errors.New("timeout"))).Once()

	_, err := f.agent.HandleTurn(ctx, services.TurnRequest{UserID: f.user.ID, Message: "hello"})
	assert.ErrorIs(t, err, services.ErrProvider)
}

func TestHandleTurnModerationFailure(t *testing.T) {
	f := newAgentFixture(t)
	ctx := context.Background()

	f.moderator.On("Moderate", mock.Anything, mock.Anything).Return(false, errors.New("moderation down"))

	_, err := f.agent.HandleTurn(ctx, services.TurnRequest{UserID: f.user.ID, Message: "hello"})
	assert.ErrorIs(t, err, services.ErrProvider)
	f.gateway.AssertNotCalled(t, "Chat", mock.Anything, mock.Anything)
	assert.GreaterOrEqual(t, f.reporter.Count(), 1)
}

func TestHandleTurnUnknownUser(t *testing.T) {
	f := newAgentFixture(t)
	_, err := f.agent.HandleTurn(context.Background(), services.TurnRequest{UserID: uuid.New(), Message: "hi"})
	assert.ErrorIs(t, err, services.ErrUserNotFound)
}
