package services_test

import (
	"context"
	"testing"
	"time"

	"tripmind_go_backend/internal/models"
	"tripmind_go_backend/internal/services"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDraft(userID uuid.UUID, confidence float64, generatedFor time.Time) *models.DraftTrip {
	return &models.DraftTrip{
		UserID:           userID,
		Payload:          models.TripPayload{Role: models.TripRolePassenger, OriginText: "Home", DestText: "Office", DepartureTime: &generatedFor},
		ConfidenceScore:  confidence,
		SuggestionReason: "test",
		GeneratedFor:     generatedFor,
	}
}

func TestDraftTripServiceDB(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	store := services.NewDraftTripServiceDB(db, 24*time.Hour)
	now := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

	t.Run("Lists pending drafts by confidence with a limit", func(t *testing.T) {
		userID := uuid.New()
		for _, c := range []float64{0.2, 0.9, 0.5, 0.7, 0.1, 0.6} {
			require.NoError(t, store.CreateDraft(ctx, newDraft(userID, c, now.Add(time.Hour))))
		}
		drafts, err := store.ListPendingDrafts(ctx, userID, 5, now)
		require.NoError(t, err)
		require.Len(t, drafts, 5)
		assert.Equal(t, 0.9, drafts[0].ConfidenceScore)
		assert.Equal(t, 0.2, drafts[4].ConfidenceScore)
	})

	t.Run("Hides stale drafts", func(t *testing.T) {
		userID := uuid.New()
		require.NoError(t, store.CreateDraft(ctx, newDraft(userID, 0.9, now.Add(-48*time.Hour))))
		require.NoError(t, store.CreateDraft(ctx, newDraft(userID, 0.4, now.Add(-time.Hour))))

		drafts, err := store.ListPendingDrafts(ctx, userID, 5, now)
		require.NoError(t, err)
		require.Len(t, drafts, 1)
		assert.Equal(t, 0.4, drafts[0].ConfidenceScore)
	})

	t.Run("Clamps confidence", func(t *testing.T) {
		userID := uuid.New()
		d := newDraft(userID, 1.7, now)
		require.NoError(t, store.CreateDraft(ctx, d))
		assert.Equal(t, 1.0, d.ConfidenceScore)
	})

	t.Run("Transitions are monotonic", func(t *testing.T) {
		userID := uuid.New()
		d := newDraft(userID, 0.5, now)
		require.NoError(t, store.CreateDraft(ctx, d))

		updated, err := store.TransitionDraft(ctx, d.ID, userID, models.DraftStatusDismissed)
		require.NoError(t, err)
		assert.Equal(t, models.DraftStatusDismissed, updated.Status)

		_, err = store.TransitionDraft(ctx, d.ID, userID, models.DraftStatusAccepted)
		assert.ErrorIs(t, err, services.ErrInvalidTransition)

		_, err = store.TransitionDraft(ctx, d.ID, userID, models.DraftStatusPending)
		assert.ErrorIs(t, err, services.ErrInvalidStatus)

		got, err := store.GetDraft(ctx, d.ID)
		require.NoError(t, err)
		assert.Equal(t, models.DraftStatusDismissed, got.Status)

		drafts, err := store.ListPendingDrafts(ctx, userID, 5, now)
		require.NoError(t, err)
		assert.Empty(t, drafts)
	})

	t.Run("Foreign drafts are not found", func(t *testing.T) {
		d := newDraft(uuid.New(), 0.5, now)
		require.NoError(t, store.CreateDraft(ctx, d))
		_, err := store.TransitionDraft(ctx, d.ID, uuid.New(), models.DraftStatusAccepted)
		assert.ErrorIs(t, err, services.ErrDraftNotFound)

		_, err = store.GetDraft(ctx, uuid.New())
		assert.ErrorIs(t, err, services.ErrDraftNotFound)
	})

	t.Run("Upsert replaces the pending suggestion for a pattern", func(t *testing.T) {
		userID := uuid.New()
		first := newDraft(userID, 0.3, now)
		first.PatternKey = "weekday_morning"
		require.NoError(t, store.UpsertSuggestion(ctx, first))

		second := newDraft(userID, 0.4, now.Add(time.Hour))
		second.PatternKey = "weekday_morning"
		second.Payload.DestText = "Campus"
		require.NoError(t, store.UpsertSuggestion(ctx, second))
		assert.Equal(t, first.ID, second.ID)

		drafts, err := store.ListPendingDrafts(ctx, userID, 5, now)
		require.NoError(t, err)
		require.Len(t, drafts, 1)
		assert.Equal(t, "Campus", drafts[0].Payload.DestText)
		assert.Equal(t, 0.4, drafts[0].ConfidenceScore)
	})
}
