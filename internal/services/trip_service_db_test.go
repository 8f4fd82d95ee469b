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
	"gorm.io/gorm"
)

func TestTripServiceDB(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	trips := services.NewTripServiceDB(db)
	drafts := services.NewDraftTripServiceDB(db, 0)
	departure := time.Date(2026, 10, 15, 7, 30, 0, 0, time.UTC)

	baseTrip := func(userID uuid.UUID) models.Trip {
		return models.Trip{
			UserID:        userID,
			Role:          models.TripRoleDriver,
			OriginText:    "Home",
			DestText:      "Office",
			DepartureTime: departure,
			Currency:      "RWF",
		}
	}

	t.Run("Publishes trip and history", func(t *testing.T) {
		userID := uuid.New()
		trip, created, err := trips.PublishTrip(ctx, services.PublishInput{
			Trip:           baseTrip(userID),
			RouteEmbedding: []float32{0.1, 0.2, 0.3},
		})
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, models.TripStatusOpen, trip.Status)

		history, err := trips.GetTripHistory(ctx, userID, departure.Add(-time.Hour))
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, trip.ID, *history[0].TripID)
		require.NotNil(t, history[0].RouteEmbedding)
		assert.Equal(t, []float32{0.1, 0.2, 0.3}, history[0].RouteEmbedding.Slice())
	})

	t.Run("Accepts the draft atomically", func(t *testing.T) {
		userID := uuid.New()
		d := newDraft(userID, 0.8, departure)
		require.NoError(t, drafts.CreateDraft(ctx, d))

		trip, created, err := trips.PublishTrip(ctx, services.PublishInput{Trip: baseTrip(userID), DraftID: &d.ID})
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, d.ID, *trip.DraftID)

		got, err := drafts.GetDraft(ctx, d.ID)
		require.NoError(t, err)
		assert.Equal(t, models.DraftStatusAccepted, got.Status)

		again, created, err := trips.PublishTrip(ctx, services.PublishInput{Trip: baseTrip(userID), DraftID: &d.ID})
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, trip.ID, again.ID)

		var count int64
		require.NoError(t, db.Model(&models.Trip{}).Where("user_id = ?", userID).Count(&count).Error)
		assert.Equal(t, int64(1), count)
	})

	t.Run("Dismissed draft cannot be published", func(t *testing.T) {
		userID := uuid.New()
		d := newDraft(userID, 0.8, departure)
		require.NoError(t, drafts.CreateDraft(ctx, d))
		_, err := drafts.TransitionDraft(ctx, d.ID, userID, models.DraftStatusDismissed)
		require.NoError(t, err)

		_, _, err = trips.PublishTrip(ctx, services.PublishInput{Trip: baseTrip(userID), DraftID: &d.ID})
		assert.ErrorIs(t, err, services.ErrInvalidTransition)

		history, err := trips.GetTripHistory(ctx, userID, time.Time{})
		require.NoError(t, err)
		assert.Empty(t, history)
	})

	t.Run("Idempotency key replays the first trip", func(t *testing.T) {
		userID := uuid.New()
		first, created, err := trips.PublishTrip(ctx, services.PublishInput{Trip: baseTrip(userID), IdempotencyKey: "turn-42"})
		require.NoError(t, err)
		assert.True(t, created)

		second, created, err := trips.PublishTrip(ctx, services.PublishInput{Trip: baseTrip(userID), IdempotencyKey: "turn-42"})
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.ID, second.ID)

		listed, err := trips.ListTrips(ctx, userID, 10)
		require.NoError(t, err)
		assert.Len(t, listed, 1)
	})

	t.Run("GetTrip is scoped to the owner", func(t *testing.T) {
		userID := uuid.New()
		trip, _, err := trips.PublishTrip(ctx, services.PublishInput{Trip: baseTrip(userID)})
		require.NoError(t, err)

		got, err := trips.GetTrip(ctx, trip.ID, userID)
		require.NoError(t, err)
		assert.Equal(t, "Office", got.DestText)

		_, err = trips.GetTrip(ctx, trip.ID, uuid.New())
		assert.ErrorIs(t, err, services.ErrTripNotFound)
	})
}

func TestTripServiceDBConcurrentRetry(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	trips := services.NewTripServiceDB(db)
	userID := uuid.New()
	key := "retry-1"
	departure := time.Date(2026, 10, 15, 7, 30, 0, 0, time.UTC)

	// Another retry lands the same key between the lookup and the insert.
	var (
		competing  models.Trip
		competeErr error
		raced      bool
	)
	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test:competing_retry", func(d *gorm.DB) {
		trip, ok := d.Statement.Dest.(*models.Trip)
		if !ok || raced || trip.IdempotencyKey == nil || *trip.IdempotencyKey != key {
			return
		}
		raced = true
		competingKey := key
		competing = models.Trip{
			UserID:         userID,
			Role:           models.TripRolePassenger,
			OriginText:     "Home",
			DestText:       "Airport",
			DepartureTime:  departure,
			Status:         models.TripStatusOpen,
			IdempotencyKey: &competingKey,
		}
		competeErr = d.Session(&gorm.Session{NewDB: true}).Create(&competing).Error
	}))

	trip, created, err := trips.PublishTrip(ctx, services.PublishInput{
		Trip: models.Trip{
			UserID:        userID,
			Role:          models.TripRolePassenger,
			OriginText:    "Home",
			DestText:      "Airport",
			DepartureTime: departure,
		},
		IdempotencyKey: key,
	})
	require.True(t, raced)
	require.NoError(t, competeErr)
	require.NoError(t, err)
	assert.False(t, created)
	require.NotNil(t, trip)
	assert.Equal(t, competing.ID, trip.ID)

	var count int64
	require.NoError(t, db.Model(&models.Trip{}).Where("user_id = ?", userID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
