package services_test

import (
	"encoding/json"
	"testing"
	"time"

	"tripmind_go_backend/internal/models"
	"tripmind_go_backend/internal/providers"
	"tripmind_go_backend/internal/services"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func toolCall(t *testing.T, name string, args map[string]interface{}) providers.ToolCall {
	t.Helper()
	raw, err := json.Marshal(args)
	require.NoError(t, err)
	return providers.ToolCall{ID: "call_1", Name: name, Arguments: raw}
}

func TestParseTripIntent(t *testing.T) {
	kigali, err := time.LoadLocation("Africa/Kigali")
	require.NoError(t, err)

	t.Run("Valid draft", func(t *testing.T) {
		intent, err := services.ParseTripIntent(toolCall(t, services.FunctionDraftTrip, map[string]interface{}{
			"role":           "Passenger",
			"origin_text":    " Kimironko ",
			"dest_text":      "Downtown",
			"departure_time": "2026-10-17T08:00",
			"seats":          2,
		}), kigali)
		require.NoError(t, err)

		draft, ok := intent.(services.DraftTripCall)
		require.True(t, ok)
		assert.Equal(t, models.TripRolePassenger, draft.Payload.Role)
		assert.Equal(t, "Kimironko", draft.Payload.OriginText)
		require.NotNil(t, draft.Payload.DepartureTime)
		assert.True(t, draft.Payload.DepartureTime.Equal(time.Date(2026, 10, 17, 6, 0, 0, 0, time.UTC)))
		assert.Equal(t, 2, *draft.Payload.Seats)
	})

	t.Run("Draft without departure is allowed", func(t *testing.T) {
		intent, err := services.ParseTripIntent(toolCall(t, services.FunctionDraftTrip, map[string]interface{}{
			"role": "driver", "origin_text": "A", "dest_text": "B",
		}), time.UTC)
		require.NoError(t, err)
		assert.Equal(t, services.FunctionDraftTrip, intent.FunctionName())
	})

	invalid := map[string]map[string]interface{}{
		"bad role":        {"role": "pilot", "origin_text": "A", "dest_text": "B"},
		"missing origin":  {"role": "driver", "dest_text": "B"},
		"too many seats":  {"role": "driver", "origin_text": "A", "dest_text": "B", "seats": 9},
		"zero seats":      {"role": "driver", "origin_text": "A", "dest_text": "B", "seats": 0},
		"bad time":        {"role": "driver", "origin_text": "A", "dest_text": "B", "departure_time": "tomorrow"},
		"fractional seat": {"role": "driver", "origin_text": "A", "dest_text": "B", "seats": 1.5},
	}
	for name, args := range invalid {
		args := args
		t.Run("Rejects "+name, func(t *testing.T) {
			_, err := services.ParseTripIntent(toolCall(t, services.FunctionDraftTrip, args), time.UTC)
			assert.ErrorIs(t, err, services.ErrInvalidIntent)
		})
	}

	t.Run("Publish by draft id only", func(t *testing.T) {
		id := uuid.New()
		intent, err := services.ParseTripIntent(toolCall(t, services.FunctionPublishTrip, map[string]interface{}{
			"draft_id": id.String(),
		}), time.UTC)
		require.NoError(t, err)
		publish := intent.(services.PublishTripCall)
		require.NotNil(t, publish.DraftID)
		assert.Equal(t, id, *publish.DraftID)
	})

	t.Run("Publish without draft needs departure", func(t *testing.T) {
		_, err := services.ParseTripIntent(toolCall(t, services.FunctionPublishTrip, map[string]interface{}{
			"role": "driver", "origin_text": "A", "dest_text": "B",
		}), time.UTC)
		assert.ErrorIs(t, err, services.ErrInvalidIntent)
	})

	t.Run("Publish with malformed draft id", func(t *testing.T) {
		_, err := services.ParseTripIntent(toolCall(t, services.FunctionPublishTrip, map[string]interface{}{
			"draft_id": "not-a-uuid",
		}), time.UTC)
		assert.ErrorIs(t, err, services.ErrInvalidIntent)
	})

	t.Run("Unknown function", func(t *testing.T) {
		_, err := services.ParseTripIntent(providers.ToolCall{Name: "bookHotel"}, time.UTC)
		assert.ErrorIs(t, err, services.ErrUnknownFunction)
	})
}

func TestMergePayload(t *testing.T) {
	departure := time.Date(2026, 10, 20, 7, 0, 0, 0, time.UTC)
	seats := 1
	base := models.TripPayload{Role: "driver", OriginText: "A", DestText: "B", DepartureTime: &departure, Seats: &seats}

	override := 3
	merged := services.MergePayload(base, models.TripPayload{Seats: &override})
	assert.Equal(t, 3, *merged.Seats)
	assert.Equal(t, "A", merged.OriginText)
	assert.Equal(t, &departure, merged.DepartureTime)
	assert.Equal(t, 1, *base.Seats)
}

func TestTripToolsDeclareBothFunctions(t *testing.T) {
	tools := services.TripTools()
	require.Len(t, tools, 2)
	assert.Equal(t, services.FunctionDraftTrip, tools[0].Name)
	assert.Equal(t, services.FunctionPublishTrip, tools[1].Name)
	assert.Contains(t, tools[1].Parameters.Properties, "draft_id")
	assert.NotContains(t, tools[0].Parameters.Properties, "draft_id")
}
