package services_test

import (
	"testing"

	"tripmind_go_backend/internal/models"
	"tripmind_go_backend/internal/services"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockTimezoneFinder struct {
	mock.Mock
}

func (m *MockTimezoneFinder) GetTimezoneName(lng float64, lat float64) string {
	return m.Called(lng, lat).String(0)
}

func TestLocaleResolver(t *testing.T) {
	finder := new(MockTimezoneFinder)
	resolver := services.NewLocaleResolver(finder, services.LocaleDefaults{}, zerolog.Nop())

	t.Run("Profile drives country and currency", func(t *testing.T) {
		info := resolver.Resolve(&models.User{Country: "rw", Timezone: "Africa/Kigali"}, services.ClientContext{})
		assert.Equal(t, "RW", info.Country)
		assert.Equal(t, "RWF", info.Currency)
		assert.Equal(t, "Africa/Kigali", info.Location.String())
	})

	t.Run("Client hints win over profile", func(t *testing.T) {
		info := resolver.Resolve(&models.User{Country: "RW"}, services.ClientContext{Country: "JP", Timezone: "Asia/Tokyo"})
		assert.Equal(t, "JPY", info.Currency)
		assert.Equal(t, "Asia/Tokyo", info.Location.String())
	})

	t.Run("Locale implies country", func(t *testing.T) {
		info := resolver.Resolve(nil, services.ClientContext{Locale: "fr-FR"})
		assert.Equal(t, "FR", info.Country)
		assert.Equal(t, "EUR", info.Currency)
	})

	t.Run("Coordinates resolve the zone", func(t *testing.T) {
		lat, lng := -1.9441, 30.0619
		finder.On("GetTimezoneName", lng, lat).Return("Africa/Kigali").Once()
		info := resolver.Resolve(nil, services.ClientContext{Latitude: &lat, Longitude: &lng})
		assert.Equal(t, "Africa/Kigali", info.Location.String())
		finder.AssertExpectations(t)
	})

	t.Run("Unknown zone falls back to default", func(t *testing.T) {
		info := resolver.Resolve(&models.User{Timezone: "Mars/Olympus"}, services.ClientContext{})
		assert.Equal(t, "UTC", info.Location.String())
		assert.Equal(t, "en-US", info.Locale)
		assert.Equal(t, "USD", info.Currency)
	})
}
