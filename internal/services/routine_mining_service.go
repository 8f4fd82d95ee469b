package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"tripmind_go_backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

const (
	DayTypeWeekday = "weekday"
	DayTypeWeekend = "weekend"

	SlotEarlyMorning = "early_morning"
	SlotMorning      = "morning"
	SlotLateMorning  = "late_morning"
	SlotLunch        = "lunch"
	SlotAfternoon    = "afternoon"
	SlotEveningRush  = "evening_rush"
	SlotEvening      = "evening"
	SlotLateNight    = "late_night"

	DefaultRoutineLookback    = 30 * 24 * time.Hour
	DefaultMaxSuggestions     = 3
	minPatternTrips           = 2
	confidenceTripsForCertain = 10
)

// RoutinePattern is a repeated trip for one (day type, time slot) key.
type RoutinePattern struct {
	TimePattern  string `json:"time_pattern"`
	DayType      string `json:"day_type"`
	TimeSlot     string `json:"time_slot"`
	CommonOrigin string `json:"common_origin"`
	CommonDest   string `json:"common_dest"`
	// AvgDepartureMinutes is minutes after local midnight.
	AvgDepartureMinutes int `json:"avg_departure_minutes"`
	TripCount           int `json:"trip_count"`
}

func (p RoutinePattern) AvgDepartureTime() string {
	return fmt.Sprintf("%02d:%02d", p.AvgDepartureMinutes/60, p.AvgDepartureMinutes%60)
}

func (p RoutinePattern) Confidence() float64 {
	return ConfidenceFor(p.TripCount)
}

func DayTypeOf(t time.Time) string {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return DayTypeWeekend
	default:
		return DayTypeWeekday
	}
}

func TimeSlotOf(t time.Time) string {
	h := t.Hour()
	switch {
	case h >= 5 && h < 7:
		return SlotEarlyMorning
	case h >= 7 && h < 9:
		return SlotMorning
	case h >= 9 && h < 12:
		return SlotLateMorning
	case h >= 12 && h < 14:
		return SlotLunch
	case h >= 14 && h < 17:
		return SlotAfternoon
	case h >= 17 && h < 19:
		return SlotEveningRush
	case h >= 19 && h < 23:
		return SlotEvening
	default:
		return SlotLateNight
	}
}

func PatternKeyOf(t time.Time) string {
	return DayTypeOf(t) + "_" + TimeSlotOf(t)
}

// ConfidenceFor maps a trip count to a score in [0, 1].
func ConfidenceFor(tripCount int) float64 {
	return ClampConfidence(float64(tripCount) / confidenceTripsForCertain)
}

type routeKey struct {
	origin string
	dest   string
}

// MinePatterns groups history by the (day type, time slot) of each departure
// in loc. Keys with at least two trips become patterns, ranked by trip count
// with the key matching now first on ties. The result is deterministic for a
// given history and now.
func MinePatterns(history []models.TripHistory, loc *time.Location, now time.Time, limit int) []RoutinePattern {
	if loc == nil {
		loc = time.UTC
	}
	if limit <= 0 {
		limit = DefaultMaxSuggestions
	}

	groups := lo.GroupBy(history, func(h models.TripHistory) string {
		return PatternKeyOf(h.DepartureTime.In(loc))
	})

	patterns := make([]RoutinePattern, 0, len(groups))
	for key, trips := range groups {
		if len(trips) < minPatternTrips {
			continue
		}
		first := trips[0].DepartureTime.In(loc)
		origin, dest := modalRoute(trips)
		patterns = append(patterns, RoutinePattern{
			TimePattern:         key,
			DayType:             DayTypeOf(first),
			TimeSlot:            TimeSlotOf(first),
			CommonOrigin:        origin,
			CommonDest:          dest,
			AvgDepartureMinutes: averageMinutes(trips, loc),
			TripCount:           len(trips),
		})
	}

	current := PatternKeyOf(now.In(loc))
	sort.Slice(patterns, func(i, j int) bool {
		a, b := patterns[i], patterns[j]
		if a.TripCount != b.TripCount {
			return a.TripCount > b.TripCount
		}
		if (a.TimePattern == current) != (b.TimePattern == current) {
			return a.TimePattern == current
		}
		return a.TimePattern < b.TimePattern
	})

	if len(patterns) > limit {
		patterns = patterns[:limit]
	}
	return patterns
}

// modalRoute picks the most frequent origin/dest pair. Ties go to the
// lexically smallest pair.
func modalRoute(trips []models.TripHistory) (string, string) {
	counts := lo.CountValuesBy(trips, func(h models.TripHistory) routeKey {
		return routeKey{origin: h.OriginText, dest: h.DestText}
	})
	var best routeKey
	bestCount := 0
	for k, n := range counts {
		if n > bestCount || (n == bestCount && lessRoute(k, best)) {
			best, bestCount = k, n
		}
	}
	return best.origin, best.dest
}

func lessRoute(a, b routeKey) bool {
	if a.origin != b.origin {
		return a.origin < b.origin
	}
	return a.dest < b.dest
}

// averageMinutes averages local departure times. Late-night departures after
// midnight are shifted a day forward so the mean does not land at noon.
func averageMinutes(trips []models.TripHistory, loc *time.Location) int {
	minutes := lo.Map(trips, func(h models.TripHistory, _ int) int {
		t := h.DepartureTime.In(loc)
		m := t.Hour()*60 + t.Minute()
		if TimeSlotOf(t) == SlotLateNight && t.Hour() < 5 {
			m += 24 * 60
		}
		return m
	})
	avg := lo.Sum(minutes) / len(minutes)
	return avg % (24 * 60)
}

// NextOccurrence is the first moment strictly after now, in loc, that falls
// on the pattern's day type at its average departure time.
func NextOccurrence(p RoutinePattern, loc *time.Location, now time.Time) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	hour, minute := p.AvgDepartureMinutes/60, p.AvgDepartureMinutes%60
	for i := 0; i <= 7; i++ {
		day := local.AddDate(0, 0, i)
		candidate := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc)
		if candidate.After(local) && DayTypeOf(candidate) == p.DayType {
			return candidate
		}
	}
	return time.Date(local.Year(), local.Month(), local.Day()+1, hour, minute, 0, 0, loc)
}

// RoutineMiningService turns trip history into suggested drafts.
type RoutineMiningService struct {
	trips          TripServiceDB
	drafts         DraftTripServiceDB
	lookback       time.Duration
	maxSuggestions int
	logger         zerolog.Logger
}

func NewRoutineMiningService(trips TripServiceDB, drafts DraftTripServiceDB, lookback time.Duration, logger zerolog.Logger) *RoutineMiningService {
	if lookback <= 0 {
		lookback = DefaultRoutineLookback
	}
	return &RoutineMiningService{
		trips:          trips,
		drafts:         drafts,
		lookback:       lookback,
		maxSuggestions: DefaultMaxSuggestions,
		logger:         logger.With().Str("component", "routine_mining").Logger(),
	}
}

// Patterns mines the user's recent history. It has no side effects.
func (s *RoutineMiningService) Patterns(ctx context.Context, userID uuid.UUID, loc *time.Location, now time.Time) ([]RoutinePattern, error) {
	history, err := s.trips.GetTripHistory(ctx, userID, now.Add(-s.lookback))
	if err != nil {
		return nil, err
	}
	return MinePatterns(history, loc, now, s.maxSuggestions), nil
}

// Suggestions builds unsaved drafts for the mined patterns.
func (s *RoutineMiningService) Suggestions(ctx context.Context, userID uuid.UUID, loc *time.Location, now time.Time) ([]models.DraftTrip, error) {
	patterns, err := s.Patterns(ctx, userID, loc, now)
	if err != nil {
		return nil, err
	}
	return lo.Map(patterns, func(p RoutinePattern, _ int) models.DraftTrip {
		return SuggestionFromPattern(userID, p, loc, now)
	}), nil
}

// GenerateSuggestions persists suggestions, replacing any pending draft for
// the same pattern. Running it twice with the same inputs leaves the same set.
func (s *RoutineMiningService) GenerateSuggestions(ctx context.Context, userID uuid.UUID, loc *time.Location, now time.Time) ([]models.DraftTrip, error) {
	suggestions, err := s.Suggestions(ctx, userID, loc, now)
	if err != nil {
		return nil, err
	}
	for i := range suggestions {
		if err := s.drafts.UpsertSuggestion(ctx, &suggestions[i]); err != nil {
			return nil, err
		}
	}
	s.logger.Info().
		Str("userID", userID.String()).
		Int("count", len(suggestions)).
		Msg("Generated routine suggestions")
	return suggestions, nil
}

func SuggestionFromPattern(userID uuid.UUID, p RoutinePattern, loc *time.Location, now time.Time) models.DraftTrip {
	departure := NextOccurrence(p, loc, now)
	return models.DraftTrip{
		UserID: userID,
		Payload: models.TripPayload{
			Role:          models.TripRolePassenger,
			OriginText:    p.CommonOrigin,
			DestText:      p.CommonDest,
			DepartureTime: &departure,
		},
		ConfidenceScore:  p.Confidence(),
		SuggestionReason: fmt.Sprintf("You usually travel %s → %s on %s %s (%d trips)", p.CommonOrigin, p.CommonDest, p.DayType, slotLabel(p.TimeSlot), p.TripCount),
		GeneratedFor:     departure,
		PatternKey:       p.TimePattern,
		Status:           models.DraftStatusPending,
	}
}

func slotLabel(slot string) string {
	switch slot {
	case SlotEarlyMorning:
		return "early mornings"
	case SlotMorning:
		return "mornings"
	case SlotLateMorning:
		return "late mornings"
	case SlotLunch:
		return "lunchtimes"
	case SlotAfternoon:
		return "afternoons"
	case SlotEveningRush:
		return "evening rush hours"
	case SlotEvening:
		return "evenings"
	default:
		return "late nights"
	}
}
