package services

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"tripmind_go_backend/internal/models"
	"tripmind_go_backend/internal/providers"

	"github.com/google/uuid"
)

const (
	FunctionDraftTrip   = "draftTrip"
	FunctionPublishTrip = "publishTrip"

	MinSeats = 1
	MaxSeats = 8
)

var departureLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// TripIntent is a validated function call from the model: either a
// DraftTripCall or a PublishTripCall.
type TripIntent interface {
	FunctionName() string
}

type DraftTripCall struct {
	Payload models.TripPayload
}

func (DraftTripCall) FunctionName() string { return FunctionDraftTrip }

// PublishTripCall holds the explicit arguments. Zero fields are filled from
// the referenced draft, if any.
type PublishTripCall struct {
	DraftID *uuid.UUID
	Payload models.TripPayload
}

func (PublishTripCall) FunctionName() string { return FunctionPublishTrip }

type tripArgs struct {
	DraftID       *string `json:"draft_id"`
	Role          string  `json:"role"`
	OriginText    string  `json:"origin_text"`
	DestText      string  `json:"dest_text"`
	DepartureTime string  `json:"departure_time"`
	Seats         *int    `json:"seats"`
	VehicleType   *string `json:"vehicle_type"`
}

// TripTools declares the functions the chat model may call.
func TripTools() []providers.ToolSpec {
	tripProps := func() map[string]*providers.ParamSchema {
		return map[string]*providers.ParamSchema{
			"role": {
				Type:        "string",
				Description: "Whether the user drives or rides",
				Enum:        []string{models.TripRoleDriver, models.TripRolePassenger},
			},
			"origin_text":    {Type: "string", Description: "Where the trip starts, as the user said it"},
			"dest_text":      {Type: "string", Description: "Where the trip ends, as the user said it"},
			"departure_time": {Type: "string", Description: "Departure in ISO 8601, local time of the user when no offset is given"},
			"seats":          {Type: "integer", Description: "Seats offered or needed, 1 to 8"},
			"vehicle_type":   {Type: "string", Description: "Vehicle type, for drivers"},
		}
	}

	publishProps := tripProps()
	publishProps["draft_id"] = &providers.ParamSchema{Type: "string", Description: "ID of a pending draft to publish"}

	return []providers.ToolSpec{
		{
			Name:        FunctionDraftTrip,
			Description: "Save a trip the user described as a draft for later review. Does not publish anything.",
			Parameters: &providers.ParamSchema{
				Type:       "object",
				Properties: tripProps(),
				Required:   []string{"role", "origin_text", "dest_text"},
			},
		},
		{
			Name:        FunctionPublishTrip,
			Description: "Publish a trip once the user has clearly confirmed it. Pass draft_id to publish a pending draft; explicit fields override the draft.",
			Parameters: &providers.ParamSchema{
				Type:       "object",
				Properties: publishProps,
			},
		},
	}
}

// ParseTripIntent validates a tool call before anything is executed.
// Departure times without an offset are read in loc.
func ParseTripIntent(call providers.ToolCall, loc *time.Location) (TripIntent, error) {
	if call.Name != FunctionDraftTrip && call.Name != FunctionPublishTrip {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFunction, call.Name)
	}

	var args tripArgs
	if len(call.Arguments) > 0 {
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			return nil, fmt.Errorf("%w: malformed arguments: %v", ErrInvalidIntent, err)
		}
	}

	payload, err := payloadFromArgs(args, loc)
	if err != nil {
		return nil, err
	}

	if call.Name == FunctionDraftTrip {
		if err := ValidateTripPayload(payload, false); err != nil {
			return nil, err
		}
		return DraftTripCall{Payload: payload}, nil
	}

	out := PublishTripCall{Payload: payload}
	if args.DraftID != nil && strings.TrimSpace(*args.DraftID) != "" {
		id, err := uuid.Parse(strings.TrimSpace(*args.DraftID))
		if err != nil {
			return nil, fmt.Errorf("%w: draft_id is not a valid id", ErrInvalidIntent)
		}
		out.DraftID = &id
		return out, nil
	}
	if err := ValidateTripPayload(payload, true); err != nil {
		return nil, err
	}
	return out, nil
}

func payloadFromArgs(args tripArgs, loc *time.Location) (models.TripPayload, error) {
	payload := models.TripPayload{
		Role:       strings.ToLower(strings.TrimSpace(args.Role)),
		OriginText: strings.TrimSpace(args.OriginText),
		DestText:   strings.TrimSpace(args.DestText),
		Seats:      args.Seats,
	}
	if args.VehicleType != nil {
		if v := strings.TrimSpace(*args.VehicleType); v != "" {
			payload.VehicleType = &v
		}
	}
	if args.DepartureTime != "" {
		t, err := ParseDepartureTime(args.DepartureTime, loc)
		if err != nil {
			return payload, err
		}
		payload.DepartureTime = &t
	}
	if payload.Role != "" && payload.Role != models.TripRoleDriver && payload.Role != models.TripRolePassenger {
		return payload, fmt.Errorf("%w: role must be driver or passenger", ErrInvalidIntent)
	}
	if payload.Seats != nil && (*payload.Seats < MinSeats || *payload.Seats > MaxSeats) {
		return payload, fmt.Errorf("%w: seats must be between %d and %d", ErrInvalidIntent, MinSeats, MaxSeats)
	}
	return payload, nil
}

// ValidateTripPayload checks required fields. Publishing also needs a
// departure time.
func ValidateTripPayload(p models.TripPayload, requireDeparture bool) error {
	if p.Role != models.TripRoleDriver && p.Role != models.TripRolePassenger {
		return fmt.Errorf("%w: role must be driver or passenger", ErrInvalidIntent)
	}
	if p.OriginText == "" || p.DestText == "" {
		return fmt.Errorf("%w: origin and destination are required", ErrInvalidIntent)
	}
	if requireDeparture && p.DepartureTime == nil {
		return fmt.Errorf("%w: departure time is required", ErrInvalidIntent)
	}
	if p.Seats != nil && (*p.Seats < MinSeats || *p.Seats > MaxSeats) {
		return fmt.Errorf("%w: seats must be between %d and %d", ErrInvalidIntent, MinSeats, MaxSeats)
	}
	return nil
}

// ParseDepartureTime accepts RFC 3339 or a local date-time read in loc.
func ParseDepartureTime(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range departureLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: departure_time %q is not an ISO 8601 date-time", ErrInvalidIntent, value)
}

// MergePayload overlays explicit publish arguments on a stored draft.
func MergePayload(base, explicit models.TripPayload) models.TripPayload {
	out := base
	if explicit.Role != "" {
		out.Role = explicit.Role
	}
	if explicit.OriginText != "" {
		out.OriginText = explicit.OriginText
	}
	if explicit.DestText != "" {
		out.DestText = explicit.DestText
	}
	if explicit.DepartureTime != nil {
		out.DepartureTime = explicit.DepartureTime
	}
	if explicit.Seats != nil {
		out.Seats = explicit.Seats
	}
	if explicit.VehicleType != nil {
		out.VehicleType = explicit.VehicleType
	}
	return out
}
