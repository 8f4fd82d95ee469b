package services

import (
	"context"
	"fmt"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/google/uuid"
)

const draftEventDuration = 30 * time.Minute

// CalendarService exports pending drafts as an iCalendar feed so users can
// see suggested trips next to their other plans.
type CalendarService struct {
	drafts DraftTripServiceDB
	limit  int
}

func NewCalendarService(drafts DraftTripServiceDB, limit int) *CalendarService {
	if limit <= 0 {
		limit = DefaultDraftListLimit
	}
	return &CalendarService{drafts: drafts, limit: limit}
}

// PendingDraftsICS renders pending drafts with a departure time. Drafts
// without one have nothing to put on a calendar and are skipped.
func (s *CalendarService) PendingDraftsICS(ctx context.Context, userID uuid.UUID, now time.Time) (string, error) {
	drafts, err := s.drafts.ListPendingDrafts(ctx, userID, s.limit, now)
	if err != nil {
		return "", err
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//tripmind//draft trips//EN")

	for _, d := range drafts {
		if d.Payload.DepartureTime == nil {
			continue
		}
		start := d.Payload.DepartureTime.UTC()
		event := cal.AddEvent(d.ID.String() + "@tripmind")
		event.SetDtStampTime(now.UTC())
		event.SetCreatedTime(d.CreatedAt.UTC())
		event.SetStartAt(start)
		event.SetEndAt(start.Add(draftEventDuration))
		event.SetSummary(fmt.Sprintf("%s → %s (%s)", d.Payload.OriginText, d.Payload.DestText, d.Payload.Role))
		event.SetLocation(d.Payload.OriginText)
		event.SetDescription(fmt.Sprintf("%s. Confidence %.0f%%.", d.SuggestionReason, d.ConfidenceScore*100))
	}
	return cal.Serialize(), nil
}
