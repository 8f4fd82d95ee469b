package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"tripmind_go_backend/internal/models"
	"tripmind_go_backend/internal/providers"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
)

const (
	DefaultHistoryWindow = 10

	ModerationRejectionMessage = "I can't help with that message. Please keep the conversation about planning your trips."

	chatDraftConfidence = 0.85
	chatDraftReason     = "user requested via chat"

	EventDraftCreated  = "draft_created"
	EventTripPublished = "trip_published"
)

type TurnRequest struct {
	UserID         uuid.UUID
	Message        string
	Context        ClientContext
	IdempotencyKey string
}

type TurnResult struct {
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Rejected bool                   `json:"-"`
}

type AgentDeps struct {
	Gateway       ChatGateway
	Moderator     providers.Moderator
	Users         UserLookup
	Conversations ConversationServiceDB
	Drafts        DraftTripServiceDB
	Trips         TripServiceDB
	Routines      SuggestionSource
	Embeddings    RouteEmbedder
	Locales       *LocaleResolver
	Events        EventPublisher
	Reporter      ErrorReporter
}

// AgentService runs one conversational turn: moderation, context building,
// the model call and at most one trip function.
type AgentService struct {
	deps          AgentDeps
	historyWindow int
	draftLimit    int
	logger        zerolog.Logger
	now           func() time.Time
}

func NewAgentService(deps AgentDeps, historyWindow int, logger zerolog.Logger) *AgentService {
	if historyWindow <= 0 {
		historyWindow = DefaultHistoryWindow
	}
	return &AgentService{
		deps:          deps,
		historyWindow: historyWindow,
		draftLimit:    DefaultDraftListLimit,
		logger:        logger.With().Str("component", "agent").Logger(),
		now:           time.Now,
	}
}

type turnContext struct {
	locale   LocaleInfo
	history  []models.ConversationMessage
	patterns []RoutinePattern
	drafts   []models.DraftTrip
}

func (s *AgentService) HandleTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, fmt.Errorf("%w: message is required", ErrInvalidIntent)
	}

	user, err := s.deps.Users.GetUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	now := s.now()

	var (
		flagged bool
		tc      *turnContext
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		f, err := s.deps.Moderator.Moderate(gctx, message)
		if err != nil {
			s.deps.Reporter.Capture(gctx, err, map[string]string{"stage": "moderation", "user": user.ID.String()})
			return fmt.Errorf("%w: moderation: %w", ErrProvider, err)
		}
		flagged = f
		return nil
	})
	g.Go(func() error {
		built, err := s.buildContext(gctx, user, req.Context, now)
		if err != nil {
			s.deps.Reporter.Capture(gctx, err, map[string]string{"stage": "context", "user": user.ID.String()})
			return fmt.Errorf("%w: %w", ErrPersistence, err)
		}
		tc = built
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if flagged {
		// Kept for audit; excluded from future context.
		audit := &models.ConversationMessage{UserID: user.ID, Role: models.RoleUser, Content: message, Flagged: true}
		if err := s.deps.Conversations.SaveMessage(ctx, audit); err != nil {
			s.deps.Reporter.Capture(ctx, err, map[string]string{"stage": "save_flagged", "user": user.ID.String()})
		}
		s.logger.Warn().Str("userID", user.ID.String()).Msg("Message rejected by moderation")
		return &TurnResult{Content: ModerationRejectionMessage, Rejected: true}, nil
	}

	userMsg := &models.ConversationMessage{UserID: user.ID, Role: models.RoleUser, Content: message}
	if err := s.deps.Conversations.SaveMessage(ctx, userMsg); err != nil {
		s.deps.Reporter.Capture(ctx, err, map[string]string{"stage": "save_user_message", "user": user.ID.String()})
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	chatReq := providers.ChatRequest{
		System:   s.systemPrompt(tc, now),
		Messages: append(toProviderMessages(tc.history), providers.Message{Role: providers.RoleUser, Content: message}),
		Tools:    TripTools(),
	}
	resp, err := s.deps.Gateway.Chat(ctx, chatReq)
	if err != nil {
		return nil, err
	}
	s.recordUsage(ctx, user.ID, resp)

	result := &TurnResult{Content: strings.TrimSpace(resp.Text)}
	kind := models.MessageKindText
	if len(resp.ToolCalls) > 0 {
		if len(resp.ToolCalls) > 1 {
			s.logger.Warn().
				Int("calls", len(resp.ToolCalls)).
				Str("userID", user.ID.String()).
				Msg("Model returned several function calls, executing only the first")
		}
		out, err := s.executeCall(ctx, user, tc.locale, resp.ToolCalls[0], req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		result.Content = joinReply(result.Content, out.reply)
		if out.metadata != nil {
			result.Metadata = out.metadata
			kind = models.MessageKindTripCard
		}
	}
	if result.Content == "" {
		result.Content = "Sorry, I didn't catch that. Where and when would you like to travel?"
	}

	assistantMsg := &models.ConversationMessage{
		UserID:  user.ID,
		Role:    models.RoleAssistant,
		Content: result.Content,
		Kind:    kind,
	}
	if result.Metadata != nil {
		if raw, err := json.Marshal(result.Metadata); err == nil {
			assistantMsg.Metadata = datatypes.JSON(raw)
		}
	}
	if err := s.deps.Conversations.SaveMessage(ctx, assistantMsg); err != nil {
		// The user still gets the reply; it is just missing from history.
		s.deps.Reporter.Capture(ctx, err, map[string]string{"stage": "save_assistant_message", "user": user.ID.String()})
	}
	if _, err := s.deps.Conversations.TouchThread(ctx, user.ID, s.deps.Gateway.ChatProviderName()); err != nil {
		s.logger.Warn().Err(err).Str("userID", user.ID.String()).Msg("Failed to update conversation thread")
	}

	return result, nil
}

func (s *AgentService) buildContext(ctx context.Context, user *models.User, hints ClientContext, now time.Time) (*turnContext, error) {
	tc := &turnContext{locale: s.deps.Locales.Resolve(user, hints)}

	history, err := s.deps.Conversations.GetRecentMessages(ctx, user.ID, s.historyWindow)
	if err != nil {
		return nil, err
	}
	tc.history = history

	drafts, err := s.deps.Drafts.ListPendingDrafts(ctx, user.ID, s.draftLimit, now)
	if err != nil {
		return nil, err
	}
	tc.drafts = drafts

	if s.deps.Routines != nil {
		patterns, err := s.deps.Routines.Patterns(ctx, user.ID, tc.locale.Location, now)
		if err != nil {
			// Suggestions are a nice-to-have for the prompt.
			s.logger.Warn().Err(err).Str("userID", user.ID.String()).Msg("Routine mining failed")
		}
		tc.patterns = patterns
	}
	return tc, nil
}

func (s *AgentService) systemPrompt(tc *turnContext, now time.Time) string {
	var b strings.Builder
	b.WriteString("You are a ride-sharing assistant. Help the user plan trips as a driver or a passenger.\n")
	b.WriteString("Call draftTrip when the user describes a trip they might take. Call publishTrip only after the user clearly confirms. ")
	b.WriteString("Call at most one function per reply and ask a short question when details are missing.\n")
	fmt.Fprintf(&b, "Current time: %s.\n", tc.locale.FormatTime(now))
	if tc.locale.Country != "" {
		fmt.Fprintf(&b, "Country: %s. ", tc.locale.Country)
	}
	fmt.Fprintf(&b, "Locale: %s. Currency: %s.\n", tc.locale.Locale, tc.locale.Currency)

	if len(tc.patterns) > 0 {
		b.WriteString("Routines seen in the user's history:\n")
		for _, p := range tc.patterns {
			next := NextOccurrence(p, tc.locale.Location, now)
			fmt.Fprintf(&b, "- %s -> %s on %s %s around %s (%d trips), next %s\n",
				p.CommonOrigin, p.CommonDest, p.DayType, slotLabel(p.TimeSlot), p.AvgDepartureTime(), p.TripCount, tc.locale.FormatTime(next))
		}
	}
	if len(tc.drafts) > 0 {
		b.WriteString("Pending drafts the user can publish by id:\n")
		for _, d := range tc.drafts {
			when := "no time set"
			if d.Payload.DepartureTime != nil {
				when = tc.locale.FormatTime(*d.Payload.DepartureTime)
			}
			fmt.Fprintf(&b, "- %s: %s %s -> %s, %s\n", d.ID, d.Payload.Role, d.Payload.OriginText, d.Payload.DestText, when)
		}
	}
	return b.String()
}

type callOutcome struct {
	reply    string
	metadata map[string]interface{}
}

// executeCall runs one validated trip function. Invalid or unknown calls
// produce a reply instead of a failure and cause no side effects.
func (s *AgentService) executeCall(ctx context.Context, user *models.User, locale LocaleInfo, call providers.ToolCall, idempotencyKey string) (callOutcome, error) {
	intent, err := ParseTripIntent(call, locale.Location)
	if errors.Is(err, ErrUnknownFunction) {
		s.logger.Warn().Str("function", call.Name).Msg("Ignoring unknown function call")
		return callOutcome{}, nil
	}
	if err != nil {
		s.logger.Info().Err(err).Str("function", call.Name).Msg("Rejected function call arguments")
		return callOutcome{reply: clarification(err)}, nil
	}

	var out callOutcome
	switch in := intent.(type) {
	case DraftTripCall:
		out, err = s.createDraft(ctx, user, locale, in)
	case PublishTripCall:
		out, err = s.publishTrip(ctx, user, locale, in, idempotencyKey)
	}
	switch {
	case errors.Is(err, ErrInvalidIntent):
		return callOutcome{reply: clarification(err)}, nil
	case errors.Is(err, ErrDraftNotFound):
		return callOutcome{reply: "I couldn't find that draft. Want me to create a new one?"}, nil
	case errors.Is(err, ErrInvalidTransition):
		return callOutcome{reply: "That draft was already handled, so I didn't publish it again."}, nil
	case err != nil:
		s.deps.Reporter.Capture(ctx, err, map[string]string{"stage": call.Name, "user": user.ID.String()})
		return callOutcome{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return out, nil
}

func (s *AgentService) createDraft(ctx context.Context, user *models.User, locale LocaleInfo, in DraftTripCall) (callOutcome, error) {
	draft := &models.DraftTrip{
		UserID:           user.ID,
		Payload:          in.Payload,
		ConfidenceScore:  chatDraftConfidence,
		SuggestionReason: chatDraftReason,
		GeneratedFor:     s.now().UTC(),
	}
	if in.Payload.DepartureTime != nil {
		draft.GeneratedFor = *in.Payload.DepartureTime
	}
	if err := s.deps.Drafts.CreateDraft(ctx, draft); err != nil {
		return callOutcome{}, err
	}
	s.logger.Info().Str("userID", user.ID.String()).Str("draftID", draft.ID.String()).Msg("Draft trip created from chat")
	s.publish(user.ID, EventDraftCreated, draft)

	return callOutcome{
		reply: fmt.Sprintf("I've saved a draft: %s. Say the word and I'll publish it.", DescribeTrip(draft.Payload, locale)),
	}, nil
}

func (s *AgentService) publishTrip(ctx context.Context, user *models.User, locale LocaleInfo, in PublishTripCall, idempotencyKey string) (callOutcome, error) {
	payload := in.Payload
	if in.DraftID != nil {
		draft, err := s.deps.Drafts.GetDraft(ctx, *in.DraftID)
		if err != nil {
			return callOutcome{}, err
		}
		if draft.UserID != user.ID {
			return callOutcome{}, ErrDraftNotFound
		}
		payload = MergePayload(draft.Payload, in.Payload)
	}
	if err := ValidateTripPayload(payload, true); err != nil {
		return callOutcome{}, err
	}

	trip, created, err := s.deps.Trips.PublishTrip(ctx, PublishInput{
		Trip: models.Trip{
			UserID:        user.ID,
			Role:          payload.Role,
			OriginText:    payload.OriginText,
			DestText:      payload.DestText,
			DepartureTime: *payload.DepartureTime,
			Seats:         payload.Seats,
			VehicleType:   payload.VehicleType,
			Currency:      locale.Currency,
		},
		DraftID:        in.DraftID,
		IdempotencyKey: idempotencyKey,
		RouteEmbedding: s.deps.Embeddings.Embed(ctx, payload.OriginText, payload.DestText),
	})
	if err != nil {
		return callOutcome{}, err
	}

	summary := DescribeTrip(models.TripPayload{
		Role:          trip.Role,
		OriginText:    trip.OriginText,
		DestText:      trip.DestText,
		DepartureTime: &trip.DepartureTime,
		Seats:         trip.Seats,
		VehicleType:   trip.VehicleType,
	}, locale)
	metadata := map[string]interface{}{
		"trip_published": true,
		"trip_id":        trip.ID.String(),
		"summary":        summary,
	}
	if created {
		s.logger.Info().Str("userID", user.ID.String()).Str("tripID", trip.ID.String()).Msg("Trip published from chat")
		s.publish(user.ID, EventTripPublished, trip)
	}
	return callOutcome{reply: "Your trip is live: " + summary + ".", metadata: metadata}, nil
}

func (s *AgentService) recordUsage(ctx context.Context, userID uuid.UUID, resp *providers.ChatResponse) {
	if resp.Usage == nil {
		return
	}
	record := &models.UsageRecord{
		UserID:           userID,
		Model:            resp.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		USDCost:          providers.EstimateCostUSD(resp.Model, *resp.Usage),
	}
	if err := s.deps.Conversations.SaveUsage(ctx, record); err != nil {
		s.deps.Reporter.Capture(ctx, err, map[string]string{"stage": "save_usage", "user": userID.String()})
	}
}

func (s *AgentService) publish(userID uuid.UUID, eventType string, payload interface{}) {
	if s.deps.Events != nil {
		s.deps.Events.Publish(userID, eventType, payload)
	}
}

// DescribeTrip renders a one-line trip summary in the user's locale.
func DescribeTrip(p models.TripPayload, locale LocaleInfo) string {
	role := "Ride"
	if p.Role == models.TripRoleDriver {
		role = "Driving"
	}
	out := fmt.Sprintf("%s from %s to %s", role, p.OriginText, p.DestText)
	if p.DepartureTime != nil {
		out += " on " + locale.FormatTime(*p.DepartureTime)
	}
	if p.Seats != nil {
		noun := "seats"
		if *p.Seats == 1 {
			noun = "seat"
		}
		out += fmt.Sprintf(", %d %s", *p.Seats, noun)
	}
	if p.VehicleType != nil {
		out += " (" + *p.VehicleType + ")"
	}
	return out
}

func toProviderMessages(history []models.ConversationMessage) []providers.Message {
	return lo.Map(history, func(m models.ConversationMessage, _ int) providers.Message {
		role := providers.RoleUser
		if m.Role == models.RoleAssistant {
			role = providers.RoleAssistant
		}
		return providers.Message{Role: role, Content: m.Content}
	})
}

func clarification(err error) string {
	msg := strings.TrimPrefix(err.Error(), ErrInvalidIntent.Error()+": ")
	return "I need a bit more detail before I can do that: " + msg + "."
}

func joinReply(text, extra string) string {
	switch {
	case text == "":
		return extra
	case extra == "":
		return text
	default:
		return text + "\n\n" + extra
	}
}
