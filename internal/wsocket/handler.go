package wsocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"tripmind_go_backend/internal/models"
	"tripmind_go_backend/internal/services"
	"tripmind_go_backend/internal/utils/broker"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	MessageTypeMessage   = "message"
	MessageTypeAssistant = "assistant"
	MessageTypeEvent     = "event"
	MessageTypeError     = "error"
	MessageTypePing      = "ping"
	MessageTypePong      = "pong"
)

// TurnHandler runs one conversational turn.
type TurnHandler interface {
	HandleTurn(ctx context.Context, req services.TurnRequest) (*services.TurnResult, error)
}

// RateChecker rejects clients that exceeded their request budget.
type RateChecker interface {
	CheckRate(ctx context.Context, clientKey string) error
}

type Handler struct {
	agent        TurnHandler
	limiter      RateChecker
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	logger       zerolog.Logger
}

type Message struct {
	Type           string                  `json:"type"`
	Content        string                  `json:"content,omitempty"`
	Metadata       map[string]interface{}  `json:"metadata,omitempty"`
	Context        *services.ClientContext `json:"context,omitempty"`
	IdempotencyKey string                  `json:"idempotencyKey,omitempty"`
	Event          *broker.Event           `json:"event,omitempty"`
}

func NewHandler(agent TurnHandler, limiter RateChecker, upgrader websocket.Upgrader, pingInterval time.Duration, logger zerolog.Logger) *Handler {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Handler{
		agent:        agent,
		limiter:      limiter,
		upgrader:     upgrader,
		pingInterval: pingInterval,
		logger:       logger.With().Str("component", "wsocket").Logger(),
	}
}

// HandleWebSocket serves chat turns over a socket and forwards the user's
// broker events until either side closes. Each turn is charged to clientKey.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request, user *models.User, clientKey string, messageBroker *broker.Broker) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Error upgrading connection")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// gorilla connections allow one concurrent writer.
	var writeMu sync.Mutex
	write := func(msg Message) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(msg)
	}

	topic := broker.UserTopic(user.ID)
	events := messageBroker.Subscribe(topic)
	defer messageBroker.Unsubscribe(topic, events)

	log := h.logger.With().Str("userID", user.ID.String()).Logger()
	log.Debug().Msg("WebSocket connected")

	go func() {
		ticker := time.NewTicker(h.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				if err := write(Message{Type: MessageTypeEvent, Event: &ev}); err != nil {
					log.Debug().Err(err).Msg("Error sending event")
					cancel()
					return
				}
			case <-ticker.C:
				if err := write(Message{Type: MessageTypePing}); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("WebSocket closed unexpectedly")
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			_ = write(Message{Type: MessageTypeError, Content: "Malformed message"})
			continue
		}

		switch msg.Type {
		case MessageTypeMessage:
			h.handleChatMessage(ctx, user, clientKey, msg, write, log)
		case MessageTypePong:
		default:
			log.Debug().Str("type", msg.Type).Msg("Unknown message type")
		}
	}
}

func (h *Handler) handleChatMessage(ctx context.Context, user *models.User, clientKey string, msg Message, write func(Message) error, log zerolog.Logger) {
	if h.limiter != nil {
		if err := h.limiter.CheckRate(ctx, clientKey); err != nil {
			content := "The assistant could not answer that, please try again"
			if errors.Is(err, services.ErrRateLimitExceeded) {
				content = "Rate limit exceeded, please slow down"
			}
			_ = write(Message{Type: MessageTypeError, Content: content})
			return
		}
	}

	req := services.TurnRequest{
		UserID:         user.ID,
		Message:        msg.Content,
		IdempotencyKey: msg.IdempotencyKey,
	}
	if msg.Context != nil {
		req.Context = *msg.Context
	}

	result, err := h.agent.HandleTurn(ctx, req)
	if err != nil {
		log.Error().Err(err).Msg("Chat turn failed")
		_ = write(Message{Type: MessageTypeError, Content: "The assistant could not answer that, please try again"})
		return
	}
	if err := write(Message{Type: MessageTypeAssistant, Content: result.Content, Metadata: result.Metadata}); err != nil {
		log.Debug().Err(err).Msg("Error sending assistant reply")
	}
}
