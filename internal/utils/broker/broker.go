// broker/broker.go
package broker

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Event is pushed to every live connection of a user.
type Event struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

type Broker struct {
	subscribers map[string][]chan Event
	mu          sync.RWMutex
	buffer      int
}

func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[string][]chan Event),
		buffer:      16,
	}
}

func UserTopic(userID uuid.UUID) string {
	return "user_" + userID.String()
}

func (b *Broker) Subscribe(topic string) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, b.buffer)
	b.subscribers[topic] = append(b.subscribers[topic], ch)
	return ch
}

func (b *Broker) Unsubscribe(topic string, ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if chans, ok := b.subscribers[topic]; ok {
		for i, c := range chans {
			if c == ch {
				b.subscribers[topic] = append(chans[:i], chans[i+1:]...)
				close(c)
				break
			}
		}
		if len(b.subscribers[topic]) == 0 {
			delete(b.subscribers, topic)
		}
	}
}

// PublishTopic never blocks; a subscriber whose buffer is full misses the event.
func (b *Broker) PublishTopic(topic string, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers[topic] {
		select {
		case ch <- event:
		default:
			log.Warn().Str("topic", topic).Str("event", event.Type).Msg("Subscriber buffer full, dropping event")
		}
	}
}

// Publish sends an event to a user's topic.
func (b *Broker) Publish(userID uuid.UUID, eventType string, payload interface{}) {
	b.PublishTopic(UserTopic(userID), Event{Type: eventType, Payload: payload, Timestamp: time.Now().UTC()})
}
