package agent

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// SessionStateChangedEvent is emitted whenever the agent reports a new
// state for an issuance session. Delivery is at-least-once; consumers
// must handle duplicates.
type SessionStateChangedEvent struct {
	SessionID string       `json:"sessionId"`
	State     SessionState `json:"state"`
}

// SessionEvents is the consumer side of session state notifications.
type SessionEvents interface {
	// Subscribe returns a channel of events plus a cancel function that
	// releases the subscription. The channel is closed on cancel.
	Subscribe() (<-chan SessionStateChangedEvent, func())
}

// SessionEventPublisher is the producer side, fed by the agent webhook.
type SessionEventPublisher interface {
	Publish(event SessionStateChangedEvent)
}

const subscriberBuffer = 128

// EventBus is an in-process fan-out of session state events.
type EventBus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan SessionStateChangedEvent
}

func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[int]chan SessionStateChangedEvent)}
}

func (b *EventBus) Subscribe() (<-chan SessionStateChangedEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan SessionStateChangedEvent, subscriberBuffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish fans the event out to all subscribers. A subscriber that has
// fallen subscriberBuffer events behind has its event dropped rather than
// blocking the publisher; session persistence is last-write-wins so a
// dropped intermediate state is recovered by the next event.
func (b *EventBus) Publish(event SessionStateChangedEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subs {
		select {
		case sub <- event:
		default:
			logrus.WithFields(logrus.Fields{
				"sessionId": event.SessionID,
				"state":     event.State,
			}).Warn("dropping session event for slow subscriber")
		}
	}
}
