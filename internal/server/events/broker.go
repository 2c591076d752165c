package events

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/safemelbourne/livemap/pkg/constants"
)

// Broker fans mirror events out to the realtime transports. The server
// publishes surface.data with the FeatureCollection the surface holds after
// each render, events.changed with the filtered view after a load, merge or
// filter change, plus markers.rendered, status.changed and fetch.failed.
// Run delivers each event to every subscriber concurrently, so two events may
// reach one subscriber out of order.
type Broker struct {
	subscribers []Subscriber
	events      chan Event
	mu          sync.RWMutex
	logger      *zerolog.Logger
}

// NewBroker creates a new event broker.
func NewBroker(logger *zerolog.Logger) *Broker {
	return &Broker{
		subscribers: make([]Subscriber, 0),
		events:      make(chan Event, constants.ChannelBufferSize),
		logger:      logger,
	}
}

// Run starts the broker's event loop and blocks until ctx is cancelled.
// Subscribers are closed on the way out.
func (b *Broker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			b.mu.Lock()
			for _, sub := range b.subscribers {
				_ = sub.Close()
			}
			b.subscribers = nil
			b.mu.Unlock()
			b.logger.Info().Msg("Event broker shut down")
			return

		case event := <-b.events:
			b.mu.RLock()
			subs := make([]Subscriber, len(b.subscribers))
			copy(subs, b.subscribers)
			b.mu.RUnlock()

			for _, sub := range subs {
				go func(s Subscriber, e Event) {
					if err := s.Send(e); err != nil {
						b.logger.Warn().
							Err(err).
							Str("event_type", string(e.Type)).
							Msg("Failed to send event to subscriber")
					}
				}(sub, event)
			}

			b.logger.Debug().
				Str("event_type", string(event.Type)).
				Int("subscribers", len(subs)).
				Msg("Event broadcasted")
		}
	}
}

// Publish queues an event for all subscribers. It never blocks; when the
// queue is full the event is dropped. Clients recover from a dropped
// surface.data with the next render or by reading /api/v1/surface/data.
func (b *Broker) Publish(eventType EventType, data any) {
	event := Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}

	select {
	case b.events <- event:
	default:
		b.logger.Warn().
			Str("event_type", string(eventType)).
			Msg("Event channel full, event dropped")
	}
}

// Subscribe registers a subscriber. It is safe to call before Run.
func (b *Broker) Subscribe(sub Subscriber) {
	b.mu.Lock()
	b.subscribers = append(b.subscribers, sub)
	n := len(b.subscribers)
	b.mu.Unlock()
	b.logger.Debug().Int("total_subscribers", n).Msg("Subscriber registered")
}

// Unsubscribe removes and closes a subscriber.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	for i, s := range b.subscribers {
		if s == sub {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			_ = s.Close()
			break
		}
	}
	n := len(b.subscribers)
	b.mu.Unlock()
	b.logger.Debug().Int("total_subscribers", n).Msg("Subscriber unregistered")
}

// SubscriberCount returns the current number of subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
