package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Event is one item pushed over /events/stream — pipeline cycle
// lifecycle notifications, mirroring the teacher's planning event
// stream for forecast-cycle status instead of inventing a new
// transport.
type Event struct {
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Broadcaster fans a published Event out to every subscribed SSE
// client, grounded on the teacher's planning EventBroadcaster.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
	log         zerolog.Logger
}

// NewBroadcaster constructs an empty Broadcaster.
func NewBroadcaster(log zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[chan Event]struct{}),
		log:         log.With().Str("component", "event_broadcaster").Logger(),
	}
}

// Subscribe registers a new buffered channel for Publish to fan out to.
func (b *Broadcaster) Subscribe() chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, 10)
	b.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe removes and closes a channel returned by Subscribe.
func (b *Broadcaster) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(ch)
	}
}

// Publish broadcasts event to every current subscriber, dropping it for
// any subscriber whose channel buffer is full rather than blocking.
func (b *Broadcaster) Publish(event Event) {
	event.Timestamp = time.Now()
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			b.log.Warn().Str("event_type", event.Type).Msg("subscriber channel full, event dropped")
		}
	}
}

// handleEventsStream serves GET /events/stream (SSE), grounded on the
// teacher's planning StreamHandler.ServeHTTP.
func (s *Server) handleEventsStream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ch := s.events.Subscribe()
	defer s.events.Unsubscribe(ch)

	done := r.Context().Done()

	fmt.Fprintf(w, "event: connected\n")
	fmt.Fprintf(w, "data: {\"message\":\"connected to gridcast event stream\"}\n\n")
	flusher.Flush()

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-done:
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				s.log.Error().Err(err).Msg("failed to marshal event")
				continue
			}
			fmt.Fprintf(w, "event: %s\n", event.Type)
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprintf(w, "event: heartbeat\n")
			fmt.Fprintf(w, "data: {\"timestamp\":%q}\n\n", time.Now().Format(time.RFC3339))
			flusher.Flush()
		}
	}
}
