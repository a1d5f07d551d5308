package logsink

import (
	"errors"
	"strings"
	"sync"

	"github.com/smallbiznis/posbridge/internal/logsink/domain"
)

const (
	DefaultBufferSize       = 50
	DefaultSubscriberBuffer = 16
)

// allProfiles is the stream every entry is published to.
const allProfiles = "*"

var ErrHubClosed = errors.New("hub_closed")

// Hub fans log entries out to live subscribers. Each stream keeps a short
// backlog so new subscribers see recent history.
type Hub struct {
	mu               sync.RWMutex
	streams          map[string]*stream
	closed           bool
	bufferSize       int
	subscriberBuffer int
}

type stream struct {
	mu     sync.Mutex
	buffer []domain.LogEntry
	subs   map[uint64]chan domain.LogEntry
	nextID uint64
}

type Subscription struct {
	hub  *Hub
	key  string
	id   uint64
	ch   chan domain.LogEntry
	once sync.Once
}

func NewHub() *Hub {
	return &Hub{
		streams:          make(map[string]*stream),
		bufferSize:       DefaultBufferSize,
		subscriberBuffer: DefaultSubscriberBuffer,
	}
}

// Publish never blocks; slow subscribers miss entries.
func (h *Hub) Publish(entry domain.LogEntry) {
	if h == nil {
		return
	}
	h.publish(allProfiles, entry)
	if key := strings.TrimSpace(entry.ProfileID); key != "" {
		h.publish(key, entry)
	}
}

func (h *Hub) publish(key string, entry domain.LogEntry) {
	stream := h.ensureStream(key)
	if stream == nil {
		return
	}

	stream.mu.Lock()
	stream.buffer = append(stream.buffer, entry)
	if len(stream.buffer) > h.bufferSize {
		stream.buffer = stream.buffer[len(stream.buffer)-h.bufferSize:]
	}
	for _, ch := range stream.subs {
		select {
		case ch <- entry:
		default:
		}
	}
	stream.mu.Unlock()
}

// Subscribe follows one profile, or every profile when profileID is blank.
// The returned backlog holds the most recent entries, oldest first.
func (h *Hub) Subscribe(profileID string) (*Subscription, []domain.LogEntry, error) {
	if h == nil {
		return nil, nil, errors.New("hub_unavailable")
	}
	key := strings.TrimSpace(profileID)
	if key == "" {
		key = allProfiles
	}

	stream := h.ensureStream(key)
	if stream == nil {
		return nil, nil, ErrHubClosed
	}
	stream.mu.Lock()
	id := stream.nextID
	stream.nextID++
	ch := make(chan domain.LogEntry, h.subscriberBuffer)
	stream.subs[id] = ch
	backlog := append([]domain.LogEntry(nil), stream.buffer...)
	stream.mu.Unlock()

	return &Subscription{hub: h, key: key, id: id, ch: ch}, backlog, nil
}

func (h *Hub) ensureStream(key string) *stream {
	h.mu.RLock()
	current, closed := h.streams[key], h.closed
	h.mu.RUnlock()
	if closed {
		return nil
	}
	if current != nil {
		return current
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	current = h.streams[key]
	if current == nil {
		current = &stream{subs: make(map[uint64]chan domain.LogEntry)}
		h.streams[key] = current
	}
	return current
}

func (h *Hub) unsubscribe(key string, id uint64) {
	h.mu.RLock()
	stream := h.streams[key]
	h.mu.RUnlock()
	if stream == nil {
		return
	}

	stream.mu.Lock()
	ch, ok := stream.subs[id]
	if ok {
		delete(stream.subs, id)
		close(ch)
	}
	stream.mu.Unlock()
}

// Close detaches every subscriber and closes their channels.
func (h *Hub) Close() {
	if h == nil {
		return
	}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	streams := h.streams
	h.streams = make(map[string]*stream)
	h.mu.Unlock()

	for _, stream := range streams {
		stream.mu.Lock()
		for id, ch := range stream.subs {
			delete(stream.subs, id)
			close(ch)
		}
		stream.mu.Unlock()
	}
}

// Entries is closed when the subscription or the hub is closed.
func (s *Subscription) Entries() <-chan domain.LogEntry {
	if s == nil {
		return nil
	}
	return s.ch
}

func (s *Subscription) Close() {
	if s == nil || s.hub == nil {
		return
	}
	s.once.Do(func() {
		s.hub.unsubscribe(s.key, s.id)
	})
}
