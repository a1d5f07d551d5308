package logsink

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/posbridge/internal/logsink/domain"
	obsmetrics "github.com/smallbiznis/posbridge/internal/observability/metrics"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultQueueSize = 1024

// Sink persists log entries in the background and mirrors them to the hub.
// Entries written before Bind are queued until the database is attached.
type Sink struct {
	hub     *Hub
	genID   *snowflake.Node
	metrics *obsmetrics.SyncMetrics
	queue   chan domain.LogEntry

	mu   sync.RWMutex
	db   *gorm.DB
	repo domain.Repository

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewSink(hub *Hub, genID *snowflake.Node, metrics *obsmetrics.SyncMetrics) *Sink {
	return newSink(hub, genID, metrics, defaultQueueSize)
}

func newSink(hub *Hub, genID *snowflake.Node, metrics *obsmetrics.SyncMetrics, queueSize int) *Sink {
	return &Sink{
		hub:     hub,
		genID:   genID,
		metrics: metrics,
		queue:   make(chan domain.LogEntry, queueSize),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Bind attaches the storage used by the writer loop.
func (s *Sink) Bind(db *gorm.DB, repo domain.Repository) {
	s.mu.Lock()
	s.db = db
	s.repo = repo
	s.mu.Unlock()
}

// Write publishes the entry and queues it for persistence. A full queue
// drops the entry rather than blocking the caller; drops are counted.
func (s *Sink) Write(entry domain.LogEntry) {
	if s == nil {
		return
	}
	if entry.ID == 0 && s.genID != nil {
		entry.ID = s.genID.Generate()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	s.hub.Publish(entry)

	select {
	case <-s.stop:
	case s.queue <- entry:
	default:
		s.metrics.IncLogDropped()
	}
}

// Run drains the queue until Stop is called.
func (s *Sink) Run() {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			s.drain()
			return
		case entry := <-s.queue:
			s.persist(entry)
		}
	}
}

// Stop ends Run after flushing queued entries, bounded by ctx.
func (s *Sink) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stop) })
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sink) drain() {
	for {
		select {
		case entry := <-s.queue:
			s.persist(entry)
		default:
			return
		}
	}
}

func (s *Sink) persist(entry domain.LogEntry) {
	s.mu.RLock()
	db, repo := s.db, s.repo
	s.mu.RUnlock()
	if db == nil || repo == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := repo.Insert(ctx, db, &entry); err != nil {
		zap.L().Named("logsink").Warn("failed to persist log entry", zap.Error(err))
	}
}
