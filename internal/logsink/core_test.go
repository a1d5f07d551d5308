package logsink

import (
	"errors"
	"sync"
	"testing"

	"github.com/smallbiznis/posbridge/internal/logsink/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memoryWriter struct {
	mu      sync.Mutex
	entries []domain.LogEntry
}

func (w *memoryWriter) Write(entry domain.LogEntry) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries = append(w.entries, entry)
}

func (w *memoryWriter) all() []domain.LogEntry {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]domain.LogEntry(nil), w.entries...)
}

func TestCoreForwardsOnlyTaggedEntries(t *testing.T) {
	out := &memoryWriter{}
	log := Tee(zap.NewNop(), out)

	log.Info("plain message")
	log.Debug("debug with op", zap.String("operation", "FETCH"))
	log.With(zap.String("profile_id", "7"), zap.String("correlation_id", "abc")).
		Warn("fetch slow", zap.String("operation", "FETCH"), zap.Int("count", 3))
	log.Error("boom", zap.String("operation", "BG"), zap.Error(errors.New("provider down")))

	entries := out.all()
	require.Len(t, entries, 2)

	assert.Equal(t, domain.LevelWarn, entries[0].Level)
	assert.Equal(t, "FETCH", entries[0].Operation)
	assert.Equal(t, "7", entries[0].ProfileID)
	assert.Equal(t, "abc", entries[0].CorrelationID)
	assert.EqualValues(t, 3, entries[0].Attributes["count"])
	assert.NotContains(t, entries[0].Attributes, "operation")

	assert.Equal(t, domain.LevelError, entries[1].Level)
	assert.Equal(t, "provider down", entries[1].Exception)
	assert.Empty(t, entries[1].ProfileID)
}
