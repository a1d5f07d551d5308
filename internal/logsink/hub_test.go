package logsink

import (
	"testing"

	"github.com/smallbiznis/posbridge/internal/logsink/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubBacklogAndProfileFilter(t *testing.T) {
	hub := NewHub()
	for i := 0; i < DefaultBufferSize+5; i++ {
		hub.Publish(domain.LogEntry{Message: "tick", ProfileID: "1"})
	}
	hub.Publish(domain.LogEntry{Message: "other", ProfileID: "2"})

	sub, backlog, err := hub.Subscribe("1")
	require.NoError(t, err)
	defer sub.Close()
	assert.Len(t, backlog, DefaultBufferSize)

	all, allBacklog, err := hub.Subscribe("")
	require.NoError(t, err)
	defer all.Close()
	assert.Equal(t, "other", allBacklog[len(allBacklog)-1].Message)

	hub.Publish(domain.LogEntry{Message: "live", ProfileID: "2"})
	select {
	case got := <-sub.Entries():
		t.Fatalf("profile 1 subscriber received %q", got.Message)
	default:
	}
	got := <-all.Entries()
	assert.Equal(t, "live", got.Message)
}

func TestHubCloseEndsSubscriptions(t *testing.T) {
	hub := NewHub()
	sub, _, err := hub.Subscribe("")
	require.NoError(t, err)

	hub.Close()
	_, ok := <-sub.Entries()
	assert.False(t, ok)

	sub.Close()
	hub.Publish(domain.LogEntry{Message: "after close"})

	_, _, err = hub.Subscribe("")
	assert.ErrorIs(t, err, ErrHubClosed)
}
