package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTodayTruncatesToUTCMidnight(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	c := NewFakeClock(time.Date(2024, 3, 2, 1, 30, 0, 0, loc))

	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), Today(c))
}

func TestFakeClockAdvance(t *testing.T) {
	start := time.Date(2024, 1, 31, 23, 59, 0, 0, time.UTC)
	c := NewFakeClock(start)
	c.Advance(2 * time.Minute)

	assert.Equal(t, start.Add(2*time.Minute), c.Now())
	assert.Equal(t, time.UTC, c.Now().Location())
}
