package session

import (
	"testing"
	"time"

	appuserdomain "github.com/smallbiznis/posbridge/internal/appuser/domain"
	"github.com/smallbiznis/posbridge/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC))
	m := NewManager([]byte("k"), time.Hour, clk)

	token, expiresAt, err := m.Issue(appuserdomain.AppUser{ID: 77, Role: appuserdomain.RoleManager})
	require.NoError(t, err)
	assert.Equal(t, clk.Now().Add(time.Hour), expiresAt)

	id, err := m.Parse(token)
	require.NoError(t, err)
	assert.EqualValues(t, 77, id)

	clk.Advance(2 * time.Hour)
	_, err = m.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsForeignKeyAndGarbage(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC))
	other := NewManager([]byte("other"), time.Hour, clk)
	token, _, err := other.Issue(appuserdomain.AppUser{ID: 1, Role: appuserdomain.RoleAdmin})
	require.NoError(t, err)

	m := NewManager([]byte("k"), time.Hour, clk)
	_, err = m.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = m.Parse("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
