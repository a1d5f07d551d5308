package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	token, err := EncodeCursor(Cursor{ID: "42", Timestamp: "2024-03-01T10:00:00Z"})
	require.NoError(t, err)

	cursor, err := DecodeCursor(token)
	require.NoError(t, err)
	assert.Equal(t, "42", cursor.ID)
	assert.Equal(t, "2024-03-01T10:00:00Z", cursor.Timestamp)
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	cursor, err := DecodeCursor("")
	assert.NoError(t, err)
	assert.Nil(t, cursor)

	_, err = DecodeCursor("%%%")
	assert.ErrorIs(t, err, ErrInvalidPageToken)

	token, err := EncodeCursor(Cursor{ID: "1"})
	require.NoError(t, err)
	_, err = DecodeCursor(token)
	assert.ErrorIs(t, err, ErrInvalidPageToken)
}

func TestTrimReportsMore(t *testing.T) {
	cursorOf := func(v int) Cursor { return Cursor{ID: string(rune('a' + v)), Timestamp: "t"} }

	items, info, err := Trim([]int{0, 1, 2}, 3, cursorOf)
	require.NoError(t, err)
	assert.Len(t, items, 3)
	assert.False(t, info.HasMore)
	assert.Empty(t, info.NextPageToken)

	items, info, err = Trim([]int{0, 1, 2, 3}, 3, cursorOf)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, items)
	assert.True(t, info.HasMore)

	cursor, err := DecodeCursor(info.NextPageToken)
	require.NoError(t, err)
	assert.Equal(t, "c", cursor.ID)
}
