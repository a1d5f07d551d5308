package correlation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureCorrelationIDKeepsExisting(t *testing.T) {
	ctx := ContextWithCorrelationID(context.Background(), "cid-1")

	ctx, cid := EnsureCorrelationID(ctx)

	assert.Equal(t, "cid-1", cid)
	assert.Equal(t, "cid-1", ExtractCorrelationID(ctx))
}

func TestEnsureCorrelationIDGenerates(t *testing.T) {
	ctx, cid := EnsureCorrelationID(context.Background())

	require.NotEmpty(t, cid)
	assert.Equal(t, cid, ExtractCorrelationID(ctx))

	_, other := EnsureCorrelationID(context.Background())
	assert.NotEqual(t, cid, other)
}
