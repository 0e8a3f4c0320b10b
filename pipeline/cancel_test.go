package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCancelTokenNilIsNeverCancelled(t *testing.T) {
	var tok *CancelToken
	assert.False(t, tok.IsCancelled())
	assert.NoError(t, tok.ThrowIfCancelled("gcd"))
}

func TestCancelTokenReportsAfterContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tok := NewCancelToken(ctx)
	assert.False(t, tok.IsCancelled())

	cancel()
	assert.True(t, tok.IsCancelled())

	err := tok.ThrowIfCancelled("gcd")
	require.Error(t, err)
	cancelled, ok := err.(*Cancelled)
	require.True(t, ok, "expected a *Cancelled error")
	assert.Equal(t, "gcd", cancelled.Function)
}
