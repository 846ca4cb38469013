package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTokenIsURLSafe(t *testing.T) {
	t.Parallel()

	token, err := newToken()
	require.NoError(t, err)

	// 16 random bytes encode to 22 unpadded base64url characters.
	assert.Len(t, token, 22)
	assert.NotContains(t, token, "+")
	assert.NotContains(t, token, "/")
	assert.NotContains(t, token, "=")
}

func TestNewTokenIsUnique(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, err := newToken()
		require.NoError(t, err)
		require.False(t, seen[token], "token collision")
		seen[token] = true
	}
}
