package utils

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestRandomString(t *testing.T) {
	t.Parallel()

	re := regexp.MustCompile(`^[A-Za-z0-9]{20}$`)
	seen := map[string]struct{}{}
	for i := 0; i < 50; i++ {
		s, err := RandomString(20, Alphanumeric)
		require.NoError(t, err)
		assert.Regexp(t, re, s)
		seen[s] = struct{}{}
	}
	assert.Len(t, seen, 50)
}

func TestHashAndCheckSecret(t *testing.T) {
	t.Parallel()

	h1, err := HashSecret("code-1", bcrypt.MinCost)
	require.NoError(t, err)
	h2, err := HashSecret("code-1", bcrypt.MinCost)
	require.NoError(t, err)

	assert.NotEqual(t, "code-1", h1)
	assert.NotEqual(t, h1, h2, "salt must differ per hash")
	assert.True(t, CheckSecret("code-1", h1))
	assert.True(t, CheckSecret("code-1", h2))
	assert.False(t, CheckSecret("code-2", h1))
	assert.False(t, CheckSecret("code-1", ""))
	assert.False(t, CheckSecret("code-1", "not-a-hash"))
}
