package idgen

import (
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutopickTokenFormat(t *testing.T) {
	now := time.Date(2026, 9, 1, 18, 0, 0, 0, time.UTC)
	tok := AutopickToken(now)

	require.True(t, strings.HasPrefix(tok, "autopick-"))
	id, err := ulid.Parse(strings.TrimPrefix(tok, "autopick-"))
	require.NoError(t, err)
	assert.Equal(t, ulid.Timestamp(now), id.Time())
}

func TestTokensAreUniqueAndSorted(t *testing.T) {
	now := time.Date(2026, 9, 1, 18, 0, 0, 0, time.UTC)
	seen := map[string]bool{}
	prev := ""
	for i := 0; i < 1000; i++ {
		tok := NewULID(now)
		require.False(t, seen[tok], "duplicate token %s", tok)
		seen[tok] = true
		assert.Greater(t, tok, prev)
		prev = tok
	}
}

func TestTokenWithoutPrefix(t *testing.T) {
	tok := Token("", time.Now())
	_, err := ulid.Parse(tok)
	assert.NoError(t, err)
}
