package backend

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/kpm34/cfbdraft/go/internal/config"
	"github.com/kpm34/cfbdraft/go/internal/draft/store/bolt"
	"github.com/kpm34/cfbdraft/go/internal/draft/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()

	st, closeFn, err := Open(ctx, config.StoreConfig{Backend: Memory})
	require.NoError(t, err)
	closeFn()
	assert.IsType(t, &memory.Store{}, st)

	st, closeFn, err = Open(ctx, config.StoreConfig{Backend: Bolt, BoltPath: filepath.Join(t.TempDir(), "draft.db")})
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &bolt.Store{}, st)

	_, _, err = Open(ctx, config.StoreConfig{Backend: "sqlite"})
	assert.ErrorContains(t, err, "unknown store backend")
}
