package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/kpm34/cfbdraft/go/internal/draft/store"
	"github.com/kpm34/cfbdraft/go/internal/draft/store/storetest"
	"github.com/stretchr/testify/require"
)

// Runs only when CFBDRAFT_TEST_DSN points at a disposable database.
func TestStoreContract(t *testing.T) {
	dsn := os.Getenv("CFBDRAFT_TEST_DSN")
	if dsn == "" {
		t.Skip("CFBDRAFT_TEST_DSN not set")
	}

	storetest.Run(t, func(t *testing.T) store.Store {
		ctx := context.Background()
		s, err := Connect(ctx, dsn)
		require.NoError(t, err)
		require.NoError(t, s.Migrate(ctx))
		_, err = s.pool.Exec(ctx, `TRUNCATE drafts, draft_outbox CASCADE`)
		require.NoError(t, err)
		t.Cleanup(s.Close)
		return s
	})
}
