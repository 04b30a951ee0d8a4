package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kpm34/cfbdraft/go/internal/draft/drafterr"
	"github.com/kpm34/cfbdraft/go/internal/draft/store"
	"github.com/stretchr/testify/assert"
)

func TestMapErr(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   error
		want error
	}{
		{name: "no rows", in: pgx.ErrNoRows, want: store.ErrNotFound},
		{name: "token", in: &pgconn.PgError{Code: "23505", ConstraintName: "draft_picks_token_key"}, want: store.ErrDuplicateToken},
		{name: "overall", in: &pgconn.PgError{Code: "23505", ConstraintName: "draft_picks_overall_key"}, want: drafterr.ErrStaleState},
		{name: "player", in: fmt.Errorf("exec: %w", &pgconn.PgError{Code: "23505", ConstraintName: "draft_picks_player_key"}), want: drafterr.ErrPlayerAlreadyTaken},
		{name: "serialization", in: &pgconn.PgError{Code: "40001"}, want: drafterr.ErrTransient},
		{name: "connection", in: &pgconn.PgError{Code: "08006"}, want: drafterr.ErrTransient},
		{name: "deadline", in: context.DeadlineExceeded, want: drafterr.ErrTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.ErrorIs(t, mapErr(tt.in), tt.want)
		})
	}

	assert.NoError(t, mapErr(nil))
	plain := errors.New("syntax")
	assert.Equal(t, plain, mapErr(plain))
}
