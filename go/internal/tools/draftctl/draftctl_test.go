package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kpm34/cfbdraft/go/internal/draft/draftrpc"
	"github.com/kpm34/cfbdraft/go/internal/draft/orchestrator"
	"github.com/kpm34/cfbdraft/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedYAML = `
league_id: 7b0c7f55-8a43-4d43-9a38-0b6f4c1f2a11
rounds: 2
order_mode: snake
time_per_pick_sec: 90
scheduled_at: 2026-09-05T18:00:00Z
position_limits:
  QB: 1
participants:
  - display_name: Ducks
  - display_name: Beavers
    is_bot: true
pool:
  - id: 0e1c3c1e-4b8a-4c8e-9f2e-2f7a5d1b6a01
    full_name: Dillon Gabriel
    position: QB
    team: ORE
    rank: 1
  - id: 0e1c3c1e-4b8a-4c8e-9f2e-2f7a5d1b6a02
    full_name: Jordan James
    position: RB
    team: ORE
    rank: 2
  - id: 0e1c3c1e-4b8a-4c8e-9f2e-2f7a5d1b6a03
    full_name: Tez Johnson
    position: WR
    team: ORE
    rank: 3
  - id: 0e1c3c1e-4b8a-4c8e-9f2e-2f7a5d1b6a04
    full_name: Terrance Ferguson
    position: TE
    team: ORE
    rank: 4
`

func writeSeed(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "draft.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestLoadSeedFile(t *testing.T) {
	req, err := loadSeedFile(writeSeed(t))
	require.NoError(t, err)

	assert.Equal(t, uuid.MustParse("7b0c7f55-8a43-4d43-9a38-0b6f4c1f2a11"), req.LeagueID)
	assert.Equal(t, models.OrderModeSnake, req.OrderMode)
	assert.Equal(t, 90, req.TimePerPickSec)
	assert.True(t, req.ScheduledAt.Equal(time.Date(2026, 9, 5, 18, 0, 0, 0, time.UTC)))
	assert.Equal(t, map[string]int{"QB": 1}, req.PositionLimits)
	require.Len(t, req.Participants, 2)
	assert.True(t, req.Participants[1].IsBot)
	require.Len(t, req.Pool, 4)
	assert.Equal(t, "Jordan James", req.Pool[1].FullName)

	rpc := toRPCRequest(req)
	assert.Equal(t, req.LeagueID.String(), rpc.LeagueID)
	assert.Empty(t, rpc.ID)
	assert.Empty(t, rpc.Participants[0].ID)
	assert.Equal(t, "Beavers", rpc.Participants[1].DisplayName)
}

func TestSeedDirectIntoBolt(t *testing.T) {
	t.Setenv("STORE_BACKEND", "bolt")
	t.Setenv("BOLT_PATH", filepath.Join(t.TempDir(), "drafts.db"))

	out, err := execute(t, "seed", "--direct", writeSeed(t))
	require.NoError(t, err)

	var d models.Draft
	require.NoError(t, json.Unmarshal([]byte(out), &d))
	assert.Equal(t, models.DraftStatusScheduled, d.Status)
	assert.Len(t, d.Config.ParticipantOrder, 2)
}

func TestCronCommandSendsSecret(t *testing.T) {
	var gotSecret string
	r := chi.NewRouter()
	r.Post("/cron/sweep-expired-picks", func(w http.ResponseWriter, r *http.Request) {
		gotSecret = r.Header.Get(orchestrator.CronSecretHeader)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"count":0,"actions":[]}`))
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	out, err := execute(t, "--api", srv.URL, "--cron-secret", "s3cret", "sweep")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", gotSecret)
	assert.Contains(t, out, `"count": 0`)

	_, err = execute(t, "--api", srv.URL, "start-due")
	assert.Error(t, err, "route not mounted")
}

type recordingPicks struct {
	token string
	req   *draftrpc.SubmitPickRequest
}

func (p *recordingPicks) SubmitPick(ctx context.Context, req *connect.Request[draftrpc.SubmitPickRequest]) (*connect.Response[draftrpc.SubmitPickResponse], error) {
	p.token = req.Header().Get(draftrpc.IdempotencyKeyHeader)
	p.req = req.Msg
	return connect.NewResponse(&draftrpc.SubmitPickResponse{Pick: models.DraftPick{OverallPick: 1}}), nil
}

func TestSubmitCommand(t *testing.T) {
	picks := &recordingPicks{}
	mux := http.NewServeMux()
	path, handler := draftrpc.NewDraftPickServiceHandler(picks)
	mux.Handle(path, handler)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	draftID, participantID, playerID := uuid.NewString(), uuid.NewString(), uuid.NewString()
	out, err := execute(t, "--api", srv.URL, "submit", draftID, participantID, playerID, "--token", "tok-9")
	require.NoError(t, err)
	assert.Equal(t, "tok-9", picks.token)
	assert.Equal(t, playerID, picks.req.PlayerID)
	assert.Contains(t, out, `"overall_pick": 1`)

	_, err = execute(t, "--api", srv.URL, "submit", draftID, participantID, playerID)
	require.NoError(t, err)
	assert.Regexp(t, `^cli-[0-9A-Z]{26}$`, picks.token)
}
