// Package postgres is the production draft store on pgx. Conditional writes
// are UPDATE ... WHERE version = $n inside a transaction; pick uniqueness is
// enforced by table constraints and mapped back to store errors.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kpm34/cfbdraft/go/internal/draft/drafterr"
	"github.com/kpm34/cfbdraft/go/internal/draft/store"
	"github.com/kpm34/cfbdraft/go/internal/models"
)

//go:embed schema.sql
var schemaSQL string

// NotifyChannel is the LISTEN channel the outbox relay waits on.
const NotifyChannel = "draft_outbox_events"

// Store implements store.Store on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect opens a pool for dsn and pings it.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return New(pool), nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (s *Store) CreateDraft(ctx context.Context, draft models.Draft, participants []models.Participant, pool []models.Player) error {
	cfg, err := json.Marshal(draft.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal draft config: %w", err)
	}

	return s.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO drafts (id, league_id, status, config, scheduled_at, started_at, completed_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			draft.ID, draft.LeagueID, string(draft.Status), cfg, draft.ScheduledAt,
			draft.StartedAt, draft.CompletedAt, draft.CreatedAt, draft.UpdatedAt)
		if err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for seat, p := range participants {
			if p.DraftID != draft.ID {
				return fmt.Errorf("participant %s belongs to draft %s", p.ID, p.DraftID)
			}
			filled, err := json.Marshal(nonNilCounts(p.FilledPositions))
			if err != nil {
				return fmt.Errorf("failed to marshal filled positions: %w", err)
			}
			batch.Queue(`
				INSERT INTO draft_participants (id, draft_id, seat, display_name, is_bot, filled_positions)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				p.ID, draft.ID, seat, p.DisplayName, p.IsBot, filled)
		}
		for _, pl := range pool {
			batch.Queue(`
				INSERT INTO draft_pool (draft_id, player_id, full_name, position, team, rank)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				draft.ID, pl.ID, pl.FullName, pl.Position, pl.Team, pl.Rank)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

func (s *Store) GetDraft(ctx context.Context, draftID uuid.UUID) (*models.Draft, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, league_id, status, config, scheduled_at, started_at, completed_at, created_at, updated_at
		FROM drafts WHERE id = $1`, draftID)
	d, err := scanDraft(row)
	if err != nil {
		return nil, mapErr(err)
	}
	return d, nil
}

func (s *Store) ListDraftsByStatus(ctx context.Context, status models.DraftStatus, after *store.DraftCursor, limit int) ([]models.Draft, error) {
	if limit <= 0 {
		limit = 1000
	}
	var (
		rows pgx.Rows
		err  error
	)
	if after == nil {
		rows, err = s.pool.Query(ctx, `
			SELECT id, league_id, status, config, scheduled_at, started_at, completed_at, created_at, updated_at
			FROM drafts WHERE status = $1
			ORDER BY scheduled_at, id
			LIMIT $2`, string(status), limit)
	} else {
		rows, err = s.pool.Query(ctx, `
			SELECT id, league_id, status, config, scheduled_at, started_at, completed_at, created_at, updated_at
			FROM drafts WHERE status = $1 AND (scheduled_at, id) > ($2, $3)
			ORDER BY scheduled_at, id
			LIMIT $4`, string(status), after.ScheduledAt, after.ID, limit)
	}
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []models.Draft
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, mapErr(err)
		}
		out = append(out, *d)
	}
	return out, mapErr(rows.Err())
}

func (s *Store) ListParticipants(ctx context.Context, draftID uuid.UUID) ([]models.Participant, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, draft_id, display_name, is_bot, filled_positions
		FROM draft_participants WHERE draft_id = $1 ORDER BY seat`, draftID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []models.Participant
	for rows.Next() {
		var p models.Participant
		var filled []byte
		if err := rows.Scan(&p.ID, &p.DraftID, &p.DisplayName, &p.IsBot, &filled); err != nil {
			return nil, mapErr(err)
		}
		if err := json.Unmarshal(filled, &p.FilledPositions); err != nil {
			return nil, fmt.Errorf("failed to decode filled positions: %w", err)
		}
		out = append(out, p)
	}
	return out, mapErr(rows.Err())
}

func (s *Store) ListPool(ctx context.Context, draftID uuid.UUID) ([]models.Player, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT player_id, full_name, position, team, rank
		FROM draft_pool WHERE draft_id = $1 ORDER BY rank, player_id`, draftID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []models.Player
	for rows.Next() {
		var p models.Player
		if err := rows.Scan(&p.ID, &p.FullName, &p.Position, &p.Team, &p.Rank); err != nil {
			return nil, mapErr(err)
		}
		out = append(out, p)
	}
	return out, mapErr(rows.Err())
}

func (s *Store) GetSchedule(ctx context.Context, draftID uuid.UUID) ([]models.PickSlot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT overall_pick, round, pick_in_round, participant_id
		FROM draft_slots WHERE draft_id = $1 ORDER BY overall_pick`, draftID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []models.PickSlot
	for rows.Next() {
		var sl models.PickSlot
		if err := rows.Scan(&sl.OverallPick, &sl.Round, &sl.PickInRound, &sl.ParticipantID); err != nil {
			return nil, mapErr(err)
		}
		out = append(out, sl)
	}
	return out, mapErr(rows.Err())
}

func (s *Store) GetState(ctx context.Context, draftID uuid.UUID) (*models.DraftState, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT draft_id, status, current_pick, current_round, on_clock_participant_id,
		       pick_started_at, deadline, remaining_on_pause_ms, version, updated_at
		FROM draft_states WHERE draft_id = $1`, draftID)

	var st models.DraftState
	var status string
	var deadline *time.Time
	var remainingMS int64
	err := row.Scan(&st.DraftID, &status, &st.CurrentPick, &st.CurrentRound, &st.OnClockParticipantID,
		&st.PickStartedAt, &deadline, &remainingMS, &st.Version, &st.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	st.Status = models.DraftStatus(status)
	if deadline != nil {
		st.Deadline = *deadline
	}
	st.RemainingOnPause = time.Duration(remainingMS) * time.Millisecond
	return &st, nil
}

func (s *Store) ListPicks(ctx context.Context, draftID uuid.UUID) ([]models.DraftPick, error) {
	rows, err := s.pool.Query(ctx, pickColumns+` WHERE draft_id = $1 ORDER BY overall_pick`, draftID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []models.DraftPick
	for rows.Next() {
		p, err := scanPick(rows)
		if err != nil {
			return nil, mapErr(err)
		}
		out = append(out, *p)
	}
	return out, mapErr(rows.Err())
}

func (s *Store) GetPickByToken(ctx context.Context, draftID uuid.UUID, token string) (*models.DraftPick, error) {
	row := s.pool.QueryRow(ctx, pickColumns+` WHERE draft_id = $1 AND idempotency_token = $2`, draftID, token)
	p, err := scanPick(row)
	if err != nil {
		return nil, mapErr(err)
	}
	return p, nil
}

func (s *Store) ActivateDraft(ctx context.Context, p store.ActivateParams) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE drafts SET status = $2, started_at = $3, updated_at = $3
			WHERE id = $1 AND status = $4`,
			p.DraftID, string(models.DraftStatusActive), p.StartedAt, string(models.DraftStatusScheduled))
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return store.ErrStatusConflict
		}

		rows := make([][]any, len(p.Schedule))
		for i, sl := range p.Schedule {
			rows[i] = []any{p.DraftID, sl.OverallPick, sl.Round, sl.PickInRound, sl.ParticipantID}
		}
		if _, err := tx.CopyFrom(ctx,
			pgx.Identifier{"draft_slots"},
			[]string{"draft_id", "overall_pick", "round", "pick_in_round", "participant_id"},
			pgx.CopyFromRows(rows),
		); err != nil {
			return err
		}

		st := p.State
		if _, err := tx.Exec(ctx, `
			INSERT INTO draft_states (draft_id, status, current_pick, current_round, on_clock_participant_id,
			                          pick_started_at, deadline, remaining_on_pause_ms, version, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			st.DraftID, string(st.Status), st.CurrentPick, st.CurrentRound, st.OnClockParticipantID,
			st.PickStartedAt, nullTime(st.Deadline), st.RemainingOnPause.Milliseconds(), st.Version, st.UpdatedAt); err != nil {
			return err
		}
		return insertOutbox(ctx, tx, p.Events)
	})
}

func (s *Store) CommitPick(ctx context.Context, p store.CommitParams) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		pk := p.Pick
		if _, err := tx.Exec(ctx, `
			INSERT INTO draft_picks (id, draft_id, overall_pick, round, pick_in_round, participant_id,
			                         player_id, picked_at, autopick, idempotency_token)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			pk.ID, pk.DraftID, pk.OverallPick, pk.Round, pk.PickInRound, pk.ParticipantID,
			pk.PlayerID, pk.PickedAt, pk.Autopick, pk.IdempotencyToken); err != nil {
			return err
		}

		if err := updateState(ctx, tx, p.ExpectedVersion, p.Next, true); err != nil {
			return err
		}

		if p.Next.Status == models.DraftStatusComplete {
			if _, err := tx.Exec(ctx, `
				UPDATE drafts SET status = $2, completed_at = $3, updated_at = $3 WHERE id = $1`,
				pk.DraftID, string(models.DraftStatusComplete), pk.PickedAt); err != nil {
				return err
			}
		} else {
			if _, err := tx.Exec(ctx, `UPDATE drafts SET updated_at = $2 WHERE id = $1`, pk.DraftID, pk.PickedAt); err != nil {
				return err
			}
		}

		if p.Position != "" {
			if _, err := tx.Exec(ctx, `
				UPDATE draft_participants
				SET filled_positions = filled_positions ||
				    jsonb_build_object($3::text, COALESCE((filled_positions->>$3::text)::int, 0) + 1)
				WHERE draft_id = $1 AND id = $2`,
				pk.DraftID, pk.ParticipantID, p.Position); err != nil {
				return err
			}
		}
		return insertOutbox(ctx, tx, p.Events)
	})
}

func (s *Store) UpdateState(ctx context.Context, p store.TransitionParams) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if err := updateState(ctx, tx, p.ExpectedVersion, p.Next, false); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE drafts SET status = $2, updated_at = $3 WHERE id = $1`,
			p.Next.DraftID, string(p.Next.Status), p.Next.UpdatedAt); err != nil {
			return err
		}
		return insertOutbox(ctx, tx, p.Events)
	})
}

func (s *Store) CancelScheduled(ctx context.Context, draftID uuid.UUID, at time.Time, events []models.OutboxEvent) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE drafts SET status = $2, updated_at = $3 WHERE id = $1 AND status = $4`,
			draftID, string(models.DraftStatusCanceled), at, string(models.DraftStatusScheduled))
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return store.ErrStatusConflict
		}
		return insertOutbox(ctx, tx, events)
	})
}

func (s *Store) FetchUnsentOutbox(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, draft_id, event_type, payload, created_at
		FROM draft_outbox WHERE sent_at IS NULL
		ORDER BY created_at, id LIMIT $1`, limit)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []models.OutboxEvent
	for rows.Next() {
		var ev models.OutboxEvent
		var payload []byte
		if err := rows.Scan(&ev.ID, &ev.DraftID, &ev.EventType, &payload, &ev.CreatedAt); err != nil {
			return nil, mapErr(err)
		}
		ev.Payload = payload
		out = append(out, ev)
	}
	return out, mapErr(rows.Err())
}

func (s *Store) FetchOutboxByID(ctx context.Context, id uuid.UUID) (*models.OutboxEvent, error) {
	var ev models.OutboxEvent
	var payload []byte
	err := s.pool.QueryRow(ctx, `
		SELECT id, draft_id, event_type, payload, created_at
		FROM draft_outbox WHERE id = $1 AND sent_at IS NULL`, id).
		Scan(&ev.ID, &ev.DraftID, &ev.EventType, &payload, &ev.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	ev.Payload = payload
	return &ev, nil
}

func (s *Store) MarkOutboxSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE draft_outbox SET sent_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return mapErr(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return mapErr(err)
	}
	return mapErr(tx.Commit(ctx))
}

func updateState(ctx context.Context, tx pgx.Tx, expected int64, st models.DraftState, requireActive bool) error {
	q := `
		UPDATE draft_states
		SET status = $3, current_pick = $4, current_round = $5, on_clock_participant_id = $6,
		    pick_started_at = $7, deadline = $8, remaining_on_pause_ms = $9, version = $10, updated_at = $11
		WHERE draft_id = $1 AND version = $2`
	if requireActive {
		q += ` AND status = 'active'`
	} else {
		q += ` AND status NOT IN ('complete', 'canceled')`
	}
	tag, err := tx.Exec(ctx, q,
		st.DraftID, expected, string(st.Status), st.CurrentPick, st.CurrentRound, st.OnClockParticipantID,
		st.PickStartedAt, nullTime(st.Deadline), st.RemainingOnPause.Milliseconds(), st.Version, st.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrVersionConflict
	}
	return nil
}

// insertOutbox writes events and notifies the relay. Notifications are only
// delivered when the surrounding transaction commits.
func insertOutbox(ctx context.Context, tx pgx.Tx, events []models.OutboxEvent) error {
	for _, ev := range events {
		if _, err := tx.Exec(ctx, `
			INSERT INTO draft_outbox (id, draft_id, event_type, payload, created_at)
			VALUES ($1, $2, $3, $4, $5)`,
			ev.ID, ev.DraftID, ev.EventType, []byte(ev.Payload), ev.CreatedAt); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, NotifyChannel, ev.ID.String()); err != nil {
			return err
		}
	}
	return nil
}

const pickColumns = `
	SELECT id, draft_id, overall_pick, round, pick_in_round, participant_id,
	       player_id, picked_at, autopick, idempotency_token
	FROM draft_picks`

func scanPick(row pgx.Row) (*models.DraftPick, error) {
	var p models.DraftPick
	err := row.Scan(&p.ID, &p.DraftID, &p.OverallPick, &p.Round, &p.PickInRound, &p.ParticipantID,
		&p.PlayerID, &p.PickedAt, &p.Autopick, &p.IdempotencyToken)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanDraft(row pgx.Row) (*models.Draft, error) {
	var d models.Draft
	var status string
	var cfg []byte
	err := row.Scan(&d.ID, &d.LeagueID, &status, &cfg, &d.ScheduledAt, &d.StartedAt, &d.CompletedAt, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.Status = models.DraftStatus(status)
	if err := json.Unmarshal(cfg, &d.Config); err != nil {
		return nil, fmt.Errorf("failed to decode draft config: %w", err)
	}
	return &d, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func nonNilCounts(m map[string]int) map[string]int {
	if m == nil {
		return map[string]int{}
	}
	return m
}

// mapErr turns pgx errors into store errors and marks connection level
// failures as transient.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505":
			return uniqueViolation(pgErr)
		case strings.HasPrefix(pgErr.Code, "40"), strings.HasPrefix(pgErr.Code, "08"), pgErr.Code == "57014":
			return fmt.Errorf("%w: %s", drafterr.ErrTransient, pgErr.Message)
		}
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return fmt.Errorf("%w: %v", drafterr.ErrTransient, err)
	}
	return err
}

func uniqueViolation(pgErr *pgconn.PgError) error {
	switch pgErr.ConstraintName {
	case "draft_picks_token_key":
		return store.ErrDuplicateToken
	case "draft_picks_overall_key":
		return store.ErrDuplicateOverall
	case "draft_picks_player_key":
		return store.ErrDuplicatePlayer
	case "drafts_pkey":
		return store.ErrAlreadyExists
	default:
		return fmt.Errorf("unique violation on %s: %w", pgErr.ConstraintName, pgErr)
	}
}
