package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kpm34/cfbdraft/go/internal/draft/store"
	"github.com/kpm34/cfbdraft/go/internal/models"
	"github.com/kpm34/cfbdraft/go/internal/sqlutil"
	_ "github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"
)

// Repository reads the Postgres outbox table over database/sql, sharing the
// lib/pq driver with the LISTEN connection.
type Repository struct {
	db *sql.DB
}

var (
	_ Source         = (*Repository)(nil)
	_ PendingCounter = (*Repository)(nil)
)

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// OpenRepository opens and pings a database/sql pool for dsn.
func OpenRepository(ctx context.Context, dsn string) (*Repository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Repository{db: db}, nil
}

func (r *Repository) DB() *sql.DB {
	return r.db
}

func (r *Repository) Close() error {
	return r.db.Close()
}

const selectOutbox = `SELECT id, draft_id, event_type, payload, created_at, sent_at FROM draft_outbox`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOutbox(row rowScanner) (models.OutboxEvent, error) {
	var (
		ev      models.OutboxEvent
		payload pqtype.NullRawMessage
		sentAt  sql.NullTime
	)
	if err := row.Scan(&ev.ID, &ev.DraftID, &ev.EventType, &payload, &ev.CreatedAt, &sentAt); err != nil {
		return ev, err
	}
	ev.Payload = sqlutil.FromNullRawMessage(payload)
	ev.SentAt = sqlutil.FromSqlTime(sentAt)
	return ev, nil
}

func (r *Repository) FetchUnsentOutbox(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	rows, err := r.db.QueryContext(ctx, selectOutbox+`
		WHERE sent_at IS NULL
		ORDER BY created_at, id
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch unsent outbox: %w", err)
	}
	defer rows.Close()

	var out []models.OutboxEvent
	for rows.Next() {
		ev, err := scanOutbox(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (r *Repository) FetchOutboxByID(ctx context.Context, id uuid.UUID) (*models.OutboxEvent, error) {
	ev, err := scanOutbox(r.db.QueryRowContext(ctx, selectOutbox+` WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch outbox event: %w", err)
	}
	return &ev, nil
}

// MarkOutboxSent stamps sent_at once; marking a sent row again is a no-op.
func (r *Repository) MarkOutboxSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE draft_outbox SET sent_at = $2 WHERE id = $1 AND sent_at IS NULL`, id, at)
	if err != nil {
		return fmt.Errorf("mark outbox sent: %w", err)
	}
	return nil
}

func (r *Repository) CountPending(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM draft_outbox WHERE sent_at IS NULL`).Scan(&count)
	return count, err
}
