package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/utbetaling/internal/domain"
)

// eventQuerier покрывает *sql.DB и *sql.Tx: постановка события выполняется
// и автономно, и внутри транзакции смены статуса.
type eventQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// insertEvent ставит доменное событие в utbetaling_events и возвращает его id.
// Непубликованное событие того же решения и типа замещается свежим payload:
// подписчикам важен последний снимок, а не история переписываний.
func insertEvent(ctx context.Context, q eventQuerier, msg domain.OutboxMessage, now time.Time) (string, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	var id string
	err := q.QueryRowContext(ctx, `
		INSERT INTO utbetaling_events (
			id, vedtak_id, sak_id, event_type, payload,
			status, attempt_count, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,'pending',0,$6,$6)
		ON CONFLICT (vedtak_id, event_type) WHERE status = 'pending'
		DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at
		RETURNING id
	`,
		msg.ID, msg.VedtakID.String(), msg.SakID.String(), msg.EventType, msg.Payload, now,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("enqueue event for vedtak %s: %w", msg.VedtakID, err)
	}

	return id, nil
}

type outboxRepository struct {
	db *sql.DB
}

// NewOutboxRepository создаёт PostgreSQL-реализацию OutboxRepository.
func NewOutboxRepository(store *Store) domain.OutboxRepository {
	return &outboxRepository{db: store.DB()}
}

func (r *outboxRepository) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	id, err := insertEvent(ctx, r.db, msg, time.Now().UTC())
	if err != nil {
		return domain.OutboxMessage{}, err
	}
	msg.ID = id

	return msg, nil
}

func (r *outboxRepository) PullPending(limit int) ([]domain.OutboxMessage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, vedtak_id, sak_id, event_type, payload
		FROM utbetaling_events
		WHERE status = 'pending'
		ORDER BY created_at, id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("pull pending events: %w", err)
	}
	defer rows.Close()

	result := make([]domain.OutboxMessage, 0, limit)
	for rows.Next() {
		var (
			msg             domain.OutboxMessage
			vedtakID, sakID string
		)
		if err := rows.Scan(&msg.ID, &vedtakID, &sakID, &msg.EventType, &msg.Payload); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		msg.VedtakID = domain.VedtakId(vedtakID)
		msg.SakID = domain.SakId(sakID)
		result = append(result, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}

	return result, nil
}

func (r *outboxRepository) Stats() (domain.OutboxStats, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		stats  domain.OutboxStats
		oldest sql.NullTime
	)

	if err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), MIN(created_at)
		FROM utbetaling_events
		WHERE status = 'pending'
	`).Scan(&stats.PendingCount, &oldest); err != nil {
		return domain.OutboxStats{}, fmt.Errorf("event backlog query failed: %w", err)
	}

	if oldest.Valid {
		stats.OldestPendingAt = oldest.Time.UTC()
	}

	return stats, nil
}

func (r *outboxRepository) MarkSent(id string) error {
	return r.markStatus(id, "sent")
}

func (r *outboxRepository) MarkFailed(id string) error {
	return r.markStatus(id, "failed")
}

func (r *outboxRepository) markStatus(id, status string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE utbetaling_events
		SET status = $2,
		    attempt_count = attempt_count + 1,
		    updated_at = $3
		WHERE id = $1
	`, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark event as %s: %w", status, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for event %s: %w", status, err)
	}
	if affected == 0 {
		return domain.ErrOutboxPublish
	}

	return nil
}

var _ domain.OutboxRepository = (*outboxRepository)(nil)
