package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sequentia/remindflow-backend/internal/model"
)

// PairKey identifies one (step, target) slot of an event's sequence. The
// uniqueness invariant says at most one non-terminal row may occupy a slot.
func PairKey(stepKey string, targetChannelID int64) string {
	return fmt.Sprintf("%s|%d", stepKey, targetChannelID)
}

type ScheduledMessageRepositoryInterface interface {
	// CreateBatch inserts the rows in one transaction and returns how many
	// actually landed. Rows racing an existing active (event, step, target)
	// slot are dropped by the partial unique index, not duplicated.
	CreateBatch(ctx context.Context, msgs []*model.ScheduledMessage) (int, error)

	GetByID(ctx context.Context, id int64) (*model.ScheduledMessage, error)
	ListByEvent(ctx context.Context, eventID int64, limit int) ([]*model.ScheduledMessage, error)
	StatsByEvent(ctx context.Context, eventID int64) (map[string]int, error)

	// ActivePairs returns the PairKeys holding a pending or sending row for
	// the event, for the materializer's duplicate skip.
	ActivePairs(ctx context.Context, eventID int64) (map[string]bool, error)

	// ListDueIDs returns pending rows whose scheduled_for is at or before now.
	ListDueIDs(ctx context.Context, now time.Time, limit int) ([]int64, error)
	ListStaleSending(ctx context.Context, cutoff time.Time, limit int) ([]*model.ScheduledMessage, error)

	// Status re-reads only the status column; workers call this immediately
	// before the provider send.
	Status(ctx context.Context, id int64) (model.MessageStatus, error)

	// Compare-and-swap transitions. Each returns false when the row was not
	// in the expected prior status, which the caller treats as a no-op.
	Claim(ctx context.Context, id int64) (bool, error)
	MarkSent(ctx context.Context, id int64, at time.Time) (bool, error)
	MarkRetry(ctx context.Context, id int64, errMsg string) (bool, error)
	MarkFailed(ctx context.Context, id int64, errMsg string) (bool, error)
	Cancel(ctx context.Context, id int64) (bool, error)
	Requeue(ctx context.Context, id int64) (bool, error)
}

type ScheduledMessageRepository struct {
	DB *sql.DB
}

const messageColumns = `id, organization_id, event_id, target_channel_id, step_key, rendered_content,
        media_ref, scheduled_for, status, sent_at, error_message, retry_count, created_by, created_at, updated_at`

func scanMessage(row interface{ Scan(...interface{}) error }) (*model.ScheduledMessage, error) {
	var m model.ScheduledMessage
	err := row.Scan(
		&m.ID, &m.OrganizationID, &m.EventID, &m.TargetChannelID, &m.StepKey, &m.RenderedContent,
		&m.MediaRef, &m.ScheduledFor, &m.Status, &m.SentAt, &m.ErrorMessage, &m.RetryCount,
		&m.CreatedBy, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.ScheduledFor = m.ScheduledFor.UTC()
	return &m, nil
}

// ====================== Materializer writes ======================

func (r *ScheduledMessageRepository) CreateBatch(ctx context.Context, msgs []*model.ScheduledMessage) (int, error) {
	if len(msgs) == 0 {
		return 0, nil
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	// ON CONFLICT against the partial unique index on
	// (event_id, step_key, target_channel_id) WHERE status IN ('pending','sending')
	// makes the duplicate check and the insert one atomic operation, so a
	// concurrent materialization for the same event cannot interleave.
	const q = `
        INSERT INTO scheduled_messages
            (organization_id, event_id, target_channel_id, step_key, rendered_content,
             media_ref, scheduled_for, status, retry_count, created_by, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', 0, $8, NOW(), NOW())
        ON CONFLICT (event_id, step_key, target_channel_id)
            WHERE status IN ('pending','sending')
            DO NOTHING
        RETURNING id, created_at
    `

	created := 0
	for _, m := range msgs {
		err := tx.QueryRowContext(ctx, q,
			m.OrganizationID, m.EventID, m.TargetChannelID, m.StepKey, m.RenderedContent,
			m.MediaRef, m.ScheduledFor.UTC(), m.CreatedBy,
		).Scan(&m.ID, &m.CreatedAt)
		if err == sql.ErrNoRows {
			// lost the race to an earlier active row for this slot
			continue
		}
		if err != nil {
			return 0, err
		}
		m.Status = model.StatusPending
		created++
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return created, nil
}

// ====================== Reads ======================

func (r *ScheduledMessageRepository) GetByID(ctx context.Context, id int64) (*model.ScheduledMessage, error) {
	q := `SELECT ` + messageColumns + ` FROM scheduled_messages WHERE id=$1`
	m, err := scanMessage(r.DB.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

func (r *ScheduledMessageRepository) ListByEvent(ctx context.Context, eventID int64, limit int) ([]*model.ScheduledMessage, error) {
	if limit <= 0 {
		limit = 200
	}
	q := `SELECT ` + messageColumns + `
          FROM scheduled_messages WHERE event_id=$1
          ORDER BY scheduled_for ASC, id ASC LIMIT $2`
	rows, err := r.DB.QueryContext(ctx, q, eventID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []*model.ScheduledMessage{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (r *ScheduledMessageRepository) StatsByEvent(ctx context.Context, eventID int64) (map[string]int, error) {
	q := `SELECT status, COUNT(*) FROM scheduled_messages WHERE event_id=$1 GROUP BY status`
	rows, err := r.DB.QueryContext(ctx, q, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[string]int{
		"pending": 0, "sending": 0, "sent": 0, "failed": 0, "cancelled": 0, "total": 0,
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
		stats["total"] += count
	}
	return stats, rows.Err()
}

func (r *ScheduledMessageRepository) ActivePairs(ctx context.Context, eventID int64) (map[string]bool, error) {
	q := `SELECT step_key, target_channel_id FROM scheduled_messages
          WHERE event_id=$1 AND status IN ('pending','sending')`
	rows, err := r.DB.QueryContext(ctx, q, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pairs := map[string]bool{}
	for rows.Next() {
		var stepKey string
		var channelID int64
		if err := rows.Scan(&stepKey, &channelID); err != nil {
			return nil, err
		}
		pairs[PairKey(stepKey, channelID)] = true
	}
	return pairs, rows.Err()
}

func (r *ScheduledMessageRepository) ListDueIDs(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT id FROM scheduled_messages
          WHERE status='pending' AND scheduled_for <= $1
          ORDER BY scheduled_for ASC LIMIT $2`
	rows, err := r.DB.QueryContext(ctx, q, now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *ScheduledMessageRepository) ListStaleSending(ctx context.Context, cutoff time.Time, limit int) ([]*model.ScheduledMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT ` + messageColumns + `
          FROM scheduled_messages
          WHERE status='sending' AND updated_at < $1
          ORDER BY updated_at ASC LIMIT $2`
	rows, err := r.DB.QueryContext(ctx, q, cutoff.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []*model.ScheduledMessage{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (r *ScheduledMessageRepository) Status(ctx context.Context, id int64) (model.MessageStatus, error) {
	var status model.MessageStatus
	err := r.DB.QueryRowContext(ctx, `SELECT status FROM scheduled_messages WHERE id=$1`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return status, err
}

// ====================== State machine (CAS) ======================

func (r *ScheduledMessageRepository) cas(ctx context.Context, query string, args ...interface{}) (bool, error) {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Claim is the sole guard against double-send: only one worker can win the
// pending -> sending swap.
func (r *ScheduledMessageRepository) Claim(ctx context.Context, id int64) (bool, error) {
	return r.cas(ctx, `UPDATE scheduled_messages
        SET status='sending', updated_at=NOW()
        WHERE id=$1 AND status='pending'`, id)
}

func (r *ScheduledMessageRepository) MarkSent(ctx context.Context, id int64, at time.Time) (bool, error) {
	return r.cas(ctx, `UPDATE scheduled_messages
        SET status='sent', sent_at=$2, error_message='', updated_at=NOW()
        WHERE id=$1 AND status='sending'`, id, at.UTC())
}

func (r *ScheduledMessageRepository) MarkRetry(ctx context.Context, id int64, errMsg string) (bool, error) {
	return r.cas(ctx, `UPDATE scheduled_messages
        SET status='pending', error_message=$2, retry_count=retry_count+1, updated_at=NOW()
        WHERE id=$1 AND status='sending'`, id, errMsg)
}

func (r *ScheduledMessageRepository) MarkFailed(ctx context.Context, id int64, errMsg string) (bool, error) {
	return r.cas(ctx, `UPDATE scheduled_messages
        SET status='failed', error_message=$2, updated_at=NOW()
        WHERE id=$1 AND status='sending'`, id, errMsg)
}

// Cancel works from pending or sending. A worker holding a claimed row finds
// out through its pre-send status re-check.
func (r *ScheduledMessageRepository) Cancel(ctx context.Context, id int64) (bool, error) {
	return r.cas(ctx, `UPDATE scheduled_messages
        SET status='cancelled', updated_at=NOW()
        WHERE id=$1 AND status IN ('pending','sending')`, id)
}

// Requeue is the explicit operator step that puts a failed or cancelled row
// back in line. Deliberately never triggered by a DLQ retry.
func (r *ScheduledMessageRepository) Requeue(ctx context.Context, id int64) (bool, error) {
	return r.cas(ctx, `UPDATE scheduled_messages
        SET status='pending', error_message='', retry_count=0, updated_at=NOW()
        WHERE id=$1 AND status IN ('failed','cancelled')`, id)
}

var _ ScheduledMessageRepositoryInterface = (*ScheduledMessageRepository)(nil)
