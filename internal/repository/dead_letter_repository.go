package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sequentia/remindflow-backend/internal/model"
)

type DeadLetterRepositoryInterface interface {
	Create(ctx context.Context, e *model.DeadLetterEntry) error
	GetByID(ctx context.Context, id int64) (*model.DeadLetterEntry, error)

	// List returns newest-first entries, optionally filtered by status and
	// source_table, bounded by limit.
	List(ctx context.Context, status, sourceTable string, limit int) ([]*model.DeadLetterEntry, error)

	// MarkReviewed swaps pending_review for a terminal status. Returns false
	// when the entry was already reviewed.
	MarkReviewed(ctx context.Context, id int64, status model.ReviewStatus, reviewedBy string, notes *string, at time.Time) (bool, error)
}

type DeadLetterRepository struct {
	DB *sql.DB
}

const deadLetterColumns = `id, organization_id, source_table, source_id, payload, retry_payload,
        error_message, retry_count, status, created_at, reviewed_at, reviewed_by, notes`

func scanDeadLetter(row interface{ Scan(...interface{}) error }) (*model.DeadLetterEntry, error) {
	var e model.DeadLetterEntry
	err := row.Scan(
		&e.ID, &e.OrganizationID, &e.SourceTable, &e.SourceID, &e.Payload, &e.RetryPayload,
		&e.ErrorMessage, &e.RetryCount, &e.Status, &e.CreatedAt, &e.ReviewedAt, &e.ReviewedBy, &e.Notes,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *DeadLetterRepository) Create(ctx context.Context, e *model.DeadLetterEntry) error {
	if e.Status == "" {
		e.Status = model.ReviewPending
	}
	const q = `
        INSERT INTO dead_letter_entries
            (organization_id, source_table, source_id, payload, retry_payload,
             error_message, retry_count, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
        RETURNING id, created_at
    `
	return r.DB.QueryRowContext(ctx, q,
		e.OrganizationID, e.SourceTable, e.SourceID, e.Payload, e.RetryPayload,
		e.ErrorMessage, e.RetryCount, e.Status,
	).Scan(&e.ID, &e.CreatedAt)
}

func (r *DeadLetterRepository) GetByID(ctx context.Context, id int64) (*model.DeadLetterEntry, error) {
	q := `SELECT ` + deadLetterColumns + ` FROM dead_letter_entries WHERE id=$1`
	e, err := scanDeadLetter(r.DB.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

func (r *DeadLetterRepository) List(ctx context.Context, status, sourceTable string, limit int) ([]*model.DeadLetterEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := `SELECT ` + deadLetterColumns + ` FROM dead_letter_entries WHERE 1=1`
	args := []interface{}{}
	argPos := 1

	if status != "" {
		query += fmt.Sprintf(" AND status=$%d", argPos)
		args = append(args, status)
		argPos++
	}
	if sourceTable != "" {
		query += fmt.Sprintf(" AND source_table=$%d", argPos)
		args = append(args, sourceTable)
		argPos++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", argPos)
	args = append(args, limit)

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []*model.DeadLetterEntry{}
	for rows.Next() {
		e, err := scanDeadLetter(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *DeadLetterRepository) MarkReviewed(ctx context.Context, id int64, status model.ReviewStatus, reviewedBy string, notes *string, at time.Time) (bool, error) {
	const q = `
        UPDATE dead_letter_entries
        SET status=$2, reviewed_at=$3, reviewed_by=$4, notes=$5
        WHERE id=$1 AND status='pending_review'
    `
	res, err := r.DB.ExecContext(ctx, q, id, status, at.UTC(), reviewedBy, notes)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

var _ DeadLetterRepositoryInterface = (*DeadLetterRepository)(nil)
