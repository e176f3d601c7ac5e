// internal/model/dead_letter.go
package model

import "time"

type ReviewStatus string

const (
	ReviewPending   ReviewStatus = "pending_review"
	ReviewRetried   ReviewStatus = "retried"
	ReviewDiscarded ReviewStatus = "discarded"
)

// SourceScheduledMessages identifies the scheduled_messages family in
// dead_letter_entries.source_table.
const SourceScheduledMessages = "scheduled_messages"

type DeadLetterEntry struct {
	ID             int64        `db:"id" json:"id"`
	OrganizationID int64        `db:"organization_id" json:"organization_id"`
	SourceTable    string       `db:"source_table" json:"source_table"`
	SourceID       int64        `db:"source_id" json:"source_id"`
	Payload        string       `db:"payload" json:"payload"`
	RetryPayload   *string      `db:"retry_payload" json:"retry_payload,omitempty"`
	ErrorMessage   string       `db:"error_message" json:"error_message"`
	RetryCount     int          `db:"retry_count" json:"retry_count"`
	Status         ReviewStatus `db:"status" json:"status"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
	ReviewedAt     *time.Time   `db:"reviewed_at" json:"reviewed_at,omitempty"`
	ReviewedBy     *string      `db:"reviewed_by" json:"reviewed_by,omitempty"`
	Notes          *string      `db:"notes" json:"notes,omitempty"`
}
