// internal/model/message.go
package model

import "time"

type MessageStatus string

const (
	StatusPending   MessageStatus = "pending"
	StatusSending   MessageStatus = "sending"
	StatusSent      MessageStatus = "sent"
	StatusFailed    MessageStatus = "failed"
	StatusCancelled MessageStatus = "cancelled"
)

// Terminal reports whether the delivery state machine can still move the row.
// Only pending and sending rows count against the one-active-row invariant.
func (s MessageStatus) Terminal() bool {
	return s == StatusSent || s == StatusFailed || s == StatusCancelled
}

type ScheduledMessage struct {
	ID              int64         `db:"id" json:"id"`
	OrganizationID  int64         `db:"organization_id" json:"organization_id"`
	EventID         int64         `db:"event_id" json:"event_id"`
	TargetChannelID int64         `db:"target_channel_id" json:"target_channel_id"`
	StepKey         string        `db:"step_key" json:"step_key"`
	RenderedContent string        `db:"rendered_content" json:"rendered_content"`
	MediaRef        string        `db:"media_ref" json:"media_ref,omitempty"`
	ScheduledFor    time.Time     `db:"scheduled_for" json:"scheduled_for"`
	Status          MessageStatus `db:"status" json:"status"`
	SentAt          *time.Time    `db:"sent_at" json:"sent_at,omitempty"`
	ErrorMessage    string        `db:"error_message" json:"error_message,omitempty"`
	RetryCount      int           `db:"retry_count" json:"retry_count"`
	CreatedBy       string        `db:"created_by" json:"created_by"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updated_at"`
}
