// internal/service/delivery_service.go
package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	appErrors "github.com/sequentia/remindflow-backend/internal/errors"
	"github.com/sequentia/remindflow-backend/internal/metrics"
	"github.com/sequentia/remindflow-backend/internal/model"
	"github.com/sequentia/remindflow-backend/internal/notify"
	"github.com/sequentia/remindflow-backend/internal/repository"
	"github.com/sequentia/remindflow-backend/internal/sender"
)

// DeliveryService implements the worker side of the message state machine.
// Every transition out of pending goes through the repository's CAS; a lost
// swap means another worker or a cancellation got there first and the caller
// walks away.
type DeliveryService struct {
	Messages    repository.ScheduledMessageRepositoryInterface
	DeadLetters repository.DeadLetterRepositoryInterface
	Sender      sender.Sender
	Notifier    *notify.Notifier
	Log         *zap.Logger

	MaxRetries int
	// SendRetryWindow bounds the in-pass backoff around one provider call.
	SendRetryWindow time.Duration
	Now             func() time.Time
}

func (d *DeliveryService) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *DeliveryService) maxRetries() int {
	if d.MaxRetries <= 0 {
		return 3
	}
	return d.MaxRetries
}

func (d *DeliveryService) publish(eventID, messageID int64, status model.MessageStatus) {
	if d.Notifier != nil {
		d.Notifier.Publish(notify.Change{EventID: eventID, MessageID: messageID, Status: status})
	}
}

// Deliver runs one delivery pass for the row: claim, re-verify, send, record
// the outcome. A failed claim is a no-op, not an error.
func (d *DeliveryService) Deliver(ctx context.Context, id int64) error {
	claimed, err := d.Messages.Claim(ctx, id)
	if err != nil {
		return err
	}
	if !claimed {
		// cancelled, already claimed, or already terminal
		return nil
	}

	msg, err := d.Messages.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if msg == nil {
		return nil
	}
	d.publish(msg.EventID, msg.ID, model.StatusSending)

	// The provider call is not instantaneous. Re-verify right before the
	// network send so a cancellation racing the claim never goes out.
	status, err := d.Messages.Status(ctx, id)
	if err != nil {
		return err
	}
	if status != model.StatusSending {
		if d.Log != nil {
			d.Log.Info("message no longer sending, dropping claim",
				zap.Int64("message_id", id), zap.String("status", string(status)))
		}
		return nil
	}

	req := sender.Request{
		MessageID:       msg.ID,
		TargetChannelID: msg.TargetChannelID,
		RenderedContent: msg.RenderedContent,
		MediaRef:        msg.MediaRef,
	}

	sendErr := d.sendWithBackoff(ctx, req)
	if sendErr == nil {
		ok, err := d.Messages.MarkSent(ctx, id, d.now())
		if err != nil {
			return err
		}
		if ok {
			metrics.MessagesSent.Inc()
			d.publish(msg.EventID, msg.ID, model.StatusSent)
			if d.Log != nil {
				d.Log.Info("message sent", zap.Int64("message_id", id))
			}
		}
		return nil
	}

	var dErr *sender.DeliveryError
	permanent := errors.As(sendErr, &dErr) && dErr.Permanent
	exhausted := msg.RetryCount+1 >= d.maxRetries()

	if permanent || exhausted {
		return d.escalate(ctx, msg, sendErr.Error())
	}

	ok, err := d.Messages.MarkRetry(ctx, id, sendErr.Error())
	if err != nil {
		return err
	}
	if ok {
		metrics.DeliveryFailures.Inc()
		d.publish(msg.EventID, msg.ID, model.StatusPending)
		if d.Log != nil {
			d.Log.Warn("delivery failed, returned to pending",
				zap.Int64("message_id", id),
				zap.Int("retry_count", msg.RetryCount+1),
				zap.Error(sendErr),
			)
		}
	}
	return nil
}

// sendWithBackoff retries transient provider blips within a single delivery
// pass. Permanent failures stop immediately.
func (d *DeliveryService) sendWithBackoff(ctx context.Context, req sender.Request) error {
	operation := func() error {
		err := d.Sender.Send(ctx, req)
		var dErr *sender.DeliveryError
		if errors.As(err, &dErr) && dErr.Permanent {
			return backoff.Permanent(err)
		}
		return err
	}

	window := d.SendRetryWindow
	if window <= 0 {
		window = 3 * time.Second
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = window / 10
	b.MaxElapsedTime = window

	return backoff.Retry(operation, backoff.WithContext(b, ctx))
}

// escalate moves the row to failed and writes exactly one dead letter entry.
// The CAS guards the exactly-once: only the worker that wins sending->failed
// creates the entry.
func (d *DeliveryService) escalate(ctx context.Context, msg *model.ScheduledMessage, errMsg string) error {
	ok, err := d.Messages.MarkFailed(ctx, msg.ID, errMsg)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	d.publish(msg.EventID, msg.ID, model.StatusFailed)

	payload, err := json.Marshal(sender.Request{
		MessageID:       msg.ID,
		TargetChannelID: msg.TargetChannelID,
		RenderedContent: msg.RenderedContent,
		MediaRef:        msg.MediaRef,
	})
	if err != nil {
		return err
	}

	entry := &model.DeadLetterEntry{
		OrganizationID: msg.OrganizationID,
		SourceTable:    model.SourceScheduledMessages,
		SourceID:       msg.ID,
		Payload:        string(payload),
		ErrorMessage:   errMsg,
		RetryCount:     msg.RetryCount + 1,
		Status:         model.ReviewPending,
	}
	if err := d.DeadLetters.Create(ctx, entry); err != nil {
		return err
	}
	metrics.DeadLettered.Inc()

	if d.Log != nil {
		d.Log.Error("message dead-lettered",
			zap.Int64("message_id", msg.ID),
			zap.Int64("dead_letter_id", entry.ID),
			zap.String("error", errMsg),
		)
	}
	return nil
}

// CancelMessage is the operator-initiated pending/sending -> cancelled
// transition. Best-effort against an already-dispatched provider call.
func (d *DeliveryService) CancelMessage(ctx context.Context, id int64) error {
	msg, err := d.Messages.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if msg == nil {
		return appErrors.NewNotFound("scheduled message", id)
	}
	ok, err := d.Messages.Cancel(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return appErrors.NewTransition(id, string(msg.Status))
	}
	d.publish(msg.EventID, id, model.StatusCancelled)
	return nil
}

// RequeueMessage puts a failed or cancelled row back in line. This is the
// separate, explicit operator step a DLQ "retry" does not perform.
func (d *DeliveryService) RequeueMessage(ctx context.Context, id int64) error {
	msg, err := d.Messages.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if msg == nil {
		return appErrors.NewNotFound("scheduled message", id)
	}
	ok, err := d.Messages.Requeue(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return appErrors.NewTransition(id, string(msg.Status))
	}
	d.publish(msg.EventID, id, model.StatusPending)
	return nil
}

// ReapStale recovers rows a crashed worker left in sending. Rows with retry
// budget left go back to pending; rows that already burned through it are
// failed and dead-lettered instead of looping forever.
func (d *DeliveryService) ReapStale(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	stale, err := d.Messages.ListStaleSending(ctx, cutoff, limit)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, msg := range stale {
		const reason = "worker stalled mid-send, recovered by reaper"
		if msg.RetryCount+1 >= d.maxRetries() {
			if err := d.escalate(ctx, msg, reason); err != nil {
				return recovered, err
			}
		} else {
			ok, err := d.Messages.MarkRetry(ctx, msg.ID, reason)
			if err != nil {
				return recovered, err
			}
			if ok {
				d.publish(msg.EventID, msg.ID, model.StatusPending)
			}
		}
		metrics.StaleRequeues.Inc()
		recovered++
	}

	if recovered > 0 && d.Log != nil {
		d.Log.Warn("reaper recovered stale sending rows", zap.Int("count", recovered))
	}
	return recovered, nil
}
