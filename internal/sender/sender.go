// Package sender defines the boundary to the external channel provider.
// The core never speaks the provider wire protocol; it hands a Request to a
// Sender and classifies the outcome.
package sender

import (
	"context"
	"fmt"
)

type Request struct {
	MessageID       int64  `json:"message_id"`
	TargetChannelID int64  `json:"target_channel_id"`
	RenderedContent string `json:"rendered_content"`
	MediaRef        string `json:"media_ref,omitempty"`
}

type Sender interface {
	Send(ctx context.Context, req Request) error
}

// DeliveryError is the structured failure a Sender reports back. Permanent
// failures skip the retry budget and go straight to the dead letter queue.
type DeliveryError struct {
	Reason    string
	Permanent bool
}

func (e *DeliveryError) Error() string {
	if e.Permanent {
		return fmt.Sprintf("permanent delivery failure: %s", e.Reason)
	}
	return fmt.Sprintf("transient delivery failure: %s", e.Reason)
}

func Transient(format string, args ...interface{}) error {
	return &DeliveryError{Reason: fmt.Sprintf(format, args...)}
}

func Permanent(format string, args ...interface{}) error {
	return &DeliveryError{Reason: fmt.Sprintf(format, args...), Permanent: true}
}
