// internal/model/event.go
package model

import "time"

// Event is the anchor the event registry hands us. StartAt is an absolute UTC
// instant; Timezone is the owning organization's IANA zone name and decides
// which calendar date the sequence steps anchor to.
type Event struct {
	ID             int64     `json:"id"`
	OrganizationID int64     `json:"organization_id"`
	Title          string    `json:"title"`
	StartAt        time.Time `json:"start_at"`
	Timezone       string    `json:"timezone"`
}

type StepTemplate struct {
	Content  string `json:"content"`
	MediaRef string `json:"media_ref,omitempty"`
}

// SequenceStep is one unit of a sequence as supplied by the template catalog.
// Label is the stable step key; SendTime is local wall-clock "HH:MM:SS".
type SequenceStep struct {
	Order    int          `json:"order"`
	Label    string       `json:"label"`
	SendTime string       `json:"send_time"`
	Template StepTemplate `json:"template"`
}
