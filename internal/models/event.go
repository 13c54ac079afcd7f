package models

import (
	"encoding/json"
	"time"

	"github.com/cartoncaps/analytics/internal/types"
)

// Event represents one lifecycle event in the app event stream
type Event struct {
	EventID    int64             `json:"eventId" db:"event_id"`
	UserID     int64             `json:"userId" db:"user_id"`
	EventType  types.EventType   `json:"eventType" db:"event_type"`
	EventAt    time.Time         `json:"eventAt" db:"event_at"`
	ReferralID *int64            `json:"referralId,omitempty" db:"referral_id"`
	Metadata   map[string]string `json:"metadata" db:"metadata"`
}

var eventColumns = []string{"event_id", "user_id", "event_type", "event_at", "referral_id", "metadata"}

// MetadataJSON encodes the metadata bag with sorted keys; an empty bag encodes as {}
func (e *Event) MetadataJSON() string {
	if len(e.Metadata) == 0 {
		return "{}"
	}
	b, err := json.Marshal(e.Metadata)
	if err != nil {
		// map[string]string always marshals
		return "{}"
	}
	return string(b)
}

// Columns returns the event column order
func (e *Event) Columns() []string { return eventColumns }

// Values returns the event field values
func (e *Event) Values() []any {
	var referralID any
	if e.ReferralID != nil {
		referralID = *e.ReferralID
	}
	return []any{e.EventID, e.UserID, string(e.EventType), e.EventAt, referralID, e.MetadataJSON()}
}
