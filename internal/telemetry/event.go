// Package telemetry carries identity lifecycle events to the configured sink (Kafka or OTel logs).
package telemetry

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Event types.
const (
	EventUserCreated = "user.created"
	EventUserSynced  = "user.synced"
	EventUserUpdated = "user.updated"
	EventUserDeleted = "user.deleted"
	EventHTTPRequest = "http_request"
)

// Event is one identity lifecycle or request event. Serialized as JSON on the Kafka topic.
type Event struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	UserID    string            `json:"user_id,omitempty"`
	Subject   string            `json:"subject,omitempty"`
	Source    string            `json:"source"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewEvent returns an event with a fresh id and the current UTC time.
func NewEvent(eventType, source string) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    source,
		CreatedAt: time.Now().UTC(),
	}
}

// WithUser sets the local user id and provider subject.
func (e *Event) WithUser(userID int64, subject string) *Event {
	if userID != 0 {
		e.UserID = strconv.FormatInt(userID, 10)
	}
	e.Subject = subject
	return e
}

// With adds a metadata entry.
func (e *Event) With(key, value string) *Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}
