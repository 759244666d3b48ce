// Package events publishes task lifecycle notifications.
//
// The Bus interface enables pub/sub over various backends (NATS,
// in-memory). Every successful queue mutation emits one event; consumers
// (dashboards, exporters, downstream batch tooling) subscribe by subject.
// Delivery is best effort: the pipeline's source of truth is the task
// store, never the bus.
package events

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/annoq/annoq/pipeline"
)

// Common errors.
var (
	ErrClosed         = errors.New("bus closed")
	ErrInvalidSubject = errors.New("invalid subject")
)

// Lifecycle subjects.
const (
	SubjectCreated   = "task.created"
	SubjectClaimed   = "task.claimed"
	SubjectSubmitted = "task.submitted"
	SubjectApproved  = "task.approved"
	SubjectAdvanced  = "task.advanced"
	SubjectDone      = "task.done"
	SubjectReleased  = "task.released"

	// SubjectAll subscribes to every task lifecycle event.
	SubjectAll = "task.*"
)

// Event is the payload published for each lifecycle transition.
type Event struct {
	// Subject names the transition (one of the Subject constants).
	Subject string `json:"subject"`

	// TaskID is the affected task.
	TaskID string `json:"task_id"`

	// BatchID is the task's owning batch.
	BatchID string `json:"batch_id"`

	// Stage is the task's pipeline stage after the transition.
	Stage pipeline.Stage `json:"pipeline_stage"`

	// Status is the task's status after the transition.
	Status pipeline.Status `json:"status"`

	// ActorID is the actor that triggered the transition, if any.
	ActorID string `json:"actor_id,omitempty"`

	// At is when the transition was recorded.
	At time.Time `json:"at"`
}

// Encode serializes the event for publishing.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode deserializes an event payload.
func Decode(data []byte) (Event, error) {
	var e Event
	err := json.Unmarshal(data, &e)
	return e, err
}

// Message represents a message received from the bus.
type Message struct {
	// Subject the message was published to.
	Subject string

	// Data is the message payload.
	Data []byte
}

// Bus provides pub/sub messaging for lifecycle events.
type Bus interface {
	// Publish sends a message to all subscribers of a subject.
	Publish(subject string, data []byte) error

	// Subscribe creates a subscription to a subject.
	// Subjects support a trailing * wildcard (e.g. "task.*").
	Subscribe(subject string) (Subscription, error)

	// Close shuts down the bus connection.
	Close() error
}

// Subscription represents an active subscription.
type Subscription interface {
	// Messages returns the channel for incoming messages.
	// Channel is closed when subscription ends.
	Messages() <-chan *Message

	// Unsubscribe cancels the subscription.
	Unsubscribe() error
}

// Config holds common bus configuration.
type Config struct {
	// BufferSize for subscription channels.
	// Default: 256
	BufferSize int
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BufferSize: 256,
	}
}

// ValidateSubject checks if a subject is valid.
func ValidateSubject(subject string) error {
	if subject == "" {
		return ErrInvalidSubject
	}
	return nil
}

// MatchSubject checks if a published subject matches a subscription
// pattern. Supports a trailing * wildcard.
func MatchSubject(pattern, subject string) bool {
	if pattern == "*" {
		return true
	}
	if n := len(pattern); n > 0 && pattern[n-1] == '*' {
		prefix := pattern[:n-1]
		return len(subject) >= len(prefix) && subject[:len(prefix)] == prefix
	}
	return pattern == subject
}

// Publish encodes and publishes an event, stamping At if unset.
func Publish(bus Bus, e Event) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	data, err := e.Encode()
	if err != nil {
		return err
	}
	return bus.Publish(e.Subject, data)
}
