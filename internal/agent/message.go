// ABOUTME: Envelope exchanged between agents and the coordinator over the bus.
// ABOUTME: Messages are immutable once built; the payload map is copied on construction.

package agent

import (
	"maps"
	"time"

	"github.com/google/uuid"
)

// Broadcast is the recipient id that addresses every subscriber except the sender.
const Broadcast = "all"

// CoordinatorID is the bus id the coordinator subscribes under.
const CoordinatorID = "coordinator"

// Priority orders messages by urgency. It is informational; the bus does not reorder.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
)

// String returns the lowercase name of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Message is a point-to-point or broadcast envelope.
type Message struct {
	ID        string
	Sender    string
	Recipient string
	Type      string
	Payload   map[string]any
	CreatedAt time.Time
	Priority  Priority
}

// NewMessage builds a Message stamped with a fresh id and the current time.
func NewMessage(sender, recipient, msgType string, payload map[string]any, priority Priority) Message {
	return Message{
		ID:        uuid.New().String(),
		Sender:    sender,
		Recipient: recipient,
		Type:      msgType,
		Payload:   maps.Clone(payload),
		CreatedAt: time.Now(),
		Priority:  priority,
	}
}

// IsBroadcast reports whether the message is addressed to every subscriber.
func (m Message) IsBroadcast() bool {
	return m.Recipient == Broadcast
}

// Receiver accepts inbound messages. Implementations must not block.
type Receiver interface {
	ReceiveMessage(msg Message)
}

// Publisher routes messages to their recipients.
type Publisher interface {
	Publish(msg Message)
}
