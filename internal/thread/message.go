// Package thread defines the conversation data model shared by the transport,
// the poller and the synchronization controller: threads, the messages they
// contain, and the ordering and merge rules applied to message collections.
package thread

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// Direction tells whether a message was sent to the agent workflow or
// produced by it.
type Direction string

const (
	// DirectionIncoming is a message sent by a participant to the
	// workflow.
	DirectionIncoming Direction = "Incoming"

	// DirectionOutgoing is a message produced by the workflow.
	DirectionOutgoing Direction = "Outgoing"
)

// String returns the string representation of the direction.
func (d Direction) String() string {
	return string(d)
}

// IsValid returns true if the direction is a recognized value.
func (d Direction) IsValid() bool {
	switch d {
	case DirectionIncoming, DirectionOutgoing:
		return true
	default:
		return false
	}
}

// ParseDirection maps a wire value onto a Direction. Matching is case
// insensitive since backends disagree on casing.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "incoming":
		return DirectionIncoming, nil
	case "outgoing":
		return DirectionOutgoing, nil
	default:
		return "", fmt.Errorf("unknown message direction %q", s)
	}
}

// Metadata is the opaque key-value map a backend may attach to a message.
type Metadata map[string]any

// LogEntry is a single processing event recorded against a message.
type LogEntry struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
}

// Message is a single entry of a thread. Messages are never mutated once
// received; a refetch replaces the whole value.
type Message struct {
	// ID is the backend-assigned unique identifier.
	ID string

	// ThreadID is the thread the message belongs to.
	ThreadID string

	// Direction is whether the message flows into or out of the
	// workflow.
	Direction Direction

	// Status is a server-defined delivery or processing status.
	Status string

	// CreatedAt is the creation time used for display ordering.
	CreatedAt time.Time

	// CreatedBy identifies the author.
	CreatedBy string

	// Content is the message text.
	Content string

	// Metadata is present only when the backend sent a metadata object.
	Metadata fn.Option[Metadata]

	// Logs is present only when the backend sent a logs array.
	Logs fn.Option[[]LogEntry]
}

// wireMessage is the JSON shape of a Message. Metadata and Logs are left as
// nil when the key is missing or null, which is how presence is detected.
type wireMessage struct {
	ID        string     `json:"id"`
	ThreadID  string     `json:"threadId"`
	Direction string     `json:"direction"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
	CreatedBy string     `json:"createdBy"`
	Content   string     `json:"content"`
	Metadata  Metadata   `json:"metadata,omitempty"`
	Logs      []LogEntry `json:"logs,omitempty"`
}

// UnmarshalJSON decodes a message, keeping track of whether the optional
// metadata and logs fields were sent.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	// A direction this client does not know is kept as sent so one new
	// server value cannot fail a whole page. IsValid reports it.
	dir, err := ParseDirection(w.Direction)
	if err != nil {
		dir = Direction(w.Direction)
	}

	*m = Message{
		ID:        w.ID,
		ThreadID:  w.ThreadID,
		Direction: dir,
		Status:    w.Status,
		CreatedAt: w.CreatedAt,
		CreatedBy: w.CreatedBy,
		Content:   w.Content,
		Metadata:  fn.None[Metadata](),
		Logs:      fn.None[[]LogEntry](),
	}
	if w.Metadata != nil {
		m.Metadata = fn.Some(w.Metadata)
	}
	if w.Logs != nil {
		m.Logs = fn.Some(w.Logs)
	}

	return nil
}

// MarshalJSON encodes the message in the same shape it is received in.
// Absent optional fields are omitted; present but empty ones are kept.
func (m Message) MarshalJSON() ([]byte, error) {
	o := struct {
		ID        string      `json:"id"`
		ThreadID  string      `json:"threadId"`
		Direction string      `json:"direction"`
		Status    string      `json:"status"`
		CreatedAt time.Time   `json:"createdAt"`
		CreatedBy string      `json:"createdBy"`
		Content   string      `json:"content"`
		Metadata  *Metadata   `json:"metadata,omitempty"`
		Logs      *[]LogEntry `json:"logs,omitempty"`
	}{
		ID:        m.ID,
		ThreadID:  m.ThreadID,
		Direction: m.Direction.String(),
		Status:    m.Status,
		CreatedAt: m.CreatedAt,
		CreatedBy: m.CreatedBy,
		Content:   m.Content,
	}
	m.Metadata.WhenSome(func(md Metadata) {
		if md == nil {
			md = Metadata{}
		}
		o.Metadata = &md
	})
	m.Logs.WhenSome(func(logs []LogEntry) {
		if logs == nil {
			logs = []LogEntry{}
		}
		o.Logs = &logs
	})

	return json.Marshal(o)
}

// SendPayload is the body of a send message request.
type SendPayload struct {
	// Content is the message text.
	Content string `json:"content"`

	// Direction defaults to Incoming when empty.
	Direction Direction `json:"direction,omitempty"`

	// CreatedBy identifies the sender.
	CreatedBy string `json:"createdBy,omitempty"`

	// Metadata is sent along with the message when non-nil.
	Metadata Metadata `json:"metadata,omitempty"`
}
