package thread

import (
	"encoding/json"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// Thread is a conversation between a participant and an agent workflow.
type Thread struct {
	// ID is the backend-assigned unique identifier.
	ID string

	// ParticipantID identifies the human or system on the other side of
	// the conversation.
	ParticipantID string

	// Title is an optional display title.
	Title fn.Option[string]

	// CreatedAt is when the thread was created.
	CreatedAt time.Time

	// UpdatedAt is the last time the thread saw activity.
	UpdatedAt time.Time

	// IsInternalThread marks threads used for agent-to-agent traffic.
	IsInternalThread bool
}

// DisplayName returns the title when one is set and the id otherwise.
func (t Thread) DisplayName() string {
	return t.Title.UnwrapOr(t.ID)
}

type wireThread struct {
	ID               string    `json:"id"`
	ParticipantID    string    `json:"participantId"`
	Title            *string   `json:"title,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
	IsInternalThread bool      `json:"isInternalThread"`
}

// UnmarshalJSON decodes a thread; a missing or null title becomes None.
func (t *Thread) UnmarshalJSON(data []byte) error {
	var w wireThread
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*t = Thread{
		ID:               w.ID,
		ParticipantID:    w.ParticipantID,
		Title:            fn.None[string](),
		CreatedAt:        w.CreatedAt,
		UpdatedAt:        w.UpdatedAt,
		IsInternalThread: w.IsInternalThread,
	}
	if w.Title != nil {
		t.Title = fn.Some(*w.Title)
	}

	return nil
}

// MarshalJSON encodes the thread, omitting an absent title.
func (t Thread) MarshalJSON() ([]byte, error) {
	w := wireThread{
		ID:               t.ID,
		ParticipantID:    t.ParticipantID,
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
		IsInternalThread: t.IsInternalThread,
	}
	t.Title.WhenSome(func(title string) {
		w.Title = &title
	})

	return json.Marshal(w)
}

// CreatePayload is the body of a create thread request.
type CreatePayload struct {
	// ParticipantID is required by the backend.
	ParticipantID string `json:"participantId"`

	// Title is optional.
	Title string `json:"title,omitempty"`

	// IsInternalThread marks the thread as agent-internal.
	IsInternalThread bool `json:"isInternalThread,omitempty"`
}
