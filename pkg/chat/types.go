package chat

import (
	"strings"
	"time"
)

// Message is a server-assigned chat message. Messages are immutable apart from IsRead.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	RecipientID    string    `json:"recipient_id"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
	IsRead         bool      `json:"is_read"`
	// ClientID echoes the correlation marker of the outbound frame that produced
	// this message, when the server supports it.
	ClientID string `json:"client_id,omitempty"`
}

// Less orders messages by (created_at, id).
func Less(a, b Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// Validate checks the fields every message must carry before it may enter a timeline.
func (m Message) Validate() error {
	switch {
	case strings.TrimSpace(m.ID) == "":
		return NewError(ErrNetwork, "validate message", errMissingField("id"))
	case strings.TrimSpace(m.ConversationID) == "":
		return NewError(ErrNetwork, "validate message", errMissingField("conversation_id"))
	case strings.TrimSpace(m.SenderID) == "":
		return NewError(ErrNetwork, "validate message", errMissingField("sender_id"))
	case strings.TrimSpace(m.RecipientID) == "":
		return NewError(ErrNetwork, "validate message", errMissingField("recipient_id"))
	case m.CreatedAt.IsZero():
		return NewError(ErrNetwork, "validate message", errMissingField("created_at"))
	}
	return nil
}

// Conversation is a thread between two participants about one vehicle listing.
type Conversation struct {
	ID             string    `json:"id"`
	ParticipantAID string    `json:"participant_a_id"`
	ParticipantBID string    `json:"participant_b_id"`
	VehicleID      string    `json:"vehicle_id"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Counterpart returns the participant that is not userID.
func (c Conversation) Counterpart(userID string) string {
	if c.ParticipantAID == userID {
		return c.ParticipantBID
	}
	return c.ParticipantAID
}

// OutboundMessage is the frame a client pushes on the live channel.
type OutboundMessage struct {
	Content        string `json:"content"`
	RecipientID    string `json:"recipient_id"`
	ConversationID string `json:"conversation_id"`
	ClientID       string `json:"client_id,omitempty"`
}

// Direction selects which side of a cursor a paginated read walks.
type Direction int

const (
	Older Direction = iota
	Newer
)

func (d Direction) String() string {
	if d == Newer {
		return "newer"
	}
	return "older"
}

// Cursor anchors a paginated read at an existing message. Reads return
// messages strictly older or strictly newer than the anchor.
type Cursor struct {
	Direction Direction
	ID        string
	CreatedAt time.Time
}

// CursorFrom builds a cursor anchored at m.
func CursorFrom(m Message, d Direction) Cursor {
	return Cursor{Direction: d, ID: m.ID, CreatedAt: m.CreatedAt}
}

// Admits reports whether m lies on the cursor's side of the anchor.
func (c Cursor) Admits(m Message) bool {
	anchor := Message{ID: c.ID, CreatedAt: c.CreatedAt}
	if c.Direction == Newer {
		return Less(anchor, m)
	}
	return Less(m, anchor)
}
