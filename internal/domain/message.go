package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Message is an immutable chat message. Once published its fields never
// change; ID is unique for the process lifetime. The timestamp is
// serialized as "time" on the wire.
type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Sender    string    `json:"sender"`
	CreatedAt time.Time `json:"time"`
}

// MessageFactory constructs canonical Message records. Timestamps come
// from the factory's clock, never from client-claimed time.
type MessageFactory struct {
	clock clockwork.Clock
}

// NewMessageFactory creates a factory using the given clock.
func NewMessageFactory(clock clockwork.Clock) *MessageFactory {
	return &MessageFactory{clock: clock}
}

// Create validates the submitted fields and builds a Message with a fresh
// ID and a server-side timestamp. It has no side effects; publishing is
// the caller's responsibility.
func (f *MessageFactory) Create(text, sender string) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, ErrEmptyText
	}

	sender = strings.TrimSpace(sender)
	if sender == "" {
		return Message{}, ErrEmptySender
	}

	return Message{
		ID:        uuid.NewString(),
		Text:      text,
		Sender:    sender,
		CreatedAt: f.clock.Now().UTC(),
	}, nil
}
