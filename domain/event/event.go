// Package event defines the outgoing notifications a room worker produces.
// Each event knows which room it belongs to; the transport layer turns it
// into exactly one wire frame.
package event

import (
	"chat-relay/domain"

	"github.com/google/uuid"
)

type DomainEvent interface {
	Room() string
}

// History is sent once to a joining connection, messages in ascending
// sequence order.
type History struct {
	RoomName string
	Messages []domain.Message
}

func (e History) Room() string { return e.RoomName }

// MessageStored fans out a freshly persisted message.
type MessageStored struct {
	Message domain.Message
}

func (e MessageStored) Room() string { return e.Message.Room }

// MessageEdited fans out the updated record after an authorized edit.
type MessageEdited struct {
	Message domain.Message
}

func (e MessageEdited) Room() string { return e.Message.Room }

// MessageDeleted fans out a removal. To mirrors the deleted message's
// recipient so the delivery set matches the original send.
type MessageDeleted struct {
	RoomName string
	ID       uuid.UUID
	Sender   string
	To       *string
}

func (e MessageDeleted) Room() string { return e.RoomName }

// PresenceChanged carries the full online roster after a membership change.
type PresenceChanged struct {
	RoomName string
	Online   []string
}

func (e PresenceChanged) Room() string { return e.RoomName }

// TypingChanged carries the full typing set after a transition.
type TypingChanged struct {
	RoomName string
	Typing   []string
}

func (e TypingChanged) Room() string { return e.RoomName }

// Failure is reported to a single connection, never fanned out.
type Failure struct {
	RoomName string
	Kind     string
	Message  string
	Fields   map[string]string
}

func (e Failure) Room() string { return e.RoomName }
