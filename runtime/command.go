// Package runtime owns the per-room dispatchers: every mutation of a room's
// live state travels through that room's mailbox and is applied by a single
// goroutine, which is what makes the ordering guarantees provable instead of
// accidental.
package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"

	"github.com/google/uuid"
)

// Command is one operation submitted to a room's mailbox. Commands for the
// same room execute one at a time in arrival order; different rooms proceed
// in parallel.
type Command interface {
	Room() string
}

// Join subscribes a connection to a room. The worker replies with the room
// history and, when the roster changes, broadcasts presence.
type Join struct {
	RoomName string
	Sink     contract.EventSink
}

func (c Join) Room() string { return c.RoomName }

// Leave unsubscribes one connection. Used both for an explicit leave-room
// and, once per joined room, for disconnect cleanup. Safe to submit for a
// connection that already left.
type Leave struct {
	RoomName string
	Sink     contract.EventSink
}

func (c Leave) Room() string { return c.RoomName }

// Send persists a message and fans it out. To==nil is the only broadcast
// signal; a set To restricts delivery to the recipient plus the sender's
// own connections.
type Send struct {
	RoomName  string
	Sink      contract.EventSink
	AvatarURL string
	Text      string
	Images    []string
	To        *string
}

func (c Send) Room() string { return c.RoomName }

// Typing starts or stops the sender's typing indicator.
type Typing struct {
	RoomName string
	Sink     contract.EventSink
	IsTyping bool
}

func (c Typing) Room() string { return c.RoomName }

// EditFanout propagates an already persisted edit to the room. The API layer
// commits the edit first; the worker only computes the delivery set.
type EditFanout struct {
	Message domain.Message
}

func (c EditFanout) Room() string { return c.Message.Room }

// DeleteFanout propagates an already persisted delete.
type DeleteFanout struct {
	RoomName string
	ID       uuid.UUID
	Sender   string
	To       *string
}

func (c DeleteFanout) Room() string { return c.RoomName }
