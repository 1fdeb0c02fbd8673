package ws

import (
	"encoding/json"
	"fmt"

	"chat-relay/domain"
	"chat-relay/domain/event"

	"github.com/google/uuid"
)

// frameSender is what a sink needs from the connection. Narrowed so tests
// can capture frames without a socket.
type frameSender interface {
	TrySend(frame []byte) error
}

// connSink adapts one websocket connection to the dispatcher's delivery
// interface. Deliver encodes the event into its wire frame and enqueues it;
// it never blocks a room dispatcher.
type connSink struct {
	id       uuid.UUID
	username string
	sender   frameSender
}

func newConnSink(conn *domain.Connection, sender frameSender) *connSink {
	return &connSink{id: conn.ID, username: conn.Username, sender: sender}
}

func (s *connSink) ConnectionID() uuid.UUID { return s.id }
func (s *connSink) Username() string        { return s.username }

func (s *connSink) Deliver(e event.DomainEvent) error {
	frame, err := EncodeEvent(e)
	if err != nil {
		return err
	}
	return s.sender.TrySend(frame)
}

// EncodeEvent maps a domain event to its JSON wire frame. Every event kind
// has exactly one frame type.
func EncodeEvent(e event.DomainEvent) ([]byte, error) {
	switch ev := e.(type) {
	case event.History:
		messages := ev.Messages
		if messages == nil {
			messages = []domain.Message{}
		}
		return json.Marshal(struct {
			Type     string           `json:"type"`
			Room     string           `json:"room"`
			Messages []domain.Message `json:"messages"`
		}{"history", ev.RoomName, messages})
	case event.MessageStored:
		return json.Marshal(struct {
			Type    string         `json:"type"`
			Message domain.Message `json:"message"`
		}{"message", ev.Message})
	case event.MessageEdited:
		return json.Marshal(struct {
			Type    string         `json:"type"`
			Message domain.Message `json:"message"`
		}{"message-edited", ev.Message})
	case event.MessageDeleted:
		return json.Marshal(struct {
			Type string    `json:"type"`
			Room string    `json:"room"`
			ID   uuid.UUID `json:"id"`
			To   *string   `json:"to,omitempty"`
		}{"message-deleted", ev.RoomName, ev.ID, ev.To})
	case event.PresenceChanged:
		return json.Marshal(struct {
			Type   string   `json:"type"`
			Room   string   `json:"room"`
			Online []string `json:"onlineUsernames"`
		}{"presence", ev.RoomName, ev.Online})
	case event.TypingChanged:
		return json.Marshal(struct {
			Type   string   `json:"type"`
			Room   string   `json:"room"`
			Typing []string `json:"typingUsernames"`
		}{"typing-changed", ev.RoomName, ev.Typing})
	case event.Failure:
		return json.Marshal(struct {
			Type    string            `json:"type"`
			Kind    string            `json:"kind"`
			Message string            `json:"message"`
			Fields  map[string]string `json:"fields,omitempty"`
		}{"error", ev.Kind, ev.Message, ev.Fields})
	default:
		return nil, fmt.Errorf("unknown event %T", e)
	}
}
