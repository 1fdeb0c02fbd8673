package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/services"
)

// Session is the per-connection state machine: it owns the Connection's
// joined-room set and is the only goroutine that touches it. Inbound frames
// are translated to commands; everything outbound goes through the sink.
type Session struct {
	conn    *domain.Connection
	ws      *wsConn
	sink    contract.EventSink
	chat    services.IChatService
	log     *slog.Logger
	cleanup sync.Once
	onClose func()
}

func NewSession(conn *domain.Connection, ws *wsConn, chat services.IChatService,
	log *slog.Logger, onClose func()) *Session {
	s := &Session{
		conn:    conn,
		ws:      ws,
		chat:    chat,
		log:     log.With("connection", conn.ID, "username", conn.Username),
		onClose: onClose,
	}
	s.sink = newConnSink(conn, ws)
	return s
}

// Sink exposes the delivery end bound to this session's connection.
func (s *Session) Sink() contract.EventSink { return s.sink }

// readPump consumes frames until the socket dies or the context ends, then
// runs disconnect cleanup exactly once.
func (s *Session) readPump(ctx context.Context) {
	defer s.Close()
	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := s.ws.conn.ReadMessage()
			if err != nil {
				s.log.Debug("Read loop ended", "error", err)
				return
			}
			s.handleFrame(ctx, data)
		}
	}
}

// Close leaves every joined room and releases the socket. Every exit path
// of the session funnels through here.
func (s *Session) Close() {
	s.cleanup.Do(func() {
		s.chat.LeaveAll(s.conn.Rooms(), s.sink)
		s.ws.Close()
		if s.onClose != nil {
			s.onClose()
		}
	})
}

type inboundFrame struct {
	Type     string   `json:"type"`
	Room     string   `json:"room"`
	Text     string   `json:"text"`
	Images   []string `json:"images"`
	To       *string  `json:"to"`
	IsTyping bool     `json:"isTyping"`
}

// handleFrame routes one inbound frame. Malformed input is answered on this
// connection only and never reaches a room dispatcher.
func (s *Session) handleFrame(ctx context.Context, data []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		s.fail("", "validation-failed", "malformed frame", nil)
		return
	}
	if frame.Type != "" && frame.Room == "" {
		s.fail("", "validation-failed", "validation failed",
			map[string]string{"room": "room is required"})
		return
	}

	switch frame.Type {
	case "join-room":
		if err := s.chat.Join(ctx, frame.Room, s.sink); err != nil {
			s.fail(frame.Room, "room-unavailable", "could not join room", nil)
			return
		}
		s.conn.Track(frame.Room)
	case "leave-room":
		if !s.conn.In(frame.Room) {
			return
		}
		if err := s.chat.Leave(ctx, frame.Room, s.sink); err != nil {
			s.fail(frame.Room, "room-unavailable", "could not leave room", nil)
			return
		}
		s.conn.Forget(frame.Room)
	case "send-message":
		if !s.conn.In(frame.Room) {
			s.fail(frame.Room, "validation-failed", "validation failed",
				map[string]string{"room": "join the room before sending"})
			return
		}
		err := s.chat.Send(ctx, services.SendRequest{
			Room:      frame.Room,
			AvatarURL: s.conn.AvatarURL,
			Text:      frame.Text,
			Images:    frame.Images,
			To:        frame.To,
		}, s.sink)
		if err != nil {
			s.fail(frame.Room, "room-unavailable", "could not send message", nil)
		}
	case "typing":
		if !s.conn.In(frame.Room) {
			return
		}
		if err := s.chat.SetTyping(ctx, frame.Room, s.sink, frame.IsTyping); err != nil {
			s.log.Debug("Typing dispatch failed", "room", frame.Room, "error", err)
		}
	default:
		s.log.Warn("Unknown frame type", "type", frame.Type)
		s.fail(frame.Room, "validation-failed", "unknown frame type", nil)
	}
}

func (s *Session) fail(room, kind, message string, fields map[string]string) {
	_ = s.sink.Deliver(event.Failure{RoomName: room, Kind: kind, Message: message, Fields: fields})
}
