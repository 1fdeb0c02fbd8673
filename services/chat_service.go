package services

import (
	"context"
	"log/slog"
	"time"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/observability"
	"chat-relay/repositories"
	"chat-relay/runtime"

	"github.com/google/uuid"
)

// cleanupTimeout bounds disconnect cleanup. It is detached from the session
// context, which is already canceled by the time cleanup runs.
const cleanupTimeout = 5 * time.Second

type SendRequest struct {
	Room      string
	AvatarURL string
	Text      string
	Images    []string
	To        *string
}

type IChatService interface {
	Join(ctx context.Context, room string, sink contract.EventSink) error
	Leave(ctx context.Context, room string, sink contract.EventSink) error
	LeaveAll(rooms []string, sink contract.EventSink)
	Send(ctx context.Context, req SendRequest, sink contract.EventSink) error
	SetTyping(ctx context.Context, room string, sink contract.EventSink, isTyping bool) error
	EditMessage(ctx context.Context, id uuid.UUID, requester, text string, images []string) (domain.Message, error)
	DeleteMessage(ctx context.Context, id uuid.UUID, requester string) error
}

// ChatService is the facade between transports and the per-room dispatchers.
// Live operations are submitted as commands; edit/delete commit against the
// store first and then reuse the same fan-out path as a live send, so
// connected clients converge with the durable log.
type ChatService struct {
	registry *runtime.Registry
	store    repositories.IMessageRepository
	stats    *observability.ChatStats
	log      *slog.Logger
}

func NewChatService(registry *runtime.Registry, store repositories.IMessageRepository,
	stats *observability.ChatStats, log *slog.Logger) *ChatService {
	return &ChatService{registry: registry, store: store, stats: stats, log: log}
}

func (s *ChatService) Join(ctx context.Context, room string, sink contract.EventSink) error {
	return s.registry.Dispatch(ctx, runtime.Join{RoomName: room, Sink: sink})
}

func (s *ChatService) Leave(ctx context.Context, room string, sink contract.EventSink) error {
	return s.registry.Dispatch(ctx, runtime.Leave{RoomName: room, Sink: sink})
}

// LeaveAll is the disconnect cleanup path. It must make progress even though
// the session context is gone, and must be safe for rooms already left.
func (s *ChatService) LeaveAll(rooms []string, sink contract.EventSink) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	for _, room := range rooms {
		_ = s.registry.Dispatch(ctx, runtime.Leave{RoomName: room, Sink: sink})
	}
}

func (s *ChatService) Send(ctx context.Context, req SendRequest, sink contract.EventSink) error {
	return s.registry.Dispatch(ctx, runtime.Send{
		RoomName:  req.Room,
		Sink:      sink,
		AvatarURL: req.AvatarURL,
		Text:      req.Text,
		Images:    req.Images,
		To:        req.To,
	})
}

func (s *ChatService) SetTyping(ctx context.Context, room string, sink contract.EventSink, isTyping bool) error {
	return s.registry.Dispatch(ctx, runtime.Typing{RoomName: room, Sink: sink, IsTyping: isTyping})
}

// EditMessage applies the authorized edit to the store, then fans the
// updated record out to the message's room under the original delivery-set
// rule. The store decides NotFound/Forbidden; nothing is delivered on a
// store error. Once the edit is committed the call succeeds: a failed
// fan-out is logged, readers converge through history on their next join.
func (s *ChatService) EditMessage(ctx context.Context, id uuid.UUID, requester, text string, images []string) (domain.Message, error) {
	updated, err := s.store.Edit(id, requester, text, images)
	if err != nil {
		return domain.Message{}, err
	}
	s.stats.IncrMessagesEdited()
	if err := s.registry.Dispatch(ctx, runtime.EditFanout{Message: updated}); err != nil {
		s.log.Warn("Edit committed but fan-out failed", "id", id, "room", updated.Room, "error", err)
	}
	return updated, nil
}

// DeleteMessage follows the same contract: once the store removed the
// record the call succeeds even when the fan-out could not be dispatched.
func (s *ChatService) DeleteMessage(ctx context.Context, id uuid.UUID, requester string) error {
	removed, err := s.store.Delete(id, requester)
	if err != nil {
		return err
	}
	s.stats.IncrMessagesDeleted()
	err = s.registry.Dispatch(ctx, runtime.DeleteFanout{
		RoomName: removed.Room,
		ID:       removed.ID,
		Sender:   removed.Sender,
		To:       removed.To,
	})
	if err != nil {
		s.log.Warn("Delete committed but fan-out failed", "id", id, "room", removed.Room, "error", err)
	}
	return nil
}
