package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/moderation"
	"chat-relay/observability"
	"chat-relay/repositories"

	"github.com/abadojack/whatlanggo"
	"github.com/google/uuid"
)

// Compile-time check that the room worker satisfies the supervision contract.
var _ contract.Worker = (*RoomWorker)(nil)

// RoomWorker is the dispatcher owning one room: membership counts, the
// typing deadlines, and the append-then-fan-out pipeline. All state behind
// it is mutated only from Run's goroutine.
//
// The worker instance survives a supervisor restart, so membership is not
// lost when a command handler panics.
type RoomWorker struct {
	room    *domain.Room
	mailbox chan Command
	store   repositories.IMessageRepository
	censor  *moderation.Moderator
	stats   *observability.ChatStats
	log     *slog.Logger

	sinks map[uuid.UUID]contract.EventSink

	historyLimit int
	typingTTL    time.Duration
	sweepEvery   time.Duration
}

type RoomWorkerOptions struct {
	Store        repositories.IMessageRepository
	Censor       *moderation.Moderator
	Stats        *observability.ChatStats
	HistoryLimit int
	TypingTTL    time.Duration
	SweepEvery   time.Duration
	Log          *slog.Logger
}

func NewRoomWorker(name string, mailbox chan Command, opts RoomWorkerOptions) *RoomWorker {
	return &RoomWorker{
		room:         domain.NewRoom(name),
		mailbox:      mailbox,
		store:        opts.Store,
		censor:       opts.Censor,
		stats:        opts.Stats,
		log:          opts.Log.With("room", name),
		sinks:        make(map[uuid.UUID]contract.EventSink),
		historyLimit: opts.HistoryLimit,
		typingTTL:    opts.TypingTTL,
		sweepEvery:   opts.SweepEvery,
	}
}

// Run processes the mailbox until the context is canceled. The sweep ticker
// shares the same loop, so typing expiry serializes with every other room
// mutation and cannot race a disconnect.
func (w *RoomWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping room dispatcher")
			return ctx.Err()
		case cmd, ok := <-w.mailbox:
			if !ok {
				return nil
			}
			w.handle(cmd)
		case <-ticker.C:
			if w.room.ExpireTyping(time.Now()) {
				w.broadcast(event.TypingChanged{RoomName: w.room.Name, Typing: w.room.Typing()})
			}
		}
	}
}

func (w *RoomWorker) handle(cmd Command) {
	switch c := cmd.(type) {
	case Join:
		w.handleJoin(c)
	case Leave:
		w.handleLeave(c)
	case Send:
		w.handleSend(c)
	case Typing:
		w.handleTyping(c)
	case EditFanout:
		w.fanout(event.MessageEdited{Message: c.Message}, c.Message.Sender, c.Message.To)
	case DeleteFanout:
		w.fanout(event.MessageDeleted{RoomName: c.RoomName, ID: c.ID, Sender: c.Sender, To: c.To}, c.Sender, c.To)
	default:
		w.log.Warn(fmt.Sprintf("Unknown command %T", cmd))
	}
}

// handleJoin registers the sink, replays the recent history to the joiner
// and broadcasts presence when the online roster actually changed.
// Re-joining is a no-op beyond re-confirming membership with a fresh replay.
func (w *RoomWorker) handleJoin(c Join) {
	connID := c.Sink.ConnectionID()
	w.sinks[connID] = c.Sink
	first := w.room.Join(c.Sink.Username(), connID)

	history, err := w.store.History(w.room.Name, w.historyLimit)
	if err != nil {
		w.stats.IncrStoreFailures()
		w.log.Error("History fetch failed", "error", err)
		w.deliver(c.Sink, event.Failure{
			RoomName: w.room.Name,
			Kind:     "store-unavailable",
			Message:  "could not load room history",
		})
	}
	w.deliver(c.Sink, event.History{RoomName: w.room.Name, Messages: history})

	presence := event.PresenceChanged{RoomName: w.room.Name, Online: w.room.Online()}
	if first {
		w.broadcast(presence)
	} else {
		// Roster unchanged (another tab of the same user): only the joiner
		// needs the snapshot.
		w.deliver(c.Sink, presence)
	}

	if typing := w.room.Typing(); len(typing) > 0 {
		w.deliver(c.Sink, event.TypingChanged{RoomName: w.room.Name, Typing: typing})
	}
}

// handleLeave is the single removal path for explicit leaves and disconnect
// cleanup alike. When the username goes offline its typing deadline is
// cleared immediately instead of waiting for the sweep.
func (w *RoomWorker) handleLeave(c Leave) {
	connID := c.Sink.ConnectionID()
	if _, ok := w.sinks[connID]; !ok {
		return
	}
	delete(w.sinks, connID)

	username := c.Sink.Username()
	if !w.room.Leave(username, connID) {
		return
	}
	if w.room.ClearTyping(username) {
		w.broadcast(event.TypingChanged{RoomName: w.room.Name, Typing: w.room.Typing()})
	}
	w.broadcast(event.PresenceChanged{RoomName: w.room.Name, Online: w.room.Online()})
}

// handleSend runs the two-phase contract: persist first, fan out second.
// A store failure is reported to the sender only and nothing is delivered,
// so no reader can observe a message the store did not keep.
func (w *RoomWorker) handleSend(c Send) {
	if strings.TrimSpace(c.Text) == "" && len(c.Images) == 0 {
		w.deliver(c.Sink, event.Failure{
			RoomName: w.room.Name,
			Kind:     "validation-failed",
			Message:  "validation failed",
			Fields:   map[string]string{"text": "message text or images required"},
		})
		return
	}

	text := c.Text
	if w.censor != nil {
		censored, words := w.censor.Censor(text)
		if len(words) > 0 {
			info := whatlanggo.Detect(text)
			w.log.Warn("Censored message content",
				"sender", c.Sink.Username(),
				"matches", len(words),
				"lang", info.Lang.Iso6391())
			text = censored
		}
	}

	stored, err := w.store.Append(domain.Message{
		ID:        uuid.New(),
		Room:      w.room.Name,
		Sender:    c.Sink.Username(),
		AvatarURL: c.AvatarURL,
		To:        c.To,
		Text:      text,
		Images:    c.Images,
	})
	if err != nil {
		w.stats.IncrStoreFailures()
		w.log.Error("Message append failed", "sender", c.Sink.Username(), "error", err)
		w.deliver(c.Sink, event.Failure{
			RoomName: w.room.Name,
			Kind:     "store-unavailable",
			Message:  "message could not be stored",
		})
		return
	}

	w.stats.IncrMessagesStored()
	w.fanout(event.MessageStored{Message: stored}, stored.Sender, stored.To)
}

func (w *RoomWorker) handleTyping(c Typing) {
	username := c.Sink.Username()
	var changed bool
	if c.IsTyping {
		changed = w.room.SetTyping(username, time.Now().Add(w.typingTTL))
	} else {
		changed = w.room.ClearTyping(username)
	}
	if changed {
		w.broadcast(event.TypingChanged{RoomName: w.room.Name, Typing: w.room.Typing()})
	}
}

// fanout computes the delivery set: everyone for a broadcast, otherwise the
// recipient's connections plus the sender's own (a user may have several
// tabs and expects the echo on all of them). Delivery to a connection that
// vanished mid-send is dropped silently.
func (w *RoomWorker) fanout(e event.DomainEvent, sender string, to *string) {
	for _, sink := range w.sinks {
		if to != nil && sink.Username() != *to && sink.Username() != sender {
			continue
		}
		w.deliver(sink, e)
	}
}

func (w *RoomWorker) broadcast(e event.DomainEvent) {
	for _, sink := range w.sinks {
		w.deliver(sink, e)
	}
}

func (w *RoomWorker) deliver(sink contract.EventSink, e event.DomainEvent) {
	if err := sink.Deliver(e); err != nil {
		w.stats.IncrDroppedDeliveries()
		w.log.Debug("Dropped delivery", "connection", sink.ConnectionID(), "error", err)
		return
	}
	w.stats.IncrDeliveries()
}
