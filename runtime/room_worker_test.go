package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/observability"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

// fakeSink records everything delivered to one connection.
type fakeSink struct {
	id       uuid.UUID
	username string
	events   []event.DomainEvent
	full     bool
}

func newFakeSink(username string) *fakeSink {
	return &fakeSink{id: uuid.New(), username: username}
}

func (s *fakeSink) ConnectionID() uuid.UUID { return s.id }
func (s *fakeSink) Username() string        { return s.username }

func (s *fakeSink) Deliver(e event.DomainEvent) error {
	if s.full {
		return fmt.Errorf("send buffer full")
	}
	s.events = append(s.events, e)
	return nil
}

func (s *fakeSink) ofType(kind string) []event.DomainEvent {
	var out []event.DomainEvent
	for _, e := range s.events {
		switch e.(type) {
		case event.MessageStored:
			if kind == "message" {
				out = append(out, e)
			}
		case event.MessageEdited:
			if kind == "edited" {
				out = append(out, e)
			}
		case event.MessageDeleted:
			if kind == "deleted" {
				out = append(out, e)
			}
		case event.PresenceChanged:
			if kind == "presence" {
				out = append(out, e)
			}
		case event.TypingChanged:
			if kind == "typing" {
				out = append(out, e)
			}
		case event.History:
			if kind == "history" {
				out = append(out, e)
			}
		case event.Failure:
			if kind == "failure" {
				out = append(out, e)
			}
		}
	}
	return out
}

// fakeStore is an in-memory message log with a switchable failure mode.
// The mutex matters only for the registry tests, where a dispatcher
// goroutine appends while the test polls.
type fakeStore struct {
	mu       sync.Mutex
	messages []domain.Message
	seq      uint64
	failing  bool
}

func (f *fakeStore) snapshot() []domain.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Message{}, f.messages...)
}

func (f *fakeStore) Append(message domain.Message) (domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return domain.Message{}, errors.ErrStoreUnavailable
	}
	f.seq++
	message.Seq = f.seq
	message.CreatedAt = time.Now().UTC()
	f.messages = append(f.messages, message)
	return message, nil
}

func (f *fakeStore) History(room string, limit int) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return nil, errors.ErrStoreUnavailable
	}
	out := lo.Filter(f.messages, func(m domain.Message, _ int) bool { return m.Room == room })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (f *fakeStore) Get(id uuid.UUID) (domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages {
		if m.ID == id {
			return m, nil
		}
	}
	return domain.Message{}, errors.ErrNotFound
}

func (f *fakeStore) Edit(id uuid.UUID, requester, text string, images []string) (domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, m := range f.messages {
		if m.ID != id {
			continue
		}
		if m.Sender != requester {
			return domain.Message{}, errors.ErrForbidden
		}
		now := time.Now().UTC()
		f.messages[i].Text = text
		f.messages[i].Images = images
		f.messages[i].EditedAt = &now
		return f.messages[i], nil
	}
	return domain.Message{}, errors.ErrNotFound
}

func (f *fakeStore) Delete(id uuid.UUID, requester string) (domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, m := range f.messages {
		if m.ID != id {
			continue
		}
		if m.Sender != requester {
			return domain.Message{}, errors.ErrForbidden
		}
		f.messages = append(f.messages[:i], f.messages[i+1:]...)
		return m, nil
	}
	return domain.Message{}, errors.ErrNotFound
}

func (f *fakeStore) Close() error { return nil }

func newTestWorker(store *fakeStore) *RoomWorker {
	return NewRoomWorker("general", make(chan Command, 16), RoomWorkerOptions{
		Store:        store,
		Stats:        observability.NewChatStats(slog.Default()),
		HistoryLimit: 100,
		TypingTTL:    2 * time.Second,
		SweepEvery:   500 * time.Millisecond,
		Log:          slog.Default(),
	})
}

func TestRoomWorker_Join_Replays_History_And_Broadcasts_Presence(t *testing.T) {
	req := require.New(t)
	store := &fakeStore{}
	worker := newTestWorker(store)
	alice := newFakeSink("alice")
	bob := newFakeSink("bob")

	// Given alice is already in the room with one stored message
	worker.handle(Join{RoomName: "general", Sink: alice})
	worker.handle(Send{RoomName: "general", Sink: alice, Text: "hello"})

	// When bob joins
	worker.handle(Join{RoomName: "general", Sink: bob})

	// Then bob got the history with the stored message
	histories := bob.ofType("history")
	req.Len(histories, 1)
	req.Len(histories[0].(event.History).Messages, 1)
	req.Equal("hello", histories[0].(event.History).Messages[0].Text)

	// And everyone got the new roster
	req.Equal([]string{"alice", "bob"},
		lastPresence(req, bob).Online)
	req.Equal([]string{"alice", "bob"},
		lastPresence(req, alice).Online)
}

func TestRoomWorker_Rejoin_Same_User_Does_Not_Broadcast_Presence(t *testing.T) {
	req := require.New(t)
	worker := newTestWorker(&fakeStore{})
	alice := newFakeSink("alice")
	tab2 := newFakeSink("alice")

	worker.handle(Join{RoomName: "general", Sink: alice})
	before := len(alice.ofType("presence"))

	// When a second tab of the same user joins
	worker.handle(Join{RoomName: "general", Sink: tab2})

	// Then the roster did not change: only the joiner got a snapshot
	req.Len(alice.ofType("presence"), before)
	req.Len(tab2.ofType("presence"), 1)
}

func TestRoomWorker_Send_Broadcast_Reaches_Everyone(t *testing.T) {
	req := require.New(t)
	worker := newTestWorker(&fakeStore{})
	alice := newFakeSink("alice")
	bob := newFakeSink("bob")
	carol := newFakeSink("carol")
	worker.handle(Join{RoomName: "general", Sink: alice})
	worker.handle(Join{RoomName: "general", Sink: bob})
	worker.handle(Join{RoomName: "general", Sink: carol})

	// When alice broadcasts
	worker.handle(Send{RoomName: "general", Sink: alice, Text: "hi all"})

	// Then every member got the message, including the sender
	for _, sink := range []*fakeSink{alice, bob, carol} {
		stored := sink.ofType("message")
		req.Len(stored, 1)
		req.Equal("hi all", stored[0].(event.MessageStored).Message.Text)
	}
}

func TestRoomWorker_Send_Private_Only_Recipient_And_Sender(t *testing.T) {
	req := require.New(t)
	worker := newTestWorker(&fakeStore{})
	alice := newFakeSink("alice")
	aliceTab2 := newFakeSink("alice")
	bob := newFakeSink("bob")
	carol := newFakeSink("carol")
	for _, sink := range []*fakeSink{alice, aliceTab2, bob, carol} {
		worker.handle(Join{RoomName: "general", Sink: sink})
	}

	// When alice sends privately to bob
	worker.handle(Send{RoomName: "general", Sink: alice, Text: "psst", To: lo.ToPtr("bob")})

	// Then the recipient and every sender tab got it, the bystander did not
	req.Len(alice.ofType("message"), 1)
	req.Len(aliceTab2.ofType("message"), 1)
	req.Len(bob.ofType("message"), 1)
	req.Empty(carol.ofType("message"))
}

func TestRoomWorker_Send_Private_Offline_Recipient_Still_Persisted(t *testing.T) {
	req := require.New(t)
	store := &fakeStore{}
	worker := newTestWorker(store)
	alice := newFakeSink("alice")
	worker.handle(Join{RoomName: "general", Sink: alice})

	// When the recipient has no live connection
	worker.handle(Send{RoomName: "general", Sink: alice, Text: "psst", To: lo.ToPtr("bob")})

	// Then the message is in the log and only the sender saw the echo
	req.Len(store.messages, 1)
	req.Len(alice.ofType("message"), 1)
	req.Empty(alice.ofType("failure"))
}

func TestRoomWorker_Send_Store_Failure_Reported_To_Sender_Only(t *testing.T) {
	req := require.New(t)
	store := &fakeStore{failing: true}
	worker := newTestWorker(store)
	alice := newFakeSink("alice")
	bob := newFakeSink("bob")
	worker.handle(Join{RoomName: "general", Sink: alice})
	worker.handle(Join{RoomName: "general", Sink: bob})
	alice.events = nil
	bob.events = nil

	// When the store refuses the append
	worker.handle(Send{RoomName: "general", Sink: alice, Text: "lost"})

	// Then nothing was fanned out and only the sender got the failure
	req.Empty(alice.ofType("message"))
	req.Empty(bob.ofType("message"))
	failures := alice.ofType("failure")
	req.Len(failures, 1)
	req.Equal("store-unavailable", failures[0].(event.Failure).Kind)
	req.Empty(bob.ofType("failure"))
}

func TestRoomWorker_Send_Empty_Message_Rejected(t *testing.T) {
	req := require.New(t)
	store := &fakeStore{}
	worker := newTestWorker(store)
	alice := newFakeSink("alice")
	worker.handle(Join{RoomName: "general", Sink: alice})

	// When the text is blank and there are no images
	worker.handle(Send{RoomName: "general", Sink: alice, Text: "   "})

	// Then nothing is stored and the sender gets a validation failure
	req.Empty(store.messages)
	failures := alice.ofType("failure")
	req.Len(failures, 1)
	req.Equal("validation-failed", failures[0].(event.Failure).Kind)
}

func TestRoomWorker_Send_Image_Only_Is_Valid(t *testing.T) {
	req := require.New(t)
	store := &fakeStore{}
	worker := newTestWorker(store)
	alice := newFakeSink("alice")
	worker.handle(Join{RoomName: "general", Sink: alice})

	worker.handle(Send{RoomName: "general", Sink: alice, Images: []string{"cat.png"}})

	req.Len(store.messages, 1)
	req.Empty(alice.ofType("failure"))
}

func TestRoomWorker_Typing_Transitions_Broadcast_Once(t *testing.T) {
	req := require.New(t)
	worker := newTestWorker(&fakeStore{})
	alice := newFakeSink("alice")
	bob := newFakeSink("bob")
	worker.handle(Join{RoomName: "general", Sink: alice})
	worker.handle(Join{RoomName: "general", Sink: bob})
	bob.events = nil

	// When alice starts typing twice in a row
	worker.handle(Typing{RoomName: "general", Sink: alice, IsTyping: true})
	worker.handle(Typing{RoomName: "general", Sink: alice, IsTyping: true})

	// Then only the transition was broadcast
	typing := bob.ofType("typing")
	req.Len(typing, 1)
	req.Equal([]string{"alice"}, typing[0].(event.TypingChanged).Typing)

	// When she stops
	worker.handle(Typing{RoomName: "general", Sink: alice, IsTyping: false})
	worker.handle(Typing{RoomName: "general", Sink: alice, IsTyping: false})

	typing = bob.ofType("typing")
	req.Len(typing, 2)
	req.Empty(typing[1].(event.TypingChanged).Typing)
}

func TestRoomWorker_Leave_Clears_Typing_And_Presence(t *testing.T) {
	req := require.New(t)
	worker := newTestWorker(&fakeStore{})
	alice := newFakeSink("alice")
	bob := newFakeSink("bob")
	worker.handle(Join{RoomName: "general", Sink: alice})
	worker.handle(Join{RoomName: "general", Sink: bob})
	worker.handle(Typing{RoomName: "general", Sink: alice, IsTyping: true})
	bob.events = nil

	// When alice's only connection leaves mid-typing
	worker.handle(Leave{RoomName: "general", Sink: alice})

	// Then bob saw her drop out of both the typing set and the roster
	typing := bob.ofType("typing")
	req.Len(typing, 1)
	req.Empty(typing[0].(event.TypingChanged).Typing)
	req.Equal([]string{"bob"}, lastPresence(req, bob).Online)

	// And a duplicate leave is silent
	worker.handle(Leave{RoomName: "general", Sink: alice})
	req.Len(bob.ofType("typing"), 1)
}

func TestRoomWorker_Slow_Consumer_Is_Dropped_Not_Blocking(t *testing.T) {
	req := require.New(t)
	worker := newTestWorker(&fakeStore{})
	alice := newFakeSink("alice")
	stuck := newFakeSink("bob")
	worker.handle(Join{RoomName: "general", Sink: alice})
	worker.handle(Join{RoomName: "general", Sink: stuck})
	stuck.full = true

	// When a broadcast hits a connection whose buffer is full
	worker.handle(Send{RoomName: "general", Sink: alice, Text: "hi"})

	// Then the healthy member still got the message
	req.Len(alice.ofType("message"), 1)
	req.Empty(stuck.events)
}

func TestRoomWorker_EditFanout_Uses_Original_Delivery_Set(t *testing.T) {
	req := require.New(t)
	store := &fakeStore{}
	worker := newTestWorker(store)
	alice := newFakeSink("alice")
	bob := newFakeSink("bob")
	carol := newFakeSink("carol")
	for _, sink := range []*fakeSink{alice, bob, carol} {
		worker.handle(Join{RoomName: "general", Sink: sink})
	}
	worker.handle(Send{RoomName: "general", Sink: alice, Text: "psst", To: lo.ToPtr("bob")})
	msg := store.messages[0]

	// When the persisted edit is fanned out
	updated, err := store.Edit(msg.ID, "alice", "psst v2", nil)
	req.NoError(err)
	worker.handle(EditFanout{Message: updated})

	// Then the bystander still sees nothing
	req.Len(bob.ofType("edited"), 1)
	req.Len(alice.ofType("edited"), 1)
	req.Empty(carol.ofType("edited"))
}

func TestRoomWorker_DeleteFanout_Broadcast(t *testing.T) {
	req := require.New(t)
	store := &fakeStore{}
	worker := newTestWorker(store)
	alice := newFakeSink("alice")
	bob := newFakeSink("bob")
	worker.handle(Join{RoomName: "general", Sink: alice})
	worker.handle(Join{RoomName: "general", Sink: bob})
	worker.handle(Send{RoomName: "general", Sink: alice, Text: "oops"})
	msg := store.messages[0]

	removed, err := store.Delete(msg.ID, "alice")
	req.NoError(err)
	worker.handle(DeleteFanout{RoomName: removed.Room, ID: removed.ID, Sender: removed.Sender, To: removed.To})

	deleted := bob.ofType("deleted")
	req.Len(deleted, 1)
	req.Equal(msg.ID, deleted[0].(event.MessageDeleted).ID)
}

func lastPresence(req *require.Assertions, sink *fakeSink) event.PresenceChanged {
	presences := sink.ofType("presence")
	req.NotEmpty(presences)
	return presences[len(presences)-1].(event.PresenceChanged)
}

// lockedSink is a fakeSink safe to read while a running dispatcher delivers.
type lockedSink struct {
	mu sync.Mutex
	fakeSink
}

func newLockedSink(username string) *lockedSink {
	return &lockedSink{fakeSink: fakeSink{id: uuid.New(), username: username}}
}

func (s *lockedSink) Deliver(e event.DomainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *lockedSink) typing() []event.TypingChanged {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []event.TypingChanged
	for _, e := range s.events {
		if changed, ok := e.(event.TypingChanged); ok {
			out = append(out, changed)
		}
	}
	return out
}

func TestRoomWorker_Sweep_Expires_Typing_Exactly_Once(t *testing.T) {
	req := require.New(t)
	mailbox := make(chan Command, 16)
	worker := NewRoomWorker("general", mailbox, RoomWorkerOptions{
		Store:        &fakeStore{},
		Stats:        observability.NewChatStats(slog.Default()),
		HistoryLimit: 100,
		TypingTTL:    50 * time.Millisecond,
		SweepEvery:   10 * time.Millisecond,
		Log:          slog.Default(),
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = worker.Run(ctx) }()

	alice := newLockedSink("alice")
	mailbox <- Join{RoomName: "general", Sink: alice}

	// Given alice started typing and never sends a stop
	mailbox <- Typing{RoomName: "general", Sink: alice, IsTyping: true}

	// Then the deadline sweep clears the indicator with exactly one event
	req.Eventually(func() bool {
		events := alice.typing()
		return len(events) == 2 && len(events[1].Typing) == 0
	}, time.Second, 5*time.Millisecond)
	req.Equal([]string{"alice"}, alice.typing()[0].Typing)

	// And further sweeps over the empty set stay silent
	time.Sleep(5 * worker.sweepEvery)
	req.Len(alice.typing(), 2)
}
