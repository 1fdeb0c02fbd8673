package runtime

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"chat-relay/contract"
	"chat-relay/errors"
	"chat-relay/observability"
	"chat-relay/runtime/workers"

	"github.com/stretchr/testify/require"
)

func newTestRegistry(store *fakeStore) (*Registry, *workers.Supervisor) {
	log := slog.Default()
	sup := workers.NewSupervisor(log, 10*time.Millisecond)
	factory := func(room string, mailbox chan Command) contract.Worker {
		return NewRoomWorker(room, mailbox, RoomWorkerOptions{
			Store:        store,
			Stats:        observability.NewChatStats(log),
			HistoryLimit: 100,
			TypingTTL:    2 * time.Second,
			SweepEvery:   500 * time.Millisecond,
			Log:          log,
		})
	}
	return NewRegistry(log, sup, factory, observability.NewChatStats(log), 16), sup
}

func TestRegistry_Dispatch_Before_Bind_Fails(t *testing.T) {
	req := require.New(t)
	registry, _ := newTestRegistry(&fakeStore{})

	err := registry.Dispatch(context.Background(), Join{RoomName: "general", Sink: newFakeSink("alice")})

	req.ErrorIs(err, errors.ErrRegistryClosed)
}

func TestRegistry_Dispatch_Creates_Room_Lazily(t *testing.T) {
	req := require.New(t)
	registry, sup := newTestRegistry(&fakeStore{})

	ctx, cancel := context.WithCancel(context.Background())
	registry.Bind(ctx)

	// Given no room exists yet
	req.Empty(registry.Rooms())

	// When commands target two rooms
	alice := newFakeSink("alice")
	req.NoError(registry.Dispatch(ctx, Join{RoomName: "general", Sink: alice}))
	req.NoError(registry.Dispatch(ctx, Join{RoomName: "random", Sink: alice}))

	// Then both dispatchers exist, sorted by name
	req.Equal([]string{"general", "random"}, registry.Rooms())

	// And the same room is not created twice
	req.NoError(registry.Dispatch(ctx, Typing{RoomName: "general", Sink: alice, IsTyping: true}))
	req.Equal([]string{"general", "random"}, registry.Rooms())

	cancel()
	sup.Wait()
}

func TestRegistry_Commands_Are_Processed_In_Order(t *testing.T) {
	req := require.New(t)
	store := &fakeStore{}
	registry, sup := newTestRegistry(store)

	ctx, cancel := context.WithCancel(context.Background())
	registry.Bind(ctx)

	alice := newFakeSink("alice")
	req.NoError(registry.Dispatch(ctx, Join{RoomName: "general", Sink: alice}))
	for i := 0; i < 5; i++ {
		req.NoError(registry.Dispatch(ctx, Send{RoomName: "general", Sink: alice, Text: "msg"}))
	}

	// Then the per-room dispatcher assigned strictly increasing sequences
	req.Eventually(func() bool { return len(store.snapshot()) == 5 },
		2*time.Second, 10*time.Millisecond)
	for i, msg := range store.snapshot() {
		req.Equal(uint64(i+1), msg.Seq)
	}

	cancel()
	sup.Wait()
}

func TestRegistry_Dispatch_Honors_Caller_Context(t *testing.T) {
	req := require.New(t)
	registry, sup := newTestRegistry(&fakeStore{})

	runCtx, cancel := context.WithCancel(context.Background())
	registry.Bind(runCtx)

	expired, expire := context.WithCancel(context.Background())
	expire()

	// A full mailbox with an expired caller context must not hang
	err := registry.Dispatch(expired, Join{RoomName: "general", Sink: newFakeSink("alice")})
	if err != nil {
		req.ErrorIs(err, context.Canceled)
	}

	cancel()
	sup.Wait()
}
