package runtime

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"chat-relay/contract"
	"chat-relay/errors"
	"chat-relay/observability"
)

// WorkerFactory builds the dispatcher for a room the first time anything is
// submitted for it.
type WorkerFactory func(room string, mailbox chan Command) contract.Worker

// Registry maps room names to their dispatcher mailboxes. Rooms are created
// lazily on first dispatch and kept forever: an idle room costs one parked
// goroutine and an empty map, which is cheap enough to never reap.
type Registry struct {
	mu         sync.Mutex
	log        *slog.Logger
	supervisor contract.ISupervisor
	factory    WorkerFactory
	stats      *observability.ChatStats
	buffer     int

	runCtx    context.Context
	mailboxes map[string]chan Command
}

func NewRegistry(log *slog.Logger, supervisor contract.ISupervisor,
	factory WorkerFactory, stats *observability.ChatStats, buffer int) *Registry {
	return &Registry{
		log:        log,
		supervisor: supervisor,
		factory:    factory,
		stats:      stats,
		buffer:     buffer,
		mailboxes:  make(map[string]chan Command),
	}
}

// Bind arms the registry with the run context every room worker inherits.
// Dispatch fails with ErrRegistryClosed until Bind is called.
func (r *Registry) Bind(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runCtx = ctx
}

// Dispatch submits a command to its room's mailbox, waiting until the
// dispatcher accepts it or the caller's context expires. This is the only
// suspension point between a session and a room.
func (r *Registry) Dispatch(ctx context.Context, cmd Command) error {
	mailbox, err := r.mailbox(cmd.Room())
	if err != nil {
		return err
	}
	select {
	case mailbox <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Rooms returns the names of every room created so far.
func (r *Registry) Rooms() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.mailboxes))
	for name := range r.mailboxes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) mailbox(room string) (chan Command, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.runCtx == nil {
		return nil, errors.ErrRegistryClosed
	}
	mailbox, ok := r.mailboxes[room]
	if !ok {
		mailbox = make(chan Command, r.buffer)
		r.mailboxes[room] = mailbox
		r.supervisor.Start(r.runCtx, r.factory(room, mailbox))
		r.stats.IncrRoomsCreated()
		r.log.Info("Room dispatcher started", "room", room)
	}
	return mailbox, nil
}
