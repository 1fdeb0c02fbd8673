package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Room holds the live coordination state of one named room: which connection
// belongs to which username, and who is currently typing. It is not safe for
// concurrent use; the owning room worker serializes every mutation.
//
// Rooms are created lazily on first join and never destroyed. An empty room
// is simply a room with no members, re-joinable at any time.
type Room struct {
	Name string

	members map[string]map[uuid.UUID]struct{}
	typing  map[string]time.Time
}

func NewRoom(name string) *Room {
	return &Room{
		Name:    name,
		members: make(map[string]map[uuid.UUID]struct{}),
		typing:  make(map[string]time.Time),
	}
}

// Join adds a connection under its username and reports whether the online
// roster changed, which is true only for the username's first connection.
// Re-joining with the same connection is a no-op.
func (r *Room) Join(username string, connID uuid.UUID) bool {
	conns, ok := r.members[username]
	if !ok {
		conns = make(map[uuid.UUID]struct{})
		r.members[username] = conns
	}
	conns[connID] = struct{}{}
	return !ok
}

// Leave removes one connection and reports whether the username went offline
// in this room. Safe to call for a connection that already left.
func (r *Room) Leave(username string, connID uuid.UUID) bool {
	conns, ok := r.members[username]
	if !ok {
		return false
	}
	delete(conns, connID)
	if len(conns) == 0 {
		delete(r.members, username)
		return true
	}
	return false
}

// Connections returns the number of live connections for a username.
func (r *Room) Connections(username string) int {
	return len(r.members[username])
}

// Online returns the sorted set of usernames with at least one connection.
func (r *Room) Online() []string {
	out := make([]string, 0, len(r.members))
	for u := range r.members {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// SetTyping sets or refreshes the username's typing deadline and reports
// whether the typing set changed. Refreshing an existing deadline is not a
// change, so repeated keystrokes never produce duplicate notifications.
func (r *Room) SetTyping(username string, deadline time.Time) bool {
	_, ok := r.typing[username]
	r.typing[username] = deadline
	return !ok
}

// ClearTyping drops the username's deadline and reports whether the typing
// set changed. Used for explicit stop events and for disconnect cleanup.
func (r *Room) ClearTyping(username string) bool {
	if _, ok := r.typing[username]; !ok {
		return false
	}
	delete(r.typing, username)
	return true
}

// Typing returns the sorted usernames currently considered typing.
func (r *Room) Typing() []string {
	out := make([]string, 0, len(r.typing))
	for u := range r.typing {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// ExpireTyping removes every deadline at or past now and reports whether the
// typing set changed. This covers clients that stop sending keystrokes
// without an explicit stop, including abrupt disconnects.
func (r *Room) ExpireTyping(now time.Time) bool {
	changed := false
	for u, deadline := range r.typing {
		if !deadline.After(now) {
			delete(r.typing, u)
			changed = true
		}
	}
	return changed
}
