package domain

import "github.com/google/uuid"

// Connection binds one transport-level connection to an authenticated user.
// It is owned exclusively by the session goroutine that created it: the
// joined-room set is read and written from that goroutine only.
type Connection struct {
	ID        uuid.UUID
	Username  string
	AvatarURL string

	rooms map[string]struct{}
}

func NewConnection(username, avatarURL string) *Connection {
	return &Connection{
		ID:        uuid.New(),
		Username:  username,
		AvatarURL: avatarURL,
		rooms:     make(map[string]struct{}),
	}
}

// Track records a successful room join. Idempotent.
func (c *Connection) Track(room string) {
	c.rooms[room] = struct{}{}
}

// Forget removes a room after an explicit leave.
func (c *Connection) Forget(room string) {
	delete(c.rooms, room)
}

func (c *Connection) In(room string) bool {
	_, ok := c.rooms[room]
	return ok
}

// Rooms returns the rooms this connection has joined, for disconnect cleanup.
func (c *Connection) Rooms() []string {
	out := make([]string, 0, len(c.rooms))
	for r := range c.rooms {
		out = append(out, r)
	}
	return out
}
