package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestRoom_Join_First_Connection_Changes_Roster(t *testing.T) {
	req := require.New(t)
	room := NewRoom("general")

	// When the first connection of a username joins
	changed := room.Join("alice", uuid.New())

	// Then the roster changed
	req.True(changed)
	req.Equal([]string{"alice"}, room.Online())
}

func TestRoom_Join_Second_Tab_Same_User(t *testing.T) {
	req := require.New(t)
	room := NewRoom("general")
	room.Join("alice", uuid.New())

	// When a second connection of the same user joins
	changed := room.Join("alice", uuid.New())

	// Then the roster is unchanged
	req.False(changed)
	req.Equal([]string{"alice"}, room.Online())
}

func TestRoom_Leave_Last_Connection_Goes_Offline(t *testing.T) {
	req := require.New(t)
	room := NewRoom("general")
	conn1 := uuid.New()
	conn2 := uuid.New()
	room.Join("alice", conn1)
	room.Join("alice", conn2)

	// When one of two tabs leaves, the user stays online
	req.False(room.Leave("alice", conn1))
	req.Equal([]string{"alice"}, room.Online())

	// When the last tab leaves, the user goes offline
	req.True(room.Leave("alice", conn2))
	req.Empty(room.Online())
}

func TestRoom_Leave_Unknown_Connection_Is_Noop(t *testing.T) {
	req := require.New(t)
	room := NewRoom("general")
	room.Join("alice", uuid.New())

	req.False(room.Leave("alice", uuid.New()))
	req.False(room.Leave("bob", uuid.New()))
	req.Equal([]string{"alice"}, room.Online())
}

func TestRoom_Online_Is_Sorted(t *testing.T) {
	req := require.New(t)
	room := NewRoom("general")
	room.Join("carol", uuid.New())
	room.Join("alice", uuid.New())
	room.Join("bob", uuid.New())

	req.Equal([]string{"alice", "bob", "carol"}, room.Online())
}

func TestRoom_SetTyping_Transitions(t *testing.T) {
	req := require.New(t)
	room := NewRoom("general")
	deadline := time.Now().Add(2 * time.Second)

	// First start is a transition, repeat is a deadline refresh only
	req.True(room.SetTyping("alice", deadline))
	req.False(room.SetTyping("alice", deadline.Add(time.Second)))
	req.Equal([]string{"alice"}, room.Typing())

	// Explicit stop is a transition, repeated stop is not
	req.True(room.ClearTyping("alice"))
	req.False(room.ClearTyping("alice"))
	req.Empty(room.Typing())
}

func TestRoom_ExpireTyping_Removes_Overdue_Only(t *testing.T) {
	req := require.New(t)
	room := NewRoom("general")
	now := time.Now()
	room.SetTyping("alice", now.Add(-time.Millisecond))
	room.SetTyping("bob", now.Add(2*time.Second))

	// When the sweep runs
	changed := room.ExpireTyping(now)

	// Then only the overdue deadline is dropped
	req.True(changed)
	req.Equal([]string{"bob"}, room.Typing())

	// And a sweep with nothing overdue reports no change
	req.False(room.ExpireTyping(now))
}
