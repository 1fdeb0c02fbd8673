package repositories

import (
	"log/slog"
	"testing"

	"chat-relay/domain"
	"chat-relay/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR).
		WithValueLogFileSize(16 << 20))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newMessage(room, sender, text string) domain.Message {
	return domain.Message{ID: uuid.New(), Room: room, Sender: sender, Text: text}
}

func Test_Append_Assigns_Monotonic_Sequence(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default())
	defer repository.Close()

	var previous uint64
	for i, text := range []string{"one", "two", "three"} {
		stored, err := repository.Append(newMessage("general", "alice", text))
		req.NoError(err)
		req.False(stored.CreatedAt.IsZero())
		if i > 0 {
			req.Greater(stored.Seq, previous)
		}
		previous = stored.Seq
	}
}

func Test_History_Ascending_Order_And_Limit(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default())
	defer repository.Close()

	for _, text := range []string{"first", "second", "third"} {
		_, err := repository.Append(newMessage("general", "alice", text))
		req.NoError(err)
	}

	messages, err := repository.History("general", 0)
	req.NoError(err)
	req.Equal([]string{"first", "second", "third"},
		lo.Map(messages, func(m domain.Message, _ int) string { return m.Text }))

	// The window keeps the most recent entries.
	messages, err = repository.History("general", 2)
	req.NoError(err)
	req.Equal([]string{"second", "third"},
		lo.Map(messages, func(m domain.Message, _ int) string { return m.Text }))
}

func Test_History_Unknown_Room_Is_Empty_Not_Error(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default())
	defer repository.Close()

	messages, err := repository.History("never-created", 100)
	req.NoError(err)
	req.Empty(messages)
}

func Test_Rooms_Are_Isolated(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default())
	defer repository.Close()

	_, err := repository.Append(newMessage("general", "alice", "in general"))
	req.NoError(err)
	_, err = repository.Append(newMessage("random", "bob", "in random"))
	req.NoError(err)

	messages, err := repository.History("general", 0)
	req.NoError(err)
	req.Len(messages, 1)
	req.Equal("in general", messages[0].Text)
}

func Test_Rooms_With_Colons_Do_Not_Share_A_Prefix(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default())
	defer repository.Close()

	// Given a room whose name extends another room's name past a colon
	_, err := repository.Append(newMessage("general", "alice", "public"))
	req.NoError(err)
	private := newMessage("general:ops", "bob", "for carol only")
	private.To = lo.ToPtr("carol")
	_, err = repository.Append(private)
	req.NoError(err)

	// Then neither room's history leaks into the other's
	messages, err := repository.History("general", 0)
	req.NoError(err)
	req.Len(messages, 1)
	req.Equal("general", messages[0].Room)

	messages, err = repository.History("general:ops", 0)
	req.NoError(err)
	req.Len(messages, 1)
	req.Equal("for carol only", messages[0].Text)
}

func Test_Edit_Authorization(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default())
	defer repository.Close()

	stored, err := repository.Append(newMessage("general", "alice", "hello"))
	req.NoError(err)

	// A non-sender must not be able to change anything.
	_, err = repository.Edit(stored.ID, "bob", "hacked", nil)
	req.ErrorIs(err, errors.ErrForbidden)

	unchanged, err := repository.Get(stored.ID)
	req.NoError(err)
	req.Equal("hello", unchanged.Text)
	req.Nil(unchanged.EditedAt)

	// The sender edit sticks and stamps EditedAt.
	updated, err := repository.Edit(stored.ID, "alice", "hello again", []string{"img-1"})
	req.NoError(err)
	req.Equal("hello again", updated.Text)
	req.Equal([]string{"img-1"}, updated.Images)
	req.NotNil(updated.EditedAt)

	fetched, err := repository.Get(stored.ID)
	req.NoError(err)
	req.Equal(updated.Text, fetched.Text)
}

func Test_Edit_Unknown_Id(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default())
	defer repository.Close()

	_, err := repository.Edit(uuid.New(), "alice", "text", nil)
	req.ErrorIs(err, errors.ErrNotFound)
}

func Test_Delete_Semantics(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default())
	defer repository.Close()

	stored, err := repository.Append(newMessage("general", "alice", "ephemeral"))
	req.NoError(err)

	_, err = repository.Delete(stored.ID, "bob")
	req.ErrorIs(err, errors.ErrForbidden)

	removed, err := repository.Delete(stored.ID, "alice")
	req.NoError(err)
	req.Equal(stored.ID, removed.ID)

	// Gone from history and gone for a second delete.
	messages, err := repository.History("general", 0)
	req.NoError(err)
	req.Empty(messages)

	_, err = repository.Delete(stored.ID, "alice")
	req.ErrorIs(err, errors.ErrNotFound)
}
