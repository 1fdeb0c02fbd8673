package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"chat-relay/domain"
	"chat-relay/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type IMessageRepository interface {
	Append(message domain.Message) (domain.Message, error)
	History(room string, limit int) ([]domain.Message, error)
	Get(id uuid.UUID) (domain.Message, error)
	Edit(id uuid.UUID, requester, text string, images []string) (domain.Message, error)
	Delete(id uuid.UUID, requester string) (domain.Message, error)
	Close() error
}

// MessageRepository persists the room log in BadgerDB.
//
// The primary key is "msg:{room}:{seq_padded}": the room segment is
// query-escaped so it contains no ':' and the per-room sequence uses
// 19-digit zero padding so lexicographical iteration equals chronological
// order. A secondary index "msgid:{uuid}" points at the primary key so
// edit/delete can resolve a message id without scanning.
type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger

	mu   sync.Mutex
	seqs map[string]*badger.Sequence
}

// seqBandwidth is how many sequence numbers badger leases at once. Gaps after
// a crash are fine: ordering matters, density does not.
const seqBandwidth = 64

func NewMessageRepository(db *badger.DB, log *slog.Logger) *MessageRepository {
	return &MessageRepository{db: db, log: log, seqs: make(map[string]*badger.Sequence)}
}

// Append assigns the per-room sequence and the creation timestamp, persists
// the record and returns the stored form. The returned message is the
// authoritative copy used for fan-out.
func (m *MessageRepository) Append(message domain.Message) (domain.Message, error) {
	seq, err := m.next(message.Room)
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	message.Seq = seq
	message.CreatedAt = time.Now().UTC()

	payload, err := json.Marshal(message)
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}

	err = m.db.Update(func(txn *badger.Txn) error {
		key := messageKey(message.Room, message.Seq)
		if err := txn.Set(key, payload); err != nil {
			return err
		}
		return txn.Set(indexKey(message.ID), key)
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	return message, nil
}

// History returns the most recent messages of a room in ascending sequence
// order. A room that never stored anything yields an empty slice, not an
// error. The reverse iterator walks newest-first and the result is flipped
// at the end, mirroring the cursor-less page of a chat backlog.
func (m *MessageRepository) History(room string, limit int) ([]domain.Message, error) {
	var collected [][]byte
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := []byte("msg:" + roomSegment(room) + ":")
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		// Seek past the highest possible sequence, then walk backwards.
		seekKey := append(append([]byte{}, prefix...), []byte("9999999999999999999")...)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(collected) == limit {
				m.log.Debug(fmt.Sprintf("History window of %d messages reached", limit))
				break
			}
			err := it.Item().Value(func(value []byte) error {
				collected = append(collected, append([]byte{}, value...))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}

	messages := make([]domain.Message, 0, len(collected))
	for _, raw := range collected {
		var message domain.Message
		if err := json.Unmarshal(raw, &message); err != nil {
			return nil, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
		}
		messages = append(messages, message)
	}
	return lo.Reverse(messages), nil
}

// Get resolves a message by id through the secondary index.
func (m *MessageRepository) Get(id uuid.UUID) (domain.Message, error) {
	var message domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		loaded, err := loadByID(txn, id)
		if err != nil {
			return err
		}
		message = loaded
		return nil
	})
	return message, err
}

// Edit replaces text/images and stamps the edited timestamp. Fails with
// ErrNotFound for an unknown id and ErrForbidden when the requester is not
// the sender; the stored record is untouched in both cases.
func (m *MessageRepository) Edit(id uuid.UUID, requester, text string, images []string) (domain.Message, error) {
	var updated domain.Message
	err := m.db.Update(func(txn *badger.Txn) error {
		message, err := loadByID(txn, id)
		if err != nil {
			return err
		}
		if message.Sender != requester {
			return errors.ErrForbidden
		}

		now := time.Now().UTC()
		message.Text = text
		message.Images = images
		message.EditedAt = &now

		payload, err := json.Marshal(message)
		if err != nil {
			return fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
		}
		if err := txn.Set(messageKey(message.Room, message.Seq), payload); err != nil {
			return fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
		}
		updated = message
		return nil
	})
	if err != nil {
		return domain.Message{}, err
	}
	return updated, nil
}

// Delete removes the record and its index entry. Deleting an id that is
// already gone fails with ErrNotFound, so callers can tell "already gone"
// from a permission problem.
func (m *MessageRepository) Delete(id uuid.UUID, requester string) (domain.Message, error) {
	var removed domain.Message
	err := m.db.Update(func(txn *badger.Txn) error {
		message, err := loadByID(txn, id)
		if err != nil {
			return err
		}
		if message.Sender != requester {
			return errors.ErrForbidden
		}
		if err := txn.Delete(messageKey(message.Room, message.Seq)); err != nil {
			return fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
		}
		if err := txn.Delete(indexKey(id)); err != nil {
			return fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
		}
		removed = message
		return nil
	})
	if err != nil {
		return domain.Message{}, err
	}
	return removed, nil
}

// Close releases the leased sequences so unused numbers return to badger.
func (m *MessageRepository) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for room, seq := range m.seqs {
		if err := seq.Release(); err != nil {
			m.log.Warn("Failed to release sequence", "room", room, "error", err)
		}
	}
	m.seqs = make(map[string]*badger.Sequence)
	return nil
}

func (m *MessageRepository) next(room string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seq, ok := m.seqs[room]
	if !ok {
		created, err := m.db.GetSequence([]byte("seq:"+roomSegment(room)), seqBandwidth)
		if err != nil {
			return 0, err
		}
		m.seqs[room] = created
		seq = created
	}
	return seq.Next()
}

func loadByID(txn *badger.Txn, id uuid.UUID) (domain.Message, error) {
	item, err := txn.Get(indexKey(id))
	if err == badger.ErrKeyNotFound {
		return domain.Message{}, errors.ErrNotFound
	}
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	primary, err := item.ValueCopy(nil)
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}

	record, err := txn.Get(primary)
	if err == badger.ErrKeyNotFound {
		return domain.Message{}, errors.ErrNotFound
	}
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}

	var message domain.Message
	err = record.Value(func(value []byte) error {
		return json.Unmarshal(value, &message)
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	return message, nil
}

func messageKey(room string, seq uint64) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d", roomSegment(room), seq))
}

// roomSegment makes a room name safe inside a composite key. The escaped
// form contains no ':', so "general" can never prefix-match the log of a
// room like "general:ops".
func roomSegment(room string) string {
	return url.QueryEscape(room)
}

func indexKey(id uuid.UUID) []byte {
	return []byte("msgid:" + id.String())
}
