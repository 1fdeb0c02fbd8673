package repositories

import (
	"encoding/json"
	"fmt"
	"time"

	"chat-relay/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// User is the profile record owned by the auth collaborator. AvatarURL is an
// opaque reference into the external profile store, never a file payload.
type User struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	AvatarURL    string    `json:"avatarUrl,omitempty"`
	PasswordHash string    `json:"passwordHash"`
	CreatedAt    time.Time `json:"createdAt"`
}

type IUserRepository interface {
	CreateUser(user User) (User, error)
	GetUserByEmail(email string) (User, error)
	GetUserByUsername(username string) (User, error)
	ListUsers() ([]User, error)
}

// UserRepository stores users under "user:{username}" with an email index
// "uemail:{email}" so both unique keys are enforced in one transaction.
type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) CreateUser(user User) (User, error) {
	user.ID = uuid.New()
	user.CreatedAt = time.Now().UTC()

	payload, err := json.Marshal(user)
	if err != nil {
		return User{}, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}

	err = r.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(userKey(user.Username)); err == nil {
			return errors.ErrUserAlreadyExists
		} else if err != badger.ErrKeyNotFound {
			return fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
		}
		if _, err := txn.Get(emailKey(user.Email)); err == nil {
			return errors.ErrUserAlreadyExists
		} else if err != badger.ErrKeyNotFound {
			return fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
		}

		if err := txn.Set(userKey(user.Username), payload); err != nil {
			return fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
		}
		return txn.Set(emailKey(user.Email), []byte(user.Username))
	})
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (r *UserRepository) GetUserByEmail(email string) (User, error) {
	var user User
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(emailKey(email))
		if err == badger.ErrKeyNotFound {
			return errors.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
		}
		username, err := item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
		}
		user, err = getUser(txn, string(username))
		return err
	})
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (r *UserRepository) GetUserByUsername(username string) (User, error) {
	var user User
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		user, err = getUser(txn, username)
		return err
	})
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// ListUsers returns every registered user, used by clients to pick a private
// message recipient.
func (r *UserRepository) ListUsers() ([]User, error) {
	var users []User
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte("user:")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				var user User
				if err := json.Unmarshal(value, &user); err != nil {
					return err
				}
				users = append(users, user)
				return nil
			})
			if err != nil {
				return fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

func getUser(txn *badger.Txn, username string) (User, error) {
	item, err := txn.Get(userKey(username))
	if err == badger.ErrKeyNotFound {
		return User{}, errors.ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	var user User
	err = item.Value(func(value []byte) error {
		return json.Unmarshal(value, &user)
	})
	if err != nil {
		return User{}, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	return user, nil
}

func userKey(username string) []byte {
	return []byte("user:" + username)
}

func emailKey(email string) []byte {
	return []byte("uemail:" + email)
}
