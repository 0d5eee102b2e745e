package repositories

import (
	"encoding/json"
	"time"

	"chat-server/domain"
	"chat-server/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type IUserRepository interface {
	CreateUser(username, passwordHash string) (domain.User, error)
	GetUserByName(username string) (domain.User, error)
	Exists(userID string) (bool, error)
	// UpdateStatus records a presence transition on the user record.
	UpdateStatus(userID string, status domain.PresenceStatus, at time.Time) error
}

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) UserRepository {
	return UserRepository{db: db}
}

type diskUser struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"passwordHash"`
	Status       string `json:"status"`
	LastSeen     int64  `json:"lastSeen"`
	CreatedAt    int64  `json:"createdAt"`
}

// CreateUser persists a new account under two keys:
//
//	user:{username} -> the record (usernames are the login identifier)
//	userid:{id}     -> the username (the core addresses users by id)
func (u UserRepository) CreateUser(username, passwordHash string) (domain.User, error) {
	user := diskUser{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
		Status:       string(domain.StatusOffline),
		CreatedAt:    time.Now().UnixNano(),
	}
	data, err := json.Marshal(user)
	if err != nil {
		return domain.User{}, err
	}
	err = u.db.Update(func(txn *badger.Txn) error {
		key := []byte("user:" + username)
		if _, err := txn.Get(key); err == nil {
			return errors.ErrUserAlreadyExists
		}
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set([]byte("userid:"+user.ID), []byte(username))
	})
	if err != nil {
		return domain.User{}, err
	}
	return toDomainUser(user), nil
}

func (u UserRepository) GetUserByName(username string) (domain.User, error) {
	var user diskUser
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("user:" + username))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &user)
		})
	})
	if err == badger.ErrKeyNotFound {
		return domain.User{}, errors.ErrNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	return toDomainUser(user), nil
}

// Exists is the hot existence check on the private send path.
func (u UserRepository) Exists(userID string) (bool, error) {
	err := u.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte("userid:" + userID))
		return err
	})
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// UpdateStatus rewrites the presence fields of the user record in one
// transaction. Missing users are ignored: a presence transition must never
// fail the connection lifecycle that emitted it.
func (u UserRepository) UpdateStatus(userID string, status domain.PresenceStatus, at time.Time) error {
	return u.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("userid:" + userID))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		username, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		item, err = txn.Get([]byte("user:" + string(username)))
		if err != nil {
			return err
		}
		var user diskUser
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &user)
		}); err != nil {
			return err
		}
		user.Status = string(status)
		user.LastSeen = at.UnixNano()
		data, err := json.Marshal(user)
		if err != nil {
			return err
		}
		return txn.Set([]byte("user:"+string(username)), data)
	})
}

func toDomainUser(user diskUser) domain.User {
	return domain.User{
		ID:           user.ID,
		Username:     user.Username,
		PasswordHash: user.PasswordHash,
		Status:       domain.PresenceStatus(user.Status),
		LastSeen:     time.Unix(0, user.LastSeen).UTC(),
		CreatedAt:    time.Unix(0, user.CreatedAt).UTC(),
	}
}
