package repositories

import (
	"testing"
	"time"

	"chat-server/domain"
	"chat-server/errors"

	"github.com/stretchr/testify/require"
)

func TestUserRepository_CreateUser(t *testing.T) {
	req := require.New(t)
	repo := NewUserRepository(newTestDB(t))

	user, err := repo.CreateUser("alice", "hash")

	req.NoError(err)
	req.NotEmpty(user.ID)
	req.Equal("alice", user.Username)
	req.Equal(domain.StatusOffline, user.Status)

	// A taken username is rejected
	_, err = repo.CreateUser("alice", "other-hash")
	req.ErrorIs(err, errors.ErrUserAlreadyExists)
}

func TestUserRepository_GetUserByName(t *testing.T) {
	req := require.New(t)
	repo := NewUserRepository(newTestDB(t))
	created, err := repo.CreateUser("alice", "hash")
	req.NoError(err)

	user, err := repo.GetUserByName("alice")
	req.NoError(err)
	req.Equal(created.ID, user.ID)
	req.Equal("hash", user.PasswordHash)

	_, err = repo.GetUserByName("nobody")
	req.ErrorIs(err, errors.ErrNotFound)
}

func TestUserRepository_Exists(t *testing.T) {
	req := require.New(t)
	repo := NewUserRepository(newTestDB(t))
	user, err := repo.CreateUser("alice", "hash")
	req.NoError(err)

	exists, err := repo.Exists(user.ID)
	req.NoError(err)
	req.True(exists)

	exists, err = repo.Exists("nobody")
	req.NoError(err)
	req.False(exists)
}

func TestUserRepository_UpdateStatus(t *testing.T) {
	req := require.New(t)
	repo := NewUserRepository(newTestDB(t))
	user, err := repo.CreateUser("alice", "hash")
	req.NoError(err)

	at := time.Now().UTC()
	req.NoError(repo.UpdateStatus(user.ID, domain.StatusOnline, at))

	stored, err := repo.GetUserByName("alice")
	req.NoError(err)
	req.Equal(domain.StatusOnline, stored.Status)
	req.True(at.Equal(stored.LastSeen))

	// Updating a missing user never fails the presence path
	req.NoError(repo.UpdateStatus("ghost", domain.StatusOffline, at))
}
