package repositories

import (
	"encoding/json"
	"time"

	"chat-server/domain"
	"chat-server/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type IGroupRepository interface {
	CreateGroup(name, ownerID string) (domain.Group, error)
	AddMember(groupID, userID string) error
	GetGroup(groupID string) (domain.Group, error)
	// Members returns the membership snapshot the delivery path fans out to.
	Members(groupID string) ([]string, error)
}

type GroupRepository struct {
	db *badger.DB
}

func NewGroupRepository(db *badger.DB) GroupRepository {
	return GroupRepository{db: db}
}

type diskGroup struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	OwnerID   string   `json:"ownerId"`
	Members   []string `json:"members"`
	CreatedAt int64    `json:"createdAt"`
}

// CreateGroup persists a new group with the owner as its first member.
func (g GroupRepository) CreateGroup(name, ownerID string) (domain.Group, error) {
	group := diskGroup{
		ID:        uuid.NewString(),
		Name:      name,
		OwnerID:   ownerID,
		Members:   []string{ownerID},
		CreatedAt: time.Now().UnixNano(),
	}
	data, err := json.Marshal(group)
	if err != nil {
		return domain.Group{}, err
	}
	err = g.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("group:"+group.ID), data)
	})
	if err != nil {
		return domain.Group{}, err
	}
	return toDomainGroup(group), nil
}

// AddMember appends userID to the membership set inside one transaction.
// Adding an existing member is a no-op.
func (g GroupRepository) AddMember(groupID, userID string) error {
	err := g.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("group:" + groupID))
		if err != nil {
			return err
		}
		var group diskGroup
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &group)
		}); err != nil {
			return err
		}
		for _, id := range group.Members {
			if id == userID {
				return nil
			}
		}
		group.Members = append(group.Members, userID)
		data, err := json.Marshal(group)
		if err != nil {
			return err
		}
		return txn.Set([]byte("group:"+groupID), data)
	})
	if err == badger.ErrKeyNotFound {
		return errors.ErrNotFound
	}
	return err
}

func (g GroupRepository) GetGroup(groupID string) (domain.Group, error) {
	var group diskGroup
	err := g.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("group:" + groupID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &group)
		})
	})
	if err == badger.ErrKeyNotFound {
		return domain.Group{}, errors.ErrNotFound
	}
	if err != nil {
		return domain.Group{}, err
	}
	return toDomainGroup(group), nil
}

func (g GroupRepository) Members(groupID string) ([]string, error) {
	group, err := g.GetGroup(groupID)
	if err != nil {
		return nil, err
	}
	return group.Members, nil
}

func toDomainGroup(group diskGroup) domain.Group {
	return domain.Group{
		ID:        group.ID,
		Name:      group.Name,
		OwnerID:   group.OwnerID,
		Members:   group.Members,
		CreatedAt: time.Unix(0, group.CreatedAt).UTC(),
	}
}
