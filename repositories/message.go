package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"chat-server/domain"
	"chat-server/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type IMessageRepository interface {
	SaveMessage(msg domain.Message) error
	GetMessage(id uuid.UUID) (domain.Message, error)
	AppendRead(id uuid.UUID, mark domain.ReadMark) (domain.Message, error)
	GetHistory(conv domain.Conversation, cursor *string, limit int) ([]domain.Message, *string, error)
}

type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) MessageRepository {
	return MessageRepository{db: db, log: log}
}

// diskMessage is the stored form. The conversation is flattened to its key
// so the tagged union survives the round trip without variant fields.
type diskMessage struct {
	ID           string         `json:"id"`
	Conversation string         `json:"conversation"`
	Sender       string         `json:"sender"`
	Content      string         `json:"content"`
	Type         string         `json:"type"`
	At           int64          `json:"at"`
	EditedAt     *int64         `json:"editedAt,omitempty"`
	ReadBy       []diskReadMark `json:"readBy"`
}

type diskReadMark struct {
	UserID string `json:"userId"`
	At     int64  `json:"at"`
}

// SaveMessage persists a message under two keys:
//
//	msg:{conversation}:{timestamp_padded}:{uuid}  -> the message
//	msgid:{uuid}                                  -> the primary key
//
// The 19-digit zero padding keeps messages chronologically sorted under a
// plain lexicographic prefix scan; the UUID suffix disambiguates two messages
// landing on the same nanosecond. The id index serves the read-receipt path,
// which only knows the message id.
func (m MessageRepository) SaveMessage(msg domain.Message) error {
	key := primaryKey(msg.Conversation, msg.CreatedAt, msg.ID)
	data, err := json.Marshal(fromDomainMessage(msg))
	if err != nil {
		return err
	}
	return m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(key), data); err != nil {
			return err
		}
		return txn.Set([]byte("msgid:"+msg.ID.String()), []byte(key))
	})
}

func (m MessageRepository) GetMessage(id uuid.UUID) (domain.Message, error) {
	var raw []byte
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("msgid:" + id.String()))
		if err != nil {
			return err
		}
		primary, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		item, err = txn.Get(primary)
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return domain.Message{}, errors.ErrNotFound
	}
	if err != nil {
		return domain.Message{}, err
	}
	var disk diskMessage
	if err := json.Unmarshal(raw, &disk); err != nil {
		return domain.Message{}, err
	}
	return toDomainMessage(disk)
}

// AppendRead adds a read mark to the stored message inside a single
// transaction and returns the updated record. The caller guarantees the mark
// is not already present; the repository re-checks anyway so a duplicate can
// never be written.
func (m MessageRepository) AppendRead(id uuid.UUID, mark domain.ReadMark) (domain.Message, error) {
	var updated domain.Message
	err := m.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("msgid:" + id.String()))
		if err != nil {
			return err
		}
		primary, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		item, err = txn.Get(primary)
		if err != nil {
			return err
		}
		var disk diskMessage
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &disk)
		}); err != nil {
			return err
		}
		for _, existing := range disk.ReadBy {
			if existing.UserID == mark.UserID {
				updated, err = toDomainMessage(disk)
				return err
			}
		}
		disk.ReadBy = append(disk.ReadBy, diskReadMark{UserID: mark.UserID, At: mark.ReadAt.UnixNano()})
		data, err := json.Marshal(disk)
		if err != nil {
			return err
		}
		if err := txn.Set(primary, data); err != nil {
			return err
		}
		updated, err = toDomainMessage(disk)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return domain.Message{}, errors.ErrNotFound
	}
	return updated, err
}

// GetHistory retrieves messages for one conversation, newest first, using a
// reverse prefix scan. Thanks to the padded timestamp in the key the order is
// already chronological; the returned cursor resumes the scan on the next
// page.
func (m MessageRepository) GetHistory(conv domain.Conversation, cursor *string, limit int) ([]domain.Message, *string, error) {
	var rawMessages [][]byte
	var lastKey string
	err := m.db.View(func(txn *badger.Txn) error {
		prefixStr := "msg:" + conv.Key() + ":"
		prefix := []byte(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Seek past the newest possible timestamp, then walk backwards.
			seekKey = append(prefix, []byte("9999999999999999999")...)
		default:
			seekKey = append(prefix, []byte(*cursor)...)
		}

		it.Seek(seekKey)
		if cursor != nil && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(rawMessages) == limit {
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[len(prefixStr):])
			if err := item.Value(func(value []byte) error {
				rawMessages = append(rawMessages, append([]byte(nil), value...))
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	messages := make([]domain.Message, 0, len(rawMessages))
	for _, raw := range rawMessages {
		var disk diskMessage
		if err := json.Unmarshal(raw, &disk); err != nil {
			return nil, nil, err
		}
		msg, err := toDomainMessage(disk)
		if err != nil {
			return nil, nil, err
		}
		messages = append(messages, msg)
	}
	return messages, &lastKey, nil
}

func primaryKey(conv domain.Conversation, at time.Time, id uuid.UUID) string {
	return fmt.Sprintf("msg:%s:%019d:%s", conv.Key(), at.UnixNano(), id)
}

func fromDomainMessage(msg domain.Message) diskMessage {
	var edited *int64
	if msg.EditedAt != nil {
		edited = lo.ToPtr(msg.EditedAt.UnixNano())
	}
	return diskMessage{
		ID:           msg.ID.String(),
		Conversation: msg.Conversation.Key(),
		Sender:       msg.SenderID,
		Content:      msg.Content,
		Type:         string(msg.Type),
		At:           msg.CreatedAt.UnixNano(),
		EditedAt:     edited,
		ReadBy: lo.Map(msg.ReadBy, func(mark domain.ReadMark, _ int) diskReadMark {
			return diskReadMark{UserID: mark.UserID, At: mark.ReadAt.UnixNano()}
		}),
	}
}

func toDomainMessage(disk diskMessage) (domain.Message, error) {
	parsedID, err := uuid.Parse(disk.ID)
	if err != nil {
		return domain.Message{}, err
	}
	conv, err := domain.ParseConversationKey(disk.Conversation)
	if err != nil {
		return domain.Message{}, err
	}
	var edited *time.Time
	if disk.EditedAt != nil {
		edited = lo.ToPtr(time.Unix(0, *disk.EditedAt).UTC())
	}
	return domain.Message{
		ID:           parsedID,
		SenderID:     disk.Sender,
		Conversation: conv,
		Content:      disk.Content,
		Type:         domain.MessageType(disk.Type),
		CreatedAt:    time.Unix(0, disk.At).UTC(),
		EditedAt:     edited,
		ReadBy: lo.Map(disk.ReadBy, func(mark diskReadMark, _ int) domain.ReadMark {
			return domain.ReadMark{UserID: mark.UserID, ReadAt: time.Unix(0, mark.At).UTC()}
		}),
	}, nil
}
