// Package queue holds messages addressed to disconnected users until their
// next connect.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"chat-server/contract"
	"chat-server/domain"
	"chat-server/domain/event"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const lockStripes = 64

// OfflineQueue is a durable, per-user FIFO of undelivered messages.
//
// Keys are "queue:{userId}:{seq_padded}:{uuid}": the zero-padded sequence
// keeps entries in enqueue order under a lexicographic prefix scan, the UUID
// disambiguates same-nanosecond entries. Enqueue and Drain for one user
// serialize on a striped mutex; operations on different users do not contend
// beyond stripe collisions.
type OfflineQueue struct {
	db          *badger.DB
	log         *slog.Logger
	pushTimeout time.Duration

	locks [lockStripes]sync.Mutex

	// lastSeq guards against a clock going backwards between two enqueues
	// for the same user, which would break FIFO order.
	seqMu   sync.Mutex
	lastSeq map[string]int64
}

func NewOfflineQueue(db *badger.DB, log *slog.Logger, pushTimeout time.Duration) *OfflineQueue {
	return &OfflineQueue{
		db:          db,
		log:         log,
		pushTimeout: pushTimeout,
		lastSeq:     make(map[string]int64),
	}
}

type queuedMessage struct {
	ID           string `json:"id"`
	Conversation string `json:"conversation"`
	Sender       string `json:"sender"`
	Content      string `json:"content"`
	Type         string `json:"type"`
	At           int64  `json:"at"`
}

// Enqueue appends a message to userID's backlog.
func (q *OfflineQueue) Enqueue(userID string, msg domain.Message) error {
	q.lockFor(userID).Lock()
	defer q.lockFor(userID).Unlock()

	key := fmt.Sprintf("queue:%s:%019d:%s", userID, q.nextSeq(userID), msg.ID)
	data, err := json.Marshal(queuedMessage{
		ID:           msg.ID.String(),
		Conversation: msg.Conversation.Key(),
		Sender:       msg.SenderID,
		Content:      msg.Content,
		Type:         string(msg.Type),
		At:           msg.CreatedAt.UnixNano(),
	})
	if err != nil {
		return err
	}
	return q.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

// Drain delivers userID's backlog to sink in FIFO order, then clears what was
// delivered, all under the user's lock so a concurrent Enqueue either lands
// before the scan (and is drained now) or after (and waits for the next
// connect), never both.
//
// Each push gets its own bounded timeout. If a push fails the drain stops and
// the remaining entries stay queued; only entries the sink accepted are
// deleted, in a single transaction.
func (q *OfflineQueue) Drain(ctx context.Context, userID string, sink contract.EventSink) (int, error) {
	q.lockFor(userID).Lock()
	defer q.lockFor(userID).Unlock()

	type entry struct {
		key []byte
		msg domain.Message
	}
	var entries []entry
	prefix := []byte("queue:" + userID + ":")
	err := q.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			var queued queuedMessage
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &queued)
			}); err != nil {
				return err
			}
			msg, err := toDomainMessage(queued)
			if err != nil {
				return err
			}
			entries = append(entries, entry{key: key, msg: msg})
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	var delivered [][]byte
	for _, e := range entries {
		pushCtx, cancel := context.WithTimeout(ctx, q.pushTimeout)
		err := sink.Consume(pushCtx, event.NewMessageEvent(e.msg))
		cancel()
		if err != nil {
			q.log.Warn("Backlog push failed, keeping remainder queued",
				"user", userID, "message", e.msg.ID, "error", err)
			break
		}
		delivered = append(delivered, e.key)
	}
	if len(delivered) == 0 {
		return 0, nil
	}

	err = q.db.Update(func(txn *badger.Txn) error {
		for _, key := range delivered {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return len(delivered), err
	}
	q.log.Debug("Drained offline backlog", "user", userID, "delivered", len(delivered))
	return len(delivered), nil
}

// Len reports the number of queued entries for userID.
func (q *OfflineQueue) Len(userID string) (int, error) {
	count := 0
	prefix := []byte("queue:" + userID + ":")
	err := q.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

func (q *OfflineQueue) lockFor(userID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return &q.locks[h.Sum32()%lockStripes]
}

func (q *OfflineQueue) nextSeq(userID string) int64 {
	q.seqMu.Lock()
	defer q.seqMu.Unlock()
	seq := time.Now().UnixNano()
	if last := q.lastSeq[userID]; seq <= last {
		seq = last + 1
	}
	q.lastSeq[userID] = seq
	return seq
}

func toDomainMessage(queued queuedMessage) (domain.Message, error) {
	parsedID, err := uuid.Parse(queued.ID)
	if err != nil {
		return domain.Message{}, err
	}
	conv, err := domain.ParseConversationKey(queued.Conversation)
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		ID:           parsedID,
		SenderID:     queued.Sender,
		Conversation: conv,
		Content:      queued.Content,
		Type:         domain.MessageType(queued.Type),
		CreatedAt:    time.Unix(0, queued.At).UTC(),
	}, nil
}
