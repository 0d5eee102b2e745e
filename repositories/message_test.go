package repositories

import (
	"log/slog"
	"testing"
	"time"

	"chat-server/domain"
	"chat-server/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newMessage(content string, at time.Time) domain.Message {
	return domain.Message{
		ID:           uuid.New(),
		SenderID:     "alice",
		Conversation: domain.PrivateConversation("alice", "bob"),
		Content:      content,
		Type:         domain.TypeText,
		CreatedAt:    at,
	}
}

func TestMessageRepository_SaveAndGet(t *testing.T) {
	req := require.New(t)
	repo := NewMessageRepository(newTestDB(t), slog.Default())
	msg := newMessage("hello", time.Now().UTC())

	req.NoError(repo.SaveMessage(msg))

	stored, err := repo.GetMessage(msg.ID)
	req.NoError(err)
	req.Equal(msg.ID, stored.ID)
	req.Equal("hello", stored.Content)
	req.Equal(msg.Conversation.Key(), stored.Conversation.Key())
	req.True(msg.CreatedAt.Equal(stored.CreatedAt))
}

func TestMessageRepository_GetMessage_Unknown(t *testing.T) {
	req := require.New(t)
	repo := NewMessageRepository(newTestDB(t), slog.Default())

	_, err := repo.GetMessage(uuid.New())

	req.ErrorIs(err, errors.ErrNotFound)
}

func TestMessageRepository_AppendRead_NeverDuplicates(t *testing.T) {
	req := require.New(t)
	repo := NewMessageRepository(newTestDB(t), slog.Default())
	msg := newMessage("mark me", time.Now().UTC())
	req.NoError(repo.SaveMessage(msg))

	mark := domain.ReadMark{UserID: "bob", ReadAt: time.Now().UTC()}

	// First append records the mark
	updated, err := repo.AppendRead(msg.ID, mark)
	req.NoError(err)
	req.Len(updated.ReadBy, 1)

	// A duplicate append is swallowed inside the transaction
	updated, err = repo.AppendRead(msg.ID, mark)
	req.NoError(err)
	req.Len(updated.ReadBy, 1)
	req.True(updated.HasRead("bob"))
}

func TestMessageRepository_GetHistory_NewestFirstWithCursor(t *testing.T) {
	req := require.New(t)
	repo := NewMessageRepository(newTestDB(t), slog.Default())
	base := time.Now().UTC()

	// Given five messages a second apart
	for i := 0; i < 5; i++ {
		msg := newMessage(string(rune('a'+i)), base.Add(time.Duration(i)*time.Second))
		req.NoError(repo.SaveMessage(msg))
	}

	conv := domain.PrivateConversation("alice", "bob")

	// When fetching the first page of three
	page, cursor, err := repo.GetHistory(conv, nil, 3)
	req.NoError(err)
	req.Len(page, 3)
	req.NotNil(cursor)
	req.Equal("e", page[0].Content)
	req.Equal("d", page[1].Content)
	req.Equal("c", page[2].Content)

	// And the cursor resumes exactly where the page stopped
	page, _, err = repo.GetHistory(conv, cursor, 3)
	req.NoError(err)
	req.Len(page, 2)
	req.Equal("b", page[0].Content)
	req.Equal("a", page[1].Content)
}

func TestMessageRepository_GetHistory_ConversationsAreIsolated(t *testing.T) {
	req := require.New(t)
	repo := NewMessageRepository(newTestDB(t), slog.Default())
	now := time.Now().UTC()

	req.NoError(repo.SaveMessage(newMessage("pair message", now)))
	groupMsg := domain.Message{
		ID:           uuid.New(),
		SenderID:     "alice",
		Conversation: domain.GroupConversation("team-1"),
		Content:      "group message",
		Type:         domain.TypeText,
		CreatedAt:    now,
	}
	req.NoError(repo.SaveMessage(groupMsg))

	page, _, err := repo.GetHistory(domain.PrivateConversation("bob", "alice"), nil, 10)
	req.NoError(err)
	req.Len(page, 1)
	req.Equal("pair message", page[0].Content)

	page, _, err = repo.GetHistory(domain.GroupConversation("team-1"), nil, 10)
	req.NoError(err)
	req.Len(page, 1)
	req.Equal("group message", page[0].Content)
}
