package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"chat-server/domain"
	"chat-server/errors"
	"chat-server/queue"
	"chat-server/repositories"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type routerFixture struct {
	router   *Router
	registry *Registry
	offline  *queue.OfflineQueue
	users    repositories.UserRepository
	groups   repositories.GroupRepository
	messages repositories.MessageRepository
}

func newRouterFixture(t *testing.T) routerFixture {
	t.Helper()
	db := newTestDB(t)
	log := slog.Default()
	registry := NewRegistry()
	offline := queue.NewOfflineQueue(db, log, time.Second)
	messages := repositories.NewMessageRepository(db, log)
	groups := repositories.NewGroupRepository(db)
	users := repositories.NewUserRepository(db)
	router := NewRouter(log, registry, offline, messages, groups, users, time.Second)
	return routerFixture{
		router:   router,
		registry: registry,
		offline:  offline,
		users:    users,
		groups:   groups,
		messages: messages,
	}
}

func (f routerFixture) createUser(t *testing.T, name string) string {
	t.Helper()
	user, err := f.users.CreateUser(name, "hash")
	require.NoError(t, err)
	return user.ID
}

func TestRouter_SendPrivate_PushesToOnlineRecipient(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t)
	alice := f.createUser(t, "alice")
	bob := f.createUser(t, "bob")

	// Given bob is online
	bobSink := newFakeSink()
	f.registry.Register(NewSession(bob, bobSink))

	// When alice sends him a message
	msg, err := f.router.SendPrivate(context.Background(), alice, bob, "hello", domain.TypeText)

	// Then the ack carries an id and timestamp, bob got a live push,
	// and nothing was queued
	req.NoError(err)
	req.NotEqual(uuid.Nil, msg.ID)
	req.False(msg.CreatedAt.IsZero())
	req.Equal([]string{"newPrivateMessage"}, bobSink.EventNames())

	queued, err := f.offline.Len(bob)
	req.NoError(err)
	req.Zero(queued)

	// And the message is durable
	stored, err := f.messages.GetMessage(msg.ID)
	req.NoError(err)
	req.Equal("hello", stored.Content)
}

func TestRouter_SendPrivate_QueuesForOfflineRecipient(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t)
	alice := f.createUser(t, "alice")
	bob := f.createUser(t, "bob")

	// When alice messages an offline bob
	msg, err := f.router.SendPrivate(context.Background(), alice, bob, "catch up later", domain.TypeText)

	// Then the send still succeeds and the message waits in bob's queue
	req.NoError(err)
	req.NotEqual(uuid.Nil, msg.ID)

	queued, err := f.offline.Len(bob)
	req.NoError(err)
	req.Equal(1, queued)
}

func TestRouter_SendPrivate_UnknownRecipient(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t)
	alice := f.createUser(t, "alice")

	_, err := f.router.SendPrivate(context.Background(), alice, "nobody", "hello?", domain.TypeText)

	req.ErrorIs(err, errors.ErrNotFound)
}

func TestRouter_SendPrivate_ClosedSinkFallsBackToQueue(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t)
	alice := f.createUser(t, "alice")
	bob := f.createUser(t, "bob")

	// Given bob's session is registered but its sink already closed
	// (the disconnect race)
	bobSink := newFakeSink()
	bobSink.Close()
	f.registry.Register(NewSession(bob, bobSink))

	// When alice sends a message
	_, err := f.router.SendPrivate(context.Background(), alice, bob, "racy", domain.TypeText)

	// Then the send succeeds and the message landed in the queue instead
	req.NoError(err)
	queued, err := f.offline.Len(bob)
	req.NoError(err)
	req.Equal(1, queued)
}

func TestRouter_SendGroup_FansOutToEveryMemberExceptSender(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t)
	alice := f.createUser(t, "alice")
	bob := f.createUser(t, "bob")
	carol := f.createUser(t, "carol")

	group, err := f.groups.CreateGroup("team", alice)
	req.NoError(err)
	req.NoError(f.groups.AddMember(group.ID, bob))
	req.NoError(f.groups.AddMember(group.ID, carol))

	// Given alice and bob are online, carol is not
	aliceSink := newFakeSink()
	bobSink := newFakeSink()
	f.registry.Register(NewSession(alice, aliceSink))
	f.registry.Register(NewSession(bob, bobSink))

	// When alice posts to the group
	msg, err := f.router.SendGroup(context.Background(), alice, group.ID, "standup?", domain.TypeText)

	// Then bob got a live push, carol got queued, alice got nothing back
	req.NoError(err)
	req.Equal([]string{"newGroupMessage"}, bobSink.EventNames())
	req.Empty(aliceSink.EventNames())

	queued, err := f.offline.Len(carol)
	req.NoError(err)
	req.Equal(1, queued)

	// And the sender is already in the readBy set
	req.True(msg.HasRead(alice))
}

func TestRouter_SendGroup_NonMemberIsRejected(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t)
	alice := f.createUser(t, "alice")
	mallory := f.createUser(t, "mallory")

	group, err := f.groups.CreateGroup("private-team", alice)
	req.NoError(err)

	_, err = f.router.SendGroup(context.Background(), mallory, group.ID, "let me in", domain.TypeText)

	req.ErrorIs(err, errors.ErrUnauthorized)
}

func TestRouter_SendGroup_UnknownGroup(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t)
	alice := f.createUser(t, "alice")

	_, err := f.router.SendGroup(context.Background(), alice, "no-such-group", "anyone?", domain.TypeText)

	req.ErrorIs(err, errors.ErrNotFound)
}

func TestRouter_SendGroup_SenderOnlyGroupStillAcks(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t)
	alice := f.createUser(t, "alice")

	group, err := f.groups.CreateGroup("just-me", alice)
	req.NoError(err)

	// When the only member posts
	msg, err := f.router.SendGroup(context.Background(), alice, group.ID, "note to self", domain.TypeText)

	// Then the send acks with zero fan-out attempts and the message persists
	req.NoError(err)
	stored, err := f.messages.GetMessage(msg.ID)
	req.NoError(err)
	req.Equal("note to self", stored.Content)
}

func TestRouter_SendPrivate_SaveFailureSurfacesAsPersistenceError(t *testing.T) {
	req := require.New(t)
	db := newTestDB(t)
	log := slog.Default()
	registry := NewRegistry()
	offline := queue.NewOfflineQueue(db, log, time.Second)
	groups := repositories.NewGroupRepository(db)
	users := repositories.NewUserRepository(db)
	router := NewRouter(log, registry, offline, failingMessageRepo{}, groups, users, time.Second)

	alice, err := users.CreateUser("alice", "hash")
	req.NoError(err)
	bob, err := users.CreateUser("bob", "hash")
	req.NoError(err)

	// Given bob is online; the push must never happen if the save failed
	bobSink := newFakeSink()
	registry.Register(NewSession(bob.ID, bobSink))

	_, err = router.SendPrivate(context.Background(), alice.ID, bob.ID, "doomed", domain.TypeText)

	req.ErrorIs(err, errors.ErrPersistence)
	req.Empty(bobSink.EventNames())
}

func TestRouter_SenderClock_IsMonotonicPerSender(t *testing.T) {
	req := require.New(t)
	clock := senderClock{last: make(map[string]time.Time)}

	previous := clock.next("alice")
	for i := 0; i < 1000; i++ {
		current := clock.next("alice")
		req.True(current.After(previous))
		previous = current
	}
}

type failingMessageRepo struct{}

func (failingMessageRepo) SaveMessage(domain.Message) error {
	return fmt.Errorf("disk full")
}

func (failingMessageRepo) GetMessage(uuid.UUID) (domain.Message, error) {
	return domain.Message{}, fmt.Errorf("disk full")
}

func (failingMessageRepo) AppendRead(uuid.UUID, domain.ReadMark) (domain.Message, error) {
	return domain.Message{}, fmt.Errorf("disk full")
}

func (failingMessageRepo) GetHistory(domain.Conversation, *string, int) ([]domain.Message, *string, error) {
	return nil, nil, fmt.Errorf("disk full")
}
