package services

import (
	"context"

	"chat-server/contract"
	"chat-server/domain"
	"chat-server/repositories"
	"chat-server/runtime"

	"github.com/google/uuid"
)

// IChatService is the single entry point the transport layer talks to.
// Everything behind it (routing, queueing, receipts, presence) stays
// internal to the runtime packages.
type IChatService interface {
	Connect(ctx context.Context, userID string, sink contract.EventSink) *runtime.Session
	Disconnect(userID string, sessionID uuid.UUID)
	SendPrivate(ctx context.Context, senderID, recipientID, content string, msgType domain.MessageType) (domain.Message, error)
	SendGroup(ctx context.Context, senderID, groupID, content string, msgType domain.MessageType) (domain.Message, error)
	MarkRead(ctx context.Context, messageID uuid.UUID, readerID string) (bool, error)
	SetTyping(ctx context.Context, userID string, isTyping bool, conv domain.Conversation)
	History(conv domain.Conversation, cursor *string, limit int) ([]domain.Message, *string, error)
	CreateGroup(name, ownerID string) (domain.Group, error)
	JoinGroup(groupID, userID string) error
	GetGroup(groupID string) (domain.Group, error)
}

type ChatService struct {
	hub      *runtime.Hub
	router   *runtime.Router
	receipts *runtime.ReceiptTracker
	typing   *runtime.TypingBroadcaster
	messages repositories.IMessageRepository
	groups   repositories.IGroupRepository
}

func NewChatService(hub *runtime.Hub, router *runtime.Router, receipts *runtime.ReceiptTracker,
	typing *runtime.TypingBroadcaster, messages repositories.IMessageRepository,
	groups repositories.IGroupRepository) *ChatService {
	return &ChatService{
		hub:      hub,
		router:   router,
		receipts: receipts,
		typing:   typing,
		messages: messages,
		groups:   groups,
	}
}

func (s *ChatService) Connect(ctx context.Context, userID string, sink contract.EventSink) *runtime.Session {
	return s.hub.OnConnect(ctx, userID, sink)
}

func (s *ChatService) Disconnect(userID string, sessionID uuid.UUID) {
	s.hub.OnDisconnect(userID, sessionID)
}

func (s *ChatService) SendPrivate(ctx context.Context, senderID, recipientID, content string, msgType domain.MessageType) (domain.Message, error) {
	return s.router.SendPrivate(ctx, senderID, recipientID, content, msgType)
}

func (s *ChatService) SendGroup(ctx context.Context, senderID, groupID, content string, msgType domain.MessageType) (domain.Message, error) {
	return s.router.SendGroup(ctx, senderID, groupID, content, msgType)
}

func (s *ChatService) MarkRead(ctx context.Context, messageID uuid.UUID, readerID string) (bool, error) {
	return s.receipts.MarkRead(ctx, messageID, readerID)
}

func (s *ChatService) SetTyping(ctx context.Context, userID string, isTyping bool, conv domain.Conversation) {
	s.typing.SetTyping(ctx, userID, isTyping, conv)
}

func (s *ChatService) History(conv domain.Conversation, cursor *string, limit int) ([]domain.Message, *string, error) {
	return s.messages.GetHistory(conv, cursor, limit)
}

func (s *ChatService) CreateGroup(name, ownerID string) (domain.Group, error) {
	return s.groups.CreateGroup(name, ownerID)
}

func (s *ChatService) JoinGroup(groupID, userID string) error {
	return s.groups.AddMember(groupID, userID)
}

func (s *ChatService) GetGroup(groupID string) (domain.Group, error) {
	return s.groups.GetGroup(groupID)
}
