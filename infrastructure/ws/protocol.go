package ws

import (
	"encoding/json"
	stderrors "errors"

	"chat-server/errors"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ClientFrame is the envelope of every inbound websocket message.
type ClientFrame struct {
	Event string          `json:"event" validate:"required"`
	Data  json.RawMessage `json:"data"`
}

// ServerFrame is the envelope of every outbound websocket message.
type ServerFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type sendPrivatePayload struct {
	RecipientID string `json:"recipientId" validate:"required"`
	Content     string `json:"content" validate:"required,max=4096"`
	MessageType string `json:"messageType" validate:"omitempty,oneof=text image file"`
}

type sendGroupPayload struct {
	GroupID     string `json:"groupId" validate:"required"`
	Content     string `json:"content" validate:"required,max=4096"`
	MessageType string `json:"messageType" validate:"omitempty,oneof=text image file"`
}

type markReadPayload struct {
	MessageID string `json:"messageId" validate:"required,uuid"`
}

type typingPayload struct {
	RecipientID string `json:"recipientId" validate:"required_without=GroupID,excluded_with=GroupID"`
	GroupID     string `json:"groupId"`
	IsTyping    bool   `json:"isTyping"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorCode maps runtime failures to the stable codes clients switch on.
func errorCode(err error) string {
	switch {
	case stderrors.Is(err, errors.ErrNotFound):
		return "not_found"
	case stderrors.Is(err, errors.ErrUnauthorized):
		return "unauthorized"
	case stderrors.Is(err, errors.ErrPersistence):
		return "persistence_failure"
	default:
		return "bad_request"
	}
}

func errorFrame(err error) ServerFrame {
	return ServerFrame{
		Event: "error",
		Data:  errorPayload{Code: errorCode(err), Message: err.Error()},
	}
}
