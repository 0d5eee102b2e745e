package ws

import (
	"encoding/json"
	"fmt"
	"testing"

	"chat-server/errors"

	"github.com/stretchr/testify/require"
)

func TestErrorCode_MapsRuntimeFailuresToStableCodes(t *testing.T) {
	req := require.New(t)

	req.Equal("not_found", errorCode(errors.ErrNotFound))
	req.Equal("unauthorized", errorCode(errors.ErrUnauthorized))
	req.Equal("persistence_failure", errorCode(errors.ErrPersistence))
	req.Equal("bad_request", errorCode(fmt.Errorf("anything else")))

	// Wrapped sentinels keep their code
	req.Equal("not_found", errorCode(fmt.Errorf("%w: recipient bob", errors.ErrNotFound)))
}

func TestClientFrame_RequiresEventName(t *testing.T) {
	req := require.New(t)

	var frame ClientFrame
	req.NoError(json.Unmarshal([]byte(`{"data":{}}`), &frame))
	req.Error(validate.Struct(frame))

	req.NoError(json.Unmarshal([]byte(`{"event":"typing","data":{"recipientId":"bob","isTyping":true}}`), &frame))
	req.NoError(validate.Struct(frame))
}

func TestTypingPayload_ExactlyOneTarget(t *testing.T) {
	req := require.New(t)

	// A private target alone is valid
	req.NoError(validate.Struct(typingPayload{RecipientID: "bob", IsTyping: true}))

	// A group target alone is valid
	req.NoError(validate.Struct(typingPayload{GroupID: "team", IsTyping: true}))

	// Both or neither are rejected
	req.Error(validate.Struct(typingPayload{RecipientID: "bob", GroupID: "team"}))
	req.Error(validate.Struct(typingPayload{}))
}

func TestSendPayload_Validation(t *testing.T) {
	req := require.New(t)

	req.NoError(validate.Struct(sendPrivatePayload{RecipientID: "bob", Content: "hi"}))
	req.Error(validate.Struct(sendPrivatePayload{Content: "hi"}))
	req.Error(validate.Struct(sendPrivatePayload{RecipientID: "bob"}))
	req.Error(validate.Struct(sendPrivatePayload{RecipientID: "bob", Content: "hi", MessageType: "video"}))
	req.NoError(validate.Struct(sendGroupPayload{GroupID: "team", Content: "hi", MessageType: "image"}))
}
