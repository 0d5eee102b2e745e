package ws

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"chat-server/auth"
	"chat-server/domain"
	"chat-server/domain/event"
	"chat-server/errors"
	"chat-server/services"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 * 1024
)

// Server exposes the chat core over HTTP: a websocket endpoint for the live
// protocol plus plain JSON endpoints for auth, history, and groups.
type Server struct {
	log    *slog.Logger
	chat   services.IChatService
	auth   services.IAuthService
	tokens *auth.TokenManager

	upgrader     websocket.Upgrader
	bufferSize   int
	historyLimit int
}

func NewServer(log *slog.Logger, chat services.IChatService, authSvc services.IAuthService,
	tokens *auth.TokenManager, bufferSize, historyLimit int) *Server {
	return &Server{
		log:    log,
		chat:   chat,
		auth:   authSvc,
		tokens: tokens,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser clients connect from any origin; identity comes from
			// the token, not the Origin header.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		bufferSize:   bufferSize,
		historyLimit: historyLimit,
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWebsocket)
	mux.HandleFunc("POST /auth/register", s.handleRegister)
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("GET /history", s.handleHistory)
	mux.HandleFunc("POST /groups", s.handleCreateGroup)
	mux.HandleFunc("POST /groups/{id}/join", s.handleJoinGroup)
	return mux
}

// authenticate extracts and validates the caller's token from the
// Authorization header or, for websocket handshakes, the token query
// parameter.
func (s *Server) authenticate(r *http.Request) (*auth.CustomClaims, error) {
	token := r.URL.Query().Get("token")
	if header := r.Header.Get("Authorization"); header != "" {
		token = strings.TrimPrefix(header, "Bearer ")
	}
	if token == "" {
		return nil, errors.ErrUnauthorized
	}
	return s.tokens.Validate(token)
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	claims, err := s.authenticate(r)
	if err != nil {
		http.Error(w, "invalid or missing token", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("Websocket upgrade failed", "error", err)
		return
	}

	userID := claims.UserID
	sink := NewSink(s.bufferSize)
	outbound := make(chan ServerFrame, s.bufferSize)
	go s.writePump(conn, sink, outbound)

	// The handshake confirmation is queued before Connect so the client sees
	// it ahead of any drained backlog.
	if err := sink.Consume(r.Context(), event.Connected{UserID: userID}); err != nil {
		s.log.Error("Failed to queue handshake confirmation", "user", userID, "error", err)
		sink.Close()
		conn.Close()
		return
	}

	session := s.chat.Connect(r.Context(), userID, sink)
	defer func() {
		// Close the sink first: a push racing the teardown fails there and
		// falls back to the offline queue instead of landing in a buffer
		// nobody will drain.
		sink.Close()
		s.chat.Disconnect(userID, session.ID)
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("Websocket read failed", "user", userID, "error", err)
			}
			return
		}
		s.dispatch(r.Context(), userID, raw, outbound)
	}
}

// dispatch routes one inbound frame. Failures are reported back on the same
// connection as error frames; they never close it.
func (s *Server) dispatch(ctx context.Context, userID string, raw []byte, outbound chan<- ServerFrame) {
	var frame ClientFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		s.reply(outbound, errorFrame(err))
		return
	}
	if err := validate.Struct(frame); err != nil {
		s.reply(outbound, errorFrame(err))
		return
	}

	switch frame.Event {
	case "sendPrivateMessage":
		var payload sendPrivatePayload
		if err := s.decode(frame.Data, &payload); err != nil {
			s.reply(outbound, errorFrame(err))
			return
		}
		msg, err := s.chat.SendPrivate(ctx, userID, payload.RecipientID, payload.Content, messageType(payload.MessageType))
		if err != nil {
			s.reply(outbound, errorFrame(err))
			return
		}
		s.reply(outbound, ServerFrame{Event: "messageDelivered", Data: msg})

	case "sendGroupMessage":
		var payload sendGroupPayload
		if err := s.decode(frame.Data, &payload); err != nil {
			s.reply(outbound, errorFrame(err))
			return
		}
		msg, err := s.chat.SendGroup(ctx, userID, payload.GroupID, payload.Content, messageType(payload.MessageType))
		if err != nil {
			s.reply(outbound, errorFrame(err))
			return
		}
		s.reply(outbound, ServerFrame{Event: "messageDelivered", Data: msg})

	case "markMessageRead":
		var payload markReadPayload
		if err := s.decode(frame.Data, &payload); err != nil {
			s.reply(outbound, errorFrame(err))
			return
		}
		messageID, err := uuid.Parse(payload.MessageID)
		if err != nil {
			s.reply(outbound, errorFrame(err))
			return
		}
		if _, err := s.chat.MarkRead(ctx, messageID, userID); err != nil {
			s.reply(outbound, errorFrame(err))
		}

	case "typing":
		var payload typingPayload
		if err := s.decode(frame.Data, &payload); err != nil {
			s.reply(outbound, errorFrame(err))
			return
		}
		var conv domain.Conversation
		if payload.GroupID != "" {
			conv = domain.GroupConversation(payload.GroupID)
		} else {
			conv = domain.PrivateConversation(userID, payload.RecipientID)
		}
		s.chat.SetTyping(ctx, userID, payload.IsTyping, conv)

	default:
		s.reply(outbound, errorFrame(fmt.Errorf("unknown event %q", frame.Event)))
	}
}

func (s *Server) decode(data json.RawMessage, payload any) error {
	if err := json.Unmarshal(data, payload); err != nil {
		return err
	}
	return validate.Struct(payload)
}

func (s *Server) reply(outbound chan<- ServerFrame, frame ServerFrame) {
	select {
	case outbound <- frame:
	default:
		s.log.Warn("Outbound buffer full, dropping reply", "event", frame.Event)
	}
}

// writePump is the single writer of the connection. It serializes runtime
// events and local replies onto the wire and keeps the connection alive with
// pings.
func (s *Server) writePump(conn *websocket.Conn, sink *Sink, outbound <-chan ServerFrame) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case e := <-sink.Events():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ServerFrame{Event: e.EventName(), Data: e}); err != nil {
				sink.Close()
				return
			}
		case frame := <-outbound:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(frame); err != nil {
				sink.Close()
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				sink.Close()
				return
			}
		case <-sink.Closed():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	token, userID, err := s.auth.Register(req.Username, req.Password)
	if err != nil {
		if stderrors.Is(err, errors.ErrUserAlreadyExists) {
			s.writeError(w, http.StatusConflict, err)
			return
		}
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"token": string(token), "userId": userID})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := auth.ValidateLogin(req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	token, userID, err := s.auth.Login(req.Username, req.Password)
	if err != nil {
		s.writeError(w, http.StatusUnauthorized, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"token": string(token), "userId": userID})
}

// handleHistory pages through one conversation, newest first. The caller
// names the conversation with either ?peer= or ?groupId=; group history
// requires membership.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	claims, err := s.authenticate(r)
	if err != nil {
		s.writeError(w, http.StatusUnauthorized, errors.ErrUnauthorized)
		return
	}

	var conv domain.Conversation
	peer := r.URL.Query().Get("peer")
	groupID := r.URL.Query().Get("groupId")
	switch {
	case peer != "" && groupID == "":
		conv = domain.PrivateConversation(claims.UserID, peer)
	case groupID != "" && peer == "":
		group, err := s.chat.GetGroup(groupID)
		if err != nil {
			s.writeError(w, http.StatusNotFound, err)
			return
		}
		if !group.HasMember(claims.UserID) {
			s.writeError(w, http.StatusForbidden, errors.ErrUnauthorized)
			return
		}
		conv = domain.GroupConversation(groupID)
	default:
		s.writeError(w, http.StatusBadRequest, stderrors.New("exactly one of peer or groupId is required"))
		return
	}

	limit := s.historyLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed < s.historyLimit {
			limit = parsed
		}
	}
	var cursor *string
	if raw := r.URL.Query().Get("cursor"); raw != "" {
		cursor = &raw
	}

	messages, next, err := s.chat.History(conv, cursor, limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"messages": messages, "cursor": next})
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	claims, err := s.authenticate(r)
	if err != nil {
		s.writeError(w, http.StatusUnauthorized, errors.ErrUnauthorized)
		return
	}
	var req struct {
		Name string `json:"name" validate:"required,min=1,max=128"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	group, err := s.chat.CreateGroup(req.Name, claims.UserID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, group)
}

func (s *Server) handleJoinGroup(w http.ResponseWriter, r *http.Request) {
	claims, err := s.authenticate(r)
	if err != nil {
		s.writeError(w, http.StatusUnauthorized, errors.ErrUnauthorized)
		return
	}
	groupID := r.PathValue("id")
	if err := s.chat.JoinGroup(groupID, claims.UserID); err != nil {
		if stderrors.Is(err, errors.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, err)
			return
		}
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("Failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, errorPayload{Code: errorCode(err), Message: err.Error()})
}

func messageType(raw string) domain.MessageType {
	if raw == "" {
		return domain.TypeText
	}
	return domain.MessageType(raw)
}
