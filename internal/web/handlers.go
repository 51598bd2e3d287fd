package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/finsightai/finsight/internal/conversations"
	"github.com/finsightai/finsight/internal/runs"
	"github.com/finsightai/finsight/pkg/models"
)

const wsWriteWait = 10 * time.Second

type chatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
}

// handleChat starts a run (or reattaches to the active one) and streams its
// events as SSE until the terminal event.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	if user == "" {
		writeError(w, http.StatusBadRequest, "X-User-ID header is required")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	conversationID, ok := s.resolveConversation(w, r, user, req)
	if !ok {
		return
	}

	run, created, err := s.config.Supervisor.StartOrReattach(r.Context(), user, conversationID, req.Message)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.config.Logger.Info("chat stream opened",
		"user_id", user, "run_id", run.ID, "created", created)

	s.streamSSE(r.Context(), w, run)
}

// handleAsk answers synchronously: the response is the final answer, with no
// progress stream. Same-user calls queue behind each other.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if s.config.Direct == nil {
		writeError(w, http.StatusNotImplemented, "synchronous ask is not enabled")
		return
	}
	user := userID(r)
	if user == "" {
		writeError(w, http.StatusBadRequest, "X-User-ID header is required")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	conversationID, ok := s.resolveConversation(w, r, user, req)
	if !ok {
		return
	}

	answer, err := s.config.Direct.Ask(r.Context(), user, conversationID, req.Message)
	if errors.Is(err, conversations.ErrLockTimeout) {
		writeError(w, http.StatusConflict, "another request for this user is still running")
		return
	}
	if err != nil {
		s.config.Logger.Error("direct ask failed", "error", err, "user_id", user)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"answer":          answer.Text,
		"conversation_id": conversationID,
		"artifacts":       answer.Artifacts,
	})
}

// resolveConversation returns the conversation id for a chat request. When
// none is supplied a new conversation is created for the user; when one is,
// it must exist and belong to the user. On failure the error response has
// already been written and ok is false.
func (s *Server) resolveConversation(w http.ResponseWriter, r *http.Request, user string, req chatRequest) (string, bool) {
	if req.ConversationID == "" {
		conv := &models.Conversation{
			ID:        uuid.NewString(),
			UserID:    user,
			Title:     truncateTitle(req.Message),
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}
		if err := s.config.Store.CreateConversation(r.Context(), conv); err != nil {
			s.config.Logger.Error("create conversation failed", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to create conversation")
			return "", false
		}
		return conv.ID, true
	}

	conv, err := s.config.Store.GetConversation(r.Context(), req.ConversationID)
	if errors.Is(err, conversations.ErrNotFound) {
		writeError(w, http.StatusNotFound, "conversation not found")
		return "", false
	}
	if err != nil {
		s.config.Logger.Error("load conversation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load conversation")
		return "", false
	}
	if conv.UserID != user {
		// Not revealing that the conversation exists for someone else.
		writeError(w, http.StatusNotFound, "conversation not found")
		return "", false
	}
	return conv.ID, true
}

// handleStream reattaches to the user's active run.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	if user == "" {
		writeError(w, http.StatusBadRequest, "X-User-ID header is required")
		return
	}

	run, err := s.config.Supervisor.Reattach(user)
	if errors.Is(err, runs.ErrNoActiveRun) {
		writeError(w, http.StatusNotFound, "no active run")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.streamSSE(r.Context(), w, run)
}

// streamSSE relays run events to the client. A client disconnect only drops
// this observer; the run itself keeps going.
func (s *Server) streamSSE(ctx context.Context, w http.ResponseWriter, run *runs.Run) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events, cancel := run.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			flusher.Flush()
			if event.IsTerminal() {
				return
			}
		}
	}
}

// handleWebSocket serves the run event stream over a websocket, with the same
// replay semantics as SSE reattach.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	if user == "" {
		writeError(w, http.StatusBadRequest, "X-User-ID header is required")
		return
	}

	run, err := s.config.Supervisor.Reattach(user)
	if errors.Is(err, runs.ErrNoActiveRun) {
		writeError(w, http.StatusNotFound, "no active run")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.config.Logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// Drain client frames so pings and close frames are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	events, cancel := run.Subscribe()
	defer cancel()

	for event := range events {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(event); err != nil {
			return
		}
		if event.IsTerminal() {
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	if user == "" {
		writeError(w, http.StatusBadRequest, "X-User-ID header is required")
		return
	}

	err := s.config.Supervisor.Cancel(user)
	if errors.Is(err, runs.ErrNoActiveRun) {
		writeJSON(w, http.StatusOK, map[string]bool{"stopped": false})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"stopped": true})
}

func (s *Server) handleActive(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	if user == "" {
		writeError(w, http.StatusBadRequest, "X-User-ID header is required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"active": s.config.Supervisor.Active(user)})
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	if user == "" {
		writeError(w, http.StatusBadRequest, "X-User-ID header is required")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	convs, err := s.config.Store.ListConversations(r.Context(), user, limit)
	if err != nil {
		s.config.Logger.Error("list conversations failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}
	if convs == nil {
		convs = []*models.Conversation{}
	}
	writeJSON(w, http.StatusOK, convs)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	if user == "" {
		writeError(w, http.StatusBadRequest, "X-User-ID header is required")
		return
	}
	id := r.PathValue("id")

	conv, err := s.config.Store.GetConversation(r.Context(), id)
	if errors.Is(err, conversations.ErrNotFound) {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load conversation")
		return
	}
	if conv.UserID != user {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	msgs, err := s.config.Store.GetRecentMessages(r.Context(), id, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load messages")
		return
	}
	if msgs == nil {
		msgs = []*models.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func truncateTitle(message string) string {
	const max = 80
	if len(message) <= max {
		return message
	}
	return message[:max-3] + "..."
}
