package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/finsightai/finsight/internal/agent"
	"github.com/finsightai/finsight/internal/conversations"
	"github.com/finsightai/finsight/internal/runs"
	"github.com/finsightai/finsight/pkg/models"
)

// quickWorker finishes immediately with a fixed answer.
type quickWorker struct {
	answer string
}

func (w quickWorker) Execute(_ context.Context, message, conversationID string, emit func(models.RunEvent)) (*agent.Answer, error) {
	emit(models.StatusEvent("thinking about " + message))
	return &agent.Answer{Text: w.answer}, nil
}

// blockingWorker holds the run open until released.
type blockingWorker struct {
	release chan struct{}
}

func (w *blockingWorker) Execute(ctx context.Context, _, _ string, _ func(models.RunEvent)) (*agent.Answer, error) {
	select {
	case <-w.release:
		return &agent.Answer{Text: "late answer"}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func newTestServer(t *testing.T, worker runs.Worker) (*Server, conversations.Store) {
	t.Helper()
	store := conversations.NewMemoryStore()
	supervisor := runs.NewSupervisor(worker, runs.SupervisorConfig{})
	return NewServer(Config{Supervisor: supervisor, Store: store}), store
}

func doJSON(t *testing.T, server *Server, method, path, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	return rec
}

func TestChatStreamsEvents(t *testing.T) {
	server, _ := newTestServer(t, quickWorker{answer: "AAPL is up"})

	rec := doJSON(t, server, http.MethodPost, "/api/chat", "user-1", `{"message":"how is AAPL?"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	body := rec.Body.String()
	if !strings.Contains(body, "event: status") {
		t.Error("stream missing status event")
	}
	if !strings.Contains(body, "event: done") {
		t.Error("stream missing done event")
	}
	if !strings.Contains(body, "AAPL is up") {
		t.Error("stream missing the answer")
	}
}

func TestChatRequiresUserAndMessage(t *testing.T) {
	server, _ := newTestServer(t, quickWorker{})

	if rec := doJSON(t, server, http.MethodPost, "/api/chat", "", `{"message":"hi"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("missing user: status = %d", rec.Code)
	}
	if rec := doJSON(t, server, http.MethodPost, "/api/chat", "user-1", `{}`); rec.Code != http.StatusBadRequest {
		t.Errorf("missing message: status = %d", rec.Code)
	}
	if rec := doJSON(t, server, http.MethodPost, "/api/chat", "user-1", `not json`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad body: status = %d", rec.Code)
	}
}

func TestChatRejectsForeignConversation(t *testing.T) {
	server, store := newTestServer(t, quickWorker{answer: "done"})

	conv := &models.Conversation{
		ID:        "conv-owned-by-b",
		UserID:    "user-b",
		Title:     "private research",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := store.CreateConversation(context.Background(), conv); err != nil {
		t.Fatal(err)
	}

	rec := doJSON(t, server, http.MethodPost, "/api/chat", "user-a",
		`{"message":"hi","conversation_id":"conv-owned-by-b"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("foreign conversation: status = %d, want 404", rec.Code)
	}

	rec = doJSON(t, server, http.MethodPost, "/api/chat", "user-a",
		`{"message":"hi","conversation_id":"does-not-exist"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown conversation: status = %d, want 404", rec.Code)
	}

	// The owner can keep using it.
	rec = doJSON(t, server, http.MethodPost, "/api/chat", "user-b",
		`{"message":"hi","conversation_id":"conv-owned-by-b"}`)
	if rec.Code != http.StatusOK {
		t.Errorf("owner: status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestChatCreatesConversation(t *testing.T) {
	server, store := newTestServer(t, quickWorker{answer: "done"})

	rec := doJSON(t, server, http.MethodPost, "/api/chat", "user-1", `{"message":"first question"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	convs, err := store.ListConversations(context.Background(), "user-1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(convs) != 1 {
		t.Fatalf("expected 1 conversation, got %d", len(convs))
	}
	if convs[0].Title != "first question" {
		t.Errorf("title = %q", convs[0].Title)
	}
}

func TestStreamWithoutActiveRun(t *testing.T) {
	server, _ := newTestServer(t, quickWorker{})

	rec := doJSON(t, server, http.MethodGet, "/api/chat/stream", "user-1", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("404 body is not JSON: %v", err)
	}
}

func TestStreamReattach(t *testing.T) {
	worker := &blockingWorker{release: make(chan struct{})}
	server, _ := newTestServer(t, worker)

	// Start the run from a request that disconnects immediately.
	startCtx, startCancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":"slow question"}`)).WithContext(startCtx)
	req.Header.Set("X-User-ID", "user-1")
	done := make(chan struct{})
	go func() {
		server.ServeHTTP(httptest.NewRecorder(), req)
		close(done)
	}()
	time.Sleep(50 * time.Millisecond)
	startCancel()
	<-done

	// Reattach from a fresh connection while the run is still going.
	reattachDone := make(chan *httptest.ResponseRecorder)
	go func() {
		rec := doJSON(t, server, http.MethodGet, "/api/chat/stream", "user-1", "")
		reattachDone <- rec
	}()

	time.Sleep(50 * time.Millisecond)
	close(worker.release)

	rec := <-reattachDone
	if rec.Code != http.StatusOK {
		t.Fatalf("reattach status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "late answer") {
		t.Error("reattached stream missing the answer")
	}
}

func TestCancel(t *testing.T) {
	worker := &blockingWorker{release: make(chan struct{})}
	server, _ := newTestServer(t, worker)

	rec := doJSON(t, server, http.MethodPost, "/api/chat/cancel", "user-1", "")
	var payload map[string]bool
	json.Unmarshal(rec.Body.Bytes(), &payload)
	if payload["stopped"] {
		t.Error("cancel with no run should report stopped=false")
	}

	startCtx, startCancel := context.WithCancel(context.Background())
	defer startCancel()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":"q"}`)).WithContext(startCtx)
	req.Header.Set("X-User-ID", "user-1")
	go server.ServeHTTP(httptest.NewRecorder(), req)
	time.Sleep(50 * time.Millisecond)

	rec = doJSON(t, server, http.MethodPost, "/api/chat/cancel", "user-1", "")
	json.Unmarshal(rec.Body.Bytes(), &payload)
	if !payload["stopped"] {
		t.Error("cancel with active run should report stopped=true")
	}
}

func TestActive(t *testing.T) {
	worker := &blockingWorker{release: make(chan struct{})}
	server, _ := newTestServer(t, worker)

	rec := doJSON(t, server, http.MethodGet, "/api/chat/active", "user-1", "")
	var payload map[string]bool
	json.Unmarshal(rec.Body.Bytes(), &payload)
	if payload["active"] {
		t.Error("no run yet, active should be false")
	}

	startCtx, startCancel := context.WithCancel(context.Background())
	defer startCancel()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":"q"}`)).WithContext(startCtx)
	req.Header.Set("X-User-ID", "user-1")
	go server.ServeHTTP(httptest.NewRecorder(), req)
	time.Sleep(50 * time.Millisecond)

	rec = doJSON(t, server, http.MethodGet, "/api/chat/active", "user-1", "")
	json.Unmarshal(rec.Body.Bytes(), &payload)
	if !payload["active"] {
		t.Error("run in flight, active should be true")
	}
	close(worker.release)
}

func TestConversationEndpoints(t *testing.T) {
	server, store := newTestServer(t, quickWorker{})

	conv := &models.Conversation{ID: "conv-1", UserID: "user-1", Title: "rates", CreatedAt: time.Now()}
	if err := store.CreateConversation(context.Background(), conv); err != nil {
		t.Fatal(err)
	}
	msg := &models.Message{ID: "m1", Role: models.RoleUser, Content: "what are rates doing?", CreatedAt: time.Now()}
	if err := store.AppendMessage(context.Background(), "conv-1", msg); err != nil {
		t.Fatal(err)
	}

	rec := doJSON(t, server, http.MethodGet, "/api/conversations", "user-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var convs []models.Conversation
	if err := json.Unmarshal(rec.Body.Bytes(), &convs); err != nil {
		t.Fatal(err)
	}
	if len(convs) != 1 || convs[0].ID != "conv-1" {
		t.Errorf("convs = %+v", convs)
	}

	rec = doJSON(t, server, http.MethodGet, "/api/conversations/conv-1/messages", "user-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("messages status = %d", rec.Code)
	}
	var msgs []models.Message
	if err := json.Unmarshal(rec.Body.Bytes(), &msgs); err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Content != "what are rates doing?" {
		t.Errorf("msgs = %+v", msgs)
	}

	// Another user cannot read it.
	rec = doJSON(t, server, http.MethodGet, "/api/conversations/conv-1/messages", "user-2", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("cross-user read status = %d, want 404", rec.Code)
	}

	rec = doJSON(t, server, http.MethodGet, "/api/conversations/missing/messages", "user-1", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing conversation status = %d, want 404", rec.Code)
	}
}

func TestAsk(t *testing.T) {
	store := conversations.NewMemoryStore()
	worker := quickWorker{answer: "direct answer"}
	server := NewServer(Config{
		Supervisor: runs.NewSupervisor(worker, runs.SupervisorConfig{}),
		Direct:     runs.NewDirect(worker, conversations.NewUserLocker(time.Minute), time.Second),
		Store:      store,
	})

	rec := doJSON(t, server, http.MethodPost, "/api/ask", "user-1", `{"message":"quick question"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		Answer         string `json:"answer"`
		ConversationID string `json:"conversation_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Answer != "direct answer" || payload.ConversationID == "" {
		t.Errorf("payload = %+v", payload)
	}
}

func TestAskRejectsForeignConversation(t *testing.T) {
	store := conversations.NewMemoryStore()
	worker := quickWorker{answer: "direct answer"}
	server := NewServer(Config{
		Supervisor: runs.NewSupervisor(worker, runs.SupervisorConfig{}),
		Direct:     runs.NewDirect(worker, conversations.NewUserLocker(time.Minute), time.Second),
		Store:      store,
	})

	conv := &models.Conversation{
		ID:        "conv-owned-by-b",
		UserID:    "user-b",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := store.CreateConversation(context.Background(), conv); err != nil {
		t.Fatal(err)
	}

	rec := doJSON(t, server, http.MethodPost, "/api/ask", "user-a",
		`{"message":"hi","conversation_id":"conv-owned-by-b"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("foreign conversation: status = %d, want 404", rec.Code)
	}
}

func TestAskNotEnabled(t *testing.T) {
	server, _ := newTestServer(t, quickWorker{})
	rec := doJSON(t, server, http.MethodPost, "/api/ask", "user-1", `{"message":"q"}`)
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d, want 501", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	server, _ := newTestServer(t, quickWorker{})
	rec := doJSON(t, server, http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}
