package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"

	"ghosthq/internal/config"
	"ghosthq/internal/database"
	"ghosthq/internal/hub"
	"ghosthq/internal/model"
	"ghosthq/internal/store"
	"ghosthq/internal/store/memory"
	"ghosthq/internal/store/sqlstore"
)

func TestMain(m *testing.M) {
	// プロジェクトルートの.envを読み込み
	_ = godotenv.Load("../../.env")
	os.Exit(m.Run())
}

var testConfig = config.Config{
	AllowedOrigins: []string{"http://localhost:3000", "http://127.0.0.1:3000"},
}

// newTestHandler テスト用のHandlerを生成（インメモリストア）
func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	return newTestHandlerWithStore(t, memory.New())
}

func newTestHandlerWithStore(t *testing.T, s store.Store) *Handler {
	t.Helper()

	h := New(s, hub.New(100), testConfig)

	// broadcast goroutineを起動（キュー詰まり防止）
	ctx, cancel := context.WithCancel(context.Background())
	go h.Hub.Run(ctx)
	t.Cleanup(func() {
		cancel()
		h.Hub.CloseAll()
	})

	return h
}

// setupMySQLHandler MySQLストアでHandlerを生成
func setupMySQLHandler(t *testing.T) *Handler {
	t.Helper()

	if os.Getenv("DB_HOST") == "" {
		t.Skip("Skipping: DB_HOST not set")
	}

	v := config.New()
	v.Set("store_driver", config.DriverMySQL)
	cfg := config.Load(v)

	db, err := database.Init(cfg)
	if err != nil {
		t.Skipf("Skipping: could not connect to test database: %v", err)
	}

	s, err := sqlstore.New(context.Background(), db, sqlstore.MySQL)
	if err != nil {
		db.Close()
		t.Fatalf("Failed to create schema: %v", err)
	}

	// テストデータをクリア
	for _, table := range []string{"chat_messages", "ghost_events", "evidence", "squad_status"} {
		db.Exec("DELETE FROM " + table)
	}
	t.Cleanup(func() { s.Close() })

	return newTestHandlerWithStore(t, s)
}

func doJSON(t *testing.T, router http.Handler, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, _ := json.Marshal(payload)
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func errorOf(w *httptest.ResponseRecorder) string {
	var errResp map[string]string
	json.Unmarshal(w.Body.Bytes(), &errResp)
	return errResp["error"]
}

// TestCreateChatMessage_Success チャット送信成功テスト
func TestCreateChatMessage_Success(t *testing.T) {
	router := newTestHandler(t).SetupRouter()

	w := doJSON(t, router, "POST", "/api/chat", map[string]any{
		"userId":      "u1",
		"text":        "!hunt",
		"isCommand":   true,
		"displayName": "Agent",
	})

	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status %d, got %d. Body: %s", http.StatusCreated, w.Code, w.Body.String())
	}
	if w.Header().Get("Content-Type") != "application/json" {
		t.Errorf("Expected Content-Type: application/json, got %s", w.Header().Get("Content-Type"))
	}

	var msg model.ChatMessage
	json.Unmarshal(w.Body.Bytes(), &msg)

	if msg.ID == "" {
		t.Error("Expected generated ID, got empty string")
	}
	if msg.Text != "!hunt" || !msg.IsCommand || msg.DisplayName != "Agent" {
		t.Errorf("Unexpected message: %+v", msg)
	}
	if msg.Timestamp.IsZero() {
		t.Error("Timestamp should be stamped by the server")
	}
}

// TestCreateChatMessage_MissingText text 必須チェック
func TestCreateChatMessage_MissingText(t *testing.T) {
	router := newTestHandler(t).SetupRouter()

	w := doJSON(t, router, "POST", "/api/chat", map[string]string{"userId": "u1", "text": ""})

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	if errorOf(w) != "text is required" {
		t.Errorf("Expected error 'text is required', got %s", errorOf(w))
	}
}

// TestCreateChatMessage_InvalidJSON JSON パース失敗
func TestCreateChatMessage_InvalidJSON(t *testing.T) {
	router := newTestHandler(t).SetupRouter()

	req := httptest.NewRequest("POST", "/api/chat", strings.NewReader("invalid json"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	if errorOf(w) != "Invalid request body" {
		t.Errorf("Expected 'Invalid request body' error, got %s", errorOf(w))
	}
}

// TestCreateChatMessage_OversizedBody 巨大リクエストボディが拒否されることを確認
func TestCreateChatMessage_OversizedBody(t *testing.T) {
	router := newTestHandler(t).SetupRouter()

	// 2MBのボディを生成
	w := doJSON(t, router, "POST", "/api/chat", map[string]string{
		"userId": "u1",
		"text":   strings.Repeat("x", 2*1024*1024),
	})

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d for oversized body, got %d", http.StatusBadRequest, w.Code)
	}
}

// TestGetChatMessages_Order 送信順（古い順）に返ることを確認
func TestGetChatMessages_Order(t *testing.T) {
	router := newTestHandler(t).SetupRouter()

	for i := 0; i < 3; i++ {
		doJSON(t, router, "POST", "/api/chat", map[string]string{"userId": "u1", "text": fmt.Sprintf("msg %d", i)})
	}

	w := doJSON(t, router, "GET", "/api/chat", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var msgs []model.ChatMessage
	json.Unmarshal(w.Body.Bytes(), &msgs)

	if len(msgs) != 3 {
		t.Fatalf("Expected 3 messages, got %d", len(msgs))
	}
	for i, msg := range msgs {
		if msg.Text != fmt.Sprintf("msg %d", i) {
			t.Errorf("Position %d: expected %q, got %q", i, fmt.Sprintf("msg %d", i), msg.Text)
		}
	}
}

// TestGetChatMessages_Empty 空の状態では空配列を返す
func TestGetChatMessages_Empty(t *testing.T) {
	router := newTestHandler(t).SetupRouter()

	w := doJSON(t, router, "GET", "/api/chat", nil)
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("Expected empty array, got %s", w.Body.String())
	}
}

// TestCreateGhostEvent_Hunt hunt イベントのメッセージと強度
func TestCreateGhostEvent_Hunt(t *testing.T) {
	router := newTestHandler(t).SetupRouter()

	w := doJSON(t, router, "POST", "/api/events", map[string]string{"type": "hunt", "triggeredBy": "u1"})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status %d, got %d. Body: %s", http.StatusCreated, w.Code, w.Body.String())
	}

	var event model.GhostEvent
	json.Unmarshal(w.Body.Bytes(), &event)

	if event.Message != "HUNT INITIATED! All agents take cover immediately!" {
		t.Errorf("Unexpected hunt message: %q", event.Message)
	}
	if event.Intensity < 1 || event.Intensity > 5 {
		t.Errorf("Default intensity should be in [1,5], got %d", event.Intensity)
	}
	if event.TriggeredBy == nil || *event.TriggeredBy != "u1" {
		t.Errorf("Unexpected triggeredBy: %v", event.TriggeredBy)
	}
}

// TestCreateGhostEvent_ExplicitIntensity 強度指定はそのまま使われる
func TestCreateGhostEvent_ExplicitIntensity(t *testing.T) {
	router := newTestHandler(t).SetupRouter()

	w := doJSON(t, router, "POST", "/api/events", map[string]any{"type": "whisper", "intensity": 2})

	var event model.GhostEvent
	json.Unmarshal(w.Body.Bytes(), &event)

	if event.Intensity != 2 {
		t.Errorf("Expected intensity 2, got %d", event.Intensity)
	}
	if event.Message != "Paranormal event registered." {
		t.Errorf("Scare types should use the generic message, got %q", event.Message)
	}
	if event.TriggeredBy != nil {
		t.Errorf("triggeredBy should be null, got %q", *event.TriggeredBy)
	}
}

// TestCreateGhostEvent_Validation 不正な type / intensity は400
func TestCreateGhostEvent_Validation(t *testing.T) {
	router := newTestHandler(t).SetupRouter()

	cases := []map[string]any{
		{"type": "poltergeist"},
		{},
		{"type": "hunt", "intensity": 0},
		{"type": "hunt", "intensity": 6},
	}
	for _, payload := range cases {
		w := doJSON(t, router, "POST", "/api/events", payload)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%v: expected status %d, got %d", payload, http.StatusBadRequest, w.Code)
		}
	}
}

// TestClearEvidence 削除後は空配列
func TestClearEvidence(t *testing.T) {
	router := newTestHandler(t).SetupRouter()

	doJSON(t, router, "POST", "/api/evidence", map[string]string{"userId": "u1", "evidence": "EMF 5"})
	doJSON(t, router, "POST", "/api/evidence", map[string]string{"userId": "u2", "evidence": "ORB"})

	w := doJSON(t, router, "DELETE", "/api/evidence", nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status %d, got %d", http.StatusNoContent, w.Code)
	}
	if w.Body.Len() != 0 {
		t.Errorf("DELETE should have an empty body, got %q", w.Body.String())
	}

	w = doJSON(t, router, "GET", "/api/evidence", nil)
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("Expected empty evidence, got %s", w.Body.String())
	}
}

// TestCreateEvidence_MissingEvidence evidence 必須チェック
func TestCreateEvidence_MissingEvidence(t *testing.T) {
	router := newTestHandler(t).SetupRouter()

	w := doJSON(t, router, "POST", "/api/evidence", map[string]string{"userId": "u1"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

// TestUpdateSquadStatus_Merge 部分更新がマージされることを確認
func TestUpdateSquadStatus_Merge(t *testing.T) {
	router := newTestHandler(t).SetupRouter()

	w := doJSON(t, router, "POST", "/api/squad/status", map[string]any{"userId": "U", "isDead": true})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	doJSON(t, router, "POST", "/api/squad/status", map[string]any{"userId": "U", "map": "Prison"})

	w = doJSON(t, router, "GET", "/api/squad", nil)

	var rows []model.SquadStatus
	json.Unmarshal(w.Body.Bytes(), &rows)

	if len(rows) != 1 {
		t.Fatalf("Expected 1 row, got %d", len(rows))
	}
	if !rows[0].IsDead || rows[0].Map == nil || *rows[0].Map != "Prison" {
		t.Errorf("Expected merged row, got %+v", rows[0])
	}
}

// TestUpdateSquadStatus_MissingUserID userId 必須チェック
func TestUpdateSquadStatus_MissingUserID(t *testing.T) {
	router := newTestHandler(t).SetupRouter()

	w := doJSON(t, router, "POST", "/api/squad/status", map[string]any{"isDead": true})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

// TestUsers 作成201・更新200・未登録404
func TestUsers(t *testing.T) {
	router := newTestHandler(t).SetupRouter()

	w := doJSON(t, router, "GET", "/api/users/u1", nil)
	if w.Code != http.StatusNotFound || errorOf(w) != "User not found" {
		t.Fatalf("Expected 404 'User not found', got %d %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, "POST", "/api/users", map[string]string{"id": "u1", "displayName": "Agent"})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status %d, got %d", http.StatusCreated, w.Code)
	}
	var user model.User
	json.Unmarshal(w.Body.Bytes(), &user)
	if user.PhotoURL != model.DefaultPhotoURL {
		t.Errorf("Expected default photo, got %q", user.PhotoURL)
	}

	w = doJSON(t, router, "POST", "/api/users", map[string]string{"id": "u1", "displayName": "Renamed"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	json.Unmarshal(w.Body.Bytes(), &user)
	if user.DisplayName != "Renamed" || user.PhotoURL != model.DefaultPhotoURL {
		t.Errorf("Update should keep the photo when omitted, got %+v", user)
	}

	w = doJSON(t, router, "GET", "/api/users/u1", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
}

// TestHealthAndQR ヘルスチェックと招待QR
func TestHealthAndQR(t *testing.T) {
	router := newTestHandler(t).SetupRouter()

	w := doJSON(t, router, "GET", "/healthz", nil)
	var health map[string]any
	json.Unmarshal(w.Body.Bytes(), &health)
	if health["status"] != "ok" || health["clients"] != float64(0) {
		t.Errorf("Unexpected health response: %s", w.Body.String())
	}

	w = doJSON(t, router, "GET", "/qr", nil)
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("Expected PNG, got %d %s", w.Code, w.Header().Get("Content-Type"))
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")) {
		t.Error("Body is not a PNG")
	}
}

func dialWS(t *testing.T, server *httptest.Server, origin string) (*websocket.Conn, error) {
	t.Helper()

	url := strings.Replace(server.URL, "http://", "ws://", 1)
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	ws, _, err := websocket.DefaultDialer.Dial(url+"/ws", header)
	return ws, err
}

// waitForClients 接続登録を待つ
func waitForClients(t *testing.T, h *Handler, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Hub.Len() != n {
		if time.Now().After(deadline) {
			t.Fatalf("Expected %d clients, got %d", n, h.Hub.Len())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// TestWebSocketBroadcast 書き込みが全クライアントにプッシュされることを確認
func TestWebSocketBroadcast(t *testing.T) {
	h := newTestHandler(t)
	server := httptest.NewServer(h.SetupRouter())
	defer server.Close()

	var clients []*websocket.Conn
	for i := 0; i < 2; i++ {
		ws, err := dialWS(t, server, "http://localhost:3000")
		if err != nil {
			t.Fatalf("Failed to connect to WebSocket: %v", err)
		}
		defer ws.Close()
		clients = append(clients, ws)
	}
	waitForClients(t, h, 2)

	body, _ := json.Marshal(map[string]string{"type": "hunt"})
	resp, err := http.Post(server.URL+"/api/events", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /api/events: %v", err)
	}
	resp.Body.Close()

	for i, ws := range clients {
		ws.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, raw, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("client %d: read failed: %v", i, err)
		}
		payload, err := model.ParseEnvelope(raw)
		if err != nil {
			t.Fatalf("client %d: bad envelope: %v", i, err)
		}
		event, ok := payload.(model.GhostEvent)
		if !ok || event.Type != model.EventHunt {
			t.Errorf("client %d: expected hunt event, got %#v", i, payload)
		}
	}
}

// TestWebSocketEvidenceCleared 削除通知の形式
func TestWebSocketEvidenceCleared(t *testing.T) {
	h := newTestHandler(t)
	server := httptest.NewServer(h.SetupRouter())
	defer server.Close()

	ws, err := dialWS(t, server, "")
	if err != nil {
		t.Fatalf("Failed to connect to WebSocket: %v", err)
	}
	defer ws.Close()
	waitForClients(t, h, 1)

	req, _ := http.NewRequest("DELETE", server.URL+"/api/evidence", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE /api/evidence: %v", err)
	}
	resp.Body.Close()

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(raw) != `{"type":"evidence_cleared","data":{}}` {
		t.Errorf("Unexpected frame: %s", raw)
	}
}

// TestWebSocketDisconnect 切断したクライアントは集合から外れる
func TestWebSocketDisconnect(t *testing.T) {
	h := newTestHandler(t)
	server := httptest.NewServer(h.SetupRouter())
	defer server.Close()

	ws, err := dialWS(t, server, "http://127.0.0.1:3000")
	if err != nil {
		t.Fatalf("Failed to connect to WebSocket: %v", err)
	}
	waitForClients(t, h, 1)

	// キープアライブメッセージ送信（読み捨てられる）
	ws.WriteJSON(map[string]string{"type": "ping"})
	ws.Close()

	waitForClients(t, h, 0)
}

// TestWebSocketOriginCheck Origin チェックテスト
func TestWebSocketOriginCheck(t *testing.T) {
	h := newTestHandler(t)
	server := httptest.NewServer(h.SetupRouter())
	defer server.Close()

	// 許可されていない Origin で接続試行
	_, err := dialWS(t, server, "http://forbidden.example.com")
	if err == nil {
		t.Error("WebSocket connection from forbidden origin should fail")
	}
}

// TestConcurrentChatCreation 並行メッセージ作成テスト
func TestConcurrentChatCreation(t *testing.T) {
	router := newTestHandler(t).SetupRouter()

	// 10 個の並行リクエスト
	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func(index int) {
			body, _ := json.Marshal(map[string]string{
				"userId": "u1",
				"text":   fmt.Sprintf("Concurrent message %d", index),
			})
			req := httptest.NewRequest("POST", "/api/chat", bytes.NewReader(body))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != http.StatusCreated {
				t.Errorf("Concurrent request failed with status %d: %s", w.Code, w.Body.String())
			}
			done <- true
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	w := doJSON(t, router, "GET", "/api/chat", nil)
	var msgs []model.ChatMessage
	json.Unmarshal(w.Body.Bytes(), &msgs)
	if len(msgs) != 10 {
		t.Errorf("Expected 10 messages from concurrent requests, got %d", len(msgs))
	}
}

// TestMySQLChatRoundTrip MySQLストア経由でも作成・取得できることを確認
func TestMySQLChatRoundTrip(t *testing.T) {
	router := setupMySQLHandler(t).SetupRouter()

	w := doJSON(t, router, "POST", "/api/chat", map[string]string{"userId": "u1", "text": "Hello, World!"})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status %d, got %d. Body: %s", http.StatusCreated, w.Code, w.Body.String())
	}

	w = doJSON(t, router, "GET", "/api/chat", nil)
	var msgs []model.ChatMessage
	json.Unmarshal(w.Body.Bytes(), &msgs)
	if len(msgs) != 1 || msgs[0].Text != "Hello, World!" {
		t.Errorf("Unexpected messages: %+v", msgs)
	}
}
