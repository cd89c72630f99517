package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chatline/backend/internal/account"
	"chatline/backend/internal/api/handler"
	"chatline/backend/internal/apperr"
	"chatline/backend/internal/assets"
	"chatline/backend/internal/auth"
	"chatline/backend/internal/chathub"
	"chatline/backend/internal/config"
	"chatline/backend/internal/conversation"
	"chatline/backend/internal/localization"
	"chatline/backend/internal/metrics"
	"chatline/backend/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type testServer struct {
	router   *gin.Engine
	hub      *chathub.ManagerService
	accounts *account.Service
	locales  *localization.Localizer
	convs    *conversation.Service
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{AllowedOrigin: "http://localhost:5173"},
		Auth:   config.AuthConfig{JWTSecret: "test-secret", SessionTTL: time.Hour},
		WebSocket: config.WebSocketConfig{
			PingInterval:    time.Second,
			PongWait:        5 * time.Second,
			WriteWait:       time.Second,
			MaxMessageSize:  4096,
			VerifyHandshake: true,
		},
		RateLimit: config.RateLimitConfig{GlobalPerWindow: 1000, GlobalWindow: time.Minute, MessagesPerMinute: 100},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()
	store := storage.NewMemoryStore()
	m := metrics.New()
	registry := chathub.NewRegistry(store, nil, m)
	t.Cleanup(registry.Close)
	hub := chathub.NewManagerService(registry, chathub.HeartbeatFrom(cfg.WebSocket), m)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL)
	uploader := assets.NewUploader(assets.InlineStore{})
	accounts := account.NewService(store, tokens, uploader)
	convs := conversation.NewService(store, hub, uploader, nil)
	t.Cleanup(convs.Close)

	locales, err := localization.Default()
	require.NoError(t, err)

	h := handler.NewHandler(handler.Deps{
		Hub:           hub,
		Accounts:      accounts,
		Conversations: convs,
		Tokens:        tokens,
		Locales:       locales,
		Metrics:       m,
		Store:         store,
		Config:        cfg,
	})
	return &testServer{router: h.Router(), hub: hub, accounts: accounts, locales: locales, convs: convs}
}

func (s *testServer) signup(t *testing.T, name, email string) *account.Session {
	t.Helper()
	sess, err := s.accounts.Signup(context.Background(), account.SignupInput{
		FullName: name, Email: email, Password: "secret1",
	})
	require.NoError(t, err)
	return sess
}

func (s *testServer) do(t *testing.T, method, path, token string, body any, header ...string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

func TestSignupSetsSessionCookie(t *testing.T) {
	s := newTestServer(t, testConfig())

	w, env := s.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"fullName": "Alice", "email": "alice@example.com", "password": "secret1",
	})

	require.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, env.Success)
	assert.NotContains(t, string(env.Data), "password")

	cookie := w.Header().Get("Set-Cookie")
	assert.Contains(t, cookie, config.SessionCookieName+"=")
	assert.Contains(t, cookie, "HttpOnly")
	assert.Contains(t, cookie, "SameSite=Strict")

	req := httptest.NewRequest(http.MethodGet, "/api/auth/check", nil)
	req.Header.Set("Cookie", strings.Split(cookie, ";")[0])
	check := httptest.NewRecorder()
	s.router.ServeHTTP(check, req)
	assert.Equal(t, http.StatusOK, check.Code)
}

func TestSignupBindingRules(t *testing.T) {
	s := newTestServer(t, testConfig())

	tests := []struct {
		name  string
		body  map[string]string
		field string
	}{
		{"short password", map[string]string{"fullName": "Alice", "email": "alice@example.com", "password": "123"}, "Password"},
		{"bad email", map[string]string{"fullName": "Alice", "email": "alice", "password": "secret1"}, "Email"},
		{"missing name", map[string]string{"email": "alice@example.com", "password": "secret1"}, "FullName"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := s.do(t, http.MethodPost, "/api/auth/signup", "", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			require.NotNil(t, env.Error)
			assert.Equal(t, apperr.CodeBadRequest, env.Error.Code)
			assert.Contains(t, env.Error.Message, tt.field)
		})
	}
}

func TestLoginFailureIsUnauthorized(t *testing.T) {
	s := newTestServer(t, testConfig())
	s.signup(t, "Alice", "alice@example.com")

	w, env := s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "nope123",
	})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, apperr.CodeInvalidCredentials, env.Error.Code)
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	s := newTestServer(t, testConfig())

	w, env := s.do(t, http.MethodGet, "/api/messages/users", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, apperr.CodeUnauthorized, env.Error.Code)

	w, env = s.do(t, http.MethodGet, "/api/messages/users", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, apperr.CodeTokenInvalid, env.Error.Code)
}

func TestMessageFlow(t *testing.T) {
	s := newTestServer(t, testConfig())
	alice := s.signup(t, "Alice", "alice@example.com")
	bob := s.signup(t, "Bob", "bob@example.com")

	w, env := s.do(t, http.MethodPost, "/api/messages/send/"+bob.User.ID, alice.Token, map[string]string{"text": "hi"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var sent struct {
		ID   string `json:"_id"`
		Text string `json:"text"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &sent))
	assert.Equal(t, "hi", sent.Text)

	w, env = s.do(t, http.MethodGet, "/api/messages/"+alice.User.ID, bob.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, sent.ID, list[0]["_id"])

	w, _ = s.do(t, http.MethodPost, "/api/messages/react/"+sent.ID, bob.Token, map[string]string{"emoji": "👍"})
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, http.MethodPut, "/api/messages/edit/"+sent.ID, bob.Token, map[string]string{"text": "hijack"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, env = s.do(t, http.MethodDelete, "/api/messages/delete/"+sent.ID, bob.Token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, apperr.CodeForbidden, env.Error.Code)

	w, env = s.do(t, http.MethodDelete, "/api/messages/clear/"+bob.User.ID, alice.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"deleted":1}`, string(env.Data))
}

func TestSendValidationAndLocalization(t *testing.T) {
	s := newTestServer(t, testConfig())
	alice := s.signup(t, "Alice", "alice@example.com")
	bob := s.signup(t, "Bob", "bob@example.com")

	w, env := s.do(t, http.MethodPost, "/api/messages/send/"+bob.User.ID, alice.Token, map[string]string{"text": " "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apperr.CodeTextOrImage, env.Error.Code)
	assert.Equal(t, "message must contain text or image", env.Error.Message)

	w, env = s.do(t, http.MethodPost, "/api/messages/send/"+bob.User.ID, alice.Token, map[string]string{"text": ""},
		"Accept-Language", "uk-UA,uk;q=0.9")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	want, found := s.locales.Lookup("uk", apperr.CodeTextOrImage)
	require.True(t, found)
	assert.Equal(t, want, env.Error.Message)

	w, env = s.do(t, http.MethodPost, "/api/messages/send/"+bob.User.ID, alice.Token, map[string]string{"image": "%%%"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apperr.CodeInvalidImage, env.Error.Code)
}

func TestMessageRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.MessagesPerMinute = 2
	s := newTestServer(t, cfg)
	alice := s.signup(t, "Alice", "alice@example.com")
	bob := s.signup(t, "Bob", "bob@example.com")

	for i := 0; i < 2; i++ {
		w, _ := s.do(t, http.MethodPost, "/api/messages/send/"+bob.User.ID, alice.Token, map[string]string{"text": "spam"})
		require.Equal(t, http.StatusCreated, w.Code)
	}
	w, env := s.do(t, http.MethodPost, "/api/messages/send/"+bob.User.ID, alice.Token, map[string]string{"text": "spam"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, apperr.CodeTooManyRequests, env.Error.Code)

	// reads are only subject to the global limiter
	w, _ = s.do(t, http.MethodGet, "/api/messages/users", alice.Token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","online":0}`, w.Body.String())
}

func TestWebSocketHandshake(t *testing.T) {
	s := newTestServer(t, testConfig())
	alice := s.signup(t, "Alice", "alice@example.com")
	bob := s.signup(t, "Bob", "bob@example.com")

	tests := []struct {
		name   string
		query  string
		status int
	}{
		{"missing user", "", http.StatusBadRequest},
		{"undefined user", "?userId=undefined", http.StatusBadRequest},
		{"no token", "?userId=" + bob.User.ID, http.StatusUnauthorized},
		{"foreign token", "?userId=" + bob.User.ID + "&token=" + alice.Token, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := s.do(t, http.MethodGet, "/ws"+tt.query, "", nil)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestWebSocketReceivesNewMessage(t *testing.T) {
	s := newTestServer(t, testConfig())
	alice := s.signup(t, "Alice", "alice@example.com")
	bob := s.signup(t, "Bob", "bob@example.com")

	srv := httptest.NewServer(s.router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?userId=" + bob.User.ID + "&token=" + bob.Token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	assert.Eventually(t, func() bool {
		_, online := s.hub.Registry.Lookup(bob.User.ID)
		return online
	}, 2*time.Second, 10*time.Millisecond)

	_, err = s.convs.SendMessage(context.Background(), alice.User.ID, bob.User.ID, conversation.SendInput{Text: "hi"})
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)
		var f struct {
			Event string         `json:"event"`
			Data  map[string]any `json:"data"`
		}
		require.NoError(t, json.Unmarshal(raw, &f))
		if f.Event != "newMessage" {
			continue
		}
		assert.Equal(t, "hi", f.Data["text"])
		assert.Equal(t, alice.User.ID, f.Data["senderId"])
		assert.NotEmpty(t, f.Data["_id"])
		return
	}
}

func TestForwardRequiresReceiver(t *testing.T) {
	s := newTestServer(t, testConfig())
	alice := s.signup(t, "Alice", "alice@example.com")
	bob := s.signup(t, "Bob", "bob@example.com")
	carol := s.signup(t, "Carol", "carol@example.com")

	view, err := s.convs.SendMessage(context.Background(), alice.User.ID, bob.User.ID, conversation.SendInput{Text: "fyi"})
	require.NoError(t, err)

	w, env := s.do(t, http.MethodPost, "/api/messages/forward/"+view.ID, bob.Token, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, env.Error.Message, "ReceiverID")

	w, env = s.do(t, http.MethodPost, "/api/messages/forward/"+view.ID, bob.Token, map[string]string{"receiverId": carol.User.ID})
	require.Equal(t, http.StatusCreated, w.Code)
	var fwd map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &fwd))
	assert.Equal(t, "fyi", fwd["text"])
	assert.Equal(t, carol.User.ID, fwd["receiverId"])
	assert.NotEqual(t, view.ID, fwd["_id"])
}
