package chathub_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chatline/backend/internal/chathub"
	"chatline/backend/internal/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frame struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

func startServer(t *testing.T, hub *chathub.ManagerService) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		chathub.NewWebSocketClient(hub, conn, r.URL.Query().Get("userId")).Run()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?userId=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads frames until one named event arrives.
func readUntil(t *testing.T, conn *websocket.Conn, event string) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var f frame
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", event)
		if strings.Contains(string(raw), `"event":"`+event+`"`) {
			require.NoError(t, json.Unmarshal(raw, &f))
			return f
		}
	}
}

func TestWebSocket_TypingRelayAndOffline(t *testing.T) {
	hub := chathub.NewManagerService(chathub.NewRegistry(nil, nil, nil), chathub.Heartbeat{
		PingInterval:   time.Second,
		PongWait:       5 * time.Second,
		WriteWait:      time.Second,
		MaxMessageSize: 4096,
	}, nil)
	srv := startServer(t, hub)

	a := dial(t, srv, "user_A")
	b := dial(t, srv, "user_B")

	assert.Eventually(t, func() bool {
		return len(hub.Registry.OnlineUserIDs()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, a.WriteJSON(map[string]any{
		"event": models.EventTyping,
		"data":  map[string]string{"senderId": "user_A", "receiverId": "user_B"},
	}))
	got := readUntil(t, b, models.EventUserTyping)
	assert.Equal(t, "user_A", got.Data["senderId"])

	ok := hub.PushTo("user_B", models.NewEvent(models.EventNewMessage, map[string]string{"text": "hi"}))
	assert.True(t, ok)
	msg := readUntil(t, b, models.EventNewMessage)
	assert.Equal(t, "hi", msg.Data["text"])

	require.NoError(t, a.Close())
	offline := readUntil(t, b, models.EventUserOffline)
	assert.Equal(t, "user_A", offline.Data["userId"])

	assert.Eventually(t, func() bool {
		_, online := hub.Registry.Lookup("user_A")
		return !online
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketClient_StateMachine(t *testing.T) {
	hub := chathub.NewManagerService(chathub.NewRegistry(nil, nil, nil), chathub.Heartbeat{
		PingInterval: time.Second, PongWait: 5 * time.Second, WriteWait: time.Second,
	}, nil)
	c := chathub.NewWebSocketClient(hub, nil, "user_A")
	assert.Equal(t, chathub.StateAuthenticated, c.State())

	assert.True(t, c.Deliver(models.NewEvent(models.EventNewMessage, nil)))
	c.Close()
	c.Close()

	assert.Equal(t, chathub.StateClosed, c.State())
	assert.False(t, c.Deliver(models.NewEvent(models.EventNewMessage, nil)), "closed clients drop events")
}
