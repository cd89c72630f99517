// Package chathub tracks which users are connected and delivers real-time
// events to their connections.
package chathub

import (
	"encoding/json"
	"time"

	"chatline/backend/internal/config"
	"chatline/backend/internal/logger"
	"chatline/backend/internal/metrics"
	"chatline/backend/internal/models"
)

// Heartbeat holds the connection keep-alive settings.
type Heartbeat struct {
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
}

// HeartbeatFrom maps the websocket config section.
func HeartbeatFrom(cfg config.WebSocketConfig) Heartbeat {
	return Heartbeat{
		PingInterval:   cfg.PingInterval,
		PongWait:       cfg.PongWait,
		WriteWait:      cfg.WriteWait,
		MaxMessageSize: cfg.MaxMessageSize,
	}
}

// ManagerService is the connection gateway: it admits clients into the
// registry, relays client-originated signals and pushes server events.
type ManagerService struct {
	Registry  *Registry
	Heartbeat Heartbeat
	metrics   *metrics.Metrics
}

func NewManagerService(registry *Registry, hb Heartbeat, m *metrics.Metrics) *ManagerService {
	return &ManagerService{Registry: registry, Heartbeat: hb, metrics: m}
}

// Connect registers c as its user's live client.
func (m *ManagerService) Connect(c Client) {
	m.Registry.Register(c)
	if m.metrics != nil {
		m.metrics.Connections.Inc()
	}
}

// Disconnect unregisters c, if it is still current, and closes it.
func (m *ManagerService) Disconnect(c Client) {
	m.Registry.Unregister(c)
	c.Close()
}

// PushTo delivers evt to userID's live client. It reports false when the
// user is offline or the client could not take the event; it never fails.
func (m *ManagerService) PushTo(userID string, evt models.Event) bool {
	c, ok := m.Registry.Lookup(userID)
	if !ok {
		m.countPush(evt.Event, metrics.PushOffline)
		return false
	}
	if !c.Deliver(evt) {
		m.countPush(evt.Event, metrics.PushDropped)
		return false
	}
	m.countPush(evt.Event, metrics.PushDelivered)
	return true
}

// HandleInbound processes one frame read from senderID's connection.
// Typing indicators are relayed best-effort; anything else is ignored.
func (m *ManagerService) HandleInbound(senderID string, raw []byte) {
	l := logger.L().With().Str(logger.FieldUserID, senderID).Logger()

	var frame models.InboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		l.Debug().Err(err).Msg("ignoring malformed frame")
		return
	}

	var relayed string
	switch frame.Event {
	case models.EventTyping:
		relayed = models.EventUserTyping
	case models.EventStopTyping:
		relayed = models.EventUserStoppedTyping
	default:
		l.Debug().Str(logger.FieldEvent, frame.Event).Msg("ignoring unknown event")
		return
	}

	var p models.TypingPayload
	if err := json.Unmarshal(frame.Data, &p); err != nil || p.ReceiverID == "" {
		l.Debug().Str(logger.FieldEvent, frame.Event).Msg("ignoring typing frame without receiver")
		return
	}
	// The sender is always the authenticated connection, never the payload.
	m.PushTo(p.ReceiverID, models.NewEvent(relayed, models.TypingNotice{SenderID: senderID}))
}

func (m *ManagerService) countPush(event, result string) {
	if m.metrics != nil {
		m.metrics.Pushes.WithLabelValues(event, result).Inc()
	}
}
