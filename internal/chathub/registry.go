package chathub

import (
	"context"
	"sort"
	"sync"
	"time"

	"chatline/backend/internal/config"
	"chatline/backend/internal/logger"
	"chatline/backend/internal/metrics"
	"chatline/backend/internal/models"
)

// LastSeenRecorder stamps a user's last-seen time.
type LastSeenRecorder interface {
	TouchLastSeen(ctx context.Context, userID string, at time.Time) error
}

// Mirror receives a copy of presence changes, for example to make the
// online set visible outside the process. The in-memory map stays the only
// source of truth.
type Mirror interface {
	Reset(ctx context.Context) error
	Online(ctx context.Context, userID string) error
	Offline(ctx context.Context, userID string, at time.Time) error
}

type mirrorOp struct {
	userID string
	online bool
	at     time.Time
}

const mirrorQueueSize = 1024

// Registry maps user ids to their single live client. The most recent
// registration wins; a stale client can never remove a newer one.
type Registry struct {
	mu      sync.Mutex
	clients map[string]Client

	lastSeen LastSeenRecorder
	metrics  *metrics.Metrics
	now      func() time.Time

	mirror   Mirror
	mirrorCh chan mirrorOp

	closeMu sync.Mutex
	closed  bool

	bg sync.WaitGroup
}

// NewRegistry builds an empty registry. lastSeen, mirror and m may be nil.
func NewRegistry(lastSeen LastSeenRecorder, mirror Mirror, m *metrics.Metrics) *Registry {
	r := &Registry{
		clients:  make(map[string]Client),
		lastSeen: lastSeen,
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
		mirror:   mirror,
	}
	if mirror != nil {
		r.mirrorCh = make(chan mirrorOp, mirrorQueueSize)
		r.bg.Add(1)
		go r.runMirror()
	}
	return r
}

// Register stores c as the live client of its user, replacing any previous
// client, and broadcasts the new online list. The replaced client, if any,
// is returned and left open.
func (r *Registry) Register(c Client) Client {
	userID := c.GetUserID()

	r.mu.Lock()
	prev := r.clients[userID]
	r.clients[userID] = c
	r.changedLocked()
	r.enqueueMirror(mirrorOp{userID: userID, online: true})
	r.mu.Unlock()

	l := logger.L()
	l.Debug().Str(logger.FieldUserID, userID).Bool("replaced", prev != nil).Msg("client registered")
	return prev
}

// Unregister removes c if it is still the registered client of its user.
// On removal the user's last-seen is stamped in the background and
// userOffline plus the new online list are broadcast.
func (r *Registry) Unregister(c Client) bool {
	userID := c.GetUserID()

	r.mu.Lock()
	if cur, ok := r.clients[userID]; !ok || cur != c {
		r.mu.Unlock()
		return false
	}
	delete(r.clients, userID)
	at := r.now()
	r.broadcastLocked(models.NewEvent(models.EventUserOffline, models.OfflinePayload{UserID: userID, LastSeen: at}))
	r.changedLocked()
	r.enqueueMirror(mirrorOp{userID: userID, at: at})
	r.mu.Unlock()

	r.stampLastSeen(userID, at)
	return true
}

// Lookup returns the live client of userID.
func (r *Registry) Lookup(userID string) (Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[userID]
	return c, ok
}

// OnlineUserIDs returns the ids of all registered users, sorted.
func (r *Registry) OnlineUserIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.idsLocked()
}

// Close waits for pending last-seen stamps and drains the mirror queue.
func (r *Registry) Close() {
	r.closeMu.Lock()
	if !r.closed {
		r.closed = true
		if r.mirrorCh != nil {
			close(r.mirrorCh)
		}
	}
	r.closeMu.Unlock()
	r.bg.Wait()
}

func (r *Registry) idsLocked() []string {
	ids := make([]string, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// changedLocked publishes the online list and updates the gauge.
func (r *Registry) changedLocked() {
	ids := r.idsLocked()
	r.broadcastLocked(models.NewEvent(models.EventGetOnlineUsers, ids))
	if r.metrics != nil {
		r.metrics.OnlineUsers.Set(float64(len(ids)))
	}
}

func (r *Registry) broadcastLocked(evt models.Event) {
	for _, c := range r.clients {
		ok := c.Deliver(evt)
		if r.metrics != nil {
			result := metrics.PushDelivered
			if !ok {
				result = metrics.PushDropped
			}
			r.metrics.Pushes.WithLabelValues(evt.Event, result).Inc()
		}
	}
}

func (r *Registry) stampLastSeen(userID string, at time.Time) {
	if r.lastSeen == nil {
		return
	}
	r.closeMu.Lock()
	if r.closed {
		r.closeMu.Unlock()
		return
	}
	r.bg.Add(1)
	r.closeMu.Unlock()
	go func() {
		defer r.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), config.LastSeenTimeout)
		defer cancel()
		if err := r.lastSeen.TouchLastSeen(ctx, userID, at); err != nil {
			l := logger.L()
			l.Warn().Err(err).Str(logger.FieldUserID, userID).Msg("failed to stamp last seen")
		}
	}()
}

// enqueueMirror is called with r.mu held so the queue keeps mutation order.
func (r *Registry) enqueueMirror(op mirrorOp) {
	r.closeMu.Lock()
	defer r.closeMu.Unlock()
	if r.mirrorCh == nil || r.closed {
		return
	}
	select {
	case r.mirrorCh <- op:
	default:
		l := logger.L()
		l.Warn().Str(logger.FieldUserID, op.userID).Msg("presence mirror queue full, dropping update")
	}
}

func (r *Registry) runMirror() {
	defer r.bg.Done()
	l := logger.L().With().Str(logger.FieldComponent, "presence-mirror").Logger()
	for op := range r.mirrorCh {
		ctx, cancel := context.WithTimeout(context.Background(), config.LastSeenTimeout)
		var err error
		if op.online {
			err = r.mirror.Online(ctx, op.userID)
		} else {
			err = r.mirror.Offline(ctx, op.userID, op.at)
		}
		cancel()
		if err != nil {
			l.Warn().Err(err).Str(logger.FieldUserID, op.userID).Bool("online", op.online).Msg("mirror update failed")
		}
	}
}
