package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"chatline/backend/internal/models"
)

// MemoryStore keeps everything in process. Messages are held in insertion
// order, which is the natural-order tie-break for equal timestamps.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[string]*models.User
	byEmail  map[string]string // email -> user id
	messages []*models.Message
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[string]*models.User),
		byEmail: make(map[string]string),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error  { return nil }
func (s *MemoryStore) Close(ctx context.Context) error { return nil }

func (s *MemoryStore) CreateUser(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := u.BeforeCreate(nil); err != nil {
		return err
	}
	if _, taken := s.byEmail[u.Email]; taken {
		return ErrDuplicate
	}
	now := s.now()
	u.CreatedAt, u.UpdatedAt = now, now

	stored := *u
	s.users[u.ID] = &stored
	s.byEmail[u.Email] = u.ID
	return nil
}

func (s *MemoryStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *u
	return &out, nil
}

func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[models.NormalizeEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	out := *s.users[id]
	return &out, nil
}

func (s *MemoryStore) UpdateProfilePic(ctx context.Context, id, url string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	u.ProfilePic = url
	u.UpdatedAt = s.now()
	out := *u
	return &out, nil
}

func (s *MemoryStore) TouchLastSeen(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.LastSeen = at
	return nil
}

func (s *MemoryStore) ListUsersByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListContacts(ctx context.Context, viewerID string) ([]models.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Later entries win, so the last match per peer is the latest in storage order.
	latest := make(map[string]*models.Message)
	for _, m := range s.messages {
		if m.SenderID != viewerID && m.ReceiverID != viewerID {
			continue
		}
		peer := m.Peer(viewerID)
		if cur, ok := latest[peer]; !ok || !m.CreatedAt.Before(cur.CreatedAt) {
			latest[peer] = m
		}
	}

	contacts := make([]models.Contact, 0, len(s.users))
	for id, u := range s.users {
		if id == viewerID {
			continue
		}
		contacts = append(contacts, models.Contact{User: *u, LastMessage: models.PreviewOf(latest[id])})
	}
	sort.Slice(contacts, func(i, j int) bool {
		if !contacts[i].CreatedAt.Equal(contacts[j].CreatedAt) {
			return contacts[i].CreatedAt.Before(contacts[j].CreatedAt)
		}
		return contacts[i].ID < contacts[j].ID
	})
	return contacts, nil
}

func (s *MemoryStore) CreateMessage(ctx context.Context, m *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := m.BeforeCreate(nil); err != nil {
		return err
	}
	now := s.now()
	m.CreatedAt, m.UpdatedAt = now, now
	s.messages = append(s.messages, cloneMessage(m))
	return nil
}

func (s *MemoryStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexOf(id); i >= 0 {
		return cloneMessage(s.messages[i]), nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) GetMessagesByIDs(ctx context.Context, ids []string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var out []models.Message
	for _, m := range s.messages {
		if _, ok := want[m.ID]; ok {
			out = append(out, *cloneMessage(m))
		}
	}
	return out, nil
}

func (s *MemoryStore) ListConversation(ctx context.Context, a, b string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.Message{}
	for _, m := range s.messages {
		if m.Involves(a, b) {
			out = append(out, *cloneMessage(m))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) MarkSeen(ctx context.Context, senderID, receiverID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	now := s.now()
	for _, m := range s.messages {
		if m.SenderID == senderID && m.ReceiverID == receiverID && !m.IsSeen {
			m.IsSeen = true
			m.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) UpdateText(ctx context.Context, id, senderID, text string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 || s.messages[i].SenderID != senderID {
		return nil, ErrNotFound
	}
	m := s.messages[i]
	m.Text = text
	m.IsEdited = true
	m.UpdatedAt = s.now()
	return cloneMessage(m), nil
}

func (s *MemoryStore) ToggleReaction(ctx context.Context, id, userID, emoji string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return nil, ErrNotFound
	}
	m := s.messages[i]
	m.Reactions = models.ToggleReaction(m.Reactions, userID, emoji)
	m.UpdatedAt = s.now()
	return cloneMessage(m), nil
}

func (s *MemoryStore) DeleteMessage(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return ErrNotFound
	}
	s.messages = append(s.messages[:i], s.messages[i+1:]...)
	return nil
}

func (s *MemoryStore) DeleteConversation(ctx context.Context, a, b string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.messages[:0]
	var n int64
	for _, m := range s.messages {
		if m.Involves(a, b) {
			n++
			continue
		}
		kept = append(kept, m)
	}
	for i := len(kept); i < len(s.messages); i++ {
		s.messages[i] = nil
	}
	s.messages = kept
	return n, nil
}

func (s *MemoryStore) indexOf(id string) int {
	for i, m := range s.messages {
		if m.ID == id {
			return i
		}
	}
	return -1
}

func cloneMessage(m *models.Message) *models.Message {
	out := *m
	out.Reactions = append([]models.Reaction{}, m.Reactions...)
	if m.ReplyTo != nil {
		ref := *m.ReplyTo
		out.ReplyTo = &ref
	}
	return &out
}
