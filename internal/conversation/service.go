// Package conversation implements the message lifecycle between two users:
// persistence first, then a best-effort push to the other participant.
package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"chatline/backend/internal/apperr"
	"chatline/backend/internal/assets"
	"chatline/backend/internal/config"
	"chatline/backend/internal/events"
	"chatline/backend/internal/logger"
	"chatline/backend/internal/models"
	"chatline/backend/internal/storage"

	"golang.org/x/sync/singleflight"
)

// Store is the persistence the service needs.
type Store interface {
	storage.MessageStore
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	ListContacts(ctx context.Context, viewerID string) ([]models.Contact, error)
}

// Pusher delivers a real-time event to a user's live connection, if any.
type Pusher interface {
	PushTo(userID string, evt models.Event) bool
}

// ImageUploader stores an image constrained by a preset and returns its URL.
type ImageUploader interface {
	Upload(ctx context.Context, data []byte, p assets.Preset) (string, error)
}

// SendInput is the content of a new message. Image holds raw image bytes.
type SendInput struct {
	Text    string
	Image   []byte
	ReplyTo string
}

type Service struct {
	store     Store
	pusher    Pusher
	images    ImageUploader
	publisher events.Publisher

	seen singleflight.Group

	mu      sync.Mutex
	closed  bool
	bg      sync.WaitGroup
	seenTTL time.Duration
	now     func() time.Time
}

// NewService wires the service. publisher may be nil.
func NewService(store Store, pusher Pusher, images ImageUploader, publisher events.Publisher) *Service {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Service{
		store:     store,
		pusher:    pusher,
		images:    images,
		publisher: publisher,
		seenTTL:   config.SeenMarkTimeout,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SendMessage persists a message from senderID to receiverID and pushes it
// to the receiver.
func (s *Service) SendMessage(ctx context.Context, senderID, receiverID string, in SendInput) (*models.MessageView, error) {
	if strings.TrimSpace(in.Text) == "" && len(in.Image) == 0 {
		return nil, apperr.Validation(apperr.CodeTextOrImage, "message must contain text or image")
	}
	if _, err := s.store.GetUserByID(ctx, receiverID); err != nil {
		return nil, translate(err, apperr.NotFound(apperr.CodeUserNotFound, "receiver not found"))
	}

	msg := &models.Message{SenderID: senderID, ReceiverID: receiverID, Text: in.Text}
	if in.ReplyTo != "" {
		ref := in.ReplyTo
		msg.ReplyTo = &ref
	}
	if len(in.Image) > 0 {
		url, err := s.uploadImage(ctx, in.Image, assets.PresetChat)
		if err != nil {
			return nil, err
		}
		msg.Image = url
	}

	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return nil, apperr.Dependency("message store", err)
	}

	view := s.viewForPush(ctx, msg)
	s.pusher.PushTo(receiverID, models.NewEvent(models.EventNewMessage, view))
	s.publish(events.TypeMessageCreated, msg, 0)
	return view, nil
}

// GetMessages returns the conversation between me and peer, oldest first,
// and marks peer's messages to me as seen in the background. The returned
// list reflects the state before that marking.
func (s *Service) GetMessages(ctx context.Context, me, peer string) ([]models.MessageView, error) {
	msgs, err := s.store.ListConversation(ctx, me, peer)
	if err != nil {
		return nil, apperr.Dependency("message store", err)
	}
	views, err := s.views(ctx, msgs)
	if err != nil {
		return nil, err
	}
	s.markSeenAsync(me, peer)
	return views, nil
}

// MarkSeen flags every message from peer to viewer as seen and tells peer.
func (s *Service) MarkSeen(ctx context.Context, viewer, peer string) (int64, error) {
	n, err := s.store.MarkSeen(ctx, peer, viewer)
	if err != nil {
		return 0, apperr.Dependency("message store", err)
	}
	s.pusher.PushTo(peer, models.NewEvent(models.EventMessagesSeen, models.SeenPayload{SeenBy: viewer}))
	if n > 0 {
		s.publishPair(events.TypeMessagesSeen, peer, viewer, n)
	}
	return n, nil
}

// EditMessage replaces the text of a message sent by editor.
func (s *Service) EditMessage(ctx context.Context, editor, messageID, text string) (*models.MessageView, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperr.Validation(apperr.CodeBadRequest, "text is required")
	}
	msg, err := s.store.UpdateText(ctx, messageID, editor, text)
	if err != nil {
		return nil, translate(err, apperr.NotFound(apperr.CodeMessageNotFound, "message not found or unauthorized"))
	}

	view := s.viewForPush(ctx, msg)
	s.pusher.PushTo(msg.ReceiverID, models.NewEvent(models.EventMessageUpdate, view))
	s.publish(events.TypeMessageEdited, msg, 0)
	return view, nil
}

// DeleteMessage removes a message sent by requester.
func (s *Service) DeleteMessage(ctx context.Context, requester, messageID string) error {
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return translate(err, apperr.NotFound(apperr.CodeMessageNotFound, "message not found"))
	}
	if msg.SenderID != requester {
		return apperr.Authorization("you can only delete your own messages")
	}
	if err := s.store.DeleteMessage(ctx, messageID); err != nil {
		return translate(err, apperr.NotFound(apperr.CodeMessageNotFound, "message not found"))
	}

	s.pusher.PushTo(msg.ReceiverID, models.NewEvent(models.EventMessageDeleted, models.DeletedPayload{MessageID: messageID}))
	s.publish(events.TypeMessageDeleted, msg, 0)
	return nil
}

// AddReaction toggles userID's emoji on a message and returns the
// resulting reaction list.
func (s *Service) AddReaction(ctx context.Context, userID, messageID, emoji string) ([]models.Reaction, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return nil, apperr.Validation(apperr.CodeBadRequest, "emoji is required")
	}
	msg, err := s.store.ToggleReaction(ctx, messageID, userID, emoji)
	if err != nil {
		return nil, translate(err, apperr.NotFound(apperr.CodeMessageNotFound, "message not found"))
	}

	reactions := msg.Reactions
	if reactions == nil {
		reactions = []models.Reaction{}
	}
	s.pusher.PushTo(msg.Peer(userID), models.NewEvent(models.EventMessageReaction,
		models.ReactionPayload{MessageID: messageID, Reactions: reactions}))
	s.publish(events.TypeReactionToggled, msg, 0)
	return reactions, nil
}

// ForwardMessage sends a copy of an existing message's content from
// forwarder to receiverID. Reply reference and reactions are not copied.
func (s *Service) ForwardMessage(ctx context.Context, forwarder, sourceID, receiverID string) (*models.MessageView, error) {
	src, err := s.store.GetMessage(ctx, sourceID)
	if err != nil {
		return nil, translate(err, apperr.NotFound(apperr.CodeMessageNotFound, "original message not found"))
	}
	if _, err := s.store.GetUserByID(ctx, receiverID); err != nil {
		return nil, translate(err, apperr.NotFound(apperr.CodeUserNotFound, "receiver not found"))
	}

	msg := &models.Message{
		SenderID:   forwarder,
		ReceiverID: receiverID,
		Text:       src.Text,
		Image:      src.Image,
	}
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return nil, apperr.Dependency("message store", err)
	}

	view := &models.MessageView{Message: *msg}
	s.pusher.PushTo(receiverID, models.NewEvent(models.EventNewMessage, view))
	s.publish(events.TypeMessageCreated, msg, 0)
	return view, nil
}

// ClearConversation deletes every message between a and b. The other
// participant is not notified.
func (s *Service) ClearConversation(ctx context.Context, a, b string) (int64, error) {
	n, err := s.store.DeleteConversation(ctx, a, b)
	if err != nil {
		return 0, apperr.Dependency("message store", err)
	}
	s.publishPair(events.TypeConversationCleared, a, b, n)
	return n, nil
}

// ListContacts returns every other user with their latest message with viewer.
func (s *Service) ListContacts(ctx context.Context, viewer string) ([]models.Contact, error) {
	contacts, err := s.store.ListContacts(ctx, viewer)
	if err != nil {
		return nil, apperr.Dependency("user store", err)
	}
	return contacts, nil
}

// Close stops accepting background work and waits for what is in flight.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.bg.Wait()
}

func (s *Service) uploadImage(ctx context.Context, data []byte, p assets.Preset) (string, error) {
	url, err := s.images.Upload(ctx, data, p)
	if err != nil {
		if errors.Is(err, assets.ErrInvalidImage) {
			return "", apperr.Validation(apperr.CodeInvalidImage, "image could not be decoded")
		}
		return "", apperr.Dependency("asset store", err)
	}
	return url, nil
}

// markSeenAsync runs the seen update detached from the request. Forget
// before Do means a dispatch only joins a store call that started after it,
// so that call already covers every message the caller returned.
func (s *Service) markSeenAsync(viewer, peer string) {
	key := peer + ">" + viewer
	s.goBackground(func() {
		s.seen.Forget(key)
		_, _, _ = s.seen.Do(key, func() (interface{}, error) {
			ctx, cancel := context.WithTimeout(context.Background(), s.seenTTL)
			defer cancel()
			n, err := s.store.MarkSeen(ctx, peer, viewer)
			if err != nil {
				l := logger.L()
				l.Warn().Err(err).Str(logger.FieldUserID, viewer).Str(logger.FieldPeerID, peer).
					Msg("background seen marking failed")
			}
			return n, err
		})
	})
}

func (s *Service) publish(kind string, m *models.Message, count int64) {
	s.emit(events.MessageEvent{
		Type:       kind,
		MessageID:  m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Count:      count,
		At:         s.now(),
	})
}

func (s *Service) publishPair(kind, sender, receiver string, count int64) {
	s.emit(events.MessageEvent{Type: kind, SenderID: sender, ReceiverID: receiver, Count: count, At: s.now()})
}

func (s *Service) emit(evt events.MessageEvent) {
	s.goBackground(func() {
		ctx, cancel := context.WithTimeout(context.Background(), config.PublishTimeout)
		defer cancel()
		if err := s.publisher.Publish(ctx, evt); err != nil {
			l := logger.L()
			l.Warn().Err(err).Str(logger.FieldEvent, evt.Type).Str(logger.FieldMessageID, evt.MessageID).
				Msg("failed to publish message event")
		}
	})
}

func (s *Service) goBackground(fn func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.bg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.bg.Done()
		fn()
	}()
}

// translate maps storage.ErrNotFound to notFound and anything else to a
// dependency failure.
func translate(err error, notFound *apperr.Error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return notFound
	}
	return apperr.Dependency("message store", err)
}
