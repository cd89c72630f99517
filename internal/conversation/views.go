package conversation

import (
	"context"

	"chatline/backend/internal/apperr"
	"chatline/backend/internal/logger"
	"chatline/backend/internal/models"
)

// views expands reply references. A reference to a message that no longer
// exists renders as missing.
func (s *Service) views(ctx context.Context, msgs []models.Message) ([]models.MessageView, error) {
	var refs []string
	seen := make(map[string]struct{})
	for _, m := range msgs {
		if m.ReplyTo == nil {
			continue
		}
		if _, ok := seen[*m.ReplyTo]; !ok {
			seen[*m.ReplyTo] = struct{}{}
			refs = append(refs, *m.ReplyTo)
		}
	}

	previews := make(map[string]*models.ReplyPreview, len(refs))
	if len(refs) > 0 {
		found, err := s.store.GetMessagesByIDs(ctx, refs)
		if err != nil {
			return nil, apperr.Dependency("message store", err)
		}
		for _, r := range found {
			previews[r.ID] = &models.ReplyPreview{ID: r.ID, Text: r.Text, Image: r.Image}
		}
	}

	out := make([]models.MessageView, len(msgs))
	for i, m := range msgs {
		out[i] = models.MessageView{Message: m}
		if m.ReplyTo == nil {
			continue
		}
		if p, ok := previews[*m.ReplyTo]; ok {
			out[i].ReplyTo = p
		} else {
			out[i].ReplyTo = &models.ReplyPreview{ID: *m.ReplyTo, Missing: true}
		}
	}
	return out, nil
}

// viewForPush renders one freshly written message. The write already
// succeeded, so a failing preview lookup degrades to a bare reference.
func (s *Service) viewForPush(ctx context.Context, m *models.Message) *models.MessageView {
	views, err := s.views(ctx, []models.Message{*m})
	if err != nil {
		l := logger.Ctx(ctx)
		l.Warn().Err(err).Str(logger.FieldMessageID, m.ID).Msg("reply preview unavailable")
		v := &models.MessageView{Message: *m}
		if m.ReplyTo != nil {
			v.ReplyTo = &models.ReplyPreview{ID: *m.ReplyTo}
		}
		return v
	}
	return &views[0]
}
