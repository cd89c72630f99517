package handler

import (
	"chatline/backend/internal/auth"
	"chatline/backend/internal/conversation"

	"github.com/gin-gonic/gin"
)

type sendRequest struct {
	Text    string `json:"text"`
	Image   string `json:"image"`
	ReplyTo string `json:"replyTo"`
}

type forwardRequest struct {
	ReceiverID string `json:"receiverId" binding:"required"`
}

type reactRequest struct {
	Emoji string `json:"emoji"`
}

type editRequest struct {
	Text string `json:"text"`
}

func (h *Handler) ListContacts(c *gin.Context) {
	contacts, err := h.conversations.ListContacts(c.Request.Context(), auth.CurrentUser(c).ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, contacts)
}

// GetMessages answers GET /api/messages/:id where id is the peer.
func (h *Handler) GetMessages(c *gin.Context) {
	views, err := h.conversations.GetMessages(c.Request.Context(), auth.CurrentUser(c).ID, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, views)
}

func (h *Handler) SendMessage(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, bindErr(err))
		return
	}
	img, err := decodeImage(req.Image)
	if err != nil {
		h.fail(c, err)
		return
	}
	view, err := h.conversations.SendMessage(c.Request.Context(), auth.CurrentUser(c).ID, c.Param("id"),
		conversation.SendInput{Text: req.Text, Image: img, ReplyTo: req.ReplyTo})
	if err != nil {
		h.fail(c, err)
		return
	}
	created(c, view)
}

// ForwardMessage answers POST /api/messages/forward/:id where id is the
// source message.
func (h *Handler) ForwardMessage(c *gin.Context) {
	var req forwardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, bindErr(err))
		return
	}
	view, err := h.conversations.ForwardMessage(c.Request.Context(), auth.CurrentUser(c).ID, c.Param("id"), req.ReceiverID)
	if err != nil {
		h.fail(c, err)
		return
	}
	created(c, view)
}

// MarkSeen answers PUT /api/messages/seen/:id where id is the peer whose
// messages were read.
func (h *Handler) MarkSeen(c *gin.Context) {
	n, err := h.conversations.MarkSeen(c.Request.Context(), auth.CurrentUser(c).ID, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, gin.H{"updated": n})
}

func (h *Handler) AddReaction(c *gin.Context) {
	var req reactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, bindErr(err))
		return
	}
	reactions, err := h.conversations.AddReaction(c.Request.Context(), auth.CurrentUser(c).ID, c.Param("id"), req.Emoji)
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, reactions)
}

func (h *Handler) EditMessage(c *gin.Context) {
	var req editRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, bindErr(err))
		return
	}
	view, err := h.conversations.EditMessage(c.Request.Context(), auth.CurrentUser(c).ID, c.Param("id"), req.Text)
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, view)
}

func (h *Handler) DeleteMessage(c *gin.Context) {
	if err := h.conversations.DeleteMessage(c.Request.Context(), auth.CurrentUser(c).ID, c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	success(c, gin.H{"messageId": c.Param("id")})
}

// ClearConversation answers DELETE /api/messages/clear/:id where id is the peer.
func (h *Handler) ClearConversation(c *gin.Context) {
	n, err := h.conversations.ClearConversation(c.Request.Context(), auth.CurrentUser(c).ID, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, gin.H{"deleted": n})
}
