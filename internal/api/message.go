package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/hstudio-dev/glasschat/internal/chat"
	"github.com/hstudio-dev/glasschat/internal/middleware"
	"github.com/hstudio-dev/glasschat/internal/repository"
)

// maxUploadBytes caps an attachment before decode; the media host enforces
// its own limit anyway.
const maxUploadBytes = 16 << 20

// MessageHandler serves message history and the REST side of the send
// pipeline. Attachments must come this way since multipart doesn't fit a WS
// frame budget. Text-only sends usually arrive over the session socket.
type MessageHandler struct {
	msgs   repository.MessageStore
	chat   *chat.Service
	logger *zap.Logger
}

func NewMessageHandler(msgs repository.MessageStore, chatSvc *chat.Service, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{msgs: msgs, chat: chatSvc, logger: logger}
}

// List handles GET /v1/conversations/:id/messages: the full ordered
// snapshot, oldest first.
func (h *MessageHandler) List(c *gin.Context) {
	convID, ok := middleware.ConversationAccess(c, c.Param("id"))
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "conversation not accessible"})
		return
	}

	messages, err := h.msgs.List(c.Request.Context(), convID)
	if err != nil {
		h.logger.Error("message list failed", zap.String("conv_id", convID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	c.JSON(http.StatusOK, messages)
}

// Send handles POST /v1/conversations/:id/messages as multipart form data:
// fields text, reply_to, fast (image quality toggle) and an optional image
// file. Image plus caption produces two ordered messages.
func (h *MessageHandler) Send(c *gin.Context) {
	convID, ok := middleware.ConversationAccess(c, c.Param("id"))
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "conversation not accessible"})
		return
	}

	in := chat.SendInput{
		Text:      c.PostForm("text"),
		ReplyToID: c.PostForm("reply_to"),
		FastMode:  c.PostForm("fast") == "1" || c.PostForm("fast") == "true",
	}

	if file, err := c.FormFile("image"); err == nil {
		if file.Size > maxUploadBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image too large"})
			return
		}
		f, err := file.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable image"})
			return
		}
		data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
		f.Close()
		if err != nil || int64(len(data)) > maxUploadBytes {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable image"})
			return
		}
		in.Image = data
	}

	sent, err := h.chat.Send(c.Request.Context(), convID, middleware.GetRole(c), in)
	if errors.Is(err, chat.ErrEmptySend) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message needs text or an image"})
		return
	}
	if err != nil {
		h.logger.Error("send failed", zap.String("conv_id", convID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "message could not be delivered"})
		return
	}
	c.JSON(http.StatusCreated, sent)
}

type editMessageRequest struct {
	Text string `json:"text" binding:"required"`
}

// Edit handles PATCH /v1/conversations/:id/messages/:mid.
func (h *MessageHandler) Edit(c *gin.Context) {
	convID, ok := middleware.ConversationAccess(c, c.Param("id"))
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "conversation not accessible"})
		return
	}
	var req editMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.chat.Edit(c.Request.Context(), convID, c.Param("mid"), middleware.GetRole(c), req.Text)
	switch {
	case errors.Is(err, chat.ErrNotAuthor):
		c.JSON(http.StatusForbidden, gin.H{"error": "only the author may edit a message"})
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
	case err != nil:
		h.logger.Error("edit failed", zap.String("conv_id", convID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "edit failed"})
	default:
		c.Status(http.StatusNoContent)
	}
}

// Delete handles DELETE /v1/conversations/:id/messages/:mid. Admin only.
func (h *MessageHandler) Delete(c *gin.Context) {
	convID := c.Param("id")
	if err := h.chat.Delete(c.Request.Context(), convID, c.Param("mid")); err != nil {
		h.logger.Error("delete failed", zap.String("conv_id", convID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

// Clear handles DELETE /v1/conversations/:id/messages. Admin only.
func (h *MessageHandler) Clear(c *gin.Context) {
	convID := c.Param("id")
	if err := h.chat.Clear(c.Request.Context(), convID); err != nil {
		h.logger.Error("clear failed", zap.String("conv_id", convID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "clear history failed"})
		return
	}
	c.Status(http.StatusNoContent)
}
