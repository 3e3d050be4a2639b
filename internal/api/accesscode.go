package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/hstudio-dev/glasschat/internal/bus"
	"github.com/hstudio-dev/glasschat/internal/models"
	"github.com/hstudio-dev/glasschat/internal/repository"
)

// AccessCodeHandler is the admin-only registry CRUD. Every mutation also
// publishes a registry event so live admin sessions re-render, and deletions
// carry the dead id so a dangling active selection gets dropped.
type AccessCodeHandler struct {
	codes  repository.AccessCodeStore
	convs  repository.ConversationStore
	bus    bus.Bus
	logger *zap.Logger
}

func NewAccessCodeHandler(
	codes repository.AccessCodeStore,
	convs repository.ConversationStore,
	b bus.Bus,
	logger *zap.Logger,
) *AccessCodeHandler {
	return &AccessCodeHandler{codes: codes, convs: convs, bus: b, logger: logger}
}

type createCodeRequest struct {
	ID          string  `json:"id" binding:"required"`
	ExpiryHours int     `json:"expiry_hours" binding:"gte=0"`
	Name        *string `json:"name"`
}

// Create handles POST /v1/codes. Provisioning a code also seeds the
// conversation document, the way the original provisioning always has.
func (h *AccessCodeHandler) Create(c *gin.Context) {
	var req createCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id := strings.TrimSpace(req.ID)
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code id must not be blank"})
		return
	}

	now := time.Now().UnixMilli()
	code := &models.AccessCode{
		ID:        id,
		Status:    models.CodeStatusActive,
		Type:      models.CodeTypePermanent,
		CreatedAt: now,
		Name:      req.Name,
	}
	if req.ExpiryHours > 0 {
		expires := now + int64(req.ExpiryHours)*time.Hour.Milliseconds()
		code.Type = models.CodeTypeTemporary
		code.ExpiresAt = &expires
	}

	ctx := c.Request.Context()
	if err := h.codes.Create(ctx, code); err != nil {
		h.logger.Error("code create failed", zap.String("code", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create code"})
		return
	}
	if err := h.convs.Ensure(ctx, id); err != nil {
		h.logger.Error("conversation seed failed", zap.String("code", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to seed conversation"})
		return
	}

	h.notify(ctx, "")
	c.JSON(http.StatusCreated, code)
}

// List handles GET /v1/codes.
func (h *AccessCodeHandler) List(c *gin.Context) {
	codes, err := h.codes.List(c.Request.Context())
	if err != nil {
		h.logger.Error("code list failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list codes"})
		return
	}
	c.JSON(http.StatusOK, codes)
}

type setStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=active blocked"`
}

// SetStatus handles PATCH /v1/codes/:id, the block/unblock toggle.
func (h *AccessCodeHandler) SetStatus(c *gin.Context) {
	var req setStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id := c.Param("id")

	ctx := c.Request.Context()
	if err := h.codes.SetStatus(ctx, id, req.Status); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown code"})
			return
		}
		h.logger.Error("code status update failed", zap.String("code", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update code"})
		return
	}

	// Blocking the open conversation behaves like deleting it for watchers:
	// the admin selection clears and further user sends fail validation.
	deleted := ""
	if req.Status == models.CodeStatusBlocked {
		deleted = id
	}
	h.notify(ctx, deleted)
	c.JSON(http.StatusOK, gin.H{"id": id, "status": req.Status})
}

// Delete handles DELETE /v1/codes/:id. The conversation document is removed
// with its code; message history is deliberately orphaned, not cascaded.
func (h *AccessCodeHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	if err := h.codes.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown code"})
			return
		}
		h.logger.Error("code delete failed", zap.String("code", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete code"})
		return
	}
	if err := h.convs.Delete(ctx, id); err != nil {
		h.logger.Warn("conversation delete failed", zap.String("code", id), zap.Error(err))
	}

	h.notify(ctx, id)
	c.Status(http.StatusNoContent)
}

// Cleanup handles POST /v1/codes/cleanup, deleting every expired code.
func (h *AccessCodeHandler) Cleanup(c *gin.Context) {
	ctx := c.Request.Context()
	deleted, err := h.codes.DeleteExpired(ctx, time.Now().UnixMilli())
	if err != nil {
		h.logger.Error("code cleanup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cleanup failed"})
		return
	}
	for _, id := range deleted {
		if err := h.convs.Delete(ctx, id); err != nil {
			h.logger.Warn("conversation delete failed", zap.String("code", id), zap.Error(err))
		}
		h.notify(ctx, id)
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

func (h *AccessCodeHandler) notify(ctx context.Context, deletedID string) {
	if err := h.bus.Publish(ctx, bus.CodesTopic, bus.Event{
		Type:      bus.EventCodes,
		DeletedID: deletedID,
	}); err != nil {
		h.logger.Warn("codes notify failed", zap.Error(err))
	}
}
