package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/hstudio-dev/glasschat/internal/chat"
	"github.com/hstudio-dev/glasschat/internal/middleware"
	"github.com/hstudio-dev/glasschat/internal/suggest"
)

// transcriptTail is how many recent messages feed the suggestion prompt.
const transcriptTail = 20

// SuggestHandler serves quick-reply suggestions for the admin compose bar.
type SuggestHandler struct {
	chat    *chat.Service
	suggest *suggest.Client
	logger  *zap.Logger
}

func NewSuggestHandler(chatSvc *chat.Service, client *suggest.Client, logger *zap.Logger) *SuggestHandler {
	return &SuggestHandler{chat: chatSvc, suggest: client, logger: logger}
}

// Replies handles POST /v1/conversations/:id/suggest. Always answers 200
// with three replies; degraded backends fall back to canned ones.
func (h *SuggestHandler) Replies(c *gin.Context) {
	convID, ok := middleware.ConversationAccess(c, c.Param("id"))
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "conversation not accessible"})
		return
	}

	transcript, err := h.chat.Transcript(c.Request.Context(), convID, transcriptTail)
	if err != nil {
		h.logger.Warn("transcript load failed, suggesting from empty context",
			zap.String("conv_id", convID), zap.Error(err))
		transcript = ""
	}

	c.JSON(http.StatusOK, gin.H{"replies": h.suggest.Suggest(c.Request.Context(), transcript)})
}
