package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hstudio-dev/glasschat/internal/middleware"
	"github.com/hstudio-dev/glasschat/internal/session"
	"github.com/hstudio-dev/glasschat/internal/ws"
)

// WSHandler upgrades authenticated clients onto the realtime session. The
// token arrives as a ?token= query param since browsers cannot set headers on
// a websocket dial.
type WSHandler struct {
	deps     session.Deps
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewWSHandler(deps session.Deps, logger *zap.Logger) *WSHandler {
	return &WSHandler{
		deps: deps,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The token is the access control; origin allowlisting belongs to
			// the reverse proxy in front.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Serve handles GET /v1/ws.
func (h *WSHandler) Serve(c *gin.Context) {
	role := middleware.GetRole(c)
	convID := middleware.GetConversationID(c)

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	ctx := c.Request.Context()
	conn := ws.NewConn(ctx, raw, h.logger)
	client := ws.NewClient(ctx, conn)
	defer client.Close()

	sess := session.New(h.deps, client, role)
	defer sess.Close(ctx)

	if err := sess.Start(ctx, convID); err != nil {
		h.logger.Error("session start failed",
			zap.String("conv_id", convID), zap.Error(err))
		return
	}

	conn.ReadLoop(func(data []byte) {
		sess.HandleEvent(ctx, data)
	})
}
