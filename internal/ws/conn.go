package ws

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeTimeout   = 10 * time.Second
	maxMessageSize = 512 * 1024
)

// Conn wraps a gorilla websocket connection with write deadlines, a read
// limit and context-based teardown.
type Conn struct {
	*websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
}

func NewConn(parent context.Context, conn *websocket.Conn, logger *zap.Logger) *Conn {
	ctx, cancel := context.WithCancel(parent)
	return &Conn{Conn: conn, ctx: ctx, cancel: cancel, logger: logger}
}

func (c *Conn) WriteText(data []byte) error {
	c.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.Conn.WriteMessage(websocket.TextMessage, data)
}

// ReadLoop pumps inbound frames to onMsg until the connection drops. It owns
// connection cleanup; callers just return when it does.
func (c *Conn) ReadLoop(onMsg func([]byte)) {
	defer c.Close()

	c.Conn.SetReadLimit(maxMessageSize)

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Debug("unexpected websocket close", zap.Error(err))
			}
			return
		}
		if len(data) > 0 {
			onMsg(data)
		}
	}
}

func (c *Conn) Done() <-chan struct{} {
	return c.ctx.Done()
}

func (c *Conn) Close() {
	c.cancel()
	_ = c.Conn.Close()
}
