package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

// Client serializes outbound traffic for one connection through a buffered
// channel and a single write pump, so snapshot fan-out never interleaves
// partial frames.
type Client struct {
	ctx    context.Context
	cancel context.CancelFunc
	conn   *Conn
	out    chan []byte
	once   sync.Once
}

func NewClient(parent context.Context, conn *Conn) *Client {
	ctx, cancel := context.WithCancel(parent)
	c := &Client{
		ctx:    ctx,
		cancel: cancel,
		conn:   conn,
		out:    make(chan []byte, 256),
	}
	go c.writeLoop()
	return c
}

// Send queues one outbound frame. Returns an error only when the client is
// already closed.
func (c *Client) Send(data []byte) error {
	select {
	case c.out <- data:
		return nil
	case <-c.ctx.Done():
		return errors.New("client closed")
	}
}

// SendJSON marshals and queues an outbound payload.
func (c *Client) SendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Send(data)
}

func (c *Client) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Close tears the connection down. The out channel is never closed;
// concurrent Sends race against cancellation and must not panic.
func (c *Client) Close() {
	c.once.Do(func() {
		c.cancel()
		c.conn.Close()
	})
}

func (c *Client) writeLoop() {
	defer c.Close()
	for {
		select {
		case <-c.ctx.Done():
			return
		case data := <-c.out:
			_ = c.conn.WriteText(data)
		}
	}
}
