package presence

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hstudio-dev/glasschat/internal/bus"
	"github.com/hstudio-dev/glasschat/internal/models"
	"github.com/hstudio-dev/glasschat/internal/repository"
)

// Engine publishes presence and typing state into conversation documents.
// All writes are fire-and-forget: presence is best-effort by contract and
// must never block or fail a session, so errors are logged and swallowed.
type Engine struct {
	convs  repository.ConversationStore
	bus    bus.Bus
	logger *zap.Logger
}

func NewEngine(convs repository.ConversationStore, b bus.Bus, logger *zap.Logger) *Engine {
	return &Engine{convs: convs, bus: b, logger: logger}
}

// Publisher owns one session's presence output for one conversation. Ghost
// mode lives here, per session rather than process-wide, so concurrent admin
// windows cannot interfere with each other's stealth setting.
type Publisher struct {
	engine *Engine
	convID string
	role   models.Role

	mu     sync.Mutex
	ghost  bool
	online bool
	typing bool
}

// Publisher creates the per-session publisher for a conversation. It does not
// publish anything yet; callers announce themselves with Online.
func (e *Engine) Publisher(convID string, role models.Role) *Publisher {
	return &Publisher{engine: e, convID: convID, role: role}
}

// Online merge-writes {<role>Online: true}, unless ghost mode suppresses it.
func (p *Publisher) Online(ctx context.Context) {
	p.mu.Lock()
	p.online = true
	ghost := p.ghost
	p.mu.Unlock()

	p.write(ctx, map[string]any{
		string(p.role) + "Online": !ghost,
	})
}

// Offline merge-writes {<role>Online: false, <role>LastSeen: now}. It fires
// on disconnect and conversation switch. Under ghost mode the LastSeen stamp
// is withheld; a stealth session's disconnect instant stays private.
func (p *Publisher) Offline(ctx context.Context) {
	p.mu.Lock()
	p.online = false
	p.typing = false
	ghost := p.ghost
	p.mu.Unlock()

	fields := map[string]any{
		string(p.role) + "Online": false,
		string(p.role) + "Typing": false,
	}
	if !ghost {
		fields[string(p.role)+"LastSeen"] = time.Now().UnixMilli()
	}
	p.write(ctx, fields)
}

// Typing merge-writes the typing flag. Called on every compose change and
// forced to false right before a send and on blur.
func (p *Publisher) Typing(ctx context.Context, isTyping bool) {
	p.mu.Lock()
	p.typing = isTyping
	ghost := p.ghost
	p.mu.Unlock()

	p.write(ctx, map[string]any{
		string(p.role) + "Typing": isTyping && !ghost,
	})
}

// SetGhost toggles stealth suppression. Turning it on force-writes both
// flags false regardless of real state; turning it off republishes the real
// values, so the other side sees the session reappear.
func (p *Publisher) SetGhost(ctx context.Context, on bool) {
	p.mu.Lock()
	p.ghost = on
	online, typing := p.online, p.typing
	p.mu.Unlock()

	if on {
		p.write(ctx, map[string]any{
			string(p.role) + "Online": false,
			string(p.role) + "Typing": false,
		})
		return
	}
	p.write(ctx, map[string]any{
		string(p.role) + "Online": online,
		string(p.role) + "Typing": typing,
	})
}

// Ghost reports the current suppression state.
func (p *Publisher) Ghost() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ghost
}

func (p *Publisher) write(ctx context.Context, fields map[string]any) {
	if err := p.engine.convs.Merge(ctx, p.convID, fields); err != nil {
		p.engine.logger.Warn("presence write failed",
			zap.String("conv_id", p.convID),
			zap.String("role", string(p.role)),
			zap.Error(err))
		return
	}
	if err := p.engine.bus.Publish(ctx, bus.ConvTopic(p.convID), bus.Event{
		Type:   bus.EventConversation,
		ConvID: p.convID,
	}); err != nil {
		p.engine.logger.Warn("presence notify failed",
			zap.String("conv_id", p.convID),
			zap.Error(err))
	}
}
