package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/hstudio-dev/glasschat/internal/bus"
	"github.com/hstudio-dev/glasschat/internal/call"
	"github.com/hstudio-dev/glasschat/internal/chat"
	"github.com/hstudio-dev/glasschat/internal/delivery"
	"github.com/hstudio-dev/glasschat/internal/models"
	"github.com/hstudio-dev/glasschat/internal/presence"
	"github.com/hstudio-dev/glasschat/internal/repository"
)

// Sink is where the session pushes server events. Satisfied by ws.Client.
type Sink interface {
	SendJSON(v any) error
}

// resubscribeDelay paces reconnect attempts after a dropped store stream.
var resubscribeDelay = 2 * time.Second

// Deps bundles everything a session needs. One Deps value is built at
// startup and shared by every session.
type Deps struct {
	Convs    repository.ConversationStore
	Msgs     repository.MessageStore
	Codes    repository.AccessCodeStore
	Bus      bus.Bus
	Presence *presence.Engine
	Delivery *delivery.Engine
	Calls    *call.Coordinator
	Chat     *chat.Service
	Logger   *zap.Logger
}

// Session is one connected client. It owns the per-session policy state
// (focus, ghost mode, hide receipts), the live subscription for the active
// conversation, and the previous-message counter that gates notifications.
// All of that state is deliberately session-scoped rather than process-wide,
// so multiple concurrent windows never interfere.
type Session struct {
	deps   Deps
	client Sink
	role   models.Role
	logger *zap.Logger

	mu           sync.Mutex
	convID       string
	focused      bool
	hideReceipts bool
	ghost        bool
	prevCount    int
	pub          *presence.Publisher
	watchCancel  context.CancelFunc

	codesCancel context.CancelFunc
}

func New(deps Deps, client Sink, role models.Role) *Session {
	return &Session{
		deps:    deps,
		client:  client,
		role:    role,
		focused: true,
		logger:  deps.Logger.With(zap.String("role", string(role))),
	}
}

// Start opens the initial conversation (end-users are pinned to theirs;
// admins may start unselected) and, for admins, begins watching the code
// registry.
func (s *Session) Start(ctx context.Context, convID string) error {
	if s.role == models.RoleAdmin {
		if err := s.watchCodes(ctx); err != nil {
			return err
		}
		if convID == "" {
			return nil
		}
	}
	return s.open(ctx, convID)
}

// Close tears the session down: presence goes offline, subscriptions close.
func (s *Session) Close(ctx context.Context) {
	s.leave(ctx)
	s.mu.Lock()
	cancel := s.codesCancel
	s.codesCancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// HandleEvent dispatches one inbound frame. Malformed frames and rejected
// operations come back as error events rather than closing the connection.
func (s *Session) HandleEvent(ctx context.Context, data []byte) {
	var ev ClientEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		s.pushError("malformed event")
		return
	}

	ctx, span := otel.Tracer("glasschat/session").Start(ctx, "session.HandleEvent",
		trace.WithAttributes(
			attribute.String("event.type", ev.Type),
			attribute.String("session.role", string(s.role)),
		))
	defer span.End()

	switch ev.Type {
	case EventFocus:
		s.handleFocus(ctx, ev.Focused)
	case EventTyping:
		s.handleTyping(ctx, ev.Typing)
	case EventSend:
		s.handleSend(ctx, ev)
	case EventEdit:
		s.handleEdit(ctx, ev)
	case EventDelete:
		s.handleDelete(ctx, ev.MessageID)
	case EventClear:
		s.handleClear(ctx)
	case EventCallInitiate:
		s.handleCallInitiate(ctx)
	case EventCallAccept:
		s.handleCallTransition(ctx, s.deps.Calls.Accept)
	case EventCallReject:
		s.handleCallTransition(ctx, s.deps.Calls.Reject)
	case EventCallHangup:
		s.handleCallHangup(ctx)
	case EventGhost:
		s.handleGhost(ctx, ev.On)
	case EventHideReceipts:
		s.handleHideReceipts(ev.On)
	case EventProfile:
		s.handleProfile(ctx, ev.Profile)
	case EventSwitch:
		s.handleSwitch(ctx, ev.ConvID)
	default:
		s.pushError("unknown event type")
	}
}

// ---------------------------------------------------------------
// Conversation lifecycle
// ---------------------------------------------------------------

// open switches the active conversation. The previous conversation's
// listeners are torn down and its counters reset before the new subscription
// starts, so a backlog snapshot can never fire a stale notification.
func (s *Session) open(ctx context.Context, convID string) error {
	s.leave(ctx)

	if err := s.deps.Convs.Ensure(ctx, convID); err != nil {
		return err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	sub, err := s.deps.Bus.Subscribe(watchCtx, bus.ConvTopic(convID))
	if err != nil {
		cancel()
		return err
	}

	s.mu.Lock()
	s.convID = convID
	s.prevCount = 0
	s.watchCancel = cancel
	s.pub = s.deps.Presence.Publisher(convID, s.role)
	ghost := s.ghost
	pub := s.pub
	s.mu.Unlock()

	if ghost {
		pub.SetGhost(ctx, true)
	} else {
		pub.Online(ctx)
	}

	go s.watchConversation(watchCtx, convID, sub)

	// Initial snapshots so the client renders without waiting for a change.
	s.pushConversation(ctx, convID)
	s.pushMessages(ctx, convID)
	return nil
}

func (s *Session) leave(ctx context.Context) {
	s.mu.Lock()
	pub := s.pub
	cancel := s.watchCancel
	s.pub = nil
	s.watchCancel = nil
	s.convID = ""
	s.prevCount = 0
	s.mu.Unlock()

	if pub != nil {
		pub.Offline(ctx)
	}
	if cancel != nil {
		cancel()
	}
}

// watchConversation forwards store change notifications as snapshots. A
// dropped stream surfaces as a non-blocking "connection lost" error event and
// the watcher resubscribes until the session ends; the next good snapshot
// implicitly clears the banner client-side.
func (s *Session) watchConversation(ctx context.Context, convID string, sub bus.Subscription) {
	// Closure so a resubscribed replacement is the one torn down on exit.
	defer func() { _ = sub.Close() }()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub.Events():
			if !ok {
				s.pushError("connection lost")
				next, err := s.resubscribe(ctx, bus.ConvTopic(convID))
				if err != nil {
					return
				}
				_ = sub.Close()
				sub = next
				// Re-sync: anything missed during the gap is covered by a
				// fresh snapshot pair.
				s.pushConversation(ctx, convID)
				s.pushMessages(ctx, convID)
				continue
			}
			switch event.Type {
			case bus.EventConversation:
				s.pushConversation(ctx, convID)
			case bus.EventMessages:
				s.pushMessages(ctx, convID)
			}
		}
	}
}

func (s *Session) resubscribe(ctx context.Context, topic string) (bus.Subscription, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(resubscribeDelay):
		}
		sub, err := s.deps.Bus.Subscribe(ctx, topic)
		if err == nil {
			return sub, nil
		}
		s.logger.Warn("resubscribe failed", zap.String("topic", topic), zap.Error(err))
	}
}

// watchCodes keeps admin sessions current on the registry. When the code
// owning the currently open conversation is deleted, the selection is
// dropped so the session holds no dangling reference.
func (s *Session) watchCodes(ctx context.Context) error {
	watchCtx, cancel := context.WithCancel(ctx)
	sub, err := s.deps.Bus.Subscribe(watchCtx, bus.CodesTopic)
	if err != nil {
		cancel()
		return err
	}

	s.mu.Lock()
	s.codesCancel = cancel
	s.mu.Unlock()

	go func() {
		defer func() { _ = sub.Close() }()
		s.pushCodes(watchCtx, "")
		for {
			select {
			case <-watchCtx.Done():
				return
			case event, ok := <-sub.Events():
				if !ok {
					s.pushError("connection lost")
					next, err := s.resubscribe(watchCtx, bus.CodesTopic)
					if err != nil {
						return
					}
					_ = sub.Close()
					sub = next
					s.pushCodes(watchCtx, "")
					continue
				}
				if event.DeletedID != "" && event.DeletedID == s.currentConv() {
					s.leave(watchCtx)
				}
				s.pushCodes(watchCtx, event.DeletedID)
			}
		}
	}()
	return nil
}

// ---------------------------------------------------------------
// Event handlers
// ---------------------------------------------------------------

func (s *Session) handleFocus(ctx context.Context, focused bool) {
	s.mu.Lock()
	s.focused = focused
	pub := s.pub
	convID := s.convID
	s.mu.Unlock()

	if pub == nil {
		return
	}
	if focused {
		pub.Online(ctx)
		// Regaining focus is itself an observation: anything delivered
		// while blurred advances to seen now.
		s.pushMessages(ctx, convID)
	} else {
		pub.Offline(ctx)
	}
}

func (s *Session) handleTyping(ctx context.Context, typing bool) {
	s.mu.Lock()
	pub := s.pub
	s.mu.Unlock()
	if pub != nil {
		pub.Typing(ctx, typing)
	}
}

func (s *Session) handleSend(ctx context.Context, ev ClientEvent) {
	convID := s.currentConv()
	if convID == "" {
		s.pushError("no conversation selected")
		return
	}
	if s.role == models.RoleUser {
		if err := s.checkCodeUsable(ctx, convID); err != nil {
			s.pushError("access code no longer valid, please sign in again")
			return
		}
	}

	_, err := s.deps.Chat.Send(ctx, convID, s.role, chat.SendInput{
		Text:      ev.Text,
		ReplyToID: ev.ReplyToID,
	})
	if errors.Is(err, chat.ErrEmptySend) {
		s.pushError("message needs text or an image")
		return
	}
	if err != nil {
		s.logger.Error("send failed", zap.String("conv_id", convID), zap.Error(err))
		s.pushError("message could not be delivered")
	}
}

func (s *Session) handleEdit(ctx context.Context, ev ClientEvent) {
	convID := s.currentConv()
	if convID == "" || ev.MessageID == "" {
		s.pushError("nothing to edit")
		return
	}
	err := s.deps.Chat.Edit(ctx, convID, ev.MessageID, s.role, ev.Text)
	switch {
	case errors.Is(err, chat.ErrNotAuthor):
		s.pushError("only the author may edit a message")
	case errors.Is(err, repository.ErrNotFound):
		s.pushError("message no longer exists")
	case err != nil:
		s.logger.Error("edit failed", zap.String("conv_id", convID), zap.Error(err))
		s.pushError("edit failed")
	}
}

func (s *Session) handleDelete(ctx context.Context, msgID string) {
	if s.role != models.RoleAdmin {
		s.pushError("administrator access required")
		return
	}
	convID := s.currentConv()
	if convID == "" || msgID == "" {
		return
	}
	if err := s.deps.Chat.Delete(ctx, convID, msgID); err != nil {
		s.logger.Error("delete failed", zap.String("conv_id", convID), zap.Error(err))
		s.pushError("delete failed")
	}
}

func (s *Session) handleClear(ctx context.Context) {
	if s.role != models.RoleAdmin {
		s.pushError("administrator access required")
		return
	}
	convID := s.currentConv()
	if convID == "" {
		return
	}
	if err := s.deps.Chat.Clear(ctx, convID); err != nil {
		s.logger.Error("clear failed", zap.String("conv_id", convID), zap.Error(err))
		s.pushError("clear history failed")
	}
}

func (s *Session) handleCallInitiate(ctx context.Context) {
	convID := s.currentConv()
	if convID == "" {
		s.pushError("no conversation selected")
		return
	}
	session, err := s.deps.Calls.Initiate(ctx, convID, s.role)
	if errors.Is(err, repository.ErrCallActive) {
		s.pushError("a call is already active")
		return
	}
	if err != nil {
		s.logger.Error("call initiate failed", zap.String("conv_id", convID), zap.Error(err))
		s.pushError("could not start the call")
		return
	}
	_ = s.client.SendJSON(ServerEvent{Type: PushCall, Call: session})
}

func (s *Session) handleCallTransition(ctx context.Context, transition func(context.Context, string, models.Role) error) {
	convID := s.currentConv()
	if convID == "" {
		return
	}
	err := transition(ctx, convID, s.role)
	if errors.Is(err, repository.ErrCallState) {
		s.pushError("call is not ringing")
		return
	}
	if err != nil {
		s.logger.Error("call transition failed", zap.String("conv_id", convID), zap.Error(err))
		s.pushError("call signaling failed")
	}
}

func (s *Session) handleCallHangup(ctx context.Context) {
	convID := s.currentConv()
	if convID == "" {
		return
	}
	if err := s.deps.Calls.Hangup(ctx, convID); err != nil {
		s.logger.Error("hangup failed", zap.String("conv_id", convID), zap.Error(err))
		s.pushError("call signaling failed")
	}
}

func (s *Session) handleGhost(ctx context.Context, on bool) {
	if s.role != models.RoleAdmin {
		s.pushError("administrator access required")
		return
	}
	s.mu.Lock()
	s.ghost = on
	pub := s.pub
	s.mu.Unlock()
	if pub != nil {
		pub.SetGhost(ctx, on)
	}
}

func (s *Session) handleHideReceipts(on bool) {
	s.mu.Lock()
	s.hideReceipts = on
	s.mu.Unlock()
}

func (s *Session) handleProfile(ctx context.Context, profile *models.UserProfile) {
	if s.role != models.RoleUser {
		s.pushError("only the user side owns the profile")
		return
	}
	convID := s.currentConv()
	if convID == "" || profile == nil {
		return
	}
	if err := s.deps.Convs.Merge(ctx, convID, map[string]any{"userProfile": profile}); err != nil {
		s.logger.Warn("profile update failed", zap.String("conv_id", convID), zap.Error(err))
		s.pushError("profile update failed")
		return
	}
	if err := s.deps.Bus.Publish(ctx, bus.ConvTopic(convID), bus.Event{
		Type: bus.EventConversation, ConvID: convID,
	}); err != nil {
		s.logger.Warn("profile notify failed", zap.String("conv_id", convID), zap.Error(err))
	}
}

func (s *Session) handleSwitch(ctx context.Context, convID string) {
	if s.role != models.RoleAdmin {
		s.pushError("administrator access required")
		return
	}
	if convID == "" {
		s.leave(ctx)
		return
	}
	code, err := s.deps.Codes.Get(ctx, convID)
	if err != nil {
		s.logger.Error("switch lookup failed", zap.String("conv_id", convID), zap.Error(err))
		s.pushError("could not open conversation")
		return
	}
	if code == nil {
		s.pushError("unknown access code")
		return
	}
	if err := s.open(ctx, convID); err != nil {
		s.logger.Error("switch failed", zap.String("conv_id", convID), zap.Error(err))
		s.pushError("could not open conversation")
	}
}

// ---------------------------------------------------------------
// Snapshot delivery
// ---------------------------------------------------------------

func (s *Session) pushConversation(ctx context.Context, convID string) {
	conv, err := s.deps.Convs.Get(ctx, convID)
	if err != nil {
		s.logger.Warn("conversation snapshot failed",
			zap.String("conv_id", convID), zap.Error(err))
		return
	}
	_ = s.client.SendJSON(ServerEvent{Type: PushConversation, Conversation: conv})
}

func (s *Session) pushMessages(ctx context.Context, convID string) {
	messages, err := s.deps.Msgs.List(ctx, convID)
	if err != nil {
		s.logger.Warn("message snapshot failed",
			zap.String("conv_id", convID), zap.Error(err))
		return
	}

	s.mu.Lock()
	if s.convID != convID {
		// Raced with a conversation switch; this snapshot belongs to the
		// old subscription and must not leak into the new selection.
		s.mu.Unlock()
		return
	}
	prev := s.prevCount
	s.prevCount = len(messages)
	focused := s.focused
	hideReceipts := s.hideReceipts
	s.mu.Unlock()

	// Notification gate: only a growth beyond a non-zero baseline, ending in
	// a message from the other side, counts as "new message"; the backlog
	// right after opening never does.
	notify := false
	if prev != 0 && len(messages) > prev {
		last := messages[len(messages)-1]
		notify = last.Sender == s.role.Opposite()
	}

	localRead := s.deps.Delivery.Advance(ctx, delivery.Observation{
		ConvID:       convID,
		Role:         s.role,
		Focused:      focused,
		HideReceipts: hideReceipts,
	}, messages)

	_ = s.client.SendJSON(ServerEvent{
		Type:      PushMessages,
		Messages:  messages,
		Notify:    notify,
		LocalRead: localRead,
	})
}

func (s *Session) pushCodes(ctx context.Context, deletedID string) {
	codes, err := s.deps.Codes.List(ctx)
	if err != nil {
		s.logger.Warn("codes snapshot failed", zap.Error(err))
		return
	}
	_ = s.client.SendJSON(ServerEvent{Type: PushCodes, Codes: codes, DeletedID: deletedID})
}

// ---------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------

func (s *Session) currentConv() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.convID
}

func (s *Session) checkCodeUsable(ctx context.Context, convID string) error {
	code, err := s.deps.Codes.Get(ctx, convID)
	if err != nil {
		return err
	}
	if code == nil || !code.Usable(time.Now().UnixMilli()) {
		return repository.ErrNotFound
	}
	return nil
}

func (s *Session) pushError(msg string) {
	_ = s.client.SendJSON(ServerEvent{Type: PushError, Error: msg})
}
