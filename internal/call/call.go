package call

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hstudio-dev/glasschat/internal/bus"
	"github.com/hstudio-dev/glasschat/internal/models"
	"github.com/hstudio-dev/glasschat/internal/repository"
)

// DefaultRingTimeout bounds how long an unanswered call keeps ringing before
// the coordinator abandons it.
const DefaultRingTimeout = 45 * time.Second

// Coordinator drives the shared call-signaling state machine embedded in the
// conversation document: idle -> ringing -> in-progress | rejected -> idle.
// It decides only when each side mounts or unmounts its media view; SDP/ICE
// and the media path belong to the external signaling broker.
//
// On ring timeout the coordinator clears the shared activeCall field, not
// just local state, so the callee's incoming-call prompt cannot hang forever
// on an abandoned attempt.
type Coordinator struct {
	convs       repository.ConversationStore
	bus         bus.Bus
	logger      *zap.Logger
	ringTimeout time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewCoordinator(convs repository.ConversationStore, b bus.Bus, ringTimeout time.Duration, logger *zap.Logger) *Coordinator {
	if ringTimeout <= 0 {
		ringTimeout = DefaultRingTimeout
	}
	return &Coordinator{
		convs:       convs,
		bus:         b,
		logger:      logger,
		ringTimeout: ringTimeout,
		timers:      make(map[string]*time.Timer),
	}
}

// NewRoomID generates the opaque correlation token for one call attempt. A
// fresh token per attempt keeps the signaling broker from pairing a new call
// with a stale prior session.
func NewRoomID() string {
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}

// PeerID is the identifier a side registers under with the signaling broker.
// The naming convention is part of the external interface.
func PeerID(roomID string, role models.Role) string {
	return roomID + "-" + string(role)
}

// CounterpartID is the identifier of the opposite side, computed by flipping
// the role.
func CounterpartID(roomID string, role models.Role) string {
	return PeerID(roomID, role.Opposite())
}

// Initiate writes a fresh ringing session. The write is a compare-and-swap:
// it only succeeds while no call is ringing or in progress, so of two sides
// dialing simultaneously exactly one wins and the loser gets
// repository.ErrCallActive.
func (c *Coordinator) Initiate(ctx context.Context, convID string, caller models.Role) (*models.CallSession, error) {
	session := models.CallSession{
		Caller: caller,
		Status: models.CallRinging,
		RoomID: NewRoomID(),
	}
	if err := c.convs.BeginCall(ctx, convID, session); err != nil {
		return nil, err
	}

	c.armRingTimer(convID, session.RoomID)
	c.notify(ctx, convID)

	c.logger.Info("call initiated",
		zap.String("conv_id", convID),
		zap.String("caller", string(caller)),
		zap.String("room_id", session.RoomID))
	return &session, nil
}

// Accept moves a ringing call to in-progress. Only the callee may accept.
func (c *Coordinator) Accept(ctx context.Context, convID string, role models.Role) error {
	if err := c.checkCallee(ctx, convID, role); err != nil {
		return err
	}
	if err := c.convs.SetCallStatus(ctx, convID, models.CallRinging, models.CallInProgress); err != nil {
		return err
	}
	c.disarmRingTimer(convID)
	c.notify(ctx, convID)
	return nil
}

// Reject declines a ringing call. Only the callee may reject; the caller's
// watcher must treat the rejected state as "tear down, do not redial".
func (c *Coordinator) Reject(ctx context.Context, convID string, role models.Role) error {
	if err := c.checkCallee(ctx, convID, role); err != nil {
		return err
	}
	if err := c.convs.SetCallStatus(ctx, convID, models.CallRinging, models.CallRejected); err != nil {
		return err
	}
	c.disarmRingTimer(convID)
	c.notify(ctx, convID)
	return nil
}

// Hangup returns the conversation to idle from either side, whether the call
// was still ringing or already in progress. Idempotent.
func (c *Coordinator) Hangup(ctx context.Context, convID string) error {
	if err := c.convs.ClearCall(ctx, convID); err != nil {
		return err
	}
	c.disarmRingTimer(convID)
	c.notify(ctx, convID)
	return nil
}

// Close cancels every outstanding ring timer. Used at shutdown.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for convID, timer := range c.timers {
		timer.Stop()
		delete(c.timers, convID)
	}
}

// checkCallee verifies that a ringing session exists and that the acting
// role is not the caller. The store's conditional update still guards the
// actual transition; this check only produces a better error for the common
// misuse.
func (c *Coordinator) checkCallee(ctx context.Context, convID string, role models.Role) error {
	conv, err := c.convs.Get(ctx, convID)
	if err != nil {
		return err
	}
	if conv.ActiveCall == nil || conv.ActiveCall.Status != models.CallRinging {
		return repository.ErrCallState
	}
	if conv.ActiveCall.Caller == role {
		return fmt.Errorf("caller cannot answer its own call: %w", repository.ErrCallState)
	}
	return nil
}

func (c *Coordinator) armRingTimer(convID, roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.timers[convID]; ok {
		prev.Stop()
	}
	c.timers[convID] = time.AfterFunc(c.ringTimeout, func() {
		c.ringTimedOut(convID, roomID)
	})
}

func (c *Coordinator) disarmRingTimer(convID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if timer, ok := c.timers[convID]; ok {
		timer.Stop()
		delete(c.timers, convID)
	}
}

func (c *Coordinator) ringTimedOut(convID, roomID string) {
	c.mu.Lock()
	delete(c.timers, convID)
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Only clear if the attempt that armed this timer is still the one
	// ringing; an accept or a newer attempt must not be torn down.
	conv, err := c.convs.Get(ctx, convID)
	if err != nil {
		c.logger.Warn("ring timeout read failed",
			zap.String("conv_id", convID), zap.Error(err))
		return
	}
	if conv.ActiveCall == nil ||
		conv.ActiveCall.Status != models.CallRinging ||
		conv.ActiveCall.RoomID != roomID {
		return
	}
	if err := c.convs.ClearCall(ctx, convID); err != nil {
		c.logger.Warn("ring timeout clear failed",
			zap.String("conv_id", convID), zap.Error(err))
		return
	}
	c.notify(ctx, convID)
	c.logger.Info("call ring timed out",
		zap.String("conv_id", convID), zap.String("room_id", roomID))
}

func (c *Coordinator) notify(ctx context.Context, convID string) {
	if err := c.bus.Publish(ctx, bus.ConvTopic(convID), bus.Event{
		Type:   bus.EventConversation,
		ConvID: convID,
	}); err != nil {
		c.logger.Warn("call notify failed",
			zap.String("conv_id", convID), zap.Error(err))
	}
}
