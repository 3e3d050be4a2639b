package delivery

import (
	"context"

	"go.uber.org/zap"

	"github.com/hstudio-dev/glasschat/internal/bus"
	"github.com/hstudio-dev/glasschat/internal/models"
	"github.com/hstudio-dev/glasschat/internal/repository"
)

// Engine advances message delivery statuses from the recipient's side.
//
// The rules: a message the recipient observes while unfocused becomes
// "delivered"; observed while focused it becomes "seen". The sender never
// advances anything, statuses never regress, and an already-terminal message
// is left alone so re-renders don't cause redundant writes.
type Engine struct {
	msgs   repository.MessageStore
	bus    bus.Bus
	logger *zap.Logger
}

func NewEngine(msgs repository.MessageStore, b bus.Bus, logger *zap.Logger) *Engine {
	return &Engine{msgs: msgs, bus: b, logger: logger}
}

// Observation describes the recipient session's state at the moment a
// snapshot is delivered to it.
type Observation struct {
	ConvID       string
	Role         models.Role
	Focused      bool
	HideReceipts bool
}

// Advance walks a delivered snapshot and pushes eligible statuses forward on
// the wire. It returns the ids of messages the session should render as read
// locally. With hide receipts on, that set still grows even though nothing
// is written, so the toggling side's own view is unaffected.
//
// Writes are fire-and-forget: a failure leaves the status stale and the next
// snapshot delivery retries naturally.
func (e *Engine) Advance(ctx context.Context, obs Observation, messages []models.Message) []string {
	target := models.StatusDelivered
	if obs.Focused {
		target = models.StatusSeen
	}
	targetRank := models.StatusRank(target)

	localRead := make([]string, 0)
	advanced := false

	for i := range messages {
		msg := &messages[i]
		// Only the non-authoring side advances a message.
		if msg.Sender == obs.Role {
			continue
		}
		if obs.Focused {
			localRead = append(localRead, msg.ID.Hex())
		}
		if models.StatusRank(msg.Status) >= targetRank {
			continue
		}
		if obs.HideReceipts {
			// Suppressed on the wire only; the local read set above still
			// includes the message.
			continue
		}
		if err := e.msgs.AdvanceStatus(ctx, obs.ConvID, msg.ID.Hex(), target); err != nil {
			e.logger.Warn("status advance failed",
				zap.String("conv_id", obs.ConvID),
				zap.String("msg_id", msg.ID.Hex()),
				zap.String("target", target),
				zap.Error(err))
			continue
		}
		msg.Status = target
		advanced = true
	}

	if advanced {
		if err := e.bus.Publish(ctx, bus.ConvTopic(obs.ConvID), bus.Event{
			Type:   bus.EventMessages,
			ConvID: obs.ConvID,
		}); err != nil {
			e.logger.Warn("status notify failed",
				zap.String("conv_id", obs.ConvID), zap.Error(err))
		}
	}
	return localRead
}
