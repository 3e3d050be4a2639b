package delivery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hstudio-dev/glasschat/internal/bus"
	"github.com/hstudio-dev/glasschat/internal/models"
	"github.com/hstudio-dev/glasschat/internal/repository/repotest"
)

func seedMessages(t *testing.T, msgs *repotest.MessageStore, senders ...models.Role) []models.Message {
	t.Helper()
	ctx := context.Background()
	for _, sender := range senders {
		_, err := msgs.Append(ctx, &models.Message{
			ChatID: "code-1",
			Text:   "hello",
			Sender: sender,
		})
		require.NoError(t, err)
	}
	list, err := msgs.List(ctx, "code-1")
	require.NoError(t, err)
	return list
}

func TestUnfocusedObservationDelivers(t *testing.T) {
	msgs := repotest.NewMessageStore()
	engine := NewEngine(msgs, bus.NewMemoryBus(), zap.NewNop())
	list := seedMessages(t, msgs, models.RoleUser, models.RoleUser)

	localRead := engine.Advance(context.Background(), Observation{
		ConvID: "code-1", Role: models.RoleAdmin, Focused: false,
	}, list)

	assert.Empty(t, localRead)
	stored, _ := msgs.List(context.Background(), "code-1")
	for _, msg := range stored {
		assert.Equal(t, models.StatusDelivered, msg.Status)
	}
}

func TestFocusedObservationSees(t *testing.T) {
	msgs := repotest.NewMessageStore()
	engine := NewEngine(msgs, bus.NewMemoryBus(), zap.NewNop())
	list := seedMessages(t, msgs, models.RoleUser)

	localRead := engine.Advance(context.Background(), Observation{
		ConvID: "code-1", Role: models.RoleAdmin, Focused: true,
	}, list)

	require.Len(t, localRead, 1)
	assert.Equal(t, list[0].ID.Hex(), localRead[0])
	stored, _ := msgs.List(context.Background(), "code-1")
	assert.Equal(t, models.StatusSeen, stored[0].Status)
}

func TestSenderNeverAdvancesOwnMessages(t *testing.T) {
	msgs := repotest.NewMessageStore()
	engine := NewEngine(msgs, bus.NewMemoryBus(), zap.NewNop())
	list := seedMessages(t, msgs, models.RoleAdmin)

	localRead := engine.Advance(context.Background(), Observation{
		ConvID: "code-1", Role: models.RoleAdmin, Focused: true,
	}, list)

	assert.Empty(t, localRead)
	stored, _ := msgs.List(context.Background(), "code-1")
	assert.Equal(t, models.StatusSent, stored[0].Status)
}

func TestStatusNeverRegresses(t *testing.T) {
	msgs := repotest.NewMessageStore()
	engine := NewEngine(msgs, bus.NewMemoryBus(), zap.NewNop())
	ctx := context.Background()
	list := seedMessages(t, msgs, models.RoleUser)

	// Seen first, then an unfocused observation of the same snapshot.
	engine.Advance(ctx, Observation{ConvID: "code-1", Role: models.RoleAdmin, Focused: true}, list)
	list, _ = msgs.List(ctx, "code-1")
	engine.Advance(ctx, Observation{ConvID: "code-1", Role: models.RoleAdmin, Focused: false}, list)

	stored, _ := msgs.List(ctx, "code-1")
	assert.Equal(t, models.StatusSeen, stored[0].Status)
}

func TestRepeatedObservationIsIdempotent(t *testing.T) {
	msgs := repotest.NewMessageStore()
	engine := NewEngine(msgs, bus.NewMemoryBus(), zap.NewNop())
	ctx := context.Background()
	list := seedMessages(t, msgs, models.RoleUser)
	obs := Observation{ConvID: "code-1", Role: models.RoleAdmin, Focused: true}

	engine.Advance(ctx, obs, list)

	// A second pass must not attempt further writes.
	list, _ = msgs.List(ctx, "code-1")
	localRead := engine.Advance(ctx, obs, list)

	require.Len(t, localRead, 1)
	stored, _ := msgs.List(ctx, "code-1")
	assert.Equal(t, models.StatusSeen, stored[0].Status)
}

func TestNonForwardAdvanceIsASilentNoop(t *testing.T) {
	msgs := repotest.NewMessageStore()
	ctx := context.Background()
	list := seedMessages(t, msgs, models.RoleUser)

	require.NoError(t, msgs.AdvanceStatus(ctx, "code-1", list[0].ID.Hex(), models.StatusSeen))

	// Backward and repeated transitions match nothing and succeed, the same
	// way a filtered update that touches zero documents does.
	require.NoError(t, msgs.AdvanceStatus(ctx, "code-1", list[0].ID.Hex(), models.StatusDelivered))
	require.NoError(t, msgs.AdvanceStatus(ctx, "code-1", list[0].ID.Hex(), models.StatusSeen))

	stored, _ := msgs.List(ctx, "code-1")
	assert.Equal(t, models.StatusSeen, stored[0].Status)
}

func TestHideReceiptsSuppressesWireWritesOnly(t *testing.T) {
	msgs := repotest.NewMessageStore()
	engine := NewEngine(msgs, bus.NewMemoryBus(), zap.NewNop())
	list := seedMessages(t, msgs, models.RoleUser)

	localRead := engine.Advance(context.Background(), Observation{
		ConvID: "code-1", Role: models.RoleAdmin, Focused: true, HideReceipts: true,
	}, list)

	// The other side keeps seeing "sent", but the hiding side still tracks
	// the message as read locally.
	require.Len(t, localRead, 1)
	stored, _ := msgs.List(context.Background(), "code-1")
	assert.Equal(t, models.StatusSent, stored[0].Status)
}

func TestAdvanceFailureIsSoft(t *testing.T) {
	msgs := repotest.NewMessageStore()
	msgs.FailAdvance = assert.AnError
	engine := NewEngine(msgs, bus.NewMemoryBus(), zap.NewNop())
	list := seedMessages(t, msgs, models.RoleUser, models.RoleUser)

	localRead := engine.Advance(context.Background(), Observation{
		ConvID: "code-1", Role: models.RoleAdmin, Focused: true,
	}, list)

	// Both messages still count as locally read despite the write failures.
	assert.Len(t, localRead, 2)
}

func TestNotifiesOnlyWhenSomethingAdvanced(t *testing.T) {
	msgs := repotest.NewMessageStore()
	memBus := bus.NewMemoryBus()
	engine := NewEngine(msgs, memBus, zap.NewNop())
	ctx := context.Background()
	list := seedMessages(t, msgs, models.RoleUser)

	sub, err := memBus.Subscribe(ctx, bus.ConvTopic("code-1"))
	require.NoError(t, err)
	defer sub.Close()

	engine.Advance(ctx, Observation{ConvID: "code-1", Role: models.RoleAdmin, Focused: true}, list)

	select {
	case event := <-sub.Events():
		assert.Equal(t, bus.EventMessages, event.Type)
	default:
		t.Fatal("expected a messages event after an advance")
	}

	// Nothing left to advance: no further event.
	list, _ = msgs.List(ctx, "code-1")
	engine.Advance(ctx, Observation{ConvID: "code-1", Role: models.RoleAdmin, Focused: true}, list)

	select {
	case event := <-sub.Events():
		t.Fatalf("unexpected event %q after a no-op pass", event.Type)
	default:
	}
}
