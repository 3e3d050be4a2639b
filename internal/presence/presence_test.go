package presence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hstudio-dev/glasschat/internal/bus"
	"github.com/hstudio-dev/glasschat/internal/models"
	"github.com/hstudio-dev/glasschat/internal/repository/repotest"
)

func newPublisher(t *testing.T, role models.Role) (*Publisher, *repotest.ConversationStore) {
	t.Helper()
	convs := repotest.NewConversationStore()
	require.NoError(t, convs.Ensure(context.Background(), "code-1"))
	engine := NewEngine(convs, bus.NewMemoryBus(), zap.NewNop())
	return engine.Publisher("code-1", role), convs
}

func TestOnlineAndTypingWriteOwnNamespace(t *testing.T) {
	pub, convs := newPublisher(t, models.RoleUser)
	ctx := context.Background()

	pub.Online(ctx)
	pub.Typing(ctx, true)

	conv, err := convs.Get(ctx, "code-1")
	require.NoError(t, err)
	assert.True(t, conv.UserOnline)
	assert.True(t, conv.UserTyping)
	assert.False(t, conv.AdminOnline)
	assert.False(t, conv.AdminTyping)
}

func TestOfflineStampsLastSeen(t *testing.T) {
	pub, convs := newPublisher(t, models.RoleAdmin)
	ctx := context.Background()

	pub.Online(ctx)
	pub.Typing(ctx, true)
	before := time.Now().UnixMilli()
	pub.Offline(ctx)

	conv, err := convs.Get(ctx, "code-1")
	require.NoError(t, err)
	assert.False(t, conv.AdminOnline)
	assert.False(t, conv.AdminTyping)
	require.NotNil(t, conv.AdminLastSeen)
	assert.GreaterOrEqual(t, *conv.AdminLastSeen, before)
}

func TestGhostWithholdsLastSeenOnDisconnect(t *testing.T) {
	pub, convs := newPublisher(t, models.RoleAdmin)
	ctx := context.Background()

	pub.Online(ctx)
	pub.SetGhost(ctx, true)
	pub.Offline(ctx)

	conv, err := convs.Get(ctx, "code-1")
	require.NoError(t, err)
	assert.False(t, conv.AdminOnline)
	assert.Nil(t, conv.AdminLastSeen)
}

func TestGhostForcesBothFlagsFalse(t *testing.T) {
	pub, convs := newPublisher(t, models.RoleAdmin)
	ctx := context.Background()

	pub.Online(ctx)
	pub.Typing(ctx, true)
	pub.SetGhost(ctx, true)

	conv, err := convs.Get(ctx, "code-1")
	require.NoError(t, err)
	assert.False(t, conv.AdminOnline)
	assert.False(t, conv.AdminTyping)
}

func TestGhostSuppressesSubsequentWrites(t *testing.T) {
	pub, convs := newPublisher(t, models.RoleAdmin)
	ctx := context.Background()

	pub.SetGhost(ctx, true)
	pub.Online(ctx)
	pub.Typing(ctx, true)

	conv, err := convs.Get(ctx, "code-1")
	require.NoError(t, err)
	assert.False(t, conv.AdminOnline)
	assert.False(t, conv.AdminTyping)
}

func TestGhostOffRepublishesRealState(t *testing.T) {
	pub, convs := newPublisher(t, models.RoleAdmin)
	ctx := context.Background()

	pub.SetGhost(ctx, true)
	pub.Online(ctx)
	pub.Typing(ctx, true)
	pub.SetGhost(ctx, false)

	conv, err := convs.Get(ctx, "code-1")
	require.NoError(t, err)
	assert.True(t, conv.AdminOnline)
	assert.True(t, conv.AdminTyping)
}

func TestPresenceChangesNotifyTheConversationTopic(t *testing.T) {
	convs := repotest.NewConversationStore()
	require.NoError(t, convs.Ensure(context.Background(), "code-1"))
	memBus := bus.NewMemoryBus()
	engine := NewEngine(convs, memBus, zap.NewNop())
	pub := engine.Publisher("code-1", models.RoleUser)

	sub, err := memBus.Subscribe(context.Background(), bus.ConvTopic("code-1"))
	require.NoError(t, err)
	defer sub.Close()

	pub.Online(context.Background())

	select {
	case event := <-sub.Events():
		assert.Equal(t, bus.EventConversation, event.Type)
		assert.Equal(t, "code-1", event.ConvID)
	default:
		t.Fatal("expected a conversation event after a presence write")
	}
}
