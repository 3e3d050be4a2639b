package bus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesEverySubscriber(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	first, err := b.Subscribe(ctx, ConvTopic("code-1"))
	require.NoError(t, err)
	second, err := b.Subscribe(ctx, ConvTopic("code-1"))
	require.NoError(t, err)
	other, err := b.Subscribe(ctx, ConvTopic("code-2"))
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, ConvTopic("code-1"), Event{Type: EventMessages, ConvID: "code-1"}))

	assert.Equal(t, EventMessages, (<-first.Events()).Type)
	assert.Equal(t, EventMessages, (<-second.Events()).Type)
	select {
	case event := <-other.Events():
		t.Fatalf("event leaked across topics: %q", event.Type)
	default:
	}
}

func TestClosedSubscriptionStopsReceiving(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, CodesTopic)
	require.NoError(t, err)
	require.NoError(t, sub.Close())

	require.NoError(t, b.Publish(ctx, CodesTopic, Event{Type: EventCodes}))

	_, open := <-sub.Events()
	assert.False(t, open)

	// Closing twice is a no-op.
	require.NoError(t, sub.Close())
}

func TestTopicNaming(t *testing.T) {
	assert.Equal(t, "conv:code-1", ConvTopic("code-1"))
	assert.Equal(t, "codes", CodesTopic)
}
