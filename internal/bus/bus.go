package bus

import (
	"context"
)

// Event types carried on the bus. Subscribers treat every event as "something
// changed, re-read the store"; payloads never carry diffs.
const (
	EventConversation = "conversation"
	EventMessages     = "messages"
	EventCodes        = "codes"
)

// Event is a change notification for one conversation (or for the code
// registry). DeletedID is set on EventCodes when a code was removed, so
// watchers can drop a dangling active-conversation selection.
type Event struct {
	Type      string `json:"type"`
	ConvID    string `json:"convId,omitempty"`
	DeletedID string `json:"deletedId,omitempty"`
}

// ConvTopic names the per-conversation pub/sub channel.
func ConvTopic(convID string) string {
	return "conv:" + convID
}

// CodesTopic is the registry-wide channel admin sessions watch.
const CodesTopic = "codes"

// Subscription is a live feed of events for one topic. Events() closes when
// the subscription is torn down or its context ends.
type Subscription interface {
	Events() <-chan Event
	Close() error
}

// Bus fans conversation change notifications out to every live subscriber.
// Publishing is best-effort: losing a notification only delays a snapshot
// until the next change.
type Bus interface {
	Publish(ctx context.Context, topic string, event Event) error
	Subscribe(ctx context.Context, topic string) (Subscription, error)
}
