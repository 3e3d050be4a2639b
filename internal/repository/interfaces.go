package repository

import (
	"context"
	"errors"

	"github.com/hstudio-dev/glasschat/internal/models"
)

// Sentinel errors mapped to HTTP/WS responses at the handler layer.
var (
	// ErrNotFound: the document or row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrCallActive: a call initiation lost the guard against an already
	// ringing or in-progress session.
	ErrCallActive = errors.New("call already active")
	// ErrCallState: a call transition was attempted from the wrong state.
	ErrCallState = errors.New("call not in expected state")
)

// ConversationStore is the shared-document side of the conversation store:
// point reads, merge-writes on individual field paths, and the guarded
// activeCall transitions. Merge-writes never replace the whole document, so
// concurrent writers on disjoint field namespaces cannot clobber each other.
type ConversationStore interface {
	// Get returns the conversation document. Returns ErrNotFound if the
	// owning access code was never provisioned.
	Get(ctx context.Context, convID string) (*models.Conversation, error)

	// Ensure seeds the document when an access code is provisioned. Existing
	// documents are left untouched.
	Ensure(ctx context.Context, convID string) error

	// Merge $set-writes the given field paths (e.g. "userTyping",
	// "userProfile.name") without touching any other field.
	Merge(ctx context.Context, convID string, fields map[string]any) error

	// BeginCall writes a fresh ringing session, but only when no call is
	// currently ringing or in progress. Returns ErrCallActive when the
	// conditional update matches nothing: the compare-and-swap that closes
	// the double-initiation race.
	BeginCall(ctx context.Context, convID string, call models.CallSession) error

	// SetCallStatus advances activeCall.status, guarded on the expected
	// prior status. Returns ErrCallState when the transition lost.
	SetCallStatus(ctx context.Context, convID string, from, to string) error

	// ClearCall resets activeCall to null. Idempotent.
	ClearCall(ctx context.Context, convID string) error

	// Delete removes the conversation document itself. Messages are
	// deliberately not cascaded (deleting a code orphans its history).
	Delete(ctx context.Context, convID string) error
}

// MessageStore is the ordered per-conversation message list.
type MessageStore interface {
	// Append persists a message, assigning its id and server timestamp, and
	// returns it with both populated.
	Append(ctx context.Context, msg *models.Message) (*models.Message, error)

	// List returns the full ordered snapshot, oldest first. Subscribers
	// always re-read the whole list; there is no diff protocol.
	List(ctx context.Context, convID string) ([]models.Message, error)

	// UpdateText rewrites a message body in place and marks it edited.
	// Timestamp and status are never touched.
	UpdateText(ctx context.Context, convID, msgID, text string) error

	// AdvanceStatus moves a message's delivery status forward. The write is
	// conditional on the current status ranking below the target, so
	// re-advancing a seen message is a no-op and status never regresses.
	AdvanceStatus(ctx context.Context, convID, msgID, status string) error

	// Delete removes one message. Idempotent.
	Delete(ctx context.Context, convID, msgID string) error

	// Clear removes every message in the conversation. Idempotent.
	Clear(ctx context.Context, convID string) error
}

// AccessCodeStore is the registry of invitation codes.
type AccessCodeStore interface {
	// Create inserts a new code. The id is the code string itself.
	Create(ctx context.Context, code *models.AccessCode) error

	// Get returns a single code. Returns nil, nil if not found.
	Get(ctx context.Context, id string) (*models.AccessCode, error)

	// List returns every code, newest first.
	List(ctx context.Context) ([]models.AccessCode, error)

	// SetStatus flips a code between active and blocked.
	SetStatus(ctx context.Context, id, status string) error

	// Delete removes a code. Returns ErrNotFound when it never existed.
	Delete(ctx context.Context, id string) error

	// DeleteExpired removes every code whose expiry has passed and returns
	// the deleted ids so watchers can drop dangling selections.
	DeleteExpired(ctx context.Context, nowMillis int64) ([]string, error)
}
