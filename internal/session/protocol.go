package session

import (
	"github.com/hstudio-dev/glasschat/internal/models"
)

// Inbound event types. Each maps to one UI gesture on the client.
const (
	EventFocus        = "focus"
	EventTyping       = "typing"
	EventSend         = "send"
	EventEdit         = "edit"
	EventDelete       = "delete"
	EventClear        = "clear"
	EventCallInitiate = "call.initiate"
	EventCallAccept   = "call.accept"
	EventCallReject   = "call.reject"
	EventCallHangup   = "call.hangup"
	EventGhost        = "ghost"
	EventHideReceipts = "hide_receipts"
	EventProfile      = "profile"
	EventSwitch       = "switch"
)

// Outbound event types. Every payload is a full snapshot, never a diff.
const (
	PushConversation = "conversation"
	PushMessages     = "messages"
	PushCodes        = "codes"
	PushCall         = "call"
	PushError        = "error"
)

// ClientEvent is one inbound frame.
type ClientEvent struct {
	Type string `json:"type"`

	Focused bool `json:"focused,omitempty"`
	Typing  bool `json:"typing,omitempty"`
	On      bool `json:"on,omitempty"`

	Text      string `json:"text,omitempty"`
	ReplyToID string `json:"replyToId,omitempty"`
	MessageID string `json:"messageId,omitempty"`

	ConvID string `json:"convId,omitempty"`

	Profile *models.UserProfile `json:"profile,omitempty"`
}

// ServerEvent is one outbound frame.
type ServerEvent struct {
	Type string `json:"type"`

	Conversation *models.Conversation `json:"conversation,omitempty"`

	Messages []models.Message `json:"messages,omitempty"`
	// Notify is set when the snapshot grew with a message from the other
	// side, the client's cue for the notification sound and title blink.
	// Backlogs delivered after a conversation switch never set it.
	Notify bool `json:"notify,omitempty"`
	// LocalRead lists message ids the session should render as read even
	// when hide-receipts kept the status off the wire.
	LocalRead []string `json:"localRead,omitempty"`

	Codes     []models.AccessCode `json:"codes,omitempty"`
	DeletedID string              `json:"deletedId,omitempty"`

	Call *models.CallSession `json:"call,omitempty"`

	Error string `json:"error,omitempty"`
}
