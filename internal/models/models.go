package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role identifies which side of a conversation a client acts as. The role
// decides which field namespace of the conversation document the client may
// write (user* vs admin*).
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Opposite returns the other side of the conversation.
func (r Role) Opposite() Role {
	if r == RoleAdmin {
		return RoleUser
	}
	return RoleAdmin
}

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Delivery status of a message. Advances only forward (sent -> delivered ->
// seen) and only ever by the side that did not author the message.
const (
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusSeen      = "seen"
)

// StatusRank orders delivery statuses so monotonicity checks are a single
// integer comparison. Unknown statuses rank below "sent" and will be
// overwritten by the next legitimate advance.
func StatusRank(status string) int {
	switch status {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusSeen:
		return 3
	default:
		return 0
	}
}

// Call session statuses. A nil activeCall, "ended" and "rejected" are
// equivalent to watchers: tear down local media, stop ringing.
const (
	CallRinging    = "ringing"
	CallInProgress = "in-progress"
	CallEnded      = "ended"
	CallRejected   = "rejected"
)

// CallSession is the ephemeral signaling record embedded in the conversation
// document. It only coordinates when each side mounts its media view; the
// media path itself is the signaling broker's concern.
type CallSession struct {
	Caller Role   `bson:"caller" json:"caller"`
	Status string `bson:"status" json:"status"`
	RoomID string `bson:"roomId" json:"roomId"`
}

// Terminal reports whether the session no longer represents a live or
// pending call.
func (c *CallSession) Terminal() bool {
	return c == nil || c.Status == CallEnded || c.Status == CallRejected
}

// UserProfile is the end-user's self-description, merge-written by the user
// side and rendered by the admin.
type UserProfile struct {
	Name   string `bson:"name" json:"name"`
	Bio    string `bson:"bio" json:"bio"`
	Avatar string `bson:"avatar" json:"avatar"`
}

// Conversation is the single shared document per access code. Field names are
// the wire contract with existing data and must not change. Each role
// merge-writes only its own presence namespace; activeCall is the one jointly
// written field.
type Conversation struct {
	ID            string       `bson:"_id" json:"id"`
	UserOnline    bool         `bson:"userOnline" json:"userOnline"`
	UserTyping    bool         `bson:"userTyping" json:"userTyping"`
	UserLastSeen  *int64       `bson:"userLastSeen" json:"userLastSeen"`
	AdminOnline   bool         `bson:"adminOnline" json:"adminOnline"`
	AdminTyping   bool         `bson:"adminTyping" json:"adminTyping"`
	AdminLastSeen *int64       `bson:"adminLastSeen" json:"adminLastSeen"`
	ActiveCall    *CallSession `bson:"activeCall" json:"activeCall"`
	UserProfile   *UserProfile `bson:"userProfile" json:"userProfile"`
}

// Online reports the given role's published online flag.
func (c *Conversation) Online(role Role) bool {
	if role == RoleAdmin {
		return c.AdminOnline
	}
	return c.UserOnline
}

// Typing reports the given role's published typing flag.
func (c *Conversation) Typing(role Role) bool {
	if role == RoleAdmin {
		return c.AdminTyping
	}
	return c.UserTyping
}

// Message is one entry in a conversation's ordered message list.
//
// Timestamp is assigned once, by the store, at append time; a null timestamp
// means the write is still in flight and renders as "sending", never as an
// error. Text holds a hosted URL when IsImage is set.
type Message struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ChatID    string             `bson:"chatId" json:"-"`
	Text      string             `bson:"text" json:"text"`
	IsImage   bool               `bson:"isImage" json:"isImage"`
	Sender    Role               `bson:"sender" json:"sender"`
	Timestamp *int64             `bson:"timestamp" json:"timestamp"`
	Status    string             `bson:"status" json:"status"`
	IsEdited  bool               `bson:"isEdited" json:"isEdited"`
	ReplyToID string             `bson:"replyToId,omitempty" json:"replyToId,omitempty"`
}

// Access code types and statuses.
const (
	CodeTypePermanent = "permanent"
	CodeTypeTemporary = "temporary"

	CodeStatusActive  = "active"
	CodeStatusBlocked = "blocked"
)

// AccessCode gates end-user entry to one conversation. The code string itself
// is both the registry key and the conversation id. CreatedAt and ExpiresAt
// are epoch milliseconds on the wire.
type AccessCode struct {
	ID        string  `json:"id"`
	Status    string  `json:"status"`
	Type      string  `json:"type"`
	CreatedAt int64   `json:"createdAt"`
	ExpiresAt *int64  `json:"expiresAt"`
	Name      *string `json:"name"`
}

// Expired reports whether the code's expiry, if any, has passed at the given
// epoch-millisecond instant.
func (a *AccessCode) Expired(nowMillis int64) bool {
	return a.ExpiresAt != nil && *a.ExpiresAt < nowMillis
}

// Usable reports whether an end-user may enter the conversation. Block status
// and expiry are independent checks: an expired code is unusable even while
// its status still reads active.
func (a *AccessCode) Usable(nowMillis int64) bool {
	return a.Status == CodeStatusActive && !a.Expired(nowMillis)
}
