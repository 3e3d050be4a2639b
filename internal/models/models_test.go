package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRoleOpposite(t *testing.T) {
	assert.Equal(t, RoleAdmin, RoleUser.Opposite())
	assert.Equal(t, RoleUser, RoleAdmin.Opposite())
}

func TestStatusRankOrdering(t *testing.T) {
	assert.Less(t, StatusRank(StatusSent), StatusRank(StatusDelivered))
	assert.Less(t, StatusRank(StatusDelivered), StatusRank(StatusSeen))
	assert.Less(t, StatusRank("garbage"), StatusRank(StatusSent))
}

func TestCallSessionTerminal(t *testing.T) {
	var nilCall *CallSession
	assert.True(t, nilCall.Terminal())
	assert.True(t, (&CallSession{Status: CallEnded}).Terminal())
	assert.True(t, (&CallSession{Status: CallRejected}).Terminal())
	assert.False(t, (&CallSession{Status: CallRinging}).Terminal())
	assert.False(t, (&CallSession{Status: CallInProgress}).Terminal())
}

func TestAccessCodeUsability(t *testing.T) {
	now := time.Now().UnixMilli()
	past := now - 1000
	future := now + 1000

	permanent := AccessCode{Status: CodeStatusActive}
	assert.True(t, permanent.Usable(now))

	blocked := AccessCode{Status: CodeStatusBlocked}
	assert.False(t, blocked.Usable(now))

	live := AccessCode{Status: CodeStatusActive, ExpiresAt: &future}
	assert.True(t, live.Usable(now))

	// Expiry wins even while the stored status still reads active.
	lapsed := AccessCode{Status: CodeStatusActive, ExpiresAt: &past}
	assert.True(t, lapsed.Expired(now))
	assert.False(t, lapsed.Usable(now))

	// A blocked code stays unusable regardless of expiry.
	blockedLive := AccessCode{Status: CodeStatusBlocked, ExpiresAt: &future}
	assert.False(t, blockedLive.Usable(now))
}
