// Package repotest provides in-memory store implementations for tests. They
// mirror the semantics of the real stores, including the conditional
// activeCall and status writes, so engine tests exercise the same guards.
package repotest

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/hstudio-dev/glasschat/internal/models"
	"github.com/hstudio-dev/glasschat/internal/repository"
)

// ConversationStore is an in-memory repository.ConversationStore.
type ConversationStore struct {
	mu    sync.Mutex
	convs map[string]*models.Conversation
}

func NewConversationStore() *ConversationStore {
	return &ConversationStore{convs: make(map[string]*models.Conversation)}
}

func (s *ConversationStore) Get(_ context.Context, convID string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[convID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *conv
	if conv.ActiveCall != nil {
		call := *conv.ActiveCall
		clone.ActiveCall = &call
	}
	if conv.UserProfile != nil {
		profile := *conv.UserProfile
		clone.UserProfile = &profile
	}
	return &clone, nil
}

func (s *ConversationStore) Ensure(_ context.Context, convID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.convs[convID]; !ok {
		s.convs[convID] = &models.Conversation{ID: convID}
	}
	return nil
}

func (s *ConversationStore) Merge(_ context.Context, convID string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[convID]
	if !ok {
		conv = &models.Conversation{ID: convID}
		s.convs[convID] = conv
	}
	for path, value := range fields {
		applyField(conv, path, value)
	}
	return nil
}

func (s *ConversationStore) BeginCall(_ context.Context, convID string, call models.CallSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[convID]
	if !ok {
		return repository.ErrNotFound
	}
	if !conv.ActiveCall.Terminal() {
		return repository.ErrCallActive
	}
	conv.ActiveCall = &call
	return nil
}

func (s *ConversationStore) SetCallStatus(_ context.Context, convID, from, to string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[convID]
	if !ok || conv.ActiveCall == nil || conv.ActiveCall.Status != from {
		return repository.ErrCallState
	}
	conv.ActiveCall.Status = to
	return nil
}

func (s *ConversationStore) ClearCall(_ context.Context, convID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv, ok := s.convs[convID]; ok {
		conv.ActiveCall = nil
	}
	return nil
}

func (s *ConversationStore) Delete(_ context.Context, convID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.convs, convID)
	return nil
}

func applyField(conv *models.Conversation, path string, value any) {
	switch path {
	case "userOnline":
		conv.UserOnline, _ = value.(bool)
	case "userTyping":
		conv.UserTyping, _ = value.(bool)
	case "adminOnline":
		conv.AdminOnline, _ = value.(bool)
	case "adminTyping":
		conv.AdminTyping, _ = value.(bool)
	case "userLastSeen":
		if ts, ok := value.(int64); ok {
			conv.UserLastSeen = &ts
		}
	case "adminLastSeen":
		if ts, ok := value.(int64); ok {
			conv.AdminLastSeen = &ts
		}
	case "userProfile":
		if profile, ok := value.(*models.UserProfile); ok {
			clone := *profile
			conv.UserProfile = &clone
		}
	}
}

// MessageStore is an in-memory repository.MessageStore.
type MessageStore struct {
	mu   sync.Mutex
	msgs map[string][]models.Message

	// FailAdvance makes every AdvanceStatus call return this error.
	FailAdvance error
}

func NewMessageStore() *MessageStore {
	return &MessageStore{msgs: make(map[string][]models.Message)}
}

func (s *MessageStore) Append(_ context.Context, msg *models.Message) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *msg
	stored.ID = primitive.NewObjectID()
	if stored.Timestamp == nil {
		now := time.Now().UnixMilli()
		stored.Timestamp = &now
	}
	if stored.Status == "" {
		stored.Status = models.StatusSent
	}
	s.msgs[msg.ChatID] = append(s.msgs[msg.ChatID], stored)
	returned := stored
	return &returned, nil
}

func (s *MessageStore) List(_ context.Context, convID string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.msgs[convID]))
	copy(out, s.msgs[convID])
	sort.SliceStable(out, func(i, j int) bool {
		return *out[i].Timestamp < *out[j].Timestamp
	})
	return out, nil
}

func (s *MessageStore) UpdateText(_ context.Context, convID, msgID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.msgs[convID] {
		if s.msgs[convID][i].ID.Hex() == msgID {
			s.msgs[convID][i].Text = text
			s.msgs[convID][i].IsEdited = true
			return nil
		}
	}
	return repository.ErrNotFound
}

func (s *MessageStore) AdvanceStatus(_ context.Context, convID, msgID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAdvance != nil {
		return s.FailAdvance
	}
	for i := range s.msgs[convID] {
		msg := &s.msgs[convID][i]
		if msg.ID.Hex() != msgID {
			continue
		}
		// A non-forward transition matches zero documents in the real
		// store and reports success, so the fake does the same.
		if models.StatusRank(status) <= models.StatusRank(msg.Status) {
			return nil
		}
		msg.Status = status
		return nil
	}
	return repository.ErrNotFound
}

func (s *MessageStore) Delete(_ context.Context, convID, msgID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.msgs[convID]
	for i := range msgs {
		if msgs[i].ID.Hex() == msgID {
			s.msgs[convID] = append(msgs[:i], msgs[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *MessageStore) Clear(_ context.Context, convID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.msgs, convID)
	return nil
}

// AccessCodeStore is an in-memory repository.AccessCodeStore.
type AccessCodeStore struct {
	mu    sync.Mutex
	codes map[string]models.AccessCode
}

func NewAccessCodeStore() *AccessCodeStore {
	return &AccessCodeStore{codes: make(map[string]models.AccessCode)}
}

func (s *AccessCodeStore) Create(_ context.Context, code *models.AccessCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[code.ID] = *code
	return nil
}

func (s *AccessCodeStore) Get(_ context.Context, id string) (*models.AccessCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	code, ok := s.codes[id]
	if !ok {
		return nil, nil
	}
	return &code, nil
}

func (s *AccessCodeStore) List(_ context.Context) ([]models.AccessCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.AccessCode, 0, len(s.codes))
	for _, code := range s.codes {
		out = append(out, code)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	return out, nil
}

func (s *AccessCodeStore) SetStatus(_ context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	code, ok := s.codes[id]
	if !ok {
		return repository.ErrNotFound
	}
	code.Status = status
	s.codes[id] = code
	return nil
}

func (s *AccessCodeStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.codes[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.codes, id)
	return nil
}

func (s *AccessCodeStore) DeleteExpired(_ context.Context, nowMillis int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := make([]string, 0)
	for id, code := range s.codes {
		if code.ExpiresAt != nil && *code.ExpiresAt < nowMillis {
			delete(s.codes, id)
			deleted = append(deleted, id)
		}
	}
	return deleted, nil
}
