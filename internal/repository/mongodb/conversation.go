package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hstudio-dev/glasschat/internal/models"
	"github.com/hstudio-dev/glasschat/internal/repository"
)

const conversationCollection = "chats"

// ConversationStore implements repository.ConversationStore on a MongoDB
// collection keyed by access code. All writes are $set merges on individual
// field paths; the document is never replaced wholesale.
type ConversationStore struct {
	coll *mongo.Collection
}

func NewConversationStore(db *mongo.Database) *ConversationStore {
	return &ConversationStore{coll: db.Collection(conversationCollection)}
}

func (s *ConversationStore) Get(ctx context.Context, convID string) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.coll.FindOne(ctx, bson.M{"_id": convID}).Decode(&conv)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	return &conv, nil
}

func (s *ConversationStore) Ensure(ctx context.Context, convID string) error {
	// Matches what provisioning has always written: both typing flags off.
	// $setOnInsert keeps an existing document's state intact.
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": convID},
		bson.M{"$setOnInsert": bson.M{
			"userTyping":  false,
			"adminTyping": false,
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("ensure conversation: %w", err)
	}
	return nil
}

func (s *ConversationStore) Merge(ctx context.Context, convID string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	set := bson.M{}
	for k, v := range fields {
		set[k] = v
	}
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": convID},
		bson.M{"$set": set},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("merge conversation fields: %w", err)
	}
	return nil
}

func (s *ConversationStore) BeginCall(ctx context.Context, convID string, call models.CallSession) error {
	// Conditional write: only an idle conversation (no activeCall, or one
	// already terminal) accepts a new ringing session. Two concurrent
	// initiations race on this filter and exactly one wins.
	filter := bson.M{
		"_id": convID,
		"$or": bson.A{
			bson.M{"activeCall": nil},
			bson.M{"activeCall": bson.M{"$exists": false}},
			bson.M{"activeCall.status": bson.M{"$in": bson.A{models.CallEnded, models.CallRejected}}},
		},
	}
	res, err := s.coll.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"activeCall": call}})
	if err != nil {
		return fmt.Errorf("begin call: %w", err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrCallActive
	}
	return nil
}

func (s *ConversationStore) SetCallStatus(ctx context.Context, convID string, from, to string) error {
	filter := bson.M{"_id": convID, "activeCall.status": from}
	res, err := s.coll.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"activeCall.status": to}})
	if err != nil {
		return fmt.Errorf("set call status: %w", err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrCallState
	}
	return nil
}

func (s *ConversationStore) ClearCall(ctx context.Context, convID string) error {
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": convID},
		bson.M{"$set": bson.M{"activeCall": nil}},
	)
	if err != nil {
		return fmt.Errorf("clear call: %w", err)
	}
	return nil
}

func (s *ConversationStore) Delete(ctx context.Context, convID string) error {
	_, err := s.coll.DeleteOne(ctx, bson.M{"_id": convID})
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}
