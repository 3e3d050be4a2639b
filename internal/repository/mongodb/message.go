package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hstudio-dev/glasschat/internal/models"
	"github.com/hstudio-dev/glasschat/internal/repository"
)

const messageCollection = "messages"

// MessageStore implements repository.MessageStore. Messages live in one
// collection keyed by (chatId, _id); ordering comes from the store-assigned
// millisecond timestamp.
type MessageStore struct {
	coll *mongo.Collection
}

func NewMessageStore(db *mongo.Database) *MessageStore {
	return &MessageStore{coll: db.Collection(messageCollection)}
}

func (s *MessageStore) Append(ctx context.Context, msg *models.Message) (*models.Message, error) {
	now := time.Now().UnixMilli()
	msg.ID = primitive.NewObjectID()
	msg.Timestamp = &now
	if msg.Status == "" {
		msg.Status = models.StatusSent
	}

	if _, err := s.coll.InsertOne(ctx, msg); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

func (s *MessageStore) List(ctx context.Context, convID string) ([]models.Message, error) {
	// Oldest first; ties on the millisecond timestamp break on insertion
	// order via _id.
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.coll.Find(ctx, bson.M{"chatId": convID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer cursor.Close(ctx)

	messages := make([]models.Message, 0)
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	return messages, nil
}

func (s *MessageStore) UpdateText(ctx context.Context, convID, msgID, text string) error {
	oid, err := primitive.ObjectIDFromHex(msgID)
	if err != nil {
		return repository.ErrNotFound
	}
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": oid, "chatId": convID},
		bson.M{"$set": bson.M{"text": text, "isEdited": true}},
	)
	if err != nil {
		return fmt.Errorf("update message text: %w", err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *MessageStore) AdvanceStatus(ctx context.Context, convID, msgID, status string) error {
	oid, err := primitive.ObjectIDFromHex(msgID)
	if err != nil {
		return repository.ErrNotFound
	}
	// Guard the advance server-side: only statuses ranking strictly below the
	// target match, so a concurrent or repeated advance cannot regress a
	// message and re-advancing a terminal one writes nothing.
	var priors bson.A
	switch status {
	case models.StatusDelivered:
		priors = bson.A{models.StatusSent}
	case models.StatusSeen:
		priors = bson.A{models.StatusSent, models.StatusDelivered}
	default:
		return fmt.Errorf("advance status: %q is not a forward transition", status)
	}
	_, err = s.coll.UpdateOne(ctx,
		bson.M{"_id": oid, "chatId": convID, "status": bson.M{"$in": priors}},
		bson.M{"$set": bson.M{"status": status}},
	)
	if err != nil {
		return fmt.Errorf("advance message status: %w", err)
	}
	return nil
}

func (s *MessageStore) Delete(ctx context.Context, convID, msgID string) error {
	oid, err := primitive.ObjectIDFromHex(msgID)
	if err != nil {
		return nil
	}
	if _, err := s.coll.DeleteOne(ctx, bson.M{"_id": oid, "chatId": convID}); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

func (s *MessageStore) Clear(ctx context.Context, convID string) error {
	if _, err := s.coll.DeleteMany(ctx, bson.M{"chatId": convID}); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	return nil
}
