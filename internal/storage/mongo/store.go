// Package mongo stores conversations as documents in a MongoDB collection.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/zhouzirui/smartspark/backend/internal/model/chat"
)

// CollectionName is the collection holding conversation documents.
const CollectionName = "conversations"

// Store implements chat.Store on top of a single MongoDB collection.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
	now    func() time.Time
}

// Connect dials uri, verifies connectivity and ensures the unique index on
// conversation_id exists.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(20).
		SetServerSelectionTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	store := &Store{
		client: client,
		coll:   client.Database(database).Collection(CollectionName),
		now:    time.Now,
	}
	if err := store.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return store, nil
}

// WithClock overrides the time source; used by tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "conversation_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("conversation_id_unique"),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: -1}},
			Options: options.Index().SetName("updated_at_desc"),
		},
	})
	if err != nil {
		return fmt.Errorf("create mongo indexes: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (chat.Conversation, error) {
	var conv chat.Conversation
	err := s.coll.FindOne(ctx, bson.M{"conversation_id": id}).Decode(&conv)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return chat.Conversation{}, chat.ErrNotFound
	}
	if err != nil {
		return chat.Conversation{}, fmt.Errorf("find conversation %s: %w", id, err)
	}
	return normalize(conv), nil
}

func (s *Store) Create(ctx context.Context, id string) (chat.Conversation, error) {
	fresh := chat.NewConversation(id, s.now())
	update := bson.M{"$setOnInsert": bson.M{
		"conversation_id": fresh.ConversationID,
		"messages":        fresh.Messages,
		"created_at":      fresh.CreatedAt,
		"updated_at":      fresh.UpdatedAt,
	}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var conv chat.Conversation
	err := s.coll.FindOneAndUpdate(ctx, bson.M{"conversation_id": id}, update, opts).Decode(&conv)
	if mongo.IsDuplicateKeyError(err) {
		// Lost an upsert race against another request; the winner's document is there now.
		return s.Get(ctx, id)
	}
	if err != nil {
		return chat.Conversation{}, fmt.Errorf("upsert conversation %s: %w", id, err)
	}
	return normalize(conv), nil
}

// AppendTurn pushes the turn and advances updated_at in one pipeline update.
// BSON dates carry milliseconds, so updated_at moves to max(now, updated_at+1ms)
// and stays strictly increasing when clocks stall or disagree between replicas.
func (s *Store) AppendTurn(ctx context.Context, id string, turn chat.Turn) error {
	if err := turn.Validate(); err != nil {
		return err
	}

	// $literal keeps message content such as "$foo" from being read as a field path.
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "messages", Value: bson.D{{Key: "$concatArrays", Value: bson.A{
				bson.D{{Key: "$ifNull", Value: bson.A{"$messages", bson.A{}}}},
				bson.D{{Key: "$literal", Value: bson.A{turn}}},
			}}}},
			{Key: "updated_at", Value: bson.D{{Key: "$max", Value: bson.A{
				s.now().UTC(),
				bson.D{{Key: "$add", Value: bson.A{"$updated_at", 1}}},
			}}}},
		}}},
	}
	res, err := s.coll.UpdateOne(ctx, bson.M{"conversation_id": id}, update)
	if err != nil {
		return fmt.Errorf("append turn to %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return chat.ErrNotFound
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]chat.Conversation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}, {Key: "conversation_id", Value: 1}})
	cursor, err := s.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	// The _id field has no counterpart on chat.Conversation and is dropped on decode.
	var docs []chat.Conversation
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode conversations: %w", err)
	}

	out := make([]chat.Conversation, 0, len(docs))
	for _, doc := range docs {
		out = append(out, normalize(doc))
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, id string) (int64, error) {
	res, err := s.coll.DeleteOne(ctx, bson.M{"conversation_id": id})
	if err != nil {
		return 0, fmt.Errorf("delete conversation %s: %w", id, err)
	}
	return res.DeletedCount, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// DropCollection removes every conversation; tests use it to isolate runs.
func (s *Store) DropCollection(ctx context.Context) error {
	return s.coll.Drop(ctx)
}

// BSON dates decode as local time and a nil array for an empty log.
func normalize(c chat.Conversation) chat.Conversation {
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	if c.Messages == nil {
		c.Messages = []chat.Turn{}
	}
	for i := range c.Messages {
		c.Messages[i].Timestamp = c.Messages[i].Timestamp.UTC()
	}
	return c
}
