// Package mongostore keeps conversations in MongoDB, one document per
// session.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/chris/whispr/internal/bridge"
	"github.com/chris/whispr/internal/llm"
)

const defaultCollection = "sessions"

type sessionDocument struct {
	ID        string        `bson:"_id"`
	History   []llm.Message `bson:"history"`
	UpdatedAt time.Time     `bson:"updated_at"`
}

type Store struct {
	client     *mongo.Client
	collection *mongo.Collection
	now        func() time.Time
}

var _ bridge.Store = (*Store)(nil)

// Connect dials uri and pings the server.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("pinging mongo: %w", err)
	}
	s := New(client.Database(database), "")
	s.client = client
	return s, nil
}

// New wraps an existing database. collection defaults to "sessions".
func New(db *mongo.Database, collection string) *Store {
	if collection == "" {
		collection = defaultCollection
	}
	return &Store{collection: db.Collection(collection), now: time.Now}
}

// Close disconnects a Store created by Connect.
func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

func (s *Store) SaveConversation(ctx context.Context, id string, messages []llm.Message) error {
	doc := sessionDocument{ID: id, History: messages, UpdatedAt: s.now().UTC()}
	filter := bson.M{"_id": id}
	update := bson.M{"$set": doc}
	opts := options.Update().SetUpsert(true)

	if _, err := s.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("mongostore: upsert session %q: %w", id, err)
	}
	return nil
}

func (s *Store) LoadConversation(ctx context.Context, id string) ([]llm.Message, error) {
	var doc sessionDocument
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mongostore: find session %q: %w", id, err)
	}
	return doc.History, nil
}

func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	if _, err := s.collection.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("mongostore: delete session %q: %w", id, err)
	}
	return nil
}

func (s *Store) DeleteIdleConversations(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.collection.DeleteMany(ctx, bson.M{"updated_at": bson.M{"$lt": before.UTC()}})
	if err != nil {
		return 0, fmt.Errorf("mongostore: delete idle sessions: %w", err)
	}
	return res.DeletedCount, nil
}
