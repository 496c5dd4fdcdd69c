package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Collection names
const (
	CollectionBotStore   = "bot_store"
	CollectionBotMetrics = "bot_metrics"
)

// MongoStore persists room partitions as one document per key in the
// bot_store collection. It is also the only adapter with the MetricsWriter
// capability: WriteMetric appends documents to bot_metrics.
type MongoStore struct {
	client   *mongo.Client
	database *mongo.Database
}

// storeDoc is one key/value pair scoped to a room
type storeDoc struct {
	RoomID string    `bson:"roomId"`
	Key    string    `bson:"key"`
	Value  any       `bson:"value"`
	Stored time.Time `bson:"stored"`
}

// NewMongoStore connects to MongoDB and verifies the connection
func NewMongoStore(uri, dbName string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(50).
		SetMinPoolSize(5).
		SetMaxConnIdleTime(30 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetConnectTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &MongoStore{
		client:   client,
		database: client.Database(dbName),
	}, nil
}

// Close disconnects from MongoDB
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) collection() *mongo.Collection {
	return s.database.Collection(CollectionBotStore)
}

// Init seeds keys that are not present yet and returns the partition
func (s *MongoStore) Init(ctx context.Context, roomID string, initial map[string]any) (map[string]any, error) {
	for k, v := range initial {
		filter := bson.M{"roomId": roomID, "key": k}
		update := bson.M{"$setOnInsert": storeDoc{RoomID: roomID, Key: k, Value: v, Stored: time.Now()}}
		if _, err := s.collection().UpdateOne(ctx, filter, update, options.Update().SetUpsert(true)); err != nil {
			return nil, fmt.Errorf("failed to init storage for room %s: %w", roomID, err)
		}
	}
	return s.recallAll(ctx, roomID, true)
}

func (s *MongoStore) recallAll(ctx context.Context, roomID string, allowEmpty bool) (map[string]any, error) {
	cursor, err := s.collection().Find(ctx, bson.M{"roomId": roomID})
	if err != nil {
		return nil, fmt.Errorf("failed to recall room %s: %w", roomID, err)
	}
	defer cursor.Close(ctx)

	out := make(map[string]any)
	for cursor.Next(ctx) {
		var doc storeDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode stored value: %w", err)
		}
		out[doc.Key] = doc.Value
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to recall room %s: %w", roomID, err)
	}
	if len(out) == 0 && !allowEmpty {
		return nil, fmt.Errorf("%w: room %s", ErrKeyNotFound, roomID)
	}
	return out, nil
}

// Store writes one key
func (s *MongoStore) Store(ctx context.Context, roomID, key string, value any) (any, error) {
	filter := bson.M{"roomId": roomID, "key": key}
	update := bson.M{"$set": storeDoc{RoomID: roomID, Key: key, Value: value, Stored: time.Now()}}
	if _, err := s.collection().UpdateOne(ctx, filter, update, options.Update().SetUpsert(true)); err != nil {
		return nil, fmt.Errorf("failed to store %s for room %s: %w", key, roomID, err)
	}
	return value, nil
}

// Recall returns one key, or the whole partition when key == ""
func (s *MongoStore) Recall(ctx context.Context, roomID, key string) (any, error) {
	if key == "" {
		return s.recallAll(ctx, roomID, false)
	}
	var doc storeDoc
	err := s.collection().FindOne(ctx, bson.M{"roomId": roomID, "key": key}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("%w: %s in room %s", ErrKeyNotFound, key, roomID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to recall %s for room %s: %w", key, roomID, err)
	}
	return doc.Value, nil
}

// Forget removes one key, or the whole partition when key == ""
func (s *MongoStore) Forget(ctx context.Context, roomID, key string) (any, error) {
	removed, err := s.Recall(ctx, roomID, key)
	if err != nil {
		return nil, err
	}
	filter := bson.M{"roomId": roomID}
	if key != "" {
		filter["key"] = key
	}
	if _, err := s.collection().DeleteMany(ctx, filter); err != nil {
		return nil, fmt.Errorf("failed to forget %s for room %s: %w", key, roomID, err)
	}
	return removed, nil
}

// WriteMetric appends one metric document for the bot in roomID
func (s *MongoStore) WriteMetric(ctx context.Context, roomID string, data map[string]any, actorID string) (map[string]any, error) {
	record := bson.M{
		"roomId":  roomID,
		"data":    data,
		"created": time.Now(),
	}
	if actorID != "" {
		record["actorId"] = actorID
	}
	if _, err := s.database.Collection(CollectionBotMetrics).InsertOne(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to write metric for room %s: %w", roomID, err)
	}
	out := make(map[string]any, len(record))
	for k, v := range record {
		out[k] = v
	}
	return out, nil
}
