package kvstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const mongoCollection = "kv_entries"

// MongoDBConfig holds MongoDB-specific configuration
type MongoDBConfig struct {
	// URL is the connection string (e.g., mongodb://localhost:27017)
	URL string
	// Database is the database name (default: reboosty)
	Database string
}

type mongoEntry struct {
	Key       string     `bson:"_id"`
	Value     string     `bson:"value"`
	ExpiresAt *time.Time `bson:"expires_at,omitempty"`
}

// MongoDBStore implements Store on a MongoDB collection.
// Expired documents are removed by a TTL index; reads filter on expires_at
// because the TTL monitor only runs about once a minute.
type MongoDBStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	now        func() time.Time
}

// NewMongoDBStore connects to MongoDB and ensures the TTL index exists.
func NewMongoDBStore(ctx context.Context, cfg MongoDBConfig) (*MongoDBStore, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("MongoDB URL is required")
	}

	dbName := cfg.Database
	if dbName == "" {
		dbName = "reboosty"
	}

	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	store := NewMongoDBStoreFromDatabase(ctx, client.Database(dbName))
	store.client = client
	return store, nil
}

// NewMongoDBStoreFromDatabase uses an existing database handle. Close does not
// disconnect a client the store did not create.
func NewMongoDBStoreFromDatabase(ctx context.Context, database *mongo.Database) *MongoDBStore {
	collection := database.Collection(mongoCollection)

	indexCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := collection.Indexes().CreateOne(indexCtx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	if err != nil {
		// Log warning but don't fail - index may already exist
		slog.Warn("failed to create MongoDB TTL index for kv entries", "error", err)
	}

	return &MongoDBStore{
		collection: collection,
		now:        time.Now,
	}
}

func (s *MongoDBStore) liveFilter(filter bson.D) bson.D {
	return append(filter, bson.E{Key: "$or", Value: bson.A{
		bson.D{{Key: "expires_at", Value: bson.D{{Key: "$exists", Value: false}}}},
		bson.D{{Key: "expires_at", Value: bson.D{{Key: "$gt", Value: s.now().UTC()}}}},
	}})
}

// Get returns the live value for key.
func (s *MongoDBStore) Get(ctx context.Context, key string) (string, bool, error) {
	var entry mongoEntry
	err := s.collection.FindOne(ctx, s.liveFilter(bson.D{{Key: "_id", Value: key}})).Decode(&entry)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get %q from mongodb: %w", key, err)
	}
	return entry.Value, true, nil
}

// SetWithExpiry upserts the document for key.
func (s *MongoDBStore) SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error {
	entry := mongoEntry{Key: key, Value: value}
	if exp := expiryFor(s.now().UTC(), ttl); !exp.IsZero() {
		entry.ExpiresAt = &exp
	}

	_, err := s.collection.ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: key}},
		entry,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to set %q in mongodb: %w", key, err)
	}
	return nil
}

// KeysByPrefix lists live keys with an anchored regex, which can use the _id index.
func (s *MongoDBStore) KeysByPrefix(ctx context.Context, prefix string) ([]string, error) {
	filter := s.liveFilter(bson.D{{Key: "_id", Value: bson.Regex{Pattern: "^" + regexp.QuoteMeta(prefix)}}})
	opts := options.Find().
		SetProjection(bson.D{{Key: "_id", Value: 1}}).
		SetSort(bson.D{{Key: "_id", Value: 1}})

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list mongodb keys with prefix %q: %w", prefix, err)
	}

	var entries []mongoEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode mongodb keys: %w", err)
	}

	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
	}
	return keys, nil
}

// MultiGet resolves keys with a single $in query.
func (s *MongoDBStore) MultiGet(ctx context.Context, keys []string) ([]string, error) {
	values := make([]string, len(keys))
	if len(keys) == 0 {
		return values, nil
	}

	cursor, err := s.collection.Find(ctx, s.liveFilter(bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: keys}}}}))
	if err != nil {
		return nil, fmt.Errorf("failed to mget %d keys from mongodb: %w", len(keys), err)
	}

	var entries []mongoEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode mongodb entries: %w", err)
	}

	found := make(map[string]string, len(entries))
	for _, e := range entries {
		found[e.Key] = e.Value
	}
	for i, k := range keys {
		values[i] = found[k]
	}
	return values, nil
}

// Close disconnects the client if the store created it.
func (s *MongoDBStore) Close() error {
	if s.client != nil {
		return s.client.Disconnect(context.Background())
	}
	return nil
}
