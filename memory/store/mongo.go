package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sweetpotato0/ai-conclave/memory"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements MemoryStore using MongoDB
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// MongoConfig holds MongoDB connection configuration
type MongoConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// DefaultMongoConfig returns default MongoDB configuration
func DefaultMongoConfig() *MongoConfig {
	return &MongoConfig{
		URI:        "mongodb://localhost:27017",
		Database:   "conclave",
		Collection: "memories",
	}
}

type mongoMemory struct {
	ID           string         `bson:"_id"`
	Role         string         `bson:"role"`
	Task         string         `bson:"task"`
	Content      string         `bson:"content"`
	QualityScore float64        `bson:"quality_score"`
	Metadata     map[string]any `bson:"metadata"`
	CreatedAt    time.Time      `bson:"created_at"`
	UpdatedAt    time.Time      `bson:"updated_at"`
}

func toMongo(m *memory.Memory) mongoMemory {
	return mongoMemory{
		ID:           m.ID,
		Role:         m.Role,
		Task:         m.Task,
		Content:      m.Content,
		QualityScore: m.QualityScore,
		Metadata:     m.Metadata,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func (m mongoMemory) toMemory() *memory.Memory {
	return &memory.Memory{
		ID:           m.ID,
		Role:         m.Role,
		Task:         m.Task,
		Content:      m.Content,
		QualityScore: m.QualityScore,
		Metadata:     m.Metadata,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

// NewMongoStore connects to MongoDB and ensures indexes
func NewMongoStore(ctx context.Context, config *MongoConfig) (*MongoStore, error) {
	if config == nil {
		config = DefaultMongoConfig()
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(config.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	store := &MongoStore{
		client:     client,
		collection: client.Database(config.Database).Collection(config.Collection),
	}
	if err := store.createIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	return store, nil
}

func (s *MongoStore) createIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "role", Value: 1}}},
	})
	return err
}

// AddMemory upserts a memory
func (s *MongoStore) AddMemory(ctx context.Context, mem *memory.Memory) error {
	if mem == nil {
		return fmt.Errorf("memory cannot be nil")
	}
	prepare(mem)

	opts := options.Replace().SetUpsert(true)
	if _, err := s.collection.ReplaceOne(ctx, bson.M{"_id": mem.ID}, toMongo(mem), opts); err != nil {
		return fmt.Errorf("failed to add memory to MongoDB: %w", err)
	}
	return nil
}

// SearchMemory returns the memories matching query, newest first. The query
// is matched literally.
func (s *MongoStore) SearchMemory(ctx context.Context, query string) ([]*memory.Memory, error) {
	filter := bson.M{}
	if q := strings.TrimSpace(query); q != "" {
		pattern := bson.M{"$regex": regexp.QuoteMeta(q), "$options": "i"}
		filter = bson.M{"$or": bson.A{
			bson.M{"content": pattern},
			bson.M{"task": pattern},
			bson.M{"role": bson.M{"$regex": "^" + regexp.QuoteMeta(q) + "$", "$options": "i"}},
		}}
	}

	cursor, err := s.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to search memories: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []mongoMemory
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode memories: %w", err)
	}
	memories := make([]*memory.Memory, len(docs))
	for i, d := range docs {
		memories[i] = d.toMemory()
	}
	return memories, nil
}

// GetMemoryByID retrieves a specific memory by ID
func (s *MongoStore) GetMemoryByID(ctx context.Context, id string) (*memory.Memory, error) {
	var doc mongoMemory
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get memory: %w", err)
	}
	return doc.toMemory(), nil
}

// DeleteMemory deletes a memory by ID
func (s *MongoStore) DeleteMemory(ctx context.Context, id string) error {
	result, err := s.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete memory: %w", err)
	}
	if result.DeletedCount == 0 {
		return notFound(id)
	}
	return nil
}

// Clear removes all memories
func (s *MongoStore) Clear(ctx context.Context) error {
	if _, err := s.collection.DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("failed to clear memories: %w", err)
	}
	return nil
}

// Count returns the number of memories
func (s *MongoStore) Count(ctx context.Context) (int, error) {
	count, err := s.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count memories: %w", err)
	}
	return int(count), nil
}

// Close disconnects from MongoDB
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Ping checks if MongoDB connection is alive
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}
