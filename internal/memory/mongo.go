package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const mongoCloseTimeout = 5 * time.Second

// MongoStore is a Store on MongoDB Atlas Vector Search. The search index
// must declare "embedding" as a vector field and "owner" as a filter field.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	index      string
}

// NewMongoStore connects to uri and verifies the connection.
func NewMongoStore(ctx context.Context, uri, database, collection, index string) (*MongoStore, error) {
	if uri == "" {
		return nil, errors.New("memory: mongo uri is required")
	}
	if database == "" || collection == "" {
		return nil, errors.New("memory: mongo database and collection are required")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("pinging mongo: %w", err)
	}
	return &MongoStore{
		client:     client,
		collection: client.Database(database).Collection(collection),
		index:      index,
	}, nil
}

func (s *MongoStore) Add(ctx context.Context, r Record) error {
	if r.Owner == "" {
		return ErrNoOwner
	}
	if _, err := s.collection.InsertOne(ctx, r); err != nil {
		return fmt.Errorf("storing memory: %w", err)
	}
	return nil
}

// searchPipeline filters by owner inside $vectorSearch so the limit applies
// to the caller's records only.
func searchPipeline(index, owner string, vector []float32, k int) mongo.Pipeline {
	query := make([]float64, len(vector))
	for i, v := range vector {
		query[i] = float64(v)
	}
	return mongo.Pipeline{
		{{Key: "$vectorSearch", Value: bson.D{
			{Key: "index", Value: index},
			{Key: "path", Value: "embedding"},
			{Key: "queryVector", Value: query},
			{Key: "numCandidates", Value: int64(k * 10)},
			{Key: "limit", Value: int64(k)},
			{Key: "filter", Value: bson.D{{Key: "owner", Value: bson.D{{Key: "$eq", Value: owner}}}}},
		}}},
		{{Key: "$addFields", Value: bson.D{
			{Key: "score", Value: bson.D{{Key: "$meta", Value: "vectorSearchScore"}}},
		}}},
	}
}

func (s *MongoStore) Search(ctx context.Context, owner string, vector []float32, k int) ([]Hit, error) {
	if owner == "" {
		return nil, ErrNoOwner
	}
	if k <= 0 {
		return nil, nil
	}
	cur, err := s.collection.Aggregate(ctx, searchPipeline(s.index, owner, vector, k))
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer cur.Close(ctx)

	var hits []Hit
	for cur.Next(ctx) {
		var doc struct {
			Record `bson:",inline"`
			Score  float64 `bson:"score"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decoding memory: %w", err)
		}
		// An index without the owner filter field would let others through.
		if doc.Owner != owner {
			continue
		}
		hits = append(hits, Hit{Record: doc.Record, Score: doc.Score})
	}
	return hits, cur.Err()
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, mongoCloseTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}
