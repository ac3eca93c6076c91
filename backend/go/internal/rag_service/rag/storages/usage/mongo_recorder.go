package usage

import (
	"context"
	"fmt"

	"brandbook/backend/go/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRecorder appends each event to the query log collection.
type MongoRecorder struct {
	coll *mongo.Collection
}

func NewMongoRecorder(coll *mongo.Collection) *MongoRecorder {
	return &MongoRecorder{coll: coll}
}

func (r *MongoRecorder) Record(ctx context.Context, event models.UsageEvent) error {
	if _, err := r.coll.InsertOne(ctx, event); err != nil {
		return fmt.Errorf("insert query log: %w", err)
	}
	return nil
}

// Recent returns the newest events for one document, or for all documents
// when documentID is empty.
func (r *MongoRecorder) Recent(ctx context.Context, documentID string, limit int64) ([]models.UsageEvent, error) {
	filter := bson.M{}
	if documentID != "" {
		filter["document_id"] = documentID
	}
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}).SetLimit(limit)
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("query log find: %w", err)
	}
	var events []models.UsageEvent
	if err := cur.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("query log decode: %w", err)
	}
	return events, nil
}

var _ Recorder = (*MongoRecorder)(nil)
