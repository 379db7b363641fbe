package mongodb

import (
	"context"
	"fmt"
	"time"

	"ridematch/internal/models"
	"ridematch/internal/repositories/interfaces"
	"ridematch/pkg/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type priceQuoteRepository struct {
	collection *mongo.Collection
}

func NewPriceQuoteRepository(db *mongo.Database) interfaces.PriceQuoteRepository {
	return &priceQuoteRepository{
		collection: db.Collection(database.PriceQuotesCollection),
	}
}

func (r *priceQuoteRepository) Create(ctx context.Context, quote *models.PriceQuote) error {
	if quote.ID.IsZero() {
		quote.ID = primitive.NewObjectID()
	}

	if _, err := r.collection.InsertOne(ctx, quote); err != nil {
		return fmt.Errorf("failed to create price quote: %w", err)
	}

	return nil
}

func (r *priceQuoteRepository) AverageSignalMultiplier(ctx context.Context, zoneID string, since time.Time) (float64, bool, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"zone_id":    zoneID,
			"created_at": bson.M{"$gte": since},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":   nil,
			"avg":   bson.M{"$avg": "$signal_multiplier"},
			"count": bson.M{"$sum": 1},
		}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, false, fmt.Errorf("failed to aggregate zone history: %w", err)
	}
	defer cursor.Close(ctx)

	var result struct {
		Avg   float64 `bson:"avg"`
		Count int64   `bson:"count"`
	}

	if !cursor.Next(ctx) {
		return 0, false, cursor.Err()
	}
	if err := cursor.Decode(&result); err != nil {
		return 0, false, fmt.Errorf("failed to decode zone history: %w", err)
	}

	return result.Avg, result.Count > 0, nil
}
