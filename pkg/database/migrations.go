package database

import (
	"context"
	"fmt"
	"time"

	"ridematch/pkg/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Migration struct {
	Version     int
	Description string
	Up          func(context.Context, *mongo.Database) error
}

type Migrator struct {
	db         *mongo.Database
	migrations []Migration
	logger     *logger.Logger
}

// NewMigrator builds the index migrations. quoteRetention sets the TTL on
// price quotes; zero disables expiry.
func NewMigrator(db *mongo.Database, quoteRetention time.Duration, log *logger.Logger) *Migrator {
	return &Migrator{
		db:         db,
		migrations: getMigrations(quoteRetention),
		logger:     log.WithComponent("migrator"),
	}
}

func (m *Migrator) Up(ctx context.Context) error {
	currentVersion, err := m.getCurrentVersion(ctx)
	if err != nil {
		return err
	}

	for _, migration := range m.migrations {
		if migration.Version <= currentVersion {
			continue
		}

		m.logger.WithField("version", migration.Version).Infof("Running migration: %s", migration.Description)

		if err := migration.Up(ctx, m.db); err != nil {
			return fmt.Errorf("migration %d failed: %w", migration.Version, err)
		}

		if err := m.updateVersion(ctx, migration.Version); err != nil {
			return fmt.Errorf("failed to update migration version: %w", err)
		}
	}

	return nil
}

func (m *Migrator) getCurrentVersion(ctx context.Context) (int, error) {
	var result struct {
		Version int `bson:"version"`
	}

	err := m.db.Collection(migrationsCollection).FindOne(ctx, bson.D{}).Decode(&result)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read migration version: %w", err)
	}

	return result.Version, nil
}

func (m *Migrator) updateVersion(ctx context.Context, version int) error {
	_, err := m.db.Collection(migrationsCollection).ReplaceOne(
		ctx,
		bson.D{},
		bson.D{{Key: "version", Value: version}, {Key: "updated_at", Value: time.Now()}},
		options.Replace().SetUpsert(true),
	)
	return err
}

func getMigrations(quoteRetention time.Duration) []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create rides collection indexes",
			Up:          createRidesIndexes,
		},
		{
			Version:     2,
			Description: "Create price_quotes collection indexes",
			Up: func(ctx context.Context, db *mongo.Database) error {
				return createPriceQuotesIndexes(ctx, db, quoteRetention)
			},
		},
	}
}

func createRidesIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := []mongo.IndexModel{
		{
			// pending feed: status + vehicle type, newest first
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "vehicle_type", Value: 1}, {Key: "requested_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "passenger_id", Value: 1}, {Key: "requested_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "driver_id", Value: 1}, {Key: "requested_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "rejected_by", Value: 1}},
		},
	}

	_, err := db.Collection(RidesCollection).Indexes().CreateMany(ctx, indexes)
	return err
}

func createPriceQuotesIndexes(ctx context.Context, db *mongo.Database, retention time.Duration) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "zone_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
	}

	if retention > 0 {
		indexes = append(indexes, mongo.IndexModel{
			Keys:    bson.D{{Key: "created_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(retention / time.Second)),
		})
	}

	_, err := db.Collection(PriceQuotesCollection).Indexes().CreateMany(ctx, indexes)
	return err
}
