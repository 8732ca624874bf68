package database

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"evhelper/internal/config"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

var (
	client   *mongo.Client
	database *mongo.Database
	once     sync.Once
)

// InitMongoDB initializes MongoDB connection
func InitMongoDB(cfg config.MongoConfig) error {
	var err error

	once.Do(func() {
		err = connectToMongoDB(cfg)
	})

	return err
}

func connectToMongoDB(cfg config.MongoConfig) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(cfg.URI).
		SetMaxPoolSize(cfg.MaxPoolSize).
		SetMinPoolSize(cfg.MinPoolSize).
		SetMaxConnIdleTime(cfg.MaxConnIdleTime).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetServerSelectionTimeout(cfg.ServerSelectionTimeout).
		SetRetryWrites(true).
		SetRetryReads(true)

	var err error
	client, err = mongo.Connect(ctx, clientOptions)
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err = client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	database = client.Database(cfg.Database)

	log.Printf("Connected to MongoDB database: %s", cfg.Database)

	go func() {
		if err := createIndexes(); err != nil {
			log.Printf("Warning: Failed to create indexes: %v", err)
		}
	}()

	return nil
}

// GetDatabase returns the database instance
func GetDatabase() *mongo.Database {
	if database == nil {
		log.Fatal("Database not initialized. Call InitMongoDB first.")
	}
	return database
}

// GetDB is a shorthand for GetDatabase
func GetDB() *mongo.Database {
	return GetDatabase()
}

// Disconnect closes MongoDB connection
func Disconnect() error {
	if client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return client.Disconnect(ctx)
	}
	return nil
}

// HealthCheck reports connection state for the health endpoint.
func HealthCheck() map[string]interface{} {
	if database == nil {
		return map[string]interface{}{
			"status": "disconnected",
			"error":  "database not initialized",
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return map[string]interface{}{
			"status": "error",
			"error":  err.Error(),
		}
	}

	return map[string]interface{}{
		"status":   "connected",
		"database": database.Name(),
	}
}

// createIndexes creates necessary database indexes.
//
// The expires_at index on request_messages carries expireAfterSeconds=0,
// so message retention is enforced by the storage engine itself. Nothing
// in the application polls for or hides expired rows.
func createIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	indexes := []struct {
		collection string
		indexes    []mongo.IndexModel
	}{
		{
			collection: "users",
			indexes: []mongo.IndexModel{
				{
					Keys:    bson.D{{Key: "email", Value: 1}},
					Options: options.Index().SetUnique(true),
				},
				{
					Keys: bson.D{{Key: "city", Value: 1}},
				},
				{
					Keys: bson.D{{Key: "is_active_helper", Value: 1}},
				},
			},
		},
		{
			collection: "charging_requests",
			indexes: []mongo.IndexModel{
				{
					Keys: bson.D{{Key: "status", Value: 1}},
				},
				{
					Keys: bson.D{{Key: "requester_id", Value: 1}},
				},
				{
					Keys: bson.D{{Key: "helper_id", Value: 1}},
				},
				{
					Keys: bson.D{
						{Key: "city", Value: 1},
						{Key: "status", Value: 1},
					},
				},
				{
					Keys: bson.D{{Key: "created_at", Value: 1}},
				},
			},
		},
		{
			collection: "request_messages",
			indexes: []mongo.IndexModel{
				{
					Keys: bson.D{{Key: "request_id", Value: 1}},
				},
				{
					Keys: bson.D{{Key: "sender_id", Value: 1}},
				},
				{
					Keys:    bson.D{{Key: "expires_at", Value: 1}},
					Options: options.Index().SetExpireAfterSeconds(0),
				},
			},
		},
	}

	for _, indexGroup := range indexes {
		collection := database.Collection(indexGroup.collection)

		if len(indexGroup.indexes) > 0 {
			_, err := collection.Indexes().CreateMany(ctx, indexGroup.indexes)
			if err != nil {
				log.Printf("Failed to create indexes for collection %s: %v", indexGroup.collection, err)
				continue
			}
			log.Printf("Created %d indexes for collection: %s", len(indexGroup.indexes), indexGroup.collection)
		}
	}

	return nil
}

// GetCollection returns a collection with error handling
func GetCollection(name string) *mongo.Collection {
	if database == nil {
		log.Fatal("Database not initialized")
	}
	return database.Collection(name)
}
