// Package database is the MongoDB side of the chat pipeline: sample
// documents for prompting, read-only execution of generated queries, and
// full exports.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/EasterCompany/dex-sylvr-service/config"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Store is the MongoDB client bound to one database.
type Store struct {
	client       *mongo.Client
	db           *mongo.Database
	queryTimeout time.Duration
	maxResults   int
}

// Connect opens a client for cfg.URI and verifies it with a ping.
func Connect(ctx context.Context, cfg *config.MongoConfig) (*Store, error) {
	if cfg == nil || cfg.URI == "" {
		return nil, fmt.Errorf("mongo uri is not configured")
	}
	connectTimeout := time.Duration(cfg.ConnectTimeoutSec) * time.Second

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(connectTimeout).
		SetServerSelectionTimeout(connectTimeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("could not create mongo client: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("could not reach mongo: %w", err)
	}

	return NewStore(client, cfg), nil
}

// NewStore wraps an existing client.
func NewStore(client *mongo.Client, cfg *config.MongoConfig) *Store {
	queryTimeout := time.Duration(cfg.QueryTimeoutSec) * time.Second
	if queryTimeout <= 0 {
		queryTimeout = 30 * time.Second
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 50
	}
	return &Store{
		client:       client,
		db:           client.Database(cfg.Database),
		queryTimeout: queryTimeout,
		maxResults:   maxResults,
	}
}

// Name returns the database name.
func (s *Store) Name() string {
	return s.db.Name()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// ListCollections returns the collection names of the database.
func (s *Store) ListCollections(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	names, err := s.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("could not list collections: %w", err)
	}
	return names, nil
}

// SampleDocuments fetches up to limit documents from collection as plain
// maps with ObjectIDs turned into hex strings.
func (s *Store) SampleDocuments(ctx context.Context, collection string, limit int) ([]map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	cursor, err := s.db.Collection(collection).Find(ctx, bson.D{}, options.Find().SetLimit(int64(limit)))
	if err != nil {
		return nil, fmt.Errorf("could not query %s: %w", collection, err)
	}
	docs, _, err := drain(ctx, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("could not read %s: %w", collection, err)
	}
	return docs, nil
}

// drain reads at most max documents and reports whether more were left.
func drain(ctx context.Context, cursor *mongo.Cursor, max int) ([]map[string]any, bool, error) {
	defer func() { _ = cursor.Close(context.Background()) }()

	docs := make([]map[string]any, 0)
	for cursor.Next(ctx) {
		if max > 0 && len(docs) == max {
			return docs, true, nil
		}
		var raw bson.D
		if err := cursor.Decode(&raw); err != nil {
			return nil, false, err
		}
		docs = append(docs, NormalizeDocument(raw))
	}
	if err := cursor.Err(); err != nil {
		return nil, false, err
	}
	return docs, false, nil
}
