package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"calllive-pipeline-go/internal/types"
)

// MongoStore is the primary backend: one collection per record kind.
type MongoStore struct {
	client    *mongo.Client
	raw       *mongo.Collection
	processed *mongo.Collection
	errs      *mongo.Collection
}

// OpenMongo connects and runs the liveness probe. A failed probe closes the
// client and returns the error; callers decide whether to fall back.
func OpenMongo(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		dctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = client.Disconnect(dctx)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	db := client.Database(database)
	return &MongoStore{
		client:    client,
		raw:       db.Collection(KindRaw),
		processed: db.Collection(KindProcessed),
		errs:      db.Collection(KindErrors),
	}, nil
}

func (s *MongoStore) Name() string { return "mongo" }

func (s *MongoStore) InsertRaw(ctx context.Context, t types.Transcript) error {
	doc, err := rawDocument(t, time.Now())
	if err != nil {
		return err
	}
	_, err = s.raw.InsertOne(ctx, doc)
	return err
}

func (s *MongoStore) InsertProcessed(ctx context.Context, r types.ProcessedResult) error {
	_, err := s.processed.InsertOne(ctx, r)
	return err
}

func (s *MongoStore) InsertError(ctx context.Context, e types.ErrorRecord) error {
	_, err := s.errs.InsertOne(ctx, e)
	return err
}

func (s *MongoStore) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	var err error
	if c.Raw, err = s.raw.CountDocuments(ctx, bson.D{}); err != nil {
		return c, fmt.Errorf("count raw: %w", err)
	}
	if c.Processed, err = s.processed.CountDocuments(ctx, bson.D{}); err != nil {
		return c, fmt.Errorf("count processed: %w", err)
	}
	if c.Errors, err = s.errs.CountDocuments(ctx, bson.D{}); err != nil {
		return c, fmt.Errorf("count errors: %w", err)
	}
	return c, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
