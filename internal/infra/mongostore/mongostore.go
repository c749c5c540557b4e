// Package mongostore stores substrate records as documents {_id: key, value}.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/boddenberg/burger-place-bfa-go/internal/infra/resilience"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("mongostore")

// DefaultCollection is used when no collection name is configured.
const DefaultCollection = "kv_items"

// Connect opens a pooled client and pings the primary.
func Connect(ctx context.Context, uri string, logger *zap.Logger) (*mongo.Client, error) {
	if uri == "" {
		return nil, fmt.Errorf("mongo connection uri is empty")
	}

	clientOptions := options.Client().ApplyURI(uri).
		SetMaxPoolSize(20).
		SetMinPoolSize(2).
		SetConnectTimeout(5 * time.Second).
		SetSocketTimeout(10 * time.Second)

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(connectCtx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}

	pingCtx, cancelPing := context.WithTimeout(ctx, 2*time.Second)
	defer cancelPing()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	logger.Info("connected to mongo")
	return client, nil
}

type document struct {
	Key       string    `bson:"_id"`
	Value     string    `bson:"value"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

// Store is a substrate backed by one collection.
type Store struct {
	coll  *mongo.Collection
	guard *resilience.Guard
}

// NewStore creates the substrate.
func NewStore(coll *mongo.Collection, guard *resilience.Guard) *Store {
	return &Store{coll: coll, guard: guard}
}

// GetItem loads the document for key.
func (s *Store) GetItem(ctx context.Context, key string) (string, bool, error) {
	ctx, span := tracer.Start(ctx, "Mongo.GetItem")
	defer span.End()
	span.SetAttributes(attribute.String("kv.key", key))

	var (
		doc   document
		found bool
	)
	err := s.guard.Do(ctx, func(ctx context.Context) error {
		err := s.coll.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
		if errors.Is(err, mongo.ErrNoDocuments) {
			found = false
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil || !found {
		return "", false, err
	}
	return doc.Value, true, nil
}

// SetItem upserts the document for key.
func (s *Store) SetItem(ctx context.Context, key, value string) error {
	ctx, span := tracer.Start(ctx, "Mongo.SetItem")
	defer span.End()
	span.SetAttributes(attribute.String("kv.key", key), attribute.Int("kv.bytes", len(value)))

	doc := document{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	return s.guard.Do(ctx, func(ctx context.Context) error {
		_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": key}, doc, options.Replace().SetUpsert(true))
		return err
	})
}

// RemoveItem deletes the document for key. Missing documents are not an error.
func (s *Store) RemoveItem(ctx context.Context, key string) error {
	ctx, span := tracer.Start(ctx, "Mongo.RemoveItem")
	defer span.End()
	span.SetAttributes(attribute.String("kv.key", key))

	return s.guard.Do(ctx, func(ctx context.Context) error {
		_, err := s.coll.DeleteOne(ctx, bson.M{"_id": key})
		return err
	})
}

// Ping checks the server is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.guard.Do(ctx, func(ctx context.Context) error {
		return s.coll.Database().Client().Ping(ctx, nil)
	})
}
