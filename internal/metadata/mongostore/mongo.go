// Package mongostore keeps metadata documents in MongoDB. Every document
// lives in one physical collection, keyed by its full reference path.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/driftbox/driftbox/internal/logging"
	"github.com/driftbox/driftbox/internal/metadata"
)

const physicalCollection = "documents"

// Options configures Open.
type Options struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
	Logger         *logging.Logger
}

// Store is a metadata.Store over a MongoDB collection.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
}

type record struct {
	ID         string `bson:"_id"`
	Collection string `bson:"collection"`
	Name       string `bson:"name"`
	Data       bson.M `bson:"data"`
	Seq        int64  `bson:"seq"`
}

// Open connects, waits for the server and ensures the listing index.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	if opts.Database == "" {
		opts.Database = "driftbox"
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(opts.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to create mongo client: %w", err)
	}

	ping := func(ctx context.Context) error {
		return client.Ping(ctx, readpref.Primary())
	}
	if err := metadata.ConnectWithRetry(ctx, opts.Logger, "mongo", opts.ConnectTimeout, ping); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	coll := client.Database(opts.Database).Collection(physicalCollection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "collection", Value: 1}, {Key: "seq", Value: 1}},
	})
	if err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	opts.Logger.Debug().Str("database", opts.Database).Msg("Metadata store connected")
	return &Store{client: client, coll: coll}, nil
}

func key(ref metadata.DocumentRef) string {
	return ref.Path()
}

func (s *Store) Get(ctx context.Context, ref metadata.DocumentRef) (metadata.Document, error) {
	var rec record
	err := s.coll.FindOne(ctx, bson.M{"_id": key(ref)}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%s: %w", ref, metadata.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", ref, err)
	}
	return toDocument(rec.Data), nil
}

// Set replaces the data but keeps seq, so an overwritten document stays in
// its original Stream position.
func (s *Store) Set(ctx context.Context, ref metadata.DocumentRef, doc metadata.Document) error {
	update := bson.M{
		"$set": bson.M{
			"collection": string(ref.Collection),
			"name":       ref.ID,
			"data":       bson.M(doc.Clone()),
		},
		"$setOnInsert": bson.M{"seq": time.Now().UnixNano()},
	}
	_, err := s.coll.UpdateOne(ctx, bson.M{"_id": key(ref)}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", ref, err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, ref metadata.DocumentRef, fields metadata.Document) error {
	set := bson.M{}
	for k, v := range fields {
		set["data."+k] = v
	}
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": key(ref)}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", ref, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", ref, metadata.ErrNotFound)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, ref metadata.DocumentRef) error {
	if _, err := s.coll.DeleteOne(ctx, bson.M{"_id": key(ref)}); err != nil {
		return fmt.Errorf("failed to delete %s: %w", ref, err)
	}
	return nil
}

func (s *Store) Stream(ctx context.Context, col metadata.CollectionRef) ([]metadata.Snapshot, error) {
	cur, err := s.coll.Find(ctx,
		bson.M{"collection": string(col)},
		options.Find().SetSort(bson.D{{Key: "seq", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to stream %s: %w", col, err)
	}
	defer cur.Close(ctx)

	var out []metadata.Snapshot
	for cur.Next(ctx) {
		var rec record
		if err := cur.Decode(&rec); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", col, err)
		}
		out = append(out, metadata.Snapshot{ID: rec.Name, Data: toDocument(rec.Data)})
	}
	return out, cur.Err()
}

func (s *Store) Exists(ctx context.Context, ref metadata.DocumentRef) (bool, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{"_id": key(ref)}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check %s: %w", ref, err)
	}
	return n > 0, nil
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// toDocument converts decoded BSON into a Document. int32 values are widened
// so callers see the same integer type every backend returns.
func toDocument(m bson.M) metadata.Document {
	doc := make(metadata.Document, len(m))
	for k, v := range m {
		if n, ok := v.(int32); ok {
			v = int64(n)
		}
		doc[k] = v
	}
	return doc
}
