package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoConfig configures the MongoDB backend.
type MongoConfig struct {
	URI        string
	Database   string
	Collection string
	Timeout    time.Duration
}

// resourceDoc is the Mongo representation of one resource. A single-document
// replace is atomic, which gives WriteAtomic its guarantee.
type resourceDoc struct {
	Path      string    `bson:"_id"`
	Dir       string    `bson:"dir"`
	Name      string    `bson:"name"`
	Data      []byte    `bson:"data"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

// MongoBackend stores resources as documents of one collection.
type MongoBackend struct {
	client *mongo.Client
	col    *mongo.Collection
}

// NewMongoBackend wraps col and ensures the listing index exists. When client
// is non-nil the backend owns it and disconnects it on Close.
func NewMongoBackend(ctx context.Context, client *mongo.Client, col *mongo.Collection) (*MongoBackend, error) {
	idx := mongo.IndexModel{Keys: bson.D{{Key: "dir", Value: 1}, {Key: "name", Value: 1}}}
	if _, err := col.Indexes().CreateOne(ctx, idx); err != nil {
		return nil, fmt.Errorf("ensure resource index: %w", err)
	}
	return &MongoBackend{client: client, col: col}, nil
}

func (m *MongoBackend) WriteAtomic(ctx context.Context, p string, data []byte) error {
	if err := CheckPath(p); err != nil {
		return err
	}
	dir, name := Split(p)
	doc := resourceDoc{Path: p, Dir: dir, Name: name, Data: data, UpdatedAt: time.Now().UTC()}
	opts := options.Replace().SetUpsert(true)
	if _, err := m.col.ReplaceOne(ctx, bson.M{"_id": p}, doc, opts); err != nil {
		return fmt.Errorf("replace %s: %w", p, err)
	}
	return nil
}

func (m *MongoBackend) Read(ctx context.Context, p string) ([]byte, error) {
	var doc resourceDoc
	err := m.col.FindOne(ctx, bson.M{"_id": p}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.Data, nil
}

func (m *MongoBackend) List(ctx context.Context, dir string) ([]string, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "name", Value: 1}}).
		SetProjection(bson.M{"name": 1})
	cur, err := m.col.Find(ctx, bson.M{"dir": dir}, opts)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	defer cur.Close(ctx)
	out := []string{}
	for cur.Next(ctx) {
		var doc resourceDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.Name)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	// server-side ordering depends on collation; the contract is byte order
	sort.Strings(out)
	return out, nil
}

func (m *MongoBackend) Remove(ctx context.Context, p string) error {
	if _, err := m.col.DeleteOne(ctx, bson.M{"_id": p}); err != nil {
		return fmt.Errorf("remove %s: %w", p, err)
	}
	return nil
}

func (m *MongoBackend) Close() error {
	if m.client == nil {
		return nil
	}
	return m.client.Disconnect(context.Background())
}
