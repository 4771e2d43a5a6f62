package storage

import (
	"context"
	"fmt"

	"github.com/konfigurator/catalogstore/internal/database"
)

// Backend names accepted by Open.
const (
	KindMemory   = "memory"
	KindFS       = "fs"
	KindBadger   = "badger"
	KindMongo    = "mongo"
	KindMinIO    = "minio"
	KindSQLite   = "sqlite"
	KindPostgres = "postgres"
)

// Config selects and configures one backend.
type Config struct {
	Backend  string
	Root     string
	Compress bool
	Badger   BadgerConfig
	Mongo    MongoConfig
	MinIO    MinIOConfig
	SQLDSN   string
}

// Open builds the backend described by cfg, wrapped with compression when enabled.
func Open(ctx context.Context, cfg Config) (Backend, error) {
	b, err := open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if !cfg.Compress {
		return b, nil
	}
	c, err := NewCompressed(b)
	if err != nil {
		b.Close()
		return nil, err
	}
	return c, nil
}

func open(ctx context.Context, cfg Config) (Backend, error) {
	switch cfg.Backend {
	case KindMemory:
		return NewMemoryBackend(), nil
	case KindFS, "":
		return NewFSBackend(cfg.Root)
	case KindBadger:
		return OpenBadger(cfg.Badger)
	case KindMongo:
		client, err := database.ConnectMongoWithRetry(ctx, cfg.Mongo.URI, cfg.Mongo.Timeout, 5)
		if err != nil {
			return nil, err
		}
		col := client.Database(cfg.Mongo.Database).Collection(cfg.Mongo.Collection)
		b, err := NewMongoBackend(ctx, client, col)
		if err != nil {
			_ = client.Disconnect(ctx)
			return nil, err
		}
		return b, nil
	case KindMinIO:
		return NewMinIOBackend(ctx, cfg.MinIO)
	case KindSQLite:
		return OpenSQL(ctx, DialectSQLite, cfg.SQLDSN)
	case KindPostgres:
		return OpenSQL(ctx, DialectPostgres, cfg.SQLDSN)
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}
