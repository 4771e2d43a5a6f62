package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/konfigurator/catalogstore/internal/article"
	"github.com/konfigurator/catalogstore/internal/storage"
)

const sourcesDir = "sources"

// SourceProvider resolves reference sources by key.
type SourceProvider interface {
	// Sources returns the records for keys in the given order, skipping unknown keys.
	Sources(ctx context.Context, keys []string) ([]article.Source, error)
	// AllSources returns every known record ordered by key.
	AllSources(ctx context.Context) ([]article.Source, error)
}

func SourcePath(key string) string { return sourcesDir + "/" + key + ".json" }

func validKey(key string) bool {
	return key != "" && key != "." && key != ".." && !strings.ContainsAny(key, `/\`)
}

// StoredSources keeps source records next to the articles on the same backend.
type StoredSources struct {
	backend storage.Backend
}

func NewStoredSources(b storage.Backend) *StoredSources {
	return &StoredSources{backend: b}
}

// Put stores data under key, replacing any previous record.
func (s *StoredSources) Put(ctx context.Context, key string, data []byte) error {
	key = strings.TrimSpace(key)
	if !validKey(key) {
		return article.Validationf("invalid source key %q", key)
	}
	if !json.Valid(data) {
		return article.Validationf("source %q is not valid JSON", key)
	}
	if err := s.backend.WriteAtomic(ctx, SourcePath(key), data); err != nil {
		return article.IO("write source "+key, err)
	}
	return nil
}

func (s *StoredSources) get(ctx context.Context, key string) (*article.Source, error) {
	if !validKey(key) {
		return nil, nil
	}
	data, err := s.backend.Read(ctx, SourcePath(key))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, article.IO("read source "+key, err)
	}
	return &article.Source{Key: key, Data: json.RawMessage(data)}, nil
}

func (s *StoredSources) Sources(ctx context.Context, keys []string) ([]article.Source, error) {
	out := make([]article.Source, 0, len(keys))
	for _, k := range keys {
		src, err := s.get(ctx, k)
		if err != nil {
			return nil, err
		}
		if src == nil {
			log.Debugf("declared source %q is unknown", k)
			continue
		}
		out = append(out, *src)
	}
	return out, nil
}

func (s *StoredSources) AllSources(ctx context.Context) ([]article.Source, error) {
	names, err := s.backend.List(ctx, sourcesDir)
	if err != nil {
		return nil, article.IO("list sources", err)
	}
	keys := make([]string, 0, len(names))
	for _, n := range names {
		if k, ok := strings.CutSuffix(n, ".json"); ok {
			keys = append(keys, k)
		}
	}
	return s.Sources(ctx, keys)
}
