package service

import (
	"context"
	"time"

	"github.com/konfigurator/catalogstore/internal/article"
	"github.com/konfigurator/catalogstore/internal/article/lookup"
	"github.com/konfigurator/catalogstore/internal/article/registry"
	"github.com/konfigurator/catalogstore/internal/article/versions"
	"github.com/konfigurator/catalogstore/internal/lock"
	"github.com/konfigurator/catalogstore/internal/storage"
	"github.com/konfigurator/catalogstore/pkg/metrics"
)

// DefaultName is the display name given to the default article when it is bootstrapped.
const DefaultName = "Default"

// Service defines the catalog store operations used by the handler layer and the CLI.
type Service interface {
	ListArticles(ctx context.Context) ([]article.Article, error)
	CreateArticle(ctx context.Context, name string) (*article.Article, error)
	RenameArticle(ctx context.Context, id, newName string) (*article.Article, error)
	DeleteArticle(ctx context.Context, id string) (*article.Article, error)
	CloneArticle(ctx context.Context, id, newName string) (*article.Article, error)
	EnsureDefault(ctx context.Context) (*article.Article, error)

	SaveSnapshot(ctx context.Context, id string, payload []byte) (int64, error)
	ListVersions(ctx context.Context, id string) ([]article.Version, error)
	GetVersion(ctx context.Context, id string, version int64) (*article.Snapshot, error)
	GetLatestCatalog(ctx context.Context, id string) (*article.Catalog, error)

	GetArticleDataAndSourcesByName(ctx context.Context, name string, opts article.LookupOptions) (*article.LookupResult, error)
	PutSource(ctx context.Context, key string, data []byte) error
}

type Options struct {
	LockTimeout time.Duration
	Clock       func() time.Time
}

// Store composes the registry, the version store and the lookup service over
// one backend and one locker.
type Store struct {
	registry *registry.Registry
	versions *versions.Store
	sources  *lookup.StoredSources
	lookup   *lookup.Service
}

var _ Service = (*Store)(nil)

func New(backend storage.Backend, locker lock.Locker, opts Options) *Store {
	var regOpts []registry.Option
	var verOpts []versions.Option
	if opts.LockTimeout > 0 {
		regOpts = append(regOpts, registry.WithLockTimeout(opts.LockTimeout))
		verOpts = append(verOpts, versions.WithLockTimeout(opts.LockTimeout))
	}
	if opts.Clock != nil {
		regOpts = append(regOpts, registry.WithClock(opts.Clock))
		verOpts = append(verOpts, versions.WithClock(opts.Clock))
	}
	reg := registry.New(backend, locker, regOpts...)
	ver := versions.New(backend, locker, reg, verOpts...)
	src := lookup.NewStoredSources(backend)
	return &Store{
		registry: reg,
		versions: ver,
		sources:  src,
		lookup:   lookup.New(reg, ver, src),
	}
}

// NewMemoryService returns a Service backed by an in-memory backend and
// in-process locks.
func NewMemoryService() Service {
	return New(storage.NewMemoryBackend(), lock.NewLocal(), Options{})
}

func observe(op string, started time.Time, err error) {
	result := "ok"
	if err != nil {
		result = string(article.KindOf(err))
		if result == "" {
			result = "error"
		}
	}
	metrics.ObserveOp(op, result, started)
}

func (s *Store) ListArticles(ctx context.Context) (list []article.Article, err error) {
	defer func(t time.Time) { observe("list_articles", t, err) }(time.Now())
	return s.registry.List(ctx)
}

func (s *Store) CreateArticle(ctx context.Context, name string) (a *article.Article, err error) {
	defer func(t time.Time) { observe("create_article", t, err) }(time.Now())
	return s.registry.Create(ctx, name)
}

func (s *Store) RenameArticle(ctx context.Context, id, newName string) (a *article.Article, err error) {
	defer func(t time.Time) { observe("rename_article", t, err) }(time.Now())
	return s.registry.Rename(ctx, id, newName)
}

// DeleteArticle removes the article and its whole history. It returns nil, nil
// when the article does not exist.
func (s *Store) DeleteArticle(ctx context.Context, id string) (a *article.Article, err error) {
	defer func(t time.Time) { observe("delete_article", t, err) }(time.Now())
	return s.registry.Delete(ctx, id, s.versions.Purge)
}

// CloneArticle creates newName with a copy of the source's latest snapshot as
// its version 1. A source without snapshots yields a clone with an empty history.
func (s *Store) CloneArticle(ctx context.Context, id, newName string) (a *article.Article, err error) {
	defer func(t time.Time) { observe("clone_article", t, err) }(time.Now())

	ok, err := s.registry.Exists(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, article.NotFoundf("article %q not found", id)
	}
	return s.registry.CreateWith(ctx, newName, func(ctx context.Context, clone article.Article) error {
		// deletes take the registry lock too, so the source cannot vanish from here on
		ok, err := s.registry.Exists(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return article.NotFoundf("article %q not found", id)
		}
		latest, err := s.versions.GetLatestCatalog(ctx, id)
		if err != nil || latest == nil {
			return err
		}
		_, err = s.versions.Seed(ctx, clone.ID, latest.Payload)
		return err
	})
}

// EnsureDefault creates the protected default article when it is missing.
func (s *Store) EnsureDefault(ctx context.Context) (*article.Article, error) {
	a, _, err := s.registry.Ensure(ctx, article.DefaultID, DefaultName)
	return a, err
}

func (s *Store) SaveSnapshot(ctx context.Context, id string, payload []byte) (v int64, err error) {
	defer func(t time.Time) { observe("save_snapshot", t, err) }(time.Now())
	return s.versions.SaveSnapshot(ctx, id, payload)
}

func (s *Store) ListVersions(ctx context.Context, id string) (list []article.Version, err error) {
	defer func(t time.Time) { observe("list_versions", t, err) }(time.Now())
	return s.versions.ListVersions(ctx, id)
}

func (s *Store) GetVersion(ctx context.Context, id string, version int64) (snap *article.Snapshot, err error) {
	defer func(t time.Time) { observe("get_version", t, err) }(time.Now())
	return s.versions.GetVersion(ctx, id, version)
}

func (s *Store) GetLatestCatalog(ctx context.Context, id string) (c *article.Catalog, err error) {
	defer func(t time.Time) { observe("get_latest", t, err) }(time.Now())
	return s.versions.GetLatestCatalog(ctx, id)
}

func (s *Store) GetArticleDataAndSourcesByName(ctx context.Context, name string, opts article.LookupOptions) (r *article.LookupResult, err error) {
	defer func(t time.Time) { observe("lookup", t, err) }(time.Now())
	return s.lookup.GetArticleDataAndSourcesByName(ctx, name, opts)
}

func (s *Store) PutSource(ctx context.Context, key string, data []byte) (err error) {
	defer func(t time.Time) { observe("put_source", t, err) }(time.Now())
	return s.sources.Put(ctx, key, data)
}
