// Package lookup resolves an article by its external display name and bundles
// its latest catalog with the reference sources the catalog declares.
package lookup

import (
	"context"

	"github.com/konfigurator/catalogstore/internal/article"
	"github.com/konfigurator/catalogstore/pkg/logger"
)

var log = logger.For("lookup")

type ArticleFinder interface {
	FindByName(ctx context.Context, name string) (*article.Article, error)
}

type LatestReader interface {
	GetLatestCatalog(ctx context.Context, id string) (*article.Catalog, error)
}

type Service struct {
	articles ArticleFinder
	latest   LatestReader
	sources  SourceProvider
}

func New(articles ArticleFinder, latest LatestReader, sources SourceProvider) *Service {
	return &Service{articles: articles, latest: latest, sources: sources}
}

// GetArticleDataAndSourcesByName returns nil when no live article carries name.
// When the latest catalog declares no source keys, every known source is
// returned if opts.FallbackAllWhenNoKeys is set and none otherwise.
func (s *Service) GetArticleDataAndSourcesByName(ctx context.Context, name string, opts article.LookupOptions) (*article.LookupResult, error) {
	a, err := s.articles.FindByName(ctx, name)
	if err != nil || a == nil {
		return nil, err
	}
	latest, err := s.latest.GetLatestCatalog(ctx, a.ID)
	if err != nil {
		return nil, err
	}

	var keys []string
	if latest != nil {
		keys = article.SourceKeys(latest.Payload)
	}
	var sources []article.Source
	switch {
	case len(keys) > 0:
		sources, err = s.sources.Sources(ctx, keys)
	case opts.FallbackAllWhenNoKeys:
		sources, err = s.sources.AllSources(ctx)
	}
	if err != nil {
		return nil, err
	}
	if sources == nil {
		sources = []article.Source{}
	}
	log.Debugf("resolved %q to %s with %d sources", name, a.ID, len(sources))
	return &article.LookupResult{Article: *a, Catalog: latest, Sources: sources}, nil
}
