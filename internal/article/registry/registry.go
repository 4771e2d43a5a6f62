// Package registry owns article identities: ids, display names and the
// case-insensitive uniqueness of names among live articles.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/konfigurator/catalogstore/internal/article"
	"github.com/konfigurator/catalogstore/internal/lock"
	"github.com/konfigurator/catalogstore/internal/storage"
	"github.com/konfigurator/catalogstore/pkg/logger"
)

const (
	articlesDir = "articles"
	// LockKey serializes every identity change so the uniqueness check and the
	// write that depends on it happen as one step.
	LockKey = "registry"
)

var log = logger.For("registry")

// ArticlePath is the resource holding an article's metadata.
func ArticlePath(id string) string { return articlesDir + "/" + id + ".json" }

// ValidID reports whether id can name an article resource.
func ValidID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, `/\`)
}

// Seed runs after the uniqueness check and before the new article record is
// written, while the registry lock is held. An error aborts the creation.
type Seed func(ctx context.Context, a article.Article) error

// Purge removes everything an article owns besides its metadata record.
type Purge func(ctx context.Context, id string) error

type Registry struct {
	backend     storage.Backend
	locker      lock.Locker
	lockTimeout time.Duration
	now         func() time.Time
	newID       func() string
}

type Option func(*Registry)

func WithLockTimeout(d time.Duration) Option { return func(r *Registry) { r.lockTimeout = d } }
func WithClock(now func() time.Time) Option  { return func(r *Registry) { r.now = now } }
func WithIDs(newID func() string) Option     { return func(r *Registry) { r.newID = newID } }

func New(backend storage.Backend, locker lock.Locker, opts ...Option) *Registry {
	r := &Registry{
		backend:     backend,
		locker:      locker,
		lockTimeout: 10 * time.Second,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// List returns all live articles ordered by folded name, then id.
func (r *Registry) List(ctx context.Context) ([]article.Article, error) {
	names, err := r.backend.List(ctx, articlesDir)
	if err != nil {
		return nil, article.IO("list articles", err)
	}
	out := make([]article.Article, 0, len(names))
	for _, n := range names {
		id, ok := strings.CutSuffix(n, ".json")
		if !ok {
			continue
		}
		a, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		// deleted between List and Read
		if a == nil {
			continue
		}
		out = append(out, *a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		ki, kj := article.NameKey(out[i].Name), article.NameKey(out[j].Name)
		if ki != kj {
			return ki < kj
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Get returns the article or nil when it does not exist.
func (r *Registry) Get(ctx context.Context, id string) (*article.Article, error) {
	if !ValidID(id) {
		return nil, nil
	}
	data, err := r.backend.Read(ctx, ArticlePath(id))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, article.IO("read article "+id, err)
	}
	var a article.Article
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, article.IO("decode article "+id, err)
	}
	return &a, nil
}

// Exists reports whether id names a live article.
func (r *Registry) Exists(ctx context.Context, id string) (bool, error) {
	a, err := r.Get(ctx, id)
	return a != nil, err
}

// FindByName resolves a display name (trimmed, case-insensitive). nil when none matches.
func (r *Registry) FindByName(ctx context.Context, name string) (*article.Article, error) {
	if strings.TrimSpace(name) == "" {
		return nil, nil
	}
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	key := article.NameKey(name)
	for i := range all {
		if article.NameKey(all[i].Name) == key {
			return &all[i], nil
		}
	}
	return nil, nil
}

func (r *Registry) lock(ctx context.Context) (lock.Unlock, error) {
	unlock, err := lock.Acquire(ctx, r.locker, LockKey, r.lockTimeout)
	if err != nil {
		return nil, article.IO("lock registry", err)
	}
	return unlock, nil
}

// checkUnique fails with DUPLICATE_NAME when a live article other than self holds name.
func (r *Registry) checkUnique(ctx context.Context, name, self string) error {
	all, err := r.List(ctx)
	if err != nil {
		return err
	}
	key := article.NameKey(name)
	for _, a := range all {
		if a.ID != self && article.NameKey(a.Name) == key {
			return article.DuplicateName(name)
		}
	}
	return nil
}

func (r *Registry) put(ctx context.Context, a *article.Article) error {
	data, err := json.Marshal(a)
	if err != nil {
		return article.IO("encode article "+a.ID, err)
	}
	if err := r.backend.WriteAtomic(ctx, ArticlePath(a.ID), data); err != nil {
		return article.IO("write article "+a.ID, err)
	}
	return nil
}

// Create registers a new article with an empty history.
func (r *Registry) Create(ctx context.Context, name string) (*article.Article, error) {
	return r.CreateWith(ctx, name, nil)
}

// CreateWith registers a new article, running seed before the record becomes
// visible so the article appears together with whatever seed wrote.
func (r *Registry) CreateWith(ctx context.Context, name string, seed Seed) (*article.Article, error) {
	clean, err := article.CleanName(name)
	if err != nil {
		return nil, err
	}
	unlock, err := r.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return r.create(ctx, r.newID(), clean, seed)
}

func (r *Registry) create(ctx context.Context, id, name string, seed Seed) (*article.Article, error) {
	if err := r.checkUnique(ctx, name, ""); err != nil {
		return nil, err
	}
	now := r.now()
	a := &article.Article{ID: id, Name: name, CreatedAt: now, UpdatedAt: now}
	if seed != nil {
		if err := seed(ctx, *a); err != nil {
			return nil, err
		}
	}
	if err := r.put(ctx, a); err != nil {
		return nil, err
	}
	log.Infof("created article %s (%q)", a.ID, a.Name)
	return a, nil
}

// Ensure returns the article with the given id, creating it under name when it
// does not exist yet. created reports whether this call created it.
func (r *Registry) Ensure(ctx context.Context, id, name string) (a *article.Article, created bool, err error) {
	if !ValidID(id) {
		return nil, false, article.Validationf("invalid article id %q", id)
	}
	clean, err := article.CleanName(name)
	if err != nil {
		return nil, false, err
	}
	unlock, err := r.lock(ctx)
	if err != nil {
		return nil, false, err
	}
	defer unlock()
	existing, err := r.Get(ctx, id)
	if err != nil || existing != nil {
		return existing, false, err
	}
	a, err = r.create(ctx, id, clean, nil)
	return a, err == nil, err
}

// Rename changes an article's display name.
func (r *Registry) Rename(ctx context.Context, id, newName string) (*article.Article, error) {
	clean, err := article.CleanName(newName)
	if err != nil {
		return nil, err
	}
	unlock, err := r.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	a, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, article.NotFoundf("article %q not found", id)
	}
	if err := r.checkUnique(ctx, clean, id); err != nil {
		return nil, err
	}
	old := a.Name
	a.Name = clean
	a.UpdatedAt = r.now()
	if err := r.put(ctx, a); err != nil {
		return nil, err
	}
	log.Infof("renamed article %s %q -> %q", id, old, clean)
	return a, nil
}

// Delete removes the article record and then calls purge for its history.
// It returns nil, nil when the article does not exist. DefaultID is refused.
func (r *Registry) Delete(ctx context.Context, id string, purge Purge) (*article.Article, error) {
	if id == article.DefaultID {
		return nil, &article.Error{Kind: article.KindValidation, Msg: `article "default" cannot be deleted`, Err: article.ErrProtected}
	}
	unlock, err := r.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	a, err := r.Get(ctx, id)
	if err != nil || a == nil {
		return nil, err
	}
	if err := r.backend.Remove(ctx, ArticlePath(id)); err != nil {
		return nil, article.IO("remove article "+id, err)
	}
	if purge != nil {
		if err := purge(ctx, id); err != nil {
			// the article is gone; leftover history is unreachable
			log.Warnf("article %s removed but purging its history failed: %v", id, err)
			return a, article.IO("purge history of "+id, err)
		}
	}
	log.Infof("deleted article %s (%q)", id, a.Name)
	return a, nil
}
