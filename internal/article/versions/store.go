// Package versions keeps the append-only snapshot history of each article and
// the pointer to its latest snapshot.
//
// A save allocates the next version id, writes the snapshot and then moves the
// pointer, all under the article's lock. A crash between the two writes leaves
// the previous pointer in place and an unreferenced snapshot behind; the next
// save skips past it.
package versions

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/konfigurator/catalogstore/internal/article"
	"github.com/konfigurator/catalogstore/internal/lock"
	"github.com/konfigurator/catalogstore/internal/storage"
	"github.com/konfigurator/catalogstore/pkg/logger"
	"github.com/konfigurator/catalogstore/pkg/metrics"
	"github.com/zeebo/blake3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	versionsDir = "versions"
	latestDir   = "latest"
	purgeFanout = 8
)

var log = logger.For("versions")

func VersionPath(id string, v int64) string {
	return fmt.Sprintf("%s/%s/%020d.json", versionsDir, id, v)
}

func PointerPath(id string) string { return latestDir + "/" + id + ".json" }

// LockKey is the per-article lock taken around a save.
func LockKey(id string) string { return "article:" + id }

// ArticleChecker reports whether an article is live.
type ArticleChecker interface {
	Exists(ctx context.Context, id string) (bool, error)
}

type Store struct {
	backend     storage.Backend
	locker      lock.Locker
	articles    ArticleChecker
	lockTimeout time.Duration
	now         func() time.Time
	reads       singleflight.Group
}

type Option func(*Store)

func WithLockTimeout(d time.Duration) Option { return func(s *Store) { s.lockTimeout = d } }
func WithClock(now func() time.Time) Option  { return func(s *Store) { s.now = now } }

func New(backend storage.Backend, locker lock.Locker, articles ArticleChecker, opts ...Option) *Store {
	s := &Store{
		backend:     backend,
		locker:      locker,
		articles:    articles,
		lockTimeout: 10 * time.Second,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Digest is the hex blake3 hash of a normalized payload.
func Digest(payload []byte) string {
	sum := blake3.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// SaveSnapshot appends payload to the article's history and makes it latest.
func (s *Store) SaveSnapshot(ctx context.Context, id string, payload []byte) (int64, error) {
	doc, err := article.NormalizePayload(payload)
	if err != nil {
		return 0, err
	}
	unlock, err := lock.Acquire(ctx, s.locker, LockKey(id), s.lockTimeout)
	if err != nil {
		return 0, article.IO("lock article "+id, err)
	}
	defer unlock()

	ok, err := s.articles.Exists(ctx, id)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, article.NotFoundf("article %q not found", id)
	}
	return s.append(ctx, id, doc)
}

// Seed writes payload as the first snapshot of an article that is not yet
// registered. The caller holds the registry lock, so no one else can save to id.
func (s *Store) Seed(ctx context.Context, id string, payload json.RawMessage) (int64, error) {
	doc, err := article.NormalizePayload(payload)
	if err != nil {
		return 0, err
	}
	unlock, err := lock.Acquire(ctx, s.locker, LockKey(id), s.lockTimeout)
	if err != nil {
		return 0, article.IO("lock article "+id, err)
	}
	defer unlock()
	return s.append(ctx, id, doc)
}

func (s *Store) append(ctx context.Context, id string, doc json.RawMessage) (int64, error) {
	v, err := s.nextVersion(ctx, id)
	if err != nil {
		return 0, err
	}
	now := s.now()
	snap := article.Snapshot{ArticleID: id, VersionID: v, CreatedAt: now, Digest: Digest(doc), Payload: doc}
	data, err := json.Marshal(snap)
	if err != nil {
		return 0, article.IO("encode snapshot", err)
	}
	if err := s.backend.WriteAtomic(ctx, VersionPath(id, v), data); err != nil {
		return 0, article.IO(fmt.Sprintf("write snapshot %s v%d", id, v), err)
	}

	ptr := article.Pointer{ArticleID: id, VersionID: v, UpdatedAt: now, Schema: article.Schema(doc)}
	data, err = json.Marshal(ptr)
	if err != nil {
		return 0, article.IO("encode pointer", err)
	}
	if err := s.backend.WriteAtomic(ctx, PointerPath(id), data); err != nil {
		log.Warnf("snapshot %s v%d written but pointer update failed: %v", id, v, err)
		return 0, article.IO("write pointer "+id, err)
	}
	s.reads.Forget(id)
	metrics.SnapshotsSaved.Inc()
	log.Infof("saved %s v%d", id, v)
	return v, nil
}

// versionIDs returns the article's snapshot ids in ascending order.
func (s *Store) versionIDs(ctx context.Context, id string) ([]int64, error) {
	names, err := s.backend.List(ctx, versionsDir+"/"+id)
	if err != nil {
		return nil, article.IO("list versions of "+id, err)
	}
	ids := make([]int64, 0, len(names))
	for _, n := range names {
		base, ok := strings.CutSuffix(n, ".json")
		if !ok {
			continue
		}
		v, err := strconv.ParseInt(base, 10, 64)
		if err != nil || v <= 0 {
			continue
		}
		ids = append(ids, v)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// nextVersion is one past the highest snapshot on disk, orphans included, so
// an id is never reused.
func (s *Store) nextVersion(ctx context.Context, id string) (int64, error) {
	ids, err := s.versionIDs(ctx, id)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 1, nil
	}
	return ids[len(ids)-1] + 1, nil
}

func (s *Store) readSnapshot(ctx context.Context, id string, v int64) (*article.Snapshot, error) {
	data, err := s.backend.Read(ctx, VersionPath(id, v))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, article.IO(fmt.Sprintf("read snapshot %s v%d", id, v), err)
	}
	var snap article.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, article.IO(fmt.Sprintf("decode snapshot %s v%d", id, v), err)
	}
	return &snap, nil
}

func (s *Store) readPointer(ctx context.Context, id string) (*article.Pointer, error) {
	data, err := s.backend.Read(ctx, PointerPath(id))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, article.IO("read pointer "+id, err)
	}
	var p article.Pointer
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, article.IO("decode pointer "+id, err)
	}
	return &p, nil
}

// ListVersions returns the article's history oldest first. An unknown article
// yields an error wrapping article.ErrArticleAbsent rather than a typed kind.
func (s *Store) ListVersions(ctx context.Context, id string) ([]article.Version, error) {
	ok, err := s.articles.Exists(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("list versions of %q: %w", id, article.ErrArticleAbsent)
	}
	ids, err := s.versionIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]article.Version, 0, len(ids))
	for _, v := range ids {
		snap, err := s.readSnapshot(ctx, id, v)
		if err != nil {
			return nil, err
		}
		if snap == nil {
			continue
		}
		out = append(out, article.Version{VersionID: snap.VersionID, CreatedAt: snap.CreatedAt, Digest: snap.Digest})
	}
	return out, nil
}

// GetVersion returns one snapshot of the article's history.
func (s *Store) GetVersion(ctx context.Context, id string, v int64) (*article.Snapshot, error) {
	ok, err := s.articles.Exists(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, article.NotFoundf("article %q not found", id)
	}
	snap, err := s.readSnapshot(ctx, id, v)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, article.NotFoundf("article %q has no version %d", id, v)
	}
	return snap, nil
}

// GetLatestCatalog returns the snapshot the pointer names, or nil when the
// article is unknown or has no snapshots yet. Concurrent reads of the same
// article share one backend round trip. The shared read is detached from any
// single caller's cancellation; each caller stops waiting on its own ctx.
func (s *Store) GetLatestCatalog(ctx context.Context, id string) (*article.Catalog, error) {
	flightCtx := context.WithoutCancel(ctx)
	ch := s.reads.DoChan(id, func() (any, error) {
		return s.latest(flightCtx, id)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, article.IO("read latest "+id, ctx.Err())
	case res = <-ch:
	}
	if res.Err != nil || res.Val == nil {
		return nil, res.Err
	}
	c := res.Val.(*article.Catalog)
	if c == nil {
		return nil, nil
	}
	cp := *c
	cp.Payload = bytes.Clone(c.Payload)
	cp.Schema = bytes.Clone(c.Schema)
	return &cp, nil
}

func (s *Store) latest(ctx context.Context, id string) (*article.Catalog, error) {
	ok, err := s.articles.Exists(ctx, id)
	if err != nil || !ok {
		return nil, err
	}
	ptr, err := s.readPointer(ctx, id)
	if err != nil || ptr == nil {
		return nil, err
	}
	snap, err := s.readSnapshot(ctx, id, ptr.VersionID)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		log.Warnf("pointer of %s names missing v%d", id, ptr.VersionID)
		return nil, nil
	}
	schema := ptr.Schema
	if len(schema) == 0 {
		schema = article.Schema(snap.Payload)
	}
	return &article.Catalog{
		ArticleID: id,
		VersionID: snap.VersionID,
		CreatedAt: snap.CreatedAt,
		Payload:   snap.Payload,
		Schema:    schema,
	}, nil
}

// Purge removes the pointer and every snapshot of id. The pointer goes first
// so a partial purge never leaves it naming a deleted snapshot.
func (s *Store) Purge(ctx context.Context, id string) error {
	unlock, err := lock.Acquire(ctx, s.locker, LockKey(id), s.lockTimeout)
	if err != nil {
		return article.IO("lock article "+id, err)
	}
	defer unlock()

	if err := s.backend.Remove(ctx, PointerPath(id)); err != nil {
		return article.IO("remove pointer "+id, err)
	}
	s.reads.Forget(id)
	ids, err := s.versionIDs(ctx, id)
	if err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(purgeFanout)
	for _, v := range ids {
		g.Go(func() error {
			return s.backend.Remove(gctx, VersionPath(id, v))
		})
	}
	if err := g.Wait(); err != nil {
		return article.IO("remove snapshots of "+id, err)
	}
	log.Debugf("purged %d snapshots of %s", len(ids), id)
	return nil
}
