package storage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backendSuite runs the Backend contract against b.
func backendSuite(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()

	t.Run("read missing", func(t *testing.T) {
		_, err := b.Read(ctx, "articles/missing.json")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("write read overwrite", func(t *testing.T) {
		require.NoError(t, b.WriteAtomic(ctx, "articles/a1.json", []byte(`{"v":1}`)))
		got, err := b.Read(ctx, "articles/a1.json")
		require.NoError(t, err)
		assert.Equal(t, `{"v":1}`, string(got))

		require.NoError(t, b.WriteAtomic(ctx, "articles/a1.json", []byte(`{"v":2}`)))
		got, err = b.Read(ctx, "articles/a1.json")
		require.NoError(t, err)
		assert.Equal(t, `{"v":2}`, string(got))
	})

	t.Run("list direct children in order", func(t *testing.T) {
		for _, p := range []string{
			"versions/x/00000000000000000002.json",
			"versions/x/00000000000000000010.json",
			"versions/x/00000000000000000001.json",
			"versions/xy/00000000000000000001.json",
			"versions/x/nested/deep.json",
		} {
			require.NoError(t, b.WriteAtomic(ctx, p, []byte(`{}`)))
		}
		names, err := b.List(ctx, "versions/x")
		require.NoError(t, err)
		assert.Equal(t, []string{
			"00000000000000000001.json",
			"00000000000000000002.json",
			"00000000000000000010.json",
		}, names)

		again, err := b.List(ctx, "versions/x")
		require.NoError(t, err)
		assert.Equal(t, names, again)

		empty, err := b.List(ctx, "versions/none")
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("remove is idempotent", func(t *testing.T) {
		require.NoError(t, b.WriteAtomic(ctx, "latest/r.json", []byte(`{}`)))
		require.NoError(t, b.Remove(ctx, "latest/r.json"))
		require.NoError(t, b.Remove(ctx, "latest/r.json"))
		_, err := b.Read(ctx, "latest/r.json")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("rejects escaping paths", func(t *testing.T) {
		for _, p := range []string{"", "/abs", "a/../b", "dir/", "a//b"} {
			require.Error(t, b.WriteAtomic(ctx, p, []byte(`{}`)), "path %q", p)
		}
	})

	t.Run("readers never see partial writes", func(t *testing.T) {
		small := []byte(`{"v":"a"}`)
		large := []byte(`{"v":"` + strings.Repeat("b", 64*1024) + `"}`)
		require.NoError(t, b.WriteAtomic(ctx, "latest/hot.json", small))

		var wg sync.WaitGroup
		stop := make(chan struct{})
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer close(stop)
			for i := 0; i < 50; i++ {
				data := small
				if i%2 == 0 {
					data = large
				}
				if err := b.WriteAtomic(ctx, "latest/hot.json", data); err != nil {
					t.Errorf("write: %v", err)
					return
				}
			}
		}()
		for done := false; !done; {
			select {
			case <-stop:
				done = true
			default:
			}
			got, err := b.Read(ctx, "latest/hot.json")
			require.NoError(t, err)
			require.True(t, bytes.Equal(got, small) || bytes.Equal(got, large), "observed partial content (%d bytes)", len(got))
		}
		wg.Wait()
	})
}

func TestMemoryBackend(t *testing.T) {
	backendSuite(t, NewMemoryBackend())
}

func TestFSBackend(t *testing.T) {
	root := t.TempDir()
	b, err := NewFSBackend(root)
	require.NoError(t, err)
	backendSuite(t, b)

	// no temp files survive a successful write, and stray ones are not listed
	require.NoError(t, b.WriteAtomic(context.Background(), "articles/t.json", []byte(`{}`)))
	require.NoError(t, os.WriteFile(filepath.Join(root, "articles", tmpPrefix+"crashed"), []byte("x"), 0o600))
	names, err := b.List(context.Background(), "articles")
	require.NoError(t, err)
	for _, n := range names {
		assert.False(t, strings.HasPrefix(n, tmpPrefix), "temp file listed: %s", n)
	}
}

func TestFSBackend_RequiresRoot(t *testing.T) {
	_, err := NewFSBackend("")
	require.Error(t, err)
}

func TestBadgerBackend(t *testing.T) {
	b, err := OpenBadger(BadgerConfig{InMemory: true})
	require.NoError(t, err)
	defer b.Close()
	backendSuite(t, b)
}

func TestBadgerBackend_Persists(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	b, err := OpenBadger(BadgerConfig{Path: dir, SyncWrites: true})
	require.NoError(t, err)
	require.NoError(t, b.WriteAtomic(ctx, "articles/p.json", []byte(`{"p":1}`)))
	require.NoError(t, b.Close())

	b2, err := OpenBadger(BadgerConfig{Path: dir})
	require.NoError(t, err)
	defer b2.Close()
	got, err := b2.Read(ctx, "articles/p.json")
	require.NoError(t, err)
	assert.Equal(t, `{"p":1}`, string(got))
}

func TestSQLiteBackend(t *testing.T) {
	b, err := OpenSQL(context.Background(), DialectSQLite, ":memory:")
	require.NoError(t, err)
	defer b.Close()
	backendSuite(t, b)
}

func TestSQLBackend_Rebind(t *testing.T) {
	pg := &SQLBackend{dialect: DialectPostgres}
	assert.Equal(t, "WHERE dir = $1 AND name = $2", pg.rebind("WHERE dir = ? AND name = ?"))
	lite := &SQLBackend{dialect: DialectSQLite}
	assert.Equal(t, "WHERE dir = ?", lite.rebind("WHERE dir = ?"))

	_, err := OpenSQL(context.Background(), "oracle", "")
	require.Error(t, err)
}

func TestPostgresBackend(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	b, err := OpenSQL(context.Background(), DialectPostgres, dsn)
	require.NoError(t, err)
	defer b.Close()
	backendSuite(t, b)
}

func TestMongoBackend(t *testing.T) {
	uri := os.Getenv("TEST_MONGODB_URI")
	if uri == "" {
		t.Skip("TEST_MONGODB_URI not set")
	}
	b, err := Open(context.Background(), Config{Backend: KindMongo, Mongo: MongoConfig{
		URI: uri, Database: "catalogstore_test", Collection: "resources_" + time.Now().Format("150405.000000"), Timeout: 5 * time.Second,
	}})
	require.NoError(t, err)
	defer b.Close()
	backendSuite(t, b)
}

func TestMinIOBackend(t *testing.T) {
	endpoint := os.Getenv("TEST_MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("TEST_MINIO_ENDPOINT not set")
	}
	b, err := NewMinIOBackend(context.Background(), MinIOConfig{
		Endpoint:  endpoint,
		AccessKey: os.Getenv("TEST_MINIO_ACCESS_KEY"),
		SecretKey: os.Getenv("TEST_MINIO_SECRET_KEY"),
		Bucket:    "catalogstore-test",
		Prefix:    "run-" + time.Now().Format("150405.000000"),
	})
	require.NoError(t, err)
	backendSuite(t, b)
}

func TestCompressed(t *testing.T) {
	inner := NewMemoryBackend()
	c, err := NewCompressed(inner)
	require.NoError(t, err)
	defer c.Close()
	backendSuite(t, c)

	ctx := context.Background()
	payload := []byte(`{"sections":[` + strings.Repeat(`{"id":1},`, 200) + `{"id":2}]}`)
	require.NoError(t, c.WriteAtomic(ctx, "versions/z/00000000000000000001.json", payload))

	raw, err := inner.Read(ctx, "versions/z/00000000000000000001.json")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(raw, zstdMagic))
	assert.Less(t, len(raw), len(payload))

	got, err := c.Read(ctx, "versions/z/00000000000000000001.json")
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	// resources written before compression was enabled stay readable
	require.NoError(t, inner.WriteAtomic(ctx, "articles/legacy.json", []byte(`{"legacy":true}`)))
	got, err = c.Read(ctx, "articles/legacy.json")
	require.NoError(t, err)
	assert.Equal(t, `{"legacy":true}`, string(got))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	b, err := Open(ctx, Config{Backend: KindFS, Root: t.TempDir(), Compress: true})
	require.NoError(t, err)
	_, ok := b.(*Compressed)
	assert.True(t, ok)
	require.NoError(t, b.Close())

	b, err = Open(ctx, Config{Backend: KindMemory})
	require.NoError(t, err)
	_, ok = b.(*MemoryBackend)
	assert.True(t, ok)

	_, err = Open(ctx, Config{Backend: "floppy"})
	require.Error(t, err)
}

func TestSplit(t *testing.T) {
	dir, name := Split("versions/a/0001.json")
	assert.Equal(t, "versions/a", dir)
	assert.Equal(t, "0001.json", name)
}
