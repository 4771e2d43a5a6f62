package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// SQL dialects supported by SQLBackend, named after their database/sql drivers.
const (
	DialectSQLite   = "sqlite3"
	DialectPostgres = "postgres"
)

var schemaByDialect = map[string]string{
	DialectSQLite: `CREATE TABLE IF NOT EXISTS catalog_resources (
	dir TEXT NOT NULL,
	name TEXT NOT NULL,
	data BLOB NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (dir, name)
)`,
	DialectPostgres: `CREATE TABLE IF NOT EXISTS catalog_resources (
	dir TEXT NOT NULL,
	name TEXT NOT NULL,
	data BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (dir, name)
)`,
}

// SQLBackend stores resources as rows of catalog_resources. Each write is a
// single upsert statement, which the database applies atomically.
type SQLBackend struct {
	db      *sql.DB
	dialect string
}

// OpenSQL opens dsn with the driver for dialect and creates the table.
func OpenSQL(ctx context.Context, dialect, dsn string) (*SQLBackend, error) {
	schema, ok := schemaByDialect[dialect]
	if !ok {
		return nil, fmt.Errorf("unsupported sql dialect %q", dialect)
	}
	db, err := sql.Open(dialect, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	if dialect == DialectSQLite {
		// sqlite allows one writer; a single connection also keeps ":memory:" databases shared
		db.SetMaxOpenConns(1)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create catalog_resources: %w", err)
	}
	return &SQLBackend{db: db, dialect: dialect}, nil
}

// rebind rewrites ? placeholders into $n for postgres.
func (b *SQLBackend) rebind(q string) string {
	if b.dialect != DialectPostgres {
		return q
	}
	var sb strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			sb.WriteString("$" + strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func (b *SQLBackend) WriteAtomic(ctx context.Context, p string, data []byte) error {
	if err := CheckPath(p); err != nil {
		return err
	}
	dir, name := Split(p)
	q := b.rebind(`INSERT INTO catalog_resources (dir, name, data, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT (dir, name) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`)
	if _, err := b.db.ExecContext(ctx, q, dir, name, data, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert %s: %w", p, err)
	}
	return nil
}

func (b *SQLBackend) Read(ctx context.Context, p string) ([]byte, error) {
	dir, name := Split(p)
	var data []byte
	err := b.db.QueryRowContext(ctx, b.rebind(`SELECT data FROM catalog_resources WHERE dir = ? AND name = ?`), dir, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	return data, nil
}

func (b *SQLBackend) List(ctx context.Context, dir string) ([]string, error) {
	rows, err := b.db.QueryContext(ctx, b.rebind(`SELECT name FROM catalog_resources WHERE dir = ? ORDER BY name`), dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

func (b *SQLBackend) Remove(ctx context.Context, p string) error {
	dir, name := Split(p)
	if _, err := b.db.ExecContext(ctx, b.rebind(`DELETE FROM catalog_resources WHERE dir = ? AND name = ?`), dir, name); err != nil {
		return fmt.Errorf("remove %s: %w", p, err)
	}
	return nil
}

func (b *SQLBackend) Close() error { return b.db.Close() }
