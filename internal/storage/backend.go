// Package storage provides the durable resource primitives the article store
// is built on. Resources are addressed by slash-separated logical paths
// ("versions/<id>/<version>.json") and every backend guarantees that a reader
// sees either the complete previous content or the complete new content.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
)

// ErrNotFound is returned by Read when the resource does not exist.
var ErrNotFound = errors.New("resource not found")

// Backend is the storage contract used by the registry and the version store.
type Backend interface {
	// WriteAtomic replaces the resource at p with data in one step.
	WriteAtomic(ctx context.Context, p string, data []byte) error
	// Read returns the resource content or ErrNotFound.
	Read(ctx context.Context, p string) ([]byte, error)
	// List returns the names of the direct children of dir in lexicographic
	// order. A missing dir lists as empty.
	List(ctx context.Context, dir string) ([]string, error)
	// Remove deletes the resource; removing a missing resource is not an error.
	Remove(ctx context.Context, p string) error
	Close() error
}

// CheckPath rejects paths that could escape the backend namespace.
func CheckPath(p string) error {
	if p == "" || strings.HasPrefix(p, "/") || strings.HasSuffix(p, "/") {
		return fmt.Errorf("invalid resource path %q", p)
	}
	for _, part := range strings.Split(p, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("invalid resource path %q", p)
		}
	}
	return nil
}

// Split returns the parent directory and leaf name of p.
func Split(p string) (dir, name string) {
	dir, name = path.Split(p)
	return strings.TrimSuffix(dir, "/"), name
}

// childrenOf filters keys under dir down to direct child names, sorted.
func childrenOf(keys []string, dir string) []string {
	prefix := dir + "/"
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		rest := k[len(prefix):]
		if rest == "" || strings.Contains(rest, "/") {
			continue
		}
		out = append(out, rest)
	}
	sort.Strings(out)
	return out
}
