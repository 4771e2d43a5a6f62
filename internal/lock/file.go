package lock

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/konfigurator/catalogstore/pkg/logger"
	"golang.org/x/sys/unix"
)

const (
	minPoll = 5 * time.Millisecond
	maxPoll = 200 * time.Millisecond
)

// File serializes holders across processes sharing a directory, using one
// flock(2)-ed file per key. Goroutines of the same process queue on an
// in-process lock first so only one of them polls the file.
type File struct {
	dir   string
	local *Local
}

// NewFile creates dir if needed.
func NewFile(dir string) (*File, error) {
	if dir == "" {
		return nil, errors.New("file locker: directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	return &File{dir: dir, local: NewLocal()}, nil
}

func (f *File) path(key string) string {
	return filepath.Join(f.dir, url.PathEscape(key)+".lock")
}

func (f *File) Lock(ctx context.Context, key string) (Unlock, error) {
	started := time.Now()
	unlockLocal, err := f.local.Lock(ctx, key)
	if err != nil {
		return nil, err
	}
	file, err := os.OpenFile(f.path(key), os.O_CREATE|os.O_RDWR, 0o640)
	if err != nil {
		unlockLocal()
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := flockWait(ctx, file); err != nil {
		file.Close()
		unlockLocal()
		return nil, err
	}
	observeWait("file", started)
	var once sync.Once
	return func() {
		once.Do(func() {
			if err := unix.Flock(int(file.Fd()), unix.LOCK_UN); err != nil {
				logger.For("lock").Warnf("release %s: %v", key, err)
			}
			file.Close()
			unlockLocal()
		})
	}, nil
}

// flockWait polls a non-blocking exclusive flock with capped backoff until it
// succeeds or ctx is done.
func flockWait(ctx context.Context, file *os.File) error {
	backoff := minPoll
	for {
		err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return nil
		}
		if !errors.Is(err, unix.EWOULDBLOCK) {
			return fmt.Errorf("flock: %w", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxPoll {
			backoff = maxPoll
		}
	}
}
