package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/matheus3301/momento/internal/logging"
	"github.com/matheus3301/momento/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// SlotIndex records which download currently serves a logical media slot.
type SlotIndex interface {
	GetMediaSlot(ctx context.Context, slot string) (*store.MediaSlot, error)
	PutMediaSlot(ctx context.Context, m *store.MediaSlot) error
}

// Cache downloads remote media into a directory. Every lookup returns a
// usable reference: a local path on success, the remote URL otherwise.
type Cache struct {
	dir    string
	client *http.Client
	slots  SlotIndex
	logger *zap.Logger
	group  singleflight.Group
}

// NewCache creates a cache rooted at dir. slots may be nil, which disables
// slot deduplication.
func NewCache(dir string, client *http.Client, slots SlotIndex, logger *zap.Logger) *Cache {
	if client == nil {
		client = http.DefaultClient
	}
	logger = logging.OrNop(logger)
	return &Cache{dir: dir, client: client, slots: slots, logger: logger}
}

// Dir returns the cache directory.
func (c *Cache) Dir() string { return c.dir }

// CacheRemote downloads remote to localName and returns the local path, or
// remote itself if anything fails. Callers must not assume a local path.
func (c *Cache) CacheRemote(ctx context.Context, remote, localName string) string {
	if remote == "" {
		return remote
	}
	v, err, _ := c.group.Do(localName, func() (any, error) {
		return c.fetch(ctx, remote, localName)
	})
	if err != nil {
		c.logger.Warn("media download failed, using remote url",
			zap.String("url", remote), zap.String("name", localName), zap.Error(err))
		return remote
	}
	return v.(string)
}

// CacheSlot is CacheRemote with slot deduplication: a slot that already maps
// to remote with its file on disk is served without downloading again.
func (c *Cache) CacheSlot(ctx context.Context, slot, remote, localName string) string {
	if c.slots == nil {
		return c.CacheRemote(ctx, remote, localName)
	}
	prev, err := c.slots.GetMediaSlot(ctx, slot)
	if err != nil {
		c.logger.Warn("media slot lookup failed", zap.String("slot", slot), zap.Error(err))
	}
	if prev != nil && prev.SourceURL == remote && fileExists(prev.LocalPath) {
		return prev.LocalPath
	}

	got := c.CacheRemote(ctx, remote, localName)
	if got == remote {
		return got
	}
	if err := c.slots.PutMediaSlot(ctx, &store.MediaSlot{Slot: slot, SourceURL: remote, LocalPath: got}); err != nil {
		c.logger.Warn("media slot save failed", zap.String("slot", slot), zap.Error(err))
	}
	if prev != nil && prev.LocalPath != got {
		_ = os.Remove(prev.LocalPath)
	}
	return got
}

// Purge removes every cached file.
func (c *Cache) Purge() error {
	entries, err := os.ReadDir(c.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	var errs []error
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(c.dir, e.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Cache) fetch(ctx context.Context, remote, localName string) (string, error) {
	final := filepath.Join(c.dir, filepath.Base(localName))
	if fileExists(final) {
		return final, nil
	}
	if err := os.MkdirAll(c.dir, 0700); err != nil {
		return "", fmt.Errorf("create media dir: %w", err)
	}

	part := final + ".part"
	var offset int64
	if fi, err := os.Stat(part); err == nil {
		offset = fi.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, remote, nil)
	if err != nil {
		return "", err
	}
	if offset > 0 {
		req.Header.Set("Range", "bytes="+strconv.FormatInt(offset, 10)+"-")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	flags := os.O_CREATE | os.O_WRONLY
	switch {
	case resp.StatusCode == http.StatusPartialContent && offset > 0:
		flags |= os.O_APPEND
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable && offset > 0:
		// the partial file already holds the whole body
		return final, os.Rename(part, final)
	case resp.StatusCode == http.StatusOK:
		flags |= os.O_TRUNC
	default:
		return "", fmt.Errorf("get: unexpected status %d", resp.StatusCode)
	}

	f, err := os.OpenFile(part, flags, 0600)
	if err != nil {
		return "", fmt.Errorf("open partial file: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("download: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close partial file: %w", err)
	}
	if err := os.Rename(part, final); err != nil {
		return "", fmt.Errorf("finalize download: %w", err)
	}
	return final, nil
}

func fileExists(p string) bool {
	if p == "" {
		return false
	}
	fi, err := os.Stat(p)
	return err == nil && fi.Mode().IsRegular()
}
