package sync

import (
	"context"
	"errors"
	"fmt"
	"maps"
	stdsync "sync"
	"time"

	"github.com/matheus3301/momento/internal/bus"
	"github.com/matheus3301/momento/internal/local"
	"github.com/matheus3301/momento/internal/model"
	"github.com/matheus3301/momento/internal/remote"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Kind names one independently synced entity collection.
type Kind string

const (
	KindProfile Kind = "profile"
	KindFriends Kind = "friends"
	KindPhotos  Kind = "photos"
	KindFeed    Kind = "feed"
	KindAlbums  Kind = "albums"
	KindChats   Kind = "chats"
)

// Kinds lists every kind in initial sync order.
var Kinds = []Kind{KindProfile, KindFriends, KindPhotos, KindFeed, KindAlbums, KindChats}

// deps is the initial sync dependency graph: a kind starts once all of
// its dependencies have finished, successfully or not.
var deps = map[Kind][]Kind{
	KindFriends: {KindProfile},
	KindPhotos:  {KindProfile},
	KindAlbums:  {KindProfile},
	KindFeed:    {KindFriends},
	KindChats:   {KindFriends},
}

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown sync kind %q", s)
}

// Remote is the server API the coordinator reads from.
type Remote interface {
	Fetch(ctx context.Context, resource string, opts remote.FetchOptions) (*remote.Batch, error)
	FetchChats(ctx context.Context, since *time.Time) (*remote.ChatBatch, error)
	ChatInfo(ctx context.Context, chatID string) (*remote.ChatInfo, error)
	Profile(ctx context.Context) (*model.User, error)
}

// MediaCache downloads photo media into the local cache.
type MediaCache interface {
	CacheSlot(ctx context.Context, slot, remote, localName string) string
}

// Result describes one finished kind sync. It is the payload of
// bus.KindSyncCompleted and bus.KindSyncFailed.
type Result struct {
	Kind      Kind
	Bootstrap bool
	Items     int
	Removed   int
	Started   time.Time
	Duration  time.Duration
	Err       error
}

// Options configures a Coordinator.
type Options struct {
	Stores     *local.Stores
	Remote     Remote
	Media      MediaCache
	Bus        *bus.Bus
	Logger     *zap.Logger
	CacheWeeks int
	Interval   time.Duration
	Now        func() time.Time
}

// Coordinator decides per kind between a bootstrap and an incremental
// fetch and merges the results into the local stores.
type Coordinator struct {
	stores     *local.Stores
	remote     Remote
	media      MediaCache
	bus        *bus.Bus
	logger     *zap.Logger
	cacheWeeks int
	interval   time.Duration
	now        func() time.Time

	mu     stdsync.Mutex
	last   map[Kind]Result
	cancel context.CancelFunc
	done   chan struct{}
}

func New(opts Options) *Coordinator {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.CacheWeeks <= 0 {
		opts.CacheWeeks = 4
	}
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	return &Coordinator{
		stores:     opts.Stores,
		remote:     opts.Remote,
		media:      opts.Media,
		bus:        opts.Bus,
		logger:     opts.Logger,
		cacheWeeks: opts.CacheWeeks,
		interval:   opts.Interval,
		now:        opts.Now,
		last:       make(map[Kind]Result),
	}
}

// SyncKind runs one fetch for kind and merges it. The kind's cursor moves
// to the time the request started, and only if everything succeeded.
func (c *Coordinator) SyncKind(ctx context.Context, kind Kind) error {
	res := Result{Kind: kind, Started: c.now()}
	log := c.logger.With(zap.String("kind", string(kind)))

	var err error
	switch kind {
	case KindProfile:
		err = c.syncProfile(ctx, &res)
	case KindFriends:
		err = c.syncFriends(ctx, &res)
	case KindPhotos:
		err = c.syncPhotos(ctx, &res, "photo", c.stores.Photos.Cursor(), func(t *time.Time) { c.stores.Photos.SetCursor(t) })
	case KindFeed:
		err = c.syncPhotos(ctx, &res, "photo/feed", c.stores.Photos.Mark("feed"), func(t *time.Time) { c.stores.Photos.SetMark("feed", t) })
	case KindAlbums:
		err = c.syncAlbums(ctx, &res)
	case KindChats:
		err = c.syncChats(ctx, &res)
	default:
		err = fmt.Errorf("unknown sync kind %q", kind)
	}
	res.Duration = c.now().Sub(res.Started)
	res.Err = err

	c.mu.Lock()
	c.last[kind] = res
	c.mu.Unlock()

	if err != nil {
		log.Warn("sync failed", zap.Bool("bootstrap", res.Bootstrap), zap.Error(err))
		c.bus.Emit(bus.KindSyncFailed, res)
		return fmt.Errorf("sync %s: %w", kind, err)
	}
	log.Info("sync completed",
		zap.Bool("bootstrap", res.Bootstrap),
		zap.Int("items", res.Items),
		zap.Int("removed", res.Removed),
		zap.Duration("duration", res.Duration))
	c.bus.Emit(bus.KindSyncCompleted, res)
	return nil
}

// SyncAll runs every kind concurrently. One kind failing does not stop the
// others; the returned error joins every failure.
func (c *Coordinator) SyncAll(ctx context.Context) error {
	errs := make([]error, len(Kinds))
	var g errgroup.Group
	for i, k := range Kinds {
		g.Go(func() error {
			errs[i] = c.SyncKind(ctx, k)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// InitialSync runs every kind once, starting each as soon as the kinds it
// depends on have finished.
func (c *Coordinator) InitialSync(ctx context.Context) error {
	done := make(map[Kind]chan struct{}, len(Kinds))
	for _, k := range Kinds {
		done[k] = make(chan struct{})
	}
	errs := make([]error, len(Kinds))

	g, gctx := errgroup.WithContext(ctx)
	for i, k := range Kinds {
		g.Go(func() error {
			defer close(done[k])
			for _, d := range deps[k] {
				select {
				case <-done[d]:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			errs[i] = c.SyncKind(gctx, k)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return errors.Join(errs...)
}

// Start runs the initial sync and then an incremental SyncAll every interval.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	go func() {
		defer close(done)
		_ = c.InitialSync(ctx)
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_ = c.SyncAll(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends the polling loop and waits for the running pass to return.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Last returns the most recent result of every kind synced so far.
func (c *Coordinator) Last() map[Kind]Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.last)
}
