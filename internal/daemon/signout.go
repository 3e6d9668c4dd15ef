package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/matheus3301/momento/internal/auth"
	"github.com/matheus3301/momento/internal/bus"
	"github.com/matheus3301/momento/internal/channel"
	"github.com/matheus3301/momento/internal/local"
	"github.com/matheus3301/momento/internal/media"
	"github.com/matheus3301/momento/internal/store"
	intsync "github.com/matheus3301/momento/internal/sync"
	"go.uber.org/zap"
)

// SignOut tears down the session's synced state: the push channel is closed
// for good, polling stops and every store, cursor and cached file is dropped.
type SignOut struct {
	channel     *channel.Channel
	coordinator *intsync.Coordinator
	stores      *local.Stores
	media       *media.Cache
	db          *store.DB
	auth        *auth.Source
	bus         *bus.Bus
	logger      *zap.Logger

	running atomic.Bool
}

func NewSignOut(ch *channel.Channel, coord *intsync.Coordinator, stores *local.Stores, cache *media.Cache, db *store.DB, src *auth.Source, b *bus.Bus, logger *zap.Logger) *SignOut {
	return &SignOut{
		channel:     ch,
		coordinator: coord,
		stores:      stores,
		media:       cache,
		db:          db,
		auth:        src,
		bus:         b,
		logger:      logger,
	}
}

// Trigger runs Run in the background. It is safe to call from inside a
// sync pass, which Run waits for.
func (s *SignOut) Trigger() {
	go func() {
		if err := s.Run(context.Background()); err != nil {
			s.logger.Error("sign out failed", zap.Error(err))
		}
	}()
}

// Run signs the session out. Concurrent calls after the first are no-ops.
func (s *SignOut) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return nil
	}
	defer s.running.Store(false)

	s.logger.Info("signing out")
	_ = s.channel.Close()
	s.coordinator.Stop()
	s.stores.ClearAll()

	var errs []error
	if err := s.stores.Flush(ctx); err != nil {
		errs = append(errs, fmt.Errorf("flush stores: %w", err))
	}
	if err := s.media.Purge(); err != nil {
		errs = append(errs, fmt.Errorf("purge media: %w", err))
	}
	if err := s.db.DeleteMediaSlots(ctx); err != nil {
		errs = append(errs, fmt.Errorf("delete media slots: %w", err))
	}
	if err := s.auth.SignOut(); err != nil {
		errs = append(errs, err)
	}
	s.bus.Emit(bus.KindSignedOut, nil)
	return errors.Join(errs...)
}
