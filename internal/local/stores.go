package local

import (
	"context"
	"errors"

	"github.com/matheus3301/momento/internal/entity"
	"github.com/matheus3301/momento/internal/model"
	"go.uber.org/zap"
)

type managed interface {
	Name() string
	Load(ctx context.Context) error
	Flush(ctx context.Context) error
	Start(ctx context.Context)
	Stop()
	Clear()
	Subscribe(fn entity.Observer) func()
}

// Stores groups every entity store of a session.
type Stores struct {
	Chats   *ChatStore
	Photos  *PhotoStore
	Friends *FriendStore
	Albums  *AlbumStore
	Profile *ProfileStore

	logger *zap.Logger
}

// NewStores creates all stores backed by p.
func NewStores(p entity.Persister, logger *zap.Logger) *Stores {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stores{
		Chats:   NewChatStore(p, logger),
		Photos:  NewPhotoStore(p, logger),
		Friends: NewFriendStore(p, logger),
		Albums:  NewAlbumStore(p, logger),
		Profile: NewProfileStore(p, logger),
		logger:  logger,
	}
}

// ChatWithAvatars fills missing participant avatars from the friend store.
// Chats created by polling and by live frames both go through it.
func (s *Stores) ChatWithAvatars(chat *model.Chat) *model.Chat {
	for i, p := range chat.Participants {
		if p.Avatar == "" {
			chat.Participants[i].Avatar = s.Friends.Avatar(p.ID)
		}
	}
	return chat
}

func (s *Stores) all() []managed {
	return []managed{s.Profile, s.Friends, s.Photos, s.Albums, s.Chats}
}

// Load restores every store. A store that fails to load starts empty and
// will bootstrap on the next sync.
func (s *Stores) Load(ctx context.Context) error {
	var errs []error
	for _, st := range s.all() {
		if err := st.Load(ctx); err != nil {
			s.logger.Warn("store load failed", zap.String("store", st.Name()), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Start runs every store's background flusher.
func (s *Stores) Start(ctx context.Context) {
	for _, st := range s.all() {
		st.Start(ctx)
	}
}

// Stop stops the flushers, saving pending changes.
func (s *Stores) Stop() {
	for _, st := range s.all() {
		st.Stop()
	}
}

// Flush saves every store synchronously.
func (s *Stores) Flush(ctx context.Context) error {
	var errs []error
	for _, st := range s.all() {
		if err := st.Flush(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ClearAll empties every store and resets every cursor.
func (s *Stores) ClearAll() {
	for _, st := range s.all() {
		st.Clear()
	}
	s.logger.Info("all stores cleared")
}

// Subscribe registers fn on every store.
func (s *Stores) Subscribe(fn entity.Observer) func() {
	var unsubs []func()
	for _, st := range s.all() {
		unsubs = append(unsubs, st.Subscribe(fn))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
