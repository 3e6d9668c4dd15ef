package local

import (
	"github.com/matheus3301/momento/internal/entity"
	"github.com/matheus3301/momento/internal/model"
	"go.uber.org/zap"
)

// ProfileStore holds the signed-in user's profile.
type ProfileStore struct {
	*entity.Store[*model.User]
}

func NewProfileStore(p entity.Persister, logger *zap.Logger) *ProfileStore {
	return &ProfileStore{Store: entity.New[*model.User]("profile", p, logger)}
}

// Current returns the stored profile.
func (s *ProfileStore) Current() (*model.User, bool) {
	all := s.All()
	if len(all) == 0 {
		return nil, false
	}
	return all[0], true
}

// Set replaces the stored profile.
func (s *ProfileStore) Set(u *model.User) {
	_ = s.Tx(func(tx *entity.Tx[*model.User]) error {
		for _, old := range tx.Find(func(old *model.User) bool { return old.ID != u.ID }) {
			tx.Remove(old.ID)
		}
		tx.Put(u)
		return nil
	})
}
