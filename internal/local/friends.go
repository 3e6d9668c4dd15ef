package local

import (
	"fmt"
	"slices"
	"strings"

	"github.com/matheus3301/momento/internal/entity"
	"github.com/matheus3301/momento/internal/model"
	"go.uber.org/zap"
)

// FriendStore holds every user related to the current user, whatever the
// relationship status.
type FriendStore struct {
	*entity.Store[*model.Friend]
}

func NewFriendStore(p entity.Persister, logger *zap.Logger) *FriendStore {
	return &FriendStore{Store: entity.New[*model.Friend]("friend", p, logger)}
}

// SetStatus is the only path that changes a relationship status.
func (s *FriendStore) SetStatus(id string, status model.FriendStatus) error {
	if !status.Valid() {
		return fmt.Errorf("set status %s: unknown status %q", id, status)
	}
	return s.Update(id, func(f *model.Friend) bool {
		if f.Status == status {
			return false
		}
		f.Status = status
		return true
	})
}

// ByStatus returns the users with status, sorted by name.
func (s *FriendStore) ByStatus(status model.FriendStatus) []*model.Friend {
	out := s.Find(func(f *model.Friend) bool { return f.Status == status })
	slices.SortFunc(out, func(a, b *model.Friend) int {
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
	return out
}

// FriendIDs returns the ids of accepted friends.
func (s *FriendStore) FriendIDs() []string {
	var ids []string
	for _, f := range s.ByStatus(model.StatusFriend) {
		ids = append(ids, f.ID)
	}
	return ids
}

// Avatar returns the avatar of a known user.
func (s *FriendStore) Avatar(id string) string {
	if f, ok := s.Get(id); ok {
		return f.Avatar
	}
	return ""
}
