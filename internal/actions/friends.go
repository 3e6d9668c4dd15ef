package actions

import (
	"context"
	"fmt"
	"slices"

	"github.com/matheus3301/momento/internal/entity"
	"github.com/matheus3301/momento/internal/model"
	"github.com/matheus3301/momento/internal/optimistic"
)

// transition is one step of the friend request funnel.
type transition struct {
	action string
	from   []model.FriendStatus
	to     model.FriendStatus
	title  string
}

var (
	accept = transition{"accept", []model.FriendStatus{model.StatusPending}, model.StatusFriend, "Couldn't accept request"}
	cancel = transition{"cancel", []model.FriendStatus{model.StatusPending, model.StatusOutgoing}, model.StatusSuggested, "Couldn't cancel request"}
	invite = transition{"invite", []model.FriendStatus{model.StatusSuggested}, model.StatusOutgoing, "Couldn't send invite"}
)

// AcceptFriend accepts an incoming request.
func (a *Actions) AcceptFriend(ctx context.Context, userID string) error {
	return a.friendStatus(ctx, userID, accept)
}

// CancelFriend withdraws an outgoing request or declines an incoming one.
func (a *Actions) CancelFriend(ctx context.Context, userID string) error {
	return a.friendStatus(ctx, userID, cancel)
}

// InviteFriend sends a request to a suggested user.
func (a *Actions) InviteFriend(ctx context.Context, userID string) error {
	return a.friendStatus(ctx, userID, invite)
}

func (a *Actions) friendStatus(ctx context.Context, userID string, t transition) error {
	f, ok := a.stores.Friends.Get(userID)
	if !ok {
		return fmt.Errorf("user %s: %w", userID, entity.ErrNotFound)
	}
	if !slices.Contains(t.from, f.Status) {
		return invalid("cannot %s user %s with status %s", t.action, userID, f.Status)
	}
	err := optimistic.Run(ctx, a.mgr, userID, optimistic.Mutation[model.FriendStatus]{
		Title: t.title,
		Slot:  "status",
		Get: func() (model.FriendStatus, error) {
			cur, ok := a.stores.Friends.Get(userID)
			if !ok {
				return "", fmt.Errorf("user %s: %w", userID, entity.ErrNotFound)
			}
			return cur.Status, nil
		},
		Set:   func(s model.FriendStatus) error { return a.stores.Friends.SetStatus(userID, s) },
		Next:  func(model.FriendStatus) (model.FriendStatus, error) { return t.to, nil },
		Equal: equal[model.FriendStatus],
	}, func(ctx context.Context) error {
		return a.api.FriendAction(ctx, userID, t.action)
	})
	return noop(err)
}
