package actions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/momento/internal/entity"
	"github.com/matheus3301/momento/internal/local"
	"github.com/matheus3301/momento/internal/logging"
	"github.com/matheus3301/momento/internal/model"
	"github.com/matheus3301/momento/internal/optimistic"
	"go.uber.org/zap"
)

// ErrValidation is returned for input rejected before anything is applied.
var ErrValidation = optimistic.ErrValidation

// API is the subset of the REST client used by user actions.
type API interface {
	SetLike(ctx context.Context, photoID string, like bool) error
	AddComment(ctx context.Context, photoID, text string) (*model.Comment, error)
	DeleteComment(ctx context.Context, photoID, commentID string) error
	Delete(ctx context.Context, resource, id string) error
	EditAlbum(ctx context.Context, albumID, title string) error
	SendMessage(ctx context.Context, chatID, text string, attachments []model.Attachment) (*model.Message, error)
	FriendAction(ctx context.Context, userID, action string) error
}

// Actions applies user mutations optimistically to the local stores and
// confirms them with the server.
type Actions struct {
	stores *local.Stores
	api    API
	mgr    *optimistic.Manager
	self   func() string
	now    func() time.Time
	logger *zap.Logger
}

// New creates the action set. self returns the signed-in user id.
func New(stores *local.Stores, api API, mgr *optimistic.Manager, self func() string, logger *zap.Logger) *Actions {
	logger = logging.OrNop(logger)
	return &Actions{stores: stores, api: api, mgr: mgr, self: self, now: time.Now, logger: logger}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// noop turns an unchanged mutation into a validation error.
func noop(err error) error {
	if errors.Is(err, optimistic.ErrNoop) {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return err
}

func equal[V comparable](a, b V) bool { return a == b }

// ToggleLike flips the current user's like on a photo and returns the new state.
func (a *Actions) ToggleLike(ctx context.Context, photoID string) (bool, error) {
	me := a.self()
	var liked bool
	err := optimistic.Run(ctx, a.mgr, photoID, optimistic.Mutation[bool]{
		Title: "Couldn't update like",
		Slot:  "like:" + me,
		Get: func() (bool, error) {
			p, ok := a.stores.Photos.Get(photoID)
			if !ok {
				return false, fmt.Errorf("photo %s: %w", photoID, entity.ErrNotFound)
			}
			return p.LikedBy(me), nil
		},
		Set: func(v bool) error { return a.stores.Photos.SetLike(photoID, me, v) },
		Next: func(cur bool) (bool, error) {
			liked = !cur
			return liked, nil
		},
		Equal: equal[bool],
	}, func(ctx context.Context) error {
		return a.api.SetLike(ctx, photoID, liked)
	})
	return liked, err
}

// AddComment shows the comment immediately under a local id and swaps in
// the server's copy once it is accepted.
func (a *Actions) AddComment(ctx context.Context, photoID, text string) (*model.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, invalid("empty comment")
	}
	pending := model.Comment{ID: "local-" + uuid.NewString(), UserID: a.self(), Message: text, Timestamp: a.now().UTC()}
	var saved *model.Comment

	err := optimistic.Run(ctx, a.mgr, photoID, a.commentPresence(photoID, pending, true), func(ctx context.Context) error {
		c, err := a.api.AddComment(ctx, photoID, text)
		if err != nil {
			return err
		}
		saved = c
		return nil
	})
	if err != nil {
		return nil, noop(err)
	}
	if saved.ID == "" {
		saved.ID = pending.ID
	}
	if saved.UserID == "" {
		saved.UserID = pending.UserID
	}
	if saved.Timestamp.IsZero() {
		saved.Timestamp = pending.Timestamp
	}
	if err := a.replaceComment(photoID, pending.ID, *saved); err != nil {
		a.logger.Warn("replace local comment failed", zap.String("photo_id", photoID), zap.Error(err))
	}
	return saved, nil
}

// DeleteComment removes a comment, restoring it if the server refuses.
func (a *Actions) DeleteComment(ctx context.Context, photoID, commentID string) error {
	p, ok := a.stores.Photos.Get(photoID)
	if !ok {
		return fmt.Errorf("photo %s: %w", photoID, entity.ErrNotFound)
	}
	var target *model.Comment
	for _, c := range p.Comments {
		if c.ID == commentID {
			target = &c
			break
		}
	}
	if target == nil {
		return invalid("comment %s not on photo %s", commentID, photoID)
	}
	err := optimistic.Run(ctx, a.mgr, photoID, a.commentPresence(photoID, *target, false), func(ctx context.Context) error {
		return a.api.DeleteComment(ctx, photoID, commentID)
	})
	return noop(err)
}

// commentPresence is a mutation whose value is whether c is on the photo.
func (a *Actions) commentPresence(photoID string, c model.Comment, want bool) optimistic.Mutation[bool] {
	title := "Couldn't post comment"
	if !want {
		title = "Couldn't delete comment"
	}
	return optimistic.Mutation[bool]{
		Title: title,
		Slot:  "comment:" + c.ID,
		Get: func() (bool, error) {
			p, ok := a.stores.Photos.Get(photoID)
			if !ok {
				return false, fmt.Errorf("photo %s: %w", photoID, entity.ErrNotFound)
			}
			for _, x := range p.Comments {
				if x.ID == c.ID {
					return true, nil
				}
			}
			return false, nil
		},
		Set: func(present bool) error {
			if present {
				return a.stores.Photos.AddComment(photoID, c)
			}
			return a.stores.Photos.DeleteComment(photoID, c.ID)
		},
		Next:  func(bool) (bool, error) { return want, nil },
		Equal: equal[bool],
	}
}

func (a *Actions) replaceComment(photoID, localID string, c model.Comment) error {
	return a.stores.Photos.Update(photoID, func(p *model.Photo) bool {
		for i := range p.Comments {
			if p.Comments[i].ID == localID {
				p.Comments[i] = c
				return true
			}
		}
		return false
	})
}

// RenameAlbum changes an album's title.
func (a *Actions) RenameAlbum(ctx context.Context, albumID, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return invalid("empty album title")
	}
	err := optimistic.Run(ctx, a.mgr, albumID, optimistic.Mutation[string]{
		Title: "Couldn't rename album",
		Slot:  "title",
		Get: func() (string, error) {
			al, ok := a.stores.Albums.Get(albumID)
			if !ok {
				return "", fmt.Errorf("album %s: %w", albumID, entity.ErrNotFound)
			}
			return al.Title, nil
		},
		Set:   func(v string) error { return a.stores.Albums.Rename(albumID, v) },
		Next:  func(string) (string, error) { return title, nil },
		Equal: equal[string],
	}, func(ctx context.Context) error {
		return a.api.EditAlbum(ctx, albumID, title)
	})
	return noop(err)
}

// DeleteAlbum removes an album, restoring it if the server refuses.
func (a *Actions) DeleteAlbum(ctx context.Context, albumID string) error {
	return optimistic.Run(ctx, a.mgr, albumID, optimistic.Mutation[*model.Album]{
		Title: "Couldn't delete album",
		Slot:  "entity",
		Get: func() (*model.Album, error) {
			al, ok := a.stores.Albums.Get(albumID)
			if !ok {
				return nil, fmt.Errorf("album %s: %w", albumID, entity.ErrNotFound)
			}
			return al, nil
		},
		Set: func(al *model.Album) error {
			if al == nil {
				a.stores.Albums.Remove(albumID)
			} else {
				a.stores.Albums.Put(al)
			}
			return nil
		},
		Next: func(*model.Album) (*model.Album, error) { return nil, nil },
	}, func(ctx context.Context) error {
		return a.api.Delete(ctx, "album", albumID)
	})
}

// DeletePhoto removes one of the user's own photos. Its week bucket is
// renumbered immediately and again if the deletion is rolled back.
func (a *Actions) DeletePhoto(ctx context.Context, photoID string) error {
	p, ok := a.stores.Photos.Get(photoID)
	if !ok {
		return fmt.Errorf("photo %s: %w", photoID, entity.ErrNotFound)
	}
	if p.OwnerID != a.self() {
		return invalid("photo %s belongs to another user", photoID)
	}
	err := optimistic.Run(ctx, a.mgr, photoID, optimistic.Mutation[*model.Photo]{
		Title: "Couldn't delete photo",
		Slot:  "entity",
		Get: func() (*model.Photo, error) {
			cur, ok := a.stores.Photos.Get(photoID)
			if !ok {
				return nil, fmt.Errorf("photo %s: %w", photoID, entity.ErrNotFound)
			}
			return cur, nil
		},
		Set: func(v *model.Photo) error {
			if v == nil {
				a.stores.Photos.RemovePhoto(photoID)
			} else {
				a.stores.Photos.AddPhoto(v)
			}
			return nil
		},
		Next: func(*model.Photo) (*model.Photo, error) { return nil, nil },
	}, func(ctx context.Context) error {
		return a.api.Delete(ctx, "photo", photoID)
	})
	if err != nil {
		return err
	}
	a.stores.Albums.DropImage(p.Source())
	return nil
}

// outgoing is the optimistic state of a sent message: whether it is in the
// chat, and the chat's lastMessageTime before it was added.
type outgoing struct {
	present bool
	last    time.Time
}

// SendMessage shows the message in the chat right away as pending and
// replaces it with the server's copy once delivered.
func (a *Actions) SendMessage(ctx context.Context, chatID, text string, attachments []model.Attachment) (*model.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" && len(attachments) == 0 {
		return nil, invalid("empty message")
	}
	if !a.stores.Chats.Has(chatID) {
		return nil, fmt.Errorf("chat %s: %w", chatID, entity.ErrNotFound)
	}
	pending := model.Message{
		ID:          "local-" + uuid.NewString(),
		SenderID:    a.self(),
		Text:        text,
		CreatedAt:   a.now().UTC(),
		Attachments: attachments,
		Pending:     true,
	}
	var sent *model.Message

	err := optimistic.Run(ctx, a.mgr, chatID, optimistic.Mutation[outgoing]{
		Title: "Couldn't send message",
		Slot:  "message:" + pending.ID,
		Get: func() (outgoing, error) {
			c, ok := a.stores.Chats.Get(chatID)
			if !ok {
				return outgoing{}, fmt.Errorf("chat %s: %w", chatID, entity.ErrNotFound)
			}
			return outgoing{present: c.HasMessage(pending.ID), last: c.LastMessageTime}, nil
		},
		Set: func(v outgoing) error {
			if v.present {
				_, err := a.stores.Chats.ReceiveMessage(chatID, pending, false)
				return err
			}
			return a.stores.Chats.RetractMessage(chatID, pending.ID, v.last)
		},
		Next: func(v outgoing) (outgoing, error) {
			v.present = true
			return v, nil
		},
		Equal: func(x, y outgoing) bool { return x.present == y.present && x.last.Equal(y.last) },
	}, func(ctx context.Context) error {
		m, err := a.api.SendMessage(ctx, chatID, text, attachments)
		if err != nil {
			return err
		}
		sent = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	if sent.ID == "" {
		sent.ID = pending.ID
	}
	if sent.SenderID == "" {
		sent.SenderID = pending.SenderID
	}
	if sent.CreatedAt.IsZero() {
		sent.CreatedAt = pending.CreatedAt
	}
	sent.Pending = false
	if err := a.stores.Chats.ReplaceMessage(chatID, pending.ID, *sent); err != nil {
		a.logger.Warn("replace local message failed", zap.String("conversation_id", chatID), zap.Error(err))
	}
	return sent, nil
}
