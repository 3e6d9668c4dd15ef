package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/matheus3301/momento/internal/entity"
	"github.com/matheus3301/momento/internal/media"
	"github.com/matheus3301/momento/internal/model"
	"github.com/matheus3301/momento/internal/remote"
	"go.uber.org/zap"
)

func (c *Coordinator) syncProfile(ctx context.Context, res *Result) error {
	res.Bootstrap = c.stores.Profile.Cursor() == nil
	u, err := c.remote.Profile(ctx)
	if err != nil {
		return err
	}
	c.stores.Profile.Set(u)
	res.Items = 1
	c.stores.Profile.SetCursor(&res.Started)
	return nil
}

func (c *Coordinator) syncFriends(ctx context.Context, res *Result) error {
	cursor := c.stores.Friends.Cursor()
	res.Bootstrap = cursor == nil
	batch, err := c.remote.Fetch(ctx, "friend", remote.FetchOptions{Since: cursor})
	if err != nil {
		return err
	}
	recs := c.usable(batch.Items, "friends", normalizeFriend)
	err = c.stores.Friends.Tx(func(tx *entity.Tx[*model.Friend]) error {
		for _, id := range batch.Removed {
			if tx.Remove(id) {
				res.Removed++
			}
		}
		for _, rec := range recs {
			f, err := tx.Merge(rec)
			if err != nil {
				return err
			}
			if !f.Status.Valid() {
				f.Status = model.StatusFriend
				tx.Put(f)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	res.Items = len(recs)
	c.stores.Friends.SetCursor(&res.Started)
	return nil
}

// syncPhotos serves both the user's own photos and the friends feed, which
// live in the same store under separate cursors.
func (c *Coordinator) syncPhotos(ctx context.Context, res *Result, resource string, cursor *time.Time, advance func(*time.Time)) error {
	res.Bootstrap = cursor == nil
	batch, err := c.remote.Fetch(ctx, resource, remote.FetchOptions{Since: cursor, Weeks: c.cacheWeeks})
	if err != nil {
		return err
	}
	recs := c.usable(batch.Items, string(res.Kind), normalizePhoto)
	merged, err := c.stores.Photos.Apply(recs, batch.Removed)
	if err != nil {
		return err
	}
	res.Items = len(merged)
	res.Removed = len(batch.Removed)
	c.cacheMedia(ctx, merged)
	advance(&res.Started)
	return nil
}

// cacheMedia downloads media of photos inside the cache window. Photos
// outside it keep pointing at their remote URL.
func (c *Coordinator) cacheMedia(ctx context.Context, photos []*model.Photo) {
	now := c.now()
	for _, p := range photos {
		src := p.Source()
		if src == "" {
			continue
		}
		uri := src
		if c.media != nil && media.InWindow(p.Timestamp, now, c.cacheWeeks) {
			uri = c.media.CacheSlot(ctx,
				media.PhotoSlot(p.OwnerID, p.Timestamp, p.ID), src,
				media.PhotoFileName(p.OwnerID, p.Timestamp, src))
		}
		if uri == p.URL {
			continue
		}
		if err := c.stores.Photos.SetLocalURL(p.ID, uri); err != nil && !errors.Is(err, entity.ErrNotFound) {
			c.logger.Warn("set photo url failed", zap.String("photo_id", p.ID), zap.Error(err))
		}
	}
}

func (c *Coordinator) syncAlbums(ctx context.Context, res *Result) error {
	cursor := c.stores.Albums.Cursor()
	res.Bootstrap = cursor == nil
	batch, err := c.remote.Fetch(ctx, "album", remote.FetchOptions{Since: cursor})
	if err != nil {
		return err
	}
	recs := c.usable(batch.Items, "albums", nil)
	err = c.stores.Albums.Tx(func(tx *entity.Tx[*model.Album]) error {
		for _, id := range batch.Removed {
			if tx.Remove(id) {
				res.Removed++
			}
		}
		for _, rec := range recs {
			if _, err := tx.Merge(rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	res.Items = len(recs)
	c.stores.Albums.SetCursor(&res.Started)
	return nil
}

func (c *Coordinator) syncChats(ctx context.Context, res *Result) error {
	cursor := c.stores.Chats.Cursor()
	res.Bootstrap = cursor == nil
	batch, err := c.remote.FetchChats(ctx, cursor)
	if err != nil {
		return err
	}
	for _, id := range batch.Removed {
		if c.stores.Chats.Delete(id) {
			res.Removed++
		}
	}

	var errs []error
	for _, rec := range batch.Chats {
		if rec.ConversationID == "" {
			continue
		}
		if !c.stores.Chats.Has(rec.ConversationID) {
			info, err := c.remote.ChatInfo(ctx, rec.ConversationID)
			if remote.IsNotFound(err) {
				c.logger.Info("chat gone on server", zap.String("conversation_id", rec.ConversationID))
				if c.stores.Chats.Delete(rec.ConversationID) {
					res.Removed++
				}
				continue
			}
			if err != nil {
				errs = append(errs, fmt.Errorf("chat %s info: %w", rec.ConversationID, err))
				continue
			}
			c.stores.Chats.EnsureChat(c.stores.ChatWithAvatars(info.Model()))
		}
		n, err := c.stores.Chats.MergeMessages(rec.ConversationID, rec.Models(), rec.LastMessageTime)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		res.Items += n
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	c.stores.Chats.SetCursor(&res.Started)
	return nil
}

// usable normalizes records and drops the ones that carry no id.
func (c *Coordinator) usable(items []remote.Record, kind string, normalize func(remote.Record)) []map[string]json.RawMessage {
	out := make([]map[string]json.RawMessage, 0, len(items))
	for _, rec := range items {
		if normalize != nil {
			normalize(rec)
		}
		var id string
		if raw, ok := rec["id"]; ok {
			_ = json.Unmarshal(raw, &id)
		}
		if id == "" {
			c.logger.Debug("skipping record without id", zap.String("kind", kind))
			continue
		}
		out = append(out, rec)
	}
	return out
}

// rename moves rec[from] to rec[to] unless to is already set.
func rename(rec remote.Record, from, to string) {
	v, ok := rec[from]
	if !ok {
		return
	}
	delete(rec, from)
	if _, exists := rec[to]; !exists {
		rec[to] = v
	}
}

func normalizeFriend(rec remote.Record) {
	rename(rec, "friendStatus", "status")
	rename(rec, "type", "status")
	rename(rec, "iconUrl", "avatar")
}

// normalizePhoto keeps the server's media URL apart from the local one so
// that a merge never overwrites a cached path.
func normalizePhoto(rec remote.Record) {
	rename(rec, "url", "remoteUrl")
	rename(rec, "ownerId", "userId")
}
