package local

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/matheus3301/momento/internal/entity"
	"github.com/matheus3301/momento/internal/model"
	"go.uber.org/zap"
)

// WeekKey identifies one owner's ISO-week bucket.
type WeekKey struct {
	Owner string
	Year  int
	Week  int
}

// WeekOf returns the ISO year and week of t, computed in UTC.
func WeekOf(t time.Time) (year, week int) {
	return t.UTC().ISOWeek()
}

// KeyOf returns the bucket a photo belongs to.
func KeyOf(p *model.Photo) WeekKey {
	y, w := WeekOf(p.Timestamp)
	return WeekKey{Owner: p.OwnerID, Year: y, Week: w}
}

// PhotoStore holds photos of every owner. Each write recomputes OrderInWeek
// and WeekTotal for the buckets it touched, and only those.
type PhotoStore struct {
	*entity.Store[*model.Photo]
}

func NewPhotoStore(p entity.Persister, logger *zap.Logger) *PhotoStore {
	s := entity.New[*model.Photo]("photo", p, logger)
	s.SetNormalizer(func(p *model.Photo) {
		if p.URL == "" {
			p.URL = p.RemoteURL
		}
		if p.Likes == nil {
			p.Likes = []string{}
		}
		if p.TaggedUserIDs == nil {
			p.TaggedUserIDs = []string{}
		}
		if p.Comments == nil {
			p.Comments = []model.Comment{}
		}
		p.Likes = compactSet(p.Likes)
	})
	return &PhotoStore{Store: s}
}

// AddPhoto inserts a photo unless its id is already present.
func (s *PhotoStore) AddPhoto(p *model.Photo) bool {
	added := false
	_ = s.Tx(func(tx *entity.Tx[*model.Photo]) error {
		if tx.Has(p.ID) {
			return nil
		}
		tx.Put(p)
		reindex(tx, KeyOf(p))
		added = true
		return nil
	})
	return added
}

// RemovePhoto deletes a photo and renumbers what is left of its bucket.
func (s *PhotoStore) RemovePhoto(id string) bool {
	removed := false
	_ = s.Tx(func(tx *entity.Tx[*model.Photo]) error {
		p, ok := tx.Get(id)
		if !ok {
			return nil
		}
		tx.Remove(id)
		reindex(tx, KeyOf(p))
		removed = true
		return nil
	})
	return removed
}

// MergePhoto upserts a server record. If the capture time moved the photo to
// another week, both the old and the new bucket are renumbered.
func (s *PhotoStore) MergePhoto(rec map[string]json.RawMessage) (*model.Photo, error) {
	out, err := s.Apply([]map[string]json.RawMessage{rec}, nil)
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// Apply merges records and removes ids in one transaction.
func (s *PhotoStore) Apply(recs []map[string]json.RawMessage, removed []string) ([]*model.Photo, error) {
	var merged []*model.Photo
	err := s.Tx(func(tx *entity.Tx[*model.Photo]) error {
		affected := make(map[WeekKey]bool)
		for _, id := range removed {
			if p, ok := tx.Get(id); ok {
				tx.Remove(id)
				affected[KeyOf(p)] = true
			}
		}
		for _, rec := range recs {
			var id string
			if raw, ok := rec["id"]; ok {
				_ = json.Unmarshal(raw, &id)
			}
			if old, ok := tx.Get(id); ok {
				affected[KeyOf(old)] = true
			}
			p, err := tx.Merge(rec)
			if err != nil {
				return err
			}
			affected[KeyOf(p)] = true
			merged = append(merged, p)
		}
		for key := range affected {
			reindex(tx, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i, p := range merged {
		if cur, ok := s.Get(p.ID); ok {
			merged[i] = cur
		}
	}
	return merged, nil
}

// reindex assigns 1-based positions by capture time within one bucket.
func reindex(tx *entity.Tx[*model.Photo], key WeekKey) {
	bucket := tx.Find(func(p *model.Photo) bool { return KeyOf(p) == key })
	slices.SortStableFunc(bucket, func(a, b *model.Photo) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	for i, p := range bucket {
		if p.OrderInWeek == i+1 && p.WeekTotal == len(bucket) {
			continue
		}
		p.OrderInWeek = i + 1
		p.WeekTotal = len(bucket)
		tx.Put(p)
	}
}

// WeekBucket returns one bucket ordered by OrderInWeek.
func (s *PhotoStore) WeekBucket(owner string, year, week int) []*model.Photo {
	key := WeekKey{Owner: owner, Year: year, Week: week}
	out := s.Find(func(p *model.Photo) bool { return KeyOf(p) == key })
	slices.SortFunc(out, func(a, b *model.Photo) int { return a.OrderInWeek - b.OrderInWeek })
	return out
}

// UserPhotos returns owner's photos, newest first.
func (s *PhotoStore) UserPhotos(owner string) []*model.Photo {
	out := s.Find(func(p *model.Photo) bool { return p.OwnerID == owner })
	sortPhotosNewestFirst(out)
	return out
}

// Feed returns the photos of the given owners, newest first.
func (s *PhotoStore) Feed(owners []string) []*model.Photo {
	out := s.Find(func(p *model.Photo) bool { return slices.Contains(owners, p.OwnerID) })
	sortPhotosNewestFirst(out)
	return out
}

// ToggleLike flips userID's like and returns the new state.
func (s *PhotoStore) ToggleLike(photoID, userID string) (bool, error) {
	var liked bool
	err := s.Update(photoID, func(p *model.Photo) bool {
		liked = !p.LikedBy(userID)
		return p.SetLiked(userID, liked)
	})
	return liked, err
}

// SetLike sets userID's like to liked.
func (s *PhotoStore) SetLike(photoID, userID string, liked bool) error {
	return s.Update(photoID, func(p *model.Photo) bool {
		return p.SetLiked(userID, liked)
	})
}

// AddComment appends c unless a comment with its id exists.
func (s *PhotoStore) AddComment(photoID string, c model.Comment) error {
	return s.Update(photoID, func(p *model.Photo) bool {
		if slices.ContainsFunc(p.Comments, func(x model.Comment) bool { return x.ID == c.ID }) {
			return false
		}
		p.Comments = append(p.Comments, c)
		return true
	})
}

// DeleteComment removes one comment.
func (s *PhotoStore) DeleteComment(photoID, commentID string) error {
	return s.Update(photoID, func(p *model.Photo) bool {
		i := slices.IndexFunc(p.Comments, func(x model.Comment) bool { return x.ID == commentID })
		if i < 0 {
			return false
		}
		p.Comments = slices.Delete(p.Comments, i, i+1)
		return true
	})
}

// SetComments replaces the whole comment list.
func (s *PhotoStore) SetComments(photoID string, comments []model.Comment) error {
	return s.Update(photoID, func(p *model.Photo) bool {
		p.Comments = slices.Clone(comments)
		return true
	})
}

// UpdateDetails changes the user-editable fields. nil arguments are left alone.
func (s *PhotoStore) UpdateDetails(photoID string, caption, location *string, tagged []string) error {
	return s.Update(photoID, func(p *model.Photo) bool {
		if caption != nil {
			p.Caption = *caption
		}
		if location != nil {
			p.Location = *location
		}
		if tagged != nil {
			p.TaggedUserIDs = slices.Clone(tagged)
		}
		return caption != nil || location != nil || tagged != nil
	})
}

// SetLocalURL points the photo at a downloaded copy of its media.
func (s *PhotoStore) SetLocalURL(photoID, uri string) error {
	if err := s.Update(photoID, func(p *model.Photo) bool {
		if p.URL == uri {
			return false
		}
		if p.RemoteURL == "" {
			p.RemoteURL = p.URL
		}
		p.URL = uri
		return true
	}); err != nil {
		return fmt.Errorf("set local url: %w", err)
	}
	return nil
}

func sortPhotosNewestFirst(ps []*model.Photo) {
	slices.SortStableFunc(ps, func(a, b *model.Photo) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
}

func compactSet(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
