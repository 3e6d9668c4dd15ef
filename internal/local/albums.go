package local

import (
	"fmt"
	"slices"
	"strings"

	"github.com/matheus3301/momento/internal/entity"
	"github.com/matheus3301/momento/internal/model"
	"go.uber.org/zap"
)

// AlbumStore holds albums. The cover invariant is enforced on every write.
type AlbumStore struct {
	*entity.Store[*model.Album]
}

func NewAlbumStore(p entity.Persister, logger *zap.Logger) *AlbumStore {
	s := entity.New[*model.Album]("album", p, logger)
	s.SetNormalizer(func(a *model.Album) {
		if a.Images == nil {
			a.Images = []string{}
		}
		a.FixCover()
	})
	return &AlbumStore{Store: s}
}

// AddImages appends images not already in the album.
func (s *AlbumStore) AddImages(id string, images ...string) error {
	return s.Update(id, func(a *model.Album) bool {
		changed := false
		for _, img := range images {
			if !slices.Contains(a.Images, img) {
				a.Images = append(a.Images, img)
				changed = true
			}
		}
		return changed
	})
}

// RemoveImage drops one image. A removed cover falls back to the new first image.
func (s *AlbumStore) RemoveImage(id, image string) error {
	return s.Update(id, func(a *model.Album) bool {
		i := slices.Index(a.Images, image)
		if i < 0 {
			return false
		}
		a.Images = slices.Delete(a.Images, i, i+1)
		return true
	})
}

// DropImage removes image from every album that references it.
func (s *AlbumStore) DropImage(image string) {
	_ = s.Tx(func(tx *entity.Tx[*model.Album]) error {
		for _, a := range tx.Find(func(a *model.Album) bool { return slices.Contains(a.Images, image) }) {
			a.Images = slices.DeleteFunc(a.Images, func(img string) bool { return img == image })
			tx.Put(a)
		}
		return nil
	})
}

// Rename sets the album title.
func (s *AlbumStore) Rename(id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("rename album %s: empty title", id)
	}
	return s.Update(id, func(a *model.Album) bool {
		if a.Title == title {
			return false
		}
		a.Title = title
		return true
	})
}
