package model

import (
	"slices"
	"time"
)

// Album is an ordered collection of photo references.
// CoverImage is empty iff Images is empty.
type Album struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CoverImage   string    `json:"coverImage"`
	Shared       bool      `json:"isShared"`
	CreatedAt    time.Time `json:"createdAt"`
	Images       []string  `json:"images"`
	Description  string    `json:"description,omitempty"`
	Contributors int       `json:"contributors,omitempty"`
}

func (a *Album) EntityID() string { return a.ID }

// Clone returns a deep copy.
func (a *Album) Clone() *Album {
	out := *a
	out.Images = slices.Clone(a.Images)
	return &out
}

// FixCover restores the cover invariant: no images means no cover, and a
// cover that is no longer in the album falls back to the first image.
func (a *Album) FixCover() {
	switch {
	case len(a.Images) == 0:
		a.CoverImage = ""
	case a.CoverImage == "" || !slices.Contains(a.Images, a.CoverImage):
		a.CoverImage = a.Images[0]
	}
}
