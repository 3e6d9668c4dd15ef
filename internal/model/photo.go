package model

import (
	"slices"
	"time"
)

// Comment is a comment left on a photo.
type Comment struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Photo is a captured photo with its social signals.
//
// OrderInWeek and WeekTotal are derived from the owner's ISO-week bucket and
// are recomputed by the photo store whenever the bucket's membership changes.
type Photo struct {
	ID            string    `json:"id"`
	OwnerID       string    `json:"userId"`
	Timestamp     time.Time `json:"timestamp"`
	URL           string    `json:"url"`
	RemoteURL     string    `json:"remoteUrl,omitempty"`
	Caption       string    `json:"caption,omitempty"`
	Location      string    `json:"location,omitempty"`
	TaggedUserIDs []string  `json:"taggedUserIds"`
	Likes         []string  `json:"likes"`
	Comments      []Comment `json:"comments"`
	OrderInWeek   int       `json:"orderInWeek"`
	WeekTotal     int       `json:"weekTotal"`
}

func (p *Photo) EntityID() string { return p.ID }

// Clone returns a deep copy.
func (p *Photo) Clone() *Photo {
	out := *p
	out.TaggedUserIDs = slices.Clone(p.TaggedUserIDs)
	out.Likes = slices.Clone(p.Likes)
	out.Comments = slices.Clone(p.Comments)
	return &out
}

// LikedBy reports whether userID is in the like set.
func (p *Photo) LikedBy(userID string) bool {
	return slices.Contains(p.Likes, userID)
}

// SetLiked adds or removes userID from the like set. Returns true if the set changed.
func (p *Photo) SetLiked(userID string, liked bool) bool {
	i := slices.Index(p.Likes, userID)
	switch {
	case liked && i < 0:
		p.Likes = append(p.Likes, userID)
		return true
	case !liked && i >= 0:
		p.Likes = slices.Delete(p.Likes, i, i+1)
		return true
	}
	return false
}

// Source returns the remote URL the photo's media was fetched from.
func (p *Photo) Source() string {
	if p.RemoteURL != "" {
		return p.RemoteURL
	}
	return p.URL
}
