package model

// FriendStatus is the relationship between the current user and another user.
type FriendStatus string

const (
	StatusFriend    FriendStatus = "friend"
	StatusPending   FriendStatus = "pending"
	StatusSuggested FriendStatus = "suggested"
	StatusOutgoing  FriendStatus = "outgoing"
)

// Valid reports whether s is a known status.
func (s FriendStatus) Valid() bool {
	switch s {
	case StatusFriend, StatusPending, StatusSuggested, StatusOutgoing:
		return true
	}
	return false
}

// Friend is another user as seen from the current user's friend list.
type Friend struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Username      string       `json:"username"`
	Avatar        string       `json:"avatar,omitempty"`
	Status        FriendStatus `json:"status"`
	LastActive    string       `json:"lastActive,omitempty"`
	MutualFriends int          `json:"mutualFriends,omitempty"`
}

func (f *Friend) EntityID() string { return f.ID }

func (f *Friend) Clone() *Friend {
	out := *f
	return &out
}
