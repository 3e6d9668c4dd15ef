package model

// User is the signed-in user's profile.
type User struct {
	ID       string `json:"id"`
	Email    string `json:"email,omitempty"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Phone    string `json:"phone,omitempty"`
	Bio      string `json:"bio,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}

func (u *User) EntityID() string { return u.ID }

func (u *User) Clone() *User {
	out := *u
	return &out
}
