package model

import (
	"slices"
	"time"
)

// ChatKind distinguishes one-to-one conversations from group conversations.
type ChatKind string

const (
	ChatDirect ChatKind = "direct"
	ChatGroup  ChatKind = "group"
)

// Participant is a member of a chat as rendered in the chat list.
type Participant struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}

// Attachment is a file referenced by a message.
type Attachment struct {
	URL      string `json:"url"`
	Name     string `json:"name"`
	MimeType string `json:"type"`
}

// Message is a single chat message. Messages are owned by their Chat.
type Message struct {
	ID          string       `json:"id"`
	SenderID    string       `json:"senderId"`
	Text        string       `json:"text"`
	CreatedAt   time.Time    `json:"createdAt"`
	Attachments []Attachment `json:"attachments,omitempty"`
	// Pending marks a locally sent message that the server has not acknowledged.
	Pending bool `json:"pending,omitempty"`
}

// Chat is a conversation with its messages stored newest-first.
type Chat struct {
	ID              string        `json:"id"`
	Kind            ChatKind      `json:"type"`
	Participants    []Participant `json:"participants"`
	Messages        []Message     `json:"messages"`
	InitialDate     time.Time     `json:"initialDate"`
	LastMessageTime time.Time     `json:"lastMessageTime"`
	UnreadCount     int           `json:"unreadCount"`
	Title           string        `json:"title,omitempty"`
	IconURL         string        `json:"iconUrl,omitempty"`
}

func (c *Chat) EntityID() string { return c.ID }

// Clone returns a deep copy.
func (c *Chat) Clone() *Chat {
	out := *c
	out.Participants = slices.Clone(c.Participants)
	out.Messages = make([]Message, len(c.Messages))
	for i, m := range c.Messages {
		m.Attachments = slices.Clone(m.Attachments)
		out.Messages[i] = m
	}
	return &out
}

// HasMessage reports whether a message with id is already in the chat.
func (c *Chat) HasMessage(id string) bool {
	return c.MessageIndex(id) >= 0
}

// MessageIndex returns the position of message id, or -1.
func (c *Chat) MessageIndex(id string) int {
	return slices.IndexFunc(c.Messages, func(m Message) bool { return m.ID == id })
}
