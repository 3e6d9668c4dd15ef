package local

import (
	"fmt"
	"slices"
	"time"

	"github.com/matheus3301/momento/internal/entity"
	"github.com/matheus3301/momento/internal/model"
	"go.uber.org/zap"
)

// ChatStore holds conversations and their messages, newest message first.
type ChatStore struct {
	*entity.Store[*model.Chat]
}

func NewChatStore(p entity.Persister, logger *zap.Logger) *ChatStore {
	s := entity.New[*model.Chat]("chat", p, logger)
	s.SetNormalizer(func(c *model.Chat) {
		if c.UnreadCount < 0 {
			c.UnreadCount = 0
		}
		if c.Messages == nil {
			c.Messages = []model.Message{}
		}
	})
	return &ChatStore{Store: s}
}

// EnsureChat inserts meta if the chat is unknown, otherwise refreshes its
// metadata while keeping messages and the unread counter. Returns true if
// the chat was created.
func (s *ChatStore) EnsureChat(meta *model.Chat) bool {
	created := false
	_ = s.Tx(func(tx *entity.Tx[*model.Chat]) error {
		cur, ok := tx.Get(meta.ID)
		if !ok {
			tx.Put(meta)
			created = true
			return nil
		}
		if meta.Kind != "" {
			cur.Kind = meta.Kind
		}
		if len(meta.Participants) > 0 {
			cur.Participants = slices.Clone(meta.Participants)
		}
		if meta.Title != "" {
			cur.Title = meta.Title
		}
		if meta.IconURL != "" {
			cur.IconURL = meta.IconURL
		}
		if !meta.InitialDate.IsZero() {
			cur.InitialDate = meta.InitialDate
		}
		if meta.LastMessageTime.After(cur.LastMessageTime) {
			cur.LastMessageTime = meta.LastMessageTime
		}
		tx.Put(cur)
		return nil
	})
	return created
}

// ReceiveMessage prepends msg to the chat. A message whose id is already
// present is dropped and false is returned.
func (s *ChatStore) ReceiveMessage(chatID string, msg model.Message, countUnread bool) (bool, error) {
	added := false
	err := s.Update(chatID, func(c *model.Chat) bool {
		if c.HasMessage(msg.ID) {
			return false
		}
		c.Messages = slices.Insert(c.Messages, 0, msg)
		if countUnread {
			c.UnreadCount++
		}
		if msg.CreatedAt.After(c.LastMessageTime) {
			c.LastMessageTime = msg.CreatedAt
		}
		added = true
		return true
	})
	return added, err
}

// MergeMessages adds the messages not yet in the chat and keeps the list
// ordered newest first. Returns how many were added.
func (s *ChatStore) MergeMessages(chatID string, msgs []model.Message, lastMessageTime time.Time) (int, error) {
	added := 0
	err := s.Update(chatID, func(c *model.Chat) bool {
		for _, m := range msgs {
			if c.HasMessage(m.ID) {
				continue
			}
			c.Messages = append(c.Messages, m)
			if m.CreatedAt.After(c.LastMessageTime) {
				c.LastMessageTime = m.CreatedAt
			}
			added++
		}
		advanced := lastMessageTime.After(c.LastMessageTime)
		if advanced {
			c.LastMessageTime = lastMessageTime
		}
		if added > 0 {
			sortNewestFirst(c.Messages)
		}
		return added > 0 || advanced
	})
	return added, err
}

// ReplaceMessage swaps a locally created message for the server's copy. If the
// server copy already arrived through another path, the local one is dropped.
func (s *ChatStore) ReplaceMessage(chatID, localID string, msg model.Message) error {
	return s.Update(chatID, func(c *model.Chat) bool {
		i := c.MessageIndex(localID)
		if i < 0 {
			return false
		}
		if c.HasMessage(msg.ID) {
			c.Messages = slices.Delete(c.Messages, i, i+1)
			return true
		}
		c.Messages[i] = msg
		return true
	})
}

// RetractMessage removes a locally sent message and puts lastMessageTime back
// to prev, unless newer activity has arrived since.
func (s *ChatStore) RetractMessage(chatID, msgID string, prev time.Time) error {
	return s.Update(chatID, func(c *model.Chat) bool {
		i := c.MessageIndex(msgID)
		if i < 0 {
			return false
		}
		removed := c.Messages[i]
		c.Messages = slices.Delete(c.Messages, i, i+1)
		if c.LastMessageTime.Equal(removed.CreatedAt) {
			last := prev
			for _, m := range c.Messages {
				if m.CreatedAt.After(last) {
					last = m.CreatedAt
				}
			}
			c.LastMessageTime = last
		}
		return true
	})
}

// ClearUnread resets the unread counter.
func (s *ChatStore) ClearUnread(chatID string) error {
	return s.Update(chatID, func(c *model.Chat) bool {
		if c.UnreadCount == 0 {
			return false
		}
		c.UnreadCount = 0
		return true
	})
}

// SetTitle renames a chat.
func (s *ChatStore) SetTitle(chatID, title string) error {
	if err := s.Update(chatID, func(c *model.Chat) bool {
		if c.Title == title {
			return false
		}
		c.Title = title
		return true
	}); err != nil {
		return fmt.Errorf("set title: %w", err)
	}
	return nil
}

// Delete removes a chat and all its messages.
func (s *ChatStore) Delete(chatID string) bool {
	return s.Remove(chatID)
}

// Sorted returns every chat, most recent activity first.
func (s *ChatStore) Sorted() []*model.Chat {
	chats := s.All()
	slices.SortStableFunc(chats, func(a, b *model.Chat) int {
		return b.LastMessageTime.Compare(a.LastMessageTime)
	})
	return chats
}

func sortNewestFirst(msgs []model.Message) {
	slices.SortStableFunc(msgs, func(a, b model.Message) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
}
