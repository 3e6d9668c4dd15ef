package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/matheus3301/momento/internal/model"
)

// Record is one server entity as a JSON object, ready for a merge-by-id.
type Record = map[string]json.RawMessage

// Batch is the decoded body of a fetch or fetch_history call.
type Batch struct {
	Items   []Record
	Removed []string
}

// FetchOptions selects between bootstrap and incremental fetches. A nil
// Since requests the full recent history.
type FetchOptions struct {
	Since *time.Time
	Weeks int
}

func fetchRequest(resource string, opts FetchOptions) (string, url.Values) {
	q := url.Values{}
	if opts.Since == nil {
		if opts.Weeks > 0 {
			q.Set("weeks", strconv.Itoa(opts.Weeks))
		}
		return resource + "/fetch_history", q
	}
	q.Set("since", opts.Since.UTC().Format(time.RFC3339))
	return resource + "/fetch", q
}

// Fetch returns the records of resource changed since opts.Since, or its
// history when opts.Since is nil.
func (c *Client) Fetch(ctx context.Context, resource string, opts FetchOptions) (*Batch, error) {
	path, q := fetchRequest(resource, opts)
	var raw map[string]json.RawMessage
	if err := c.Do(ctx, http.MethodGet, path, q, nil, &raw); err != nil {
		return nil, err
	}
	b, err := decodeBatch(raw)
	if err != nil {
		return nil, &Error{Kind: KindServer, Method: http.MethodGet, Path: path, Err: err}
	}
	return b, nil
}

// decodeBatch accepts {"items": [...]} or a resource-named list such as
// {"photos": [...]}, plus an optional "removed" id list.
func decodeBatch(raw map[string]json.RawMessage) (*Batch, error) {
	b := &Batch{}
	if r, ok := raw["removed"]; ok {
		if err := json.Unmarshal(r, &b.Removed); err != nil {
			return nil, fmt.Errorf("decode removed: %w", err)
		}
	}
	keys := []string{"items"}
	for _, k := range slices.Sorted(maps.Keys(raw)) {
		if k != "items" && k != "removed" {
			keys = append(keys, k)
		}
	}
	for _, k := range keys {
		r, ok := raw[k]
		if !ok {
			continue
		}
		var items []Record
		if err := json.Unmarshal(r, &items); err != nil {
			continue
		}
		b.Items = items
		return b, nil
	}
	return b, nil
}

// ChatBatch is the body of chat/fetch and chat/fetch_history.
type ChatBatch struct {
	Chats   []ChatRecord `json:"chats"`
	Removed []string     `json:"removed,omitempty"`
}

type ChatRecord struct {
	ConversationID   string          `json:"conversationId"`
	ConversationType model.ChatKind  `json:"conversationType"`
	LastMessageTime  time.Time       `json:"lastMessageTime"`
	Messages         []MessageRecord `json:"messages"`
}

type MessageRecord struct {
	MessageID   string             `json:"messageId"`
	SenderID    string             `json:"senderId"`
	Message     string             `json:"message"`
	Timestamp   time.Time          `json:"timestamp"`
	Attachments []model.Attachment `json:"attachments"`
}

// Model converts the wire message to the stored form.
func (m MessageRecord) Model() model.Message {
	return model.Message{
		ID:          m.MessageID,
		SenderID:    m.SenderID,
		Text:        m.Message,
		CreatedAt:   m.Timestamp,
		Attachments: m.Attachments,
	}
}

// Models converts every message of the record.
func (r ChatRecord) Models() []model.Message {
	out := make([]model.Message, 0, len(r.Messages))
	for _, m := range r.Messages {
		out = append(out, m.Model())
	}
	return out
}

type ParticipantRecord struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Name     string `json:"name"`
	IconURL  string `json:"iconUrl"`
}

// ChatInfo is the body of chat/conversation/<id>/info.
type ChatInfo struct {
	ConversationID   string              `json:"conversationId"`
	ConversationType model.ChatKind      `json:"conversationType"`
	Participants     []ParticipantRecord `json:"participants"`
	InitialDate      time.Time           `json:"initialDate"`
	Title            string              `json:"title,omitempty"`
	IconURL          string              `json:"iconUrl,omitempty"`
}

// Model converts chat metadata into an empty chat.
func (ci *ChatInfo) Model() *model.Chat {
	c := &model.Chat{
		ID:          ci.ConversationID,
		Kind:        ci.ConversationType,
		InitialDate: ci.InitialDate,
		Title:       ci.Title,
		IconURL:     ci.IconURL,
		Messages:    []model.Message{},
	}
	for _, p := range ci.Participants {
		c.Participants = append(c.Participants, model.Participant{
			ID: p.UserID, Name: p.Name, Username: p.Username, Avatar: p.IconURL,
		})
	}
	return c
}

// FetchChats returns chats with messages since the cursor, or the chat history.
func (c *Client) FetchChats(ctx context.Context, since *time.Time) (*ChatBatch, error) {
	path, q := fetchRequest("chat", FetchOptions{Since: since})
	var out ChatBatch
	if err := c.Do(ctx, http.MethodGet, path, q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChatInfo fetches one conversation's metadata.
func (c *Client) ChatInfo(ctx context.Context, chatID string) (*ChatInfo, error) {
	var out ChatInfo
	if err := c.Do(ctx, http.MethodGet, "chat/conversation/"+url.PathEscape(chatID)+"/info", nil, nil, &out); err != nil {
		return nil, err
	}
	if out.ConversationID == "" {
		out.ConversationID = chatID
	}
	return &out, nil
}

type userRecord struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Bio      string `json:"bio"`
	IconURL  string `json:"iconUrl"`
}

// Profile returns the signed-in user.
func (c *Client) Profile(ctx context.Context) (*model.User, error) {
	var u userRecord
	if err := c.Do(ctx, http.MethodGet, "user/profile/myself", nil, nil, &u); err != nil {
		return nil, err
	}
	return &model.User{
		ID: u.ID, Email: u.Email, Username: u.Username, Name: u.Name,
		Phone: u.Phone, Bio: u.Bio, Avatar: u.IconURL,
	}, nil
}

// SetLike likes or unlikes a photo.
func (c *Client) SetLike(ctx context.Context, photoID string, like bool) error {
	action := "unlike"
	if like {
		action = "like"
	}
	return c.Do(ctx, http.MethodPost, "photo/"+url.PathEscape(photoID)+"/"+action, nil, nil, nil)
}

// AddComment posts a comment and returns the server's copy.
func (c *Client) AddComment(ctx context.Context, photoID, text string) (*model.Comment, error) {
	var out model.Comment
	body := map[string]string{"message": text}
	if err := c.Do(ctx, http.MethodPost, "photo/"+url.PathEscape(photoID)+"/comment", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteComment removes a comment from a photo.
func (c *Client) DeleteComment(ctx context.Context, photoID, commentID string) error {
	path := "photo/" + url.PathEscape(photoID) + "/comment/" + url.PathEscape(commentID)
	return c.Do(ctx, http.MethodDelete, path, nil, nil, nil)
}

// Delete removes an entity of resource, e.g. Delete(ctx, "album", id).
func (c *Client) Delete(ctx context.Context, resource, id string) error {
	return c.Do(ctx, http.MethodDelete, resource+"/"+url.PathEscape(id)+"/delete", nil, nil, nil)
}

// EditAlbum renames an album.
func (c *Client) EditAlbum(ctx context.Context, albumID, title string) error {
	body := map[string]string{"title": title}
	return c.Do(ctx, http.MethodPost, "album/"+url.PathEscape(albumID)+"/edit", nil, body, nil)
}

// SendMessage posts a message and returns the server's copy.
func (c *Client) SendMessage(ctx context.Context, chatID, text string, attachments []model.Attachment) (*model.Message, error) {
	body := map[string]any{"message": text, "attachments": attachments}
	var out MessageRecord
	if err := c.Do(ctx, http.MethodPost, "chat/conversation/"+url.PathEscape(chatID)+"/send", nil, body, &out); err != nil {
		return nil, err
	}
	m := out.Model()
	return &m, nil
}

// FriendAction performs accept, cancel or invite on a user.
func (c *Client) FriendAction(ctx context.Context, userID, action string) error {
	return c.Do(ctx, http.MethodPost, "friend/"+url.PathEscape(userID)+"/"+action, nil, nil, nil)
}
