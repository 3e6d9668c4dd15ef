package channel

import (
	"context"
	"encoding/json"

	"github.com/matheus3301/momento/internal/bus"
	"github.com/matheus3301/momento/internal/local"
	"github.com/matheus3301/momento/internal/remote"
	"go.uber.org/zap"
)

// Inbound frame types.
const (
	TypeNewMessage = "new_message"
	TypeRemoved    = "removed_from_conversation"
)

// ChatInfoFetcher loads metadata for a chat the client has not seen yet.
type ChatInfoFetcher interface {
	ChatInfo(ctx context.Context, chatID string) (*remote.ChatInfo, error)
}

// ChatHandler merges chat frames into the chat store.
type ChatHandler struct {
	stores *local.Stores
	chats  *local.ChatStore
	info   ChatInfoFetcher
	self   func() string
	bus    *bus.Bus
	logger *zap.Logger
}

// NewChatHandler creates a handler. self returns the current user id so
// that the user's own messages do not count as unread.
func NewChatHandler(stores *local.Stores, info ChatInfoFetcher, self func() string, b *bus.Bus, logger *zap.Logger) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if self == nil {
		self = func() string { return "" }
	}
	return &ChatHandler{stores: stores, chats: stores.Chats, info: info, self: self, bus: b, logger: logger}
}

// DroppedFrame is the bus payload for a frame that changed nothing.
type DroppedFrame struct {
	Type           string
	ConversationID string
	MessageID      string
	Reason         string
}

type newMessageFrame struct {
	Message remote.MessageRecord `json:"message"`
}

// Handle is a FrameHandler.
func (h *ChatHandler) Handle(ctx context.Context, f Frame) {
	log := h.logger.With(zap.String("type", f.Type), zap.String("conversation_id", f.ConversationID))
	switch f.Type {
	case TypeNewMessage:
		h.newMessage(ctx, f, log)
	case TypeRemoved:
		if h.chats.Delete(f.ConversationID) {
			log.Info("removed from conversation")
		}
	default:
		log.Debug("ignoring frame")
	}
}

func (h *ChatHandler) newMessage(ctx context.Context, f Frame, log *zap.Logger) {
	var body newMessageFrame
	if err := json.Unmarshal(f.Raw, &body); err != nil || body.Message.MessageID == "" {
		log.Warn("malformed new_message frame", zap.Error(err))
		h.drop(f, "", "malformed")
		return
	}
	msg := body.Message.Model()

	if !h.chats.Has(f.ConversationID) {
		info, err := h.info.ChatInfo(ctx, f.ConversationID)
		if err != nil {
			log.Warn("chat info fetch failed, dropping message", zap.Error(err))
			h.drop(f, msg.ID, "unknown chat")
			return
		}
		h.chats.EnsureChat(h.stores.ChatWithAvatars(info.Model()))
	}

	added, err := h.chats.ReceiveMessage(f.ConversationID, msg, msg.SenderID != h.self())
	if err != nil {
		log.Warn("receive message failed", zap.Error(err))
		return
	}
	if !added {
		log.Debug("duplicate message dropped", zap.String("message_id", msg.ID))
		h.drop(f, msg.ID, "duplicate")
	}
}

func (h *ChatHandler) drop(f Frame, msgID, reason string) {
	h.bus.Emit(bus.KindChannelFrame, DroppedFrame{
		Type:           f.Type,
		ConversationID: f.ConversationID,
		MessageID:      msgID,
		Reason:         reason,
	})
}
