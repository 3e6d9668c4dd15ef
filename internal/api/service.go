package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/momento/internal/bus"
	"github.com/matheus3301/momento/internal/channel"
	"github.com/matheus3301/momento/internal/entity"
	"github.com/matheus3301/momento/internal/local"
	"github.com/matheus3301/momento/internal/model"
	"github.com/matheus3301/momento/internal/optimistic"
	"github.com/matheus3301/momento/internal/remote"
	intsync "github.com/matheus3301/momento/internal/sync"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Syncer runs on-demand syncs.
type Syncer interface {
	SyncKind(ctx context.Context, kind intsync.Kind) error
	SyncAll(ctx context.Context) error
	Last() map[intsync.Kind]intsync.Result
}

// Mutator performs user actions.
type Mutator interface {
	ToggleLike(ctx context.Context, photoID string) (bool, error)
	AddComment(ctx context.Context, photoID, text string) (*model.Comment, error)
	RenameAlbum(ctx context.Context, albumID, title string) error
	SendMessage(ctx context.Context, chatID, text string, attachments []model.Attachment) (*model.Message, error)
	DeleteComment(ctx context.Context, photoID, commentID string) error
	DeleteAlbum(ctx context.Context, albumID string) error
	DeletePhoto(ctx context.Context, photoID string) error
	AcceptFriend(ctx context.Context, userID string) error
	CancelFriend(ctx context.Context, userID string) error
	InviteFriend(ctx context.Context, userID string) error
}

// StateSource reports the push channel state.
type StateSource interface {
	State() channel.State
}

// Options wires the service to the session's components.
type Options struct {
	Session string
	Stores  *local.Stores
	Syncer  Syncer
	Mutator Mutator
	Channel StateSource
	SignOut func(ctx context.Context) error
	Bus     *bus.Bus
	Logger  *zap.Logger
}

// Service implements ControlServer.
type Service struct {
	opts      Options
	startedAt time.Time
	logger    *zap.Logger
}

func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{opts: opts, startedAt: time.Now(), logger: logger}
}

func (s *Service) Status(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	st := s.opts.Stores
	resp := map[string]any{
		"session":   s.opts.Session,
		"uptime_ms": time.Since(s.startedAt).Milliseconds(),
		"chats":     st.Chats.Len(),
		"photos":    st.Photos.Len(),
		"friends":   st.Friends.Len(),
		"albums":    st.Albums.Len(),
	}
	if s.opts.Channel != nil {
		resp["channel"] = string(s.opts.Channel.State())
	}
	if u, ok := st.Profile.Current(); ok {
		resp["user_id"] = u.ID
		resp["user_name"] = u.Name
	}
	if s.opts.Syncer != nil {
		kinds := map[string]any{}
		for k, r := range s.opts.Syncer.Last() {
			entry := map[string]any{
				"at":        r.Started.UTC().Format(time.RFC3339),
				"bootstrap": r.Bootstrap,
				"items":     r.Items,
			}
			if r.Err != nil {
				entry["error"] = r.Err.Error()
			}
			kinds[string(k)] = entry
		}
		resp["sync"] = kinds
	}
	return newStruct(resp)
}

func (s *Service) Sync(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s.opts.Syncer == nil {
		return nil, grpcstatus.Error(codes.Unavailable, "sync not running")
	}
	if name := field(in, "kind"); name != "" {
		kind, err := intsync.ParseKind(name)
		if err != nil {
			return nil, grpcstatus.Error(codes.InvalidArgument, err.Error())
		}
		if err := s.opts.Syncer.SyncKind(ctx, kind); err != nil {
			return nil, toStatus(err)
		}
		return newStruct(map[string]any{"synced": []any{name}})
	}

	_ = s.opts.Syncer.SyncAll(ctx)
	var synced, failed []any
	last := s.opts.Syncer.Last()
	for _, k := range intsync.Kinds {
		if r, ok := last[k]; ok && r.Err != nil {
			failed = append(failed, string(k))
		} else {
			synced = append(synced, string(k))
		}
	}
	return newStruct(map[string]any{"synced": synced, "failed": failed})
}

func (s *Service) SignOut(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if s.opts.SignOut == nil {
		return nil, grpcstatus.Error(codes.Unimplemented, "sign out not available")
	}
	if err := s.opts.SignOut(ctx); err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "sign out: %v", err)
	}
	s.logger.Info("signed out via control api")
	return newStruct(map[string]any{"signed_out": true})
}

func (s *Service) ListChats(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	limit := 50
	if v, ok := in.GetFields()["limit"]; ok && v.GetNumberValue() > 0 {
		limit = int(v.GetNumberValue())
	}
	chats := s.opts.Stores.Chats.Sorted()
	if len(chats) > limit {
		chats = chats[:limit]
	}
	out := make([]any, 0, len(chats))
	for _, c := range chats {
		entry := map[string]any{
			"id":     c.ID,
			"type":   string(c.Kind),
			"title":  chatTitle(c),
			"unread": c.UnreadCount,
		}
		if !c.LastMessageTime.IsZero() {
			entry["last_message_time"] = c.LastMessageTime.UTC().Format(time.RFC3339)
		}
		if len(c.Messages) > 0 {
			entry["last_message"] = c.Messages[0].Text
		}
		out = append(out, entry)
	}
	return newStruct(map[string]any{"chats": out})
}

func (s *Service) ToggleLike(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := required(in, "photo_id")
	if err != nil {
		return nil, err
	}
	liked, err := s.opts.Mutator.ToggleLike(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	return newStruct(map[string]any{"liked": liked})
}

func (s *Service) Comment(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := required(in, "photo_id")
	if err != nil {
		return nil, err
	}
	c, err := s.opts.Mutator.AddComment(ctx, id, field(in, "text"))
	if err != nil {
		return nil, toStatus(err)
	}
	return newStruct(map[string]any{"comment_id": c.ID})
}

func (s *Service) RenameAlbum(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := required(in, "album_id")
	if err != nil {
		return nil, err
	}
	if err := s.opts.Mutator.RenameAlbum(ctx, id, field(in, "title")); err != nil {
		return nil, toStatus(err)
	}
	return newStruct(map[string]any{"album_id": id})
}

func (s *Service) SendMessage(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := required(in, "chat_id")
	if err != nil {
		return nil, err
	}
	m, err := s.opts.Mutator.SendMessage(ctx, id, field(in, "text"), nil)
	if err != nil {
		return nil, toStatus(err)
	}
	return newStruct(map[string]any{"message_id": m.ID})
}

func (s *Service) DeleteComment(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	photoID, err := required(in, "photo_id")
	if err != nil {
		return nil, err
	}
	commentID, err := required(in, "comment_id")
	if err != nil {
		return nil, err
	}
	if err := s.opts.Mutator.DeleteComment(ctx, photoID, commentID); err != nil {
		return nil, toStatus(err)
	}
	return newStruct(map[string]any{"comment_id": commentID})
}

func (s *Service) DeleteAlbum(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := required(in, "album_id")
	if err != nil {
		return nil, err
	}
	if err := s.opts.Mutator.DeleteAlbum(ctx, id); err != nil {
		return nil, toStatus(err)
	}
	return newStruct(map[string]any{"album_id": id})
}

func (s *Service) DeletePhoto(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := required(in, "photo_id")
	if err != nil {
		return nil, err
	}
	if err := s.opts.Mutator.DeletePhoto(ctx, id); err != nil {
		return nil, toStatus(err)
	}
	return newStruct(map[string]any{"photo_id": id})
}

// Friend applies action ("accept", "cancel" or "invite") to user_id.
func (s *Service) Friend(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := required(in, "user_id")
	if err != nil {
		return nil, err
	}
	action := field(in, "action")
	var run func(context.Context, string) error
	switch action {
	case "accept":
		run = s.opts.Mutator.AcceptFriend
	case "cancel":
		run = s.opts.Mutator.CancelFriend
	case "invite":
		run = s.opts.Mutator.InviteFriend
	default:
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "unknown friend action %q", action)
	}
	if err := run(ctx, id); err != nil {
		return nil, toStatus(err)
	}
	return newStruct(map[string]any{"user_id": id, "action": action})
}

// Watch streams bus events whose kind starts with the requested namespace.
func (s *Service) Watch(in *structpb.Struct, stream WatchStream) error {
	if s.opts.Bus == nil {
		return grpcstatus.Error(codes.Unavailable, "event bus not running")
	}
	namespace := field(in, "namespace")
	ch, unsub := s.opts.Bus.Subscribe(namespace, 256)
	defer unsub()

	ctx := stream.Context()
	for {
		select {
		case evt := <-ch:
			out, err := newStruct(map[string]any{
				"event_id":       uuid.NewString(),
				"session":        s.opts.Session,
				"occurred_at_ms": evt.Timestamp.UnixMilli(),
				"kind":           evt.Kind,
				"payload":        eventPayload(evt.Payload),
			})
			if err != nil {
				return err
			}
			if err := stream.Send(out); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// eventPayload flattens a bus payload into values structpb accepts.
func eventPayload(p any) any {
	switch v := p.(type) {
	case nil:
		return nil
	case string:
		return v
	case entity.Change:
		return map[string]any{
			"store":   v.Store,
			"updated": anySlice(v.Updated),
			"removed": anySlice(v.Removed),
			"cleared": v.Cleared,
			"loaded":  v.Loaded,
		}
	case intsync.Result:
		out := map[string]any{
			"kind":        string(v.Kind),
			"bootstrap":   v.Bootstrap,
			"items":       v.Items,
			"removed":     v.Removed,
			"duration_ms": v.Duration.Milliseconds(),
		}
		if v.Err != nil {
			out["error"] = v.Err.Error()
		}
		return out
	case channel.StateChange:
		return map[string]any{"path": v.Path, "from": string(v.From), "to": string(v.To)}
	case channel.DroppedFrame:
		return map[string]any{
			"type":            v.Type,
			"conversation_id": v.ConversationID,
			"message_id":      v.MessageID,
			"reason":          v.Reason,
		}
	case optimistic.Alert:
		return map[string]any{"title": v.Title, "message": v.Message}
	}
	return fmt.Sprint(p)
}

func anySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func chatTitle(c *model.Chat) string {
	if c.Title != "" {
		return c.Title
	}
	for _, p := range c.Participants {
		if p.Name != "" {
			return p.Name
		}
	}
	return c.ID
}

func field(in *structpb.Struct, key string) string {
	return in.GetFields()[key].GetStringValue()
}

func required(in *structpb.Struct, key string) (string, error) {
	v := field(in, key)
	if v == "" {
		return "", grpcstatus.Errorf(codes.InvalidArgument, "%s is required", key)
	}
	return v, nil
}

func newStruct(m map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

// toStatus maps domain errors onto gRPC codes.
func toStatus(err error) error {
	switch {
	case errors.Is(err, optimistic.ErrValidation):
		return grpcstatus.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, entity.ErrNotFound), remote.IsNotFound(err):
		return grpcstatus.Error(codes.NotFound, err.Error())
	case remote.IsAuth(err):
		return grpcstatus.Error(codes.Unauthenticated, err.Error())
	case remote.IsNetwork(err):
		return grpcstatus.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return grpcstatus.Error(codes.DeadlineExceeded, err.Error())
	}
	return grpcstatus.Error(codes.Internal, err.Error())
}
