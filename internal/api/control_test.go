package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/momento/internal/bus"
	"github.com/matheus3301/momento/internal/channel"
	"github.com/matheus3301/momento/internal/entity"
	"github.com/matheus3301/momento/internal/local"
	"github.com/matheus3301/momento/internal/model"
	"github.com/matheus3301/momento/internal/optimistic"
	intsync "github.com/matheus3301/momento/internal/sync"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

type fakeSyncer struct {
	kinds []intsync.Kind
	last  map[intsync.Kind]intsync.Result
}

func (f *fakeSyncer) SyncKind(_ context.Context, k intsync.Kind) error {
	f.kinds = append(f.kinds, k)
	return nil
}

func (f *fakeSyncer) SyncAll(context.Context) error {
	f.last = map[intsync.Kind]intsync.Result{}
	for _, k := range intsync.Kinds {
		r := intsync.Result{Kind: k, Started: time.Now()}
		if k == intsync.KindAlbums {
			r.Err = errors.New("boom")
		}
		f.last[k] = r
	}
	return errors.New("boom")
}

func (f *fakeSyncer) Last() map[intsync.Kind]intsync.Result { return f.last }

type fakeMutator struct {
	mu    *sync.Mutex
	calls *[]string
}

func newFakeMutator() fakeMutator {
	return fakeMutator{mu: new(sync.Mutex), calls: new([]string)}
}

func (f fakeMutator) record(call string) {
	f.mu.Lock()
	*f.calls = append(*f.calls, call)
	f.mu.Unlock()
}

func (f fakeMutator) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), *f.calls...)
}

func (fakeMutator) ToggleLike(_ context.Context, id string) (bool, error) {
	if id == "missing" {
		return false, fmt.Errorf("photo %s: %w", id, entity.ErrNotFound)
	}
	return true, nil
}

func (fakeMutator) AddComment(_ context.Context, _, text string) (*model.Comment, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: empty comment", optimistic.ErrValidation)
	}
	return &model.Comment{ID: "c1", Message: text}, nil
}

func (fakeMutator) RenameAlbum(context.Context, string, string) error { return nil }

func (fakeMutator) SendMessage(_ context.Context, _, text string, _ []model.Attachment) (*model.Message, error) {
	return &model.Message{ID: "m1", Text: text}, nil
}

func (f fakeMutator) DeleteComment(_ context.Context, photoID, commentID string) error {
	f.record("delete-comment " + photoID + " " + commentID)
	return nil
}

func (f fakeMutator) DeleteAlbum(_ context.Context, id string) error {
	f.record("delete-album " + id)
	return nil
}

func (f fakeMutator) DeletePhoto(_ context.Context, id string) error {
	if id == "missing" {
		return fmt.Errorf("photo %s: %w", id, entity.ErrNotFound)
	}
	f.record("delete-photo " + id)
	return nil
}

func (f fakeMutator) AcceptFriend(_ context.Context, id string) error {
	f.record("accept " + id)
	return nil
}

func (f fakeMutator) CancelFriend(_ context.Context, id string) error {
	f.record("cancel " + id)
	return nil
}

func (f fakeMutator) InviteFriend(_ context.Context, id string) error {
	f.record("invite " + id)
	return nil
}

type fixedState channel.State

func (s fixedState) State() channel.State { return channel.State(s) }

func startServer(t *testing.T, svc ControlServer) *Client {
	t.Helper()
	// Short path: Unix socket paths are limited to ~104 bytes on macOS.
	dir, err := os.MkdirTemp("/tmp", "momento-api-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	sock := filepath.Join(dir, "d.sock")

	lis, err := net.Listen("unix", sock)
	if err != nil {
		t.Fatal(err)
	}
	srv := grpc.NewServer()
	RegisterControlServer(srv, svc)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	c, err := Dial(sock)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func newTestService(t *testing.T) (*Service, *local.Stores, *fakeSyncer, *bool) {
	t.Helper()
	stores := local.NewStores(nil, nil)
	syncer := &fakeSyncer{}
	signedOut := new(bool)
	svc := NewService(Options{
		Session: "test",
		Stores:  stores,
		Syncer:  syncer,
		Mutator: newFakeMutator(),
		Channel: fixedState(channel.Open),
		SignOut: func(context.Context) error { *signedOut = true; return nil },
		Bus:     bus.New(),
	})
	return svc, stores, syncer, signedOut
}

func TestStatus(t *testing.T) {
	svc, stores, _, _ := newTestService(t)
	stores.Profile.Set(&model.User{ID: "me", Name: "Me"})
	stores.Chats.EnsureChat(&model.Chat{ID: "c1"})
	c := startServer(t, svc)

	resp, err := c.Call(context.Background(), MethodStatus, nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp["session"] != "test" || resp["channel"] != "OPEN" || resp["user_id"] != "me" {
		t.Errorf("status = %v", resp)
	}
	if resp["chats"] != float64(1) {
		t.Errorf("chats = %v, want 1", resp["chats"])
	}
}

func TestSync(t *testing.T) {
	svc, _, syncer, _ := newTestService(t)
	c := startServer(t, svc)
	ctx := context.Background()

	if _, err := c.Call(ctx, MethodSync, map[string]any{"kind": "photos"}); err != nil {
		t.Fatal(err)
	}
	if len(syncer.kinds) != 1 || syncer.kinds[0] != intsync.KindPhotos {
		t.Errorf("kinds = %v", syncer.kinds)
	}

	_, err := c.Call(ctx, MethodSync, map[string]any{"kind": "stories"})
	if grpcstatus.Code(err) != codes.InvalidArgument {
		t.Errorf("unknown kind err = %v", err)
	}

	resp, err := c.Call(ctx, MethodSync, nil)
	if err != nil {
		t.Fatal(err)
	}
	failed, _ := resp["failed"].([]any)
	if len(failed) != 1 || failed[0] != "albums" {
		t.Errorf("failed = %v", resp["failed"])
	}
	synced, _ := resp["synced"].([]any)
	if len(synced) != len(intsync.Kinds)-1 {
		t.Errorf("synced = %v", resp["synced"])
	}
}

func TestListChatsNewestFirst(t *testing.T) {
	svc, stores, _, _ := newTestService(t)
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	stores.Chats.EnsureChat(&model.Chat{ID: "old", Title: "Old", LastMessageTime: base})
	stores.Chats.EnsureChat(&model.Chat{ID: "new", Participants: []model.Participant{{ID: "u2", Name: "Bia"}}, LastMessageTime: base.Add(time.Hour)})
	c := startServer(t, svc)

	resp, err := c.Call(context.Background(), MethodListChats, map[string]any{"limit": 10})
	if err != nil {
		t.Fatal(err)
	}
	chats := resp["chats"].([]any)
	if len(chats) != 2 {
		t.Fatalf("chats = %v", chats)
	}
	first := chats[0].(map[string]any)
	if first["id"] != "new" || first["title"] != "Bia" {
		t.Errorf("first = %v", first)
	}
}

func TestMutationsAndErrorCodes(t *testing.T) {
	svc, _, _, signedOut := newTestService(t)
	c := startServer(t, svc)
	ctx := context.Background()

	resp, err := c.Call(ctx, MethodToggleLike, map[string]any{"photo_id": "p1"})
	if err != nil || resp["liked"] != true {
		t.Errorf("ToggleLike = %v, %v", resp, err)
	}
	if _, err := c.Call(ctx, MethodToggleLike, nil); grpcstatus.Code(err) != codes.InvalidArgument {
		t.Errorf("missing photo_id err = %v", err)
	}
	if _, err := c.Call(ctx, MethodToggleLike, map[string]any{"photo_id": "missing"}); grpcstatus.Code(err) != codes.NotFound {
		t.Errorf("missing photo err = %v", err)
	}
	if _, err := c.Call(ctx, MethodComment, map[string]any{"photo_id": "p1"}); grpcstatus.Code(err) != codes.InvalidArgument {
		t.Errorf("empty comment err = %v", err)
	}
	resp, err = c.Call(ctx, MethodSendMessage, map[string]any{"chat_id": "c1", "text": "hi"})
	if err != nil || resp["message_id"] != "m1" {
		t.Errorf("SendMessage = %v, %v", resp, err)
	}
	if _, err := c.Call(ctx, MethodRenameAlbum, map[string]any{"album_id": "a1", "title": "New"}); err != nil {
		t.Errorf("RenameAlbum err = %v", err)
	}
	if _, err := c.Call(ctx, MethodSignOut, nil); err != nil || !*signedOut {
		t.Errorf("SignOut err = %v signed out = %v", err, *signedOut)
	}
}

func TestDeleteAndFriendActions(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	mut := svc.opts.Mutator.(fakeMutator)
	c := startServer(t, svc)
	ctx := context.Background()

	calls := []struct {
		method string
		req    map[string]any
	}{
		{MethodDeleteComment, map[string]any{"photo_id": "p1", "comment_id": "c9"}},
		{MethodDeleteAlbum, map[string]any{"album_id": "a1"}},
		{MethodDeletePhoto, map[string]any{"photo_id": "p2"}},
		{MethodFriend, map[string]any{"user_id": "u1", "action": "accept"}},
		{MethodFriend, map[string]any{"user_id": "u2", "action": "cancel"}},
		{MethodFriend, map[string]any{"user_id": "u3", "action": "invite"}},
	}
	for _, call := range calls {
		if _, err := c.Call(ctx, call.method, call.req); err != nil {
			t.Errorf("%s(%v) err = %v", call.method, call.req, err)
		}
	}
	want := []string{
		"delete-comment p1 c9",
		"delete-album a1",
		"delete-photo p2",
		"accept u1",
		"cancel u2",
		"invite u3",
	}
	got := mut.recorded()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("calls = %v, want %v", got, want)
	}

	if _, err := c.Call(ctx, MethodDeleteComment, map[string]any{"photo_id": "p1"}); grpcstatus.Code(err) != codes.InvalidArgument {
		t.Errorf("missing comment_id err = %v", err)
	}
	if _, err := c.Call(ctx, MethodDeletePhoto, map[string]any{"photo_id": "missing"}); grpcstatus.Code(err) != codes.NotFound {
		t.Errorf("missing photo err = %v", err)
	}
	if _, err := c.Call(ctx, MethodFriend, map[string]any{"user_id": "u1", "action": "block"}); grpcstatus.Code(err) != codes.InvalidArgument {
		t.Errorf("unknown action err = %v", err)
	}
}

func TestWatchStreamsMatchingEvents(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	b := svc.opts.Bus
	c := startServer(t, svc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan map[string]any, 16)
	done := make(chan error, 1)
	go func() {
		done <- c.Watch(ctx, "store.", func(evt map[string]any) error {
			select {
			case got <- evt:
			default:
			}
			return nil
		})
	}()

	// The subscription is registered asynchronously, so keep emitting
	// until the first event arrives.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		tick := time.NewTicker(10 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-stop:
				return
			case <-tick.C:
				b.Emit(bus.KindSyncCompleted, intsync.Result{Kind: intsync.KindPhotos})
				b.Emit(bus.KindStoreChanged, entity.Change{Store: "chats", Updated: []string{"c1"}})
			}
		}
	}()

	var evt map[string]any
	select {
	case evt = <-got:
	case <-time.After(5 * time.Second):
		t.Fatal("no event received")
	}
	if evt["kind"] != bus.KindStoreChanged || evt["session"] != "test" {
		t.Errorf("event = %v", evt)
	}
	if id, _ := evt["event_id"].(string); id == "" {
		t.Errorf("event_id missing: %v", evt)
	}
	payload, _ := evt["payload"].(map[string]any)
	updated, _ := payload["updated"].([]any)
	if payload["store"] != "chats" || len(updated) != 1 || updated[0] != "c1" {
		t.Errorf("payload = %v", evt["payload"])
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestWatchWithoutBus(t *testing.T) {
	svc := NewService(Options{Session: "test", Stores: local.NewStores(nil, nil)})
	c := startServer(t, svc)

	err := c.Watch(context.Background(), "", func(map[string]any) error { return nil })
	if grpcstatus.Code(err) != codes.Unavailable {
		t.Errorf("err = %v, want Unavailable", err)
	}
}

func TestEventPayload(t *testing.T) {
	res := eventPayload(intsync.Result{Kind: intsync.KindAlbums, Items: 3, Err: errors.New("boom")}).(map[string]any)
	if res["kind"] != "albums" || res["items"] != 3 || res["error"] != "boom" {
		t.Errorf("sync payload = %v", res)
	}
	st := eventPayload(channel.StateChange{Path: "/chat", From: channel.Connecting, To: channel.Open}).(map[string]any)
	if st["to"] != "OPEN" || st["path"] != "/chat" {
		t.Errorf("state payload = %v", st)
	}
	alert := eventPayload(optimistic.Alert{Title: "Like failed", Message: "offline"}).(map[string]any)
	if alert["title"] != "Like failed" {
		t.Errorf("alert payload = %v", alert)
	}
	if eventPayload(nil) != nil {
		t.Error("nil payload should stay nil")
	}
	if eventPayload(42) != "42" {
		t.Errorf("fallback = %v", eventPayload(42))
	}
}
