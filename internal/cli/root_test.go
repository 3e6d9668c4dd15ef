package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matheus3301/momento/internal/api"
	"github.com/matheus3301/momento/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCaller struct {
	socket    string
	method    string
	req       map[string]any
	resp      map[string]any
	err       error
	closed    bool
	namespace string
	events    []map[string]any
}

func (f *fakeCaller) Call(_ context.Context, method string, req map[string]any) (map[string]any, error) {
	f.method, f.req = method, req
	return f.resp, f.err
}

func (f *fakeCaller) Watch(_ context.Context, namespace string, fn func(map[string]any) error) error {
	f.method, f.namespace = api.MethodWatch, namespace
	for _, evt := range f.events {
		if err := fn(evt); err != nil {
			return err
		}
	}
	return f.err
}

func (f *fakeCaller) Close() error {
	f.closed = true
	return nil
}

func run(t *testing.T, fake *fakeCaller, args ...string) (string, error) {
	t.Helper()
	t.Setenv(session.HomeEnv, t.TempDir())
	opts := &RootOptions{Dial: func(socketPath string) (Caller, error) {
		fake.socket = socketPath
		return fake, nil
	}}
	cmd := newRootCommand(opts)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "momentoctl", cmd.Use)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"status", "sync", "signout", "chats", "like", "comment", "rename-album", "send", "delete-comment", "delete-album", "delete-photo", "friend", "watch"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	sessionFlag := cmd.PersistentFlags().Lookup("session")
	require.NotNil(t, sessionFlag)
	assert.Equal(t, "", sessionFlag.DefValue)

	jsonFlag := cmd.PersistentFlags().Lookup("json")
	require.NotNil(t, jsonFlag)
	assert.Equal(t, "false", jsonFlag.DefValue)
}

func TestStatusDialsSessionSocket(t *testing.T) {
	fake := &fakeCaller{resp: map[string]any{
		"session":   "work",
		"channel":   "OPEN",
		"user_id":   "me",
		"user_name": "Me",
		"sync": map[string]any{
			"photos": map[string]any{"at": "2026-03-04T12:00:00Z", "items": float64(3)},
			"chats":  map[string]any{"at": "2026-03-04T12:00:00Z", "items": float64(0), "error": "boom"},
		},
	}}
	out, err := run(t, fake, "--session", "work", "status")
	require.NoError(t, err)

	assert.Equal(t, api.MethodStatus, fake.method)
	assert.Equal(t, "daemon.sock", filepath.Base(fake.socket))
	assert.Equal(t, "work", filepath.Base(filepath.Dir(fake.socket)))
	assert.True(t, fake.closed)
	assert.Contains(t, out, "Session: work")
	assert.Contains(t, out, "Me (me)")
	assert.Contains(t, out, "error=boom")
}

func TestSyncKind(t *testing.T) {
	fake := &fakeCaller{resp: map[string]any{"synced": []any{"photos"}}}
	out, err := run(t, fake, "sync", "photos")
	require.NoError(t, err)
	assert.Equal(t, api.MethodSync, fake.method)
	assert.Equal(t, "photos", fake.req["kind"])
	assert.Contains(t, out, "Synced: photos")
}

func TestSyncRejectsUnknownKind(t *testing.T) {
	fake := &fakeCaller{}
	_, err := run(t, fake, "sync", "stories")
	require.Error(t, err)
	assert.Empty(t, fake.method, "nothing should be sent for an unknown kind")
}

func TestSyncAllReportsFailures(t *testing.T) {
	fake := &fakeCaller{resp: map[string]any{
		"synced": []any{"profile", "friends"},
		"failed": []any{"albums"},
	}}
	out, err := run(t, fake, "sync")
	require.NoError(t, err)
	_, hasKind := fake.req["kind"]
	assert.False(t, hasKind)
	assert.Contains(t, out, "Synced: profile, friends")
	assert.Contains(t, out, "Failed: albums")
}

func TestCommentJoinsText(t *testing.T) {
	fake := &fakeCaller{resp: map[string]any{"comment_id": "c9"}}
	out, err := run(t, fake, "comment", "p1", "nice", "shot")
	require.NoError(t, err)
	assert.Equal(t, api.MethodComment, fake.method)
	assert.Equal(t, map[string]any{"photo_id": "p1", "text": "nice shot"}, fake.req)
	assert.Contains(t, out, "c9")
}

func TestJSONOutput(t *testing.T) {
	fake := &fakeCaller{resp: map[string]any{"liked": true}}
	out, err := run(t, fake, "--json", "like", "p1")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, true, got["liked"])
}

func TestChatsListing(t *testing.T) {
	fake := &fakeCaller{resp: map[string]any{"chats": []any{
		map[string]any{"id": "c1", "title": "Ana", "unread": float64(2), "last_message": "hi"},
	}}}
	out, err := run(t, fake, "chats", "-n", "5")
	require.NoError(t, err)
	assert.Equal(t, 5, fake.req["limit"])
	assert.Contains(t, out, "Ana [2]")
	assert.Contains(t, out, "hi")
}

func TestCallErrorIsReturned(t *testing.T) {
	fake := &fakeCaller{err: errors.New("rpc error: code = NotFound desc = photo p1: not found")}
	_, err := run(t, fake, "like", "p1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NotFound")
}

func TestInvalidSessionName(t *testing.T) {
	_, err := run(t, &fakeCaller{}, "--session", "../escape", "status")
	require.Error(t, err)
}

func TestDeleteCommands(t *testing.T) {
	tests := []struct {
		args   []string
		method string
		req    map[string]any
		out    string
	}{
		{[]string{"delete-comment", "p1", "c9"}, api.MethodDeleteComment, map[string]any{"photo_id": "p1", "comment_id": "c9"}, "Comment c9 deleted."},
		{[]string{"delete-album", "a1"}, api.MethodDeleteAlbum, map[string]any{"album_id": "a1"}, "Album a1 deleted."},
		{[]string{"delete-photo", "p2"}, api.MethodDeletePhoto, map[string]any{"photo_id": "p2"}, "Photo p2 deleted."},
	}
	for _, tt := range tests {
		t.Run(tt.args[0], func(t *testing.T) {
			fake := &fakeCaller{resp: map[string]any{}}
			out, err := run(t, fake, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.method, fake.method)
			assert.Equal(t, tt.req, fake.req)
			assert.Contains(t, out, tt.out)
		})
	}
}

func TestFriendCommand(t *testing.T) {
	fake := &fakeCaller{resp: map[string]any{"user_id": "u1", "action": "invite"}}
	out, err := run(t, fake, "friend", "invite", "u1")
	require.NoError(t, err)
	assert.Equal(t, api.MethodFriend, fake.method)
	assert.Equal(t, map[string]any{"user_id": "u1", "action": "invite"}, fake.req)
	assert.Contains(t, out, "Invited u1.")

	fake = &fakeCaller{}
	_, err = run(t, fake, "friend", "block", "u1")
	require.Error(t, err)
	assert.Empty(t, fake.method, "nothing should be sent for an unknown action")
}

func TestWatchPrintsEvents(t *testing.T) {
	fake := &fakeCaller{events: []map[string]any{
		{"kind": "store.changed", "occurred_at_ms": float64(1772625600000), "payload": map[string]any{"store": "chats"}},
		{"kind": "store.changed", "occurred_at_ms": float64(1772625601000), "payload": map[string]any{"store": "photos"}},
	}}
	out, err := run(t, fake, "watch", "store.")
	require.NoError(t, err)
	assert.Equal(t, api.MethodWatch, fake.method)
	assert.Equal(t, "store.", fake.namespace)
	assert.True(t, fake.closed)
	assert.Contains(t, out, `store.changed`)
	assert.Contains(t, out, `{"store":"chats"}`)
	assert.Contains(t, out, `{"store":"photos"}`)
}

func TestWatchJSONLines(t *testing.T) {
	fake := &fakeCaller{events: []map[string]any{
		{"kind": "sync.kind_completed", "payload": map[string]any{"kind": "photos"}},
		{"kind": "session.signed_out", "payload": nil},
	}}
	out, err := run(t, fake, "--json", "watch")
	require.NoError(t, err)
	assert.Equal(t, "", fake.namespace)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "sync.kind_completed", first["kind"])
}

func TestWatchErrorIsReturned(t *testing.T) {
	fake := &fakeCaller{err: errors.New("rpc error: code = Unavailable desc = event bus not running")}
	_, err := run(t, fake, "watch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unavailable")
}
