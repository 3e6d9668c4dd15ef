package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuth struct {
	refreshes atomic.Int32
	token     atomic.Value
	failNext  error
}

func newFakeAuth(token string) *fakeAuth {
	a := &fakeAuth{}
	a.token.Store(token)
	return a
}

func (a *fakeAuth) AuthHeader(_ context.Context, refresh bool) (string, error) {
	if refresh {
		a.refreshes.Add(1)
		if a.failNext != nil {
			return "", a.failNext
		}
		a.token.Store("fresh")
	}
	return "Bearer " + a.token.Load().(string), nil
}

func newClient(t *testing.T, h http.HandlerFunc, auth Authenticator) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.URL+"/api", auth, srv.Client(), nil)
	require.NoError(t, err)
	return c
}

func TestRetriesOnceAfterRefresh(t *testing.T) {
	auth := newFakeAuth("stale")
	var calls atomic.Int32
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"id":"me","name":"Me","iconUrl":"https://x/me.png"}`))
	}, auth)

	u, err := c.Profile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "me", u.ID)
	assert.Equal(t, "https://x/me.png", u.Avatar)
	assert.EqualValues(t, 2, calls.Load())
	assert.EqualValues(t, 1, auth.refreshes.Load())
}

func TestSecondUnauthorizedSignsOut(t *testing.T) {
	auth := newFakeAuth("stale")
	c := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}, auth)
	var signedOut atomic.Int32
	c.OnAuthFailure = func() { signedOut.Add(1) }

	_, err := c.Profile(context.Background())
	require.Error(t, err)
	assert.True(t, IsAuth(err))
	assert.EqualValues(t, 1, signedOut.Load())
	assert.EqualValues(t, 1, auth.refreshes.Load(), "only one refresh per request")
}

func TestRefreshFailureSignsOut(t *testing.T) {
	auth := newFakeAuth("stale")
	auth.failNext = errors.New("refresh token revoked")
	c := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}, auth)
	var signedOut atomic.Int32
	c.OnAuthFailure = func() { signedOut.Add(1) }

	err := c.SetLike(context.Background(), "p1", true)
	assert.True(t, IsAuth(err))
	assert.EqualValues(t, 1, signedOut.Load())
}

func TestErrorTaxonomy(t *testing.T) {
	tests := []struct {
		status int
		kind   Kind
	}{
		{http.StatusNotFound, KindConflictOrNotFound},
		{http.StatusConflict, KindConflictOrNotFound},
		{http.StatusBadRequest, KindValidation},
		{http.StatusUnprocessableEntity, KindValidation},
		{http.StatusInternalServerError, KindServer},
		{http.StatusBadGateway, KindServer},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "nope", tt.status)
			}, nil)
			err := c.Delete(context.Background(), "album", "a1")
			var re *Error
			require.ErrorAs(t, err, &re)
			assert.Equal(t, tt.kind, re.Kind)
			assert.Equal(t, tt.status, re.Status)
			assert.Equal(t, "album/a1/delete", re.Path)
		})
	}
}

func TestNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c, err := NewClient(base, nil, nil, nil)
	require.NoError(t, err)
	_, err = c.Profile(context.Background())
	assert.True(t, IsNetwork(err))
	assert.False(t, IsAuth(err))
}

func TestNewClientRejectsBadScheme(t *testing.T) {
	_, err := NewClient("ftp://example.com", nil, nil, nil)
	assert.Error(t, err)
}

func TestFetchBootstrapVersusIncremental(t *testing.T) {
	var paths, queries []string
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		queries = append(queries, r.URL.RawQuery)
		_, _ = w.Write([]byte(`{"photos":[{"id":"p1"},{"id":"p2"}],"removed":["p0"]}`))
	}, nil)
	ctx := context.Background()

	b, err := c.Fetch(ctx, "photo", FetchOptions{Weeks: 4})
	require.NoError(t, err)
	require.Len(t, b.Items, 2)
	assert.Equal(t, []string{"p0"}, b.Removed)
	assert.JSONEq(t, `"p1"`, string(b.Items[0]["id"]))

	since := time.Date(2026, 3, 2, 10, 0, 0, 0, time.FixedZone("x", 3600))
	_, err = c.Fetch(ctx, "photo", FetchOptions{Since: &since, Weeks: 4})
	require.NoError(t, err)

	assert.Equal(t, []string{"/api/photo/fetch_history", "/api/photo/fetch"}, paths)
	assert.Equal(t, "weeks=4", queries[0])
	assert.Equal(t, "since=2026-03-02T09%3A00%3A00Z", queries[1])
}

func TestDecodeBatchPrefersItems(t *testing.T) {
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(`{"albums":[{"id":"x"}],"items":[{"id":"a"}],"total":3}`), &raw))
	b, err := decodeBatch(raw)
	require.NoError(t, err)
	require.Len(t, b.Items, 1)
	assert.JSONEq(t, `"a"`, string(b.Items[0]["id"]))
}

func TestFetchChatsAndInfo(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/chat/fetch":
			_, _ = w.Write([]byte(`{"chats":[{"conversationId":"c1","conversationType":"direct",
				"lastMessageTime":"2026-03-02T10:00:00Z",
				"messages":[{"messageId":"m1","senderId":"u2","message":"hi","timestamp":"2026-03-02T10:00:00Z","attachments":[]}]}]}`))
		case "/api/chat/conversation/c1/info":
			_, _ = w.Write([]byte(`{"conversationId":"c1","conversationType":"group",
				"participants":[{"userId":"u2","username":"bo","name":"Bo","iconUrl":"https://x/bo.png"}],
				"initialDate":"2026-01-01T00:00:00Z"}`))
		default:
			http.NotFound(w, r)
		}
	}, nil)
	ctx := context.Background()

	since := time.Now()
	batch, err := c.FetchChats(ctx, &since)
	require.NoError(t, err)
	require.Len(t, batch.Chats, 1)
	msgs := batch.Chats[0].Models()
	require.Len(t, msgs, 1)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, "hi", msgs[0].Text)

	info, err := c.ChatInfo(ctx, "c1")
	require.NoError(t, err)
	chat := info.Model()
	assert.Equal(t, "group", string(chat.Kind))
	require.Len(t, chat.Participants, 1)
	assert.Equal(t, "https://x/bo.png", chat.Participants[0].Avatar)

	_, err = c.ChatInfo(ctx, "gone")
	assert.True(t, IsNotFound(err))
}

func TestMutationEndpoints(t *testing.T) {
	type call struct{ method, path, body string }
	var calls []call
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		b, _ := json.Marshal(body)
		calls = append(calls, call{r.Method, r.URL.Path, string(b)})
		switch r.URL.Path {
		case "/api/photo/p1/comment":
			_, _ = w.Write([]byte(`{"id":"c9","userId":"me","message":"nice","timestamp":"2026-03-02T10:00:00Z"}`))
		case "/api/chat/conversation/c1/send":
			_, _ = w.Write([]byte(`{"messageId":"srv1","senderId":"me","message":"yo","timestamp":"2026-03-02T10:00:00Z"}`))
		}
	}, nil)
	ctx := context.Background()

	require.NoError(t, c.SetLike(ctx, "p1", true))
	require.NoError(t, c.SetLike(ctx, "p1", false))
	cm, err := c.AddComment(ctx, "p1", "nice")
	require.NoError(t, err)
	assert.Equal(t, "c9", cm.ID)
	require.NoError(t, c.DeleteComment(ctx, "p1", "c9"))
	require.NoError(t, c.EditAlbum(ctx, "a1", "Trip"))
	msg, err := c.SendMessage(ctx, "c1", "yo", nil)
	require.NoError(t, err)
	assert.Equal(t, "srv1", msg.ID)
	require.NoError(t, c.FriendAction(ctx, "u2", "accept"))

	want := []call{
		{"POST", "/api/photo/p1/like", "null"},
		{"POST", "/api/photo/p1/unlike", "null"},
		{"POST", "/api/photo/p1/comment", `{"message":"nice"}`},
		{"DELETE", "/api/photo/p1/comment/c9", "null"},
		{"POST", "/api/album/a1/edit", `{"title":"Trip"}`},
		{"POST", "/api/chat/conversation/c1/send", `{"attachments":null,"message":"yo"}`},
		{"POST", "/api/friend/u2/accept", "null"},
	}
	assert.Equal(t, want, calls)
}

func TestWebSocketURL(t *testing.T) {
	c, err := NewClient("https://api.example.com/v1", nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "wss://api.example.com/v1/chat/ws", c.WebSocketURL("/chat/ws"))

	c, err = NewClient("http://localhost:8000", nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8000/chat/ws", c.WebSocketURL("/chat/ws"))
}
