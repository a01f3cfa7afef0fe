package discord

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polysearch/internal/domain"
	"github.com/alanyoungcy/polysearch/internal/render"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeGateway is a scripted Discord gateway.
type fakeGateway struct {
	t        *testing.T
	upgrader websocket.Upgrader
	received chan payload
	script   func(conn *websocket.Conn)
}

func (f *fakeGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	go func() {
		for {
			var p payload
			if err := conn.ReadJSON(&p); err != nil {
				return
			}
			f.received <- p
		}
	}()
	f.script(conn)
}

func frame(t *testing.T, op int, event string, seq int64, d any) []byte {
	t.Helper()
	data, err := json.Marshal(d)
	require.NoError(t, err)
	p := payload{Op: op, D: data, T: event}
	if seq > 0 {
		p.S = &seq
	}
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	return raw
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestGatewayIdentifyReadyAndMessages(t *testing.T) {
	var writeMu sync.Mutex
	release := make(chan struct{})
	fg := &fakeGateway{t: t, received: make(chan payload, 16)}
	fg.script = func(conn *websocket.Conn) {
		write := func(b []byte) {
			writeMu.Lock()
			defer writeMu.Unlock()
			_ = conn.WriteMessage(websocket.TextMessage, b)
		}
		write(frame(t, opHello, "", 0, hello{HeartbeatInterval: 45000}))
		// Wait for identify before announcing readiness.
		time.Sleep(50 * time.Millisecond)
		write(frame(t, opDispatch, "READY", 1, ready{
			SessionID:        "sess-1",
			ResumeGatewayURL: "wss://resume.example",
			User:             User{ID: "99", Username: "polysearch", Bot: true},
			Guilds:           []guild{{ID: "a"}, {ID: "b"}},
		}))
		write(frame(t, opDispatch, "GUILD_CREATE", 2, guild{ID: "c"}))
		write(frame(t, opDispatch, "MESSAGE_CREATE", 3, Message{
			ID: "m1", ChannelID: "ch", Content: "!market bitcoin",
			Author: User{ID: "u1", Username: "alice"},
		}))
		<-release
	}
	srv := httptest.NewServer(fg)
	defer srv.Close()
	defer close(release)

	got := make(chan Message, 1)
	gw := NewGateway(wsURL(srv), "secret", DefaultIntents, func(_ context.Context, m Message) {
		got <- m
	}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gw.Run(ctx) }()

	select {
	case p := <-fg.received:
		require.Equal(t, opIdentify, p.Op)
		var id identify
		require.NoError(t, json.Unmarshal(p.D, &id))
		assert.Equal(t, "secret", id.Token)
		assert.Equal(t, 37377, id.Intents)
	case <-time.After(2 * time.Second):
		t.Fatal("no identify received")
	}

	select {
	case m := <-got:
		assert.Equal(t, "!market bitcoin", m.Content)
		assert.Equal(t, "ch", m.ChannelID)
		assert.Equal(t, "alice", m.Author.Username)
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}

	assert.True(t, gw.Ready())
	assert.Equal(t, 3, gw.GuildCount())
	assert.Equal(t, "polysearch", gw.Self().Username)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestGatewayRespondsToHeartbeatRequest(t *testing.T) {
	release := make(chan struct{})
	fg := &fakeGateway{t: t, received: make(chan payload, 16)}
	fg.script = func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, frame(t, opHello, "", 0, hello{HeartbeatInterval: 45000}))
		_ = conn.WriteMessage(websocket.TextMessage, frame(t, opHeartbeat, "", 0, nil))
		<-release
	}
	srv := httptest.NewServer(fg)
	defer srv.Close()
	defer close(release)

	gw := NewGateway(wsURL(srv), "secret", DefaultIntents, nil, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = gw.Run(ctx) }()

	ops := map[int]bool{}
	deadline := time.After(2 * time.Second)
	for !ops[opHeartbeat] {
		select {
		case p := <-fg.received:
			ops[p.Op] = true
		case <-deadline:
			t.Fatalf("no heartbeat sent; saw ops %v", ops)
		}
	}
	assert.True(t, ops[opIdentify])
}

func TestGatewayFatalCloseCode(t *testing.T) {
	fg := &fakeGateway{t: t, received: make(chan payload, 16)}
	fg.script = func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, frame(t, opHello, "", 0, hello{HeartbeatInterval: 45000}))
		<-fg.received
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(4004, "Authentication failed."))
	}
	srv := httptest.NewServer(fg)
	defer srv.Close()

	gw := NewGateway(wsURL(srv), "bad", DefaultIntents, nil, testLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := gw.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestRESTCreateMessage(t *testing.T) {
	var gotPath, gotAuth string
	var body MessageSend
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"1"}`))
	}))
	defer srv.Close()

	rest := NewREST(srv.URL, "tok", srv.Client(), testLogger())
	err := rest.CreateMessage(context.Background(), "123", MessageSend{
		Content: "hi",
		Embeds:  []render.Embed{{Title: "t"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "/channels/123/messages", gotPath)
	assert.Equal(t, "Bot tok", gotAuth)
	assert.Equal(t, "hi", body.Content)
	require.Len(t, body.Embeds, 1)
	assert.Equal(t, "t", body.Embeds[0].Title)
}

func TestRESTTypingAndErrors(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusNoContent)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		code := int(status.Load())
		if code == http.StatusTooManyRequests {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(code)
			_, _ = w.Write([]byte(`{"retry_after": 1.5, "global": false}`))
			return
		}
		w.WriteHeader(code)
	}))
	defer srv.Close()

	rest := NewREST(srv.URL, "tok", srv.Client(), testLogger())
	require.NoError(t, rest.TriggerTyping(context.Background(), "1"))

	status.Store(http.StatusTooManyRequests)
	err := rest.TriggerTyping(context.Background(), "1")
	var rl *domain.RateLimitError
	require.True(t, errors.As(err, &rl))
	assert.Equal(t, 1500*time.Millisecond, rl.RetryAfter)

	status.Store(http.StatusForbidden)
	assert.ErrorIs(t, rest.TriggerTyping(context.Background(), "1"), domain.ErrUnauthorized)

	status.Store(http.StatusNotFound)
	assert.ErrorIs(t, rest.TriggerTyping(context.Background(), "1"), domain.ErrNotFound)
}
