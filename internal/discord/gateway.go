package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/polysearch/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// Close codes after which reconnecting cannot help.
var fatalCloseCodes = map[int]string{
	4004: "authentication failed",
	4010: "invalid shard",
	4011: "sharding required",
	4012: "invalid api version",
	4013: "invalid intents",
	4014: "disallowed intents",
}

// MessageHandler is called for every MESSAGE_CREATE event. Each call runs on
// its own goroutine.
type MessageHandler func(ctx context.Context, m Message)

// Gateway maintains a Discord Gateway session, reconnecting and resuming as
// needed until its context is cancelled.
type Gateway struct {
	url     string
	token   string
	intents int
	dialer  *websocket.Dialer
	handler MessageHandler
	logger  *slog.Logger

	seq atomic.Int64

	mu        sync.RWMutex
	sessionID string
	resumeURL string
	self      User
	guilds    map[string]struct{}
	latency   time.Duration
	ready     bool

	// connection-scoped heartbeat state
	writeMu  sync.Mutex
	lastBeat atomic.Int64 // unix nanos of the last heartbeat sent
	acked    atomic.Bool
}

// NewGateway creates a Gateway session for the given bot token.
func NewGateway(url, token string, intents int, handler MessageHandler, logger *slog.Logger) *Gateway {
	return &Gateway{
		url:     url,
		token:   token,
		intents: intents,
		dialer:  &websocket.Dialer{HandshakeTimeout: 15 * time.Second},
		handler: handler,
		logger:  logger.With(slog.String("component", "discord_gateway")),
		guilds:  make(map[string]struct{}),
	}
}

// GuildCount returns the number of guilds the bot is in.
func (g *Gateway) GuildCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.guilds)
}

// Latency returns the round trip of the most recent acknowledged heartbeat.
func (g *Gateway) Latency() time.Duration {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.latency
}

// Self returns the bot's own user once the session is ready.
func (g *Gateway) Self() User {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.self
}

// Ready reports whether the current session has completed its handshake.
func (g *Gateway) Ready() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.ready
}

// Run connects and processes events until ctx is cancelled or the gateway
// rejects the session permanently (bad token, disallowed intents).
func (g *Gateway) Run(ctx context.Context) error {
	delay := reconnectDelay
	for {
		connected, err := g.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var fatal *fatalError
		if errors.As(err, &fatal) {
			return fmt.Errorf("discord/gateway: %w", err)
		}
		if connected {
			delay = reconnectDelay
		}
		g.logger.WarnContext(ctx, "gateway session ended, reconnecting",
			slog.String("error", errString(err)),
			slog.Duration("delay", delay),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, maxReconnectDelay)
	}
}

type fatalError struct {
	code   int
	reason string
}

func (e *fatalError) Error() string {
	return fmt.Sprintf("close %d: %s", e.code, e.reason)
}

func (e *fatalError) Unwrap() error {
	if e.code == 4004 {
		return domain.ErrUnauthorized
	}
	return nil
}

// session runs one websocket connection. connected reports whether the
// handshake completed, which resets the reconnect backoff.
func (g *Gateway) session(ctx context.Context) (connected bool, err error) {
	g.mu.RLock()
	url, resuming := g.url, g.sessionID != ""
	if resuming && g.resumeURL != "" {
		url = g.resumeURL + "/?v=10&encoding=json"
	}
	g.mu.RUnlock()

	conn, _, err := g.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return false, fmt.Errorf("%w: dial: %v", domain.ErrWSDisconnect, err)
	}
	defer conn.Close()

	// Closing the connection unblocks ReadMessage when ctx ends.
	stop := context.AfterFunc(ctx, func() {
		g.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		g.writeMu.Unlock()
		_ = conn.Close()
	})
	defer stop()

	var h hello
	if err := g.expect(conn, opHello, &h); err != nil {
		return false, err
	}
	interval := time.Duration(h.HeartbeatInterval) * time.Millisecond
	if interval <= 0 {
		return false, errors.New("discord/gateway: hello without heartbeat interval")
	}

	if resuming {
		g.mu.RLock()
		r := resume{Token: g.token, SessionID: g.sessionID, Seq: g.seq.Load()}
		g.mu.RUnlock()
		err = g.send(conn, opResume, r)
	} else {
		err = g.send(conn, opIdentify, identify{
			Token:   g.token,
			Intents: g.intents,
			Properties: identifyProperties{
				OS:      "linux",
				Browser: "polysearch",
				Device:  "polysearch",
			},
		})
	}
	if err != nil {
		return false, err
	}

	hbCtx, cancelHB := context.WithCancel(ctx)
	defer cancelHB()
	g.acked.Store(true)
	go g.heartbeat(hbCtx, conn, interval)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				if reason, ok := fatalCloseCodes[ce.Code]; ok {
					return connected, &fatalError{code: ce.Code, reason: reason}
				}
			}
			return connected, fmt.Errorf("%w: %v", domain.ErrWSDisconnect, err)
		}

		var p payload
		if err := json.Unmarshal(raw, &p); err != nil {
			g.logger.DebugContext(ctx, "dropping unparseable gateway frame", slog.String("error", err.Error()))
			continue
		}
		if p.S != nil {
			g.seq.Store(*p.S)
		}

		switch p.Op {
		case opDispatch:
			if g.dispatch(ctx, p) {
				connected = true
			}
		case opHeartbeat:
			if err := g.beat(conn); err != nil {
				return connected, err
			}
		case opHeartbeatACK:
			g.acked.Store(true)
			sent := time.Unix(0, g.lastBeat.Load())
			g.mu.Lock()
			g.latency = time.Since(sent)
			g.mu.Unlock()
		case opReconnect:
			g.logger.InfoContext(ctx, "gateway requested reconnect")
			return connected, nil
		case opInvalidSession:
			var resumable bool
			_ = json.Unmarshal(p.D, &resumable)
			if !resumable {
				g.resetSession()
			}
			g.logger.WarnContext(ctx, "gateway invalidated session", slog.Bool("resumable", resumable))
			// Discord asks clients to wait 1-5s before identifying again.
			select {
			case <-ctx.Done():
			case <-time.After(time.Second + rand.N(4*time.Second)):
			}
			return connected, nil
		}
	}
}

// dispatch handles an op 0 event. It reports whether the event completed the
// session handshake.
func (g *Gateway) dispatch(ctx context.Context, p payload) bool {
	switch p.T {
	case "READY":
		var r ready
		if err := json.Unmarshal(p.D, &r); err != nil {
			g.logger.ErrorContext(ctx, "decode READY", slog.String("error", err.Error()))
			return false
		}
		g.mu.Lock()
		g.sessionID = r.SessionID
		g.resumeURL = r.ResumeGatewayURL
		g.self = r.User
		g.guilds = make(map[string]struct{}, len(r.Guilds))
		for _, gd := range r.Guilds {
			g.guilds[gd.ID] = struct{}{}
		}
		g.ready = true
		g.mu.Unlock()
		g.logger.InfoContext(ctx, "gateway ready",
			slog.String("user", r.User.Username),
			slog.Int("guilds", len(r.Guilds)),
		)
		return true
	case "RESUMED":
		g.mu.Lock()
		g.ready = true
		g.mu.Unlock()
		g.logger.InfoContext(ctx, "gateway session resumed")
		return true
	case "GUILD_CREATE", "GUILD_DELETE":
		var gd struct {
			ID          string `json:"id"`
			Unavailable bool   `json:"unavailable"`
		}
		if err := json.Unmarshal(p.D, &gd); err != nil {
			return false
		}
		g.mu.Lock()
		if p.T == "GUILD_CREATE" {
			g.guilds[gd.ID] = struct{}{}
		} else if !gd.Unavailable {
			delete(g.guilds, gd.ID)
		}
		g.mu.Unlock()
	case "MESSAGE_CREATE":
		var m Message
		if err := json.Unmarshal(p.D, &m); err != nil {
			g.logger.WarnContext(ctx, "decode MESSAGE_CREATE", slog.String("error", err.Error()))
			return false
		}
		if g.handler != nil {
			go g.handler(ctx, m)
		}
	}
	return false
}

// heartbeat sends op 1 on the negotiated interval. A heartbeat that was never
// acknowledged means the connection is dead; closing it makes the read loop
// fail and the session resume on a fresh connection.
func (g *Gateway) heartbeat(ctx context.Context, conn *websocket.Conn, interval time.Duration) {
	// The first beat is jittered so reconnecting clients do not stampede.
	first := time.Duration(rand.Float64() * float64(interval))
	timer := time.NewTimer(first)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if !g.acked.Load() {
			g.logger.WarnContext(ctx, "heartbeat not acknowledged, dropping connection")
			_ = conn.Close()
			return
		}
		if err := g.beat(conn); err != nil {
			return
		}
		timer.Reset(interval)
	}
}

func (g *Gateway) beat(conn *websocket.Conn) error {
	var d any
	if s := g.seq.Load(); s > 0 {
		d = s
	}
	g.acked.Store(false)
	g.lastBeat.Store(time.Now().UnixNano())
	return g.send(conn, opHeartbeat, d)
}

func (g *Gateway) resetSession() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessionID = ""
	g.resumeURL = ""
	g.ready = false
	g.seq.Store(0)
}

func (g *Gateway) send(conn *websocket.Conn, op int, d any) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("discord/gateway: marshal op %d: %w", op, err)
	}
	frame, err := json.Marshal(payload{Op: op, D: data})
	if err != nil {
		return fmt.Errorf("discord/gateway: marshal frame: %w", err)
	}

	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("%w: write op %d: %v", domain.ErrWSDisconnect, op, err)
	}
	return nil
}

// expect reads one frame and decodes its data, failing unless it carries op.
func (g *Gateway) expect(conn *websocket.Conn, op int, into any) error {
	_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	defer conn.SetReadDeadline(time.Time{})

	var p payload
	if err := conn.ReadJSON(&p); err != nil {
		return fmt.Errorf("%w: read op %d: %v", domain.ErrWSDisconnect, op, err)
	}
	if p.Op != op {
		return fmt.Errorf("discord/gateway: expected op %d, got %d", op, p.Op)
	}
	return json.Unmarshal(p.D, into)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
