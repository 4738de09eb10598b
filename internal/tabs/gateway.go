package tabs

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/Zachkp/cosmic-portfolio/internal/routeguard"
	"github.com/Zachkp/cosmic-portfolio/internal/session"
)

const (
	defaultSendQueue        = 16
	defaultWriteTimeout     = 5 * time.Second
	defaultHeartbeatEvery   = 30 * time.Second
	defaultHeartbeatTimeout = 5 * time.Second
	maxPingFailures         = 3
	maxFrameBytes           = 4 << 10
)

// Gateway serves the tab websocket. The request context must carry the
// tab's session guard.
type Gateway struct {
	log            *slog.Logger
	originPatterns []string
	loginPath      string

	sendQueue        int
	writeTimeout     time.Duration
	heartbeatEvery   time.Duration
	heartbeatTimeout time.Duration
	rateEvery        rate.Limit
	rateBurst        int

	onOpen  func()
	onClose func()
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the gateway logger.
func WithLogger(log *slog.Logger) Option {
	return func(g *Gateway) {
		if log != nil {
			g.log = log
		}
	}
}

// WithOriginPatterns authorizes cross-origin hosts (see websocket.AcceptOptions).
func WithOriginPatterns(patterns []string) Option {
	return func(g *Gateway) { g.originPatterns = patterns }
}

// WithLoginPath overrides where protected tabs are sent.
func WithLoginPath(path string) Option {
	return func(g *Gateway) { g.loginPath = path }
}

// WithHeartbeat sets the ping interval and timeout.
func WithHeartbeat(every, timeout time.Duration) Option {
	return func(g *Gateway) {
		if every > 0 {
			g.heartbeatEvery = every
		}
		if timeout > 0 {
			g.heartbeatTimeout = timeout
		}
	}
}

// WithRateLimit caps client messages per connection.
func WithRateLimit(every time.Duration, burst int) Option {
	return func(g *Gateway) {
		if every > 0 && burst > 0 {
			g.rateEvery = rate.Every(every)
			g.rateBurst = burst
		}
	}
}

// WithConnHooks is told about every opened and closed connection.
func WithConnHooks(open, closed func()) Option {
	return func(g *Gateway) {
		g.onOpen = open
		g.onClose = closed
	}
}

// NewGateway creates a gateway.
func NewGateway(opts ...Option) *Gateway {
	g := &Gateway{
		log:              slog.Default(),
		loginPath:        routeguard.LoginPath,
		sendQueue:        defaultSendQueue,
		writeTimeout:     defaultWriteTimeout,
		heartbeatEvery:   defaultHeartbeatEvery,
		heartbeatTimeout: defaultHeartbeatTimeout,
		rateEvery:        rate.Every(50 * time.Millisecond),
		rateBurst:        20,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Handle is the gin handler for GET /tabs.
func (g *Gateway) Handle(c *gin.Context) {
	g.ServeHTTP(c.Writer, c.Request)
}

// ServeHTTP upgrades the request and runs the tab until it disconnects.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	guard := session.MustFromContext(r.Context())

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: g.originPatterns})
	if err != nil {
		g.log.Info("tabs.accept.fail", "err", err)
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	if g.onOpen != nil {
		g.onOpen()
	}
	if g.onClose != nil {
		defer g.onClose()
	}

	t := &tab{
		gw:    g,
		conn:  conn,
		guard: guard,
		send:  make(chan ServerMessage, g.sendQueue),
	}
	t.run(r.Context())
}

type tab struct {
	gw    *Gateway
	conn  *websocket.Conn
	guard *session.Guard
	send  chan ServerMessage

	gate     *routeguard.Gate
	unloaded bool
}

func (t *tab) run(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var closeOnce sync.Once
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			cancel()
			_ = t.conn.Close(code, reason)
		})
	}

	unsubscribe := t.guard.Subscribe(func(authenticated bool) {
		t.enqueue(authMessage(authenticated))
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		t.writeLoop(ctx, shutdown)
	}()
	go func() {
		defer wg.Done()
		t.heartbeat(ctx, shutdown)
	}()

	t.enqueue(authMessage(t.guard.IsAuthenticated()))
	t.readLoop(ctx, shutdown)

	unsubscribe()
	if t.gate != nil {
		t.gate.Unmount()
	}
	if !t.unloaded {
		t.guard.Unload()
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	wg.Wait()
}

// enqueue never blocks: a tab that stops reading loses messages, and the
// next auth message carries the current state anyway.
func (t *tab) enqueue(m ServerMessage) {
	select {
	case t.send <- m:
	default:
		t.gw.log.Warn("tabs.send.dropped", "type", m.Type)
	}
}

func (t *tab) readLoop(ctx context.Context, shutdown func(websocket.StatusCode, string)) {
	lim := rate.NewLimiter(t.gw.rateEvery, t.gw.rateBurst)
	for {
		var msg ClientMessage
		if err := wsjson.Read(ctx, t.conn, &msg); err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				t.gw.log.Debug("tabs.read.fail", "err", err)
			}
			return
		}
		if !lim.Allow() {
			// Written here rather than queued: shutdown stops the write loop.
			wctx, cancel := context.WithTimeout(ctx, t.gw.writeTimeout)
			_ = wsjson.Write(wctx, t.conn, errorMessage("rate limited"))
			cancel()
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			return
		}
		t.handle(msg)
	}
}

func (t *tab) handle(msg ClientMessage) {
	switch msg.Type {
	case TypeHello:
		switch {
		case msg.Protected && t.gate == nil:
			t.gate = routeguard.New(t.guard, routeguard.NavigatorFunc(func(path string) {
				t.enqueue(navigateMessage(path))
			}), routeguard.WithLoginPath(t.gw.loginPath))
			t.gate.Mount()
		case !msg.Protected && t.gate != nil:
			t.gate.Unmount()
			t.gate = nil
		}
	case TypeVisibility:
		v, ok := session.ParseVisibility(msg.State)
		if !ok {
			t.enqueue(errorMessage("unknown visibility state"))
			return
		}
		t.guard.HandleVisibility(v)
	case TypeFocus:
		t.guard.HandleFocus()
	case TypeUnload:
		t.guard.Unload()
		t.unloaded = true
	default:
		t.enqueue(errorMessage("unsupported message type"))
	}
}

func (t *tab) writeLoop(ctx context.Context, shutdown func(websocket.StatusCode, string)) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-t.send:
			wctx, cancel := context.WithTimeout(ctx, t.gw.writeTimeout)
			err := wsjson.Write(wctx, t.conn, m)
			cancel()
			if err != nil {
				t.gw.log.Debug("tabs.write.fail", "err", err)
				shutdown(websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}

func (t *tab) heartbeat(ctx context.Context, shutdown func(websocket.StatusCode, string)) {
	tick := time.NewTicker(t.gw.heartbeatEvery)
	defer tick.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			pctx, cancel := context.WithTimeout(ctx, t.gw.heartbeatTimeout)
			err := t.conn.Ping(pctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= maxPingFailures {
				shutdown(websocket.StatusGoingAway, "heartbeat failed")
				return
			}
		}
	}
}
