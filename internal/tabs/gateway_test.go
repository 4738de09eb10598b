package tabs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zachkp/cosmic-portfolio/internal/session"
	"github.com/Zachkp/cosmic-portfolio/internal/tokenstore"
)

const profile = "01JTESTPROFILE"

type harness struct {
	hub   *tokenstore.Hub
	other *session.Guard
	store *tokenstore.Scope
	srv   *httptest.Server
	open  atomic.Int32
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, nil)
}

// newHarnessWith serves /tabs with a guard per connection, like the site
// does, and keeps a second guard over the same profile to play the other tab.
// sessionOpts configure the per-connection guards.
func newHarnessWith(t *testing.T, gwOpts []Option, sessionOpts ...session.Option) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := &harness{hub: tokenstore.NewHub(tokenstore.NewMemoryBackend())}
	h.store = h.hub.Open(profile)
	var stopOther func()
	_, h.other, stopOther = session.Provide(context.Background(), h.store)

	gw := NewGateway(append([]Option{WithConnHooks(
		func() { h.open.Add(1) },
		func() { h.open.Add(-1) },
	)}, gwOpts...)...)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		scope := h.hub.Open(profile)
		defer scope.Close()
		ctx, _, teardown := session.Provide(c.Request.Context(), scope, sessionOpts...)
		defer teardown()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})
	r.GET("/tabs", gw.Handle)

	h.srv = httptest.NewServer(r)
	t.Cleanup(func() {
		h.srv.Close()
		stopOther()
		h.store.Close()
	})
	return h
}

func (h *harness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/tabs"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) ServerMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var m ServerMessage
	require.NoError(t, wsjson.Read(ctx, conn, &m))
	return m
}

func readUntil(t *testing.T, conn *websocket.Conn, typ string) ServerMessage {
	t.Helper()
	for i := 0; i < 10; i++ {
		if m := read(t, conn); m.Type == typ {
			return m
		}
	}
	t.Fatalf("no %s message", typ)
	return ServerMessage{}
}

func write(t *testing.T, conn *websocket.Conn, m ClientMessage) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, conn, m))
}

func TestGateway_SendsInitialAuthState(t *testing.T) {
	h := newHarness(t)
	h.other.Login("tok")

	conn := h.dial(t)
	m := read(t, conn)

	assert.Equal(t, TypeAuth, m.Type)
	require.NotNil(t, m.Authenticated)
	assert.True(t, *m.Authenticated)
}

func TestGateway_RemoteLogoutNavigatesProtectedTab(t *testing.T) {
	h := newHarness(t)
	h.other.Login("tok")

	conn := h.dial(t)
	readUntil(t, conn, TypeAuth)
	write(t, conn, ClientMessage{Type: TypeHello, Protected: true})

	h.other.Logout()

	m := readUntil(t, conn, TypeNavigate)
	assert.Equal(t, "/admin/login", m.Path)
	assert.True(t, m.Replace)
}

func TestGateway_LocalTimeoutNavigatesProtectedTab(t *testing.T) {
	h := newHarnessWith(t, nil, session.WithTimeout(100*time.Millisecond))
	h.other.Login("tok")

	conn := h.dial(t)
	readUntil(t, conn, TypeAuth)
	write(t, conn, ClientMessage{Type: TypeHello, Protected: true})
	write(t, conn, ClientMessage{Type: TypeVisibility, State: "hidden"})
	require.Eventually(t, func() bool {
		_, ok, _ := h.store.Get(session.LastExitKey)
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(150 * time.Millisecond)
	write(t, conn, ClientMessage{Type: TypeVisibility, State: "visible"})

	m := readUntil(t, conn, TypeNavigate)
	assert.Equal(t, "/admin/login", m.Path)
	assert.True(t, m.Replace)

	_, ok, err := h.store.Get(session.TokenKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGateway_ProtectedHelloWhileSignedOutNavigates(t *testing.T) {
	h := newHarness(t)

	conn := h.dial(t)
	readUntil(t, conn, TypeAuth)
	write(t, conn, ClientMessage{Type: TypeHello, Protected: true})

	m := readUntil(t, conn, TypeNavigate)
	assert.Equal(t, "/admin/login", m.Path)
}

func TestGateway_RemoteLoginReportsAuth(t *testing.T) {
	h := newHarness(t)

	conn := h.dial(t)
	first := read(t, conn)
	require.NotNil(t, first.Authenticated)
	require.False(t, *first.Authenticated)

	h.other.Login("tok")

	m := readUntil(t, conn, TypeAuth)
	require.NotNil(t, m.Authenticated)
	assert.True(t, *m.Authenticated)
}

func TestGateway_HiddenTabRecordsLastExit(t *testing.T) {
	h := newHarness(t)
	h.other.Login("tok")

	conn := h.dial(t)
	readUntil(t, conn, TypeAuth)
	write(t, conn, ClientMessage{Type: TypeVisibility, State: "hidden"})

	require.Eventually(t, func() bool {
		_, ok, _ := h.store.Get(session.LastExitKey)
		return ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestGateway_DisconnectCountsAsUnload(t *testing.T) {
	h := newHarness(t)
	h.other.Login("tok")

	conn := h.dial(t)
	readUntil(t, conn, TypeAuth)
	require.Eventually(t, func() bool { return h.open.Load() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "tab closed"))

	require.Eventually(t, func() bool {
		_, ok, _ := h.store.Get(session.LastExitKey)
		return ok && h.open.Load() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestGateway_DisconnectKeepsHiddenTabsExitTime(t *testing.T) {
	h := newHarness(t)
	h.other.Login("tok")

	conn := h.dial(t)
	readUntil(t, conn, TypeAuth)
	write(t, conn, ClientMessage{Type: TypeVisibility, State: "hidden"})

	var hidden string
	require.Eventually(t, func() bool {
		v, ok, _ := h.store.Get(session.LastExitKey)
		hidden = v
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "tab suspended"))
	require.Eventually(t, func() bool { return h.open.Load() == 0 }, 2*time.Second, 10*time.Millisecond)

	v, ok, err := h.store.Get(session.LastExitKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, hidden, v)
}

func TestGateway_RateLimitSendsErrorBeforeClosing(t *testing.T) {
	h := newHarnessWith(t, []Option{WithRateLimit(time.Hour, 2)})

	conn := h.dial(t)
	readUntil(t, conn, TypeAuth)
	for i := 0; i < 3; i++ {
		write(t, conn, ClientMessage{Type: TypeFocus})
	}

	m := readUntil(t, conn, TypeError)
	assert.Equal(t, "rate limited", m.Message)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var next ServerMessage
	err := wsjson.Read(ctx, conn, &next)
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
}

func TestGateway_HeartbeatDropsSilentTabs(t *testing.T) {
	h := newHarnessWith(t, []Option{WithHeartbeat(20*time.Millisecond, 20*time.Millisecond)})

	// A client only answers pings while it reads.
	h.dial(t)
	require.Eventually(t, func() bool { return h.open.Load() == 1 }, time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return h.open.Load() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestGateway_HeartbeatKeepsReadingTabs(t *testing.T) {
	h := newHarnessWith(t, []Option{WithHeartbeat(20*time.Millisecond, time.Second)})

	conn := h.dial(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		for {
			var m ServerMessage
			if err := wsjson.Read(ctx, conn, &m); err != nil {
				return
			}
		}
	}()

	require.Eventually(t, func() bool { return h.open.Load() == 1 }, time.Second, 10*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	assert.EqualValues(t, 1, h.open.Load())
}

func TestGateway_RejectsUnknownMessages(t *testing.T) {
	h := newHarness(t)

	conn := h.dial(t)
	readUntil(t, conn, TypeAuth)
	write(t, conn, ClientMessage{Type: "teleport"})

	m := readUntil(t, conn, TypeError)
	assert.Contains(t, m.Message, "unsupported")

	write(t, conn, ClientMessage{Type: TypeVisibility, State: "prerender"})
	m = readUntil(t, conn, TypeError)
	assert.Contains(t, m.Message, "visibility")
}

func TestGateway_RequiresProvider(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/tabs", NewGateway().Handle)

	assert.Panics(t, func() {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/tabs", nil))
	})
}
