package session

import (
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// TokenKey holds the session token in the token store.
	TokenKey = "auth_token"
	// LastExitKey holds the epoch-millisecond time the context last left the foreground.
	LastExitKey = "auth_last_exit"
	// Timeout is how long a session may stay in the background.
	Timeout = 5 * time.Minute
)

// Storage is the token store surface a Guard needs.
type Storage interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Remove(key string) error
}

// Guard owns the session of one execution context. All methods are safe for
// concurrent use and run to completion before the next one starts.
type Guard struct {
	store   Storage
	log     *slog.Logger
	now     func() time.Time
	timeout time.Duration
	observe func(Event)

	mu      sync.Mutex
	token   string
	state   State
	mounted bool
	// armed is set while inactivity enforcement is attached.
	armed   bool
	subs    map[uint64]func(bool)
	nextSub uint64
	pending []Event
}

// Option configures a Guard.
type Option func(*Guard)

// WithLogger sets the guard logger.
func WithLogger(log *slog.Logger) Option {
	return func(g *Guard) {
		if log != nil {
			g.log = log
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		if now != nil {
			g.now = now
		}
	}
}

// WithTimeout overrides the inactivity timeout.
func WithTimeout(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithObserver receives every session event after the guard lock is released.
func WithObserver(fn func(Event)) Option {
	return func(g *Guard) { g.observe = fn }
}

// New creates a guard over store and picks up a token left by an earlier
// context, so a reload keeps the session.
func New(store Storage, opts ...Option) *Guard {
	g := &Guard{
		store:   store,
		log:     slog.Default(),
		now:     time.Now,
		timeout: Timeout,
		subs:    make(map[uint64]func(bool)),
	}
	for _, opt := range opts {
		opt(g)
	}

	if tok, ok := g.read(TokenKey); ok && tok != "" {
		g.token = tok
		g.state = StateActive
	}
	return g
}

// IsAuthenticated reports whether a token is held.
func (g *Guard) IsAuthenticated() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.token != ""
}

// Token returns the held token.
func (g *Guard) Token() (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.token, g.token != ""
}

// State returns the lifecycle state.
func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Enforcing reports whether inactivity enforcement is attached.
func (g *Guard) Enforcing() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.armed
}

// Login stores token and starts a fresh session. The token is not inspected.
// An empty token is the same as Logout.
func (g *Guard) Login(token string) {
	if token == "" {
		g.Logout()
		return
	}
	g.mutate(func() {
		g.write(TokenKey, token)
		g.remove(LastExitKey)
		g.token = token
		g.state = StateActive
		g.pending = append(g.pending, EventLogin)
		g.log.Info("session.login")
		if g.mounted {
			g.armLocked()
		}
	})
}

// Logout drops the token here and in the token store.
func (g *Guard) Logout() {
	g.mutate(func() {
		g.logoutLocked(StateSignedOut, EventLogout)
	})
}

// Mount runs the timeout check and, if the session survived it, attaches
// inactivity enforcement. Calling it again is a no-op.
func (g *Guard) Mount() {
	g.mutate(func() {
		if g.mounted {
			return
		}
		g.mounted = true
		g.armLocked()
	})
}

// HandleVisibility applies a foreground change reported by the host.
func (g *Guard) HandleVisibility(v Visibility) {
	g.mutate(func() {
		if !g.armed {
			return
		}
		switch v {
		case Hidden:
			g.write(LastExitKey, strconv.FormatInt(g.now().UnixMilli(), 10))
			g.state = StateAway
		case Visible:
			if g.checkTimeoutLocked() {
				return
			}
			g.remove(LastExitKey)
			g.state = StateActive
		}
	})
}

// HandleFocus runs the timeout check when the host regains focus.
func (g *Guard) HandleFocus() {
	g.mutate(func() {
		if !g.armed {
			return
		}
		g.checkTimeoutLocked()
	})
}

// Unload records the exit time when the context is torn down, so reopening
// after the browser was closed counts as an absence. An absence already
// running since the context went hidden keeps its start time.
func (g *Guard) Unload() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.armed || g.state == StateAway {
		return
	}
	g.write(LastExitKey, strconv.FormatInt(g.now().UnixMilli(), 10))
}

// CheckTimeout drops the session when the recorded absence exceeds the
// timeout and reports whether it did. Repeating it without a new absence
// changes nothing.
func (g *Guard) CheckTimeout() bool {
	var expired bool
	g.mutate(func() {
		if g.token == "" {
			return
		}
		expired = g.checkTimeoutLocked()
	})
	return expired
}

// Subscribe registers fn for authentication changes. fn runs outside the
// guard lock. The returned func deregisters it.
func (g *Guard) Subscribe(fn func(authenticated bool)) (cancel func()) {
	g.mu.Lock()
	id := g.nextSub
	g.nextSub++
	g.subs[id] = fn
	g.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.subs, id)
			g.mu.Unlock()
		})
	}
}

// Close detaches enforcement and every subscriber.
func (g *Guard) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.mounted = false
	g.armed = false
	clear(g.subs)
}

// mutate runs fn under the lock, then reports events and authentication
// changes with the lock released.
func (g *Guard) mutate(fn func()) {
	g.mu.Lock()
	before := g.token != ""
	fn()
	after := g.token != ""

	var subs []func(bool)
	if before != after {
		subs = make([]func(bool), 0, len(g.subs))
		for _, s := range g.subs {
			subs = append(subs, s)
		}
	}
	events := g.pending
	g.pending = nil
	observe := g.observe
	g.mu.Unlock()

	if observe != nil {
		for _, ev := range events {
			observe(ev)
		}
	}
	for _, s := range subs {
		s(after)
	}
}

func (g *Guard) armLocked() {
	if g.token == "" {
		g.armed = false
		return
	}
	if g.checkTimeoutLocked() {
		return
	}
	g.armed = true
}

func (g *Guard) checkTimeoutLocked() bool {
	raw, ok := g.read(LastExitKey)
	if !ok {
		return false
	}
	lastExit, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		g.log.Debug("session.last_exit.unparsable", "value", raw)
		return false
	}

	elapsed := g.now().UnixMilli() - lastExit
	if elapsed <= g.timeout.Milliseconds() {
		return false
	}

	g.log.Info("session.timeout", "elapsed_ms", elapsed)
	g.logoutLocked(StateExpired, EventExpired)
	g.remove(LastExitKey)
	return true
}

func (g *Guard) logoutLocked(next State, ev Event) {
	had := g.token != ""
	g.remove(TokenKey)
	g.token = ""
	g.state = next
	g.armed = false
	if had {
		g.pending = append(g.pending, ev)
		g.log.Info("session.logout", "state", next.String())
	}
}

// Token store failures never block the in-memory state: reads count as
// absent and writes are logged.

func (g *Guard) read(key string) (string, bool) {
	v, ok, err := g.store.Get(key)
	if err != nil {
		g.log.Warn("session.store.get", "key", key, "err", err)
		return "", false
	}
	return v, ok
}

func (g *Guard) write(key, value string) {
	if err := g.store.Set(key, value); err != nil {
		g.log.Warn("session.store.set", "key", key, "err", err)
	}
}

func (g *Guard) remove(key string) {
	if err := g.store.Remove(key); err != nil {
		g.log.Warn("session.store.remove", "key", key, "err", err)
	}
}
