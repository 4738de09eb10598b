// Package routeguard keeps protected content behind an authenticated session.
package routeguard

import "sync"

// LoginPath is where unauthenticated viewers are sent.
const LoginPath = "/admin/login"

// Authenticator is the part of session.Guard a gate reads.
type Authenticator interface {
	IsAuthenticated() bool
	Subscribe(fn func(authenticated bool)) (cancel func())
}

// Navigator moves the viewer elsewhere, replacing the current history entry.
type Navigator interface {
	Replace(path string)
}

// NavigatorFunc adapts a func to Navigator.
type NavigatorFunc func(path string)

func (f NavigatorFunc) Replace(path string) { f(path) }

// Gate renders protected content only while the session is authenticated.
type Gate struct {
	auth      Authenticator
	nav       Navigator
	loginPath string

	mu     sync.Mutex
	cancel func()
}

// Option configures a Gate.
type Option func(*Gate)

// WithLoginPath overrides LoginPath.
func WithLoginPath(path string) Option {
	return func(g *Gate) {
		if path != "" {
			g.loginPath = path
		}
	}
}

// New creates a gate.
func New(auth Authenticator, nav Navigator, opts ...Option) *Gate {
	g := &Gate{auth: auth, nav: nav, loginPath: LoginPath}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Render calls children when authenticated. Otherwise it navigates to the
// login path and renders nothing. It reports whether children ran.
func (g *Gate) Render(children func()) bool {
	if !g.auth.IsAuthenticated() {
		g.nav.Replace(g.loginPath)
		return false
	}
	if children != nil {
		children()
	}
	return true
}

// Mount evaluates the gate now and again on every authentication change, so
// content already on screen is left as soon as the session goes away.
func (g *Gate) Mount() {
	g.mu.Lock()
	if g.cancel != nil {
		g.mu.Unlock()
		return
	}
	g.cancel = g.auth.Subscribe(func(authenticated bool) {
		if !authenticated {
			g.nav.Replace(g.loginPath)
		}
	})
	g.mu.Unlock()

	g.Render(nil)
}

// Unmount stops watching the session.
func (g *Gate) Unmount() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}
}
