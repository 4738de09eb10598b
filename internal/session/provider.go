package session

import (
	"context"
	"errors"

	"github.com/Zachkp/cosmic-portfolio/internal/tokenstore"
)

// ErrNoProvider is the panic value of MustFromContext outside a provider.
var ErrNoProvider = errors.New("session: guard used outside its provider")

type contextKey struct{}

// Scope is a token store view that also delivers changes made elsewhere.
type Scope interface {
	Storage
	Changes() <-chan tokenstore.Change
}

// NewContext returns ctx carrying g.
func NewContext(ctx context.Context, g *Guard) context.Context {
	return context.WithValue(ctx, contextKey{}, g)
}

// FromContext returns the guard carried by ctx.
func FromContext(ctx context.Context) (*Guard, bool) {
	g, ok := ctx.Value(contextKey{}).(*Guard)
	return g, ok && g != nil
}

// MustFromContext returns the guard carried by ctx and panics when there is
// none: reaching for the session outside its provider is a wiring bug.
func MustFromContext(ctx context.Context) *Guard {
	g, ok := FromContext(ctx)
	if !ok {
		panic(ErrNoProvider)
	}
	return g
}

// Provide builds a guard over scope, mounts it and keeps it in sync with the
// other contexts until teardown is called. teardown does not close scope.
func Provide(ctx context.Context, scope Scope, opts ...Option) (context.Context, *Guard, func()) {
	g := New(scope, opts...)
	g.Mount()

	syncCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		g.Sync(syncCtx, scope.Changes())
	}()

	teardown := func() {
		cancel()
		<-done
		g.Close()
	}
	return NewContext(ctx, g), g, teardown
}
