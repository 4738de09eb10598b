package session

import (
	"context"

	"github.com/Zachkp/cosmic-portfolio/internal/tokenstore"
)

// ApplyChange folds a change made by another context into the guard. Only the
// token key matters; the token store already holds the new value, so nothing
// is written back.
func (g *Guard) ApplyChange(c tokenstore.Change) {
	if c.Key != TokenKey {
		return
	}
	g.mutate(func() {
		if c.Removed || c.NewValue == "" {
			if g.token == "" {
				return
			}
			g.token = ""
			g.state = StateSignedOut
			g.armed = false
			g.pending = append(g.pending, EventRemoteLogout)
			g.log.Info("session.remote_logout")
			return
		}

		if g.token == "" {
			g.state = StateActive
			g.pending = append(g.pending, EventRemoteLogin)
			g.log.Info("session.remote_login")
		}
		g.token = c.NewValue
		if g.mounted {
			g.armLocked()
		}
	})
}

// Sync applies changes until ctx is done or the channel is closed. It runs for
// the whole life of the context, signed in or not, so that a login made in
// another tab is picked up too.
func (g *Guard) Sync(ctx context.Context, changes <-chan tokenstore.Change) {
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-changes:
			if !ok {
				return
			}
			g.ApplyChange(c)
		}
	}
}
