// Package tokenstore is the persistent key-value store behind admin sessions.
//
// Values live in a durable Backend, partitioned by namespace (one namespace per
// browser profile). Every execution context opens its own Scope through a Hub;
// a write made through one scope is announced to every other scope of the same
// namespace, never to the writer itself.
package tokenstore

import (
	"context"
	"errors"
)

// ErrClosed is returned by operations on a closed Scope.
var ErrClosed = errors.New("tokenstore: scope closed")

// Change describes one mutation as seen by the other scopes of a namespace.
type Change struct {
	Key      string
	OldValue string
	NewValue string
	// Removed is set when the key no longer has a value; NewValue is empty.
	Removed bool
}

// Backend is the durable storage under a Hub.
type Backend interface {
	Get(ctx context.Context, namespace, key string) (string, bool, error)
	Set(ctx context.Context, namespace, key, value string) error
	Remove(ctx context.Context, namespace, key string) error
	Close() error
}

// Notification is a change made by another process sharing the backend.
type Notification struct {
	Namespace string
	Change    Change
}

// Watcher is implemented by backends shared between processes. Watch blocks
// until ctx is done and calls fn for every change made elsewhere.
type Watcher interface {
	Watch(ctx context.Context, fn func(Notification)) error
}
