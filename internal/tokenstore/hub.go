package tokenstore

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultChangeBuffer = 32
	defaultOpTimeout    = 3 * time.Second
)

// Hub hands out scopes over a shared backend and routes change notifications
// between them.
type Hub struct {
	backend   Backend
	log       *slog.Logger
	opTimeout time.Duration
	buffer    int
	onDrop    func()

	mu     sync.Mutex
	scopes map[string]map[*Scope]struct{}
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithLogger sets the hub logger.
func WithLogger(log *slog.Logger) HubOption {
	return func(h *Hub) {
		if log != nil {
			h.log = log
		}
	}
}

// WithOpTimeout bounds every backend call made through a scope.
func WithOpTimeout(d time.Duration) HubOption {
	return func(h *Hub) {
		if d > 0 {
			h.opTimeout = d
		}
	}
}

// WithChangeBuffer sets the per-scope change queue length.
func WithChangeBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithDropHook is called whenever a change is dropped because a scope's
// queue is full.
func WithDropHook(fn func()) HubOption {
	return func(h *Hub) { h.onDrop = fn }
}

// NewHub creates a hub over backend.
func NewHub(backend Backend, opts ...HubOption) *Hub {
	h := &Hub{
		backend:   backend,
		log:       slog.Default(),
		opTimeout: defaultOpTimeout,
		buffer:    defaultChangeBuffer,
		scopes:    make(map[string]map[*Scope]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Open returns a new scope over namespace. The caller must Close it.
func (h *Hub) Open(namespace string) *Scope {
	s := &Scope{
		hub:       h,
		namespace: namespace,
		changes:   make(chan Change, h.buffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.scopes[namespace]
	if !ok {
		set = make(map[*Scope]struct{})
		h.scopes[namespace] = set
	}
	set[s] = struct{}{}
	return s
}

// Run relays changes made by other processes when the backend supports it.
// It blocks until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	w, ok := h.backend.(Watcher)
	if !ok {
		<-ctx.Done()
		return nil
	}
	h.log.Info("tokenstore.watch.start")
	return w.Watch(ctx, func(n Notification) {
		h.dispatch(nil, n.Namespace, n.Change)
	})
}

// Close releases the backend. Open scopes keep their channels until closed.
func (h *Hub) Close() error {
	return h.backend.Close()
}

// OpenScopes reports how many scopes are open for namespace.
func (h *Hub) OpenScopes(namespace string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.scopes[namespace])
}

func (h *Hub) dispatch(from *Scope, namespace string, c Change) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for s := range h.scopes[namespace] {
		if s == from {
			continue
		}
		select {
		case s.changes <- c:
		default:
			h.log.Warn("tokenstore.change.dropped", "namespace", namespace, "key", c.Key)
			if h.onDrop != nil {
				h.onDrop()
			}
		}
	}
}

func (h *Hub) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), h.opTimeout)
}

// Scope is one execution context's view of a namespace.
type Scope struct {
	hub       *Hub
	namespace string
	changes   chan Change

	// closed is guarded by hub.mu.
	closed bool
}

// Namespace returns the namespace the scope was opened on.
func (s *Scope) Namespace() string { return s.namespace }

// Changes delivers mutations made through other scopes. It is closed by Close.
func (s *Scope) Changes() <-chan Change { return s.changes }

func (s *Scope) Get(key string) (string, bool, error) {
	if s.isClosed() {
		return "", false, ErrClosed
	}
	ctx, cancel := s.hub.opContext()
	defer cancel()
	return s.hub.backend.Get(ctx, s.namespace, key)
}

// Set stores value and notifies the other scopes when the value changed.
func (s *Scope) Set(key, value string) error {
	if s.isClosed() {
		return ErrClosed
	}
	ctx, cancel := s.hub.opContext()
	defer cancel()

	old, had, err := s.hub.backend.Get(ctx, s.namespace, key)
	if err != nil {
		return err
	}
	if err := s.hub.backend.Set(ctx, s.namespace, key, value); err != nil {
		return err
	}
	if had && old == value {
		return nil
	}
	s.hub.dispatch(s, s.namespace, Change{Key: key, OldValue: old, NewValue: value})
	return nil
}

// Remove deletes key and notifies the other scopes when it existed.
func (s *Scope) Remove(key string) error {
	if s.isClosed() {
		return ErrClosed
	}
	ctx, cancel := s.hub.opContext()
	defer cancel()

	old, had, err := s.hub.backend.Get(ctx, s.namespace, key)
	if err != nil {
		return err
	}
	if err := s.hub.backend.Remove(ctx, s.namespace, key); err != nil {
		return err
	}
	if !had {
		return nil
	}
	s.hub.dispatch(s, s.namespace, Change{Key: key, OldValue: old, Removed: true})
	return nil
}

// Close detaches the scope from the hub. It is idempotent.
func (s *Scope) Close() {
	h := s.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true

	if set, ok := h.scopes[s.namespace]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.scopes, s.namespace)
		}
	}
	close(s.changes)
}

func (s *Scope) isClosed() bool {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	return s.closed
}
