package session

import (
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

// mapStore is a Storage that counts writes and can be made to fail.
type mapStore struct {
	mu      sync.Mutex
	values  map[string]string
	writes  int
	failSet bool
	failGet bool
}

func newMapStore() *mapStore { return &mapStore{values: map[string]string{}} }

func (s *mapStore) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet {
		return "", false, errors.New("storage disabled")
	}
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *mapStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSet {
		return errors.New("storage disabled")
	}
	s.writes++
	s.values[key] = value
	return nil
}

func (s *mapStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSet {
		return errors.New("storage disabled")
	}
	s.writes++
	delete(s.values, key)
	return nil
}

func (s *mapStore) value(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *mapStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func setLastExit(s *mapStore, t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[LastExitKey] = strconv.FormatInt(t.UnixMilli(), 10)
}

func mountedGuard(t *testing.T) (*Guard, *mapStore, *fakeClock) {
	t.Helper()
	store := newMapStore()
	clock := newClock()
	g := New(store, WithClock(clock.Now))
	g.Mount()
	g.Login("tok-1")
	require.True(t, g.Enforcing())
	return g, store, clock
}

func TestGuard_LoginThenLogout(t *testing.T) {
	store := newMapStore()
	g := New(store)

	for _, tok := range []string{"a", "b", "c"} {
		g.Login(tok)
		assert.True(t, g.IsAuthenticated())
		got, ok := g.Token()
		assert.True(t, ok)
		assert.Equal(t, tok, got)
		v, _ := store.value(TokenKey)
		assert.Equal(t, tok, v)

		g.Logout()
		assert.False(t, g.IsAuthenticated())
		_, ok = store.value(TokenKey)
		assert.False(t, ok)
		assert.Equal(t, StateSignedOut, g.State())
	}
}

func TestGuard_EmptyTokenLogsOut(t *testing.T) {
	g := New(newMapStore())
	g.Login("tok")
	g.Login("")
	assert.False(t, g.IsAuthenticated())
}

func TestGuard_NewPicksUpStoredToken(t *testing.T) {
	store := newMapStore()
	require.NoError(t, store.Set(TokenKey, "persisted"))

	g := New(store)
	assert.True(t, g.IsAuthenticated())
	assert.Equal(t, StateActive, g.State())
}

func TestGuard_ForegroundAfterTimeoutLogsOut(t *testing.T) {
	g, store, clock := mountedGuard(t)
	setLastExit(store, clock.Now().Add(-301*time.Second))

	g.HandleVisibility(Visible)

	assert.False(t, g.IsAuthenticated())
	assert.Equal(t, StateExpired, g.State())
	_, ok := store.value(TokenKey)
	assert.False(t, ok)
	_, ok = store.value(LastExitKey)
	assert.False(t, ok)
	assert.False(t, g.Enforcing())
}

func TestGuard_ForegroundWithinTimeoutKeepsSession(t *testing.T) {
	g, store, clock := mountedGuard(t)
	g.HandleVisibility(Hidden)
	assert.Equal(t, StateAway, g.State())
	setLastExit(store, clock.Now().Add(-100*time.Second))

	g.HandleVisibility(Visible)

	assert.True(t, g.IsAuthenticated())
	assert.Equal(t, StateActive, g.State())
	_, ok := store.value(LastExitKey)
	assert.False(t, ok)
}

func TestGuard_FocusAfterTimeoutLogsOut(t *testing.T) {
	g, store, clock := mountedGuard(t)
	g.HandleVisibility(Hidden)
	clock.Advance(6 * time.Minute)

	g.HandleFocus()

	assert.False(t, g.IsAuthenticated())
	_, ok := store.value(LastExitKey)
	assert.False(t, ok)
}

func TestGuard_ExactlyAtThresholdIsNotExpired(t *testing.T) {
	g, store, clock := mountedGuard(t)
	setLastExit(store, clock.Now().Add(-Timeout))

	g.HandleFocus()
	assert.True(t, g.IsAuthenticated())
}

func TestGuard_HiddenRecordsLastExit(t *testing.T) {
	g, store, clock := mountedGuard(t)

	g.HandleVisibility(Hidden)

	v, ok := store.value(LastExitKey)
	require.True(t, ok)
	assert.Equal(t, strconv.FormatInt(clock.Now().UnixMilli(), 10), v)
}

func TestGuard_CheckTimeoutIsIdempotent(t *testing.T) {
	g, store, clock := mountedGuard(t)
	setLastExit(store, clock.Now().Add(-10*time.Minute))

	require.True(t, g.CheckTimeout())
	writes := store.writeCount()

	assert.False(t, g.CheckTimeout())
	assert.False(t, g.CheckTimeout())
	assert.Equal(t, writes, store.writeCount())
	assert.Equal(t, StateExpired, g.State())
}

func TestGuard_CheckTimeoutWithoutAbsenceChangesNothing(t *testing.T) {
	g, store, _ := mountedGuard(t)
	writes := store.writeCount()

	assert.False(t, g.CheckTimeout())
	assert.False(t, g.CheckTimeout())
	assert.Equal(t, writes, store.writeCount())
	assert.True(t, g.IsAuthenticated())
}

func TestGuard_MountWithExpiredSessionDoesNotAttach(t *testing.T) {
	store := newMapStore()
	clock := newClock()
	require.NoError(t, store.Set(TokenKey, "stale"))
	setLastExit(store, clock.Now().Add(-time.Hour))

	g := New(store, WithClock(clock.Now))
	require.True(t, g.IsAuthenticated())

	g.Mount()

	assert.False(t, g.IsAuthenticated())
	assert.False(t, g.Enforcing())
	assert.Equal(t, StateExpired, g.State())

	g.HandleVisibility(Hidden)
	g.Unload()
	_, ok := store.value(LastExitKey)
	assert.False(t, ok, "no listener may act on the dropped session")
}

func TestGuard_MountWithRecentAbsenceAttaches(t *testing.T) {
	store := newMapStore()
	clock := newClock()
	require.NoError(t, store.Set(TokenKey, "tok"))
	setLastExit(store, clock.Now().Add(-time.Minute))

	g := New(store, WithClock(clock.Now))
	g.Mount()
	g.Mount()

	assert.True(t, g.IsAuthenticated())
	assert.True(t, g.Enforcing())
	// The recorded absence stays until the context comes back to the foreground.
	_, ok := store.value(LastExitKey)
	assert.True(t, ok)
}

func TestGuard_CorruptLastExitFailsOpen(t *testing.T) {
	g, store, _ := mountedGuard(t)
	require.NoError(t, store.Set(LastExitKey, "not-a-number"))

	g.HandleFocus()
	assert.True(t, g.IsAuthenticated())
	assert.False(t, g.CheckTimeout())
}

func TestGuard_LoginClearsStaleLastExit(t *testing.T) {
	store := newMapStore()
	clock := newClock()
	setLastExit(store, clock.Now().Add(-time.Hour))

	g := New(store, WithClock(clock.Now))
	g.Mount()
	g.Login("fresh")

	assert.True(t, g.IsAuthenticated())
	assert.True(t, g.Enforcing())
	_, ok := store.value(LastExitKey)
	assert.False(t, ok)
}

func TestGuard_LoginSurvivesUnavailableStorage(t *testing.T) {
	store := newMapStore()
	store.failSet = true
	store.failGet = true

	g := New(store)
	g.Mount()
	g.Login("tok")

	assert.True(t, g.IsAuthenticated())
	assert.True(t, g.Enforcing())

	g.Logout()
	assert.False(t, g.IsAuthenticated())
}

func TestGuard_UnloadRecordsExitWhileEnforcing(t *testing.T) {
	store := newMapStore()
	clock := newClock()
	g := New(store, WithClock(clock.Now))

	g.Login("tok")
	g.Unload()
	_, ok := store.value(LastExitKey)
	assert.False(t, ok, "not mounted yet")

	g.Mount()
	g.Unload()
	_, ok = store.value(LastExitKey)
	assert.True(t, ok)
}

func TestGuard_UnloadKeepsRunningAbsence(t *testing.T) {
	g, store, clock := mountedGuard(t)

	g.HandleVisibility(Hidden)
	hidden, _ := store.value(LastExitKey)

	clock.Advance(90 * time.Second)
	g.Unload()
	v, ok := store.value(LastExitKey)
	require.True(t, ok)
	assert.Equal(t, hidden, v)

	clock.Advance(4 * time.Minute)
	assert.True(t, g.CheckTimeout(), "absence counts from when the tab was hidden")
}

func TestGuard_VisibilityIgnoredWithoutSession(t *testing.T) {
	store := newMapStore()
	g := New(store)
	g.Mount()

	g.HandleVisibility(Hidden)
	g.HandleFocus()

	assert.Zero(t, store.writeCount())
	assert.Equal(t, StateSignedOut, g.State())
}

func TestGuard_SubscribeSeesAuthChanges(t *testing.T) {
	g, store, clock := mountedGuard(t)

	var got []bool
	cancel := g.Subscribe(func(auth bool) { got = append(got, auth) })

	g.Login("tok-2") // still authenticated: no notification
	setLastExit(store, clock.Now().Add(-time.Hour))
	g.HandleFocus()
	g.Login("tok-3")

	cancel()
	cancel()
	g.Logout()

	assert.Equal(t, []bool{false, true}, got)
}

func TestGuard_ObserverReceivesEvents(t *testing.T) {
	store := newMapStore()
	clock := newClock()
	var events []Event
	g := New(store, WithClock(clock.Now), WithObserver(func(ev Event) { events = append(events, ev) }))
	g.Mount()

	g.Login("tok")
	g.HandleVisibility(Hidden)
	clock.Advance(Timeout + time.Second)
	g.HandleVisibility(Visible)
	g.Logout()

	assert.Equal(t, []Event{EventLogin, EventExpired}, events)
}

func TestGuard_CloseDetachesEverything(t *testing.T) {
	g, store, _ := mountedGuard(t)
	called := false
	g.Subscribe(func(bool) { called = true })

	g.Close()
	g.HandleVisibility(Hidden)
	g.Logout()

	assert.False(t, called)
	assert.False(t, g.Enforcing())
	_, ok := store.value(LastExitKey)
	assert.False(t, ok)
}

func TestState_String(t *testing.T) {
	cases := map[State]string{
		StateSignedOut: "signed_out",
		StateActive:    "active",
		StateAway:      "away",
		StateExpired:   "expired",
		State(42):      "unknown",
	}
	for s, want := range cases {
		assert.Equal(t, want, s.String())
	}
	assert.True(t, StateAway.Authenticated())
	assert.False(t, StateExpired.Authenticated())
}

func TestParseVisibility(t *testing.T) {
	v, ok := ParseVisibility("hidden")
	assert.True(t, ok)
	assert.Equal(t, Hidden, v)

	v, ok = ParseVisibility("visible")
	assert.True(t, ok)
	assert.Equal(t, Visible, v)

	_, ok = ParseVisibility("prerender")
	assert.False(t, ok)
}
