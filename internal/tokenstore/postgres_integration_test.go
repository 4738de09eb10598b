package tokenstore

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"
)

// Integration tests run only when PORTFOLIO_TEST_DATABASE_URL is set.

func openTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("PORTFOLIO_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("PORTFOLIO_TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestPostgresBackend_CrossInstanceNotification(t *testing.T) {
	pool := openTestPool(t)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	writer, err := NewPostgresBackend(pool, nil)
	require.NoError(t, err)
	require.NoError(t, writer.EnsureSchema(ctx))
	reader, err := NewPostgresBackend(pool, nil)
	require.NoError(t, err)

	ns := "it-" + ulid.Make().String()
	readerHub := NewHub(reader)
	scope := readerHub.Open(ns)
	defer scope.Close()

	watchCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() { _ = readerHub.Run(watchCtx) }()

	// LISTEN is issued asynchronously; keep writing until the reader sees it.
	deadline := time.After(10 * time.Second)
	tick := time.NewTicker(200 * time.Millisecond)
	defer tick.Stop()
	n := 0
waitSet:
	for {
		select {
		case c := <-scope.Changes():
			require.Equal(t, "auth_token", c.Key)
			require.False(t, c.Removed)
			break waitSet
		case <-tick.C:
			n++
			require.NoError(t, writer.Set(ctx, ns, "auth_token", fmt.Sprintf("tok-%d", n)))
		case <-deadline:
			t.Fatal("no notification received")
		}
	}

	require.NoError(t, writer.Remove(ctx, ns, "auth_token"))
	for {
		select {
		case c := <-scope.Changes():
			if c.Removed {
				_, ok, err := reader.Get(ctx, ns, "auth_token")
				require.NoError(t, err)
				require.False(t, ok)
				return
			}
		case <-time.After(5 * time.Second):
			t.Fatal("no removal notification")
		}
	}
}
