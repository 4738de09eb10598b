package tokenstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Zachkp/cosmic-portfolio/internal/storage"
)

func TestSQLiteBackend_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.db")
	ctx := context.Background()

	db, err := storage.Open(path)
	require.NoError(t, err)
	be, err := NewSQLiteBackend(db)
	require.NoError(t, err)

	require.NoError(t, be.Set(ctx, "p", "auth_token", "first"))
	require.NoError(t, be.Set(ctx, "p", "auth_token", "second"))
	require.NoError(t, be.Set(ctx, "q", "auth_token", "other"))
	require.NoError(t, db.Close())

	db, err = storage.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	be, err = NewSQLiteBackend(db)
	require.NoError(t, err)

	v, ok, err := be.Get(ctx, "p", "auth_token")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "second", v)

	require.NoError(t, be.Remove(ctx, "p", "auth_token"))
	_, ok, err = be.Get(ctx, "p", "auth_token")
	require.NoError(t, err)
	require.False(t, ok)

	v, ok, err = be.Get(ctx, "q", "auth_token")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "other", v)
}

func TestNewSQLiteBackendRejectsNil(t *testing.T) {
	_, err := NewSQLiteBackend(nil)
	require.Error(t, err)
}

func TestMemoryBackend_RemoveMissingNamespace(t *testing.T) {
	be := NewMemoryBackend()
	require.NoError(t, be.Remove(context.Background(), "nope", "k"))
	_, ok, err := be.Get(context.Background(), "nope", "k")
	require.NoError(t, err)
	require.False(t, ok)
}
