package credential

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/groupforge/groupforge/internal/platform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "sessions"), zap.NewNop())
	require.NoError(t, err)
	return store
}

func TestStore_LoadFreshTenant(t *testing.T) {
	store := newTestStore(t)

	creds, err := store.Load("tenant1")
	require.NoError(t, err)
	assert.False(t, creds.Registered)
	assert.Empty(t, creds.Keys)
}

func TestStore_SaveAndLoad(t *testing.T) {
	store := newTestStore(t)

	saved := &platform.Credentials{
		Registered: true,
		Keys:       map[string]string{"noise": "abc123"},
	}
	require.NoError(t, store.Save("tenant1", saved))

	loaded, err := store.Load("tenant1")
	require.NoError(t, err)
	assert.True(t, loaded.Registered)
	assert.Equal(t, "abc123", loaded.Keys["noise"])
}

func TestStore_TenantsAreIsolated(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Save("tenant1", &platform.Credentials{Registered: true}))

	other, err := store.Load("tenant2")
	require.NoError(t, err)
	assert.False(t, other.Registered)
}

func TestStore_Erase(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Save("tenant1", &platform.Credentials{Registered: true}))
	require.NoError(t, store.Erase("tenant1"))

	creds, err := store.Load("tenant1")
	require.NoError(t, err)
	assert.False(t, creds.Registered)
}

func TestStore_EraseWithoutPriorState(t *testing.T) {
	store := newTestStore(t)
	assert.NoError(t, store.Erase("never-connected"))
}

func TestStore_CorruptFileStartsFresh(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Save("tenant1", &platform.Credentials{Registered: true}))
	require.NoError(t, os.WriteFile(filepath.Join(store.root, "tenant1", credsFile), []byte("{not json"), 0o600))

	creds, err := store.Load("tenant1")
	require.NoError(t, err)
	assert.False(t, creds.Registered)
}

func TestStore_RejectsPathEscape(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Load("../outside")
	assert.Error(t, err)

	assert.Error(t, store.Save("a/b", &platform.Credentials{}))
	assert.Error(t, store.Erase(""))
}
