package accesscode

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testAdminCode = "9000000001"

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	return NewStore(
		filepath.Join(dir, "auth_codes.json"),
		filepath.Join(dir, "notice.json"),
		testAdminCode,
		zap.NewNop(),
	)
}

func TestLogin(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.AddUser("1234567890"))

	t.Run("admin code", func(t *testing.T) {
		ok, isAdmin := store.Login(testAdminCode)
		assert.True(t, ok)
		assert.True(t, isAdmin)
	})

	t.Run("regular code", func(t *testing.T) {
		ok, isAdmin := store.Login("1234567890")
		assert.True(t, ok)
		assert.False(t, isAdmin)
	})

	t.Run("unknown code", func(t *testing.T) {
		ok, _ := store.Login("0000000000")
		assert.False(t, ok)
	})
}

func TestAddUser(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.AddUser("1234567890"))
	assert.Contains(t, store.Users(), "1234567890")

	t.Run("duplicate rejected", func(t *testing.T) {
		assert.ErrorIs(t, store.AddUser("1234567890"), ErrDuplicate)
	})

	t.Run("admin code rejected as duplicate", func(t *testing.T) {
		assert.ErrorIs(t, store.AddUser(testAdminCode), ErrDuplicate)
	})

	t.Run("length enforced", func(t *testing.T) {
		assert.ErrorIs(t, store.AddUser("123"), ErrInvalidCode)
		assert.ErrorIs(t, store.AddUser("12345678901"), ErrInvalidCode)
	})

	t.Run("digits enforced", func(t *testing.T) {
		assert.ErrorIs(t, store.AddUser("12345abcde"), ErrInvalidCode)
	})
}

func TestRemoveUser(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.AddUser("1234567890"))

	t.Run("admin code is immutable", func(t *testing.T) {
		assert.ErrorIs(t, store.RemoveUser(testAdminCode), ErrAdminCode)
	})

	t.Run("unknown code", func(t *testing.T) {
		assert.ErrorIs(t, store.RemoveUser("0000000000"), ErrNotFound)
	})

	t.Run("removes existing code", func(t *testing.T) {
		require.NoError(t, store.RemoveUser("1234567890"))
		ok, _ := store.Login("1234567890")
		assert.False(t, ok)
	})
}

func TestUsersListsAdminFirst(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.AddUser("1234567890"))

	users := store.Users()
	require.NotEmpty(t, users)
	assert.Equal(t, testAdminCode, users[0])
	assert.Len(t, users, 2)
}

func TestNotice(t *testing.T) {
	store := newTestStore(t)

	assert.Empty(t, store.Notice(), "missing notice file reads as empty")

	require.NoError(t, store.UpdateNotice("maintenance at noon"))
	assert.Equal(t, "maintenance at noon", store.Notice())

	require.NoError(t, store.UpdateNotice(""))
	assert.Empty(t, store.Notice())
}

func TestCorruptFilesReadAsEmpty(t *testing.T) {
	dir := t.TempDir()
	codesPath := filepath.Join(dir, "auth_codes.json")
	noticePath := filepath.Join(dir, "notice.json")
	require.NoError(t, os.WriteFile(codesPath, []byte("{not json"), 0o644))
	require.NoError(t, os.WriteFile(noticePath, []byte("{not json"), 0o644))

	store := NewStore(codesPath, noticePath, testAdminCode, zap.NewNop())

	assert.Len(t, store.Users(), 1)
	assert.Empty(t, store.Notice())

	require.NoError(t, store.AddUser("1234567890"))
	ok, _ := store.Login("1234567890")
	assert.True(t, ok)
}
