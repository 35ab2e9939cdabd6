package account

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rosterPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "accounts.json")
}

func TestAddGetDelete(t *testing.T) {
	s, err := Open(rosterPath(t))
	require.NoError(t, err)

	a := Account{Login: "alice", Password: "pw", Character: "mage", Owner: "me"}
	require.NoError(t, s.Add(a))
	got, err := s.Get("alice")
	require.NoError(t, err)
	assert.Equal(t, a, got)
	assert.True(t, s.Exists("alice"))

	require.NoError(t, s.Delete("alice"))
	assert.False(t, s.Exists("alice"))
	assert.ErrorIs(t, s.Delete("alice"), ErrNotFound)
}

func TestAdd_DuplicateRejected(t *testing.T) {
	s, err := Open(rosterPath(t))
	require.NoError(t, err)
	require.NoError(t, s.Add(Account{Login: "alice", Password: "pw"}))
	assert.ErrorIs(t, s.Add(Account{Login: "alice", Password: "other"}), ErrExists)
	assert.Equal(t, 1, s.Len())
}

func TestAdd_InvalidLogin(t *testing.T) {
	s, err := Open(rosterPath(t))
	require.NoError(t, err)
	assert.ErrorIs(t, s.Add(Account{Login: ""}), ErrInvalidLogin)
	assert.ErrorIs(t, s.Add(Account{Login: " padded "}), ErrInvalidLogin)
}

func TestUpdate(t *testing.T) {
	s, err := Open(rosterPath(t))
	require.NoError(t, err)
	require.NoError(t, s.Add(Account{Login: "alice", Password: "pw"}))
	require.NoError(t, s.Add(Account{Login: "bob", Password: "pw"}))

	// In-place edit.
	require.NoError(t, s.Update("alice", Account{Login: "alice", Password: "new", Character: "rogue"}))
	got, err := s.Get("alice")
	require.NoError(t, err)
	assert.Equal(t, "new", got.Password)

	// Rename onto an existing login is rejected.
	assert.ErrorIs(t, s.Update("alice", Account{Login: "bob"}), ErrExists)
	assert.True(t, s.Exists("alice"))

	// Rename to a free login moves the entry.
	require.NoError(t, s.Update("alice", Account{Login: "carol", Password: "new"}))
	assert.False(t, s.Exists("alice"))
	assert.True(t, s.Exists("carol"))

	assert.ErrorIs(t, s.Update("ghost", Account{Login: "ghost"}), ErrNotFound)
}

func TestPersistenceRoundTrip(t *testing.T) {
	path := rosterPath(t)
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Add(Account{Login: "bob", Password: "pw", Description: "second box"}))
	require.NoError(t, s.Add(Account{Login: "alice", Password: "pw"}))

	reopened, err := Open(path)
	require.NoError(t, err)
	all := reopened.All()
	require.Len(t, all, 2)
	assert.Equal(t, "alice", all[0].Login)
	assert.Equal(t, "bob", all[1].Login)
	assert.Equal(t, "second box", all[1].Description)
}

func TestOpen_MissingFile(t *testing.T) {
	s, err := Open(rosterPath(t))
	require.NoError(t, err)
	assert.Zero(t, s.Len())
}
