package script

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

func TestGenerateParseRoundTrip(t *testing.T) {
	dir := t.TempDir()
	p := Params{
		Login:       "alice",
		Password:    "s3cret",
		Character:   "mage",
		Owner:       "ivan",
		Description: "main farm window",
	}
	path, err := Generate(dir, `C:\games\pw`, p)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "alice.bat"), path)

	got, err := Parse(path)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestGenerate_CyrillicOwnerEncodedCP1251(t *testing.T) {
	dir := t.TempDir()
	p := Params{Login: "alice", Password: "pw", Owner: "Владимир"}
	path, err := Generate(dir, `C:\games\pw`, p)
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	// The file on disk must not be UTF-8 for the owner line.
	assert.NotContains(t, string(raw), "Владимир")
	decoded, err := charmap.Windows1251.NewDecoder().String(string(raw))
	require.NoError(t, err)
	assert.Contains(t, decoded, ":: Owner: Владимир")

	got, err := Parse(path)
	require.NoError(t, err)
	assert.Equal(t, "Владимир", got.Owner)
}

func TestGenerate_NoCharacterOmitsRole(t *testing.T) {
	dir := t.TempDir()
	path, err := Generate(dir, `C:\games\pw`, Params{Login: "bob", Password: "pw"})
	require.NoError(t, err)

	got, err := Parse(path)
	require.NoError(t, err)
	assert.Empty(t, got.Character)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "role:")
}

func TestGenerate_CollisionWithForeignFile(t *testing.T) {
	dir := t.TempDir()
	foreign := filepath.Join(dir, "alice.bat")
	require.NoError(t, os.WriteFile(foreign, []byte("@echo off\r\nrem unrelated\r\n"), 0o644))

	path, err := Generate(dir, `C:\games\pw`, Params{Login: "alice", Password: "pw"})
	require.NoError(t, err)
	assert.NotEqual(t, foreign, path)
	assert.True(t, strings.HasPrefix(filepath.Base(path), "alice-"))

	// The foreign file is untouched.
	raw, err := os.ReadFile(foreign)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "unrelated")
}

func TestGenerate_RegenerateSameLoginOverwrites(t *testing.T) {
	dir := t.TempDir()
	first, err := Generate(dir, `C:\games\pw`, Params{Login: "alice", Password: "old"})
	require.NoError(t, err)
	second, err := Generate(dir, `C:\games\pw`, Params{Login: "alice", Password: "new"})
	require.NoError(t, err)
	assert.Equal(t, first, second)

	got, err := Parse(second)
	require.NoError(t, err)
	assert.Equal(t, "new", got.Password)
}

func TestScan_RecursiveSkipsForeignScripts(t *testing.T) {
	dir := t.TempDir()
	_, err := Generate(dir, `C:\games\pw`, Params{Login: "alice", Password: "pw"})
	require.NoError(t, err)
	nested := filepath.Join(dir, "old")
	_, err = Generate(nested, `C:\games\pw`, Params{Login: "bob", Password: "pw"})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cleanup.bat"), []byte("del /q *.tmp\r\n"), 0o644))

	entries, err := Scan(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	logins := []string{entries[0].Params.Login, entries[1].Params.Login}
	assert.ElementsMatch(t, []string{"alice", "bob"}, logins)
}

func TestScan_MissingDir(t *testing.T) {
	entries, err := Scan(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDeleteByLogin(t *testing.T) {
	dir := t.TempDir()
	_, err := Generate(dir, `C:\games\pw`, Params{Login: "alice", Password: "pw"})
	require.NoError(t, err)
	_, err = Generate(dir, `C:\games\pw`, Params{Login: "bob", Password: "pw"})
	require.NoError(t, err)

	n, err := DeleteByLogin(dir, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	entries, err := Scan(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "bob", entries[0].Params.Login)

	n, err = DeleteByLogin(dir, "ghost")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDelete(t *testing.T) {
	dir := t.TempDir()
	path, err := Generate(dir, `C:\games\pw`, Params{Login: "alice", Password: "pw"})
	require.NoError(t, err)
	require.NoError(t, Delete(path))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Deleting twice is fine.
	require.NoError(t, Delete(path))
}

func TestParse_NotLaunchScript(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "other.bat")
	require.NoError(t, os.WriteFile(path, []byte("@echo off\r\n"), 0o644))
	_, err := Parse(path)
	assert.ErrorIs(t, err, ErrNotLaunchScript)
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "a_b_c", sanitizeName(`a/b\c`))
	assert.Equal(t, "alice-01_x", sanitizeName("alice-01 x"))
}
