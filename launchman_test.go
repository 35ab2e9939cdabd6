package launchman

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticScanner struct{}

func (staticScanner) Snapshot() map[int32]struct{} { return map[int32]struct{}{} }

type noopSpawner struct{}

func (noopSpawner) Spawn(Request) error { return nil }

func TestFacadeLifecycle(t *testing.T) {
	o := New(Config{
		Scanner:     staticScanner{},
		Spawner:     noopSpawner{},
		SettleDelay: time.Millisecond,
	})
	o.Start()
	assert.Zero(t, o.QueueLen())
	assert.Empty(t, o.Tracked())

	o.SetInterLaunchDelay(5 * time.Second)
	assert.Equal(t, 5*time.Second, o.InterLaunchDelay())

	require.NoError(t, o.Shutdown(time.Second))
}

func TestFacadeRosterAndSettings(t *testing.T) {
	dir := t.TempDir()

	roster, err := OpenRoster(filepath.Join(dir, "accounts.json"))
	require.NoError(t, err)
	require.NoError(t, roster.Add(Account{Login: "alice", Password: "pw"}))
	assert.True(t, roster.Exists("alice"))

	cfg, err := LoadSettings(filepath.Join(dir, "settings.json"))
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.LaunchInterval())

	sink, err := NewHistorySink("")
	require.NoError(t, err)
	require.NoError(t, sink.Close())
}
