package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akozyrev/launchman/internal/account"
	"github.com/akozyrev/launchman/internal/history"
	"github.com/akozyrev/launchman/internal/launcher"
	"github.com/akozyrev/launchman/internal/script"
	"github.com/akozyrev/launchman/internal/settings"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// growScanner hands out one new fake pid on every second snapshot, so each
// launch discovers exactly one new process.
type growScanner struct {
	mu   sync.Mutex
	pids map[int32]struct{}
	next int32
	grow bool
}

func newGrowScanner() *growScanner {
	return &growScanner{pids: map[int32]struct{}{}, next: 70000}
}

func (s *growScanner) Snapshot() map[int32]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.grow {
		s.pids[s.next] = struct{}{}
		s.next++
	}
	s.grow = !s.grow
	out := make(map[int32]struct{}, len(s.pids))
	for p := range s.pids {
		out[p] = struct{}{}
	}
	return out
}

type nopSpawner struct{}

func (nopSpawner) Spawn(launcher.Request) error { return nil }

type fixture struct {
	srv      *httptest.Server
	cfg      *settings.Settings
	accounts *account.Store
	orch     *launcher.Orchestrator
}

func newFixture(t *testing.T, sink history.Sink) *fixture {
	t.Helper()
	dir := t.TempDir()

	gameDir := filepath.Join(dir, "game")
	require.NoError(t, os.MkdirAll(filepath.Join(gameDir, "element"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(gameDir, "element", "elementclient.exe"), []byte("MZ"), 0o755))

	cfg, err := settings.Load(filepath.Join(dir, "settings.json"))
	require.NoError(t, err)
	cfg.GameDir = gameDir

	accounts, err := account.Open(cfg.AccountsPath)
	require.NoError(t, err)
	require.NoError(t, accounts.Add(account.Account{Login: "alice", Password: "pw", Character: "mage"}))
	require.NoError(t, accounts.Add(account.Account{Login: "bob", Password: "pw"}))

	if sink == nil {
		sink = history.NopSink{}
	}
	orch := launcher.New(launcher.Config{
		Scanner:     newGrowScanner(),
		Spawner:     nopSpawner{},
		Sink:        sink,
		SettleDelay: 5 * time.Millisecond,
		Alive:       func(int32) bool { return true },
	})
	t.Cleanup(func() { _ = orch.Shutdown(time.Second) })

	r := NewRouter(orch, accounts, cfg, sink, "/api")
	srv := httptest.NewServer(r.Handler())
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, cfg: cfg, accounts: accounts, orch: orch}
}

func do(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	var rd *strings.Reader
	if body == "" {
		rd = strings.NewReader("")
	} else {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func TestStatus(t *testing.T) {
	f := newFixture(t, nil)
	resp, body := do(t, http.MethodGet, f.srv.URL+"/api/status", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 2, body["accounts"])
	assert.EqualValues(t, 3, body["delay_sec"])
	assert.EqualValues(t, 0, body["queue_depth"])
}

func TestLaunchNow(t *testing.T) {
	f := newFixture(t, nil)
	resp, _ := do(t, http.MethodPost, f.srv.URL+"/api/launch?login=alice&now=1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	pid, tracked := f.orch.Lookup("alice")
	require.True(t, tracked)
	assert.GreaterOrEqual(t, pid, int32(70000))
}

func TestLaunch_UnknownAccount(t *testing.T) {
	f := newFixture(t, nil)
	resp, body := do(t, http.MethodPost, f.srv.URL+"/api/launch?login=ghost&now=1", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body["error"], "not found")
}

func TestLaunch_InvalidLogin(t *testing.T) {
	f := newFixture(t, nil)
	resp, _ := do(t, http.MethodPost, f.srv.URL+"/api/launch?login=..%2Fetc&now=1", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLaunch_BadGameDir(t *testing.T) {
	f := newFixture(t, nil)
	f.cfg.GameDir = filepath.Join(t.TempDir(), "nope")
	resp, _ := do(t, http.MethodPost, f.srv.URL+"/api/launch?login=alice&now=1", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLaunch_Enqueued(t *testing.T) {
	f := newFixture(t, nil)
	// Worker not started, so the request stays queued.
	resp, _ := do(t, http.MethodPost, f.srv.URL+"/api/launch?login=alice", "")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, 1, f.orch.QueueLen())
}

func TestLaunchAll_SkipsTracked(t *testing.T) {
	f := newFixture(t, nil)
	resp, _ := do(t, http.MethodPost, f.srv.URL+"/api/launch?login=alice&now=1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := do(t, http.MethodPost, f.srv.URL+"/api/launch-all", "")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.EqualValues(t, 1, body["queued"])
}

func TestTerminate_NotTracked(t *testing.T) {
	f := newFixture(t, nil)
	resp, _ := do(t, http.MethodPost, f.srv.URL+"/api/terminate?login=alice", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDelay(t *testing.T) {
	f := newFixture(t, nil)
	resp, body := do(t, http.MethodPost, f.srv.URL+"/api/delay?seconds=5", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 5, body["delay_sec"])
	assert.Equal(t, 5*time.Second, f.orch.InterLaunchDelay())

	// Out-of-range values are clamped, not rejected.
	resp, body = do(t, http.MethodPost, f.srv.URL+"/api/delay?seconds=99", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 30, body["delay_sec"])

	resp, _ = do(t, http.MethodPost, f.srv.URL+"/api/delay?seconds=0", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAccountsCRUD(t *testing.T) {
	f := newFixture(t, nil)

	resp, _ := do(t, http.MethodPost, f.srv.URL+"/api/accounts", `{"login":"carol","password":"pw"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, f.srv.URL+"/api/accounts", `{"login":"carol","password":"pw"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body := do(t, http.MethodGet, f.srv.URL+"/api/accounts?login=carol", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "carol", body["login"])

	// Rename onto an existing login is rejected.
	resp, _ = do(t, http.MethodPut, f.srv.URL+"/api/accounts?login=carol", `{"login":"alice","password":"pw"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = do(t, http.MethodPut, f.srv.URL+"/api/accounts?login=carol", `{"login":"carol","password":"new"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, http.MethodDelete, f.srv.URL+"/api/accounts?login=carol", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = do(t, http.MethodDelete, f.srv.URL+"/api/accounts?login=carol", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAccountsList(t *testing.T) {
	f := newFixture(t, nil)
	req, err := http.NewRequest(http.MethodGet, f.srv.URL+"/api/accounts", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []account.Account
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list, 2)
	assert.Equal(t, "alice", list[0].Login)
}

func TestAccountsImport_FromScripts(t *testing.T) {
	f := newFixture(t, nil)
	// Scripts for one known and one unknown login.
	_, err := script.Generate(f.cfg.ScriptsDir, f.cfg.GameDir, script.Params{Login: "alice", Password: "pw"})
	require.NoError(t, err)
	_, err = script.Generate(f.cfg.ScriptsDir, f.cfg.GameDir, script.Params{
		Login: "dave", Password: "pw", Character: "archer", Owner: "ivan",
	})
	require.NoError(t, err)

	resp, body := do(t, http.MethodPost, f.srv.URL+"/api/accounts/import", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["imported"])
	assert.EqualValues(t, 1, body["skipped"])

	a, err := f.accounts.Get("dave")
	require.NoError(t, err)
	assert.Equal(t, "archer", a.Character)
	assert.Equal(t, "ivan", a.Owner)
}

func TestAccountsDelete_RemovesScripts(t *testing.T) {
	f := newFixture(t, nil)
	path, err := script.Generate(f.cfg.ScriptsDir, f.cfg.GameDir, script.Params{Login: "alice", Password: "pw"})
	require.NoError(t, err)

	resp, body := do(t, http.MethodDelete, f.srv.URL+"/api/accounts?login=alice", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["scripts_deleted"])
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestHistory_NotSupportedByNopSink(t *testing.T) {
	f := newFixture(t, nil)
	resp, _ := do(t, http.MethodGet, f.srv.URL+"/api/history", "")
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

func TestHistory_SQLiteBacked(t *testing.T) {
	sink, err := history.NewSQLiteSink(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sink.Close() })
	f := newFixture(t, sink)

	resp, _ := do(t, http.MethodPost, f.srv.URL+"/api/launch?login=alice&now=1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, f.srv.URL+"/api/history?account=alice", nil)
	require.NoError(t, err)
	r2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = r2.Body.Close() }()
	require.Equal(t, http.StatusOK, r2.StatusCode)
	var events []history.Event
	require.NoError(t, json.NewDecoder(r2.Body).Decode(&events))
	require.Len(t, events, 1)
	assert.Equal(t, history.EventLaunch, events[0].Type)
	assert.Equal(t, "alice", events[0].Account)
}

func TestIsSafeLogin(t *testing.T) {
	assert.True(t, isSafeLogin("alice-01_x.y"))
	assert.False(t, isSafeLogin(""))
	assert.False(t, isSafeLogin("../etc"))
	assert.False(t, isSafeLogin("a/b"))
	assert.False(t, isSafeLogin("a b"))
}
