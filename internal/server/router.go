// Package server exposes the roster and launcher over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/akozyrev/launchman/internal/account"
	"github.com/akozyrev/launchman/internal/browser"
	"github.com/akozyrev/launchman/internal/history"
	"github.com/akozyrev/launchman/internal/launcher"
	"github.com/akozyrev/launchman/internal/script"
	"github.com/akozyrev/launchman/internal/settings"
)

// Router provides embeddable HTTP handlers for the launcher and roster.
// Endpoints:
//
//	GET    {basePath}/status
//	POST   {basePath}/launch         query: login=...&now=1 (now optional)
//	POST   {basePath}/launch-all
//	POST   {basePath}/terminate      query: login=...
//	POST   {basePath}/terminate-all
//	POST   {basePath}/reconcile
//	POST   {basePath}/delay          query: seconds=...
//	GET    {basePath}/accounts        query: login=... (optional, single)
//	POST   {basePath}/accounts        body: Account JSON
//	PUT    {basePath}/accounts        query: login=... body: Account JSON
//	DELETE {basePath}/accounts        query: login=...
//	POST   {basePath}/accounts/import (from scripts folder)
//	POST   {basePath}/browser         query: login=...
//	GET    {basePath}/history         query: account=...&limit=...
type Router struct {
	orch     *launcher.Orchestrator
	accounts *account.Store
	cfg      *settings.Settings
	sink     history.Sink
	basePath string
}

// NewRouter constructs a Router with a configurable basePath.
func NewRouter(orch *launcher.Orchestrator, accounts *account.Store, cfg *settings.Settings, sink history.Sink, basePath string) *Router {
	return &Router{
		orch:     orch,
		accounts: accounts,
		cfg:      cfg,
		sink:     sink,
		basePath: sanitizeBase(basePath),
	}
}

// Handler returns an http.Handler powered by gin, mountable in any mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.POST("/launch", r.handleLaunch)
	group.POST("/launch-all", r.handleLaunchAll)
	group.POST("/terminate", r.handleTerminate)
	group.POST("/terminate-all", r.handleTerminateAll)
	group.POST("/reconcile", r.handleReconcile)
	group.POST("/delay", r.handleDelay)
	group.GET("/accounts", r.handleAccountsGet)
	group.POST("/accounts", r.handleAccountsAdd)
	group.PUT("/accounts", r.handleAccountsUpdate)
	group.DELETE("/accounts", r.handleAccountsDelete)
	group.POST("/accounts/import", r.handleAccountsImport)
	group.POST("/browser", r.handleBrowser)
	group.GET("/history", r.handleHistory)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr, basePath string, orch *launcher.Orchestrator, accounts *account.Store, cfg *settings.Settings, sink history.Sink) *http.Server {
	r := NewRouter(orch, accounts, cfg, sink, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, launcher.ErrTargetNotFound), errors.Is(err, account.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, launcher.ErrAlreadyRunning), errors.Is(err, account.ErrExists):
		return http.StatusConflict
	case errors.Is(err, launcher.ErrProcessNotDetected):
		return http.StatusBadGateway
	case errors.Is(err, launcher.ErrShuttingDown):
		return http.StatusServiceUnavailable
	case errors.Is(err, account.ErrInvalidLogin), errors.Is(err, settings.ErrGameDirInvalid):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (r *Router) handleStatus(c *gin.Context) {
	type status struct {
		Tracked    any    `json:"tracked"`
		QueueDepth int    `json:"queue_depth"`
		DelaySec   int    `json:"delay_sec"`
		Accounts   int    `json:"accounts"`
		GameDir    string `json:"game_dir"`
	}
	writeJSON(c, http.StatusOK, status{
		Tracked:    r.orch.Tracked(),
		QueueDepth: r.orch.QueueLen(),
		DelaySec:   int(r.orch.InterLaunchDelay() / time.Second),
		Accounts:   r.accounts.Len(),
		GameDir:    r.cfg.GameDir,
	})
}

// launchRequest builds the orchestrator request for one account, generating
// the launch script on the way.
func (r *Router) launchRequest(login string) (launcher.Request, error) {
	a, err := r.accounts.Get(login)
	if err != nil {
		return launcher.Request{}, err
	}
	if err := r.cfg.ValidateGameDir(); err != nil {
		return launcher.Request{}, err
	}
	path, err := script.Generate(r.cfg.ScriptsDir, r.cfg.GameDir, script.Params{
		Login:       a.Login,
		Password:    a.Password,
		Character:   a.Character,
		Owner:       a.Owner,
		Description: a.Description,
	})
	if err != nil {
		return launcher.Request{}, err
	}
	return launcher.Request{Key: a.Login, Target: path, WorkDir: r.cfg.GameDir}, nil
}

func (r *Router) handleLaunch(c *gin.Context) {
	login := c.Query("login")
	if !isSafeLogin(login) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid login: allowed [A-Za-z0-9._-]"})
		return
	}
	if r.orch.Running(login) {
		err := fmt.Errorf("%w: %s", launcher.ErrAlreadyRunning, login)
		writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
		return
	}
	req, err := r.launchRequest(login)
	if err != nil {
		writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
		return
	}
	if c.Query("now") != "" {
		pid, err := r.orch.LaunchNow(c.Request.Context(), req)
		if err != nil {
			writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
			return
		}
		writeJSON(c, http.StatusOK, gin.H{"ok": true, "pid": pid})
		return
	}
	if err := r.orch.Enqueue(req); err != nil {
		writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusAccepted, okResp{OK: true})
}

func (r *Router) handleLaunchAll(c *gin.Context) {
	if err := r.cfg.ValidateGameDir(); err != nil {
		writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
		return
	}
	queued := 0
	for _, a := range r.accounts.All() {
		if r.orch.Running(a.Login) {
			continue
		}
		req, err := r.launchRequest(a.Login)
		if err != nil {
			writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
			return
		}
		if err := r.orch.Enqueue(req); err != nil {
			writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
			return
		}
		queued++
	}
	writeJSON(c, http.StatusAccepted, gin.H{"queued": queued})
}

func (r *Router) handleTerminate(c *gin.Context) {
	login := c.Query("login")
	if !isSafeLogin(login) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid login"})
		return
	}
	ok, err := r.orch.TerminateTracked(login)
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	if !ok {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "not tracked: " + login})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleTerminateAll(c *gin.Context) {
	n, err := r.orch.TerminateAll()
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, gin.H{"terminated": n, "error": err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"terminated": n})
}

func (r *Router) handleReconcile(c *gin.Context) {
	removed := r.orch.Reconcile()
	writeJSON(c, http.StatusOK, gin.H{"removed": removed})
}

func (r *Router) handleDelay(c *gin.Context) {
	secs, err := strconv.Atoi(c.Query("seconds"))
	if err != nil || secs <= 0 {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "seconds must be a positive integer"})
		return
	}
	r.orch.SetInterLaunchDelay(time.Duration(secs) * time.Second)
	writeJSON(c, http.StatusOK, gin.H{"delay_sec": int(r.orch.InterLaunchDelay() / time.Second)})
}

func (r *Router) handleAccountsGet(c *gin.Context) {
	if login := c.Query("login"); login != "" {
		a, err := r.accounts.Get(login)
		if err != nil {
			writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
			return
		}
		writeJSON(c, http.StatusOK, a)
		return
	}
	writeJSON(c, http.StatusOK, r.accounts.All())
}

func (r *Router) handleAccountsAdd(c *gin.Context) {
	var a account.Account
	if err := c.ShouldBindJSON(&a); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if !isSafeLogin(a.Login) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid login: allowed [A-Za-z0-9._-]"})
		return
	}
	if err := r.accounts.Add(a); err != nil {
		writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusCreated, a)
}

func (r *Router) handleAccountsUpdate(c *gin.Context) {
	login := c.Query("login")
	if !isSafeLogin(login) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid login"})
		return
	}
	var a account.Account
	if err := c.ShouldBindJSON(&a); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if !isSafeLogin(a.Login) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid login: allowed [A-Za-z0-9._-]"})
		return
	}
	if err := r.accounts.Update(login, a); err != nil {
		writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, a)
}

func (r *Router) handleAccountsDelete(c *gin.Context) {
	login := c.Query("login")
	if !isSafeLogin(login) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid login"})
		return
	}
	if err := r.accounts.Delete(login); err != nil {
		writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
		return
	}
	// Generated launch scripts carry the password; remove them too.
	scripts, _ := script.DeleteByLogin(r.cfg.ScriptsDir, login)
	writeJSON(c, http.StatusOK, gin.H{"ok": true, "scripts_deleted": scripts})
}

// handleAccountsImport rebuilds roster entries from launch scripts found in
// the scripts folder, skipping logins already present.
func (r *Router) handleAccountsImport(c *gin.Context) {
	entries, err := script.Scan(r.cfg.ScriptsDir)
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	imported, skipped := 0, 0
	for _, e := range entries {
		if !isSafeLogin(e.Params.Login) || r.accounts.Exists(e.Params.Login) {
			skipped++
			continue
		}
		if err := r.accounts.Add(account.Account{
			Login:       e.Params.Login,
			Password:    e.Params.Password,
			Character:   e.Params.Character,
			Owner:       e.Params.Owner,
			Description: e.Params.Description,
		}); err != nil {
			writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
			return
		}
		imported++
	}
	writeJSON(c, http.StatusOK, gin.H{"imported": imported, "skipped": skipped})
}

func (r *Router) handleBrowser(c *gin.Context) {
	login := c.Query("login")
	if !isSafeLogin(login) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid login"})
		return
	}
	if !r.accounts.Exists(login) {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "account not found: " + login})
		return
	}
	profile := filepath.Join(filepath.Dir(r.cfg.AccountsPath), "profiles", login)
	if err := browser.Open(r.cfg.Browser, r.cfg.LoginURL, profile); err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

type recentReader interface {
	Recent(ctx context.Context, account string, limit int) ([]history.Event, error)
}

func (r *Router) handleHistory(c *gin.Context) {
	rr, ok := r.sink.(recentReader)
	if !ok {
		writeJSON(c, http.StatusNotImplemented, errorResp{Error: "history backend does not support queries"})
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	events, err := rr.Recent(c.Request.Context(), c.Query("account"), limit)
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, events)
}
