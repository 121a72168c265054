// Package luahost embeds a sandboxed gopher-lua state and exposes the
// thread pool to scripts as the "async" module.
//
// The LState is not safe for concurrent use, so every script callback runs
// from Tick, on the goroutine that owns the host. Work items never touch the
// state from a worker.
package luahost

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/khekrn/gwpool"
)

// ErrNoPool is returned by New when no pool is supplied.
var ErrNoPool = errors.New("luahost: thread pool is required")

// Host owns one Lua state and the pool its scripts submit work to.
type Host struct {
	L    *lua.LState
	pool *gwpool.ThreadPool

	client       *http.Client
	db           *sql.DB
	logger       *zap.Logger
	httpAttempts int
	httpBackoff  time.Duration
	httpTimeout  time.Duration
	sqlTimeout   time.Duration

	inflight int
}

type Option func(*Host)

func WithHTTPClient(client *http.Client) Option {
	return func(h *Host) {
		if client != nil {
			h.client = client
		}
	}
}

// WithDB enables async.query and async.exec.
func WithDB(db *sql.DB) Option {
	return func(h *Host) {
		h.db = db
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(h *Host) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithHTTPRetry sets the attempt budget and first backoff for async.http.
func WithHTTPRetry(attempts int, backoff time.Duration) Option {
	return func(h *Host) {
		h.httpAttempts = attempts
		h.httpBackoff = backoff
	}
}

// WithTimeouts sets the default per-attempt timeouts for HTTP and SQL work.
func WithTimeouts(httpTimeout, sqlTimeout time.Duration) Option {
	return func(h *Host) {
		h.httpTimeout = httpTimeout
		h.sqlTimeout = sqlTimeout
	}
}

// New creates a sandboxed state with the async module installed.
func New(pool *gwpool.ThreadPool, opts ...Option) (*Host, error) {
	if pool == nil {
		return nil, ErrNoPool
	}
	h := &Host{
		pool:         pool,
		client:       http.DefaultClient,
		logger:       zap.NewNop(),
		httpAttempts: 1,
		httpBackoff:  100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(h)
	}

	h.L = newSandbox()
	h.L.SetGlobal("async", h.module())
	return h, nil
}

func newSandbox() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.fn))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
	for _, name := range []string{"dofile", "loadfile", "load", "collectgarbage", "require"} {
		L.SetGlobal(name, lua.LNil)
	}
	return L
}

// DoString runs a chunk of Lua source.
func (h *Host) DoString(src string) error {
	if err := h.L.DoString(src); err != nil {
		return fmt.Errorf("lua: %w", err)
	}
	return nil
}

// DoFile loads and runs a script file.
func (h *Host) DoFile(path string) error {
	if err := h.L.DoFile(path); err != nil {
		return fmt.Errorf("lua %s: %w", path, err)
	}
	return nil
}

// CallHook calls the global function name if the script defined one.
func (h *Host) CallHook(name string, args ...lua.LValue) error {
	fn, ok := h.L.GetGlobal(name).(*lua.LFunction)
	if !ok {
		return nil
	}
	if err := h.L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, args...); err != nil {
		return fmt.Errorf("lua hook %s: %w", name, err)
	}
	return nil
}

// Tick delivers finished work to the script. Call it from the goroutine
// that owns the host, once per frame.
func (h *Host) Tick() {
	h.pool.Process()
}

// Inflight returns how many submitted requests have not yet called back.
func (h *Host) Inflight() int {
	return h.inflight
}

func (h *Host) Close() {
	h.L.Close()
}

// callback invokes a script callback and logs, rather than propagates, any
// error it raises.
func (h *Host) callback(fn *lua.LFunction, args ...lua.LValue) {
	h.inflight--
	if err := h.L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, args...); err != nil {
		h.logger.Error("lua callback failed", zap.Error(err))
	}
}
