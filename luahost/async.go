package luahost

import (
	"fmt"
	"net/http"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/khekrn/gwpool/httptask"
	"github.com/khekrn/gwpool/sqltask"
)

func (h *Host) module() *lua.LTable {
	return h.L.SetFuncs(h.L.NewTable(), map[string]lua.LGFunction{
		"http":     h.luaHTTP,
		"query":    h.luaQuery,
		"exec":     h.luaExec,
		"workers":  h.luaWorkers,
		"inflight": h.luaInflight,
	})
}

// async.http{url=..., method=..., body=..., headers={...}, timeout_ms=...}, function(err, resp)
func (h *Host) luaHTTP(L *lua.LState) int {
	opts := L.CheckTable(1)
	cb := L.CheckFunction(2)

	req := httptask.Request{
		Method:  lua.LVAsString(opts.RawGetString("method")),
		URL:     lua.LVAsString(opts.RawGetString("url")),
		Body:    []byte(lua.LVAsString(opts.RawGetString("body"))),
		Timeout: h.httpTimeout,
	}
	if ms := lua.LVAsNumber(opts.RawGetString("timeout_ms")); ms > 0 {
		req.Timeout = time.Duration(ms) * time.Millisecond
	}
	if headers, ok := opts.RawGetString("headers").(*lua.LTable); ok {
		req.Header = http.Header{}
		headers.ForEach(func(k, v lua.LValue) {
			req.Header.Add(lua.LVAsString(k), lua.LVAsString(v))
		})
	}

	h.inflight++
	h.pool.Enqueue(httptask.New(req, func(resp *httptask.Response, err error) {
		if err != nil {
			h.callback(cb, lua.LString(err.Error()), lua.LNil)
			return
		}
		h.callback(cb, lua.LNil, h.responseTable(resp))
	},
		httptask.WithClient(h.client),
		httptask.WithMaxAttempts(h.httpAttempts),
		httptask.WithBackoff(h.httpBackoff),
		httptask.WithLogger(h.logger),
	))
	return 0
}

func (h *Host) responseTable(resp *httptask.Response) *lua.LTable {
	t := h.L.NewTable()
	t.RawSetString("status", lua.LNumber(resp.StatusCode))
	t.RawSetString("body", lua.LString(resp.Body))
	t.RawSetString("attempts", lua.LNumber(resp.Attempts))
	t.RawSetString("elapsed_ms", lua.LNumber(resp.Elapsed.Milliseconds()))
	headers := h.L.NewTable()
	for k := range resp.Header {
		headers.RawSetString(k, lua.LString(resp.Header.Get(k)))
	}
	t.RawSetString("headers", headers)
	return t
}

// async.query(sql, [args], function(err, rows))
func (h *Host) luaQuery(L *lua.LState) int {
	query, args, cb := sqlArgs(L)
	h.inflight++
	h.pool.Enqueue(sqltask.Query(h.db, query, args, func(res *sqltask.Result, err error) {
		if err != nil {
			h.callback(cb, lua.LString(err.Error()), lua.LNil)
			return
		}
		rows := h.L.NewTable()
		for _, row := range res.Rows {
			r := h.L.NewTable()
			for col, v := range row {
				r.RawSetString(col, toLua(v))
			}
			rows.Append(r)
		}
		h.callback(cb, lua.LNil, rows)
	}, sqltask.WithTimeout(h.sqlTimeout), sqltask.WithLogger(h.logger)))
	return 0
}

// async.exec(sql, [args], function(err, result))
func (h *Host) luaExec(L *lua.LState) int {
	query, args, cb := sqlArgs(L)
	h.inflight++
	h.pool.Enqueue(sqltask.Exec(h.db, query, args, func(res *sqltask.Result, err error) {
		if err != nil {
			h.callback(cb, lua.LString(err.Error()), lua.LNil)
			return
		}
		t := h.L.NewTable()
		t.RawSetString("rows_affected", lua.LNumber(res.RowsAffected))
		t.RawSetString("last_insert_id", lua.LNumber(res.LastInsertID))
		h.callback(cb, lua.LNil, t)
	}, sqltask.WithTimeout(h.sqlTimeout), sqltask.WithLogger(h.logger)))
	return 0
}

func (h *Host) luaWorkers(L *lua.LState) int {
	L.Push(lua.LNumber(h.pool.WorkerCount()))
	return 1
}

func (h *Host) luaInflight(L *lua.LState) int {
	L.Push(lua.LNumber(h.inflight))
	return 1
}

// sqlArgs accepts (sql, cb) or (sql, args, cb).
func sqlArgs(L *lua.LState) (string, []any, *lua.LFunction) {
	query := L.CheckString(1)
	if fn, ok := L.Get(2).(*lua.LFunction); ok {
		return query, nil, fn
	}
	tbl := L.CheckTable(2)
	cb := L.CheckFunction(3)

	args := make([]any, 0, tbl.Len())
	for i := 1; i <= tbl.Len(); i++ {
		v := tbl.RawGetInt(i)
		arg, ok := fromLua(v)
		if !ok {
			L.ArgError(2, fmt.Sprintf("argument %d: cannot bind a %s", i, v.Type()))
		}
		args = append(args, arg)
	}
	return query, args, cb
}
