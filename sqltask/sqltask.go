// Package sqltask provides gwpool work items that run a database/sql
// statement on a worker goroutine. Result rows are read off-thread so the
// controlling goroutine only receives plain values.
package sqltask

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	ErrNoDatabase     = errors.New("sqltask: no database handle")
	ErrEmptyStatement = errors.New("sqltask: empty statement")
	// ErrAborted is recorded when the pool shuts down before the statement ran.
	ErrAborted = errors.New("sqltask: statement aborted")
)

// Mode selects between row-returning queries and plain execution.
type Mode int

const (
	ModeQuery Mode = iota
	ModeExec
)

func (m Mode) String() string {
	if m == ModeExec {
		return "exec"
	}
	return "query"
}

// Result holds the outcome of a statement. Rows is set for ModeQuery,
// RowsAffected and LastInsertID for ModeExec.
type Result struct {
	Columns      []string
	Rows         []map[string]any
	RowsAffected int64
	LastInsertID int64
	Attempts     int
}

// Task is a gwpool.Item wrapping one prepared statement. A dropped
// connection (driver.ErrBadConn) is retried in place while attempts remain.
type Task struct {
	db          *sql.DB
	mode        Mode
	query       string
	args        []any
	ctx         context.Context
	timeout     time.Duration
	maxAttempts int
	logger      *zap.Logger
	done        func(*Result, error)

	stmt     *sql.Stmt
	attempts int
	result   *Result
	err      error
}

type Option func(*Task)

func WithContext(ctx context.Context) Option {
	return func(t *Task) {
		if ctx != nil {
			t.ctx = ctx
		}
	}
}

// WithTimeout bounds each attempt.
func WithTimeout(d time.Duration) Option {
	return func(t *Task) {
		t.timeout = d
	}
}

func WithMaxAttempts(n int) Option {
	return func(t *Task) {
		if n > 0 {
			t.maxAttempts = n
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(t *Task) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// Query returns a task that runs a row-returning statement.
func Query(db *sql.DB, query string, args []any, done func(*Result, error), opts ...Option) *Task {
	return newTask(db, ModeQuery, query, args, done, opts)
}

// Exec returns a task that runs a statement for its side effects.
func Exec(db *sql.DB, query string, args []any, done func(*Result, error), opts ...Option) *Task {
	return newTask(db, ModeExec, query, args, done, opts)
}

func newTask(db *sql.DB, mode Mode, query string, args []any, done func(*Result, error), opts []Option) *Task {
	t := &Task{
		db:          db,
		mode:        mode,
		query:       query,
		args:        args,
		ctx:         context.Background(),
		maxAttempts: 2,
		logger:      zap.NewNop(),
		done:        done,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Task) Err() error {
	return t.err
}

func (t *Task) Prepare() bool {
	if t.db == nil {
		t.err = ErrNoDatabase
		return false
	}
	if strings.TrimSpace(t.query) == "" {
		t.err = ErrEmptyStatement
		return false
	}
	stmt, err := t.db.PrepareContext(t.ctx, t.query)
	if err != nil {
		t.err = fmt.Errorf("prepare %s: %w", t.mode, err)
		return false
	}
	t.stmt = stmt
	return true
}

func (t *Task) Process() bool {
	t.attempts++

	ctx := t.ctx
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	var (
		res *Result
		err error
	)
	if t.mode == ModeExec {
		res, err = t.exec(ctx)
	} else {
		res, err = t.queryRows(ctx)
	}

	if errors.Is(err, driver.ErrBadConn) && t.attempts < t.maxAttempts {
		t.logger.Debug("sql statement retry", zap.Int("attempt", t.attempts))
		return true
	}
	t.result, t.err = res, err
	return false
}

func (t *Task) OnCompleted() bool {
	t.closeStmt()
	if t.result != nil {
		t.result.Attempts = t.attempts
	}
	if t.done != nil {
		t.done(t.result, t.err)
	}
	return false
}

func (t *Task) OnAborted(retry bool) {
	t.closeStmt()
	t.err = ErrAborted
	t.logger.Debug("sql statement aborted", zap.Stringer("mode", t.mode), zap.Bool("retry", retry))
}

func (t *Task) closeStmt() {
	if t.stmt == nil {
		return
	}
	if err := t.stmt.Close(); err != nil {
		t.logger.Warn("close statement", zap.Error(err))
	}
	t.stmt = nil
}

func (t *Task) exec(ctx context.Context) (*Result, error) {
	res, err := t.stmt.ExecContext(ctx, t.args...)
	if err != nil {
		return nil, fmt.Errorf("exec: %w", err)
	}
	out := &Result{}
	if n, err := res.RowsAffected(); err == nil {
		out.RowsAffected = n
	}
	if id, err := res.LastInsertId(); err == nil {
		out.LastInsertID = id
	}
	return out, nil
}

func (t *Task) queryRows(ctx context.Context) (*Result, error) {
	rows, err := t.stmt.QueryContext(ctx, t.args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}
	out := &Result{Columns: cols}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			// drivers may reuse byte buffers between rows
			if b, ok := values[i].([]byte); ok {
				values[i] = string(b)
			}
			row[col] = values[i]
		}
		out.Rows = append(out.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}
