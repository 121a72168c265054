// Package httptask provides a gwpool work item that performs an HTTP request
// on a worker goroutine and delivers the response on the controlling one.
package httptask

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MaxBodyBytes caps how much of a response body is read into memory.
const MaxBodyBytes = 32 << 20

// MaxBackoff caps the wait between attempts.
const MaxBackoff = 30 * time.Second

var (
	// ErrInvalidRequest is reported when Prepare rejects the request.
	ErrInvalidRequest = errors.New("httptask: invalid request")
	// ErrAborted is recorded when the pool shuts down before the request ends.
	ErrAborted = errors.New("httptask: request aborted")
)

// Request describes a single HTTP call.
type Request struct {
	Method  string
	URL     string
	Header  http.Header
	Body    []byte
	Timeout time.Duration // per attempt; zero means the client's own timeout
}

// Response is the materialized result of the final attempt.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Attempts   int
	Elapsed    time.Duration
}

// Task is a gwpool.Item. Transient failures (transport errors, 429 and 5xx)
// are retried in place, up to the attempt budget, with exponential backoff.
type Task struct {
	id          uuid.UUID
	req         Request
	client      *http.Client
	ctx         context.Context
	maxAttempts int
	backoff     time.Duration
	logger      *zap.Logger
	done        func(*Response, error)

	target   *url.URL
	attempts int
	started  time.Time
	resp     *Response
	err      error
}

type Option func(*Task)

func WithClient(client *http.Client) Option {
	return func(t *Task) {
		if client != nil {
			t.client = client
		}
	}
}

// WithMaxAttempts sets the attempt budget, including the first attempt.
func WithMaxAttempts(n int) Option {
	return func(t *Task) {
		if n > 0 {
			t.maxAttempts = n
		}
	}
}

// WithBackoff sets the delay before the first retry; it doubles after each.
func WithBackoff(d time.Duration) Option {
	return func(t *Task) {
		t.backoff = d
	}
}

func WithContext(ctx context.Context) Option {
	return func(t *Task) {
		if ctx != nil {
			t.ctx = ctx
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

// New returns a task for req. done runs on the goroutine that drives
// gwpool.ThreadPool.Process; it is not called for aborted tasks.
func New(req Request, done func(*Response, error), opts ...Option) *Task {
	t := &Task{
		id:          uuid.New(),
		req:         req,
		client:      http.DefaultClient,
		ctx:         context.Background(),
		maxAttempts: 1,
		backoff:     100 * time.Millisecond,
		logger:      zap.NewNop(),
		done:        done,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Task) ID() uuid.UUID {
	return t.id
}

// Err returns the error recorded for the task, if any.
func (t *Task) Err() error {
	return t.err
}

func (t *Task) Prepare() bool {
	t.started = time.Now()

	method := strings.ToUpper(strings.TrimSpace(t.req.Method))
	if method == "" {
		method = http.MethodGet
	}
	t.req.Method = method

	target, err := url.Parse(t.req.URL)
	if err != nil {
		t.err = fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		return false
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		t.err = fmt.Errorf("%w: unsupported scheme %q", ErrInvalidRequest, target.Scheme)
		return false
	}
	if target.Host == "" {
		t.err = fmt.Errorf("%w: missing host", ErrInvalidRequest)
		return false
	}
	t.target = target
	return true
}

// backoffFor returns base doubled once per previous attempt, capped at
// MaxBackoff.
func backoffFor(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	wait := base
	for i := 1; i < attempt && wait < MaxBackoff; i++ {
		wait *= 2
	}
	if wait > MaxBackoff {
		wait = MaxBackoff
	}
	return wait
}

func (t *Task) Process() bool {
	t.attempts++
	resp, err := t.do()

	if t.attempts < t.maxAttempts && retryable(resp, err) {
		wait := backoffFor(t.backoff, t.attempts)
		t.logger.Debug("http request retry",
			zap.Stringer("task", t.id),
			zap.Int("attempt", t.attempts),
			zap.Duration("backoff", wait))
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-t.ctx.Done():
			t.resp, t.err = nil, t.ctx.Err()
			return false
		case <-timer.C:
			return true
		}
	}

	t.resp, t.err = resp, err
	return false
}

func (t *Task) OnCompleted() bool {
	if t.resp != nil {
		t.resp.Attempts = t.attempts
		t.resp.Elapsed = time.Since(t.started)
	}
	t.logger.Debug("http request completed",
		zap.Stringer("task", t.id),
		zap.String("method", t.req.Method),
		zap.String("url", t.req.URL),
		zap.Int("attempts", t.attempts),
		zap.Bool("failed", t.err != nil))
	if t.done != nil {
		t.done(t.resp, t.err)
	}
	return false
}

// OnAborted may run on a worker goroutine, so it only records the outcome.
func (t *Task) OnAborted(retry bool) {
	t.err = ErrAborted
	t.logger.Debug("http request aborted",
		zap.Stringer("task", t.id),
		zap.Bool("retry", retry))
}

func (t *Task) do() (*Response, error) {
	ctx := t.ctx
	if t.req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.req.Timeout)
		defer cancel()
	}

	var body io.Reader
	if len(t.req.Body) > 0 {
		body = bytes.NewReader(t.req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, t.req.Method, t.target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range t.req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", t.req.Method, t.req.URL, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header.Clone(),
		Body:       data,
	}, nil
}

func retryable(resp *Response, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled)
	}
	return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError
}
