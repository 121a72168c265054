// Command app runs a Lua script against a gwpool thread pool. The script
// submits HTTP and SQL work through the "async" module; finished work is
// delivered back to it once per tick.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"github.com/khekrn/gwpool"
	"github.com/khekrn/gwpool/config"
	"github.com/khekrn/gwpool/luahost"
	"github.com/khekrn/gwpool/server"
)

func main() {
	configPath := flag.String("config", "gwpool.yaml", "path to the YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := cfg.Log.NewLogger()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("host stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	pool := gwpool.NewThreadPoolBuilder().
		WithWorkers(cfg.Workers).
		WithLogger(logger).
		WithMetrics(reg, cfg.Metrics.Namespace).
		WithPanicHandler(func(err error) {
			logger.Error("work item panicked", zap.Error(err))
		}).
		Build()

	var db *sql.DB
	if cfg.SQL.Driver != "" {
		var err error
		db, err = sql.Open(cfg.SQL.Driver, cfg.SQL.DSN)
		if err != nil {
			pool.Terminate(false)
			return fmt.Errorf("open %s: %w", cfg.SQL.Driver, err)
		}
		defer db.Close()
	}

	host, err := luahost.New(pool,
		luahost.WithDB(db),
		luahost.WithLogger(logger),
		luahost.WithHTTPRetry(cfg.HTTP.Attempts, cfg.HTTP.Backoff),
		luahost.WithTimeouts(cfg.HTTP.Timeout, cfg.SQL.Timeout),
	)
	if err != nil {
		pool.Terminate(false)
		return err
	}
	// Deferred calls run in reverse: the pool drains its callbacks into the
	// state before the state is closed, and the DB closes last.
	defer host.Close()
	defer pool.Terminate(true)

	if err := host.DoFile(cfg.Script); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return tickLoop(gctx, cfg, host, logger)
	})

	if cfg.Metrics.Listen != "" {
		srv := server.New(cfg.Metrics.Listen, pool, reg, logger)
		g.Go(srv.ListenAndServe)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	if errors.Is(err, errIdle) {
		logger.Info("script idle, exiting")
		return nil
	}
	return err
}

var errIdle = errors.New("script idle")

// tickLoop owns the Lua state until ctx is cancelled.
func tickLoop(ctx context.Context, cfg config.Config, host *luahost.Host, logger *zap.Logger) error {
	ticker := time.NewTicker(cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		host.Tick()
		if err := host.CallHook("on_tick"); err != nil {
			logger.Warn("on_tick failed", zap.Error(err))
		}
		if cfg.ExitWhenIdle && host.Inflight() == 0 {
			return errIdle
		}
	}
}
