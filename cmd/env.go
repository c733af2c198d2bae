package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/verify-cli/internal/catalog"
	"github.com/sells-group/verify-cli/internal/config"
	"github.com/sells-group/verify-cli/internal/dispatch"
	"github.com/sells-group/verify-cli/internal/fetcher"
	"github.com/sells-group/verify-cli/internal/handler"
	"github.com/sells-group/verify-cli/internal/ingest"
	"github.com/sells-group/verify-cli/internal/metrics"
	"github.com/sells-group/verify-cli/internal/resilience"
	"github.com/sells-group/verify-cli/internal/scheduler"
	"github.com/sells-group/verify-cli/internal/store"
	"github.com/sells-group/verify-cli/internal/verify"
	"github.com/sells-group/verify-cli/pkg/nsopw"
)

// engineEnv holds the wired engine used by every command.
type engineEnv struct {
	Store     store.Store
	Registry  *catalog.Registry
	Manager   *ingest.Manager
	Router    *dispatch.Router
	Service   *verify.Service
	Scheduler *scheduler.Scheduler
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer
}

// Close releases resources held by the environment.
func (e *engineEnv) Close() {
	if e.Service != nil {
		e.Service.Wait()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	switch c.Store.Driver {
	case "memory":
		return store.NewMemory(), nil
	case "sqlite":
		return store.NewSQLite(c.Store.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, c.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: c.Store.MaxConns,
			MinConns: c.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
}

func initRegistry(c *config.Config) (*catalog.Registry, error) {
	keys := map[string]string{}
	if c.Sources.SAMKey != "" {
		keys["sam"] = c.Sources.SAMKey
	}
	reg, err := catalog.Build(catalog.Options{
		File:    c.Sources.CatalogFile,
		Enabled: c.Sources.Enabled,
		APIKeys: keys,
	})
	if err != nil {
		return nil, eris.Wrap(err, "build source catalog")
	}
	return reg, nil
}

func initFetcher(c *config.Config) fetcher.Fetcher {
	timeout := time.Duration(c.Ingest.TimeoutSecs) * time.Second
	return &fetcher.Router{
		HTTP: fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent:  c.Ingest.UserAgent,
			Timeout:    timeout,
			MaxRetries: c.Ingest.MaxRetries,
		}),
		FTP: fetcher.NewFTPFetcher(fetcher.FTPOptions{
			Timeout:  timeout,
			User:     c.Ingest.FTPUser,
			Password: c.Ingest.FTPPassword,
		}),
	}
}

// initEngine validates config for mode and wires store, ingest, dispatch,
// orchestrator and scheduler. Callers should defer env.Close().
func initEngine(ctx context.Context, mode string) (*engineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	reg, err := initRegistry(cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	if err := os.MkdirAll(cfg.Ingest.TempDir, 0o755); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "create ingest temp dir")
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(promReg)

	mgr := ingest.NewManager(ingest.ManagerOptions{
		Registry: reg,
		Builder:  ingest.NewIngestor(initFetcher(cfg), ingest.WithTempDir(cfg.Ingest.TempDir)),
		Recorder: st,
		Observer: m,
	})

	live := nsopw.NewClient(
		nsopw.WithBaseURL(cfg.NSOPW.BaseURL),
		nsopw.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.NSOPW.TimeoutSecs) * time.Second}),
		nsopw.WithUserAgent(cfg.Ingest.UserAgent),
	)
	router := dispatch.New(dispatch.Options{
		Registry: reg,
		Indexes:  mgr,
		Rules:    cfg.Matching.WithDefaults(),
		Live:     live,
		LiveOpts: handler.LiveOptions{
			Timeout: time.Duration(cfg.NSOPW.TimeoutSecs) * time.Second,
			Retry:   resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: 500 * time.Millisecond},
		},
	})

	svc := verify.NewService(verify.Options{
		Dispatcher:       router,
		Subjects:         st,
		Results:          st,
		Sources:          mgr,
		Observer:         m,
		Concurrency:      cfg.Verify.Concurrency,
		BatchConcurrency: cfg.Verify.BatchConcurrency,
		HandlerTimeout:   cfg.HandlerTimeout(),
		RemotePacing:     cfg.RemotePacing(),
		Background:       ctx,
	})

	sched := scheduler.New(scheduler.Options{
		Registry:     reg,
		Refresher:    mgr,
		Interval:     cfg.SchedulerInterval(),
		ErrorBackoff: cfg.SchedulerBackoff(),
		Concurrency:  cfg.Scheduler.Concurrency,
	})

	zap.L().Info("engine ready",
		zap.String("store", cfg.Store.Driver),
		zap.Strings("sources", reg.IDs()),
		zap.Strings("types", router.Types()),
	)

	return &engineEnv{
		Store:     st,
		Registry:  reg,
		Manager:   mgr,
		Router:    router,
		Service:   svc,
		Scheduler: sched,
		Metrics:   m,
		Gatherer:  promReg,
	}, nil
}
