package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/contextengine/retrieval/internal/adapter/aiprovider"
	"github.com/contextengine/retrieval/internal/adapter/mcp"
	cenats "github.com/contextengine/retrieval/internal/adapter/nats"
	otelad "github.com/contextengine/retrieval/internal/adapter/otel"
	"github.com/contextengine/retrieval/internal/adapter/postgres"
	"github.com/contextengine/retrieval/internal/adapter/ristretto"
	"github.com/contextengine/retrieval/internal/config"
	"github.com/contextengine/retrieval/internal/git"
	"github.com/contextengine/retrieval/internal/gitmonitor"
	"github.com/contextengine/retrieval/internal/jobmanager"
	"github.com/contextengine/retrieval/internal/logger"
	"github.com/contextengine/retrieval/internal/resilience"
	"github.com/contextengine/retrieval/internal/retrieval"
)

const version = "0.1.0"

// gitPoolLimit bounds concurrent git subprocesses; the monitor is the only
// steady consumer, the second slot covers an overlapping manual poll.
const gitPoolLimit = 2

func main() {
	// Temporary bootstrap logger until config is loaded.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	flags, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		return fmt.Errorf("flags: %w", err)
	}
	cfg, yamlPath, err := config.LoadWithCLI(flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// Replace bootstrap logger with configured one.
	log, logCloser := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer logCloser.Close()

	slog.Info("config loaded",
		"project_path", cfg.Project.Path,
		"log_level", cfg.Logging.Level,
		"job_concurrency", cfg.Job.Concurrency,
		"http_addr", cfg.Server.HTTPAddr,
	)

	ctx := context.Background()

	if err := verifyGitRepository(ctx, cfg.Project.Path); err != nil {
		return fmt.Errorf("project path: %w", err)
	}

	// --- Infrastructure ---

	otelShutdown, err := otelad.Init(otelad.OTELConfig{
		Enabled:     cfg.OTEL.Enabled,
		Endpoint:    cfg.OTEL.Endpoint,
		ServiceName: cfg.OTEL.ServiceName,
		Insecure:    cfg.OTEL.Insecure,
		SampleRate:  cfg.OTEL.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}

	pool, err := postgres.NewPool(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Storage.DatabaseURL); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	store := postgres.NewStore(pool)
	cached, err := ristretto.NewCachedStore(store, cfg.Cache)
	if err != nil {
		return fmt.Errorf("hydration cache: %w", err)
	}

	// NATS carries job lifecycle events for interested listeners; the
	// engine's own loops never consume them, so an unreachable broker
	// degrades to log warnings instead of failing startup.
	var publisher jobmanager.StatusPublisher
	queue, err := cenats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable, job status events disabled", "error", err)
	} else {
		queue.SetBreaker(resilience.NewBreaker(5, 30*time.Second))
		publisher = queue
	}

	var retrievalMetrics mcp.RetrievalMetrics
	var jobMetrics jobmanager.Metrics
	if m, err := otelad.NewMetrics(); err != nil {
		slog.Warn("metric instruments unavailable", "error", err)
	} else {
		retrievalMetrics, jobMetrics = m, m
	}

	// --- Services ---

	provider := aiprovider.NewClient(cfg.AI.BaseURL, cfg.AI.APIKey, cfg.AI.ModelName, cfg.AI.ThinkingBudget)
	provider.SetBreaker(resilience.NewBreaker(5, time.Minute))

	manager := jobmanager.New(cached, provider, publisher, jobMetrics, otelad.JobSpans{}, jobmanager.Config{
		Concurrency:     cfg.Job.Concurrency,
		Delay:           cfg.Job.Delay,
		MaxAttempts:     cfg.Job.MaxAttempts,
		PollingInterval: cfg.Job.PollingInterval,
	})

	monitor := gitmonitor.New(cached, git.NewPool(gitPoolLimit), cfg.Project.Path, cfg.GitMon.Interval)

	orchestrator := retrieval.NewOrchestrator(
		retrieval.NewGenerator(cached),
		retrieval.NewExpander(cached),
		otelad.RetrievalSpans{},
		cfg.Graph.MaxSeedEntitiesForExpansion,
	)

	mcpSrv := mcp.NewServer(mcp.Deps{
		Retriever: orchestrator,
		Summaries: cached,
		Metrics:   retrievalMetrics,
	}, version)

	// --- Background pollers ---

	pollerCtx, cancelPollers := context.WithCancel(ctx)
	manager.Start(pollerCtx)
	monitor.Start(pollerCtx)

	// --- Transports ---

	var httpSrv *http.Server
	if cfg.Server.HTTPAddr != "" {
		httpSrv = newHTTPServer(cfg, mcpSrv, queue, pool)
		go func() {
			slog.Info("mcp server: serving on http", "addr", cfg.Server.HTTPAddr)
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("http server failed", "error", err)
			}
		}()
	}

	// SIGHUP re-reads the config file; non-reloadable fields log warnings
	// from Reload itself.
	holder := config.NewHolder(cfg, yamlPath)
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for range hup {
			if err := holder.Reload(); err != nil {
				slog.Error("config reload failed", "error", err)
			} else {
				slog.Info("config reloaded")
			}
		}
	}()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- mcpSrv.ServeStdio()
	}()

	// shutdown tears the process down in dependency order: stop accepting
	// tool calls, stop the pollers, drain event publishes, then close
	// storage last so in-flight handlers can finish their writes.
	shutdown := func() {
		shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		if httpSrv != nil {
			slog.Info("shutdown: stopping http server")
			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				slog.Error("http shutdown error", "error", err)
			}
		}

		slog.Info("shutdown: stopping pollers")
		cancelPollers()

		if queue != nil {
			slog.Info("shutdown: draining nats")
			if err := queue.Drain(); err != nil {
				slog.Error("nats drain error", "error", err)
			}
		}

		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Error("otel shutdown error", "error", err)
		}

		cached.Close()

		slog.Info("shutdown: closing database pool")
		pool.Close()

		slog.Info("shutdown complete")
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-done:
		slog.Info("signal received", "signal", sig.String())
	case err := <-serveErr:
		if err != nil {
			slog.Error("stdio server failed", "error", err)
			shutdown()
			return fmt.Errorf("mcp stdio: %w", err)
		}
		slog.Info("stdio client disconnected")
	}

	shutdown()
	return nil
}

// verifyGitRepository fails startup when the configured project path is not
// inside a git working tree, since the git monitor and the git-history
// retrieval sources are meaningless without one.
func verifyGitRepository(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	cmd := exec.CommandContext(ctx, "git", "-C", path, "rev-parse", "--git-dir")
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s is not a git repository: %s", path, string(out))
	}
	return nil
}

// newHTTPServer mounts the streamable-HTTP MCP transport plus a health
// endpoint behind the usual middleware stack.
func newHTTPServer(cfg *config.Config, mcpSrv *mcp.Server, queue *cenats.Queue, pool interface {
	Ping(context.Context) error
}) *http.Server {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(otelad.HTTPMiddleware("mcp"))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		status := struct {
			Status   string `json:"status"`
			Postgres string `json:"postgres"`
			NATS     string `json:"nats"`
		}{Status: "ok", Postgres: "ok", NATS: "disabled"}

		if err := pool.Ping(req.Context()); err != nil {
			status.Status = "degraded"
			status.Postgres = "unreachable"
		}
		if queue != nil {
			status.NATS = "disconnected"
			if queue.IsConnected() {
				status.NATS = "ok"
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(status)
	})

	r.Mount("/mcp", mcpSrv.HTTPHandler())

	return &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
