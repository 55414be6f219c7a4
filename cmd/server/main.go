package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/dgallion1/folio/internal/api"
	"github.com/dgallion1/folio/internal/config"
	"github.com/dgallion1/folio/internal/diagram"
	"github.com/dgallion1/folio/internal/metrics"
	"github.com/dgallion1/folio/internal/pageview"
	"github.com/dgallion1/folio/internal/pipeline"
	"github.com/dgallion1/folio/internal/render"
	"github.com/dgallion1/folio/internal/transform"
	prom "github.com/prometheus/client_golang/prometheus"
)

var CLI struct {
	EnvFile string `help:"Load environment variables from this file if it exists." default:".env" type:"path"`
	Verbose bool   `short:"v" help:"Log at debug level."`
	Content string `help:"Content directory (overrides CONTENT_DIR)." type:"path"`

	Serve struct {
		Port  string `help:"Listen port (overrides PORT)."`
		Watch bool   `help:"Rebuild when files in the content directory change."`
	} `cmd:"" default:"1" help:"Build the site and serve it."`

	Render struct {
		File string `arg:"" type:"existingfile" help:"Markdown or MDX file to render."`
	} `cmd:"" help:"Render one content file to stdout as HTML."`
}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name("folio"),
		kong.Description("Portfolio site server."),
	)

	if err := config.LoadDotEnv(CLI.EnvFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg := config.Load()
	if CLI.Content != "" {
		cfg.ContentDir = CLI.Content
	}
	if CLI.Serve.Port != "" {
		cfg.Port = CLI.Serve.Port
	}
	if CLI.Serve.Watch {
		cfg.Watch = true
	}

	log := newLogger(cfg.LogLevel, CLI.Verbose)
	slog.SetDefault(log)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var err error
	switch kctx.Command() {
	case "render <file>":
		err = renderFile(cfg, log, CLI.Render.File)
	default:
		err = serve(cfg, log)
	}
	if err != nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func newLogger(level string, verbose bool) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	if verbose {
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func serve(cfg config.Config, log *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	recorder := metrics.NewRecorder(prom.NewRegistry())

	res, err := openResources(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer res.Close()

	stats := diagram.NewStats(time.Hour)
	engines := diagram.NewLoader(engineLoadFunc(cfg))
	defer closeEngine(engines, log)
	cache := diagram.NewCache(
		diagram.Instrument(engines.Engine(), stats, recorder),
		cfg.DiagramCacheTTL, res.blobs, log,
	)
	diagrams := diagram.NewService(diagram.StaticLoader(cache), log)

	tracker := pageview.NewTracker(res.pageviews, recorder, log)

	worker := pipeline.NewWorker(cfg.ContentDir, diagrams, recorder, log, cfg.MaxConcurrentDiagrams)
	orch := pipeline.NewOrchestrator(worker, cfg.MaxQueueSize, cfg.BuildTTL, recorder, log)

	// The first build runs before the listener opens so pages are ready.
	b := orch.BuildNow(ctx, "startup", true)
	log.Info("initial build finished", "build_id", b.ID, "status", b.Snapshot().Status)
	orch.Start(ctx)

	if cfg.Watch {
		w, err := pipeline.NewWatcher(cfg.ContentDir, cfg.WatchDebounce, orch, log)
		if err != nil {
			return fmt.Errorf("watch content: %w", err)
		}
		defer w.Close()
		go w.Run(ctx)
		log.Info("watching content", "dir", cfg.ContentDir, "debounce", cfg.WatchDebounce)
	}

	sched, err := pipeline.NewScheduler(log)
	if err != nil {
		return err
	}
	if err := scheduleCleanup(sched, cfg, orch, cache, res, log); err != nil {
		return err
	}
	sched.Start()

	srv := api.NewServer(api.Deps{
		Orchestrator: orch,
		Tracker:      tracker,
		Diagrams:     diagrams,
		Viewer:       diagrams,
		DiagramStats: stats,
		DiagramCache: cache,
		Metrics:      recorder.Handler(),
	}, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Info("shutting down")
		if err := sched.Stop(); err != nil {
			log.Warn("scheduler shutdown", "error", err)
		}
		orch.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	log.Info("starting server",
		"port", cfg.Port,
		"content_dir", cfg.ContentDir,
		"diagram_engine", cfg.DiagramEngine,
		"pageview_backend", cfg.PageviewBackend,
	)
	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	<-stopped
	return nil
}

// renderFile parses one file through the same transform chain as the site
// build and writes the article body with diagrams rendered inline.
func renderFile(cfg config.Config, log *slog.Logger, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	doc, err := pipeline.ParseDocument(path, data, transform.Default())
	if err != nil {
		return err
	}

	engines := diagram.NewLoader(engineLoadFunc(cfg))
	defer closeEngine(engines, log)
	diagrams := diagram.NewService(engines, log)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DiagramWait)
	defer cancel()
	return render.New(diagrams).Render(ctx, os.Stdout, doc.Root)
}
