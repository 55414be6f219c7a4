package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dgallion1/folio/internal/config"
	"github.com/dgallion1/folio/internal/diagram"
	"github.com/dgallion1/folio/internal/kvstore"
	"github.com/dgallion1/folio/internal/natskv"
	"github.com/dgallion1/folio/internal/pageview"
	"github.com/dgallion1/folio/internal/pipeline"
	"github.com/dgallion1/folio/internal/store"
)

// resources holds the connections opened for the configured backends.
type resources struct {
	sqlite    *store.SQLiteStore
	memory    *pageview.Memory
	pageviews pageview.Store
	blobs     diagram.BlobStore
	closers   []func() error
}

func openResources(ctx context.Context, cfg config.Config, log *slog.Logger) (*resources, error) {
	res := &resources{}

	if cfg.SQLitePath != "" {
		codec, err := store.ParseCodec(cfg.CacheCodec)
		if err != nil {
			return nil, err
		}
		db, err := store.Open(cfg.SQLitePath, codec)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		res.sqlite = db
		res.blobs = db
		res.closers = append(res.closers, db.Close)
		log.Info("sqlite store opened", "path", cfg.SQLitePath, "codec", codec)
	}

	switch cfg.PageviewBackend {
	case "memory":
		res.memory = pageview.NewMemory()
		res.pageviews = res.memory
	case "sqlite":
		res.pageviews = res.sqlite
	case "kv":
		client := kvstore.NewClient(cfg.KVURL, cfg.KVToken)
		res.closers = append(res.closers, func() error { client.Close(); return nil })
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := client.Ping(pingCtx); err != nil {
			log.Warn("kv store unreachable, views will read as zero until it recovers", "error", err)
		}
		cancel()
		res.pageviews = client
	case "nats":
		kv, err := natskv.Connect(ctx, natskv.Config{
			URL:          cfg.NATSURL,
			CountsBucket: cfg.NATSBucket,
			DedupBucket:  cfg.NATSBucket + "_dedup",
			DedupTTL:     pageview.DedupWindow,
		}, log)
		if err != nil {
			res.Close()
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		res.closers = append(res.closers, kv.Close)
		res.pageviews = kv
	}
	return res, nil
}

func (r *resources) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i]())
	}
	r.closers = nil
	return errors.Join(errs...)
}

// engineLoadFunc picks the diagram engine. The engine is resolved on first
// use so a missing binary only affects pages with diagrams.
func engineLoadFunc(cfg config.Config) diagram.LoadFunc {
	settings := diagram.Initialize(diagram.Settings{Theme: cfg.DiagramTheme})
	switch cfg.DiagramEngine {
	case "kroki":
		return diagram.KrokiLoader(cfg.KrokiURL, settings)
	case "none":
		return func(ctx context.Context) (diagram.Engine, error) {
			return diagram.EngineFunc(func(ctx context.Context, id, source string) (string, error) {
				return "", &diagram.RenderError{Message: "diagram rendering is disabled"}
			}), nil
		}
	default:
		return diagram.CLILoader(cfg.MermaidCLI, settings)
	}
}

func closeEngine(l *diagram.Loader, log *slog.Logger) {
	if !l.Loaded() {
		return
	}
	e, err := l.Load(context.Background())
	if err != nil {
		return
	}
	switch c := e.(type) {
	case io.Closer:
		if err := c.Close(); err != nil {
			log.Warn("close diagram engine", "error", err)
		}
	case interface{ Close() }:
		c.Close()
	}
}

func scheduleCleanup(s *pipeline.Scheduler, cfg config.Config, orch *pipeline.Orchestrator, cache *diagram.Cache, res *resources, log *slog.Logger) error {
	every := cfg.CleanupInterval
	if _, err := s.Every("builds", every, func(ctx context.Context) error {
		if n := orch.CleanupBuilds(); n > 0 {
			log.Debug("expired builds removed", "count", n)
		}
		return nil
	}); err != nil {
		return err
	}
	if _, err := s.Every("diagram-cache", every, func(ctx context.Context) error {
		cache.Cleanup()
		return nil
	}); err != nil {
		return err
	}
	if res.memory != nil {
		if _, err := s.Every("pageview-dedup", every, func(ctx context.Context) error {
			res.memory.Cleanup()
			return nil
		}); err != nil {
			return err
		}
	}
	if res.sqlite != nil {
		db := res.sqlite
		if _, err := s.Every("sqlite-purge", every, func(ctx context.Context) error {
			if _, err := db.PurgeExpired(ctx); err != nil {
				return err
			}
			if cfg.DiagramCacheTTL > 0 {
				if _, err := db.PurgeDiagrams(ctx, time.Now().Add(-cfg.DiagramCacheTTL)); err != nil {
					return err
				}
			}
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}
