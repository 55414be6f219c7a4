package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgallion1/folio/internal/content"
)

// Observer receives build outcomes.
type Observer interface {
	ObserveBuild(d time.Duration, outcome string)
	SetPublished(n int)
}

// Orchestrator runs site builds one at a time and publishes the result.
// Readers always see a complete site: a new snapshot replaces the old one
// only when a build succeeds.
type Orchestrator struct {
	builds *BuildStore
	queue  chan *Build
	worker *Worker
	obs    Observer
	log    *slog.Logger

	site atomic.Pointer[content.Site]
	last atomic.Pointer[Build]

	buildMu sync.Mutex
	hash    string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator creates the pipeline. obs may be nil.
func NewOrchestrator(worker *Worker, queueSize int, buildTTL time.Duration, obs Observer, log *slog.Logger) *Orchestrator {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Orchestrator{
		builds: NewBuildStore(buildTTL),
		queue:  make(chan *Build, queueSize),
		worker: worker,
		obs:    obs,
		log:    log,
	}
}

// Start launches the build goroutine.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		for {
			select {
			case <-workerCtx.Done():
				return
			case b := <-o.queue:
				o.run(workerCtx, b)
			}
		}
	}()
}

// Stop cancels any running build and waits for the build goroutine.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	o.wg.Wait()
}

// Submit queues a build.
func (o *Orchestrator) Submit(trigger string, force bool) (*Build, error) {
	b := NewBuild(trigger, force)
	o.builds.Put(b)
	select {
	case o.queue <- b:
		return b, nil
	default:
		b.AddError("queue full")
		b.SetStatus(StatusFailed, "queue_full")
		return b, fmt.Errorf("build queue is full (%d)", cap(o.queue))
	}
}

// BuildNow runs a build on the calling goroutine.
func (o *Orchestrator) BuildNow(ctx context.Context, trigger string, force bool) *Build {
	b := NewBuild(trigger, force)
	o.builds.Put(b)
	o.run(ctx, b)
	return b
}

func (o *Orchestrator) run(ctx context.Context, b *Build) {
	o.buildMu.Lock()
	defer o.buildMu.Unlock()

	start := time.Now()
	site := o.worker.Process(ctx, b, o.hash)
	snap := b.Snapshot()

	if site != nil {
		o.site.Store(site)
		o.hash = snap.ContentHash
		if o.obs != nil {
			o.obs.SetPublished(len(site.Published()))
		}
	}
	o.last.Store(b)
	if o.obs != nil {
		o.obs.ObserveBuild(time.Since(start), string(snap.Status))
	}
	o.log.Info("build finished",
		"build_id", b.ID,
		"status", snap.Status,
		"projects", snap.Progress.Parsed,
		"diagrams", snap.Progress.DiagramsRendered,
		"errors", len(snap.Progress.Errors),
		"duration", time.Since(start),
	)
}

// Site returns the published site, or nil before the first successful build.
func (o *Orchestrator) Site() *content.Site {
	return o.site.Load()
}

// GetBuild returns a build by ID.
func (o *Orchestrator) GetBuild(id string) *Build {
	return o.builds.Get(id)
}

// LastBuild returns the most recently finished build.
func (o *Orchestrator) LastBuild() *Build {
	return o.last.Load()
}

// RecentBuilds returns up to n builds, newest first.
func (o *Orchestrator) RecentBuilds(n int) []*Build {
	return o.builds.Recent(n)
}

// CleanupBuilds evicts expired build records.
func (o *Orchestrator) CleanupBuilds() int {
	return o.builds.Cleanup()
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}
