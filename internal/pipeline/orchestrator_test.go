package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type buildObserver struct {
	mu        sync.Mutex
	outcomes  []string
	published int
}

func (o *buildObserver) ObserveBuild(d time.Duration, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func (o *buildObserver) SetPublished(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.published = n
}

func waitBuild(t *testing.T, b *Build) {
	t.Helper()
	select {
	case <-b.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("build %s did not finish", b.ID)
	}
}

func TestOrchestrator_BuildNowPublishes(t *testing.T) {
	dir := writeContent(t, map[string]string{"alpha.mdx": alphaMDX})
	obs := &buildObserver{}
	o := NewOrchestrator(newTestWorker(dir, nil, nil), 2, time.Hour, obs, discard)

	assert.Nil(t, o.Site())
	b := o.BuildNow(context.Background(), "startup", false)
	assert.Equal(t, StatusCompleted, b.Snapshot().Status)
	require.NotNil(t, o.Site())
	assert.Equal(t, []string{"alpha"}, o.Site().Slugs())
	assert.Equal(t, b, o.LastBuild())
	assert.Equal(t, b, o.GetBuild(b.ID))
	assert.Equal(t, []string{"completed"}, obs.outcomes)
	assert.Equal(t, 1, obs.published)
}

func TestOrchestrator_FailedBuildKeepsPreviousSite(t *testing.T) {
	dir := writeContent(t, map[string]string{"alpha.mdx": alphaMDX})
	o := NewOrchestrator(newTestWorker(dir, nil, nil), 2, time.Hour, nil, discard)
	o.BuildNow(context.Background(), "startup", false)
	before := o.Site()
	require.NotNil(t, before)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "site.yaml"), []byte("profile: [broken"), 0o644))
	b := o.BuildNow(context.Background(), "manual", false)
	assert.Equal(t, StatusFailed, b.Snapshot().Status)
	assert.Same(t, before, o.Site())
}

func TestOrchestrator_UnchangedKeepsSite(t *testing.T) {
	dir := writeContent(t, map[string]string{"alpha.mdx": alphaMDX})
	o := NewOrchestrator(newTestWorker(dir, nil, nil), 2, time.Hour, nil, discard)
	o.BuildNow(context.Background(), "startup", false)
	before := o.Site()

	b := o.BuildNow(context.Background(), "manual", false)
	assert.Equal(t, StatusUnchanged, b.Snapshot().Status)
	assert.Same(t, before, o.Site())

	forced := o.BuildNow(context.Background(), "manual", true)
	assert.Equal(t, StatusCompleted, forced.Snapshot().Status)
	assert.NotSame(t, before, o.Site())
}

func TestOrchestrator_SubmitRunsInBackground(t *testing.T) {
	dir := writeContent(t, map[string]string{"alpha.mdx": alphaMDX})
	o := NewOrchestrator(newTestWorker(dir, nil, nil), 2, time.Hour, nil, discard)
	o.Start(context.Background())
	defer o.Stop()

	b, err := o.Submit("api", false)
	require.NoError(t, err)
	waitBuild(t, b)
	assert.Equal(t, StatusCompleted, b.Snapshot().Status)
	assert.NotNil(t, o.Site())
}

func TestOrchestrator_SubmitQueueFull(t *testing.T) {
	dir := writeContent(t, map[string]string{"alpha.mdx": alphaMDX})
	// Not started, so nothing drains the queue.
	o := NewOrchestrator(newTestWorker(dir, nil, nil), 1, time.Hour, nil, discard)

	_, err := o.Submit("api", false)
	require.NoError(t, err)
	assert.Equal(t, 1, o.QueueDepth())

	b, err := o.Submit("api", false)
	assert.Error(t, err)
	assert.Equal(t, StatusFailed, b.Snapshot().Status)
	assert.Equal(t, "queue_full", b.Snapshot().Phase)
}

func TestOrchestrator_CleanupBuilds(t *testing.T) {
	dir := writeContent(t, map[string]string{"alpha.mdx": alphaMDX})
	o := NewOrchestrator(newTestWorker(dir, nil, nil), 1, time.Millisecond, nil, discard)
	o.BuildNow(context.Background(), "startup", false)
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 1, o.CleanupBuilds())
	assert.Empty(t, o.RecentBuilds(10))
}

type countingSubmitter struct{ n atomic.Int32 }

func (c *countingSubmitter) Submit(trigger string, force bool) (*Build, error) {
	c.n.Add(1)
	return NewBuild(trigger, force), nil
}

func TestWatcher_DebouncesBursts(t *testing.T) {
	dir := writeContent(t, map[string]string{"alpha.mdx": alphaMDX})
	sub := &countingSubmitter{}
	w, err := NewWatcher(dir, 50*time.Millisecond, sub, discard)
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	for i := range 5 {
		body := alphaMDX + string(rune('a'+i))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "alpha.mdx"), []byte(body), 0o644))
	}

	assert.Eventually(t, func() bool { return sub.n.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(1), sub.n.Load())

	cancel()
	<-done
}

func TestWatcher_IgnoresEditorFiles(t *testing.T) {
	dir := writeContent(t, map[string]string{"alpha.mdx": alphaMDX})
	sub := &countingSubmitter{}
	w, err := NewWatcher(dir, 20*time.Millisecond, sub, discard)
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".alpha.mdx.swp"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "alpha.mdx~"), []byte("x"), 0o644))
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(0), sub.n.Load())
}

func TestShouldIgnoreEvent(t *testing.T) {
	cases := map[string]bool{
		"content/alpha.mdx":      false,
		"content/site.yaml":      false,
		"content/.hidden":        true,
		"content/alpha.mdx~":     true,
		"content/.alpha.mdx.swp": true,
		"content/x.swx":          true,
		"content/#alpha.mdx#":    true,
		"content/Thumbs.db":      true,
	}
	for path, want := range cases {
		assert.Equal(t, want, shouldIgnoreEvent(path), path)
	}
}

func TestScheduler_RunsTasks(t *testing.T) {
	s, err := NewScheduler(discard)
	require.NoError(t, err)

	var runs atomic.Int32
	_, err = s.Every("tick", 20*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Jobs())

	s.Start()
	assert.Eventually(t, func() bool { return runs.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, s.Stop())
}
