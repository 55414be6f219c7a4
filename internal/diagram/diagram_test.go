package diagram

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type result struct {
	markup string
	err    error
}

// gatedEngine blocks each render until the test releases its source.
type gatedEngine struct {
	mu    sync.Mutex
	calls []string
	gates map[string]chan result
}

func newGatedEngine(sources ...string) *gatedEngine {
	g := &gatedEngine{gates: make(map[string]chan result)}
	for _, s := range sources {
		g.gates[s] = make(chan result, 1)
	}
	return g
}

func (g *gatedEngine) Render(ctx context.Context, id, source string) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, source)
	ch := g.gates[source]
	g.mu.Unlock()

	select {
	case r := <-ch:
		return r.markup, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (g *gatedEngine) release(source, markup string, err error) {
	g.gates[source] <- result{markup: markup, err: err}
}

func (g *gatedEngine) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

type commit struct {
	gen     uint64
	applied bool
}

func watchCommits(d *Diagram) chan commit {
	ch := make(chan commit, 8)
	d.afterCommit = func(gen uint64, applied bool) { ch <- commit{gen, applied} }
	return ch
}

func nextCommit(t *testing.T, ch chan commit) commit {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for render to finish")
		return commit{}
	}
}

type fakePage struct {
	mu       sync.Mutex
	locks    int
	unlocks  int
	overflow string
}

func (p *fakePage) LockScroll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.locks++
	p.overflow = "hidden"
}

func (p *fakePage) UnlockScroll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unlocks++
	p.overflow = ""
}

const wideSVG = `<svg xmlns="http://www.w3.org/2000/svg" width="800" height="200"><g></g></svg>`

func renderedDiagram(t *testing.T, page Page) *Diagram {
	t.Helper()
	eng := newGatedEngine("graph TD")
	eng.release("graph TD", wideSVG, nil)
	d := New(StaticLoader(eng), page)
	d.SetSource(context.Background(), "graph TD")
	require.NoError(t, d.Wait(context.Background()))
	require.Equal(t, PhaseRendered, d.State().Phase)
	return d
}

func TestDiagram_LastSourceWins(t *testing.T) {
	ctx := context.Background()
	eng := newGatedEngine("A", "B")
	d := New(StaticLoader(eng), nil)
	commits := watchCommits(d)

	d.SetSource(ctx, "A")
	d.SetSource(ctx, "B")
	assert.Equal(t, PhaseLoading, d.State().Phase)

	eng.release("B", "<svg>B</svg>", nil)
	c := nextCommit(t, commits)
	require.True(t, c.applied)
	require.NoError(t, d.Wait(ctx))
	assert.Equal(t, "<svg>B</svg>", d.State().Markup)

	eng.release("A", "<svg>A</svg>", nil)
	c = nextCommit(t, commits)
	assert.False(t, c.applied)

	st := d.State()
	assert.Equal(t, PhaseRendered, st.Phase)
	assert.Equal(t, "B", st.Source)
	assert.Equal(t, "<svg>B</svg>", st.Markup)
}

func TestDiagram_StaleResultBeforeCurrentIsIgnored(t *testing.T) {
	ctx := context.Background()
	eng := newGatedEngine("A", "B")
	d := New(StaticLoader(eng), nil)
	commits := watchCommits(d)

	d.SetSource(ctx, "A")
	d.SetSource(ctx, "B")

	eng.release("A", "", errors.New("syntax error in A"))
	assert.False(t, nextCommit(t, commits).applied)
	assert.Equal(t, PhaseLoading, d.State().Phase)
	assert.Empty(t, d.State().Error)

	eng.release("B", "<svg>B</svg>", nil)
	assert.True(t, nextCommit(t, commits).applied)
	assert.Equal(t, PhaseRendered, d.State().Phase)
}

func TestDiagram_SameSourceDoesNotRerender(t *testing.T) {
	ctx := context.Background()
	eng := newGatedEngine("A")
	eng.release("A", "<svg/>", nil)
	d := New(StaticLoader(eng), nil)

	d.SetSource(ctx, "A")
	require.NoError(t, d.Wait(ctx))
	d.SetSource(ctx, "A")
	require.NoError(t, d.Wait(ctx))

	assert.Equal(t, 1, eng.callCount())
}

func TestDiagram_EmptySourceNeverCallsEngine(t *testing.T) {
	loads := 0
	loader := NewLoader(func(ctx context.Context) (Engine, error) {
		loads++
		return newGatedEngine(), nil
	})
	d := New(loader, nil)

	d.SetSource(context.Background(), "")
	st := d.State()
	assert.Equal(t, PhaseError, st.Phase)
	assert.Equal(t, ErrNoSource.Error(), st.Error)
	assert.Zero(t, loads)

	d.SetSource(context.Background(), "   \n")
	assert.Equal(t, PhaseError, d.State().Phase)
	assert.Zero(t, loads)
}

func TestDiagram_EngineErrorShowsMessageAndSource(t *testing.T) {
	ctx := context.Background()
	eng := newGatedEngine("graph ???")
	eng.release("graph ???", "", errors.New("parse error"))
	d := New(StaticLoader(eng), nil)

	d.SetSource(ctx, "graph ???")
	require.NoError(t, d.Wait(ctx))

	st := d.State()
	assert.Equal(t, PhaseError, st.Phase)
	assert.Equal(t, "parse error", st.Error)

	var buf bytes.Buffer
	require.NoError(t, d.WriteHTML(&buf))
	assert.Contains(t, buf.String(), "Failed to render diagram: parse error")
	assert.Contains(t, buf.String(), "graph ???")

	// No automatic retry.
	assert.Equal(t, 1, eng.callCount())
}

func TestDiagram_LoadFailureIsError(t *testing.T) {
	ctx := context.Background()
	d := New(NewLoader(func(ctx context.Context) (Engine, error) {
		return nil, errors.New("mmdc not installed")
	}), nil)

	d.SetSource(ctx, "graph TD")
	require.NoError(t, d.Wait(ctx))
	st := d.State()
	assert.Equal(t, PhaseError, st.Phase)
	assert.Contains(t, st.Error, "mmdc not installed")
}

func TestDiagram_EscapeClosesAndRestoresScroll(t *testing.T) {
	page := &fakePage{}
	d := renderedDiagram(t, page)

	require.True(t, d.Expand(1280))
	assert.Equal(t, PhaseExpanded, d.State().Phase)
	assert.Equal(t, "hidden", page.overflow)

	assert.False(t, d.HandleKey("Enter"))
	assert.Equal(t, PhaseExpanded, d.State().Phase)

	assert.True(t, d.HandleKey("Escape"))
	assert.Equal(t, PhaseRendered, d.State().Phase)
	assert.Equal(t, "", page.overflow)
	assert.Equal(t, 1, page.locks)
	assert.Equal(t, 1, page.unlocks)

	// Escape outside the expanded view does nothing.
	assert.False(t, d.HandleKey("Escape"))
	assert.Equal(t, 1, page.unlocks)
}

func TestDiagram_ClickOutsideCloses(t *testing.T) {
	page := &fakePage{}
	d := renderedDiagram(t, page)
	require.True(t, d.Expand(1280))

	assert.True(t, d.ClickOutside())
	assert.Equal(t, PhaseRendered, d.State().Phase)
	assert.Equal(t, 1, page.unlocks)
}

func TestDiagram_UnmountWhileExpandedRestoresScroll(t *testing.T) {
	page := &fakePage{}
	d := renderedDiagram(t, page)
	require.True(t, d.Expand(1280))

	d.Unmount()
	assert.Equal(t, "", page.overflow)
	assert.Equal(t, 1, page.unlocks)

	d.Unmount()
	assert.Equal(t, 1, page.unlocks)
	assert.False(t, d.Expand(1280))
}

func TestDiagram_SourceChangeWhileExpandedRestoresScroll(t *testing.T) {
	page := &fakePage{}
	d := renderedDiagram(t, page)
	require.True(t, d.Expand(1280))

	d.SetSource(context.Background(), "")
	assert.Equal(t, PhaseError, d.State().Phase)
	assert.Equal(t, 1, page.unlocks)
}

func TestDiagram_UnmountDiscardsPendingResult(t *testing.T) {
	ctx := context.Background()
	eng := newGatedEngine("A")
	d := New(StaticLoader(eng), nil)
	commits := watchCommits(d)

	d.SetSource(ctx, "A")
	d.Unmount()
	eng.release("A", "<svg/>", nil)

	assert.False(t, nextCommit(t, commits).applied)
	assert.Empty(t, d.State().Markup)
}

func TestDiagram_ExpandRequiresRenderedDiagram(t *testing.T) {
	d := New(StaticLoader(newGatedEngine()), nil)
	assert.False(t, d.Expand(1280))

	d.SetSource(context.Background(), "")
	assert.False(t, d.Expand(1280))
}

func TestDiagram_Zoom(t *testing.T) {
	d := renderedDiagram(t, nil)

	// Zoom controls are inert until expanded.
	assert.InDelta(t, 1.0, d.ZoomIn(), 1e-9)

	require.True(t, d.Expand(1280))
	fit := d.State().DefaultZoom
	assert.InDelta(t, 2.88, fit, 1e-9)

	assert.InDelta(t, fit+0.25, d.ZoomIn(), 1e-9)
	assert.InDelta(t, fit, d.ResetZoom(), 1e-9)

	for i := 0; i < 20; i++ {
		d.ZoomOut()
	}
	assert.InDelta(t, 0.5, d.State().Zoom, 1e-9)

	assert.InDelta(t, 0.6, d.Wheel(-100), 1e-9)
	assert.InDelta(t, MinZoom, d.Wheel(10000), 1e-9)

	assert.True(t, d.Close())
	assert.InDelta(t, fit, d.State().Zoom, 1e-9)
}

func TestFitZoom(t *testing.T) {
	tests := []struct {
		name     string
		markup   string
		viewport float64
		want     float64
	}{
		{"width attribute", `<svg width="800"></svg>`, 1280, 2.88},
		{"view box wins", `<svg width="100%" viewBox="0 0 576 300"></svg>`, 1280, 4},
		{"wide diagram never below natural size", `<svg viewBox="0 0 5000 100"></svg>`, 1280, 2},
		{"missing svg", `<p>no svg</p>`, 1280, 2.88},
		{"unknown viewport", `<svg width="800"></svg>`, 0, 2.88},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, FitZoom(tt.markup, tt.viewport), 1e-9)
		})
	}
}

func TestDiagram_WaitHonoursContext(t *testing.T) {
	eng := newGatedEngine("A")
	d := New(StaticLoader(eng), nil)
	d.SetSource(context.Background(), "A")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Wait(ctx), context.DeadlineExceeded)
	assert.Equal(t, PhaseLoading, d.State().Phase)

	eng.release("A", "<svg/>", nil)
	require.NoError(t, d.Wait(context.Background()))
}

func TestLoader_CachesAfterFirstSuccess(t *testing.T) {
	calls := 0
	eng := newGatedEngine()
	l := NewLoader(func(ctx context.Context) (Engine, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("not yet")
		}
		return eng, nil
	})

	_, err := l.Load(context.Background())
	require.Error(t, err)
	assert.False(t, l.Loaded())

	got, err := l.Load(context.Background())
	require.NoError(t, err)
	assert.Same(t, eng, got)

	_, err = l.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.True(t, l.Loaded())
}

func TestLoader_EngineResolvesLazily(t *testing.T) {
	ready := false
	l := NewLoader(func(ctx context.Context) (Engine, error) {
		if !ready {
			return nil, errors.New("binary missing")
		}
		return EngineFunc(func(ctx context.Context, id, source string) (string, error) {
			return "<svg id=\"" + id + "\"/>", nil
		}), nil
	})
	e := l.Engine()

	_, err := e.Render(context.Background(), "d1", "graph TD")
	require.Error(t, err)

	ready = true
	svg, err := e.Render(context.Background(), "d1", "graph TD")
	require.NoError(t, err)
	assert.Contains(t, svg, `id="d1"`)
}

func TestInitialize_FirstCallWins(t *testing.T) {
	first := Initialize(Settings{Theme: "forest"})
	second := Initialize(Settings{Theme: "neutral", FontSize: 30})
	assert.Equal(t, first, second)
	assert.NotEmpty(t, first.SecurityLevel)
	assert.Positive(t, first.FontSize)
}

func TestNewID_Unique(t *testing.T) {
	a, b := NewID(), NewID()
	assert.NotEqual(t, a, b)
	assert.Regexp(t, `^mermaid-[0-9a-f-]{36}$`, a)
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "bad arrow", Message(&RenderError{Message: "bad arrow"}))
	assert.Equal(t, "boom", Message(errors.New("boom")))
	assert.Equal(t, "Failed to render diagram", Message(errors.New("")))
}
