// Package diagram renders diagram sources through a pluggable engine and
// models the interactive viewer each diagram is displayed in.
package diagram

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// Phase is the display state of a diagram.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseRendered
	PhaseError
	PhaseExpanded
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	case PhaseRendered:
		return "rendered"
	case PhaseError:
		return "error"
	case PhaseExpanded:
		return "expanded"
	}
	return "unknown"
}

// ErrNoSource is reported when a diagram is given empty source.
var ErrNoSource = errors.New("no chart data provided")

// Zoom limits and steps for the expanded view.
const (
	MinZoom      = 0.1
	ZoomStep     = 0.25
	ZoomOutFloor = 0.5
	WheelFactor  = 0.001
	EscapeKey    = "Escape"
	baseZoom     = 1.0
)

// Page is the host page whose scrolling is suspended while a diagram is
// expanded.
type Page interface {
	LockScroll()
	UnlockScroll()
}

type noopPage struct{}

func (noopPage) LockScroll()   {}
func (noopPage) UnlockScroll() {}

// State is a snapshot of a diagram.
type State struct {
	Phase       Phase
	Source      string
	Markup      string
	Error       string
	Zoom        float64
	DefaultZoom float64
}

// Diagram is one diagram instance. Each call to SetSource with a new value
// starts a render; only the result for the latest source is ever applied.
type Diagram struct {
	loader *Loader
	page   Page

	mu           sync.Mutex
	source       string
	gen          uint64
	phase        Phase
	markup       string
	errMsg       string
	zoom         float64
	defaultZoom  float64
	scrollLocked bool
	unmounted    bool
	changed      chan struct{}

	// afterCommit runs after a render result is applied or discarded.
	afterCommit func(gen uint64, applied bool)
}

// New creates an idle diagram. page may be nil.
func New(loader *Loader, page Page) *Diagram {
	if page == nil {
		page = noopPage{}
	}
	return &Diagram{
		loader:      loader,
		page:        page,
		zoom:        baseZoom,
		defaultZoom: baseZoom,
		changed:     make(chan struct{}),
	}
}

// SetSource starts rendering source. Passing the current source again is a
// no-op. Empty source moves straight to the error state without calling the
// engine.
func (d *Diagram) SetSource(ctx context.Context, source string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.unmounted {
		return
	}
	if d.gen > 0 && source == d.source {
		return
	}

	d.gen++
	gen := d.gen
	d.source = source
	d.markup = ""
	d.errMsg = ""
	if d.phase == PhaseExpanded {
		d.unlockScrollLocked()
	}
	d.zoom, d.defaultZoom = baseZoom, baseZoom

	if strings.TrimSpace(source) == "" {
		d.phase = PhaseError
		d.errMsg = ErrNoSource.Error()
		d.notifyLocked()
		return
	}

	d.phase = PhaseLoading
	d.notifyLocked()
	go d.render(ctx, gen, source)
}

func (d *Diagram) render(ctx context.Context, gen uint64, source string) {
	var markup string
	engine, err := d.loader.Load(ctx)
	if err == nil {
		markup, err = engine.Render(ctx, NewID(), strings.TrimSpace(source))
	}

	d.mu.Lock()
	applied := gen == d.gen && !d.unmounted
	if applied {
		if err != nil {
			d.phase = PhaseError
			d.errMsg = Message(err)
		} else {
			d.phase = PhaseRendered
			d.markup = markup
		}
		d.notifyLocked()
	}
	hook := d.afterCommit
	d.mu.Unlock()

	if hook != nil {
		hook(gen, applied)
	}
}

// Wait blocks until the current render settles or ctx is done.
func (d *Diagram) Wait(ctx context.Context) error {
	for {
		d.mu.Lock()
		if d.phase != PhaseLoading || d.unmounted {
			d.mu.Unlock()
			return nil
		}
		ch := d.changed
		d.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// State returns a snapshot of the diagram.
func (d *Diagram) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return State{
		Phase:       d.phase,
		Source:      d.source,
		Markup:      d.markup,
		Error:       d.errMsg,
		Zoom:        d.zoom,
		DefaultZoom: d.defaultZoom,
	}
}

// Expand opens a rendered diagram in the full-screen viewer, fitting it to
// viewportWidth and locking page scroll. It reports whether the diagram was
// expanded.
func (d *Diagram) Expand(viewportWidth float64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.phase != PhaseRendered || d.unmounted {
		return false
	}
	d.defaultZoom = FitZoom(d.markup, viewportWidth)
	d.zoom = d.defaultZoom
	d.phase = PhaseExpanded
	if !d.scrollLocked {
		d.page.LockScroll()
		d.scrollLocked = true
	}
	d.notifyLocked()
	return true
}

// Close leaves the expanded viewer and restores page scroll.
func (d *Diagram) Close() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.phase != PhaseExpanded {
		return false
	}
	d.phase = PhaseRendered
	d.zoom = d.defaultZoom
	d.unlockScrollLocked()
	d.notifyLocked()
	return true
}

// ClickOutside handles a click on the backdrop of the expanded viewer.
func (d *Diagram) ClickOutside() bool {
	return d.Close()
}

// HandleKey handles a key press. Only Escape is bound, and only while
// expanded.
func (d *Diagram) HandleKey(key string) bool {
	if key != EscapeKey {
		return false
	}
	return d.Close()
}

// ZoomIn increases zoom by one step.
func (d *Diagram) ZoomIn() float64 {
	return d.adjustZoom(func(z float64) float64 { return z + ZoomStep })
}

// ZoomOut decreases zoom by one step, never below ZoomOutFloor.
func (d *Diagram) ZoomOut() float64 {
	return d.adjustZoom(func(z float64) float64 {
		z -= ZoomStep
		if z < ZoomOutFloor {
			z = ZoomOutFloor
		}
		return z
	})
}

// Wheel applies a scroll wheel delta. Scrolling up zooms in.
func (d *Diagram) Wheel(deltaY float64) float64 {
	return d.adjustZoom(func(z float64) float64 { return z - deltaY*WheelFactor })
}

// ResetZoom returns to the fitted zoom.
func (d *Diagram) ResetZoom() float64 {
	return d.adjustZoom(func(float64) float64 { return d.defaultZoom })
}

func (d *Diagram) adjustZoom(fn func(float64) float64) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.phase != PhaseExpanded {
		return d.zoom
	}
	z := fn(d.zoom)
	if z < MinZoom {
		z = MinZoom
	}
	d.zoom = z
	d.notifyLocked()
	return z
}

// Unmount detaches the diagram. Pending results are discarded and page
// scroll is restored if it was locked.
func (d *Diagram) Unmount() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.unmounted {
		return
	}
	d.unmounted = true
	d.unlockScrollLocked()
	if d.phase == PhaseExpanded {
		d.phase = PhaseRendered
	}
	d.notifyLocked()
}

func (d *Diagram) unlockScrollLocked() {
	if d.scrollLocked {
		d.page.UnlockScroll()
		d.scrollLocked = false
	}
}

func (d *Diagram) notifyLocked() {
	close(d.changed)
	d.changed = make(chan struct{})
}
