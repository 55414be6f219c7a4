package diagram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Engine converts diagram source into markup. id must be unique per call;
// engines embed it in the produced SVG.
type Engine interface {
	Render(ctx context.Context, id, source string) (string, error)
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(ctx context.Context, id, source string) (string, error)

func (f EngineFunc) Render(ctx context.Context, id, source string) (string, error) {
	return f(ctx, id, source)
}

const idPrefix = "mermaid-"

// NewID returns a fresh diagram element id.
func NewID() string {
	return idPrefix + uuid.NewString()
}

// rebindID gives reused markup the id of the current call. Engines scope
// styles and marker ids by the root svg id, so every occurrence of the old
// id is replaced.
func rebindID(svg, id string) string {
	old := rootID(svg)
	switch {
	case old == "":
		return withID(svg, id)
	case old == id:
		return svg
	}
	return strings.ReplaceAll(svg, old, id)
}

// rootID returns the id attribute of the first svg element.
func rootID(svg string) string {
	i := strings.Index(svg, "<svg")
	if i < 0 {
		return ""
	}
	end := strings.IndexByte(svg[i:], '>')
	if end < 0 {
		return ""
	}
	tag := svg[i : i+end]
	j := strings.Index(tag, ` id="`)
	if j < 0 {
		return ""
	}
	val := tag[j+5:]
	k := strings.IndexByte(val, '"')
	if k < 0 {
		return ""
	}
	return val[:k]
}

// RenderError is a diagram the engine rejected, e.g. a syntax error.
type RenderError struct {
	Message string
}

func (e *RenderError) Error() string { return e.Message }

// RetryableError indicates a transient engine failure that can be retried.
type RetryableError struct {
	StatusCode int
	Message    string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable error (status %d): %s", e.StatusCode, truncate(e.Message, 200))
}

// IsRetryable checks if an error is worth retrying.
func IsRetryable(err error) bool {
	var retryErr *RetryableError
	return errors.As(err, &retryErr)
}

// Message returns the human readable text for a failed render.
func Message(err error) string {
	var renderErr *RenderError
	if errors.As(err, &renderErr) && renderErr.Message != "" {
		return renderErr.Message
	}
	if err == nil || err.Error() == "" {
		return "Failed to render diagram"
	}
	return err.Error()
}

// Settings configures the diagram engine once per process.
type Settings struct {
	Theme         string `json:"theme"`
	SecurityLevel string `json:"securityLevel"`
	FontSize      int    `json:"fontSize"`
}

// DefaultSettings matches the site's dark theme.
func DefaultSettings() Settings {
	return Settings{Theme: "dark", SecurityLevel: "loose", FontSize: 16}
}

var engineInit struct {
	sync.Mutex
	done     bool
	settings Settings
}

// Initialize applies engine settings the first time it is called in the
// process. Later calls return the settings already in effect.
func Initialize(s Settings) Settings {
	engineInit.Lock()
	defer engineInit.Unlock()
	if !engineInit.done {
		def := DefaultSettings()
		if s.Theme == "" {
			s.Theme = def.Theme
		}
		if s.SecurityLevel == "" {
			s.SecurityLevel = def.SecurityLevel
		}
		if s.FontSize <= 0 {
			s.FontSize = def.FontSize
		}
		engineInit.settings = s
		engineInit.done = true
	}
	return engineInit.settings
}

// Observer receives render timings.
type Observer interface {
	ObserveDiagramRender(d time.Duration, success bool)
}

// Instrument wraps next so every call is recorded in stats and obs. Either
// may be nil.
func Instrument(next Engine, stats *Stats, obs Observer) Engine {
	return EngineFunc(func(ctx context.Context, id, source string) (string, error) {
		start := time.Now()
		markup, err := next.Render(ctx, id, source)
		elapsed := time.Since(start)
		if stats != nil {
			stats.Record(elapsed, err == nil)
		}
		if obs != nil {
			obs.ObserveDiagramRender(elapsed, err == nil)
		}
		return markup, err
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
