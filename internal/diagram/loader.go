package diagram

import (
	"context"
	"fmt"
	"sync"
)

// LoadFunc resolves the diagram engine, e.g. by locating an external
// binary or dialing a render service.
type LoadFunc func(ctx context.Context) (Engine, error)

// Loader resolves the engine on first use and caches it after the first
// success. A failed load is retried on the next call.
type Loader struct {
	mu     sync.Mutex
	load   LoadFunc
	engine Engine
}

func NewLoader(load LoadFunc) *Loader {
	return &Loader{load: load}
}

// StaticLoader returns a loader that always yields e.
func StaticLoader(e Engine) *Loader {
	return &Loader{engine: e}
}

// Load returns the cached engine or resolves it.
func (l *Loader) Load(ctx context.Context) (Engine, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.engine != nil {
		return l.engine, nil
	}
	if l.load == nil {
		return nil, fmt.Errorf("load diagram engine: no loader configured")
	}
	e, err := l.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load diagram engine: %w", err)
	}
	l.engine = e
	return e, nil
}

// Loaded reports whether the engine has been resolved.
func (l *Loader) Loaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine != nil
}

// Engine returns an Engine that resolves the loader on every call, so
// decorators can be stacked before the real engine is available.
func (l *Loader) Engine() Engine {
	return EngineFunc(func(ctx context.Context, id, source string) (string, error) {
		e, err := l.Load(ctx)
		if err != nil {
			return "", err
		}
		return e.Render(ctx, id, source)
	})
}
