package diagram

import (
	"context"
	"io"
	"log/slog"
	"strings"
)

// Service renders diagram placeholders during page rendering. Each call
// mounts a fresh Diagram, waits for it to settle and writes its view.
type Service struct {
	loader *Loader
	log    *slog.Logger
}

func NewService(loader *Loader, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{loader: loader, log: log}
}

// RenderDiagram writes the settled view for source. If ctx ends before the
// engine answers, the loading view is written.
func (s *Service) RenderDiagram(ctx context.Context, w io.Writer, source string) error {
	d := New(s.loader, nil)
	defer d.Unmount()

	d.SetSource(ctx, source)
	st := d.State()
	if err := d.Wait(ctx); err != nil {
		s.log.Warn("diagram render did not settle", "error", err)
	} else {
		st = d.State()
	}
	if st.Phase == PhaseError {
		s.log.Debug("diagram render failed", "error", st.Error)
	}
	return WriteState(w, st)
}

// Open mounts a diagram for source on page and waits for it to settle or
// for ctx to end. The caller must Unmount it.
func (s *Service) Open(ctx context.Context, source string, page Page) *Diagram {
	d := New(s.loader, page)
	d.SetSource(ctx, source)
	if err := d.Wait(ctx); err != nil {
		s.log.Warn("diagram render did not settle", "error", err)
	}
	return d
}

// Prerender renders source once through the engine, warming any cache in
// front of it. Errors are returned unchanged so callers can retry transient
// failures.
func (s *Service) Prerender(ctx context.Context, source string) error {
	source = strings.TrimSpace(source)
	if source == "" {
		return ErrNoSource
	}
	engine, err := s.loader.Load(ctx)
	if err != nil {
		return err
	}
	_, err = engine.Render(ctx, NewID(), source)
	return err
}
