package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dgallion1/folio/internal/content"
	"github.com/dgallion1/folio/internal/doctree"
	"github.com/dgallion1/folio/internal/parser"
	"github.com/dgallion1/folio/internal/transform"
)

// Prerenderer warms the diagram cache for a source.
type Prerenderer interface {
	Prerender(ctx context.Context, source string) error
}

// RetryObserver counts prerender retries.
type RetryObserver interface {
	IncDiagramRetry()
}

// Worker builds a site snapshot from the content directory.
type Worker struct {
	dir       string
	chain     transform.Chain
	diagrams  Prerenderer
	retries   RetryObserver
	log       *slog.Logger
	backoff   func(attempt int) time.Duration
	semaphore int
}

// NewWorker creates a worker for dir. diagrams and retries may be nil.
func NewWorker(dir string, diagrams Prerenderer, retries RetryObserver, log *slog.Logger, maxConcurrentDiagrams int) *Worker {
	if maxConcurrentDiagrams <= 0 {
		maxConcurrentDiagrams = 1
	}
	return &Worker{
		dir:       dir,
		chain:     transform.Default(),
		diagrams:  diagrams,
		retries:   retries,
		log:       log,
		backoff:   Backoff,
		semaphore: maxConcurrentDiagrams,
	}
}

type sourceFile struct {
	rel  string
	data []byte
}

// Process runs a full build. It returns the new site, or nil when the build
// failed or found nothing changed since previousHash.
func (w *Worker) Process(ctx context.Context, b *Build, previousHash string) *content.Site {
	log := w.log.With("build_id", b.ID, "trigger", b.Trigger)

	// Phase 1: Scan
	b.SetStatus(StatusScanning, "scanning")
	files, siteYAML, err := w.scan()
	if err != nil {
		log.Error("scan failed", "error", err)
		b.AddError(fmt.Sprintf("scan: %s", err))
		b.SetStatus(StatusFailed, "scanning")
		return nil
	}
	b.SetDocuments(len(files))

	hash := hashSources(files, siteYAML)
	b.setContentHash(hash)
	if hash == previousHash && !b.Force {
		log.Info("content unchanged, skipping")
		b.SetStatus(StatusUnchanged, "scanning")
		return nil
	}

	data, err := content.LoadSiteData(filepath.Join(w.dir, content.SiteDataFile))
	if err != nil {
		log.Error("site data failed", "error", err)
		b.AddError(err.Error())
		b.SetStatus(StatusFailed, "scanning")
		return nil
	}

	// Phase 2: Parse
	b.SetStatus(StatusParsing, "parsing")
	var projects []*content.Project
	seen := make(map[string]string, len(files))
	for _, f := range files {
		if ctx.Err() != nil {
			b.AddError(ctx.Err().Error())
			b.SetStatus(StatusFailed, "parsing")
			return nil
		}
		doc, err := ParseDocument(f.rel, f.data, w.chain)
		if err != nil {
			log.Error("parse failed", "file", f.rel, "error", err)
			b.AddError(fmt.Sprintf("parse %s: %s", f.rel, err))
			continue
		}
		if prev, dup := seen[doc.Slug]; dup {
			b.AddError(fmt.Sprintf("duplicate slug %q in %s and %s", doc.Slug, prev, f.rel))
			continue
		}
		seen[doc.Slug] = f.rel
		projects = append(projects, content.NewProject(doc))
		b.IncrParsed()
	}
	log.Info("parsed content", "projects", len(projects), "files", len(files))

	if len(projects) == 0 && b.ErrorCount() > 0 {
		b.SetStatus(StatusFailed, "parsing")
		return nil
	}

	// Phase 3: Prerender diagrams with bounded concurrency.
	b.SetStatus(StatusPrerendering, "prerendering")
	sources := uniqueDiagrams(projects)
	b.SetDiagrams(len(sources))
	if w.diagrams != nil && len(sources) > 0 {
		w.prerender(ctx, log, b, sources)
	}

	site := content.NewSite(data, projects)
	if b.ErrorCount() > 0 {
		b.SetStatus(StatusPartial, "done")
	} else {
		b.SetStatus(StatusCompleted, "done")
	}
	return site
}

func (w *Worker) prerender(ctx context.Context, log *slog.Logger, b *Build, sources []string) {
	type result struct {
		idx int
		err error
	}
	results := make(chan result, len(sources))
	sem := make(chan struct{}, w.semaphore)

	for i, src := range sources {
		sem <- struct{}{}
		go func(i int, src string) {
			defer func() { <-sem }()
			var lastErr error
			for attempt := range MaxRetries {
				lastErr = w.diagrams.Prerender(ctx, src)
				if lastErr == nil || !IsRetryable(lastErr) {
					break
				}
				if w.retries != nil {
					w.retries.IncDiagramRetry()
				}
				log.Warn("retryable diagram error", "diagram", i, "attempt", attempt, "error", lastErr)
				select {
				case <-time.After(w.backoff(attempt)):
				case <-ctx.Done():
					results <- result{idx: i, err: ctx.Err()}
					return
				}
			}
			results <- result{idx: i, err: lastErr}
		}(i, src)
	}

	for range sources {
		r := <-results
		if r.err != nil {
			log.Error("diagram prerender failed", "diagram", r.idx, "error", r.err)
			b.AddError(fmt.Sprintf("diagram %d: %s", r.idx, r.err))
			continue
		}
		b.IncrDiagramsRendered()
	}
}

// scan reads every supported content file under the worker's directory,
// skipping hidden entries, plus the site data file.
func (w *Worker) scan() ([]sourceFile, []byte, error) {
	var files []sourceFile
	err := filepath.WalkDir(w.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != w.dir && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !parser.IsSupportedExtension(path) {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(w.dir, path)
		if err != nil {
			return err
		}
		files = append(files, sourceFile{rel: filepath.ToSlash(rel), data: data})
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].rel < files[j].rel })

	siteYAML, err := os.ReadFile(filepath.Join(w.dir, content.SiteDataFile))
	if err != nil && !os.IsNotExist(err) {
		return nil, nil, err
	}
	return files, siteYAML, nil
}

// ParseDocument parses one content file and runs the transform chain over it.
func ParseDocument(filename string, data []byte, chain transform.Chain) (*doctree.Document, error) {
	p, err := parser.ForFile(filename)
	if err != nil {
		return nil, err
	}
	doc, err := p.Parse(bytes.NewReader(data), filename)
	if err != nil {
		return nil, err
	}
	chain.Apply(doc.Root)
	doc.TOC = doctree.BuildTOC(doc.Root)
	doc.Diagrams = transform.Extract(doc.Root)
	return doc, nil
}

func hashSources(files []sourceFile, siteYAML []byte) string {
	var buf bytes.Buffer
	for _, f := range files {
		buf.WriteString(f.rel)
		buf.WriteByte(0)
		buf.WriteString(ContentHashHex(f.data))
		buf.WriteByte('\n')
	}
	buf.WriteString(content.SiteDataFile)
	buf.WriteByte(0)
	buf.WriteString(ContentHashHex(siteYAML))
	return ContentHashHex(buf.Bytes())
}

func uniqueDiagrams(projects []*content.Project) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range projects {
		for _, src := range p.Diagrams {
			src = strings.TrimSpace(src)
			if src == "" || seen[src] {
				continue
			}
			seen[src] = true
			out = append(out, src)
		}
	}
	return out
}
