package pipeline

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// BuildStatus represents the state of a site build.
type BuildStatus string

const (
	StatusQueued       BuildStatus = "queued"
	StatusScanning     BuildStatus = "scanning"
	StatusParsing      BuildStatus = "parsing"
	StatusPrerendering BuildStatus = "prerendering"
	StatusCompleted    BuildStatus = "completed"
	StatusFailed       BuildStatus = "failed"
	StatusPartial      BuildStatus = "partial"
	StatusUnchanged    BuildStatus = "unchanged"
)

// Done reports whether the status is terminal.
func (s BuildStatus) Done() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusPartial, StatusUnchanged:
		return true
	}
	return false
}

// Build tracks a single rebuild of the content directory.
type Build struct {
	mu sync.Mutex

	ID      string `json:"build_id"`
	Trigger string `json:"trigger"`
	Force   bool   `json:"force"`

	Status BuildStatus `json:"status"`
	Phase  string      `json:"phase"`

	Progress Progress `json:"progress"`

	ContentHash string    `json:"content_hash,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	errors []string
	done   chan struct{}
}

// Progress tracks build progress.
type Progress struct {
	Documents        int      `json:"documents"`
	Parsed           int      `json:"parsed"`
	Diagrams         int      `json:"diagrams"`
	DiagramsRendered int      `json:"diagrams_rendered"`
	Errors           []string `json:"errors"`
}

// NewBuild creates a queued build.
func NewBuild(trigger string, force bool) *Build {
	now := time.Now()
	return &Build{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		Force:     force,
		Status:    StatusQueued,
		Phase:     "queued",
		CreatedAt: now,
		UpdatedAt: now,
		done:      make(chan struct{}),
	}
}

// BuildStore is a thread-safe in-memory build registry with TTL eviction.
type BuildStore struct {
	mu     sync.Mutex
	builds map[string]*Build
	ttl    time.Duration
}

func NewBuildStore(ttl time.Duration) *BuildStore {
	return &BuildStore{
		builds: make(map[string]*Build),
		ttl:    ttl,
	}
}

func (s *BuildStore) Put(b *Build) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.builds[b.ID] = b
}

func (s *BuildStore) Get(id string) *Build {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.builds[id]
}

// Recent returns up to n builds, newest first.
func (s *BuildStore) Recent(n int) []*Build {
	s.mu.Lock()
	out := make([]*Build, 0, len(s.builds))
	for _, b := range s.builds {
		out = append(out, b)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Cleanup removes finished builds older than the TTL and returns how many
// were dropped.
func (s *BuildStore) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	n := 0
	for id, b := range s.builds {
		b.mu.Lock()
		expired := b.Status.Done() && now.Sub(b.UpdatedAt) > s.ttl
		b.mu.Unlock()
		if expired {
			delete(s.builds, id)
			n++
		}
	}
	return n
}

// SetStatus updates build status atomically. Terminal statuses release
// anyone blocked in Wait.
func (b *Build) SetStatus(status BuildStatus, phase string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Status = status
	b.Phase = phase
	b.UpdatedAt = time.Now()
	if status.Done() && b.done != nil {
		select {
		case <-b.done:
		default:
			close(b.done)
		}
	}
}

// Done is closed once the build reaches a terminal status.
func (b *Build) Done() <-chan struct{} {
	return b.done
}

// AddError records an error.
func (b *Build) AddError(err string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errors = append(b.errors, err)
	b.Progress.Errors = b.errors
	b.UpdatedAt = time.Now()
}

// ErrorCount returns the number of recorded errors.
func (b *Build) ErrorCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.errors)
}

func (b *Build) SetDocuments(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Progress.Documents = n
	b.UpdatedAt = time.Now()
}

func (b *Build) IncrParsed() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Progress.Parsed++
	b.UpdatedAt = time.Now()
}

func (b *Build) SetDiagrams(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Progress.Diagrams = n
	b.UpdatedAt = time.Now()
}

func (b *Build) IncrDiagramsRendered() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Progress.DiagramsRendered++
	b.UpdatedAt = time.Now()
}

func (b *Build) setContentHash(h string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ContentHash = h
}

// BuildSnapshot is a read-only, JSON-safe copy of build state.
type BuildSnapshot struct {
	ID          string      `json:"build_id"`
	Trigger     string      `json:"trigger"`
	Status      BuildStatus `json:"status"`
	Phase       string      `json:"phase"`
	ContentHash string      `json:"content_hash,omitempty"`
	Progress    Progress    `json:"progress"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the build state.
func (b *Build) Snapshot() BuildSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	errs := make([]string, len(b.errors))
	copy(errs, b.errors)
	return BuildSnapshot{
		ID:          b.ID,
		Trigger:     b.Trigger,
		Status:      b.Status,
		Phase:       b.Phase,
		ContentHash: b.ContentHash,
		Progress: Progress{
			Documents:        b.Progress.Documents,
			Parsed:           b.Progress.Parsed,
			Diagrams:         b.Progress.Diagrams,
			DiagramsRendered: b.Progress.DiagramsRendered,
			Errors:           errs,
		},
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
	}
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}
