package natskv

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	value []byte
	rev   uint64
}

// memBucket mimics KV revision semantics. conflicts forces that many
// update failures to exercise the retry loop.
type memBucket struct {
	mu        sync.Mutex
	data      map[string]entry
	seq       uint64
	conflicts int
}

func newMemBucket() *memBucket { return &memBucket{data: map[string]entry{}} }

func (b *memBucket) get(ctx context.Context, key string) ([]byte, uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.data[key]
	if !ok {
		return nil, 0, errNotFound
	}
	return e.value, e.rev, nil
}

func (b *memBucket) create(ctx context.Context, key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.data[key]; ok {
		return errConflict
	}
	b.seq++
	b.data[key] = entry{value: value, rev: b.seq}
	return nil
}

func (b *memBucket) update(ctx context.Context, key string, value []byte, rev uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conflicts > 0 {
		b.conflicts--
		b.seq++
		e := b.data[key]
		e.rev = b.seq
		b.data[key] = e
		return errConflict
	}
	if b.data[key].rev != rev {
		return errConflict
	}
	b.seq++
	b.data[key] = entry{value: value, rev: b.seq}
	return nil
}

func newTestStore() (*Store, *memBucket, *memBucket) {
	counts, dedup := newMemBucket(), newMemBucket()
	return &Store{counts: counts, dedup: dedup}, counts, dedup
}

func TestStore_IncrAndGet(t *testing.T) {
	s, counts, _ := newTestStore()
	ctx := context.Background()

	n, err := s.Get(ctx, "pageviews:projects:a")
	require.NoError(t, err)
	assert.Zero(t, n)

	for want := int64(1); want <= 3; want++ {
		n, err = s.Incr(ctx, "pageviews:projects:a")
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
	assert.Contains(t, counts.data, "pageviews.projects.a")

	got, err := s.MGet(ctx, []string{"pageviews:projects:a", "pageviews:projects:b"})
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 0}, got)
}

func TestStore_IncrRetriesOnConflict(t *testing.T) {
	s, counts, _ := newTestStore()
	ctx := context.Background()
	_, err := s.Incr(ctx, "a")
	require.NoError(t, err)

	counts.conflicts = 3
	n, err := s.Incr(ctx, "a")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestStore_IncrGivesUpUnderContention(t *testing.T) {
	s, counts, _ := newTestStore()
	_, err := s.Incr(context.Background(), "a")
	require.NoError(t, err)

	counts.conflicts = maxCASAttempts + 1
	_, err = s.Incr(context.Background(), "a")
	assert.Error(t, err)
}

func TestStore_ConcurrentIncrIsExact(t *testing.T) {
	s, _, _ := newTestStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				_, _ = s.Incr(ctx, "a")
			}
		}()
	}
	wg.Wait()

	n, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.EqualValues(t, 40, n)
}

func TestStore_MarkSeen(t *testing.T) {
	s, _, _ := newTestStore()
	ctx := context.Background()

	first, err := s.MarkSeen(ctx, "deduplicate:h:a", 0)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := s.MarkSeen(ctx, "deduplicate:h:a", 0)
	require.NoError(t, err)
	assert.False(t, again)
}

type brokenBucket struct{ *memBucket }

func (brokenBucket) get(ctx context.Context, key string) ([]byte, uint64, error) {
	return nil, 0, errors.New("nats: timeout")
}

func TestStore_GetError(t *testing.T) {
	s := &Store{counts: brokenBucket{newMemBucket()}, dedup: newMemBucket()}
	_, err := s.Get(context.Background(), "a")
	assert.Error(t, err)
	_, err = s.Incr(context.Background(), "a")
	assert.Error(t, err)
}
