// Package natskv stores view counts in NATS JetStream key-value buckets.
package natskv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const maxCASAttempts = 16

// bucket is the subset of a KV bucket the store needs.
type bucket interface {
	get(ctx context.Context, key string) (value []byte, revision uint64, err error)
	create(ctx context.Context, key string, value []byte) error
	update(ctx context.Context, key string, value []byte, revision uint64) error
}

// errNotFound and errConflict are the bucket outcomes the store branches on.
var (
	errNotFound = errors.New("key not found")
	errConflict = errors.New("revision conflict")
)

type jsBucket struct {
	kv jetstream.KeyValue
}

func (b jsBucket) get(ctx context.Context, key string) ([]byte, uint64, error) {
	e, err := b.kv.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, 0, errNotFound
	}
	if err != nil {
		return nil, 0, err
	}
	return e.Value(), e.Revision(), nil
}

func (b jsBucket) create(ctx context.Context, key string, value []byte) error {
	_, err := b.kv.Create(ctx, key, value)
	if errors.Is(err, jetstream.ErrKeyExists) {
		return errConflict
	}
	return err
}

func (b jsBucket) update(ctx context.Context, key string, value []byte, revision uint64) error {
	_, err := b.kv.Update(ctx, key, value, revision)
	var apiErr *jetstream.APIError
	if errors.Is(err, jetstream.ErrKeyExists) ||
		(errors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence) {
		return errConflict
	}
	return err
}

// Config names the server and buckets.
type Config struct {
	URL          string
	CountsBucket string
	DedupBucket  string
	// DedupTTL is applied bucket-wide to the dedup bucket.
	DedupTTL time.Duration
}

// Store implements pageview.Store on two buckets: one holding counters and
// one holding dedup markers that expire with the bucket TTL.
type Store struct {
	conn   *nats.Conn
	counts bucket
	dedup  bucket
	log    *slog.Logger
}

// Connect dials NATS and opens or creates both buckets.
func Connect(ctx context.Context, cfg Config, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	if cfg.CountsBucket == "" {
		cfg.CountsBucket = "pageviews"
	}
	if cfg.DedupBucket == "" {
		cfg.DedupBucket = "pageview-dedup"
	}
	if cfg.DedupTTL <= 0 {
		cfg.DedupTTL = 24 * time.Hour
	}

	conn, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	counts, err := openBucket(ctx, js, jetstream.KeyValueConfig{
		Bucket:      cfg.CountsBucket,
		Description: "Project page view counters",
		History:     1,
	})
	if err != nil {
		conn.Close()
		return nil, err
	}
	dedup, err := openBucket(ctx, js, jetstream.KeyValueConfig{
		Bucket:      cfg.DedupBucket,
		Description: "Recently counted visitors",
		History:     1,
		TTL:         cfg.DedupTTL,
	})
	if err != nil {
		conn.Close()
		return nil, err
	}

	log.Info("NATS pageview store initialized",
		"url", cfg.URL,
		"counts_bucket", cfg.CountsBucket,
		"dedup_bucket", cfg.DedupBucket)

	return &Store{conn: conn, counts: jsBucket{counts}, dedup: jsBucket{dedup}, log: log}, nil
}

func openBucket(ctx context.Context, js jetstream.JetStream, cfg jetstream.KeyValueConfig) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, cfg.Bucket)
	if err == nil {
		return kv, nil
	}
	kv, err = js.CreateKeyValue(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create KV bucket %s: %w", cfg.Bucket, err)
	}
	return kv, nil
}

// encodeKey maps a colon separated key onto the NATS key alphabet.
func encodeKey(key string) string {
	return strings.ReplaceAll(key, ":", ".")
}

func (s *Store) Incr(ctx context.Context, key string) (int64, error) {
	k := encodeKey(key)
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		raw, rev, err := s.counts.get(ctx, k)
		switch {
		case errors.Is(err, errNotFound):
			err = s.counts.create(ctx, k, []byte("1"))
			if err == nil {
				return 1, nil
			}
		case err != nil:
			return 0, fmt.Errorf("get %s: %w", key, err)
		default:
			var n int64
			n, err = parseCount(raw)
			if err != nil {
				return 0, fmt.Errorf("get %s: %w", key, err)
			}
			n++
			err = s.counts.update(ctx, k, []byte(strconv.FormatInt(n, 10)), rev)
			if err == nil {
				return n, nil
			}
		}
		if !errors.Is(err, errConflict) {
			return 0, fmt.Errorf("increment %s: %w", key, err)
		}
	}
	return 0, fmt.Errorf("increment %s: too much contention", key)
}

func (s *Store) Get(ctx context.Context, key string) (int64, error) {
	raw, _, err := s.counts.get(ctx, encodeKey(key))
	if errors.Is(err, errNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get %s: %w", key, err)
	}
	return parseCount(raw)
}

func (s *Store) MGet(ctx context.Context, keys []string) ([]int64, error) {
	out := make([]int64, len(keys))
	for i, k := range keys {
		n, err := s.Get(ctx, k)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

// MarkSeen creates the marker if absent. Expiry comes from the dedup
// bucket's TTL; ttl is ignored.
func (s *Store) MarkSeen(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	err := s.dedup.create(ctx, encodeKey(key), []byte("1"))
	if errors.Is(err, errConflict) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("mark seen %s: %w", key, err)
	}
	return true, nil
}

// Close drains the connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Drain()
}

func parseCount(raw []byte) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("not an integer: %q", raw)
	}
	return n, nil
}
